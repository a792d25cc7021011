package health

import (
	"regexp"
	"strings"
	"time"
)

// Level is the severity of a Status
type Level string

// Health levels, in order of severity
const (
	LevelHealthy   Level = "healthy"
	LevelDegraded  Level = "degraded"
	LevelUnhealthy Level = "unhealthy"
)

func (l Level) severity() int {
	switch l {
	case LevelHealthy:
		return 0
	case LevelDegraded:
		return 1
	default:
		return 2
	}
}

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of a pipeline or one of its elements
type Status struct {
	Name        string    `json:"name"`
	Level       Level     `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy reports whether the status is healthy
func (s Status) IsHealthy() bool { return s.Level == LevelHealthy }

// IsDegraded reports whether the status is degraded
func (s Status) IsDegraded() bool { return s.Level == LevelDegraded }

// IsUnhealthy reports whether the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Level == LevelUnhealthy }

// Find returns the direct sub-status with the given name
func (s Status) Find(name string) (Status, bool) {
	for _, sub := range s.SubStatuses {
		if sub.Name == name {
			return sub, true
		}
	}
	return Status{}, false
}

// NewHealthy creates a healthy status
func NewHealthy(name, message string) Status {
	return newStatus(name, LevelHealthy, message)
}

// NewDegraded creates a degraded status
func NewDegraded(name, message string) Status {
	return newStatus(name, LevelDegraded, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(name, message string) Status {
	return newStatus(name, LevelUnhealthy, message)
}

func newStatus(name string, level Level, message string) Status {
	return Status{
		Name:      name,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate creates a status carrying subStatuses whose level is the worst
// level among them. No sub-statuses aggregate to healthy.
func Aggregate(name string, subStatuses []Status) Status {
	worst := LevelHealthy
	for _, sub := range subStatuses {
		if sub.Level.severity() > worst.severity() {
			worst = sub.Level
		}
	}

	var status Status
	switch worst {
	case LevelUnhealthy:
		status = NewUnhealthy(name, "One or more parts are unhealthy")
	case LevelDegraded:
		status = NewDegraded(name, "One or more parts are degraded")
	default:
		status = NewHealthy(name, "All parts are healthy")
	}

	if len(subStatuses) > 0 {
		status.SubStatuses = make([]Status, len(subStatuses))
		copy(status.SubStatuses, subStatuses)
	}
	return status
}

// sanitizeMessage removes URLs, addresses and credentials from error text
func sanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}

	sanitized := urlRegex.ReplaceAllString(msg, "[URL]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") || strings.Contains(lower, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}
