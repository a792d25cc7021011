package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// Config is a pipeline definition: the pipeline itself, the elements to create, how
// to link them, and the services around it.
type Config struct {
	Version  string          `json:"version,omitempty"`
	Pipeline PipelineConfig  `json:"pipeline"`
	Metrics  MetricsConfig   `json:"metrics"`
	NATS     NATSConfig      `json:"nats"`
	Elements []ElementConfig `json:"elements"`
	Links    []LinkConfig    `json:"links,omitempty"`
}

// PipelineConfig holds pipeline-wide settings
type PipelineConfig struct {
	Name        string        `json:"name,omitempty"`
	SendTimeout time.Duration `json:"send_timeout,omitempty"` // control request timeout
	QueueSize   int           `json:"queue_size,omitempty"`   // notification queue
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Path    string `json:"path,omitempty"`
	Runtime bool   `json:"runtime,omitempty"` // Go runtime and process collectors
}

// NATSConfig defines the NATS connection used to forward notifications. No URLs
// disables forwarding.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	SubjectPrefix string        `json:"subject_prefix,omitempty"`
}

// Enabled reports whether a NATS server is configured
func (n NATSConfig) Enabled() bool {
	return len(n.URLs) > 0
}

// ElementConfig describes one element instance
type ElementConfig struct {
	Name       string         `json:"name"`
	Component  string         `json:"component"`
	Properties map[string]any `json:"properties,omitempty"`
}

// LinkConfig connects two elements. Each side is "element" or "element.pin". Auto
// links let the assembler insert intermediate elements.
type LinkConfig struct {
	Source string `json:"source"`
	Sink   string `json:"sink"`
	Auto   bool   `json:"auto,omitempty"`
}

// ElementProperties returns the element's properties with its name set
func (e ElementConfig) ElementProperties() element.Properties {
	props := element.Properties(e.Properties).Clone()
	props["name"] = e.Name
	return props
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		// Fallback to shallow copy if marshaling fails
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks the definition and fills in defaults for unset fields
func (c *Config) Validate() error {
	invalid := func(action, format string, args ...any) error {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
			"Config", "Validate", action)
	}

	if c.Pipeline.Name != "" {
		if err := element.ValidateName(c.Pipeline.Name); err != nil {
			return invalid("pipeline name", "pipeline.name %q", c.Pipeline.Name)
		}
	}
	if c.Pipeline.SendTimeout < 0 {
		return invalid("send timeout", "pipeline.send_timeout must not be negative")
	}
	if c.Pipeline.QueueSize < 0 {
		return invalid("queue size", "pipeline.queue_size must not be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			c.Metrics.Addr = DefaultMetricsAddr
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = DefaultMetricsPath
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics path", "metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if c.NATS.Enabled() {
		if c.NATS.SubjectPrefix == "" {
			c.NATS.SubjectPrefix = DefaultSubjectPrefix
		}
		// Normalize prefix to lowercase
		c.NATS.SubjectPrefix = strings.ToLower(c.NATS.SubjectPrefix)
		if !isValidNATSSubjectPart(c.NATS.SubjectPrefix) {
			return invalid("subject prefix",
				"nats.subject_prefix %q is not valid for NATS subjects (must be alphanumeric with dots, dashes, underscores)",
				c.NATS.SubjectPrefix)
		}
	}

	names := make(map[string]bool, len(c.Elements))
	for i, e := range c.Elements {
		if e.Component == "" {
			return invalid("element component", "elements[%d].component is required", i)
		}
		if err := element.ValidateName(e.Name); err != nil {
			return invalid("element name", "elements[%d].name %q", i, e.Name)
		}
		if names[e.Name] {
			return invalid("element name", "duplicate element %q", e.Name)
		}
		names[e.Name] = true
	}

	for i, l := range c.Links {
		for _, ref := range []string{l.Source, l.Sink} {
			elem, _, _ := strings.Cut(ref, ".")
			if elem == "" {
				return invalid("link endpoint", "links[%d] has an empty endpoint", i)
			}
			if !names[elem] {
				return invalid("link endpoint", "links[%d] references unknown element %q", i, elem)
			}
		}
	}

	return nil
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	masked := c.Clone()
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
