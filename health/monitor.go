package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
)

const subscriberID = "health-monitor"

// Source is the pipeline a Monitor watches
type Source interface {
	Name() string
	Elements() []element.Element
	SubscribeMsg(msgType msgbus.MsgType, subscriberID string, handler msgbus.Handler) error
	UnsubscribeMsg(msgType msgbus.MsgType, subscriberID string) error
}

// Monitor derives the health of a pipeline from its notifications and the
// state of its elements
type Monitor struct {
	src    Source
	logger *slog.Logger

	mu       sync.RWMutex
	runState string
	failures map[string]string // element name -> sanitized reason
}

// NewMonitor subscribes to the pipeline's notifications. Create the monitor
// before starting the pipeline so that the first RUN_STATE is seen.
func NewMonitor(src Source, logger *slog.Logger) (*Monitor, error) {
	if src == nil {
		return nil, errors.WrapFatal(fmt.Errorf("nil source"), "Monitor", "NewMonitor", "source check")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		src:      src,
		logger:   logger.With("component", "health"),
		failures: make(map[string]string),
	}

	subs := map[msgbus.MsgType]msgbus.Handler{
		msgbus.MsgRunState:        m.onRunState,
		msgbus.MsgNegotiateFailed: m.onNegotiateFailed,
		msgbus.MsgRemoveElement:   m.onRemoveElement,
	}
	for msgType, handler := range subs {
		if err := src.SubscribeMsg(msgType, subscriberID, handler); err != nil {
			m.Close()
			return nil, errors.Wrap(err, "Monitor", "NewMonitor", "subscribe "+string(msgType))
		}
	}
	return m, nil
}

// Close unsubscribes from the pipeline
func (m *Monitor) Close() {
	for _, msgType := range []msgbus.MsgType{msgbus.MsgRunState, msgbus.MsgNegotiateFailed, msgbus.MsgRemoveElement} {
		_ = m.src.UnsubscribeMsg(msgType, subscriberID)
	}
}

func (m *Monitor) onRunState(_ context.Context, msg msgbus.Msg) error {
	rs, ok := element.TryAs[msgbus.RunState](msg.Payload)
	if !ok {
		return nil
	}
	m.mu.Lock()
	m.runState = rs.State
	m.mu.Unlock()
	return nil
}

func (m *Monitor) onNegotiateFailed(_ context.Context, msg msgbus.Msg) error {
	f, ok := element.TryAs[msgbus.NegotiateFailure](msg.Payload)
	if !ok {
		return nil
	}
	reason := sanitizeMessage(fmt.Sprintf("pin %s: %s", f.Pin, f.Reason))
	m.mu.Lock()
	m.failures[f.Element] = reason
	m.mu.Unlock()
	m.logger.Debug("Negotiation failure recorded", "element", f.Element, "pin", f.Pin)
	return nil
}

func (m *Monitor) onRemoveElement(_ context.Context, msg msgbus.Msg) error {
	ev, ok := element.TryAs[msgbus.ElementEvent](msg.Payload)
	if !ok {
		return nil
	}
	m.mu.Lock()
	delete(m.failures, ev.Element)
	m.mu.Unlock()
	return nil
}

// Report returns the current health of the pipeline. The first sub-status is
// the pipeline run state, followed by one per element.
func (m *Monitor) Report() Status {
	elements := m.src.Elements()
	subs := make([]Status, 0, len(elements)+1)
	subs = append(subs, m.pipelineStatus())
	for _, e := range elements {
		subs = append(subs, m.elementStatus(e))
	}
	return Aggregate(m.src.Name(), subs)
}

func (m *Monitor) pipelineStatus() Status {
	m.mu.RLock()
	state := m.runState
	m.mu.RUnlock()

	const name = "pipeline"
	switch state {
	case "RUNNING":
		return NewHealthy(name, "running")
	case "PAUSED":
		return NewDegraded(name, "paused")
	case "STOPPED":
		return NewUnhealthy(name, "stopped")
	default:
		return NewDegraded(name, "not started")
	}
}

func (m *Monitor) elementStatus(e element.Element) Status {
	name := e.Name()
	if pending := unnegotiatedPin(e); pending != "" {
		m.mu.RLock()
		reason, failed := m.failures[name]
		m.mu.RUnlock()
		if failed {
			return NewUnhealthy(name, reason)
		}
		return NewDegraded(name, "pin "+pending+" not negotiated")
	}

	m.mu.Lock()
	delete(m.failures, name)
	m.mu.Unlock()

	switch e.State() {
	case element.StateRunning:
		return NewHealthy(name, "running")
	case element.StatePaused:
		return NewDegraded(name, "paused")
	case element.StateStopped:
		return NewUnhealthy(name, "stopped")
	default:
		return NewDegraded(name, "not started")
	}
}

// unnegotiatedPin returns the name of a connected pin without a capability
func unnegotiatedPin(e element.Element) string {
	for _, p := range e.SinkPins() {
		if p.Connected() && !p.Negotiated() {
			return p.Name()
		}
	}
	for _, p := range e.SourcePins() {
		if p.Connected() && !p.Negotiated() {
			return p.Name()
		}
	}
	return ""
}

// ServeHTTP writes the report as JSON, with 503 when the pipeline is unhealthy
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report := m.Report()

	w.Header().Set("Content-Type", "application/json")
	if report.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		m.logger.Debug("Health response write failed", "error", err)
	}
}
