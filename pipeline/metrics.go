package pipeline

import (
	"time"

	"github.com/ivgotcrazy/jukey-sub001/metric"
)

// pipelineMetrics labels the shared engine metrics with one pipeline name. A nil
// receiver records nothing.
type pipelineMetrics struct {
	core *metric.Metrics
	name string
}

func newPipelineMetrics(registry *metric.MetricsRegistry, name string) *pipelineMetrics {
	if registry == nil {
		return nil // Metrics disabled
	}
	return &pipelineMetrics{core: registry.CoreMetrics(), name: name}
}

func stateValue(s State) int {
	switch s {
	case StateRunning:
		return 1
	case StatePaused:
		return 2
	case StateStopped:
		return 3
	default:
		return 0
	}
}

func (m *pipelineMetrics) recordState(s State) {
	if m == nil {
		return
	}
	m.core.RecordPipelineState(m.name, stateValue(s))
}

func (m *pipelineMetrics) recordElements(n int) {
	if m == nil {
		return
	}
	m.core.RecordElements(m.name, n)
}

func (m *pipelineMetrics) recordControl(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.core.RecordControlDuration(m.name, operation, d)
	if err != nil {
		m.core.RecordError("pipeline", operation)
	}
}

func (m *pipelineMetrics) recordLink(operation string, err error) {
	if m == nil {
		return
	}
	m.core.RecordLink(m.name, operation, err)
}

func (m *pipelineMetrics) recordNegotiation(ok bool) {
	if m == nil {
		return
	}
	m.core.RecordNegotiation(m.name, ok)
}

func (m *pipelineMetrics) recordAssembly(err error) {
	if m == nil {
		return
	}
	m.core.RecordAssembly(m.name, err)
}

func (m *pipelineMetrics) recordBusMessage(msgType string) {
	if m == nil {
		return
	}
	m.core.RecordBusMessage(m.name, msgType)
}
