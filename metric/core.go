package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jukey"

// Metrics contains the engine-level metrics shared by every pipeline
type Metrics struct {
	PipelineState      *prometheus.GaugeVec
	ElementsActive     *prometheus.GaugeVec
	ControlDuration    *prometheus.HistogramVec
	LinksTotal         *prometheus.CounterVec
	NegotiationsTotal  *prometheus.CounterVec
	AssembliesTotal    *prometheus.CounterVec
	BusMessages        *prometheus.CounterVec
	NotificationsSent  *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	BridgeConnected    prometheus.Gauge
}

// NewMetrics creates the engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PipelineState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "state",
				Help:      "Pipeline state (0=inited, 1=running, 2=paused, 3=stopped)",
			},
			[]string{"pipeline"},
		),

		ElementsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "elements",
				Help:      "Number of elements owned by the pipeline",
			},
			[]string{"pipeline"},
		),

		ControlDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "control_duration_seconds",
				Help:      "Duration of pipeline control operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline", "operation"},
		),

		LinksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "links_total",
				Help:      "Link operations by outcome",
			},
			[]string{"pipeline", "operation", "result"},
		),

		NegotiationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pin",
				Name:      "negotiations_total",
				Help:      "Pin negotiations by outcome",
			},
			[]string{"pipeline", "result"},
		),

		AssembliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assembler",
				Name:      "attempts_total",
				Help:      "Auto link attempts by outcome",
			},
			[]string{"pipeline", "result"},
		),

		BusMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "msgbus",
				Name:      "messages_total",
				Help:      "Messages observed on pipeline buses",
			},
			[]string{"pipeline", "type"},
		),

		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "published_total",
				Help:      "Notifications forwarded to NATS",
			},
			[]string{"subject"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		BridgeConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.PipelineState,
		c.ElementsActive,
		c.ControlDuration,
		c.LinksTotal,
		c.NegotiationsTotal,
		c.AssembliesTotal,
		c.BusMessages,
		c.NotificationsSent,
		c.ErrorsTotal,
		c.BridgeConnected,
	}
}

// RecordPipelineState updates the pipeline state gauge
func (c *Metrics) RecordPipelineState(pipeline string, state int) {
	c.PipelineState.WithLabelValues(pipeline).Set(float64(state))
}

// RecordElements sets the element count of a pipeline
func (c *Metrics) RecordElements(pipeline string, n int) {
	c.ElementsActive.WithLabelValues(pipeline).Set(float64(n))
}

// RecordControlDuration records how long a control operation took
func (c *Metrics) RecordControlDuration(pipeline, operation string, d time.Duration) {
	c.ControlDuration.WithLabelValues(pipeline, operation).Observe(d.Seconds())
}

// RecordLink counts a link operation
func (c *Metrics) RecordLink(pipeline, operation string, err error) {
	c.LinksTotal.WithLabelValues(pipeline, operation, result(err)).Inc()
}

// RecordNegotiation counts a negotiation outcome
func (c *Metrics) RecordNegotiation(pipeline string, ok bool) {
	r := "ok"
	if !ok {
		r = "failed"
	}
	c.NegotiationsTotal.WithLabelValues(pipeline, r).Inc()
}

// RecordAssembly counts an auto link attempt
func (c *Metrics) RecordAssembly(pipeline string, err error) {
	c.AssembliesTotal.WithLabelValues(pipeline, result(err)).Inc()
}

// RecordBusMessage counts a message seen on a pipeline bus
func (c *Metrics) RecordBusMessage(pipeline, msgType string) {
	c.BusMessages.WithLabelValues(pipeline, msgType).Inc()
}

// RecordNotificationSent counts a notification forwarded to NATS
func (c *Metrics) RecordNotificationSent(subject string) {
	c.NotificationsSent.WithLabelValues(subject).Inc()
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordBridgeStatus updates the NATS connection status
func (c *Metrics) RecordBridgeStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.BridgeConnected.Set(value)
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
