package natsbridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/metric"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
)

// Publisher publishes raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// MsgSource is where the bridge subscribes; *pipeline.Pipeline satisfies it
type MsgSource interface {
	Name() string
	SubscribeMsg(msgType msgbus.MsgType, subscriberID string, handler msgbus.Handler) error
	UnsubscribeMsg(msgType msgbus.MsgType, subscriberID string) error
}

// DefaultTypes are the notifications forwarded unless WithTypes is given
var DefaultTypes = []msgbus.MsgType{
	msgbus.MsgAddElement,
	msgbus.MsgRemoveElement,
	msgbus.MsgAddElementStream,
	msgbus.MsgDelElementStream,
	msgbus.MsgRunState,
	msgbus.MsgPlayProgress,
	msgbus.MsgVideoStreamStats,
	msgbus.MsgAudioStreamStats,
	msgbus.MsgNegotiateFailed,
}

// Envelope is the JSON body published for each notification
type Envelope struct {
	ID        string          `json:"id"`
	Type      msgbus.MsgType  `json:"type"`
	Pipeline  string          `json:"pipeline"`
	Src       string          `json:"src,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Option configures a Bridge
type Option func(*Bridge)

// WithSubjectPrefix sets the first subject token
func WithSubjectPrefix(prefix string) Option {
	return func(b *Bridge) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithTypes restricts the forwarded notification types
func WithTypes(types ...msgbus.MsgType) Option {
	return func(b *Bridge) { b.types = types }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics counts published notifications
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Bridge) {
		if registry != nil {
			b.metrics = registry.CoreMetrics()
		}
	}
}

// Bridge forwards pipeline notifications to NATS subjects of the form
// <prefix>.<pipeline>.<type>, with the type lowercased.
type Bridge struct {
	pub     Publisher
	prefix  string
	types   []msgbus.MsgType
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time
}

const subscriberID = "natsbridge"

// New creates a bridge publishing through pub
func New(pub Publisher, opts ...Option) *Bridge {
	b := &Bridge{
		pub:    pub,
		prefix: "jukey",
		types:  DefaultTypes,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "natsbridge")
	return b
}

// Subject returns the subject a notification of msgType is published on
func Subject(prefix, pipeline string, msgType msgbus.MsgType) string {
	return prefix + "." + pipeline + "." + strings.ToLower(string(msgType))
}

// Attach subscribes the bridge to src's notifications
func (b *Bridge) Attach(src MsgSource) error {
	if b.pub == nil || src == nil {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Bridge", "Attach", "argument check")
	}
	pipeline := src.Name()
	for _, t := range b.types {
		handler := func(_ context.Context, msg msgbus.Msg) error {
			return b.forward(pipeline, msg)
		}
		if err := src.SubscribeMsg(t, subscriberID, handler); err != nil {
			b.Detach(src)
			return errors.Wrap(err, "Bridge", "Attach", "subscribe "+string(t))
		}
	}
	b.logger.Info("Forwarding notifications", "pipeline", pipeline, "prefix", b.prefix, "types", len(b.types))
	return nil
}

// Detach removes the bridge's subscriptions from src
func (b *Bridge) Detach(src MsgSource) {
	for _, t := range b.types {
		_ = src.UnsubscribeMsg(t, subscriberID)
	}
}

func (b *Bridge) forward(pipeline string, msg msgbus.Msg) error {
	env := Envelope{
		ID:        msg.ID,
		Type:      msg.Type,
		Pipeline:  pipeline,
		Src:       msg.Src,
		Timestamp: b.now().UTC(),
	}
	if msg.Payload != nil {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return errors.WrapInvalid(errors.Join(errors.ErrInvalidData, err), "Bridge", "forward", "payload encoding")
		}
		env.Payload = payload
	}

	data, err := json.Marshal(env)
	if err != nil {
		return errors.WrapInvalid(errors.Join(errors.ErrInvalidData, err), "Bridge", "forward", "envelope encoding")
	}

	subject := Subject(b.prefix, pipeline, msg.Type)
	if err := b.pub.Publish(subject, data); err != nil {
		if b.metrics != nil {
			b.metrics.RecordError("natsbridge", "publish")
		}
		return errors.WrapTransient(err, "Bridge", "forward", "publish to "+subject)
	}
	if b.metrics != nil {
		b.metrics.RecordNotificationSent(subject)
	}
	return nil
}
