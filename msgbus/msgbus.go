// Package msgbus is the per-pipeline message bus. It carries fire-and-forget
// notifications (Post) and blocking, promise-backed control requests (Send).
// Messages are either targeted at one subscriber by ID or broadcast to every
// subscriber of the message type.
package msgbus

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/metric"
	"github.com/ivgotcrazy/jukey-sub001/pkg/worker"
)

// Msg is one pipeline message. An empty Dst broadcasts to every subscriber of Type.
type Msg struct {
	ID      string
	Type    MsgType
	Src     string
	Dst     string
	Payload any

	promise *Promise
}

// Promise returns the promise attached by Send, or nil for posted messages
func (m Msg) Promise() *Promise {
	return m.promise
}

// Handler processes one message. Returning errors.ErrNoProc means the message was
// not handled. Returning errors.ErrPending from a Send defers the answer until the
// handler resolves msg.Promise().
type Handler func(ctx context.Context, msg Msg) error

type subscription struct {
	id      string
	handler Handler
}

// Config configures a Bus
type Config struct {
	QueueSize int
	Logger    *slog.Logger
	Metrics   *metric.MetricsRegistry
	Name      string
}

// Bus dispatches messages to subscribers. Posted messages are delivered in order by
// a single worker.
type Bus struct {
	name   string
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[MsgType][]subscription

	pool *worker.Pool[Msg]
}

// New creates a bus. Start must be called before Post.
func New(cfg Config) *Bus {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		name:   cfg.Name,
		logger: logger.With("component", "msgbus"),
		subs:   make(map[MsgType][]subscription),
	}

	opts := []worker.Option[Msg]{
		worker.WithErrorHandler(func(msg Msg, err error) {
			b.logger.Warn("Posted message not delivered cleanly",
				"type", msg.Type, "src", msg.Src, "dst", msg.Dst, "error", err)
		}),
	}
	if cfg.Metrics != nil && cfg.Name != "" {
		opts = append(opts, worker.WithMetricsRegistry[Msg](cfg.Metrics, metricPrefix(cfg.Name)))
	}
	b.pool = worker.NewPool(1, cfg.QueueSize, b.deliver, opts...)
	return b
}

// Start starts the delivery worker
func (b *Bus) Start(ctx context.Context) error {
	if err := b.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Bus", "Start", "worker start")
	}
	return nil
}

// Close drains queued notifications and stops the delivery worker
func (b *Bus) Close(timeout time.Duration) error {
	if err := b.pool.Stop(timeout); err != nil {
		return errors.Wrap(err, "Bus", "Close", "worker stop")
	}
	return nil
}

// Subscribe registers handler for msgType under subscriberID. One subscriber may
// hold one handler per message type.
func (b *Bus) Subscribe(msgType MsgType, subscriberID string, handler Handler) error {
	if msgType == "" || subscriberID == "" || handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Bus", "Subscribe", "argument check")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs[msgType] {
		if s.id == subscriberID {
			return errors.Wrap(fmt.Errorf("%w: %s on %s", errors.ErrSubscriberExists, subscriberID, msgType),
				"Bus", "Subscribe", "duplicate check")
		}
	}
	b.subs[msgType] = append(b.subs[msgType], subscription{id: subscriberID, handler: handler})
	return nil
}

// Unsubscribe removes the handler of subscriberID for msgType
func (b *Bus) Unsubscribe(msgType MsgType, subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[msgType]
	idx := slices.IndexFunc(subs, func(s subscription) bool { return s.id == subscriberID })
	if idx < 0 {
		return errors.Wrap(fmt.Errorf("%w: %s on %s", errors.ErrSubscriberMissing, subscriberID, msgType),
			"Bus", "Unsubscribe", "subscriber lookup")
	}
	b.subs[msgType] = slices.Delete(slices.Clone(subs), idx, idx+1)
	return nil
}

// UnsubscribeAll removes every handler registered by subscriberID
func (b *Bus) UnsubscribeAll(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for msgType, subs := range b.subs {
		b.subs[msgType] = slices.DeleteFunc(slices.Clone(subs), func(s subscription) bool {
			return s.id == subscriberID
		})
	}
}

// Post queues msg for asynchronous, ordered delivery
func (b *Bus) Post(msg Msg) error {
	if msg.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Bus", "Post", "message type check")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.promise = nil

	if err := b.pool.Submit(msg); err != nil {
		if errors.Is(err, worker.ErrPoolStopped) {
			return errors.Wrap(errors.ErrBusClosed, "Bus", "Post", "submit")
		}
		return errors.WrapTransient(err, "Bus", "Post", "submit")
	}
	return nil
}

// Send delivers msg synchronously to every matching handler and waits for each
// result. Handlers answering errors.ErrPending are awaited through their promise
// until ctx is done. Handler failures are joined. A message nobody handled yields
// errors.ErrNoProc.
func (b *Bus) Send(ctx context.Context, msg Msg) error {
	if msg.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Bus", "Send", "message type check")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	subs := b.match(msg)
	if len(subs) == 0 {
		return errors.ErrNoProc
	}

	var errs []error
	handled := false
	for _, s := range subs {
		m := msg
		m.promise = newPromise()

		err := s.handler(ctx, m)
		if errors.Is(err, errors.ErrPending) {
			err = m.promise.Wait(ctx)
		}
		switch {
		case err == nil:
			handled = true
		case errors.IsNoProc(err):
		default:
			handled = true
			errs = append(errs, fmt.Errorf("%s: %w", s.id, err))
		}
	}

	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "Bus", "Send", string(msg.Type))
	}
	if !handled {
		return errors.ErrNoProc
	}
	return nil
}

// Subscribers returns the subscriber IDs registered for msgType
func (b *Bus) Subscribers(msgType MsgType) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.subs[msgType]))
	for _, s := range b.subs[msgType] {
		ids = append(ids, s.id)
	}
	return ids
}

// Stats returns delivery statistics for posted messages
func (b *Bus) Stats() worker.PoolStats {
	return b.pool.Stats()
}

func (b *Bus) match(msg Msg) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.subs[msg.Type]
	if msg.Dst == "" {
		return slices.Clone(subs)
	}
	for _, s := range subs {
		if s.id == msg.Dst {
			return []subscription{s}
		}
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, msg Msg) error {
	var errs []error
	for _, s := range b.match(msg) {
		if err := s.handler(ctx, msg); err != nil && !errors.IsNoProc(err) {
			errs = append(errs, fmt.Errorf("%s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

func metricPrefix(name string) string {
	out := []rune("msgbus_")
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
