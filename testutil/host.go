package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/syncmgr"
)

// MockHost is an in-memory element.Host. Posted messages are recorded and delivered
// synchronously to subscribers; sent messages are recorded and answered by SendFunc.
type MockHost struct {
	mu       sync.Mutex
	name     string
	posted   []msgbus.Msg
	sent     []msgbus.Msg
	handlers map[msgbus.MsgType]map[string]msgbus.Handler

	// SendFunc answers Send. Nil answers errors.ErrNoProc.
	SendFunc func(ctx context.Context, msg msgbus.Msg) error

	sync   *syncmgr.Manager
	logger *slog.Logger
}

var _ element.Host = (*MockHost)(nil)

// NewMockHost creates a host for a pipeline called name
func NewMockHost(name string) *MockHost {
	return &MockHost{
		name:     name,
		handlers: make(map[msgbus.MsgType]map[string]msgbus.Handler),
		sync:     syncmgr.New(nil),
		logger:   slog.Default(),
	}
}

// Name returns the pipeline name
func (h *MockHost) Name() string { return h.name }

// Post records msg and hands it to the subscribers of its type
func (h *MockHost) Post(msg msgbus.Msg) error {
	h.mu.Lock()
	h.posted = append(h.posted, msg)
	handlers := make([]msgbus.Handler, 0, len(h.handlers[msg.Type]))
	for _, handler := range h.handlers[msg.Type] {
		handlers = append(handlers, handler)
	}
	h.mu.Unlock()

	for _, handler := range handlers {
		_ = handler(context.Background(), msg)
	}
	return nil
}

// Send records msg and returns the SendFunc answer
func (h *MockHost) Send(ctx context.Context, msg msgbus.Msg) error {
	h.mu.Lock()
	h.sent = append(h.sent, msg)
	fn := h.SendFunc
	h.mu.Unlock()

	if fn == nil {
		return errors.ErrNoProc
	}
	return fn(ctx, msg)
}

// Subscribe registers handler for msgType
func (h *MockHost) Subscribe(msgType msgbus.MsgType, subscriberID string, handler msgbus.Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.handlers[msgType]
	if !ok {
		subs = make(map[string]msgbus.Handler)
		h.handlers[msgType] = subs
	}
	if _, exists := subs[subscriberID]; exists {
		return errors.Wrap(errors.ErrSubscriberExists, "MockHost", "Subscribe", subscriberID)
	}
	subs[subscriberID] = handler
	return nil
}

// SyncManager returns the host's sync manager
func (h *MockHost) SyncManager() *syncmgr.Manager { return h.sync }

// Logger returns the default logger
func (h *MockHost) Logger() *slog.Logger { return h.logger }

// Posted returns the posted messages, optionally restricted to the given types
func (h *MockHost) Posted(types ...msgbus.MsgType) []msgbus.Msg {
	h.mu.Lock()
	defer h.mu.Unlock()
	return filter(h.posted, types)
}

// Sent returns the sent messages, optionally restricted to the given types
func (h *MockHost) Sent(types ...msgbus.MsgType) []msgbus.Msg {
	h.mu.Lock()
	defer h.mu.Unlock()
	return filter(h.sent, types)
}

func filter(msgs []msgbus.Msg, types []msgbus.MsgType) []msgbus.Msg {
	out := make([]msgbus.Msg, 0, len(msgs))
	for _, m := range msgs {
		if len(types) == 0 {
			out = append(out, m)
			continue
		}
		for _, t := range types {
			if m.Type == t {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// WaitForPosted waits until at least count messages of msgType were posted and
// returns them.
func WaitForPosted(t *testing.T, h *MockHost, msgType msgbus.MsgType, count int, timeout time.Duration) []msgbus.Msg {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if msgs := h.Posted(msgType); len(msgs) >= count {
			return msgs
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for %d %s messages (got %d)", count, msgType, len(h.Posted(msgType)))
			return nil
		case <-ticker.C:
		}
	}
}
