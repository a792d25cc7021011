// Package syncmgr broadcasts reference timestamps between the elements of one
// pipeline for soft audio/video sync: an audio renderer publishes the pts it just
// played and video renderers hold frames until audio catches up.
package syncmgr

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// Handler receives the latest timestamp of a sync group
type Handler func(group string, ts time.Duration)

type entry struct {
	id      string
	handler Handler
}

type group struct {
	handlers []entry
	latest   time.Duration
	seen     bool
}

// Manager holds the sync groups of one pipeline. Only the last written timestamp is
// visible; no ordering is guaranteed beyond that.
type Manager struct {
	logger *slog.Logger

	mu     sync.RWMutex
	groups map[string]*group
}

// New creates an empty manager
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger.With("component", "syncmgr"),
		groups: make(map[string]*group),
	}
}

// Register adds a handler to group under handlerID
func (m *Manager) Register(groupID, handlerID string, h Handler) error {
	if groupID == "" || handlerID == "" || h == nil {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Manager", "Register", "argument check")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		g = &group{}
		m.groups[groupID] = g
	}
	if slices.ContainsFunc(g.handlers, func(e entry) bool { return e.id == handlerID }) {
		return errors.Wrap(errors.ErrSubscriberExists, "Manager", "Register", "duplicate handler check")
	}
	g.handlers = append(g.handlers, entry{id: handlerID, handler: h})
	return nil
}

// Unregister removes a handler. Empty groups are dropped.
func (m *Manager) Unregister(groupID, handlerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return errors.Wrap(errors.ErrSubscriberMissing, "Manager", "Unregister", "group lookup")
	}
	idx := slices.IndexFunc(g.handlers, func(e entry) bool { return e.id == handlerID })
	if idx < 0 {
		return errors.Wrap(errors.ErrSubscriberMissing, "Manager", "Unregister", "handler lookup")
	}
	g.handlers = slices.Delete(g.handlers, idx, idx+1)
	if len(g.handlers) == 0 {
		delete(m.groups, groupID)
	}
	return nil
}

// UpdateTimestamp records ts as the group's latest timestamp and broadcasts it to
// every handler of the group. Handlers run on the caller's goroutine after the
// manager lock is released.
func (m *Manager) UpdateTimestamp(groupID string, ts time.Duration) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok {
		g = &group{}
		m.groups[groupID] = g
	}
	g.latest = ts
	g.seen = true
	handlers := slices.Clone(g.handlers)
	m.mu.Unlock()

	for _, e := range handlers {
		e.handler(groupID, ts)
	}
}

// Latest returns the last timestamp written to the group
func (m *Manager) Latest(groupID string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[groupID]
	if !ok || !g.seen {
		return 0, false
	}
	return g.latest, true
}

// Groups returns the number of live groups
func (m *Manager) Groups() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}
