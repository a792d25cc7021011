package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
)

// streamRegistry tracks which element pins produce and consume each stream. It is
// fed by ADD_ELEMENT_STREAM and DEL_ELEMENT_STREAM notifications.
type streamRegistry struct {
	mu      sync.RWMutex
	streams map[string][]msgbus.ElementStream
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{streams: make(map[string][]msgbus.ElementStream)}
}

func (r *streamRegistry) add(s msgbus.ElementStream) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.streams[s.StreamID], s) {
		return
	}
	r.streams[s.StreamID] = append(r.streams[s.StreamID], s)
}

func (r *streamRegistry) remove(s msgbus.ElementStream) {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := slices.DeleteFunc(slices.Clone(r.streams[s.StreamID]), func(e msgbus.ElementStream) bool {
		return e == s
	})
	if len(left) == 0 {
		delete(r.streams, s.StreamID)
		return
	}
	r.streams[s.StreamID] = left
}

func (r *streamRegistry) removeElement(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, entries := range r.streams {
		left := slices.DeleteFunc(slices.Clone(entries), func(e msgbus.ElementStream) bool {
			return e.Element == name
		})
		if len(left) == 0 {
			delete(r.streams, id)
		} else {
			r.streams[id] = left
		}
	}
}

func (r *streamRegistry) get(streamID string) []msgbus.ElementStream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.streams[streamID])
}

func (r *streamRegistry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *streamRegistry) handle(_ context.Context, msg msgbus.Msg) error {
	s, ok := element.TryAs[msgbus.ElementStream](msg.Payload)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: payload %T", errors.ErrInvalidData, msg.Payload),
			"Pipeline", "handleStream", "payload check")
	}
	if s.StreamID == "" || s.Element == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Pipeline", "handleStream", "stream check")
	}

	switch msg.Type {
	case msgbus.MsgAddElementStream:
		r.add(s)
	case msgbus.MsgDelElementStream:
		r.remove(s)
	default:
		return errors.ErrNoProc
	}
	return nil
}
