package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/pin"
)

// MockSink is an initialized sink element with one "in" pin. It records the data,
// forward messages and capabilities it receives.
type MockSink struct {
	*element.Base
	set capability.Set

	mu     sync.Mutex
	frames []pin.Data
	msgs   []pin.Msg
	caps   []capability.Capability

	// Reject, when set, vetoes capabilities proposed to the sink pin
	Reject func(c capability.Capability) error
}

// NewMockSink creates and initializes a sink accepting set
func NewMockSink(t testing.TB, host element.Host, name string, set capability.Set) *MockSink {
	t.Helper()
	s := &MockSink{set: set}
	s.Base = element.NewBase(element.Descriptor{
		Name:      name,
		MainType:  element.MainTypeSink,
		SubType:   element.RolePlayer,
		MediaType: set.MediaType,
	}, s, nil)
	if err := s.Init(host, element.Properties{"name": name}); err != nil {
		t.Fatalf("mock sink init: %v", err)
	}
	return s
}

// DoInit creates the "in" pin
func (s *MockSink) DoInit(element.Properties) error {
	_, err := s.AddSinkPin("in", s.set)
	return err
}

// In returns the sink pin
func (s *MockSink) In() *pin.SinkPin { return s.SinkPin("in") }

// ValidateSinkPinCap applies Reject
func (s *MockSink) ValidateSinkPinCap(_ *pin.SinkPin, c capability.Capability) error {
	if s.Reject != nil {
		return s.Reject(c)
	}
	return nil
}

// OnSinkPinNegotiated records the committed capability
func (s *MockSink) OnSinkPinNegotiated(_ *pin.SinkPin, c capability.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = append(s.caps, c)
	return nil
}

// OnSinkPinData records data
func (s *MockSink) OnSinkPinData(_ *pin.SinkPin, data pin.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

// OnSinkPinMsg records and consumes forward messages
func (s *MockSink) OnSinkPinMsg(_ *pin.SinkPin, msg pin.Msg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

// Frames returns the received data
func (s *MockSink) Frames() []pin.Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pin.Data(nil), s.frames...)
}

// Msgs returns the received forward messages
func (s *MockSink) Msgs() []pin.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pin.Msg(nil), s.msgs...)
}

// Capabilities returns every capability committed on the sink pin, in order
func (s *MockSink) Capabilities() []capability.Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capability.Capability(nil), s.caps...)
}

// WaitForFrames waits until the sink received at least count frames
func WaitForFrames(t *testing.T, s *MockSink, count int, timeout time.Duration) []pin.Data {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if frames := s.Frames(); len(frames) >= count {
			return frames
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for %d frames on %s (got %d)", count, s.Name(), len(s.Frames()))
			return nil
		case <-ticker.C:
		}
	}
}

// MockSource is an initialized source element with one "out" pin, driven by the
// test through Push.
type MockSource struct {
	*element.Base
	set capability.Set
}

// NewMockSource creates and initializes a source offering set
func NewMockSource(t testing.TB, host element.Host, name string, set capability.Set) *MockSource {
	t.Helper()
	s := &MockSource{set: set}
	s.Base = element.NewBase(element.Descriptor{
		Name:      name,
		MainType:  element.MainTypeSrc,
		SubType:   element.RoleTester,
		MediaType: set.MediaType,
	}, s, nil)
	if err := s.Init(host, element.Properties{"name": name}); err != nil {
		t.Fatalf("mock source init: %v", err)
	}
	return s
}

// DoInit creates the "out" pin
func (s *MockSource) DoInit(element.Properties) error {
	_, err := s.AddSourcePin("out", s.set)
	return err
}

// Out returns the source pin
func (s *MockSource) Out() *pin.SourcePin { return s.SourcePin("out") }

// Push delivers data through the source pin
func (s *MockSource) Push(data pin.Data) error {
	return s.Out().OnPinData(data)
}
