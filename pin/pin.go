// Package pin implements the typed connection points of an element. A SourcePin
// produces data and fans out to many SinkPins; a SinkPin consumes data from at most
// one SourcePin. Pins own their capability state (declared, available, prepared and
// negotiated) and drive capability negotiation across every connected edge.
//
// Structural changes, negotiation and data fan-out on one SourcePin are serialized
// under that pin's mutex. Owner notifications that may cascade into other pins
// (connect state changes and negotiation results) run after the lock is released.
package pin

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ivgotcrazy/jukey-sub001/capability"
)

// State is the negotiation state of a pin
type State int

// Pin states
const (
	StateUninitialized State = iota
	StateInitialized
	StatePrepared
	StateNegotiated
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitialized:
		return "INITIALIZED"
	case StatePrepared:
		return "PREPARED"
	case StateNegotiated:
		return "NEGOTIATED"
	default:
		return "UNKNOWN"
	}
}

// Data is one media frame or packet travelling along an edge
type Data struct {
	MediaType capability.MediaType
	StreamID  string
	Timestamp time.Duration
	Seq       uint32
	Keyframe  bool
	Payload   []byte
}

// MsgType identifies a control message travelling along an edge
type MsgType string

// Forward messages travel source to sink, backward messages sink to source.
const (
	MsgSetStream  MsgType = "SET_STREAM"
	MsgEndStream  MsgType = "END_STREAM"
	MsgCapChanged MsgType = "PIN_CAP_CHANGED"

	MsgNegotiate       MsgType = "NEGOTIATE"
	MsgKeyframeRequest MsgType = "KEYFRAME_REQUEST"
	MsgFlowControl     MsgType = "FLOW_CONTROL"
)

// Forward reports whether the message type travels downstream
func (t MsgType) Forward() bool {
	switch t {
	case MsgSetStream, MsgEndStream, MsgCapChanged:
		return true
	default:
		return false
	}
}

// Msg is a control message exchanged between neighbouring pins
type Msg struct {
	Type     MsgType
	StreamID string
	Payload  any
}

// Owner receives pin events. element.Base implements it for every element.
//
// OnSinkPinNegotiated runs before the sink stores the capability; the capability is
// committed only when the callback returns nil.
type Owner interface {
	OwnerName() string

	OnSinkPinData(p *SinkPin, data Data) error
	OnSinkPinNegotiated(p *SinkPin, c capability.Capability) error
	OnSinkPinConnectState(p *SinkPin, connected bool)
	OnSinkPinMsg(p *SinkPin, msg Msg) error
	ValidateSinkPinCap(p *SinkPin, c capability.Capability) error

	OnSrcPinNegotiated(p *SourcePin, c capability.Capability)
	OnSrcPinConnectState(p *SourcePin, connected bool)
	OnSrcPinMsg(p *SourcePin, msg Msg) error
}

// Stats are per-pin data counters
type Stats struct {
	Delivered uint64
	Rejected  uint64
}

// Option configures a pin at construction
type Option func(*base)

// WithLogger sets the logger used for negotiation diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// base carries the state shared by both pin kinds. Capability fields are guarded
// by mu.
type base struct {
	owner    Owner
	name     string
	declared capability.Set
	logger   *slog.Logger

	mu         sync.RWMutex
	available  capability.Set
	prepared   capability.Set
	negotiated capability.Capability
	isNeg      bool
	state      State

	delivered atomic.Uint64
	rejected  atomic.Uint64
}

func (b *base) init(owner Owner, name string, declared capability.Set, opts []Option) {
	b.owner = owner
	b.name = name
	b.declared = declared.Clone()
	b.available = declared.Clone()
	b.prepared = declared.Clone()
	b.state = StateInitialized
	b.logger = slog.Default()
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("pin", b.ID())
}

// Name returns the pin name, unique within its element
func (b *base) Name() string { return b.name }

// ID returns the stable pin identifier "<element>.<pin>"
func (b *base) ID() string { return b.owner.OwnerName() + "." + b.name }

// Owner returns the element owning the pin
func (b *base) Owner() Owner { return b.owner }

// MediaType returns the media kind of the pin
func (b *base) MediaType() capability.MediaType { return b.declared.MediaType }

// Declared returns the capability set the pin was created with
func (b *base) Declared() capability.Set { return b.declared.Clone() }

// Available returns the current available set
func (b *base) Available() capability.Set {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available.Clone()
}

// Prepared returns the current prepared set
func (b *base) Prepared() capability.Set {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prepared.Clone()
}

// Capability returns the negotiated capability, or the zero value
func (b *base) Capability() capability.Capability {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.negotiated
}

// Negotiated reports whether a capability has been fixed on the pin
func (b *base) Negotiated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isNeg
}

// State returns the pin state
func (b *base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats returns the data counters
func (b *base) Stats() Stats {
	return Stats{Delivered: b.delivered.Load(), Rejected: b.rejected.Load()}
}
