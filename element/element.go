// Package element defines the element contract: a named processing unit with
// ordered source and sink pins and a lifecycle state machine. Concrete elements embed
// *Base and implement only the hooks they need.
package element

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/looplab/fsm"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
	"github.com/ivgotcrazy/jukey-sub001/syncmgr"
)

// Element is the contract the pipeline and the assembler drive
type Element interface {
	Name() string
	MainType() MainType
	SubType() Role
	MediaType() capability.MediaType
	State() State

	SourcePins() []*pin.SourcePin
	SinkPins() []*pin.SinkPin
	SourcePin(name string) *pin.SourcePin
	SinkPin(name string) *pin.SinkPin

	Init(host Host, props Properties) error
	Start() error
	Pause() error
	Resume() error
	Stop() error
	OnPipelineMsg(ctx context.Context, msg msgbus.Msg) error
	Destroy()
}

// Host is the set of pipeline services available to an element
type Host interface {
	Name() string
	Post(msg msgbus.Msg) error
	Send(ctx context.Context, msg msgbus.Msg) error
	Subscribe(msgType msgbus.MsgType, subscriberID string, handler msgbus.Handler) error
	SyncManager() *syncmgr.Manager
	Logger() *slog.Logger
}

// Descriptor is the static identity of an element
type Descriptor struct {
	Name      string
	MainType  MainType
	SubType   Role
	MediaType capability.MediaType
}

// Base implements Element. Lifecycle methods are serialized; hooks run under the
// lifecycle lock and must not call lifecycle methods of the same element.
type Base struct {
	desc   Descriptor
	impl   any
	logger *slog.Logger
	// ownLogger is set when NewBase was given a logger; Init keeps it
	ownLogger bool
	owner     *pinOwner

	mu  sync.Mutex
	fsm *fsm.FSM

	cfgMu sync.RWMutex
	host  Host
	props Properties

	pinMu    sync.RWMutex
	srcPins  []*pin.SourcePin
	sinkPins []*pin.SinkPin
}

// NewBase creates the base of a concrete element. impl is the concrete element
// and is inspected for hook interfaces.
func NewBase(desc Descriptor, impl any, logger *slog.Logger) *Base {
	b := &Base{
		desc:      desc,
		impl:      impl,
		logger:    logger,
		ownLogger: logger != nil,
	}
	if logger == nil {
		b.logger = slog.Default()
	}
	b.owner = &pinOwner{b: b}
	b.fsm = fsm.NewFSM(
		string(StateCreated),
		fsm.Events{
			{Name: eventInit, Src: []string{string(StateCreated)}, Dst: string(StateInited)},
			{Name: eventStart, Src: []string{string(StateInited)}, Dst: string(StateRunning)},
			{Name: eventPause, Src: []string{string(StateRunning)}, Dst: string(StatePaused)},
			{Name: eventResume, Src: []string{string(StatePaused)}, Dst: string(StateRunning)},
			{Name: eventStop, Src: []string{string(StateRunning), string(StatePaused)}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				b.Logger().Debug("Element state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
	return b
}

// Name returns the element name, unique within its pipeline
func (b *Base) Name() string {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.desc.Name
}

// MainType returns the element main type
func (b *Base) MainType() MainType { return b.desc.MainType }

// SubType returns the element role
func (b *Base) SubType() Role { return b.desc.SubType }

// MediaType returns the media kind the element processes
func (b *Base) MediaType() capability.MediaType { return b.desc.MediaType }

// State returns the lifecycle state
func (b *Base) State() State {
	return State(b.fsm.Current())
}

// Logger returns the element logger with the element name attached
func (b *Base) Logger() *slog.Logger {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.logger.With("element", b.desc.Name)
}

// Host returns the pipeline services, or nil before Init
func (b *Base) Host() Host {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.host
}

// Properties returns the properties given to Init
func (b *Base) Properties() Properties {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.props
}

// SourcePins returns the source pins in creation order
func (b *Base) SourcePins() []*pin.SourcePin {
	b.pinMu.RLock()
	defer b.pinMu.RUnlock()
	return slices.Clone(b.srcPins)
}

// SinkPins returns the sink pins in creation order
func (b *Base) SinkPins() []*pin.SinkPin {
	b.pinMu.RLock()
	defer b.pinMu.RUnlock()
	return slices.Clone(b.sinkPins)
}

// SourcePin returns the named source pin, or nil
func (b *Base) SourcePin(name string) *pin.SourcePin {
	b.pinMu.RLock()
	defer b.pinMu.RUnlock()
	for _, p := range b.srcPins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// SinkPin returns the named sink pin, or nil
func (b *Base) SinkPin(name string) *pin.SinkPin {
	b.pinMu.RLock()
	defer b.pinMu.RUnlock()
	for _, p := range b.sinkPins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// AddSourcePin creates a source pin owned by this element. Called from DoInit.
func (b *Base) AddSourcePin(name string, declared capability.Set) (*pin.SourcePin, error) {
	if b.SourcePin(name) != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: duplicate source pin %q", errors.ErrInvalidParam, name),
			"Element", "AddSourcePin", "name check")
	}
	p, err := pin.NewSourcePin(b.owner, name, declared, pin.WithLogger(b.Logger()))
	if err != nil {
		return nil, errors.Wrap(err, "Element", "AddSourcePin", "pin creation")
	}
	b.pinMu.Lock()
	b.srcPins = append(b.srcPins, p)
	b.pinMu.Unlock()
	return p, nil
}

// AddSinkPin creates a sink pin owned by this element. Called from DoInit.
func (b *Base) AddSinkPin(name string, declared capability.Set) (*pin.SinkPin, error) {
	if b.SinkPin(name) != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: duplicate sink pin %q", errors.ErrInvalidParam, name),
			"Element", "AddSinkPin", "name check")
	}
	p, err := pin.NewSinkPin(b.owner, name, declared, pin.WithLogger(b.Logger()))
	if err != nil {
		return nil, errors.Wrap(err, "Element", "AddSinkPin", "pin creation")
	}
	b.pinMu.Lock()
	b.sinkPins = append(b.sinkPins, p)
	b.pinMu.Unlock()
	return p, nil
}

// Init binds the element to its pipeline, runs DoInit and verifies that the pins
// required by the main type exist. Init succeeds at most once.
func (b *Base) Init(host Host, props Properties) error {
	if host == nil {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Element", "Init", "host check")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.fsm.Can(eventInit) {
		return errors.WrapState(b.fsm.Current(), "Element", "Init", "state check")
	}

	name := props.GetString("name", b.Name())
	if err := ValidateName(name); err != nil {
		return errors.Wrap(err, "Element", "Init", "name validation")
	}
	b.cfgMu.Lock()
	b.desc.Name = name
	b.host = host
	b.props = props
	if l := host.Logger(); l != nil && !b.ownLogger {
		b.logger = l
	}
	b.cfgMu.Unlock()

	if h, ok := b.impl.(Initializer); ok {
		if err := h.DoInit(props); err != nil {
			b.clearPins()
			return errors.Wrap(err, "Element", "Init", "element initialization")
		}
	}

	if err := b.verifyPinShape(); err != nil {
		b.clearPins()
		return err
	}

	return b.fire(eventInit)
}

// clearPins drops the pins of a failed Init so that Init can be retried
func (b *Base) clearPins() {
	b.pinMu.Lock()
	defer b.pinMu.Unlock()
	b.srcPins = nil
	b.sinkPins = nil
}

func (b *Base) verifyPinShape() error {
	b.pinMu.RLock()
	src, sink := len(b.srcPins), len(b.sinkPins)
	b.pinMu.RUnlock()

	var missing string
	switch b.desc.MainType {
	case MainTypeSrc:
		if src == 0 {
			missing = "source"
		}
	case MainTypeSink:
		if sink == 0 {
			missing = "sink"
		}
	case MainTypeFilter:
		if src == 0 {
			missing = "source"
		} else if sink == 0 {
			missing = "sink"
		}
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: main type %q", errors.ErrInvalidParam, b.desc.MainType),
			"Element", "Init", "main type check")
	}
	if missing != "" {
		return errors.Wrap(fmt.Errorf("%w: %s element has no %s pin", errors.ErrPinNotFound, b.desc.MainType, missing),
			"Element", "Init", "pin shape check")
	}
	return nil
}

// Start moves the element from INITED to RUNNING
func (b *Base) Start() error {
	return b.transition(eventStart, "Start", func() error {
		if h, ok := b.impl.(Starter); ok {
			return h.DoStart()
		}
		return nil
	})
}

// Pause moves the element from RUNNING to PAUSED
func (b *Base) Pause() error {
	return b.transition(eventPause, "Pause", func() error {
		if h, ok := b.impl.(Pauser); ok {
			return h.DoPause()
		}
		return nil
	})
}

// Resume moves the element from PAUSED to RUNNING
func (b *Base) Resume() error {
	return b.transition(eventResume, "Resume", func() error {
		if h, ok := b.impl.(Resumer); ok {
			return h.DoResume()
		}
		return nil
	})
}

// Stop moves the element from RUNNING or PAUSED to STOPPED
func (b *Base) Stop() error {
	return b.transition(eventStop, "Stop", func() error {
		if h, ok := b.impl.(Stopper); ok {
			return h.DoStop()
		}
		return nil
	})
}

// transition rejects illegal transitions before the hook runs; the state changes only
// when the hook succeeds.
func (b *Base) transition(event, method string, hook func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.fsm.Can(event) {
		return errors.WrapState(b.fsm.Current(), "Element", method, "state check")
	}
	if err := hook(); err != nil {
		return errors.Wrap(err, "Element", method, "element hook")
	}
	return b.fire(event)
}

func (b *Base) fire(event string) error {
	if err := b.fsm.Event(context.Background(), event); err != nil {
		return errors.Wrap(err, "Element", "fire", event)
	}
	return nil
}

// OnPipelineMsg handles a pipeline message addressed to the element. The
// PreProcPipelineMsg hook sees it first; when the hook answers errors.ErrNoProc the
// lifecycle control messages are demultiplexed into Start, Pause, Resume and Stop.
func (b *Base) OnPipelineMsg(ctx context.Context, msg msgbus.Msg) error {
	if h, ok := b.impl.(PipelineMsgPreprocessor); ok {
		if err := h.PreProcPipelineMsg(ctx, msg); !errors.IsNoProc(err) {
			return err
		}
	}

	if msg.Dst != "" && msg.Dst != b.Name() {
		return errors.ErrNoProc
	}

	switch msg.Type {
	case msgbus.MsgStartElement:
		return b.Start()
	case msgbus.MsgPauseElement:
		return b.Pause()
	case msgbus.MsgResumeElement:
		return b.Resume()
	case msgbus.MsgStopElement:
		return b.Stop()
	default:
		return errors.ErrNoProc
	}
}

// Destroy stops a running element, disconnects every pin and runs DoDestroy
func (b *Base) Destroy() {
	switch b.State() {
	case StateRunning, StatePaused:
		if err := b.Stop(); err != nil {
			b.Logger().Warn("Stop during destroy failed", "error", err)
		}
	}

	for _, p := range b.SinkPins() {
		if err := p.Disconnect(); err != nil {
			b.Logger().Warn("Sink pin disconnect failed", "pin", p.ID(), "error", err)
		}
	}
	for _, p := range b.SourcePins() {
		if err := p.Disconnect(); err != nil {
			b.Logger().Warn("Source pin disconnect failed", "pin", p.ID(), "error", err)
		}
	}

	if h, ok := b.impl.(Destroyer); ok {
		h.DoDestroy()
	}
}

// Post sends a notification through the host, if bound
func (b *Base) Post(msgType msgbus.MsgType, payload any) {
	host := b.Host()
	if host == nil {
		return
	}
	if err := host.Post(msgbus.Msg{Type: msgType, Src: b.Name(), Payload: payload}); err != nil {
		b.Logger().Debug("Notification dropped", "type", msgType, "error", err)
	}
}

// TryAs returns v as T when v implements T. It is the explicit form of querying an
// element for an optional interface.
func TryAs[T any](v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}
