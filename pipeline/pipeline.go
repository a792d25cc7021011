package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/ivgotcrazy/jukey-sub001/assembler"
	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
	"github.com/ivgotcrazy/jukey-sub001/syncmgr"
)

// State is the pipeline run state
type State string

// Pipeline states. STOPPED is terminal.
const (
	StateInited  State = "INITED"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
)

const (
	eventStart  = "start"
	eventPause  = "pause"
	eventResume = "resume"
	eventStop   = "stop"
)

// DefaultSendTimeout bounds control requests whose context has no deadline
const DefaultSendTimeout = 5 * time.Second

// subscriberID is the bus identity of the pipeline itself
const subscriberID = "pipeline"

// Option configures a Pipeline
type Option func(*options)

type options struct {
	sendTimeout time.Duration
	queueSize   int
}

// WithSendTimeout sets the default timeout of control requests
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sendTimeout = d
		}
	}
}

// WithQueueSize sets the notification queue size of the message bus
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

type entry struct {
	elem      element.Element
	component string
}

type op struct {
	fn   func() error
	done chan error
}

// Pipeline owns a set of elements, the links between their pins and the message
// bus they talk over. Structural and control operations run one at a time on the
// pipeline's control goroutine and block the caller until done. Element hooks run on
// that goroutine too, so they must not call back into Pipeline methods other than
// PostMsg, SubscribeMsg and UnsubscribeMsg.
type Pipeline struct {
	name        string
	registry    *component.Registry
	deps        component.Dependencies
	logger      *slog.Logger
	metrics     *pipelineMetrics
	sendTimeout time.Duration

	bus       *msgbus.Bus
	sync      *syncmgr.Manager
	assembler *assembler.Assembler
	streams   *streamRegistry
	fsm       *fsm.FSM

	// owned by the control goroutine
	elements   map[string]*entry
	order      []string
	links      []assembler.Link
	candidates []*entry

	ops       chan op
	closed    chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// New creates a pipeline in the INITED state. An empty name is replaced by a
// generated one. Elements are created from registry.
func New(name string, registry *component.Registry, deps component.Dependencies, opts ...Option) (*Pipeline, error) {
	if registry == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidParam, "Pipeline", "New", "registry check")
	}
	if name == "" {
		name = "pipeline-" + uuid.NewString()[:8]
	}
	if err := element.ValidateName(name); err != nil {
		return nil, errors.Wrap(err, "Pipeline", "New", "name validation")
	}

	o := options{sendTimeout: DefaultSendTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	logger := deps.GetLogger().With("pipeline", name)
	p := &Pipeline{
		name:        name,
		registry:    registry,
		deps:        deps,
		logger:      logger,
		metrics:     newPipelineMetrics(deps.MetricsRegistry, name),
		sendTimeout: o.sendTimeout,
		bus: msgbus.New(msgbus.Config{
			QueueSize: o.queueSize,
			Logger:    logger,
			Metrics:   deps.MetricsRegistry,
			Name:      name,
		}),
		sync:     syncmgr.New(logger),
		streams:  newStreamRegistry(),
		elements: make(map[string]*entry),
		ops:      make(chan op),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	p.assembler = assembler.New(&provider{p: p}, logger)
	p.fsm = fsm.NewFSM(
		string(StateInited),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateInited)}, Dst: string(StateRunning)},
			{Name: eventPause, Src: []string{string(StateRunning)}, Dst: string(StatePaused)},
			{Name: eventResume, Src: []string{string(StatePaused)}, Dst: string(StateRunning)},
			{Name: eventStop, Src: []string{string(StateInited), string(StateRunning), string(StatePaused)}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.logger.Info("Pipeline state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)

	for _, t := range []msgbus.MsgType{msgbus.MsgAddElementStream, msgbus.MsgDelElementStream} {
		if err := p.bus.Subscribe(t, subscriberID, p.streams.handle); err != nil {
			return nil, errors.Wrap(err, "Pipeline", "New", "stream subscription")
		}
	}
	if err := p.bus.Subscribe(msgbus.MsgNegotiateFailed, subscriberID, p.onNegotiateFailed); err != nil {
		return nil, errors.Wrap(err, "Pipeline", "New", "negotiation subscription")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	if err := p.bus.Start(ctx); err != nil {
		cancel()
		return nil, errors.Wrap(err, "Pipeline", "New", "bus start")
	}
	go p.loop()

	p.metrics.recordState(StateInited)
	p.metrics.recordElements(0)
	p.logger.Info("Pipeline created")
	return p, nil
}

// Name returns the pipeline name
func (p *Pipeline) Name() string { return p.name }

// State returns the current run state
func (p *Pipeline) State() State { return State(p.fsm.Current()) }

// SyncManager returns the sync manager shared by the pipeline's elements
func (p *Pipeline) SyncManager() *syncmgr.Manager { return p.sync }

func (p *Pipeline) loop() {
	defer close(p.loopDone)
	for {
		select {
		case o := <-p.ops:
			o.done <- p.run(o.fn)
		case <-p.closed:
			return
		}
	}
}

func (p *Pipeline) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Control operation panicked", "panic", r, "stack", string(debug.Stack()))
			err = errors.WrapFatal(fmt.Errorf("panic: %v", r), "Pipeline", "run", "control operation")
		}
	}()
	return fn()
}

// exec runs fn on the control goroutine and waits for its result
func (p *Pipeline) exec(fn func() error) error {
	o := op{fn: fn, done: make(chan error, 1)}
	select {
	case p.ops <- o:
	case <-p.closed:
		return errors.Wrap(errors.ErrShuttingDown, "Pipeline", "exec", "control dispatch")
	}
	return <-o.done
}

func (p *Pipeline) structural(method string) error {
	switch s := p.State(); s {
	case StateInited, StatePaused:
		return nil
	default:
		return errors.WrapState(string(s), "Pipeline", method, "state check")
	}
}

// AddElement creates an element from the component registered as componentID,
// initializes it and adds it to the pipeline. The element name comes from the
// "name" property or is generated. Only allowed while INITED or PAUSED.
func (p *Pipeline) AddElement(componentID string, props element.Properties) (element.Element, error) {
	var added element.Element
	err := p.exec(func() error {
		if err := p.structural("AddElement"); err != nil {
			return err
		}

		props = props.Clone()
		name := props.GetString("name", "")
		if name == "" {
			name = componentID + "-" + uuid.NewString()[:8]
			props["name"] = name
		}
		if _, exists := p.elements[name]; exists {
			return errors.Wrap(fmt.Errorf("%w: %q", errors.ErrElementExists, name),
				"Pipeline", "AddElement", "name check")
		}

		e, err := p.create(componentID, name, props)
		if err != nil {
			return errors.Wrap(err, "Pipeline", "AddElement", "create "+componentID)
		}
		if err := p.adopt(&entry{elem: e, component: componentID}); err != nil {
			p.discard(e)
			return errors.Wrap(err, "Pipeline", "AddElement", "adopt "+name)
		}
		added = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// create builds and initializes an element without adding it
func (p *Pipeline) create(componentID, name string, props element.Properties) (element.Element, error) {
	e, err := p.registry.CreateComponent(componentID, p.name, p.deps)
	if err != nil {
		return nil, err
	}
	if err := e.Init(&elementHost{p: p, name: name}, props); err != nil {
		e.Destroy()
		p.bus.UnsubscribeAll(name)
		return nil, err
	}
	return e, nil
}

var controlTypes = []msgbus.MsgType{
	msgbus.MsgStartElement,
	msgbus.MsgPauseElement,
	msgbus.MsgResumeElement,
	msgbus.MsgStopElement,
}

// adopt makes an initialized element part of the pipeline
func (p *Pipeline) adopt(en *entry) error {
	name := en.elem.Name()
	for _, t := range controlTypes {
		if err := p.bus.Subscribe(t, name, en.elem.OnPipelineMsg); err != nil {
			p.bus.UnsubscribeAll(name)
			return err
		}
	}
	if err := p.registry.RegisterInstance(p.name, en.elem); err != nil {
		p.bus.UnsubscribeAll(name)
		return err
	}

	p.elements[name] = en
	p.order = append(p.order, name)
	p.metrics.recordElements(len(p.elements))
	p.post(msgbus.MsgAddElement, msgbus.ElementEvent{Element: name, Component: en.component})
	p.logger.Info("Element added", "element", name, "component", en.component)
	return nil
}

// discard destroys an element that never became, or no longer is, part of the pipeline
func (p *Pipeline) discard(e element.Element) {
	e.Destroy()
	p.bus.UnsubscribeAll(e.Name())
}

// RemoveElement destroys an element and drops its links. Only allowed while INITED
// or PAUSED.
func (p *Pipeline) RemoveElement(name string) error {
	return p.exec(func() error {
		if err := p.structural("RemoveElement"); err != nil {
			return err
		}
		en, ok := p.elements[name]
		if !ok {
			return errors.Wrap(fmt.Errorf("%w: %q", errors.ErrElementNotFound, name),
				"Pipeline", "RemoveElement", "element lookup")
		}
		p.remove(en)
		return nil
	})
}

func (p *Pipeline) remove(en *entry) {
	name := en.elem.Name()
	prefix := name + "."
	p.links = slices.DeleteFunc(p.links, func(l assembler.Link) bool {
		return strings.HasPrefix(l.Source, prefix) || strings.HasPrefix(l.Sink, prefix)
	})

	p.discard(en.elem)
	p.registry.UnregisterInstance(p.name, name)
	delete(p.elements, name)
	p.order = slices.DeleteFunc(p.order, func(n string) bool { return n == name })
	p.streams.removeElement(name)

	p.metrics.recordElements(len(p.elements))
	p.post(msgbus.MsgRemoveElement, msgbus.ElementEvent{Element: name, Component: en.component})
	p.logger.Info("Element removed", "element", name)
}

// GetElementByName returns the named element
func (p *Pipeline) GetElementByName(name string) (element.Element, error) {
	var e element.Element
	err := p.exec(func() error {
		en, ok := p.elements[name]
		if !ok {
			return errors.Wrap(fmt.Errorf("%w: %q", errors.ErrElementNotFound, name),
				"Pipeline", "GetElementByName", "element lookup")
		}
		e = en.elem
		return nil
	})
	return e, err
}

// Elements returns the elements in insertion order
func (p *Pipeline) Elements() []element.Element {
	var out []element.Element
	_ = p.exec(func() error {
		out = make([]element.Element, 0, len(p.order))
		for _, name := range p.order {
			out = append(out, p.elements[name].elem)
		}
		return nil
	})
	return out
}

// Links returns the link table
func (p *Pipeline) Links() []assembler.Link {
	var out []assembler.Link
	_ = p.exec(func() error {
		out = slices.Clone(p.links)
		return nil
	})
	return out
}

// LinkElement connects a source pin to a sink pin. Each side is "element" for the
// element's first pin of that direction, or "element.pin". Only allowed while
// INITED or PAUSED.
func (p *Pipeline) LinkElement(src, sink string) (err error) {
	defer func() { p.metrics.recordLink("link", err) }()

	return p.exec(func() error {
		if err := p.structural("LinkElement"); err != nil {
			return err
		}
		srcPin, err := p.sourcePin(src)
		if err != nil {
			return errors.Wrap(err, "Pipeline", "LinkElement", "source lookup")
		}
		sinkPin, err := p.sinkPin(sink)
		if err != nil {
			return errors.Wrap(err, "Pipeline", "LinkElement", "sink lookup")
		}
		if err := srcPin.AddSinkPin(sinkPin); err != nil {
			return errors.Wrap(err, "Pipeline", "LinkElement", "link "+srcPin.ID()+" to "+sinkPin.ID())
		}

		p.links = append(p.links, assembler.Link{Source: srcPin.ID(), Sink: sinkPin.ID()})
		if sinkPin.Negotiated() {
			p.metrics.recordNegotiation(true)
		}
		p.logger.Info("Pins linked", "source", srcPin.ID(), "sink", sinkPin.ID(),
			"negotiated", sinkPin.Negotiated())
		return nil
	})
}

// UnlinkElement removes a link made by LinkElement or AutoLink. Only allowed while
// INITED or PAUSED.
func (p *Pipeline) UnlinkElement(src, sink string) (err error) {
	defer func() { p.metrics.recordLink("unlink", err) }()

	return p.exec(func() error {
		if err := p.structural("UnlinkElement"); err != nil {
			return err
		}
		srcPin, err := p.sourcePin(src)
		if err != nil {
			return errors.Wrap(err, "Pipeline", "UnlinkElement", "source lookup")
		}
		sinkPin, err := p.sinkPin(sink)
		if err != nil {
			return errors.Wrap(err, "Pipeline", "UnlinkElement", "sink lookup")
		}
		if err := srcPin.RemoveSinkPin(sinkPin.ID()); err != nil {
			return errors.Wrap(err, "Pipeline", "UnlinkElement", "unlink "+srcPin.ID()+" from "+sinkPin.ID())
		}

		l := assembler.Link{Source: srcPin.ID(), Sink: sinkPin.ID()}
		p.links = slices.DeleteFunc(p.links, func(x assembler.Link) bool { return x == l })
		p.logger.Info("Pins unlinked", "source", l.Source, "sink", l.Sink)
		return nil
	})
}

// AutoLink connects two elements through whatever intermediate elements the role
// graph requires. Existing pipeline elements are tried first, then fresh instances
// of every registered component of the needed roles. Intermediate elements used
// by the chain join the pipeline; the rest are destroyed. Returns the links made.
func (p *Pipeline) AutoLink(src, sink string) (links []assembler.Link, err error) {
	defer func() { p.metrics.recordAssembly(err) }()

	err = p.exec(func() error {
		if err := p.structural("AutoLink"); err != nil {
			return err
		}
		srcEnd, err := p.endpoint(src, true)
		if err != nil {
			return errors.Wrap(err, "Pipeline", "AutoLink", "source lookup")
		}
		sinkEnd, err := p.endpoint(sink, false)
		if err != nil {
			return errors.Wrap(err, "Pipeline", "AutoLink", "sink lookup")
		}

		p.candidates = nil
		defer p.releaseCandidates()

		chain, made, err := p.assembler.TryAutoLink(srcEnd, sinkEnd)
		if err != nil {
			return errors.Wrap(err, "Pipeline", "AutoLink", "assembly")
		}

		for _, e := range chain.Elements() {
			if _, owned := p.elements[e.Name()]; owned {
				continue
			}
			en := p.takeCandidate(e)
			if en == nil {
				continue
			}
			if err := p.adopt(en); err != nil {
				// the chain is linked; an element that cannot be adopted is left to
				// the caller to remove through its neighbours
				p.logger.Error("Chain element not adopted", "element", e.Name(), "error", err)
			}
		}

		p.links = append(p.links, made...)
		p.metrics.recordNegotiation(chain.Sink.Negotiated())
		links = made
		return nil
	})
	return links, err
}

func (p *Pipeline) takeCandidate(e element.Element) *entry {
	for i, c := range p.candidates {
		if c.elem == e {
			p.candidates = slices.Delete(p.candidates, i, i+1)
			return c
		}
	}
	return nil
}

func (p *Pipeline) releaseCandidates() {
	for _, c := range p.candidates {
		p.discard(c.elem)
	}
	p.candidates = nil
}

// provider offers the assembler the pipeline's own elements of a role, followed by
// fresh instances of every matching registered component. It is only used from the
// control goroutine.
type provider struct {
	p *Pipeline
}

func (pv *provider) GetElements(mediaType capability.MediaType, role element.Role) []element.Element {
	p := pv.p
	out := p.registry.GetElements(p.name, mediaType, role)

	for _, reg := range p.registry.Registrations(mediaType, role) {
		name := reg.Name + "-" + uuid.NewString()[:8]
		e, err := p.create(reg.Name, name, element.Properties{"name": name})
		if err != nil {
			p.logger.Debug("Candidate not created", "component", reg.Name, "error", err)
			continue
		}
		p.candidates = append(p.candidates, &entry{elem: e, component: reg.Name})
		out = append(out, e)
	}
	return out
}

func splitPinRef(ref string) (elem, pinName string) {
	elem, pinName, _ = strings.Cut(ref, ".")
	return elem, pinName
}

func (p *Pipeline) lookup(name string) (element.Element, error) {
	en, ok := p.elements[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrElementNotFound, name)
	}
	return en.elem, nil
}

func (p *Pipeline) sourcePin(ref string) (*pin.SourcePin, error) {
	name, pinName := splitPinRef(ref)
	e, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	if pinName == "" {
		if pins := e.SourcePins(); len(pins) > 0 {
			return pins[0], nil
		}
	} else if sp := e.SourcePin(pinName); sp != nil {
		return sp, nil
	}
	return nil, fmt.Errorf("%w: source pin %q", errors.ErrPinNotFound, ref)
}

func (p *Pipeline) sinkPin(ref string) (*pin.SinkPin, error) {
	name, pinName := splitPinRef(ref)
	e, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	if pinName == "" {
		if pins := e.SinkPins(); len(pins) > 0 {
			return pins[0], nil
		}
	} else if sp := e.SinkPin(pinName); sp != nil {
		return sp, nil
	}
	return nil, fmt.Errorf("%w: sink pin %q", errors.ErrPinNotFound, ref)
}

func (p *Pipeline) endpoint(ref string, source bool) (assembler.Endpoint, error) {
	name, pinName := splitPinRef(ref)
	e, err := p.lookup(name)
	if err != nil {
		return assembler.Endpoint{}, err
	}
	end := assembler.Endpoint{Element: e}
	if pinName == "" {
		return end, nil
	}
	if source {
		end.SourcePin, err = p.sourcePin(ref)
	} else {
		end.SinkPin, err = p.sinkPin(ref)
	}
	return end, err
}

// Start starts every element in insertion order
func (p *Pipeline) Start(ctx context.Context) error {
	return p.control(ctx, "Start", eventStart, msgbus.MsgStartElement)
}

// Pause pauses every element in insertion order
func (p *Pipeline) Pause(ctx context.Context) error {
	return p.control(ctx, "Pause", eventPause, msgbus.MsgPauseElement)
}

// Resume resumes every element in insertion order. Elements added while paused
// are started instead.
func (p *Pipeline) Resume(ctx context.Context) error {
	return p.control(ctx, "Resume", eventResume, msgbus.MsgResumeElement)
}

// Stop stops every started element in insertion order. A stopped pipeline cannot
// be restarted.
func (p *Pipeline) Stop(ctx context.Context) error {
	return p.control(ctx, "Stop", eventStop, msgbus.MsgStopElement)
}

// control sends msgType to each element and moves the pipeline to the event's
// target state when all of them succeed. The first failure aborts the operation;
// elements already transitioned stay where they are.
func (p *Pipeline) control(ctx context.Context, method, event string, msgType msgbus.MsgType) (err error) {
	start := time.Now()
	defer func() { p.metrics.recordControl(strings.ToLower(method), time.Since(start), err) }()

	return p.exec(func() error {
		if !p.fsm.Can(event) {
			return errors.WrapState(p.fsm.Current(), "Pipeline", method, "state check")
		}

		for _, name := range p.order {
			t := msgType
			if p.elements[name].elem.State() == element.StateInited {
				switch event {
				case eventResume:
					t = msgbus.MsgStartElement
				case eventStop:
					continue
				}
			}
			if err := p.send(ctx, msgbus.Msg{Type: t, Src: p.name, Dst: name}); err != nil {
				p.logger.Warn("Element control failed", "operation", method, "element", name, "error", err)
				return errors.Wrap(err, "Pipeline", method, "control "+name)
			}
		}

		if err := p.fsm.Event(ctx, event); err != nil {
			return errors.Wrap(err, "Pipeline", method, "state transition")
		}
		state := p.State()
		p.metrics.recordState(state)
		p.post(msgbus.MsgRunState, msgbus.RunState{Pipeline: p.name, State: string(state)})
		return nil
	})
}

// SubscribeMsg registers handler for msgType on the pipeline bus
func (p *Pipeline) SubscribeMsg(msgType msgbus.MsgType, subscriberID string, handler msgbus.Handler) error {
	return p.bus.Subscribe(msgType, subscriberID, handler)
}

// UnsubscribeMsg removes a subscription from the pipeline bus
func (p *Pipeline) UnsubscribeMsg(msgType msgbus.MsgType, subscriberID string) error {
	return p.bus.Unsubscribe(msgType, subscriberID)
}

// PostMsg queues a notification on the pipeline bus
func (p *Pipeline) PostMsg(msg msgbus.Msg) error {
	if err := p.bus.Post(msg); err != nil {
		return err
	}
	p.metrics.recordBusMessage(string(msg.Type))
	return nil
}

// SendMsg delivers a control request on the pipeline bus and waits for every
// handler. Without a deadline on ctx the pipeline's send timeout applies.
func (p *Pipeline) SendMsg(ctx context.Context, msg msgbus.Msg) error {
	p.metrics.recordBusMessage(string(msg.Type))
	return p.send(ctx, msg)
}

func (p *Pipeline) send(ctx context.Context, msg msgbus.Msg) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.sendTimeout)
		defer cancel()
	}
	return p.bus.Send(ctx, msg)
}

func (p *Pipeline) post(msgType msgbus.MsgType, payload any) {
	if err := p.PostMsg(msgbus.Msg{Type: msgType, Src: p.name, Payload: payload}); err != nil {
		p.logger.Debug("Notification dropped", "type", msgType, "error", err)
	}
}

func (p *Pipeline) onNegotiateFailed(_ context.Context, msg msgbus.Msg) error {
	p.metrics.recordNegotiation(false)
	if f, ok := element.TryAs[msgbus.NegotiateFailure](msg.Payload); ok {
		p.logger.Warn("Negotiation failed", "element", f.Element, "pin", f.Pin, "reason", f.Reason)
	}
	return nil
}

// Streams returns the producers and consumers of a stream
func (p *Pipeline) Streams(streamID string) []msgbus.ElementStream {
	return p.streams.get(streamID)
}

// StreamIDs returns the known stream IDs, sorted
func (p *Pipeline) StreamIDs() []string {
	return p.streams.ids()
}

// Close stops the pipeline if it is running, destroys every element in reverse
// insertion order and shuts the bus down. Close is idempotent.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.exec(p.teardown)
		close(p.closed)
		<-p.loopDone
		p.cancel()
	})
	return err
}

func (p *Pipeline) teardown() error {
	if s := p.State(); s == StateRunning || s == StatePaused {
		ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
		for _, name := range p.order {
			if st := p.elements[name].elem.State(); st != element.StateRunning && st != element.StatePaused {
				continue
			}
			if err := p.send(ctx, msgbus.Msg{Type: msgbus.MsgStopElement, Src: p.name, Dst: name}); err != nil {
				p.logger.Warn("Element stop failed during close", "element", name, "error", err)
			}
		}
		cancel()
	}
	if p.fsm.Can(eventStop) {
		_ = p.fsm.Event(context.Background(), eventStop)
		p.metrics.recordState(StateStopped)
	}

	for i := len(p.order) - 1; i >= 0; i-- {
		en := p.elements[p.order[i]]
		p.discard(en.elem)
		p.registry.UnregisterInstance(p.name, en.elem.Name())
	}
	p.elements = make(map[string]*entry)
	p.order = nil
	p.links = nil
	p.metrics.recordElements(0)

	p.bus.UnsubscribeAll(subscriberID)
	if err := p.bus.Close(p.sendTimeout); err != nil {
		return errors.Wrap(err, "Pipeline", "Close", "bus close")
	}
	p.logger.Info("Pipeline closed")
	return nil
}
