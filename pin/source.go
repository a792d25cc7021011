package pin

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// SourcePin produces data and fans out to any number of SinkPins
type SourcePin struct {
	base

	// topo serializes AddSinkPin, RemoveSinkPin, Negotiate and data fan-out
	topo  sync.Mutex
	sinks []*SinkPin

	// fan guards the fan-out flag and a negotiation requested while it is set
	fan        sync.Mutex
	fanningOut bool
	pendingNeg bool
}

// NewSourcePin creates a source pin with the declared capability set. The available
// and prepared sets start equal to the declared set.
func NewSourcePin(owner Owner, name string, declared capability.Set, opts ...Option) (*SourcePin, error) {
	if owner == nil || name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidParam, "SourcePin", "NewSourcePin", "argument check")
	}
	if err := declared.Validate(); err != nil {
		return nil, errors.Wrap(err, "SourcePin", "NewSourcePin", "declared set validation")
	}
	p := &SourcePin{}
	p.init(owner, name, declared, opts)
	return p, nil
}

// SinkPins returns a snapshot of the attached sinks in attach order
func (p *SourcePin) SinkPins() []*SinkPin {
	p.topo.Lock()
	defer p.topo.Unlock()
	return slices.Clone(p.sinks)
}

// Connected reports whether at least one sink is attached
func (p *SourcePin) Connected() bool {
	p.topo.Lock()
	defer p.topo.Unlock()
	return len(p.sinks) > 0
}

// AddSinkPin attaches sink. Before negotiation the prepared set becomes the
// intersection of this pin's available set with the available sets of every
// attached sink, and is pushed to all sinks. Once negotiated, the new sink receives
// the fixed capability directly. On any failure nothing is mutated.
func (p *SourcePin) AddSinkPin(sink *SinkPin) error {
	if sink == nil {
		return errors.WrapInvalid(errors.ErrInvalidParam, "SourcePin", "AddSinkPin", "nil sink")
	}
	if sink.MediaType() != p.MediaType() {
		return errors.Wrap(fmt.Errorf("%w: %s to %s", errors.ErrMediaTypeMismatch, p.MediaType(), sink.MediaType()),
			"SourcePin", "AddSinkPin", "media type check")
	}

	p.topo.Lock()
	if err := p.addSinkLocked(sink); err != nil {
		p.topo.Unlock()
		return err
	}
	p.topo.Unlock()

	p.owner.OnSrcPinConnectState(p, true)
	sink.owner.OnSinkPinConnectState(sink, true)
	return nil
}

func (p *SourcePin) addSinkLocked(sink *SinkPin) error {
	if slices.Contains(p.sinks, sink) {
		return errors.Wrap(fmt.Errorf("%w: %s already attached", errors.ErrPinConnected, sink.ID()),
			"SourcePin", "AddSinkPin", "duplicate check")
	}
	if other := sink.Source(); other != nil {
		return errors.Wrap(fmt.Errorf("%w: %s attached to %s", errors.ErrPinConnected, sink.ID(), other.ID()),
			"SourcePin", "AddSinkPin", "sink connection check")
	}

	if p.Negotiated() {
		fixed := p.Capability()
		if !capability.MatchesSet(fixed, sink.Available()) {
			p.logger.Warn("Sink cannot accept negotiated capability",
				"sink", sink.ID(), "capability", fixed.String(), "sink_caps", sink.Available())
			return errors.Wrap(fmt.Errorf("%w: %s", errors.ErrCapRejected, fixed), "SourcePin", "AddSinkPin", "fixed capability check")
		}
		sink.attach(p, capability.FromCapability(fixed))
		if err := sink.SetNegotiateCap(p, fixed); err != nil {
			sink.detach()
			return errors.Wrap(err, "SourcePin", "AddSinkPin", "fixed capability commit")
		}
		p.sinks = append(p.sinks, sink)
		return nil
	}

	prepared, ok := p.intersectWith(append(slices.Clone(p.sinks), sink))
	if !ok {
		p.logger.Warn("No common capability for new sink",
			"sink", sink.ID(),
			"dump", capability.Dump(p.Available(), sink.Available()))
		return errors.Wrap(errors.ErrNoCommonCap, "SourcePin", "AddSinkPin", "capability intersection")
	}

	p.sinks = append(p.sinks, sink)
	sink.attach(p, prepared)
	p.pushPrepared(prepared)
	return nil
}

// RemoveSinkPin detaches the sink with the given pin ID. Removing the last sink
// clears the negotiated capability and notifies the owner with the empty capability.
func (p *SourcePin) RemoveSinkPin(sinkID string) error {
	p.topo.Lock()
	idx := slices.IndexFunc(p.sinks, func(s *SinkPin) bool { return s.ID() == sinkID })
	if idx < 0 {
		p.topo.Unlock()
		return errors.Wrap(fmt.Errorf("%w: %s", errors.ErrPinNotFound, sinkID), "SourcePin", "RemoveSinkPin", "sink lookup")
	}
	sink := p.sinks[idx]
	p.sinks = slices.Delete(p.sinks, idx, idx+1)
	sink.detach()

	last := len(p.sinks) == 0
	if last {
		p.mu.Lock()
		p.negotiated = capability.Capability{}
		p.isNeg = false
		p.prepared = p.available.Clone()
		p.state = StateInitialized
		p.mu.Unlock()
	} else if !p.Negotiated() {
		if prepared, ok := p.intersectWith(p.sinks); ok {
			p.pushPrepared(prepared)
		}
	}
	p.topo.Unlock()

	if last {
		p.owner.OnSrcPinNegotiated(p, capability.Capability{})
		p.owner.OnSrcPinConnectState(p, false)
	}
	sink.owner.OnSinkPinConnectState(sink, false)
	return nil
}

// Negotiate selects one capability for this pin and every attached sink. A proposal
// is computed first without side effects: the first prepared candidate, in declared
// order, that every sink accepts. Candidates are then committed sink by sink; a
// commit failure reverts the sinks committed for that candidate and moves on.
//
// A call made while data is being fanned out, such as a sink requesting
// renegotiation from its data callback, is deferred: it returns the current
// capability and the negotiation runs once the fan-out completes.
func (p *SourcePin) Negotiate() (capability.Capability, error) {
	if p.deferNegotiation() {
		p.logger.Debug("Negotiation deferred until fan-out completes")
		return p.Capability(), nil
	}

	p.topo.Lock()
	c, err := p.negotiateLocked()
	p.topo.Unlock()
	if err != nil {
		return capability.Capability{}, err
	}

	p.owner.OnSrcPinNegotiated(p, c)
	return c, nil
}

func (p *SourcePin) negotiateLocked() (capability.Capability, error) {
	if len(p.sinks) == 0 {
		return capability.Capability{}, errors.Wrap(errors.ErrNoSinkPin, "SourcePin", "Negotiate", "sink check")
	}

	if p.Negotiated() {
		// Renegotiation: sinks attached after the first negotiation only saw the
		// fixed capability.
		prepared, ok := p.intersectWith(p.sinks)
		if !ok {
			return capability.Capability{}, errors.Wrap(errors.ErrNoCommonCap, "SourcePin", "Negotiate", "renegotiation intersection")
		}
		p.pushPrepared(prepared)
	}

	prepared := p.Prepared()
	if prepared.IsEmpty() {
		return capability.Capability{}, errors.Wrap(errors.ErrNoCommonCap, "SourcePin", "Negotiate", "prepared set check")
	}

	var proposals []capability.Capability
	for _, candidate := range capability.ExpandPermutations(prepared) {
		if p.acceptedByAll(candidate) {
			proposals = append(proposals, candidate)
		}
	}

	var lastErr error
	for _, candidate := range proposals {
		if err := p.commit(candidate); err != nil {
			lastErr = err
			continue
		}
		p.mu.Lock()
		p.negotiated = candidate
		p.isNeg = true
		p.state = StateNegotiated
		p.mu.Unlock()
		p.logger.Debug("Pin negotiated", "capability", candidate.String(), "sinks", len(p.sinks))
		return candidate, nil
	}

	sinkSets := make([]capability.Set, 0, len(p.sinks)+1)
	sinkSets = append(sinkSets, prepared)
	for _, s := range p.sinks {
		sinkSets = append(sinkSets, s.Available())
	}
	p.logger.Warn("Negotiation failed",
		"candidates", len(proposals),
		"dump", capability.Dump(sinkSets...),
		"error", lastErr)

	err := errors.Wrap(errors.ErrNoCommonCap, "SourcePin", "Negotiate", "candidate selection")
	if lastErr != nil {
		err = errors.Wrap(errors.Join(errors.ErrNoCommonCap, lastErr), "SourcePin", "Negotiate", "candidate commit")
	}
	return capability.Capability{}, err
}

func (p *SourcePin) acceptedByAll(c capability.Capability) bool {
	for _, sink := range p.sinks {
		if !sink.Accepts(c) {
			return false
		}
	}
	return true
}

func (p *SourcePin) commit(c capability.Capability) error {
	snapshots := make([]negotiationSnapshot, len(p.sinks))
	for i, sink := range p.sinks {
		snapshots[i] = sink.snapshot()
	}
	for i, sink := range p.sinks {
		if err := sink.SetNegotiateCap(p, c); err != nil {
			for j := 0; j < i; j++ {
				p.sinks[j].restore(snapshots[j])
			}
			return err
		}
	}
	return nil
}

// TryNegotiate computes the capability that linking sink would negotiate, without
// mutating either pin. The assembler uses it as its edge feasibility test.
func (p *SourcePin) TryNegotiate(sink *SinkPin) (capability.Capability, bool) {
	if sink == nil || sink.MediaType() != p.MediaType() || sink.Connected() {
		return capability.Capability{}, false
	}

	if p.Negotiated() {
		fixed := p.Capability()
		if capability.MatchesSet(fixed, sink.Available()) &&
			sink.owner.ValidateSinkPinCap(sink, fixed) == nil {
			return fixed, true
		}
		return capability.Capability{}, false
	}

	sinks := append(p.SinkPins(), sink)
	prepared, ok := p.intersectWith(sinks)
	if !ok {
		return capability.Capability{}, false
	}
	for _, candidate := range capability.ExpandPermutations(prepared) {
		if sink.owner.ValidateSinkPinCap(sink, candidate) == nil {
			return candidate, true
		}
	}
	return capability.Capability{}, false
}

// UpdateAvailableCaps re-narrows the available set. The set must be a subset of the
// declared set and must still intersect every attached sink. When the negotiated
// capability falls outside the new set the pin and its sinks drop back to PREPARED
// and the caller is expected to negotiate again.
func (p *SourcePin) UpdateAvailableCaps(set capability.Set) error {
	if err := set.Validate(); err != nil {
		return errors.Wrap(err, "SourcePin", "UpdateAvailableCaps", "set validation")
	}
	if !capability.IsSubset(set, p.declared) {
		return errors.WrapInvalid(fmt.Errorf("%w: not a subset of declared set", errors.ErrInvalidParam),
			"SourcePin", "UpdateAvailableCaps", "subset check")
	}

	p.topo.Lock()
	defer p.topo.Unlock()

	prepared := set
	if len(p.sinks) > 0 {
		narrowed, ok := intersectAll(set, p.sinks)
		if !ok {
			return errors.Wrap(errors.ErrNoCommonCap, "SourcePin", "UpdateAvailableCaps", "sink intersection")
		}
		prepared = narrowed
	}

	p.mu.Lock()
	p.available = set.Clone()
	if p.isNeg && !capability.MatchesSet(p.negotiated, set) {
		p.negotiated = capability.Capability{}
		p.isNeg = false
		p.state = StatePrepared
		for _, sink := range p.sinks {
			sink.restore(negotiationSnapshot{state: StatePrepared})
		}
	}
	neg := p.isNeg
	p.mu.Unlock()

	if !neg {
		p.pushPrepared(prepared)
	}
	return nil
}

// OnPinData fans data out to every attached sink. A failing sink does not stop
// delivery to the others; all failures are joined into the returned error.
// Negotiation requested during the fan-out is delivered to the owner as a
// MsgNegotiate after the lock is released.
func (p *SourcePin) OnPinData(data Data) error {
	p.topo.Lock()
	if !p.Negotiated() {
		p.topo.Unlock()
		p.rejected.Add(1)
		return errors.Wrap(errors.ErrNotNegotiated, "SourcePin", "OnPinData", "negotiation check")
	}

	p.setFanningOut(true)
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.OnPinData(data); err != nil {
			p.rejected.Add(1)
			errs = append(errs, fmt.Errorf("%s: %w", sink.ID(), err))
			continue
		}
		p.delivered.Add(1)
	}
	pending := p.setFanningOut(false)
	p.topo.Unlock()

	if pending {
		if err := p.owner.OnSrcPinMsg(p, Msg{Type: MsgNegotiate}); err != nil && !errors.IsNoProc(err) {
			p.logger.Warn("Deferred negotiation failed", "error", err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "SourcePin", "OnPinData", "fan-out")
	}
	return nil
}

// setFanningOut sets the fan-out flag. Clearing it returns and resets whether a
// negotiation was requested meanwhile.
func (p *SourcePin) setFanningOut(on bool) bool {
	p.fan.Lock()
	defer p.fan.Unlock()
	p.fanningOut = on
	pending := p.pendingNeg
	p.pendingNeg = false
	return pending && !on
}

func (p *SourcePin) deferNegotiation() bool {
	p.fan.Lock()
	defer p.fan.Unlock()
	if p.fanningOut {
		p.pendingNeg = true
	}
	return p.fanningOut
}

// SendPinMsg sends a forward message to every attached sink
func (p *SourcePin) SendPinMsg(msg Msg) error {
	var errs []error
	for _, sink := range p.SinkPins() {
		if err := sink.OnPinMsg(msg); err != nil && !errors.IsNoProc(err) {
			errs = append(errs, fmt.Errorf("%s: %w", sink.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// OnPinMsg dispatches a backward message from a sink to the owner
func (p *SourcePin) OnPinMsg(msg Msg) error {
	return p.owner.OnSrcPinMsg(p, msg)
}

// Disconnect detaches every sink
func (p *SourcePin) Disconnect() error {
	var errs []error
	for _, sink := range p.SinkPins() {
		if err := p.RemoveSinkPin(sink.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// intersectWith intersects this pin's available set with the sinks' available sets
func (p *SourcePin) intersectWith(sinks []*SinkPin) (capability.Set, bool) {
	return intersectAll(p.Available(), sinks)
}

func intersectAll(acc capability.Set, sinks []*SinkPin) (capability.Set, bool) {
	for _, sink := range sinks {
		next, ok := capability.Intersect(acc, sink.Available())
		if !ok {
			return capability.Set{}, false
		}
		acc = next
	}
	return acc, true
}

func (p *SourcePin) pushPrepared(prepared capability.Set) {
	p.mu.Lock()
	p.prepared = prepared.Clone()
	if len(p.sinks) > 0 {
		p.state = StatePrepared
	}
	p.mu.Unlock()
	for _, sink := range p.sinks {
		sink.setPrepared(prepared)
	}
}
