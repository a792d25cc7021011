package pin

import (
	"fmt"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// SinkPin consumes data from at most one SourcePin
type SinkPin struct {
	base
	source *SourcePin
}

// NewSinkPin creates a sink pin with the declared capability set. The available and
// prepared sets start equal to the declared set.
func NewSinkPin(owner Owner, name string, declared capability.Set, opts ...Option) (*SinkPin, error) {
	if owner == nil || name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidParam, "SinkPin", "NewSinkPin", "argument check")
	}
	if err := declared.Validate(); err != nil {
		return nil, errors.Wrap(err, "SinkPin", "NewSinkPin", "declared set validation")
	}
	p := &SinkPin{}
	p.init(owner, name, declared, opts)
	return p, nil
}

// Source returns the connected source pin, or nil
func (p *SinkPin) Source() *SourcePin {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// Connected reports whether the pin has a source
func (p *SinkPin) Connected() bool {
	return p.Source() != nil
}

// Accepts reports whether c may be negotiated on this pin: it must belong to the
// prepared set and pass the owner's validation hook. Accepts has no side effects.
func (p *SinkPin) Accepts(c capability.Capability) bool {
	p.mu.RLock()
	ok := capability.MatchesSet(c, p.prepared)
	p.mu.RUnlock()
	if !ok {
		return false
	}
	return p.owner.ValidateSinkPinCap(p, c) == nil
}

// SetNegotiateCap commits c on the pin on behalf of the connected source. The owner's
// OnSinkPinNegotiated hook runs first and may cascade negotiation downstream; the
// capability is stored only when the hook succeeds.
func (p *SinkPin) SetNegotiateCap(from *SourcePin, c capability.Capability) error {
	p.mu.RLock()
	source, prepared := p.source, p.prepared
	p.mu.RUnlock()

	if from == nil || source != from {
		return errors.WrapInvalid(errors.ErrInvalidParam, "SinkPin", "SetNegotiateCap", "source identity check")
	}
	if !capability.MatchesSet(c, prepared) {
		return errors.Wrap(fmt.Errorf("%w: %s", errors.ErrCapRejected, c), "SinkPin", "SetNegotiateCap", "prepared set check")
	}

	if err := p.owner.OnSinkPinNegotiated(p, c); err != nil {
		return errors.Wrap(errors.Join(errors.ErrCapRejected, err), "SinkPin", "SetNegotiateCap", "owner notification")
	}

	p.mu.Lock()
	p.negotiated = c
	p.isNeg = true
	p.state = StateNegotiated
	p.mu.Unlock()
	return nil
}

// UpdateAvailableCaps re-narrows the available set. The set must be a subset of the
// declared set. While connected and not negotiated the prepared set follows.
func (p *SinkPin) UpdateAvailableCaps(set capability.Set) error {
	if err := set.Validate(); err != nil {
		return errors.Wrap(err, "SinkPin", "UpdateAvailableCaps", "set validation")
	}
	if !capability.IsSubset(set, p.declared) {
		return errors.WrapInvalid(fmt.Errorf("%w: not a subset of declared set", errors.ErrInvalidParam),
			"SinkPin", "UpdateAvailableCaps", "subset check")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	prepared := set
	if p.source != nil && !p.isNeg {
		narrowed, ok := capability.Intersect(set, p.prepared)
		if !ok {
			return errors.Wrap(errors.ErrNoCommonCap, "SinkPin", "UpdateAvailableCaps", "prepared narrowing")
		}
		prepared = narrowed
	} else if p.isNeg {
		prepared = p.prepared
	}
	p.available = set.Clone()
	p.prepared = prepared.Clone()
	return nil
}

// OnPinData delivers data to the owner. Data is rejected while not negotiated.
func (p *SinkPin) OnPinData(data Data) error {
	if !p.Negotiated() {
		p.rejected.Add(1)
		return errors.Wrap(errors.ErrNotNegotiated, "SinkPin", "OnPinData", "negotiation check")
	}
	if err := p.owner.OnSinkPinData(p, data); err != nil {
		p.rejected.Add(1)
		return err
	}
	p.delivered.Add(1)
	return nil
}

// OnPinMsg dispatches a forward message from the source to the owner
func (p *SinkPin) OnPinMsg(msg Msg) error {
	return p.owner.OnSinkPinMsg(p, msg)
}

// SendPinMsg sends a backward message to the connected source
func (p *SinkPin) SendPinMsg(msg Msg) error {
	source := p.Source()
	if source == nil {
		return errors.Wrap(errors.ErrPinNotFound, "SinkPin", "SendPinMsg", "source lookup")
	}
	return source.OnPinMsg(msg)
}

// Disconnect detaches the pin from its source, if any
func (p *SinkPin) Disconnect() error {
	source := p.Source()
	if source == nil {
		return nil
	}
	return source.RemoveSinkPin(p.ID())
}

func (p *SinkPin) attach(source *SourcePin, prepared capability.Set) {
	p.mu.Lock()
	p.source = source
	p.prepared = prepared.Clone()
	p.state = StatePrepared
	p.mu.Unlock()
}

func (p *SinkPin) setPrepared(prepared capability.Set) {
	p.mu.Lock()
	p.prepared = prepared.Clone()
	p.mu.Unlock()
}

func (p *SinkPin) detach() {
	p.mu.Lock()
	p.source = nil
	p.prepared = p.available.Clone()
	p.negotiated = capability.Capability{}
	p.isNeg = false
	p.state = StateInitialized
	p.mu.Unlock()
}

// negotiationSnapshot captures the negotiated fields for revert
type negotiationSnapshot struct {
	cap   capability.Capability
	isNeg bool
	state State
}

func (p *SinkPin) snapshot() negotiationSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return negotiationSnapshot{cap: p.negotiated, isNeg: p.isNeg, state: p.state}
}

func (p *SinkPin) restore(s negotiationSnapshot) {
	p.mu.Lock()
	p.negotiated = s.cap
	p.isNeg = s.isNeg
	p.state = s.state
	p.mu.Unlock()
}
