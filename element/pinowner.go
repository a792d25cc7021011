package element

import (
	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
)

// pinOwner routes pin events to the concrete element's hooks, falling back to the
// default behavior when a hook is absent or answers errors.ErrNoProc.
type pinOwner struct {
	b *Base
}

var _ pin.Owner = (*pinOwner)(nil)

func (o *pinOwner) OwnerName() string { return o.b.Name() }

func (o *pinOwner) OnSinkPinData(p *pin.SinkPin, data pin.Data) error {
	if h, ok := o.b.impl.(SinkDataHandler); ok {
		return h.OnSinkPinData(p, data)
	}
	return nil
}

func (o *pinOwner) OnSinkPinNegotiated(p *pin.SinkPin, c capability.Capability) error {
	if h, ok := o.b.impl.(SinkNegotiatedHandler); ok {
		return h.OnSinkPinNegotiated(p, c)
	}
	if o.b.MainType() != MainTypeFilter {
		return nil
	}
	return o.passThrough(c)
}

// passThrough fixes every connected source pin able to carry c to exactly c. A
// downstream failure rejects c, so the upstream pin moves on to its next candidate.
func (o *pinOwner) passThrough(c capability.Capability) error {
	for _, sp := range o.b.SourcePins() {
		if !sp.Connected() || !capability.MatchesSet(c, sp.Declared()) {
			continue
		}
		if sp.Negotiated() && sp.Capability() == c {
			continue
		}
		if err := sp.UpdateAvailableCaps(capability.FromCapability(c)); err != nil {
			return errors.Wrap(err, "Element", "OnSinkPinNegotiated", "narrow "+sp.ID())
		}
		if _, err := o.negotiate(sp); err != nil {
			return errors.Wrap(err, "Element", "OnSinkPinNegotiated", "negotiate "+sp.ID())
		}
	}
	return nil
}

func (o *pinOwner) OnSinkPinConnectState(p *pin.SinkPin, connected bool) {
	if h, ok := o.b.impl.(SinkConnectHandler); ok {
		h.OnSinkPinConnectState(p, connected)
	}
}

func (o *pinOwner) OnSinkPinMsg(p *pin.SinkPin, msg pin.Msg) error {
	if h, ok := o.b.impl.(SinkMsgHandler); ok {
		if err := h.OnSinkPinMsg(p, msg); !errors.IsNoProc(err) {
			return err
		}
	}
	if !msg.Type.Forward() {
		return errors.ErrNoProc
	}

	var errs []error
	handled := false
	for _, sp := range o.b.SourcePins() {
		err := sp.SendPinMsg(msg)
		switch {
		case err == nil:
			handled = true
		case errors.IsNoProc(err):
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !handled {
		return errors.ErrNoProc
	}
	return nil
}

func (o *pinOwner) ValidateSinkPinCap(p *pin.SinkPin, c capability.Capability) error {
	if h, ok := o.b.impl.(SinkCapValidator); ok {
		return h.ValidateSinkPinCap(p, c)
	}
	return nil
}

func (o *pinOwner) OnSrcPinNegotiated(p *pin.SourcePin, c capability.Capability) {
	if h, ok := o.b.impl.(SrcNegotiatedHandler); ok {
		h.OnSrcPinNegotiated(p, c)
	}
}

func (o *pinOwner) OnSrcPinConnectState(p *pin.SourcePin, connected bool) {
	if h, ok := o.b.impl.(SrcConnectHandler); ok {
		h.OnSrcPinConnectState(p, connected)
		return
	}
	if !connected || p.Negotiated() || !o.upstreamReady() {
		return
	}
	if c, ok := o.inputCapability(); ok && o.b.MainType() == MainTypeFilter && capability.MatchesSet(c, p.Declared()) {
		if err := p.UpdateAvailableCaps(capability.FromCapability(c)); err != nil {
			o.negotiationFailed(p, err)
			return
		}
	}
	o.negotiate(p)
}

// inputCapability returns the capability of the first negotiated sink pin
func (o *pinOwner) inputCapability() (capability.Capability, bool) {
	for _, sp := range o.b.SinkPins() {
		if sp.Negotiated() {
			return sp.Capability(), true
		}
	}
	return capability.Capability{}, false
}

func (o *pinOwner) OnSrcPinMsg(p *pin.SourcePin, msg pin.Msg) error {
	if h, ok := o.b.impl.(SrcMsgHandler); ok {
		if err := h.OnSrcPinMsg(p, msg); !errors.IsNoProc(err) {
			return err
		}
	}

	if msg.Type == pin.MsgNegotiate {
		if _, err := p.Negotiate(); err != nil {
			o.negotiationFailed(p, err)
			return err
		}
		return nil
	}
	if msg.Type.Forward() {
		return errors.ErrNoProc
	}

	var errs []error
	handled := false
	for _, sp := range o.b.SinkPins() {
		err := sp.SendPinMsg(msg)
		switch {
		case err == nil:
			handled = true
		case errors.IsNoProc(err), errors.Is(err, errors.ErrPinNotFound):
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !handled {
		return errors.ErrNoProc
	}
	return nil
}

// upstreamReady reports whether the element's own input formats are settled, so its
// outputs can be negotiated. Sources have no inputs.
func (o *pinOwner) upstreamReady() bool {
	if o.b.MainType() == MainTypeSrc {
		return true
	}
	sinks := o.b.SinkPins()
	if len(sinks) == 0 {
		return true
	}
	for _, sp := range sinks {
		if !sp.Negotiated() {
			return false
		}
	}
	return true
}

// NegotiateSourcePin negotiates p and reports a failure on the bus
func (b *Base) NegotiateSourcePin(p *pin.SourcePin) (capability.Capability, error) {
	return b.owner.negotiate(p)
}

func (o *pinOwner) negotiate(p *pin.SourcePin) (capability.Capability, error) {
	c, err := p.Negotiate()
	if err != nil {
		o.negotiationFailed(p, err)
		return capability.Capability{}, err
	}
	o.b.Logger().Debug("Source pin negotiated", "pin", p.ID(), "capability", c.String())
	return c, nil
}

func (o *pinOwner) negotiationFailed(p *pin.SourcePin, err error) {
	o.b.Logger().Warn("Source pin negotiation failed",
		"pin", p.ID(),
		"prepared", p.Prepared(),
		"error", err)
	o.b.Post(msgbus.MsgNegotiateFailed, msgbus.NegotiateFailure{
		Element: o.b.Name(),
		Pin:     p.Name(),
		Reason:  err.Error(),
	})
}
