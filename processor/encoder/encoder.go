// Package encoder provides a G.711 audio encoder. It compands 8kHz mono 16 bit PCM
// into mu-law (PCMU) or A-law (PCMA), whichever downstream negotiates first.
package encoder

import (
	"fmt"
	"sync/atomic"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/pin"
)

// Component is the component ID of the G.711 encoder
const Component = "g711-encoder"

// PropCodecs restricts and orders the output codecs, e.g. ["pcma"]
const PropCodecs = "codecs"

// InputCaps is the PCM the encoder accepts
var InputCaps = capability.Set{
	MediaType:   capability.MediaTypeAudio,
	Codecs:      []capability.Codec{capability.CodecRaw},
	Channels:    []int{1},
	SampleBits:  []int{16},
	SampleRates: []int{8000},
}

// OutputCaps is the default output set
var OutputCaps = capability.Set{
	MediaType:   capability.MediaTypeAudio,
	Codecs:      []capability.Codec{capability.CodecPCMU, capability.CodecPCMA},
	Channels:    []int{1},
	SampleBits:  []int{8},
	SampleRates: []int{8000},
}

// Encoder compands PCM frames from "in" onto "out"
type Encoder struct {
	*element.Base

	out     *pin.SourcePin
	encoded atomic.Uint64
}

// New is the factory of Component
func New(deps component.Dependencies) (element.Element, error) {
	e := &Encoder{}
	e.Base = element.NewBase(element.Descriptor{
		Name:      "g711-encoder",
		MainType:  element.MainTypeFilter,
		SubType:   element.RoleEncoder,
		MediaType: capability.MediaTypeAudio,
	}, e, deps.GetLoggerWithComponent("encoder"))
	return e, nil
}

// Register registers the G.711 encoder
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Component,
		Factory:     New,
		MainType:    element.MainTypeFilter,
		SubType:     element.RoleEncoder,
		MediaType:   capability.MediaTypeAudio,
		Description: "G.711 PCMU/PCMA audio encoder",
		Version:     "1.0.0",
	})
}

// DoInit creates the pins
func (e *Encoder) DoInit(props element.Properties) error {
	out := OutputCaps.Clone()
	if names, ok := props[PropCodecs]; ok {
		codecs, err := parseCodecs(names)
		if err != nil {
			return errors.Wrap(err, "Encoder", "DoInit", "codecs property")
		}
		out.Codecs = codecs
	}

	if _, err := e.AddSinkPin("in", InputCaps); err != nil {
		return err
	}
	var err error
	e.out, err = e.AddSourcePin("out", out)
	return err
}

func parseCodecs(v any) ([]capability.Codec, error) {
	var names []string
	switch t := v.(type) {
	case string:
		names = []string{t}
	case []string:
		names = t
	case []any:
		for _, n := range t {
			s, ok := n.(string)
			if !ok {
				return nil, errors.WrapInvalid(fmt.Errorf("%w: codec %v", errors.ErrInvalidConfig, n),
					"Encoder", "parseCodecs", "type check")
			}
			names = append(names, s)
		}
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: codecs %T", errors.ErrInvalidConfig, v),
			"Encoder", "parseCodecs", "type check")
	}

	var codecs []capability.Codec
	for _, n := range names {
		c := capability.Codec(n)
		if c != capability.CodecPCMU && c != capability.CodecPCMA {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: codec %q", errors.ErrInvalidConfig, n),
				"Encoder", "parseCodecs", "codec check")
		}
		codecs = append(codecs, c)
	}
	if len(codecs) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: no codecs", errors.ErrInvalidConfig),
			"Encoder", "parseCodecs", "codec check")
	}
	return codecs, nil
}

// OnSinkPinNegotiated negotiates the output once the PCM input is fixed. The output
// format does not depend on the input beyond that.
func (e *Encoder) OnSinkPinNegotiated(_ *pin.SinkPin, _ capability.Capability) error {
	if !e.out.Connected() || e.out.Negotiated() {
		return nil
	}
	if _, err := e.NegotiateSourcePin(e.out); err != nil {
		return errors.Wrap(err, "Encoder", "OnSinkPinNegotiated", "negotiate output")
	}
	return nil
}

// OnSinkPinData encodes a PCM frame and forwards it
func (e *Encoder) OnSinkPinData(_ *pin.SinkPin, data pin.Data) error {
	if !e.out.Negotiated() {
		return nil
	}
	payload, err := encodeG711(data.Payload, e.out.Capability().Codec)
	if err != nil {
		return errors.WrapInvalid(err, "Encoder", "OnSinkPinData", "encode")
	}
	data.Payload = payload
	e.encoded.Add(1)
	return e.out.OnPinData(data)
}

// Encoded returns the number of frames encoded
func (e *Encoder) Encoded() uint64 {
	return e.encoded.Load()
}
