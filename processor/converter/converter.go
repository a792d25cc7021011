// Package converter provides raw format converters. The video converter repacks
// between I420 and NV12; the audio converter mixes channels and resamples 16 bit
// PCM.
//
// Both negotiate in two phases. The output pin stays open to its whole declared
// set until the input format is fixed; the output is then narrowed to what that
// input converts into, with the input's own format preferred, and negotiated
// downstream. A downstream failure rejects the input candidate, so upstream moves
// on to its next one.
package converter

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/pin"
)

// Component IDs
const (
	VideoComponent = "video-converter"
	AudioComponent = "audio-converter"
)

// Property keys
const (
	PropInputCaps  = "input_caps"
	PropOutputCaps = "output_caps"
)

var commonResolutions = []capability.Resolution{
	{Width: 320, Height: 240},
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
}

// DefaultVideoCaps is both the input and the output set of the video converter
var DefaultVideoCaps = capability.Set{
	MediaType:    capability.MediaTypeVideo,
	Codecs:       []capability.Codec{capability.CodecRaw},
	PixelFormats: []capability.PixelFormat{capability.PixelFormatI420, capability.PixelFormatNV12},
	Resolutions:  commonResolutions,
}

// DefaultAudioCaps is both the input and the output set of the audio converter
var DefaultAudioCaps = capability.Set{
	MediaType:   capability.MediaTypeAudio,
	Codecs:      []capability.Codec{capability.CodecRaw},
	Channels:    []int{1, 2},
	SampleBits:  []int{16},
	SampleRates: []int{8000, 16000, 44100, 48000},
}

// Converter converts raw frames from its "in" pin to its "out" pin
type Converter struct {
	*element.Base

	in  *pin.SinkPin
	out *pin.SourcePin

	converted atomic.Uint64
	dropped   atomic.Uint64
}

// NewVideo is the factory of VideoComponent
func NewVideo(deps component.Dependencies) (element.Element, error) {
	return newConverter(capability.MediaTypeVideo, deps), nil
}

// NewAudio is the factory of AudioComponent
func NewAudio(deps component.Dependencies) (element.Element, error) {
	return newConverter(capability.MediaTypeAudio, deps), nil
}

func newConverter(media capability.MediaType, deps component.Dependencies) *Converter {
	c := &Converter{}
	c.Base = element.NewBase(element.Descriptor{
		Name:      string(media) + "-converter",
		MainType:  element.MainTypeFilter,
		SubType:   element.RoleConverter,
		MediaType: media,
	}, c, deps.GetLoggerWithComponent("converter"))
	return c
}

// Register registers the video and audio converters
func Register(registry *component.Registry) error {
	if err := registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        VideoComponent,
		Factory:     NewVideo,
		MainType:    element.MainTypeFilter,
		SubType:     element.RoleConverter,
		MediaType:   capability.MediaTypeVideo,
		Description: "Raw video pixel format converter (I420, NV12)",
		Version:     "1.0.0",
	}); err != nil {
		return err
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        AudioComponent,
		Factory:     NewAudio,
		MainType:    element.MainTypeFilter,
		SubType:     element.RoleConverter,
		MediaType:   capability.MediaTypeAudio,
		Description: "PCM channel mixer and resampler",
		Version:     "1.0.0",
	})
}

// DoInit creates the "in" and "out" pins
func (c *Converter) DoInit(props element.Properties) error {
	defaults := DefaultVideoCaps
	if c.MediaType() == capability.MediaTypeAudio {
		defaults = DefaultAudioCaps
	}

	inCaps, err := c.capsProperty(props, PropInputCaps, defaults)
	if err != nil {
		return err
	}
	outCaps, err := c.capsProperty(props, PropOutputCaps, defaults)
	if err != nil {
		return err
	}

	if c.in, err = c.AddSinkPin("in", inCaps); err != nil {
		return err
	}
	c.out, err = c.AddSourcePin("out", outCaps)
	return err
}

// capsProperty reads a pin set and checks that the converter can handle it
func (c *Converter) capsProperty(props element.Properties, key string, defaults capability.Set) (capability.Set, error) {
	set, err := props.GetCapabilitySet(key, defaults)
	if err != nil {
		return capability.Set{}, errors.Wrap(err, "Converter", "DoInit", key+" property")
	}
	if !capability.IsSubset(set, defaults) {
		return capability.Set{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s %s not supported", errors.ErrInvalidConfig, key, set.String()),
			"Converter", "DoInit", key+" check")
	}
	return set, nil
}

// ValidateSinkPinCap rejects input formats the converter cannot map to any output
func (c *Converter) ValidateSinkPinCap(_ *pin.SinkPin, in capability.Capability) error {
	if _, ok := c.outputFor(in); !ok {
		return errors.Wrap(fmt.Errorf("%w: no output for %s", errors.ErrNoCommonCap, in.String()),
			"Converter", "ValidateSinkPinCap", "output lookup")
	}
	return nil
}

// OnSinkPinNegotiated narrows the output to what in converts into and negotiates it
// when a peer is attached.
func (c *Converter) OnSinkPinNegotiated(_ *pin.SinkPin, in capability.Capability) error {
	set, ok := c.outputFor(in)
	if !ok {
		return errors.Wrap(fmt.Errorf("%w: no output for %s", errors.ErrNoCommonCap, in.String()),
			"Converter", "OnSinkPinNegotiated", "output lookup")
	}
	if err := c.out.UpdateAvailableCaps(set); err != nil {
		return errors.Wrap(err, "Converter", "OnSinkPinNegotiated", "narrow output")
	}
	if c.out.Connected() && !c.out.Negotiated() {
		if _, err := c.NegotiateSourcePin(c.out); err != nil {
			return errors.Wrap(err, "Converter", "OnSinkPinNegotiated", "negotiate output")
		}
	}
	return nil
}

// OnSrcPinConnectState negotiates a newly attached output once the input is fixed
func (c *Converter) OnSrcPinConnectState(p *pin.SourcePin, connected bool) {
	if !connected || p.Negotiated() || !c.in.Negotiated() {
		return
	}
	if _, err := c.NegotiateSourcePin(p); err != nil {
		c.Logger().Debug("Output negotiation deferred", "error", err)
	}
}

// outputFor derives the output set reachable from in. Video keeps the input
// resolution. The input's own values are moved to the front of every domain, so an
// identity conversion wins whenever downstream accepts it.
func (c *Converter) outputFor(in capability.Capability) (capability.Set, bool) {
	set := c.out.Declared()
	if in.MediaType != set.MediaType {
		return capability.Set{}, false
	}
	switch in.MediaType {
	case capability.MediaTypeVideo:
		if !slices.Contains(set.Resolutions, in.Resolution) {
			return capability.Set{}, false
		}
		set.Resolutions = []capability.Resolution{in.Resolution}
		set.PixelFormats = preferFirst(set.PixelFormats, in.PixelFormat)
	case capability.MediaTypeAudio:
		set.Channels = preferFirst(set.Channels, in.Channels)
		set.SampleRates = preferFirst(set.SampleRates, in.SampleRate)
		set.SampleBits = preferFirst(set.SampleBits, in.SampleBits)
	}
	return set, true
}

func preferFirst[T comparable](values []T, v T) []T {
	i := slices.Index(values, v)
	if i <= 0 {
		return values
	}
	out := append([]T{v}, values[:i]...)
	return append(out, values[i+1:]...)
}

// OnSinkPinData converts a frame and forwards it. Frames arriving before the output
// is negotiated are dropped.
func (c *Converter) OnSinkPinData(p *pin.SinkPin, data pin.Data) error {
	if !c.out.Negotiated() {
		c.dropped.Add(1)
		return nil
	}
	payload, err := convertFrame(data.Payload, p.Capability(), c.out.Capability())
	if err != nil {
		c.dropped.Add(1)
		return errors.WrapInvalid(err, "Converter", "OnSinkPinData", "conversion")
	}
	data.Payload = payload
	data.MediaType = c.MediaType()
	c.converted.Add(1)
	return c.out.OnPinData(data)
}

// Stats returns the number of converted and dropped frames
func (c *Converter) Stats() (converted, dropped uint64) {
	return c.converted.Load(), c.dropped.Load()
}
