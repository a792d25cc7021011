package capability

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// Set is a per-field menu of acceptable values. Each field is an ordered domain;
// the concrete capabilities a Set stands for are the cartesian product of its
// domains. Order matters: negotiation walks candidates in expansion order.
type Set struct {
	MediaType    MediaType
	Codecs       []Codec
	PixelFormats []PixelFormat
	Resolutions  []Resolution
	Channels     []int
	SampleBits   []int
	SampleRates  []int
}

// FromCapability returns the single-member set containing c
func FromCapability(c Capability) Set {
	s := Set{MediaType: c.MediaType, Codecs: []Codec{c.Codec}}
	switch c.MediaType {
	case MediaTypeVideo:
		s.PixelFormats = []PixelFormat{c.PixelFormat}
		s.Resolutions = []Resolution{c.Resolution}
	case MediaTypeAudio:
		s.Channels = []int{c.Channels}
		s.SampleBits = []int{c.SampleBits}
		s.SampleRates = []int{c.SampleRate}
	}
	return s
}

// Clone returns a deep copy of the set
func (s Set) Clone() Set {
	return Set{
		MediaType:    s.MediaType,
		Codecs:       slices.Clone(s.Codecs),
		PixelFormats: slices.Clone(s.PixelFormats),
		Resolutions:  slices.Clone(s.Resolutions),
		Channels:     slices.Clone(s.Channels),
		SampleBits:   slices.Clone(s.SampleBits),
		SampleRates:  slices.Clone(s.SampleRates),
	}
}

// Len returns the number of concrete capabilities the set expands to
func (s Set) Len() int {
	switch s.MediaType {
	case MediaTypeVideo:
		return len(s.Codecs) * len(s.PixelFormats) * len(s.Resolutions)
	case MediaTypeAudio:
		return len(s.Codecs) * len(s.SampleRates) * len(s.Channels) * len(s.SampleBits)
	default:
		return 0
	}
}

// IsEmpty reports whether the set expands to no capability at all
func (s Set) IsEmpty() bool {
	return s.Len() == 0
}

// Validate checks that every domain required by the media kind is non-empty
func (s Set) Validate() error {
	var problem string
	switch s.MediaType {
	case MediaTypeVideo:
		switch {
		case len(s.Codecs) == 0:
			problem = "codec domain empty"
		case len(s.PixelFormats) == 0:
			problem = "pixel format domain empty"
		case len(s.Resolutions) == 0:
			problem = "resolution domain empty"
		case len(s.Channels) != 0 || len(s.SampleBits) != 0 || len(s.SampleRates) != 0:
			problem = "audio domains set on video set"
		}
	case MediaTypeAudio:
		switch {
		case len(s.Codecs) == 0:
			problem = "codec domain empty"
		case len(s.Channels) == 0:
			problem = "channels domain empty"
		case len(s.SampleBits) == 0:
			problem = "sample bits domain empty"
		case len(s.SampleRates) == 0:
			problem = "sample rate domain empty"
		case len(s.PixelFormats) != 0 || len(s.Resolutions) != 0:
			problem = "video domains set on audio set"
		}
	default:
		problem = fmt.Sprintf("unknown media type %q", s.MediaType)
	}

	if problem != "" {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidParam, problem),
			"Set", "Validate", "domain check")
	}

	for _, res := range s.Resolutions {
		if res.Width <= 0 || res.Height <= 0 {
			return errors.WrapInvalid(fmt.Errorf("%w: resolution %s", errors.ErrInvalidParam, res),
				"Set", "Validate", "resolution check")
		}
	}
	return nil
}

// ExpandPermutations returns the cartesian product of the set's domains. Codec is
// the outermost loop; video then walks pixel format and resolution, audio walks
// sample rate, channels and sample bits.
func ExpandPermutations(s Set) []Capability {
	caps := make([]Capability, 0, s.Len())
	switch s.MediaType {
	case MediaTypeVideo:
		for _, codec := range s.Codecs {
			for _, format := range s.PixelFormats {
				for _, res := range s.Resolutions {
					caps = append(caps, NewVideo(codec, format, res))
				}
			}
		}
	case MediaTypeAudio:
		for _, codec := range s.Codecs {
			for _, rate := range s.SampleRates {
				for _, channels := range s.Channels {
					for _, bits := range s.SampleBits {
						caps = append(caps, NewAudio(codec, channels, bits, rate))
					}
				}
			}
		}
	}
	return caps
}

// MatchesSet reports whether every field of c is present in the corresponding
// domain of s.
func MatchesSet(c Capability, s Set) bool {
	return c.MediaType == s.MediaType &&
		slices.Contains(s.Codecs, c.Codec) &&
		matchesFormat(c, s)
}

// matchesFormat checks every field except codec
func matchesFormat(c Capability, s Set) bool {
	if c.MediaType != s.MediaType {
		return false
	}
	switch c.MediaType {
	case MediaTypeVideo:
		return slices.Contains(s.PixelFormats, c.PixelFormat) &&
			slices.Contains(s.Resolutions, c.Resolution)
	case MediaTypeAudio:
		return slices.Contains(s.Channels, c.Channels) &&
			slices.Contains(s.SampleBits, c.SampleBits) &&
			slices.Contains(s.SampleRates, c.SampleRate)
	default:
		return false
	}
}

// Intersect returns the per-field intersection of a and b, preserving a's order.
// Because a Set is a cartesian product, the per-field intersection is exactly the
// intersection of the two expansions. ok is false when the media kinds differ or
// any required domain becomes empty.
func Intersect(a, b Set) (Set, bool) {
	if a.MediaType != b.MediaType || !a.MediaType.Valid() {
		return Set{}, false
	}
	out := Set{
		MediaType:    a.MediaType,
		Codecs:       intersect(a.Codecs, b.Codecs),
		PixelFormats: intersect(a.PixelFormats, b.PixelFormats),
		Resolutions:  intersect(a.Resolutions, b.Resolutions),
		Channels:     intersect(a.Channels, b.Channels),
		SampleBits:   intersect(a.SampleBits, b.SampleBits),
		SampleRates:  intersect(a.SampleRates, b.SampleRates),
	}
	if out.IsEmpty() {
		return Set{}, false
	}
	return out, true
}

// IsSubset reports whether every domain of a is contained in the matching domain of b
func IsSubset(a, b Set) bool {
	return a.MediaType == b.MediaType &&
		subset(a.Codecs, b.Codecs) &&
		subset(a.PixelFormats, b.PixelFormats) &&
		subset(a.Resolutions, b.Resolutions) &&
		subset(a.Channels, b.Channels) &&
		subset(a.SampleBits, b.SampleBits) &&
		subset(a.SampleRates, b.SampleRates)
}

// Narrow restricts s to the single capability fixed, if s admits it
func Narrow(s Set, fixed Capability) (Set, bool) {
	if !MatchesSet(fixed, s) {
		return Set{}, false
	}
	return FromCapability(fixed), true
}

// NarrowWithoutCodec re-narrows s after the opposite endpoint fixed its format:
// s keeps its own codec domain while every other domain is restricted to the value
// in fixed. Decoders, encoders and converters use it for two-phase negotiation.
func NarrowWithoutCodec(s Set, fixed Capability) (Set, bool) {
	if !matchesFormat(fixed, s) {
		return Set{}, false
	}
	out := FromCapability(fixed)
	out.Codecs = slices.Clone(s.Codecs)
	if len(out.Codecs) == 0 {
		return Set{}, false
	}
	return out, true
}

// Mismatch lists the wire names of the fields whose domains do not intersect.
// It is used to localize a failed negotiation in logs.
func Mismatch(a, b Set) []string {
	if a.MediaType != b.MediaType {
		return []string{"media_type"}
	}
	var fields []string
	check := func(name string, ok bool) {
		if !ok {
			fields = append(fields, name)
		}
	}
	check("codec", len(intersect(a.Codecs, b.Codecs)) > 0)
	switch a.MediaType {
	case MediaTypeVideo:
		check("pixel_format", len(intersect(a.PixelFormats, b.PixelFormats)) > 0)
		check("resolution", len(intersect(a.Resolutions, b.Resolutions)) > 0)
	case MediaTypeAudio:
		check("channels", len(intersect(a.Channels, b.Channels)) > 0)
		check("sample_bits", len(intersect(a.SampleBits, b.SampleBits)) > 0)
		check("sample_rate", len(intersect(a.SampleRates, b.SampleRates)) > 0)
	}
	return fields
}

// LogValue implements slog.LogValuer so sets log as their wire form
func (s Set) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// String renders the set in its JSON wire form
func (s Set) String() string {
	data, err := s.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

func intersect[T comparable](a, b []T) []T {
	if a == nil || b == nil {
		return nil
	}
	out := make([]T, 0, len(a))
	for _, v := range a {
		if slices.Contains(b, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func subset[T comparable](a, b []T) bool {
	for _, v := range a {
		if !slices.Contains(b, v) {
			return false
		}
	}
	return true
}
