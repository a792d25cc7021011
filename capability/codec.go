package capability

import (
	"encoding/json"
	"fmt"

	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// capabilityJSON is the wire form of a Capability. Keys of the other media kind are
// omitted.
type capabilityJSON struct {
	MediaType   MediaType   `json:"media_type"`
	Codec       Codec       `json:"codec"`
	Resolution  string      `json:"resolution,omitempty"`
	PixelFormat PixelFormat `json:"pixel_format,omitempty"`
	Channels    int         `json:"channels,omitempty"`
	SampleBits  int         `json:"sample_bits,omitempty"`
	SampleRate  int         `json:"sample_rate,omitempty"`
}

// setJSON is the wire form of a Set: the same keys with array values
type setJSON struct {
	MediaType   MediaType     `json:"media_type"`
	Codec       []Codec       `json:"codec"`
	Resolution  []string      `json:"resolution,omitempty"`
	PixelFormat []PixelFormat `json:"pixel_format,omitempty"`
	Channels    []int         `json:"channels,omitempty"`
	SampleBits  []int         `json:"sample_bits,omitempty"`
	SampleRate  []int         `json:"sample_rate,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (c Capability) MarshalJSON() ([]byte, error) {
	w := capabilityJSON{
		MediaType:   c.MediaType,
		Codec:       c.Codec,
		PixelFormat: c.PixelFormat,
		Channels:    c.Channels,
		SampleBits:  c.SampleBits,
		SampleRate:  c.SampleRate,
	}
	if !c.Resolution.IsZero() {
		w.Resolution = c.Resolution.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Capability) UnmarshalJSON(data []byte) error {
	var w capabilityJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Capability", "UnmarshalJSON", "json decode")
	}
	out := Capability{
		MediaType:   w.MediaType,
		Codec:       w.Codec,
		PixelFormat: w.PixelFormat,
		Channels:    w.Channels,
		SampleBits:  w.SampleBits,
		SampleRate:  w.SampleRate,
	}
	if w.Resolution != "" {
		res, err := ParseResolution(w.Resolution)
		if err != nil {
			return err
		}
		out.Resolution = res
	}
	*c = out
	return nil
}

// MarshalJSON implements json.Marshaler
func (s Set) MarshalJSON() ([]byte, error) {
	w := setJSON{
		MediaType:   s.MediaType,
		Codec:       s.Codecs,
		PixelFormat: s.PixelFormats,
		Channels:    s.Channels,
		SampleBits:  s.SampleBits,
		SampleRate:  s.SampleRates,
	}
	for _, res := range s.Resolutions {
		w.Resolution = append(w.Resolution, res.String())
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Set) UnmarshalJSON(data []byte) error {
	var w setJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Set", "UnmarshalJSON", "json decode")
	}
	out := Set{
		MediaType:    w.MediaType,
		Codecs:       w.Codec,
		PixelFormats: w.PixelFormat,
		Channels:     w.Channels,
		SampleBits:   w.SampleBits,
		SampleRates:  w.SampleRate,
	}
	for _, r := range w.Resolution {
		res, err := ParseResolution(r)
		if err != nil {
			return err
		}
		out.Resolutions = append(out.Resolutions, res)
	}
	*s = out
	return nil
}

// Parse decodes and validates a Capability from its wire form
func Parse(s string) (Capability, error) {
	var c Capability
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return Capability{}, decodeError(err, "Parse")
	}
	if err := c.Validate(); err != nil {
		return Capability{}, err
	}
	return c, nil
}

// ParseSet decodes and validates a Set from its wire form
func ParseSet(s string) (Set, error) {
	var set Set
	if err := json.Unmarshal([]byte(s), &set); err != nil {
		return Set{}, decodeError(err, "ParseSet")
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

// MustParseSet is ParseSet for static declarations; it panics on malformed input.
func MustParseSet(s string) Set {
	set, err := ParseSet(s)
	if err != nil {
		panic(err)
	}
	return set
}

// decodeError classifies a JSON syntax failure as a parsing error
func decodeError(err error, method string) error {
	if errors.Is(err, errors.ErrParsingFailed) {
		return err
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
		"capability", method, "decode")
}
