// Package capability describes the data formats that flow across pins: a concrete
// Capability, a Set of acceptable values per field, and the negotiation algorithm
// that selects one Capability acceptable to a source and every attached sink.
package capability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// MediaType discriminates audio from video capabilities
type MediaType string

// Media type constants
const (
	MediaTypeUnknown MediaType = ""
	MediaTypeAudio   MediaType = "audio"
	MediaTypeVideo   MediaType = "video"
)

// Valid reports whether the media type is audio or video
func (m MediaType) Valid() bool {
	return m == MediaTypeAudio || m == MediaTypeVideo
}

// String implements fmt.Stringer
func (m MediaType) String() string {
	if m == MediaTypeUnknown {
		return "unknown"
	}
	return string(m)
}

// Codec names the encoding carried by a stream
type Codec string

// Codec constants
const (
	CodecRaw  Codec = "raw"
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
	CodecVP8  Codec = "vp8"
	CodecVP9  Codec = "vp9"
	CodecAV1  Codec = "av1"
	CodecOpus Codec = "opus"
	CodecAAC  Codec = "aac"
	CodecPCMU Codec = "pcmu"
	CodecPCMA Codec = "pcma"
)

// PixelFormat names a raw video memory layout
type PixelFormat string

// Pixel format constants
const (
	PixelFormatI420  PixelFormat = "I420"
	PixelFormatNV12  PixelFormat = "NV12"
	PixelFormatYUY2  PixelFormat = "YUY2"
	PixelFormatRGB24 PixelFormat = "RGB24"
	PixelFormatBGRA  PixelFormat = "BGRA"
)

// Resolution is a video frame size. Its wire form is "<width>x<height>".
type Resolution struct {
	Width  int
	Height int
}

// String renders the resolution as "640x480"
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsZero reports whether the resolution is unset
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// ParseResolution parses "640x480"
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, errors.WrapInvalid(
			fmt.Errorf("%w: resolution %q", errors.ErrParsingFailed, s),
			"capability", "ParseResolution", "separator lookup")
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Resolution{}, errors.WrapInvalid(
			fmt.Errorf("%w: width %q", errors.ErrParsingFailed, w),
			"capability", "ParseResolution", "width parsing")
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Resolution{}, errors.WrapInvalid(
			fmt.Errorf("%w: height %q", errors.ErrParsingFailed, h),
			"capability", "ParseResolution", "height parsing")
	}
	return Resolution{Width: width, Height: height}, nil
}

// Capability is one concrete, fully specified data format. Video capabilities carry
// codec, pixel format and resolution; audio capabilities carry codec, channels,
// sample bits and sample rate. Fields of the other media kind stay zero.
//
// Capability is comparable, so two capabilities are equal exactly when == holds.
type Capability struct {
	MediaType   MediaType
	Codec       Codec
	PixelFormat PixelFormat
	Resolution  Resolution
	Channels    int
	SampleBits  int
	SampleRate  int
}

// NewVideo builds a video capability
func NewVideo(codec Codec, format PixelFormat, res Resolution) Capability {
	return Capability{MediaType: MediaTypeVideo, Codec: codec, PixelFormat: format, Resolution: res}
}

// NewAudio builds an audio capability
func NewAudio(codec Codec, channels, sampleBits, sampleRate int) Capability {
	return Capability{
		MediaType:  MediaTypeAudio,
		Codec:      codec,
		Channels:   channels,
		SampleBits: sampleBits,
		SampleRate: sampleRate,
	}
}

// IsZero reports whether c is the empty capability. Pins report the empty
// capability to their element when the last peer disconnects.
func (c Capability) IsZero() bool {
	return c == Capability{}
}

// Validate checks that every field required by the media kind is present and that
// no field of the other kind is set.
func (c Capability) Validate() error {
	var problem string
	switch c.MediaType {
	case MediaTypeVideo:
		switch {
		case c.Codec == "":
			problem = "video codec missing"
		case c.PixelFormat == "":
			problem = "pixel format missing"
		case c.Resolution.Width <= 0 || c.Resolution.Height <= 0:
			problem = "resolution missing"
		case c.Channels != 0 || c.SampleBits != 0 || c.SampleRate != 0:
			problem = "audio fields set on video capability"
		}
	case MediaTypeAudio:
		switch {
		case c.Codec == "":
			problem = "audio codec missing"
		case c.Channels <= 0:
			problem = "channels missing"
		case c.SampleBits <= 0:
			problem = "sample bits missing"
		case c.SampleRate <= 0:
			problem = "sample rate missing"
		case c.PixelFormat != "" || !c.Resolution.IsZero():
			problem = "video fields set on audio capability"
		}
	default:
		problem = fmt.Sprintf("unknown media type %q", c.MediaType)
	}

	if problem != "" {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidParam, problem),
			"Capability", "Validate", "field check")
	}
	return nil
}

// String renders the capability in its JSON wire form
func (c Capability) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

// withoutCodec returns a copy of c with the codec cleared
func (c Capability) withoutCodec() Capability {
	c.Codec = ""
	return c
}

// FrameBytes returns the size of one raw video frame, or zero when the capability
// is not raw video or its pixel format is unknown.
func (c Capability) FrameBytes() int {
	if c.MediaType != MediaTypeVideo || c.Codec != CodecRaw {
		return 0
	}
	pixels := c.Resolution.Width * c.Resolution.Height
	switch c.PixelFormat {
	case PixelFormatI420, PixelFormatNV12:
		return pixels * 3 / 2
	case PixelFormatYUY2:
		return pixels * 2
	case PixelFormatRGB24:
		return pixels * 3
	case PixelFormatBGRA:
		return pixels * 4
	default:
		return 0
	}
}

// SampleBytes returns the size of d worth of interleaved PCM, or zero for anything
// but audio.
func (c Capability) SampleBytes(d time.Duration) int {
	if c.MediaType != MediaTypeAudio {
		return 0
	}
	samples := int64(c.SampleRate) * int64(d) / int64(time.Second)
	return int(samples) * c.Channels * c.SampleBits / 8
}
