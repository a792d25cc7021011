// Package testsrc provides synthetic audio and video sources. A test source produces
// paced raw frames in the negotiated format of its single "out" pin, which makes it
// the root of test and demo pipelines.
package testsrc

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
)

// Component IDs
const (
	VideoComponent = "video-test-source"
	AudioComponent = "audio-test-source"
)

// Property keys
const (
	PropCaps     = "caps"
	PropFPS      = "fps"
	PropStreamID = "stream_id"
	PropFrames   = "frames"
)

// Default output formats
var (
	DefaultVideoCaps = capability.Set{
		MediaType:    capability.MediaTypeVideo,
		Codecs:       []capability.Codec{capability.CodecRaw},
		PixelFormats: []capability.PixelFormat{capability.PixelFormatI420, capability.PixelFormatNV12},
		Resolutions:  []capability.Resolution{{Width: 640, Height: 480}, {Width: 1280, Height: 720}},
	}
	DefaultAudioCaps = capability.Set{
		MediaType:   capability.MediaTypeAudio,
		Codecs:      []capability.Codec{capability.CodecRaw},
		Channels:    []int{2, 1},
		SampleBits:  []int{16},
		SampleRates: []int{48000, 44100},
	}
)

const (
	defaultVideoFPS = 30
	// 20ms audio frames
	defaultAudioFPS = 50
	maxFPS          = 1000
)

// Source is a synthetic frame producer
type Source struct {
	*element.Base

	fps      int
	limit    int
	streamID string
	out      *pin.SourcePin

	paused atomic.Bool
	ended  atomic.Bool
	frames atomic.Uint64
	bytes  atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewVideo is the factory of VideoComponent
func NewVideo(deps component.Dependencies) (element.Element, error) {
	return newSource(capability.MediaTypeVideo, deps), nil
}

// NewAudio is the factory of AudioComponent
func NewAudio(deps component.Dependencies) (element.Element, error) {
	return newSource(capability.MediaTypeAudio, deps), nil
}

func newSource(media capability.MediaType, deps component.Dependencies) *Source {
	s := &Source{}
	s.Base = element.NewBase(element.Descriptor{
		Name:      string(media) + "-test-source",
		MainType:  element.MainTypeSrc,
		SubType:   element.RoleTester,
		MediaType: media,
	}, s, deps.GetLoggerWithComponent("testsrc"))
	return s
}

// Register registers the video and audio test sources
func Register(registry *component.Registry) error {
	for _, cfg := range []component.RegistrationConfig{
		{
			Name:        VideoComponent,
			Factory:     NewVideo,
			MediaType:   capability.MediaTypeVideo,
			Description: "Synthetic raw video frames at a fixed rate",
		},
		{
			Name:        AudioComponent,
			Factory:     NewAudio,
			MediaType:   capability.MediaTypeAudio,
			Description: "Synthetic PCM audio in 20ms frames",
		},
	} {
		cfg.MainType = element.MainTypeSrc
		cfg.SubType = element.RoleTester
		cfg.Version = "1.0.0"
		if err := registry.RegisterWithConfig(cfg); err != nil {
			return err
		}
	}
	return nil
}

// DoInit reads the output formats and pacing and creates the "out" pin
func (s *Source) DoInit(props element.Properties) error {
	defaults, fps := DefaultVideoCaps, defaultVideoFPS
	if s.MediaType() == capability.MediaTypeAudio {
		defaults, fps = DefaultAudioCaps, defaultAudioFPS
	}

	caps, err := props.GetCapabilitySet(PropCaps, defaults)
	if err != nil {
		return errors.Wrap(err, "TestSource", "DoInit", "caps property")
	}
	if caps.MediaType != s.MediaType() {
		return errors.WrapInvalid(fmt.Errorf("%w: %s caps on %s source", errors.ErrInvalidConfig, caps.MediaType, s.MediaType()),
			"TestSource", "DoInit", "media type check")
	}

	s.fps = props.GetInt(PropFPS, fps)
	if s.fps <= 0 || s.fps > maxFPS {
		return errors.WrapInvalid(fmt.Errorf("%w: fps %d", errors.ErrInvalidConfig, s.fps),
			"TestSource", "DoInit", "fps check")
	}
	s.limit = props.GetInt(PropFrames, 0)
	s.streamID = props.GetString(PropStreamID, s.Name()+"-"+string(s.MediaType()))

	s.out, err = s.AddSourcePin("out", caps)
	return err
}

// DoStart starts the production goroutine
func (s *Source) DoStart() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.paused.Store(false)
	s.ended.Store(false)

	if err := s.out.SendPinMsg(pin.Msg{Type: pin.MsgSetStream, StreamID: s.streamID}); err != nil {
		s.Logger().Debug("SET_STREAM not delivered", "error", err)
	}
	s.Post(msgbus.MsgAddElementStream, msgbus.ElementStream{
		StreamID: s.streamID,
		Element:  s.Name(),
		Pin:      s.out.Name(),
		Role:     msgbus.StreamProducer,
	})

	limiter := rate.NewLimiter(rate.Limit(s.fps), 1)
	go s.run(ctx, limiter)
	s.Logger().Info("Test source started", "stream", s.streamID, "fps", s.fps)
	return nil
}

// DoPause suspends production; the pacing clock keeps running
func (s *Source) DoPause() error {
	s.paused.Store(true)
	return nil
}

// DoResume continues production
func (s *Source) DoResume() error {
	s.paused.Store(false)
	return nil
}

// DoStop stops the production goroutine and ends the stream
func (s *Source) DoStop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.endStream()
	s.Post(msgbus.MsgDelElementStream, msgbus.ElementStream{
		StreamID: s.streamID,
		Element:  s.Name(),
		Pin:      s.out.Name(),
		Role:     msgbus.StreamProducer,
	})
	s.Logger().Info("Test source stopped", "frames", s.frames.Load(), "bytes", s.bytes.Load())
	return nil
}

// Frames returns the number of frames delivered so far
func (s *Source) Frames() uint64 {
	return s.frames.Load()
}

func (s *Source) run(ctx context.Context, limiter *rate.Limiter) {
	defer close(s.done)

	interval := time.Second / time.Duration(s.fps)
	var seq uint32
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if s.paused.Load() || !s.out.Negotiated() {
			continue
		}

		payload := s.payload(s.out.Capability(), seq)
		err := s.out.OnPinData(pin.Data{
			MediaType: s.MediaType(),
			StreamID:  s.streamID,
			Timestamp: time.Duration(seq) * interval,
			Seq:       seq,
			Keyframe:  seq%uint32(s.fps) == 0,
			Payload:   payload,
		})
		if err != nil {
			s.Logger().Debug("Frame not delivered", "seq", seq, "error", err)
		}

		seq++
		s.frames.Add(1)
		s.bytes.Add(uint64(len(payload)))
		if seq%uint32(s.fps) == 0 {
			s.postStats()
		}
		if s.limit > 0 && int(seq) >= s.limit {
			s.endStream()
			return
		}
	}
}

func (s *Source) endStream() {
	if s.ended.Swap(true) {
		return
	}
	if err := s.out.SendPinMsg(pin.Msg{Type: pin.MsgEndStream, StreamID: s.streamID}); err != nil {
		s.Logger().Debug("END_STREAM not delivered", "error", err)
	}
}

// payload renders one frame: a 440Hz tone for audio, a moving byte ramp for video
func (s *Source) payload(c capability.Capability, seq uint32) []byte {
	if c.MediaType == capability.MediaTypeAudio {
		return tone(c, time.Second/time.Duration(s.fps), seq)
	}
	buf := make([]byte, c.FrameBytes())
	for i := range buf {
		buf[i] = byte(seq) + byte(i)
	}
	return buf
}

const toneHz = 440

// tone renders frame seq of a sine wave as interleaved little-endian PCM
func tone(c capability.Capability, frame time.Duration, seq uint32) []byte {
	buf := make([]byte, c.SampleBytes(frame))
	bytesPerSample := c.SampleBits / 8
	if bytesPerSample != 2 {
		return buf
	}
	samples := len(buf) / (bytesPerSample * c.Channels)
	first := int(seq) * samples
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(2*math.Pi*toneHz*float64(first+i)/float64(c.SampleRate)) * 0.3 * math.MaxInt16)
		for ch := 0; ch < c.Channels; ch++ {
			binary.LittleEndian.PutUint16(buf[(i*c.Channels+ch)*2:], uint16(v))
		}
	}
	return buf
}

func (s *Source) postStats() {
	msgType := msgbus.MsgVideoStreamStats
	if s.MediaType() == capability.MediaTypeAudio {
		msgType = msgbus.MsgAudioStreamStats
	}
	s.Post(msgType, msgbus.StreamStats{
		Element:  s.Name(),
		StreamID: s.streamID,
		Frames:   s.frames.Load(),
		Bytes:    s.bytes.Load(),
		Rate:     float64(s.fps),
	})
}
