package converter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/pin"
	"github.com/ivgotcrazy/jukey-sub001/testutil"
)

var (
	qvga = capability.Resolution{Width: 320, Height: 240}
	vga  = capability.Resolution{Width: 640, Height: 480}
)

func rawVideo(format capability.PixelFormat, res ...capability.Resolution) capability.Set {
	return capability.Set{
		MediaType:    capability.MediaTypeVideo,
		Codecs:       []capability.Codec{capability.CodecRaw},
		PixelFormats: []capability.PixelFormat{format},
		Resolutions:  res,
	}
}

func newVideoConverter(t *testing.T, host element.Host) *Converter {
	t.Helper()
	e, err := NewVideo(component.Dependencies{})
	require.NoError(t, err)
	require.NoError(t, e.Init(host, element.Properties{"name": "conv"}))
	return e.(*Converter)
}

// i420Frame builds a frame whose planes hold constant Y, U and V values
func i420Frame(res capability.Resolution, y, u, v byte) []byte {
	luma := res.Width * res.Height
	chroma := luma / 4
	buf := make([]byte, luma+2*chroma)
	for i := range buf {
		switch {
		case i < luma:
			buf[i] = y
		case i < luma+chroma:
			buf[i] = u
		default:
			buf[i] = v
		}
	}
	return buf
}

func TestConverter_TwoPhaseNegotiation(t *testing.T) {
	host := testutil.NewMockHost("test")
	src := testutil.NewMockSource(t, host, "cam", rawVideo(capability.PixelFormatI420, qvga))
	conv := newVideoConverter(t, host)
	sink := testutil.NewMockSink(t, host, "render", rawVideo(capability.PixelFormatNV12, qvga))

	require.NoError(t, conv.SourcePin("out").AddSinkPin(sink.In()))
	assert.False(t, conv.SourcePin("out").Negotiated(), "output waits for the input format")

	require.NoError(t, src.Out().AddSinkPin(conv.SinkPin("in")))
	assert.Equal(t, capability.NewVideo(capability.CodecRaw, capability.PixelFormatI420, qvga),
		conv.SinkPin("in").Capability())
	assert.Equal(t, capability.NewVideo(capability.CodecRaw, capability.PixelFormatNV12, qvga),
		conv.SourcePin("out").Capability())
	assert.Equal(t, []capability.Capability{conv.SourcePin("out").Capability()}, sink.Capabilities())

	require.NoError(t, src.Push(pin.Data{StreamID: "s1", Seq: 7, Payload: i420Frame(qvga, 16, 100, 200)}))
	frames := sink.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(7), frames[0].Seq)

	luma := qvga.Width * qvga.Height
	nv12 := frames[0].Payload
	require.Len(t, nv12, luma*3/2)
	assert.Equal(t, byte(16), nv12[0])
	assert.Equal(t, []byte{100, 200, 100, 200}, nv12[luma:luma+4], "chroma is interleaved")

	converted, dropped := conv.Stats()
	assert.Equal(t, uint64(1), converted)
	assert.Zero(t, dropped)
}

func TestConverter_PrefersIdentity(t *testing.T) {
	host := testutil.NewMockHost("test")
	src := testutil.NewMockSource(t, host, "cam", rawVideo(capability.PixelFormatNV12, qvga))
	conv := newVideoConverter(t, host)
	sink := testutil.NewMockSink(t, host, "render", DefaultVideoCaps)

	require.NoError(t, src.Out().AddSinkPin(conv.SinkPin("in")))
	require.NoError(t, conv.SourcePin("out").AddSinkPin(sink.In()))

	assert.Equal(t, capability.PixelFormatNV12, conv.SourcePin("out").Capability().PixelFormat)

	payload := make([]byte, qvga.Width*qvga.Height*3/2)
	require.NoError(t, src.Push(pin.Data{Payload: payload}))
	require.Len(t, sink.Frames(), 1)
	assert.Len(t, sink.Frames()[0].Payload, len(payload))
}

func TestConverter_DownstreamFailureRejectsInputCandidate(t *testing.T) {
	host := testutil.NewMockHost("test")
	src := testutil.NewMockSource(t, host, "cam", rawVideo(capability.PixelFormatI420, vga, qvga))
	conv := newVideoConverter(t, host)
	sink := testutil.NewMockSink(t, host, "render", rawVideo(capability.PixelFormatNV12, qvga))

	require.NoError(t, conv.SourcePin("out").AddSinkPin(sink.In()))
	require.NoError(t, src.Out().AddSinkPin(conv.SinkPin("in")))

	assert.Equal(t, qvga, conv.SinkPin("in").Capability().Resolution,
		"640x480 has no downstream taker, so upstream falls back to 320x240")
	assert.Equal(t, capability.PixelFormatNV12, sink.In().Capability().PixelFormat)
}

func TestConverter_DropsUntilOutputNegotiated(t *testing.T) {
	host := testutil.NewMockHost("test")
	src := testutil.NewMockSource(t, host, "cam", rawVideo(capability.PixelFormatI420, qvga))
	conv := newVideoConverter(t, host)

	require.NoError(t, src.Out().AddSinkPin(conv.SinkPin("in")))
	require.NoError(t, src.Push(pin.Data{Payload: i420Frame(qvga, 1, 2, 3)}))

	_, dropped := conv.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestConverter_InvalidProperties(t *testing.T) {
	e, err := NewVideo(component.Dependencies{})
	require.NoError(t, err)
	err = e.Init(testutil.NewMockHost("test"), element.Properties{
		PropOutputCaps: rawVideo(capability.PixelFormatYUY2, vga),
	})
	assert.Error(t, err)
}

func TestConvertPixels_RoundTrip(t *testing.T) {
	i420 := capability.NewVideo(capability.CodecRaw, capability.PixelFormatI420, qvga)
	nv12 := capability.NewVideo(capability.CodecRaw, capability.PixelFormatNV12, qvga)

	frame := i420Frame(qvga, 1, 2, 3)
	frame[qvga.Width*qvga.Height] = 9

	packed, err := convertFrame(frame, i420, nv12)
	require.NoError(t, err)
	back, err := convertFrame(packed, nv12, i420)
	require.NoError(t, err)
	assert.Equal(t, frame, back)

	_, err = convertFrame(frame[:10], i420, nv12)
	assert.Error(t, err, "short frame")
	_, err = convertFrame(frame, i420, capability.NewVideo(capability.CodecRaw, capability.PixelFormatNV12, vga))
	assert.Error(t, err, "scaling is not supported")
}

func pcm(samples ...int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}

func TestConvertSamples(t *testing.T) {
	stereo48k := capability.NewAudio(capability.CodecRaw, 2, 16, 48000)
	mono8k := capability.NewAudio(capability.CodecRaw, 1, 16, 8000)

	in := make([]int16, 0, 2*48)
	for i := 0; i < 48; i++ {
		in = append(in, 1000, 3000)
	}
	out, err := convertSamples(pcm(in...), stereo48k, mono8k)
	require.NoError(t, err)
	require.Len(t, out, 8*2, "1ms at 48kHz becomes 8 samples at 8kHz")
	for i := 0; i < 8; i++ {
		assert.Equal(t, int16(2000), int16(binary.LittleEndian.Uint16(out[2*i:])))
	}

	mono16k := capability.NewAudio(capability.CodecRaw, 1, 16, 16000)
	up, err := convertSamples(pcm(0, 100), mono8k, mono16k)
	require.NoError(t, err)
	assert.Equal(t, pcm(0, 50, 100, 100), up, "linear interpolation, last sample held")

	_, err = convertSamples([]byte{1, 2, 3}, stereo48k, mono8k)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))
	assert.Len(t, r.Registrations(capability.MediaTypeVideo, element.RoleConverter), 1)
	assert.Len(t, r.Registrations(capability.MediaTypeAudio, element.RoleConverter), 1)
}
