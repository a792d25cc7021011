package testsrc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
	"github.com/ivgotcrazy/jukey-sub001/testutil"
)

var vga = capability.Resolution{Width: 640, Height: 480}

func newVideo(t *testing.T, host element.Host, props element.Properties) *Source {
	t.Helper()
	e, err := NewVideo(component.Dependencies{})
	require.NoError(t, err)
	require.NoError(t, e.Init(host, props))
	return e.(*Source)
}

func TestSource_DeliversNegotiatedFrames(t *testing.T) {
	host := testutil.NewMockHost("test")
	src := newVideo(t, host, element.Properties{"name": "cam", PropFPS: 200, PropFrames: 5})
	sink := testutil.NewMockSink(t, host, "render",
		capability.FromCapability(capability.NewVideo(capability.CodecRaw, capability.PixelFormatNV12, vga)))

	require.NoError(t, src.SourcePin("out").AddSinkPin(sink.In()))
	assert.Equal(t, capability.PixelFormatNV12, src.SourcePin("out").Capability().PixelFormat)

	require.NoError(t, src.Start())
	frames := testutil.WaitForFrames(t, sink, 5, 2*time.Second)
	require.NoError(t, src.Stop())

	require.Len(t, sink.Frames(), 5, "frame limit is honoured")
	for i, f := range frames {
		assert.Equal(t, uint32(i), f.Seq)
		assert.Equal(t, "cam-video", f.StreamID)
		assert.Equal(t, time.Duration(i)*5*time.Millisecond, f.Timestamp)
		assert.Len(t, f.Payload, 640*480*3/2)
	}
	assert.True(t, frames[0].Keyframe)
	assert.Equal(t, uint64(5), src.Frames())

	msgs := sink.Msgs()
	require.Len(t, msgs, 2)
	assert.Equal(t, pin.MsgSetStream, msgs[0].Type)
	assert.Equal(t, pin.MsgEndStream, msgs[1].Type)

	streams := host.Posted(msgbus.MsgAddElementStream, msgbus.MsgDelElementStream)
	require.Len(t, streams, 2)
	assert.Equal(t, msgbus.MsgAddElementStream, streams[0].Type)
	assert.Equal(t, msgbus.ElementStream{StreamID: "cam-video", Element: "cam", Pin: "out", Role: msgbus.StreamProducer},
		streams[0].Payload)
	assert.Equal(t, msgbus.MsgDelElementStream, streams[1].Type)
}

func TestSource_PauseResume(t *testing.T) {
	host := testutil.NewMockHost("test")
	src := newVideo(t, host, element.Properties{"name": "cam", PropFPS: 200})
	sink := testutil.NewMockSink(t, host, "render", DefaultVideoCaps)
	require.NoError(t, src.SourcePin("out").AddSinkPin(sink.In()))

	require.NoError(t, src.Start())
	testutil.WaitForFrames(t, sink, 3, 2*time.Second)

	require.NoError(t, src.Pause())
	paused := len(sink.Frames())
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(sink.Frames()), paused+1, "at most one frame in flight while pausing")

	require.NoError(t, src.Resume())
	testutil.WaitForFrames(t, sink, paused+3, 2*time.Second)
	require.NoError(t, src.Stop())
}

func TestSource_WaitsForNegotiation(t *testing.T) {
	host := testutil.NewMockHost("test")
	src := newVideo(t, host, element.Properties{"name": "cam", PropFPS: 500})

	require.NoError(t, src.Start())
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, src.Stop())
	assert.Zero(t, src.Frames(), "nothing is produced on an unlinked pin")
}

func TestSource_Audio(t *testing.T) {
	host := testutil.NewMockHost("test")
	e, err := NewAudio(component.Dependencies{})
	require.NoError(t, err)
	require.NoError(t, e.Init(host, element.Properties{"name": "tone", PropFrames: 2, PropFPS: 100}))

	sink := testutil.NewMockSink(t, host, "speaker",
		capability.FromCapability(capability.NewAudio(capability.CodecRaw, 1, 16, 44100)))
	require.NoError(t, e.SourcePin("out").AddSinkPin(sink.In()))

	require.NoError(t, e.Start())
	frames := testutil.WaitForFrames(t, sink, 2, 2*time.Second)
	require.NoError(t, e.Stop())

	assert.Equal(t, capability.MediaTypeAudio, frames[0].MediaType)
	assert.Len(t, frames[0].Payload, 441*2, "10ms of mono 16 bit at 44.1kHz")
}

func TestSource_InvalidProperties(t *testing.T) {
	tests := []struct {
		name  string
		props element.Properties
	}{
		{"zero fps", element.Properties{PropFPS: 0}},
		{"huge fps", element.Properties{PropFPS: 100000}},
		{"malformed caps", element.Properties{PropCaps: `{"media_type":"video"`}},
		{"audio caps", element.Properties{PropCaps: DefaultAudioCaps}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewVideo(component.Dependencies{})
			require.NoError(t, err)
			assert.Error(t, e.Init(testutil.NewMockHost("test"), tt.props))
			assert.Equal(t, element.StateCreated, e.State())
		})
	}
}

func TestRegister(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))

	regs := r.Registrations(capability.MediaTypeVideo, element.RoleTester)
	require.Len(t, regs, 1)
	assert.Equal(t, VideoComponent, regs[0].Name)
	assert.Equal(t, element.MainTypeSrc, regs[0].MainType)
	assert.Len(t, r.Registrations(capability.MediaTypeAudio, element.RoleTester), 1)

	assert.Error(t, Register(r), "duplicate registration")
}
