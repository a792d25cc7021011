package componentregistry

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/input/testsrc"
	"github.com/ivgotcrazy/jukey-sub001/output/player"
	"github.com/ivgotcrazy/jukey-sub001/output/rtpsender"
	"github.com/ivgotcrazy/jukey-sub001/pipeline"
)

func TestRegister(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))
	assert.Len(t, r.ListComponentTypes(), 8)

	err := Register(r)
	require.Error(t, err, "components are registered once")
	assert.True(t, errors.IsInvalid(err))

	assert.Error(t, Register(nil))
}

func TestRegister_RolesCoverReferenceChains(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))

	for _, tt := range []struct {
		media capability.MediaType
		role  element.Role
	}{
		{capability.MediaTypeAudio, element.RoleTester},
		{capability.MediaTypeAudio, element.RoleConverter},
		{capability.MediaTypeAudio, element.RoleEncoder},
		{capability.MediaTypeAudio, element.RolePlayer},
		{capability.MediaTypeAudio, element.RoleSender},
		{capability.MediaTypeVideo, element.RoleTester},
		{capability.MediaTypeVideo, element.RoleConverter},
		{capability.MediaTypeVideo, element.RolePlayer},
	} {
		assert.Len(t, r.Registrations(tt.media, tt.role), 1, "%s %s", tt.media, tt.role)
	}
}

// The audio test source offers 44.1/48kHz PCM and the sender takes G.711, so
// auto-linking has to insert a converter and an encoder.
func TestAutoLink_AudioToRTP(t *testing.T) {
	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	r := component.NewRegistry()
	require.NoError(t, Register(r))

	p, err := pipeline.New("call", r, component.Dependencies{})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.AddElement(testsrc.AudioComponent, element.Properties{"name": "mic"})
	require.NoError(t, err)
	uplink, err := p.AddElement(rtpsender.Component, element.Properties{
		"name":              "uplink",
		rtpsender.PropAddr: peer.LocalAddr().String(),
	})
	require.NoError(t, err)

	links, err := p.AutoLink("mic", "uplink")
	require.NoError(t, err)
	assert.Len(t, links, 3)
	assert.Len(t, p.Elements(), 4)
	assert.Equal(t, capability.NewAudio(capability.CodecPCMU, 1, 8, 8000), uplink.SinkPin("in").Capability())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Start(ctx))

	buf := make([]byte, 1500)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := peer.ReadFrom(buf)
	require.NoError(t, err)

	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(buf[:n]))
	assert.Equal(t, rtpsender.PayloadTypePCMU, pkt.PayloadType)
	assert.Len(t, pkt.Payload, 160, "20ms of 8kHz G.711")

	require.NoError(t, p.Stop(ctx))
}

func TestAutoLink_VideoToPlayer(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))

	p, err := pipeline.New("view", r, component.Dependencies{})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.AddElement(testsrc.VideoComponent, element.Properties{
		"name":         "cam",
		testsrc.PropFPS: 100,
	})
	require.NoError(t, err)
	screen, err := p.AddElement(player.VideoComponent, element.Properties{
		"name":          "screen",
		player.PropCaps: `{"media_type":"video","codec":["raw"],"pixel_format":["NV12"],"resolution":["640x480"]}`,
	})
	require.NoError(t, err)

	_, err = p.AutoLink("cam", "screen")
	require.NoError(t, err)
	assert.Equal(t, capability.NewVideo(capability.CodecRaw, capability.PixelFormatNV12, capability.Resolution{Width: 640, Height: 480}),
		screen.SinkPin("in").Capability())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Start(ctx))

	pl := screen.(*player.Player)
	require.Eventually(t, func() bool {
		rendered, _ := pl.Stats()
		return rendered >= 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop(ctx))
}

// The converter keeps the input resolution, so a 1280x720-only source cannot
// reach a 640x480-only player even though every edge passes the dry run.
func TestAutoLink_ChainThatCannotNegotiateIsRolledBack(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))

	p, err := pipeline.New("view", r, component.Dependencies{})
	require.NoError(t, err)
	defer p.Close()

	cam, err := p.AddElement(testsrc.VideoComponent, element.Properties{
		"name":            "cam",
		testsrc.PropCaps: `{"media_type":"video","codec":["raw"],"pixel_format":["I420"],"resolution":["1280x720"]}`,
	})
	require.NoError(t, err)
	screen, err := p.AddElement(player.VideoComponent, element.Properties{
		"name":          "screen",
		player.PropCaps: `{"media_type":"video","codec":["raw"],"pixel_format":["I420"],"resolution":["640x480"]}`,
	})
	require.NoError(t, err)

	links, err := p.AutoLink("cam", "screen")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoCommonCap))
	assert.Empty(t, links)

	assert.Len(t, p.Elements(), 2, "unused candidates are destroyed")
	assert.Empty(t, p.Links())
	assert.False(t, cam.SourcePin("out").Connected())
	assert.False(t, cam.SourcePin("out").Negotiated())
	assert.False(t, screen.SinkPin("in").Connected())
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPipelineElementLogs(t *testing.T) {
	var out logBuffer
	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := component.NewRegistry()
	require.NoError(t, Register(r))
	p, err := pipeline.New("view", r, component.Dependencies{Logger: logger})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.AddElement(testsrc.VideoComponent, element.Properties{"name": "cam"})
	require.NoError(t, err)

	var stateLines int
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		assert.LessOrEqual(t, strings.Count(line, `"element":`), 1, line)
		if strings.Contains(line, `"msg":"Element state changed"`) {
			stateLines++
			assert.Contains(t, line, `"element":"cam"`)
			assert.Contains(t, line, `"component":"testsrc"`)
			assert.Contains(t, line, `"pipeline":"view"`)
		}
	}
	assert.Positive(t, stateLines)
}
