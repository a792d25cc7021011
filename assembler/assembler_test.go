package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
	"github.com/ivgotcrazy/jukey-sub001/syncmgr"
)

func videoSet(formats ...string) capability.Set {
	s := capability.Set{
		MediaType:   capability.MediaTypeVideo,
		Codecs:      []capability.Codec{capability.CodecRaw},
		Resolutions: []capability.Resolution{{Width: 640, Height: 480}},
	}
	for _, f := range formats {
		s.PixelFormats = append(s.PixelFormats, capability.PixelFormat(f))
	}
	return s
}

type nopHost struct{}

func (nopHost) Name() string                                           { return "p" }
func (nopHost) Post(msgbus.Msg) error                                  { return nil }
func (nopHost) Send(context.Context, msgbus.Msg) error                 { return nil }
func (nopHost) Subscribe(msgbus.MsgType, string, msgbus.Handler) error { return nil }
func (nopHost) SyncManager() *syncmgr.Manager                          { return nil }
func (nopHost) Logger() *slog.Logger                                   { return slog.Default() }

// node is a configurable element; filters negotiate their output once their input
// is fixed
type node struct {
	*element.Base

	in, out    *capability.Set
	failCommit bool
	// passive leaves outputs unnegotiated when the input is fixed
	passive bool
}

func newNode(t *testing.T, name string, mainType element.MainType, role element.Role, in, out *capability.Set) *node {
	t.Helper()
	n := &node{in: in, out: out}
	n.Base = element.NewBase(element.Descriptor{
		Name:      name,
		MainType:  mainType,
		SubType:   role,
		MediaType: capability.MediaTypeVideo,
	}, n, nil)
	require.NoError(t, n.Init(nopHost{}, nil))
	return n
}

func (n *node) DoInit(element.Properties) error {
	if n.in != nil {
		if _, err := n.AddSinkPin("in", *n.in); err != nil {
			return err
		}
	}
	if n.out != nil {
		if _, err := n.AddSourcePin("out", *n.out); err != nil {
			return err
		}
	}
	return nil
}

func (n *node) OnSinkPinNegotiated(_ *pin.SinkPin, _ capability.Capability) error {
	if n.failCommit {
		return fmt.Errorf("converter busy")
	}
	if n.passive {
		return nil
	}
	for _, sp := range n.SourcePins() {
		if sp.Connected() && !sp.Negotiated() {
			if _, err := n.NegotiateSourcePin(sp); err != nil {
				return err
			}
		}
	}
	return nil
}

type provider map[element.Role][]element.Element

func (p provider) GetElements(_ capability.MediaType, role element.Role) []element.Element {
	return p[role]
}

func ptr(s capability.Set) *capability.Set { return &s }

func capturer(t *testing.T, name string) *node {
	return newNode(t, name, element.MainTypeSrc, element.RoleCapturer, nil, ptr(videoSet("I420")))
}

func player(t *testing.T, name string) *node {
	return newNode(t, name, element.MainTypeSink, element.RolePlayer, ptr(videoSet("NV12")), nil)
}

func converter(t *testing.T, name string, in ...string) *node {
	return newNode(t, name, element.MainTypeFilter, element.RoleConverter, ptr(videoSet(in...)), ptr(videoSet("NV12")))
}

func TestAssembleElements(t *testing.T) {
	a := New(nil, nil)

	tests := []struct {
		name       string
		begin, end element.Role
		want       []element.Role
		ok         bool
	}{
		{"capturer to player", element.RoleCapturer, element.RolePlayer, []element.Role{element.RoleConverter}, true},
		{"capturer to sender", element.RoleCapturer, element.RoleSender,
			[]element.Role{element.RoleConverter, element.RoleEncoder}, true},
		{"receiver to player", element.RoleReceiver, element.RolePlayer,
			[]element.Role{element.RoleDecoder, element.RoleConverter}, true},
		{"tester to muxer", element.RoleTester, element.RoleMuxer,
			[]element.Role{element.RoleConverter, element.RoleEncoder}, true},
		{"mixer to player", element.RoleMixer, element.RolePlayer, []element.Role{}, true},
		{"adjacent", element.RoleConverter, element.RolePlayer, []element.Role{}, true},
		{"reversed", element.RolePlayer, element.RoleCapturer, nil, false},
		{"same role", element.RoleConverter, element.RoleConverter, nil, false},
		{"unrelated", element.RoleMuxer, element.RoleSender, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := a.AssembleElements(tt.begin, tt.end)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	a := New(nil, nil)
	paths := a.Paths()

	assert.Contains(t, paths, []element.Role{element.RoleCapturer, element.RoleConverter, element.RolePlayer})
	assert.Contains(t, paths, []element.Role{
		element.RoleReceiver, element.RoleDecoder, element.RoleConverter, element.RoleEncoder, element.RoleMuxer,
	})
	for _, p := range paths {
		assert.NotEqual(t, element.RoleConverter, p[0], "converter has predecessors")
	}
}

func TestFindAvailableLinks_NoCandidate(t *testing.T) {
	cam := capturer(t, "cam")
	render := player(t, "render")

	a := New(provider{}, nil)
	chains, ok := a.FindAvailableLinks(Endpoint{Element: cam}, Endpoint{Element: render})
	assert.False(t, ok)
	assert.Empty(t, chains)
}

func TestFindAvailableLinks_FiltersInfeasibleCandidates(t *testing.T) {
	cam := capturer(t, "cam")
	render := player(t, "render")
	yuy2Only := converter(t, "conv-yuy2", "YUY2")
	good := converter(t, "conv-i420", "I420", "NV12")

	a := New(provider{element.RoleConverter: {yuy2Only, good}}, nil)
	chains, ok := a.FindAvailableLinks(Endpoint{Element: cam}, Endpoint{Element: render})
	require.True(t, ok)
	require.Len(t, chains, 1)
	assert.Equal(t, []element.Element{good}, chains[0].Elements())
	assert.Equal(t, cam.SourcePin("out"), chains[0].Source)
	assert.Equal(t, render.SinkPin("in"), chains[0].Sink)

	assert.False(t, cam.SourcePin("out").Connected(), "search does not link")
	assert.False(t, good.SinkPin("in").Connected())
}

func TestTryLinkNodes_AllChains(t *testing.T) {
	cam := capturer(t, "cam")
	c1 := converter(t, "c1", "I420")
	c2 := converter(t, "c2", "I420", "NV12")
	render := player(t, "render")

	rows := [][]LinkNode{{
		{Element: c1, Sink: c1.SinkPin("in"), Source: c1.SourcePin("out")},
		{Element: c2, Sink: c2.SinkPin("in"), Source: c2.SourcePin("out")},
	}}

	chains := TryLinkNodes(cam.SourcePin("out"), rows, render.SinkPin("in"))
	require.Len(t, chains, 2)
	assert.Equal(t, c1, chains[0][0].Element)
	assert.Equal(t, c2, chains[1][0].Element)
}

func TestTryAutoLink(t *testing.T) {
	cam := capturer(t, "cam")
	render := player(t, "render")
	conv := converter(t, "conv", "I420", "NV12")

	a := New(provider{element.RoleConverter: {conv}}, nil)
	chain, links, err := a.TryAutoLink(Endpoint{Element: cam}, Endpoint{Element: render})
	require.NoError(t, err)

	assert.Equal(t, []element.Element{conv}, chain.Elements())
	assert.Equal(t, []Link{
		{Source: "cam.out", Sink: "conv.in"},
		{Source: "conv.out", Sink: "render.in"},
	}, links)

	require.True(t, cam.SourcePin("out").Negotiated())
	assert.Equal(t, capability.PixelFormatI420, cam.SourcePin("out").Capability().PixelFormat)
	require.True(t, render.SinkPin("in").Negotiated())
	assert.Equal(t, capability.PixelFormatNV12, render.SinkPin("in").Capability().PixelFormat)
}

func TestTryAutoLink_DirectLink(t *testing.T) {
	conv := converter(t, "conv", "I420")
	render := player(t, "render")

	a := New(provider{}, nil)
	chain, links, err := a.TryAutoLink(Endpoint{Element: conv}, Endpoint{Element: render})
	require.NoError(t, err)
	assert.Empty(t, chain.Nodes)
	assert.Equal(t, []Link{{Source: "conv.out", Sink: "render.in"}}, links)
}

func TestTryAutoLink_NoChain(t *testing.T) {
	cam := capturer(t, "cam")
	render := player(t, "render")

	a := New(provider{element.RoleConverter: {converter(t, "conv", "YUY2")}}, nil)
	_, _, err := a.TryAutoLink(Endpoint{Element: cam}, Endpoint{Element: render})
	assert.True(t, errors.Is(err, errors.ErrNoAvailableLink))
	assert.Equal(t, errors.CodeFailed, errors.CodeOf(err))

	_, _, err = a.TryAutoLink(Endpoint{}, Endpoint{Element: render})
	assert.Equal(t, errors.CodeInvalidParam, errors.CodeOf(err))
}

func TestTryAutoLink_RollsBackOnMidChainFailure(t *testing.T) {
	cam := capturer(t, "cam")
	recorder := newNode(t, "recorder", element.MainTypeSink, element.RolePlayer, ptr(videoSet("I420")), nil)
	require.NoError(t, cam.SourcePin("out").AddSinkPin(recorder.SinkPin("in")))
	require.True(t, cam.SourcePin("out").Negotiated(), "fixed capability is pushed to later sinks")

	render := player(t, "render")
	conv := converter(t, "conv", "I420", "NV12")
	conv.failCommit = true

	a := New(provider{element.RoleConverter: {conv}}, nil)
	_, links, err := a.TryAutoLink(Endpoint{Element: cam}, Endpoint{Element: render})
	require.Error(t, err)
	assert.Nil(t, links)

	assert.False(t, render.SinkPin("in").Connected(), "downstream link is removed")
	assert.False(t, conv.SourcePin("out").Connected())
	assert.False(t, conv.SinkPin("in").Connected())
	assert.Equal(t, []*pin.SinkPin{recorder.SinkPin("in")}, cam.SourcePin("out").SinkPins())
}

func TestTryAutoLink_SkipsChainThatDoesNotNegotiate(t *testing.T) {
	cam := capturer(t, "cam")
	render := player(t, "render")
	stuck := converter(t, "stuck", "I420")
	stuck.passive = true
	conv := converter(t, "conv", "I420")

	a := New(provider{element.RoleConverter: {stuck, conv}}, nil)
	chains, ok := a.FindAvailableLinks(Endpoint{Element: cam}, Endpoint{Element: render})
	require.True(t, ok)
	require.Len(t, chains, 2, "both chains pass the dry run")

	chain, links, err := a.TryAutoLink(Endpoint{Element: cam}, Endpoint{Element: render})
	require.NoError(t, err)
	assert.Equal(t, []element.Element{conv}, chain.Elements())
	assert.Equal(t, []Link{
		{Source: "cam.out", Sink: "conv.in"},
		{Source: "conv.out", Sink: "render.in"},
	}, links)

	assert.False(t, stuck.SinkPin("in").Connected())
	assert.False(t, stuck.SourcePin("out").Connected())
	assert.True(t, render.SinkPin("in").Negotiated())
}

func TestTryAutoLink_NoChainNegotiates(t *testing.T) {
	cam := capturer(t, "cam")
	render := player(t, "render")
	stuck := converter(t, "stuck", "I420")
	stuck.passive = true

	a := New(provider{element.RoleConverter: {stuck}}, nil)
	_, links, err := a.TryAutoLink(Endpoint{Element: cam}, Endpoint{Element: render})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoCommonCap))
	assert.Nil(t, links)

	assert.False(t, cam.SourcePin("out").Connected())
	assert.False(t, cam.SourcePin("out").Negotiated())
	assert.False(t, render.SinkPin("in").Connected())
}
