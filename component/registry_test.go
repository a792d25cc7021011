package component

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
	"github.com/ivgotcrazy/jukey-sub001/syncmgr"
)

var videoSet = capability.MustParseSet(
	`{"media_type":"video","codec":["raw"],"pixel_format":["I420"],"resolution":["640x480"]}`)

type nopHost struct{}

func (nopHost) Name() string                                           { return "p" }
func (nopHost) Post(msgbus.Msg) error                                  { return nil }
func (nopHost) Send(context.Context, msgbus.Msg) error                 { return nil }
func (nopHost) Subscribe(msgbus.MsgType, string, msgbus.Handler) error { return nil }
func (nopHost) SyncManager() *syncmgr.Manager                          { return nil }
func (nopHost) Logger() *slog.Logger                                   { return slog.Default() }

type mockConverter struct {
	*element.Base
}

func (m *mockConverter) DoInit(element.Properties) error {
	if _, err := m.AddSinkPin("in", videoSet); err != nil {
		return err
	}
	_, err := m.AddSourcePin("out", videoSet)
	return err
}

func (m *mockConverter) DoStart() error { return nil }

func newMockConverter(deps Dependencies) (element.Element, error) {
	m := &mockConverter{}
	m.Base = element.NewBase(element.Descriptor{
		Name:      "converter",
		MainType:  element.MainTypeFilter,
		SubType:   element.RoleConverter,
		MediaType: capability.MediaTypeVideo,
	}, m, deps.GetLoggerWithComponent("converter"))
	return m, nil
}

func converterConfig(name string) RegistrationConfig {
	return RegistrationConfig{
		Name:        name,
		Factory:     newMockConverter,
		MainType:    element.MainTypeFilter,
		SubType:     element.RoleConverter,
		MediaType:   capability.MediaTypeVideo,
		Description: "test converter",
		Version:     "1.0.0",
	}
}

func createInited(t *testing.T, r *Registry, componentID, owner, name string) element.Element {
	t.Helper()
	e, err := r.CreateComponent(componentID, owner, Dependencies{})
	require.NoError(t, err)
	require.NoError(t, e.Init(nopHost{}, element.Properties{"name": name}))
	require.NoError(t, r.RegisterInstance(owner, e))
	return e
}

func TestRegistry_RegisterFactory(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterWithConfig(converterConfig("video-converter")))

	err := r.RegisterWithConfig(converterConfig("video-converter"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	tests := []struct {
		name   string
		mutate func(*RegistrationConfig)
	}{
		{"empty name", func(c *RegistrationConfig) { c.Name = "" }},
		{"bad name", func(c *RegistrationConfig) { c.Name = "a b" }},
		{"nil factory", func(c *RegistrationConfig) { c.Factory = nil }},
		{"bad main type", func(c *RegistrationConfig) { c.MainType = "X" }},
		{"no role", func(c *RegistrationConfig) { c.SubType = "" }},
		{"no media", func(c *RegistrationConfig) { c.MediaType = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := converterConfig("other")
			tt.mutate(&cfg)
			assert.Equal(t, errors.CodeInvalidParam, errors.CodeOf(r.RegisterWithConfig(cfg)))
		})
	}

	assert.Equal(t, []string{"video-converter"}, r.ListComponentTypes())
	info := r.ListAvailable()["video-converter"]
	assert.Equal(t, element.RoleConverter, info.SubType)
}

func TestRegistry_CreateComponent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterWithConfig(converterConfig("video-converter")))
	require.NoError(t, r.RegisterWithConfig(RegistrationConfig{
		Name:      "broken",
		MainType:  element.MainTypeSrc,
		SubType:   element.RoleTester,
		MediaType: capability.MediaTypeVideo,
		Factory: func(Dependencies) (element.Element, error) {
			return nil, fmt.Errorf("no device")
		},
	}))

	_, err := r.CreateComponent("missing", "p", Dependencies{})
	assert.True(t, errors.Is(err, errors.ErrComponentNotFound))
	assert.Equal(t, errors.CodeFailed, errors.CodeOf(err))

	_, err = r.CreateComponent("", "p", Dependencies{})
	assert.Equal(t, errors.CodeInvalidParam, errors.CodeOf(err))

	_, err = r.CreateComponent("broken", "p", Dependencies{})
	assert.ErrorContains(t, err, "no device")

	e, err := r.CreateComponent("video-converter", "p", Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, element.StateCreated, e.State())
}

func TestRegistry_Instances(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterWithConfig(converterConfig("video-converter")))

	b := createInited(t, r, "video-converter", "p1", "conv-b")
	a := createInited(t, r, "video-converter", "p1", "conv-a")
	createInited(t, r, "video-converter", "p2", "conv-c")

	dup, err := r.CreateComponent("video-converter", "p1", Dependencies{})
	require.NoError(t, err)
	require.NoError(t, dup.Init(nopHost{}, element.Properties{"name": "conv-a"}))
	assert.True(t, errors.Is(r.RegisterInstance("p1", dup), errors.ErrElementExists))

	got := r.GetElements("p1", capability.MediaTypeVideo, element.RoleConverter)
	assert.Equal(t, []element.Element{a, b}, got, "ordered by name, scoped to owner")
	assert.Empty(t, r.GetElements("p1", capability.MediaTypeAudio, element.RoleConverter))
	assert.Empty(t, r.GetElements("p1", capability.MediaTypeVideo, element.RoleEncoder))

	r.UnregisterInstance("p1", "conv-a")
	assert.Nil(t, r.Instance("p1", "conv-a"))
	assert.Len(t, r.GetElements("p1", capability.MediaTypeVideo, element.RoleConverter), 1)
}

func TestQueryInterface(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterWithConfig(converterConfig("video-converter")))
	createInited(t, r, "video-converter", "p", "conv")

	s, err := QueryInterface[element.Starter](r, "p", "conv")
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = QueryInterface[element.Pauser](r, "p", "conv")
	assert.Equal(t, errors.CodeFailed, errors.CodeOf(err))

	_, err = QueryInterface[element.Element](r, "p", "missing")
	assert.True(t, errors.Is(err, errors.ErrElementNotFound))
}

func TestRegistry_Registrations(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterWithConfig(converterConfig("z-converter")))
	require.NoError(t, r.RegisterWithConfig(converterConfig("a-converter")))

	regs := r.Registrations(capability.MediaTypeVideo, element.RoleConverter)
	require.Len(t, regs, 2)
	assert.Equal(t, "a-converter", regs[0].Name)
	assert.Nil(t, regs[0].Factory)
	assert.Empty(t, r.Registrations(capability.MediaTypeAudio, element.RoleConverter))
}
