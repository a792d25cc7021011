package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivgotcrazy/jukey-sub001/config"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/metric"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

type fakeSource struct {
	handlers map[msgbus.MsgType]msgbus.Handler
	failOn   msgbus.MsgType
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[msgbus.MsgType]msgbus.Handler)}
}

func (f *fakeSource) Name() string { return "camera" }

func (f *fakeSource) SubscribeMsg(t msgbus.MsgType, _ string, h msgbus.Handler) error {
	if t == f.failOn {
		return fmt.Errorf("subscriber exists")
	}
	f.handlers[t] = h
	return nil
}

func (f *fakeSource) UnsubscribeMsg(t msgbus.MsgType, _ string) error {
	delete(f.handlers, t)
	return nil
}

func (f *fakeSource) deliver(t *testing.T, msg msgbus.Msg) error {
	t.Helper()
	h, ok := f.handlers[msg.Type]
	require.True(t, ok, "no handler for %s", msg.Type)
	return h(context.Background(), msg)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "jukey.camera.run_state", Subject("jukey", "camera", msgbus.MsgRunState))
	assert.Equal(t, "studio.p-1.negotiate_failed", Subject("studio", "p-1", msgbus.MsgNegotiateFailed))
}

func TestBridge_Forward(t *testing.T) {
	pub := &fakePublisher{}
	registry := metric.NewMetricsRegistry()
	b := New(pub, WithSubjectPrefix("studio"), WithMetrics(registry))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	src := newFakeSource()
	require.NoError(t, b.Attach(src))
	assert.Len(t, src.handlers, len(DefaultTypes))

	require.NoError(t, src.deliver(t, msgbus.Msg{
		ID:      "m1",
		Type:    msgbus.MsgRunState,
		Src:     "camera",
		Payload: msgbus.RunState{Pipeline: "camera", State: "RUNNING"},
	}))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "studio.camera.run_state", pub.msgs[0].subject)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &env))
	assert.Equal(t, "m1", env.ID)
	assert.Equal(t, msgbus.MsgRunState, env.Type)
	assert.Equal(t, "camera", env.Pipeline)
	assert.True(t, fixed.Equal(env.Timestamp))
	assert.JSONEq(t, `{"pipeline":"camera","state":"RUNNING"}`, string(env.Payload))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		registry.CoreMetrics().NotificationsSent.WithLabelValues("studio.camera.run_state")))

	b.Detach(src)
	assert.Empty(t, src.handlers)
}

func TestBridge_Errors(t *testing.T) {
	pub := &fakePublisher{err: nats.ErrConnectionClosed}
	b := New(pub, WithTypes(msgbus.MsgPlayProgress))
	src := newFakeSource()
	require.NoError(t, b.Attach(src))
	assert.Len(t, src.handlers, 1)

	err := src.deliver(t, msgbus.Msg{Type: msgbus.MsgPlayProgress, Payload: msgbus.PlayProgress{Element: "render"}})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	pub.err = nil
	err = src.deliver(t, msgbus.Msg{Type: msgbus.MsgPlayProgress, Payload: func() {}})
	assert.Equal(t, errors.CodeInvalidParam, errors.CodeOf(err))

	failing := newFakeSource()
	failing.failOn = msgbus.MsgRunState
	err = New(pub).Attach(failing)
	require.Error(t, err)
	assert.Empty(t, failing.handlers, "partial subscriptions are removed")

	assert.Equal(t, errors.CodeInvalidParam, errors.CodeOf(New(nil).Attach(src)))
}

func TestConnect_RequiresServer(t *testing.T) {
	_, err := Connect(context.Background(), config.NATSConfig{}, "jukey", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))
	assert.True(t, errors.IsInvalid(err))
}

func TestConnectionOptions(t *testing.T) {
	c := &Conn{logger: nil}
	opts := c.connectionOptions(config.NATSConfig{
		URLs:          []string{"nats://localhost:4222"},
		MaxReconnects: 7,
		ReconnectWait: 3 * time.Second,
		Username:      "user",
		Password:      "secret",
		Token:         "tok",
	}, "jukey-camera")

	o := nats.GetDefaultOptions()
	for _, opt := range opts {
		require.NoError(t, opt(&o))
	}
	assert.Equal(t, 7, o.MaxReconnect)
	assert.Equal(t, 3*time.Second, o.ReconnectWait)
	assert.Equal(t, "user", o.User)
	assert.Equal(t, "secret", o.Password)
	assert.Equal(t, "tok", o.Token)
	assert.Equal(t, "jukey-camera", o.Name)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "unknown", ConnectionStatus(9).String())
}
