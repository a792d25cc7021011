package msgbus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivgotcrazy/jukey-sub001/errors"
)

func newStartedBus(t *testing.T) *Bus {
	t.Helper()
	b := New(Config{Name: "test"})
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Close(time.Second) })
	return b
}

func TestSubscribe(t *testing.T) {
	b := newStartedBus(t)
	noop := func(context.Context, Msg) error { return nil }

	require.NoError(t, b.Subscribe(MsgRunState, "ui", noop))
	require.NoError(t, b.Subscribe(MsgRunState, "logger", noop))
	assert.Equal(t, []string{"ui", "logger"}, b.Subscribers(MsgRunState))

	err := b.Subscribe(MsgRunState, "ui", noop)
	assert.True(t, errors.Is(err, errors.ErrSubscriberExists))

	err = b.Subscribe("", "ui", noop)
	assert.Equal(t, errors.CodeInvalidParam, errors.CodeOf(err))

	require.NoError(t, b.Unsubscribe(MsgRunState, "ui"))
	assert.Equal(t, []string{"logger"}, b.Subscribers(MsgRunState))

	err = b.Unsubscribe(MsgRunState, "ui")
	assert.True(t, errors.Is(err, errors.ErrSubscriberMissing))

	require.NoError(t, b.Subscribe(MsgPlayProgress, "logger", noop))
	b.UnsubscribeAll("logger")
	assert.Empty(t, b.Subscribers(MsgRunState))
	assert.Empty(t, b.Subscribers(MsgPlayProgress))
}

func TestPost_OrderedDelivery(t *testing.T) {
	b := New(Config{Name: "ordered"})
	require.NoError(t, b.Start(context.Background()))

	var mu sync.Mutex
	var got []string
	require.NoError(t, b.Subscribe(MsgPlayProgress, "ui", func(_ context.Context, msg Msg) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg.Payload.(string))
		assert.Nil(t, msg.Promise(), "posted messages carry no promise")
		assert.NotEmpty(t, msg.ID)
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Post(Msg{Type: MsgPlayProgress, Payload: fmt.Sprintf("p%d", i)}))
	}
	require.NoError(t, b.Close(time.Second))

	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, fmt.Sprintf("p%d", i), v)
	}

	err := b.Post(Msg{Type: MsgPlayProgress})
	assert.True(t, errors.Is(err, errors.ErrBusClosed))
}

func TestPost_Targeted(t *testing.T) {
	b := New(Config{})
	require.NoError(t, b.Start(context.Background()))

	var mu sync.Mutex
	hits := map[string]int{}
	for _, id := range []string{"a", "b"} {
		id := id
		require.NoError(t, b.Subscribe(MsgAddElementStream, id, func(context.Context, Msg) error {
			mu.Lock()
			hits[id]++
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, b.Post(Msg{Type: MsgAddElementStream, Dst: "b"}))
	require.NoError(t, b.Post(Msg{Type: MsgAddElementStream}))
	require.NoError(t, b.Close(time.Second))

	assert.Equal(t, map[string]int{"a": 1, "b": 2}, hits)
}

func TestSend(t *testing.T) {
	b := newStartedBus(t)

	t.Run("no subscriber", func(t *testing.T) {
		err := b.Send(context.Background(), Msg{Type: MsgStartElement, Dst: "nobody"})
		assert.True(t, errors.IsNoProc(err))
	})

	t.Run("handler failures are joined", func(t *testing.T) {
		require.NoError(t, b.Subscribe(MsgStopElement, "ok", func(context.Context, Msg) error { return nil }))
		require.NoError(t, b.Subscribe(MsgStopElement, "bad1", func(context.Context, Msg) error { return errors.ErrInvalidState }))
		require.NoError(t, b.Subscribe(MsgStopElement, "bad2", func(context.Context, Msg) error { return fmt.Errorf("device busy") }))

		err := b.Send(context.Background(), Msg{Type: MsgStopElement})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidState))
		assert.Contains(t, err.Error(), "bad1")
		assert.Contains(t, err.Error(), "device busy")
	})

	t.Run("targeted send reaches only the destination", func(t *testing.T) {
		err := b.Send(context.Background(), Msg{Type: MsgStopElement, Dst: "ok"})
		assert.NoError(t, err)
	})

	t.Run("unhandled everywhere", func(t *testing.T) {
		require.NoError(t, b.Subscribe(MsgPauseElement, "x", func(context.Context, Msg) error { return errors.ErrNoProc }))
		err := b.Send(context.Background(), Msg{Type: MsgPauseElement})
		assert.True(t, errors.IsNoProc(err))
	})
}

func TestSend_PendingPromise(t *testing.T) {
	b := newStartedBus(t)

	require.NoError(t, b.Subscribe(MsgStartElement, "async", func(_ context.Context, msg Msg) error {
		p := msg.Promise()
		go func() {
			time.Sleep(10 * time.Millisecond)
			p.Resolve(nil)
			p.Resolve(fmt.Errorf("ignored second resolution"))
		}()
		return errors.ErrPending
	}))

	assert.NoError(t, b.Send(context.Background(), Msg{Type: MsgStartElement, Dst: "async"}))

	require.NoError(t, b.Subscribe(MsgResumeElement, "async", func(_ context.Context, msg Msg) error {
		go msg.Promise().Resolve(fmt.Errorf("camera unplugged"))
		return errors.ErrPending
	}))
	err := b.Send(context.Background(), Msg{Type: MsgResumeElement})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera unplugged")
}

func TestSend_TimeoutOnUnresolvedPromise(t *testing.T) {
	b := newStartedBus(t)
	require.NoError(t, b.Subscribe(MsgStartElement, "stuck", func(context.Context, Msg) error {
		return errors.ErrPending
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Send(ctx, Msg{Type: MsgStartElement})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMetricPrefix(t *testing.T) {
	assert.Equal(t, "msgbus_main_pipe_1", metricPrefix("main-pipe.1"))
}
