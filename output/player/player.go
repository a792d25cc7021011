// Package player provides the audio and video render sinks. Both queue frames on a
// single worker so rendering never blocks the upstream push path. Frames render
// as fast as the queue drains; real-time pacing is left to the source.
//
// Players in the same sync group keep audio and video aligned through the
// pipeline's sync manager. The audio player publishes the end timestamp of every
// frame it renders; the video player holds a frame that is ahead of that clock for
// a bounded time and drops frames that fall too far behind it.
package player

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/metric"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
	"github.com/ivgotcrazy/jukey-sub001/pkg/worker"
)

// Component IDs
const (
	VideoComponent = "video-player"
	AudioComponent = "audio-player"
)

// Property keys
const (
	PropCaps             = "caps"
	PropQueueSize        = "queue_size"
	PropSyncGroup        = "sync_group"
	PropProgressInterval = "progress_interval"
	PropMaxSyncWait      = "max_sync_wait"
	PropLateThreshold    = "late_threshold"
)

const (
	defaultQueueSize        = 64
	defaultProgressInterval = time.Second
	defaultMaxSyncWait      = 200 * time.Millisecond
	defaultLateThreshold    = 100 * time.Millisecond
	stopTimeout             = 2 * time.Second
)

// Default input formats
var (
	DefaultVideoCaps = capability.Set{
		MediaType:    capability.MediaTypeVideo,
		Codecs:       []capability.Codec{capability.CodecRaw},
		PixelFormats: []capability.PixelFormat{capability.PixelFormatI420, capability.PixelFormatNV12},
		Resolutions: []capability.Resolution{
			{Width: 1280, Height: 720},
			{Width: 640, Height: 480},
			{Width: 320, Height: 240},
			{Width: 1920, Height: 1080},
		},
	}
	DefaultAudioCaps = capability.Set{
		MediaType:   capability.MediaTypeAudio,
		Codecs:      []capability.Codec{capability.CodecRaw},
		Channels:    []int{2, 1},
		SampleBits:  []int{16},
		SampleRates: []int{48000, 44100, 16000, 8000},
	}
)

// Player renders raw frames arriving on its "in" pin
type Player struct {
	*element.Base

	metrics *metric.MetricsRegistry

	in               *pin.SinkPin
	queueSize        int
	group            string
	progressInterval time.Duration
	maxSyncWait      time.Duration
	lateThreshold    time.Duration

	pool   atomic.Pointer[worker.Pool[pin.Data]]
	cancel context.CancelFunc
	paused atomic.Bool
	clock  chan struct{}

	// render worker only
	lastProgress time.Duration

	position atomic.Int64
	rendered atomic.Uint64
	dropped  atomic.Uint64

	mu       sync.Mutex
	streamID string
}

// NewVideo is the factory of VideoComponent
func NewVideo(deps component.Dependencies) (element.Element, error) {
	return newPlayer(capability.MediaTypeVideo, deps), nil
}

// NewAudio is the factory of AudioComponent
func NewAudio(deps component.Dependencies) (element.Element, error) {
	return newPlayer(capability.MediaTypeAudio, deps), nil
}

func newPlayer(media capability.MediaType, deps component.Dependencies) *Player {
	p := &Player{
		metrics: deps.MetricsRegistry,
		clock:   make(chan struct{}, 1),
	}
	p.Base = element.NewBase(element.Descriptor{
		Name:      string(media) + "-player",
		MainType:  element.MainTypeSink,
		SubType:   element.RolePlayer,
		MediaType: media,
	}, p, deps.GetLoggerWithComponent("player"))
	return p
}

// Register registers the video and audio players
func Register(registry *component.Registry) error {
	for _, cfg := range []component.RegistrationConfig{
		{
			Name:        VideoComponent,
			Factory:     NewVideo,
			MediaType:   capability.MediaTypeVideo,
			Description: "Raw video renderer synced to the audio clock",
		},
		{
			Name:        AudioComponent,
			Factory:     NewAudio,
			MediaType:   capability.MediaTypeAudio,
			Description: "PCM renderer publishing the audio clock",
		},
	} {
		cfg.MainType = element.MainTypeSink
		cfg.SubType = element.RolePlayer
		cfg.Version = "1.0.0"
		if err := registry.RegisterWithConfig(cfg); err != nil {
			return err
		}
	}
	return nil
}

// DoInit reads the render settings and creates the "in" pin
func (p *Player) DoInit(props element.Properties) error {
	defaults := DefaultVideoCaps
	if p.MediaType() == capability.MediaTypeAudio {
		defaults = DefaultAudioCaps
	}
	caps, err := props.GetCapabilitySet(PropCaps, defaults)
	if err != nil {
		return errors.Wrap(err, "Player", "DoInit", "caps property")
	}
	if caps.MediaType != p.MediaType() {
		return errors.WrapInvalid(fmt.Errorf("%w: %s caps on %s player", errors.ErrInvalidConfig, caps.MediaType, p.MediaType()),
			"Player", "DoInit", "media type check")
	}

	p.queueSize = props.GetInt(PropQueueSize, defaultQueueSize)
	if p.queueSize <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: queue_size %d", errors.ErrInvalidConfig, p.queueSize),
			"Player", "DoInit", "queue size check")
	}
	p.group = props.GetString(PropSyncGroup, "")
	p.progressInterval = props.GetDuration(PropProgressInterval, defaultProgressInterval)
	p.maxSyncWait = props.GetDuration(PropMaxSyncWait, defaultMaxSyncWait)
	p.lateThreshold = props.GetDuration(PropLateThreshold, defaultLateThreshold)

	p.in, err = p.AddSinkPin("in", caps)
	return err
}

// DoStart starts the render worker and joins the sync group
func (p *Player) DoStart() error {
	opts := []worker.Option[pin.Data]{
		worker.WithErrorHandler(func(d pin.Data, err error) {
			p.Logger().Debug("Render failed", "seq", d.Seq, "error", err)
		}),
	}
	if p.metrics != nil {
		opts = append(opts, worker.WithMetricsRegistry[pin.Data](p.metrics, p.metricsPrefix()))
	}
	pool := worker.NewPool(1, p.queueSize, p.render, opts...)
	p.lastProgress = 0

	ctx, cancel := context.WithCancel(context.Background())
	if err := pool.Start(ctx); err != nil {
		cancel()
		return errors.Wrap(err, "Player", "DoStart", "start render worker")
	}

	if p.syncsToAudio() {
		if err := p.Host().SyncManager().Register(p.group, p.Name(), p.onClock); err != nil {
			cancel()
			_ = pool.Stop(stopTimeout)
			return errors.Wrap(err, "Player", "DoStart", "join sync group")
		}
	}

	p.cancel = cancel
	p.paused.Store(false)
	p.pool.Store(pool)
	return nil
}

// DoPause stops rendering; frames arriving while paused are dropped
func (p *Player) DoPause() error {
	p.paused.Store(true)
	return nil
}

// DoResume continues rendering
func (p *Player) DoResume() error {
	p.paused.Store(false)
	return nil
}

// DoStop stops the render worker, discarding queued frames
func (p *Player) DoStop() error {
	pool := p.pool.Swap(nil)
	if pool == nil {
		return nil
	}
	p.cancel()
	if err := pool.Stop(stopTimeout); err != nil {
		p.Logger().Warn("Render worker did not stop", "error", err)
	}
	if p.syncsToAudio() {
		if err := p.Host().SyncManager().Unregister(p.group, p.Name()); err != nil {
			p.Logger().Debug("Sync group leave failed", "error", err)
		}
	}
	p.postProgress()
	p.Logger().Info("Player stopped", "rendered", p.rendered.Load(), "dropped", p.dropped.Load())
	return nil
}

// OnSinkPinData queues a frame for rendering. A full queue drops the frame.
func (p *Player) OnSinkPinData(_ *pin.SinkPin, data pin.Data) error {
	pool := p.pool.Load()
	if pool == nil || p.paused.Load() {
		p.dropped.Add(1)
		return nil
	}
	if err := pool.Submit(data); err != nil {
		p.dropped.Add(1)
	}
	return nil
}

// OnSinkPinMsg announces the consumed stream on SET_STREAM and END_STREAM
func (p *Player) OnSinkPinMsg(sp *pin.SinkPin, msg pin.Msg) error {
	switch msg.Type {
	case pin.MsgSetStream:
		p.mu.Lock()
		p.streamID = msg.StreamID
		p.mu.Unlock()
		p.postStream(msgbus.MsgAddElementStream, sp, msg.StreamID)
		return nil
	case pin.MsgEndStream:
		p.mu.Lock()
		if p.streamID == msg.StreamID {
			p.streamID = ""
		}
		p.mu.Unlock()
		p.postProgress()
		p.postStream(msgbus.MsgDelElementStream, sp, msg.StreamID)
		return nil
	default:
		return errors.ErrNoProc
	}
}

// Stats returns the number of rendered and dropped frames
func (p *Player) Stats() (rendered, dropped uint64) {
	return p.rendered.Load(), p.dropped.Load()
}

// Position returns the end timestamp of the last rendered frame
func (p *Player) Position() time.Duration {
	return time.Duration(p.position.Load())
}

// StreamID returns the stream currently being played
func (p *Player) StreamID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamID
}

func (p *Player) syncsToAudio() bool {
	return p.group != "" && p.MediaType() == capability.MediaTypeVideo
}

func (p *Player) render(ctx context.Context, data pin.Data) error {
	if p.syncsToAudio() && !p.waitForClock(ctx, data.Timestamp) {
		p.dropped.Add(1)
		return nil
	}

	// Frames are consumed here; there is no display or audio device behind the sink.
	end := data.Timestamp + p.frameDuration(len(data.Payload))
	p.position.Store(int64(end))

	if p.group != "" && p.MediaType() == capability.MediaTypeAudio {
		p.Host().SyncManager().UpdateTimestamp(p.group, end)
	}
	if p.progressInterval > 0 && end-p.lastProgress >= p.progressInterval {
		p.lastProgress = end
		p.postProgress()
	}
	p.rendered.Add(1)
	return nil
}

// waitForClock holds a video frame until the audio clock reaches ts. It reports
// false when the frame is late or the player is stopping.
func (p *Player) waitForClock(ctx context.Context, ts time.Duration) bool {
	sm := p.Host().SyncManager()
	deadline := time.NewTimer(p.maxSyncWait)
	defer deadline.Stop()

	for {
		audio, ok := sm.Latest(p.group)
		if !ok {
			return true
		}
		if ts < audio-p.lateThreshold {
			return false
		}
		if ts <= audio {
			return true
		}
		select {
		case <-p.clock:
		case <-deadline.C:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

func (p *Player) onClock(string, time.Duration) {
	select {
	case p.clock <- struct{}{}:
	default:
	}
}

// frameDuration is the play time of an audio payload; video frames are instants
func (p *Player) frameDuration(size int) time.Duration {
	if p.MediaType() != capability.MediaTypeAudio {
		return 0
	}
	c := p.in.Capability()
	perSecond := c.SampleBytes(time.Second)
	if perSecond == 0 {
		return 0
	}
	return time.Duration(size) * time.Second / time.Duration(perSecond)
}

func (p *Player) postProgress() {
	p.Post(msgbus.MsgPlayProgress, msgbus.PlayProgress{
		Element:  p.Name(),
		Position: p.Position().Milliseconds(),
	})
}

func (p *Player) postStream(msgType msgbus.MsgType, sp *pin.SinkPin, streamID string) {
	p.Post(msgType, msgbus.ElementStream{
		StreamID: streamID,
		Element:  p.Name(),
		Pin:      sp.Name(),
		Role:     msgbus.StreamConsumer,
	})
}

// metricsPrefix is unique per pipeline and element and valid as a metric name
func (p *Player) metricsPrefix() string {
	name := "player_" + p.Host().Name() + "_" + p.Name()
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
