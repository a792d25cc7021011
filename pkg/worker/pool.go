package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ivgotcrazy/jukey-sub001/metric"
)

const defaultQueueSize = 256

// Pool runs a processor over items of type T on a fixed number of goroutines.
// A pool with a single worker processes items in submission order.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error
	onError   func(T, error)

	queue chan T
	wg    sync.WaitGroup

	// mu guards the lifecycle flags and the queue close
	mu      sync.Mutex
	started bool
	stopped bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	registry *metric.MetricsRegistry
	prefix   string
	metrics  *poolMetrics
}

// PoolStats is a snapshot of the pool counters
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers the pool metrics under prefix. The metrics are
// owned by prefix and removed when the pool stops.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
		p.prefix = prefix
	}
}

// WithErrorHandler sets a callback for every item whose processing failed or
// panicked
func WithErrorHandler[T any](fn func(T, error)) Option[T] {
	return func(p *Pool[T]) {
		p.onError = fn
	}
}

// NewPool creates a stopped pool. Non-positive workers and queueSize fall back to
// one worker and a queue of 256.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		queue:     make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry != nil && p.prefix != "" {
		p.metrics = newPoolMetrics(p.registry, p.prefix)
	}
	return p
}

// Start launches the workers. Workers exit when ctx is done or the pool stops.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.stopped:
		return ErrPoolStopped
	case p.started:
		return ErrPoolAlreadyStarted
	}

	p.wg.Add(p.workers)
	for range p.workers {
		go p.run(ctx)
	}
	p.started = true
	return nil
}

// Stop closes the queue, lets the workers drain it and waits up to timeout.
// Stopping a pool that never started only marks it stopped.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.metrics != nil {
			p.registry.UnregisterOwner(p.prefix)
		}
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Submit queues work without blocking. A full queue drops the item and returns
// ErrQueueFull.
func (p *Pool[T]) Submit(work T) error {
	if err := p.trySubmit(work); err != nil {
		if err == ErrQueueFull {
			p.dropped.Add(1)
			p.metrics.drop()
		}
		return err
	}
	return nil
}

// SubmitWait queues work, waiting for queue space until ctx is done
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	for {
		err := p.trySubmit(work)
		if err != ErrQueueFull {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (p *Pool[T]) trySubmit(work T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.stopped:
		return ErrPoolStopped
	case !p.started:
		return ErrPoolNotStarted
	}

	select {
	case p.queue <- work:
		p.submitted.Add(1)
		p.metrics.submit(len(p.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns the current counters
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, work)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, work T) {
	start := time.Now()
	err := p.call(ctx, work)

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		if p.onError != nil {
			p.onError(work, err)
		}
	}
	p.metrics.done(err, time.Since(start), len(p.queue))
}

func (p *Pool[T]) call(ctx context.Context, work T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return p.processor(ctx, work)
}

// poolMetrics are the Prometheus collectors of one pool. A nil *poolMetrics
// records nothing.
type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	processed  prometheus.Counter
	failed     prometheus.Counter
	dropped    prometheus.Counter
	duration   *prometheus.HistogramVec
}

func newPoolMetrics(registry *metric.MetricsRegistry, prefix string) *poolMetrics {
	counter := func(suffix, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + suffix, Help: help})
		_ = registry.RegisterCounter(prefix, prefix+suffix, c)
		return c
	}

	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Items waiting in the queue",
		}),
		submitted: counter("_submitted_total", "Items accepted into the queue"),
		processed: counter("_processed_total", "Items processed"),
		failed:    counter("_failed_total", "Items whose processing failed"),
		dropped:   counter("_dropped_total", "Items dropped on a full queue"),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_processing_duration_seconds",
			Help:    "Processing time per item",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"status"}),
	}
	_ = registry.RegisterGauge(prefix, prefix+"_queue_depth", m.queueDepth)
	_ = registry.RegisterHistogramVec(prefix, prefix+"_processing_duration_seconds", m.duration)
	return m
}

func (m *poolMetrics) submit(depth int) {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *poolMetrics) drop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *poolMetrics) done(err error, d time.Duration, depth int) {
	if m == nil {
		return
	}
	status := "success"
	m.processed.Inc()
	if err != nil {
		status = "error"
		m.failed.Inc()
	}
	m.duration.WithLabelValues(status).Observe(d.Seconds())
	m.queueDepth.Set(float64(depth))
}
