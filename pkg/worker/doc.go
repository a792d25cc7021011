// Package worker provides a generic, thread-safe worker pool.
//
// The pool runs a fixed number of goroutines that drain a bounded queue. Submit never
// blocks: a full queue returns ErrQueueFull and counts the item as dropped.
// SubmitWait is the blocking alternative for producers that prefer backpressure.
//
// The pipeline message bus runs a pool with one worker so posted notifications are
// delivered in submission order:
//
//	pool := worker.NewPool(1, 256, bus.deliver,
//	    worker.WithErrorHandler(func(msg msgbus.Msg, err error) {
//	        logger.Warn("delivery failed", "type", msg.Type, "error", err)
//	    }),
//	    worker.WithMetricsRegistry[msgbus.Msg](registry, "msgbus_main"),
//	)
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Statistics are always tracked with atomics; Prometheus metrics are registered only
// when WithMetricsRegistry is given. A processor panic is recovered and reported as
// ErrProcessorPanic.
//
// Stop closes the queue, lets the workers drain what is already queued and waits up
// to the given timeout. A stopped pool cannot be restarted.
package worker
