package msgbus

import (
	"context"
	"sync"
)

// Promise carries the deferred result of a control request. A handler that cannot
// answer synchronously returns errors.ErrPending and resolves the promise later,
// typically from its own worker goroutine.
type Promise struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve records the result. Only the first call has an effect.
func (p *Promise) Resolve(err error) {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Wait blocks until the promise is resolved or ctx is done
func (p *Promise) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
