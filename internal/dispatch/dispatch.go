// Package dispatch runs callbacks on an owner context, the single goroutine
// that is allowed to touch presenter state and whatever renders it.
package dispatch

import (
	"context"
	"sync"

	"pricetracker/internal/logger"
)

// Dispatcher schedules fn to run on its owner context.
type Dispatcher interface {
	Dispatch(fn func())
}

// Immediate runs fn on the calling goroutine. It suits tests and callers
// that already serialize access themselves.
type Immediate struct{}

// Dispatch implements Dispatcher.
func (Immediate) Dispatch(fn func()) { fn() }

// Loop is an owner context backed by one goroutine. Callbacks run in the
// order they were dispatched.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Dispatch implements Dispatcher. It never blocks. Callbacks dispatched after
// Run has returned are dropped.
func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		logger.Debug("dispatch: loop closed, dropping callback")
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes dispatched callbacks until ctx is done. Callbacks already
// queued when ctx ends are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}
