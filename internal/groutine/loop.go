package groutine

import (
	"context"
	"sync"
)

// Loop runs submitted functions one at a time, in submission order, on a single
// named goroutine. Schedule never blocks; the pending queue is unbounded.
type Loop struct {
	name string

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stopped bool

	gid  uint64
	done chan struct{}
}

// NewLoop starts a loop goroutine named name. It exits when ctx is cancelled or Stop
// is called; functions still pending at that point are dropped.
func NewLoop(ctx context.Context, name string) *Loop {
	l := &Loop{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	started := make(chan struct{})
	Go(ctx, name, func(ctx context.Context) {
		l.gid = currentID()
		close(started)
		l.run(ctx)
	})
	<-started
	return l
}

// Name returns the goroutine name of the loop.
func (l *Loop) Name() string {
	return l.name
}

// Schedule appends fn to the loop queue.
func (l *Loop) Schedule(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// OnLoop reports whether the caller runs on the loop goroutine.
func (l *Loop) OnLoop() bool {
	return currentID() == l.gid
}

// Stop terminates the loop and waits for the running function to return.
// Must not be called from the loop itself.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.pending = nil
			l.mu.Unlock()
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.stopped {
				l.pending = nil
				l.mu.Unlock()
				return
			}
			if len(l.pending) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.pending[0]
			l.pending[0] = nil
			l.pending = l.pending[1:]
			l.mu.Unlock()

			fn()
		}
	}
}
