// Package ringchan bridges streams to Go channels without blocking the producer.
package ringchan

import (
	"sync"
	"sync/atomic"

	"github.com/srg/rxble/pkg/rx"
)

// RingChannel is a bounded channel with overwrite-oldest semantics: Send never
// blocks, a full buffer discards its oldest element instead.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
type RingChannel[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, dropping the oldest element when full. It reports whether an
// element was dropped. Sends after Close are ignored.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return false
	}

	for {
		select {
		case rc.ch <- v:
			atomic.AddInt64(&rc.metrics.Written, 1)
			return dropped
		default:
		}
		// a concurrent reader may drain it first
		select {
		case <-rc.ch:
			atomic.AddInt64(&rc.metrics.Overwritten, 1)
			dropped = true
		default:
		}
	}
}

// Close closes the receive side. Buffered elements can still be read.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Metrics returns a snapshot of the counters.
func (rc *RingChannel[T]) Metrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics counts the elements written to and dropped from a RingChannel.
type Metrics struct {
	Written     int64
	Overwritten int64
}

// Bridge forwards the values of a stream into a RingChannel.
type Bridge[T any] struct {
	*RingChannel[T]

	sub  *rx.Subscriber[T]
	mu   sync.Mutex
	err  error
	done chan struct{}
}

// FromStream subscribes st and forwards its values. The channel is closed when the
// stream terminates or the bridge is cancelled.
func FromStream[T any](st rx.Stream[T], capacity int) *Bridge[T] {
	b := &Bridge[T]{RingChannel: New[T](capacity), done: make(chan struct{})}
	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			b.mu.Lock()
			b.err = err
			b.mu.Unlock()
			b.Close()
			close(b.done)
		})
	}

	b.sub = st.SubscribeFuncs(
		func(v T) { b.Send(v) },
		finish,
		func() { finish(nil) },
	)
	b.sub.OnDispose(func() { finish(nil) })
	return b
}

// Cancel disposes the subscription and closes the channel.
func (b *Bridge[T]) Cancel() {
	b.sub.Cancel()
}

// Done is closed once the stream terminated or the bridge was cancelled.
func (b *Bridge[T]) Done() <-chan struct{} {
	return b.done
}

// Err returns the error that terminated the stream, if any.
func (b *Bridge[T]) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
