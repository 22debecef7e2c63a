// Package rx provides the small push-based stream toolkit the central layer is built on.
//
// A Stream is cold and deferred: nothing happens until Subscribe is called, and every
// subscription runs the producer again. Each subscription delivers zero or more values
// followed by at most one terminal event (error or completion). Deliveries to one
// subscriber are serialized, so observers never need their own locking.
package rx

import (
	"sync"
	"sync/atomic"
)

// Observer receives the notifications of one subscription.
type Observer[T any] interface {
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are ignored.
type ObserverFuncs[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

func (o ObserverFuncs[T]) OnNext(v T) {
	if o.Next != nil {
		o.Next(v)
	}
}

func (o ObserverFuncs[T]) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o ObserverFuncs[T]) OnComplete() {
	if o.Complete != nil {
		o.Complete()
	}
}

type notificationKind int

const (
	kindNext notificationKind = iota
	kindError
	kindComplete
)

type notification[T any] struct {
	kind  notificationKind
	value T
	err   error
}

// Subscriber is the producer-side handle of a subscription and, at the same time, the
// consumer-side cancellation handle returned by Stream.Subscribe.
type Subscriber[T any] struct {
	obs Observer[T]

	// delivery serialization; reentrant emissions are queued and drained in order
	qmu      sync.Mutex
	emitting bool
	queue    []notification[T]

	stopped atomic.Bool

	tdMu      sync.Mutex
	disposed  bool
	teardowns []func()

	done chan struct{}
	err  error
}

func newSubscriber[T any](obs Observer[T]) *Subscriber[T] {
	return &Subscriber[T]{obs: obs, done: make(chan struct{})}
}

// Next delivers a value unless the subscription already stopped.
func (s *Subscriber[T]) Next(v T) {
	s.deliver(notification[T]{kind: kindNext, value: v})
}

// Error terminates the subscription with err.
func (s *Subscriber[T]) Error(err error) {
	s.deliver(notification[T]{kind: kindError, err: err})
}

// Complete terminates the subscription successfully.
func (s *Subscriber[T]) Complete() {
	s.deliver(notification[T]{kind: kindComplete})
}

// Stopped reports whether the subscription terminated or was cancelled.
func (s *Subscriber[T]) Stopped() bool {
	return s.stopped.Load()
}

// OnDispose registers fn to run when the subscription is disposed. Functions run once,
// last registered first. If the subscription is already disposed fn runs immediately.
func (s *Subscriber[T]) OnDispose(fn func()) {
	if fn == nil {
		return
	}
	s.tdMu.Lock()
	if s.disposed {
		s.tdMu.Unlock()
		fn()
		return
	}
	s.teardowns = append(s.teardowns, fn)
	s.tdMu.Unlock()
}

// Cancel stops the subscription without a terminal event and releases its resources.
// Safe to call multiple times and from any goroutine.
func (s *Subscriber[T]) Cancel() {
	s.stopped.Store(true)
	s.dispose()
}

// Done is closed once the subscription terminated or was cancelled.
func (s *Subscriber[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, if any. Only meaningful after Done is closed.
func (s *Subscriber[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscriber[T]) deliver(n notification[T]) {
	s.qmu.Lock()
	if s.emitting {
		s.queue = append(s.queue, n)
		s.qmu.Unlock()
		return
	}
	s.emitting = true
	s.qmu.Unlock()

	for {
		s.dispatch(n)

		s.qmu.Lock()
		if len(s.queue) == 0 {
			s.emitting = false
			s.qmu.Unlock()
			return
		}
		n = s.queue[0]
		s.queue = s.queue[1:]
		s.qmu.Unlock()
	}
}

func (s *Subscriber[T]) dispatch(n notification[T]) {
	switch n.kind {
	case kindNext:
		if s.stopped.Load() {
			return
		}
		s.obs.OnNext(n.value)
	case kindError, kindComplete:
		if !s.stopped.CompareAndSwap(false, true) {
			return
		}
		s.err = n.err
		if n.kind == kindError {
			s.obs.OnError(n.err)
		} else {
			s.obs.OnComplete()
		}
		s.dispose()
	}
}

func (s *Subscriber[T]) dispose() {
	s.tdMu.Lock()
	if s.disposed {
		s.tdMu.Unlock()
		return
	}
	s.disposed = true
	teardowns := s.teardowns
	s.teardowns = nil
	s.tdMu.Unlock()

	close(s.done)
	for i := len(teardowns) - 1; i >= 0; i-- {
		teardowns[i]()
	}
}

// Stream is a deferred, cold producer of T values.
type Stream[T any] struct {
	subscribe func(s *Subscriber[T])
}

// Create builds a Stream from a producer function. The producer runs once per
// subscription and may return a teardown invoked on disposal.
func Create[T any](producer func(s *Subscriber[T]) func()) Stream[T] {
	return Stream[T]{subscribe: func(s *Subscriber[T]) {
		s.OnDispose(producer(s))
	}}
}

// Subscribe starts the stream and returns the subscription handle.
func (st Stream[T]) Subscribe(obs Observer[T]) *Subscriber[T] {
	s := newSubscriber(obs)
	if st.subscribe == nil {
		s.Complete()
		return s
	}
	st.subscribe(s)
	return s
}

// SubscribeFuncs is a shorthand for Subscribe(ObserverFuncs{...}).
func (st Stream[T]) SubscribeFuncs(next func(T), onErr func(error), complete func()) *Subscriber[T] {
	return st.Subscribe(ObserverFuncs[T]{Next: next, Error: onErr, Complete: complete})
}

// Forward relays every notification to s.
func Forward[T any](s *Subscriber[T]) Observer[T] {
	return ObserverFuncs[T]{Next: s.Next, Error: s.Error, Complete: s.Complete}
}
