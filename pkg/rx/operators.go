package rx

import (
	"sync"
	"sync/atomic"
)

// Just emits the given values and completes.
func Just[T any](values ...T) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		for _, v := range values {
			if s.Stopped() {
				return nil
			}
			s.Next(v)
		}
		s.Complete()
		return nil
	})
}

// Fail terminates immediately with err.
func Fail[T any](err error) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		s.Error(err)
		return nil
	})
}

// Empty completes immediately.
func Empty[T any]() Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		s.Complete()
		return nil
	})
}

// Never emits nothing and never terminates.
func Never[T any]() Stream[T] {
	return Create(func(*Subscriber[T]) func() { return nil })
}

// Deferred calls factory at subscription time and relays the stream it returns.
func Deferred[T any](factory func() Stream[T]) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		return factory().Subscribe(Forward(s)).Cancel
	})
}

// Map transforms each value.
func Map[T, R any](src Stream[T], fn func(T) R) Stream[R] {
	return TryMap(src, func(v T) (R, error) { return fn(v), nil })
}

// TryMap transforms each value; a returned error terminates the stream.
func TryMap[T, R any](src Stream[T], fn func(T) (R, error)) Stream[R] {
	return Create(func(s *Subscriber[R]) func() {
		up := src.Subscribe(ObserverFuncs[T]{
			Next: func(v T) {
				r, err := fn(v)
				if err != nil {
					s.Error(err)
					return
				}
				s.Next(r)
			},
			Error:    s.Error,
			Complete: s.Complete,
		})
		return up.Cancel
	})
}

// Filter passes values for which pred returns true.
func Filter[T any](src Stream[T], pred func(T) bool) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		up := src.Subscribe(ObserverFuncs[T]{
			Next: func(v T) {
				if pred(v) {
					s.Next(v)
				}
			},
			Error:    s.Error,
			Complete: s.Complete,
		})
		return up.Cancel
	})
}

// Take emits the first n values and completes.
func Take[T any](src Stream[T], n int) Stream[T] {
	if n <= 0 {
		return Empty[T]()
	}
	return Create(func(s *Subscriber[T]) func() {
		count := 0
		up := src.Subscribe(ObserverFuncs[T]{
			Next: func(v T) {
				count++
				s.Next(v)
				if count >= n {
					s.Complete()
				}
			},
			Error:    s.Error,
			Complete: s.Complete,
		})
		return up.Cancel
	})
}

// StartWith emits values before relaying src.
func StartWith[T any](src Stream[T], values ...T) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		for _, v := range values {
			if s.Stopped() {
				return nil
			}
			s.Next(v)
		}
		if s.Stopped() {
			return nil
		}
		return src.Subscribe(Forward(s)).Cancel
	})
}

// Finally runs fn once after the subscription terminates or is cancelled.
func Finally[T any](src Stream[T], fn func()) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		s.OnDispose(fn)
		return src.Subscribe(Forward(s)).Cancel
	})
}

// OnSubscribe runs fn right before src is subscribed.
func OnSubscribe[T any](src Stream[T], fn func()) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		fn()
		return src.Subscribe(Forward(s)).Cancel
	})
}

// Amb relays whichever stream delivers its first event earliest and cancels the other.
func Amb[T any](a, b Stream[T]) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		var (
			winner atomic.Int32
			mu     sync.Mutex
			subs   [2]*Subscriber[T]
		)
		claim := func(me int32) bool {
			if winner.CompareAndSwap(0, me) {
				mu.Lock()
				loser := subs[2-me]
				mu.Unlock()
				if loser != nil {
					loser.Cancel()
				}
				return true
			}
			return winner.Load() == me
		}
		observer := func(me int32) Observer[T] {
			return ObserverFuncs[T]{
				Next: func(v T) {
					if claim(me) {
						s.Next(v)
					}
				},
				Error: func(err error) {
					if claim(me) {
						s.Error(err)
					}
				},
				Complete: func() {
					if claim(me) {
						s.Complete()
					}
				},
			}
		}

		for i, st := range []Stream[T]{a, b} {
			me := int32(i + 1)
			if w := winner.Load(); w != 0 && w != me {
				break
			}
			sub := st.Subscribe(observer(me))
			mu.Lock()
			subs[i] = sub
			mu.Unlock()
			if w := winner.Load(); w != 0 && w != me {
				sub.Cancel()
			}
		}

		return func() {
			mu.Lock()
			all := subs
			mu.Unlock()
			for _, sub := range all {
				if sub != nil {
					sub.Cancel()
				}
			}
		}
	})
}

// Absorb relays the values of all streams; the first terminal event of any of them
// terminates the result and disposes the rest.
func Absorb[T any](streams ...Stream[T]) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		var (
			mu   sync.Mutex
			subs []*Subscriber[T]
		)
		for _, st := range streams {
			if s.Stopped() {
				break
			}
			sub := st.Subscribe(Forward(s))
			mu.Lock()
			subs = append(subs, sub)
			mu.Unlock()
		}
		return func() {
			mu.Lock()
			all := subs
			subs = nil
			mu.Unlock()
			for _, sub := range all {
				sub.Cancel()
			}
		}
	})
}

// FlatMapFirst maps the first value of src to a new stream and relays it.
func FlatMapFirst[T, R any](src Stream[T], fn func(T) Stream[R]) Stream[R] {
	return Create(func(s *Subscriber[R]) func() {
		var (
			mu    sync.Mutex
			inner *Subscriber[R]
		)
		up := Take(src, 1).Subscribe(ObserverFuncs[T]{
			Next: func(v T) {
				sub := fn(v).Subscribe(Forward(s))
				mu.Lock()
				inner = sub
				mu.Unlock()
			},
			Error: s.Error,
			Complete: func() {
				mu.Lock()
				started := inner != nil
				mu.Unlock()
				if !started {
					s.Complete()
				}
			},
		})
		return func() {
			up.Cancel()
			mu.Lock()
			sub := inner
			mu.Unlock()
			if sub != nil {
				sub.Cancel()
			}
		}
	})
}

// SubscribeOn performs the subscription to src on sched.
func SubscribeOn[T any](src Stream[T], sched Scheduler) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		var (
			mu sync.Mutex
			up *Subscriber[T]
		)
		sched.Schedule(func() {
			if s.Stopped() {
				return
			}
			sub := src.Subscribe(Forward(s))
			mu.Lock()
			up = sub
			mu.Unlock()
			if s.Stopped() {
				sub.Cancel()
			}
		})
		return func() {
			mu.Lock()
			sub := up
			mu.Unlock()
			if sub != nil {
				sub.Cancel()
			}
		}
	})
}
