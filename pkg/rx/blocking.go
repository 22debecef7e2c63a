package rx

import (
	"context"
	"errors"
	"sync"
)

// ErrNoElements is returned by First when the stream completes without a value.
var ErrNoElements = errors.New("stream completed without elements")

// First subscribes to st and waits for its first value. The subscription is
// cancelled once a value arrives or ctx is done.
func First[T any](ctx context.Context, st Stream[T]) (T, error) {
	var zero T
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	send := func(r result) {
		select {
		case ch <- r:
		default:
		}
	}

	sub := Take(st, 1).Subscribe(ObserverFuncs[T]{
		Next:     func(v T) { send(result{v: v}) },
		Error:    func(err error) { send(result{err: err}) },
		Complete: func() { send(result{err: ErrNoElements}) },
	})
	defer sub.Cancel()

	select {
	case r := <-ch:
		if r.err != nil {
			return zero, r.err
		}
		return r.v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Collect subscribes to st and gathers all values until completion. On error or
// ctx cancellation the values received so far are returned with the error.
func Collect[T any](ctx context.Context, st Stream[T]) ([]T, error) {
	var (
		mu     sync.Mutex
		values []T
	)
	snapshot := func() []T {
		mu.Lock()
		defer mu.Unlock()
		return append([]T(nil), values...)
	}

	sub := st.Subscribe(ObserverFuncs[T]{
		Next: func(v T) {
			mu.Lock()
			values = append(values, v)
			mu.Unlock()
		},
	})
	defer sub.Cancel()

	select {
	case <-sub.Done():
		return snapshot(), sub.Err()
	case <-ctx.Done():
		sub.Cancel()
		return snapshot(), ctx.Err()
	}
}
