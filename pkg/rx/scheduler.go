package rx

import (
	"context"

	"github.com/srg/rxble/internal/groutine"
)

// Scheduler is an execution context that runs submitted functions.
type Scheduler interface {
	Schedule(fn func())
}

type immediate struct{}

func (immediate) Schedule(fn func()) { fn() }

// Immediate runs functions synchronously on the calling goroutine.
var Immediate Scheduler = immediate{}

// NewLoop starts a serial scheduler backed by a named goroutine.
func NewLoop(ctx context.Context, name string) *groutine.Loop {
	return groutine.NewLoop(ctx, name)
}

// ObserveOn delivers the notifications of src through sched.
func ObserveOn[T any](src Stream[T], sched Scheduler) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		up := src.Subscribe(ObserverFuncs[T]{
			Next: func(v T) {
				sched.Schedule(func() { s.Next(v) })
			},
			Error: func(err error) {
				sched.Schedule(func() { s.Error(err) })
			},
			Complete: func() {
				sched.Schedule(s.Complete)
			},
		})
		return up.Cancel
	})
}
