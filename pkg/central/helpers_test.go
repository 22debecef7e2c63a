package central_test

import "github.com/srg/rxble/pkg/rx"

// recorder collects everything a subscription delivers. All tests run on rx.Immediate,
// so deliveries happen on the test goroutine.
type recorder[T any] struct {
	values    []T
	err       error
	completed bool
}

func record[T any](st rx.Stream[T]) (*recorder[T], *rx.Subscriber[T]) {
	r := &recorder[T]{}
	sub := st.SubscribeFuncs(
		func(v T) { r.values = append(r.values, v) },
		func(err error) { r.err = err },
		func() { r.completed = true },
	)
	return r, sub
}

func (r *recorder[T]) terminated() bool {
	return r.err != nil || r.completed
}
