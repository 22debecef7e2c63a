package central

import "github.com/srg/rxble/pkg/rx"

// ObserveState emits the current adapter state followed by every state change.
func ObserveState(src StateSource) rx.Stream[AdapterState] {
	return rx.Deferred(func() rx.Stream[AdapterState] {
		changes := rx.Map(
			rx.Filter(src.Events(), func(ev Event) bool { return ev.Kind == EventStateChanged }),
			func(ev Event) AdapterState { return ev.State },
		)
		return rx.StartWith(changes, src.State())
	})
}

// EnsureState relays s until the adapter reports a state other than expected that maps
// to an error; that error then terminates the result. The state watch starts with the
// current state and is subscribed before s, so an invalid state fails the stream before
// s is ever subscribed.
func EnsureState[T any](src StateSource, expected AdapterState, s rx.Stream[T]) rx.Stream[T] {
	stateErrors := rx.Create(func(sub *rx.Subscriber[T]) func() {
		watch := ObserveState(src).SubscribeFuncs(func(st AdapterState) {
			if st == expected {
				return
			}
			if err := st.Err(); err != nil {
				sub.Error(err)
			}
		}, sub.Error, nil)
		return watch.Cancel
	})
	return rx.Absorb(stateErrors, s)
}
