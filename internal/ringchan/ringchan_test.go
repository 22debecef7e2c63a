package ringchan

import (
	"errors"
	"sync"
	"testing"

	"github.com/srg/rxble/pkg/rx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](rc *RingChannel[T]) []T {
	var out []T
	for v := range rc.C() {
		out = append(out, v)
	}
	return out
}

func TestRingChannelDropsOldest(t *testing.T) {
	rc := New[int](3)

	dropped := 0
	for i := 0; i < 10; i++ {
		if rc.Send(i) {
			dropped++
		}
	}
	rc.Close()

	assert.Equal(t, []int{7, 8, 9}, drain(rc), "only the newest values MUST survive")
	assert.Equal(t, 7, dropped)
	assert.Equal(t, Metrics{Written: 10, Overwritten: 7}, rc.Metrics())
}

func TestRingChannelSendAfterCloseIsIgnored(t *testing.T) {
	rc := New[string](1)
	rc.Close()
	rc.Close()

	assert.NotPanics(t, func() { rc.Send("late") }, "send after close MUST NOT panic")
	assert.Empty(t, drain(rc))
}

func TestRingChannelConcurrentProducers(t *testing.T) {
	rc := New[int](8)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, rc.Cap(), rc.Len())
	m := rc.Metrics()
	assert.Equal(t, int64(400), m.Written)
	assert.Equal(t, int64(400-8), m.Overwritten)
}

func TestRingChannelCapacityMustBePositive(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}

func TestFromStreamForwardsUntilComplete(t *testing.T) {
	b := FromStream(rx.Just(1, 2, 3), 4)

	<-b.Done()
	assert.NoError(t, b.Err())
	assert.Equal(t, []int{1, 2, 3}, drain(b.RingChannel))
}

func TestFromStreamRecordsError(t *testing.T) {
	boom := errors.New("boom")

	b := FromStream(rx.Fail[int](boom), 1)

	<-b.Done()
	require.ErrorIs(t, b.Err(), boom)
	assert.Empty(t, drain(b.RingChannel))
}

func TestFromStreamCancel(t *testing.T) {
	released := false
	st := rx.Create(func(s *rx.Subscriber[int]) func() {
		s.Next(42)
		return func() { released = true }
	})

	b := FromStream(st, 2)
	b.Cancel()

	<-b.Done()
	assert.True(t, released, "cancel MUST dispose the subscription")
	assert.NoError(t, b.Err())
	assert.Equal(t, []int{42}, drain(b.RingChannel))
}
