package groutine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsInSubmissionOrder(t *testing.T) {
	l := NewLoop(context.Background(), "test-loop")
	defer l.Stop()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		l.Schedule(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v, "functions MUST run in submission order")
	}
}

func TestLoopReentrantScheduleDoesNotDeadlock(t *testing.T) {
	l := NewLoop(context.Background(), "test-loop")
	defer l.Stop()

	done := make(chan struct{})
	l.Schedule(func() {
		assert.True(t, l.OnLoop(), "scheduled function MUST run on the loop goroutine")
		l.Schedule(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested Schedule MUST be executed")
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(ctx, "test-loop")
	cancel()
	l.Stop()

	ran := false
	l.Schedule(func() { ran = true })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran, "a stopped loop MUST drop new functions")
	assert.Equal(t, "test-loop", l.Name())
}

func TestGoLabelsGoroutine(t *testing.T) {
	names := make(chan string, 1)
	Go(nil, "labelled-worker", func(ctx context.Context) {
		names <- Name(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "labelled-worker", name, "goroutine context MUST carry its name")
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
	assert.Empty(t, Name(context.Background()))
}
