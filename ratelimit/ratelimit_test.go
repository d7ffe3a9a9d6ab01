package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, DefaultWindow, l.Window())

	l = New(-1, -1)
	assert.Equal(t, DefaultWindow, l.Window())
}

func TestAcquireUnderCap(t *testing.T) {
	l := New(time.Second, 5)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond,
		"acquires under the cap must not block")
	assert.Equal(t, 5, l.InFlight())
}

func TestAcquireBlocksAtCap(t *testing.T) {
	window := 150 * time.Millisecond
	l := New(window, 2)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, window-20*time.Millisecond,
		"third acquire must wait for the oldest slot to leave the window")
}

func TestWindowSlides(t *testing.T) {
	l := New(100*time.Millisecond, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Equal(t, 3, l.InFlight())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, l.InFlight())

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquireCancellable(t *testing.T) {
	l := New(time.Hour, 1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Acquire(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock on context cancellation")
	}
	assert.Equal(t, 1, l.InFlight(), "a cancelled wait must not consume a slot")
}

func TestConcurrentAcquiresNeverExceedCap(t *testing.T) {
	window := 100 * time.Millisecond
	l := New(window, 4)

	var mu sync.Mutex
	var timestamps []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	// No window-sized interval may contain more than the cap.
	for _, anchor := range timestamps {
		count := 0
		for _, ts := range timestamps {
			if !ts.Before(anchor) && ts.Sub(anchor) < window {
				count++
			}
		}
		assert.LessOrEqual(t, count, 4)
	}
}
