package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_RunsAndStops(t *testing.T) {
	c := New(logging.Discard())

	var fast, failing atomic.Int32
	require.NoError(t, c.Add(Task{Name: "fast", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
		fast.Add(1)
		return nil
	}}))
	require.NoError(t, c.Add(Task{Name: "failing", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
		failing.Add(1)
		return errors.New("mint unreachable")
	}}))

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrRunning)
	assert.ErrorIs(t, c.Add(Task{Name: "late", Interval: time.Second, Run: func(context.Context) error { return nil }}), ErrRunning)

	require.Eventually(t, func() bool { return fast.Load() >= 3 && failing.Load() >= 3 }, time.Second, time.Millisecond,
		"failing tasks keep being retried")

	c.Stop()
	stopped := fast.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, fast.Load())

	c.Stop()
}

func TestCoordinator_StopCancelsRunningTask(t *testing.T) {
	c := New(nil)
	started := make(chan struct{})
	require.NoError(t, c.Add(Task{Name: "slow", Interval: time.Hour, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))

	require.NoError(t, c.Start(context.Background()))
	<-started

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestCoordinator_RunNow(t *testing.T) {
	c := New(nil)
	var n atomic.Int32
	require.NoError(t, c.Add(Task{Name: "mint-quotes", Interval: time.Hour, Run: func(ctx context.Context) error {
		n.Add(1)
		return nil
	}}))

	require.NoError(t, c.RunNow(context.Background(), "mint-quotes"))
	assert.Equal(t, int32(1), n.Load())
	assert.ErrorIs(t, c.RunNow(context.Background(), "nope"), ErrUnknownTask)
	assert.Equal(t, []string{"mint-quotes"}, c.Names())
}

func TestCoordinator_AddValidates(t *testing.T) {
	c := New(nil)
	run := func(context.Context) error { return nil }
	assert.Error(t, c.Add(Task{Name: "", Interval: time.Second, Run: run}))
	assert.Error(t, c.Add(Task{Name: "x", Interval: 0, Run: run}))
	assert.Error(t, c.Add(Task{Name: "x", Interval: time.Second}))
	require.NoError(t, c.Add(Task{Name: "x", Interval: time.Second, Run: run}))
	assert.Error(t, c.Add(Task{Name: "x", Interval: time.Second, Run: run}))
}

func TestCoordinator_ParentCancel(t *testing.T) {
	c := New(nil)
	var n atomic.Int32
	require.NoError(t, c.Add(Task{Name: "t", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		n.Add(1)
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return n.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	c.Stop()
}
