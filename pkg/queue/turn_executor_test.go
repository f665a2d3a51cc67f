package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnExecutor_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the turn and frees the slot", func(t *testing.T) {
		e := NewTurnExecutor(time.Minute)
		var ran bool
		err := e.Run(ctx, "s1", func(context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
		assert.Equal(t, 0, e.ActiveCount())

		// Slot is reusable after the turn ends.
		require.NoError(t, e.Run(ctx, "s1", func(context.Context) error { return nil }))
	})

	t.Run("second concurrent turn on the same session is rejected", func(t *testing.T) {
		e := NewTurnExecutor(time.Minute)
		started := make(chan struct{})
		unblock := make(chan struct{})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Run(ctx, "s1", func(context.Context) error {
				close(started)
				<-unblock
				return nil
			})
		}()

		<-started
		err := e.Run(ctx, "s1", func(context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrTurnActive)

		// A different session is unaffected.
		require.NoError(t, e.Run(ctx, "s2", func(context.Context) error { return nil }))

		close(unblock)
		wg.Wait()
	})

	t.Run("cancel aborts the in-flight turn", func(t *testing.T) {
		e := NewTurnExecutor(time.Minute)
		started := make(chan struct{})

		var wg sync.WaitGroup
		var turnErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			turnErr = e.Run(ctx, "s1", func(turnCtx context.Context) error {
				close(started)
				<-turnCtx.Done()
				return turnCtx.Err()
			})
		}()

		<-started
		assert.True(t, e.Cancel("s1"))
		wg.Wait()
		assert.ErrorIs(t, turnErr, context.Canceled)

		assert.False(t, e.Cancel("s1"), "no in-flight turn left")
	})

	t.Run("timeout cancels the turn context", func(t *testing.T) {
		e := NewTurnExecutor(10 * time.Millisecond)
		err := e.Run(ctx, "s1", func(turnCtx context.Context) error {
			<-turnCtx.Done()
			return turnCtx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("stop rejects new turns and drains in-flight ones", func(t *testing.T) {
		e := NewTurnExecutor(time.Minute)
		started := make(chan struct{})

		var wg sync.WaitGroup
		var turnErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			turnErr = e.Run(ctx, "s1", func(turnCtx context.Context) error {
				close(started)
				<-turnCtx.Done()
				return turnCtx.Err()
			})
		}()

		<-started
		e.Stop()
		wg.Wait()
		assert.ErrorIs(t, turnErr, context.Canceled)

		err := e.Run(ctx, "s2", func(context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrShuttingDown)
	})

	t.Run("stress: only one winner per session at a time", func(t *testing.T) {
		e := NewTurnExecutor(time.Minute)
		const goroutines = 16
		release := make(chan struct{})
		results := make(chan error, goroutines)

		for i := 0; i < goroutines; i++ {
			go func() {
				results <- e.Run(ctx, "s1", func(context.Context) error {
					<-release
					return nil
				})
			}()
		}

		// All losers complete with ErrTurnActive while the single winner
		// holds the slot.
		for i := 0; i < goroutines-1; i++ {
			assert.ErrorIs(t, <-results, ErrTurnActive)
		}
		close(release)
		assert.NoError(t, <-results)
		assert.Equal(t, 0, e.ActiveCount())
	})
}
