package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor(t *testing.T) {
	t.Run("ticks tasks until canceled", func(t *testing.T) {
		s := New()
		var ticks atomic.Int64
		s.Add("counter", 10*time.Millisecond, func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		require.Eventually(t, func() bool { return ticks.Load() >= 3 },
			2*time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("supervisor did not stop after cancel")
		}
	})

	t.Run("a failing task keeps retrying and does not stop its sibling", func(t *testing.T) {
		s := New()
		var failures, healthy atomic.Int64
		s.Add("flaky", 10*time.Millisecond, func(ctx context.Context) error {
			failures.Add(1)
			return errors.New("transient store failure")
		})
		s.Add("steady", 10*time.Millisecond, func(ctx context.Context) error {
			healthy.Add(1)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.Run(ctx)

		require.Eventually(t, func() bool {
			return failures.Load() >= 3 && healthy.Load() >= 3
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("a slow task does not delay an independent one", func(t *testing.T) {
		s := New()
		var fast atomic.Int64
		block := make(chan struct{})
		s.Add("slow", 5*time.Millisecond, func(ctx context.Context) error {
			<-block
			return nil
		})
		s.Add("fast", 5*time.Millisecond, func(ctx context.Context) error {
			fast.Add(1)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.Run(ctx)

		require.Eventually(t, func() bool { return fast.Load() >= 5 },
			2*time.Second, 5*time.Millisecond)
		close(block)
	})
}
