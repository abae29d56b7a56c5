package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreaker(t *testing.T) {
	t.Run("opens after consecutive failures", func(t *testing.T) {
		b := New(3, time.Minute)

		for i := 0; i < 3; i++ {
			require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
		}
		assert.Equal(t, StateOpen, b.State())

		called := false
		err := b.Do(func() error { called = true; return nil })
		assert.ErrorIs(t, err, ErrOpen)
		assert.False(t, called)
	})

	t.Run("success resets the failure count", func(t *testing.T) {
		b := New(3, time.Minute)

		require.Error(t, b.Do(func() error { return errBoom }))
		require.Error(t, b.Do(func() error { return errBoom }))
		require.NoError(t, b.Do(func() error { return nil }))
		require.Error(t, b.Do(func() error { return errBoom }))
		require.Error(t, b.Do(func() error { return errBoom }))

		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("probe after cooldown closes on success", func(t *testing.T) {
		b := New(1, time.Minute)
		clock := time.Now()
		b.now = func() time.Time { return clock }

		require.Error(t, b.Do(func() error { return errBoom }))
		assert.Equal(t, StateOpen, b.State())

		clock = clock.Add(2 * time.Minute)
		assert.Equal(t, StateHalfOpen, b.State())
		require.NoError(t, b.Do(func() error { return nil }))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("probe failure reopens immediately", func(t *testing.T) {
		b := New(5, time.Minute)
		clock := time.Now()
		b.now = func() time.Time { return clock }

		for i := 0; i < 5; i++ {
			require.Error(t, b.Do(func() error { return errBoom }))
		}
		clock = clock.Add(2 * time.Minute)

		require.Error(t, b.Do(func() error { return errBoom }))
		assert.Equal(t, StateOpen, b.State())
	})
}
