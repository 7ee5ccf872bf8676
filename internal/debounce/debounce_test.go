package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer(t *testing.T) {
	t.Run("coalesces to last trigger", func(t *testing.T) {
		d := New(30 * time.Millisecond)
		var calls, last atomic.Int64
		for i := 1; i <= 10; i++ {
			v := int64(i)
			d.Trigger(func() {
				calls.Add(1)
				last.Store(v)
			})
		}

		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(60 * time.Millisecond)
		assert.EqualValues(t, 1, calls.Load())
		assert.EqualValues(t, 10, last.Load())
		assert.False(t, d.Pending())
	})

	t.Run("stop cancels pending", func(t *testing.T) {
		d := New(20 * time.Millisecond)
		var calls atomic.Int64
		d.Trigger(func() { calls.Add(1) })
		assert.True(t, d.Pending())
		d.Stop()

		time.Sleep(50 * time.Millisecond)
		assert.EqualValues(t, 0, calls.Load())
		assert.False(t, d.Trigger(func() { calls.Add(1) }))
	})

	t.Run("fires again after settling", func(t *testing.T) {
		d := New(10 * time.Millisecond)
		var calls atomic.Int64
		d.Trigger(func() { calls.Add(1) })
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		d.Trigger(func() { calls.Add(1) })
		require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	})

	t.Run("superseded call waiting on a running one is dropped", func(t *testing.T) {
		d := New(time.Millisecond)
		release := make(chan struct{})
		var first, second, third, running, overlap atomic.Int64
		enter := func() {
			if running.Add(1) > 1 {
				overlap.Add(1)
			}
		}

		d.Trigger(func() {
			enter()
			defer running.Add(-1)
			first.Add(1)
			<-release
		})
		require.Eventually(t, func() bool { return first.Load() == 1 }, time.Second, time.Millisecond)

		// fires while the first call still runs and waits for it
		d.Trigger(func() {
			enter()
			defer running.Add(-1)
			second.Add(1)
		})
		time.Sleep(20 * time.Millisecond)
		d.Trigger(func() {
			enter()
			defer running.Add(-1)
			third.Add(1)
		})
		close(release)

		require.Eventually(t, func() bool { return third.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.EqualValues(t, 0, second.Load())
		assert.EqualValues(t, 0, overlap.Load())
	})
}
