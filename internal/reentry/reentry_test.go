package reentry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard(t *testing.T) {
	t.Run("same goroutine is rejected", func(t *testing.T) {
		var g Guard
		assert.True(t, g.Enter())
		assert.True(t, g.Active())
		assert.False(t, g.Enter())
		g.Exit()
		assert.False(t, g.Active())
		assert.True(t, g.Enter())
		g.Exit()
	})

	t.Run("other goroutines enter independently", func(t *testing.T) {
		var g Guard
		assert.True(t, g.Enter())
		defer g.Exit()

		var wg sync.WaitGroup
		entered := false
		wg.Add(1)
		go func() {
			defer wg.Done()
			entered = g.Enter()
			if entered {
				g.Exit()
			}
		}()
		wg.Wait()
		assert.True(t, entered)
	})
}
