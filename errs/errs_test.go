package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("wrap keeps cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := Wrap(CodeSynchronization, "binding.updateTarget", cause)

		assert.True(t, IsCode(err, CodeSynchronization))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "SYNCHRONIZATION: binding.updateTarget: boom", err.Error())
	})

	t.Run("wrap nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(CodeResolution, "op", nil))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", ErrDetached)
		assert.Equal(t, CodeLifecycle, CodeOf(err))
		assert.ErrorIs(t, err, ErrDetached)
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.Equal(t, Code(""), CodeOf(errors.New("x")))
		assert.Equal(t, Code(""), CodeOf(nil))
	})

	t.Run("formatted message", func(t *testing.T) {
		err := Newf(CodeConfiguration, "duplicate parameter %q", "Mode")
		assert.Equal(t, `CONFIGURATION: duplicate parameter "Mode"`, err.Error())
	})
}
