package derrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(New(KindNotFound, "missing")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	// The kind survives further wrapping with %w
	wrapped := fmt.Errorf("handler: %w", Newf(KindConflict, "build %s exists", "b-1"))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, IsConflict(wrapped))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, KindInternal, "failed to save")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to save: disk full", err.Error())
	assert.Equal(t, "failed to save", DetailOf(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, KindInternal, "x"))
	assert.NoError(t, Wrapf(nil, KindInternal, "x %d", 1))
}

func TestDetailOfUntagged(t *testing.T) {
	assert.Equal(t, "plain", DetailOf(errors.New("plain")))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(New(KindNotFound, "x")))
	assert.True(t, IsInvalid(New(KindInvalid, "x")))
	assert.False(t, IsNotFound(New(KindInvalid, "x")))
}
