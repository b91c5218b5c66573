package streams

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("cause")
	e := &TypeError{Message: "bad call", Cause: cause}
	assert.Equal(t, "bad call", e.Error())
	assert.Same(t, cause, e.Unwrap())

	assert.Equal(t, "streams: type error", (&TypeError{}).Error())
}

func TestRangeError_ErrorAndUnwrap(t *testing.T) {
	e := newRangeError("hwm %d out of range", -1)
	assert.Equal(t, "hwm -1 out of range", e.Error())
	assert.Nil(t, e.Unwrap())
}

func TestStateError_ErrorAndUnwrap(t *testing.T) {
	e := newStateError("already closed")
	assert.Equal(t, "already closed", e.Error())
	assert.Equal(t, "streams: invalid state", (&StateError{}).Error())
}

func TestErrors_DistinctTypes(t *testing.T) {
	var te *TypeError
	var re *RangeError
	var se *StateError

	err := error(newTypeError("x"))
	assert.True(t, errors.As(err, &te))
	assert.False(t, errors.As(err, &re))
	assert.False(t, errors.As(err, &se))
}

func TestWrapError(t *testing.T) {
	cause := errors.New("root")
	err := WrapError("context", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "context: root", err.Error())
}
