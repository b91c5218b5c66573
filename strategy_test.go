package streams

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHighWaterMark(t *testing.T) {
	assert.NoError(t, validateHighWaterMark(0))
	assert.NoError(t, validateHighWaterMark(1.5))

	err := validateHighWaterMark(-1)
	var re *RangeError
	assert.ErrorAs(t, err, &re)

	err = validateHighWaterMark(math.NaN())
	assert.ErrorAs(t, err, &re)
}

func TestComputeSize_Valid(t *testing.T) {
	size, err := computeSize(func(any) float64 { return 3 }, "chunk")
	require.NoError(t, err)
	assert.Equal(t, float64(3), size)
}

func TestComputeSize_NegativeRejected(t *testing.T) {
	_, err := computeSize(func(any) float64 { return -1 }, "chunk")
	var re *RangeError
	assert.ErrorAs(t, err, &re)
}

func TestComputeSize_NaNAndInfRejected(t *testing.T) {
	_, err := computeSize(func(any) float64 { return math.NaN() }, "chunk")
	var re *RangeError
	assert.ErrorAs(t, err, &re)

	_, err = computeSize(func(any) float64 { return math.Inf(1) }, "chunk")
	assert.ErrorAs(t, err, &re)
}

func TestComputeSize_PanicRecoveredAsError(t *testing.T) {
	_, err := computeSize(func(any) float64 { panic("kaboom") }, "chunk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestComputeSize_PanicWithErrorValue(t *testing.T) {
	wantErr := errors.New("specific")
	_, err := computeSize(func(any) float64 { panic(wantErr) }, "chunk")
	assert.Same(t, wantErr, err)
}

func TestCountStrategy(t *testing.T) {
	s := CountStrategy(4)
	assert.Equal(t, float64(4), s.HighWaterMark)
	assert.Equal(t, float64(1), s.Size("anything"))
}

func TestByteLengthStrategy(t *testing.T) {
	s := ByteLengthStrategy(16, func(chunk any) int { return len(chunk.([]byte)) })
	assert.Equal(t, float64(3), s.Size([]byte("abc")))
}
