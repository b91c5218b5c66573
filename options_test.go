package streams

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithReadableSize_CustomStrategyGatesPull(t *testing.T) {
	var pulls int
	rs, err := NewReadableStream(ReadableSource{
		Pull: func(c *ReadableStreamDefaultController) *Settlement {
			pulls++
			require.NoError(t, c.Enqueue("heavy"))
			return nil
		},
	}, WithReadableHighWaterMark(10), WithReadableSize(func(any) float64 { return 10 }))
	require.NoError(t, err)

	reader, err := rs.GetReader()
	require.NoError(t, err)

	// each chunk costs 10, equal to the hwm, so one pull saturates the queue;
	// the read then drains it, which triggers exactly one more pull.
	assert.Equal(t, 1, pulls)
	result, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "heavy", result.Value)
	assert.Equal(t, 2, pulls)
}

func TestWithWritableSize_CustomStrategyAffectsDesiredSize(t *testing.T) {
	ws, err := NewWritableStream(WritableSink{
		Write: func(chunk any, c *WritableStreamDefaultController) *Settlement { return nil },
	}, WithWritableHighWaterMark(10), WithWritableSize(func(any) float64 { return 10 }))
	require.NoError(t, err)

	writer, err := ws.GetWriter()
	require.NoError(t, err)
	assert.Equal(t, float64(10), writer.DesiredSize())

	require.NoError(t, writer.Write(context.Background(), "x"))
	// DesiredSize recovers to 10 once the synchronous sink Write has
	// settled and the queued entry has drained.
	assert.Equal(t, float64(10), writer.DesiredSize())
}

func TestTransformStreamOptions_CustomStrategies(t *testing.T) {
	ts, err := NewTransformStream(Transformer{
		Transform: func(chunk any, c *TransformStreamDefaultController) *Settlement {
			require.NoError(t, c.Enqueue(chunk))
			return nil
		},
	},
		WithTransformWritableStrategy(5, func(any) float64 { return 1 }),
		WithTransformReadableStrategy(5, func(any) float64 { return 1 }),
	)
	require.NoError(t, err)

	writer, err := ts.Writable.GetWriter()
	require.NoError(t, err)
	assert.Equal(t, float64(5), writer.DesiredSize())
}

func TestWithReadableAutoAllocateChunkSize_SurfacedOnController(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{},
		WithReadableBytes(func(chunk any) int { return len(chunk.([]byte)) }),
		WithReadableAutoAllocateChunkSize(512),
	)
	require.NoError(t, err)

	bc, ok := rs.ByteController()
	require.True(t, ok)
	size, ok := bc.AutoAllocateChunkSize()
	require.True(t, ok)
	assert.Equal(t, 512, size)
}
