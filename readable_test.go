package streams

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadableStream_SimpleEnqueueRead(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{
		Start: func(c *ReadableStreamDefaultController) *Settlement {
			require.NoError(t, c.Enqueue(1))
			require.NoError(t, c.Enqueue(2))
			require.NoError(t, c.Close())
			return nil
		},
	})
	require.NoError(t, err)

	reader, err := rs.GetReader()
	require.NoError(t, err)

	ctx := context.Background()
	r1, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReadResult{Value: 1, Done: false}, r1)

	r2, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReadResult{Value: 2, Done: false}, r2)

	r3, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.True(t, r3.Done)

	assert.Equal(t, ReadableClosed, rs.State())
}

func TestReadableStream_PullOnDemand(t *testing.T) {
	var pulls int
	rs, err := NewReadableStream(ReadableSource{
		Pull: func(c *ReadableStreamDefaultController) *Settlement {
			pulls++
			if pulls >= 3 {
				require.NoError(t, c.Close())
				return nil
			}
			require.NoError(t, c.Enqueue(pulls))
			return nil
		},
	}, WithReadableHighWaterMark(0))
	require.NoError(t, err)

	reader, err := rs.GetReader()
	require.NoError(t, err)
	ctx := context.Background()

	r1, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Value)

	r2, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Value)

	r3, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.True(t, r3.Done)
}

func TestReadableStream_Backpressure(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{}, WithReadableHighWaterMark(2))
	require.NoError(t, err)

	c := rs.Controller()
	desired, ok := c.DesiredSize()
	require.True(t, ok)
	assert.Equal(t, float64(2), desired)

	require.NoError(t, c.Enqueue("a"))
	desired, ok = c.DesiredSize()
	require.True(t, ok)
	assert.Equal(t, float64(1), desired)

	require.NoError(t, c.Enqueue("b"))
	desired, ok = c.DesiredSize()
	require.True(t, ok)
	assert.LessOrEqual(t, desired, float64(0))
}

func TestReadableStream_ErrorPropagation(t *testing.T) {
	wantErr := errors.New("source failed")
	rs, err := NewReadableStream(ReadableSource{
		Start: func(c *ReadableStreamDefaultController) *Settlement {
			c.Error(wantErr)
			return nil
		},
	})
	require.NoError(t, err)

	reader, err := rs.GetReader()
	require.NoError(t, err)

	_, err = reader.Read(context.Background())
	assert.Same(t, wantErr, err)
	assert.Equal(t, ReadableErrored, rs.State())
	assert.Same(t, wantErr, rs.StoredError())

	_, closedErr := reader.Closed().Wait(context.Background())
	assert.Same(t, wantErr, closedErr)
}

func TestReadableStream_DoubleLockRejected(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{})
	require.NoError(t, err)

	_, err = rs.GetReader()
	require.NoError(t, err)

	_, err = rs.GetReader()
	var te *TypeError
	assert.ErrorAs(t, err, &te)
}

func TestReadableStream_CancelDirect(t *testing.T) {
	var canceledReason any
	rs, err := NewReadableStream(ReadableSource{
		Cancel: func(reason any) *Settlement {
			canceledReason = reason
			return nil
		},
	})
	require.NoError(t, err)

	err = rs.Cancel(context.Background(), "nvm")
	require.NoError(t, err)
	assert.Equal(t, "nvm", canceledReason)
	assert.Equal(t, ReadableClosed, rs.State())
}

func TestReadableStream_CancelWhileLockedRejected(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{})
	require.NoError(t, err)
	_, err = rs.GetReader()
	require.NoError(t, err)

	err = rs.Cancel(context.Background(), nil)
	var te *TypeError
	assert.ErrorAs(t, err, &te)
}

func TestReadableStream_ReadCtxCancelRetractsRequest(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{})
	require.NoError(t, err)
	reader, err := rs.GetReader()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = reader.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The pending read request must have been retracted, or ReleaseLock
	// would fail with "outstanding read requests".
	require.NoError(t, reader.ReleaseLock())
}

func TestReadableStream_ReleaseLockIdempotent(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{})
	require.NoError(t, err)
	reader, err := rs.GetReader()
	require.NoError(t, err)

	require.NoError(t, reader.ReleaseLock())
	require.NoError(t, reader.ReleaseLock())

	_, err = reader.Read(context.Background())
	var te *TypeError
	assert.ErrorAs(t, err, &te)
}

func TestReadableStream_NegativeHighWaterMarkRejected(t *testing.T) {
	_, err := NewReadableStream(ReadableSource{}, WithReadableHighWaterMark(-1))
	var re *RangeError
	assert.ErrorAs(t, err, &re)
}

func TestReadableStream_BytesRejectsCustomSize(t *testing.T) {
	_, err := NewReadableStream(ReadableSource{},
		WithReadableBytes(func(chunk any) int { return len(chunk.([]byte)) }),
		WithReadableSize(func(any) float64 { return 1 }),
	)
	var re *RangeError
	assert.ErrorAs(t, err, &re)
}
