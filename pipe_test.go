package streams

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeTo_HappyPath(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{
		Start: func(c *ReadableStreamDefaultController) *Settlement {
			require.NoError(t, c.Enqueue(1))
			require.NoError(t, c.Enqueue(2))
			require.NoError(t, c.Close())
			return nil
		},
	})
	require.NoError(t, err)

	var got []any
	dest, err := NewWritableStream(WritableSink{
		Write: func(chunk any, c *WritableStreamDefaultController) *Settlement {
			got = append(got, chunk)
			return nil
		},
	})
	require.NoError(t, err)

	settlement := rs.PipeTo(context.Background(), dest)
	_, err = settlement.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []any{1, 2}, got)
	assert.Equal(t, WritableClosed, dest.State())
}

func TestPipeTo_SourceErrorAbortsDest(t *testing.T) {
	wantErr := errors.New("source broke")
	rs, err := NewReadableStream(ReadableSource{
		Start: func(c *ReadableStreamDefaultController) *Settlement {
			c.Error(wantErr)
			return nil
		},
	})
	require.NoError(t, err)

	var aborted bool
	dest, err := NewWritableStream(WritableSink{
		Abort: func(reason any) *Settlement {
			aborted = true
			return nil
		},
	})
	require.NoError(t, err)

	_, err = rs.PipeTo(context.Background(), dest).Wait(context.Background())
	assert.Same(t, wantErr, err)
	assert.True(t, aborted)
}

func TestPipeTo_PreventCancelLeavesSourceAlone(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{})
	require.NoError(t, err)

	wantErr := errors.New("dest broke")
	dest, err := NewWritableStream(WritableSink{
		Write: func(chunk any, c *WritableStreamDefaultController) *Settlement {
			return RejectedSettlement(wantErr)
		},
	})
	require.NoError(t, err)

	rc := rs.Controller()
	require.NoError(t, rc.Enqueue("x"))

	_, err = rs.PipeTo(context.Background(), dest, WithPipePreventCancel()).Wait(context.Background())
	assert.Same(t, wantErr, err)
	// with preventCancel, source is left readable rather than canceled.
	assert.Equal(t, ReadableReadable, rs.State())
}

func TestPipeTo_AbortSignal(t *testing.T) {
	// rs has no Start/Pull, so the pipe loop's Read blocks forever once it
	// gets past Ready() — only the signal can unblock it.
	rs, err := NewReadableStream(ReadableSource{})
	require.NoError(t, err)
	var aborted bool
	dest, err := NewWritableStream(WritableSink{
		Abort: func(reason any) *Settlement {
			aborted = true
			return nil
		},
	})
	require.NoError(t, err)

	ctrl := NewAbortController()
	settlement := rs.PipeTo(context.Background(), dest, WithPipeSignal(ctrl.Signal()))

	// Give the pipe loop a moment to block on Read, then trip the signal.
	time.Sleep(10 * time.Millisecond)
	ctrl.Abort("stop")

	_, err = settlement.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, aborted)
}

func TestPipeTo_DestWriteErrorCancelsSourceOnce(t *testing.T) {
	wantErr := errors.New("dest broke on chunk 2")
	var canceledCount int
	var canceledReason any
	rs, err := NewReadableStream(ReadableSource{
		Start: func(c *ReadableStreamDefaultController) *Settlement {
			require.NoError(t, c.Enqueue(1))
			require.NoError(t, c.Enqueue(2))
			require.NoError(t, c.Enqueue(3))
			require.NoError(t, c.Close())
			return nil
		},
		Cancel: func(reason any) *Settlement {
			canceledCount++
			canceledReason = reason
			return nil
		},
	})
	require.NoError(t, err)

	var n int
	dest, err := NewWritableStream(WritableSink{
		Write: func(chunk any, c *WritableStreamDefaultController) *Settlement {
			n++
			if n == 2 {
				return RejectedSettlement(wantErr)
			}
			return nil
		},
	})
	require.NoError(t, err)

	_, err = rs.PipeTo(context.Background(), dest).Wait(context.Background())
	assert.Same(t, wantErr, err)
	assert.Equal(t, 1, canceledCount)
	assert.Same(t, wantErr, canceledReason)
}

func TestPipeTo_AlreadyLockedRejected(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{})
	require.NoError(t, err)
	_, err = rs.GetReader()
	require.NoError(t, err)

	dest, err := NewWritableStream(WritableSink{})
	require.NoError(t, err)

	_, err = rs.PipeTo(context.Background(), dest).Wait(context.Background())
	var te *TypeError
	assert.ErrorAs(t, err, &te)
}

func TestPipeThrough(t *testing.T) {
	rs, err := NewReadableStream(ReadableSource{
		Start: func(c *ReadableStreamDefaultController) *Settlement {
			require.NoError(t, c.Enqueue("a"))
			require.NoError(t, c.Close())
			return nil
		},
	})
	require.NoError(t, err)

	ts, err := NewTransformStream(Transformer{})
	require.NoError(t, err)

	out, settlement := rs.PipeThrough(context.Background(), ts)
	reader, err := out.GetReader()
	require.NoError(t, err)

	result, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", result.Value)

	_, err = settlement.Wait(context.Background())
	require.NoError(t, err)
}
