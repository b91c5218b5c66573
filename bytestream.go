package streams

import "context"

// ReadableByteStreamController is the interface-level stand-in for a
// byte-typed readable's controller ("a byte-stream variant is
// mentioned in §6 but its buffer-splicing algorithm is out of scope"). It
// exposes the same enqueue/close/error/desired-size surface as
// [ReadableStreamDefaultController], plus the byte-mode-specific
// AutoAllocateChunkSize hint; it does not implement zero-copy transfer into
// a BYOB reader's caller-supplied buffer.
type ReadableByteStreamController struct {
	controller            *ReadableStreamDefaultController
	autoAllocateChunkSize int
}

// ByteController returns the stream's byte-stream controller view. The
// second result is false unless rs was constructed with
// [WithReadableBytes].
func (rs *ReadableStream) ByteController() (*ReadableByteStreamController, bool) {
	if !rs.byteMode {
		return nil, false
	}
	return &ReadableByteStreamController{controller: rs.controller, autoAllocateChunkSize: rs.autoAllocateChunkSize}, true
}

// AutoAllocateChunkSize returns the hint set via
// [WithReadableAutoAllocateChunkSize], if any.
func (c *ReadableByteStreamController) AutoAllocateChunkSize() (size int, ok bool) {
	return c.autoAllocateChunkSize, c.autoAllocateChunkSize > 0
}

// Enqueue adds chunk (conventionally a []byte) to the stream.
func (c *ReadableByteStreamController) Enqueue(chunk any) error { return c.controller.Enqueue(chunk) }

// Close requests a graceful close, per [ReadableStreamDefaultController.Close].
func (c *ReadableByteStreamController) Close() error { return c.controller.Close() }

// Error transitions the stream to errored.
func (c *ReadableByteStreamController) Error(err error) { c.controller.Error(err) }

// DesiredSize reports hwm minus queued size.
func (c *ReadableByteStreamController) DesiredSize() (float64, bool) { return c.controller.DesiredSize() }

// ReadableStreamBYOBReader is the BYOB reader mode obtained via
// getReader({mode: "byob"}). Read is satisfied by
// copying from the same sized queue a default reader consumes from, not by
// splicing the caller's buffer directly into the producer's write — the
// buffer-splicing algorithm itself is out of scope for this core.
type ReadableStreamBYOBReader struct {
	inner *ReadableStreamDefaultReader
}

// GetBYOBReader acquires a [ReadableStreamBYOBReader]. Fails with a
// [TypeError] unless rs was constructed with [WithReadableBytes], or if rs
// is already locked.
func (rs *ReadableStream) GetBYOBReader() (*ReadableStreamBYOBReader, error) {
	if !rs.byteMode {
		return nil, newTypeError("streams: GetBYOBReader requires a byte-typed readable (see WithReadableBytes)")
	}
	reader, err := rs.GetReader()
	if err != nil {
		return nil, err
	}
	return &ReadableStreamBYOBReader{inner: reader}, nil
}

// Read copies the next chunk into buf, reporting how many bytes were
// copied. A chunk longer than buf is truncated to len(buf) and the
// remainder discarded — this core does not retain partial chunks across
// Read calls, another consequence of the buffer-splicing algorithm being
// out of scope.
func (r *ReadableStreamBYOBReader) Read(ctx context.Context, buf []byte) (n int, done bool, err error) {
	result, err := r.inner.Read(ctx)
	if err != nil {
		return 0, false, err
	}
	if result.Done {
		return 0, true, nil
	}
	b, ok := result.Value.([]byte)
	if !ok {
		return 0, false, newTypeError("streams: byte-typed readable enqueued a non-[]byte chunk (%T)", result.Value)
	}
	return copy(buf, b), false, nil
}

// Cancel cancels the underlying stream.
func (r *ReadableStreamBYOBReader) Cancel(ctx context.Context, reason any) error {
	return r.inner.Cancel(ctx, reason)
}

// Closed returns the underlying stream's closed settlement.
func (r *ReadableStreamBYOBReader) Closed() *Settlement { return r.inner.Closed() }

// ReleaseLock detaches this reader from its stream.
func (r *ReadableStreamBYOBReader) ReleaseLock() error { return r.inner.ReleaseLock() }
