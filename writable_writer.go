package streams

import "context"

// WritableStreamDefaultWriter is the consumer-facing handle obtained via
// [WritableStream.GetWriter]. Constructing one locks the
// stream.
type WritableStreamDefaultWriter struct {
	stream *WritableStream

	closedSettlement *Settlement
	closedResolve    func(any)
	closedReject     func(error)

	// readySettlement is resettable: "the writer's ready is
	// intentionally resettable, implemented by replacing the current
	// signal with a fresh pending one whenever backpressure re-engages."
	readySettlement *Settlement
	readyResolve    func(any)
	readyReject     func(error)
}

func newWritableStreamDefaultWriter(stream *WritableStream) *WritableStreamDefaultWriter {
	w := &WritableStreamDefaultWriter{stream: stream}
	w.closedSettlement, w.closedResolve, w.closedReject = NewSettlement()
	w.readySettlement, w.readyResolve, w.readyReject = NewSettlement()

	switch stream.state {
	case WritableClosed:
		w.closedResolve(nil)
		w.readyResolve(nil)
	case WritableErrored:
		w.closedReject(stream.storedErr)
		w.readyReject(stream.storedErr)
	default:
		if !stream.controller.backpressure {
			w.readyResolve(nil)
		}
	}
	return w
}

func (w *WritableStreamDefaultWriter) active() bool { return w.stream != nil }

// Closed returns a settlement that fulfills when the stream closes, or
// rejects with the stream's stored error if it errors.
func (w *WritableStreamDefaultWriter) Closed() *Settlement { return w.closedSettlement }

// Ready returns the current backpressure settlement. It is fulfilled when
// the writer may write without queuing indefinitely, and is replaced with
// a fresh pending settlement whenever backpressure re-engages — callers
// must re-fetch it via Ready() before each wait.
func (w *WritableStreamDefaultWriter) Ready() *Settlement {
	w.stream.mu.Lock()
	defer w.stream.mu.Unlock()
	return w.readySettlement
}

// DesiredSize returns the controller's desired size (hwm - queued size).
func (w *WritableStreamDefaultWriter) DesiredSize() float64 {
	return w.stream.controller.DesiredSize()
}

// Write enqueues chunk and blocks until the sink has actually written it
// (or the stream errors first, or ctx is done).
func (w *WritableStreamDefaultWriter) Write(ctx context.Context, chunk any) error {
	if !w.active() {
		return newTypeError("streams: writer has been released")
	}
	w.stream.mu.Lock()
	if !w.active() {
		w.stream.mu.Unlock()
		return newTypeError("streams: writer has been released")
	}
	var actions []func()
	settlement := w.stream.controller.enqueueWriteLocked(&actions, chunk)
	w.stream.mu.Unlock()
	runActions(actions)
	_, err := settlement.Wait(ctx)
	return err
}

// Close requests a graceful close and blocks until the sink's Close
// callback settles.
func (w *WritableStreamDefaultWriter) Close(ctx context.Context) error {
	if !w.active() {
		return newTypeError("streams: writer has been released")
	}
	w.stream.mu.Lock()
	if !w.active() {
		w.stream.mu.Unlock()
		return newTypeError("streams: writer has been released")
	}
	var actions []func()
	settlement := w.stream.controller.requestCloseLocked(&actions)
	w.stream.mu.Unlock()
	runActions(actions)
	_, err := settlement.Wait(ctx)
	return err
}

// Abort requests that the stream abort with reason and blocks until the
// sink's Abort callback settles (or immediately, if already closed/
// errored — "Abort on an already-errored writable resolves to
// undefined").
func (w *WritableStreamDefaultWriter) Abort(ctx context.Context, reason any) error {
	if !w.active() {
		return newTypeError("streams: writer has been released")
	}
	w.stream.mu.Lock()
	if !w.active() {
		w.stream.mu.Unlock()
		return newTypeError("streams: writer has been released")
	}
	var actions []func()
	settlement := w.stream.controller.requestAbortLocked(&actions, reason)
	w.stream.mu.Unlock()
	runActions(actions)
	_, err := settlement.Wait(ctx)
	return err
}

// ReleaseLock detaches the writer from its stream. A no-op if already
// released.
func (w *WritableStreamDefaultWriter) ReleaseLock() error {
	if !w.active() {
		return nil
	}
	w.stream.mu.Lock()
	defer w.stream.mu.Unlock()
	if !w.active() {
		return nil
	}
	stream := w.stream
	stream.releaseWriterLocked()
	w.stream = nil
	return nil
}

func (w *WritableStreamDefaultWriter) resetReadyLocked() {
	w.readySettlement, w.readyResolve, w.readyReject = NewSettlement()
}

func (w *WritableStreamDefaultWriter) resolveReadyLocked(actions *[]func()) {
	resolve := w.readyResolve
	*actions = append(*actions, func() { resolve(nil) })
}

func (w *WritableStreamDefaultWriter) rejectReadyLocked(actions *[]func(), err error) {
	reject := w.readyReject
	*actions = append(*actions, func() { reject(err) })
}

func (w *WritableStreamDefaultWriter) resolveClosedLocked(actions *[]func()) {
	resolve := w.closedResolve
	*actions = append(*actions, func() { resolve(nil) })
}

func (w *WritableStreamDefaultWriter) rejectClosedLocked(actions *[]func(), err error) {
	reject := w.closedReject
	*actions = append(*actions, func() { reject(err) })
}
