package streams

import (
	"context"
	"sync"
)

// WritableState is the lifecycle state of a [WritableStream].
type WritableState int

const (
	// WritableWritable is the initial, steady-state state.
	WritableWritable WritableState = iota
	// WritableErroring means an error is propagating but the in-flight
	// sink operation (if any) hasn't settled yet.
	WritableErroring
	// WritableErrored is terminal: the sink or a consumer callback failed.
	WritableErrored
	// WritableClosed is terminal: the sink finished gracefully.
	WritableClosed
)

// WStartFunc runs once before any write/close is dispatched to the sink.
type WStartFunc func(c *WritableStreamDefaultController) *Settlement

// WriteFunc writes one chunk to the sink. At most one call is ever in
// flight against the sink at a time.
type WriteFunc func(chunk any, c *WritableStreamDefaultController) *Settlement

// CloseFunc flushes and closes the sink.
type CloseFunc func(c *WritableStreamDefaultController) *Settlement

// WAbortFunc aborts the sink with reason.
type WAbortFunc func(reason any) *Settlement

// WritableSink is the consumer-supplied callback set passed to
// [NewWritableStream], corresponding to the sink argument.
type WritableSink struct {
	Start WStartFunc
	Write WriteFunc
	Close CloseFunc
	Abort WAbortFunc
}

// WritableStream is the Writable sink core: a state machine of
// {writable, erroring, errored, closed} owning one Default Controller and
// at most one [WritableStreamDefaultWriter].
//
// As with [ReadableStream], every mutation happens under mu and any
// consumer-visible settlement resolution is deferred to a post-unlock
// "actions" slice so sink/consumer callbacks may safely re-enter the
// controller.
type WritableStream struct {
	mu         *sync.Mutex
	state      WritableState
	storedErr  error
	writer     *WritableStreamDefaultWriter
	controller *WritableStreamDefaultController
	logger     Logger
}

// NewWritableStream constructs a [WritableStream] from sink and options.
// Default high-water mark is 1 and default size function is the constant
// 1.
func NewWritableStream(sink WritableSink, opts ...WritableStreamOption) (*WritableStream, error) {
	return newWritableStreamWithMutex(new(sync.Mutex), sink, opts...)
}

// newWritableStreamWithMutex is NewWritableStream generalized to accept an
// externally-owned mutex, so a [TransformStream]'s writable and readable
// halves can share one lock.
func newWritableStreamWithMutex(mu *sync.Mutex, sink WritableSink, opts ...WritableStreamOption) (*WritableStream, error) {
	var o writableStreamOptions
	for _, opt := range opts {
		opt.applyWritable(&o)
	}
	hwm := 1.0
	if o.hasHWM {
		hwm = o.hwm
	}
	if err := validateHighWaterMark(hwm); err != nil {
		return nil, err
	}
	sizeFn := o.sizeFn
	if sizeFn == nil {
		sizeFn = defaultSize
	}

	ws := &WritableStream{mu: mu, state: WritableWritable, logger: o.logger}
	ws.controller = newWritableController(ws, Strategy{HighWaterMark: hwm, Size: sizeFn}, sink)
	ws.controller.start()
	return ws, nil
}

// State returns the stream's current lifecycle state.
func (ws *WritableStream) State() WritableState {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.state
}

// StoredError returns the error the stream was errored with, or nil.
func (ws *WritableStream) StoredError() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.storedErr
}

// Locked reports whether a writer currently holds this stream.
func (ws *WritableStream) Locked() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.writer != nil
}

// Controller returns the stream's [WritableStreamDefaultController].
func (ws *WritableStream) Controller() *WritableStreamDefaultController {
	return ws.controller
}

// GetWriter locks the stream to a new [WritableStreamDefaultWriter].
// Fails with a [TypeError] if the stream is already locked.
func (ws *WritableStream) GetWriter() (*WritableStreamDefaultWriter, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.writer != nil {
		return nil, newTypeError("streams: WritableStream is already locked to a writer")
	}
	w := newWritableStreamDefaultWriter(ws)
	ws.writer = w
	return w, nil
}

// Abort aborts the stream directly (without a writer). See
// [WritableStreamDefaultWriter.Abort] for the full abort-request protocol.
func (ws *WritableStream) Abort(ctx context.Context, reason any) error {
	ws.mu.Lock()
	var actions []func()
	settlement := ws.controller.requestAbortLocked(&actions, reason)
	ws.mu.Unlock()
	runActions(actions)
	_, err := settlement.Wait(ctx)
	return err
}

func (ws *WritableStream) releaseWriterLocked() {
	ws.writer = nil
}
