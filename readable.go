package streams

import (
	"context"
	"sync"
)

// ReadableState is the lifecycle state of a [ReadableStream].
type ReadableState int

const (
	// ReadableReadable is the initial, steady-state state: open for
	// enqueue/pull/cancel.
	ReadableReadable ReadableState = iota
	// ReadableClosed means the source has finished producing chunks and
	// the queue has drained.
	ReadableClosed
	// ReadableErrored means the source or a consumer callback failed.
	ReadableErrored
)

// ReadResult is what a read, or the async-iterator adapter's next step,
// resolves to. Done true implies Value is nil.
type ReadResult struct {
	Value any
	Done  bool
}

// ResolvedSettlement returns an already-fulfilled [Settlement] carrying
// value, for source/sink/transform callbacks that complete synchronously.
func ResolvedSettlement(value any) *Settlement {
	s, resolve, _ := NewSettlement()
	resolve(value)
	return s
}

// RejectedSettlement returns an already-rejected [Settlement], for
// source/sink/transform callbacks that fail synchronously.
func RejectedSettlement(err error) *Settlement {
	s, _, reject := NewSettlement()
	reject(err)
	return s
}

// StartFunc runs once, before any pull, to let the source enqueue initial
// chunks or stash the controller for later use. A nil StartFunc behaves as
// an immediately-resolved no-op.
type StartFunc func(c *ReadableStreamDefaultController) *Settlement

// PullFunc is invoked whenever the controller's pull discipline decides
// more chunks are wanted. At most one call is ever in flight;
// a nil PullFunc behaves as an immediately-resolved no-op (a source that
// only ever pushes from Start, or from its own goroutine, needs no Pull).
type PullFunc func(c *ReadableStreamDefaultController) *Settlement

// CancelFunc is invoked once when the stream is canceled by a consumer. A
// nil CancelFunc behaves as an immediately-resolved no-op.
type CancelFunc func(reason any) *Settlement

// ReadableSource is the producer-supplied callback set passed to
// [NewReadableStream], corresponding to the source argument.
type ReadableSource struct {
	Start  StartFunc
	Pull   PullFunc
	Cancel CancelFunc
}

// ReadableStream is the Readable source core: a state machine of
// {readable, closed, errored} owning one Default Controller and at most
// one [ReadableStreamDefaultReader].
//
// Every field below is guarded by mu. Methods that mutate state only ever
// invoke user/consumer callbacks (Settlement resolution, source callbacks)
// after releasing mu — state mutation is collected into an "actions" slice
// of deferred closures and run post-unlock. This is what makes the
// controller tolerant of re-entrant calls from within those callbacks.
type ReadableStream struct {
	mu         *sync.Mutex
	state      ReadableState
	storedErr  error
	reader     *ReadableStreamDefaultReader
	disturbed  bool
	controller *ReadableStreamDefaultController
	logger     Logger

	byteMode              bool
	autoAllocateChunkSize int
}

// NewReadableStream constructs a [ReadableStream] from source and options.
// Default high-water mark is 1 and default size function is the constant 1,
// unless [WithReadableBytes] selects byte mode, whose default
// high-water mark is 0.
func NewReadableStream(source ReadableSource, opts ...ReadableStreamOption) (*ReadableStream, error) {
	return newReadableStreamWithMutex(new(sync.Mutex), source, opts...)
}

// newReadableStreamWithMutex is NewReadableStream generalized to accept an
// externally-owned mutex, so a [TransformStream]'s readable and writable
// halves can share one lock (a transform's Flush/Transform callbacks touch
// both sides as a single unit of state).
func newReadableStreamWithMutex(mu *sync.Mutex, source ReadableSource, opts ...ReadableStreamOption) (*ReadableStream, error) {
	var o readableStreamOptions
	for _, opt := range opts {
		opt.applyReadable(&o)
	}
	if o.bytes && o.hasSizeFn {
		return nil, newRangeError("streams: a byte-typed readable rejects a caller-supplied size function")
	}
	defaultHWM := 1.0
	if o.bytes {
		defaultHWM = 0
	}
	hwm := defaultHWM
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

	rs := &ReadableStream{
		mu:                    mu,
		state:                 ReadableReadable,
		logger:                o.logger,
		byteMode:              o.bytes,
		autoAllocateChunkSize: o.autoAllocateChunkSize,
	}
	rs.controller = newReadableController(rs, Strategy{HighWaterMark: hwm, Size: sizeFn}, source)
	rs.controller.start()
	return rs, nil
}

// State returns the stream's current lifecycle state.
func (rs *ReadableStream) State() ReadableState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// StoredError returns the error the stream was errored with, or nil.
func (rs *ReadableStream) StoredError() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.storedErr
}

// Locked reports whether a reader currently holds this stream: a reader
// exists if and only if the stream is locked.
func (rs *ReadableStream) Locked() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.reader != nil
}

// Disturbed reports whether the stream has served at least one read or
// been canceled. It is monotonic.
func (rs *ReadableStream) Disturbed() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.disturbed
}

// Controller returns the stream's [ReadableStreamDefaultController], for
// source code that needs to enqueue from outside the Start/Pull callbacks
// (e.g. its own goroutine).
func (rs *ReadableStream) Controller() *ReadableStreamDefaultController {
	return rs.controller
}

// GetReader locks the stream to a new [ReadableStreamDefaultReader] and
// returns it. Fails with a [TypeError] if the stream is already locked.
func (rs *ReadableStream) GetReader() (*ReadableStreamDefaultReader, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.reader != nil {
		return nil, newTypeError("streams: ReadableStream is already locked to a reader")
	}
	r := newReadableStreamDefaultReader(rs)
	rs.reader = r
	return r, nil
}

// Cancel cancels the stream directly (without a reader), as a convenience
// for one-shot consumers. It behaves as the cancel step:
// resetting the queue, invoking the source's Cancel callback, and clearing
// algorithms. Fails with a [TypeError] if the stream is locked.
func (rs *ReadableStream) Cancel(ctx context.Context, reason any) error {
	rs.mu.Lock()
	if rs.reader != nil {
		rs.mu.Unlock()
		return newTypeError("streams: cannot cancel a locked ReadableStream directly")
	}
	var actions []func()
	settlement := rs.cancelLocked(&actions, reason)
	rs.mu.Unlock()
	runActions(actions)
	_, err := settlement.Wait(ctx)
	return err
}

// cancelLocked performs the cancel algorithm assuming rs.mu is held. It
// returns a settlement that resolves once cancellation (and the source's
// Cancel callback) has completed. Any consumer-visible resolution is
// appended to actions instead of being invoked inline.
func (rs *ReadableStream) cancelLocked(actions *[]func(), reason any) *Settlement {
	rs.disturbed = true
	if rs.state == ReadableClosed {
		return ResolvedSettlement(nil)
	}
	if rs.state == ReadableErrored {
		return RejectedSettlement(rs.storedErr)
	}
	rs.controller.resetQueueLocked()
	settlement := rs.controller.cancelStepLocked(reason)
	rs.state = ReadableClosed
	if r := rs.reader; r != nil {
		r.resolveAllReadsDoneLocked(actions)
		r.resolveClosedLocked(actions, nil)
	}
	return settlement
}

func (rs *ReadableStream) errorLocked(actions *[]func(), err error) {
	if rs.state != ReadableReadable {
		return
	}
	rs.controller.resetQueueLocked()
	rs.controller.clearAlgorithmsLocked()
	rs.storedErr = err
	rs.state = ReadableErrored
	*actions = append(*actions, func() { logError(rs.logger, "readable", "stream errored", err) })
	if r := rs.reader; r != nil {
		r.rejectAllReadsLocked(actions, err)
		r.rejectClosedLocked(actions, err)
	}
}

// releaseReaderLocked detaches the current reader, if any, so the stream
// may be locked to a new one. Called by ReleaseLock once its read-requests
// queue is empty.
func (rs *ReadableStream) releaseReaderLocked() {
	rs.reader = nil
}

// runActions executes deferred post-unlock callbacks in order. Defined
// once here; used by the readable, writable, transform, pipe, and tee
// implementations alike.
func runActions(actions []func()) {
	for _, a := range actions {
		a()
	}
}
