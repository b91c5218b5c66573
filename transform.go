package streams

import "sync"

// TransformStartFunc runs once, shared between both the inner writable and
// inner readable's start steps.
type TransformStartFunc func(c *TransformStreamDefaultController) *Settlement

// TransformFunc receives one chunk and is expected to Enqueue zero or more
// transformed chunks onto c before its returned settlement fulfills. A
// rejection errors both sides of the stream and propagates.
type TransformFunc func(chunk any, c *TransformStreamDefaultController) *Settlement

// TransformFlushFunc runs once, when the writable side closes, to let the
// transformer enqueue any buffered final output before the readable side
// closes.
type TransformFlushFunc func(c *TransformStreamDefaultController) *Settlement

// Transformer is the caller-supplied callback set passed to
// [NewTransformStream]. A nil Transform behaves as the identity transform
// (enqueue the chunk unchanged); a nil Start or Flush behaves as an
// immediately-resolved no-op.
type Transformer struct {
	Start     TransformStartFunc
	Transform TransformFunc
	Flush     TransformFlushFunc
}

// TransformStream is a paired Writable/Readable: writes to Writable run
// through Transform and land as reads from Readable, with a single shared
// backpressure signal bounding how far the readable side may run ahead of
// the writable side.
type TransformStream struct {
	mu *sync.Mutex

	Readable *ReadableStream
	Writable *WritableStream

	controller *TransformStreamDefaultController

	// backpressure and backpressureChange implement the handshake between
	// sinkWrite (waits while true) and sourcePull (clears it). Starts
	// true: nothing may be written until the readable side's first pull.
	backpressure       bool
	backpressureChange *Settlement
	bpResolve          func(any)
	bpReject           func(error)

	transformFn TransformFunc
	flushFn     TransformFlushFunc
	logger      Logger
}

// NewTransformStream constructs a [TransformStream] from transformer and
// options. WithTransformWritableStrategy/WithTransformReadableStrategy
// configure each side's queuing strategy independently.
func NewTransformStream(transformer Transformer, opts ...TransformStreamOption) (*TransformStream, error) {
	var o transformStreamOptions
	for _, opt := range opts {
		opt.applyTransform(&o)
	}

	mu := new(sync.Mutex)
	ts := &TransformStream{mu: mu, backpressure: true, logger: o.logger}
	ts.backpressureChange, ts.bpResolve, ts.bpReject = NewSettlement()
	ts.transformFn = transformer.Transform
	ts.flushFn = transformer.Flush

	startSettlement, startResolve, startReject := NewSettlement()

	var writeOpts []WritableStreamOption
	if o.hasWritableHWM {
		writeOpts = append(writeOpts, WithWritableHighWaterMark(o.writableHWM))
	}
	if o.writableSize != nil {
		writeOpts = append(writeOpts, WithWritableSize(o.writableSize))
	}
	if o.logger != nil {
		writeOpts = append(writeOpts, WithWritableLogger(o.logger))
	}
	writable, err := newWritableStreamWithMutex(mu, WritableSink{
		Start: func(*WritableStreamDefaultController) *Settlement { return startSettlement },
		Write: func(chunk any, _ *WritableStreamDefaultController) *Settlement { return ts.sinkWrite(chunk) },
		Close: func(*WritableStreamDefaultController) *Settlement { return ts.sinkClose() },
		Abort: func(reason any) *Settlement { return ts.sinkAbort(reason) },
	}, writeOpts...)
	if err != nil {
		return nil, err
	}

	var readOpts []ReadableStreamOption
	if o.hasReadableHWM {
		readOpts = append(readOpts, WithReadableHighWaterMark(o.readableHWM))
	} else {
		readOpts = append(readOpts, WithReadableHighWaterMark(0))
	}
	if o.readableSize != nil {
		readOpts = append(readOpts, WithReadableSize(o.readableSize))
	}
	if o.logger != nil {
		readOpts = append(readOpts, WithReadableLogger(o.logger))
	}
	readable, err := newReadableStreamWithMutex(mu, ReadableSource{
		Start:  func(*ReadableStreamDefaultController) *Settlement { return startSettlement },
		Pull:   func(*ReadableStreamDefaultController) *Settlement { return ts.sourcePull() },
		Cancel: func(reason any) *Settlement { return ts.sourceCancel(reason) },
	}, readOpts...)
	if err != nil {
		return nil, err
	}

	ts.Writable = writable
	ts.Readable = readable
	ts.controller = &TransformStreamDefaultController{ts: ts}

	if transformer.Start == nil {
		startResolve(nil)
	} else if settlement := transformer.Start(ts.controller); settlement == nil {
		startResolve(nil)
	} else {
		settlement.Subscribe(func(_ any, err error) {
			if err != nil {
				startReject(err)
				return
			}
			startResolve(nil)
		})
	}

	return ts, nil
}

// Controller returns the [TransformStreamDefaultController] passed to
// Transform/Flush/Start.
func (ts *TransformStream) Controller() *TransformStreamDefaultController { return ts.controller }

func (ts *TransformStream) errorBoth(err error) {
	ts.Readable.controller.Error(err)
	ts.Writable.controller.Error(err)
}

// sinkWrite is the inner writable's write step: wait out backpressure (if
// any), re-raise a concurrently-started writable error, then run the
// transform.
func (ts *TransformStream) sinkWrite(chunk any) *Settlement {
	ts.mu.Lock()
	if !ts.backpressure {
		ts.mu.Unlock()
		return ts.performTransform(chunk)
	}
	bpChange := ts.backpressureChange
	ts.mu.Unlock()

	out, resolve, reject := NewSettlement()
	bpChange.Subscribe(func(_ any, _ error) {
		ts.mu.Lock()
		state := ts.Writable.state
		storedErr := ts.Writable.storedErr
		ts.mu.Unlock()
		if state == WritableErroring || state == WritableErrored {
			reject(storedErr)
			return
		}
		ts.performTransform(chunk).Subscribe(func(v any, err error) {
			if err != nil {
				reject(err)
				return
			}
			resolve(v)
		})
	})
	return out
}

func (ts *TransformStream) performTransform(chunk any) *Settlement {
	fn := ts.transformFn
	if fn == nil {
		if err := ts.controller.Enqueue(chunk); err != nil {
			return RejectedSettlement(err)
		}
		return ResolvedSettlement(nil)
	}
	settlement := fn(chunk, ts.controller)
	if settlement == nil {
		return ResolvedSettlement(nil)
	}
	out, resolve, reject := NewSettlement()
	settlement.Subscribe(func(_ any, err error) {
		if err != nil {
			ts.errorBoth(err)
			reject(err)
			return
		}
		resolve(nil)
	})
	return out
}

// sourcePull is the inner readable's pull step: clear backpressure,
// resolve backpressureChange, and return the (now-resolved) prior
// settlement so a blocked sinkWrite unblocks.
func (ts *TransformStream) sourcePull() *Settlement {
	ts.mu.Lock()
	prior := ts.backpressureChange
	ts.backpressure = false
	resolve := ts.bpResolve
	ts.mu.Unlock()
	resolve(nil)
	return prior
}

func (ts *TransformStream) sourceCancel(reason any) *Settlement {
	err, ok := reason.(error)
	if !ok {
		err = newTypeError("streams: transform readable canceled: %v", reason)
	}
	ts.mu.Lock()
	var actions []func()
	if ts.Writable.state == WritableWritable {
		ts.Writable.controller.startErroringLocked(&actions, err)
	}
	ts.mu.Unlock()
	runActions(actions)
	return ResolvedSettlement(nil)
}

func (ts *TransformStream) sinkAbort(reason any) *Settlement {
	err, ok := reason.(error)
	if !ok {
		err = newTypeError("streams: transform writable aborted: %v", reason)
	}
	ts.Readable.controller.Error(err)
	return ResolvedSettlement(nil)
}

// sinkClose is the inner writable's close step: run Flush, then close the
// readable side if still open; a Flush failure errors both sides.
func (ts *TransformStream) sinkClose() *Settlement {
	fn := ts.flushFn
	var inner *Settlement
	if fn == nil {
		inner = ResolvedSettlement(nil)
	} else if inner = fn(ts.controller); inner == nil {
		inner = ResolvedSettlement(nil)
	}

	out, resolve, reject := NewSettlement()
	inner.Subscribe(func(_ any, err error) {
		if err != nil {
			ts.errorBoth(err)
			reject(err)
			return
		}
		if ts.Readable.State() == ReadableReadable {
			if cerr := ts.Readable.controller.Close(); cerr != nil {
				reject(cerr)
				return
			}
		}
		resolve(nil)
	})
	return out
}

// TransformStreamDefaultController is passed to Transformer.Start/Transform/
// Flush, exposing the readable side's enqueue/error/terminate operations.
type TransformStreamDefaultController struct {
	ts *TransformStream
}

// DesiredSize reports the readable side's desired size.
func (c *TransformStreamDefaultController) DesiredSize() (float64, bool) {
	return c.ts.Readable.controller.DesiredSize()
}

// Enqueue forwards chunk to the readable side's default controller and
// recomputes backpressure; a rise from false to true installs a fresh
// backpressureChange settlement.
func (c *TransformStreamDefaultController) Enqueue(chunk any) error {
	ts := c.ts
	if err := ts.Readable.controller.Enqueue(chunk); err != nil {
		return err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	desired, ok := ts.Readable.controller.desiredSizeLocked()
	if ok && desired <= 0 && !ts.backpressure {
		ts.backpressure = true
		ts.backpressureChange, ts.bpResolve, ts.bpReject = NewSettlement()
	}
	return nil
}

// Error errors both the readable and writable sides with err.
func (c *TransformStreamDefaultController) Error(err error) {
	c.ts.errorBoth(err)
}

// Terminate implements the Terminate: closes the readable side
// (if still open), releases any writer blocked on backpressure, and errors
// the writable side with a terminated error.
func (c *TransformStreamDefaultController) Terminate() {
	ts := c.ts
	ts.mu.Lock()
	var actions []func()
	rc := ts.Readable.controller
	if rc.canCloseOrEnqueueLocked() {
		rc.closeRequested = true
		if rc.queue.len() == 0 {
			rc.finishCloseLocked(&actions)
		}
	}
	if ts.backpressure {
		ts.backpressure = false
		resolve := ts.bpResolve
		actions = append(actions, func() { resolve(nil) })
	}
	if ts.Writable.state == WritableWritable {
		ts.Writable.controller.startErroringLocked(&actions, newStateError("streams: transform stream terminated"))
	}
	ts.mu.Unlock()
	runActions(actions)
}
