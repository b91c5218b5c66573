package streams

// writableEntryKind tags a queued writable-controller entry as either a
// chunk write or the (at most one, size-0) close sentinel.
type writableEntryKind int

const (
	writableEntryWrite writableEntryKind = iota
	writableEntryClose
)

type writableEntry struct {
	kind    writableEntryKind
	chunk   any
	resolve func(any)
	reject  func(error)
}

// abortRequest is the pending-abort-request attribute: at most one is
// live at a time, and multiple callers of Abort share its settlement.
type abortRequest struct {
	reason             any
	wasAlreadyErroring bool
	resolve            func(any)
	reject             func(error)
	settlement         *Settlement
}

// WritableStreamDefaultController is the producer-facing handle for a
// [WritableStream].
type WritableStreamDefaultController struct {
	stream *WritableStream

	queue    sizedQueue // entries are *writableEntry
	strategy Strategy

	started        bool
	closeRequested bool

	inFlightWrite *writableEntry
	inFlightClose *writableEntry

	pendingAbort *abortRequest

	backpressure bool

	startFn WStartFunc
	writeFn WriteFunc
	closeFn CloseFunc
	abortFn WAbortFunc
}

func newWritableController(stream *WritableStream, strategy Strategy, sink WritableSink) *WritableStreamDefaultController {
	c := &WritableStreamDefaultController{
		stream:   stream,
		strategy: strategy,
		startFn:  sink.Start,
		writeFn:  sink.Write,
		closeFn:  sink.Close,
		abortFn:  sink.Abort,
	}
	// backpressure starts true iff hwm - 0 <= 0, i.e. hwm <= 0.
	c.backpressure = strategy.HighWaterMark <= 0
	return c
}

func (c *WritableStreamDefaultController) start() {
	fn := c.startFn
	if fn == nil {
		c.onStarted()
		return
	}
	settlement := fn(c)
	if settlement == nil {
		c.onStarted()
		return
	}
	settlement.Subscribe(func(_ any, err error) {
		if err != nil {
			c.stream.mu.Lock()
			var actions []func()
			c.startErroringLocked(&actions, err)
			c.stream.mu.Unlock()
			runActions(actions)
			return
		}
		c.onStarted()
	})
}

func (c *WritableStreamDefaultController) onStarted() {
	c.stream.mu.Lock()
	c.started = true
	var actions []func()
	actions = append(actions, func() { logDebug(c.stream.logger, "writable", "controller started", nil) })
	c.advanceQueueLocked(&actions)
	c.stream.mu.Unlock()
	runActions(actions)
}

// DesiredSize mirrors the readable side's notion, expressed from the
// writable perspective: hwm - total queued size.
func (c *WritableStreamDefaultController) DesiredSize() float64 {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	return c.strategy.HighWaterMark - c.queue.total
}

// Error requests that the stream begin erroring with err, the
// producer-facing equivalent of the controller.error(e).
func (c *WritableStreamDefaultController) Error(err error) {
	c.stream.mu.Lock()
	var actions []func()
	if c.stream.state == WritableWritable {
		c.startErroringLocked(&actions, err)
	}
	c.stream.mu.Unlock()
	runActions(actions)
}

// recomputeBackpressureLocked implements the backpressure rule:
// recompute on every queue mutation while writable and no close is in
// flight; if it changed, reset/resolve the writer's ready settlement.
func (c *WritableStreamDefaultController) recomputeBackpressureLocked(actions *[]func()) {
	if c.stream.state != WritableWritable || c.inFlightClose != nil {
		return
	}
	newBP := (c.strategy.HighWaterMark - c.queue.total) <= 0
	if newBP == c.backpressure {
		return
	}
	c.backpressure = newBP
	if w := c.stream.writer; w != nil {
		if newBP {
			w.resetReadyLocked()
		} else {
			w.resolveReadyLocked(actions)
		}
	}
}

// enqueueWriteLocked is invoked by the writer on Write(chunk). It returns
// the settlement that fulfills once chunk has actually been written by the
// sink (not merely queued).
func (c *WritableStreamDefaultController) enqueueWriteLocked(actions *[]func(), chunk any) *Settlement {
	switch c.stream.state {
	case WritableErrored:
		return RejectedSettlement(c.stream.storedErr)
	case WritableErroring:
		return RejectedSettlement(c.stream.storedErr)
	case WritableClosed:
		return RejectedSettlement(newStateError("streams: cannot write to a closed WritableStream"))
	}
	if c.closeRequested {
		return RejectedSettlement(newStateError("streams: cannot write after close has been requested"))
	}

	size, err := computeSize(c.strategy.Size, chunk)
	if err != nil {
		c.startErroringLocked(actions, err)
		return RejectedSettlement(err)
	}

	settlement, resolve, reject := NewSettlement()
	entry := &writableEntry{kind: writableEntryWrite, chunk: chunk, resolve: resolve, reject: reject}
	c.queue.enqueue(entry, size)
	c.recomputeBackpressureLocked(actions)
	c.advanceQueueLocked(actions)
	return settlement
}

// requestCloseLocked enqueues the (single, size-0) close sentinel.
func (c *WritableStreamDefaultController) requestCloseLocked(actions *[]func()) *Settlement {
	switch c.stream.state {
	case WritableErrored:
		return RejectedSettlement(c.stream.storedErr)
	case WritableClosed:
		return ResolvedSettlement(nil)
	}
	if c.closeRequested {
		return RejectedSettlement(newStateError("streams: close has already been requested"))
	}
	c.closeRequested = true
	settlement, resolve, reject := NewSettlement()
	entry := &writableEntry{kind: writableEntryClose, resolve: resolve, reject: reject}
	c.queue.enqueue(entry, 0)
	c.advanceQueueLocked(actions)
	return settlement
}

// advanceQueueLocked implements the "Advancement" algorithm.
func (c *WritableStreamDefaultController) advanceQueueLocked(actions *[]func()) {
	if !c.started || c.inFlightWrite != nil || c.inFlightClose != nil {
		return
	}
	if c.stream.state == WritableClosed || c.stream.state == WritableErrored {
		return
	}
	if c.stream.state == WritableErroring {
		c.finishErroringIfPossibleLocked(actions)
		return
	}
	entry, ok := c.queue.peek()
	if !ok {
		return
	}
	we := entry.value.(*writableEntry)
	if we.kind == writableEntryClose {
		c.queue.dequeue()
		c.inFlightClose = we
		fn := c.closeFn
		*actions = append(*actions, func() { c.invokeClose(fn, we) })
		return
	}
	// The entry stays at the head of the queue, still counted in its total
	// size, until its write settles.
	c.inFlightWrite = we
	fn := c.writeFn
	*actions = append(*actions, func() { c.invokeWrite(fn, we) })
}

func (c *WritableStreamDefaultController) invokeWrite(fn WriteFunc, entry *writableEntry) {
	settle := func(err error) {
		c.stream.mu.Lock()
		var actions []func()
		c.inFlightWrite = nil
		if err != nil {
			entryReject := entry.reject
			actions = append(actions, func() { entryReject(err) })
			c.startErroringLocked(&actions, err)
			if c.stream.state == WritableErroring {
				c.finishErroringIfPossibleLocked(&actions)
			}
		} else {
			if c.queue.len() > 0 {
				c.queue.dequeue()
			}
			c.recomputeBackpressureLocked(&actions)
			entryResolve := entry.resolve
			actions = append(actions, func() { entryResolve(nil) })
			c.advanceQueueLocked(&actions)
		}
		c.stream.mu.Unlock()
		runActions(actions)
	}
	if fn == nil {
		settle(nil)
		return
	}
	settlement := fn(entry.chunk, c)
	if settlement == nil {
		settle(nil)
		return
	}
	settlement.Subscribe(func(_ any, err error) { settle(err) })
}

func (c *WritableStreamDefaultController) invokeClose(fn CloseFunc, entry *writableEntry) {
	settle := func(err error) {
		c.stream.mu.Lock()
		var actions []func()
		c.inFlightClose = nil
		if err != nil {
			entryReject := entry.reject
			actions = append(actions, func() { entryReject(err) })
			c.startErroringLocked(&actions, err)
			if c.stream.state == WritableErroring {
				c.finishErroringIfPossibleLocked(&actions)
			}
		} else {
			// Close wins over a concurrently-started erroring: abort's
			// abort_fn is never invoked once close has succeeded. Any
			// pending abort resolves to undefined
			// instead of running (mirrors "abort on an already-closed
			// stream resolves immediately").
			c.stream.state = WritableClosed
			c.clearAlgorithmsLocked()
			entryResolve := entry.resolve
			actions = append(actions, func() { entryResolve(nil) })
			if pending := c.pendingAbort; pending != nil {
				c.pendingAbort = nil
				resolve := pending.resolve
				actions = append(actions, func() { resolve(nil) })
			}
			if w := c.stream.writer; w != nil {
				w.resolveClosedLocked(&actions)
			}
		}
		c.stream.mu.Unlock()
		runActions(actions)
	}
	if fn == nil {
		settle(nil)
		return
	}
	settlement := fn(c)
	if settlement == nil {
		settle(nil)
		return
	}
	settlement.Subscribe(func(_ any, err error) { settle(err) })
}

func (c *WritableStreamDefaultController) clearAlgorithmsLocked() {
	c.startFn = nil
	c.writeFn = nil
	c.closeFn = nil
	c.abortFn = nil
}

// startErroringLocked implements the erroring protocol.
func (c *WritableStreamDefaultController) startErroringLocked(actions *[]func(), reason error) {
	if c.stream.state != WritableWritable {
		return
	}
	c.stream.storedErr = reason
	c.stream.state = WritableErroring
	errAt := reason
	actions2 := actions
	*actions2 = append(*actions2, func() { logError(c.stream.logger, "writable", "stream erroring", errAt) })
	if w := c.stream.writer; w != nil {
		w.rejectReadyLocked(actions, reason)
	}
	if c.inFlightWrite == nil && c.inFlightClose == nil && c.started {
		c.finishErroringLocked(actions)
	}
}

func (c *WritableStreamDefaultController) finishErroringIfPossibleLocked(actions *[]func()) {
	if c.inFlightWrite == nil && c.inFlightClose == nil {
		c.finishErroringLocked(actions)
	}
}

// finishErroringLocked moves the stream to errored, rejects outstanding
// (not-yet-started) write/close requests, and either runs the pending
// abort or rejects the writer's close/closed settlements.
func (c *WritableStreamDefaultController) finishErroringLocked(actions *[]func()) {
	c.stream.state = WritableErrored
	storedErr := c.stream.storedErr
	remaining := c.queue.entries
	c.queue.reset()
	for _, e := range remaining {
		we := e.value.(*writableEntry)
		reject := we.reject
		*actions = append(*actions, func() { reject(storedErr) })
	}

	if pending := c.pendingAbort; pending != nil {
		c.pendingAbort = nil
		// runPendingAbortLocked captures abortFn, so clear only afterwards.
		c.runPendingAbortLocked(actions, pending)
		c.clearAlgorithmsLocked()
		return
	}
	c.clearAlgorithmsLocked()
	if w := c.stream.writer; w != nil {
		w.rejectClosedLocked(actions, storedErr)
	}
}

func (c *WritableStreamDefaultController) runPendingAbortLocked(actions *[]func(), pending *abortRequest) {
	storedErr := c.stream.storedErr
	if w := c.stream.writer; w != nil {
		w.rejectClosedLocked(actions, storedErr)
	}
	// An abort that merely attached to an already-in-flight erroring must
	// not change the reason the erroring started with: abort_fn runs with
	// the original stored_error, not the late-arriving abort reason.
	reason := pending.reason
	if pending.wasAlreadyErroring {
		reason = storedErr
	}
	fn := c.abortFn
	*actions = append(*actions, func() {
		var settlement *Settlement
		if fn == nil {
			settlement = ResolvedSettlement(nil)
		} else {
			settlement = fn(reason)
			if settlement == nil {
				settlement = ResolvedSettlement(nil)
			}
		}
		settlement.Subscribe(func(_ any, err error) {
			if err != nil {
				pending.reject(err)
				return
			}
			pending.resolve(nil)
		})
	})
}

// requestAbortLocked implements the abort request: multiple
// callers share one settlement; already-terminal states resolve
// immediately; an in-flight erroring attaches to the existing request.
func (c *WritableStreamDefaultController) requestAbortLocked(actions *[]func(), reason any) *Settlement {
	if c.stream.state == WritableClosed || c.stream.state == WritableErrored {
		return ResolvedSettlement(nil)
	}
	if c.pendingAbort != nil {
		return c.pendingAbort.settlement
	}
	settlement, resolve, reject := NewSettlement()
	req := &abortRequest{reason: reason, resolve: resolve, reject: reject, settlement: settlement}
	if c.stream.state == WritableErroring {
		req.wasAlreadyErroring = true
		c.pendingAbort = req
		return settlement
	}
	c.pendingAbort = req
	err, ok := reason.(error)
	if !ok {
		err = newTypeError("streams: aborted: %v", reason)
	}
	c.startErroringLocked(actions, err)
	return settlement
}
