package streams

// ReadableStreamDefaultController is the producer-facing handle for a
// [ReadableStream]: it owns the sized queue, the queuing
// strategy, and the pull discipline, and exposes Enqueue/Close/Error/
// DesiredSize to source code.
type ReadableStreamDefaultController struct {
	stream *ReadableStream

	queue    sizedQueue
	strategy Strategy

	started        bool
	closeRequested bool
	pulling        bool
	pullAgain      bool

	startFn  StartFunc
	pullFn   PullFunc
	cancelFn CancelFunc
}

func newReadableController(stream *ReadableStream, strategy Strategy, source ReadableSource) *ReadableStreamDefaultController {
	return &ReadableStreamDefaultController{
		stream:   stream,
		strategy: strategy,
		startFn:  source.Start,
		pullFn:   source.Pull,
		cancelFn: source.Cancel,
	}
}

// start runs the source's Start callback ("created and bound
// before start_fn runs; started becomes true when start_fn's returned
// settlement fulfills").
func (c *ReadableStreamDefaultController) start() {
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
			c.stream.errorLocked(&actions, err)
			c.stream.mu.Unlock()
			runActions(actions)
			return
		}
		c.onStarted()
	})
}

func (c *ReadableStreamDefaultController) onStarted() {
	c.stream.mu.Lock()
	c.started = true
	var actions []func()
	actions = append(actions, func() { logDebug(c.stream.logger, "readable", "controller started", nil) })
	c.pullIfNeededLocked(&actions)
	c.stream.mu.Unlock()
	runActions(actions)
}

// DesiredSize returns hwm-total_size, with ok=false when errored (null
// when errored) and 0 when closed.
func (c *ReadableStreamDefaultController) DesiredSize() (size float64, ok bool) {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	return c.desiredSizeLocked()
}

func (c *ReadableStreamDefaultController) desiredSizeLocked() (float64, bool) {
	switch c.stream.state {
	case ReadableErrored:
		return 0, false
	case ReadableClosed:
		return 0, true
	default:
		return c.strategy.HighWaterMark - c.queue.total, true
	}
}

// canCloseOrEnqueueLocked reports whether the stream is still readable
// and close hasn't already been requested.
func (c *ReadableStreamDefaultController) canCloseOrEnqueueLocked() bool {
	return c.stream.state == ReadableReadable && !c.closeRequested
}

// Enqueue adds chunk to the stream, per the enqueue rule: if the
// stream is locked with a pending read request, the chunk bypasses the
// queue and is delivered straight to that request (preserving read FIFO
// order); otherwise it is sized and queued.
func (c *ReadableStreamDefaultController) Enqueue(chunk any) error {
	c.stream.mu.Lock()
	if !c.canCloseOrEnqueueLocked() {
		c.stream.mu.Unlock()
		return newStateError("streams: cannot enqueue on a controller that is closed, close-requested, or errored")
	}

	if r := c.stream.reader; r != nil && len(r.readRequests) > 0 {
		req := r.readRequests[0]
		r.readRequests = r.readRequests[1:]
		c.stream.disturbed = true
		var actions []func()
		actions = append(actions, func() { req.resolve(ReadResult{Value: chunk, Done: false}) })
		c.pullIfNeededLocked(&actions)
		c.stream.mu.Unlock()
		runActions(actions)
		return nil
	}

	size, err := computeSize(c.strategy.Size, chunk)
	if err != nil {
		var actions []func()
		c.stream.errorLocked(&actions, err)
		c.stream.mu.Unlock()
		runActions(actions)
		return err
	}
	c.queue.enqueue(chunk, size)
	var actions []func()
	c.pullIfNeededLocked(&actions)
	c.stream.mu.Unlock()
	runActions(actions)
	return nil
}

// Close sets close_requested and, once the queue has drained, transitions
// the stream to closed.
func (c *ReadableStreamDefaultController) Close() error {
	c.stream.mu.Lock()
	if !c.canCloseOrEnqueueLocked() {
		c.stream.mu.Unlock()
		return newStateError("streams: cannot close a controller that is already closed, close-requested, or errored")
	}
	c.closeRequested = true
	var actions []func()
	if c.queue.len() == 0 {
		c.finishCloseLocked(&actions)
	}
	c.stream.mu.Unlock()
	runActions(actions)
	return nil
}

func (c *ReadableStreamDefaultController) finishCloseLocked(actions *[]func()) {
	c.clearAlgorithmsLocked()
	c.stream.state = ReadableClosed
	*actions = append(*actions, func() { logDebug(c.stream.logger, "readable", "stream closed", nil) })
	if r := c.stream.reader; r != nil {
		r.resolveAllReadsDoneLocked(actions)
		r.resolveClosedLocked(actions, nil)
	}
}

// Error transitions the stream to errored immediately, discarding the
// queue. A no-op if the stream isn't in the readable state.
func (c *ReadableStreamDefaultController) Error(err error) {
	c.stream.mu.Lock()
	var actions []func()
	c.stream.errorLocked(&actions, err)
	c.stream.mu.Unlock()
	runActions(actions)
}

func (c *ReadableStreamDefaultController) resetQueueLocked() {
	c.queue.reset()
}

func (c *ReadableStreamDefaultController) clearAlgorithmsLocked() {
	c.pullFn = nil
	c.cancelFn = nil
	c.startFn = nil
}

// cancelStepLocked runs the source's Cancel callback and maps its
// fulfillment to nil, per the cancel step.
func (c *ReadableStreamDefaultController) cancelStepLocked(reason any) *Settlement {
	fn := c.cancelFn
	c.clearAlgorithmsLocked()
	if fn == nil {
		return ResolvedSettlement(nil)
	}
	inner := fn(reason)
	if inner == nil {
		return ResolvedSettlement(nil)
	}
	out, resolve, reject := NewSettlement()
	inner.Subscribe(func(_ any, err error) {
		if err != nil {
			reject(err)
			return
		}
		resolve(nil)
	})
	return out
}

// shouldPullLocked implements the pull discipline predicate.
func (c *ReadableStreamDefaultController) shouldPullLocked() bool {
	if !c.canCloseOrEnqueueLocked() || !c.started {
		return false
	}
	if r := c.stream.reader; r != nil && len(r.readRequests) > 0 {
		return true
	}
	desired, ok := c.desiredSizeLocked()
	return ok && desired > 0
}

// pullIfNeededLocked triggers pullFn: at most one call is ever in
// flight, a re-entrant request while one is in flight sets pullAgain for
// re-evaluation on completion. actions accumulates post-unlock work; the
// pull callback itself is invoked with the lock released (appended as a
// deferred action), since it may re-enter Enqueue/Close/Error synchronously.
func (c *ReadableStreamDefaultController) pullIfNeededLocked(actions *[]func()) {
	if !c.shouldPullLocked() {
		return
	}
	if c.pulling {
		c.pullAgain = true
		return
	}
	c.pulling = true
	fn := c.pullFn
	*actions = append(*actions, func() { c.invokePull(fn) })
}

func (c *ReadableStreamDefaultController) invokePull(fn PullFunc) {
	if fn == nil {
		c.stream.mu.Lock()
		var actions []func()
		c.onPullSettledLocked(&actions, nil)
		c.stream.mu.Unlock()
		runActions(actions)
		return
	}
	settlement := fn(c)
	if settlement == nil {
		c.stream.mu.Lock()
		var actions []func()
		c.onPullSettledLocked(&actions, nil)
		c.stream.mu.Unlock()
		runActions(actions)
		return
	}
	settlement.Subscribe(func(_ any, err error) {
		c.stream.mu.Lock()
		var actions []func()
		c.onPullSettledLocked(&actions, err)
		c.stream.mu.Unlock()
		runActions(actions)
	})
}

func (c *ReadableStreamDefaultController) onPullSettledLocked(actions *[]func(), err error) {
	c.pulling = false
	if err != nil {
		c.stream.errorLocked(actions, err)
		return
	}
	if c.pullAgain {
		c.pullAgain = false
		c.pullIfNeededLocked(actions)
	}
}
