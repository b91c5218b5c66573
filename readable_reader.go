package streams

import "context"

// readRequest is one outstanding [ReadableStreamDefaultReader.Read] call
// waiting on a chunk, size with size/Done not yet known.
type readRequest struct {
	resolve func(ReadResult)
	reject  func(error)
}

// ReadableStreamDefaultReader is the consumer-facing handle obtained via
// [ReadableStream.GetReader].
// Constructing one locks the stream; [ReleaseLock] unlocks it.
type ReadableStreamDefaultReader struct {
	stream           *ReadableStream
	closedSettlement *Settlement
	closedResolve    func(any)
	closedReject     func(error)
	readRequests     []*readRequest
}

func newReadableStreamDefaultReader(stream *ReadableStream) *ReadableStreamDefaultReader {
	r := &ReadableStreamDefaultReader{stream: stream}
	r.closedSettlement, r.closedResolve, r.closedReject = NewSettlement()
	if stream.state == ReadableClosed {
		r.closedResolve(nil)
	} else if stream.state == ReadableErrored {
		r.closedReject(stream.storedErr)
	}
	return r
}

// active reports whether this reader is still attached to its stream.
func (r *ReadableStreamDefaultReader) active() bool { return r.stream != nil }

// Closed returns a settlement that fulfills when the stream closes, or
// rejects with the stream's stored error if it errors.
func (r *ReadableStreamDefaultReader) Closed() *Settlement {
	return r.closedSettlement
}

// Read requests the next chunk. If the stream already has queued chunks
// (or is already closed/errored), it resolves immediately; otherwise it
// blocks until a producer calls Enqueue/Close/Error, or ctx is done.
func (r *ReadableStreamDefaultReader) Read(ctx context.Context) (ReadResult, error) {
	if !r.active() {
		return ReadResult{}, newTypeError("streams: reader has been released")
	}
	r.stream.mu.Lock()
	if !r.active() {
		r.stream.mu.Unlock()
		return ReadResult{}, newTypeError("streams: reader has been released")
	}
	stream := r.stream
	c := stream.controller

	switch stream.state {
	case ReadableErrored:
		err := stream.storedErr
		stream.mu.Unlock()
		return ReadResult{}, err
	case ReadableClosed:
		stream.mu.Unlock()
		return ReadResult{Value: nil, Done: true}, nil
	}

	if entry, ok := c.queue.peek(); ok {
		c.queue.dequeue()
		stream.disturbed = true
		closeNow := c.closeRequested && c.queue.len() == 0
		var actions []func()
		if closeNow {
			c.finishCloseLocked(&actions)
		} else {
			c.pullIfNeededLocked(&actions)
		}
		stream.mu.Unlock()
		runActions(actions)
		return ReadResult{Value: entry.value, Done: false}, nil
	}

	settlement, resolve, reject := NewSettlement()
	stream.disturbed = true
	req := &readRequest{
		resolve: func(v ReadResult) { resolve(v) },
		reject:  reject,
	}
	r.readRequests = append(r.readRequests, req)
	var actions []func()
	c.pullIfNeededLocked(&actions)
	stream.mu.Unlock()
	runActions(actions)

	v, err := settlement.Wait(ctx)
	if err != nil {
		// ctx was canceled before the stream settled this request (it is
		// not one of errorLocked/cancelLocked/finishCloseLocked's own
		// rejections, all of which fulfill/reject settlement itself and so
		// never reach here). Retract the registration so it isn't
		// double-resolved later and doesn't block a future ReleaseLock.
		stream.mu.Lock()
		if r.active() {
			r.discardPendingRequestLocked(req)
		}
		stream.mu.Unlock()
		return ReadResult{}, err
	}
	return v.(ReadResult), nil
}

func (r *ReadableStreamDefaultReader) discardPendingRequestLocked(target *readRequest) {
	for i, req := range r.readRequests {
		if req == target {
			r.readRequests = append(r.readRequests[:i], r.readRequests[i+1:]...)
			return
		}
	}
}

// Cancel cancels the underlying stream through this reader (the same
// cancel step as [ReadableStream.Cancel], reached via the reader's lock
// rather than directly).
func (r *ReadableStreamDefaultReader) Cancel(ctx context.Context, reason any) error {
	if !r.active() {
		return newTypeError("streams: reader has been released")
	}
	r.stream.mu.Lock()
	if !r.active() {
		r.stream.mu.Unlock()
		return newTypeError("streams: reader has been released")
	}
	var actions []func()
	settlement := r.stream.cancelLocked(&actions, reason)
	r.stream.mu.Unlock()
	runActions(actions)
	_, err := settlement.Wait(ctx)
	return err
}

// ReleaseLock detaches the reader from its stream. It is a no-op if
// already released. Fails with a [TypeError] if any read requests are
// still outstanding.
func (r *ReadableStreamDefaultReader) ReleaseLock() error {
	if !r.active() {
		return nil
	}
	r.stream.mu.Lock()
	defer r.stream.mu.Unlock()
	if !r.active() {
		return nil
	}
	if len(r.readRequests) > 0 {
		return newTypeError("streams: cannot release a reader with outstanding read requests")
	}
	stream := r.stream
	stream.releaseReaderLocked()
	r.stream = nil
	return nil
}

func (r *ReadableStreamDefaultReader) resolveAllReadsDoneLocked(actions *[]func()) {
	reqs := r.readRequests
	r.readRequests = nil
	for _, req := range reqs {
		req := req
		*actions = append(*actions, func() { req.resolve(ReadResult{Value: nil, Done: true}) })
	}
}

func (r *ReadableStreamDefaultReader) rejectAllReadsLocked(actions *[]func(), err error) {
	reqs := r.readRequests
	r.readRequests = nil
	for _, req := range reqs {
		req := req
		*actions = append(*actions, func() { req.reject(err) })
	}
}

func (r *ReadableStreamDefaultReader) resolveClosedLocked(actions *[]func(), _ any) {
	resolve := r.closedResolve
	*actions = append(*actions, func() { resolve(nil) })
}

func (r *ReadableStreamDefaultReader) rejectClosedLocked(actions *[]func(), err error) {
	reject := r.closedReject
	*actions = append(*actions, func() { reject(err) })
}
