package streams

import (
	"context"
	"sync"
)

// PipeOption configures [ReadableStream.PipeTo].
type PipeOption interface{ applyPipe(*pipeOptions) }

type pipeOptions struct {
	preventClose  bool
	preventAbort  bool
	preventCancel bool
	signal        *AbortSignal
}

type pipeOptionFunc func(*pipeOptions)

func (f pipeOptionFunc) applyPipe(o *pipeOptions) { f(o) }

// WithPipePreventClose prevents the pipe from closing dest when the source
// closes normally.
func WithPipePreventClose() PipeOption {
	return pipeOptionFunc(func(o *pipeOptions) { o.preventClose = true })
}

// WithPipePreventAbort prevents the pipe from aborting dest when the source
// errors, or when the pipe's signal aborts.
func WithPipePreventAbort() PipeOption {
	return pipeOptionFunc(func(o *pipeOptions) { o.preventAbort = true })
}

// WithPipePreventCancel prevents the pipe from canceling the source when
// dest errors, or when the pipe's signal aborts.
func WithPipePreventCancel() PipeOption {
	return pipeOptionFunc(func(o *pipeOptions) { o.preventCancel = true })
}

// WithPipeSignal attaches an [AbortSignal] that cancels the pipe from the
// outside.
func WithPipeSignal(signal *AbortSignal) PipeOption {
	return pipeOptionFunc(func(o *pipeOptions) { o.signal = signal })
}

// PipeTo pumps chunks from rs into dest until one of them closes or errors,
// or opts' signal aborts. It locks both rs and dest for its
// whole lifetime, releasing both before the returned settlement settles.
// Fails synchronously (a rejected settlement) if either is already locked.
func (rs *ReadableStream) PipeTo(ctx context.Context, dest *WritableStream, opts ...PipeOption) *Settlement {
	var o pipeOptions
	for _, opt := range opts {
		opt.applyPipe(&o)
	}

	if rs.Locked() {
		return RejectedSettlement(newTypeError("streams: cannot pipe a locked ReadableStream"))
	}
	if dest.Locked() {
		return RejectedSettlement(newTypeError("streams: cannot pipe to a locked WritableStream"))
	}

	reader, err := rs.GetReader()
	if err != nil {
		return RejectedSettlement(err)
	}
	writer, err := dest.GetWriter()
	if err != nil {
		_ = reader.ReleaseLock()
		return RejectedSettlement(err)
	}

	settlement, resolve, reject := NewSettlement()
	p := &pipeOperation{
		source:  rs,
		dest:    dest,
		reader:  reader,
		writer:  writer,
		opts:    o,
		resolve: resolve,
		reject:  reject,
	}
	go p.run(ctx)
	return settlement
}

// PipeThrough pipes rs into ts's writable side and returns ts's readable
// side for further chaining, along with the pipe's completion settlement.
func (rs *ReadableStream) PipeThrough(ctx context.Context, ts *TransformStream, opts ...PipeOption) (*ReadableStream, *Settlement) {
	return ts.Readable, rs.PipeTo(ctx, ts.Writable, opts...)
}

// pipeOperation runs the pump loop in its own goroutine. The
// first of {signal abort, source closed/errored, dest closed/errored} wins;
// shutdownOnce enforces that.
type pipeOperation struct {
	source *ReadableStream
	dest   *WritableStream
	reader *ReadableStreamDefaultReader
	writer *WritableStreamDefaultWriter
	opts   pipeOptions

	resolve func(any)
	reject  func(error)

	shutdownOnce sync.Once
	cancelLoop   context.CancelFunc
}

func (p *pipeOperation) run(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancelLoop = cancel
	defer cancel()

	if p.opts.signal != nil {
		p.opts.signal.OnAbort(func(reason any) { p.shutdownAbort(reason) })
	}
	p.writer.Closed().Subscribe(func(_ any, err error) {
		// Run on its own goroutine: the closed settlement can settle from
		// inside another shutdown's shutdownOnce.Do (the dest Close/Abort it
		// issues), and a nested Do on the same goroutine would deadlock.
		go func() {
			if err != nil {
				p.shutdownDestErrored(err)
			} else {
				p.shutdownDestClosedUnexpectedly()
			}
		}()
	})

	for {
		ready := p.writer.Ready()
		if _, err := ready.Wait(loopCtx); err != nil {
			p.shutdownGeneric(err)
			return
		}

		result, err := p.reader.Read(loopCtx)
		if err != nil {
			p.shutdownSourceErrored(err)
			return
		}
		if result.Done {
			p.shutdownSourceClosed()
			return
		}

		if err := p.writer.Write(loopCtx, result.Value); err != nil {
			p.shutdownGeneric(err)
			return
		}
	}
}

func (p *pipeOperation) abortDestIfLive(reason any) {
	if p.opts.preventAbort {
		return
	}
	switch p.dest.State() {
	case WritableWritable, WritableErroring:
		p.dest.Abort(context.Background(), reason)
	}
}

func (p *pipeOperation) cancelSourceIfLive(reason any) {
	if p.opts.preventCancel {
		return
	}
	if p.source.State() == ReadableReadable {
		p.reader.Cancel(context.Background(), reason)
	}
}

// shutdownAbort handles the signal-aborted row of the table:
// dest and source actions run independently of one another.
func (p *pipeOperation) shutdownAbort(reason any) {
	p.shutdownOnce.Do(func() {
		if p.cancelLoop != nil {
			p.cancelLoop()
		}
		p.abortDestIfLive(reason)
		p.cancelSourceIfLive(reason)
		err, ok := reason.(error)
		if !ok {
			err = newTypeError("streams: pipe aborted: %v", reason)
		}
		p.finish(err)
	})
}

// shutdownSourceErrored handles "S errored": abort dest, reject with e.
func (p *pipeOperation) shutdownSourceErrored(err error) {
	p.shutdownOnce.Do(func() {
		if p.cancelLoop != nil {
			p.cancelLoop()
		}
		p.abortDestIfLive(err)
		p.finish(err)
	})
}

// shutdownSourceClosed handles "S closed": close dest (unless prevented),
// settling with dest's close result.
func (p *pipeOperation) shutdownSourceClosed() {
	p.shutdownOnce.Do(func() {
		if p.cancelLoop != nil {
			p.cancelLoop()
		}
		var closeErr error
		if !p.opts.preventClose {
			closeErr = p.writer.Close(context.Background())
		}
		p.finish(closeErr)
	})
}

// shutdownDestErrored handles "D errored": cancel source, reject with e.
func (p *pipeOperation) shutdownDestErrored(err error) {
	p.shutdownOnce.Do(func() {
		if p.cancelLoop != nil {
			p.cancelLoop()
		}
		p.cancelSourceIfLive(err)
		p.finish(err)
	})
}

// shutdownDestClosedUnexpectedly handles "D closed unexpectedly": cancel
// source with a fresh type error, reject with it.
func (p *pipeOperation) shutdownDestClosedUnexpectedly() {
	p.shutdownOnce.Do(func() {
		if p.cancelLoop != nil {
			p.cancelLoop()
		}
		typeErr := newTypeError("streams: destination WritableStream closed unexpectedly during pipe")
		p.cancelSourceIfLive(typeErr)
		p.finish(typeErr)
	})
}

// shutdownGeneric handles local failures not already covered by a more
// specific table row (a ctx cancellation, or a write/ready failure whose
// classification the dest-closed subscription hasn't yet delivered).
func (p *pipeOperation) shutdownGeneric(err error) {
	p.shutdownOnce.Do(func() {
		if p.cancelLoop != nil {
			p.cancelLoop()
		}
		p.abortDestIfLive(err)
		p.cancelSourceIfLive(err)
		p.finish(err)
	})
}

func (p *pipeOperation) finish(err error) {
	_ = p.writer.ReleaseLock()
	_ = p.reader.ReleaseLock()
	if err != nil {
		p.reject(err)
		return
	}
	p.resolve(nil)
}
