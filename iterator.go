package streams

import (
	"context"
	"sync"
)

// IteratorOption configures [ReadableStream.Values].
type IteratorOption interface{ applyIterator(*iteratorOptions) }

type iteratorOptions struct {
	preventCancel bool
}

type iteratorOptionFunc func(*iteratorOptions)

func (f iteratorOptionFunc) applyIterator(o *iteratorOptions) { f(o) }

// WithIteratorPreventCancel suppresses the automatic cancel a [Return] call
// would otherwise issue against the underlying stream.
func WithIteratorPreventCancel() IteratorOption {
	return iteratorOptionFunc(func(o *iteratorOptions) { o.preventCancel = true })
}

// ReadableStreamIterator is the lazy, finite, non-restartable async-iterator
// adapter over a [ReadableStream]: it acquires a reader on construction and
// releases it once a terminal result is produced (by [Next] or [Return]).
type ReadableStreamIterator struct {
	mu            sync.Mutex
	reader        *ReadableStreamDefaultReader
	preventCancel bool
	done          bool
}

// Values acquires a reader on rs and returns an iterator over its chunks.
// Fails with a [TypeError] if rs is already locked.
func (rs *ReadableStream) Values(opts ...IteratorOption) (*ReadableStreamIterator, error) {
	var o iteratorOptions
	for _, opt := range opts {
		opt.applyIterator(&o)
	}
	reader, err := rs.GetReader()
	if err != nil {
		return nil, err
	}
	return &ReadableStreamIterator{reader: reader, preventCancel: o.preventCancel}, nil
}

// Next returns the next chunk, or done=true once the stream closes, errors,
// or a prior call to Next or Return already produced a terminal result —
// the sequence never restarts.
func (it *ReadableStreamIterator) Next(ctx context.Context) (value any, done bool, err error) {
	it.mu.Lock()
	if it.done {
		it.mu.Unlock()
		return nil, true, nil
	}
	it.mu.Unlock()

	result, err := it.reader.Read(ctx)
	if err != nil {
		it.finish()
		_ = it.reader.ReleaseLock()
		return nil, true, err
	}
	if result.Done {
		it.finish()
		_ = it.reader.ReleaseLock()
		return nil, true, nil
	}
	return result.Value, false, nil
}

// Return ends iteration early: unless [WithIteratorPreventCancel] was given,
// it cancels the underlying stream with reason, then releases the reader.
// A no-op if the sequence has already reached a terminal result.
func (it *ReadableStreamIterator) Return(ctx context.Context, reason any) error {
	it.mu.Lock()
	if it.done {
		it.mu.Unlock()
		return nil
	}
	it.done = true
	it.mu.Unlock()

	var err error
	if !it.preventCancel {
		err = it.reader.Cancel(ctx, reason)
	}
	_ = it.reader.ReleaseLock()
	return err
}

func (it *ReadableStreamIterator) finish() {
	it.mu.Lock()
	it.done = true
	it.mu.Unlock()
}
