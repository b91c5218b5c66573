package streams

import (
	"context"
	"sync"
)

// Tee forks rs into two independently-lockable branches that share one
// upstream default reader. Both branches see the same chunk
// objects (not cloned).
func Tee(rs *ReadableStream) (branch1, branch2 *ReadableStream, err error) {
	reader, err := rs.GetReader()
	if err != nil {
		return nil, nil, err
	}

	t := &teeState{source: rs, reader: reader}
	t.cancelSettlement, t.cancelResolve, t.cancelReject = NewSettlement()

	// Both branches start, and so first pull, only once t.branch is filled
	// in: the pull's fan-out reads it from another goroutine.
	started, startResolve, _ := NewSettlement()
	b1, err := NewReadableStream(ReadableSource{
		Start:  func(*ReadableStreamDefaultController) *Settlement { return started },
		Pull:   func(*ReadableStreamDefaultController) *Settlement { return t.pull(0) },
		Cancel: func(reason any) *Settlement { return t.cancelBranch(0, reason) },
	})
	if err != nil {
		_ = reader.ReleaseLock()
		return nil, nil, err
	}
	b2, err := NewReadableStream(ReadableSource{
		Start:  func(*ReadableStreamDefaultController) *Settlement { return started },
		Pull:   func(*ReadableStreamDefaultController) *Settlement { return t.pull(1) },
		Cancel: func(reason any) *Settlement { return t.cancelBranch(1, reason) },
	})
	if err != nil {
		_ = reader.ReleaseLock()
		return nil, nil, err
	}
	t.branch[0] = b1.controller
	t.branch[1] = b2.controller
	startResolve(nil)

	return b1, b2, nil
}

// teeState is the shared state of the tee: one upstream reader,
// the serialized pull loop's in-flight flag, each branch's canceled/reason
// pair, and the shared cancelSettlement.
type teeState struct {
	mu     sync.Mutex
	source *ReadableStream
	reader *ReadableStreamDefaultReader
	branch [2]*ReadableStreamDefaultController

	reading bool

	canceled        [2]bool
	reason          [2]any
	cancelTriggered bool

	cancelSettlement *Settlement
	cancelResolve    func(any)
	cancelReject     func(error)
}

// pull implements the "pull loop (serialized)": at most one read
// against the shared reader is ever in flight; a pull that arrives while one
// is already running is a no-op (the in-flight read's fan-out will satisfy
// it). The upstream read runs on its own goroutine so construction and
// concurrent pulls from the other branch never block on it.
func (t *teeState) pull(branch int) *Settlement {
	t.mu.Lock()
	if t.reading {
		t.mu.Unlock()
		return ResolvedSettlement(nil)
	}
	t.reading = true
	reader := t.reader
	t.mu.Unlock()

	out, resolve, reject := NewSettlement()
	go func() {
		result, err := reader.Read(context.Background())

		t.mu.Lock()
		t.reading = false
		b0, b1 := t.branch[0], t.branch[1]
		canceled0, canceled1 := t.canceled[0], t.canceled[1]
		t.mu.Unlock()

		switch {
		case err != nil:
			if !canceled0 {
				b0.Error(err)
			}
			if !canceled1 {
				b1.Error(err)
			}
			reject(err)
		case result.Done:
			if !canceled0 {
				_ = b0.Close()
			}
			if !canceled1 {
				_ = b1.Close()
			}
			resolve(nil)
		default:
			if !canceled0 {
				_ = b0.Enqueue(result.Value)
			}
			if !canceled1 {
				_ = b1.Enqueue(result.Value)
			}
			resolve(nil)
		}
	}()
	return out
}

// cancelBranch implements the cancel policy: record this
// branch's reason; once both branches have canceled, cancel the shared
// source with a composite [reason1, reason2] reason and resolve
// cancelSettlement to its result. Every caller (both branches) observes
// the same settlement.
func (t *teeState) cancelBranch(branch int, reason any) *Settlement {
	t.mu.Lock()
	t.canceled[branch] = true
	t.reason[branch] = reason
	bothCanceled := t.canceled[0] && t.canceled[1]
	alreadyTriggered := t.cancelTriggered
	if bothCanceled {
		t.cancelTriggered = true
	}
	settlement := t.cancelSettlement
	reason0, reason1 := t.reason[0], t.reason[1]
	t.mu.Unlock()

	if !bothCanceled || alreadyTriggered {
		return settlement
	}

	source := t.source
	source.mu.Lock()
	var actions []func()
	inner := source.cancelLocked(&actions, []any{reason0, reason1})
	source.mu.Unlock()
	runActions(actions)

	resolve, reject := t.cancelResolve, t.cancelReject
	inner.Subscribe(func(v any, err error) {
		if err != nil {
			reject(err)
			return
		}
		resolve(v)
	})
	return settlement
}
