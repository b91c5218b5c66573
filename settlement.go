package streams

import (
	"context"
	"sync"
)

// SettlementState is the lifecycle state of a [Settlement]: pending,
// fulfilled, or rejected.
type SettlementState int

const (
	// SettlementPending indicates the settlement has not yet completed.
	SettlementPending SettlementState = iota
	// SettlementFulfilled indicates the settlement completed successfully.
	SettlementFulfilled
	// SettlementRejected indicates the settlement completed with an error.
	SettlementRejected
)

// Settlement is a one-shot producer/consumer completion signal: created
// pending, resolved or rejected exactly once, with observers notified in
// FIFO registration order.
//
// There is no microtask queue backing this: the core creates no scheduler
// of its own, so observers registered before completion run synchronously,
// in order, from whichever goroutine calls [Settlement.resolve]/
// [Settlement.reject] (with the Settlement's own lock released, so an
// observer may safely settle or subscribe to other settlements).
// Observers registered after completion run synchronously from the
// registering goroutine instead.
type Settlement struct {
	mu          sync.Mutex
	state       SettlementState
	value       any
	err         error
	subscribers []func(value any, err error)
	waiters     []chan struct{}
	handled     bool
}

// NewSettlement creates a pending [Settlement] along with its resolve and
// reject functions. Both are idempotent-ignored after the first call,
// whichever occurs first.
func NewSettlement() (s *Settlement, resolve func(value any), reject func(err error)) {
	s = &Settlement{}
	return s, s.resolve, s.reject
}

func (s *Settlement) settle(state SettlementState, value any, err error) {
	s.mu.Lock()
	if s.state != SettlementPending {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.value = value
	s.err = err
	subs := s.subscribers
	s.subscribers = nil
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, fn := range subs {
		fn(value, err)
	}
}

func (s *Settlement) resolve(value any) { s.settle(SettlementFulfilled, value, nil) }
func (s *Settlement) reject(err error)  { s.settle(SettlementRejected, nil, err) }

// State returns the current [SettlementState].
func (s *Settlement) State() SettlementState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers onSettle to run once this settlement completes. If
// already settled, onSettle runs immediately (synchronously, on the calling
// goroutine) before Subscribe returns. Otherwise it runs later, in FIFO
// order with other subscribers, from whichever goroutine settles this
// Settlement.
func (s *Settlement) Subscribe(onSettle func(value any, err error)) {
	s.mu.Lock()
	if s.state != SettlementPending {
		value, err := s.value, s.err
		s.mu.Unlock()
		onSettle(value, err)
		return
	}
	s.subscribers = append(s.subscribers, onSettle)
	s.mu.Unlock()
}

// Wait blocks the calling goroutine until the settlement completes or ctx
// is done, whichever happens first. On ctx cancellation it returns
// ctx.Err() and the Settlement remains pending for any other waiter.
func (s *Settlement) Wait(ctx context.Context) (value any, err error) {
	s.mu.Lock()
	if s.state != SettlementPending {
		value, err = s.value, s.err
		s.mu.Unlock()
		return value, err
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		s.mu.Lock()
		value, err = s.value, s.err
		s.mu.Unlock()
		return value, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MarkHandled records that a rejection has been observed through some
// side-channel other than Subscribe/Wait (e.g. a caller that inspected
// State() directly), so implementations layering unhandled-rejection
// reporting on top of Settlement can skip it. This package itself does no
// such reporting; the flag exists purely for that side-channel.
func (s *Settlement) MarkHandled() {
	s.mu.Lock()
	s.handled = true
	s.mu.Unlock()
}

// Handled reports whether MarkHandled has been called.
func (s *Settlement) Handled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handled
}
