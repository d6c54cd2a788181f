package coalescer

import (
	"context"
	"time"

	"callfold/internal/journal"
	"callfold/internal/signature"
	"callfold/internal/transport"
)

// outcome is what a waiter ultimately receives: a result view of its own,
// or an error. Exactly one of the two is set.
type outcome struct {
	res *transport.Result
	err error
}

// waiter is one caller's slot in a batch. Its channel is buffered so the
// broadcaster never blocks; settled flips exactly once, under the
// coordinator lock, when either an outcome is delivered or the caller
// cancels individually.
type waiter struct {
	id      int
	ch      chan outcome
	settled bool
}

// batch is the pending state for one live signature. All fields are
// guarded by the coordinator lock; the single lock is what makes
// join-and-increment indivisible with respect to concurrent joins.
type batch struct {
	sig    signature.Signature
	target string
	params transport.Params // captured from the first joiner

	joined   int
	canceled int
	settled  int

	waiters    map[int]*waiter
	nextWaiter int

	// timer is the debounce timer; re-armed on every join, owned
	// exclusively by this entry. timerGen increments on every re-arm so
	// a fired-but-not-yet-running timer from an earlier arm cannot cut
	// the quiet window short once a newer joiner has re-armed it.
	timer    *time.Timer
	timerGen uint64

	// cancelDispatch is created at most once per batch, when dispatch
	// starts. escalated is set before invoking it so the resulting
	// transport cancellation is recognized as self-inflicted.
	dispatched     bool
	dispatchDone   bool
	cancelDispatch context.CancelFunc
	escalated      bool

	// result classifies the batch for the journal; empty until settled.
	result journal.Outcome

	createdAt    time.Time
	dispatchedAt time.Time
}

func newBatch(sig signature.Signature, target string, params transport.Params) *batch {
	return &batch{
		sig:       sig,
		target:    target,
		params:    params,
		waiters:   make(map[int]*waiter),
		createdAt: time.Now(),
	}
}

// addWaiter registers one more caller and returns its slot.
func (b *batch) addWaiter() *waiter {
	w := &waiter{id: b.nextWaiter, ch: make(chan outcome, 1)}
	b.nextWaiter++
	b.waiters[w.id] = w
	b.joined++
	return w
}

// takeWaiters detaches and marks settled every still-joined waiter,
// returning them for delivery. Waiters that canceled individually are
// already gone from the map and are not touched.
func (b *batch) takeWaiters() []*waiter {
	waiters := make([]*waiter, 0, len(b.waiters))
	for _, w := range b.waiters {
		w.settled = true
		b.settled++
		waiters = append(waiters, w)
	}
	b.waiters = make(map[int]*waiter)
	return waiters
}

// complete reports whether the retirement condition holds: every joined
// caller has an outcome and any started dispatch has finished.
func (b *batch) complete() bool {
	if b.settled != b.joined {
		return false
	}
	if b.dispatched && !b.dispatchDone {
		return false
	}
	return true
}
