// Package coalescer collapses logically identical outbound calls issued
// within a short quiet window into a single transport execution, fanning
// the one outcome out to every caller that asked for it.
//
// Each distinct call signature owns at most one pending batch. Joins
// re-arm the batch's debounce timer, so dispatch fires only once no new
// joiner has arrived for a full quiet window. Callers cancel individually
// through their context; the shared transport call is aborted only when
// every joined caller has withdrawn.
//
// Completed batches are forgotten immediately. A later identical call
// starts a brand-new batch and a brand-new transport call.
package coalescer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"callfold/internal/journal"
	"callfold/internal/signature"
	"callfold/internal/transport"
)

// Coordinator owns the batch registry for one transport. A fresh
// Coordinator starts with an empty registry; Close drops all pending
// state after flushing armed timers.
type Coordinator struct {
	name  string
	tr    transport.Transport
	quiet time.Duration
	jnl   *journal.Journal
	log   zerolog.Logger

	mu      sync.Mutex
	batches map[signature.Signature]*batch
	closed  bool
}

// New creates a coordinator performing calls through tr. quiet is the
// debounce window; jnl may be nil to disable journaling.
func New(name string, tr transport.Transport, quiet time.Duration, jnl *journal.Journal, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		name:    name,
		tr:      tr,
		quiet:   quiet,
		jnl:     jnl,
		log:     logger.With().Str("component", "coalescer").Str("transport", name).Logger(),
		batches: make(map[signature.Signature]*batch),
	}
}

// Call joins (or opens) the batch for target+params and blocks until the
// batch's single transport call settles this caller. ctx is this caller's
// individual cancellation token: canceling it withdraws only this caller
// unless it is the last one joined.
//
// Errors are one of *SignatureError, *CanceledError, *TransportError, or
// ErrClosed.
func (c *Coordinator) Call(ctx context.Context, target string, params transport.Params) (*transport.Result, error) {
	sig, err := signature.Hash(target, params)
	if err != nil {
		return nil, &SignatureError{Target: target, Cause: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	b, ok := c.batches[sig]
	if ok && b.dispatched {
		// Late join: the batch's transport call already started. Bypass
		// coalescing and perform an independent call so this caller still
		// resolves.
		c.mu.Unlock()
		c.log.Debug().Str("signature", string(sig)).Str("target", target).Msg("late join, bypassing batch")
		return c.performDirect(ctx, target, params)
	}

	isNew := !ok
	if isNew {
		b = newBatch(sig, target, params)
		c.batches[sig] = b
	}

	w := b.addWaiter()

	// Re-arm the debounce timer: the window is "no new joiner for quiet",
	// not a fixed deadline. A fresh timer plus a bumped generation avoids
	// the stale-fire race of a timer that already expired and is waiting
	// on the lock.
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timerGen++
	gen := b.timerGen
	b.timer = time.AfterFunc(c.quiet, func() { c.dispatch(b, gen) })

	joined := b.joined
	c.mu.Unlock()

	c.log.Debug().
		Str("signature", string(sig)).
		Str("target", target).
		Bool("newBatch", isNew).
		Int("joined", joined).
		Msg("caller joined")

	select {
	case out := <-w.ch:
		return out.res, out.err
	case <-ctx.Done():
		if c.cancelWaiter(b, w) {
			return nil, &CanceledError{Cause: ctx.Err()}
		}
		// The broadcast settled this waiter before the cancel took
		// effect; its outcome is already buffered.
		out := <-w.ch
		return out.res, out.err
	}
}

// performDirect runs one transport call outside any batch, for late
// joiners that bypassed coalescing.
func (c *Coordinator) performDirect(ctx context.Context, target string, params transport.Params) (*transport.Result, error) {
	res, err := c.tr.Perform(ctx, target, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &CanceledError{Cause: err}
		}
		return nil, &TransportError{Target: target, Cause: err}
	}
	return res, nil
}

// cancelWaiter withdraws one caller from its batch. Returns false if the
// waiter was already settled by a broadcast, in which case the cancel
// lost the race and the buffered outcome stands.
func (c *Coordinator) cancelWaiter(b *batch, w *waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w.settled {
		return false
	}

	w.settled = true
	delete(b.waiters, w.id)
	b.canceled++
	b.settled++

	c.log.Debug().
		Str("signature", string(b.sig)).
		Int("canceled", b.canceled).
		Int("joined", b.joined).
		Msg("caller canceled")

	if b.canceled == b.joined {
		// Every joined caller withdrew. Pre-dispatch the batch simply
		// never fires; post-dispatch the shared call is actually aborted.
		if !b.dispatched {
			if b.timer != nil {
				b.timer.Stop()
				b.timer = nil
			}
		} else if !b.dispatchDone && b.cancelDispatch != nil {
			b.escalated = true
			b.cancelDispatch()
			c.log.Debug().Str("signature", string(b.sig)).Msg("all callers withdrew, aborting transport call")
		}
	}

	c.retireIfCompleteLocked(b)
	return true
}

// dispatch runs when the debounce timer for b fires. gen identifies the
// arm that scheduled it: a stale generation means a newer joiner re-armed
// the window after this timer expired. It performs the batch's single
// transport call and broadcasts the outcome.
func (c *Coordinator) dispatch(b *batch, gen uint64) {
	c.mu.Lock()
	if cur, ok := c.batches[b.sig]; !ok || cur != b || b.dispatched || b.timerGen != gen {
		// The batch was retired, superseded, or re-armed between the
		// timer firing and this lock acquisition. Nothing to do.
		c.mu.Unlock()
		return
	}

	b.dispatched = true
	b.dispatchedAt = time.Now()
	dispatchCtx, cancel := context.WithCancel(context.Background())
	b.cancelDispatch = cancel
	target, params := b.target, b.params
	joined := b.joined
	c.mu.Unlock()

	c.log.Debug().
		Str("signature", string(b.sig)).
		Str("target", target).
		Int("joined", joined).
		Msg("dispatching batch")

	res, err := c.tr.Perform(dispatchCtx, target, params)

	c.mu.Lock()
	b.dispatchDone = true
	waiters := b.takeWaiters()

	switch {
	case err != nil && b.escalated:
		// Self-inflicted cancellation: every caller was already settled
		// through the individual-cancel path. Not a reportable failure.
		b.result = journal.OutcomeCanceled
		c.log.Debug().Str("signature", string(b.sig)).Msg("escalated cancellation completed")
	case err != nil:
		b.result = journal.OutcomeFailure
		out := outcome{err: &TransportError{Target: target, Cause: err}}
		for _, w := range waiters {
			w.ch <- out
		}
	default:
		b.result = journal.OutcomeSuccess
		for _, w := range waiters {
			w.ch <- outcome{res: res.Clone()}
		}
	}

	c.log.Debug().
		Str("signature", string(b.sig)).
		Int("delivered", len(waiters)).
		Str("outcome", string(b.result)).
		Msg("batch settled")

	c.retireIfCompleteLocked(b)
	c.mu.Unlock()
	cancel()
}

// retireIfCompleteLocked deletes the batch's registry entry once every
// joined caller has been settled and any started dispatch has finished.
// Deleting the entry is what lets a structurally identical future call
// start an unrelated batch. Caller must hold c.mu.
func (c *Coordinator) retireIfCompleteLocked(b *batch) {
	if !b.complete() {
		return
	}
	if cur, ok := c.batches[b.sig]; !ok || cur != b {
		return
	}

	delete(c.batches, b.sig)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	if c.jnl != nil {
		rec := journal.Record{
			Signature: string(b.sig),
			Target:    b.target,
			Joined:    b.joined,
			Canceled:  b.canceled,
			Outcome:   b.result,
			Lifetime:  time.Since(b.createdAt),
			RetiredAt: time.Now(),
		}
		if rec.Outcome == "" {
			rec.Outcome = journal.OutcomeCanceled
		}
		if !b.dispatchedAt.IsZero() {
			rec.Dispatch = time.Since(b.dispatchedAt)
		}
		c.jnl.Add(rec)
	}

	c.log.Debug().
		Str("signature", string(b.sig)).
		Int("joined", b.joined).
		Int("canceled", b.canceled).
		Msg("batch retired")
}

// Live returns the number of batches currently pending or in flight.
func (c *Coordinator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

// Close stops accepting new calls and flushes every armed debounce timer
// immediately so already-joined callers still settle. In-flight transport
// calls are left to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	type flush struct {
		b   *batch
		gen uint64
	}
	pending := make([]flush, 0, len(c.batches))
	for _, b := range c.batches {
		if !b.dispatched {
			if b.timer != nil {
				b.timer.Stop()
				b.timer = nil
			}
			pending = append(pending, flush{b: b, gen: b.timerGen})
		}
	}
	c.mu.Unlock()

	for _, f := range pending {
		go c.dispatch(f.b, f.gen)
	}

	c.log.Info().Int("flushed", len(pending)).Msg("coordinator closed")
}
