// Package reorder implements the rendezvous mechanism that lets a real
// node's observed actions arrive out of order relative to the reference
// trace: a waiter blocks on an Action until a matching occurrence is added,
// or until a timeout elapses.
//
// Grounded on original_source/src/dtm/action_reorder.rs one-for-one:
// get_channel/wait_action/add_action/dec_ref_num map directly onto
// getChannel/WaitAction/AddAction/decRefNum below. The mutex guarding the
// entry table is released before blocking on the channel or the timer,
// exactly as the Rust source drops its lock guard before `select!`.
package reorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sedeve-kit/dtm/action"
	"github.com/sedeve-kit/dtm/coreengine/observability"
)

// InvariantViolationError reports a reorder buffer contract breach: an
// AddAction call for an Action whose slot already holds an unconsumed value.
// This is a harness bug, not a runtime condition callers should expect to
// handle, per spec §7.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("reorder buffer invariant violated: %s", e.Reason)
}

// entry is the rendezvous slot for one Action key: a single-slot channel
// plus a reference count of parties (waiters and adders) that have looked it
// up and not yet completed their call.
type entry struct {
	ch       chan action.Action
	refcount int
}

// ActionReorderBuffer is a map from Action (by canonical key) to a
// single-slot rendezvous channel with reference counting, per spec §4.2 and
// Data Model "Rendezvous entry".
type ActionReorderBuffer struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  observability.Logger
}

// New constructs an empty ActionReorderBuffer. logger may be
// observability.NoopLogger() in tests.
func New(logger observability.Logger) *ActionReorderBuffer {
	if logger == nil {
		logger = observability.NoopLogger()
	}
	return &ActionReorderBuffer{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// getChannel returns the entry for a, creating it with refcount 1 if absent,
// or incrementing refcount on an existing entry. The entry pointer is safe
// to use after the lock is released: only its refcount field is mutated
// under b.mu, and the channel itself is goroutine-safe.
func (b *ActionReorderBuffer) getChannel(a action.Action) *entry {
	key := a.Key()
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		e = &entry{ch: make(chan action.Action, 1), refcount: 1}
		b.entries[key] = e
		b.logger.Debug("reorder entry created", "action", key)
		return e
	}
	e.refcount++
	b.logger.Debug("reorder entry reused", "action", key, "refcount", e.refcount)
	return e
}

// decRefNum decrements the refcount for a's entry, floored at zero. The
// entry itself is never removed from the map: a recurring Action in the
// trace reuses the same single-slot channel as a mailbox, exactly as
// action_reorder.rs does.
func (b *ActionReorderBuffer) decRefNum(a action.Action) {
	key := a.Key()
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[key]; ok && e.refcount > 0 {
		e.refcount--
	}
}

// WaitAction blocks until a occurrence of a is added via AddAction, the
// timeout elapses, or ctx is canceled. Returns (true, nil) on rendezvous,
// (false, nil) on timeout, or (false, err) if ctx was canceled.
func (b *ActionReorderBuffer) WaitAction(ctx context.Context, a action.Action, timeout time.Duration) (bool, error) {
	e := b.getChannel(a)
	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case got := <-e.ch:
		b.decRefNum(a)
		observability.RecordReorderWait(time.Since(start), false)
		if !got.Equal(a) {
			return false, &InvariantViolationError{Reason: "rendezvous delivered a non-matching action"}
		}
		return true, nil
	case <-timer.C:
		b.decRefNum(a)
		observability.RecordReorderWait(time.Since(start), true)
		return false, nil
	case <-ctx.Done():
		b.decRefNum(a)
		return false, ctx.Err()
	}
}

// AddAction delivers a occurrence of a to its rendezvous slot. Returns
// InvariantViolationError if the slot already holds an unconsumed value
// (a programming error: two AddAction calls for the same Action key before
// any waiter consumed the first).
func (b *ActionReorderBuffer) AddAction(ctx context.Context, a action.Action) error {
	e := b.getChannel(a)
	select {
	case e.ch <- a:
		b.decRefNum(a)
		return nil
	default:
		b.decRefNum(a)
		return &InvariantViolationError{Reason: fmt.Sprintf("slot for action %q already holds an unconsumed value", a.Key())}
	}
}
