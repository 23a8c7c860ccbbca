package dtmserver

import (
	"context"
	"errors"
	"time"

	"github.com/sedeve-kit/dtm/action"
	"github.com/sedeve-kit/dtm/coreengine/observability"
)

// errStopped signals that Stop() was called while a release was pending:
// the run ends gracefully rather than failing with a Mismatch.
var errStopped = errors.New("dtmserver: stop requested")

// releaseOneNonStrict scans pending for a single request — Begin or End —
// matching target, in FIFO arrival order (spec §4.4 tie-breaks), rechecking
// after every new arrival until it either matches or the step timeout
// elapses.
func (s *Server) releaseOneNonStrict(ctx context.Context, target action.Action) error {
	deadline := time.Now().Add(s.stepTimeout())

	for {
		if req, ok := s.takeMatchingPending(target); ok {
			s.mu.Lock()
			s.awaitingCompletion[target.Key()] = &pendingReq{action: target, begin: !req.begin}
			s.mu.Unlock()
			s.ackOne(req.id, req.conn)
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.mismatch(target)
		}

		select {
		case <-s.arrivalSignal:
			continue
		case <-time.After(remaining):
			return s.mismatch(target)
		case <-s.stopCh:
			return errStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// takeMatchingPending removes and returns the oldest pending request whose
// Action equals target, if any.
func (s *Server) takeMatchingPending(target action.Action) (*pendingReq, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range s.pendingOrder {
		req, ok := s.pendingByID[id]
		if !ok {
			continue
		}
		if req.action.Equal(target) {
			delete(s.pendingByID, id)
			s.pendingOrder = append(s.pendingOrder[:i:i], s.pendingOrder[i+1:]...)
			return req, true
		}
	}
	return nil, false
}

// releaseOneStrict requires two requests for target to have arrived, using
// the reorder buffer as the rendezvous primitive: two sequential WaitAction
// calls, each consuming one arrival recorded in ackQueue, gate the combined
// release. The Begin/End flags of the two requests are not compared, so two
// Begin (or two End) requests for target also satisfy it.
func (s *Server) releaseOneStrict(ctx context.Context, target action.Action) error {
	timeout := s.stepTimeout()

	matched, err := s.waitStrict(ctx, target, timeout)
	if err != nil {
		return err
	}
	if !matched {
		return s.mismatch(target)
	}
	first, firstOK := s.popAckEntry(target)

	matched, err = s.waitStrict(ctx, target, timeout)
	if err != nil {
		return err
	}
	if !matched {
		return s.mismatch(target)
	}
	second, secondOK := s.popAckEntry(target)

	// Both brackets have now arrived: ack them together, never releasing
	// either in isolation (spec scenario 3: "first ACK pair for action-1
	// issued only once End(1) arrives").
	if firstOK {
		s.ackOne(first.id, first.conn)
	}
	if secondOK {
		s.ackOne(second.id, second.conn)
	}

	return nil
}

// waitStrict runs reorder.ActionReorderBuffer.WaitAction in a goroutine so
// Stop() can interrupt the wait even though the buffer itself only honors
// ctx and its own timeout.
func (s *Server) waitStrict(ctx context.Context, target action.Action, timeout time.Duration) (bool, error) {
	type result struct {
		matched bool
		err     error
	}
	resCh := make(chan result, 1)
	go func() {
		matched, err := s.reorderBuf.WaitAction(ctx, target, timeout)
		resCh <- result{matched: matched, err: err}
	}()
	select {
	case r := <-resCh:
		return r.matched, r.err
	case <-s.stopCh:
		return false, errStopped
	}
}

// popAckEntry removes and returns the oldest ackEntry recorded for key's
// Action, preserving the order requests originally arrived in.
func (s *Server) popAckEntry(target action.Action) (ackEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := target.Key()
	entries := s.ackQueue[key]
	if len(entries) == 0 {
		return ackEntry{}, false
	}
	entry := entries[0]
	if len(entries) == 1 {
		delete(s.ackQueue, key)
	} else {
		s.ackQueue[key] = entries[1:]
	}
	return entry, true
}

// mismatch builds the Mismatch diagnostic (spec §7: expected action, list
// of pending observed actions) and records the metric.
func (s *Server) mismatch(target action.Action) error {
	observability.RecordMismatch(string(target.Type))
	observed := s.pendingSnapshot()
	return &MismatchError{Expected: target, Observed: observed}
}

// pendingSnapshot returns every Action currently outstanding, across
// whichever bookkeeping structure the configured mode uses, for the
// Mismatch diagnostic.
func (s *Server) pendingSnapshot() []action.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []action.Action
	for _, id := range s.pendingOrder {
		if req, ok := s.pendingByID[id]; ok {
			out = append(out, req.action)
		}
	}
	for _, entries := range s.ackQueue {
		for _, e := range entries {
			out = append(out, e.action)
		}
	}
	return out
}

// ObservedHistory returns every Action released so far, in release order.
func (s *Server) ObservedHistory() []action.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]action.Action, len(s.observedHistory))
	copy(out, s.observedHistory)
	return out
}
