package dtmserver

import (
	"context"

	"github.com/sedeve-kit/dtm/control"
	"github.com/sedeve-kit/dtm/transport"
)

// dispatchLoop is the single consumer of reqCh: it demultiplexes every
// arriving request into whichever bookkeeping structure the configured
// ordering policy uses, then wakes the trace loop. Running this in its own
// goroutine lets the strict path block in reorder.ActionReorderBuffer.
// WaitAction without starving arrival processing.
func (s *Server) dispatchLoop(ctx context.Context) {
	for {
		select {
		case env := <-s.reqCh:
			s.handleIncoming(ctx, env)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) handleIncoming(ctx context.Context, env reqEnvelope) {
	if s.opt.WaitBothBeginAndEnd {
		s.handleIncomingStrict(ctx, env)
		return
	}
	s.handleIncomingNonStrict(env)
}

// handleIncomingNonStrict adds env to the pending table unless it completes
// an already-matched logical occurrence's outstanding bracket, in which
// case it is auto-acked immediately: the trace cursor only required one
// bracket to advance, but spec §8 requires every delivered ActionReq to
// receive exactly one ActionACK.
func (s *Server) handleIncomingNonStrict(env reqEnvelope) {
	s.mu.Lock()
	key := env.req.Action.Key()
	if waiter, ok := s.awaitingCompletion[key]; ok && waiter.begin == env.req.Begin {
		delete(s.awaitingCompletion, key)
		s.mu.Unlock()
		s.ackOne(env.req.ID, env.conn)
		return
	}

	s.pendingByID[env.req.ID] = &pendingReq{
		id:     env.req.ID,
		action: env.req.Action,
		begin:  env.req.Begin,
		conn:   env.conn,
	}
	s.pendingOrder = append(s.pendingOrder, env.req.ID)
	s.mu.Unlock()

	select {
	case s.arrivalSignal <- struct{}{}:
	default:
	}
}

// handleIncomingStrict records which request id is waiting on this Action's
// bracket completion, then feeds the Action into the reorder buffer's
// single-slot mailbox. Per the buffer's documented invariant, a second
// AddAction before the first is consumed by a WaitAction call is a caller
// serialization error (InvariantViolationError) — strict-mode senders must
// let each request's predecessor be consumed first; see DESIGN.md.
func (s *Server) handleIncomingStrict(ctx context.Context, env reqEnvelope) {
	key := env.req.Action.Key()
	s.mu.Lock()
	s.ackQueue[key] = append(s.ackQueue[key], ackEntry{id: env.req.ID, conn: env.conn, action: env.req.Action})
	s.mu.Unlock()

	if err := s.reorderBuf.AddAction(ctx, env.req.Action); err != nil {
		s.logger.Error("reorder buffer add failed", "error", err, "action", key)
	}
}

// ackOne replies ActionACK{id} on conn, logging (not failing the run) if
// the send errors: a broken connection surfaces to that node's own driver
// call via its RecvError path instead.
func (s *Server) ackOne(id string, conn transport.Conn) {
	if err := conn.Send(context.Background(), control.ActionACK{ID: id}); err != nil {
		s.logger.Warn("failed to send ack", "id", id, "error", err)
	}
}
