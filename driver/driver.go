// Package driver implements the node-side half of the DTM control protocol:
// called at an action boundary, it sends a begin/end request to the server
// over a shared transport.Conn and blocks until the server acknowledges it.
//
// Grounded on original_source/src/dtm/async_action_driver_impl.rs
// (action/async_begin_action/async_end_action/async_send_action) and
// commbus.InMemoryCommBus.QuerySync's request/correlate/reply shape, adapted
// from an in-process handler call to a network round trip over one shared
// connection per node.
package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sedeve-kit/dtm/action"
	"github.com/sedeve-kit/dtm/control"
	"github.com/sedeve-kit/dtm/coreengine/observability"
	"github.com/sedeve-kit/dtm/transport"
)

// RecvError reports that the driver's background receive loop terminated
// (the underlying connection broke or was closed) before an in-flight
// Action call could be acknowledged.
type RecvError struct {
	Cause error
}

func (e *RecvError) Error() string { return fmt.Sprintf("driver recv: %v", e.Cause) }
func (e *RecvError) Unwrap() error { return e.Cause }

// ActionDriver is called by node code at action boundaries. It matches the
// Rust trait AsyncActionDriver::action one-for-one.
type ActionDriver interface {
	Action(ctx context.Context, typ action.Type, beginEnd action.BeginEnd, source, dest string, payload any) error
}

// Driver is the concrete ActionDriver: every call site on a node shares one
// transport.Conn (spec §5: "all per-node state accessed only from that
// scheduler"), correlating requests to replies with a map[string]chan
// control.ActionACK guarded by a mutex, fed by one background receive loop.
type Driver struct {
	conn   transport.Conn
	logger observability.Logger

	mu      sync.Mutex
	pending map[string]chan control.ActionACK
}

// NewActionDriver constructs a Driver over conn and starts its background
// receive loop. logger may be observability.NoopLogger() in tests.
func NewActionDriver(conn transport.Conn, logger observability.Logger) *Driver {
	if logger == nil {
		logger = observability.NoopLogger()
	}
	d := &Driver{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan control.ActionACK),
	}
	go d.recvLoop()
	return d
}

// Action builds the canonical action.Action, wraps it in a
// control.ActionReq, sends it over conn, and blocks until the matching
// ActionACK arrives, ctx is canceled, or the connection breaks.
func (d *Driver) Action(ctx context.Context, typ action.Type, beginEnd action.BeginEnd, source, dest string, payload any) error {
	act := action.Action{Type: typ, Source: source, Dest: dest, Payload: payload}
	id := uuid.New().String()

	respCh := make(chan control.ActionACK, 1)
	d.mu.Lock()
	d.pending[id] = respCh
	d.mu.Unlock()

	req := control.ActionReq{ID: id, Action: act, Begin: beginEnd == action.Begin}
	if err := d.conn.Send(ctx, req); err != nil {
		d.forget(id)
		return err
	}
	observability.RecordDriverRequest(string(beginEnd))

	select {
	case ack, ok := <-respCh:
		if !ok {
			return &RecvError{Cause: fmt.Errorf("connection closed before ack for request %s", id)}
		}
		d.logger.Debug("action acknowledged", "id", ack.ID, "type", typ, "begin_end", beginEnd)
		return nil
	case <-ctx.Done():
		d.forget(id)
		return ctx.Err()
	}
}

func (d *Driver) forget(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// recvLoop reads every inbound control message off conn and dispatches
// ActionACK replies to their correlated waiter. It runs until conn.Recv
// returns an error, at which point every still-pending call is unblocked
// with RecvError.
func (d *Driver) recvLoop() {
	for {
		msg, err := d.conn.Recv(context.Background())
		if err != nil {
			d.logger.Warn("driver receive loop stopped", "error", err)
			d.failAllPending()
			return
		}
		ack, ok := msg.(control.ActionACK)
		if !ok {
			d.logger.Debug("ignoring non-ack control message", "kind", msg.Kind())
			continue
		}
		d.mu.Lock()
		ch, ok := d.pending[ack.ID]
		if ok {
			delete(d.pending, ack.ID)
		}
		d.mu.Unlock()
		if ok {
			ch <- ack
		}
	}
}

func (d *Driver) failAllPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ch := range d.pending {
		close(ch)
		delete(d.pending, id)
	}
}
