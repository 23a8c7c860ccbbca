// Package transport provides the "reliable, message-typed duplex channel"
// spec §1 takes as an external collaborator: a Conn abstraction plus two
// concrete implementations — an in-process Pipe for unit tests, and a
// gorilla/websocket-backed listener/dialer for real node connections.
//
// Grounded on nugget-thane-ai-agent's internal/homeassistant/websocket.go
// (dial, read loop, JSON framing) and coreengine/grpc/server.go's
// serve/background-stop shape.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sedeve-kit/dtm/control"
	"github.com/sedeve-kit/dtm/coreengine/observability"
)

// SendError wraps a failure to write a control message to a Conn.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string { return fmt.Sprintf("transport send: %v", e.Cause) }
func (e *SendError) Unwrap() error { return e.Cause }

// RecvError wraps a failure to read a control message from a Conn.
type RecvError struct {
	Cause error
}

func (e *RecvError) Error() string { return fmt.Sprintf("transport recv: %v", e.Cause) }
func (e *RecvError) Unwrap() error { return e.Cause }

// Conn is a reliable, message-typed duplex channel between a node's action
// driver and the DTM server. Every method is safe to call concurrently with
// Close, but Send and Recv are each expected to have at most one caller at a
// time (matching a single reader goroutine / single writer goroutine per
// connection, as websocket.Conn itself requires).
type Conn interface {
	Send(ctx context.Context, m control.Message) error
	Recv(ctx context.Context) (control.Message, error)
	Close() error
}

// pipeConn is an in-process Conn backed by a pair of buffered channels,
// letting reorder/arbitration logic be tested without a socket.
type pipeConn struct {
	out    chan control.Message
	in     chan control.Message
	closed chan struct{}
}

// Pipe returns two Conns wired to each other: messages sent on one are
// received on the other.
func Pipe() (a, b Conn) {
	ab := make(chan control.Message, 16)
	ba := make(chan control.Message, 16)
	pa := &pipeConn{out: ab, in: ba, closed: make(chan struct{})}
	pb := &pipeConn{out: ba, in: ab, closed: make(chan struct{})}
	return pa, pb
}

func (p *pipeConn) Send(ctx context.Context, m control.Message) error {
	select {
	case <-p.closed:
		return &SendError{Cause: fmt.Errorf("connection closed")}
	case <-ctx.Done():
		return &SendError{Cause: ctx.Err()}
	default:
	}
	select {
	case p.out <- m:
		return nil
	case <-ctx.Done():
		return &SendError{Cause: ctx.Err()}
	case <-p.closed:
		return &SendError{Cause: fmt.Errorf("connection closed")}
	}
}

func (p *pipeConn) Recv(ctx context.Context) (control.Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-ctx.Done():
		return nil, &RecvError{Cause: ctx.Err()}
	case <-p.closed:
		return nil, &RecvError{Cause: fmt.Errorf("connection closed")}
	}
}

func (p *pipeConn) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

// wsConn adapts a *websocket.Conn to the Conn interface, framing each
// control.Message as a single JSON text message via control.Encode/Decode.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, m control.Message) error {
	data, err := control.Encode(m)
	if err != nil {
		return &SendError{Cause: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return &SendError{Cause: err}
	}
	return nil
}

func (c *wsConn) Recv(ctx context.Context) (control.Message, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, &RecvError{Cause: err}
	}
	m, err := control.Decode(data)
	if err != nil {
		return nil, &RecvError{Cause: err}
	}
	return m, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// DialWS dials a DTM server listening at a ws(s):// url and returns a Conn
// wrapping the resulting connection.
func DialWS(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &wsConn{ws: ws}, nil
}

// WSListener accepts inbound node connections over a gorilla/websocket
// server, upgrading each HTTP request and handing the resulting Conn to
// Accept's caller, mirroring coreengine/grpc/server.go's serve/stop shape.
type WSListener struct {
	addr      string
	boundAddr string
	upgrader  websocket.Upgrader
	logger    observability.Logger
	acceptCh  chan Conn
	srv       *http.Server
	errCh     chan error
}

// NewWSListener constructs a listener bound to addr; it does not start
// accepting connections until Start is called.
func NewWSListener(addr string, logger observability.Logger) *WSListener {
	if logger == nil {
		logger = observability.NoopLogger()
	}
	return &WSListener{
		addr:     addr,
		upgrader: websocket.Upgrader{},
		logger:   logger,
		acceptCh: make(chan Conn),
		errCh:    make(chan error, 1),
	}
}

// Start begins serving HTTP in the background, upgrading every request to a
// websocket connection and handing it to Accept's caller.
func (l *WSListener) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			l.logger.Error("websocket upgrade failed", "error", err)
			return
		}
		select {
		case l.acceptCh <- &wsConn{ws: ws}:
		case <-time.After(5 * time.Second):
			l.logger.Warn("dropping connection: Accept not called in time")
			ws.Close()
		}
	})
	l.srv = &http.Server{Addr: l.addr, Handler: mux}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.addr, err)
	}
	l.boundAddr = ln.Addr().String()

	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.errCh <- err
		}
	}()
	return nil
}

// Addr returns the address Start bound to, resolved after Start returns (so
// callers that passed a ":0" ephemeral port can discover the actual port).
func (l *WSListener) Addr() string {
	return l.boundAddr
}

// Accept blocks until a node connects or ctx is canceled.
func (l *WSListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.acceptCh:
		return c, nil
	case err := <-l.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop gracefully shuts down the HTTP server, per coreengine/grpc's
// background-stop convention.
func (l *WSListener) Stop(ctx context.Context) error {
	if l.srv == nil {
		return nil
	}
	return l.srv.Shutdown(ctx)
}
