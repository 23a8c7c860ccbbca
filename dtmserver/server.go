// Package dtmserver implements the DTM server: it accepts node connections,
// consumes the reference trace one action at a time, arbitrates which
// pending request may proceed, enforces the configured ordering policy, and
// validates the observed history against the trace.
//
// Grounded on spec §4.4 (the trace loop and its arbitration steps) and
// kernel.Kernel's subsystem-composition style for the Server struct itself;
// the strict-bracket sub-case genuinely reuses reorder.ActionReorderBuffer,
// the same rendezvous primitive the driver-facing half of the system
// relies on, per Design Notes' "refcounted rendezvous... shared by single
// release".
package dtmserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/sedeve-kit/dtm/action"
	"github.com/sedeve-kit/dtm/control"
	"github.com/sedeve-kit/dtm/coreengine/observability"
	"github.com/sedeve-kit/dtm/dtmconfig"
	"github.com/sedeve-kit/dtm/incoming"
	"github.com/sedeve-kit/dtm/reorder"
	"github.com/sedeve-kit/dtm/transport"
)

// pendingReq is one outstanding, unacknowledged ActionReq: non-strict mode
// scans these directly.
type pendingReq struct {
	id     string
	action action.Action
	begin  bool
	conn   transport.Conn
}

// ackEntry identifies one specific request id/conn pair waiting on an ACK;
// strict mode needs this because reorder.ActionReorderBuffer reports only
// that an Action value matched, not which request id arrived.
type ackEntry struct {
	id     string
	conn   transport.Conn
	action action.Action
}

type reqEnvelope struct {
	req  control.ActionReq
	conn transport.Conn
}

// Server is one DTM test run: state machine, pending-request table,
// optional strict-bracket reorder buffer, and observed-history validator.
type Server struct {
	opt    dtmconfig.TestOption
	logger observability.Logger

	mu    sync.Mutex
	state State

	reqCh         chan reqEnvelope
	arrivalSignal chan struct{}
	stopCh        chan struct{}
	stopOnce      sync.Once

	// non-strict mode bookkeeping.
	pendingOrder       []string
	pendingByID        map[string]*pendingReq
	awaitingCompletion map[string]*pendingReq

	// strict mode bookkeeping.
	reorderBuf *reorder.ActionReorderBuffer
	ackQueue   map[string][]ackEntry

	observedHistory []action.Action

	// referenceTrace mirrors the reference actions pulled from the
	// incoming source, in pull order. Only populated when EnableCheck is
	// set; finish() compares it against observedHistory element-wise per
	// spec: "every released Action is additionally appended to an
	// observed history; at test end the observed history must be
	// element-wise equal to the reference trace."
	referenceTrace []action.Action

	// releasedOutputs records Output actions in the order their ACK was
	// issued when SequentialOutputAction is set. The single-cursor trace
	// loop already guarantees Output actions release in trace order by
	// construction (the cursor never advances past an Output action until
	// it has matched), regardless of this flag; no check reads this slice.
	// Setup/Check actions are not recorded here. See DESIGN.md.
	releasedOutputs []action.Action
}

// NewServer constructs a Server in StateIdle with the given test options.
func NewServer(opt dtmconfig.TestOption, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NoopLogger()
	}
	s := &Server{
		opt:                opt,
		logger:             logger,
		state:              StateIdle,
		reqCh:              make(chan reqEnvelope, 64),
		arrivalSignal:      make(chan struct{}, 1),
		stopCh:             make(chan struct{}),
		pendingByID:        make(map[string]*pendingReq),
		awaitingCompletion: make(map[string]*pendingReq),
		ackQueue:           make(map[string][]ackEntry),
	}
	if opt.WaitBothBeginAndEnd {
		s.reorderBuf = reorder.New(logger)
	}
	return s
}

// stepTimeout is the per-step wait bound from TestOption, defaulting to 5s
// if unset (zero value).
func (s *Server) stepTimeout() time.Duration {
	if s.opt.SecondsWaitMessageTimeout == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.opt.SecondsWaitMessageTimeout) * time.Second
}

// HandleConn starts a background read loop over conn, forwarding every
// ActionReq onto the server's single inbound channel (spec §5: "requests
// from the transport are funneled through a single inbound channel
// (serialized)") and treating Stop as a request to begin draining.
func (s *Server) HandleConn(ctx context.Context, conn transport.Conn) {
	go func() {
		for {
			msg, err := conn.Recv(ctx)
			if err != nil {
				s.logger.Debug("connection closed", "error", err)
				return
			}
			switch m := msg.(type) {
			case control.ActionReq:
				select {
				case s.reqCh <- reqEnvelope{req: m, conn: conn}:
				case <-ctx.Done():
					return
				case <-s.stopCh:
					return
				}
			case control.Stop:
				s.Stop()
			default:
				s.logger.Warn("ignoring unexpected control message", "kind", msg.Kind())
			}
		}
	}()
}

// Stop requests an early, voluntary end to the trace loop (transitioning
// toward Draining rather than Failed); it is safe to call more than once
// and from any goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run drives the trace loop to completion: Ready -> Running, pulling one
// reference action at a time from source and releasing it per the
// configured ordering policy, then Draining -> Done (or Failed on any
// fatal error, mirroring spec §4.4/§7).
func (s *Server) Run(ctx context.Context, source incoming.ActionIncomingSource) error {
	if err := s.transitionTo(StateReady); err != nil {
		return err
	}
	if err := s.transitionTo(StateRunning); err != nil {
		return err
	}

	go s.dispatchLoop(ctx)

	for {
		select {
		case <-s.stopCh:
			return s.finish(ctx, false)
		default:
		}

		msg, err := source.Next()
		if errors.Is(err, incoming.ErrTraceExhausted) {
			observability.RecordTraceExhausted()
			return s.finish(ctx, true)
		}
		if err != nil {
			_ = s.transitionTo(StateFailed)
			return err
		}

		if s.opt.EnableCheck {
			s.referenceTrace = append(s.referenceTrace, msg.Action)
		}

		if err := s.releaseOne(ctx, msg.Action); err != nil {
			if errors.Is(err, errStopped) {
				return s.finish(ctx, false)
			}
			_ = s.transitionTo(StateFailed)
			return err
		}
	}
}

// finish moves Running -> Draining -> Done. When traceComplete is true
// (the reference trace ran out rather than a voluntary Stop) and
// EnableCheck is set, it first validates the observed history against the
// full reference trace pulled from the source; a voluntary Stop may leave
// the last pulled action un-released, which is expected and not checked.
func (s *Server) finish(ctx context.Context, traceComplete bool) error {
	if err := s.transitionTo(StateDraining); err != nil {
		return err
	}

	if traceComplete && s.opt.EnableCheck {
		if err := s.checkHistory(); err != nil {
			_ = s.transitionTo(StateFailed)
			return err
		}
	}

	if err := s.transitionTo(StateDone); err != nil {
		return err
	}
	return nil
}

// checkHistory compares observedHistory against the portion of the
// reference trace pulled so far, element-wise, returning a
// HistoryMismatchError at the first divergence.
func (s *Server) checkHistory() error {
	n := len(s.referenceTrace)
	if len(s.observedHistory) < n {
		n = len(s.observedHistory)
	}
	for i := 0; i < n; i++ {
		if !s.observedHistory[i].Equal(s.referenceTrace[i]) {
			return &HistoryMismatchError{Index: i, Expected: s.referenceTrace[i], Observed: s.observedHistory[i]}
		}
	}
	if len(s.observedHistory) != len(s.referenceTrace) {
		i := n
		var expected, observed action.Action
		if i < len(s.referenceTrace) {
			expected = s.referenceTrace[i]
		}
		if i < len(s.observedHistory) {
			observed = s.observedHistory[i]
		}
		return &HistoryMismatchError{Index: i, Expected: expected, Observed: observed}
	}
	return nil
}

var tracer = observability.Tracer("dtmserver")

// releaseOne arbitrates the release of one reference action, dispatching
// to the strict or non-strict matching strategy per TestOption. The whole
// arbitration step is wrapped in a span so a connected OTLP collector sees
// one trace per reference action, the same per-step granularity the
// reorder buffer and pending table operate at.
func (s *Server) releaseOne(ctx context.Context, target action.Action) error {
	ctx, span := tracer.Start(ctx, "dtmserver.release_action",
		oteltrace.WithAttributes(
			attribute.String("dtm.action.type", string(target.Type)),
			attribute.String("dtm.action.key", target.Key()),
		),
	)
	defer span.End()

	var err error
	if s.opt.WaitBothBeginAndEnd {
		err = s.releaseOneStrict(ctx, target)
	} else {
		err = s.releaseOneNonStrict(ctx, target)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}

	s.observedHistory = append(s.observedHistory, target)
	observability.RecordActionReleased(string(target.Type))

	if s.opt.SequentialOutputAction && target.Type == action.Output {
		// Setup/Check are excluded from this policy per the resolved Open
		// Question (DESIGN.md): the source never exercises them under
		// strict mode, so only Output actions are tracked here.
		s.releasedOutputs = append(s.releasedOutputs, target)
	}
	return nil
}
