// Package incoming provides the reference trace as a pull-based sequence of
// action.Message values: the DTM server's trace loop calls Next() once per
// step, matching spec §4.5 Action Incoming Source exactly.
//
// Grounded on original_source/src/trace/to_action.rs's read_actions (row
// iteration order and exhaustion semantics) and test_dtm_player.rs's
// ActionInputStub (in-memory stub source for tests).
package incoming

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sedeve-kit/dtm/action"
	"github.com/sedeve-kit/dtm/typedvalue"
)

// ErrTraceExhausted is returned by Next once every reference action has been
// delivered, mirroring the Rust player's ET::EOF.
var ErrTraceExhausted = errors.New("incoming: trace exhausted")

// ActionIncomingSource is the trace loop's sole view of the reference
// sequence: one action.Message at a time, pulled on demand.
type ActionIncomingSource interface {
	// Next returns the next reference action.Message in trace order, or
	// ErrTraceExhausted when the source is empty.
	Next() (action.Message, error)
	// TraceText renders the remaining (or whole, implementation-defined)
	// trace for diagnostics, e.g. a Mismatch error's context.
	TraceText() (string, error)
}

// SliceSource is an in-memory ActionIncomingSource over a fixed slice of
// messages, restartable per run. Grounded on test_dtm_player.rs's
// ActionInputStub.
type SliceSource struct {
	messages []action.Message
	pos      int
}

// NewSliceSource returns a SliceSource that replays messages in order.
func NewSliceSource(messages []action.Message) *SliceSource {
	cp := make([]action.Message, len(messages))
	copy(cp, messages)
	return &SliceSource{messages: cp}
}

func (s *SliceSource) Next() (action.Message, error) {
	if s.pos >= len(s.messages) {
		return action.Message{}, ErrTraceExhausted
	}
	m := s.messages[s.pos]
	s.pos++
	return m, nil
}

func (s *SliceSource) TraceText() (string, error) {
	b, err := json.MarshalIndent(s.messages[s.pos:], "", "  ")
	if err != nil {
		return "", fmt.Errorf("incoming: render trace text: %w", err)
	}
	return string(b), nil
}

// SQLiteActionSource reads the intermediate action database produced by the
// (out-of-scope) model-trace ingestion pipeline, decoding each row's typed
// value into a canonical action.Message. This is the read-side counterpart
// of to_action.rs's read_actions: `select json_string from state order by
// json_string` defines the delivery order, and rows are decoded lazily, one
// per Next call, so a very large trace never has to be held in memory at
// once.
type SQLiteActionSource struct {
	db        *sql.DB
	rows      *sql.Rows
	constants map[string]any
	exhausted bool
}

// OpenSQLiteActionSource opens the sqlite database at path and prepares the
// ordered row cursor. constants is the decoded constant-mapping sidecar
// (spec §4.5/§6), substituted into STRING/MODEL typed values during decode.
func OpenSQLiteActionSource(path string, constants map[string]any) (*SQLiteActionSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("incoming: open %s: %w", path, err)
	}
	rows, err := db.Query("select json_string from state order by json_string;")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("incoming: query %s: %w", path, err)
	}
	return &SQLiteActionSource{db: db, rows: rows, constants: constants}, nil
}

func (s *SQLiteActionSource) Next() (action.Message, error) {
	if s.exhausted {
		return action.Message{}, ErrTraceExhausted
	}
	if !s.rows.Next() {
		s.exhausted = true
		if err := s.rows.Err(); err != nil {
			return action.Message{}, fmt.Errorf("incoming: read row: %w", err)
		}
		return action.Message{}, ErrTraceExhausted
	}

	var jsonString string
	if err := s.rows.Scan(&jsonString); err != nil {
		return action.Message{}, fmt.Errorf("incoming: scan row: %w", err)
	}

	var wire struct {
		Kind   action.Type     `json:"kind"`
		Action json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal([]byte(jsonString), &wire); err != nil {
		return action.Message{}, fmt.Errorf("incoming: decode row: %w", err)
	}

	var rawAction struct {
		Type    action.Type     `json:"action_type"`
		Source  string          `json:"source"`
		Dest    string          `json:"dest"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(wire.Action, &rawAction); err != nil {
		return action.Message{}, fmt.Errorf("incoming: decode action: %w", err)
	}

	payload, err := typedvalue.Normalize(rawAction.Payload, s.constants)
	if err != nil {
		return action.Message{}, fmt.Errorf("incoming: normalize payload: %w", err)
	}

	return action.Message{
		Kind: wire.Kind,
		Action: action.Action{
			Type:    rawAction.Type,
			Source:  rawAction.Source,
			Dest:    rawAction.Dest,
			Payload: payload,
		},
	}, nil
}

// TraceText renders the underlying database path for diagnostics; the full
// remaining row set isn't buffered in memory, so this returns a short
// identifying description rather than the content SliceSource can afford.
func (s *SQLiteActionSource) TraceText() (string, error) {
	return "sqlite action source (remaining rows not buffered for display)", nil
}

// Close releases the underlying row cursor and database handle.
func (s *SQLiteActionSource) Close() error {
	if s.rows != nil {
		_ = s.rows.Close()
	}
	return s.db.Close()
}
