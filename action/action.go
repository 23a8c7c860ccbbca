// Package action defines the comparable unit the rest of the DTM harness
// schedules, reorders, and replays: an immutable record of what happened
// (type, source, dest, normalized payload).
//
// Grounded on spec.md §3 Data Model and commbus.Message's Category()-style
// tagging convention.
package action

import (
	"bytes"
	"encoding/json"

	"github.com/sedeve-kit/dtm/coreengine/typeutil"
)

// Type is one of {Input, Output, Internal, Setup, Check}.
type Type string

const (
	// Input is an external stimulus delivered to the system under test.
	Input Type = "input"
	// Output is an externally observable effect the system emits.
	Output Type = "output"
	// Internal is a node-local step, typically a message a node sends to
	// itself or another node as part of protocol progress.
	Internal Type = "internal"
	// Setup is test-harness bookkeeping that runs before protocol actions
	// and is not ordered against them.
	Setup Type = "setup"
	// Check is test-harness bookkeeping that validates state without
	// advancing protocol actions.
	Check Type = "check"
)

// BeginEnd brackets the real work a node does for an action, letting the
// server distinguish an action about to happen from one that has completed.
type BeginEnd string

const (
	Begin BeginEnd = "begin"
	End   BeginEnd = "end"
)

// Action is the comparable unit the harness schedules: an immutable record
// of (type, source, dest, normalized payload). Two Actions are equal iff all
// four fields compare equal, including deep equality of Payload (which is
// always a typedvalue.Normalize result or a JSON-marshalable primitive, never
// raw {kind,object} wire data).
type Action struct {
	Type    Type   `json:"action_type"`
	Source  string `json:"source"`
	Dest    string `json:"dest"`
	Payload any    `json:"payload"`
}

// Key returns a stable canonical-JSON encoding of the Action, used as the
// reorder buffer's map key and for structural equality/hashing. Two Actions
// with equal fields always produce identical keys because Go's encoding/json
// sorts map keys and CanonicalSet/CanonicalMap already order their own
// contents during Payload normalization.
func (a Action) Key() string {
	b, err := json.Marshal(a)
	if err != nil {
		// Payload is always produced by typedvalue.Normalize or a JSON
		// primitive; Marshal does not fail on those shapes.
		return ""
	}
	return string(b)
}

// Equal reports whether a and other are structurally equal over all four
// fields, comparing Payload by canonical JSON encoding rather than Go
// equality so that e.g. two CanonicalSet values built in different orders
// still compare equal.
func (a Action) Equal(other Action) bool {
	if a.Type != other.Type || a.Source != other.Source || a.Dest != other.Dest {
		return false
	}
	ap, err1 := json.Marshal(a.Payload)
	bp, err2 := json.Marshal(other.Payload)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(ap, bp)
}

// Message is the tagged-union shape used by ActionIncomingSource and the
// self-test generator (the server's observed history stores plain Actions),
// mirroring the Rust enum
// ActionMessage<M>: a Kind discriminant alongside the Action payload it
// carries.
type Message struct {
	Kind   Type   `json:"kind"`
	Action Action `json:"action"`
}

// StopMarker is the payload value used to signal a node's driver loop should
// terminate, matching the trailing Input{TaskStop} message the self-test
// generator appends per node.
const StopMarker = "TaskStop"

// IsStop reports whether m is a stop-request message.
func (m Message) IsStop() bool {
	s, ok := typeutil.SafeString(m.Action.Payload)
	return ok && s == StopMarker
}
