// Package control defines the wire messages exchanged between a node's
// action driver and the DTM server: the request/response control channel
// spec §6 describes, plus the server-initiated shutdown signal.
//
// Grounded on commbus/protocols.go's Message-interface convention and
// original_source/src/dtm/async_action_driver_impl.rs's request/reply shape.
package control

import (
	"encoding/json"
	"fmt"

	"github.com/sedeve-kit/dtm/action"
)

// Message is satisfied by every control-channel payload; Kind identifies the
// concrete type for JSON-framed transports that need to dispatch on a tag
// before unmarshaling into the right struct.
type Message interface {
	Kind() string
}

// ActionReq is sent by a node driver to request permission to begin or end
// an action. The server replies with an ActionACK carrying the same ID.
type ActionReq struct {
	ID     string        `json:"id"`
	Action action.Action `json:"action"`
	Begin  bool          `json:"begin"`
}

// Kind implements Message.
func (ActionReq) Kind() string { return "action_req" }

// ActionACK is the server's reply granting permission for the ActionReq with
// the matching ID.
type ActionACK struct {
	ID string `json:"id"`
}

// Kind implements Message.
func (ActionACK) Kind() string { return "action_ack" }

// Stop is sent by the server to request a connected node's driver loop
// terminate gracefully.
type Stop struct{}

// Kind implements Message.
func (Stop) Kind() string { return "stop" }

// Envelope wraps a Message for JSON transport, carrying the Kind tag
// alongside the marshaled payload so the receiving side can dispatch before
// unmarshaling the body into a concrete type.
type Envelope struct {
	Kind string `json:"kind"`
	Body any    `json:"body"`
}

// Wrap builds the Envelope for m.
func Wrap(m Message) Envelope {
	return Envelope{Kind: m.Kind(), Body: m}
}

// DecodeError reports a control-channel frame that could not be decoded:
// malformed JSON, a missing kind tag, or an unrecognized kind.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("control: %s", e.Reason)
}

// Encode marshals m into its wire Envelope form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(Wrap(m))
}

// Decode unmarshals a wire frame produced by Encode back into the concrete
// Message it carries, dispatching on the envelope's kind tag.
func Decode(data []byte) (Message, error) {
	var wire struct {
		Kind string          `json:"kind"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	switch wire.Kind {
	case "action_req":
		var m ActionReq
		if err := json.Unmarshal(wire.Body, &m); err != nil {
			return nil, &DecodeError{Reason: err.Error()}
		}
		return m, nil
	case "action_ack":
		var m ActionACK
		if err := json.Unmarshal(wire.Body, &m); err != nil {
			return nil, &DecodeError{Reason: err.Error()}
		}
		return m, nil
	case "stop":
		return Stop{}, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unrecognized kind %q", wire.Kind)}
	}
}
