package typedvalue

import "fmt"

// MalformedValueError is returned when a `{kind, object}` value cannot be
// decoded: a missing field, the wrong container shape for its kind, or an
// unrecognized kind tag.
type MalformedValueError struct {
	Reason string
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("malformed typed value: %s", e.Reason)
}

func newMalformed(reason string) *MalformedValueError {
	return &MalformedValueError{Reason: reason}
}
