package dtmserver

import (
	"fmt"
	"strings"

	"github.com/sedeve-kit/dtm/action"
)

// MismatchError reports that no pending request satisfied the reference
// action within the configured timeout: the test fails and the diagnostic
// carries both what was expected and what was actually outstanding.
type MismatchError struct {
	Expected action.Action
	Observed []action.Action
}

func (e *MismatchError) Error() string {
	parts := make([]string, len(e.Observed))
	for i, a := range e.Observed {
		parts[i] = a.Key()
	}
	return fmt.Sprintf("mismatch: expected %s, observed pending [%s]", e.Expected.Key(), strings.Join(parts, ", "))
}

// HistoryMismatchError reports that the observed action history diverged
// from the reference trace at Draining->Done validation.
type HistoryMismatchError struct {
	Index    int
	Expected action.Action
	Observed action.Action
}

func (e *HistoryMismatchError) Error() string {
	return fmt.Sprintf("observed history diverges from reference trace at index %d: expected %s, observed %s",
		e.Index, e.Expected.Key(), e.Observed.Key())
}
