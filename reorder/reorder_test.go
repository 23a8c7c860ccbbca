package reorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sedeve-kit/dtm/action"
	"github.com/sedeve-kit/dtm/coreengine/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAction() action.Action {
	return action.Action{Type: action.Internal, Source: "n1", Dest: "n2", Payload: int64(1)}
}

// TestWaitThenAdd covers the reorder-tolerance scenario where the waiter
// arrives before the matching action is produced.
func TestWaitThenAdd(t *testing.T) {
	b := New(observability.NoopLogger())
	a := testAction()

	var wg sync.WaitGroup
	wg.Add(1)
	var ok bool
	var err error
	go func() {
		defer wg.Done()
		ok, err = b.WaitAction(context.Background(), a, time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.AddAction(context.Background(), a))
	wg.Wait()
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestAddThenWait covers the mailbox case: the action is produced before
// anyone waits on it, and the later waiter still picks it up.
func TestAddThenWait(t *testing.T) {
	b := New(observability.NoopLogger())
	a := testAction()

	require.NoError(t, b.AddAction(context.Background(), a))
	ok, err := b.WaitAction(context.Background(), a, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitTimesOutWithNoAdd(t *testing.T) {
	b := New(observability.NoopLogger())
	a := testAction()

	ok, err := b.WaitAction(context.Background(), a, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	b := New(observability.NoopLogger())
	a := testAction()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := b.WaitAction(ctx, a, time.Second)
	assert.False(t, ok)
	assert.Error(t, err)
}

// TestDoubleAddBeforeConsumeIsInvariantViolation covers strict-bracketing:
// adding twice before either is consumed is a harness programming error.
func TestDoubleAddBeforeConsumeIsInvariantViolation(t *testing.T) {
	b := New(observability.NoopLogger())
	a := testAction()

	require.NoError(t, b.AddAction(context.Background(), a))
	err := b.AddAction(context.Background(), a)
	require.Error(t, err)
	var inv *InvariantViolationError
	assert.ErrorAs(t, err, &inv)
}

// TestRecurringActionReusesSlotAsMailbox covers repeated occurrences of the
// same Action in the trace: each add/wait pair drains and refills the same
// single-slot channel in turn.
func TestRecurringActionReusesSlotAsMailbox(t *testing.T) {
	b := New(observability.NoopLogger())
	a := testAction()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.AddAction(context.Background(), a))
		ok, err := b.WaitAction(context.Background(), a, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestDistinctActionsGetDistinctEntries(t *testing.T) {
	b := New(observability.NoopLogger())
	a1 := testAction()
	a2 := action.Action{Type: action.Internal, Source: "n1", Dest: "n2", Payload: int64(2)}

	require.NoError(t, b.AddAction(context.Background(), a1))
	ok, err := b.WaitAction(context.Background(), a2, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "a2 must not rendezvous with a1's delivery")

	ok, err = b.WaitAction(context.Background(), a1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
