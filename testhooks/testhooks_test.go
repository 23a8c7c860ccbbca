package testhooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedeve-kit/dtm/action"
	"github.com/sedeve-kit/dtm/dtmconfig"
	"github.com/sedeve-kit/dtm/dtmserver"
	"github.com/sedeve-kit/dtm/incoming"
	"github.com/sedeve-kit/dtm/registry"
)

func setupServer(t *testing.T, autoName string, trace []action.Message) *dtmserver.Server {
	t.Helper()
	opt := dtmconfig.DefaultTestOption().WithSecondsWaitMessageTimeout(1)
	srv := dtmserver.NewServer(opt, nil)
	require.NoError(t, registry.Default().Init(autoName, srv))
	t.Cleanup(func() {
		registry.Default().Clear(autoName)
		Forget(autoName)
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, incoming.NewSliceSource(trace)) }()
	t.Cleanup(func() {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
	return srv
}

func TestInputSugarBracketsBeginAndEnd(t *testing.T) {
	act := action.Action{Type: action.Input, Source: "client", Dest: "n1", Payload: "tx1"}
	setupServer(t, "test-input", []action.Message{{Kind: action.Input, Action: act}})

	err := Input("test-input", "client", "n1", "tx1")
	assert.NoError(t, err)
}

func TestInternalBeginAndEndRoundTrip(t *testing.T) {
	act := action.Action{Type: action.Internal, Source: "n1", Dest: "n1", Payload: int64(7)}
	setupServer(t, "test-internal", []action.Message{{Kind: action.Internal, Action: act}})

	require.NoError(t, InternalBegin("test-internal", "n1", "n1", int64(7)))
	require.NoError(t, InternalEnd("test-internal", "n1", "n1", int64(7)))
}

func TestOutputSugarBracketsBeginAndEnd(t *testing.T) {
	act := action.Action{Type: action.Output, Source: "n1", Dest: "client", Payload: "ok"}
	setupServer(t, "test-output", []action.Message{{Kind: action.Output, Action: act}})

	assert.NoError(t, Output("test-output", "n1", "client", "ok"))
}

func TestCallWithoutRegisteredServerErrors(t *testing.T) {
	_, err := driverFor("never-registered")
	require.Error(t, err)
	var notRegistered *NotRegisteredError
	assert.ErrorAs(t, err, &notRegistered)
}

func TestDriverIsCachedAcrossCalls(t *testing.T) {
	act1 := action.Action{Type: action.Internal, Source: "n1", Dest: "n1", Payload: int64(1)}
	act2 := action.Action{Type: action.Internal, Source: "n1", Dest: "n1", Payload: int64(2)}
	setupServer(t, "test-cache", []action.Message{
		{Kind: action.Internal, Action: act1},
		{Kind: action.Internal, Action: act2},
	})

	d1, err := driverFor("test-cache")
	require.NoError(t, err)
	d2, err := driverFor("test-cache")
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}
