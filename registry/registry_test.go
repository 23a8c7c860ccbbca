package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedeve-kit/dtm/dtmconfig"
	"github.com/sedeve-kit/dtm/dtmserver"
)

func newTestServer() *dtmserver.Server {
	return dtmserver.NewServer(dtmconfig.DefaultTestOption(), nil)
}

func TestInitThenGetReturnsSameServer(t *testing.T) {
	r := New()
	srv := newTestServer()
	require.NoError(t, r.Init("cluster-a", srv))

	got, ok := r.Get("cluster-a")
	require.True(t, ok)
	assert.Same(t, srv, got)
}

func TestGetMissingNameReturnsFalse(t *testing.T) {
	r := New()
	_, ok := r.Get("never-registered")
	assert.False(t, ok)
}

func TestDoubleInitIsInvariantViolation(t *testing.T) {
	r := New()
	require.NoError(t, r.Init("cluster-a", newTestServer()))

	err := r.Init("cluster-a", newTestServer())
	require.Error(t, err)
	var invErr *InvariantViolationError
	assert.True(t, errors.As(err, &invErr))
}

func TestClearAllowsReinit(t *testing.T) {
	r := New()
	require.NoError(t, r.Init("cluster-a", newTestServer()))
	r.Clear("cluster-a")

	_, ok := r.Get("cluster-a")
	assert.False(t, ok)

	require.NoError(t, r.Init("cluster-a", newTestServer()))
}

func TestClearOfAbsentNameIsNoOp(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() { r.Clear("never-registered") })
}

func TestDefaultReturnsProcessWideRegistry(t *testing.T) {
	assert.Same(t, Default(), Default())
}
