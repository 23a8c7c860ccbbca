package control

import (
	"testing"

	"github.com/sedeve-kit/dtm/action"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeActionReq(t *testing.T) {
	req := ActionReq{
		ID:     "abc-123",
		Action: action.Action{Type: action.Input, Source: "n1", Dest: "n2", Payload: "x"},
		Begin:  true,
	}
	data, err := Encode(req)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	decoded, ok := got.(ActionReq)
	require.True(t, ok)
	assert.Equal(t, req.ID, decoded.ID)
	assert.Equal(t, req.Begin, decoded.Begin)
	assert.True(t, req.Action.Equal(decoded.Action))
}

func TestEncodeDecodeActionACK(t *testing.T) {
	ack := ActionACK{ID: "xyz"}
	data, err := Encode(ack)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	decoded, ok := got.(ActionACK)
	require.True(t, ok)
	assert.Equal(t, ack.ID, decoded.ID)
}

func TestEncodeDecodeStop(t *testing.T) {
	data, err := Encode(Stop{})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	_, ok := got.(Stop)
	assert.True(t, ok)
}

func TestDecodeUnrecognizedKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"bogus","body":{}}`))
	require.Error(t, err)
	var decErr *DecodeError
	assert.ErrorAs(t, err, &decErr)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestKindMethods(t *testing.T) {
	assert.Equal(t, "action_req", ActionReq{}.Kind())
	assert.Equal(t, "action_ack", ActionACK{}.Kind())
	assert.Equal(t, "stop", Stop{}.Kind())
}
