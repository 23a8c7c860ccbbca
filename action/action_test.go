package action

import (
	"testing"

	"github.com/sedeve-kit/dtm/typedvalue"

	"github.com/stretchr/testify/assert"
)

func TestActionEqualStructural(t *testing.T) {
	a := Action{Type: Input, Source: "n1", Dest: "n2", Payload: int64(1)}
	b := Action{Type: Input, Source: "n1", Dest: "n2", Payload: int64(1)}
	assert.True(t, a.Equal(b))
}

func TestActionEqualDiffersOnAnyField(t *testing.T) {
	base := Action{Type: Input, Source: "n1", Dest: "n2", Payload: int64(1)}
	cases := []Action{
		{Type: Output, Source: "n1", Dest: "n2", Payload: int64(1)},
		{Type: Input, Source: "n3", Dest: "n2", Payload: int64(1)},
		{Type: Input, Source: "n1", Dest: "n3", Payload: int64(1)},
		{Type: Input, Source: "n1", Dest: "n2", Payload: int64(2)},
	}
	for _, c := range cases {
		assert.False(t, base.Equal(c))
	}
}

// TestActionEqualComparesCanonicalSetByContent covers the case where two
// CanonicalSet payloads built from differently ordered wire data must still
// compare equal, since normalization already canonicalized their order.
func TestActionEqualComparesCanonicalSetByContent(t *testing.T) {
	constants := map[string]any(nil)
	v1, err := typedvalue.Normalize([]byte(`{"kind":8,"object":[{"kind":1,"object":1},{"kind":1,"object":2}]}`), constants)
	assert.NoError(t, err)
	v2, err := typedvalue.Normalize([]byte(`{"kind":8,"object":[{"kind":1,"object":2},{"kind":1,"object":1}]}`), constants)
	assert.NoError(t, err)

	a := Action{Type: Internal, Source: "n1", Dest: "n1", Payload: v1}
	b := Action{Type: Internal, Source: "n1", Dest: "n1", Payload: v2}
	assert.True(t, a.Equal(b))
}

func TestActionKeyStableAcrossEqualActions(t *testing.T) {
	a := Action{Type: Output, Source: "n1", Dest: "n2", Payload: "x"}
	b := Action{Type: Output, Source: "n1", Dest: "n2", Payload: "x"}
	assert.Equal(t, a.Key(), b.Key())
}

func TestActionKeyDiffersOnPayload(t *testing.T) {
	a := Action{Type: Output, Source: "n1", Dest: "n2", Payload: "x"}
	b := Action{Type: Output, Source: "n1", Dest: "n2", Payload: "y"}
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestMessageIsStop(t *testing.T) {
	m := Message{Kind: Input, Action: Action{Type: Input, Payload: StopMarker}}
	assert.True(t, m.IsStop())

	notStop := Message{Kind: Input, Action: Action{Type: Input, Payload: "hello"}}
	assert.False(t, notStop.IsStop())
}
