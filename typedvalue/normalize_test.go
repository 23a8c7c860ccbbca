package typedvalue

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNormalize(t *testing.T, wire string, constants map[string]any) any {
	t.Helper()
	v, err := Normalize(json.RawMessage(wire), constants)
	require.NoError(t, err)
	return v
}

func TestNormalizeBool(t *testing.T) {
	v := mustNormalize(t, `{"kind":0,"object":true}`, nil)
	assert.Equal(t, true, v)
}

func TestNormalizeInt(t *testing.T) {
	v := mustNormalize(t, `{"kind":1,"object":42}`, nil)
	assert.Equal(t, int64(42), v)
}

func TestNormalizeReal(t *testing.T) {
	v := mustNormalize(t, `{"kind":2,"object":3.5}`, nil)
	assert.Equal(t, 3.5, v)
}

func TestNormalizeStringNoSubstitution(t *testing.T) {
	v := mustNormalize(t, `{"kind":3,"object":"hello"}`, nil)
	assert.Equal(t, "hello", v)
}

// TestNormalizeStringConstantSubstitution covers Design Notes scenario 6: a
// STRING value naming a key in the constant dictionary resolves to the
// dictionary's value rather than passing through literally.
func TestNormalizeStringConstantSubstitution(t *testing.T) {
	constants := map[string]any{"N1": int64(1)}
	v := mustNormalize(t, `{"kind":3,"object":"N1"}`, constants)
	assert.Equal(t, int64(1), v)
}

func TestNormalizeModelConstantSubstitution(t *testing.T) {
	constants := map[string]any{"Leader": "node_a"}
	v := mustNormalize(t, `{"kind":4,"object":"Leader"}`, constants)
	assert.Equal(t, "node_a", v)
}

func TestNormalizeModelNoSubstitutionPassesThrough(t *testing.T) {
	v := mustNormalize(t, `{"kind":4,"object":"node_a"}`, nil)
	assert.Equal(t, "node_a", v)
}

func TestNormalizeTuplePreservesOrder(t *testing.T) {
	wire := `{"kind":5,"object":[{"kind":1,"object":2},{"kind":1,"object":1}]}`
	v := mustNormalize(t, wire, nil)
	assert.Equal(t, []any{int64(2), int64(1)}, v)
}

func TestNormalizeSetDedupesAndSorts(t *testing.T) {
	// Two copies of the same element (kind SET_ENUM=8) must collapse to one.
	wire := `{"kind":8,"object":[{"kind":1,"object":2},{"kind":1,"object":1},{"kind":1,"object":2}]}`
	v := mustNormalize(t, wire, nil)
	set, ok := v.(CanonicalSet)
	require.True(t, ok)
	require.Len(t, set, 2)
	assert.Equal(t, int64(1), set[0])
	assert.Equal(t, int64(2), set[1])
}

func TestNormalizeAllSetKindsProduceCanonicalSet(t *testing.T) {
	for _, kind := range []Kind{KindSetCap, KindSetCup, KindSetEnum, KindSetOfFcns, KindSetOfRcds, KindSetOfTuples} {
		wire := json.RawMessage(`{"kind":` + strconv.FormatUint(uint64(kind), 10) + `,"object":[{"kind":1,"object":1}]}`)
		v, err := Normalize(wire, nil)
		require.NoError(t, err)
		_, ok := v.(CanonicalSet)
		assert.True(t, ok, "kind %d should produce CanonicalSet", kind)
	}
}

func TestNormalizeRecord(t *testing.T) {
	wire := `{"kind":12,"object":{"x":{"kind":1,"object":1},"y":{"kind":1,"object":2}}}`
	v := mustNormalize(t, wire, nil)
	rec, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), rec["x"])
	assert.Equal(t, int64(2), rec["y"])
}

func TestNormalizeFcnProducesCanonicalMap(t *testing.T) {
	wire := `{"kind":13,"object":[` +
		`[{"kind":1,"object":2},{"kind":3,"object":"b"}],` +
		`[{"kind":1,"object":1},{"kind":3,"object":"a"}]` +
		`]}`
	v := mustNormalize(t, wire, nil)
	m, ok := v.(CanonicalMap)
	require.True(t, ok)
	require.Len(t, m, 2)
	assert.Equal(t, int64(1), m[0].Domain)
	assert.Equal(t, "a", m[0].Value)
	assert.Equal(t, int64(2), m[1].Domain)
	assert.Equal(t, "b", m[1].Value)
}

func TestNormalizeFcnLambdaAlsoProducesCanonicalMap(t *testing.T) {
	wire := `{"kind":14,"object":[[{"kind":1,"object":1},{"kind":0,"object":true}]]}`
	v := mustNormalize(t, wire, nil)
	_, ok := v.(CanonicalMap)
	assert.True(t, ok)
}

func TestNormalizeMissingKindIsMalformed(t *testing.T) {
	_, err := Normalize(json.RawMessage(`{"object":true}`), nil)
	require.Error(t, err)
	var malformed *MalformedValueError
	assert.ErrorAs(t, err, &malformed)
}

func TestNormalizeMissingObjectIsMalformed(t *testing.T) {
	_, err := Normalize(json.RawMessage(`{"kind":0}`), nil)
	require.Error(t, err)
}

func TestNormalizeUnknownKindIsMalformed(t *testing.T) {
	_, err := Normalize(json.RawMessage(`{"kind":999,"object":null}`), nil)
	require.Error(t, err)
}

func TestNormalizeWrongShapeForKindIsMalformed(t *testing.T) {
	// BOOL kind with a string object.
	_, err := Normalize(json.RawMessage(`{"kind":0,"object":"not a bool"}`), nil)
	require.Error(t, err)
}

func TestNormalizeNotAnObjectIsMalformed(t *testing.T) {
	_, err := Normalize(json.RawMessage(`42`), nil)
	require.Error(t, err)
}

// TestNormalizeIdempotent normalizes the same wire value twice and checks
// that both calls yield equal results. Normalize's output is not itself a
// {kind, object} wire value, so it is not fed back into Normalize here.
func TestNormalizeIdempotent(t *testing.T) {
	wire := `{"kind":8,"object":[{"kind":1,"object":1},{"kind":1,"object":2}]}`
	first, err := Normalize(json.RawMessage(wire), nil)
	require.NoError(t, err)
	second, err := Normalize(json.RawMessage(wire), nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestNormalizeCongruentOnReordering covers the congruence property: two
// wire values that differ only in the order their set elements were
// serialized in normalize to equal results.
func TestNormalizeCongruentOnReordering(t *testing.T) {
	a := `{"kind":8,"object":[{"kind":1,"object":1},{"kind":1,"object":2}]}`
	b := `{"kind":8,"object":[{"kind":1,"object":2},{"kind":1,"object":1}]}`
	va, err := Normalize(json.RawMessage(a), nil)
	require.NoError(t, err)
	vb, err := Normalize(json.RawMessage(b), nil)
	require.NoError(t, err)
	assert.Equal(t, va, vb)
}

func TestCanonicalSetMarshalJSONIsSortedAndStable(t *testing.T) {
	set := newCanonicalSet([]any{int64(2), int64(1), int64(2)})
	b, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(b))
}

func TestCanonicalMapMarshalJSONIsSortedByDomain(t *testing.T) {
	m := newCanonicalMap([]KV{
		{Domain: int64(2), Value: "b"},
		{Domain: int64(1), Value: "a"},
	})
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"domain":1,"value":"a"},{"domain":2,"value":"b"}]`, string(b))
}
