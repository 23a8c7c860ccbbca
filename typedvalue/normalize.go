package typedvalue

import (
	"encoding/json"
	"fmt"

	"github.com/sedeve-kit/dtm/coreengine/typeutil"
)

// Normalize decodes one `{kind, object}` typed value emitted by the model
// exporter into a canonical, comparable Go value:
//
//   - KindBool, KindReal   -> bool, float64
//   - KindInt              -> int64
//   - KindString, KindModel -> string, substituted against constants when the
//     string names a key in the dictionary (Design Notes scenario 6)
//   - KindTuple            -> []any, order preserved
//   - the six KindSet*     -> CanonicalSet
//   - KindRecord           -> map[string]any
//   - KindFcnRcd/KindFcnLambda -> CanonicalMap
//
// Normalize is idempotent and congruent: normalizing a value twice or
// normalizing two structurally equal wire values yields equal results, which
// is what lets CanonicalSet/CanonicalMap compare and hash elements by their
// canonical JSON encoding.
func Normalize(raw json.RawMessage, constants map[string]any) (any, error) {
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, newMalformed(fmt.Sprintf("not a JSON object: %v", err))
	}

	kindRaw, ok := wire["kind"]
	if !ok {
		return nil, newMalformed("missing \"kind\" field")
	}
	objRaw, ok := wire["object"]
	if !ok {
		return nil, newMalformed("missing \"object\" field")
	}

	var kindNum float64
	if err := json.Unmarshal(kindRaw, &kindNum); err != nil {
		return nil, newMalformed("\"kind\" is not a number")
	}
	kindVal, ok := typeutil.SafeUint32(kindNum)
	if !ok {
		return nil, newMalformed("\"kind\" is negative")
	}
	kind := Kind(kindVal)

	if kind.isSet() {
		return normalizeSet(objRaw, constants)
	}
	if kind.isFcn() {
		return normalizeFcn(objRaw, constants)
	}

	switch kind {
	case KindBool:
		var b bool
		if err := json.Unmarshal(objRaw, &b); err != nil {
			return nil, newMalformed("BOOL object is not a boolean")
		}
		return b, nil

	case KindInt:
		var n json.Number
		if err := json.Unmarshal(objRaw, &n); err != nil {
			return nil, newMalformed("INT object is not a number")
		}
		i, err := n.Int64()
		if err != nil {
			return nil, newMalformed("INT object is not an integer")
		}
		return i, nil

	case KindReal:
		var f float64
		if err := json.Unmarshal(objRaw, &f); err != nil {
			return nil, newMalformed("REAL object is not a number")
		}
		return f, nil

	case KindString:
		return normalizeSymbol(objRaw, constants, "STRING")

	case KindModel:
		return normalizeSymbol(objRaw, constants, "MODEL")

	case KindTuple:
		return normalizeElements(objRaw, constants, "TUPLE")

	case KindRecord:
		return normalizeRecord(objRaw, constants)

	default:
		return nil, newMalformed(fmt.Sprintf("unrecognized kind %d", kindVal))
	}
}

// normalizeSymbol decodes a STRING/MODEL object as a string and substitutes
// it against constants when present; the literal string passes through
// unchanged otherwise.
func normalizeSymbol(objRaw json.RawMessage, constants map[string]any, label string) (any, error) {
	var s string
	if err := json.Unmarshal(objRaw, &s); err != nil {
		return nil, newMalformed(label + " object is not a string")
	}
	if substituted, ok := constants[s]; ok {
		return substituted, nil
	}
	return s, nil
}

// normalizeElements decodes objRaw as a JSON array of nested typed values and
// normalizes each in order, without deduplication or sorting.
func normalizeElements(objRaw json.RawMessage, constants map[string]any, label string) ([]any, error) {
	var elemsRaw []json.RawMessage
	if err := json.Unmarshal(objRaw, &elemsRaw); err != nil {
		return nil, newMalformed(label + " object is not an array")
	}
	elems := make([]any, 0, len(elemsRaw))
	for _, e := range elemsRaw {
		v, err := Normalize(e, constants)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return elems, nil
}

// normalizeSet decodes objRaw as a JSON array of nested typed values and
// returns their canonical, deduplicated, totally ordered form. Used for all
// six SET_* kinds: the distinction between enumerated sets and set
// comprehensions (cap/cup/of-fcns/of-rcds/of-tuples) only matters to the
// model that produced the trace, not to the harness comparing elements.
func normalizeSet(objRaw json.RawMessage, constants map[string]any) (any, error) {
	elems, err := normalizeElements(objRaw, constants, "SET")
	if err != nil {
		return nil, err
	}
	return newCanonicalSet(elems), nil
}

// normalizeFcn decodes objRaw as a JSON array of [domain, value] pairs, each
// itself a nested typed value, and returns the canonical ordered map.
func normalizeFcn(objRaw json.RawMessage, constants map[string]any) (any, error) {
	var pairsRaw []json.RawMessage
	if err := json.Unmarshal(objRaw, &pairsRaw); err != nil {
		return nil, newMalformed("FCN object is not an array")
	}
	kvs := make([]KV, 0, len(pairsRaw))
	for _, pairRaw := range pairsRaw {
		var pair []json.RawMessage
		if err := json.Unmarshal(pairRaw, &pair); err != nil || len(pair) != 2 {
			return nil, newMalformed("FCN entry is not a [domain, value] pair")
		}
		domain, err := Normalize(pair[0], constants)
		if err != nil {
			return nil, err
		}
		value, err := Normalize(pair[1], constants)
		if err != nil {
			return nil, err
		}
		kvs = append(kvs, KV{Domain: domain, Value: value})
	}
	return newCanonicalMap(kvs), nil
}

// normalizeRecord decodes objRaw as a JSON object mapping field names to
// nested typed values.
func normalizeRecord(objRaw json.RawMessage, constants map[string]any) (any, error) {
	var fieldsRaw map[string]json.RawMessage
	if err := json.Unmarshal(objRaw, &fieldsRaw); err != nil {
		return nil, newMalformed("RECORD object is not a JSON object")
	}
	fields := make(map[string]any, len(fieldsRaw))
	for name, fieldRaw := range fieldsRaw {
		v, err := Normalize(fieldRaw, constants)
		if err != nil {
			return nil, err
		}
		fields[name] = v
	}
	return fields, nil
}
