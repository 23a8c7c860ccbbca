package typedvalue

import (
	"encoding/json"
	"sort"
)

// KV is one (domain, value) pair of a canonicalized function/record-function
// value.
type KV struct {
	Domain any `json:"domain"`
	Value  any `json:"value"`
}

// CanonicalMap is the canonical representation of a model FCN value: an
// ordered list of (domain, value) pairs, sorted by a total order over the
// normalized domain values. Two semantically equal functions always
// serialize identically regardless of the order their entries arrived in.
type CanonicalMap []KV

// MarshalJSON emits CanonicalMap as a JSON array of {"domain":...,"value":...}
// objects, in sorted order, so two equal maps encode to byte-identical JSON.
func (m CanonicalMap) MarshalJSON() ([]byte, error) {
	sorted := make([]KV, len(m))
	copy(sorted, m)
	sort.Slice(sorted, func(i, j int) bool {
		return lessCanonical(sorted[i].Domain, sorted[j].Domain)
	})
	type alias KV
	out := make([]alias, len(sorted))
	for i, kv := range sorted {
		out[i] = alias(kv)
	}
	return json.Marshal(out)
}

// newCanonicalMap sorts pairs by domain and returns the canonical representation.
func newCanonicalMap(pairs []KV) CanonicalMap {
	sorted := make([]KV, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		return lessCanonical(sorted[i].Domain, sorted[j].Domain)
	})
	return CanonicalMap(sorted)
}

// CanonicalSet is the canonical representation of a model SET value: a
// deduplicated, total-ordered slice of normalized elements.
type CanonicalSet []any

// MarshalJSON emits CanonicalSet as a sorted JSON array so two equal sets
// encode to byte-identical JSON.
func (s CanonicalSet) MarshalJSON() ([]byte, error) {
	sorted := make([]any, len(s))
	copy(sorted, s)
	sort.Slice(sorted, func(i, j int) bool {
		return lessCanonical(sorted[i], sorted[j])
	})
	return json.Marshal(sorted)
}

// newCanonicalSet deduplicates and sorts elements into the canonical representation.
func newCanonicalSet(elems []any) CanonicalSet {
	dedup := make([]any, 0, len(elems))
	seen := make(map[string]struct{}, len(elems))
	for _, e := range elems {
		key := canonicalKey(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dedup = append(dedup, e)
	}
	sort.Slice(dedup, func(i, j int) bool {
		return lessCanonical(dedup[i], dedup[j])
	})
	return CanonicalSet(dedup)
}

// canonicalKey produces the total-order sort key for a normalized value: the
// canonical JSON encoding (sorted object keys, recursively canonicalized sets
// and maps). Used both to sort and to deduplicate set elements.
func canonicalKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Values reaching here are always produced by Normalize, which never
		// yields anything json.Marshal rejects (no channels, funcs, cycles).
		return ""
	}
	return string(b)
}

// lessCanonical defines the total order normalization relies on for sorting
// set elements and map domains: lexicographic over canonical JSON encoding.
func lessCanonical(a, b any) bool {
	return canonicalKey(a) < canonicalKey(b)
}
