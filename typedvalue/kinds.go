// Package typedvalue decodes the `{kind, object}` tagged values emitted by a
// formal-model exporter into canonical, comparable Go values, substituting
// symbolic constants along the way.
//
// Grounded on _examples/original_source/src/action/tla_typed_value.rs.
package typedvalue

// Kind identifies the shape of a model-exported typed value.
type Kind uint32

// Kind values mirror the model exporter's tla_value_kind constants. The six
// SET_* variants and the two FCN_* variants each collapse to one handler.
const (
	KindBool Kind = iota
	KindInt
	KindReal
	KindString
	KindModel
	KindTuple
	KindSetCap
	KindSetCup
	KindSetEnum
	KindSetOfFcns
	KindSetOfRcds
	KindSetOfTuples
	KindRecord
	KindFcnRcd
	KindFcnLambda
)

func (k Kind) isSet() bool {
	switch k {
	case KindSetCap, KindSetCup, KindSetEnum, KindSetOfFcns, KindSetOfRcds, KindSetOfTuples:
		return true
	default:
		return false
	}
}

func (k Kind) isFcn() bool {
	return k == KindFcnRcd || k == KindFcnLambda
}
