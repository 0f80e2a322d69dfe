package ir

import (
	"cmp"
	"math"
)

// Kind ranks value types in the store's total order. Values of different
// kinds are never equal; when sorting they order by Kind first.
type Kind int

const (
	KindAbsent Kind = iota // field missing from the record
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{"absent", "null", "bool", "number", "string", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindOf classifies a JSON-compatible value. present=false yields KindAbsent.
// Unknown Go types are classified as objects so that they still order
// deterministically by their JSON text.
func KindOf(v any, present bool) Kind {
	if !present {
		return KindAbsent
	}
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	default:
		return KindObject
	}
}

// ToFloat converts any Go number to float64. ok is false for non-numbers.
func ToFloat(v any) (f float64, ok bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return math.NaN(), false
	}
}

// CanonicalText renders a structured value the way MarshalRecord does.
// Arrays and objects are ordered by this text.
func CanonicalText(v any) string {
	data, err := encodeCanonical(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Compare orders two (value, present) pairs: first by Kind, then within
// the kind (false<true, numerically, bytewise for strings, by canonical
// JSON text for arrays and objects).
func Compare(a any, aok bool, b any, bok bool) int {
	ka, kb := KindOf(a, aok), KindOf(b, bok)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	return compareSameKind(ka, a, b)
}

func compareSameKind(k Kind, a, b any) int {
	switch k {
	case KindAbsent, KindNull:
		return 0
	case KindBool:
		return cmp.Compare(boolRank(a.(bool)), boolRank(b.(bool)))
	case KindNumber:
		fa, _ := ToFloat(a)
		fb, _ := ToFloat(b)
		return cmp.Compare(fa, fb)
	case KindString:
		return cmp.Compare(a.(string), b.(string))
	default:
		return cmp.Compare(CanonicalText(a), CanonicalText(b))
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Equal reports whether two present values are of the same kind and equal.
func Equal(a, b any) bool {
	return Compare(a, true, b, true) == 0
}
