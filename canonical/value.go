package canonical

import (
	"math"
)

// Kind specifies the variant of a Value
type Kind int

// Kinds of values
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is one of Null, Bool, Int, Float, String, Array or *Object
type Value interface {
	// Kind returns the variant of the value
	Kind() Kind
	// Interface returns the value as a native Go value:
	// nil, bool, int64, float64, string, []any or map[string]any
	Interface() any

	value()
}

// Null is JSON null
type Null struct{}

// Bool is JSON boolean
type Bool bool

// Int is JSON integer number
type Int int64

// Float is JSON number with fractional part or exponent
type Float float64

// String is JSON string
type String string

// Array is JSON array
type Array []Value

// Kind implements Value
func (Null) Kind() Kind { return KindNull }

// Kind implements Value
func (Bool) Kind() Kind { return KindBool }

// Kind implements Value
func (Int) Kind() Kind { return KindInt }

// Kind implements Value
func (Float) Kind() Kind { return KindFloat }

// Kind implements Value
func (String) Kind() Kind { return KindString }

// Kind implements Value
func (Array) Kind() Kind { return KindArray }

// Interface implements Value
func (Null) Interface() any { return nil }

// Interface implements Value
func (v Bool) Interface() any { return bool(v) }

// Interface implements Value
func (v Int) Interface() any { return int64(v) }

// Interface implements Value
func (v Float) Interface() any { return float64(v) }

// Interface implements Value
func (v String) Interface() any { return string(v) }

// Interface implements Value
func (v Array) Interface() any {
	res := make([]any, len(v))
	for i, e := range v {
		if e != nil {
			res[i] = e.Interface()
		}
	}
	return res
}

func (Null) value()   {}
func (Bool) value()   {}
func (Int) value()    {}
func (Float) value()  {}
func (String) value() {}
func (Array) value()  {}

// Equal reports whether a and b are the same value.
// Objects are equal when they have the same members in the same order.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case Float:
		bv := b.(Float)
		return av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv)))
	case String:
		return av == b.(String)
	case Array:
		bv := b.(Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Object:
		return av.Equal(b.(*Object))
	}
	return false
}
