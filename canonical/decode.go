package canonical

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// ErrMalformedInput is returned when the input is not valid UTF-8 JSON
var ErrMalformedInput = errors.New("malformed input")

// Parse returns Value parsed from JSON, preserving the order of object members.
// Integer numbers that fit int64 are returned as Int, other numbers as Float.
// Objects with duplicate member names are rejected.
func Parse(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		return nil, errors.Wrap(ErrMalformedInput, "invalid UTF-8")
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.Wrap(ErrMalformedInput, "invalid JSON")
	}
	return fromResult(gjson.ParseBytes(data))
}

// ParseObject returns Object parsed from JSON
func ParseObject(data []byte) (*Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	o, ok := v.(*Object)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedInput, "expected object, got %s", v.Kind())
	}
	return o, nil
}

func fromResult(r gjson.Result) (Value, error) {
	switch r.Type {
	case gjson.Null:
		return Null{}, nil
	case gjson.False:
		return Bool(false), nil
	case gjson.True:
		return Bool(true), nil
	case gjson.String:
		return String(r.Str), nil
	case gjson.Number:
		return parseNumber(r.Raw)
	case gjson.JSON:
		if r.IsObject() {
			return objectFromResult(r)
		}
		if r.IsArray() {
			return arrayFromResult(r)
		}
	}
	return nil, errors.Wrapf(ErrMalformedInput, "unexpected JSON: %q", r.Raw)
}

func parseNumber(raw string) (Value, error) {
	if !strings.ContainsAny(raw, ".eE") {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedInput, "invalid number: %s", raw)
	}
	return Float(f), nil
}

func objectFromResult(r gjson.Result) (*Object, error) {
	o := NewObject()
	var err error
	r.ForEach(func(key, val gjson.Result) bool {
		k := key.String()
		if o.Has(k) {
			err = errors.Wrapf(ErrMalformedInput, "duplicate member %q", k)
			return false
		}
		var v Value
		v, err = fromResult(val)
		if err != nil {
			return false
		}
		o.Set(k, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func arrayFromResult(r gjson.Result) (Array, error) {
	a := Array{}
	var err error
	r.ForEach(func(_, val gjson.Result) bool {
		var v Value
		v, err = fromResult(val)
		if err != nil {
			return false
		}
		a = append(a, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
