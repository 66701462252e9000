package canonical

import (
	"math"
	"reflect"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// ErrSerialization is returned when a value can not be serialized
var ErrSerialization = errors.New("serialization error")

// Option configures the serializer
type Option func(*encoder)

// WithASCIIOnly escapes all non-ASCII characters as \uXXXX sequences
func WithASCIIOnly() Option {
	return func(e *encoder) {
		e.asciiOnly = true
	}
}

// Serialize returns deterministic compact JSON encoding of the value
func Serialize(v Value) ([]byte, error) {
	return Marshal(v)
}

// Marshal returns deterministic compact JSON encoding of the value
func Marshal(v Value, opts ...Option) ([]byte, error) {
	e := &encoder{
		visiting: map[any]struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.encode(v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

type arrayRef struct {
	ptr uintptr
	len int
}

type encoder struct {
	buf       []byte
	asciiOnly bool
	// containers on the current path, to detect cycles
	visiting map[any]struct{}
}

func (e *encoder) encode(v Value) error {
	switch tv := v.(type) {
	case nil:
		return errors.Wrap(ErrSerialization, "nil value")
	case Null:
		e.buf = append(e.buf, "null"...)
	case Bool:
		e.buf = strconv.AppendBool(e.buf, bool(tv))
	case Int:
		e.buf = strconv.AppendInt(e.buf, int64(tv), 10)
	case Float:
		return e.encodeFloat(float64(tv))
	case String:
		return e.encodeString(string(tv))
	case Array:
		return e.encodeArray(tv)
	case *Object:
		return e.encodeObject(tv)
	default:
		return errors.Wrapf(ErrSerialization, "unsupported value type %T", v)
	}
	return nil
}

func (e *encoder) encodeFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.Wrapf(ErrSerialization, "unsupported float value %v", f)
	}

	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	start := len(e.buf)
	e.buf = strconv.AppendFloat(e.buf, f, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(e.buf)
		if n-start >= 4 && e.buf[n-4] == 'e' && e.buf[n-3] == '-' && e.buf[n-2] == '0' {
			e.buf[n-2] = e.buf[n-1]
			e.buf = e.buf[:n-1]
		}
		return nil
	}
	// keep the fractional part, so the value is parsed back as Float
	for _, c := range e.buf[start:] {
		if c == '.' {
			return nil
		}
	}
	e.buf = append(e.buf, '.', '0')
	return nil
}

const hexDigits = "0123456789abcdef"

func (e *encoder) encodeString(s string) error {
	if !utf8.ValidString(s) {
		return errors.Wrap(ErrSerialization, "invalid UTF-8 string")
	}
	e.buf = append(e.buf, '"')
	for _, r := range s {
		switch {
		case r == '"':
			e.buf = append(e.buf, '\\', '"')
		case r == '\\':
			e.buf = append(e.buf, '\\', '\\')
		case r == '\b':
			e.buf = append(e.buf, '\\', 'b')
		case r == '\f':
			e.buf = append(e.buf, '\\', 'f')
		case r == '\n':
			e.buf = append(e.buf, '\\', 'n')
		case r == '\r':
			e.buf = append(e.buf, '\\', 'r')
		case r == '\t':
			e.buf = append(e.buf, '\\', 't')
		case r < 0x20, r == '\u2028', r == '\u2029':
			e.appendEscapedRune(r)
		case r >= utf8.RuneSelf && e.asciiOnly:
			if r > 0xFFFF {
				r1, r2 := utf16.EncodeRune(r)
				e.appendEscapedRune(r1)
				e.appendEscapedRune(r2)
			} else {
				e.appendEscapedRune(r)
			}
		default:
			e.buf = utf8.AppendRune(e.buf, r)
		}
	}
	e.buf = append(e.buf, '"')
	return nil
}

func (e *encoder) appendEscapedRune(r rune) {
	e.buf = append(e.buf, '\\', 'u',
		hexDigits[(r>>12)&0xF],
		hexDigits[(r>>8)&0xF],
		hexDigits[(r>>4)&0xF],
		hexDigits[r&0xF],
	)
}

func (e *encoder) encodeArray(a Array) error {
	if a == nil {
		e.buf = append(e.buf, "[]"...)
		return nil
	}
	var ref any
	if len(a) > 0 {
		ref = arrayRef{ptr: reflect.ValueOf(a).Pointer(), len: len(a)}
		if err := e.enter(ref); err != nil {
			return err
		}
		defer e.leave(ref)
	}

	e.buf = append(e.buf, '[')
	for i, v := range a {
		if i > 0 {
			e.buf = append(e.buf, ',')
		}
		if err := e.encode(v); err != nil {
			return err
		}
	}
	e.buf = append(e.buf, ']')
	return nil
}

func (e *encoder) encodeObject(o *Object) error {
	if o == nil {
		e.buf = append(e.buf, "null"...)
		return nil
	}
	if err := e.enter(o); err != nil {
		return err
	}
	defer e.leave(o)

	e.buf = append(e.buf, '{')
	for i, k := range o.keys {
		if i > 0 {
			e.buf = append(e.buf, ',')
		}
		if err := e.encodeString(k); err != nil {
			return err
		}
		e.buf = append(e.buf, ':')
		if err := e.encode(o.values[i]); err != nil {
			return errors.WithMessagef(err, "member %q", k)
		}
	}
	e.buf = append(e.buf, '}')
	return nil
}

func (e *encoder) enter(ref any) error {
	if _, ok := e.visiting[ref]; ok {
		return errors.Wrap(ErrSerialization, "cyclic structure")
	}
	e.visiting[ref] = struct{}{}
	return nil
}

func (e *encoder) leave(ref any) {
	delete(e.visiting, ref)
}
