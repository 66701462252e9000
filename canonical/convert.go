package canonical

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	valueType         = reflect.TypeOf((*Value)(nil)).Elem()
	jsonNumberType    = reflect.TypeOf(json.Number(""))
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// FromGo converts a native Go value into Value.
//
// Maps must have string keys, their members are sorted by key as Go maps
// have no order. Structs are converted using their `json` tags, in field order.
// Byte slices are encoded as standard base64 strings.
// Types implementing json.Marshaler or encoding.TextMarshaler, like time.Time
// or *big.Int, are converted from their marshaled form.
// Structs with no exported fields are rejected, as they would lose data.
// Functions, channels, complex numbers and cyclic structures
// are rejected with ErrSerialization.
func FromGo(v any) (Value, error) {
	c := &converter{
		visiting: map[any]struct{}{},
	}
	return c.convert(reflect.ValueOf(v))
}

// MustFromGo is like FromGo but panics on error
func MustFromGo(v any) Value {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

type converter struct {
	visiting map[any]struct{}
}

type ptrRef struct {
	t reflect.Type
	p uintptr
}

func (c *converter) convert(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return Null{}, nil
	}

	if rv.Type().Implements(valueType) {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Null{}, nil
		}
		return rv.Interface().(Value), nil
	}
	if rv.Type() == jsonNumberType {
		return parseNumber(rv.String())
	}
	if v, ok, err := convertMarshaler(rv); ok {
		return v, err
	}

	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, errors.Wrapf(ErrSerialization, "integer %d overflows int64", u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.Wrapf(ErrSerialization, "unsupported float value %v", f)
		}
		return Float(f), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return c.convert(rv.Elem())
	case reflect.Pointer:
		if rv.IsNil() {
			return Null{}, nil
		}
		ref := ptrRef{t: rv.Type(), p: rv.Pointer()}
		if err := c.enter(ref); err != nil {
			return nil, err
		}
		defer c.leave(ref)
		return c.convert(rv.Elem())
	case reflect.Slice:
		if rv.IsNil() {
			return Null{}, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return String(base64.StdEncoding.EncodeToString(rv.Bytes())), nil
		}
		if rv.Len() > 0 {
			ref := arrayRef{ptr: rv.Pointer(), len: rv.Len()}
			if err := c.enter(ref); err != nil {
				return nil, err
			}
			defer c.leave(ref)
		}
		return c.convertList(rv)
	case reflect.Array:
		return c.convertList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return Null{}, nil
		}
		ref := ptrRef{t: rv.Type(), p: rv.Pointer()}
		if err := c.enter(ref); err != nil {
			return nil, err
		}
		defer c.leave(ref)
		return c.convertMap(rv)
	case reflect.Struct:
		if !hasExportedFields(rv.Type()) && rv.NumField() > 0 {
			return nil, errors.Wrapf(ErrSerialization, "unsupported type %s: no exported fields", rv.Type())
		}
		o := NewObject()
		if err := c.convertStruct(rv, o); err != nil {
			return nil, err
		}
		return o, nil
	}
	return nil, errors.Wrapf(ErrSerialization, "unsupported type %s", rv.Type())
}

// convertMarshaler converts values implementing json.Marshaler
// or encoding.TextMarshaler, the same way encoding/json does.
func convertMarshaler(rv reflect.Value) (Value, bool, error) {
	switch rv.Kind() {
	case reflect.Interface:
		return nil, false, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, false, nil
		}
	default:
		if rv.CanAddr() {
			pv := rv.Addr()
			if pv.Type().Implements(jsonMarshalerType) || pv.Type().Implements(textMarshalerType) {
				rv = pv
			}
		}
	}
	if !rv.CanInterface() {
		return nil, false, nil
	}

	switch m := rv.Interface().(type) {
	case json.Marshaler:
		b, err := m.MarshalJSON()
		if err != nil {
			return nil, true, errors.Mark(errors.WithMessagef(err, "unable to marshal %s", rv.Type()), ErrSerialization)
		}
		v, err := Parse(b)
		if err != nil {
			return nil, true, errors.Mark(errors.WithMessagef(err, "invalid JSON from %s", rv.Type()), ErrSerialization)
		}
		return v, true, nil
	case encoding.TextMarshaler:
		b, err := m.MarshalText()
		if err != nil {
			return nil, true, errors.Mark(errors.WithMessagef(err, "unable to marshal %s", rv.Type()), ErrSerialization)
		}
		return String(b), true, nil
	}
	return nil, false, nil
}

func hasExportedFields(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.IsExported() {
			return true
		}
		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && hasExportedFields(ft) {
				return true
			}
		}
	}
	return false
}

func (c *converter) convertList(rv reflect.Value) (Value, error) {
	a := make(Array, rv.Len())
	for i := range a {
		v, err := c.convert(rv.Index(i))
		if err != nil {
			return nil, err
		}
		a[i] = v
	}
	return a, nil
}

func (c *converter) convertMap(rv reflect.Value) (Value, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return nil, errors.Wrapf(ErrSerialization, "unsupported map key type %s", rv.Type().Key())
	}
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	o := NewObject()
	for _, k := range keys {
		v, err := c.convert(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())))
		if err != nil {
			return nil, errors.WithMessagef(err, "member %q", k)
		}
		o.Set(k, v)
	}
	return o, nil
}

func (c *converter) convertStruct(rv reflect.Value, o *Object) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)

		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := c.convertStruct(fv, o); err != nil {
					return err
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if hasOption(opts, "omitempty") && fv.IsZero() {
			continue
		}
		if hasOption(opts, "omitempty") && (fv.Kind() == reflect.Slice || fv.Kind() == reflect.Map) && fv.Len() == 0 {
			continue
		}

		v, err := c.convert(fv)
		if err != nil {
			return errors.WithMessagef(err, "field %s", f.Name)
		}
		o.Set(name, v)
	}
	return nil
}

func hasOption(opts, name string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == name {
			return true
		}
	}
	return false
}

func (c *converter) enter(ref any) error {
	if _, ok := c.visiting[ref]; ok {
		return errors.Wrap(ErrSerialization, "cyclic structure")
	}
	c.visiting[ref] = struct{}{}
	return nil
}

func (c *converter) leave(ref any) {
	delete(c.visiting, ref)
}
