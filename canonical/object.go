package canonical

import (
	"strconv"
	"time"
)

// Object is JSON object which keeps members in insertion order
type Object struct {
	keys   []string
	values []Value
	index  map[string]int
}

// NewObject returns an empty Object
func NewObject() *Object {
	return &Object{
		index: map[string]int{},
	}
}

// Kind implements Value
func (o *Object) Kind() Kind { return KindObject }

func (o *Object) value() {}

// Interface implements Value
func (o *Object) Interface() any {
	return o.Map()
}

// Map returns members as native Go map
func (o *Object) Map() map[string]any {
	if o == nil {
		return nil
	}
	m := make(map[string]any, len(o.keys))
	for i, k := range o.keys {
		if v := o.values[i]; v != nil {
			m[k] = v.Interface()
		} else {
			m[k] = nil
		}
	}
	return m
}

// Len returns number of members
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Set adds a member, or replaces the value of an existing member
// keeping its position. It returns the object to allow chaining.
func (o *Object) Set(key string, v Value) *Object {
	if o.index == nil {
		o.index = map[string]int{}
	}
	if v == nil {
		v = Null{}
	}
	if i, ok := o.index[key]; ok {
		o.values[i] = v
		return o
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.values = append(o.values, v)
	return o
}

// Get returns the value of a member
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.values[i], true
}

// Has returns true if the member exists
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Delete removes a member, and returns true if it existed
func (o *Object) Delete(key string) bool {
	if o == nil {
		return false
	}
	i, ok := o.index[key]
	if !ok {
		return false
	}
	o.keys = append(o.keys[:i], o.keys[i+1:]...)
	o.values = append(o.values[:i], o.values[i+1:]...)
	delete(o.index, key)
	for j := i; j < len(o.keys); j++ {
		o.index[o.keys[j]] = j
	}
	return true
}

// Keys returns member names in order
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Range calls fn for each member in order, until fn returns false
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for i, k := range o.keys {
		if !fn(k, o.values[i]) {
			return
		}
	}
}

// Clone returns a deep copy of the object
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := NewObject()
	for i, k := range o.keys {
		c.Set(k, cloneValue(o.values[i]))
	}
	return c
}

// Equal returns true if both objects have the same members in the same order
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o.Len() == other.Len()
	}
	if o.Len() != other.Len() {
		return false
	}
	for i, k := range o.keys {
		if other.keys[i] != k || !Equal(o.values[i], other.values[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler
func (o *Object) MarshalJSON() ([]byte, error) {
	return Serialize(o)
}

// UnmarshalJSON implements json.Unmarshaler
func (o *Object) UnmarshalJSON(data []byte) error {
	parsed, err := ParseObject(data)
	if err != nil {
		return err
	}
	*o = *parsed
	return nil
}

// GetString will return the named member as a string,
// if the underlying type is not a string,
// it will return its serialized form.
func (o *Object) GetString(k string) string {
	v, ok := o.Get(k)
	if !ok {
		return ""
	}
	switch tv := v.(type) {
	case String:
		return string(tv)
	case Null:
		return ""
	default:
		b, err := Serialize(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// GetBool will return the named member as bool
func (o *Object) GetBool(k string) bool {
	v, _ := o.Get(k)
	b, ok := v.(Bool)
	return ok && bool(b)
}

// GetInt will return the named member as int64
func (o *Object) GetInt(k string) int64 {
	v, _ := o.Get(k)
	switch tv := v.(type) {
	case Int:
		return int64(tv)
	case Float:
		return int64(tv)
	case String:
		i, err := strconv.ParseInt(string(tv), 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// GetStrings will return the named member as a slice of strings,
// a single string is returned as a slice with one element
func (o *Object) GetStrings(k string) []string {
	v, _ := o.Get(k)
	switch tv := v.(type) {
	case String:
		return []string{string(tv)}
	case Array:
		var res []string
		for _, e := range tv {
			if s, ok := e.(String); ok {
				res = append(res, string(s))
			}
		}
		return res
	default:
		return nil
	}
}

// GetTime will return the named NumericDate member as Time
func (o *Object) GetTime(k string) *time.Time {
	v, _ := o.Get(k)
	switch tv := v.(type) {
	case Int:
		t := time.Unix(int64(tv), 0)
		return &t
	case Float:
		sec := int64(tv)
		t := time.Unix(sec, int64((float64(tv)-float64(sec))*1e9))
		return &t
	case String:
		unix, err := strconv.ParseInt(string(tv), 10, 64)
		if err != nil {
			return nil
		}
		t := time.Unix(unix, 0)
		return &t
	default:
		return nil
	}
}

func cloneValue(v Value) Value {
	switch tv := v.(type) {
	case Array:
		c := make(Array, len(tv))
		for i, e := range tv {
			c[i] = cloneValue(e)
		}
		return c
	case *Object:
		return tv.Clone()
	default:
		return v
	}
}
