// Package fixture holds ordered JSON values used as sample responses and
// synthesizes them from specification schemas.
package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/tidwall/gjson"
)

// Value is a JSON value that keeps object keys in declared order.
// The zero Value is JSON null.
type Value struct {
	v any // nil, bool, json.Number, string, []Value or *Object
}

// Object is an ordered JSON object.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject returns an empty ordered object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set adds or replaces key. New keys are appended.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

func Bool(b bool) Value     { return Value{v: b} }
func String(s string) Value { return Value{v: s} }
func Int(n int64) Value     { return Value{v: json.Number(strconv.FormatInt(n, 10))} }
func Obj(o *Object) Value   { return Value{v: o} }
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{v: items}
}

// Float returns a number that always renders with a fractional part, so 1
// is written as 1.0.
func Float(f float64) Value {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return Value{v: json.Number(s)}
}

func (v Value) IsNull() bool { return v.v == nil }

func (v Value) IsObject() bool {
	_, ok := v.v.(*Object)
	return ok
}

func (v Value) IsArray() bool {
	_, ok := v.v.([]Value)
	return ok
}

// Object returns the object, or nil when v is not an object.
func (v Value) Object() *Object {
	o, _ := v.v.(*Object)
	return o
}

// Items returns the array elements, or nil when v is not an array.
func (v Value) Items() []Value {
	items, _ := v.v.([]Value)
	return items
}

// Str returns the string value and whether v is a string.
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// IsEmptyObject reports whether v is an object with no keys.
func (v Value) IsEmptyObject() bool {
	o := v.Object()
	return o != nil && o.Len() == 0
}

// Equal reports structural equality, including key order.
func (v Value) Equal(other Value) bool {
	a, errA := v.MarshalJSON()
	b, errB := other.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// MarshalJSON writes v with object keys in declared order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch x := v.v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case json.Number:
		buf.WriteString(x.String())
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []Value:
		buf.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Object:
		buf.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := x.vals[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("fixture: unsupported value type %T", x)
	}
	return nil
}

// Indent renders v as two-space indented JSON followed by a newline, the
// layout of fixture files on disk.
func (v Value) Indent() ([]byte, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes data keeping object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML converts v into ordered YAML nodes.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.yamlNode(), nil
}

func (v Value) yamlNode() interface{} {
	switch x := v.v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if isInteger(string(x)) {
			return yamlInteger(x)
		}
		f, _ := x.Float64()
		return f
	case []Value:
		out := make([]interface{}, 0, len(x))
		for _, item := range x {
			out = append(out, item.yamlNode())
		}
		return out
	case *Object:
		out := make(yaml.MapSlice, 0, len(x.keys))
		for _, k := range x.keys {
			out = append(out, yaml.MapItem{Key: k, Value: x.vals[k].yamlNode()})
		}
		return out
	default:
		return x
	}
}

// yamlInteger is an integer too wide for int64, emitted as its literal text.
type yamlInteger string

func (n yamlInteger) MarshalYAML() ([]byte, error) { return []byte(n), nil }

func isInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Parse decodes JSON bytes into an ordered Value.
func Parse(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Value{}, fmt.Errorf("fixture: invalid JSON")
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

// FromResult converts a gjson result into an ordered Value.
func FromResult(r gjson.Result) Value {
	return fromResult(r)
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Value{}
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Value{v: json.Number(r.Raw)}
	case gjson.String:
		return String(r.String())
	}
	if r.IsArray() {
		items := []Value{}
		r.ForEach(func(_, item gjson.Result) bool {
			items = append(items, fromResult(item))
			return true
		})
		return Value{v: items}
	}
	obj := NewObject()
	r.ForEach(func(key, item gjson.Result) bool {
		obj.Set(key.String(), fromResult(item))
		return true
	})
	return Obj(obj)
}
