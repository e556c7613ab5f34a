// Package record provides the loosely-typed source record produced by source
// adapters: an ordered mapping from field name to a small tagged value.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

// Value kinds.
const (
	Null Kind = iota
	String
	Number
	Bool
	Array
	Object
)

// Value is a tagged union of the scalar and composite values a source can carry.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	arr  []Value
	obj  *Record
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: String, str: s} }

// NumberValue returns a numeric Value.
func NumberValue(n float64) Value { return Value{kind: Number, num: n} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// ArrayValue returns an array Value.
func ArrayValue(vs ...Value) Value { return Value{kind: Array, arr: vs} }

// ObjectValue returns a nested-object Value.
func ObjectValue(r *Record) Value {
	if r == nil {
		return Value{}
	}
	return Value{kind: Object, obj: r}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == Null }

// Items returns the elements of an array value, or nil.
func (v Value) Items() []Value { return v.arr }

// Record returns the nested record of an object value, or nil.
func (v Value) Record() *Record { return v.obj }

// First returns the first element of an array, or v itself for any other kind.
func (v Value) First() Value {
	if v.kind != Array {
		return v
	}
	if len(v.arr) == 0 {
		return Value{}
	}
	return v.arr[0]
}

// String renders v as text. Arrays join their elements with ", ";
// objects render as an empty string.
func (v Value) String() string {
	switch v.kind {
	case String:
		return v.str
	case Number:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	case Array:
		parts := make([]string, 0, len(v.arr))
		for _, e := range v.arr {
			if s := e.String(); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// Float returns v as a number. Strings are parsed after trimming; a comma
// decimal separator is accepted. ok is false for anything non-numeric.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case Number:
		return v.num, true
	case Bool:
		if v.b {
			return 1, true
		}
		return 0, true
	case String:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, true
		}
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			if n, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
				return n, true
			}
		}
		return 0, false
	case Array:
		return v.First().Float()
	default:
		return 0, false
	}
}

// Truthy reports whether v counts as a true boolean.
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.num != 0
	case String:
		switch strings.ToLower(strings.TrimSpace(v.str)) {
		case "", "0", "false", "no", "off", "null":
			return false
		}
		return true
	case Array:
		return len(v.arr) > 0
	case Object:
		return true
	default:
		return false
	}
}

// Record is an ordered mapping from field name to Value.
type Record struct {
	keys []string
	vals map[string]Value
}

// New returns an empty record.
func New() *Record {
	return &Record{vals: make(map[string]Value)}
}

// Set stores v under key. A key keeps the position of its first insertion.
func (r *Record) Set(key string, v Value) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// SetString is shorthand for Set(key, StringValue(s)).
func (r *Record) SetString(key, s string) { r.Set(key, StringValue(s)) }

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.vals[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Lookup resolves a possibly dotted path. An exact key match wins; otherwise
// each segment descends into a nested object, or indexes an array when numeric.
func (r *Record) Lookup(path string) (Value, bool) {
	if v, ok := r.Get(path); ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return Value{}, false
	}
	cur := ObjectValue(r)
	for _, seg := range strings.Split(path, ".") {
		switch cur.kind {
		case Object:
			v, ok := cur.obj.Get(seg)
			if !ok {
				return Value{}, false
			}
			cur = v
		case Array:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[i]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// MarshalJSON encodes the record as a JSON object preserving key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := r.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	if v.kind != Object {
		return fmt.Errorf("record: expected JSON object")
	}
	*r = *v.obj
	return nil
}

// MarshalJSON encodes v as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case String:
		return json.Marshal(v.str)
	case Number:
		return json.Marshal(v.num)
	case Bool:
		return json.Marshal(v.b)
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		return v.obj.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// DecodeJSON parses a JSON document into a Value, keeping object key order.
func DecodeJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("decode json: trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec := New()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", kt)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				rec.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ObjectValue(rec), nil
		case '[':
			items := []Value{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ArrayValue(items...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return StringValue(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return StringValue(t.String()), nil
		}
		return NumberValue(n), nil
	case bool:
		return BoolValue(t), nil
	case nil:
		return Value{}, nil
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// Keys probed, in order, to reduce a nested object to one scalar.
var scalarProbeKeys = []string{
	"_", "name", "title", "text", "content", "value", "address", "description",
	"cityName", "regionName", "countryName", "company_name", "enterpriseName",
	"location", "salaryType", "salaryMin", "salaryMax", "min", "max",
}

// Scalar reduces v to a non-composite value. Arrays yield their first
// element; objects yield the first non-empty probe key.
func (v Value) Scalar() Value {
	switch v.kind {
	case Array:
		return v.First().Scalar()
	case Object:
		for _, k := range scalarProbeKeys {
			if inner, ok := v.obj.Get(k); ok && inner.kind != Object && inner.String() != "" {
				return inner.Scalar()
			}
		}
		return Value{}
	default:
		return v
	}
}
