// Package jsonval holds a tagged representation of dynamic JSON payloads
// (command parameters, RPC payloads, capability attributes). Objects keep
// their member order so "first field" logic is deterministic.
package jsonval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// Member is a single key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Value is one JSON value of any kind. The zero value is null.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	obj  []Member
	arr  []Value
}

func Null() Value                { return Value{} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Number(n float64) Value     { return Value{kind: KindNumber, num: n} }
func Int(n int) Value            { return Number(float64(n)) }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Object builds an object whose member order is the argument order.
func Object(members ...Member) Value {
	return Value{kind: KindObject, obj: members}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsObject() bool { return v.kind == KindObject }

// IsScalar reports whether the value is a bool, number or string.
func (v Value) IsScalar() bool {
	return v.kind == KindBool || v.kind == KindNumber || v.kind == KindString
}

// Bool returns the boolean value, false for any other kind.
func (v Value) Bool() bool {
	return v.kind == KindBool && v.b
}

// Int returns the numeric value truncated to int, 0 for any other kind.
func (v Value) Int() int {
	if v.kind == KindNumber {
		return int(v.num)
	}
	return 0
}

// Float returns the numeric value, 0 for any other kind.
func (v Value) Float() float64 {
	if v.kind == KindNumber {
		return v.num
	}
	return 0
}

// Text renders scalars as text: strings verbatim, numbers and booleans in
// their JSON form. Objects, arrays and null render empty.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Truthy mirrors the on/off interpretation used by command templates:
// booleans as-is, numbers true when non-zero, strings true when non-empty.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	}
	return false
}

// Get looks up an object member by key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.obj {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Members returns the object's members in insertion order.
func (v Value) Members() []Member { return v.obj }

// Len returns the number of object members or array items.
func (v Value) Len() int {
	if v.kind == KindArray {
		return len(v.arr)
	}
	return len(v.obj)
}

// Items returns the array items.
func (v Value) Items() []Value { return v.arr }

// Set replaces an existing member's value or appends a new member.
func (v *Value) Set(key string, val Value) {
	if v.kind != KindObject {
		*v = Object()
	}
	for i, m := range v.obj {
		if m.Key == key {
			v.obj[i].Value = val
			return
		}
	}
	v.obj = append(v.obj, Member{Key: key, Value: val})
}

// Interface converts to plain Go values (map[string]any for objects),
// losing member order. Useful at JSON response boundaries where order
// does not matter.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if isIntegral(v.num) {
			return int64(v.num)
		}
		return v.num
	case KindString:
		return v.str
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for _, m := range v.obj {
			out[m.Key] = m.Value.Interface()
		}
		return out
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(formatNumber(v.num))
	case KindString:
		encoded, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case KindObject:
		buf.WriteByte('{')
		for i, m := range v.obj {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}

	// Trailing garbage after the first value is a malformed payload
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}

	*v = parsed
	return nil
}

// Parse decodes a JSON document into a Value.
func Parse(data []byte) (Value, error) {
	var v Value
	err := v.UnmarshalJSON(data)
	return v, err
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := Value{kind: KindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string")
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.obj = append(obj.obj, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // closing brace
				return Value{}, err
			}
			return obj, nil
		case '[':
			arr := Value{kind: KindArray}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr.arr = append(arr.arr, item)
			}
			if _, err := dec.Token(); err != nil { // closing bracket
				return Value{}, err
			}
			return arr, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

func formatNumber(n float64) string {
	if isIntegral(n) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func isIntegral(n float64) bool {
	return n == math.Trunc(n) && math.Abs(n) < 1<<62
}
