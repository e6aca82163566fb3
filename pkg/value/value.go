// Package value implements the engine's dynamic object model: a small
// tagged union used for task/workflow input, output, and variables.
package value

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind tags the concrete type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt32
	KindInt64
	KindBool
	KindString
	KindList
	KindMap
)

// Value is a tagged union over Int32, Int64, Bool, String, List and Map,
// mirroring the engine's wire-level object model. The zero Value is Null.
type Value struct {
	kind Kind
	i32  int32
	i64  int64
	b    bool
	s    string
	list []Value
	m    map[string]Value
}

func Null() Value                       { return Value{kind: KindNull} }
func Int32(v int32) Value               { return Value{kind: KindInt32, i32: v} }
func Int64(v int64) Value               { return Value{kind: KindInt64, i64: v} }
func Bool(v bool) Value                 { return Value{kind: KindBool, b: v} }
func String(v string) Value             { return Value{kind: KindString, s: v} }
func List(v []Value) Value              { return Value{kind: KindList, list: v} }
func Map(v map[string]Value) Value      { return Value{kind: KindMap, m: v} }

// Int picks Int32 when v is in 32-bit range, else Int64 — matching the
// original object model's round-trip rule for numeric JSON values.
func Int(v int64) Value {
	if v > int64(-2147483648) && v < int64(2147483647) {
		return Int32(int32(v))
	}
	return Int64(v)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload, or an error if v is not a Bool.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("value: not a bool: %v", v)
	}
	return v.b, nil
}

// AsString returns the string payload, or an error if v is not a String.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("value: not a string: %v", v)
	}
	return v.s, nil
}

// AsMap returns the map payload, or an error if v is not a Map.
func (v Value) AsMap() (map[string]Value, error) {
	if v.kind != KindMap {
		return nil, fmt.Errorf("value: not a map: %v", v)
	}
	return v.m, nil
}

// AsList returns the list payload, or an error if v is not a List.
func (v Value) AsList() ([]Value, error) {
	if v.kind != KindList {
		return nil, fmt.Errorf("value: not a list: %v", v)
	}
	return v.list, nil
}

// String renders the value per the engine's stringification rule:
// true/false render as "True"/"False", null renders as "", numbers
// render in base 10, and Map/List render as their JSON projection.
func (v Value) String() string {
	switch v.kind {
	case KindInt32:
		return strconv.FormatInt(int64(v.i32), 10)
	case KindInt64:
		return strconv.FormatInt(v.i64, 10)
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindString:
		return v.s
	case KindMap, KindList:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return ""
	}
}

// EstimateMemory approximates the byte size of v, used by SetVariable's
// 256 KB serialized-size guard.
func (v Value) EstimateMemory() int {
	switch v.kind {
	case KindInt32:
		return 4
	case KindInt64:
		return 8
	case KindBool:
		return 1
	case KindString:
		return len(v.s)
	case KindMap:
		n := 0
		for k, e := range v.m {
			n += len(k) + e.EstimateMemory()
		}
		return n
	case KindList:
		n := 0
		for _, e := range v.list {
			n += e.EstimateMemory()
		}
		return n
	default:
		return 1
	}
}

// MarshalJSON projects the value onto its canonical JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt32:
		return json.Marshal(v.i32)
	case KindInt64:
		return json.Marshal(v.i64)
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON reconstructs a Value from its JSON form, splitting
// integral numbers between Int32 and Int64 the same way MarshalJSON's
// counterpart on the source engine does.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts a generic JSON-decoded value (as produced by
// encoding/json into interface{}) into a Value.
func FromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		// no dedicated float kind in the object model; carry as string
		// form, matching the model's numeric-only Int32/Int64 design.
		return String(strconv.FormatFloat(t, 'f', -1, 64))
	case json.Number:
		n, err := t.Int64()
		if err == nil {
			return Int(n)
		}
		return String(t.String())
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}
		return List(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromAny(e)
		}
		return Map(out)
	case []Value:
		return List(t)
	case map[string]Value:
		return Map(t)
	case Value:
		return t
	default:
		return Null()
	}
}

// ToAny converts a Value back into plain Go data (map[string]interface{},
// []interface{}, string, int32/int64, bool, nil) suitable for
// jmespath.Search or further json.Marshal calls.
func (v Value) ToAny() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindInt32:
		return v.i32
	case KindInt64:
		return v.i64
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}
