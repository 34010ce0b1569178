package access

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
)

// ValueKind enumerates the supported config value types.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindBool
	KindInt
	KindStringList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindStringList:
		return "string_list"
	default:
		return "invalid"
	}
}

// Value is a config value: a string, bool, int or list of strings.
type Value struct {
	kind ValueKind
	s    string
	b    bool
	i    int64
	list []string
}

func String(s string) Value        { return Value{kind: KindString, s: s} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Int(i int64) Value            { return Value{kind: KindInt, i: i} }
func StringList(l ...string) Value { return Value{kind: KindStringList, list: slices.Clone(l)} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsValid() bool   { return v.kind != KindInvalid }

// Str returns the string payload and whether the value is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// BoolValue returns the bool payload and whether the value is a bool.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// IntValue returns the int payload and whether the value is an int.
func (v Value) IntValue() (int64, bool) { return v.i, v.kind == KindInt }

// List returns a copy of the list payload and whether the value is a list.
func (v Value) List() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// Interface returns the payload as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindStringList:
		return slices.Clone(v.list)
	default:
		return nil
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindStringList:
		return slices.Equal(v.list, o.list)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInvalid:
		return ""
	default:
		return fmt.Sprint(v.Interface())
	}
}

// ValueOf converts decoded YAML/JSON data into a Value.
func ValueOf(raw any) (Value, error) {
	switch t := raw.(type) {
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return uintValue(uint64(t))
	case uint64:
		return uintValue(t)
	case float64:
		if t < math.MinInt64 || t >= math.MaxInt64 {
			return Value{}, newError(ErrInvalidConfigValue, map[string]any{"value": t, "reason": "number out of range"})
		}
		if t != float64(int64(t)) {
			return Value{}, newError(ErrInvalidConfigValue, map[string]any{"value": t, "reason": "non integral number"})
		}
		return Int(int64(t)), nil
	case []string:
		return StringList(t...), nil
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return Value{}, newError(ErrInvalidConfigValue, map[string]any{"value": raw, "reason": "list items must be strings"})
			}
			list = append(list, s)
		}
		return StringList(list...), nil
	default:
		return Value{}, newError(ErrInvalidConfigValue, map[string]any{"value": fmt.Sprintf("%v", raw), "type": fmt.Sprintf("%T", raw)})
	}
}

func uintValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, newError(ErrInvalidConfigValue, map[string]any{"value": u, "reason": "number out of range"})
	}
	return Int(int64(u)), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ConfigMap is the open, typed config blob attached to pages, nav entries and
// global auth settings.
type ConfigMap map[string]Value

// ConfigMapOf converts a decoded map into a ConfigMap.
func ConfigMapOf(raw map[string]any) (ConfigMap, error) {
	out := make(ConfigMap, len(raw))
	for k, item := range raw {
		v, err := ValueOf(item)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// MustConfigMap is ConfigMapOf for literals known to be valid.
func MustConfigMap(raw map[string]any) ConfigMap {
	m, err := ConfigMapOf(raw)
	if err != nil {
		panic(err)
	}
	return m
}

// Clone returns a deep copy. A nil map clones to an empty map.
func (m ConfigMap) Clone() ConfigMap {
	out := make(ConfigMap, len(m))
	for k, v := range m {
		if v.kind == KindStringList {
			v.list = slices.Clone(v.list)
		}
		out[k] = v
	}
	return out
}

// Merge copies src into m, overwriting existing keys.
func (m ConfigMap) Merge(src ConfigMap) {
	maps.Copy(m, src.Clone())
}

func (m ConfigMap) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// GetString returns the string under key or def.
func (m ConfigMap) GetString(key, def string) string {
	if s, ok := m[key].Str(); ok {
		return s
	}
	return def
}

// GetBool returns the bool under key or def.
func (m ConfigMap) GetBool(key string, def bool) bool {
	if b, ok := m[key].BoolValue(); ok {
		return b
	}
	return def
}

// GetInt returns the int under key or def.
func (m ConfigMap) GetInt(key string, def int64) int64 {
	if i, ok := m[key].IntValue(); ok {
		return i
	}
	return def
}

// GetList returns the string list under key or nil.
func (m ConfigMap) GetList(key string) []string {
	l, _ := m[key].List()
	return l
}

// Keys returns the sorted keys.
func (m ConfigMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToMap returns plain Go values, handy for templates and JSON.
func (m ConfigMap) ToMap() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

func (m ConfigMap) Equal(o ConfigMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
