package access

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOfDecodedData(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		kind ValueKind
		want any
	}{
		{name: "string", raw: "reset.html", kind: KindString, want: "reset.html"},
		{name: "bool", raw: true, kind: KindBool, want: true},
		{name: "yaml int", raw: 30, kind: KindInt, want: int64(30)},
		{name: "json number", raw: float64(15), kind: KindInt, want: int64(15)},
		{name: "uint64", raw: uint64(math.MaxInt64), kind: KindInt, want: int64(math.MaxInt64)},
		{name: "list", raw: []any{"a", "b"}, kind: KindStringList, want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValueOf(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.want, v.Interface())
		})
	}
}

func TestValueOfRejectsUnsupported(t *testing.T) {
	unsupported := []any{
		1.5,
		[]any{"a", 2},
		map[string]any{"nested": true},
		nil,
		uint64(math.MaxInt64) + 1,
		^uint(0),
		float64(1 << 63),
	}
	for _, raw := range unsupported {
		_, err := ValueOf(raw)
		assert.ErrorIs(t, err, ErrInvalidConfigValue, "%v", raw)
	}
}

func TestValueAccessorsCheckKind(t *testing.T) {
	v := Int(3)

	_, ok := v.Str()
	assert.False(t, ok)
	_, ok = v.BoolValue()
	assert.False(t, ok)
	i, ok := v.IntValue()
	assert.True(t, ok)
	assert.Equal(t, int64(3), i)
	assert.Equal(t, "3", v.String())
	assert.False(t, Value{}.IsValid())
}

func TestConfigMapCloneIsDeep(t *testing.T) {
	m := ConfigMap{"tags": StringList("a", "b"), "title": String("Hi")}

	cp := m.Clone()
	cp["title"] = String("Bye")
	list, _ := cp["tags"].List()
	list[0] = "z"

	assert.Equal(t, "Hi", m.GetString("title", ""))
	assert.Equal(t, []string{"a", "b"}, m.GetList("tags"))
	assert.True(t, m.Equal(ConfigMap{"tags": StringList("a", "b"), "title": String("Hi")}))
	assert.NotNil(t, ConfigMap(nil).Clone())
}

func TestConfigMapJSON(t *testing.T) {
	var m ConfigMap
	require.NoError(t, json.Unmarshal([]byte(`{"enabled":true,"ttl":30,"tags":["x"]}`), &m))

	assert.True(t, m.GetBool("enabled", false))
	assert.Equal(t, int64(30), m.GetInt("ttl", 0))
	assert.Equal(t, []string{"enabled", "tags", "ttl"}, m.Keys())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"enabled":true,"ttl":30,"tags":["x"]}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"ratio":0.5}`), &m))
}

func TestConfigMapDefaults(t *testing.T) {
	m := MustConfigMap(map[string]any{"title": "Hi"})

	assert.Equal(t, "fallback", m.GetString("missing", "fallback"))
	assert.True(t, m.GetBool("title", true))
	assert.Equal(t, int64(7), m.GetInt("title", 7))
	assert.Nil(t, m.GetList("title"))
	assert.Equal(t, map[string]any{"title": "Hi"}, m.ToMap())
	assert.Panics(t, func() { MustConfigMap(map[string]any{"bad": 0.5}) })
}
