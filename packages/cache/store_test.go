package cache

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetMissingKey(t *testing.T) {
	s := New()

	_, err := s.Get("token")
	require.Error(t, err)

	var notFound *cases.CacheKeyNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "token", notFound.Key)
	assert.True(t, errors.Is(err, cases.ErrCacheKeyNotFound))
}

func TestStore_SetTyped(t *testing.T) {
	s := New()

	require.NoError(t, s.SetTyped("token", "42", "int"))
	v, err := s.Get("token")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	require.NoError(t, s.SetTyped("raw", "42", ""))
	v, err = s.Get("raw")
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	err = s.SetTyped("bad", "forty-two", "int")
	assert.Error(t, err)
	assert.False(t, s.Has("bad"))
}

func TestStore_SeedIsCopied(t *testing.T) {
	seed := map[string]any{"ids": []any{1, 2}}
	a := NewWithSeed(seed)
	b := NewWithSeed(seed)

	v, err := a.Get("ids")
	require.NoError(t, err)
	v.([]any)[0] = 99
	a.Set("only_a", true)

	other, err := b.Get("ids")
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, other)
	assert.False(t, b.Has("only_a"))
	assert.Equal(t, []any{1, 2}, seed["ids"])
}

func TestStore_SnapshotAndKeys(t *testing.T) {
	s := New()
	s.Set("b", 2)
	s.Set("a", map[string]any{"x": 1})

	assert.Equal(t, []string{"a", "b"}, s.Keys())
	assert.Equal(t, 2, s.Len())

	snap := s.Snapshot()
	snap["a"].(map[string]any)["x"] = 5
	v, _ := s.Get("a")
	assert.Equal(t, 1, v.(map[string]any)["x"])
}

func TestStore_Clone(t *testing.T) {
	s := New()
	s.Set("user", map[string]any{"id": 1.0})

	c := s.Clone()
	c.Set("extra", true)
	v, err := c.Get("user")
	require.NoError(t, err)
	v.(map[string]any)["id"] = 2.0

	assert.False(t, s.Has("extra"))
	orig, _ := s.Get("user")
	assert.Equal(t, 1.0, orig.(map[string]any)["id"])
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set("k", i)
			_, _ = s.Get("k")
		}(i)
	}
	wg.Wait()
	assert.True(t, s.Has("k"))
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		value any
		typ   string
		want  any
		err   bool
	}{
		{"int from string", "42", "int", 42, false},
		{"int from float", 42.0, "int", 42, false},
		{"int from fractional", 4.5, "int", nil, true},
		{"float from string", "1.5", "float", 1.5, false},
		{"bool from string", "true", "bool", true, false},
		{"str from float", 12.0, "str", "12", false},
		{"str from map", map[string]any{"a": 1.0}, "str", `{"a":1}`, false},
		{"list from json", `[1, "a"]`, "list", []any{json.Number("1"), "a"}, false},
		{"int from json number", json.Number("1234567890123456789"), "int", 1234567890123456789, false},
		{"float from json number", json.Number("2.5"), "float", 2.5, false},
		{"bool from json number", json.Number("0"), "bool", false, false},
		{"str from json number", json.Number("1234567890123456789"), "str", "1234567890123456789", false},
		{"str keeps int64 exact", int64(1234567890123456789), "str", "1234567890123456789", false},
		{"dict keeps integers exact", `{"id": 1234567890123456789}`, "dict", map[string]any{"id": json.Number("1234567890123456789")}, false},
		{"dict from json", `{"a": true}`, "dict", map[string]any{"a": true}, false},
		{"unknown type", "x", "uuid", nil, true},
		{"no type", "x", "", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.typ)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
