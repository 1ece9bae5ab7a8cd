package capture

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/caserun/packages/cache"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

var loginBody = map[string]any{
	"code": json.Number("0"),
	"data": map[string]any{
		"token": "abc",
		"user":  map[string]any{"id": json.Number("42"), "name": "alice"},
		"items": []any{
			map[string]any{"id": json.Number("1")},
			map[string]any{"id": json.Number("2")},
		},
	},
}

func TestToGJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"$", ""},
		{"$.data.token", "data.token"},
		{"data.token", "data.token"},
		{"$.data.items[0].id", "data.items.0.id"},
		{"$.data.items[*].id", "data.items.#.id"},
		{"$[1].name", "1.name"},
		{"$['a.b'].c", `a\.b.c`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToGJSON(tt.in))
		})
	}
}

func TestLookup(t *testing.T) {
	v, ok := Lookup(loginBody, "$.data.token")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	v, ok = Lookup(loginBody, "$.data.items[1].id")
	assert.True(t, ok)
	assert.Equal(t, json.Number("2"), v)

	v, ok = Lookup(loginBody, "$.data.items[*].id")
	assert.True(t, ok)
	assert.Equal(t, []any{json.Number("1"), json.Number("2")}, v)

	_, ok = Lookup(loginBody, "$.data.missing")
	assert.False(t, ok)

	v, ok = Lookup(loginBody, "$.data.user")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"id": json.Number("42"), "name": "alice"}, v)

	v, ok = Lookup("plain text", "$")
	assert.True(t, ok)
	assert.Equal(t, "plain text", v)

	_, ok = Lookup(nil, "$.a")
	assert.False(t, ok)
}

func TestLookup_KeepsNumbersExact(t *testing.T) {
	v, ok := Lookup(map[string]any{"n": 7}, "$.n")
	assert.True(t, ok)
	assert.Equal(t, json.Number("7"), v)

	v, ok = Lookup(map[string]any{"id": int64(1234567890123456789)}, "$.id")
	assert.True(t, ok)
	assert.Equal(t, json.Number("1234567890123456789"), v)

	v, ok = LookupBytes([]byte(`{"data":{"ids":[1234567890123456789, 2.5]}}`), "$.data")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"ids": []any{json.Number("1234567890123456789"), json.Number("2.5")}}, v)

	v, ok = LookupBytes([]byte(`9007199254740993`), "$")
	assert.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), v)
}

func TestExtract_Sources(t *testing.T) {
	store := cache.New()
	store.Set("uid", "42")

	src := Sources{
		Response:     loginBody,
		SelfResponse: map[string]any{"id": "order-9"},
		Request:      map[string]any{"username": "alice"},
		SQL:          map[string]any{"balance": int64(100)},
	}

	tests := []struct {
		name string
		rule cases.ExtractionRule
		want any
	}{
		{"response", cases.ExtractionRule{Source: cases.SourceResponse, Path: "$.data.token"}, "abc"},
		{"default source", cases.ExtractionRule{Path: "$.code"}, json.Number("0")},
		{"self response", cases.ExtractionRule{Source: cases.SourceSelfResponse, Path: "$.id"}, "order-9"},
		{"request", cases.ExtractionRule{Source: cases.SourceRequest, Path: "$.username"}, "alice"},
		{"sql", cases.ExtractionRule{Source: cases.SourceSQL, Path: "$.balance"}, json.Number("100")},
		{"cache", cases.ExtractionRule{Source: cases.SourceCache, Path: "uid"}, "42"},
		{"cache placeholder form", cases.ExtractionRule{Source: cases.SourceCache, Path: "$cache{uid}"}, "42"},
		{"cache coerced", cases.ExtractionRule{Source: cases.SourceCache, Path: "uid", Coerce: "int"}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.rule, src, store)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	store := cache.New()

	_, err := Extract(cases.ExtractionRule{Source: cases.SourceCache, Path: "nope"}, Sources{}, store)
	assert.True(t, errors.Is(err, cases.ErrCacheKeyNotFound))

	_, err = Extract(cases.ExtractionRule{Path: "$.data.none"}, Sources{Response: loginBody}, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.data.none")

	_, err = Extract(cases.ExtractionRule{Path: "$.data.token", Coerce: "int"}, Sources{Response: loginBody}, store)
	assert.Error(t, err)
}

func TestApply_LoginScenario(t *testing.T) {
	store := cache.New()
	rules := []cases.ExtractionRule{{Source: cases.SourceResponse, Path: "$.data.token", SetCache: "login_token"}}

	writes, err := Apply(rules, Sources{Response: loginBody}, store, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"login_token": "abc"}, writes)

	v, err := store.Get("login_token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestApply_ReplaceKey(t *testing.T) {
	target := &cases.Case{
		ID:     "get_profile",
		Body:   map[string]any{"user": map[string]any{"name": "x"}},
		Params: cases.Params{{Key: "page", Value: float64(1)}},
	}
	rules := []cases.ExtractionRule{
		{Path: "$.data.user.id", ReplaceKey: "$.data.user.id"},
		{Path: "$.data.token", ReplaceKey: "$.headers.Authorization"},
		{Path: "$.data.user.id", ReplaceKey: "$.params.uid", SetCache: "uid"},
	}
	store := cache.New()
	_, err := Apply(rules, Sources{Response: loginBody}, store, target)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"user": map[string]any{"name": "x", "id": json.Number("42")}}, target.Body)
	auth, ok := target.Headers.Get("authorization")
	assert.True(t, ok)
	assert.Equal(t, "abc", auth)
	uid, _ := target.Params.Get("uid")
	assert.Equal(t, json.Number("42"), uid)
	assert.True(t, store.Has("uid"))
}

func TestApply_StopsAtFirstError(t *testing.T) {
	store := cache.New()
	rules := []cases.ExtractionRule{
		{Path: "$.code", SetCache: "code"},
		{Path: "$.nope", SetCache: "nope"},
		{Path: "$.data.token", SetCache: "token"},
	}
	writes, err := Apply(rules, Sources{Response: loginBody}, store, nil)
	require.Error(t, err)
	assert.Equal(t, map[string]any{"code": json.Number("0")}, writes)
	assert.False(t, store.Has("token"))
}

func TestReplace(t *testing.T) {
	t.Run("creates nested maps", func(t *testing.T) {
		c := &cases.Case{}
		require.NoError(t, Replace(c, "$.data.a.b", "v"))
		assert.Equal(t, map[string]any{"a": map[string]any{"b": "v"}}, c.Body)
	})

	t.Run("list index", func(t *testing.T) {
		c := &cases.Case{Body: map[string]any{"items": []any{map[string]any{"id": 1.0}}}}
		require.NoError(t, Replace(c, "$.data.items[0].id", 9.0))
		assert.Equal(t, 9.0, c.Body.(map[string]any)["items"].([]any)[0].(map[string]any)["id"])
	})

	t.Run("index out of range", func(t *testing.T) {
		c := &cases.Case{Body: map[string]any{"items": []any{}}}
		assert.Error(t, Replace(c, "$.data.items[3]", 1.0))
	})

	t.Run("whole body", func(t *testing.T) {
		c := &cases.Case{Body: map[string]any{"x": 1.0}}
		require.NoError(t, Replace(c, "$.data", []any{"a"}))
		assert.Equal(t, []any{"a"}, c.Body)
	})

	t.Run("url", func(t *testing.T) {
		c := &cases.Case{}
		require.NoError(t, Replace(c, "$.url", "/orders/7"))
		assert.Equal(t, "/orders/7", c.URL)
	})

	t.Run("unsupported", func(t *testing.T) {
		assert.Error(t, Replace(&cases.Case{}, "$.cookies.x", "v"))
	})
}

func TestFilter(t *testing.T) {
	rules := []cases.ExtractionRule{
		{Path: "a"},
		{Source: cases.SourceCache, Path: "b"},
		{Source: cases.SourceSelfResponse, Path: "c"},
	}
	assert.Len(t, Filter(rules, cases.SourceResponse), 1)
	assert.Len(t, Filter(rules, cases.SourceCache, cases.SourceSelfResponse), 2)
}
