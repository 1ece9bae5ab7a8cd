package placeholder

import (
	"errors"
	"testing"

	"github.com/abdul-hamid-achik/caserun/packages/builtin"
	"github.com/abdul-hamid-achik/caserun/packages/cache"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver() *Resolver {
	funcs := builtin.NewRegistry()
	funcs.RegisterValue("host", "http://api.test")
	return NewResolver(funcs)
}

func TestResolver_String(t *testing.T) {
	store := cache.New()
	store.Set("token", "abc")
	store.Set("user_id", 7)
	require.NoError(t, store.SetTyped("count", "42", "int"))
	store.Set("raw_count", "42")

	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"plain text untouched", "hello", "hello"},
		{"whole placeholder keeps type", "$cache{user_id}", 7},
		{"typed entry", "$cache{count}", 42},
		{"inline coercion", "$cache{int:raw_count}", 42},
		{"embedded placeholder is text", "Bearer $cache{token}", "Bearer abc"},
		{"embedded number is text", "/users/$cache{user_id}/posts", "/users/7/posts"},
		{"function whole", "${{host()}}", "http://api.test"},
		{"function embedded", "${{host()}}/login", "http://api.test/login"},
		{"function with cache arg", "${{base64($cache{token})}}", "YWJj"},
	}

	r := newResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.String(tt.input, store)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_CachedValuesAreNotReevaluated(t *testing.T) {
	store := cache.New()
	store.Set("tpl", "${{host()}}")
	store.Set("unknown", "${{no_such_fn()}}")
	store.Set("nested", "$cache{tpl}")

	r := newResolver()
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"embedded function text", "x-$cache{tpl}", "x-${{host()}}"},
		{"whole function text", "$cache{tpl}", "${{host()}}"},
		{"unknown function text", "$cache{unknown}/a", "${{no_such_fn()}}/a"},
		{"cache reference text", "$cache{nested}", "$cache{tpl}"},
		{"mixed in one string", "${{host()}}/$cache{tpl}", "http://api.test/${{host()}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.String(tt.input, store)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_MissingCacheKey(t *testing.T) {
	r := newResolver()

	_, err := r.String("Bearer $cache{token}", cache.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, cases.ErrCacheKeyNotFound))

	_, err = r.String("$cache{token}", nil)
	assert.True(t, errors.Is(err, cases.ErrCacheKeyNotFound))
}

func TestResolver_UnknownFunction(t *testing.T) {
	r := newResolver()

	_, err := r.String("${{app_host()}}/x", cache.New())
	var phErr *cases.PlaceholderError
	require.True(t, errors.As(err, &phErr))
	assert.True(t, errors.Is(err, builtin.ErrUnknownFunction))
}

func TestResolver_Value(t *testing.T) {
	store := cache.New()
	require.NoError(t, store.SetTyped("token", "42", "int"))
	store.Set("name", "ann")

	body := map[string]any{
		"id":    "$cache{token}",
		"label": "user-$cache{name}",
		"items": []any{"$cache{name}", 1, true, nil},
		"deep":  map[string]any{"x": "$cache{token}"},
	}

	got, err := newResolver().Value(body, store)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"id":    42,
		"label": "user-ann",
		"items": []any{"ann", 1, true, nil},
		"deep":  map[string]any{"x": 42},
	}, got)
	assert.Equal(t, "$cache{token}", body["id"], "input must not be modified")
}

func TestResolver_Case(t *testing.T) {
	store := cache.New()
	store.Set("token", "abc")
	store.Set("uid", 9)

	c := &cases.Case{
		ID:       "get_profile",
		URL:      "/users/$cache{uid}",
		Host:     "${{host()}}",
		Headers:  cases.Headers{{Key: "Authorization", Value: "Bearer $cache{token}"}},
		Params:   cases.Params{{Key: "id", Value: "$cache{uid}"}},
		Body:     map[string]any{"uid": "$cache{uid}"},
		SetupSQL: []string{"DELETE FROM sessions WHERE user_id = $cache{uid}"},
		Assertions: cases.AssertionSpec{
			Body: []cases.AssertionUnit{{Name: "id", Path: "$.id", Operator: cases.OpEquals, Expected: "$cache{uid}"}},
			SQL:  []cases.SQLUnit{{Name: "row", Query: "SELECT * FROM users WHERE id = $cache{uid}", Path: "$.id", Operator: cases.OpEquals, Expected: 9}},
		},
		Dependencies: []cases.DependencyStep{{CaseID: "login", Rules: []cases.ExtractionRule{{Path: "$cache{untouched}"}}}},
	}

	out, err := newResolver().Case(c, store)
	require.NoError(t, err)

	assert.Equal(t, "/users/9", out.URL)
	assert.Equal(t, "http://api.test", out.Host)
	assert.Equal(t, "Bearer abc", out.Headers[0].Value)
	assert.Equal(t, 9, out.Params[0].Value)
	assert.Equal(t, map[string]any{"uid": 9}, out.Body)
	assert.Equal(t, "DELETE FROM sessions WHERE user_id = 9", out.SetupSQL[0])
	assert.Equal(t, 9, out.Assertions.Body[0].Expected)
	assert.Equal(t, "SELECT * FROM users WHERE id = 9", out.Assertions.SQL[0].Query)
	assert.Equal(t, "$cache{untouched}", out.Dependencies[0].Rules[0].Path)

	assert.Equal(t, "/users/$cache{uid}", c.URL, "original case must not change")
}

func TestResolver_CaseMissingKeyNamesField(t *testing.T) {
	c := &cases.Case{ID: "x", Headers: cases.Headers{{Key: "Authorization", Value: "Bearer $cache{token}"}}}

	_, err := newResolver().Case(c, cache.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "headers.Authorization")
	assert.True(t, errors.Is(err, cases.ErrCacheKeyNotFound))
}

func TestCacheKeys(t *testing.T) {
	keys := CacheKeys(map[string]any{
		"a": "$cache{token} and $cache{int:uid}",
		"b": []any{"$cache{token}", 3},
	})
	assert.Equal(t, []string{"token", "uid"}, keys)
}
