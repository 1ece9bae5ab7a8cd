package runner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

func dependsOn(c *cases.Case, ids ...string) *cases.Case {
	for _, id := range ids {
		c.Dependencies = append(c.Dependencies, cases.DependencyStep{CaseID: id})
	}
	return c
}

func TestCatalog_Chain(t *testing.T) {
	login := newCase("login", "POST", "/login")
	profile := dependsOn(newCase("profile", "GET", "/profile"), "login")
	order := dependsOn(newCase("order", "POST", "/orders"), "profile", "login")
	order.Teardown = []cases.TeardownStep{{CaseID: "cancel"}}
	cancel := newCase("cancel", "DELETE", "/orders/1")
	cat := NewCatalog(shopModule(login, profile, order, cancel))

	chain, err := cat.Chain("shop", "order")
	require.NoError(t, err)
	assert.Equal(t, []string{"login", "profile", "cancel", "order"}, chain)

	chain, err = cat.Chain("shop", "login")
	require.NoError(t, err)
	assert.Equal(t, []string{"login"}, chain)

	_, err = cat.Chain("shop", "nope")
	assert.Error(t, err)
}

func TestCatalog_Chains(t *testing.T) {
	login := newCase("login", "POST", "/login")
	profile := dependsOn(newCase("profile", "GET", "/profile"), "login")
	health := newCase("health", "GET", "/health")
	setup := newCase("setup", "POST", "/setup")
	report := dependsOn(newCase("report", "GET", "/report"), "setup")
	cat := NewCatalog(shopModule(login, profile, health, setup, report))

	groups, err := cat.Chains("shop")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"login", "profile"}, {"health"}, {"setup", "report"}}, groups)

	_, err = cat.Chains("missing")
	assert.Error(t, err)
}

func TestCatalog_Check(t *testing.T) {
	t.Run("three case cycle", func(t *testing.T) {
		a := dependsOn(newCase("a", "GET", "/a"), "b")
		b := dependsOn(newCase("b", "GET", "/b"), "c")
		c := dependsOn(newCase("c", "GET", "/c"), "a")
		cat := NewCatalog(shopModule(a, b, c))

		var cyc *cases.CircularDependencyError
		require.True(t, errors.As(cat.Check(b), &cyc))
		assert.Equal(t, []string{"b", "c", "a", "b"}, cyc.Cycle)
	})

	t.Run("self dependency", func(t *testing.T) {
		a := dependsOn(newCase("a", "GET", "/a"), "a")
		var cyc *cases.CircularDependencyError
		require.True(t, errors.As(NewCatalog(shopModule(a)).Check(a), &cyc))
		assert.Equal(t, []string{"a", "a"}, cyc.Cycle)
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		base := newCase("base", "GET", "/base")
		left := dependsOn(newCase("left", "GET", "/l"), "base")
		right := dependsOn(newCase("right", "GET", "/r"), "base")
		top := dependsOn(newCase("top", "GET", "/t"), "left", "right")
		assert.NoError(t, NewCatalog(shopModule(base, left, right, top)).Check(top))
	})

	t.Run("unknown prerequisite", func(t *testing.T) {
		a := dependsOn(newCase("a", "GET", "/a"), "ghost")
		err := NewCatalog(shopModule(a)).Check(a)
		var dfe *cases.DataFormatError
		require.True(t, errors.As(err, &dfe))
		assert.Equal(t, "a", dfe.CaseID)
		assert.Contains(t, err.Error(), "ghost")
	})
}

func TestCatalog_PrefersOwnModule(t *testing.T) {
	shared := newCase("login", "POST", "/shop-login")
	other := &cases.Case{ID: "login", Module: "admin", Method: "POST", URL: "/admin-login", IsRun: true}
	onlyAdmin := &cases.Case{ID: "audit", Module: "admin", Method: "GET", URL: "/audit", IsRun: true}
	cat := NewCatalog(shopModule(shared), &cases.Module{Name: "admin", Cases: []*cases.Case{other, onlyAdmin}})

	c, ok := cat.Case("admin", "login")
	require.True(t, ok)
	assert.Equal(t, "/admin-login", c.URL)

	c, ok = cat.Case("shop", "audit")
	require.True(t, ok)
	assert.Equal(t, "admin", c.Module)

	_, ok = cat.Case("shop", "nope")
	assert.False(t, ok)
}

func TestCatalog_AddReplacesModule(t *testing.T) {
	cat := NewCatalog(shopModule(newCase("old", "GET", "/old")))
	cat.Add(shopModule(newCase("new", "GET", "/new")))

	_, ok := cat.Case("shop", "old")
	assert.False(t, ok)
	_, ok = cat.Case("shop", "new")
	assert.True(t, ok)
	assert.Len(t, cat.Modules(), 1)
}
