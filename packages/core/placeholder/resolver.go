package placeholder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/caserun/packages/builtin"
	"github.com/abdul-hamid-achik/caserun/packages/cache"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

var (
	cachePattern = regexp.MustCompile(`\$cache\{([^{}]+)\}`)

	// placeholderPattern matches either kind; group 1 is a cache reference,
	// group 2 a function call.
	placeholderPattern = regexp.MustCompile(`\$cache\{([^{}]+)\}|\$\{\{(.+?)\}\}`)
)

var coercionPrefixes = map[string]bool{
	"int": true, "integer": true, "float": true, "number": true, "bool": true, "boolean": true,
	"str": true, "string": true, "list": true, "array": true, "tuple": true, "dict": true, "map": true, "object": true,
}

// CacheReader is the read side of a cache store.
type CacheReader interface {
	Get(name string) (any, error)
}

// Resolver substitutes $cache{name} and ${{func()}} placeholders.
//
// A string made of exactly one placeholder is replaced by the typed value, so
// "$cache{user_id}" can become the integer 7. Placeholders embedded in longer
// text are rendered as text.
type Resolver struct {
	funcs *builtin.Registry
}

func NewResolver(funcs *builtin.Registry) *Resolver {
	if funcs == nil {
		funcs = builtin.NewRegistry()
	}
	return &Resolver{funcs: funcs}
}

func (r *Resolver) Functions() *builtin.Registry {
	return r.funcs
}

// String resolves every placeholder in s in a single pass over the original
// text. Substituted values are never scanned again, so a cached value that
// looks like a placeholder stays literal.
func (r *Resolver) String(s string, store CacheReader) (any, error) {
	if !Contains(s) {
		return s, nil
	}

	locs := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 1 && s[locs[0][0]:locs[0][1]] == strings.TrimSpace(s) {
		return r.resolve(s, locs[0], store)
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		v, err := r.resolve(s, loc, store)
		if err != nil {
			return nil, err
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(stringify(v))
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// resolve evaluates the placeholder found at loc in s.
func (r *Resolver) resolve(s string, loc []int, store CacheReader) (any, error) {
	if loc[2] >= 0 {
		return lookup(s[loc[2]:loc[3]], store)
	}
	return r.call(s[loc[4]:loc[5]], store)
}

// Text resolves s and always returns a string.
func (r *Resolver) Text(s string, store CacheReader) (string, error) {
	v, err := r.String(s, store)
	if err != nil {
		return "", err
	}
	return stringify(v), nil
}

// Value walks maps and slices, resolving every string leaf. The input is not
// modified.
func (r *Resolver) Value(v any, store CacheReader) (any, error) {
	switch val := v.(type) {
	case string:
		return r.String(val, store)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.Value(item, store)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.Value(item, store)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// Case returns a copy of c with every request-side field resolved: host,
// url, headers, params, body, SQL statements and assertion expectations.
// Dependency and teardown rules are left alone; they are evaluated later.
func (r *Resolver) Case(c *cases.Case, store CacheReader) (*cases.Case, error) {
	out := c.Clone()
	var err error

	if out.Host, err = r.Text(out.Host, store); err != nil {
		return nil, fieldErr("host", err)
	}
	if out.URL, err = r.Text(out.URL, store); err != nil {
		return nil, fieldErr("url", err)
	}
	for i, h := range out.Headers {
		if out.Headers[i].Value, err = r.Text(h.Value, store); err != nil {
			return nil, fieldErr("headers."+h.Key, err)
		}
	}
	for i, p := range out.Params {
		if out.Params[i].Value, err = r.Value(p.Value, store); err != nil {
			return nil, fieldErr("params."+p.Key, err)
		}
	}
	if out.Body, err = r.Value(out.Body, store); err != nil {
		return nil, fieldErr("data", err)
	}
	for _, list := range []struct {
		name  string
		stmts []string
	}{{"sql", out.SQL}, {"setup_sql", out.SetupSQL}, {"teardown_sql", out.TeardownSQL}} {
		for i, stmt := range list.stmts {
			if list.stmts[i], err = r.Text(stmt, store); err != nil {
				return nil, fieldErr(list.name, err)
			}
		}
	}

	a := &out.Assertions
	for i := range a.Body {
		if a.Body[i].Expected, err = r.Value(a.Body[i].Expected, store); err != nil {
			return nil, fieldErr("assert."+a.Body[i].Name, err)
		}
	}
	for i := range a.Headers {
		if a.Headers[i].Expected, err = r.Value(a.Headers[i].Expected, store); err != nil {
			return nil, fieldErr("assert.headers."+a.Headers[i].Name, err)
		}
	}
	for i := range a.SQL {
		if a.SQL[i].Query, err = r.Text(a.SQL[i].Query, store); err != nil {
			return nil, fieldErr("assert.sql."+a.SQL[i].Name, err)
		}
		if a.SQL[i].Expected, err = r.Value(a.SQL[i].Expected, store); err != nil {
			return nil, fieldErr("assert.sql."+a.SQL[i].Name, err)
		}
	}
	return out, nil
}

// call runs a function placeholder. Cache references in its arguments are
// rendered as text first.
func (r *Resolver) call(expr string, store CacheReader) (any, error) {
	var lookupErr error
	args := cachePattern.ReplaceAllStringFunc(expr, func(match string) string {
		v, err := lookup(match[len("$cache{"):len(match)-1], store)
		if err != nil {
			if lookupErr == nil {
				lookupErr = err
			}
			return match
		}
		return stringify(v)
	})
	if lookupErr != nil {
		return nil, lookupErr
	}
	v, err := r.funcs.Call(strings.TrimSpace(args))
	if err != nil {
		return nil, &cases.PlaceholderError{Expr: "${{" + expr + "}}", Err: err}
	}
	return v, nil
}

func lookup(inner string, store CacheReader) (any, error) {
	name, typ := splitCoercion(inner)
	if store == nil {
		return nil, &cases.CacheKeyNotFoundError{Key: name}
	}
	v, err := store.Get(name)
	if err != nil {
		return nil, err
	}
	if typ == "" {
		return v, nil
	}
	out, err := cache.Coerce(v, typ)
	if err != nil {
		return nil, &cases.PlaceholderError{Expr: "$cache{" + inner + "}", Err: err}
	}
	return out, nil
}

// splitCoercion separates "int:user_id" into name and type. Names that merely
// contain a colon are kept whole.
func splitCoercion(inner string) (string, string) {
	inner = strings.TrimSpace(inner)
	if i := strings.Index(inner, ":"); i > 0 {
		prefix := strings.ToLower(inner[:i])
		if coercionPrefixes[prefix] {
			return strings.TrimSpace(inner[i+1:]), prefix
		}
	}
	return inner, ""
}

func stringify(v any) string {
	s, _ := cache.Coerce(v, "str")
	return s.(string)
}

func fieldErr(field string, err error) error {
	return fmt.Errorf("resolving %s: %w", field, err)
}

// Contains reports whether s holds any placeholder.
func Contains(s string) bool {
	return strings.Contains(s, "$cache{") || strings.Contains(s, "${{")
}

// CacheKeys lists the cache names referenced anywhere in v, sorted and
// without duplicates.
func CacheKeys(v any) []string {
	seen := make(map[string]bool)
	var walk func(any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			for _, m := range cachePattern.FindAllStringSubmatch(val, -1) {
				name, _ := splitCoercion(m[1])
				seen[name] = true
			}
		case map[string]any:
			for _, item := range val {
				walk(item)
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(v)

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
