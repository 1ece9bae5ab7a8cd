package capture

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/caserun/packages/cache"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

// Sources are the trees a rule may read from. Any of them may be nil.
type Sources struct {
	// Response is the parsed body of the exchange the rule belongs to.
	Response any
	// SelfResponse is the main case's parsed body, used by teardown steps.
	SelfResponse any
	Request      any
	SQL          any
}

// Extract reads the value a rule points at and applies its coercion.
func Extract(rule cases.ExtractionRule, src Sources, store *cache.Store) (any, error) {
	var (
		value any
		ok    bool
	)
	switch rule.Source {
	case cases.SourceResponse, "":
		value, ok = Lookup(src.Response, rule.Path)
	case cases.SourceSelfResponse:
		value, ok = Lookup(src.SelfResponse, rule.Path)
	case cases.SourceRequest:
		value, ok = Lookup(src.Request, rule.Path)
	case cases.SourceSQL:
		value, ok = Lookup(src.SQL, rule.Path)
	case cases.SourceCache:
		if store == nil {
			return nil, &cases.CacheKeyNotFoundError{Key: cacheKey(rule.Path)}
		}
		v, err := store.Get(cacheKey(rule.Path))
		if err != nil {
			return nil, err
		}
		value, ok = v, true
	default:
		return nil, fmt.Errorf("unknown extraction source %q", rule.Source)
	}
	if !ok {
		return nil, fmt.Errorf("path %s not found in %s", rule.Path, sourceName(rule.Source))
	}
	if rule.Coerce == "" {
		return value, nil
	}
	out, err := cache.Coerce(value, rule.Coerce)
	if err != nil {
		return nil, fmt.Errorf("path %s: %w", rule.Path, err)
	}
	return out, nil
}

// Apply evaluates rules in order. Each value is written to the store under
// SetCache and into target at ReplaceKey, when those are set. It returns the
// cache writes it made.
func Apply(rules []cases.ExtractionRule, src Sources, store *cache.Store, target *cases.Case) (map[string]any, error) {
	writes := make(map[string]any)
	for _, rule := range rules {
		value, err := Extract(rule, src, store)
		if err != nil {
			return writes, fmt.Errorf("extracting %s: %w", describe(rule), err)
		}
		if rule.SetCache != "" && store != nil {
			store.Set(rule.SetCache, value)
			writes[rule.SetCache] = value
		}
		if rule.ReplaceKey != "" {
			if target == nil {
				return writes, fmt.Errorf("extracting %s: no case to replace %s in", describe(rule), rule.ReplaceKey)
			}
			if err := Replace(target, rule.ReplaceKey, value); err != nil {
				return writes, fmt.Errorf("extracting %s: %w", describe(rule), err)
			}
		}
	}
	return writes, nil
}

// Filter returns the rules reading from one of the given sources.
func Filter(rules []cases.ExtractionRule, sources ...cases.Source) []cases.ExtractionRule {
	var out []cases.ExtractionRule
	for _, r := range rules {
		src := r.Source
		if src == "" {
			src = cases.SourceResponse
		}
		for _, s := range sources {
			if src == s {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func cacheKey(path string) string {
	p := strings.TrimSpace(path)
	if strings.HasPrefix(p, "$cache{") && strings.HasSuffix(p, "}") {
		p = p[len("$cache{") : len(p)-1]
	}
	return p
}

func sourceName(s cases.Source) string {
	if s == "" {
		return string(cases.SourceResponse)
	}
	return string(s)
}

func describe(rule cases.ExtractionRule) string {
	target := rule.SetCache
	if target == "" {
		target = rule.ReplaceKey
	}
	return fmt.Sprintf("%s %s -> %s", sourceName(rule.Source), rule.Path, target)
}
