package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/caserun/packages/cache"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

// Replace writes value into c at key. Supported locations:
//
//	$.data.<path>    request payload ($.body is accepted too)
//	$.params.<name>  query parameter
//	$.headers.<name> header, stringified
//	$.url, $.host
func Replace(c *cases.Case, key string, value any) error {
	k := strings.TrimPrefix(strings.TrimSpace(key), "$")
	k = strings.TrimPrefix(k, ".")
	section, rest, _ := strings.Cut(k, ".")

	switch section {
	case "data", "body":
		if rest == "" {
			c.Body = value
			return nil
		}
		segs, err := splitSegments(rest)
		if err != nil {
			return fmt.Errorf("replace key %s: %w", key, err)
		}
		body, err := setIn(c.Body, segs, value)
		if err != nil {
			return fmt.Errorf("replace key %s: %w", key, err)
		}
		c.Body = body
	case "params":
		if rest == "" {
			return fmt.Errorf("replace key %s: missing parameter name", key)
		}
		c.Params = c.Params.Set(rest, value)
	case "headers":
		if rest == "" {
			return fmt.Errorf("replace key %s: missing header name", key)
		}
		s, err := cache.Coerce(value, "str")
		if err != nil {
			return fmt.Errorf("replace key %s: %w", key, err)
		}
		c.Headers = c.Headers.Set(rest, s.(string))
	case "url", "host":
		s, err := cache.Coerce(value, "str")
		if err != nil {
			return fmt.Errorf("replace key %s: %w", key, err)
		}
		if section == "url" {
			c.URL = s.(string)
		} else {
			c.Host = s.(string)
		}
	default:
		return fmt.Errorf("replace key %s: unsupported location %q", key, section)
	}
	return nil
}

type segment struct {
	key   string
	index int
	isIdx bool
}

// splitSegments parses "a.b[0].c" into a, b, [0], c.
func splitSegments(path string) ([]segment, error) {
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		name := part
		var idx []string
		if i := strings.Index(part, "["); i >= 0 {
			name = part[:i]
			for _, p := range strings.Split(part[i:], "[")[1:] {
				if !strings.HasSuffix(p, "]") {
					return nil, fmt.Errorf("malformed segment %q", part)
				}
				idx = append(idx, strings.TrimSuffix(p, "]"))
			}
		}
		if name != "" {
			segs = append(segs, segment{key: name})
		}
		for _, s := range idx {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid index %q", s)
			}
			segs = append(segs, segment{index: n, isIdx: true})
		}
		if name == "" && len(idx) == 0 {
			return nil, fmt.Errorf("empty segment in %q", path)
		}
	}
	return segs, nil
}

// setIn returns node with value written at segs. Missing maps are created;
// list indexes must already exist.
func setIn(node any, segs []segment, value any) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}
	seg := segs[0]
	if seg.isIdx {
		list, ok := node.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list at [%d], got %T", seg.index, node)
		}
		if seg.index >= len(list) {
			return nil, fmt.Errorf("index %d out of range (len %d)", seg.index, len(list))
		}
		child, err := setIn(list[seg.index], segs[1:], value)
		if err != nil {
			return nil, err
		}
		list[seg.index] = child
		return list, nil
	}

	var m map[string]any
	switch n := node.(type) {
	case nil:
		m = make(map[string]any)
	case map[string]any:
		m = n
	default:
		return nil, fmt.Errorf("expected mapping at %q, got %T", seg.key, node)
	}
	child, err := setIn(m[seg.key], segs[1:], value)
	if err != nil {
		return nil, err
	}
	m[seg.key] = child
	return m, nil
}
