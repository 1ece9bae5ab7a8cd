package capture

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	indexPattern    = regexp.MustCompile(`\[(\d+)\]`)
	wildcardPattern = regexp.MustCompile(`\[\*\]`)
	quotedPattern   = regexp.MustCompile(`\[['"]([^'"\]]+)['"]\]`)
)

// ToGJSON converts a JSONPath-like expression into gjson syntax.
// e.g. "$.data.items[0].id" -> "data.items.0.id", "$.items[*].id" -> "items.#.id".
// An empty result means the root.
func ToGJSON(path string) string {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "$")
	p = quotedPattern.ReplaceAllStringFunc(p, func(m string) string {
		key := quotedPattern.FindStringSubmatch(m)[1]
		return "." + escapeKey(key)
	})
	p = wildcardPattern.ReplaceAllString(p, ".#")
	p = indexPattern.ReplaceAllString(p, ".$1")
	return strings.TrimPrefix(p, ".")
}

func escapeKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(key)
}

// IsRoot reports whether path addresses the whole document.
func IsRoot(path string) bool {
	return ToGJSON(path) == ""
}

// Lookup resolves path against a decoded JSON-like tree. Values come back
// JSON-normalized (numbers as json.Number, objects as map[string]any).
func Lookup(tree any, path string) (any, bool) {
	if raw, ok := tree.(string); ok && IsRoot(path) {
		return raw, true
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, false
	}
	return LookupBytes(data, path)
}

// LookupBytes is Lookup for raw JSON.
func LookupBytes(data []byte, path string) (any, bool) {
	if !gjson.ValidBytes(data) {
		return nil, false
	}
	p := ToGJSON(path)
	if p == "" {
		return value(gjson.ParseBytes(data)), true
	}
	result := gjson.GetBytes(data, p)
	if !result.Exists() {
		return nil, false
	}
	return value(result), true
}

// value is gjson's Result.Value with numbers left as their literal text.
func value(r gjson.Result) any {
	switch r.Type {
	case gjson.Number:
		if r.Raw != "" {
			return json.Number(r.Raw)
		}
	case gjson.JSON:
		dec := json.NewDecoder(strings.NewReader(r.Raw))
		dec.UseNumber()
		var out any
		if err := dec.Decode(&out); err != nil {
			return r.Value()
		}
		return out
	}
	return r.Value()
}
