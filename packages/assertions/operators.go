package assertions

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/caserun/packages/cache"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

// check reports whether actual satisfies the operator against expected. A
// non-nil error means the comparison does not apply to these values, which
// always fails the unit.
type check func(e *Engine, actual, expected any) (bool, error)

// dispatch is the single table every unit goes through.
var dispatch = map[cases.Operator]check{
	cases.OpEquals:            equals,
	cases.OpNotEquals:         not(equals),
	cases.OpGreaterThan:       numeric(func(c int) bool { return c > 0 }),
	cases.OpGreaterOrEqual:    numeric(func(c int) bool { return c >= 0 }),
	cases.OpLessThan:          numeric(func(c int) bool { return c < 0 }),
	cases.OpLessOrEqual:       numeric(func(c int) bool { return c <= 0 }),
	cases.OpContains:          contains,
	cases.OpNotContains:       not(contains),
	cases.OpIn:                in,
	cases.OpNotIn:             not(in),
	cases.OpIsNull:            isNull,
	cases.OpNotNull:           not(isNull),
	cases.OpRegex:             matches,
	cases.OpStrEquals:         strEquals,
	cases.OpLenEquals:         length(func(a, b int) bool { return a == b }),
	cases.OpLenGreaterThan:    length(func(a, b int) bool { return a > b }),
	cases.OpLenGreaterOrEqual: length(func(a, b int) bool { return a >= b }),
	cases.OpLenLessThan:       length(func(a, b int) bool { return a < b }),
	cases.OpLenLessOrEqual:    length(func(a, b int) bool { return a <= b }),
	cases.OpStartsWith:        startsWith,
	cases.OpEndsWith:          endsWith,
	cases.OpContainedBy:       containedBy,
	cases.OpType:              typeCheck,
	cases.OpSchema:            schema,
}

// Compare applies op through the dispatch table.
func (e *Engine) Compare(actual any, op cases.Operator, expected any) (bool, error) {
	fn, ok := dispatch[op]
	if !ok {
		return false, fmt.Errorf("unknown operator %v", op)
	}
	return fn(e, normalize(actual), normalize(expected))
}

func not(fn check) check {
	return func(e *Engine, actual, expected any) (bool, error) {
		ok, err := fn(e, actual, expected)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// equals is type sensitive: "1" never equals 1.
func equals(_ *Engine, actual, expected any) (bool, error) {
	return cmp.Equal(actual, expected), nil
}

func numeric(cmpFn func(c int) bool) check {
	return func(_ *Engine, actual, expected any) (bool, error) {
		c, ok := compareNumbers(actual, expected)
		if !ok {
			return false, fmt.Errorf("type mismatch: cannot compare %s with %s numerically",
				typeName(actual), typeName(expected))
		}
		return cmpFn(c), nil
	}
}

// contains checks substring, list membership or map key.
func contains(_ *Engine, actual, expected any) (bool, error) {
	switch a := actual.(type) {
	case string:
		s, ok := expected.(string)
		if !ok {
			s = stringify(expected)
		}
		return strings.Contains(a, s), nil
	case []any:
		for _, item := range a {
			if cmp.Equal(item, expected) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := a[stringify(expected)]
		return ok, nil
	}
	return false, fmt.Errorf("cannot check containment in %s", typeName(actual))
}

// in is contains with the operands swapped.
func in(e *Engine, actual, expected any) (bool, error) {
	if expected == nil {
		return false, fmt.Errorf("expected a list of candidates, got null")
	}
	return contains(e, expected, actual)
}

// containedBy holds when every element of actual appears in expected.
func containedBy(e *Engine, actual, expected any) (bool, error) {
	items, ok := actual.([]any)
	if !ok {
		return in(e, actual, expected)
	}
	for _, item := range items {
		found, err := in(e, item, expected)
		if err != nil || !found {
			return false, err
		}
	}
	return true, nil
}

func isNull(_ *Engine, actual, _ any) (bool, error) {
	return actual == nil, nil
}

func matches(_ *Engine, actual, expected any) (bool, error) {
	pattern := strings.TrimSuffix(strings.TrimPrefix(stringify(expected), "/"), "/")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern: %v", err)
	}
	return re.MatchString(stringify(actual)), nil
}

func strEquals(_ *Engine, actual, expected any) (bool, error) {
	return stringify(actual) == stringify(expected), nil
}

func startsWith(_ *Engine, actual, expected any) (bool, error) {
	if list, ok := actual.([]any); ok {
		return len(list) > 0 && cmp.Equal(list[0], expected), nil
	}
	s, ok := actual.(string)
	if !ok {
		return false, fmt.Errorf("expected a string, got %s", typeName(actual))
	}
	return strings.HasPrefix(s, stringify(expected)), nil
}

func endsWith(_ *Engine, actual, expected any) (bool, error) {
	if list, ok := actual.([]any); ok {
		return len(list) > 0 && cmp.Equal(list[len(list)-1], expected), nil
	}
	s, ok := actual.(string)
	if !ok {
		return false, fmt.Errorf("expected a string, got %s", typeName(actual))
	}
	return strings.HasSuffix(s, stringify(expected)), nil
}

func length(cmpFn func(a, b int) bool) check {
	return func(_ *Engine, actual, expected any) (bool, error) {
		want, ok := toFloat64(expected)
		if !ok || want != float64(int(want)) {
			return false, fmt.Errorf("expected length must be a whole number, got %v", expected)
		}
		n := computeLength(actual)
		if n < 0 {
			return false, fmt.Errorf("cannot get length of %s", typeName(actual))
		}
		return cmpFn(n, int(want)), nil
	}
}

var typeAliases = map[string]string{
	"null":    "null",
	"none":    "null",
	"bool":    "boolean",
	"boolean": "boolean",
	"number":  "number",
	"int":     "number",
	"float":   "number",
	"string":  "string",
	"str":     "string",
	"array":   "array",
	"list":    "array",
	"object":  "object",
	"dict":    "object",
}

func typeCheck(_ *Engine, actual, expected any) (bool, error) {
	want, ok := typeAliases[strings.ToLower(stringify(expected))]
	if !ok {
		return false, fmt.Errorf("unknown type name %q", stringify(expected))
	}
	return typeName(actual) == want, nil
}

// schema validates actual against an inline schema (mapping or JSON text) or
// a schema file relative to the engine's base directory.
func schema(e *Engine, actual, expected any) (bool, error) {
	var loader gojsonschema.JSONLoader
	switch s := expected.(type) {
	case map[string]any:
		loader = gojsonschema.NewGoLoader(s)
	case string:
		if strings.HasPrefix(strings.TrimSpace(s), "{") {
			loader = gojsonschema.NewStringLoader(s)
			break
		}
		path := s
		if !filepath.IsAbs(path) && e.baseDir != "" {
			path = filepath.Join(e.baseDir, path)
		}
		if err := validatePathWithinBase(path, e.baseDir); err != nil {
			return false, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return false, fmt.Errorf("failed to read schema file: %v", err)
		}
		loader = gojsonschema.NewBytesLoader(data)
	default:
		return false, fmt.Errorf("schema must be a mapping or a file path, got %s", typeName(expected))
	}

	doc, err := json.Marshal(actual)
	if err != nil {
		return false, fmt.Errorf("failed to marshal actual value: %v", err)
	}
	result, err := gojsonschema.Validate(loader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return false, fmt.Errorf("schema validation error: %v", err)
	}
	if result.Valid() {
		return true, nil
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return false, fmt.Errorf("schema validation failed: %s", strings.Join(errs, "; "))
}

func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}
	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}
	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}
	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}
	return nil
}

// normalize gives every number one representation so values decoded from
// YAML, Excel, SQL and JSON compare alike: whole numbers become int64 and
// everything else float64. Integers beyond float64 precision stay exact.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return normalizeUint(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return normalizeUint(n)
	case float32:
		return normalizeFloat(float64(n))
	case float64:
		return normalizeFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return n.String()
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}

func normalizeUint(n uint64) any {
	if n > math.MaxInt64 {
		return float64(n)
	}
	return int64(n)
}

// normalizeFloat only turns floats into int64 where the value is exact.
func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
		return int64(f)
	}
	return f
}

// toFloat64 only accepts real numbers; numeric-looking strings do not count.
func toFloat64(v any) (float64, bool) {
	switch n := normalize(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compareNumbers orders a and b, exactly when both are integers.
func compareNumbers(a, b any) (int, bool) {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		switch {
		case ai < bi:
			return -1, true
		case ai > bi:
			return 1, true
		}
		return 0, true
	}
	af, aOk := toFloat64(a)
	bf, bOk := toFloat64(b)
	if !aOk || !bOk {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}

func computeLength(actual any) int {
	switch v := actual.(type) {
	case string:
		return len([]rune(v))
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	default:
		if actual == nil {
			return -1
		}
		rv := reflect.ValueOf(actual)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
			return rv.Len()
		default:
			return -1
		}
	}
}

// typeName reports the JSON type of a normalized value.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return reflect.TypeOf(v).String()
}

func stringify(v any) string {
	s, _ := cache.Coerce(v, "str")
	return s.(string)
}
