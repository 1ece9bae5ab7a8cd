package normalize

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

// fieldAliases maps every accepted spelling onto the canonical field name.
var fieldAliases = map[string]string{
	"request_type":   "requestType",
	"request-type":   "requestType",
	"body":           "data",
	"assert_data":    "assert",
	"extract":        "current_request_set_cache",
	"dependencies":   "dependence_case_data",
	"teardown_steps": "teardown",
	"query":          "params",
	"status":         "status_code",
}

var validMethods = map[string]string{
	"GET":     "GET",
	"POST":    "POST",
	"PUT":     "PUT",
	"PATCH":   "PATCH",
	"DELETE":  "DELETE",
	"HEAD":    "HEAD",
	"OPTIONS": "OPTIONS",
	"OPTION":  "OPTIONS",
}

type rawRule struct {
	DependentType string `mapstructure:"dependent_type"`
	Type          string `mapstructure:"type"`
	JSONPath      string `mapstructure:"jsonpath"`
	CacheData     string `mapstructure:"cache_data"`
	SetCache      string `mapstructure:"set_cache"`
	Name          string `mapstructure:"name"`
	ReplaceKey    string `mapstructure:"replace_key"`
	Coerce        string `mapstructure:"coerce"`
}

type rawDependency struct {
	CaseID        string    `mapstructure:"case_id"`
	DependentData []rawRule `mapstructure:"dependent_data"`
}

type rawTeardown struct {
	CaseID       string    `mapstructure:"case_id"`
	ParamPrepare []rawRule `mapstructure:"param_prepare"`
	SendRequest  []rawRule `mapstructure:"send_request"`
}

type rawUnit struct {
	Name       string `mapstructure:"name"`
	JSONPath   string `mapstructure:"jsonpath"`
	Type       string `mapstructure:"type"`
	Value      any    `mapstructure:"value"`
	AssertType string `mapstructure:"AssertType"`
	Message    string `mapstructure:"message"`
	SQL        string `mapstructure:"sql"`
}

// Record is one case as read from a source, before normalization.
type Record struct {
	ID     string
	Fields map[string]any
	Origin string
}

// Common holds the module-wide case_common section.
type Common map[string]any

// normalizeRecord turns a raw record into a case. Any problem is reported as
// a *cases.DataFormatError naming the offending field.
func normalizeRecord(module string, common Common, rec Record) (*cases.Case, error) {
	fields := canonicalFields(rec.Fields)
	bad := func(field string, err error) error {
		return &cases.DataFormatError{Module: module, CaseID: rec.ID, Field: field, Origin: rec.Origin, Err: err}
	}

	c := &cases.Case{
		ID:          rec.ID,
		Module:      module,
		Origin:      rec.Origin,
		IsRun:       true,
		RequestType: cases.RequestJSON,
		Labels:      labels(common),
	}

	var err error
	if c.Host, err = optionalString(fields["host"]); err != nil {
		return nil, bad("host", err)
	}
	if c.URL, err = optionalString(fields["url"]); err != nil {
		return nil, bad("url", err)
	}
	if c.URL == "" {
		return nil, bad("url", errors.New("url is required"))
	}
	if c.Detail, err = optionalString(fields["detail"]); err != nil {
		return nil, bad("detail", err)
	}

	method, err := optionalString(fields["method"])
	if err != nil {
		return nil, bad("method", err)
	}
	m, ok := validMethods[strings.ToUpper(strings.TrimSpace(method))]
	if !ok {
		return nil, bad("method", fmt.Errorf("unsupported method %q", method))
	}
	c.Method = m

	if v, ok := fields["requestType"]; ok && v != nil {
		s, err := optionalString(v)
		if err != nil {
			return nil, bad("requestType", err)
		}
		rt, ok := cases.ParseRequestType(s)
		if !ok {
			return nil, bad("requestType", fmt.Errorf("unsupported request type %q", s))
		}
		c.RequestType = rt
	}

	if v, ok := fields["is_run"]; ok && v != nil {
		run, err := parseBool(v)
		if err != nil {
			return nil, bad("is_run", err)
		}
		c.IsRun = run
	}

	if c.Headers, err = parseHeaders(fields["headers"]); err != nil {
		return nil, bad("headers", err)
	}
	if c.Params, err = parseParams(fields["params"]); err != nil {
		return nil, bad("params", err)
	}
	c.Body = canonical(fields["data"])

	if c.Dependencies, err = parseDependencies(fields); err != nil {
		return nil, bad("dependence_case_data", err)
	}
	if c.Extract, err = parseRules(fields["current_request_set_cache"]); err != nil {
		return nil, bad("current_request_set_cache", err)
	}
	if c.Assertions, err = parseAssertions(fields["assert"], fields["status_code"]); err != nil {
		return nil, bad("assert", err)
	}
	if c.SQL, err = parseStatements(fields["sql"]); err != nil {
		return nil, bad("sql", err)
	}
	if c.SetupSQL, err = parseStatements(fields["setup_sql"]); err != nil {
		return nil, bad("setup_sql", err)
	}
	if c.TeardownSQL, err = parseStatements(fields["teardown_sql"]); err != nil {
		return nil, bad("teardown_sql", err)
	}
	if c.Teardown, err = parseTeardown(fields["teardown"]); err != nil {
		return nil, bad("teardown", err)
	}
	if c.Sleep, err = parseSeconds(fields["sleep"]); err != nil {
		return nil, bad("sleep", err)
	}
	return c, nil
}

func canonicalFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		if canon, ok := fieldAliases[key]; ok {
			if _, exists := in[canon]; exists {
				continue
			}
			key = canon
		}
		out[key] = v
	}
	return out
}

func labels(common Common) map[string]string {
	out := make(map[string]string)
	for key, label := range map[string]string{
		"allureEpic":    "epic",
		"allureFeature": "feature",
		"allureStory":   "story",
	} {
		if v, ok := common[key]; ok && v != nil {
			out[label] = fmt.Sprint(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// structured decodes text that holds a flow mapping or sequence. Both JSON
// and YAML flow syntax are accepted.
func structured(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	t := strings.TrimSpace(s)
	if t == "" {
		return nil, nil
	}
	if !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") {
		return v, nil
	}
	var out any
	if err := yaml.Unmarshal([]byte(t), &out); err != nil {
		return nil, fmt.Errorf("invalid structured value: %w", err)
	}
	return canonical(out), nil
}

// canonical converts decoded YAML into JSON-shaped values: string-keyed maps,
// int64 integers and float64 for everything else numeric.
func canonical(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = canonical(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = canonical(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonical(item)
		}
		return out
	case int:
		return int64(val)
	case uint64:
		if val > math.MaxInt64 {
			return float64(val)
		}
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	return v
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func optionalString(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(s), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case bool:
		return strconv.FormatBool(s), nil
	}
	return "", fmt.Errorf("expected text, got %T", v)
}

func parseBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1", "y":
			return true, nil
		case "false", "no", "0", "n":
			return false, nil
		}
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	}
	return false, fmt.Errorf("expected boolean, got %v", v)
}

func stringMap(v any) (map[string]any, error) {
	v, err := structured(v)
	if err != nil {
		return nil, err
	}
	switch m := canonical(v).(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return m, nil
	}
	return nil, fmt.Errorf("expected a mapping, got %T", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseHeaders sorts keys so both sources yield the same order.
func parseHeaders(v any) (cases.Headers, error) {
	m, err := stringMap(v)
	if err != nil || m == nil {
		return nil, err
	}
	h := make(cases.Headers, 0, len(m))
	for _, k := range sortedKeys(m) {
		val, err := optionalString(m[k])
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", k, err)
		}
		h = append(h, cases.Header{Key: k, Value: val})
	}
	return h, nil
}

func parseParams(v any) (cases.Params, error) {
	m, err := stringMap(v)
	if err != nil || m == nil {
		return nil, err
	}
	p := make(cases.Params, 0, len(m))
	for _, k := range sortedKeys(m) {
		p = append(p, cases.Param{Key: k, Value: m[k]})
	}
	return p, nil
}

func list(v any) ([]any, error) {
	v, err := structured(v)
	if err != nil {
		return nil, err
	}
	switch l := canonical(v).(type) {
	case nil:
		return nil, nil
	case []any:
		return l, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}

func parseStatements(v any) ([]string, error) {
	if s, ok := v.(string); ok && !strings.HasPrefix(strings.TrimSpace(s), "[") {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(s)}, nil
	}
	items, err := list(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("statement %d: expected text, got %T", i, item)
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out, nil
}

func parseSeconds(v any) (time.Duration, error) {
	switch s := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if s < 0 {
			return 0, fmt.Errorf("negative sleep %v", s)
		}
		return time.Duration(s * float64(time.Second)), nil
	case int:
		return parseSeconds(float64(s))
	case int64:
		return parseSeconds(float64(s))
	case string:
		if strings.TrimSpace(s) == "" {
			return 0, nil
		}
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid sleep %q", s)
		}
		return parseSeconds(f)
	}
	return 0, fmt.Errorf("invalid sleep %v", v)
}

func toRule(r rawRule, defaultSource cases.Source) (cases.ExtractionRule, error) {
	typ := r.DependentType
	if typ == "" {
		typ = r.Type
	}
	src := defaultSource
	if typ != "" {
		parsed, ok := cases.ParseSource(typ)
		if !ok {
			return cases.ExtractionRule{}, fmt.Errorf("unknown dependent_type %q", typ)
		}
		src = parsed
	}
	path := r.JSONPath
	if src == cases.SourceCache && r.CacheData != "" {
		path = r.CacheData
	}
	setCache := r.SetCache
	if setCache == "" {
		setCache = r.Name
	}
	if path == "" {
		return cases.ExtractionRule{}, errors.New("jsonpath is required")
	}
	if setCache == "" && r.ReplaceKey == "" {
		return cases.ExtractionRule{}, fmt.Errorf("rule for %s needs set_cache or replace_key", path)
	}
	return cases.ExtractionRule{
		Source:     src,
		Path:       path,
		SetCache:   setCache,
		ReplaceKey: r.ReplaceKey,
		Coerce:     r.Coerce,
	}, nil
}

func parseRules(v any) ([]cases.ExtractionRule, error) {
	items, err := list(v)
	if err != nil || items == nil {
		return nil, err
	}
	var raw []rawRule
	if err := decode(items, &raw); err != nil {
		return nil, err
	}
	rules := make([]cases.ExtractionRule, 0, len(raw))
	for i, r := range raw {
		rule, err := toRule(r, cases.SourceResponse)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// parseDependencies honours an explicit dependence_case: false by ignoring
// the dependency data.
func parseDependencies(fields map[string]any) ([]cases.DependencyStep, error) {
	if flag, ok := fields["dependence_case"]; ok && flag != nil {
		on, err := parseBool(flag)
		if err != nil {
			return nil, fmt.Errorf("dependence_case: %w", err)
		}
		if !on {
			return nil, nil
		}
	}
	items, err := list(fields["dependence_case_data"])
	if err != nil || items == nil {
		return nil, err
	}
	var raw []rawDependency
	if err := decode(items, &raw); err != nil {
		return nil, err
	}
	steps := make([]cases.DependencyStep, 0, len(raw))
	for i, d := range raw {
		if strings.TrimSpace(d.CaseID) == "" {
			return nil, fmt.Errorf("dependency %d: case_id is required", i)
		}
		step := cases.DependencyStep{CaseID: strings.TrimSpace(d.CaseID)}
		for j, r := range d.DependentData {
			rule, err := toRule(r, cases.SourceResponse)
			if err != nil {
				return nil, fmt.Errorf("dependency %s rule %d: %w", d.CaseID, j, err)
			}
			step.Rules = append(step.Rules, rule)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseTeardown(v any) ([]cases.TeardownStep, error) {
	items, err := list(v)
	if err != nil || items == nil {
		return nil, err
	}
	var raw []rawTeardown
	if err := decode(items, &raw); err != nil {
		return nil, err
	}
	steps := make([]cases.TeardownStep, 0, len(raw))
	for i, t := range raw {
		if strings.TrimSpace(t.CaseID) == "" {
			return nil, fmt.Errorf("teardown %d: case_id is required", i)
		}
		step := cases.TeardownStep{CaseID: strings.TrimSpace(t.CaseID)}
		for j, r := range t.ParamPrepare {
			rule, err := toRule(r, cases.SourceSelfResponse)
			if err != nil {
				return nil, fmt.Errorf("teardown %s param_prepare %d: %w", t.CaseID, j, err)
			}
			step.Prepare = append(step.Prepare, rule)
		}
		for j, r := range t.SendRequest {
			rule, err := toRule(r, cases.SourceResponse)
			if err != nil {
				return nil, fmt.Errorf("teardown %s send_request %d: %w", t.CaseID, j, err)
			}
			step.Send = append(step.Send, rule)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parseAssertions reads the assert mapping. Reserved keys are status_code,
// response_time (ms), headers and sql; every other key names a body unit.
// Units given as a mapping are ordered by name; a list keeps its order.
func parseAssertions(v any, status any) (cases.AssertionSpec, error) {
	var spec cases.AssertionSpec

	if status != nil {
		code, err := parseInt(status)
		if err != nil {
			return spec, fmt.Errorf("status_code: %w", err)
		}
		spec.StatusCode = &code
	}

	v, err := structured(v)
	if err != nil {
		return spec, err
	}
	switch a := canonical(v).(type) {
	case nil:
		return spec, nil
	case []any:
		units, err := parseUnits(a)
		if err != nil {
			return spec, err
		}
		spec.Body = units
		return spec, nil
	case map[string]any:
		for _, key := range sortedKeys(a) {
			val := a[key]
			switch key {
			case "status_code":
				code, err := parseInt(val)
				if err != nil {
					return spec, fmt.Errorf("status_code: %w", err)
				}
				spec.StatusCode = &code
			case "response_time", "max_response_time":
				ms, err := parseInt(val)
				if err != nil {
					return spec, fmt.Errorf("%s: %w", key, err)
				}
				d := time.Duration(ms) * time.Millisecond
				spec.MaxResponseTime = &d
			case "headers":
				units, err := namedUnits(val)
				if err != nil {
					return spec, fmt.Errorf("headers: %w", err)
				}
				spec.Headers = units
			case "sql":
				units, err := parseSQLUnits(val)
				if err != nil {
					return spec, fmt.Errorf("sql: %w", err)
				}
				spec.SQL = units
			default:
				unit, err := parseUnit(key, val)
				if err != nil {
					return spec, err
				}
				spec.Body = append(spec.Body, unit)
			}
		}
		return spec, nil
	}
	return spec, fmt.Errorf("expected a mapping or list, got %T", v)
}

func namedUnits(v any) ([]cases.AssertionUnit, error) {
	switch val := v.(type) {
	case []any:
		return parseUnits(val)
	case map[string]any:
		var units []cases.AssertionUnit
		for _, key := range sortedKeys(val) {
			unit, err := parseUnit(key, val[key])
			if err != nil {
				return nil, err
			}
			units = append(units, unit)
		}
		return units, nil
	}
	return nil, fmt.Errorf("expected a mapping or list, got %T", v)
}

func parseUnits(items []any) ([]cases.AssertionUnit, error) {
	units := make([]cases.AssertionUnit, 0, len(items))
	for i, item := range items {
		unit, err := parseUnit(strconv.Itoa(i), item)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}

func parseUnit(name string, v any) (cases.AssertionUnit, error) {
	var raw rawUnit
	if err := decode(v, &raw); err != nil {
		return cases.AssertionUnit{}, fmt.Errorf("unit %s: %w", name, err)
	}
	if raw.Name != "" {
		name = raw.Name
	}
	if raw.JSONPath == "" {
		return cases.AssertionUnit{}, fmt.Errorf("unit %s: jsonpath is required", name)
	}
	op, err := cases.ParseOperator(raw.Type)
	if err != nil {
		return cases.AssertionUnit{}, fmt.Errorf("unit %s: %w", name, err)
	}
	assertType := strings.ToUpper(strings.TrimSpace(raw.AssertType))
	switch assertType {
	case cases.AssertPlain, cases.AssertSQL, cases.AssertRequestSQL:
	case "NONE", "NULL", "RESPONSE":
		assertType = cases.AssertPlain
	default:
		return cases.AssertionUnit{}, fmt.Errorf("unit %s: unsupported AssertType %q", name, raw.AssertType)
	}
	return cases.AssertionUnit{
		Name:       name,
		Path:       raw.JSONPath,
		Operator:   op,
		Expected:   canonical(raw.Value),
		AssertType: assertType,
		Message:    raw.Message,
	}, nil
}

func parseSQLUnits(v any) ([]cases.SQLUnit, error) {
	items, err := list(v)
	if err != nil {
		return nil, err
	}
	units := make([]cases.SQLUnit, 0, len(items))
	for i, item := range items {
		var raw rawUnit
		if err := decode(item, &raw); err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		if raw.JSONPath == "" {
			return nil, fmt.Errorf("unit %d: jsonpath is required", i)
		}
		op, err := cases.ParseOperator(raw.Type)
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		name := raw.Name
		if name == "" {
			name = strconv.Itoa(i)
		}
		units = append(units, cases.SQLUnit{
			Name:     name,
			Query:    strings.TrimSpace(raw.SQL),
			Path:     raw.JSONPath,
			Operator: op,
			Expected: canonical(raw.Value),
			Message:  raw.Message,
		})
	}
	return units, nil
}

func parseInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected whole number, got %v", n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("expected whole number, got %q", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected whole number, got %T", v)
}
