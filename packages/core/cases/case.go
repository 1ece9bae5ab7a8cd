package cases

import (
	"strings"
	"time"
)

type RequestType string

const (
	RequestJSON   RequestType = "json"
	RequestForm   RequestType = "form"
	RequestParams RequestType = "params"
	RequestFile   RequestType = "file"
	// RequestExport downloads a file: data goes on the query string, nothing
	// is sent in the body and the response is kept as raw bytes.
	RequestExport RequestType = "export"
	RequestNone   RequestType = "none"
)

// ParseRequestType accepts the canonical names plus the spellings older data
// files use ("data" for form bodies, "multipart" for file uploads).
func ParseRequestType(s string) (RequestType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json", "json-body":
		return RequestJSON, true
	case "form", "data", "form-data", "form_data":
		return RequestForm, true
	case "params", "query", "query-params":
		return RequestParams, true
	case "file", "files", "multipart", "multipart-file":
		return RequestFile, true
	case "export", "download":
		return RequestExport, true
	case "none":
		return RequestNone, true
	}
	return "", false
}

type Header struct {
	Key   string
	Value string
}

// Headers keeps declaration order. Lookups are case-insensitive.
type Headers []Header

func (h Headers) Get(key string) (string, bool) {
	for _, kv := range h {
		if strings.EqualFold(kv.Key, key) {
			return kv.Value, true
		}
	}
	return "", false
}

// Set replaces the first header matching key case-insensitively, or appends.
func (h Headers) Set(key, value string) Headers {
	for i, kv := range h {
		if strings.EqualFold(kv.Key, key) {
			out := append(Headers(nil), h...)
			out[i] = Header{Key: kv.Key, Value: value}
			return out
		}
	}
	return append(append(Headers(nil), h...), Header{Key: key, Value: value})
}

// Merge returns h overlaid with override; override wins on collision and
// keeps its own spelling of the key.
func (h Headers) Merge(override Headers) Headers {
	out := make(Headers, 0, len(h)+len(override))
	for _, kv := range h {
		if _, ok := override.Get(kv.Key); ok {
			continue
		}
		out = append(out, kv)
	}
	return append(out, override...)
}

func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, kv := range h {
		m[kv.Key] = kv.Value
	}
	return m
}

type Param struct {
	Key   string
	Value any
}

type Params []Param

func (p Params) Get(key string) (any, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

func (p Params) Set(key string, value any) Params {
	for i, kv := range p {
		if kv.Key == key {
			out := append(Params(nil), p...)
			out[i].Value = value
			return out
		}
	}
	return append(append(Params(nil), p...), Param{Key: key, Value: value})
}

type Source string

const (
	SourceResponse     Source = "response"
	SourceSelfResponse Source = "self_response"
	SourceRequest      Source = "request"
	SourceCache        Source = "cache"
	SourceSQL          Source = "sql"
)

func ParseSource(s string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "response":
		return SourceResponse, true
	case "self_response", "self-response":
		return SourceSelfResponse, true
	case "request":
		return SourceRequest, true
	case "cache":
		return SourceCache, true
	case "sql", "sqldata", "sql_data":
		return SourceSQL, true
	}
	return "", false
}

type ExtractionRule struct {
	Source     Source
	Path       string
	SetCache   string
	ReplaceKey string
	Coerce     string
}

type DependencyStep struct {
	CaseID string
	Rules  []ExtractionRule
}

type TeardownStep struct {
	CaseID  string
	Prepare []ExtractionRule
	Send    []ExtractionRule
}

// AssertType values for body units that compare against SQL data.
const (
	AssertPlain      = ""
	AssertSQL        = "SQL"
	AssertRequestSQL = "R_SQL"
)

type AssertionUnit struct {
	Name       string
	Path       string
	Operator   Operator
	Expected   any
	AssertType string
	Message    string
}

type SQLUnit struct {
	Name     string
	Query    string
	Path     string
	Operator Operator
	Expected any
	Message  string
}

type AssertionSpec struct {
	StatusCode      *int
	MaxResponseTime *time.Duration
	Body            []AssertionUnit
	Headers         []AssertionUnit
	SQL             []SQLUnit
}

func (a AssertionSpec) Len() int {
	n := len(a.Body) + len(a.Headers) + len(a.SQL)
	if a.StatusCode != nil {
		n++
	}
	if a.MaxResponseTime != nil {
		n++
	}
	return n
}

type Case struct {
	ID           string
	Detail       string
	Module       string
	Origin       string
	Host         string
	URL          string
	Method       string
	Headers      Headers
	RequestType  RequestType
	Body         any
	Params       Params
	IsRun        bool
	Dependencies []DependencyStep
	Extract      []ExtractionRule
	Assertions   AssertionSpec
	SQL          []string
	SetupSQL     []string
	TeardownSQL  []string
	Teardown     []TeardownStep
	Sleep        time.Duration
	Labels       map[string]string
}

type Module struct {
	Name        string
	Source      string
	Fingerprint string
	Host        string
	Headers     Headers
	Labels      map[string]string
	Cases       []*Case
	LoadErrors  []error
}

func (m *Module) Case(id string) (*Case, bool) {
	for _, c := range m.Cases {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Clone returns a deep copy so a run can mutate the case without touching
// the normalized original.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	out.Headers = append(Headers(nil), c.Headers...)
	out.Body = CloneValue(c.Body)
	if c.Params != nil {
		out.Params = make(Params, len(c.Params))
		for i, p := range c.Params {
			out.Params[i] = Param{Key: p.Key, Value: CloneValue(p.Value)}
		}
	}
	out.Dependencies = make([]DependencyStep, len(c.Dependencies))
	for i, d := range c.Dependencies {
		out.Dependencies[i] = DependencyStep{CaseID: d.CaseID, Rules: append([]ExtractionRule(nil), d.Rules...)}
	}
	out.Extract = append([]ExtractionRule(nil), c.Extract...)
	out.Assertions = c.Assertions.clone()
	out.SQL = append([]string(nil), c.SQL...)
	out.SetupSQL = append([]string(nil), c.SetupSQL...)
	out.TeardownSQL = append([]string(nil), c.TeardownSQL...)
	out.Teardown = make([]TeardownStep, len(c.Teardown))
	for i, t := range c.Teardown {
		out.Teardown[i] = TeardownStep{
			CaseID:  t.CaseID,
			Prepare: append([]ExtractionRule(nil), t.Prepare...),
			Send:    append([]ExtractionRule(nil), t.Send...),
		}
	}
	if c.Labels != nil {
		out.Labels = make(map[string]string, len(c.Labels))
		for k, v := range c.Labels {
			out.Labels[k] = v
		}
	}
	return &out
}

func (a AssertionSpec) clone() AssertionSpec {
	out := AssertionSpec{}
	if a.StatusCode != nil {
		v := *a.StatusCode
		out.StatusCode = &v
	}
	if a.MaxResponseTime != nil {
		v := *a.MaxResponseTime
		out.MaxResponseTime = &v
	}
	if a.Body != nil {
		out.Body = make([]AssertionUnit, len(a.Body))
		for i, u := range a.Body {
			u.Expected = CloneValue(u.Expected)
			out.Body[i] = u
		}
	}
	if a.Headers != nil {
		out.Headers = make([]AssertionUnit, len(a.Headers))
		for i, u := range a.Headers {
			u.Expected = CloneValue(u.Expected)
			out.Headers[i] = u
		}
	}
	if a.SQL != nil {
		out.SQL = make([]SQLUnit, len(a.SQL))
		for i, u := range a.SQL {
			u.Expected = CloneValue(u.Expected)
			out.SQL[i] = u
		}
	}
	return out
}

// CloneValue deep-copies the map/slice trees produced by decoding JSON or YAML.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}
