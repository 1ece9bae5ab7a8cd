package http

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

// Request is a fully resolved exchange ready to send.
type Request struct {
	CaseID  string
	Method  string
	URL     string
	Headers cases.Headers
	Type    cases.RequestType
	Body    any
	Params  cases.Params
	BaseDir string
}

// Multipart bodies are maps with these sections.
const (
	MultipartFiles  = "file"
	MultipartFields = "data"
	MultipartParams = "params"
)

// Query merges the request's own params with the body when the request type
// sends its payload on the query string.
func (r *Request) Query() (url.Values, error) {
	q := url.Values{}
	for _, p := range r.Params {
		addValue(q, p.Key, p.Value)
	}
	switch r.Type {
	case cases.RequestParams, cases.RequestExport:
		if err := addMap(q, r.Body, "data"); err != nil {
			return nil, err
		}
	case cases.RequestFile:
		if m, ok := r.Body.(map[string]any); ok {
			if err := addMap(q, m[MultipartParams], MultipartParams); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

func addMap(q url.Values, v any, section string) error {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%s must be a mapping, got %T", section, v)
	}
	for _, k := range sortedKeys(m) {
		addValue(q, k, m[k])
	}
	return nil
}

func addValue(q url.Values, key string, v any) {
	if list, ok := v.([]any); ok {
		for _, item := range list {
			q.Add(key, FormatValue(item))
		}
		return
	}
	q.Add(key, FormatValue(v))
}

// FormValues flattens a form body. Nested values are sent as JSON text.
func FormValues(body any) (url.Values, error) {
	q := url.Values{}
	if err := addMap(q, body, "data"); err != nil {
		return nil, err
	}
	return q, nil
}

// FormatValue renders a decoded data value as it appears on the wire.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateURL rejects anything that is not an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q in %s (only http and https are allowed)", u.Scheme, rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %s must have a host", rawURL)
	}
	return nil
}
