package assertions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/caserun/packages/capture"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/abdul-hamid-achik/caserun/packages/db"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

// Exchange is everything a case's assertions may look at.
type Exchange struct {
	StatusCode int
	Headers    map[string]string
	// Body is the parsed response, or the raw text when parsing failed.
	Body       any
	BodyIsText bool
	Request    any
	SQLData    any
	Elapsed    time.Duration
}

type Kind string

const (
	KindStatus       Kind = "status"
	KindResponseTime Kind = "response_time"
	KindBody         Kind = "body"
	KindHeader       Kind = "header"
	KindSQL          Kind = "sql"
)

type UnitResult struct {
	Kind     Kind           `json:"kind"`
	Name     string         `json:"name,omitempty"`
	Path     string         `json:"path,omitempty"`
	Operator cases.Operator `json:"operator"`
	Expected any            `json:"expected"`
	Actual   any            `json:"actual"`
	Passed   bool           `json:"passed"`
	Skipped  bool           `json:"skipped,omitempty"`
	Message  string         `json:"message,omitempty"`
}

type Outcome struct {
	Units []UnitResult `json:"units"`
}

func (o *Outcome) Failed() bool {
	return len(o.Failures()) > 0
}

func (o *Outcome) Failures() []UnitResult {
	var out []UnitResult
	for _, u := range o.Units {
		if !u.Passed && !u.Skipped {
			out = append(out, u)
		}
	}
	return out
}

// Err returns an *cases.AssertionFailure carrying every failed unit, or nil.
func (o *Outcome) Err(caseID string) error {
	failures := o.Failures()
	if len(failures) == 0 {
		return nil
	}
	msgs := make([]string, len(failures))
	for i, f := range failures {
		msgs[i] = f.Message
	}
	return &cases.AssertionFailure{CaseID: caseID, Total: len(o.Units), Messages: msgs}
}

type Engine struct {
	baseDir string
	logger  *logging.Logger
}

type Option func(*Engine)

// WithBaseDir sets where schema files are resolved from.
func WithBaseDir(dir string) Option {
	return func(e *Engine) { e.baseDir = dir }
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.WithComponent("assertions")
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: logging.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every unit in spec and never stops early. q may be nil, in
// which case units that need a database are reported as skipped.
func (e *Engine) Evaluate(ctx context.Context, spec cases.AssertionSpec, ex *Exchange, q db.Querier) *Outcome {
	out := &Outcome{Units: make([]UnitResult, 0, spec.Len())}

	if spec.StatusCode != nil {
		out.Units = append(out.Units, e.finish(UnitResult{
			Kind:     KindStatus,
			Path:     "status_code",
			Operator: cases.OpEquals,
			Expected: *spec.StatusCode,
			Actual:   ex.StatusCode,
		}, ""))
	}
	if spec.MaxResponseTime != nil {
		out.Units = append(out.Units, e.finish(UnitResult{
			Kind:     KindResponseTime,
			Path:     "response_time_ms",
			Operator: cases.OpLessOrEqual,
			Expected: spec.MaxResponseTime.Milliseconds(),
			Actual:   ex.Elapsed.Milliseconds(),
		}, ""))
	}
	for _, u := range spec.Body {
		out.Units = append(out.Units, e.body(u, ex, q))
	}
	for _, u := range spec.Headers {
		out.Units = append(out.Units, e.header(u, ex))
	}
	for _, u := range spec.SQL {
		out.Units = append(out.Units, e.sql(ctx, u, ex, q))
	}

	for _, u := range out.Units {
		if !u.Passed && !u.Skipped {
			e.logger.Debug("assertion failed", "kind", u.Kind, "path", u.Path, "message", u.Message)
		}
	}
	return out
}

func (e *Engine) body(u cases.AssertionUnit, ex *Exchange, q db.Querier) UnitResult {
	r := UnitResult{Kind: KindBody, Name: u.Name, Path: u.Path, Operator: u.Operator, Expected: u.Expected}

	tree, where := ex.Body, "response body"
	if u.AssertType == cases.AssertRequestSQL {
		tree, where = ex.Request, "request data"
	}

	if u.AssertType == cases.AssertSQL || u.AssertType == cases.AssertRequestSQL {
		if ex.SQLData == nil {
			if q == nil {
				return skip(r, "database not configured")
			}
			return fail(r, u.Message, "no SQL data for comparison")
		}
		path := stringify(u.Expected)
		expected, ok := capture.Lookup(ex.SQLData, path)
		if !ok {
			return fail(r, u.Message, fmt.Sprintf("path %s not found in SQL data", path))
		}
		r.Expected = expected
	}

	actual, found := lookup(tree, u.Path, ex.BodyIsText && u.AssertType != cases.AssertRequestSQL)
	if !found && !u.Operator.Unary() {
		return fail(r, u.Message, fmt.Sprintf("path %s not found in %s", u.Path, where))
	}
	r.Actual = actual
	return e.finish(r, u.Message)
}

func (e *Engine) header(u cases.AssertionUnit, ex *Exchange) UnitResult {
	r := UnitResult{Kind: KindHeader, Name: u.Name, Path: u.Path, Operator: u.Operator, Expected: u.Expected}
	name := strings.TrimPrefix(strings.TrimPrefix(u.Path, "$."), "headers.")
	for k, v := range ex.Headers {
		if strings.EqualFold(k, name) {
			r.Actual = v
			return e.finish(r, u.Message)
		}
	}
	if u.Operator.Unary() {
		return e.finish(r, u.Message)
	}
	return fail(r, u.Message, fmt.Sprintf("header %s not present in response", name))
}

func (e *Engine) sql(ctx context.Context, u cases.SQLUnit, ex *Exchange, q db.Querier) UnitResult {
	r := UnitResult{Kind: KindSQL, Name: u.Name, Path: u.Path, Operator: u.Operator, Expected: u.Expected}

	var tree any
	if strings.TrimSpace(u.Query) == "" {
		tree = ex.SQLData
		if tree == nil {
			return skip(r, "no SQL data")
		}
	} else {
		if q == nil {
			return skip(r, "database not configured")
		}
		res, err := q.Query(ctx, u.Query)
		if err != nil {
			return fail(r, u.Message, (&cases.SQLExecutionError{Query: u.Query, Err: err}).Error())
		}
		// $[n] addresses rows; any other path reads the first row.
		if strings.HasPrefix(strings.TrimSpace(u.Path), "$[") {
			tree = res.Values()
		} else {
			tree = res.First()
		}
	}

	actual, found := capture.Lookup(tree, u.Path)
	if !found && !u.Operator.Unary() {
		return fail(r, u.Message, fmt.Sprintf("path %s not found in query result", u.Path))
	}
	r.Actual = actual
	return e.finish(r, u.Message)
}

// lookup treats a raw-text body as a single string value reachable only at
// the root.
func lookup(tree any, path string, text bool) (any, bool) {
	if text {
		if capture.IsRoot(path) {
			return tree, true
		}
		return nil, false
	}
	return capture.Lookup(tree, path)
}

func (e *Engine) finish(r UnitResult, label string) UnitResult {
	passed, err := e.Compare(r.Actual, r.Operator, r.Expected)
	r.Passed = passed
	if passed {
		return r
	}
	detail := fmt.Sprintf("expected %s %s %s, got %s", subject(r), r.Operator, show(r.Expected), show(r.Actual))
	if r.Operator.Unary() {
		detail = fmt.Sprintf("expected %s %s, got %s", subject(r), r.Operator, show(r.Actual))
	}
	if err != nil {
		detail += ": " + err.Error()
	}
	r.Message = withLabel(label, detail)
	return r
}

func fail(r UnitResult, label, detail string) UnitResult {
	r.Passed = false
	r.Message = withLabel(label, fmt.Sprintf("%s: %s", subject(r), detail))
	return r
}

func skip(r UnitResult, reason string) UnitResult {
	r.Skipped = true
	r.Message = reason
	return r
}

func subject(r UnitResult) string {
	if r.Path == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + " " + r.Path
}

func withLabel(label, detail string) string {
	if label == "" {
		return detail
	}
	return label + ": " + detail
}

func show(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if v == nil {
		return "null"
	}
	return stringify(v)
}
