package cases

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCacheKeyNotFound matches any *CacheKeyNotFoundError through errors.Is.
var ErrCacheKeyNotFound = errors.New("cache key not found")

// DataFormatError marks a single case as unusable. The rest of its module
// still loads.
type DataFormatError struct {
	Module string
	CaseID string
	Field  string
	Origin string
	Err    error
}

func (e *DataFormatError) Error() string {
	var b strings.Builder
	b.WriteString("invalid case data")
	if e.Module != "" {
		fmt.Fprintf(&b, " in module %s", e.Module)
	}
	if e.CaseID != "" {
		fmt.Fprintf(&b, " case %s", e.CaseID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	if e.Origin != "" {
		fmt.Fprintf(&b, " (%s)", e.Origin)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DataFormatError) Unwrap() error { return e.Err }

type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Cycle, " -> ")
}

type CacheKeyNotFoundError struct {
	Key string
}

func (e *CacheKeyNotFoundError) Error() string {
	return fmt.Sprintf("cache key %q not found", e.Key)
}

func (e *CacheKeyNotFoundError) Is(target error) bool {
	return target == ErrCacheKeyNotFound
}

// PlaceholderError reports a function placeholder that could not be evaluated.
type PlaceholderError struct {
	Expr string
	Err  error
}

func (e *PlaceholderError) Error() string {
	return fmt.Sprintf("placeholder %s: %v", e.Expr, e.Err)
}

func (e *PlaceholderError) Unwrap() error { return e.Err }

// PrerequisiteError wraps whatever went wrong while satisfying a dependency,
// naming both the dependent case and the prerequisite that failed.
type PrerequisiteError struct {
	CaseID       string
	Prerequisite string
	Err          error
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("case %s: prerequisite %s: %v", e.CaseID, e.Prerequisite, e.Err)
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

type ConnectionError struct {
	CaseID string
	Method string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("case %s: %s %s: connection failed: %v", e.CaseID, e.Method, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type ResponseParseError struct {
	CaseID      string
	ContentType string
	Err         error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("case %s: response body is not JSON (content-type %q): %v", e.CaseID, e.ContentType, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

type AssertionFailure struct {
	CaseID   string
	Total    int
	Messages []string
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("case %s: %d of %d assertions failed: %s",
		e.CaseID, len(e.Messages), e.Total, strings.Join(e.Messages, "; "))
}

type SQLExecutionError struct {
	CaseID string
	Query  string
	Err    error
}

func (e *SQLExecutionError) Error() string {
	if e.CaseID == "" {
		return fmt.Sprintf("sql %q: %v", e.Query, e.Err)
	}
	return fmt.Sprintf("case %s: sql %q: %v", e.CaseID, e.Query, e.Err)
}

func (e *SQLExecutionError) Unwrap() error { return e.Err }

// Kind names the taxonomy entry for err, looking through wrappers. The
// innermost classified error wins so a prerequisite's connection failure
// reports as "connection".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		df   *DataFormatError
		cyc  *CircularDependencyError
		ck   *CacheKeyNotFoundError
		ph   *PlaceholderError
		conn *ConnectionError
		rp   *ResponseParseError
		af   *AssertionFailure
		sqle *SQLExecutionError
	)
	switch {
	case errors.As(err, &cyc):
		return "circular_dependency"
	case errors.As(err, &ck):
		return "cache_key_not_found"
	case errors.As(err, &conn):
		return "connection"
	case errors.As(err, &sqle):
		return "sql_execution"
	case errors.As(err, &ph):
		return "placeholder"
	case errors.As(err, &df):
		return "data_format"
	case errors.As(err, &rp):
		return "response_parse"
	case errors.As(err, &af):
		return "assertion"
	}
	return "error"
}
