package runner

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/caserun/packages/assertions"
	"github.com/abdul-hamid-achik/caserun/packages/capture"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/abdul-hamid-achik/caserun/packages/db"
	"github.com/abdul-hamid-achik/caserun/packages/http"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

// Execution is what one request produced.
type Execution struct {
	CaseID         string            `json:"case_id"`
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	// Request is the payload that was sent, as a tree for path lookups.
	Request    any               `json:"request,omitempty"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	RawBody    []byte            `json:"-"`
	// Body is the decoded response, or the raw text when decoding failed.
	Body     any           `json:"body,omitempty"`
	ParseErr error         `json:"-"`
	Elapsed  time.Duration `json:"elapsed"`
	// SQLData holds the first row of every setup and case query, merged.
	SQLData           map[string]any `json:"sql_data,omitempty"`
	CacheWrites       map[string]any `json:"cache_writes,omitempty"`
	TeardownSQLErrors []error        `json:"-"`
	// ExportPath is where a downloaded file was saved.
	ExportPath string `json:"export_path,omitempty"`
}

// Exchange adapts the execution for the assertion engine.
func (e *Execution) Exchange() *assertions.Exchange {
	return &assertions.Exchange{
		StatusCode: e.StatusCode,
		Headers:    e.Headers,
		Body:       e.Body,
		BodyIsText: e.ParseErr != nil,
		Request:    e.Request,
		SQLData:    e.sqlTree(),
		Elapsed:    e.Elapsed,
	}
}

// Sources exposes the execution to extraction rules.
func (e *Execution) Sources() capture.Sources {
	return capture.Sources{
		Response: e.Body,
		Request:  e.Request,
		SQL:      e.sqlTree(),
	}
}

// sqlTree keeps a nil map from turning into a non-nil interface.
func (e *Execution) sqlTree() any {
	if e.SQLData == nil {
		return nil
	}
	return e.SQLData
}

// Executor turns a resolved case into exactly one HTTP exchange plus the
// SQL statements around it.
type Executor struct {
	client    *http.Client
	opener    db.Opener
	host      string
	dataDir   string
	exportDir string
	logger    *logging.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

type ExecutorOption func(*Executor)

// WithDatabase sets how connections are opened. Without one, SQL steps are
// skipped.
func WithDatabase(open db.Opener) ExecutorOption {
	return func(e *Executor) { e.opener = open }
}

// WithBaseHost sets the host used when neither the case nor its module
// names one.
func WithBaseHost(host string) ExecutorOption {
	return func(e *Executor) { e.host = host }
}

// WithDataDir sets where multipart file paths are resolved from.
func WithDataDir(dir string) ExecutorOption {
	return func(e *Executor) { e.dataDir = dir }
}

// WithExportDir saves the body of every export request under dir. Without
// it downloads are only kept in memory.
func WithExportDir(dir string) ExecutorOption {
	return func(e *Executor) { e.exportDir = dir }
}

func WithExecutorLogger(l *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l.WithComponent("executor")
		}
	}
}

func NewExecutor(client *http.Client, opts ...ExecutorOption) *Executor {
	if client == nil {
		client = http.NewClient()
	}
	e := &Executor{
		client: client,
		logger: logging.Discard(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session opens a connection when c needs one, hands it to fn and closes it
// afterwards. q is nil when no database is configured.
func (e *Executor) Session(ctx context.Context, c *cases.Case, fn func(q db.Querier) error) error {
	if e.opener == nil || !needsDB(c) {
		return fn(nil)
	}
	q, err := e.opener(ctx)
	if err != nil {
		return &cases.SQLExecutionError{CaseID: c.ID, Err: fmt.Errorf("connecting: %w", err)}
	}
	defer func() {
		if cerr := q.Close(); cerr != nil {
			e.logger.Warn("closing database", "case", c.ID, "error", cerr)
		}
	}()
	return fn(q)
}

// Execute sends c once. Setup statements run first, then the request, then
// the case's own queries. Teardown statements are left to Teardown so they
// run after assertions. A partial Execution is returned together with any
// error.
func (e *Executor) Execute(ctx context.Context, c *cases.Case, q db.Querier) (*Execution, error) {
	log := e.logger.WithCase(c.ID)
	exec := &Execution{CaseID: c.ID, Method: c.Method, Request: c.Body}

	target, err := e.resolveURL(c)
	if err != nil {
		return exec, err
	}
	exec.URL = target
	exec.RequestHeaders = log.MaskHeaders(c.Headers.Map())

	if err := e.runSQL(ctx, c, q, c.SetupSQL, exec); err != nil {
		return exec, err
	}

	resp, err := e.client.Do(ctx, &http.Request{
		CaseID:  c.ID,
		Method:  c.Method,
		URL:     target,
		Headers: c.Headers,
		Type:    c.RequestType,
		Body:    c.Body,
		Params:  c.Params,
		BaseDir: e.dataDir,
	})
	if err != nil {
		return exec, err
	}
	exec.StatusCode = resp.StatusCode
	exec.Headers = resp.Headers
	exec.RawBody = resp.Body
	exec.Elapsed = resp.Duration
	if resp.URL != "" {
		exec.URL = resp.URL
	}

	if c.RequestType == cases.RequestExport {
		exec.Body = resp.BodyString()
		if err := e.saveExport(c, resp, exec); err != nil {
			return exec, err
		}
	} else if body, err := resp.JSON(); err != nil {
		exec.ParseErr = &cases.ResponseParseError{CaseID: c.ID, ContentType: resp.ContentType(), Err: err}
		exec.Body = resp.BodyString()
		log.Debug("response body kept as text", "error", err)
	} else {
		exec.Body = body
	}

	if err := e.runSQL(ctx, c, q, c.SQL, exec); err != nil {
		return exec, err
	}

	log.Info("request executed", "method", c.Method, "url", exec.URL, "status", exec.StatusCode, "elapsed_ms", exec.Elapsed.Milliseconds())

	if c.Sleep > 0 {
		if err := e.sleep(ctx, c.Sleep); err != nil {
			return exec, err
		}
	}
	return exec, nil
}

// Teardown runs c's teardown statements. Failures are recorded on exec and
// never fail the case.
func (e *Executor) Teardown(ctx context.Context, c *cases.Case, q db.Querier, exec *Execution) {
	for _, stmt := range c.TeardownSQL {
		if err := e.statement(ctx, c, q, stmt, nil); err != nil {
			exec.TeardownSQLErrors = append(exec.TeardownSQLErrors, err)
			e.logger.Warn("teardown sql failed", "case", c.ID, "error", err)
		}
	}
}

func (e *Executor) runSQL(ctx context.Context, c *cases.Case, q db.Querier, stmts []string, exec *Execution) error {
	for _, stmt := range stmts {
		if err := e.statement(ctx, c, q, stmt, exec); err != nil {
			return err
		}
	}
	return nil
}

// statement runs one SQL statement. The first row of a SELECT is merged
// into exec's SQL data when exec is given.
func (e *Executor) statement(ctx context.Context, c *cases.Case, q db.Querier, stmt string, exec *Execution) error {
	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	if q == nil {
		e.logger.Debug("database not configured, skipping sql", "case", c.ID, "sql", stmt)
		return nil
	}
	if !db.IsSelect(stmt) {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return &cases.SQLExecutionError{CaseID: c.ID, Query: stmt, Err: err}
		}
		return nil
	}
	res, err := q.Query(ctx, stmt)
	if err != nil {
		return &cases.SQLExecutionError{CaseID: c.ID, Query: stmt, Err: err}
	}
	if exec == nil {
		return nil
	}
	if exec.SQLData == nil {
		exec.SQLData = make(map[string]any)
	}
	for k, v := range res.First() {
		exec.SQLData[k] = v
	}
	return nil
}

// saveExport writes a downloaded body under the export dir, named after the
// Content-Disposition filename or the case id.
func (e *Executor) saveExport(c *cases.Case, resp *http.Response, exec *Execution) error {
	if e.exportDir == "" {
		return nil
	}
	name := c.ID
	if _, params, err := mime.ParseMediaType(resp.Header("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		name = c.ID
	}
	if err := os.MkdirAll(e.exportDir, 0o755); err != nil {
		return fmt.Errorf("case %s: creating export dir: %w", c.ID, err)
	}
	path := filepath.Join(e.exportDir, name)
	if err := os.WriteFile(path, resp.Body, 0o644); err != nil {
		return fmt.Errorf("case %s: saving export: %w", c.ID, err)
	}
	exec.ExportPath = path
	e.logger.Debug("export saved", "case", c.ID, "path", path, "bytes", len(resp.Body))
	return nil
}

// resolveURL joins a relative url onto the case host or the configured one.
// Module hosts are folded into the case before it gets here.
func (e *Executor) resolveURL(c *cases.Case) (string, error) {
	raw := strings.TrimSpace(c.URL)
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return raw, nil
	}
	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = e.host
	}
	if host == "" {
		return "", &cases.DataFormatError{
			Module: c.Module,
			CaseID: c.ID,
			Field:  "url",
			Origin: c.Origin,
			Err:    fmt.Errorf("relative url %q and no host configured", raw),
		}
	}
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(raw, "/"), nil
}

func needsDB(c *cases.Case) bool {
	if len(c.SetupSQL) > 0 || len(c.SQL) > 0 || len(c.TeardownSQL) > 0 {
		return true
	}
	for _, u := range c.Assertions.SQL {
		if strings.TrimSpace(u.Query) != "" {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isTransport reports whether err came from the network rather than the data.
func isTransport(err error) bool {
	var conn *cases.ConnectionError
	return errors.As(err, &conn)
}
