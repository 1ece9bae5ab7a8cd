package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/caserun/packages/assertions"
	"github.com/abdul-hamid-achik/caserun/packages/builtin"
	"github.com/abdul-hamid-achik/caserun/packages/cache"
	"github.com/abdul-hamid-achik/caserun/packages/capture"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/abdul-hamid-achik/caserun/packages/core/placeholder"
	"github.com/abdul-hamid-achik/caserun/packages/db"
	"github.com/abdul-hamid-achik/caserun/packages/http"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

type Runner struct {
	catalog  *Catalog
	executor *Executor
	resolver *Resolver
	engine   *assertions.Engine
	config   *Config
	logger   *logging.Logger
}

type Config struct {
	Client    *http.Client
	Database  db.Opener
	Functions *builtin.Registry
	Logger    *logging.Logger
	// Host is used for relative urls when neither case nor module has one.
	Host string
	// DataDir resolves multipart files and schema files.
	DataDir string
	// ExportDir receives the files export requests download.
	ExportDir string
	// Seed values are copied into every chain's fresh cache.
	Seed       map[string]any
	NameFilter string
	Labels     []string
	Bail       bool
}

func NewRunner(catalog *Catalog, cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	if catalog == nil {
		catalog = NewCatalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	executor := NewExecutor(cfg.Client,
		WithDatabase(cfg.Database),
		WithBaseHost(cfg.Host),
		WithDataDir(cfg.DataDir),
		WithExportDir(cfg.ExportDir),
		WithExecutorLogger(logger),
	)
	return &Runner{
		catalog:  catalog,
		executor: executor,
		resolver: NewResolver(catalog, executor, placeholder.NewResolver(cfg.Functions), logger),
		engine:   assertions.NewEngine(assertions.WithBaseDir(cfg.DataDir), assertions.WithLogger(logger)),
		config:   cfg,
		logger:   logger.WithComponent("runner"),
	}
}

func (r *Runner) Catalog() *Catalog {
	return r.catalog
}

type ModuleResult struct {
	Module     string        `json:"module"`
	Results    []*CaseResult `json:"results"`
	LoadErrors []string      `json:"load_errors,omitempty"`
	Duration   time.Duration `json:"duration"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Errored    int           `json:"errored"`
	Skipped    int           `json:"skipped"`
}

// OK reports whether nothing failed, errored or was excluded while loading.
func (m *ModuleResult) OK() bool {
	return m.Failed == 0 && m.Errored == 0 && len(m.LoadErrors) == 0
}

type CaseResult struct {
	ID             string              `json:"case_id"`
	Detail         string              `json:"detail,omitempty"`
	Module         string              `json:"module"`
	Labels         map[string]string   `json:"labels,omitempty"`
	Status         Status              `json:"status"`
	SkipReason     string              `json:"skip_reason,omitempty"`
	Execution      *Execution          `json:"execution,omitempty"`
	Outcome        *assertions.Outcome `json:"outcome,omitempty"`
	Err            error               `json:"-"`
	ErrorKind      string              `json:"error_kind,omitempty"`
	ErrorMessage   string              `json:"error,omitempty"`
	Cache          map[string]any      `json:"cache,omitempty"`
	TeardownErrors []string            `json:"teardown_errors,omitempty"`
	Duration       time.Duration       `json:"duration"`
}

func (c *CaseResult) setErr(status Status, err error) {
	c.Status = status
	c.Err = err
	c.ErrorKind = cases.Kind(err)
	c.ErrorMessage = err.Error()
}

// RunModule runs every case of the named module in declaration order. One
// case's error never stops the others unless Bail is set.
func (r *Runner) RunModule(ctx context.Context, name string) (*ModuleResult, error) {
	m, ok := r.catalog.Module(name)
	if !ok {
		return nil, fmt.Errorf("module %s not found", name)
	}

	start := time.Now()
	result := &ModuleResult{Module: name}
	for _, err := range m.LoadErrors {
		result.LoadErrors = append(result.LoadErrors, err.Error())
	}

	for _, c := range m.Cases {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var cr *CaseResult
		if r.selected(c) {
			cr = r.runCase(ctx, c)
		} else {
			cr = &CaseResult{ID: c.ID, Detail: c.Detail, Module: c.Module, Labels: c.Labels, Status: StatusSkipped, SkipReason: "filtered out"}
		}
		result.Results = append(result.Results, cr)
		switch cr.Status {
		case StatusPassed:
			result.Passed++
		case StatusFailed:
			result.Failed++
		case StatusError:
			result.Errored++
		case StatusSkipped:
			result.Skipped++
		}
		if r.config.Bail && (cr.Status == StatusFailed || cr.Status == StatusError) {
			break
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// RunCase runs a single case by id, looking in module first.
func (r *Runner) RunCase(ctx context.Context, module, id string) (*CaseResult, error) {
	c, ok := r.catalog.Case(module, id)
	if !ok {
		return nil, fmt.Errorf("case %s not found", id)
	}
	return r.runCase(ctx, c), nil
}

// runCase drives one chain: a fresh cache, dependency resolution, the
// request, assertions and teardown.
func (r *Runner) runCase(ctx context.Context, c *cases.Case) *CaseResult {
	start := time.Now()
	res := &CaseResult{ID: c.ID, Detail: c.Detail, Module: c.Module, Labels: c.Labels}
	log := r.logger.WithModule(c.Module).WithCase(c.ID)
	defer func() {
		res.Duration = time.Since(start)
		log.Info("case finished", "status", res.Status, "duration_ms", res.Duration.Milliseconds())
	}()

	if !c.IsRun {
		res.Status = StatusSkipped
		res.SkipReason = "is_run is false"
		return res
	}

	store := cache.NewWithSeed(r.config.Seed)
	defer func() { res.Cache = store.Snapshot() }()

	resolved, err := r.resolver.Resolve(ctx, c, store)
	if err != nil {
		res.setErr(StatusError, err)
		log.Warn("case not executed", "kind", res.ErrorKind, "error", err)
		return res
	}

	err = r.executor.Session(ctx, resolved, func(q db.Querier) error {
		exec, err := r.executor.Execute(ctx, resolved, q)
		res.Execution = exec
		if err != nil {
			return err
		}
		defer r.executor.Teardown(ctx, resolved, q, exec)
		if exec.CacheWrites, err = capture.Apply(resolved.Extract, exec.Sources(), store, nil); err != nil {
			return fmt.Errorf("case %s: %w", c.ID, err)
		}
		res.Outcome = r.engine.Evaluate(ctx, resolved.Assertions, exec.Exchange(), q)
		return nil
	})
	switch {
	case err != nil:
		res.setErr(StatusError, err)
		if isTransport(err) {
			log.Warn("request failed", "error", err)
		} else {
			log.Warn("case errored", "kind", res.ErrorKind, "error", err)
		}
	case res.Outcome.Failed():
		res.setErr(StatusFailed, res.Outcome.Err(c.ID))
	default:
		res.Status = StatusPassed
	}

	if res.Execution != nil {
		for _, terr := range res.Execution.TeardownSQLErrors {
			res.TeardownErrors = append(res.TeardownErrors, terr.Error())
		}
		if res.Execution.StatusCode != 0 {
			for _, terr := range r.teardown(ctx, c, res.Execution, store) {
				res.TeardownErrors = append(res.TeardownErrors, terr.Error())
			}
		}
	}
	return res
}

// teardown runs the case's teardown steps after its verdict is known.
// Errors are collected and logged; they never change the verdict.
func (r *Runner) teardown(ctx context.Context, c *cases.Case, main *Execution, store *cache.Store) []error {
	var errs []error
	log := r.logger.WithModule(c.Module).WithCase(c.ID)
	self := main.Sources()
	self.SelfResponse = main.Body

	for _, step := range c.Teardown {
		if err := r.teardownStep(ctx, c, step, self, store); err != nil {
			err = fmt.Errorf("teardown %s: %w", step.CaseID, err)
			log.Warn("teardown failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *Runner) teardownStep(ctx context.Context, c *cases.Case, step cases.TeardownStep, self capture.Sources, store *cache.Store) error {
	if _, err := capture.Apply(step.Prepare, self, store, nil); err != nil {
		return err
	}
	tc, ok := r.catalog.Case(c.Module, step.CaseID)
	if !ok {
		return unknownCase(c, step.CaseID, "teardown")
	}

	target := tc.Clone()
	if _, err := capture.Apply(capture.Filter(step.Send, cases.SourceCache), self, store, target); err != nil {
		return err
	}
	resolved, err := r.resolver.Resolve(ctx, target, store)
	if err != nil {
		return err
	}

	return r.executor.Session(ctx, resolved, func(q db.Querier) error {
		exec, err := r.executor.Execute(ctx, resolved, q)
		if err != nil {
			return err
		}
		defer r.executor.Teardown(ctx, resolved, q, exec)
		src := exec.Sources()
		src.SelfResponse = self.SelfResponse
		after := capture.Filter(step.Send, cases.SourceResponse, cases.SourceSelfResponse, cases.SourceRequest, cases.SourceSQL)
		_, err = capture.Apply(after, src, store, nil)
		return err
	})
}

func (r *Runner) selected(c *cases.Case) bool {
	if r.config.NameFilter != "" && !matchesPattern(c.ID, r.config.NameFilter) {
		return false
	}
	if len(r.config.Labels) > 0 && !hasAnyLabel(c.Labels, r.config.Labels) {
		return false
	}
	return true
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	if pattern[0] == '*' && pattern[len(pattern)-1] == '*' && len(pattern) > 1 {
		substr := pattern[1 : len(pattern)-1]
		for i := 0; i <= len(name)-len(substr); i++ {
			if name[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	}

	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
	}

	if pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}

	return name == pattern
}

func hasAnyLabel(labels map[string]string, filters []string) bool {
	for _, filter := range filters {
		for _, label := range labels {
			if label == filter {
				return true
			}
		}
	}
	return false
}
