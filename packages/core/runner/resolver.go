package runner

import (
	"context"
	"fmt"
	"slices"

	"github.com/abdul-hamid-achik/caserun/packages/cache"
	"github.com/abdul-hamid-achik/caserun/packages/capture"
	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/abdul-hamid-achik/caserun/packages/core/placeholder"
	"github.com/abdul-hamid-achik/caserun/packages/db"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

// Resolver satisfies a case's dependencies by running its prerequisites
// depth first and then substitutes placeholders into a copy of the case.
// Prerequisites are executed every time they are needed; results are never
// reused between dependents.
type Resolver struct {
	catalog  *Catalog
	executor *Executor
	values   *placeholder.Resolver
	logger   *logging.Logger
}

func NewResolver(catalog *Catalog, executor *Executor, values *placeholder.Resolver, logger *logging.Logger) *Resolver {
	if values == nil {
		values = placeholder.NewResolver(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{
		catalog:  catalog,
		executor: executor,
		values:   values,
		logger:   logger.WithComponent("resolver"),
	}
}

// Resolve returns a copy of c that is ready to send. Cycles and unknown
// prerequisites are reported before any request is made.
func (r *Resolver) Resolve(ctx context.Context, c *cases.Case, store *cache.Store) (*cases.Case, error) {
	if err := r.catalog.Check(c); err != nil {
		return nil, err
	}
	target := c.Clone()
	if err := r.satisfy(ctx, target, store, []string{c.ID}); err != nil {
		return nil, err
	}
	return r.prepare(target, store)
}

// satisfy runs every dependency step of target in order. stack holds the
// ids currently being resolved.
func (r *Resolver) satisfy(ctx context.Context, target *cases.Case, store *cache.Store, stack []string) error {
	for _, step := range target.Dependencies {
		if err := r.step(ctx, target, step, store, stack); err != nil {
			return &cases.PrerequisiteError{CaseID: target.ID, Prerequisite: step.CaseID, Err: err}
		}
	}
	return nil
}

func (r *Resolver) step(ctx context.Context, target *cases.Case, step cases.DependencyStep, store *cache.Store, stack []string) error {
	if i := slices.Index(stack, step.CaseID); i >= 0 {
		return &cases.CircularDependencyError{Cycle: append(slices.Clone(stack[i:]), step.CaseID)}
	}
	pre, ok := r.catalog.Case(target.Module, step.CaseID)
	if !ok {
		return unknownCase(target, step.CaseID, "dependence_case_data")
	}

	log := r.logger.WithCase(target.ID)
	log.Debug("running prerequisite", "prerequisite", pre.ID)

	prepared := pre.Clone()
	if err := r.satisfy(ctx, prepared, store, append(stack[:len(stack):len(stack)], pre.ID)); err != nil {
		return err
	}
	resolved, err := r.prepare(prepared, store)
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
		if exec.CacheWrites, err = capture.Apply(pre.Extract, src, store, nil); err != nil {
			return err
		}
		writes, err := capture.Apply(step.Rules, src, store, target)
		if err != nil {
			return err
		}
		log.Debug("prerequisite done", "prerequisite", pre.ID, "status", exec.StatusCode, "cached", len(writes))
		return nil
	})
}

// prepare folds the module defaults into c and substitutes placeholders.
func (r *Resolver) prepare(c *cases.Case, store *cache.Store) (*cases.Case, error) {
	if m, ok := r.catalog.Module(c.Module); ok {
		if c.Host == "" {
			c.Host = m.Host
		}
		c.Headers = m.Headers.Merge(c.Headers)
	}
	out, err := r.values.Case(c, store)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", c.ID, err)
	}
	return out, nil
}
