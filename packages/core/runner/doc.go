// Package runner executes normalized cases.
//
// A Catalog indexes the loaded modules. For every selected case the Runner
// creates a fresh cache, lets the Resolver run the case's prerequisites
// depth first, sends the resolved request once through the Executor,
// evaluates its assertions and finally runs its teardown steps.
package runner
