// Package cases holds the canonical test case model shared by every stage of
// a run: the normalized Case, its dependency and teardown steps, assertion
// units, the closed operator set, and the error types callers match with
// errors.As.
package cases
