// Package logging provides the structured logger used across a run and the
// masker that keeps credentials out of log output.
package logging
