// Package output renders module results for the terminal.
//
// Supported output formats:
//   - console: colored, human-readable lines per case with failing units
//   - json: one document with every module result, written on Flush
package output
