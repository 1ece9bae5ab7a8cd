// Package cmd implements the caserun CLI commands using Cobra.
//
// Available commands:
//   - run: Execute the cases of one or more modules
//   - validate: Normalize case data and check dependencies without executing
//   - list: Display the cases of every module
//   - diff: Compare the YAML and Excel definitions of modules
//   - chains: Show which cases share prerequisites
//   - version: Show caserun version information
//
// Settings come from caserun.yaml, CASERUN_* environment variables and
// flags, in that order of increasing precedence.
package cmd
