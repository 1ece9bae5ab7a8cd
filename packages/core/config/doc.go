// Package config loads caserun settings.
//
// Settings come from, in increasing precedence:
//   - built-in defaults (DefaultConfig)
//   - caserun.yaml, or the file passed with --config
//   - CASERUN_* environment variables, with dots replaced by underscores
//   - command line flags bound onto the viper instance
package config
