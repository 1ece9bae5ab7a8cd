package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/caserun/packages/core/runner"
)

type JSONOutput struct {
	Summary  JSONSummary            `json:"summary"`
	Modules  []*runner.ModuleResult `json:"modules"`
	Errors   []string               `json:"errors,omitempty"`
	Duration float64                `json:"duration_ms"`
	Time     string                 `json:"time"`
}

type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// JSONFormatter collects module results and writes one document on Flush.
// Case results are serialized as they are, with masked request headers.
type JSONFormatter struct {
	writer  io.Writer
	modules []*runner.ModuleResult
	errors  []string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatModule(result *runner.ModuleResult) {
	f.modules = append(f.modules, result)
}

func (f *JSONFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// no header in JSON output
}

func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var s JSONSummary
	for _, m := range f.modules {
		s.Passed += m.Passed
		s.Failed += m.Failed
		s.Errored += m.Errored
		s.Skipped += m.Skipped
	}
	s.Total = s.Passed + s.Failed + s.Errored + s.Skipped

	modules := f.modules
	if modules == nil {
		modules = []*runner.ModuleResult{}
	}
	out := JSONOutput{
		Summary:  s,
		Modules:  modules,
		Errors:   f.errors,
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
