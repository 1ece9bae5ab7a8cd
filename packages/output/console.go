package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/caserun/packages/assertions"
	"github.com/abdul-hamid-achik/caserun/packages/core/runner"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{map with %d entries}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

// unitLabel names what a unit looked at, e.g. "body $.code" or "status".
func unitLabel(u assertions.UnitResult) string {
	label := string(u.Kind)
	if u.Name != "" {
		label += " " + u.Name
	}
	if u.Path != "" {
		label += " " + u.Path
	}
	return label
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool

	passed, failed, errored, skipped int
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatModule(result *runner.ModuleResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Module: "+result.Module))

	for _, msg := range result.LoadErrors {
		fmt.Fprintf(f.writer, "  %s %s\n", red("!"), red(msg))
	}

	for _, r := range result.Results {
		name := r.ID
		if r.Detail != "" {
			name += " " + r.Detail
		}

		switch r.Status {
		case runner.StatusSkipped:
			f.skipped++
			if r.SkipReason == "filtered out" && !f.verbose {
				continue
			}
			fmt.Fprintf(f.writer, "  %s %s", yellow("-"), name)
			if r.SkipReason != "" {
				fmt.Fprintf(f.writer, " (%s)", r.SkipReason)
			}
			fmt.Fprintf(f.writer, "\n")
			continue
		case runner.StatusError:
			f.errored++
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), name, red(fmt.Sprintf("(%s: %s)", r.ErrorKind, r.ErrorMessage)))
			f.teardown(r)
			continue
		case runner.StatusPassed:
			f.passed++
			fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
		case runner.StatusFailed:
			f.failed++
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
		}

		if f.verbose && r.Execution != nil {
			fmt.Fprintf(f.writer, "    %s %s -> %d\n", r.Execution.Method, r.Execution.URL, r.Execution.StatusCode)
		}

		if r.Outcome != nil {
			for _, u := range r.Outcome.Units {
				if u.Passed || u.Skipped {
					continue
				}
				fmt.Fprintf(f.writer, "    %s %s %s\n", red("→"), unitLabel(u), u.Operator)
				fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(u.Expected, 100))
				fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(u.Actual, 100))
				if u.Message != "" {
					fmt.Fprintf(f.writer, "      %s\n", u.Message)
				}
			}
		}

		if f.verbose && len(r.Cache) > 0 {
			fmt.Fprintf(f.writer, "    Cache:\n")
			keys := make([]string, 0, len(r.Cache))
			for k := range r.Cache {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(f.writer, "      %s = %s\n", k, formatValue(r.Cache[k], 80))
			}
		}
		f.teardown(r)
	}

	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) teardown(r *runner.CaseResult) {
	yellow := color.New(color.FgYellow).SprintFunc()
	for _, msg := range r.TeardownErrors {
		fmt.Fprintf(f.writer, "    %s teardown: %s\n", yellow("!"), msg)
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("caserun"), version)
}

// Flush prints the totals line for everything formatted so far.
func (f *ConsoleFormatter) Flush(total time.Duration) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(f.writer, "Cases: ")
	if f.passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", f.passed)))
	}
	if f.failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", f.failed)))
	}
	if f.errored > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d errored", f.errored)))
	}
	if f.skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", f.skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", f.passed+f.failed+f.errored+f.skipped)
	fmt.Fprintf(f.writer, "Time:  %dms\n\n", total.Milliseconds())
	return nil
}
