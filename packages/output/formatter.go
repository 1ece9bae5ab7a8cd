package output

import (
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/caserun/packages/core/runner"
)

type Formatter interface {
	FormatHeader(version string)
	FormatModule(result *runner.ModuleResult)
	FormatError(err error)
	Flush(total time.Duration) error
}

// New returns the formatter registered under name.
func New(name string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch name {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", name)
	}
}
