package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/caserun/packages/builtin"
	"github.com/abdul-hamid-achik/caserun/packages/core/config"
	"github.com/abdul-hamid-achik/caserun/packages/core/runner"
	"github.com/abdul-hamid-achik/caserun/packages/db"
	"github.com/abdul-hamid-achik/caserun/packages/export/metrics"
	"github.com/abdul-hamid-achik/caserun/packages/http"
	"github.com/abdul-hamid-achik/caserun/packages/output"
)

var runCmd = &cobra.Command{
	Use:   "run [module...]",
	Short: "Run test cases",
	Long: `Run the cases of the given modules, or of every module under the data
directory when none is named.

Examples:
  caserun run
  caserun run user --name "login*"
  caserun run order --labels smoke,regression --bail
  caserun run --driver excel --data-dir ./cases -o json
  caserun run user --case get_profile -v
  caserun run --wait-for http://localhost:8080/health --watch`,
	RunE: runCommand,
}

var (
	nameFlag        string
	labelsFlag      string
	caseFlag        string
	bailFlag        bool
	watchFlag       bool
	verboseFlag     bool
	outputFileFlag  string
	waitForFlag     string
	waitTimeoutFlag time.Duration
)

func init() {
	f := runCmd.Flags()
	f.StringVarP(&nameFlag, "name", "n", "", "Run only cases whose id matches the pattern (prefix*, *suffix, *part*)")
	f.StringVarP(&labelsFlag, "labels", "l", "", "Run only cases carrying one of these label values (comma-separated)")
	f.StringVar(&caseFlag, "case", "", "Run a single case by id (requires exactly one module)")
	f.BoolVar(&bailFlag, "bail", false, "Stop a module at its first failed or errored case")
	f.BoolVarP(&watchFlag, "watch", "w", false, "Re-run modules whose data files change")
	f.BoolVarP(&verboseFlag, "verbose", "v", false, "Show requests, cache contents and filtered cases")
	f.StringVar(&outputFileFlag, "output-file", "", "Write output to file (default: stdout)")
	f.StringVar(&waitForFlag, "wait-for", "", "Poll this URL until it answers 200 before running")
	f.DurationVar(&waitTimeoutFlag, "wait-timeout", 30*time.Second, "How long --wait-for polls")

	f.StringP("output", "o", settings.GetString("output"), "Output format: console, json (env: CASERUN_OUTPUT)")
	f.String("summary-file", settings.GetString("summary_file"), "Write a JSON summary with timing percentiles (env: CASERUN_SUMMARY_FILE)")
	f.String("host", settings.GetString("host"), "Base host for relative case urls (env: CASERUN_HOST)")
	f.String("dsn", settings.GetString("db.dsn"), "Database DSN for SQL steps and assertions (env: CASERUN_DB_DSN)")
	f.Duration("timeout", settings.GetDuration("http.timeout"), "Request timeout (env: CASERUN_HTTP_TIMEOUT)")
	f.BoolP("insecure", "k", settings.GetBool("http.insecure"), "Skip TLS certificate validation (env: CASERUN_HTTP_INSECURE)")
	f.String("proxy", settings.GetString("http.proxy"), "Proxy URL (env: CASERUN_HTTP_PROXY)")
	f.Float64("rate", settings.GetFloat64("http.rate"), "Maximum requests per second, 0 for unlimited (env: CASERUN_HTTP_RATE)")
	f.String("export-dir", settings.GetString("data.export_dir"), "Save files downloaded by export cases here (env: CASERUN_DATA_EXPORT_DIR)")

	_ = settings.BindPFlag("output", f.Lookup("output"))
	_ = settings.BindPFlag("summary_file", f.Lookup("summary-file"))
	_ = settings.BindPFlag("host", f.Lookup("host"))
	_ = settings.BindPFlag("db.dsn", f.Lookup("dsn"))
	_ = settings.BindPFlag("http.timeout", f.Lookup("timeout"))
	_ = settings.BindPFlag("http.insecure", f.Lookup("insecure"))
	_ = settings.BindPFlag("http.proxy", f.Lookup("proxy"))
	_ = settings.BindPFlag("data.export_dir", f.Lookup("export-dir"))
	_ = settings.BindPFlag("http.rate", f.Lookup("rate"))
}

func runCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	cfg := ws.cfg
	if caseFlag != "" && len(args) != 1 {
		return withCode(ExitConfigError, fmt.Errorf("--case needs exactly one module"))
	}

	var out io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		file, err := os.Create(outputFileFlag)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := http.NewClient(
		http.WithTimeout(cfg.HTTP.Timeout),
		http.WithFollowRedirects(cfg.HTTP.FollowRedirects),
		http.WithValidateSSL(!cfg.HTTP.Insecure),
		http.WithProxy(cfg.HTTP.Proxy),
		http.WithRateLimit(cfg.HTTP.Rate),
		http.WithLogger(ws.logger),
	)

	if waitForFlag != "" {
		err := runner.WaitForService(ctx, client, runner.WaitForConfig{URL: waitForFlag, Timeout: waitTimeoutFlag}, ws.logger)
		if err != nil {
			return withCode(ExitTestFailure, err)
		}
	}

	mods, err := ws.modules(args)
	if err != nil {
		return err
	}

	functions := builtin.NewRegistry()
	functions.RegisterValue("host", cfg.Host)
	functions.RegisterValue("app_host", cfg.AppHost)

	r := runner.NewRunner(runner.NewCatalog(mods...), &runner.Config{
		Client:     client,
		Database:   db.NewOpener(cfg.DB.DSN),
		Functions:  functions,
		Logger:     ws.logger,
		Host:       cfg.Host,
		DataDir:    cfg.DataDir(),
		ExportDir:  cfg.Path(cfg.Data.ExportDir),
		Seed:       cfg.Cache,
		NameFilter: nameFlag,
		Labels:     splitList(labelsFlag),
		Bail:       bailFlag,
	})

	names := make([]string, 0, len(mods))
	for _, m := range mods {
		names = append(names, m.Name)
	}

	code, err := runModules(ctx, cfg, r, names, out)
	if err != nil || !watchFlag {
		if err != nil {
			return err
		}
		if code != ExitSuccess {
			return withCode(code, nil)
		}
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")
	return ws.normalizer.Watch(ctx, func(changed []string) {
		var rerun []string
		for _, name := range changed {
			if len(args) > 0 && !contains(args, name) {
				continue
			}
			m, err := ws.normalizer.Module(name)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "reloading %s: %v\n", name, err)
				continue
			}
			r.Catalog().Add(m)
			rerun = append(rerun, name)
		}
		if len(rerun) == 0 {
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\nData changed: %s\nRe-running...\n\n", strings.Join(rerun, ", "))
		if _, err := runModules(ctx, cfg, r, rerun, out); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n")
	})
}

// runModules runs names in order with a fresh formatter and returns the exit
// code the results call for.
func runModules(ctx context.Context, cfg *config.Config, r *runner.Runner, names []string, out io.Writer) (int, error) {
	formatter, err := output.New(cfg.Output, out, verboseFlag, noColorFlag)
	if err != nil {
		return ExitConfigError, err
	}
	formatter.FormatHeader(version)

	var exporters []metrics.Exporter
	if file := cfg.SummaryFile; file != "" {
		exporters = append(exporters, metrics.NewJSONExporter(
			metrics.WithJSONFile(file),
			metrics.WithRunID(uuid.NewString()),
		))
	}
	collector := metrics.NewCollector(exporters...)

	start := time.Now()
	var results []*runner.ModuleResult
	for _, name := range names {
		var res *runner.ModuleResult
		if caseFlag != "" {
			res, err = runSingle(ctx, r, name, caseFlag)
		} else {
			res, err = r.RunModule(ctx, name)
		}
		if res != nil {
			formatter.FormatModule(res)
			collector.RecordModule(res)
			results = append(results, res)
		}
		if err != nil {
			formatter.FormatError(err)
			if ctx.Err() != nil {
				break
			}
			if res == nil {
				return ExitDataError, finish(formatter, collector, start, err)
			}
		}
	}

	if err := finish(formatter, collector, start, nil); err != nil {
		return ExitTestFailure, err
	}
	return resultCode(results), nil
}

func finish(f output.Formatter, c *metrics.Collector, start time.Time, cause error) error {
	if err := f.Flush(time.Since(start)); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}
	if err := c.Flush(); err != nil {
		return fmt.Errorf("error writing summary: %w", err)
	}
	if cause != nil {
		return withCode(ExitDataError, cause)
	}
	return nil
}

func runSingle(ctx context.Context, r *runner.Runner, module, id string) (*runner.ModuleResult, error) {
	start := time.Now()
	cr, err := r.RunCase(ctx, module, id)
	if err != nil {
		return nil, err
	}
	res := &runner.ModuleResult{Module: module, Results: []*runner.CaseResult{cr}, Duration: time.Since(start)}
	switch cr.Status {
	case runner.StatusPassed:
		res.Passed++
	case runner.StatusFailed:
		res.Failed++
	case runner.StatusError:
		res.Errored++
	case runner.StatusSkipped:
		res.Skipped++
	}
	return res, nil
}

// resultCode maps results onto an exit code. Data problems win over plain
// failures so a broken data file is never reported as a failing test.
func resultCode(results []*runner.ModuleResult) int {
	code := ExitSuccess
	for _, m := range results {
		if len(m.LoadErrors) > 0 {
			return ExitDataError
		}
		for _, c := range m.Results {
			switch {
			case c.Status == runner.StatusError && isDataKind(c.ErrorKind):
				return ExitDataError
			case c.Status == runner.StatusFailed || c.Status == runner.StatusError:
				code = ExitTestFailure
			}
		}
	}
	return code
}

func isDataKind(kind string) bool {
	switch kind {
	case "data_format", "circular_dependency", "placeholder":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
