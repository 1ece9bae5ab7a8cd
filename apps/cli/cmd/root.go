package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/abdul-hamid-achik/caserun/packages/core/config"
	"github.com/abdul-hamid-achik/caserun/packages/core/normalize"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag  string
	noColorFlag bool

	// settings collects defaults, the config file, CASERUN_* variables and
	// bound flags.
	settings = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "caserun",
	Short: "Data-driven HTTP API test cases from YAML or Excel.",
	Long: `caserun runs HTTP API test cases kept as data: one directory per module,
holding YAML files or Excel workbooks. Cases may depend on other cases,
reuse values they returned through a per-chain cache, and assert on the
status, headers, body, response time and database state.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "c", "", "Path to config file (default: ./caserun.yaml if present)")
	pf.String("log-level", settings.GetString("logging.level"), "Log level: error, warn, info, debug (env: CASERUN_LOGGING_LEVEL)")
	pf.String("log-format", settings.GetString("logging.format"), "Log format: text, json (env: CASERUN_LOGGING_FORMAT)")
	pf.String("driver", settings.GetString("data.driver"), "Data source: yaml, excel (env: CASERUN_DATA_DRIVER)")
	pf.String("data-dir", "", "Data directory for the selected driver")
	pf.BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	_ = settings.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = settings.BindPFlag("logging.format", pf.Lookup("log-format"))
	_ = settings.BindPFlag("data.driver", pf.Lookup("driver"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(chainsCmd)
	rootCmd.AddCommand(versionCmd)
}

// workspace is what every command needs once flags are parsed.
type workspace struct {
	cfg        *config.Config
	logger     *logging.Logger
	normalizer *normalize.Normalizer
}

func loadWorkspace(cmd *cobra.Command) (*workspace, error) {
	cfg, err := config.Load(settings, configFlag)
	if err != nil {
		return nil, withCode(ExitConfigError, err)
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		if cfg.Data.Driver == config.DriverExcel {
			cfg.Data.ExcelDir = dir
		} else {
			cfg.Data.YAMLDir = dir
		}
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level),
		logging.WithWriter(cmd.ErrOrStderr()),
		logging.WithJSON(cfg.Logging.Format == "json"),
	)
	logging.SetDefault(logger)

	src, err := normalize.NewSource(cfg.Data.Driver, cfg.Path(cfg.Data.YAMLDir), cfg.Path(cfg.Data.ExcelDir))
	if err != nil {
		return nil, withCode(ExitConfigError, err)
	}
	logger.Debug("workspace loaded", "config", cfg.File, "driver", src.Kind(), "root", src.Root())

	return &workspace{
		cfg:        cfg,
		logger:     logger,
		normalizer: normalize.New(src, normalize.WithLogger(logger)),
	}, nil
}

// modules loads the named modules, or all of them when names is empty.
func (w *workspace) modules(names []string) ([]*cases.Module, error) {
	if len(names) == 0 {
		mods, err := w.normalizer.Modules()
		if err != nil {
			return nil, withCode(ExitDataError, err)
		}
		return mods, nil
	}
	out := make([]*cases.Module, 0, len(names))
	for _, name := range names {
		m, err := w.normalizer.Module(name)
		if err != nil {
			return nil, withCode(ExitDataError, fmt.Errorf("module %s: %w", name, err))
		}
		out = append(out, m)
	}
	return out, nil
}
