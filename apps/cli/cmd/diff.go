package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/caserun/packages/core/normalize"
)

var diffJSONFlag bool

var diffCmd = &cobra.Command{
	Use:   "diff [module...]",
	Short: "Compare the YAML and Excel definitions of modules",
	Long: `Normalize each module from both the YAML and the Excel directory and report
cases that exist on one side only or normalize differently. Useful while
migrating a suite from workbooks to YAML.

Examples:
  caserun diff
  caserun diff user --json`,
	RunE: diffCommand,
}

func init() {
	diffCmd.Flags().BoolVar(&diffJSONFlag, "json", false, "Print divergences as JSON")
}

func diffCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	cfg := ws.cfg
	left := normalize.NewYAMLSource(cfg.Path(cfg.Data.YAMLDir))
	right := normalize.NewExcelSource(cfg.Path(cfg.Data.ExcelDir))

	names := args
	if len(names) == 0 {
		names, err = unionModules(left, right)
		if err != nil {
			return withCode(ExitDataError, err)
		}
	}

	var all []normalize.Divergence
	for _, name := range names {
		divs, err := normalize.Compare(left, right, name)
		if err != nil {
			return withCode(ExitDataError, fmt.Errorf("module %s: %w", name, err))
		}
		all = append(all, divs...)
	}

	w := cmd.OutOrStdout()
	if diffJSONFlag {
		if all == nil {
			all = []normalize.Divergence{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(all); err != nil {
			return err
		}
	} else {
		if noColorFlag {
			color.NoColor = true
		}
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		for _, d := range all {
			switch d.Kind {
			case normalize.OnlyLeft:
				fmt.Fprintf(w, "%s %s/%s only in yaml\n", yellow("-"), d.Module, d.CaseID)
			case normalize.OnlyRight:
				fmt.Fprintf(w, "%s %s/%s only in excel\n", yellow("+"), d.Module, d.CaseID)
			default:
				fmt.Fprintf(w, "%s %s/%s differs\n%s\n", red("~"), d.Module, d.CaseID, d.Diff)
			}
		}
		if len(all) == 0 {
			fmt.Fprintf(w, "%s %d modules normalize identically\n", green("✓"), len(names))
		}
	}

	if len(all) > 0 {
		return withCode(ExitTestFailure, nil)
	}
	return nil
}

func unionModules(sources ...normalize.Source) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, src := range sources {
		names, err := src.Modules()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}
