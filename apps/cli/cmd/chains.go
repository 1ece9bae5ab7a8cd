package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/caserun/packages/core/runner"
)

var chainsCmd = &cobra.Command{
	Use:   "chains [module...]",
	Short: "Show which cases must share a worker",
	Long: `Group each module's cases by shared prerequisites and teardown cases.
Cases in one group run through the same cache and must stay on the same
worker when a suite is split across processes.

Examples:
  caserun chains
  caserun chains order`,
	RunE: chainsCommand,
}

func chainsCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	mods, err := ws.modules(args)
	if err != nil {
		return err
	}

	catalog := runner.NewCatalog(mods...)
	w := cmd.OutOrStdout()
	for _, m := range mods {
		groups, err := catalog.Chains(m.Name)
		if err != nil {
			return withCode(ExitDataError, fmt.Errorf("module %s: %w", m.Name, err))
		}
		fmt.Fprintf(w, "\n%s: %d groups\n", m.Name, len(groups))
		for i, g := range groups {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, strings.Join(g, ", "))
			for _, id := range g {
				chain, err := catalog.Chain(m.Name, id)
				if err != nil || len(chain) < 2 {
					continue
				}
				fmt.Fprintf(w, "      %s: %s\n", id, strings.Join(chain, " -> "))
			}
		}
	}
	return nil
}
