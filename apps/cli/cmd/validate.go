package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/caserun/packages/core/runner"
)

var validateCmd = &cobra.Command{
	Use:   "validate [module...]",
	Short: "Check case data without sending requests",
	Long: `Normalize every case and check its dependencies: malformed records,
unknown prerequisites or teardown cases and dependency cycles are reported.
Nothing is executed.

Examples:
  caserun validate
  caserun validate user order --driver excel`,
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	mods, err := ws.modules(args)
	if err != nil {
		return err
	}

	catalog := runner.NewCatalog(mods...)
	problems := 0
	for _, m := range mods {
		for _, lerr := range m.LoadErrors {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", m.Name, lerr)
			problems++
		}
		bad := 0
		for _, c := range m.Cases {
			if _, err := catalog.Chain(m.Name, c.ID); err != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "Error in %s/%s: %v\n", m.Name, c.ID, err)
				bad++
			}
		}
		problems += bad
		if len(m.LoadErrors) == 0 && bad == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d cases)\n", m.Name, len(m.Cases))
		}
	}

	if problems > 0 {
		return withCode(ExitDataError, fmt.Errorf("validation failed: %d problems", problems))
	}
	return nil
}
