package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [module...]",
	Short: "List modules and their cases",
	Long: `List the cases of every module in declaration order.

Examples:
  caserun list
  caserun list user --driver excel`,
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	mods, err := ws.modules(args)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, m := range mods {
		fmt.Fprintf(w, "\n%s:\n", m.Name)
		for _, c := range m.Cases {
			line := fmt.Sprintf("  - %s %s %s", c.ID, c.Method, c.URL)
			if !c.IsRun {
				line += " (not run)"
			}
			fmt.Fprintln(w, line)
			if c.Detail != "" {
				fmt.Fprintf(w, "    %s\n", c.Detail)
			}
			if len(c.Dependencies) > 0 {
				ids := make([]string, len(c.Dependencies))
				for i, d := range c.Dependencies {
					ids[i] = d.CaseID
				}
				fmt.Fprintf(w, "    depends on: %s\n", strings.Join(ids, ", "))
			}
			if len(c.Labels) > 0 {
				keys := make([]string, 0, len(c.Labels))
				for k := range c.Labels {
					keys = append(keys, k+"="+c.Labels[k])
				}
				sort.Strings(keys)
				fmt.Fprintf(w, "    labels: %s\n", strings.Join(keys, ", "))
			}
		}
		if len(m.LoadErrors) > 0 {
			fmt.Fprintf(w, "  (%d records excluded, see caserun validate)\n", len(m.LoadErrors))
		}
	}
	return nil
}
