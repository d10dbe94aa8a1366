package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/governance"
)

var rulesCmd = &cobra.Command{
	Use:   "rules <file>",
	Short: "Validate and summarize a governance rule file",
	Example: `  opsgate rules rules.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := governance.LoadFile(args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTION\tTOOL\tCONTROL\tDESCRIPTION")
		for _, rule := range rf.Rules {
			tool := rule.Match.Tool
			if tool == "" {
				tool = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rule.ID, rule.Action, tool, rule.Control, rule.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n%d rule(s), file is valid\n", len(rf.Rules))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
