package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/nfrund/freemember/internal/actions"
	"github.com/spf13/cobra"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the action IDs forms submit in their ACT field",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLASS\tMETHOD")
		for _, a := range actions.Default().All() {
			fmt.Fprintf(w, "%d\t%s\t%s\n", a.ID, a.Class, a.Method)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
}
