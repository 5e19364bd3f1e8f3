package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/nfrund/freemember/internal/database"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields [file]",
	Short: "Check a custom member fields file",
	Long: `Parse and validate a custom member fields file and print the fields
it defines. Without an argument MEMBER_FIELDS_FILE is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := loadConfig(cmd).GetMemberFieldsFile()
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no fields file given and MEMBER_FIELDS_FILE is not set")
		}

		fields, err := database.LoadCustomFields(afero.NewOsFs(), path)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOLUMN\tREQUIRED\tPUBLIC")
		for _, f := range fields {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\n", f.ID, f.Name, f.Column(), f.Required, f.Public)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}
