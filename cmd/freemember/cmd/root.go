package cmd

import (
	"os"

	"github.com/nfrund/freemember/internal/config"
	"github.com/nfrund/freemember/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "freemember",
	Short: "FreeMember membership server",
	Long: `FreeMember serves template pages with member login, registration,
profile and password reset forms.

Available commands:
  serve      Run the HTTP server
  actions    List the action IDs forms submit in their ACT field
  member     Manage members from the command line
  fields     Check a custom member fields file
  version    Print the version

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment, sets up the default logger and applies
// the flags shared by every command.
func loadConfig(cmd *cobra.Command) *config.Config {
	logging.New()
	cfg := config.New()
	if dir, _ := cmd.Flags().GetString("pages"); dir != "" {
		cfg.Set("PAGES_DIR", dir)
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.Set("MEMBER_STORE", store)
	}
	return cfg
}

func init() {
	rootCmd.PersistentFlags().String("pages", "", "directory holding the page templates (overrides PAGES_DIR)")
	rootCmd.PersistentFlags().String("store", "", "member store: memory or surreal (overrides MEMBER_STORE)")
}
