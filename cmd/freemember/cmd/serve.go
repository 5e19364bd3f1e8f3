package cmd

import (
	"fmt"
	"log/slog"

	"github.com/nfrund/freemember/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		if serveAddr != "" {
			cfg.Set("APP_ADDR", serveAddr)
		}

		srv, err := server.New(server.Options{Config: cfg, Logger: slog.Default()})
		if err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides APP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
