package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/password"
	"github.com/nfrund/freemember/internal/server"
	"github.com/spf13/cobra"
)

var (
	memberEmail      string
	memberUsername   string
	memberScreenName string
	memberGroup      string
	memberPassword   string
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage members",
}

var memberAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a member, bypassing registration rules",
	Long: `Create a member directly in the configured member store. Useful for
seeding an administrator account before registration is opened.

Example:
  freemember member add --email admin@example.com --password 's3cret!' --group admins`,
	RunE: runMemberAdd,
}

func runMemberAdd(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if cfg.GetMemberStore() == "memory" {
		slog.Warn("The memory store does not persist; the member is discarded on exit")
	}
	if memberEmail == "" || memberPassword == "" {
		return errors.New("--email and --password are required")
	}

	hasher, err := password.New(password.DefaultConfig())
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(memberPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	srv, err := server.New(server.Options{Config: cfg, Logger: slog.Default()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	defer srv.Shutdown(ctx)

	m := &domain.Member{
		Email:      strings.TrimSpace(memberEmail),
		Username:   strings.TrimSpace(memberUsername),
		ScreenName: strings.TrimSpace(memberScreenName),
		GroupID:    memberGroup,
		Password:   hash,
		JoinDate:   time.Now().UTC(),
	}
	if m.Username == "" {
		m.Username = m.Email
	}
	if m.ScreenName == "" {
		m.ScreenName = m.Username
	}
	if m.GroupID == "" {
		m.GroupID = cfg.GetDefaultGroup()
	}

	created, err := srv.Members().Create(ctx, m)
	if err != nil {
		return fmt.Errorf("creating member: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created member %s (%s) in group %s\n", created.ID, created.Username, created.GroupID)
	return nil
}

func init() {
	memberAddCmd.Flags().StringVar(&memberEmail, "email", "", "email address (required)")
	memberAddCmd.Flags().StringVar(&memberUsername, "username", "", "username, defaults to the email")
	memberAddCmd.Flags().StringVar(&memberScreenName, "screen-name", "", "screen name, defaults to the username")
	memberAddCmd.Flags().StringVar(&memberGroup, "group", "", "member group, defaults to DEFAULT_MEMBER_GROUP")
	memberAddCmd.Flags().StringVar(&memberPassword, "password", "", "password (required)")

	memberCmd.AddCommand(memberAddCmd)
	rootCmd.AddCommand(memberCmd)
}
