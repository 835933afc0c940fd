package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PhantomL4rd/mirapuri-stats/internal/api/middleware"
	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the publisher",
		Long: `token signs a JWT with security.jwt_secret. Put the output into
publish.token (or PUBLISH_TOKEN) on the publisher side.

Example:
  api token --subject publisher --ttl 720h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, err := middleware.IssueToken(cfg.Security.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "publisher", "Token subject")
	cmd.Flags().Duration("ttl", 720*time.Hour, "Token lifetime")
	return cmd
}
