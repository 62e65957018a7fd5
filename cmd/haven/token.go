package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haven-org/haven/internal/auth"
	"github.com/haven-org/haven/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		subject    string
		roles      []string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Long:  "Signs a token with the configured auth secret. Pass it as 'Authorization: Bearer <token>'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, err := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer).Issue(subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "haven.yaml", "path to Haven config file")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "token subject, usually the operator's email")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleAdmin}, "roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
