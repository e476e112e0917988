package main

import (
	"fmt"
	"time"

	"github.com/cassiomorais/awards/internal/infrastructure/config"
	"github.com/cassiomorais/awards/internal/middleware"
	"github.com/cassiomorais/awards/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:       "migrate <up|down|version>",
		Short:     "Apply, roll back or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.Database.MigrationsPath
			}
			dbURL := cfg.Database.MigrateURL()

			if args[0] == "version" {
				version, dirty, err := postgres.MigrationVersion(dbURL, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
				return nil
			}

			if err := postgres.Migrate(dbURL, path, args[0] == "down"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s applied\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "migrations directory (default database.migrations_path)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.Auth.JWTSecret
				if ttl == 0 {
					ttl = cfg.Auth.JWTExpiry
				}
			}
			if secret == "" {
				return fmt.Errorf("no signing secret: set auth.jwt_secret or pass --secret")
			}
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}

			token, err := middleware.IssueToken(secret, userID, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default auth.jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.jwt_expiry)")
	return cmd
}
