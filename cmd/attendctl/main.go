// Command attendctl runs operator tasks: migrations, admin tokens, QR tokens
// and stats cache flushes.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"backoffice/internal/attendee"
	"backoffice/internal/auth"
	"backoffice/internal/config"
	"backoffice/internal/logger"
	"backoffice/internal/statscache"
	"backoffice/internal/store"
	"backoffice/internal/verification"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "attendctl",
		Short:         "Operator tools for the shelter attendance back office",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newMigrateCmd(), newTokenCmd(), newQRTokenCmd(), newFlushCacheCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				names, err := store.MigrationNames()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			zl := logger.New(cfg.LoggerLevel, cfg.LoggerFormat)
			defer func() { _ = zl.Sync() }()

			ctx := cmd.Context()
			db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpen: 2})
			if err != nil {
				return err
			}
			defer db.Close()
			return store.Migrate(ctx, db.Client, zl)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print embedded migrations without applying them")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		name    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if role != auth.RoleAdmin && role != auth.RoleStaff {
				return fmt.Errorf("role must be %s or %s", auth.RoleAdmin, auth.RoleStaff)
			}
			if ttl <= 0 {
				ttl = cfg.AccessTTL
			}
			tok, err := auth.Issue(subject, role, name, cfg.JWTIssuer, cfg.JWTSigningKey, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", tok.AccessExp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "admin user id (required)")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "admin or staff")
	cmd.Flags().StringVar(&name, "name", "", "display name recorded on manual verifications")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to ACCESS_TTL")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newQRTokenCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "qr-token <attendee-id>",
		Short: "Issue the QR token printed on an attendee's card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := verification.NewTokens(cfg.QRSigningKey, cfg.JWTIssuer, cfg.QRTokenTTL)
			signed, exp, err := tokens.Issue(attendee.Ref{Kind: attendee.Kind(kind), ID: args[0]})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			if !exp.IsZero() {
				fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(attendee.KindStudent), "student or tutor")
	return cmd
}

func newFlushCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-stats",
		Short: "Drop every cached statistics result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			zl := logger.New(cfg.LoggerLevel, cfg.LoggerFormat)
			rdb := store.NewRedis(store.RedisOptions{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
				Prefix:   cfg.RedisPrefix,
			})
			defer rdb.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			n, err := statscache.New(rdb.Client, cfg.RedisPrefix, cfg.StatsCacheTTL).InvalidateAll(ctx)
			if err != nil {
				return err
			}
			zl.Info("stats cache flushed", zap.Int("keys", n))
			return nil
		},
	}
}
