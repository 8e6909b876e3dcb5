// Command scan is the Vitrin notification scan CLI. It runs the same scan
// code the API's hourly scheduler runs, for operators and cron-style use.
//
// Usage:
//
//	vitrin-scan run
//	vitrin-scan promotions
//	vitrin-scan subscriptions
//	vitrin-scan cleanup --days 90
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vitrin-app/vitrin-backend/internal/config"
	"github.com/vitrin-app/vitrin-backend/internal/db"
	"github.com/vitrin-app/vitrin-backend/internal/maintenance"
	"github.com/vitrin-app/vitrin-backend/internal/scan"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "vitrin-scan",
		Short: "Vitrin notification scan CLI",
	}

	root.AddCommand(runCmd())
	root.AddCommand(promotionsCmd())
	root.AddCommand(subscriptionsCmd())
	root.AddCommand(cleanupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// scan commands
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run all four threshold scans once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				res := scan.RunAll(ctx, scan.NewDeps(pool.Pool), logger)
				for _, e := range res.Errors {
					logger.Error("scan error", "error", e)
				}
				if len(res.Errors) > 0 {
					return fmt.Errorf("%d of %d scans failed", len(res.Errors), len(res.Results))
				}
				return nil
			})
		},
	}
}

func promotionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promotions",
		Short: "Run only the promotion scans (ending soon, just ended)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKinds(
				scan.ScanPromotionsEndingSoon,
				scan.ScanPromotionsEnded,
			)
		},
	}
}

func subscriptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscriptions",
		Short: "Run only the subscription scans (ending soon, expired)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKinds(
				scan.ScanSubscriptionsEndingSoon,
				scan.ScanSubscriptionsExpired,
			)
		},
	}
}

// runKinds runs the given scan kinds sequentially against one clock reading.
func runKinds(kinds ...func(context.Context, *scan.Deps, time.Time, *slog.Logger) scan.Result) error {
	return runWithPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
		deps := scan.NewDeps(pool.Pool)
		now := time.Now().UTC()

		failed := 0
		for _, fn := range kinds {
			res := fn(ctx, deps, now, logger)
			logger.Info("Scan finished", "summary", res.Summary())
			if res.Error != "" {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scans failed", failed, len(kinds))
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// cleanup command
// --------------------------------------------------------------------------

func cleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge read notifications past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			return runWithPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				start := time.Now()
				count, err := maintenance.CleanupReadNotifications(ctx, pool.Pool, days)
				if err != nil {
					return err
				}
				logger.Info("Cleanup finished",
					"purged", count, "days", days,
					"duration", time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "Purge read notifications older than this many days")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runWithPool handles config loading, DB connection, and context cancellation.
func runWithPool(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
