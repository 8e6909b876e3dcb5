// Package maintenance runs periodic background tasks as Go tickers.
// Replaces pg_cron — all scheduled work is driven from Go since it is
// already a persistent, long-running service (required for LISTEN/NOTIFY).
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CleanupInterval time.Duration // Purge old read notifications
	SweepInterval   time.Duration // Deactivate promotions the hourly scan missed
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval: 30 * time.Minute,
		SweepInterval:   15 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, pool *pgxpool.Pool, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"cleanup", cfg.CleanupInterval,
		"sweep", cfg.SweepInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Cleanup: remove read notifications past the retention window
	if cfg.CleanupInterval > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "cleanup", func() { cleanup(ctx, pool, logger) })
	}

	// Sweep: catch promotions whose end slipped past the hourly scan window
	if cfg.SweepInterval > 0 {
		t := time.NewTicker(cfg.SweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "sweep", func() { sweepStalePromotions(ctx, pool, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, name string, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// retentionDays is how long read notifications are kept. Unread rows are
// kept until the user reads them.
const retentionDays = 90

// cleanup removes read notifications past the retention window.
func cleanup(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	count, err := CleanupReadNotifications(ctx, pool, retentionDays)
	if err != nil {
		logger.Warn("Cleanup: failed to purge read notifications", "error", err)
	} else if count > 0 {
		logger.Info("Cleanup: purged read notifications", "count", count)
	}
}

// CleanupReadNotifications removes read notifications older than the given
// number of days and returns how many rows were removed. Shared by the
// cleanup ticker and the CLI.
func CleanupReadNotifications(ctx context.Context, pool *pgxpool.Pool, days int) (int64, error) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE read = true
		  AND created_at < NOW() - make_interval(days => $1)`, days)
	if err != nil {
		return 0, fmt.Errorf("purge read notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// sweepStalePromotions backstops the hourly scan. A promotion whose end date
// slipped past the scan's one-hour window (service downtime, repeated scan
// failures) still gets its owner notified and its row deactivated, just
// late. The notification insert runs before the deactivation: once active
// flips to false the row is invisible to the insert's WHERE clause.
func sweepStalePromotions(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	// Message text matches notify.PromotionEnded — keep them in sync.
	// The NOT EXISTS check is unbounded on purpose: a promotion ends once,
	// and a bounded window would re-notify when only the deactivation had
	// failed on an earlier pass.
	tag, err := pool.Exec(ctx, `
		INSERT INTO notifications (user_id, type, title, message, promotion_id, product_id, store_id)
		SELECT
			s.owner_id,
			'PROMOTION_ENDED',
			'Promotion ended',
			'Your promotion for ' || pr.name || ' has ended.',
			p.id,
			pr.id,
			s.id
		FROM promotions p
		JOIN products pr ON pr.id = p.product_id
		JOIN stores s ON s.id = pr.store_id
		WHERE p.active = true
		  AND p.ends_at < NOW() - INTERVAL '1 hour'
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.promotion_id = p.id
			  AND n.type = 'PROMOTION_ENDED'
		  )
		ON CONFLICT DO NOTHING`)
	if err != nil {
		logger.Warn("Sweep: failed to create missed notifications", "error", err)
		return
	}
	if tag.RowsAffected() > 0 {
		logger.Info("Sweep: created missed notifications", "count", tag.RowsAffected())
	}

	// Deactivate everything past the window, broken owner chains included.
	tag, err = pool.Exec(ctx, `
		UPDATE promotions
		SET active = false, updated_at = NOW()
		WHERE active = true
		  AND ends_at < NOW() - INTERVAL '1 hour'`)
	if err != nil {
		logger.Warn("Sweep: failed to deactivate stale promotions", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("Sweep: deactivated stale promotions", "count", tag.RowsAffected())
	}
}
