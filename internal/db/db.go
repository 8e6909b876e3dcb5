// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrin-app/vitrin-backend/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the API and scan
// layers use. Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Scans: promotion pages. Window bounds are supplied by the caller so
		// the same statement serves the ending-soon and just-ended passes.
		// The owner chain (product → store → owner) is resolved here with
		// LEFT JOINs; a broken chain surfaces as NULL owner_id.
		"promo_scan_page": `
			SELECT p.id, p.ends_at, pr.id, pr.name, s.id, s.name, s.owner_id
			FROM promotions p
			LEFT JOIN products pr ON pr.id = p.product_id
			LEFT JOIN stores s ON s.id = pr.store_id
			WHERE p.id > $1 AND p.active = true AND p.ends_at >= $2 AND p.ends_at < $3
			ORDER BY p.id
			LIMIT $4`,

		// Scans: subscription pages
		"sub_scan_page": `
			SELECT id, user_id, ends_at
			FROM user_subscriptions
			WHERE id > $1 AND status = 'active' AND ends_at >= $2 AND ends_at < $3
			ORDER BY id
			LIMIT $4`,
		"sub_expired_page": `
			SELECT id, user_id, ends_at
			FROM user_subscriptions
			WHERE id > $1 AND status = 'active' AND ends_at <= $2
			ORDER BY id
			LIMIT $3`,

		// Dedup gate: recency-window existence checks
		"notif_exists_promo": "SELECT 1 FROM notifications WHERE promotion_id = $1 AND type = $2 AND created_at > $3 LIMIT 1",
		"notif_exists_user":  "SELECT 1 FROM notifications WHERE user_id = $1 AND type = $2 AND created_at > $3 LIMIT 1",

		// Notification writes
		"notif_insert": `
			INSERT INTO notifications (user_id, type, title, message, promotion_id, product_id, store_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT DO NOTHING`,
		"notif_insert_many": `
			INSERT INTO notifications (user_id, type, title, message, promotion_id, product_id, store_id)
			SELECT uid, $2, $3, $4, $5, $6, $7
			FROM unnest($1::bigint[]) AS uid
			ON CONFLICT DO NOTHING`,

		// State transitions
		"promo_deactivate": "UPDATE promotions SET active = false, updated_at = NOW() WHERE id = $1",
		"subs_expire":      "UPDATE user_subscriptions SET status = 'expired', updated_at = NOW() WHERE id = ANY($1::bigint[]) AND status = 'active'",

		// Announce: promotion lookup + bookmark followers
		"promo_lookup": `
			SELECT p.id, p.active, p.ends_at, pr.id, pr.name, s.id, s.name, s.owner_id
			FROM promotions p
			LEFT JOIN products pr ON pr.id = p.product_id
			LEFT JOIN stores s ON s.id = pr.store_id
			WHERE p.id = $1`,
		"store_followers": "SELECT DISTINCT user_id FROM bookmarks WHERE store_id = $1",

		// In-app feed
		"notif_feed": `
			SELECT id, user_id, type, title, message, promotion_id, product_id, store_id, read, created_at
			FROM notifications
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3`,
		"notif_unread_count": "SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false",
		"notif_mark_read":    "UPDATE notifications SET read = true, read_at = NOW() WHERE id = $1 AND read = false RETURNING user_id",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
