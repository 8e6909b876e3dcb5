// Package listener provides a Postgres LISTEN/NOTIFY consumer for real-time
// promotion announcements. It holds a dedicated pgx connection (not from
// the pool) listening on the `promotion_created` channel.
//
// When a promotion row is inserted, the Postgres trigger fires pg_notify and
// this consumer receives the event, resolves the store's followers, and
// writes their in-app notifications. The hourly scans cover time-based
// transitions; the listener exists so announcements land within seconds of
// the insert instead of at the next scan.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrin-app/vitrin-backend/internal/notify"
)

const (
	channel          = "promotion_created"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// PromotionEvent is the JSON payload from pg_notify('promotion_created', ...).
type PromotionEvent struct {
	PromotionID int64 `json:"promotion_id"`
	Timestamp   int64 `json:"ts"`
}

// Start opens a dedicated connection and listens on the promotion_created
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, pool *pgxpool.Pool, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, pool, logger)
		if ctx.Err() != nil {
			logger.Info("Promotion listener stopped (context cancelled)")
			return
		}

		logger.Error("Promotion listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, pool *pgxpool.Pool, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Promotion listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		var event PromotionEvent
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			logger.Warn("Failed to parse promotion event",
				"payload", notification.Payload, "error", err)
			continue
		}
		if event.PromotionID == 0 {
			logger.Warn("Promotion event without promotion_id",
				"payload", notification.Payload)
			continue
		}

		logger.Info("Promotion event received", "promotion_id", event.PromotionID)

		// Process asynchronously to avoid blocking the listener
		go handlePromotionCreated(ctx, pool, event, logger)
	}
}

// handlePromotionCreated announces the promotion to the store's followers.
// The announce path dedups, so an event replayed by Postgres or raced by the
// admin endpoint degrades to a no-op.
func handlePromotionCreated(ctx context.Context, pool *pgxpool.Pool, event PromotionEvent, logger *slog.Logger) {
	res, err := notify.AnnouncePromotion(ctx, pool, event.PromotionID)
	if errors.Is(err, notify.ErrPromotionNotFound) || errors.Is(err, notify.ErrPromotionInactive) {
		// Deleted or deactivated between the trigger and now.
		logger.Info("Promotion event skipped", "promotion_id", event.PromotionID, "reason", err)
		return
	}
	if err != nil {
		logger.Warn("Failed to announce promotion",
			"promotion_id", event.PromotionID, "error", err)
		return
	}

	switch {
	case res.Deduped:
		logger.Info("Promotion already announced", "promotion_id", event.PromotionID)
	case res.Notified == 0:
		logger.Info("Promotion announced to no one",
			"promotion_id", event.PromotionID, "followers", res.Followers)
	default:
		logger.Info("Promotion announced",
			"promotion_id", event.PromotionID,
			"followers", res.Followers,
			"notified", res.Notified)
	}
}
