package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrin-app/vitrin-backend/internal/notify"
)

// NewDeps returns Deps backed by the pool's prepared statements.
func NewDeps(pool *pgxpool.Pool) *Deps {
	return &Deps{
		Promotions:    &pgPromotions{pool: pool},
		Subscriptions: &pgSubscriptions{pool: pool},
		Gate:          &pgGate{pool: pool},
		Writer:        notify.NewWriter(pool),
	}
}

// --------------------------------------------------------------------------
// Promotions
// --------------------------------------------------------------------------

type pgPromotions struct {
	pool *pgxpool.Pool
}

func (s *pgPromotions) Page(ctx context.Context, cursor int64, from, to time.Time, limit int) ([]Promotion, error) {
	rows, err := s.pool.Query(ctx, "promo_scan_page", cursor, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("promotion page: %w", err)
	}
	defer rows.Close()

	var out []Promotion
	for rows.Next() {
		var p Promotion
		if err := rows.Scan(&p.ID, &p.EndsAt, &p.ProductID, &p.ProductName, &p.StoreID, &p.StoreName, &p.OwnerID); err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *pgPromotions) Deactivate(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, "promo_deactivate", id); err != nil {
		return fmt.Errorf("deactivate promotion %d: %w", id, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

type pgSubscriptions struct {
	pool *pgxpool.Pool
}

func (s *pgSubscriptions) EndingPage(ctx context.Context, cursor int64, from, to time.Time, limit int) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, "sub_scan_page", cursor, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("subscription page: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *pgSubscriptions) ExpiredPage(ctx context.Context, cursor int64, asOf time.Time, limit int) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, "sub_expired_page", cursor, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("expired subscription page: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]Subscription, error) {
	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.EndsAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ExpireBatch runs the status update and the bulk notification insert in one
// transaction with a hard deadline. The status update is set-based and
// guarded by status = 'active', so overlapping runs cannot double-apply it.
func (s *pgSubscriptions) ExpireBatch(ctx context.Context, ids []int64, notifyUsers []int64, n notify.Notification) (int64, int64, error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}

	txCtx, cancel := context.WithTimeout(ctx, expireTxTimeout)
	defer cancel()

	tx, err := s.pool.Begin(txCtx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin expire tx: %w", err)
	}
	defer tx.Rollback(context.Background())

	tag, err := tx.Exec(txCtx, "subs_expire", ids)
	if err != nil {
		return 0, 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	updated := tag.RowsAffected()

	var inserted int64
	if len(notifyUsers) > 0 {
		tag, err := tx.Exec(txCtx, "notif_insert_many",
			notifyUsers, n.Type, n.Title, n.Message, n.PromotionID, n.ProductID, n.StoreID)
		if err != nil {
			return 0, 0, fmt.Errorf("insert expiry notifications: %w", err)
		}
		inserted = tag.RowsAffected()
	}

	if err := tx.Commit(txCtx); err != nil {
		return 0, 0, fmt.Errorf("commit expire tx: %w", err)
	}
	return updated, inserted, nil
}

// --------------------------------------------------------------------------
// Dedup gate
// --------------------------------------------------------------------------

type pgGate struct {
	pool *pgxpool.Pool
}

// AlreadyNotified reports whether a matching notification exists newer than
// the window. Promotion subjects check by promotion id, subscription
// subjects by user id.
func (g *pgGate) AlreadyNotified(ctx context.Context, s Subject, notifType string, window time.Duration) (bool, error) {
	since := time.Now().Add(-window)

	stmt := "notif_exists_user"
	key := s.UserID
	if s.PromotionID != 0 {
		stmt = "notif_exists_promo"
		key = s.PromotionID
	}

	var one int
	err := g.pool.QueryRow(ctx, stmt, key, notifType, since).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return true, nil
}
