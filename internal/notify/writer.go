package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer persists notifications through the pool's prepared statements.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter creates a Writer backed by the connection pool.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// Create persists a single notification row.
func (w *Writer) Create(ctx context.Context, n Notification) error {
	_, err := w.pool.Exec(ctx, "notif_insert",
		n.UserID, n.Type, n.Title, n.Message, n.PromotionID, n.ProductID, n.StoreID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// CreateForUsers persists one notification per user in a single statement.
// The recipient list is deduplicated first; an empty list is a no-op that
// never touches the database. Returns the number of rows inserted.
func (w *Writer) CreateForUsers(ctx context.Context, userIDs []int64, n Notification) (int64, error) {
	ids := UniqueIDs(userIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := w.pool.Exec(ctx, "notif_insert_many",
		ids, n.Type, n.Title, n.Message, n.PromotionID, n.ProductID, n.StoreID)
	if err != nil {
		return 0, fmt.Errorf("bulk insert notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
