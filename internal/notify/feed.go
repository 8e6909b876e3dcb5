package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListForUser returns a user's notifications, newest first.
func ListForUser(ctx context.Context, pool *pgxpool.Pool, userID int64, limit, offset int) ([]Notification, error) {
	rows, err := pool.Query(ctx, "notif_feed", userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.PromotionID, &n.ProductID, &n.StoreID, &n.Read, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadCount returns the number of unread notifications for a user.
func UnreadCount(ctx context.Context, pool *pgxpool.Pool, userID int64) (int64, error) {
	var n int64
	if err := pool.QueryRow(ctx, "notif_unread_count", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// MarkRead flags a notification as read and returns the owning user's id so
// callers can invalidate that user's cached feed. ok is false when the row
// does not exist or was already read.
func MarkRead(ctx context.Context, pool *pgxpool.Pool, id int64) (userID int64, ok bool, err error) {
	err = pool.QueryRow(ctx, "notif_mark_read", id).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mark read: %w", err)
	}
	return userID, true, nil
}

// StoreFollowers returns the ids of users who bookmarked a store.
func StoreFollowers(ctx context.Context, pool *pgxpool.Pool, storeID int64) ([]int64, error) {
	rows, err := pool.Query(ctx, "store_followers", storeID)
	if err != nil {
		return nil, fmt.Errorf("store followers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
