package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// announceDedupWindow is how long a promotion announcement suppresses a
// repeat. Covers the listener and the admin endpoint firing for the same
// promotion.
const announceDedupWindow = 24 * time.Hour

var (
	// ErrPromotionNotFound is returned when the promotion id does not exist.
	ErrPromotionNotFound = errors.New("promotion not found")
	// ErrPromotionInactive is returned when the promotion is no longer active.
	ErrPromotionInactive = errors.New("promotion is not active")
)

// AnnounceResult reports what an announcement did.
type AnnounceResult struct {
	PromotionID int64  `json:"promotion_id"`
	StoreID     *int64 `json:"store_id,omitempty"`
	Followers   int    `json:"followers"`
	Notified    int64  `json:"notified"`
	Deduped     bool   `json:"deduped"`
}

// AnnouncePromotion notifies every follower of the promotion's store that a
// promotion went live. Both the promotion_created listener and the admin
// announce endpoint land here, so a manual announce after the listener (or
// the other way round) dedups instead of double-sending.
func AnnouncePromotion(ctx context.Context, pool *pgxpool.Pool, promotionID int64) (*AnnounceResult, error) {
	var (
		id          int64
		active      bool
		endsAt      time.Time
		productID   *int64
		productName *string
		storeID     *int64
		storeName   *string
		ownerID     *int64
	)
	err := pool.QueryRow(ctx, "promo_lookup", promotionID).Scan(
		&id, &active, &endsAt, &productID, &productName, &storeID, &storeName, &ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPromotionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up promotion %d: %w", promotionID, err)
	}
	if !active {
		return nil, ErrPromotionInactive
	}

	res := &AnnounceResult{PromotionID: id, StoreID: storeID}
	if storeID == nil {
		// Product or store missing — nobody to notify.
		return res, nil
	}

	var one int
	err = pool.QueryRow(ctx, "notif_exists_promo",
		id, TypePromotionAnnounced, time.Now().Add(-announceDedupWindow)).Scan(&one)
	if err == nil {
		res.Deduped = true
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("announce dedup check: %w", err)
	}

	followers, err := StoreFollowers(ctx, pool, *storeID)
	if err != nil {
		return nil, err
	}
	res.Followers = len(followers)
	if len(followers) == 0 {
		return res, nil
	}

	store, product := "A store you follow", "a product"
	if storeName != nil {
		store = *storeName
	}
	if productName != nil {
		product = *productName
	}
	title, message := PromotionAnnounced(store, product)

	inserted, err := NewWriter(pool).CreateForUsers(ctx, followers, Notification{
		Type:        TypePromotionAnnounced,
		Title:       title,
		Message:     message,
		PromotionID: &id,
		ProductID:   productID,
		StoreID:     storeID,
	})
	if err != nil {
		return nil, err
	}
	res.Notified = inserted
	return res, nil
}
