// Package notify defines in-app notification kinds and persists notification
// rows. A "notification" here is a durable row in the notifications table —
// delivery transports (push, email, SMS) are a separate concern and out of
// scope for this service.
//
// Writes go through prepared statements registered by internal/db. Bulk
// inserts use a single unnest statement with ON CONFLICT DO NOTHING so a
// concurrent duplicate insert degrades to a skip rather than an error.
package notify

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Notification kinds — values stored in notifications.type
// --------------------------------------------------------------------------

const (
	TypePromotionEndingSoon    = "PROMOTION_ENDING_SOON"
	TypePromotionEnded         = "PROMOTION_ENDED"
	TypePromotionAnnounced     = "PROMOTION_ANNOUNCED"
	TypeSubscriptionEndingSoon = "SUBSCRIPTION_ENDING_SOON"
	TypeSubscriptionExpired    = "SUBSCRIPTION_EXPIRED"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Notification is a single in-app notification row.
type Notification struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	PromotionID *int64    `json:"promotion_id,omitempty"`
	ProductID   *int64    `json:"product_id,omitempty"`
	StoreID     *int64    `json:"store_id,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// --------------------------------------------------------------------------
// Message builders
// --------------------------------------------------------------------------

// PromotionEndingSoon builds the title and message for a promotion that ends
// within the next 24 hours.
func PromotionEndingSoon(productName string) (title, message string) {
	return "Promotion ending soon",
		fmt.Sprintf("Your promotion for %s ends within 24 hours.", productName)
}

// PromotionEnded builds the title and message for a promotion that just
// ended. The maintenance sweep builds the same text in SQL — keep them in
// sync.
func PromotionEnded(productName string) (title, message string) {
	return "Promotion ended",
		fmt.Sprintf("Your promotion for %s has ended.", productName)
}

// PromotionAnnounced builds the title and message sent to store followers
// when a new promotion goes live.
func PromotionAnnounced(storeName, productName string) (title, message string) {
	return "New promotion",
		fmt.Sprintf("%s started a promotion on %s.", storeName, productName)
}

// SubscriptionEndingSoon builds the title and message for a subscription
// that ends within the next 48 hours.
func SubscriptionEndingSoon() (title, message string) {
	return "Subscription ending soon",
		"Your subscription ends within 48 hours. Renew now to keep your benefits."
}

// SubscriptionExpired builds the title and message for an expired
// subscription.
func SubscriptionExpired() (title, message string) {
	return "Subscription expired",
		"Your subscription has expired. Renew to restore your benefits."
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// UniqueIDs returns ids with duplicates removed, preserving first-seen order.
func UniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
