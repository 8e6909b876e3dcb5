package scan

import (
	"context"
	"time"

	"github.com/vitrin-app/vitrin-backend/internal/notify"
)

// --------------------------------------------------------------------------
// Candidate rows
// --------------------------------------------------------------------------

// Promotion is a scan candidate row with its owner chain resolved. The chain
// (product → store → owner) comes from LEFT JOINs, so a dangling reference
// surfaces as nil fields rather than an error.
type Promotion struct {
	ID          int64
	EndsAt      time.Time
	ProductID   *int64
	ProductName *string
	StoreID     *int64
	StoreName   *string
	OwnerID     *int64
}

// Subscription is a scan candidate row from user_subscriptions.
type Subscription struct {
	ID     int64
	UserID int64
	EndsAt time.Time
}

// --------------------------------------------------------------------------
// Store interfaces — satisfied by the pg-backed stores in this package and
// by in-memory fakes in tests
// --------------------------------------------------------------------------

// PromotionStore reads promotion scan pages and applies deactivations.
type PromotionStore interface {
	// Page returns up to limit active promotions with id > cursor and
	// ends_at in [from, to), ordered by id.
	Page(ctx context.Context, cursor int64, from, to time.Time, limit int) ([]Promotion, error)

	// Deactivate clears a promotion's active flag.
	Deactivate(ctx context.Context, id int64) error
}

// SubscriptionStore reads subscription scan pages and applies expirations.
type SubscriptionStore interface {
	// EndingPage returns up to limit active subscriptions with id > cursor
	// and ends_at in [from, to), ordered by id.
	EndingPage(ctx context.Context, cursor int64, from, to time.Time, limit int) ([]Subscription, error)

	// ExpiredPage returns up to limit active subscriptions with id > cursor
	// and ends_at <= asOf, ordered by id. No lower bound: a row stays a
	// candidate until its status flips, so one that fails a batch is picked
	// up again on the next run.
	ExpiredPage(ctx context.Context, cursor int64, asOf time.Time, limit int) ([]Subscription, error)

	// ExpireBatch marks ids expired and inserts one notification per user id
	// in notifyUsers, all inside a single bounded transaction. Returns rows
	// updated and notifications inserted. On error nothing in the batch is
	// applied.
	ExpireBatch(ctx context.Context, ids []int64, notifyUsers []int64, n notify.Notification) (updated, inserted int64, err error)
}

// Subject identifies what a notification was about for dedup checks: the
// promotion for promotion kinds, the user for subscription kinds. Exactly
// one field is set.
type Subject struct {
	PromotionID int64
	UserID      int64
}

// Gate answers whether a matching notification already exists within a
// recency window. The check-then-write sequence is not atomic; the bulk
// insert's duplicate-skip is the backstop for the race.
type Gate interface {
	AlreadyNotified(ctx context.Context, s Subject, notifType string, window time.Duration) (bool, error)
}

// Writer persists notifications. *notify.Writer satisfies it.
type Writer interface {
	Create(ctx context.Context, n notify.Notification) error
	CreateForUsers(ctx context.Context, userIDs []int64, n notify.Notification) (int64, error)
}

// Deps bundles the stores a scan run needs.
type Deps struct {
	Promotions    PromotionStore
	Subscriptions SubscriptionStore
	Gate          Gate
	Writer        Writer
}
