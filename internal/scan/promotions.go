package scan

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitrin-app/vitrin-backend/internal/notify"
)

// ScanPromotionsEndingSoon notifies store owners about active promotions
// ending within the next 24 hours. Read-only apart from the notification
// insert; the promotion itself is untouched.
func ScanPromotionsEndingSoon(ctx context.Context, deps *Deps, now time.Time, logger *slog.Logger) Result {
	start := time.Now()
	res := Result{Kind: notify.TypePromotionEndingSoon}

	pages, err := walkPages(
		func(cursor int64) ([]Promotion, error) {
			return deps.Promotions.Page(ctx, cursor, now, now.Add(promoEndingWindow), pageSize)
		},
		func(p Promotion) int64 { return p.ID },
		func(page []Promotion) error {
			for _, p := range page {
				res.Scanned++
				if p.OwnerID == nil {
					// Dangling product/store chain — nobody to notify.
					res.Skipped++
					continue
				}
				dup, err := deps.Gate.AlreadyNotified(ctx, Subject{PromotionID: p.ID}, notify.TypePromotionEndingSoon, dedupPromoEnding)
				if err != nil {
					logger.Warn("dedup check failed",
						"kind", notify.TypePromotionEndingSoon, "promotion_id", p.ID, "error", err)
					res.Failed++
					continue
				}
				if dup {
					res.Deduped++
					continue
				}
				if err := deps.Writer.Create(ctx, promotionNotification(p, notify.TypePromotionEndingSoon)); err != nil {
					logger.Warn("notification insert failed",
						"kind", notify.TypePromotionEndingSoon, "promotion_id", p.ID, "error", err)
					res.Failed++
					continue
				}
				res.Notified++
			}
			return nil
		},
	)
	res.Pages = pages
	if err != nil {
		res.Error = err.Error()
	}
	res.Duration = time.Since(start)
	return res
}

// ScanPromotionsEnded notifies owners of promotions that ended within the
// last hour, then deactivates each one. The notify and deactivate writes are
// deliberately independent — a crash between them leaves an active expired
// promotion, which the maintenance sweep later picks up.
func ScanPromotionsEnded(ctx context.Context, deps *Deps, now time.Time, logger *slog.Logger) Result {
	start := time.Now()
	res := Result{Kind: notify.TypePromotionEnded}

	pages, err := walkPages(
		func(cursor int64) ([]Promotion, error) {
			return deps.Promotions.Page(ctx, cursor, now.Add(-promoEndedWindow), now, pageSize)
		},
		func(p Promotion) int64 { return p.ID },
		func(page []Promotion) error {
			for _, p := range page {
				res.Scanned++

				// The gate only guards the notification. Deduped and
				// ownerless rows still ended and must leave the active set;
				// only rows that error stay active for a later retry.
				failed := false
				if p.OwnerID == nil {
					res.Skipped++
				} else if dup, err := deps.Gate.AlreadyNotified(ctx, Subject{PromotionID: p.ID}, notify.TypePromotionEnded, dedupPromoEnded); err != nil {
					logger.Warn("dedup check failed",
						"kind", notify.TypePromotionEnded, "promotion_id", p.ID, "error", err)
					res.Failed++
					failed = true
				} else if dup {
					res.Deduped++
				} else if err := deps.Writer.Create(ctx, promotionNotification(p, notify.TypePromotionEnded)); err != nil {
					logger.Warn("notification insert failed",
						"kind", notify.TypePromotionEnded, "promotion_id", p.ID, "error", err)
					res.Failed++
					failed = true
				} else {
					res.Notified++
				}
				if failed {
					continue
				}

				if err := deps.Promotions.Deactivate(ctx, p.ID); err != nil {
					logger.Warn("deactivate failed", "promotion_id", p.ID, "error", err)
					res.Failed++
					continue
				}
				res.Transitions++
			}
			return nil
		},
	)
	res.Pages = pages
	if err != nil {
		res.Error = err.Error()
	}
	res.Duration = time.Since(start)
	return res
}

// promotionNotification builds the owner-targeted notification for a
// promotion row. The caller has already checked OwnerID.
func promotionNotification(p Promotion, notifType string) notify.Notification {
	name := ""
	if p.ProductName != nil {
		name = *p.ProductName
	}
	var title, message string
	if notifType == notify.TypePromotionEnded {
		title, message = notify.PromotionEnded(name)
	} else {
		title, message = notify.PromotionEndingSoon(name)
	}
	return notify.Notification{
		UserID:      *p.OwnerID,
		Type:        notifType,
		Title:       title,
		Message:     message,
		PromotionID: &p.ID,
		ProductID:   p.ProductID,
		StoreID:     p.StoreID,
	}
}
