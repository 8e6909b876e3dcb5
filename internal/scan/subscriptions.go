package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitrin-app/vitrin-backend/internal/notify"
)

// ScanSubscriptionsEndingSoon notifies users whose active subscription ends
// within the next 48 hours. Sub-batches fill as the pages stream in and
// flush as soon as they are full: the dedup gate runs per row, and each
// sub-batch's surviving users get their notifications through one bulk
// insert. However many rows match, at most one sub-batch plus one page is
// ever held in memory.
func ScanSubscriptionsEndingSoon(ctx context.Context, deps *Deps, now time.Time, logger *slog.Logger) Result {
	start := time.Now()
	res := Result{Kind: notify.TypeSubscriptionEndingSoon}

	title, message := notify.SubscriptionEndingSoon()
	tmpl := notify.Notification{Type: notify.TypeSubscriptionEndingSoon, Title: title, Message: message}

	flush := func(batch []Subscription) error {
		users := make([]int64, 0, len(batch))
		for _, s := range batch {
			dup, err := deps.Gate.AlreadyNotified(ctx, Subject{UserID: s.UserID}, notify.TypeSubscriptionEndingSoon, dedupSubEnding)
			if err != nil {
				logger.Warn("dedup check failed",
					"kind", notify.TypeSubscriptionEndingSoon, "user_id", s.UserID, "error", err)
				res.Failed++
				continue
			}
			if dup {
				res.Deduped++
				continue
			}
			users = append(users, s.UserID)
		}

		inserted, err := deps.Writer.CreateForUsers(ctx, users, tmpl)
		if err != nil {
			return fmt.Errorf("bulk insert: %w", err)
		}
		res.Notified += int(inserted)
		return nil
	}

	// The buffer tops out below one sub-batch plus one page; sized once,
	// reused for the whole walk.
	pending := make([]Subscription, 0, subBatchSize+pageSize)
	pages, err := walkPages(
		func(cursor int64) ([]Subscription, error) {
			return deps.Subscriptions.EndingPage(ctx, cursor, now, now.Add(subEndingWindow), pageSize)
		},
		func(s Subscription) int64 { return s.ID },
		func(page []Subscription) error {
			res.Scanned += len(page)
			pending = append(pending, page...)
			for len(pending) >= subBatchSize {
				if err := flush(pending[:subBatchSize]); err != nil {
					return err
				}
				pending = append(pending[:0], pending[subBatchSize:]...)
			}
			return nil
		},
	)
	res.Pages = pages
	if err == nil && len(pending) > 0 {
		err = flush(pending)
	}
	if err != nil {
		// A failed fetch or flush stops the walk; earlier flushes stand, and
		// the unwalked rest waits for the next run.
		res.Error = err.Error()
	}

	res.Duration = time.Since(start)
	return res
}

// ScanSubscriptionsExpired flips active subscriptions past their end date to
// expired and queues the matching notifications. Sub-batches fill as the
// pages stream in and flush as soon as they are full; each flush commits or
// rolls back as one bounded transaction, so memory stays at one sub-batch
// plus one page. Dedup reads run before the transaction opens, so only
// cleanly prepared notifications enter the commit — a row whose dedup check
// errors is left out of the batch entirely and, still active, is picked up
// again on the next run. Rows a flush flips sit behind the cursor already,
// so mid-walk flushes never disturb the pagination.
func ScanSubscriptionsExpired(ctx context.Context, deps *Deps, now time.Time, logger *slog.Logger) Result {
	start := time.Now()
	res := Result{Kind: notify.TypeSubscriptionExpired}

	title, message := notify.SubscriptionExpired()
	tmpl := notify.Notification{Type: notify.TypeSubscriptionExpired, Title: title, Message: message}

	flush := func(batch []Subscription) error {
		ids := make([]int64, 0, len(batch))
		users := make([]int64, 0, len(batch))
		for _, s := range batch {
			dup, err := deps.Gate.AlreadyNotified(ctx, Subject{UserID: s.UserID}, notify.TypeSubscriptionExpired, dedupSubExpired)
			if err != nil {
				logger.Warn("dedup check failed",
					"kind", notify.TypeSubscriptionExpired, "user_id", s.UserID, "error", err)
				res.Failed++
				continue
			}
			ids = append(ids, s.ID)
			if dup {
				res.Deduped++
				continue
			}
			users = append(users, s.UserID)
		}
		if len(ids) == 0 {
			return nil
		}

		updated, inserted, err := deps.Subscriptions.ExpireBatch(ctx, ids, notify.UniqueIDs(users), tmpl)
		if err != nil {
			// The whole sub-batch rolled back.
			return fmt.Errorf("expire batch of %d: %w", len(ids), err)
		}
		res.Transitions += int(updated)
		res.Notified += int(inserted)
		return nil
	}

	pending := make([]Subscription, 0, subBatchSize+pageSize)
	pages, err := walkPages(
		func(cursor int64) ([]Subscription, error) {
			return deps.Subscriptions.ExpiredPage(ctx, cursor, now, pageSize)
		},
		func(s Subscription) int64 { return s.ID },
		func(page []Subscription) error {
			res.Scanned += len(page)
			pending = append(pending, page...)
			for len(pending) >= subBatchSize {
				if err := flush(pending[:subBatchSize]); err != nil {
					return err
				}
				pending = append(pending[:0], pending[subBatchSize:]...)
			}
			return nil
		},
	)
	res.Pages = pages
	if err == nil && len(pending) > 0 {
		err = flush(pending)
	}
	if err != nil {
		// A failed fetch or flush stops the walk; earlier flushes stand, and
		// the unwalked rest stays active for the next run.
		res.Error = err.Error()
	}

	res.Duration = time.Since(start)
	return res
}
