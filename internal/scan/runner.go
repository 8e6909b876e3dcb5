package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RunAll executes all four scan kinds concurrently against the same clock
// reading and collects their results. A failed kind lands in Errors and
// never interrupts the others. Shared by the scheduler, the manual trigger
// endpoint, and the CLI, so all three behave identically.
func RunAll(ctx context.Context, deps *Deps, logger *slog.Logger) RunResult {
	start := time.Now()
	now := start.UTC()

	scans := []func(context.Context, *Deps, time.Time, *slog.Logger) Result{
		ScanPromotionsEndingSoon,
		ScanPromotionsEnded,
		ScanSubscriptionsEndingSoon,
		ScanSubscriptionsExpired,
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out RunResult
	)
	for _, fn := range scans {
		wg.Add(1)
		go func(fn func(context.Context, *Deps, time.Time, *slog.Logger) Result) {
			defer wg.Done()
			r := fn(ctx, deps, now, logger)

			mu.Lock()
			out.Results = append(out.Results, r)
			out.Scanned += r.Scanned
			out.Notified += r.Notified
			out.Deduped += r.Deduped
			out.Skipped += r.Skipped
			out.Failed += r.Failed
			out.Transitions += r.Transitions
			if r.Error != "" {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", r.Kind, r.Error))
			}
			mu.Unlock()

			logger.Info("Scan finished", "summary", r.Summary())
		}(fn)
	}
	wg.Wait()

	out.Duration = time.Since(start)
	logger.Info("Scan run complete", "summary", out.Summary())
	return out
}

// StartScheduler triggers a full scan run every hour, aligned to the top of
// the hour. Blocks until ctx is cancelled. Intended to be called with `go`.
//
// Runs execute inline, so a run that outlasts the hour skips any boundary it
// covers rather than overlapping it. Overlap only comes from the other
// triggers — the manual endpoint, the CLI, a second process — and the dedup
// gate plus the bulk insert's duplicate-skip make that harmless.
func StartScheduler(ctx context.Context, deps *Deps, logger *slog.Logger) {
	logger.Info("Scan scheduler started", "interval", scanInterval)

	for {
		now := time.Now()
		next := now.Truncate(scanInterval).Add(scanInterval)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-timer.C:
			RunAll(ctx, deps, logger)
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Scan scheduler stopped")
			return
		}
	}
}
