// Package scan implements the hourly threshold scans that drive time-based
// notifications: promotions about to end or just ended, subscriptions about
// to end or already past their end date.
//
// Each scan kind walks its candidate rows in ascending-id pages, checks the
// dedup gate per row, and writes notifications — singly for promotion kinds,
// in bulk sub-batches for subscription kinds. Subscription expiry also flips
// row state inside a bounded transaction; promotion expiry deactivates the
// promotion with an independent write. A scheduler fans the four kinds out
// concurrently once per hour; a failure in one kind never stops the others.
package scan

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// pageSize is the scanner's fetch size. Pages are keyed by ascending id;
	// an empty or short page ends the walk.
	pageSize = 50

	// subBatchSize caps each subscription sub-batch; batches flush as soon
	// as they fill, so this also bounds the scan's memory.
	subBatchSize = 100

	// expireTxTimeout bounds each subscription-expiry transaction.
	expireTxTimeout = 30 * time.Second

	// scanInterval is the scheduler period; runs align to the top of the hour.
	scanInterval = time.Hour
)

// Threshold windows per scan kind.
const (
	promoEndingWindow = 24 * time.Hour // promotions ending within 24h
	promoEndedWindow  = time.Hour      // promotions that ended within the last hour
	subEndingWindow   = 48 * time.Hour // subscriptions ending within 48h
)

// Dedup windows per notification kind: how recent a matching notification
// may be before the row is considered already handled.
const (
	dedupPromoEnding = 24 * time.Hour
	dedupPromoEnded  = time.Hour
	dedupSubEnding   = 48 * time.Hour
	dedupSubExpired  = time.Hour
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Result tracks the outcome of one scan kind.
type Result struct {
	Kind        string
	Pages       int
	Scanned     int
	Notified    int
	Deduped     int
	Skipped     int
	Failed      int
	Transitions int // state transitions applied (deactivations, expirations)
	Duration    time.Duration
	Error       string
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	status := "ok"
	if r.Error != "" {
		status = "FAILED"
	}
	return fmt.Sprintf("kind=%s pages=%d scanned=%d notified=%d deduped=%d skipped=%d failed=%d transitions=%d status=%s dur=%s",
		r.Kind, r.Pages, r.Scanned, r.Notified, r.Deduped, r.Skipped,
		r.Failed, r.Transitions, status, r.Duration.Round(time.Millisecond))
}

// RunResult aggregates one full scheduler run across all scan kinds.
type RunResult struct {
	Scanned     int
	Notified    int
	Deduped     int
	Skipped     int
	Failed      int
	Transitions int
	Duration    time.Duration
	Errors      []string
	Results     []Result
}

// Summary returns a human-readable summary.
func (r *RunResult) Summary() string {
	return fmt.Sprintf("kinds=%d scanned=%d notified=%d deduped=%d skipped=%d failed=%d transitions=%d errors=%d dur=%s",
		len(r.Results), r.Scanned, r.Notified, r.Deduped, r.Skipped,
		r.Failed, r.Transitions, len(r.Errors), r.Duration.Round(time.Millisecond))
}
