package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrin-app/vitrin-backend/internal/notify"
)

func TestScanSubscriptionsEndingSoonBatchesBulkWrites(t *testing.T) {
	now := time.Now().UTC()
	subs := &fakeSubscriptions{rows: subRows(250, 1, now.Add(24*time.Hour))}
	gate := &fakeGate{}
	w := &fakeWriter{}
	deps := &Deps{Promotions: &fakePromotions{}, Subscriptions: subs, Gate: gate, Writer: w}

	res := ScanSubscriptionsEndingSoon(context.Background(), deps, now, discardLogger())

	assert.Empty(t, res.Error)
	assert.Equal(t, 5, res.Pages)
	assert.Equal(t, 250, res.Scanned)
	assert.Equal(t, 250, res.Notified)
	// 250 rows → sub-batches of 100 flushed as they fill, one bulk write
	// each, remainder after the last page.
	require.Len(t, w.bulkCalls, 3)
	assert.Len(t, w.bulkCalls[0], 100)
	assert.Len(t, w.bulkCalls[1], 100)
	assert.Len(t, w.bulkCalls[2], 50)
	assert.Equal(t, dedupSubEnding, gate.windows[notify.TypeSubscriptionEndingSoon])
}

func TestScanSubscriptionsEndingSoonCollapsesDuplicateUsers(t *testing.T) {
	now := time.Now().UTC()
	rows := subRows(10, 1, now.Add(time.Hour))
	rows[1].UserID = rows[0].UserID // two subscriptions, one user
	subs := &fakeSubscriptions{rows: rows}
	w := &fakeWriter{}
	deps := &Deps{Promotions: &fakePromotions{}, Subscriptions: subs, Gate: &fakeGate{}, Writer: w}

	res := ScanSubscriptionsEndingSoon(context.Background(), deps, now, discardLogger())

	assert.Equal(t, 10, res.Scanned)
	assert.Equal(t, 9, res.Notified)
	require.Len(t, w.bulkCalls, 1)
	assert.Len(t, w.bulkCalls[0], 9)
}

func TestScanSubscriptionsEndingSoonDedupAndGateErrors(t *testing.T) {
	now := time.Now().UTC()
	subs := &fakeSubscriptions{rows: subRows(10, 1, now.Add(time.Hour))}
	gate := &fakeGate{
		dup:    map[string]bool{gateKey(100001, notify.TypeSubscriptionEndingSoon): true},
		errFor: map[int64]error{100002: errors.New("timeout")},
	}
	w := &fakeWriter{}
	deps := &Deps{Promotions: &fakePromotions{}, Subscriptions: subs, Gate: gate, Writer: w}

	res := ScanSubscriptionsEndingSoon(context.Background(), deps, now, discardLogger())

	assert.Equal(t, 1, res.Deduped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 8, res.Notified)
	require.Len(t, w.bulkCalls, 1)
	assert.NotContains(t, w.bulkCalls[0], int64(100001))
	assert.NotContains(t, w.bulkCalls[0], int64(100002))
}

func TestScanSubscriptionsEndingSoonBulkErrorStopsScan(t *testing.T) {
	now := time.Now().UTC()
	subs := &fakeSubscriptions{rows: subRows(250, 1, now.Add(time.Hour))}
	w := &fakeWriter{bulkErr: errors.New("bulk insert failed")}
	deps := &Deps{Promotions: &fakePromotions{}, Subscriptions: subs, Gate: &fakeGate{}, Writer: w}

	res := ScanSubscriptionsEndingSoon(context.Background(), deps, now, discardLogger())

	assert.NotEmpty(t, res.Error)
	assert.Zero(t, res.Notified)
	assert.Empty(t, w.bulkCalls)
	// The first sub-batch fills after two pages and its flush fails, so the
	// walk stops there instead of fetching the remaining 150 rows.
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 100, res.Scanned)
}

func TestScanSubscriptionsExpiredAppliesBatchesAtomically(t *testing.T) {
	now := time.Now().UTC()
	subs := &fakeSubscriptions{rows: subRows(230, 1, now.Add(-time.Hour))}
	gate := &fakeGate{
		// Row 5's user was already notified, row 7's dedup check errors.
		dup:    map[string]bool{gateKey(100005, notify.TypeSubscriptionExpired): true},
		errFor: map[int64]error{100007: errors.New("timeout")},
	}
	deps := &Deps{Promotions: &fakePromotions{}, Subscriptions: subs, Gate: gate, Writer: &fakeWriter{}}

	res := ScanSubscriptionsExpired(context.Background(), deps, now, discardLogger())

	assert.Empty(t, res.Error)
	assert.Equal(t, 230, res.Scanned)
	require.Len(t, subs.expireCalls, 3)

	first := subs.expireCalls[0]
	// The errored row stays active for the next run; the deduped row's
	// status still flips, only its notification is dropped.
	assert.Len(t, first.ids, 99)
	assert.Len(t, first.users, 98)
	assert.Contains(t, first.ids, int64(5))
	assert.NotContains(t, first.ids, int64(7))
	assert.NotContains(t, first.users, int64(100005))
	assert.NotContains(t, first.users, int64(100007))

	assert.Len(t, subs.expireCalls[1].ids, 100)
	assert.Len(t, subs.expireCalls[2].ids, 30)

	assert.Equal(t, 229, res.Transitions)
	assert.Equal(t, 228, res.Notified)
	assert.Equal(t, 1, res.Deduped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, dedupSubExpired, gate.windows[notify.TypeSubscriptionExpired])

	// Batches flush mid-walk, and the rows they flip sit behind the cursor,
	// so the page sequence is the same as if nothing had changed.
	assert.Equal(t, 5, res.Pages)
	assert.Equal(t, []int64{0, 50, 100, 150, 200}, subs.pageCursors)
}

func TestScanSubscriptionsExpiredTxFailureKeepsPriorBatches(t *testing.T) {
	now := time.Now().UTC()
	subs := &fakeSubscriptions{rows: subRows(230, 1, now.Add(-time.Hour)), expireErrAt: 2}
	deps := &Deps{Promotions: &fakePromotions{}, Subscriptions: subs, Gate: &fakeGate{}, Writer: &fakeWriter{}}

	res := ScanSubscriptionsExpired(context.Background(), deps, now, discardLogger())

	assert.NotEmpty(t, res.Error)
	// The first batch committed; the second rolled back and stopped the
	// walk, leaving the last page unfetched for the next run.
	require.Len(t, subs.expireCalls, 1)
	assert.Equal(t, 100, res.Transitions)
	assert.Equal(t, 100, res.Notified)
	assert.Equal(t, 4, res.Pages)
	assert.Equal(t, 200, res.Scanned)
}

func TestScanSubscriptionsExpiredEmptyScanIsNoop(t *testing.T) {
	now := time.Now().UTC()
	subs := &fakeSubscriptions{}
	deps := &Deps{Promotions: &fakePromotions{}, Subscriptions: subs, Gate: &fakeGate{}, Writer: &fakeWriter{}}

	res := ScanSubscriptionsExpired(context.Background(), deps, now, discardLogger())

	assert.Empty(t, res.Error)
	assert.Zero(t, res.Pages)
	assert.Zero(t, res.Scanned)
	assert.Empty(t, subs.expireCalls)
}
