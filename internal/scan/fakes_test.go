package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vitrin-app/vitrin-backend/internal/notify"
)

// In-memory stores shared by the scan tests. All of them are safe for
// concurrent use because RunAll exercises them from four goroutines.

// --------------------------------------------------------------------------
// Promotions
// --------------------------------------------------------------------------

type fakePromotions struct {
	mu            sync.Mutex
	rows          []Promotion // sorted by ID
	pageCursors   []int64
	pageErrAt     int // 1-based fetch call that fails; 0 = never
	inactive      map[int64]bool
	deactivateErr map[int64]error
}

func (f *fakePromotions) Page(ctx context.Context, cursor int64, from, to time.Time, limit int) ([]Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCursors = append(f.pageCursors, cursor)
	if f.pageErrAt > 0 && len(f.pageCursors) == f.pageErrAt {
		return nil, errors.New("connection reset")
	}
	var out []Promotion
	for _, p := range f.rows {
		if p.ID <= cursor || f.inactive[p.ID] {
			continue
		}
		if p.EndsAt.Before(from) || !p.EndsAt.Before(to) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePromotions) Deactivate(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deactivateErr[id]; err != nil {
		return err
	}
	if f.inactive == nil {
		f.inactive = make(map[int64]bool)
	}
	f.inactive[id] = true
	return nil
}

func (f *fakePromotions) cursors() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.pageCursors)
}

func (f *fakePromotions) deactivated() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.inactive))
	for id := range f.inactive {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// brokenPromotionStore fails every page fetch.
type brokenPromotionStore struct{}

func (brokenPromotionStore) Page(context.Context, int64, time.Time, time.Time, int) ([]Promotion, error) {
	return nil, errors.New("promotions table unavailable")
}

func (brokenPromotionStore) Deactivate(context.Context, int64) error { return nil }

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

type expireCall struct {
	ids   []int64
	users []int64
}

type fakeSubscriptions struct {
	mu          sync.Mutex
	rows        []Subscription // sorted by ID
	pageCursors []int64
	pageErrAt   int // 1-based fetch call that fails; 0 = never
	expired     map[int64]bool
	expireCalls []expireCall
	expireErrAt int            // 1-based ExpireBatch call that fails; 0 = never
	backend     *memoryBackend // when set, ExpireBatch records its inserts here
}

func (f *fakeSubscriptions) EndingPage(ctx context.Context, cursor int64, from, to time.Time, limit int) ([]Subscription, error) {
	return f.page(cursor, limit, func(s Subscription) bool {
		return !s.EndsAt.Before(from) && s.EndsAt.Before(to)
	})
}

func (f *fakeSubscriptions) ExpiredPage(ctx context.Context, cursor int64, asOf time.Time, limit int) ([]Subscription, error) {
	return f.page(cursor, limit, func(s Subscription) bool {
		return !s.EndsAt.After(asOf)
	})
}

func (f *fakeSubscriptions) page(cursor int64, limit int, match func(Subscription) bool) ([]Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCursors = append(f.pageCursors, cursor)
	if f.pageErrAt > 0 && len(f.pageCursors) == f.pageErrAt {
		return nil, errors.New("connection reset")
	}
	var out []Subscription
	for _, s := range f.rows {
		if s.ID <= cursor || f.expired[s.ID] || !match(s) {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSubscriptions) ExpireBatch(ctx context.Context, ids, users []int64, n notify.Notification) (int64, int64, error) {
	f.mu.Lock()
	if f.expireErrAt > 0 && len(f.expireCalls)+1 == f.expireErrAt {
		f.mu.Unlock()
		return 0, 0, errors.New("deadlock detected")
	}
	f.expireCalls = append(f.expireCalls, expireCall{ids: slices.Clone(ids), users: slices.Clone(users)})
	if f.expired == nil {
		f.expired = make(map[int64]bool)
	}
	for _, id := range ids {
		f.expired[id] = true
	}
	backend := f.backend
	f.mu.Unlock()

	inserted := int64(len(users))
	if backend != nil {
		var err error
		inserted, err = backend.CreateForUsers(ctx, users, n)
		if err != nil {
			return 0, 0, err
		}
	}
	return int64(len(ids)), inserted, nil
}

// --------------------------------------------------------------------------
// Gate and writer
// --------------------------------------------------------------------------

func gateKey(subjectID int64, notifType string) string {
	return fmt.Sprintf("%d|%s", subjectID, notifType)
}

type fakeGate struct {
	mu      sync.Mutex
	dup     map[string]bool          // gateKey(subject id, type) → already notified
	errFor  map[int64]error          // subject id → error
	windows map[string]time.Duration // last window seen per type
}

func (g *fakeGate) AlreadyNotified(ctx context.Context, s Subject, notifType string, window time.Duration) (bool, error) {
	key := s.PromotionID
	if key == 0 {
		key = s.UserID
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.windows == nil {
		g.windows = make(map[string]time.Duration)
	}
	g.windows[notifType] = window
	if err := g.errFor[key]; err != nil {
		return false, err
	}
	return g.dup[gateKey(key, notifType)], nil
}

type fakeWriter struct {
	mu           sync.Mutex
	created      []notify.Notification
	bulkCalls    [][]int64
	createErrFor map[int64]error // promotion id → error
	bulkErr      error
}

func (w *fakeWriter) Create(ctx context.Context, n notify.Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n.PromotionID != nil {
		if err := w.createErrFor[*n.PromotionID]; err != nil {
			return err
		}
	}
	w.created = append(w.created, n)
	return nil
}

func (w *fakeWriter) CreateForUsers(ctx context.Context, userIDs []int64, n notify.Notification) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bulkErr != nil {
		return 0, w.bulkErr
	}
	unique := notify.UniqueIDs(userIDs)
	if len(unique) == 0 {
		return 0, nil
	}
	w.bulkCalls = append(w.bulkCalls, slices.Clone(unique))
	for _, u := range unique {
		row := n
		row.UserID = u
		w.created = append(w.created, row)
	}
	return int64(len(unique)), nil
}

// memoryBackend implements Gate and Writer over one in-memory notification
// list, so dedup checks observe earlier writes the way the real gate reads
// the notifications table. Windows are ignored — test runs span seconds.
type memoryBackend struct {
	mu      sync.Mutex
	created []notify.Notification
}

func (m *memoryBackend) AlreadyNotified(ctx context.Context, s Subject, notifType string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.created {
		if n.Type != notifType {
			continue
		}
		if s.PromotionID != 0 {
			if n.PromotionID != nil && *n.PromotionID == s.PromotionID {
				return true, nil
			}
			continue
		}
		if n.UserID == s.UserID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryBackend) Create(ctx context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, n)
	return nil
}

func (m *memoryBackend) CreateForUsers(ctx context.Context, userIDs []int64, n notify.Notification) (int64, error) {
	ids := notify.UniqueIDs(userIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range ids {
		row := n
		row.UserID = u
		m.created = append(m.created, row)
	}
	return int64(len(ids)), nil
}

// --------------------------------------------------------------------------
// Row builders
// --------------------------------------------------------------------------

// promoRows builds n promotions with ids startID.. and a fully resolved
// owner chain: product id+1000, store id+2000, owner id+9000.
func promoRows(n int, startID int64, endsAt time.Time) []Promotion {
	out := make([]Promotion, 0, n)
	for i := 0; i < n; i++ {
		id := startID + int64(i)
		productID := id + 1000
		storeID := id + 2000
		ownerID := id + 9000
		productName := fmt.Sprintf("product-%d", id)
		storeName := fmt.Sprintf("store-%d", id)
		out = append(out, Promotion{
			ID:          id,
			EndsAt:      endsAt,
			ProductID:   &productID,
			ProductName: &productName,
			StoreID:     &storeID,
			StoreName:   &storeName,
			OwnerID:     &ownerID,
		})
	}
	return out
}

// subRows builds n subscriptions with ids startID.. and user id+100000.
func subRows(n int, startID int64, endsAt time.Time) []Subscription {
	out := make([]Subscription, 0, n)
	for i := 0; i < n; i++ {
		id := startID + int64(i)
		out = append(out, Subscription{ID: id, UserID: id + 100000, EndsAt: endsAt})
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
