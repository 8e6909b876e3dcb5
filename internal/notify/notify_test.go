package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueIDs(t *testing.T) {
	assert.Nil(t, UniqueIDs(nil))
	assert.Nil(t, UniqueIDs([]int64{}))
	assert.Equal(t, []int64{3, 1, 2}, UniqueIDs([]int64{3, 1, 3, 2, 1, 3}))
	assert.Equal(t, []int64{7}, UniqueIDs([]int64{7, 7, 7}))
}

func TestMessageBuilders(t *testing.T) {
	title, msg := PromotionEndingSoon("Winter Jacket")
	assert.Equal(t, "Promotion ending soon", title)
	assert.Contains(t, msg, "Winter Jacket")

	// The maintenance sweep rebuilds this exact text in SQL.
	title, msg = PromotionEnded("Winter Jacket")
	assert.Equal(t, "Promotion ended", title)
	assert.Equal(t, "Your promotion for Winter Jacket has ended.", msg)

	title, msg = PromotionAnnounced("North Outfitters", "Winter Jacket")
	assert.Equal(t, "New promotion", title)
	assert.True(t, strings.Contains(msg, "North Outfitters") && strings.Contains(msg, "Winter Jacket"))

	title, _ = SubscriptionEndingSoon()
	assert.Equal(t, "Subscription ending soon", title)

	title, _ = SubscriptionExpired()
	assert.Equal(t, "Subscription expired", title)
}

// A Writer with no pool panics the moment a statement runs, so these passing
// proves the empty-list short-circuit happens before any database work.
func TestCreateForUsersEmptyListIsNoop(t *testing.T) {
	w := NewWriter(nil)

	inserted, err := w.CreateForUsers(context.Background(), nil, Notification{Type: TypeSubscriptionEndingSoon})
	require.NoError(t, err)
	assert.Zero(t, inserted)

	inserted, err = w.CreateForUsers(context.Background(), []int64{}, Notification{Type: TypeSubscriptionEndingSoon})
	require.NoError(t, err)
	assert.Zero(t, inserted)
}
