package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetThenGet(t *testing.T) {
	c := New(true)
	etag := c.Set("unread:1", []byte(`{"unread_count":3}`), time.Minute)

	data, got, ok := c.Get("unread:1")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"unread_count":3}`), data)
	assert.Equal(t, etag, got)
	assert.Equal(t, ComputeETag([]byte(`{"unread_count":3}`)), got)
}

func TestExpiredEntryMisses(t *testing.T) {
	c := New(true)
	c.Set("unread:1", []byte("3"), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, _, ok := c.Get("unread:1")
	assert.False(t, ok)
}

func TestDisabledCacheIsNoop(t *testing.T) {
	c := New(false)
	etag := c.Set("unread:1", []byte("3"), time.Minute)
	assert.NotEmpty(t, etag) // handlers still get an ETag to send

	_, _, ok := c.Get("unread:1")
	assert.False(t, ok)
}

func TestDeleteInvalidates(t *testing.T) {
	c := New(true)
	c.Set("unread:1", []byte("3"), time.Minute)
	c.Set("feed:1", []byte("[]"), time.Minute)

	c.Delete("unread:1", "feed:1")

	_, _, ok := c.Get("unread:1")
	assert.False(t, ok)
	_, _, ok = c.Get("feed:1")
	assert.False(t, ok)
}

func TestCheckETagMatch(t *testing.T) {
	etag := ComputeETag([]byte("payload"))
	assert.True(t, CheckETagMatch(etag, etag))
	assert.True(t, CheckETagMatch("*", etag))
	assert.False(t, CheckETagMatch("", etag))
	assert.False(t, CheckETagMatch(`W/"other"`, etag))
}
