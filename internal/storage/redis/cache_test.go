package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladikoff/email2feed/internal/config"
	"github.com/vladikoff/email2feed/internal/domain"
)

// 需要设置 EMAIL2FEED_TEST_REDIS_ADDR 才会运行
func TestFeedCache(t *testing.T) {
	addr := os.Getenv("EMAIL2FEED_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EMAIL2FEED_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := New(ctx, &config.RedisConfig{Address: addr}, nil)
	require.NoError(t, err)
	defer client.Close()

	cache := NewFeedCache(client)
	token := "test-" + uuid.NewString()

	_, ok, err := cache.Get(ctx, token, domain.FormatRSS2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, token, domain.FormatRSS2, []byte("<rss/>"), time.Minute))
	require.NoError(t, cache.Set(ctx, token, domain.FormatAtom1, []byte("<feed/>"), 0))

	got, ok, err := cache.Get(ctx, token, domain.FormatRSS2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<rss/>", string(got))

	_, ok, err = cache.Get(ctx, token, domain.FormatAtom1)
	require.NoError(t, err)
	assert.False(t, ok, "zero ttl must not be cached")

	require.NoError(t, cache.Invalidate(ctx, token))
	_, ok, err = cache.Get(ctx, token, domain.FormatRSS2)
	require.NoError(t, err)
	assert.False(t, ok)
}
