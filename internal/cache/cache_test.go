package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cachedResponse struct {
	Query  string             `json:"query"`
	Total  int                `json:"total"`
	Counts map[string]float64 `json:"counts"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	in := cachedResponse{Query: "galaxy s24", Total: 1234, Counts: map[string]float64{"news": 42}}
	require.NoError(t, c.Set(ctx, "newsapi:galaxy", in, time.Minute))

	var out cachedResponse
	hit, err := c.Get(ctx, "newsapi:galaxy", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)

	hit, err = c.Get(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "forever", 2, 0))

	now = now.Add(59 * time.Second)
	var v int
	hit, _ := c.Get(ctx, "short", &v)
	assert.True(t, hit)

	now = now.Add(time.Second)
	hit, _ = c.Get(ctx, "short", &v)
	assert.False(t, hit, "entry must expire at its deadline")
	assert.Equal(t, 1, c.Len())

	now = now.Add(24 * 365 * time.Hour)
	hit, _ = c.Get(ctx, "forever", &v)
	assert.True(t, hit)
	assert.Equal(t, 2, v)
}

func TestMemoryCacheDecodeMismatch(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, "k", "a string", time.Minute))

	var n int
	_, err := c.Get(ctx, "k", &n)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}
	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	var v int
	hit, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNew(t *testing.T) {
	logger := zap.NewNop().Sugar()

	c, err := New(config.CacheData{Backend: "memory"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = New(config.CacheData{Backend: "none"}, logger)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, c)

	_, err = New(config.CacheData{Backend: "memcached"}, logger)
	assert.Error(t, err)
}

// TestRedisCache runs against a live server when LAUNCHPLANNER_TEST_REDIS is set
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("LAUNCHPLANNER_TEST_REDIS")
	if addr == "" {
		t.Skip("LAUNCHPLANNER_TEST_REDIS not set")
	}

	c, err := NewRedisCache(addr, "", 0)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	in := cachedResponse{Query: "fold", Total: 7}
	require.NoError(t, c.Set(ctx, "test:fold", in, time.Minute))

	var out cachedResponse
	hit, err := c.Get(ctx, "test:fold", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in.Query, out.Query)
	assert.Equal(t, in.Total, out.Total)

	hit, err = c.Get(ctx, "test:absent", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
