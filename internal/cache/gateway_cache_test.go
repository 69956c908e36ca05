package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/testutil"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFake() *testutil.FakeGateway {
	return testutil.NewFakeGateway().
		SetCloses("AAPL", 100, 101, 99, 104).
		SetLastPrice("AAPL", 105).
		SetProfile(&models.Profile{Ticker: "AAPL", Name: "Apple Inc.", MarketCap: testutil.Float(2.9e12)}).
		SetRecommendations("AAPL", models.RecommendationTrend{Period: "0m", Buy: 10, Hold: 2})
}

func TestCachedGateway_MemoryStore(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	gw := NewCachedGateway(fake, NewMemoryStore(16, time.Minute), nil)

	first, err := gw.FetchHistory(ctx, "AAPL", "1y", "1d")
	require.NoError(t, err)
	second, err := gw.FetchHistory(ctx, "aapl", "1y", "1d")
	require.NoError(t, err)

	assert.Equal(t, first.Closes(), second.Closes())
	assert.Equal(t, 1, fake.Calls(testutil.OpHistory, "AAPL"))

	// a different period is a different entry
	_, err = gw.FetchHistory(ctx, "AAPL", "5y", "1d")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls(testutil.OpHistory, "AAPL"))

	stats := gw.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(2), stats.Sets)
	assert.InDelta(t, 33.33, stats.HitRate(), 0.01)
}

func TestCachedGateway_LastPriceIsLive(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	gw := NewCachedGateway(fake, NewMemoryStore(16, time.Minute), nil)

	for i := 0; i < 3; i++ {
		price, err := gw.FetchLastPrice(ctx, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, 105.0, price)
	}
	assert.Equal(t, 3, fake.Calls(testutil.OpLastPrice, "AAPL"))
}

func TestCachedGateway_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	fake := newFake().Fail(testutil.OpProfile, "AAPL", utils.ErrUnavailable)
	gw := NewCachedGateway(fake, NewMemoryStore(16, time.Minute), nil)

	_, err := gw.FetchProfile(ctx, "AAPL")
	assert.True(t, errors.Is(err, utils.ErrUnavailable))

	fake.Recover(testutil.OpProfile, "AAPL")
	profile, err := gw.FetchProfile(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", profile.Name)

	profile, err = gw.FetchProfile(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, profile.MarketCap)
	assert.Equal(t, 2.9e12, *profile.MarketCap)
	assert.Equal(t, 2, fake.Calls(testutil.OpProfile, "AAPL"))
}

func TestCachedGateway_RedisStore(t *testing.T) {
	ctx := context.Background()
	client, mr := testutil.NewMiniRedis(t)
	fake := newFake()
	gw := NewCachedGateway(fake, NewRedisStore(client, 5*time.Minute), nil)

	trends, err := gw.FetchRecommendations(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, trends, 1)

	trends, err = gw.FetchRecommendations(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10, trends[0].Buy)
	assert.Equal(t, 1, fake.Calls(testutil.OpRecommendations, "AAPL"))

	assert.True(t, mr.Exists("stockdash:md:recommendations:AAPL"))
	assert.Equal(t, 5*time.Minute, mr.TTL("stockdash:md:recommendations:AAPL"))

	n, err := gw.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// expiry forces a refetch
	mr.FastForward(6 * time.Minute)
	_, err = gw.FetchRecommendations(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls(testutil.OpRecommendations, "AAPL"))
}

func TestCachedGateway_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	client, mr := testutil.NewMiniRedis(t)
	fake := newFake()
	gw := NewCachedGateway(fake, NewRedisStore(client, time.Minute), nil)

	mr.Close()

	series, err := gw.FetchHistory(ctx, "AAPL", "1y", "1d")
	require.NoError(t, err)
	assert.Equal(t, 4, series.Len())
	assert.Positive(t, gw.Stats().Errors)
}

func TestRedisStore_ClearOnlyOwnKeys(t *testing.T) {
	ctx := context.Background()
	client, mr := testutil.NewMiniRedis(t)
	store := NewRedisStore(client, time.Minute)

	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	require.NoError(t, store.Set(ctx, "b", []byte("2")))
	require.NoError(t, mr.Set("other", "x"))

	require.NoError(t, store.Clear(ctx))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, mr.Exists("other"))

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0, 20*time.Millisecond)

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	assert.Eventually(t, func() bool {
		_, ok, _ := store.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, store.Set(ctx, "k2", []byte("v")))
	require.NoError(t, store.Clear(ctx))
	n, _ := store.Len(ctx)
	assert.Zero(t, n)
}
