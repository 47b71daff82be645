package loan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheFetchJSONPopulatesOnce(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "loan", "borrowers", "page1")
	require.NoError(t, err)

	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return map[string]int{"count": 3}, nil
	}

	var out map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 3, out["count"])
	require.Equal(t, 1, loads)

	var again map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &again, loader))
	require.Equal(t, 3, again["count"])
	require.Equal(t, 1, loads)
}

func TestCacheBumpChangesKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "loan", "borrowers")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "loan", "borrowers")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestCacheLoaderErrorPropagates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	var out map[string]int
	boom := errors.New("boom")
	err := cache.FetchJSON(ctx, "some:key", &out, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestNilCachePassthrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	require.Equal(t, "a:b", key)

	loads := 0
	var out map[string]int
	for range 2 {
		require.NoError(t, cache.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
			loads++
			return map[string]int{"v": loads}, nil
		}))
	}
	// Without a backing client every fetch hits the loader.
	require.Equal(t, 2, loads)
	require.NoError(t, cache.Bump(ctx))
}
