package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "cashdesk", time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	}

	key, err := c.BuildKey(ctx, "summary", "2025-03-04")
	require.NoError(t, err)
	require.Equal(t, "cashdesk:summary:2025-03-04:v1", key)

	var got map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got["calls"])

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "summary", "2025-03-04")
	require.NoError(t, err)
	require.Equal(t, "cashdesk:summary:2025-03-04:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 2, got["calls"])
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("boom")
	var got []int
	err := c.FetchJSON(context.Background(), "cashdesk:k", &got, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("cashdesk:k"))
}

func TestNilCacheCallsLoaderDirectly(t *testing.T) {
	var c *Versioned
	var got []string
	require.NoError(t, c.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) {
		return []string{"a"}, nil
	}))
	require.Equal(t, []string{"a"}, got)
	require.NoError(t, c.Bump(context.Background()))
}
