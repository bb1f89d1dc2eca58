package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisad "rewardo/internal/adapters/redis"
	"rewardo/internal/domain"
)

func newCache(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCache_SetGetDel(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	routes := []domain.Route{{
		Origin:       domain.Airport{City: "London", AirportCode: "LHR", Country: "GB"},
		Destinations: []domain.Airport{{City: "New York", AirportCode: "JFK", Country: "US"}},
	}}

	var out []domain.Route
	ok, err := c.Get(ctx, "routes:vs", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "routes:vs", routes, 60))
	ok, err = c.Get(ctx, "routes:vs", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, routes, out)

	require.NoError(t, c.Del(ctx, "routes:vs"))
	ok, err = c.Get(ctx, "routes:vs", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_TTL(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "v", 10))
	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	assert.Equal(t, 10*time.Second, mr.TTL("short"))
	assert.Zero(t, mr.TTL("forever"))

	mr.FastForward(11 * time.Second)
	var s string
	ok, err := c.Get(ctx, "short", &s)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Get(ctx, "forever", &s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", s)
}

func TestCache_Ping(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, c.Ping(context.Background()))
	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
