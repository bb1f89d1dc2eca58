package app_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardo/internal/app"
	"rewardo/internal/domain"
)

type routeClient struct {
	mu     sync.Mutex
	routes []domain.Route
	err    error
	calls  int
}

func (c *routeClient) FetchRoutes(ctx context.Context) ([]domain.Route, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.routes, c.err
}

func TestRouteDirectory_RefreshStoresAndPersists(t *testing.T) {
	rc := &routeClient{routes: twoLegs}
	cache := newJSONCache()
	d := app.NewRouteDirectory(rc, cache)
	assert.Nil(t, d.Get())

	got, err := d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, twoLegs, got)
	assert.Equal(t, twoLegs, d.Get())

	var persisted []domain.Route
	ok, err := cache.Get(context.Background(), "routes:vs", &persisted)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, twoLegs, persisted)
}

func TestRouteDirectory_FailedRefreshKeepsPrevious(t *testing.T) {
	rc := &routeClient{routes: twoLegs}
	d := app.NewRouteDirectory(rc, nil)
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	rc.routes, rc.err = nil, errors.Mark(errors.New("502"), domain.ErrRouteDirectory)
	got, err := d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, twoLegs, got)

	rc.err = nil // empty answer
	got, err = d.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, twoLegs, got)
}

func TestRouteDirectory_RestoresPersistedRoutes(t *testing.T) {
	cache := newJSONCache()
	require.NoError(t, cache.Set(context.Background(), "routes:vs", twoLegs, 0))

	d := app.NewRouteDirectory(&routeClient{err: errors.New("down")}, cache)
	got, err := d.Routes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, twoLegs, got)
	assert.Equal(t, twoLegs, d.Get())
}

func TestRouteDirectory_NothingAvailable(t *testing.T) {
	d := app.NewRouteDirectory(&routeClient{}, newJSONCache())
	_, err := d.Routes(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRouteDirectory))
}

func TestRouteDirectory_RoutesUsesHeldValue(t *testing.T) {
	rc := &routeClient{routes: twoLegs}
	d := app.NewRouteDirectory(rc, nil)
	for i := 0; i < 3; i++ {
		_, err := d.Routes(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rc.calls)
}

func TestRouteDirectory_ReadersSeeOldOrNew(t *testing.T) {
	other := []domain.Route{{Origin: airport("MAN"), Destinations: []domain.Airport{airport("MCO")}}}
	rc := &routeClient{routes: twoLegs}
	d := app.NewRouteDirectory(rc, nil)
	_, err := d.Refresh(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			rc.mu.Lock()
			if i%2 == 0 {
				rc.routes = other
			} else {
				rc.routes = twoLegs
			}
			rc.mu.Unlock()
			_, _ = d.Refresh(context.Background())
		}
	}()
	for i := 0; i < 1000; i++ {
		rs := d.Get()
		require.Len(t, rs, 1)
		n := domain.CountDestinations(rs)
		assert.True(t, n == 1 || n == 2)
	}
	wg.Wait()
}
