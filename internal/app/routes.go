package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"rewardo/internal/domain"
)

const routesCacheKey = "routes:vs"

// RouteDirectory holds the last good route graph. Readers get an immutable
// slice; a refresh swaps in a new one.
type RouteDirectory struct {
	client domain.RouteClient
	cache  domain.Cache
	routes atomic.Pointer[[]domain.Route]
	mu     sync.Mutex // serializes refreshes
}

func NewRouteDirectory(c domain.RouteClient, cache domain.Cache) *RouteDirectory {
	return &RouteDirectory{client: c, cache: cache}
}

// Get returns the current routes, nil before the first successful load.
func (d *RouteDirectory) Get() []domain.Route {
	if p := d.routes.Load(); p != nil {
		return *p
	}
	return nil
}

// Routes returns the current routes, loading them when none are held yet.
func (d *RouteDirectory) Routes(ctx context.Context) ([]domain.Route, error) {
	if rs := d.Get(); len(rs) > 0 {
		return rs, nil
	}
	return d.Refresh(ctx)
}

// Refresh fetches the route graph. A failed or empty fetch keeps the held
// routes, falling back to the persisted copy when nothing is held; the error
// is returned only when no routes are available at all.
func (d *RouteDirectory) Refresh(ctx context.Context) ([]domain.Route, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	routes, err := d.client.FetchRoutes(ctx)
	if err == nil && len(routes) > 0 {
		d.store(routes)
		d.persist(ctx, routes)
		logRoutes(routes)
		return routes, nil
	}
	if err == nil {
		err = errors.Mark(errors.New("route directory returned no routes"), domain.ErrRouteDirectory)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if held := d.Get(); len(held) > 0 {
		log.Warn().Err(err).Int("routes", len(held)).Msg("route refresh failed, keeping previous routes")
		return held, nil
	}
	if restored := d.restore(ctx); len(restored) > 0 {
		d.store(restored)
		log.Warn().Err(err).Int("routes", len(restored)).Msg("route refresh failed, using persisted routes")
		return restored, nil
	}
	return nil, err
}

func (d *RouteDirectory) store(routes []domain.Route) {
	cp := make([]domain.Route, len(routes))
	for i, r := range routes {
		cp[i] = domain.Route{Origin: r.Origin, Destinations: append([]domain.Airport(nil), r.Destinations...)}
	}
	d.routes.Store(&cp)
}

func (d *RouteDirectory) persist(ctx context.Context, routes []domain.Route) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Set(ctx, routesCacheKey, routes, 0); err != nil {
		log.Warn().Err(err).Msg("could not persist routes")
	}
}

func (d *RouteDirectory) restore(ctx context.Context) []domain.Route {
	if d.cache == nil {
		return nil
	}
	var routes []domain.Route
	ok, err := d.cache.Get(ctx, routesCacheKey, &routes)
	if err != nil {
		log.Warn().Err(err).Msg("could not read persisted routes")
		return nil
	}
	if !ok {
		return nil
	}
	return routes
}

func logRoutes(routes []domain.Route) {
	log.Info().
		Int("origins", len(routes)).
		Int("destinations", domain.CountDestinations(routes)).
		Msg("routes refreshed")
	for _, r := range routes {
		log.Debug().
			Str("origin", r.Origin.AirportCode).
			Str("city", r.Origin.City).
			Int("destinations", len(r.Destinations)).
			Msg("route origin")
	}
}
