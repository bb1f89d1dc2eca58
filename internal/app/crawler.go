package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"rewardo/internal/adapters/observability"
	"rewardo/internal/domain"
	"rewardo/internal/shared"
)

type RouteSource interface {
	Routes(ctx context.Context) ([]domain.Route, error)
}

type DayProcessor interface {
	Process(ctx context.Context, day domain.DayAward, origin, destination string) (Result, error)
}

type CrawlerConfig struct {
	Months           int
	MonthDelay       time.Duration
	DestinationDelay time.Duration
}

// CycleStats summarises one crawl cycle.
type CycleStats struct {
	Routes       int
	Legs         int
	Units        int
	FailedUnits  int
	Days         int
	Inserted     int
	Updated      int
	PriceChanges int
	SeatChanges  int
}

func (s *CycleStats) add(o CycleStats) {
	s.Units += o.Units
	s.FailedUnits += o.FailedUnits
	s.Days += o.Days
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.PriceChanges += o.PriceChanges
	s.SeatChanges += o.SeatChanges
}

// Crawler walks route x destination x month sequentially, pausing between
// upstream exchanges.
type Crawler struct {
	routes   RouteSource
	fetcher  domain.AvailabilityClient
	detector DayProcessor
	clock    shared.Clock
	cfg      CrawlerConfig
	pause    func(ctx context.Context, d time.Duration) error
}

type CrawlerOption func(*Crawler)

// WithPause replaces the wait used between requests.
func WithPause(p func(ctx context.Context, d time.Duration) error) CrawlerOption {
	return func(c *Crawler) { c.pause = p }
}

func NewCrawler(rs RouteSource, f domain.AvailabilityClient, d DayProcessor, clock shared.Clock, cfg CrawlerConfig, opts ...CrawlerOption) *Crawler {
	if cfg.Months <= 0 {
		cfg.Months = 12
	}
	if clock == nil {
		clock = shared.NewRealClock()
	}
	c := &Crawler{routes: rs, fetcher: f, detector: d, clock: clock, cfg: cfg, pause: pause}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RunCycle crawls every leg once. It returns context.Canceled when
// cancelled during a pause and an ErrRouteDirectory error when the route
// graph could not be obtained. Failures of a single leg-month are logged
// and skipped.
func (c *Crawler) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	log.Info().Msg("starting crawl cycle")

	routes, err := c.routes.Routes(ctx)
	if err != nil {
		if ctx.Err() != nil {
			observability.ObserveCycle("aborted")
			return stats, ctx.Err()
		}
		observability.ObserveCycle("skipped")
		return stats, errors.Mark(errors.Wrap(err, "skipping crawl cycle"), domain.ErrRouteDirectory)
	}
	if len(routes) == 0 {
		log.Warn().Msg("no routes available, skipping crawl cycle")
		observability.ObserveCycle("skipped")
		return stats, nil
	}
	stats.Routes = len(routes)
	log.Info().Int("routes", len(routes)).Int("legs", domain.CountDestinations(routes)).Msg("crawling routes")

	today := shared.CivilDate(c.clock.Now())
	for _, route := range routes {
		for _, dest := range route.Destinations {
			leg, err := c.crawlLeg(ctx, route.Origin.AirportCode, dest.AirportCode, today)
			stats.add(leg)
			stats.Legs++
			if err != nil {
				return c.aborted(stats, err)
			}

			log.Info().
				Str("origin", route.Origin.AirportCode).
				Str("destination", dest.AirportCode).
				Int("days", leg.Days).
				Int("price_changes", leg.PriceChanges).
				Int("seat_changes", leg.SeatChanges).
				Int("failed_months", leg.FailedUnits).
				Msg("route pair complete")

			log.Debug().Dur("delay", c.cfg.DestinationDelay).Msg("waiting before next route pair")
			if err := c.pause(ctx, c.cfg.DestinationDelay); err != nil {
				return c.aborted(stats, err)
			}
		}
	}

	observability.ObserveCycle("completed")
	log.Info().
		Int("legs", stats.Legs).
		Int("units", stats.Units).
		Int("failed_units", stats.FailedUnits).
		Int("days", stats.Days).
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Msg("crawl cycle complete")
	return stats, nil
}

func (c *Crawler) aborted(stats CycleStats, err error) (CycleStats, error) {
	observability.ObserveCycle("aborted")
	log.Info().Int("legs", stats.Legs).Msg("crawl cycle aborted")
	return stats, err
}

// crawlLeg fetches and processes every month of one origin/destination pair.
// The only error it returns is the context's.
func (c *Crawler) crawlLeg(ctx context.Context, origin, destination string, today time.Time) (CycleStats, error) {
	var stats CycleStats
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < c.cfg.Months; i++ {
		month := first.AddDate(0, i, 0)
		req := domain.MonthRequest{
			Origin:      origin,
			Destination: destination,
			Departure:   today,
			Year:        month.Year(),
			Month:       month.Month(),
		}
		l := log.With().
			Str("origin", origin).
			Str("destination", destination).
			Str("month", month.Month().String()).
			Int("year", month.Year()).
			Logger()

		stats.Units++
		l.Info().Msg("fetching reward seats")
		days, err := c.fetcher.FetchMonth(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.FailedUnits++
			observability.ObserveUnit(unitResult(err))
			l.Error().Err(err).Msg("error fetching reward seats")
		} else {
			observability.ObserveUnit("ok")
			for _, day := range days {
				res, err := c.detector.Process(ctx, day, origin, destination)
				if err != nil {
					l.Error().Err(err).Str("date", day.Date.Format(domain.DateLayout)).Msg("error processing day")
					continue
				}
				stats.Days++
				switch res.Outcome {
				case OutcomeInserted:
					stats.Inserted++
				case OutcomeUpdated:
					stats.Updated++
				}
				if res.Diff.PointsChanged {
					stats.PriceChanges++
				}
				if res.Diff.SeatsChanged {
					stats.SeatChanges++
				}
			}
		}

		if err := c.pause(ctx, c.cfg.MonthDelay); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func unitResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrProtocol):
		return "protocol"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream"
	}
	return "error"
}
