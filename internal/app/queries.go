package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rewardo/internal/domain"
	"rewardo/internal/shared"
)

const (
	DefaultFlightsPageSize = 50
	DefaultStatsPageSize   = 10
	MaxPageSize            = 200

	commonPairsWindow = 30 * 24 * time.Hour
)

type RouteCatalog interface {
	Get() []domain.Route
}

type Airline struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Summary.Routes counts route origins, as the route directory lists them.
type Summary struct {
	Routes          int64     `json:"routes"`
	HistoricRecords int64     `json:"historicRecords"`
	LatestRecords   int64     `json:"latestRecords"`
	Airlines        []Airline `json:"airlines"`
}

type QueryService struct {
	repo     domain.SnapshotRepository
	cache    domain.Cache
	cacheTTL time.Duration
	routes   RouteCatalog
	clock    shared.Clock
}

func NewQueryService(r domain.SnapshotRepository, c domain.Cache, ttl time.Duration, routes RouteCatalog, clock shared.Clock) *QueryService {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &QueryService{repo: r, cache: c, cacheTTL: ttl, routes: routes, clock: clock}
}

// NormalizePage applies the default size and clamps to MaxPageSize.
func NormalizePage(pg domain.PageQuery, def int) domain.PageQuery {
	if pg.Page < 0 {
		pg.Page = 0
	}
	if pg.Size <= 0 {
		pg.Size = def
	}
	if pg.Size > MaxPageSize {
		pg.Size = MaxPageSize
	}
	return pg
}

func (s *QueryService) LatestBetween(ctx context.Context, q domain.FlightsQuery) (domain.SnapshotsPage, error) {
	q.Carrier = carrierOrDefault(q.Carrier)
	q.Page = NormalizePage(q.Page, DefaultFlightsPageSize)
	key := fmt.Sprintf("flights:%s:%s:%s%s:%s:%s:%d:%d",
		s.pairVersion(ctx, q.Origin, q.Destination), q.Carrier, q.Origin, q.Destination,
		q.From.Format(domain.DateLayout), q.To.Format(domain.DateLayout), q.Page.Page, q.Page.Size)
	return cached(ctx, s, key, func() (domain.SnapshotsPage, error) {
		return s.repo.LatestBetween(ctx, q)
	})
}

func (s *QueryService) Cheapest(ctx context.Context, q domain.CheapestQuery) (domain.SnapshotsPage, error) {
	q.Carrier = carrierOrDefault(q.Carrier)
	q.Page = NormalizePage(q.Page, DefaultFlightsPageSize)
	key := fmt.Sprintf("cheapest:%s:%s:%s%s:%s:%d:%d",
		s.pairVersion(ctx, q.Origin, q.Destination), q.Carrier,
		q.Origin, q.Destination, q.Cabin, q.Page.Page, q.Page.Size)
	return cached(ctx, s, key, func() (domain.SnapshotsPage, error) {
		return s.repo.Cheapest(ctx, q)
	})
}

func (s *QueryService) History(ctx context.Context, q domain.HistoryQuery) (domain.SnapshotsPage, error) {
	q.Carrier = carrierOrDefault(q.Carrier)
	q.Page = NormalizePage(q.Page, DefaultFlightsPageSize)
	key := fmt.Sprintf("history:%s:%s:%s%s:%s:%d:%d",
		s.pairVersion(ctx, q.Origin, q.Destination), q.Carrier,
		q.Origin, q.Destination, q.Departure.Format(domain.DateLayout), q.Page.Page, q.Page.Size)
	return cached(ctx, s, key, func() (domain.SnapshotsPage, error) {
		return s.repo.History(ctx, q)
	})
}

// Summary is cached by TTL only; it spans every pair.
func (s *QueryService) Summary(ctx context.Context) (Summary, error) {
	return cached(ctx, s, "stats:summary", func() (Summary, error) {
		latest, err := s.repo.CountLatest(ctx)
		if err != nil {
			return Summary{}, err
		}
		historic, err := s.repo.CountHistoric(ctx)
		if err != nil {
			return Summary{}, err
		}
		var routes int64
		if s.routes != nil {
			routes = int64(len(s.routes.Get()))
		}
		return Summary{
			Routes:          routes,
			HistoricRecords: historic,
			LatestRecords:   latest,
			Airlines:        []Airline{{Code: domain.CarrierVS, Name: "Virgin Atlantic"}},
		}, nil
	})
}

func (s *QueryService) MostChangedRoutes(ctx context.Context, pg domain.PageQuery) (domain.PairCountsPage, error) {
	pg = NormalizePage(pg, DefaultStatsPageSize)
	key := fmt.Sprintf("stats:most-changed:%d:%d", pg.Page, pg.Size)
	return cached(ctx, s, key, func() (domain.PairCountsPage, error) {
		return s.repo.MostChangedRoutes(ctx, pg)
	})
}

// MostCommonPairs counts archived changes per pair over the last 30 days. An
// empty carrier counts every carrier.
func (s *QueryService) MostCommonPairs(ctx context.Context, carrier string, pg domain.PageQuery) (domain.PairCountsPage, error) {
	pg = NormalizePage(pg, DefaultStatsPageSize)
	since := shared.CivilDate(s.clock.Now().Add(-commonPairsWindow))
	key := fmt.Sprintf("stats:common-pairs:%s:%s:%d:%d", carrier, since.Format(domain.DateLayout), pg.Page, pg.Size)
	return cached(ctx, s, key, func() (domain.PairCountsPage, error) {
		return s.repo.MostCommonPairs(ctx, carrier, since, pg)
	})
}

// cached serves key from the cache or loads and stores it. Cache failures
// only cost a trip to the repository.
func cached[T any](ctx context.Context, s *QueryService, key string, load func() (T, error)) (T, error) {
	var out T
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds())); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("cache set failed")
		}
	}
	return v, nil
}

func pairVersionKey(origin, destination string) string {
	return "pairver:" + origin + ":" + destination
}

// pairVersion returns the cache generation of a pair. Deleting the version
// key (see Detector) orphans every cached read for that pair.
func (s *QueryService) pairVersion(ctx context.Context, origin, destination string) string {
	if s.cache == nil {
		return "0"
	}
	key := pairVersionKey(origin, destination)
	var v string
	if ok, _ := s.cache.Get(ctx, key, &v); ok && v != "" {
		return v
	}
	v = uuid.NewString()
	if err := s.cache.Set(ctx, key, v, 0); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
	return v
}

func carrierOrDefault(c string) string {
	if c == "" {
		return domain.CarrierVS
	}
	return c
}
