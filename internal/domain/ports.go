package domain

import (
	"context"
	"time"
)

type SnapshotRepository interface {
	// Write paths (single writer: the crawler)
	GetLatest(ctx context.Context, key SnapshotKey) (Snapshot, error)
	InsertLatest(ctx context.Context, s Snapshot) error
	// ReplaceLatest archives previous and overwrites it with current, keeping
	// previous.ID, in one transaction.
	ReplaceLatest(ctx context.Context, previous, current Snapshot) error

	// Read paths
	LatestBetween(ctx context.Context, q FlightsQuery) (SnapshotsPage, error)
	Cheapest(ctx context.Context, q CheapestQuery) (SnapshotsPage, error)
	History(ctx context.Context, q HistoryQuery) (SnapshotsPage, error)
	CountLatest(ctx context.Context) (int64, error)
	CountHistoric(ctx context.Context) (int64, error)
	MostChangedRoutes(ctx context.Context, pg PageQuery) (PairCountsPage, error)
	MostCommonPairs(ctx context.Context, carrier string, since time.Time, pg PageQuery) (PairCountsPage, error)
}

// MonthRequest is one (leg, month) unit of upstream work.
type MonthRequest struct {
	Origin      string
	Destination string
	Departure   time.Time // anchor date sent in the slice
	Year        int
	Month       time.Month
}

type AvailabilityClient interface {
	FetchMonth(ctx context.Context, req MonthRequest) ([]DayAward, error)
}

type RouteClient interface {
	FetchRoutes(ctx context.Context) ([]Route, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type EventPublisher interface {
	Publish(ev ChangeEvent)
}

// Read models & queries
type PageQuery struct {
	Page int // 0-based
	Size int
}

func (p PageQuery) Offset() int { return p.Page * p.Size }

type FlightsQuery struct {
	Origin, Destination string
	Carrier             string
	From, To            time.Time
	Page                PageQuery
}

type CheapestQuery struct {
	Origin, Destination string
	Carrier             string
	Cabin               CabinType
	Page                PageQuery
}

type HistoryQuery struct {
	Origin, Destination string
	Carrier             string
	Departure           time.Time
	Page                PageQuery
}

type SnapshotsPage struct {
	Items      []Snapshot
	Page       int
	Size       int
	TotalItems int64
}

type PairCount struct {
	Origin      string
	Destination string
	Count       int64
}

type PairCountsPage struct {
	Items      []PairCount
	Page       int
	Size       int
	TotalItems int64
}

// TotalPages rounds up; zero size yields zero pages.
func TotalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
