package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"rewardo/internal/domain"
)

// ---- fakes ----

type memRepo struct {
	mu       sync.Mutex
	latest   map[domain.SnapshotKey]domain.Snapshot
	historic []domain.Snapshot

	replaceErr error
	getErr     error

	page      domain.SnapshotsPage
	pairs     domain.PairCountsPage
	readCalls int
	since     time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{latest: map[domain.SnapshotKey]domain.Snapshot{}}
}

func (r *memRepo) GetLatest(ctx context.Context, key domain.SnapshotKey) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.Snapshot{}, r.getErr
	}
	s, ok := r.latest[key]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *memRepo) InsertLatest(ctx context.Context, s domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[s.Key] = s.Clone()
	return nil
}

func (r *memRepo) ReplaceLatest(ctx context.Context, previous, current domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.historic = append(r.historic, previous.Clone())
	r.latest[current.Key] = current.Clone()
	return nil
}

func (r *memRepo) LatestBetween(ctx context.Context, q domain.FlightsQuery) (domain.SnapshotsPage, error) {
	r.readCalls++
	return r.page, nil
}

func (r *memRepo) Cheapest(ctx context.Context, q domain.CheapestQuery) (domain.SnapshotsPage, error) {
	r.readCalls++
	return r.page, nil
}

func (r *memRepo) History(ctx context.Context, q domain.HistoryQuery) (domain.SnapshotsPage, error) {
	r.readCalls++
	return r.page, nil
}

func (r *memRepo) CountLatest(ctx context.Context) (int64, error) {
	return int64(len(r.latest)), nil
}

func (r *memRepo) CountHistoric(ctx context.Context) (int64, error) {
	return int64(len(r.historic)), nil
}

func (r *memRepo) MostChangedRoutes(ctx context.Context, pg domain.PageQuery) (domain.PairCountsPage, error) {
	r.readCalls++
	return r.pairs, nil
}

func (r *memRepo) MostCommonPairs(ctx context.Context, carrier string, since time.Time, pg domain.PageQuery) (domain.PairCountsPage, error) {
	r.readCalls++
	r.since = since
	return r.pairs, nil
}

// jsonCache stores values the way the redis adapter does, as JSON.
type jsonCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func newJSONCache() *jsonCache { return &jsonCache{store: map[string][]byte{}} }

func (c *jsonCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *jsonCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = b
	return nil
}

func (c *jsonCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (p *recorder) Publish(ev domain.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

var errBoom = errors.New("boom")

func ptr[T any](v T) *T { return &v }

func day(date string, economyPoints, economySeats int) domain.DayAward {
	d, _ := time.Parse(domain.DateLayout, date)
	return domain.DayAward{
		Date: d,
		Economy: &domain.CabinAward{
			PointsValue:     ptr(economyPoints),
			IsSaverAward:    ptr(true),
			SeatCount:       ptr(economySeats),
			SeatCountString: ptr("9"),
		},
	}
}
