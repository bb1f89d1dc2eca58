package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardo/internal/app"
	"rewardo/internal/domain"
	"rewardo/internal/shared"
)

var lhrJFK = domain.SnapshotKey{
	Origin:      "LHR",
	Destination: "JFK",
	Departure:   time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
	CarrierCode: domain.CarrierVS,
}

func newDetector(t *testing.T) (*app.Detector, *memRepo, *recorder, *jsonCache, *shared.FixedClock) {
	t.Helper()
	repo := newMemRepo()
	pub := &recorder{}
	cache := newJSONCache()
	clock := shared.NewFixedClock(time.Date(2025, 9, 15, 8, 30, 0, 0, time.UTC))
	return app.NewDetector(repo, pub, cache, clock), repo, pub, cache, clock
}

func TestProcess_NewKeyInserts(t *testing.T) {
	d, repo, pub, _, _ := newDetector(t)

	res, err := d.Process(context.Background(), day("2025-10-01", 34000, 9), "LHR", "JFK")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeInserted, res.Outcome)

	require.Len(t, repo.latest, 1)
	got := repo.latest[lhrJFK]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 34000, *got.Economy.PointsValue)
	assert.Empty(t, repo.historic)
	assert.Empty(t, pub.events)
}

func TestProcess_PointsChangeArchivesAndPublishes(t *testing.T) {
	d, repo, pub, _, clock := newDetector(t)
	ctx := context.Background()

	_, err := d.Process(ctx, day("2025-10-01", 34000, 9), "LHR", "JFK")
	require.NoError(t, err)
	before := repo.latest[lhrJFK]

	clock.Add(time.Hour)
	res, err := d.Process(ctx, day("2025-10-01", 30000, 9), "LHR", "JFK")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeUpdated, res.Outcome)
	assert.Equal(t, domain.Diff{PointsChanged: true}, res.Diff)

	require.Len(t, repo.historic, 1)
	if diff := cmp.Diff(before, repo.historic[0]); diff != "" {
		t.Fatalf("historic record differs from pre-update snapshot (-want +got):\n%s", diff)
	}

	after := repo.latest[lhrJFK]
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, 30000, *after.Economy.PointsValue)
	assert.True(t, after.ScrapedAt.After(before.ScrapedAt))

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, 34000, *ev.Previous.Economy.PointsValue)
	assert.Equal(t, 30000, *ev.Current.Economy.PointsValue)
	assert.Equal(t, before.ID, ev.Current.ID)
}

func TestProcess_IdenticalEntryIsNoop(t *testing.T) {
	d, repo, pub, _, clock := newDetector(t)
	ctx := context.Background()

	_, err := d.Process(ctx, day("2025-10-01", 34000, 9), "LHR", "JFK")
	require.NoError(t, err)
	before := repo.latest[lhrJFK]

	clock.Add(time.Hour)
	same := day("2025-10-01", 34000, 9)
	same.Economy.IsSaverAward = ptr(false)   // ignored
	same.Economy.SeatCountString = ptr("9+") // ignored
	res, err := d.Process(ctx, same, "LHR", "JFK")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeUnchanged, res.Outcome)

	assert.Empty(t, repo.historic)
	assert.Empty(t, pub.events)
	if diff := cmp.Diff(before, repo.latest[lhrJFK]); diff != "" {
		t.Fatalf("latest changed (-want +got):\n%s", diff)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	d, repo, pub, _, _ := newDetector(t)
	ctx := context.Background()

	_, err := d.Process(ctx, day("2025-10-01", 34000, 9), "LHR", "JFK")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := d.Process(ctx, day("2025-10-01", 30000, 4), "LHR", "JFK")
		require.NoError(t, err)
	}
	assert.Len(t, repo.historic, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.Diff{PointsChanged: true, SeatsChanged: true},
		domain.CompareAwards(pub.events[0].Previous, pub.events[0].Current))
}

func TestProcess_NoEventWhenReplaceFails(t *testing.T) {
	d, repo, pub, _, _ := newDetector(t)
	ctx := context.Background()

	_, err := d.Process(ctx, day("2025-10-01", 34000, 9), "LHR", "JFK")
	require.NoError(t, err)

	repo.replaceErr = errBoom
	_, err = d.Process(ctx, day("2025-10-01", 30000, 9), "LHR", "JFK")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.Empty(t, pub.events)
	assert.Equal(t, 34000, *repo.latest[lhrJFK].Economy.PointsValue)
}

func TestProcess_LookupErrorSurfaces(t *testing.T) {
	d, repo, pub, _, _ := newDetector(t)
	repo.getErr = errBoom

	_, err := d.Process(context.Background(), day("2025-10-01", 34000, 9), "LHR", "JFK")
	require.Error(t, err)
	assert.Empty(t, repo.latest)
	assert.Empty(t, pub.events)
}

func TestProcess_InvalidatesPairCache(t *testing.T) {
	d, _, _, cache, _ := newDetector(t)

	_, err := d.Process(context.Background(), day("2025-10-01", 34000, 9), "LHR", "JFK")
	require.NoError(t, err)
	assert.Contains(t, cache.dels, "pairver:LHR:JFK")
}
