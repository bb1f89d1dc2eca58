package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rewardo/internal/adapters/observability"
	"rewardo/internal/domain"
	"rewardo/internal/shared"
)

type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeUnchanged
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUpdated:
		return "updated"
	}
	return "unknown"
}

type Result struct {
	Outcome Outcome
	Diff    domain.Diff
}

// Detector turns fetched day entries into latest/historic snapshot writes
// and change events.
type Detector struct {
	repo  domain.SnapshotRepository
	pub   domain.EventPublisher
	cache domain.Cache
	clock shared.Clock
	newID func() string
}

func NewDetector(r domain.SnapshotRepository, pub domain.EventPublisher, cache domain.Cache, clock shared.Clock) *Detector {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Detector{repo: r, pub: pub, cache: cache, clock: clock, newID: uuid.NewString}
}

// Process compares day against the latest snapshot of its key. A new key is
// inserted; a changed one is archived and overwritten in one transaction and
// the change is published once that transaction has committed.
func (d *Detector) Process(ctx context.Context, day domain.DayAward, origin, destination string) (Result, error) {
	candidate := d.candidate(day, origin, destination)

	existing, err := d.repo.GetLatest(ctx, candidate.Key)
	if errors.Is(err, domain.ErrNotFound) {
		if err := d.repo.InsertLatest(ctx, candidate); err != nil {
			observability.ObserveChange("failed")
			return Result{}, errors.Wrapf(err, "insert latest %s", candidate.Key)
		}
		observability.ObserveChange(OutcomeInserted.String())
		log.Debug().Str("key", candidate.Key.String()).Msg("created latest snapshot")
		d.invalidatePair(ctx, origin, destination)
		return Result{Outcome: OutcomeInserted}, nil
	}
	if err != nil {
		observability.ObserveChange("failed")
		return Result{}, errors.Wrapf(err, "get latest %s", candidate.Key)
	}

	diff := domain.CompareAwards(existing, candidate)
	if !diff.Changed() {
		observability.ObserveChange(OutcomeUnchanged.String())
		return Result{Outcome: OutcomeUnchanged, Diff: diff}, nil
	}

	current := candidate
	current.ID = existing.ID
	if err := d.repo.ReplaceLatest(ctx, existing, current); err != nil {
		observability.ObserveChange("failed")
		return Result{}, errors.Wrapf(err, "replace latest %s", candidate.Key)
	}
	observability.ObserveChange(OutcomeUpdated.String())

	log.Info().
		Str("key", current.Key.String()).
		Bool("points_changed", diff.PointsChanged).
		Bool("seats_changed", diff.SeatsChanged).
		Msg("price or seat availability changed")
	logEconomy(existing, current)

	if d.pub != nil {
		d.pub.Publish(domain.ChangeEvent{Previous: existing, Current: current})
	}
	d.invalidatePair(ctx, origin, destination)
	return Result{Outcome: OutcomeUpdated, Diff: diff}, nil
}

func (d *Detector) candidate(day domain.DayAward, origin, destination string) domain.Snapshot {
	return domain.Snapshot{
		ID: d.newID(),
		Key: domain.SnapshotKey{
			Origin:      origin,
			Destination: destination,
			Departure:   shared.CivilDate(day.Date),
			CarrierCode: domain.CarrierVS,
		},
		ScrapedAt:      d.clock.Now().UTC(),
		Economy:        day.Economy.Clone(),
		PremiumEconomy: day.PremiumEconomy.Clone(),
		Business:       day.Business.Clone(),
	}
}

// invalidatePair drops the query cache generation of one origin/destination pair.
func (d *Detector) invalidatePair(ctx context.Context, origin, destination string) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Del(ctx, pairVersionKey(origin, destination)); err != nil {
		log.Warn().Err(err).Str("origin", origin).Str("destination", destination).Msg("cache invalidation failed")
	}
}

func logEconomy(prev, cur domain.Snapshot) {
	if prev.Economy == nil || cur.Economy == nil {
		return
	}
	ev := log.Debug()
	if p := prev.Economy.PointsValue; p != nil {
		ev = ev.Int("points_before", *p)
	}
	if p := cur.Economy.PointsValue; p != nil {
		ev = ev.Int("points_after", *p)
	}
	if s := prev.Economy.SeatCount; s != nil {
		ev = ev.Int("seats_before", *s)
	}
	if s := cur.Economy.SeatCount; s != nil {
		ev = ev.Int("seats_after", *s)
	}
	ev.Str("key", cur.Key.String()).Msg("economy change")
}
