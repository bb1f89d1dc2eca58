package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// Scheduler runs a job with fixed-delay semantics: the next run starts
// interval after the previous one has returned, so runs never overlap.
type Scheduler struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	job          func(ctx context.Context) error
}

func NewScheduler(name string, initialDelay, interval time.Duration, job func(ctx context.Context) error) *Scheduler {
	return &Scheduler{name: name, initialDelay: initialDelay, interval: interval, job: job}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Str("job", s.name).
		Dur("initial_delay", s.initialDelay).
		Dur("interval", s.interval).
		Msg("scheduler started")

	if err := pause(ctx, s.initialDelay); err != nil {
		return nil
	}
	for {
		s.runOnce(ctx)
		if err := pause(ctx, s.interval); err != nil {
			log.Info().Str("job", s.name).Msg("scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	err := s.job(ctx)
	switch {
	case err == nil:
		log.Info().Str("job", s.name).Dur("took", time.Since(start)).Msg("scheduled job finished")
	case errors.Is(err, context.Canceled):
		log.Info().Str("job", s.name).Dur("took", time.Since(start)).Msg("scheduled job cancelled")
	default:
		log.Error().Err(err).Str("job", s.name).Dur("took", time.Since(start)).Msg("scheduled job failed")
	}
}

// pause waits for d and reports ctx's error if it is done first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
