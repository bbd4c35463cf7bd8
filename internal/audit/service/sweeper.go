package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// midnight fires at 00:00 in whatever location the cron runs in.
var midnight = mustParseSchedule("0 0 * * *")

func mustParseSchedule(expr string) cron.Schedule {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// Purger is the slice of the audit service the sweeper drives.
type Purger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Sweeper enforces log retention once a day at wall-clock midnight.
type Sweeper struct {
	purger    Purger
	retention time.Duration
	loc       *time.Location
	log       zerolog.Logger

	schedule cron.Schedule
}

func NewSweeper(p Purger, retention time.Duration, loc *time.Location, log zerolog.Logger) *Sweeper {
	if loc == nil {
		loc = time.Local
	}
	return &Sweeper{
		purger:    p,
		retention: retention,
		loc:       loc,
		log:       log,
		schedule:  midnight,
	}
}

// NextMidnight returns the first midnight in loc strictly after t.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	return midnight.Next(t.In(loc))
}

// Start blocks until ctx is cancelled, sweeping at every midnight in the
// sweeper's location. A sweep in progress finishes before Start returns.
func (s *Sweeper) Start(ctx context.Context) {
	c := cron.New(cron.WithLocation(s.loc))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		_, _ = s.RunOnce(ctx)
	}))
	c.Start()
	s.log.Info().Dur("retention", s.retention).Str("tz", s.loc.String()).Msg("retention sweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("retention sweeper stopped")
}

// RunOnce performs a single sweep. Failures are logged; the next scheduled
// sweep retries naturally.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	s.log.Info().Msg("running scheduled job: purging old email logs")
	n, err := s.purger.PurgeOlderThan(ctx, s.retention)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled log purge failed")
		return 0, err
	}
	s.log.Info().Int64("removed", n).Msg("scheduled log purge complete")
	return n, nil
}
