// Package scheduler runs periodic database maintenance on cron schedules:
// clearing ban and mute flags whose punishments have expired, and
// compacting the SQLite file.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/graaaaa/mclog-companion/internal/app"
)

// Maintainer is the storage surface the jobs need.
type Maintainer interface {
	RefreshExpiredFlags(ctx context.Context, now time.Time) (int, error)
	VacuumIfNeeded(ctx context.Context, now time.Time, logger *slog.Logger) (bool, error)
}

// Recorder counts job outcomes.
type Recorder interface {
	FlagsExpired(n int)
}

type nopRecorder struct{}

func (nopRecorder) FlagsExpired(int) {}

// Specs holds the cron expressions. An empty spec disables that job.
type Specs struct {
	ExpirySweep string
	Vacuum      string
}

// Scheduler owns a cron runner for the maintenance jobs.
type Scheduler struct {
	store    Maintainer
	clock    app.Clock
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration

	sweep  cron.Schedule
	vacuum cron.Schedule
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source passed to the jobs.
func WithClock(c app.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithJobTimeout bounds a single job run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// New parses specs and returns a Scheduler. Call Serve to run it.
func New(store Maintainer, specs Specs, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		store:    store,
		clock:    app.SystemClock,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		timeout:  10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.sweep, err = parse(specs.ExpirySweep); err != nil {
		return nil, fmt.Errorf("expiry sweep schedule: %w", err)
	}
	if s.vacuum, err = parse(specs.Vacuum); err != nil {
		return nil, fmt.Errorf("vacuum schedule: %w", err)
	}
	return s, nil
}

func parse(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, nil
	}
	return cron.ParseStandard(spec)
}

// Serve runs one expiry sweep immediately, then the scheduled jobs until
// ctx is cancelled. It waits for a running job to finish before returning.
func (s *Scheduler) Serve(ctx context.Context) error {
	logger := cronLogger{s.logger}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	), cron.WithLogger(logger))

	if s.sweep != nil {
		c.Schedule(s.sweep, cron.FuncJob(func() { s.runJob(ctx, "expiry_sweep", s.SweepExpired) }))
		s.runJob(ctx, "expiry_sweep", s.SweepExpired)
	}
	if s.vacuum != nil {
		c.Schedule(s.vacuum, cron.FuncJob(func() { s.runJob(ctx, "vacuum", s.Vacuum) }))
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, name string, job func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := job(ctx); err != nil {
		s.logger.Error("maintenance job failed", "job", name, "error", err)
	}
}

// SweepExpired clears flags of players whose punishments have all expired.
func (s *Scheduler) SweepExpired(ctx context.Context) error {
	n, err := s.store.RefreshExpiredFlags(ctx, s.clock.Now())
	if n > 0 {
		s.recorder.FlagsExpired(n)
		s.logger.Info("cleared expired punishment flags", "players", n)
	}
	if err != nil {
		return fmt.Errorf("refresh expired flags: %w", err)
	}
	return nil
}

// Vacuum compacts the database when the last vacuum is old enough.
func (s *Scheduler) Vacuum(ctx context.Context) error {
	ran, err := s.store.VacuumIfNeeded(ctx, s.clock.Now(), s.logger)
	if err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if !ran {
		s.logger.Debug("vacuum not due")
	}
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
