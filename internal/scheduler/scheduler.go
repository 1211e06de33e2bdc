// Package scheduler runs the daily jobs on wall-clock times in the business
// timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segyhp/collections-engine/internal/metrics"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/go-chi/traceid"
	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work. It must honor ctx.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *slog.Logger
	entries map[string]cron.EntryID
}

// New builds a scheduler. A job still running when its next tick fires is
// skipped, and a panicking job is recovered and logged.
func New(loc *time.Location, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timeout: timeout,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// ParseDaily turns "HH:MM" into a cron spec firing once a day.
func ParseDaily(at string) (string, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(at), ":")
	if !ok {
		return "", fmt.Errorf("invalid daily time %q: want HH:MM", at)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", at)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return "", fmt.Errorf("invalid minute in %q", at)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// RegisterDaily schedules fn every day at "HH:MM".
func (s *Scheduler) RegisterDaily(name, at string, fn Job) error {
	spec, err := ParseDaily(at)
	if err != nil {
		return err
	}
	id, err := s.cron.AddFunc(spec, s.wrap(name, fn))
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.entries[name] = id
	s.logger.Info("Job scheduled", "job", name, "at", at)
	return nil
}

// Next returns when the named job fires after from.
func (s *Scheduler) Next(name string, from time.Time) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Schedule.Next(from), true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wrap gives each run its own trace id and deadline, and records it.
func (s *Scheduler) wrap(name string, fn Job) func() {
	return func() {
		ctx := traceid.NewContext(context.Background())
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		started := time.Now()
		s.logger.InfoContext(ctx, "Job started", "job", name)
		err := fn(ctx)
		metrics.ObserveJob(name, started, err)

		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "Job finished", "job", name, "duration", time.Since(started))
		case errors.Is(err, customError.ErrJobAlreadyRunning):
			s.logger.WarnContext(ctx, "Job skipped, already running elsewhere", "job", name)
		default:
			s.logger.ErrorContext(ctx, "Job failed", "job", name, slog.Any("error", err))
		}
	}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}
