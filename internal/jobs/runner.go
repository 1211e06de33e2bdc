package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Lock names. The trigger takes the same ones as the scheduled jobs.
const (
	JobSweep       = "overdue-sweep"
	JobCollections = "collections"
)

// TriggerResult is the outcome of a manual run.
type TriggerResult struct {
	OverdueUpdated int64 `json:"overdueUpdated"`
	RemindersDue   int   `json:"remindersDue"`
	AlertsSent     int   `json:"alertsSent"`
}

// Runner exposes the jobs as plain functions, each guarded by its lock.
type Runner struct {
	sweeper     *Sweeper
	collections *Collections
	lock        Lock
	ttl         time.Duration
	logger      *slog.Logger
}

// NewRunner builds a Runner. ttl bounds how long a crashed holder can keep a
// distributed lock.
func NewRunner(sweeper *Sweeper, collections *Collections, lock Lock, ttl time.Duration, logger *slog.Logger) *Runner {
	if lock == nil {
		lock = NewLocalLock()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sweeper:     sweeper,
		collections: collections,
		lock:        lock,
		ttl:         ttl,
		logger:      logger.With("component", "runner"),
	}
}

func (r *Runner) sweep(ctx context.Context) (n int64, err error) {
	err = withLock(ctx, r.lock, JobSweep, r.ttl, func(ctx context.Context) error {
		n, err = r.sweeper.Run(ctx)
		return err
	})
	return n, err
}

// collect runs reminders then lender alerts. A failed reminders pass does
// not stop the alerts.
func (r *Runner) collect(ctx context.Context) (rem ReminderResult, alerts AlertResult, err error) {
	err = withLock(ctx, r.lock, JobCollections, r.ttl, func(ctx context.Context) error {
		var remErr, alertErr error
		rem, remErr = r.collections.RemindersDueTomorrow(ctx)
		alerts, alertErr = r.collections.AlertLenders(ctx)
		return errors.Join(remErr, alertErr)
	})
	return rem, alerts, err
}

// SweepJob is the scheduled overdue sweep.
func (r *Runner) SweepJob(ctx context.Context) error {
	_, err := r.sweep(ctx)
	return err
}

// CollectionsJob is the scheduled reminders and alerts run.
func (r *Runner) CollectionsJob(ctx context.Context) error {
	_, _, err := r.collect(ctx)
	return err
}

// Run sweeps, then sends reminders and alerts, synchronously. A sweep
// failure aborts the run.
func (r *Runner) Run(ctx context.Context) (TriggerResult, error) {
	var result TriggerResult

	n, err := r.sweep(ctx)
	if err != nil {
		return result, err
	}
	result.OverdueUpdated = n

	rem, alerts, err := r.collect(ctx)
	result.RemindersDue = rem.Due
	result.AlertsSent = alerts.Sent
	if err != nil {
		return result, err
	}

	r.logger.InfoContext(ctx, "Manual run finished",
		"overdueUpdated", result.OverdueUpdated, "remindersDue", result.RemindersDue, "alertsSent", result.AlertsSent)
	return result, nil
}
