// Package jobs holds the batch work of the engine: the overdue sweep and the
// collections passes. The scheduler and the operator trigger call the same
// functions.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/segyhp/collections-engine/internal/metrics"
	"github.com/segyhp/collections-engine/internal/repository"
	"github.com/segyhp/collections-engine/pkg/utils"
)

// Sweeper moves unpaid installments whose due date has passed to OVERDUE.
type Sweeper struct {
	installments repository.InstallmentRepository
	loc          *time.Location
	logger       *slog.Logger

	Now func() time.Time
}

func NewSweeper(installments repository.InstallmentRepository, loc *time.Location, logger *slog.Logger) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		installments: installments,
		loc:          loc,
		logger:       logger.With("component", "sweeper"),
		Now:          time.Now,
	}
}

// Run marks every PENDING installment without payment due before today.
// Running it twice on the same day changes nothing the second time.
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	today := utils.Today(s.Now(), s.loc)

	n, err := s.installments.MarkOverdue(ctx, today)
	if err != nil {
		s.logger.ErrorContext(ctx, "Overdue sweep failed", slog.Any("error", err))
		return 0, err
	}

	metrics.InstallmentsMarkedOverdue.Add(float64(n))
	s.logger.InfoContext(ctx, "Overdue sweep finished", "updated", n, "cutoff", today.Format(time.DateOnly))
	return n, nil
}
