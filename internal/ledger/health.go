package ledger

import (
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

// Assessment explains how a tier was reached.
type Assessment struct {
	Tier                 domain.HealthTier `json:"tier"`
	ElapsedPeriods       int               `json:"elapsed_periods"`
	ExpectedInstallments int               `json:"expected_installments"`
	ExpectedAmount       decimal.Decimal   `json:"expected_amount"`
	TotalPaid            decimal.Decimal   `json:"total_paid"`
	Shortfall            decimal.Decimal   `json:"shortfall"`
}

// Classify compares what the schedule expects by asOf with what was paid.
//
// A shortfall of at most one installment is LATE, anything beyond is DELINQUENT.
// Periods are counted between calendar dates in asOf's location. Once the
// whole term has elapsed the full payable amount is expected, including the
// remainder carried by the final installment.
func Classify(loan *domain.Loan, totalPaid decimal.Decimal, asOf time.Time) Assessment {
	loc := asOf.Location()
	elapsed := utils.ElapsedPeriods(utils.DateIn(loan.StartDate, loc), utils.Today(asOf, loc), loan.Frequency)
	expected := min(elapsed, loan.Term)
	expectedAmount := loan.InstallmentAmount.Mul(decimal.NewFromInt(int64(expected)))
	if expected == loan.Term && loan.TotalPayable.GreaterThan(expectedAmount) {
		expectedAmount = loan.TotalPayable
	}
	shortfall := expectedAmount.Sub(totalPaid)

	var tier domain.HealthTier
	switch {
	case !shortfall.IsPositive():
		tier = domain.HealthCurrent
	case shortfall.LessThanOrEqual(loan.InstallmentAmount):
		tier = domain.HealthLate
	default:
		tier = domain.HealthDelinquent
	}

	return Assessment{
		Tier:                 tier,
		ElapsedPeriods:       elapsed,
		ExpectedInstallments: expected,
		ExpectedAmount:       expectedAmount,
		TotalPaid:            totalPaid,
		Shortfall:            shortfall,
	}
}

// Worst returns the most severe tier, or CURRENT when none are given.
func Worst(tiers ...domain.HealthTier) domain.HealthTier {
	worst := domain.HealthCurrent
	for _, t := range tiers {
		if t.Severity() > worst.Severity() {
			worst = t
		}
	}
	return worst
}
