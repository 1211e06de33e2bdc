package amortization

import (
	"errors"
	"testing"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func terms(principal int64, rate string, freq domain.Frequency, it domain.InterestType, term int) Terms {
	return Terms{
		Principal:    decimal.NewFromInt(principal),
		Rate:         decimal.RequireFromString(rate),
		Frequency:    freq,
		InterestType: it,
		Term:         term,
		StartDate:    start,
	}
}

func TestCalculate_FlatDailyScenario(t *testing.T) {
	plan, err := Calculate(terms(100000, "20", domain.FrequencyDaily, domain.InterestFlatTotal, 30))
	require.NoError(t, err)

	assert.True(t, plan.TotalInterest.Equal(decimal.NewFromInt(20000)), "interest %s", plan.TotalInterest)
	assert.True(t, plan.TotalPayable.Equal(decimal.NewFromInt(120000)), "total %s", plan.TotalPayable)
	assert.True(t, plan.InstallmentAmount.Equal(decimal.NewFromInt(4000)), "installment %s", plan.InstallmentAmount)
	assert.Equal(t, start.AddDate(0, 0, 1), plan.FirstDueDate)
	assert.Equal(t, start.AddDate(0, 0, 30), plan.LastDueDate)
	assert.Len(t, plan.Schedule, 30)
}

func TestCalculate_Table(t *testing.T) {
	tests := []struct {
		name         string
		terms        Terms
		installment  string
		totalPayable string
		lastDue      time.Time
	}{
		{
			name:         "periodic monthly",
			terms:        terms(1000000, "10", domain.FrequencyMonthly, domain.InterestPeriodic, 6),
			installment:  "266666.66",
			totalPayable: "1600000",
			lastDue:      time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "periodic biweekly",
			terms:        terms(200000, "10", domain.FrequencyBiweekly, domain.InterestPeriodic, 4),
			installment:  "60000",
			totalPayable: "240000",
			lastDue:      start.AddDate(0, 0, 60),
		},
		{
			name:         "flat weekly zero rate",
			terms:        terms(50000, "0", domain.FrequencyWeekly, domain.InterestFlatTotal, 5),
			installment:  "10000",
			totalPayable: "50000",
			lastDue:      start.AddDate(0, 0, 35),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Calculate(tt.terms)
			require.NoError(t, err)
			assert.True(t, plan.InstallmentAmount.Equal(decimal.RequireFromString(tt.installment)), "installment %s", plan.InstallmentAmount)
			assert.True(t, plan.TotalPayable.Equal(decimal.RequireFromString(tt.totalPayable)), "total %s", plan.TotalPayable)
			assert.Equal(t, tt.lastDue, plan.LastDueDate)
		})
	}
}

func TestCalculate_InstallmentsWithinTolerance(t *testing.T) {
	oneCent := decimal.RequireFromString("0.01")
	for _, principal := range []int64{1, 999, 100000, 1234567} {
		for _, rate := range []string{"0", "7.5", "20", "33.3"} {
			for _, term := range []int{1, 3, 7, 30, 52} {
				for _, freq := range []domain.Frequency{domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyBiweekly, domain.FrequencyMonthly} {
					plan, err := Calculate(terms(principal, rate, freq, domain.InterestPeriodic, term))
					require.NoError(t, err)

					drift := plan.InstallmentAmount.Mul(decimal.NewFromInt(int64(term))).Sub(plan.TotalPayable).Abs()
					assert.True(t, drift.LessThanOrEqual(oneCent.Mul(decimal.NewFromInt(int64(term)))),
						"principal=%d rate=%s term=%d drift=%s", principal, rate, term, drift)

					sum := decimal.Zero
					for _, row := range plan.Schedule {
						sum = sum.Add(row.Amount)
					}
					assert.True(t, sum.Equal(plan.TotalPayable), "schedule sums to %s, want %s", sum, plan.TotalPayable)
					assert.True(t, plan.TotalPayable.GreaterThanOrEqual(decimal.NewFromInt(principal)))
				}
			}
		}
	}
}

func TestCalculate_FinalInstallmentAbsorbsRemainder(t *testing.T) {
	plan, err := Calculate(terms(100, "0", domain.FrequencyDaily, domain.InterestFlatTotal, 3))
	require.NoError(t, err)

	assert.True(t, plan.InstallmentAmount.Equal(decimal.RequireFromString("33.33")))
	assert.True(t, plan.FinalInstallment.Equal(decimal.RequireFromString("33.34")))
	assert.True(t, plan.Schedule[2].Amount.Equal(plan.FinalInstallment))

	plan, err = Calculate(terms(1, "0", domain.FrequencyWeekly, domain.InterestFlatTotal, 52))
	require.NoError(t, err)
	assert.True(t, plan.InstallmentAmount.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, plan.FinalInstallment.Equal(decimal.RequireFromString("0.49")))
}

func TestCalculate_FlatInterestIgnoresTerm(t *testing.T) {
	base, err := Calculate(terms(100000, "20", domain.FrequencyWeekly, domain.InterestFlatTotal, 4))
	require.NoError(t, err)

	for _, term := range []int{1, 8, 40} {
		plan, err := Calculate(terms(100000, "20", domain.FrequencyWeekly, domain.InterestFlatTotal, term))
		require.NoError(t, err)
		assert.True(t, plan.TotalInterest.Equal(base.TotalInterest), "term %d", term)
	}
}

func TestCalculate_PeriodicInterestGrowsWithTerm(t *testing.T) {
	for _, freq := range []domain.Frequency{domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyBiweekly, domain.FrequencyMonthly} {
		prev := decimal.NewFromInt(-1)
		for term := 1; term <= 40; term++ {
			plan, err := Calculate(terms(100000, "10", freq, domain.InterestPeriodic, term))
			require.NoError(t, err)
			assert.True(t, plan.TotalInterest.GreaterThan(prev), "%s term %d", freq, term)
			prev = plan.TotalInterest
		}
	}
}

func TestCalculate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		terms Terms
		field string
	}{
		{"zero principal", terms(0, "10", domain.FrequencyDaily, domain.InterestFlatTotal, 10), "Principal"},
		{"negative principal", terms(-5, "10", domain.FrequencyDaily, domain.InterestFlatTotal, 10), "Principal"},
		{"negative rate", terms(100, "-1", domain.FrequencyDaily, domain.InterestFlatTotal, 10), "Rate"},
		{"zero term", terms(100, "10", domain.FrequencyDaily, domain.InterestFlatTotal, 0), "Term"},
		{"unknown frequency", terms(100, "10", domain.Frequency("HOURLY"), domain.InterestFlatTotal, 10), "Frequency"},
		{"unknown interest type", terms(100, "10", domain.FrequencyDaily, domain.InterestType("COMPOUND"), 10), "InterestType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Calculate(tt.terms)
			assert.Nil(t, plan)
			require.Error(t, err)
			assert.True(t, errors.Is(err, customError.ErrValidation))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
