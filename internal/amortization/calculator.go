// Package amortization turns loan terms into a fixed payment plan.
package amortization

import (
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Terms are the inputs of a loan plan.
type Terms struct {
	Principal    decimal.Decimal     `validate:"decimal_gt0"`
	Rate         decimal.Decimal     `validate:"decimal_gte0"`
	Frequency    domain.Frequency    `validate:"frequency"`
	InterestType domain.InterestType `validate:"interest_type"`
	Term         int                 `validate:"gt=0"`
	StartDate    time.Time
}

// ScheduledInstallment is one row of a plan.
type ScheduledInstallment struct {
	Number  int             `json:"number"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date"`
}

// Plan is the computed payment plan. The final installment absorbs any
// rounding remainder so the schedule sums exactly to TotalPayable.
type Plan struct {
	InstallmentAmount decimal.Decimal        `json:"installment_amount"`
	FinalInstallment  decimal.Decimal        `json:"final_installment"`
	TotalInterest     decimal.Decimal        `json:"total_interest"`
	TotalPayable      decimal.Decimal        `json:"total_payable"`
	FirstDueDate      time.Time              `json:"first_due_date"`
	LastDueDate       time.Time              `json:"last_due_date"`
	Schedule          []ScheduledInstallment `json:"schedule"`
}

// Calculate validates terms and computes the plan. No partial result is
// returned on validation failure.
func Calculate(terms Terms) (*Plan, error) {
	if err := Validate(terms); err != nil {
		return nil, err
	}

	interest := TotalInterest(terms.Principal, terms.Rate, terms.Frequency, terms.InterestType, terms.Term)
	totalPayable := terms.Principal.Add(interest).Round(2)
	interest = totalPayable.Sub(terms.Principal)

	// Cents are truncated so the final installment is never smaller than the others.
	installment := totalPayable.Div(decimal.NewFromInt(int64(terms.Term))).Truncate(2)
	final := totalPayable.Sub(installment.Mul(decimal.NewFromInt(int64(terms.Term - 1))))

	start := utils.StartOfDay(terms.StartDate)
	schedule := make([]ScheduledInstallment, 0, terms.Term)
	for n := 1; n <= terms.Term; n++ {
		amount := installment
		if n == terms.Term {
			amount = final
		}
		schedule = append(schedule, ScheduledInstallment{
			Number:  n,
			Amount:  amount,
			DueDate: utils.CalculateDueDate(start, terms.Frequency, n),
		})
	}

	return &Plan{
		InstallmentAmount: installment,
		FinalInstallment:  final,
		TotalInterest:     interest,
		TotalPayable:      totalPayable,
		FirstDueDate:      schedule[0].DueDate,
		LastDueDate:       schedule[len(schedule)-1].DueDate,
		Schedule:          schedule,
	}, nil
}

// TotalInterest computes the unrounded interest for the given terms.
//
//	FLAT_TOTAL: principal × rate/100
//	PERIODIC:   principal × rate/100 × (term expressed in months)
func TotalInterest(principal, rate decimal.Decimal, freq domain.Frequency, it domain.InterestType, term int) decimal.Decimal {
	base := principal.Mul(rate).Div(hundred)
	if it == domain.InterestFlatTotal {
		return base
	}
	months := decimal.NewFromInt(int64(term)).DivRound(utils.PeriodsPerMonth(freq), 16)
	return base.Mul(months)
}

// Validate checks terms, returning a validation error describing the first
// offending field.
func Validate(terms Terms) error {
	if err := validate.Struct(terms); err != nil {
		return translate(err)
	}
	return nil
}
