// Package ledger derives balances and payment health from the installment ledger.
package ledger

import (
	"context"

	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Balance is the money position of a single loan.
type Balance struct {
	LoanID       uuid.UUID       `json:"loan_id"`
	TotalPayable decimal.Decimal `json:"total_payable"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	IsSettled    bool            `json:"is_settled"`
	Overpaid     bool            `json:"overpaid"`
	Overpayment  decimal.Decimal `json:"overpayment"`
}

// Reader loads a loan with its installments and summarizes them. It never writes.
type Reader struct {
	loans        repository.LoanRepository
	installments repository.InstallmentRepository
}

func NewReader(loans repository.LoanRepository, installments repository.InstallmentRepository) *Reader {
	return &Reader{loans: loans, installments: installments}
}

// Read returns the balance of loanID. Repository errors are returned as-is so
// NotFound and Storage errors reach the caller unchanged.
func (r *Reader) Read(ctx context.Context, loanID uuid.UUID) (Balance, error) {
	loan, err := r.loans.GetByID(ctx, loanID)
	if err != nil {
		return Balance{}, err
	}
	rows, err := r.installments.ListByLoan(ctx, loanID)
	if err != nil {
		return Balance{}, err
	}
	return Summarize(loan, rows), nil
}

// Summarize computes a balance from already-loaded rows.
func Summarize(loan *domain.Loan, rows []*domain.Installment) Balance {
	paid := TotalPaid(rows)
	diff := loan.TotalPayable.Sub(paid)

	b := Balance{
		LoanID:       loan.ID,
		TotalPayable: loan.TotalPayable,
		TotalPaid:    paid,
		Outstanding:  decimal.Max(diff, decimal.Zero),
		Overpayment:  decimal.Zero,
	}
	b.IsSettled = !b.Outstanding.IsPositive()
	if diff.IsNegative() {
		b.Overpaid = true
		b.Overpayment = diff.Neg()
	}
	return b
}

// TotalPaid sums the amounts paid against rows, partial payments included.
func TotalPaid(rows []*domain.Installment) decimal.Decimal {
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.PaidAmount)
	}
	return sum
}
