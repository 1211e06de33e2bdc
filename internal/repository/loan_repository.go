package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const loanColumns = `id, client_id, lender_id, principal, interest_rate, interest_type, frequency, term,
		installment_amount, total_interest, total_payable, status, start_date, end_date, created_at, updated_at`

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan, installments []*domain.Installment) error {
	loanQuery := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	installmentQuery := `
		INSERT INTO installments (id, loan_id, number, amount, due_date, status, paid_amount, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	defer tx.Rollback()

	// Calendar dates are written as DATE literals so the session timezone
	// cannot move them.
	_, err = tx.ExecContext(ctx, loanQuery,
		loan.ID,
		loan.ClientID,
		loan.LenderID,
		loan.Principal,
		loan.InterestRate,
		loan.InterestType,
		loan.Frequency,
		loan.Term,
		loan.InstallmentAmount,
		loan.TotalInterest,
		loan.TotalPayable,
		loan.Status,
		loan.StartDate.Format(time.DateOnly),
		loan.EndDate.Format(time.DateOnly),
		loan.CreatedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	for _, inst := range installments {
		_, err = tx.ExecContext(ctx, installmentQuery,
			inst.ID,
			inst.LoanID,
			inst.Number,
			inst.Amount,
			inst.DueDate.Format(time.DateOnly),
			inst.Status,
			inst.PaidAmount,
			inst.PaidAt,
			inst.CreatedAt,
		)
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var loan domain.Loan
	err := r.db.GetContext(ctx, &loan, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapNotFound("loan", id.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &loan, nil
}

func (r *loanRepository) ListByClient(ctx context.Context, clientID uuid.UUID, status domain.LoanStatus) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE client_id = $1 AND status = $2 ORDER BY start_date`

	var loans []*domain.Loan
	if err := r.db.SelectContext(ctx, &loans, query, clientID, status); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return loans, nil
}

func (r *loanRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LoanStatus) error {
	query := `
		UPDATE loans
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return customError.WrapNotFound("loan", id.String())
	}
	return nil
}
