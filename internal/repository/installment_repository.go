package repository

import (
	"context"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const noticeSelect = `
		SELECT i.id AS installment_id, i.loan_id, i.number, i.amount, i.paid_amount, i.due_date, i.status,
		       l.frequency, c.id AS client_id, c.name AS client_name, c.phone AS client_phone,
		       c.email AS client_email, ld.id AS lender_id, ld.name AS lender_name,
		       ld.phone AS lender_phone, ld.email AS lender_email
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		JOIN clients c ON c.id = l.client_id
		LEFT JOIN lenders ld ON ld.id = l.lender_id
`

const installmentColumns = `id, loan_id, number, amount, due_date, status, paid_amount, paid_at, created_at`

type installmentRepository struct {
	db *sqlx.DB
}

func NewInstallmentRepository(db *sqlx.DB) InstallmentRepository {
	return &installmentRepository{db: db}
}

func (r *installmentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM installments
		WHERE loan_id = $1
		ORDER BY number
	`

	var rows []*domain.Installment
	if err := r.db.SelectContext(ctx, &rows, query, loanID); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return rows, nil
}

func (r *installmentRepository) ApplyPayment(ctx context.Context, loanID uuid.UUID, allocate PaymentAllocator) error {
	// Row locks serialize payments on the same loan until commit.
	selectQuery := `
		SELECT ` + installmentColumns + `
		FROM installments
		WHERE loan_id = $1
		ORDER BY number
		FOR UPDATE
	`
	updateQuery := `
		UPDATE installments
		SET paid_amount = $2, paid_at = $3, status = $4
		WHERE id = $1 AND status <> 'PAID'
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	defer tx.Rollback()

	var rows []*domain.Installment
	if err := tx.SelectContext(ctx, &rows, selectQuery, loanID); err != nil {
		return customError.WrapDatabaseError(err)
	}

	touched, err := allocate(rows)
	if err != nil {
		return err
	}

	for _, row := range touched {
		if _, err = tx.ExecContext(ctx, updateQuery, row.ID, row.PaidAmount, row.PaidAt, row.Status); err != nil {
			return customError.WrapDatabaseError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (r *installmentRepository) MarkOverdue(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE installments
		SET status = 'OVERDUE'
		WHERE status = 'PENDING' AND paid_amount < amount AND due_date < $1::date
	`

	res, err := r.db.ExecContext(ctx, query, before.Format(time.DateOnly))
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}
	return n, nil
}

func (r *installmentRepository) FindDueBetween(ctx context.Context, status domain.InstallmentStatus, from, to time.Time) ([]*domain.InstallmentNotice, error) {
	query := noticeSelect + `
		WHERE i.status = $1 AND i.due_date >= $2::date AND i.due_date < $3::date
		ORDER BY i.due_date, c.name
	`

	var notices []*domain.InstallmentNotice
	if err := r.db.SelectContext(ctx, &notices, query, status, from.Format(time.DateOnly), to.Format(time.DateOnly)); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return notices, nil
}

func (r *installmentRepository) FindByStatus(ctx context.Context, status domain.InstallmentStatus) ([]*domain.InstallmentNotice, error) {
	query := noticeSelect + `
		WHERE i.status = $1
		ORDER BY i.due_date, c.name
	`

	var notices []*domain.InstallmentNotice
	if err := r.db.SelectContext(ctx, &notices, query, status); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return notices, nil
}
