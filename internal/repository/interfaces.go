package repository

import (
	"context"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"

	"github.com/google/uuid"
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create stores a loan together with its materialized installments atomically
	Create(ctx context.Context, loan *domain.Loan, installments []*domain.Installment) error

	// GetByID retrieves a loan, or a NotFound error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// ListByClient retrieves the loans of a client in the given status
	ListByClient(ctx context.Context, clientID uuid.UUID, status domain.LoanStatus) ([]*domain.Loan, error)

	// UpdateStatus changes the lifecycle status of a loan
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LoanStatus) error
}

// InstallmentRepository defines the interface for installment ledger operations
type InstallmentRepository interface {
	// ListByLoan retrieves the installments of a loan ordered by number
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error)

	// ApplyPayment hands the loan's installments to allocate while they are
	// locked against other payments, then persists the rows it returns.
	// Nothing is written when allocate fails
	ApplyPayment(ctx context.Context, loanID uuid.UUID, allocate PaymentAllocator) error

	// MarkOverdue moves every PENDING installment not fully paid whose due
	// date is before the cutoff's calendar date to OVERDUE and returns how
	// many rows changed
	MarkOverdue(ctx context.Context, before time.Time) (int64, error)

	// FindDueBetween lists notices for installments in status due in [from, to),
	// compared as calendar dates
	FindDueBetween(ctx context.Context, status domain.InstallmentStatus, from, to time.Time) ([]*domain.InstallmentNotice, error)

	// FindByStatus lists notices for all installments in status
	FindByStatus(ctx context.Context, status domain.InstallmentStatus) ([]*domain.InstallmentNotice, error)
}

// PaymentAllocator receives every installment of a loan ordered by number
// and returns the rows it changed.
type PaymentAllocator func(rows []*domain.Installment) ([]*domain.Installment, error)

// ClientRepository defines the interface for borrower lookups
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Client, error)
}

// LenderRepository defines the interface for lender lookups
type LenderRepository interface {
	Create(ctx context.Context, lender *domain.Lender) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lender, error)
}
