package mocks

import (
	"context"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan, installments []*domain.Installment) error {
	args := m.Called(ctx, loan, installments)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) ListByClient(ctx context.Context, clientID uuid.UUID, status domain.LoanStatus) ([]*domain.Loan, error) {
	args := m.Called(ctx, clientID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LoanStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

type MockInstallmentRepository struct {
	mock.Mock

	Applied []*domain.Installment
}

func (m *MockInstallmentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Installment), args.Error(1)
}

// ApplyPayment runs allocate over the rows configured for loanID and
// records what it wrote in Applied.
func (m *MockInstallmentRepository) ApplyPayment(ctx context.Context, loanID uuid.UUID, allocate repository.PaymentAllocator) error {
	args := m.Called(ctx, loanID)
	if err := args.Error(1); err != nil {
		return err
	}
	rows, _ := args.Get(0).([]*domain.Installment)
	touched, err := allocate(rows)
	if err != nil {
		return err
	}
	m.Applied = append(m.Applied, touched...)
	return nil
}

func (m *MockInstallmentRepository) MarkOverdue(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInstallmentRepository) FindDueBetween(ctx context.Context, status domain.InstallmentStatus, from, to time.Time) ([]*domain.InstallmentNotice, error) {
	args := m.Called(ctx, status, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InstallmentNotice), args.Error(1)
}

func (m *MockInstallmentRepository) FindByStatus(ctx context.Context, status domain.InstallmentStatus) ([]*domain.InstallmentNotice, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InstallmentNotice), args.Error(1)
}

type MockClientRepository struct {
	mock.Mock
}

func (m *MockClientRepository) Create(ctx context.Context, client *domain.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *MockClientRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

type MockLenderRepository struct {
	mock.Mock
}

func (m *MockLenderRepository) Create(ctx context.Context, lender *domain.Lender) error {
	args := m.Called(ctx, lender)
	return args.Error(0)
}

func (m *MockLenderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lender, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lender), args.Error(1)
}
