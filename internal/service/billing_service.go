package service

import (
	"context"
	"time"

	"github.com/segyhp/collections-engine/internal/amortization"
	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/internal/ledger"
	"github.com/segyhp/collections-engine/internal/repository"
	customError "github.com/segyhp/collections-engine/pkg/errors"
	"github.com/segyhp/collections-engine/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillingService struct {
	LoanRepo        repository.LoanRepository
	InstallmentRepo repository.InstallmentRepository
	ClientRepo      repository.ClientRepository
	LenderRepo      repository.LenderRepository
	reader          *ledger.Reader

	// Now is the clock used for start dates, payments and health checks.
	Now func() time.Time
	// Location is the business timezone. Start and due dates are calendar
	// dates at midnight in it.
	Location *time.Location
}

func NewBillingService(
	loanRepo repository.LoanRepository,
	installmentRepo repository.InstallmentRepository,
	clientRepo repository.ClientRepository,
	lenderRepo repository.LenderRepository,
) *BillingService {
	return &BillingService{
		LoanRepo:        loanRepo,
		InstallmentRepo: installmentRepo,
		ClientRepo:      clientRepo,
		LenderRepo:      lenderRepo,
		reader:          ledger.NewReader(loanRepo, installmentRepo),
		Now:             time.Now,
		Location:        time.UTC,
	}
}

// LoanHealth is the assessment of a single loan together with its balance.
type LoanHealth struct {
	LoanID     uuid.UUID         `json:"loan_id"`
	Balance    ledger.Balance    `json:"balance"`
	Assessment ledger.Assessment `json:"assessment"`
	Status     domain.LoanStatus `json:"status"`
}

// ClientHealth is the worst tier across the active loans of a client.
type ClientHealth struct {
	ClientID uuid.UUID         `json:"client_id"`
	Tier     domain.HealthTier `json:"tier"`
	Loans    []LoanTier        `json:"loans"`
}

type LoanTier struct {
	LoanID uuid.UUID         `json:"loan_id"`
	Tier   domain.HealthTier `json:"tier"`
}

// PaymentReceipt describes how a payment was spread over installments.
type PaymentReceipt struct {
	LoanID  uuid.UUID            `json:"loan_id"`
	Amount  decimal.Decimal      `json:"amount"`
	PaidAt  time.Time            `json:"paid_at"`
	Applied []AppliedInstallment `json:"applied"`
	Balance ledger.Balance       `json:"balance"`
	Status  domain.LoanStatus    `json:"status"`
}

type AppliedInstallment struct {
	Number int                      `json:"number"`
	Amount decimal.Decimal          `json:"amount"`
	Status domain.InstallmentStatus `json:"status"`
}

// QuoteLoan computes the plan a loan request would get without storing anything.
func (s *BillingService) QuoteLoan(ctx context.Context, request *domain.CreateLoanRequest) (*amortization.Plan, error) {
	terms, err := s.termsFor(request)
	if err != nil {
		return nil, err
	}
	return amortization.Calculate(terms)
}

// CreateLoan creates a new loan and materializes its installment schedule
func (s *BillingService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.CreateLoanResponse, error) {
	if err := amortization.ValidateStruct(request); err != nil {
		return nil, err
	}
	terms, err := s.termsFor(request)
	if err != nil {
		return nil, err
	}
	plan, err := amortization.Calculate(terms)
	if err != nil {
		return nil, err
	}

	if _, err := s.ClientRepo.GetByID(ctx, request.ClientID); err != nil {
		return nil, err
	}
	if request.LenderID != nil {
		if _, err := s.LenderRepo.GetByID(ctx, *request.LenderID); err != nil {
			return nil, err
		}
	}

	now := s.Now()
	loan := &domain.Loan{
		ID:                uuid.New(),
		ClientID:          request.ClientID,
		LenderID:          request.LenderID,
		Principal:         terms.Principal,
		InterestRate:      terms.Rate,
		InterestType:      terms.InterestType,
		Frequency:         terms.Frequency,
		Term:              terms.Term,
		InstallmentAmount: plan.InstallmentAmount,
		TotalInterest:     plan.TotalInterest,
		TotalPayable:      plan.TotalPayable,
		Status:            domain.LoanStatusActive,
		StartDate:         terms.StartDate,
		EndDate:           plan.LastDueDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	installments := make([]*domain.Installment, 0, len(plan.Schedule))
	for _, row := range plan.Schedule {
		installments = append(installments, &domain.Installment{
			ID:         uuid.New(),
			LoanID:     loan.ID,
			Number:     row.Number,
			Amount:     row.Amount,
			DueDate:    row.DueDate,
			Status:     domain.InstallmentPending,
			PaidAmount: decimal.Zero,
			CreatedAt:  now,
		})
	}

	if err := s.LoanRepo.Create(ctx, loan, installments); err != nil {
		return nil, err
	}

	return &domain.CreateLoanResponse{Loan: loan, Installments: installments}, nil
}

// GetLedger returns the balance of a loan
func (s *BillingService) GetLedger(ctx context.Context, loanID uuid.UUID) (ledger.Balance, error) {
	return s.reader.Read(ctx, loanID)
}

// GetLoanHealth classifies a loan as of now
func (s *BillingService) GetLoanHealth(ctx context.Context, loanID uuid.UUID) (*LoanHealth, error) {
	loan, err := s.LoanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	rows, err := s.InstallmentRepo.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	balance := ledger.Summarize(loan, rows)
	return &LoanHealth{
		LoanID:     loan.ID,
		Balance:    balance,
		Assessment: ledger.Classify(loan, balance.TotalPaid, s.Now().In(s.Location)),
		Status:     loan.Status,
	}, nil
}

// GetClientHealth returns the worst tier across the client's active loans.
// A client without active loans is CURRENT.
func (s *BillingService) GetClientHealth(ctx context.Context, clientID uuid.UUID) (*ClientHealth, error) {
	if _, err := s.ClientRepo.GetByID(ctx, clientID); err != nil {
		return nil, err
	}
	loans, err := s.LoanRepo.ListByClient(ctx, clientID, domain.LoanStatusActive)
	if err != nil {
		return nil, err
	}

	now := s.Now().In(s.Location)
	result := &ClientHealth{ClientID: clientID, Loans: make([]LoanTier, 0, len(loans))}
	tiers := make([]domain.HealthTier, 0, len(loans))
	for _, loan := range loans {
		rows, err := s.InstallmentRepo.ListByLoan(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		tier := ledger.Classify(loan, ledger.TotalPaid(rows), now).Tier
		tiers = append(tiers, tier)
		result.Loans = append(result.Loans, LoanTier{LoanID: loan.ID, Tier: tier})
	}
	result.Tier = ledger.Worst(tiers...)

	return result, nil
}

// RecordPayment applies a payment to the oldest unpaid installments first.
// Amounts above the outstanding balance are rejected; when the balance
// reaches zero the loan is marked PAID.
func (s *BillingService) RecordPayment(ctx context.Context, loanID uuid.UUID, request *domain.RecordPaymentRequest) (*PaymentReceipt, error) {
	if err := amortization.ValidateStruct(request); err != nil {
		return nil, err
	}

	loan, err := s.LoanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.IsOpen() {
		return nil, customError.WrapLoanAlreadyClosed(loanID.String())
	}

	paidAt := s.Now()
	if request.PaidAt != nil {
		paidAt = *request.PaidAt
	}

	// The outstanding check and the allocation see the rows as locked by
	// the store, so concurrent payments cannot overwrite each other.
	var applied []AppliedInstallment
	var after ledger.Balance
	err = s.InstallmentRepo.ApplyPayment(ctx, loanID, func(rows []*domain.Installment) ([]*domain.Installment, error) {
		before := ledger.Summarize(loan, rows)
		if request.Amount.GreaterThan(before.Outstanding) {
			return nil, customError.WrapInvalidPaymentAmount(request.Amount.String(), "exceeds outstanding balance "+before.Outstanding.StringFixed(2))
		}

		left := request.Amount
		var touched []*domain.Installment
		for _, row := range rows {
			if !left.IsPositive() {
				break
			}
			if row.IsPaid() {
				continue
			}
			due := row.Remaining()
			if !due.IsPositive() {
				continue
			}
			take := decimal.Min(due, left)
			left = left.Sub(take)

			at := paidAt
			row.PaidAmount = row.PaidAmount.Add(take)
			row.PaidAt = &at
			if row.PaidAmount.GreaterThanOrEqual(row.Amount) {
				row.Status = domain.InstallmentPaid
			}
			touched = append(touched, row)
			applied = append(applied, AppliedInstallment{Number: row.Number, Amount: take, Status: row.Status})
		}

		after = ledger.Summarize(loan, rows)
		return touched, nil
	})
	if err != nil {
		return nil, err
	}

	status := loan.Status
	if after.IsSettled {
		if err := s.LoanRepo.UpdateStatus(ctx, loanID, domain.LoanStatusPaid); err != nil {
			return nil, err
		}
		status = domain.LoanStatusPaid
	}

	return &PaymentReceipt{
		LoanID:  loanID,
		Amount:  request.Amount,
		PaidAt:  paidAt,
		Applied: applied,
		Balance: after,
		Status:  status,
	}, nil
}

// termsFor resolves the loan request into calculator terms, accepting the
// Spanish frequency and interest labels.
func (s *BillingService) termsFor(request *domain.CreateLoanRequest) (amortization.Terms, error) {
	freq, ok := domain.ParseFrequency(request.Frequency)
	if !ok {
		return amortization.Terms{}, customError.WrapValidation("Frequency", "must be one of DAILY, WEEKLY, BIWEEKLY, MONTHLY")
	}
	it, ok := domain.ParseInterestType(request.InterestType)
	if !ok {
		return amortization.Terms{}, customError.WrapValidation("InterestType", "must be one of FLAT_TOTAL, PERIODIC")
	}

	// A given start date counts as the calendar day written in the request.
	start := utils.Today(s.Now(), s.Location)
	if request.StartDate != nil {
		start = utils.DateIn(*request.StartDate, s.Location)
	}

	return amortization.Terms{
		Principal:    request.Principal,
		Rate:         request.InterestRate,
		Frequency:    freq,
		InterestType: it,
		Term:         request.Term,
		StartDate:    start,
	}, nil
}
