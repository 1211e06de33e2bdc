package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusPaid      LoanStatus = "PAID"
	LoanStatusDefaulted LoanStatus = "DEFAULTED"
)

// Frequency is the cadence at which installments fall due.
type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
)

// InterestType selects how the total interest of a loan is computed.
type InterestType string

const (
	// InterestFlatTotal applies the rate once on the principal.
	InterestFlatTotal InterestType = "FLAT_TOTAL"
	// InterestPeriodic applies the rate per month of term.
	InterestPeriodic InterestType = "PERIODIC"
)

var frequencyAliases = map[string]Frequency{
	"DAILY":     FrequencyDaily,
	"DIARIO":    FrequencyDaily,
	"WEEKLY":    FrequencyWeekly,
	"SEMANAL":   FrequencyWeekly,
	"BIWEEKLY":  FrequencyBiweekly,
	"QUINCENAL": FrequencyBiweekly,
	"MONTHLY":   FrequencyMonthly,
	"MENSUAL":   FrequencyMonthly,
}

var interestTypeAliases = map[string]InterestType{
	"FLAT_TOTAL": InterestFlatTotal,
	"TOTAL":      InterestFlatTotal,
	"PERIODIC":   InterestPeriodic,
	"MENSUAL":    InterestPeriodic,
}

// ParseFrequency accepts canonical names and the Spanish labels used by lenders.
func ParseFrequency(s string) (Frequency, bool) {
	f, ok := frequencyAliases[strings.ToUpper(strings.TrimSpace(s))]
	return f, ok
}

// ParseInterestType accepts canonical names and the Spanish labels used by lenders.
func ParseInterestType(s string) (InterestType, bool) {
	it, ok := interestTypeAliases[strings.ToUpper(strings.TrimSpace(s))]
	return it, ok
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

func (it InterestType) Valid() bool {
	return it == InterestFlatTotal || it == InterestPeriodic
}

// Loan represents a loan entity. Its plan is fixed once it is active.
type Loan struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	ClientID          uuid.UUID       `json:"client_id" db:"client_id"`
	LenderID          *uuid.UUID      `json:"lender_id,omitempty" db:"lender_id"`
	Principal         decimal.Decimal `json:"principal" db:"principal"`
	InterestRate      decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	InterestType      InterestType    `json:"interest_type" db:"interest_type"`
	Frequency         Frequency       `json:"frequency" db:"frequency"`
	Term              int             `json:"term" db:"term"`
	InstallmentAmount decimal.Decimal `json:"installment_amount" db:"installment_amount"`
	TotalInterest     decimal.Decimal `json:"total_interest" db:"total_interest"`
	TotalPayable      decimal.Decimal `json:"total_payable" db:"total_payable"`
	Status            LoanStatus      `json:"status" db:"status"`
	StartDate         time.Time       `json:"start_date" db:"start_date"`
	EndDate           time.Time       `json:"end_date" db:"end_date"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the loan still accepts payments.
func (l *Loan) IsOpen() bool {
	return l.Status == LoanStatusActive || l.Status == LoanStatusPending
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	ClientID     uuid.UUID       `json:"client_id" validate:"required"`
	LenderID     *uuid.UUID      `json:"lender_id,omitempty"`
	Principal    decimal.Decimal `json:"principal" validate:"decimal_gt0"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"decimal_gte0"`
	InterestType string          `json:"interest_type" validate:"required"`
	Frequency    string          `json:"frequency" validate:"required"`
	Term         int             `json:"term" validate:"gt=0"`
	StartDate    *time.Time      `json:"start_date,omitempty"`
}

type CreateLoanResponse struct {
	Loan         *Loan          `json:"loan"`
	Installments []*Installment `json:"installments"`
}

type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"decimal_gt0"`
	PaidAt *time.Time      `json:"paid_at,omitempty"`
}
