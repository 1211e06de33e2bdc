package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

// Installment is one scheduled partial payment of a loan, and the record of
// its payment once made.
type Installment struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	LoanID     uuid.UUID         `json:"loan_id" db:"loan_id"`
	Number     int               `json:"number" db:"number"`
	Amount     decimal.Decimal   `json:"amount" db:"amount"`
	DueDate    time.Time         `json:"due_date" db:"due_date"`
	Status     InstallmentStatus `json:"status" db:"status"`
	PaidAmount decimal.Decimal   `json:"paid_amount" db:"paid_amount"`
	PaidAt     *time.Time        `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

func (i *Installment) IsPaid() bool {
	return i.Status == InstallmentPaid
}

// Remaining is what is still owed on the installment.
func (i *Installment) Remaining() decimal.Decimal {
	return i.Amount.Sub(i.PaidAmount)
}

// InstallmentNotice is an installment joined with the contact data needed to
// notify about it.
type InstallmentNotice struct {
	InstallmentID uuid.UUID         `db:"installment_id"`
	LoanID        uuid.UUID         `db:"loan_id"`
	Number        int               `db:"number"`
	Amount        decimal.Decimal   `db:"amount"`
	PaidAmount    decimal.Decimal   `db:"paid_amount"`
	DueDate       time.Time         `db:"due_date"`
	Status        InstallmentStatus `db:"status"`
	Frequency     Frequency         `db:"frequency"`
	ClientID      uuid.UUID         `db:"client_id"`
	ClientName    string            `db:"client_name"`
	ClientPhone   string            `db:"client_phone"`
	ClientEmail   string            `db:"client_email"`
	LenderID      *uuid.UUID        `db:"lender_id"`
	LenderName    *string           `db:"lender_name"`
	LenderPhone   *string           `db:"lender_phone"`
	LenderEmail   *string           `db:"lender_email"`
}

// Remaining is what the client still owes on the installment.
func (n *InstallmentNotice) Remaining() decimal.Decimal {
	return n.Amount.Sub(n.PaidAmount)
}
