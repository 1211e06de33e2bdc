// Package notify composes the text of client reminders and lender alerts,
// and delivers the email side channel. It never talks to the messaging channel.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Reminder is the data of a single upcoming-installment reminder.
type Reminder struct {
	ClientName   string
	Amount       decimal.Decimal
	DueDate      time.Time
	BusinessName string
	Frequency    string
}

// OverdueItem is one overdue installment in a lender alert.
type OverdueItem struct {
	ClientName  string          `json:"client"`
	Amount      decimal.Decimal `json:"amount"`
	DaysOverdue int             `json:"daysOverdue"`
}

// LenderAlert aggregates every overdue installment owned by one lender.
type LenderAlert struct {
	LenderName string
	Items      []OverdueItem
}

// TextGenerator produces message text. Implementations may be slow or fail;
// the Composer bounds and recovers both.
type TextGenerator interface {
	Reminder(ctx context.Context, r Reminder) (string, error)
	LenderAlert(ctx context.Context, a LenderAlert) (string, error)
}

const dateLayout = "02/01/2006"

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}
