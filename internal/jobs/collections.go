package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/internal/metrics"
	"github.com/segyhp/collections-engine/internal/notify"
	"github.com/segyhp/collections-engine/internal/repository"
	customError "github.com/segyhp/collections-engine/pkg/errors"
	"github.com/segyhp/collections-engine/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultBusinessName signs reminders of loans without a lender.
const DefaultBusinessName = "Rapi-Credi"

// Sender is the messaging channel as the orchestrator uses it.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Repositories groups the stores the orchestrator reads.
type Repositories struct {
	Loans        repository.LoanRepository
	Installments repository.InstallmentRepository
	Clients      repository.ClientRepository
	Lenders      repository.LenderRepository
}

// Collections runs the reminder and lender alert passes.
type Collections struct {
	repos        Repositories
	composer     *notify.Composer
	sender       Sender
	mailer       notify.Mailer
	businessName string
	loc          *time.Location
	logger       *slog.Logger

	Now func() time.Time
}

// ReminderResult counts one reminders pass. Due is the number of installments
// found; the rest count deliveries.
type ReminderResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Emailed int `json:"emailed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// AlertResult counts one lender alert pass.
type AlertResult struct {
	Lenders int `json:"lenders"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// ReminderPreview is the reminder a loan's client would get for the next
// unpaid installment.
type ReminderPreview struct {
	LoanID     uuid.UUID       `json:"loanId"`
	ClientName string          `json:"clientName"`
	Phone      string          `json:"phone"`
	Number     int             `json:"installmentNumber"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    time.Time       `json:"dueDate"`
	Text       string          `json:"text"`
}

// NewCollections wires the orchestrator. mailer may be nil to skip email.
func NewCollections(repos Repositories, composer *notify.Composer, sender Sender, mailer notify.Mailer, businessName string, loc *time.Location, logger *slog.Logger) *Collections {
	if businessName == "" {
		businessName = DefaultBusinessName
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collections{
		repos:        repos,
		composer:     composer,
		sender:       sender,
		mailer:       mailer,
		businessName: businessName,
		loc:          loc,
		logger:       logger.With("component", "collections"),
		Now:          time.Now,
	}
}

func (c *Collections) today() time.Time {
	return utils.Today(c.Now(), c.loc)
}

// RemindersDueTomorrow notifies every client with a PENDING installment due
// tomorrow. A failed recipient never stops the pass.
func (c *Collections) RemindersDueTomorrow(ctx context.Context) (ReminderResult, error) {
	var result ReminderResult

	today := c.today()
	from, to := today.AddDate(0, 0, 1), today.AddDate(0, 0, 2)
	notices, err := c.repos.Installments.FindDueBetween(ctx, domain.InstallmentPending, from, to)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to load installments due tomorrow", slog.Any("error", err))
		return result, err
	}
	result.Due = len(notices)

	for _, n := range notices {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		text := c.composer.ReminderText(ctx, notify.Reminder{
			ClientName:   n.ClientName,
			Amount:       n.Remaining(),
			DueDate:      n.DueDate,
			BusinessName: c.originator(n.LenderName),
			Frequency:    string(n.Frequency),
		})

		d := c.deliver(ctx, "reminder", n.ClientPhone, notify.Email{
			To:      n.ClientEmail,
			Subject: fmt.Sprintf("Recordatorio de pago - cuota %d", n.Number),
			Body:    text,
		})
		result.add(d)
	}

	c.logger.InfoContext(ctx, "Reminders pass finished",
		"due", result.Due, "sent", result.Sent, "emailed", result.Emailed, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// AlertLenders sends every lender one message listing its overdue
// installments. Loans without a lender are not reported.
func (c *Collections) AlertLenders(ctx context.Context) (AlertResult, error) {
	var result AlertResult

	notices, err := c.repos.Installments.FindByStatus(ctx, domain.InstallmentOverdue)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to load overdue installments", slog.Any("error", err))
		return result, err
	}

	today := c.today()
	type group struct {
		name, phone, email string
		items              []notify.OverdueItem
	}
	var order []uuid.UUID
	groups := make(map[uuid.UUID]*group)
	for _, n := range notices {
		if n.LenderID == nil {
			continue
		}
		g, ok := groups[*n.LenderID]
		if !ok {
			g = &group{name: deref(n.LenderName), phone: deref(n.LenderPhone), email: deref(n.LenderEmail)}
			groups[*n.LenderID] = g
			order = append(order, *n.LenderID)
		}
		g.items = append(g.items, notify.OverdueItem{
			ClientName:  n.ClientName,
			Amount:      n.Remaining(),
			DaysOverdue: utils.DaysBetween(utils.DateIn(n.DueDate, c.loc), today),
		})
	}
	result.Lenders = len(order)

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		g := groups[id]
		text := c.composer.LenderAlertText(ctx, notify.LenderAlert{LenderName: g.name, Items: g.items})

		d := c.deliver(ctx, "lender_alert", g.phone, notify.Email{
			To:      g.email,
			Subject: fmt.Sprintf("Alerta de mora: %d pagos pendientes", len(g.items)),
			Body:    text,
		})
		if d.sent || d.emailed {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	c.logger.InfoContext(ctx, "Lender alerts pass finished", "lenders", result.Lenders, "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

// PreviewReminder composes, without sending, the reminder for the next
// unpaid installment of a loan.
func (c *Collections) PreviewReminder(ctx context.Context, loanID uuid.UUID) (*ReminderPreview, error) {
	loan, err := c.repos.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	client, err := c.repos.Clients.GetByID(ctx, loan.ClientID)
	if err != nil {
		return nil, err
	}
	rows, err := c.repos.Installments.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	var next *domain.Installment
	for _, row := range rows {
		if !row.IsPaid() && (next == nil || row.Number < next.Number) {
			next = row
		}
	}
	if next == nil {
		return nil, customError.WrapValidation("loan", "has no unpaid installments")
	}

	var lenderName *string
	if loan.LenderID != nil {
		lender, err := c.repos.Lenders.GetByID(ctx, *loan.LenderID)
		if err != nil {
			return nil, err
		}
		lenderName = &lender.Name
	}

	amount := next.Remaining()
	text := c.composer.ReminderText(ctx, notify.Reminder{
		ClientName:   client.Name,
		Amount:       amount,
		DueDate:      next.DueDate,
		BusinessName: c.originator(lenderName),
		Frequency:    string(loan.Frequency),
	})

	return &ReminderPreview{
		LoanID:     loan.ID,
		ClientName: client.Name,
		Phone:      client.Phone,
		Number:     next.Number,
		Amount:     amount,
		DueDate:    next.DueDate,
		Text:       text,
	}, nil
}

func (c *Collections) originator(lenderName *string) string {
	if name := deref(lenderName); name != "" {
		return name
	}
	return c.businessName
}

type delivery struct {
	sent, emailed, skipped, failed bool
}

func (r *ReminderResult) add(d delivery) {
	switch {
	case d.sent:
		r.Sent++
	case d.failed:
		r.Failed++
	case d.skipped:
		r.Skipped++
	}
	if d.emailed {
		r.Emailed++
	}
}

// deliver sends text over the channel and, best effort, by email. Errors are
// logged and counted, never returned.
func (c *Collections) deliver(ctx context.Context, kind, phone string, email notify.Email) delivery {
	var d delivery

	switch {
	case phone == "":
		d.skipped = true
		metrics.MessagesSent.WithLabelValues(kind, "channel", "skipped").Inc()
	default:
		err := c.sender.Send(ctx, phone, email.Body)
		switch {
		case err == nil:
			d.sent = true
			metrics.MessagesSent.WithLabelValues(kind, "channel", "sent").Inc()
		case customError.Is(err, customError.ErrChannelUnavailable):
			d.skipped = true
			metrics.MessagesSent.WithLabelValues(kind, "channel", "unavailable").Inc()
			c.logger.WarnContext(ctx, "Channel unavailable, message skipped", "kind", kind, "to", phone)
		default:
			d.failed = true
			metrics.MessagesSent.WithLabelValues(kind, "channel", "failed").Inc()
			c.logger.ErrorContext(ctx, "Failed to send message", "kind", kind, "to", phone, slog.Any("error", err))
		}
	}

	if c.mailer != nil && email.To != "" {
		if err := c.mailer.Send(ctx, email); err != nil {
			metrics.MessagesSent.WithLabelValues(kind, "email", "failed").Inc()
			c.logger.ErrorContext(ctx, "Failed to send email", "kind", kind, "to", email.To, slog.Any("error", err))
		} else {
			d.emailed = true
			metrics.MessagesSent.WithLabelValues(kind, "email", "sent").Inc()
		}
	}
	return d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
