package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/internal/mocks"
	"github.com/segyhp/collections-engine/internal/notify"
	"github.com/segyhp/collections-engine/internal/repository/memstore"
	customError "github.com/segyhp/collections-engine/pkg/errors"
	"github.com/segyhp/collections-engine/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]error
}

func (s *fakeSender) Send(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[to]; err != nil {
		return err
	}
	s.sent = append(s.sent, sentMessage{to: to, body: body})
	return nil
}

type fakeMailer struct {
	mu     sync.Mutex
	emails []notify.Email
	err    error
}

func (m *fakeMailer) Send(_ context.Context, email notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.emails = append(m.emails, email)
	return nil
}

var loanStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memstore.Store
	sender      *fakeSender
	mailer      *fakeMailer
	sweeper     *Sweeper
	collections *Collections
	runner      *Runner
}

func newFixture(now time.Time) *fixture {
	f := &fixture{
		store:  memstore.New(),
		sender: &fakeSender{fail: map[string]error{}},
		mailer: &fakeMailer{},
	}
	repos := Repositories{
		Loans:        f.store.Loans(),
		Installments: f.store.Installments(),
		Clients:      f.store.Clients(),
		Lenders:      f.store.Lenders(),
	}
	composer := notify.NewComposer(nil, time.Second, nil)

	f.sweeper = NewSweeper(repos.Installments, time.UTC, nil)
	f.sweeper.Now = func() time.Time { return now }
	f.collections = NewCollections(repos, composer, f.sender, f.mailer, "", time.UTC, nil)
	f.collections.Now = func() time.Time { return now }
	f.runner = NewRunner(f.sweeper, f.collections, NewLocalLock(), time.Minute, nil)
	return f
}

func (f *fixture) client(t *testing.T, name, phone, email string) *domain.Client {
	t.Helper()
	c := &domain.Client{ID: uuid.New(), Name: name, Phone: phone, Email: email}
	require.NoError(t, f.store.Clients().Create(context.Background(), c))
	return c
}

func (f *fixture) lender(t *testing.T, name, phone string) *domain.Lender {
	t.Helper()
	l := &domain.Lender{ID: uuid.New(), Name: name, Phone: phone}
	require.NoError(t, f.store.Lenders().Create(context.Background(), l))
	return l
}

// dailyLoan stores a daily loan of n installments of amount starting at loanStart.
func (f *fixture) dailyLoan(t *testing.T, client *domain.Client, lender *domain.Lender, n int, amount string) *domain.Loan {
	t.Helper()
	loan := &domain.Loan{
		ID:        uuid.New(),
		ClientID:  client.ID,
		Frequency: domain.FrequencyDaily,
		Term:      n,
		Status:    domain.LoanStatusActive,
		StartDate: loanStart,
	}
	if lender != nil {
		loan.LenderID = &lender.ID
	}
	rows := make([]*domain.Installment, n)
	for i := range rows {
		rows[i] = &domain.Installment{
			ID:         uuid.New(),
			LoanID:     loan.ID,
			Number:     i + 1,
			Amount:     decimal.RequireFromString(amount),
			DueDate:    utils.CalculateDueDate(loanStart, loan.Frequency, i+1),
			Status:     domain.InstallmentPending,
			PaidAmount: decimal.Zero,
		}
	}
	require.NoError(t, f.store.Loans().Create(context.Background(), loan, rows))
	return loan
}

// pay credits amount to installment idx of loan through the locked allocation path.
func (f *fixture) pay(t *testing.T, loan *domain.Loan, idx int, amount string) {
	t.Helper()
	paidAt := loanStart.AddDate(0, 0, 1)
	err := f.store.Installments().ApplyPayment(context.Background(), loan.ID, func(rows []*domain.Installment) ([]*domain.Installment, error) {
		row := rows[idx]
		row.PaidAmount = row.PaidAmount.Add(decimal.RequireFromString(amount))
		row.PaidAt = &paidAt
		if !row.Remaining().IsPositive() {
			row.Status = domain.InstallmentPaid
		}
		return []*domain.Installment{row}, nil
	})
	require.NoError(t, err)
}

func TestSweeper_IsIdempotent(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 13, 9, 30, 0, 0, time.UTC))
	ana := f.client(t, "Ana", "3001234567", "")
	f.dailyLoan(t, ana, nil, 30, "4000")

	n, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11), n, "installments due Jan 2..Jan 12")

	n, err = f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_StorageFailureAbortsRun(t *testing.T) {
	repo := new(mocks.MockInstallmentRepository)
	repo.On("MarkOverdue", mock.Anything, time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)).
		Return(int64(0), customError.WrapDatabaseError(errors.New("connection refused")))

	s := NewSweeper(repo, time.UTC, nil)
	s.Now = func() time.Time { return time.Date(2024, 1, 13, 23, 59, 0, 0, time.UTC) }

	n, err := s.Run(context.Background())
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, customError.ErrStorage))
	repo.AssertExpectations(t)
}

func TestSweeper_CutoffUsesBusinessTimezone(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	repo := new(mocks.MockInstallmentRepository)
	repo.On("MarkOverdue", mock.Anything, time.Date(2024, 1, 12, 0, 0, 0, 0, bogota)).Return(int64(3), nil)

	s := NewSweeper(repo, bogota, nil)
	// 02:00 UTC on the 13th is still the 12th in Bogota.
	s.Now = func() time.Time { return time.Date(2024, 1, 13, 2, 0, 0, 0, time.UTC) }

	n, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	repo.AssertExpectations(t)
}

func TestCollections_OverdueScenario(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 13, 8, 0, 0, 0, time.UTC))
	pedro := f.lender(t, "Pedro", "3109876543")
	ana := f.client(t, "Ana", "3001234567", "")
	luis := f.client(t, "Luis", "3005550000", "")
	f.dailyLoan(t, ana, pedro, 30, "4000")
	f.dailyLoan(t, luis, nil, 30, "2000")

	_, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	result, err := f.collections.AlertLenders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertResult{Lenders: 1, Sent: 1}, result)

	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	assert.Equal(t, "3109876543", msg.to)
	assert.Contains(t, msg.body, "Atención Pedro, tienes 11 pagos en mora")
	assert.Contains(t, msg.body, "Ana: $4000.00 (11 días de atraso)")
	assert.Contains(t, msg.body, "Ana: $4000.00 (1 días de atraso)")
	assert.NotContains(t, msg.body, "Luis", "loans without lender are not reported")
}

func TestCollections_RemindersDueTomorrow(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 13, 8, 0, 0, 0, time.UTC))
	pedro := f.lender(t, "Pedro", "3109876543")
	ana := f.client(t, "Ana", "3001234567", "ana@example.com")
	luis := f.client(t, "Luis", "3005550000", "")
	f.dailyLoan(t, ana, pedro, 30, "4000")
	f.dailyLoan(t, luis, nil, 30, "2000")

	result, err := f.collections.RemindersDueTomorrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReminderResult{Due: 2, Sent: 2, Emailed: 1}, result)

	bodies := map[string]string{}
	for _, m := range f.sender.sent {
		bodies[m.to] = m.body
	}
	assert.Equal(t,
		"Hola Ana, de parte de Pedro te recordamos tu pago pendiente de $4000.00 para la fecha 14/01/2024. ¡Feliz día!",
		bodies["3001234567"])
	assert.Contains(t, bodies["3005550000"], "de parte de "+DefaultBusinessName)

	require.Len(t, f.mailer.emails, 1)
	assert.Equal(t, "ana@example.com", f.mailer.emails[0].To)
	assert.Equal(t, bodies["3001234567"], f.mailer.emails[0].Body)
}

func TestCollections_PartialPaymentsQuoteRemainingAmount(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC))
	pedro := f.lender(t, "Pedro", "3109876543")
	ana := f.client(t, "Ana", "3001234567", "")
	loan := f.dailyLoan(t, ana, pedro, 5, "4000")
	f.pay(t, loan, 0, "1000") // due Jan 2, partly paid
	f.pay(t, loan, 2, "2500") // due Jan 4, partly paid

	n, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "partly paid rows are still swept")

	reminders, err := f.collections.RemindersDueTomorrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reminders.Due)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].body, "$1500.00 para la fecha 04/01/2024")

	_, err = f.collections.AlertLenders(context.Background())
	require.NoError(t, err)
	require.Len(t, f.sender.sent, 2)
	assert.Contains(t, f.sender.sent[1].body, "Ana: $3000.00 (1 días de atraso)")
	assert.NotContains(t, f.sender.sent[1].body, "$4000.00")
}

func TestCollections_RecipientFailuresAreIsolated(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 13, 8, 0, 0, 0, time.UTC))
	for _, c := range []struct{ name, phone string }{{"Ana", "1"}, {"Beto", "2"}, {"Carla", "3"}, {"Dora", ""}} {
		f.dailyLoan(t, f.client(t, c.name, c.phone, ""), nil, 30, "1000")
	}
	f.sender.fail["1"] = errors.New("socket closed")
	f.sender.fail["2"] = customError.WrapChannelUnavailable("DISCONNECTED")

	result, err := f.collections.RemindersDueTomorrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReminderResult{Due: 4, Sent: 1, Skipped: 2, Failed: 1}, result)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "3", f.sender.sent[0].to)
}

func TestCollections_EmailFailureDoesNotFailChannel(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 13, 8, 0, 0, 0, time.UTC))
	f.dailyLoan(t, f.client(t, "Ana", "300", "ana@example.com"), nil, 30, "1000")
	f.mailer.err = errors.New("broker down")

	result, err := f.collections.RemindersDueTomorrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReminderResult{Due: 1, Sent: 1}, result)
}

func TestCollections_StorageFailureStopsPass(t *testing.T) {
	repo := new(mocks.MockInstallmentRepository)
	repo.On("FindDueBetween", mock.Anything, domain.InstallmentPending, mock.Anything, mock.Anything).
		Return(nil, customError.WrapDatabaseError(errors.New("timeout")))

	c := NewCollections(Repositories{Installments: repo}, notify.NewComposer(nil, time.Second, nil), &fakeSender{}, nil, "", time.UTC, nil)
	_, err := c.RemindersDueTomorrow(context.Background())
	assert.True(t, errors.Is(err, customError.ErrStorage))
}

func TestCollections_PreviewReminder(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 13, 8, 0, 0, 0, time.UTC))
	pedro := f.lender(t, "Pedro", "3109876543")
	ana := f.client(t, "Ana", "3001234567", "")
	loan := f.dailyLoan(t, ana, pedro, 3, "4000")

	f.pay(t, loan, 0, "4000")
	f.pay(t, loan, 1, "1500")

	preview, err := f.collections.PreviewReminder(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, preview.Number)
	assert.True(t, preview.Amount.Equal(decimal.NewFromInt(2500)), "amount %s", preview.Amount)
	assert.Equal(t, "3001234567", preview.Phone)
	assert.Contains(t, preview.Text, "de parte de Pedro")
	assert.Contains(t, preview.Text, "$2500.00")
	assert.Empty(t, f.sender.sent, "preview never sends")

	_, err = f.collections.PreviewReminder(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, customError.ErrNotFound))
}

func TestRunner_RunReportsAllPasses(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 13, 8, 0, 0, 0, time.UTC))
	pedro := f.lender(t, "Pedro", "3109876543")
	f.dailyLoan(t, f.client(t, "Ana", "3001234567", ""), pedro, 30, "4000")

	result, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerResult{OverdueUpdated: 11, RemindersDue: 1, AlertsSent: 1}, result)

	result, err = f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.OverdueUpdated)
}

func TestRunner_RefusesOverlappingRuns(t *testing.T) {
	f := newFixture(time.Date(2024, 1, 13, 8, 0, 0, 0, time.UTC))
	lock := NewLocalLock()
	f.runner = NewRunner(f.sweeper, f.collections, lock, time.Minute, nil)

	release, err := lock.Acquire(context.Background(), JobSweep, time.Minute)
	require.NoError(t, err)

	_, err = f.runner.Run(context.Background())
	assert.True(t, errors.Is(err, customError.ErrJobAlreadyRunning))
	assert.Equal(t, customError.ErrCodeJobAlreadyRunning, customError.CodeOf(err))

	release()
	_, err = f.runner.Run(context.Background())
	assert.NoError(t, err)
}

func TestRunner_AlertsRunWhenRemindersFail(t *testing.T) {
	installments := new(mocks.MockInstallmentRepository)
	installments.On("FindDueBetween", mock.Anything, domain.InstallmentPending, mock.Anything, mock.Anything).
		Return(nil, customError.WrapDatabaseError(errors.New("timeout")))
	installments.On("FindByStatus", mock.Anything, domain.InstallmentOverdue).Return([]*domain.InstallmentNotice{}, nil)

	c := NewCollections(Repositories{Installments: installments}, notify.NewComposer(nil, time.Second, nil), &fakeSender{}, nil, "", time.UTC, nil)
	r := NewRunner(nil, c, nil, 0, nil)

	err := r.CollectionsJob(context.Background())
	assert.True(t, errors.Is(err, customError.ErrStorage))
	installments.AssertExpectations(t)
}

func TestDeliverSkipsEmailWithoutAddress(t *testing.T) {
	f := newFixture(time.Now())
	d := f.collections.deliver(context.Background(), "reminder", "300", notify.Email{Body: "hola"})
	assert.True(t, d.sent)
	assert.False(t, d.emailed)
	assert.Equal(t, []sentMessage{{to: "300", body: "hola"}}, f.sender.sent)
}
