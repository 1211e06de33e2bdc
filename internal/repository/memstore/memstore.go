// Package memstore is an in-process implementation of the repository
// interfaces, used when STORE_DRIVER=memory and in tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/internal/repository"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/google/uuid"
)

// Store keeps every entity in maps guarded by a single lock. Values are
// copied on the way in and out so callers never share memory with the store.
type Store struct {
	mu           sync.RWMutex
	loans        map[uuid.UUID]domain.Loan
	installments map[uuid.UUID]domain.Installment
	clients      map[uuid.UUID]domain.Client
	lenders      map[uuid.UUID]domain.Lender
}

func New() *Store {
	return &Store{
		loans:        map[uuid.UUID]domain.Loan{},
		installments: map[uuid.UUID]domain.Installment{},
		clients:      map[uuid.UUID]domain.Client{},
		lenders:      map[uuid.UUID]domain.Lender{},
	}
}

func (s *Store) Loans() repository.LoanRepository               { return loanRepo{s} }
func (s *Store) Installments() repository.InstallmentRepository { return installmentRepo{s} }
func (s *Store) Clients() repository.ClientRepository           { return clientRepo{s} }
func (s *Store) Lenders() repository.LenderRepository           { return lenderRepo{s} }

type loanRepo struct{ s *Store }

func (r loanRepo) Create(_ context.Context, loan *domain.Loan, installments []*domain.Installment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.loans[loan.ID] = *loan
	for _, inst := range installments {
		r.s.installments[inst.ID] = *inst
	}
	return nil
}

func (r loanRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	loan, ok := r.s.loans[id]
	if !ok {
		return nil, customError.WrapNotFound("loan", id.String())
	}
	return &loan, nil
}

func (r loanRepo) ListByClient(_ context.Context, clientID uuid.UUID, status domain.LoanStatus) ([]*domain.Loan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Loan
	for _, loan := range r.s.loans {
		if loan.ClientID == clientID && loan.Status == status {
			l := loan
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r loanRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.LoanStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	loan, ok := r.s.loans[id]
	if !ok {
		return customError.WrapNotFound("loan", id.String())
	}
	loan.Status = status
	loan.UpdatedAt = time.Now()
	r.s.loans[id] = loan
	return nil
}

type installmentRepo struct{ s *Store }

func (r installmentRepo) ListByLoan(_ context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.loanInstallments(loanID), nil
}

// loanInstallments copies the installments of a loan ordered by number.
// The caller holds the lock.
func (s *Store) loanInstallments(loanID uuid.UUID) []*domain.Installment {
	var out []*domain.Installment
	for _, inst := range s.installments {
		if inst.LoanID == loanID {
			i := inst
			out = append(out, &i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// ApplyPayment holds the store lock for the whole allocation, so payments
// on any loan are serialized.
func (r installmentRepo) ApplyPayment(_ context.Context, loanID uuid.UUID, allocate repository.PaymentAllocator) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	touched, err := allocate(r.s.loanInstallments(loanID))
	if err != nil {
		return err
	}

	for _, row := range touched {
		cur, ok := r.s.installments[row.ID]
		if !ok {
			return customError.WrapNotFound("installment", row.ID.String())
		}
		if cur.IsPaid() {
			continue
		}
		cur.PaidAmount = row.PaidAmount
		cur.PaidAt = row.PaidAt
		cur.Status = row.Status
		r.s.installments[row.ID] = cur
	}
	return nil
}

func (r installmentRepo) MarkOverdue(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cutoff := day(before)
	var n int64
	for id, inst := range r.s.installments {
		if inst.Status == domain.InstallmentPending && inst.PaidAmount.LessThan(inst.Amount) && day(inst.DueDate) < cutoff {
			inst.Status = domain.InstallmentOverdue
			r.s.installments[id] = inst
			n++
		}
	}
	return n, nil
}

func (r installmentRepo) FindDueBetween(_ context.Context, status domain.InstallmentStatus, from, to time.Time) ([]*domain.InstallmentNotice, error) {
	lo, hi := day(from), day(to)
	return r.s.notices(func(inst domain.Installment) bool {
		due := day(inst.DueDate)
		return inst.Status == status && due >= lo && due < hi
	}), nil
}

func (r installmentRepo) FindByStatus(_ context.Context, status domain.InstallmentStatus) ([]*domain.InstallmentNotice, error) {
	return r.s.notices(func(inst domain.Installment) bool {
		return inst.Status == status
	}), nil
}

// day is the calendar date of t as written. ISO dates order as strings.
func day(t time.Time) string {
	return t.Format(time.DateOnly)
}

// notices joins matching installments with their loan, client and lender.
func (s *Store) notices(match func(domain.Installment) bool) []*domain.InstallmentNotice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.InstallmentNotice
	for _, inst := range s.installments {
		if !match(inst) {
			continue
		}
		loan, ok := s.loans[inst.LoanID]
		if !ok {
			continue
		}
		client, ok := s.clients[loan.ClientID]
		if !ok {
			continue
		}
		n := &domain.InstallmentNotice{
			InstallmentID: inst.ID,
			LoanID:        inst.LoanID,
			Number:        inst.Number,
			Amount:        inst.Amount,
			PaidAmount:    inst.PaidAmount,
			DueDate:       inst.DueDate,
			Status:        inst.Status,
			Frequency:     loan.Frequency,
			ClientID:      client.ID,
			ClientName:    client.Name,
			ClientPhone:   client.Phone,
			ClientEmail:   client.Email,
		}
		if loan.LenderID != nil {
			if lender, ok := s.lenders[*loan.LenderID]; ok {
				id, name, phone, email := lender.ID, lender.Name, lender.Phone, lender.Email
				n.LenderID, n.LenderName, n.LenderPhone, n.LenderEmail = &id, &name, &phone, &email
			}
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if di, dj := day(out[i].DueDate), day(out[j].DueDate); di != dj {
			return di < dj
		}
		return out[i].ClientName < out[j].ClientName
	})
	return out
}

type clientRepo struct{ s *Store }

func (r clientRepo) Create(_ context.Context, client *domain.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.clients[client.ID] = *client
	return nil
}

func (r clientRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	client, ok := r.s.clients[id]
	if !ok {
		return nil, customError.WrapNotFound("client", id.String())
	}
	return &client, nil
}

type lenderRepo struct{ s *Store }

func (r lenderRepo) Create(_ context.Context, lender *domain.Lender) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lenders[lender.ID] = *lender
	return nil
}

func (r lenderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Lender, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	lender, ok := r.s.lenders[id]
	if !ok {
		return nil, customError.WrapNotFound("lender", id.String())
	}
	return &lender, nil
}
