package service

import (
	"context"
	"strings"

	"github.com/segyhp/collections-engine/internal/amortization"
	"github.com/segyhp/collections-engine/internal/domain"

	"github.com/google/uuid"
)

// RegisterClient stores a new borrower
func (s *BillingService) RegisterClient(ctx context.Context, request *domain.CreateClientRequest) (*domain.Client, error) {
	if err := amortization.ValidateStruct(request); err != nil {
		return nil, err
	}

	client := &domain.Client{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(request.Name),
		IDNumber:  strings.TrimSpace(request.IDNumber),
		Phone:     strings.TrimSpace(request.Phone),
		Email:     strings.TrimSpace(request.Email),
		Address:   strings.TrimSpace(request.Address),
		CreatedAt: s.Now(),
	}
	if err := s.ClientRepo.Create(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// RegisterLender stores a new lender account
func (s *BillingService) RegisterLender(ctx context.Context, request *domain.CreateLenderRequest) (*domain.Lender, error) {
	if err := amortization.ValidateStruct(request); err != nil {
		return nil, err
	}

	lender := &domain.Lender{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(request.Name),
		Phone:     strings.TrimSpace(request.Phone),
		Email:     strings.TrimSpace(request.Email),
		CreatedAt: s.Now(),
	}
	if err := s.LenderRepo.Create(ctx, lender); err != nil {
		return nil, err
	}
	return lender, nil
}
