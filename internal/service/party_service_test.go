package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegisterClient(t *testing.T) {
	f := newFixture(start)
	f.clients.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Client) bool {
		return c.Name == "Ana Pérez" && c.Phone == "3001234567"
	})).Return(nil).Once()

	client, err := f.svc.RegisterClient(context.Background(), &domain.CreateClientRequest{Name: " Ana Pérez ", Phone: "3001234567"})
	require.NoError(t, err)
	assert.Equal(t, start, client.CreatedAt)
	f.clients.AssertExpectations(t)
}

func TestRegisterClient_Validation(t *testing.T) {
	f := newFixture(start)

	tests := []*domain.CreateClientRequest{
		{Phone: "3001234567"},
		{Name: "Ana"},
		{Name: "Ana", Phone: "300", Email: "not-an-email"},
	}
	for _, req := range tests {
		_, err := f.svc.RegisterClient(context.Background(), req)
		assert.True(t, errors.Is(err, customError.ErrValidation), "%+v", req)
	}
	f.clients.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegisterLender(t *testing.T) {
	f := newFixture(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	f.lenders.On("Create", mock.Anything, mock.Anything).Return(customError.WrapDatabaseError(errors.New("duplicate key"))).Once()

	_, err := f.svc.RegisterLender(context.Background(), &domain.CreateLenderRequest{Name: "Pedro", Phone: "3109876543"})
	assert.True(t, errors.Is(err, customError.ErrStorage))
	f.lenders.AssertExpectations(t)
}
