package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/segyhp/collections-engine/internal/domain"
	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type clientRepository struct {
	db *sqlx.DB
}

func NewClientRepository(db *sqlx.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *domain.Client) error {
	query := `
		INSERT INTO clients (id, name, id_number, phone, email, address, created_at)
		VALUES (:id, :name, :id_number, :phone, :email, :address, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, client); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (r *clientRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	query := `SELECT id, name, id_number, phone, email, address, created_at FROM clients WHERE id = $1`

	var client domain.Client
	err := r.db.GetContext(ctx, &client, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapNotFound("client", id.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return &client, nil
}

type lenderRepository struct {
	db *sqlx.DB
}

func NewLenderRepository(db *sqlx.DB) LenderRepository {
	return &lenderRepository{db: db}
}

func (r *lenderRepository) Create(ctx context.Context, lender *domain.Lender) error {
	query := `
		INSERT INTO lenders (id, name, phone, email, created_at)
		VALUES (:id, :name, :phone, :email, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, lender); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (r *lenderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lender, error) {
	query := `SELECT id, name, phone, email, created_at FROM lenders WHERE id = $1`

	var lender domain.Lender
	err := r.db.GetContext(ctx, &lender, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapNotFound("lender", id.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return &lender, nil
}
