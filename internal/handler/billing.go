package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/segyhp/collections-engine/internal/amortization"
	"github.com/segyhp/collections-engine/internal/domain"
	"github.com/segyhp/collections-engine/internal/ledger"
	"github.com/segyhp/collections-engine/internal/service"
	customError "github.com/segyhp/collections-engine/pkg/errors"
	"github.com/segyhp/collections-engine/pkg/response"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// BillingService is what the loan routes need from the service layer.
type BillingService interface {
	QuoteLoan(ctx context.Context, request *domain.CreateLoanRequest) (*amortization.Plan, error)
	CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.CreateLoanResponse, error)
	GetLedger(ctx context.Context, loanID uuid.UUID) (ledger.Balance, error)
	GetLoanHealth(ctx context.Context, loanID uuid.UUID) (*service.LoanHealth, error)
	GetClientHealth(ctx context.Context, clientID uuid.UUID) (*service.ClientHealth, error)
	RecordPayment(ctx context.Context, loanID uuid.UUID, request *domain.RecordPaymentRequest) (*service.PaymentReceipt, error)
	RegisterClient(ctx context.Context, request *domain.CreateClientRequest) (*domain.Client, error)
	RegisterLender(ctx context.Context, request *domain.CreateLenderRequest) (*domain.Lender, error)
}

type BillingHandler struct {
	service BillingService
}

func NewBillingHandler(service BillingService) *BillingHandler {
	return &BillingHandler{service: service}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid JSON payload", err)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.FromError(w, customError.WrapValidation(name, "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// QuoteLoan returns the amortization plan of a request without storing it
func (h *BillingHandler) QuoteLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLoanRequest
	if !decode(w, r, &req) {
		return
	}

	plan, err := h.service.QuoteLoan(r.Context(), &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, plan)
}

// CreateLoan stores a loan and its schedule
func (h *BillingHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLoanRequest
	if !decode(w, r, &req) {
		return
	}

	created, err := h.service.CreateLoan(r.Context(), &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, created)
}

func (h *BillingHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	balance, err := h.service.GetLedger(r.Context(), loanID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, balance)
}

func (h *BillingHandler) GetLoanHealth(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	health, err := h.service.GetLoanHealth(r.Context(), loanID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, health)
}

func (h *BillingHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}
	var req domain.RecordPaymentRequest
	if !decode(w, r, &req) {
		return
	}

	receipt, err := h.service.RecordPayment(r.Context(), loanID, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, receipt)
}

func (h *BillingHandler) GetClientHealth(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathUUID(w, r, "clientId")
	if !ok {
		return
	}

	health, err := h.service.GetClientHealth(r.Context(), clientID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, health)
}

func (h *BillingHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateClientRequest
	if !decode(w, r, &req) {
		return
	}

	client, err := h.service.RegisterClient(r.Context(), &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, client)
}

func (h *BillingHandler) CreateLender(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLenderRequest
	if !decode(w, r, &req) {
		return
	}

	lender, err := h.service.RegisterLender(r.Context(), &req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, lender)
}
