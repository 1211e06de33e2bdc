package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/segyhp/collections-engine/internal/amortization"
	"github.com/segyhp/collections-engine/internal/channel"
	"github.com/segyhp/collections-engine/internal/jobs"
	"github.com/segyhp/collections-engine/pkg/response"

	"github.com/google/uuid"
)

// Channel is the operator view of the messaging channel.
type Channel interface {
	Status() channel.State
	PairingCode() (string, bool)
	PairingImage(size int) ([]byte, error)
	Send(ctx context.Context, to, body string) error
	Logout(ctx context.Context) error
}

// JobRunner runs the sweep and the collections passes on demand.
type JobRunner interface {
	Run(ctx context.Context) (jobs.TriggerResult, error)
}

// ReminderPreviewer composes a reminder without sending it.
type ReminderPreviewer interface {
	PreviewReminder(ctx context.Context, loanID uuid.UUID) (*jobs.ReminderPreview, error)
}

type AutomationHandler struct {
	channel  Channel
	runner   JobRunner
	previews ReminderPreviewer
}

func NewAutomationHandler(ch Channel, runner JobRunner, previews ReminderPreviewer) *AutomationHandler {
	return &AutomationHandler{channel: ch, runner: runner, previews: previews}
}

type ChannelStatus struct {
	State channel.State `json:"state"`
}

type PairingCode struct {
	QR string `json:"qr"`
}

type TestMessageRequest struct {
	Phone   string `json:"phone" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type TestMessageResult struct {
	Sent  bool   `json:"sent"`
	Phone string `json:"phone"`
}

type ReminderPreviewRequest struct {
	LoanID uuid.UUID `json:"loanId" validate:"required"`
}

func (h *AutomationHandler) ChannelStatus(w http.ResponseWriter, r *http.Request) {
	response.Success(w, ChannelStatus{State: h.channel.Status()})
}

// PairingCode returns the raw pairing token while one is pending.
func (h *AutomationHandler) PairingCode(w http.ResponseWriter, r *http.Request) {
	code, ok := h.channel.PairingCode()
	if !ok {
		response.NotFound(w, "No pairing code available, channel is "+string(h.channel.Status()))
		return
	}
	response.Success(w, PairingCode{QR: code})
}

// PairingImage renders the pending pairing token as a PNG. ?size= sets the
// side in pixels.
func (h *AutomationHandler) PairingImage(w http.ResponseWriter, r *http.Request) {
	size := 256
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > 1024 {
			response.BadRequest(w, "size must be between 64 and 1024", err)
			return
		}
		size = n
	}

	png, err := h.channel.PairingImage(size)
	if err != nil {
		response.FromError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// SendTestMessage sends one message through the channel, once.
func (h *AutomationHandler) SendTestMessage(w http.ResponseWriter, r *http.Request) {
	var req TestMessageRequest
	if !decode(w, r, &req) {
		return
	}
	if err := amortization.ValidateStruct(&req); err != nil {
		response.FromError(w, err)
		return
	}

	if err := h.channel.Send(r.Context(), req.Phone, req.Message); err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, TestMessageResult{Sent: true, Phone: req.Phone})
}

func (h *AutomationHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.channel.Logout(r.Context()); err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, ChannelStatus{State: h.channel.Status()})
}

// Trigger runs the sweep and both collections passes and waits for them.
func (h *AutomationHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, result)
}

func (h *AutomationHandler) ReminderPreview(w http.ResponseWriter, r *http.Request) {
	var req ReminderPreviewRequest
	if !decode(w, r, &req) {
		return
	}
	if err := amortization.ValidateStruct(&req); err != nil {
		response.FromError(w, err)
		return
	}

	preview, err := h.previews.PreviewReminder(r.Context(), req.LoanID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, preview)
}
