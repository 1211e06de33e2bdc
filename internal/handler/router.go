package handler

import (
	"log/slog"
	"net/http"

	"github.com/segyhp/collections-engine/internal/metrics"
	"github.com/segyhp/collections-engine/pkg/response"

	"github.com/go-chi/traceid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts every operator route.
func NewRouter(billing *BillingHandler, automation *AutomationHandler, health *HealthHandler, logger *slog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(traceid.Middleware)
	router.Use(response.LoggingMiddleware(logger))
	router.Use(metrics.Middleware)
	router.Use(response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", health.Health).Methods("GET")
	router.HandleFunc("/health/ready", health.Ready).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	/// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/loans/quote", billing.QuoteLoan).Methods("POST")
	api.HandleFunc("/loans", billing.CreateLoan).Methods("POST")
	api.HandleFunc("/loans/{loanId}/balance", billing.GetBalance).Methods("GET")
	api.HandleFunc("/loans/{loanId}/health", billing.GetLoanHealth).Methods("GET")
	api.HandleFunc("/loans/{loanId}/payments", billing.RecordPayment).Methods("POST")
	api.HandleFunc("/clients", billing.CreateClient).Methods("POST")
	api.HandleFunc("/lenders", billing.CreateLender).Methods("POST")
	api.HandleFunc("/clients/{clientId}/health", billing.GetClientHealth).Methods("GET")

	auto := api.PathPrefix("/automation").Subrouter()
	auto.HandleFunc("/channel/status", automation.ChannelStatus).Methods("GET")
	auto.HandleFunc("/channel/qr", automation.PairingCode).Methods("GET")
	auto.HandleFunc("/channel/qr.png", automation.PairingImage).Methods("GET")
	auto.HandleFunc("/channel/test", automation.SendTestMessage).Methods("POST")
	auto.HandleFunc("/channel/logout", automation.Logout).Methods("POST")
	auto.HandleFunc("/trigger", automation.Trigger).Methods("POST")
	auto.HandleFunc("/reminder-preview", automation.ReminderPreview).Methods("POST")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Route not found")
	})

	return router
}
