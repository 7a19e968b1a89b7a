package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PaymentIntentResponse is what the client needs to confirm payment
type PaymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
	Amount       string `json:"amount"`
}

// PaymentHandler handles HTTP requests for payment authorization
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// RegisterRoutes registers the payment routes behind the given middleware
func (h *PaymentHandler) RegisterRoutes(r chi.Router, protect ...func(http.Handler) http.Handler) {
	r.With(protect...).Post("/api/create-payment-intent", h.CreateIntent)
}

// CreateIntent prices the caller's cart and opens a payment intent for it
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	intent, err := h.paymentService.CreatePaymentIntent(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, PaymentIntentResponse{
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount.StringFixed(2),
	})
}
