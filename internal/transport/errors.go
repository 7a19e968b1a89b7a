package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// currentUser returns the authenticated caller, answering 401 when the
// route was reached without an identity.
func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthenticated")
		return uuid.Nil, false
	}
	return userID, true
}

// pathID parses the {id} URL parameter
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "resource not found")
		return uuid.Nil, false
	}
	return id, true
}

// respondDecodeError answers a request body that failed to decode or validate
func respondDecodeError(w http.ResponseWriter, err error) {
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return
	}
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
}

// respondServiceError maps a service failure to its HTTP status.
// stockStatus is the status used for insufficient stock, which differs
// between cart edits and checkout.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, stockStatus int) {
	var (
		stockErr   *domain.InsufficientStockError
		gatewayErr *payment.GatewayError
	)

	switch {
	case errors.As(err, &stockErr):
		middleware.RespondWithErrorDetails(w, stockStatus, stockErr.Error(), map[string]interface{}{
			"product_id":   stockErr.ProductID.String(),
			"product_name": stockErr.ProductName,
			"requested":    stockErr.Requested,
			"available":    stockErr.Available,
		})
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrUnknownProduct),
		errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, service.ErrEmptyCart):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrCartItemNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrProductInUse),
		errors.Is(err, repository.ErrPaymentIntentUsed):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPaymentNotConfirmed):
		middleware.RespondWithError(w, http.StatusPaymentRequired, err.Error())
	case errors.As(err, &gatewayErr):
		logger.Error("Payment gateway failure", zap.String("op", gatewayErr.Op), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, gatewayErr.Message)
	default:
		logger.Error("Request failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
