package service

import (
	"errors"

	"storefront/internal/domain"

	"go.opentelemetry.io/otel"
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrUnknownProduct      = errors.New("selected product does not exist")
	ErrInvalidProduct      = errors.New("invalid product")
	ErrPaymentNotConfirmed = errors.New("payment has not been confirmed")
)

var tracer = otel.Tracer("storefront/service")

// resultLabel maps an outcome to a metric label. Stock shortfalls and the
// listed caller errors count as "rejected", any other failure as "error".
func resultLabel(err error, rejected ...error) string {
	if err == nil {
		return "ok"
	}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return "rejected"
	}
	for _, target := range rejected {
		if errors.Is(err, target) {
			return "rejected"
		}
	}
	return "error"
}
