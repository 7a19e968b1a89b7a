package service

import (
	"context"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// PaymentIntent is what a client needs to complete payment
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       decimal.Decimal
}

// PaymentService requests payment authorization for a cart
type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (*PaymentIntent, error)
}

type paymentService struct {
	carts    repository.CartRepository
	gateway  payment.Gateway
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentService creates a new instance of PaymentService
func NewPaymentService(carts repository.CartRepository, gateway payment.Gateway, currency string, logger *zap.Logger) PaymentService {
	return &paymentService{
		carts:    carts,
		gateway:  gateway,
		currency: currency,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreatePaymentIntent prices the active cart with current prices and asks
// the provider for an intent of that amount. Cart and stock are untouched.
func (s *paymentService) CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (result *PaymentIntent, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.CreatePaymentIntent")
	defer span.End()
	defer func() {
		metrics.PaymentIntentsTotal.WithLabelValues(resultLabel(err, ErrEmptyCart)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	items, err := s.carts.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	total := CartTotal(items)
	amount := payment.ToMinorUnits(total)
	span.SetAttributes(attribute.Int64("payment.amount", amount))

	intent, err := s.gateway.CreatePaymentIntent(ctx, payment.CreateIntentRequest{
		Amount:   amount,
		Currency: s.currency,
		Metadata: map[string]string{"user_id": userID.String()},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.String("user_id", userID.String()),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", amount),
		zap.String("currency", s.currency),
	)

	return &PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       total,
	}, nil
}
