package payment

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

// StripeGateway implements Gateway with Stripe PaymentIntents
type StripeGateway struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripeGateway creates a gateway using the given secret key. backends
// may be nil to talk to the live Stripe API.
func NewStripeGateway(secretKey string, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)

	return &StripeGateway{
		api:    api,
		logger: logger,
	}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.logger.Error("Stripe payment intent creation failed",
			zap.Int64("amount", req.Amount),
			zap.String("currency", req.Currency),
			zap.Error(err),
		)
		return nil, wrapStripeError("create_payment_intent", err)
	}

	g.logger.Info("Stripe payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", pi.Amount),
	)

	return fromStripe(pi), nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		g.logger.Error("Stripe payment intent lookup failed",
			zap.String("payment_intent_id", id),
			zap.Error(err),
		)
		return nil, wrapStripeError("get_payment_intent", err)
	}

	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func wrapStripeError(op string, err error) error {
	message := err.Error()

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		message = stripeErr.Msg
	}

	return &GatewayError{Op: op, Message: message, Err: err}
}
