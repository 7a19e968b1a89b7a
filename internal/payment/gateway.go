// Package payment adapts the external payment provider. Callers only see
// the Gateway interface; the Stripe implementation lives in stripe.go.
package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// IntentStatus mirrors the provider's payment intent lifecycle
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// Intent is a provider payment authorization
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64 // minor units
	Currency     string
	Status       IntentStatus
	Metadata     map[string]string
}

// CreateIntentRequest describes the authorization to request
type CreateIntentRequest struct {
	Amount   int64 // minor units
	Currency string
	Metadata map[string]string
}

// Gateway requests and inspects payment authorizations
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
}

// GatewayError wraps a provider failure. Message is the provider's own
// description, passed through for diagnostics.
type GatewayError struct {
	Op      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ToMinorUnits converts an amount to cents, rounding half away from zero
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
