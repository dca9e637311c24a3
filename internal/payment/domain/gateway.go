package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("payment_adapter_invalid_config")
	ErrInvalidSignature = errors.New("payment_invalid_signature")
	ErrGatewayDeclined  = errors.New("payment_gateway_declined")
	ErrGatewayTimeout   = errors.New("payment_gateway_timeout")
)

// GatewayIntentRequest asks the provider to open a collection for a booking.
type GatewayIntentRequest struct {
	BookingID  snowflake.ID
	CustomerID snowflake.ID
	Amount     decimal.Decimal
	Currency   string
	Metadata   map[string]any
}

type GatewayCaptureRequest struct {
	GatewayRef string
	Amount     decimal.Decimal
	Currency   string
	Metadata   map[string]any
}

type GatewayRefundRequest struct {
	GatewayRef string
	Amount     decimal.Decimal
	Currency   string
	Reason     string
	Metadata   map[string]any
}

// GatewayResult is the provider's answer to any money movement call.
type GatewayResult struct {
	GatewayRef string
	Status     string
	Metadata   map[string]any
}

// Gateway abstracts one external payment provider. Implementations must
// honor the context deadline; the coordinator wraps every call in a timeout
// and records a FAILED payment when it fires.
type Gateway interface {
	Provider() string
	CreateIntent(ctx context.Context, req GatewayIntentRequest) (*GatewayResult, error)
	Capture(ctx context.Context, req GatewayCaptureRequest) (*GatewayResult, error)
	Refund(ctx context.Context, req GatewayRefundRequest) (*GatewayResult, error)
	VerifyWebhook(payload []byte, signature string) bool
}

// AdapterConfig carries provider credentials resolved from configuration.
type AdapterConfig struct {
	BaseURL       string
	Key           string
	Secret        string
	WebhookSecret string
}

// GatewayFactory builds a Gateway for its provider name.
type GatewayFactory interface {
	Provider() string
	New(cfg AdapterConfig) (Gateway, error)
}
