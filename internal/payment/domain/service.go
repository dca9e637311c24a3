package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrRefundNotFound     = errors.New("refund_not_found")
	ErrInvalidPayment     = errors.New("invalid_payment_request")
	ErrAlreadyPaid        = errors.New("payment_already_succeeded")
	ErrNotCapturable      = errors.New("payment_not_capturable")
	ErrNotRefundable      = errors.New("payment_not_refundable")
	ErrWebhookReplayed    = errors.New("webhook_already_processed")
	ErrWebhookUnsupported = errors.New("webhook_event_unsupported")
)

type CreateIntentRequest struct {
	BookingID snowflake.ID
	Method    string
	Amount    decimal.Decimal
	Currency  string
}

type RefundRequest struct {
	PaymentID   snowflake.ID
	Reason      string
	ProcessedBy snowflake.ID
}

// WebhookResult reports the outcome of webhook processing. Webhook handlers
// always acknowledge the gateway; failures are carried here instead of as
// transport errors so the provider does not retry-storm us.
type WebhookResult struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
	Reason    string `json:"reason,omitempty"`
}

type Service interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Payment, error)
	Capture(ctx context.Context, paymentID snowflake.ID) (*Payment, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	GetPayment(ctx context.Context, id snowflake.ID) (*Payment, error)
	ProcessWebhook(ctx context.Context, provider string, payload []byte, signature string) (*WebhookResult, error)

	// CreateRefundForRejection opens the refund obligation for a rejected
	// booking that already collected money. Idempotent per booking+payment.
	CreateRefundForRejection(ctx context.Context, bookingID, paymentID snowflake.ID, amount decimal.Decimal, reason string) (*Refund, error)
}
