package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPayment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// FindOpenPayment returns the booking's PENDING or SUCCESS payment, if any.
	FindOpenPayment(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*Payment, error)
	FindSuccessfulPayment(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*Payment, error)
	FindPaymentByGatewayRef(ctx context.Context, db *gorm.DB, provider, gatewayRef string) (*Payment, error)
	// UpdatePaymentStatus is conditional on the current status so concurrent
	// webhook and capture paths cannot double-apply a transition.
	UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to PaymentStatus, gatewayRef string, metadata map[string]any, at time.Time) (bool, error)

	// InsertRefund is idempotent on (booking_id, payment_id): it reports
	// false without error when the pair already has a refund.
	InsertRefund(ctx context.Context, db *gorm.DB, refund *Refund) (bool, error)
	FindRefund(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Refund, error)
	FindRefundByPair(ctx context.Context, db *gorm.DB, bookingID, paymentID snowflake.ID) (*Refund, error)
	UpdateRefundStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to RefundStatus, gatewayRef string, at time.Time) (bool, error)

	// InsertWebhookEvent reports false when (provider, event id) was seen
	// before, which is the replay guard.
	InsertWebhookEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	MarkWebhookProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
