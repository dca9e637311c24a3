package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type RefundStatus string

const (
	RefundPending    RefundStatus = "PENDING"
	RefundProcessing RefundStatus = "PROCESSING"
	RefundCompleted  RefundStatus = "COMPLETED"
	RefundFailed     RefundStatus = "FAILED"
)

// Payment is one attempt to collect money for a booking. At most one payment
// per booking may be PENDING or SUCCESS at a time; a repeated intent request
// returns the open one instead of creating a duplicate.
type Payment struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	BookingID  snowflake.ID      `json:"booking_id" gorm:"not null;index"`
	Amount     decimal.Decimal   `json:"amount" gorm:"type:decimal(20,2);not null"`
	Currency   string            `json:"currency" gorm:"type:text;not null"`
	Status     PaymentStatus     `json:"status" gorm:"type:text;not null;index"`
	Method     string            `json:"method" gorm:"type:text;not null"`
	GatewayRef string            `json:"gateway_ref" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time         `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Metadata keys stored on payments. The commission snapshot is written at
// intent time so settlement never re-resolves a possibly-changed rate.
const (
	MetaCommissionPercent = "commission_percent"
	MetaCommissionAmount  = "commission_amount"
	MetaProfessionalNet   = "professional_amount"
	MetaGatewayIntent     = "gateway_intent"
	MetaWebhookPayload    = "webhook_payload"
	MetaFailureReason     = "failure_reason"
	MetaSynthetic         = "synthetic"
)

// Refund is a refund obligation for a booking+payment pair; creation is
// idempotent on that pair. Financial history is never erased: a refunded
// settlement is flagged, not deleted.
type Refund struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	BookingID   snowflake.ID      `json:"booking_id" gorm:"not null;uniqueIndex:ux_refunds_booking_payment,priority:1"`
	PaymentID   snowflake.ID      `json:"payment_id" gorm:"not null;uniqueIndex:ux_refunds_booking_payment,priority:2"`
	Amount      decimal.Decimal   `json:"amount" gorm:"type:decimal(20,2);not null"`
	Reason      string            `json:"reason" gorm:"type:text"`
	Status      RefundStatus      `json:"status" gorm:"type:text;not null;index"`
	GatewayRef  string            `json:"gateway_ref" gorm:"type:text"`
	ProcessedBy snowflake.ID      `json:"processed_by"`
	Metadata    datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null"`
}

func (Refund) TableName() string { return "refunds" }

// WebhookEvent stores every inbound gateway callback for audit and replay
// protection, keyed by (provider, provider_event_id).
type WebhookEvent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
