package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

type PricingType string

const (
	PricingHourly PricingType = "HOURLY"
	PricingFixed  PricingType = "FIXED"
)

type EventType string

const (
	EventCreated          EventType = "CREATED"
	EventAccepted         EventType = "ACCEPTED"
	EventRejected         EventType = "REJECTED"
	EventCheckedIn        EventType = "CHECKED_IN"
	EventCheckedOut       EventType = "CHECKED_OUT"
	EventCompleted        EventType = "COMPLETED"
	EventCancelled        EventType = "CANCELLED"
	EventPaymentCompleted EventType = "PAYMENT_COMPLETED"
	EventRefunded         EventType = "REFUNDED"
)

// Booking is one job engagement between a customer and a professional.
// Pricing fields are snapshots taken at request time so later rate changes
// never rewrite history. Bookings are never hard-deleted.
type Booking struct {
	ID                snowflake.ID     `json:"id" gorm:"primaryKey"`
	CustomerID        snowflake.ID     `json:"customer_id" gorm:"not null;index"`
	ProfessionalID    snowflake.ID     `json:"professional_id" gorm:"not null;index"`
	CategoryID        snowflake.ID     `json:"category_id" gorm:"not null;index"`
	Status            Status           `json:"status" gorm:"type:text;not null;index"`
	ScheduledAt       time.Time        `json:"scheduled_at" gorm:"not null"`
	Address           string           `json:"address" gorm:"type:text"`
	Latitude          float64          `json:"latitude"`
	Longitude         float64          `json:"longitude"`
	Details           string           `json:"details" gorm:"type:text"`
	PricingType       PricingType      `json:"pricing_type" gorm:"type:text;not null"`
	QuotedPrice       decimal.Decimal  `json:"quoted_price" gorm:"type:decimal(20,2);not null"`
	CommissionPercent decimal.Decimal  `json:"commission_percent" gorm:"type:decimal(5,2);not null"`
	CheckedInAt       *time.Time       `json:"checked_in_at"`
	CheckedOutAt      *time.Time       `json:"checked_out_at"`
	ActualHours       *decimal.Decimal `json:"actual_hours" gorm:"type:decimal(10,2)"`
	FinalAmount       *decimal.Decimal `json:"final_amount" gorm:"type:decimal(20,2)"`
	CancelReason      string           `json:"cancel_reason" gorm:"type:text"`
	CreatedAt         time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time        `json:"updated_at" gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

// BookingEvent is an append-only lifecycle fact. Rows are never updated or
// deleted; insertion order matches transition order for a given booking.
type BookingEvent struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	BookingID snowflake.ID      `json:"booking_id" gorm:"not null;index"`
	EventType EventType         `json:"event_type" gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null"`
}

func (BookingEvent) TableName() string { return "booking_events" }
