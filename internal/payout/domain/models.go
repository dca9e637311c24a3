package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var (
	ErrPayoutNotFound   = errors.New("payout_not_found")
	ErrPayoutNotPending = errors.New("payout_not_pending")
	ErrInvalidPeriod    = errors.New("payout_invalid_period")
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

const (
	MetaBookingIDs   = "booking_ids"
	MetaBookingCount = "booking_count"
)

// Payout is the batched net amount owed to one professional for one period.
// Periods never overlap per professional; the metadata records which bookings
// the amount was built from.
type Payout struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProfessionalID snowflake.ID      `json:"professional_id" gorm:"not null;index"`
	PeriodStart    time.Time         `json:"period_start" gorm:"not null"`
	PeriodEnd      time.Time         `json:"period_end" gorm:"not null"`
	Amount         decimal.Decimal   `json:"amount" gorm:"type:decimal(20,2);not null"`
	Status         Status            `json:"status" gorm:"type:text;not null;index"`
	Metadata       datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	PaidAt         *time.Time        `json:"paid_at"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null"`
}

func (Payout) TableName() string { return "payouts" }
