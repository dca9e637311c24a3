package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrDayNotFound        = errors.New("settlement_day_not_found")
	ErrDayProcessed       = errors.New("settlement_day_processed")
	ErrSettlementNotFound = errors.New("settlement_not_found")
	ErrSettlementNotDue   = errors.New("settlement_not_due")
	ErrBookingNotSettled  = errors.New("booking_not_settleable")
)

type DailyStatus string

const (
	DayPending   DailyStatus = "PENDING"
	DayProcessed DailyStatus = "PROCESSED"
)

type SettlementStatus string

const (
	SettlementDue      SettlementStatus = "DUE"
	SettlementPaid     SettlementStatus = "PAID"
	SettlementRefunded SettlementStatus = "REFUNDED"
)

// DailySettlement is the per-day rollup. One row per calendar date, keyed by
// the midnight-truncated date. Counters move only through atomic SQL
// increments so concurrent completions on the same day never lose updates.
type DailySettlement struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	SettlementDate  time.Time       `json:"settlement_date" gorm:"not null;uniqueIndex:ux_daily_settlements_date"`
	TotalBookings   int64           `json:"total_bookings" gorm:"not null"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:decimal(20,2);not null"`
	TotalCommission decimal.Decimal `json:"total_commission" gorm:"type:decimal(20,2);not null"`
	TotalPayouts    decimal.Decimal `json:"total_payouts" gorm:"type:decimal(20,2);not null"`
	Status          DailyStatus     `json:"status" gorm:"type:text;not null"`
	ProcessedAt     *time.Time      `json:"processed_at"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`
}

func (DailySettlement) TableName() string { return "daily_settlements" }

// BookingSettlement links one completed booking to its day. The unique index
// on booking_id is the idempotent re-entry guard for retried completions.
type BookingSettlement struct {
	ID                 snowflake.ID     `json:"id" gorm:"primaryKey"`
	BookingID          snowflake.ID     `json:"booking_id" gorm:"not null;uniqueIndex:ux_booking_settlements_booking"`
	ProfessionalID     snowflake.ID     `json:"professional_id" gorm:"not null;index"`
	DailySettlementID  snowflake.ID     `json:"daily_settlement_id" gorm:"not null;index"`
	PaymentID          *snowflake.ID    `json:"payment_id"`
	CommissionAmount   decimal.Decimal  `json:"commission_amount" gorm:"type:decimal(20,2);not null"`
	ProfessionalAmount decimal.Decimal  `json:"professional_amount" gorm:"type:decimal(20,2);not null"`
	Status             SettlementStatus `json:"status" gorm:"type:text;not null"`
	PaidAt             *time.Time       `json:"paid_at"`
	CreatedAt          time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time        `json:"updated_at" gorm:"not null"`
}

func (BookingSettlement) TableName() string { return "booking_settlements" }

// ProfessionalAccount carries a professional's running payable balance.
type ProfessionalAccount struct {
	ProfessionalID snowflake.ID    `json:"professional_id" gorm:"primaryKey"`
	Balance        decimal.Decimal `json:"balance" gorm:"type:decimal(20,2);not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (ProfessionalAccount) TableName() string { return "professional_accounts" }
