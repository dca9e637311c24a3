package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	// EnsureDay inserts the day's row if absent and returns the surviving
	// row either way. id is used only when this caller wins the insert.
	EnsureDay(ctx context.Context, db *gorm.DB, id snowflake.ID, date time.Time, now time.Time) (*DailySettlement, error)
	FindDay(ctx context.Context, db *gorm.DB, date time.Time) (*DailySettlement, error)

	// AddDayTotals bumps the four counters in one atomic UPDATE. Negative
	// deltas back a contribution out (refunds).
	AddDayTotals(ctx context.Context, db *gorm.DB, dayID snowflake.ID, bookings int64, amount, commission, payouts decimal.Decimal, now time.Time) error
	MarkDayProcessed(ctx context.Context, db *gorm.DB, dayID snowflake.ID, now time.Time) (bool, error)

	// InsertSettlement reports false without error when the booking already
	// has a row.
	InsertSettlement(ctx context.Context, db *gorm.DB, settlement *BookingSettlement) (bool, error)
	FindSettlement(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BookingSettlement, error)
	FindSettlementByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*BookingSettlement, error)
	ListSettlementsForDay(ctx context.Context, db *gorm.DB, dayID snowflake.ID, status SettlementStatus) ([]BookingSettlement, error)
	UpdateSettlementStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to SettlementStatus, paidAt *time.Time, now time.Time) (bool, error)

	// CreditBalance upserts the account row and adds amount atomically.
	CreditBalance(ctx context.Context, db *gorm.DB, professionalID snowflake.ID, amount decimal.Decimal, now time.Time) error
	FindAccount(ctx context.Context, db *gorm.DB, professionalID snowflake.ID) (*ProfessionalAccount, error)

	// ListUnsettledCompleted returns COMPLETED bookings with no settlement
	// row, oldest first.
	ListUnsettledCompleted(ctx context.Context, db *gorm.DB, limit int) ([]bookingdomain.Booking, error)
}
