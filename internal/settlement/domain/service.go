package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	paymentdomain "github.com/kormohq/kormo/internal/payment/domain"
	"github.com/shopspring/decimal"
)

// BackfillReport summarizes one reconciliation pass.
type BackfillReport struct {
	Scanned     int `json:"scanned"`
	Recorded    int `json:"recorded"`
	Synthesized int `json:"synthesized"`
}

type Service interface {
	// RecordSettlement books one completed booking into the daily rollup:
	// insert-or-fetch the day, bump its counters atomically, then insert the
	// booking's ledger row. Safe to call again for the same booking.
	RecordSettlement(ctx context.Context, booking *bookingdomain.Booking, payment *paymentdomain.Payment, commissionAmount, professionalAmount decimal.Decimal) error

	// RecordForBooking loads the booking, derives the split from its pricing
	// snapshot and locates its payment, then records the settlement. This is
	// the entry point used by the asynchronous completion task.
	RecordForBooking(ctx context.Context, bookingID snowflake.ID) error

	// ProcessDay marks the day PROCESSED (one-way) and flips its DUE rows to
	// PAID, crediting each professional's balance in the same transaction.
	ProcessDay(ctx context.Context, date time.Time) (*DailySettlement, error)

	// MarkPaid pays out a single DUE row and credits the professional's
	// balance atomically with the status flip.
	MarkPaid(ctx context.Context, settlementID snowflake.ID) (*BookingSettlement, error)

	// MarkRefunded flips a booking's settlement to REFUNDED and backs its
	// contribution out of the daily counters. The row itself is kept.
	MarkRefunded(ctx context.Context, bookingID snowflake.ID) error

	// Backfill reconstructs settlements for COMPLETED bookings that have
	// none, synthesizing a payment row when the booking was never charged
	// through the gateway. Repeat-safe.
	Backfill(ctx context.Context) (BackfillReport, error)

	GetDay(ctx context.Context, date time.Time) (*DailySettlement, error)
	GetByBooking(ctx context.Context, bookingID snowflake.ID) (*BookingSettlement, error)
	Balance(ctx context.Context, professionalID snowflake.ID) (decimal.Decimal, error)
}
