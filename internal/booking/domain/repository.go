package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatusUpdate carries the optional columns a transition may set alongside
// the status itself. Nil fields are left untouched.
type StatusUpdate struct {
	CheckedInAt  *time.Time
	CheckedOutAt *time.Time
	ActualHours  *decimal.Decimal
	FinalAmount  *decimal.Decimal
	CancelReason *string
}

// Repository persists bookings and their event log. Methods take the gorm
// handle so services decide transaction boundaries.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]Booking, error)

	// UpdateStatus performs the conditional transition write: the row is
	// updated only when its status still equals from. Returns false when a
	// concurrent writer got there first.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, update StatusUpdate, at time.Time) (bool, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *BookingEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]BookingEvent, error)
}
