package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	ListForProfessional(ctx context.Context, db *gorm.DB, professionalID snowflake.ID) ([]Payout, error)

	// HasOverlap reports whether the professional already has a payout whose
	// period intersects [start, end).
	HasOverlap(ctx context.Context, db *gorm.DB, professionalID snowflake.ID, start, end time.Time) (bool, error)

	// UpdateStatus is conditional on the current status. Returns false when
	// the row moved under the caller.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, paidAt *time.Time, now time.Time) (bool, error)

	// ListCompletedInPeriod returns COMPLETED bookings whose last update
	// falls inside [start, end).
	ListCompletedInPeriod(ctx context.Context, db *gorm.DB, start, end time.Time) ([]bookingdomain.Booking, error)
}
