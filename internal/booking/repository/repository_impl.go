package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bookings (
			id, customer_id, professional_id, category_id, status, scheduled_at,
			address, latitude, longitude, details, pricing_type, quoted_price,
			commission_percent, cancel_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		booking.ID,
		booking.CustomerID,
		booking.ProfessionalID,
		booking.CategoryID,
		booking.Status,
		booking.ScheduledAt,
		booking.Address,
		booking.Latitude,
		booking.Longitude,
		booking.Details,
		booking.PricingType,
		booking.QuotedPrice,
		booking.CommissionPercent,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var item domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM bookings WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.Booking, error) {
	conditions := []string{"1=1"}
	args := []any{}
	if req.CustomerID != 0 {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, req.CustomerID)
	}
	if req.ProfessionalID != 0 {
		conditions = append(conditions, "professional_id = ?")
		args = append(args, req.ProfessionalID)
	}
	if req.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, req.Status)
	}
	// rows are walked newest first, so the cursor is an upper id bound
	if req.BeforeID != 0 {
		conditions = append(conditions, "id < ?")
		args = append(args, req.BeforeID)
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}
	// one extra row to detect has_more
	args = append(args, limit+1)

	var items []domain.Booking
	query := fmt.Sprintf(
		`SELECT * FROM bookings WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(conditions, " AND "),
	)
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, update domain.StatusUpdate, at time.Time) (bool, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{to, at}

	if update.CheckedInAt != nil {
		sets = append(sets, "checked_in_at = ?")
		args = append(args, *update.CheckedInAt)
	}
	if update.CheckedOutAt != nil {
		sets = append(sets, "checked_out_at = ?")
		args = append(args, *update.CheckedOutAt)
	}
	if update.ActualHours != nil {
		sets = append(sets, "actual_hours = ?")
		args = append(args, *update.ActualHours)
	}
	if update.FinalAmount != nil {
		sets = append(sets, "final_amount = ?")
		args = append(args, *update.FinalAmount)
	}
	if update.CancelReason != nil {
		sets = append(sets, "cancel_reason = ?")
		args = append(args, *update.CancelReason)
	}

	args = append(args, id, from)
	res := db.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE bookings SET %s WHERE id = ? AND status = ?`, strings.Join(sets, ", ")),
		args...,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.BookingEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO booking_events (id, booking_id, event_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.BookingID,
		event.EventType,
		event.Metadata,
		event.CreatedAt,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]domain.BookingEvent, error) {
	var events []domain.BookingEvent
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM booking_events WHERE booking_id = ? ORDER BY created_at ASC, id ASC`,
		bookingID,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
