package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"github.com/kormohq/kormo/internal/settlement/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureDay(ctx context.Context, db *gorm.DB, id snowflake.ID, date time.Time, now time.Time) (*domain.DailySettlement, error) {
	// insert-or-fetch: concurrent first-writers race on the unique date and
	// the loser silently reads the winner's row.
	err := db.WithContext(ctx).Exec(
		`INSERT INTO daily_settlements (
			id, settlement_date, total_bookings, total_amount, total_commission,
			total_payouts, status, created_at, updated_at
		) VALUES (?, ?, 0, 0, 0, 0, ?, ?, ?)
		ON CONFLICT (settlement_date) DO NOTHING`,
		id, date, domain.DayPending, now, now,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindDay(ctx, db, date)
}

func (r *repo) FindDay(ctx context.Context, db *gorm.DB, date time.Time) (*domain.DailySettlement, error) {
	var day domain.DailySettlement
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM daily_settlements WHERE settlement_date = ? LIMIT 1`,
		date,
	).Scan(&day).Error
	if err != nil {
		return nil, err
	}
	if day.ID == 0 {
		return nil, nil
	}
	return &day, nil
}

func (r *repo) AddDayTotals(ctx context.Context, db *gorm.DB, dayID snowflake.ID, bookings int64, amount, commission, payouts decimal.Decimal, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE daily_settlements SET
			total_bookings = total_bookings + ?,
			total_amount = total_amount + ?,
			total_commission = total_commission + ?,
			total_payouts = total_payouts + ?,
			updated_at = ?
		WHERE id = ?`,
		bookings, amount, commission, payouts, now, dayID,
	).Error
}

func (r *repo) MarkDayProcessed(ctx context.Context, db *gorm.DB, dayID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE daily_settlements SET status = ?, processed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.DayProcessed, now, now, dayID, domain.DayPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertSettlement(ctx context.Context, db *gorm.DB, settlement *domain.BookingSettlement) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO booking_settlements (
			id, booking_id, professional_id, daily_settlement_id, payment_id,
			commission_amount, professional_amount, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (booking_id) DO NOTHING`,
		settlement.ID,
		settlement.BookingID,
		settlement.ProfessionalID,
		settlement.DailySettlementID,
		settlement.PaymentID,
		settlement.CommissionAmount,
		settlement.ProfessionalAmount,
		settlement.Status,
		settlement.CreatedAt,
		settlement.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindSettlement(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BookingSettlement, error) {
	var item domain.BookingSettlement
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM booking_settlements WHERE id = ? LIMIT 1`,
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

func (r *repo) FindSettlementByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.BookingSettlement, error) {
	var item domain.BookingSettlement
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM booking_settlements WHERE booking_id = ? LIMIT 1`,
		bookingID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListSettlementsForDay(ctx context.Context, db *gorm.DB, dayID snowflake.ID, status domain.SettlementStatus) ([]domain.BookingSettlement, error) {
	var items []domain.BookingSettlement
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM booking_settlements WHERE daily_settlement_id = ? AND status = ? ORDER BY id ASC`,
		dayID, status,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateSettlementStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.SettlementStatus, paidAt *time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE booking_settlements SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, paidAt, now, id, from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CreditBalance(ctx context.Context, db *gorm.DB, professionalID snowflake.ID, amount decimal.Decimal, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO professional_accounts (professional_id, balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (professional_id) DO UPDATE SET
			balance = professional_accounts.balance + excluded.balance,
			updated_at = excluded.updated_at`,
		professionalID, amount, now, now,
	).Error
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, professionalID snowflake.ID) (*domain.ProfessionalAccount, error) {
	var account domain.ProfessionalAccount
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM professional_accounts WHERE professional_id = ? LIMIT 1`,
		professionalID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ProfessionalID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) ListUnsettledCompleted(ctx context.Context, db *gorm.DB, limit int) ([]bookingdomain.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []bookingdomain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT b.* FROM bookings b
		 LEFT JOIN booking_settlements bs ON bs.booking_id = b.id
		 WHERE b.status = ? AND bs.id IS NULL
		 ORDER BY b.updated_at ASC, b.id ASC
		 LIMIT ?`,
		bookingdomain.StatusCompleted, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
