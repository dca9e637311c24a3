package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"github.com/kormohq/kormo/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	meta, err := json.Marshal(payout.Metadata)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, professional_id, period_start, period_end, amount, status,
			metadata, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.ProfessionalID,
		payout.PeriodStart,
		payout.PeriodEnd,
		payout.Amount,
		payout.Status,
		string(meta),
		payout.PaidAt,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payouts WHERE id = ? LIMIT 1`,
		id,
	).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) ListForProfessional(ctx context.Context, db *gorm.DB, professionalID snowflake.ID) ([]domain.Payout, error) {
	var items []domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payouts WHERE professional_id = ? ORDER BY period_start DESC, id DESC`,
		professionalID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) HasOverlap(ctx context.Context, db *gorm.DB, professionalID snowflake.ID, start, end time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payouts
		 WHERE professional_id = ? AND period_start < ? AND period_end > ?`,
		professionalID, end, start,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, paidAt *time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, paidAt, now, id, from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListCompletedInPeriod(ctx context.Context, db *gorm.DB, start, end time.Time) ([]bookingdomain.Booking, error) {
	var items []bookingdomain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM bookings
		 WHERE status = ? AND updated_at >= ? AND updated_at < ?
		 ORDER BY professional_id ASC, id ASC`,
		bookingdomain.StatusCompleted, start, end,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
