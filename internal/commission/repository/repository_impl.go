package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/commission/domain"
	pkgdb "github.com/kormohq/kormo/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCategory(ctx context.Context, db *gorm.DB, categoryID *snowflake.ID) (*domain.CommissionSetting, error) {
	var item domain.CommissionSetting
	query := `SELECT * FROM commission_settings WHERE category_id IS NULL AND active LIMIT 1`
	args := []any{}
	if categoryID != nil {
		query = `SELECT * FROM commission_settings WHERE category_id = ? AND active LIMIT 1`
		args = append(args, *categoryID)
	}
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, setting *domain.CommissionSetting) error {
	applied, err := r.updateScope(ctx, db, setting)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	err = db.WithContext(ctx).Exec(
		`INSERT INTO commission_settings (id, category_id, percent, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		setting.ID,
		setting.CategoryID,
		setting.Percent,
		setting.Active,
		setting.CreatedAt,
		setting.UpdatedAt,
	).Error
	if err == nil {
		return nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return err
	}

	// A concurrent first writer inserted the scope between our UPDATE and
	// INSERT; the row exists now, so the update must land.
	applied, err = r.updateScope(ctx, db, setting)
	if err != nil {
		return err
	}
	if !applied {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) updateScope(ctx context.Context, db *gorm.DB, setting *domain.CommissionSetting) (bool, error) {
	var res *gorm.DB
	if setting.CategoryID == nil {
		res = db.WithContext(ctx).Exec(
			`UPDATE commission_settings
			 SET percent = ?, active = ?, updated_at = ?
			 WHERE category_id IS NULL`,
			setting.Percent, setting.Active, setting.UpdatedAt,
		)
	} else {
		res = db.WithContext(ctx).Exec(
			`UPDATE commission_settings
			 SET percent = ?, active = ?, updated_at = ?
			 WHERE category_id = ?`,
			setting.Percent, setting.Active, setting.UpdatedAt, *setting.CategoryID,
		)
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
