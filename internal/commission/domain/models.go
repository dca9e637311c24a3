package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidPercent = errors.New("invalid_commission_percent")
	ErrInvalidAmount  = errors.New("invalid_commission_amount")
)

// CommissionSetting is a percentage override, per category or platform-wide
// (CategoryID nil). At most one setting exists per scope.
type CommissionSetting struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	CategoryID *snowflake.ID   `json:"category_id" gorm:"uniqueIndex"`
	Percent    decimal.Decimal `json:"percent" gorm:"type:decimal(5,2);not null"`
	Active     bool            `json:"active" gorm:"not null"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"not null"`
}

func (CommissionSetting) TableName() string { return "commission_settings" }

// Breakdown is the result of splitting an amount at a resolved rate.
// CommissionAmount + ProfessionalAmount always equals the input amount.
type Breakdown struct {
	Percent            decimal.Decimal `json:"percent"`
	CommissionAmount   decimal.Decimal `json:"commission_amount"`
	ProfessionalAmount decimal.Decimal `json:"professional_amount"`
}

type Service interface {
	// Resolve returns the applicable percent: category setting, else the
	// platform-wide setting, else the configured default.
	Resolve(ctx context.Context, categoryID snowflake.ID) (decimal.Decimal, error)
	Calculate(ctx context.Context, amount decimal.Decimal, categoryID snowflake.ID) (*Breakdown, error)
	// Split applies a known percent without another lookup; used with
	// snapshotted rates.
	Split(amount, percent decimal.Decimal) Breakdown
	Upsert(ctx context.Context, categoryID *snowflake.ID, percent decimal.Decimal) (*CommissionSetting, error)
}

type Repository interface {
	FindByCategory(ctx context.Context, db *gorm.DB, categoryID *snowflake.ID) (*CommissionSetting, error)
	Upsert(ctx context.Context, db *gorm.DB, setting *CommissionSetting) error
}
