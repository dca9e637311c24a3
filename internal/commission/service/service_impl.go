package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/clock"
	"github.com/kormohq/kormo/internal/commission/domain"
	"github.com/kormohq/kormo/internal/config"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Config *config.CommissionConfigHolder
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	cfg   *config.CommissionConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("commission.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cfg:   p.Config,
	}
}

func (s *Service) Resolve(ctx context.Context, categoryID snowflake.ID) (decimal.Decimal, error) {
	if categoryID != 0 {
		setting, err := s.repo.FindByCategory(ctx, s.db, &categoryID)
		if err != nil {
			return decimal.Zero, err
		}
		if setting != nil {
			return setting.Percent, nil
		}
	}

	setting, err := s.repo.FindByCategory(ctx, s.db, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if setting != nil {
		return setting.Percent, nil
	}

	return s.cfg.Current().DefaultRate(), nil
}

func (s *Service) Calculate(ctx context.Context, amount decimal.Decimal, categoryID snowflake.ID) (*domain.Breakdown, error) {
	if amount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	percent, err := s.Resolve(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	breakdown := s.Split(amount, percent)
	return &breakdown, nil
}

// Split divides amount at percent. The commission side is rounded to the
// configured precision and the professional side is the exact remainder, so
// the two always add back up to amount.
func (s *Service) Split(amount, percent decimal.Decimal) domain.Breakdown {
	places := s.cfg.Current().RoundPlaces
	commission := amount.Mul(percent).Div(hundred).Round(places)
	return domain.Breakdown{
		Percent:            percent,
		CommissionAmount:   commission,
		ProfessionalAmount: amount.Sub(commission),
	}
}

func (s *Service) Upsert(ctx context.Context, categoryID *snowflake.ID, percent decimal.Decimal) (*domain.CommissionSetting, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return nil, domain.ErrInvalidPercent
	}

	now := s.clock.Now()
	setting := &domain.CommissionSetting{
		ID:         s.genID.Generate(),
		CategoryID: categoryID,
		Percent:    percent,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Upsert(ctx, s.db, setting); err != nil {
		return nil, err
	}
	return setting, nil
}
