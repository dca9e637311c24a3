package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/clock"
	"github.com/kormohq/kormo/internal/commission/domain"
	"github.com/kormohq/kormo/internal/commission/repository"
	"github.com/kormohq/kormo/internal/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(`CREATE TABLE commission_settings (
		id INTEGER PRIMARY KEY,
		category_id INTEGER,
		percent NUMERIC NOT NULL,
		active BOOLEAN NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_commission_settings_category
		ON commission_settings (COALESCE(category_id, 0))`).Error; err != nil {
		t.Fatalf("create index: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
		Config: config.NewStaticCommissionConfigHolder(config.CommissionConfig{
			DefaultPercent: "15.00",
			RoundPlaces:    2,
		}),
	})
	return svc.(*Service), db
}

func TestResolveFallsBackToConfiguredDefault(t *testing.T) {
	svc, _ := newTestService(t)

	percent, err := svc.Resolve(context.Background(), 12345)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !percent.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected default 15.00, got %s", percent)
	}
}

func TestResolvePrefersCategoryOverPlatform(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, nil, decimal.RequireFromString("12.00")); err != nil {
		t.Fatalf("upsert platform: %v", err)
	}
	category := snowflake.ID(777)
	if _, err := svc.Upsert(ctx, &category, decimal.RequireFromString("8.50")); err != nil {
		t.Fatalf("upsert category: %v", err)
	}

	percent, err := svc.Resolve(ctx, category)
	if err != nil {
		t.Fatalf("resolve category: %v", err)
	}
	if !percent.Equal(decimal.RequireFromString("8.50")) {
		t.Fatalf("expected category override 8.50, got %s", percent)
	}

	percent, err = svc.Resolve(ctx, 999)
	if err != nil {
		t.Fatalf("resolve other category: %v", err)
	}
	if !percent.Equal(decimal.RequireFromString("12.00")) {
		t.Fatalf("expected platform setting 12.00, got %s", percent)
	}
}

func TestUpsertReplacesExistingScope(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	category := snowflake.ID(42)
	if _, err := svc.Upsert(ctx, &category, decimal.RequireFromString("10.00")); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := svc.Upsert(ctx, &category, decimal.RequireFromString("11.00")); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM commission_settings WHERE category_id = ?`, category).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one setting per category, got %d", count)
	}

	percent, err := svc.Resolve(ctx, category)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !percent.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("expected replaced percent 11.00, got %s", percent)
	}
}

func TestUpsertRejectsOutOfRangePercent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, nil, decimal.RequireFromString("-1")); !errors.Is(err, domain.ErrInvalidPercent) {
		t.Fatalf("expected ErrInvalidPercent for negative, got %v", err)
	}
	if _, err := svc.Upsert(ctx, nil, decimal.RequireFromString("100.01")); !errors.Is(err, domain.ErrInvalidPercent) {
		t.Fatalf("expected ErrInvalidPercent for >100, got %v", err)
	}
}

func TestSplitConservesMoney(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		amount  string
		percent string
	}{
		{"1000.00", "15.00"},
		{"100.01", "12.34"},
		{"0.01", "15.00"},
		{"999999.99", "7.77"},
		{"33.33", "33.33"},
	}
	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		percent := decimal.RequireFromString(tc.percent)
		breakdown := svc.Split(amount, percent)
		if !breakdown.CommissionAmount.Add(breakdown.ProfessionalAmount).Equal(amount) {
			t.Fatalf("split of %s at %s%% lost money: %s + %s != %s",
				tc.amount, tc.percent,
				breakdown.CommissionAmount, breakdown.ProfessionalAmount, tc.amount)
		}
		if breakdown.CommissionAmount.Exponent() < -2 {
			t.Fatalf("commission %s has more than 2 decimal places", breakdown.CommissionAmount)
		}
	}
}

func TestSplitKnownValues(t *testing.T) {
	svc, _ := newTestService(t)

	breakdown := svc.Split(decimal.RequireFromString("1250.00"), decimal.RequireFromString("15.00"))
	if !breakdown.CommissionAmount.Equal(decimal.RequireFromString("187.50")) {
		t.Fatalf("expected commission 187.50, got %s", breakdown.CommissionAmount)
	}
	if !breakdown.ProfessionalAmount.Equal(decimal.RequireFromString("1062.50")) {
		t.Fatalf("expected professional net 1062.50, got %s", breakdown.ProfessionalAmount)
	}
}

func TestCalculateRejectsNegativeAmount(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Calculate(context.Background(), decimal.RequireFromString("-10"), 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestUpsertConcurrentFirstWriters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	category := snowflake.ID(40001)

	// Two writers racing to create the same scope: one inserts, the other
	// must land as an update instead of surfacing a unique violation.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, percent := range []string{"9.00", "11.00"} {
		wg.Add(1)
		go func(percent string) {
			defer wg.Done()
			_, err := svc.Upsert(ctx, &category, decimal.RequireFromString(percent))
			errs <- err
		}(percent)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM commission_settings WHERE category_id = ?`, category).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one setting after the race, got %d", count)
	}
}
