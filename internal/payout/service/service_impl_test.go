package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	bookingrepo "github.com/kormohq/kormo/internal/booking/repository"
	"github.com/kormohq/kormo/internal/clock"
	commissiondomain "github.com/kormohq/kormo/internal/commission/domain"
	"github.com/kormohq/kormo/internal/config"
	outboxrepo "github.com/kormohq/kormo/internal/outbox/repository"
	outboxservice "github.com/kormohq/kormo/internal/outbox/service"
	"github.com/kormohq/kormo/internal/payout/domain"
	"github.com/kormohq/kormo/internal/payout/repository"
	"github.com/kormohq/kormo/internal/providers/pdf"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testSchema = []string{
	`CREATE TABLE bookings (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		professional_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		scheduled_at DATETIME NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		latitude REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		details TEXT NOT NULL DEFAULT '',
		pricing_type TEXT NOT NULL,
		quoted_price NUMERIC NOT NULL,
		commission_percent NUMERIC NOT NULL,
		checked_in_at DATETIME,
		checked_out_at DATETIME,
		actual_hours NUMERIC,
		final_amount NUMERIC,
		cancel_reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payouts (
		id INTEGER PRIMARY KEY,
		professional_id INTEGER NOT NULL,
		period_start DATETIME NOT NULL,
		period_end DATETIME NOT NULL,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT,
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE outbox_tasks (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at DATETIME NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range testSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type fixedCommission struct{}

func (fixedCommission) Resolve(context.Context, snowflake.ID) (decimal.Decimal, error) {
	return decimal.RequireFromString("15.00"), nil
}

func (c fixedCommission) Calculate(ctx context.Context, amount decimal.Decimal, categoryID snowflake.ID) (*commissiondomain.Breakdown, error) {
	breakdown := c.Split(amount, decimal.RequireFromString("15.00"))
	return &breakdown, nil
}

func (fixedCommission) Split(amount, percent decimal.Decimal) commissiondomain.Breakdown {
	commission := amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
	return commissiondomain.Breakdown{
		Percent:            percent,
		CommissionAmount:   commission,
		ProfessionalAmount: amount.Sub(commission),
	}
}

func (fixedCommission) Upsert(context.Context, *snowflake.ID, decimal.Decimal) (*commissiondomain.CommissionSetting, error) {
	return nil, errors.New("not supported")
}

type testEnv struct {
	db          *gorm.DB
	clock       *clock.FakeClock
	genID       *snowflake.Node
	svc         domain.Service
	bookingRepo bookingdomain.Repository
	periodStart time.Time
	periodEnd   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(13)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	enqueuer := outboxservice.NewEnqueuer(outboxservice.EnqueuerParams{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  outboxrepo.Provide(),
	})

	bookingRepo := bookingrepo.Provide()
	svc := NewService(Params{
		Config:        config.Config{AppName: "kormo", DefaultCurrency: "BDT"},
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Repo:          repository.Provide(),
		BookingRepo:   bookingRepo,
		CommissionSvc: fixedCommission{},
		Outbox:        enqueuer,
		PDF:           pdf.New(),
	})

	start := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	return &testEnv{
		db:          db,
		clock:       clk,
		genID:       node,
		svc:         svc,
		bookingRepo: bookingRepo,
		periodStart: start,
		periodEnd:   start.AddDate(0, 0, 7),
	}
}

// insertCompletedBooking places a COMPLETED booking whose updated_at falls
// inside the test period.
func (e *testEnv) insertCompletedBooking(t *testing.T, professionalID snowflake.ID, amount string, completedAt time.Time) *bookingdomain.Booking {
	t.Helper()
	value := decimal.RequireFromString(amount)
	booking := &bookingdomain.Booking{
		ID:                e.genID.Generate(),
		CustomerID:        e.genID.Generate(),
		ProfessionalID:    professionalID,
		CategoryID:        e.genID.Generate(),
		Status:            bookingdomain.StatusCompleted,
		ScheduledAt:       completedAt,
		PricingType:       bookingdomain.PricingFixed,
		QuotedPrice:       value,
		CommissionPercent: decimal.RequireFromString("15.00"),
		CreatedAt:         completedAt,
		UpdatedAt:         completedAt,
	}
	if err := e.bookingRepo.Insert(context.Background(), e.db, booking); err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	if err := e.db.Exec(
		`UPDATE bookings SET status = ?, final_amount = ?, updated_at = ? WHERE id = ?`,
		booking.Status, value, completedAt, booking.ID,
	).Error; err != nil {
		t.Fatalf("mark booking completed: %v", err)
	}
	return booking
}

func TestGenerateForPeriodGroupsByProfessional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pro := env.genID.Generate()
	other := env.genID.Generate()
	inPeriod := env.periodStart.Add(36 * time.Hour)

	env.insertCompletedBooking(t, pro, "1000.00", inPeriod)
	env.insertCompletedBooking(t, pro, "500.00", inPeriod.Add(time.Hour))
	env.insertCompletedBooking(t, other, "200.00", inPeriod)
	// outside the window, must not count
	env.insertCompletedBooking(t, pro, "9999.00", env.periodEnd.Add(time.Hour))

	payouts, err := env.svc.GenerateForPeriod(ctx, env.periodStart, env.periodEnd)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(payouts) != 2 {
		t.Fatalf("expected 2 payouts, got %d", len(payouts))
	}

	byProfessional := map[snowflake.ID]decimal.Decimal{}
	for _, p := range payouts {
		if p.Status != domain.StatusPending {
			t.Fatalf("expected PENDING payout, got %s", p.Status)
		}
		byProfessional[p.ProfessionalID] = p.Amount
	}
	// 1500 gross at 15% leaves 1275 for the professional
	if !byProfessional[pro].Equal(decimal.RequireFromString("1275.00")) {
		t.Fatalf("expected 1275.00 for the busy professional, got %s", byProfessional[pro])
	}
	if !byProfessional[other].Equal(decimal.RequireFromString("170.00")) {
		t.Fatalf("expected 170.00 for the other professional, got %s", byProfessional[other])
	}

	var notices int64
	if err := env.db.Raw(`SELECT COUNT(1) FROM outbox_tasks WHERE kind = 'notification.dispatch'`).Scan(&notices).Error; err != nil {
		t.Fatalf("count notices: %v", err)
	}
	if notices != 2 {
		t.Fatalf("expected one notice per payout, got %d", notices)
	}
}

func TestGenerateForPeriodSkipsOverlaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pro := env.genID.Generate()
	env.insertCompletedBooking(t, pro, "1000.00", env.periodStart.Add(24*time.Hour))

	first, err := env.svc.GenerateForPeriod(ctx, env.periodStart, env.periodEnd)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(first))
	}

	// a rerun over the same window is a no-op
	second, err := env.svc.GenerateForPeriod(ctx, env.periodStart, env.periodEnd)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected rerun to skip existing payout, got %d new", len(second))
	}

	// a half-shifted window that still covers the booking overlaps too
	shiftedStart := env.periodStart.AddDate(0, 0, -2)
	third, err := env.svc.GenerateForPeriod(ctx, shiftedStart, shiftedStart.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("third generate: %v", err)
	}
	if len(third) != 0 {
		t.Fatalf("expected overlapping window to be skipped, got %d new", len(third))
	}

	var count int64
	if err := env.db.Raw(`SELECT COUNT(1) FROM payouts`).Scan(&count).Error; err != nil {
		t.Fatalf("count payouts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single payout row, got %d", count)
	}
}

func TestGenerateForPeriodValidatesWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.GenerateForPeriod(ctx, env.periodEnd, env.periodStart); !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod for reversed window, got %v", err)
	}
	if _, err := env.svc.GenerateForPeriod(ctx, time.Time{}, env.periodEnd); !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod for zero start, got %v", err)
	}
}

func TestMarkPaidIsOneWay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pro := env.genID.Generate()
	env.insertCompletedBooking(t, pro, "800.00", env.periodStart.Add(12*time.Hour))
	payouts, err := env.svc.GenerateForPeriod(ctx, env.periodStart, env.periodEnd)
	if err != nil || len(payouts) != 1 {
		t.Fatalf("generate: %v (%d payouts)", err, len(payouts))
	}

	paid, err := env.svc.MarkPaid(ctx, payouts[0].ID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.StatusPaid || paid.PaidAt == nil {
		t.Fatalf("expected PAID with timestamp, got %s %v", paid.Status, paid.PaidAt)
	}

	if _, err := env.svc.MarkPaid(ctx, payouts[0].ID); !errors.Is(err, domain.ErrPayoutNotPending) {
		t.Fatalf("expected ErrPayoutNotPending on second mark, got %v", err)
	}
	if _, err := env.svc.MarkPaid(ctx, 424242); !errors.Is(err, domain.ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}
}

func TestListForProfessional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pro := env.genID.Generate()
	env.insertCompletedBooking(t, pro, "300.00", env.periodStart.Add(6*time.Hour))
	if _, err := env.svc.GenerateForPeriod(ctx, env.periodStart, env.periodEnd); err != nil {
		t.Fatalf("generate: %v", err)
	}

	list, err := env.svc.ListForProfessional(ctx, pro)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(list))
	}
	if list[0].ProfessionalID != pro {
		t.Fatalf("payout belongs to %s, expected %s", list[0].ProfessionalID, pro)
	}

	empty, err := env.svc.ListForProfessional(ctx, env.genID.Generate())
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no payouts, got %d", len(empty))
	}
}

func TestStatementRendersPDF(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pro := env.genID.Generate()
	env.insertCompletedBooking(t, pro, "1000.00", env.periodStart.Add(24*time.Hour))
	payouts, err := env.svc.GenerateForPeriod(ctx, env.periodStart, env.periodEnd)
	if err != nil || len(payouts) != 1 {
		t.Fatalf("generate: %v (%d payouts)", err, len(payouts))
	}

	reader, err := env.svc.Statement(ctx, payouts[0].ID)
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read statement: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected statement bytes")
	}
	if string(raw[:4]) != "%PDF" {
		t.Fatalf("expected a PDF document, got prefix %q", raw[:4])
	}
}
