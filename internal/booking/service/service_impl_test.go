package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/booking/domain"
	bookingrepo "github.com/kormohq/kormo/internal/booking/repository"
	"github.com/kormohq/kormo/internal/clock"
	commissiondomain "github.com/kormohq/kormo/internal/commission/domain"
	outboxdomain "github.com/kormohq/kormo/internal/outbox/domain"
	outboxrepo "github.com/kormohq/kormo/internal/outbox/repository"
	outboxservice "github.com/kormohq/kormo/internal/outbox/service"
	paymentdomain "github.com/kormohq/kormo/internal/payment/domain"
	paymentrepo "github.com/kormohq/kormo/internal/payment/repository"
	"github.com/kormohq/kormo/pkg/db/pagination"
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
	`CREATE TABLE booking_events (
		id INTEGER PRIMARY KEY,
		booking_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		booking_id INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL,
		gateway_ref TEXT NOT NULL DEFAULT '',
		metadata TEXT,
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

func assertCount(t *testing.T, db *gorm.DB, query string, want int64, args ...any) {
	t.Helper()
	var got int64
	if err := db.Raw(query, args...).Scan(&got).Error; err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if got != want {
		t.Fatalf("count mismatch for %q: got %d, want %d", query, got, want)
	}
}

// fixedCommission resolves every category to the same percent.
type fixedCommission struct {
	percent decimal.Decimal
}

func (c fixedCommission) Resolve(context.Context, snowflake.ID) (decimal.Decimal, error) {
	return c.percent, nil
}

func (c fixedCommission) Calculate(ctx context.Context, amount decimal.Decimal, categoryID snowflake.ID) (*commissiondomain.Breakdown, error) {
	breakdown := c.Split(amount, c.percent)
	return &breakdown, nil
}

func (c fixedCommission) Split(amount, percent decimal.Decimal) commissiondomain.Breakdown {
	commission := amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
	return commissiondomain.Breakdown{
		Percent:            percent,
		CommissionAmount:   commission,
		ProfessionalAmount: amount.Sub(commission),
	}
}

func (c fixedCommission) Upsert(context.Context, *snowflake.ID, decimal.Decimal) (*commissiondomain.CommissionSetting, error) {
	return nil, errors.New("not supported")
}

type testEnv struct {
	db          *gorm.DB
	clock       *clock.FakeClock
	genID       *snowflake.Node
	svc         domain.Service
	paymentRepo paymentdomain.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	taskRepo := outboxrepo.Provide()
	enqueuer := outboxservice.NewEnqueuer(outboxservice.EnqueuerParams{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  taskRepo,
	})

	paymentRepo := paymentrepo.Provide()
	svc := NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Repo:          bookingrepo.Provide(),
		PaymentRepo:   paymentRepo,
		CommissionSvc: fixedCommission{percent: decimal.RequireFromString("15.00")},
		Outbox:        enqueuer,
	})

	return &testEnv{db: db, clock: clk, genID: node, svc: svc, paymentRepo: paymentRepo}
}

func (e *testEnv) createBooking(t *testing.T, pricing domain.PricingType, price string) *domain.Booking {
	t.Helper()
	booking, err := e.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID:     e.genID.Generate(),
		ProfessionalID: e.genID.Generate(),
		CategoryID:     e.genID.Generate(),
		ScheduledAt:    e.clock.Now().Add(24 * time.Hour),
		Address:        "House 12, Road 5, Dhanmondi",
		PricingType:    pricing,
		QuotedPrice:    decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return booking
}

func professional(b *domain.Booking) domain.Actor {
	return domain.Actor{ID: b.ProfessionalID, Role: domain.RoleProfessional}
}

func customer(b *domain.Booking) domain.Actor {
	return domain.Actor{ID: b.CustomerID, Role: domain.RoleCustomer}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := domain.CreateRequest{
		CustomerID:     env.genID.Generate(),
		ProfessionalID: env.genID.Generate(),
		CategoryID:     env.genID.Generate(),
		ScheduledAt:    env.clock.Now().Add(time.Hour),
		PricingType:    domain.PricingFixed,
		QuotedPrice:    decimal.RequireFromString("1000"),
	}

	cases := []struct {
		name   string
		mutate func(req *domain.CreateRequest)
	}{
		{"missing customer", func(r *domain.CreateRequest) { r.CustomerID = 0 }},
		{"missing professional", func(r *domain.CreateRequest) { r.ProfessionalID = 0 }},
		{"missing category", func(r *domain.CreateRequest) { r.CategoryID = 0 }},
		{"bad pricing type", func(r *domain.CreateRequest) { r.PricingType = "BARTER" }},
		{"zero price", func(r *domain.CreateRequest) { r.QuotedPrice = decimal.Zero }},
		{"negative price", func(r *domain.CreateRequest) { r.QuotedPrice = decimal.RequireFromString("-5") }},
		{"missing schedule", func(r *domain.CreateRequest) { r.ScheduledAt = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			if _, err := env.svc.Create(ctx, req); !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestCreateSnapshotsCommissionAndLogsEvent(t *testing.T) {
	env := newTestEnv(t)
	booking := env.createBooking(t, domain.PricingFixed, "2000")

	if booking.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", booking.Status)
	}
	if !booking.CommissionPercent.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected snapshotted percent 15.00, got %s", booking.CommissionPercent)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM booking_events WHERE booking_id = ? AND event_type = 'CREATED'`, 1, booking.ID)
	assertCount(t, env.db, `SELECT COUNT(1) FROM outbox_tasks WHERE kind = 'notification.dispatch'`, 1)
}

func TestAcceptRequiresAssignedProfessional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	booking := env.createBooking(t, domain.PricingFixed, "1000")

	stranger := domain.Actor{ID: env.genID.Generate(), Role: domain.RoleProfessional}
	if _, err := env.svc.Accept(ctx, booking.ID, stranger); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another professional, got %v", err)
	}
	if _, err := env.svc.Accept(ctx, booking.ID, customer(booking)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for the customer, got %v", err)
	}

	updated, err := env.svc.Accept(ctx, booking.ID, professional(booking))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != domain.StatusAccepted {
		t.Fatalf("expected ACCEPTED, got %s", updated.Status)
	}
	assertCount(t, env.db, `SELECT COUNT(1) FROM booking_events WHERE booking_id = ? AND event_type = 'ACCEPTED'`, 1, booking.ID)
}

func TestCheckInFromPendingIsRejected(t *testing.T) {
	env := newTestEnv(t)
	booking := env.createBooking(t, domain.PricingHourly, "500")

	_, err := env.svc.CheckIn(context.Background(), booking.ID, professional(booking))
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	assertCount(t, env.db, `SELECT COUNT(1) FROM booking_events WHERE booking_id = ?`, 1, booking.ID)
}

func TestHourlyLifecycleComputesFinalAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	booking := env.createBooking(t, domain.PricingHourly, "500")
	pro := professional(booking)

	if _, err := env.svc.Accept(ctx, booking.ID, pro); err != nil {
		t.Fatalf("accept: %v", err)
	}
	env.clock.Advance(time.Hour)
	if _, err := env.svc.CheckIn(ctx, booking.ID, pro); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	env.clock.Advance(150 * time.Minute)
	if _, err := env.svc.CheckOut(ctx, booking.ID, pro, domain.CheckOutRequest{
		ActualHours: decimal.RequireFromString("2.5"),
	}); err != nil {
		t.Fatalf("check-out: %v", err)
	}

	completed, err := env.svc.Complete(ctx, booking.ID, pro, domain.CompleteRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", completed.Status)
	}
	if completed.FinalAmount == nil || !completed.FinalAmount.Equal(decimal.RequireFromString("1250.00")) {
		t.Fatalf("expected final amount 1250.00 (500/hr * 2.5h), got %v", completed.FinalAmount)
	}

	events, err := env.svc.Events(ctx, booking.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	wantOrder := []domain.EventType{
		domain.EventCreated,
		domain.EventAccepted,
		domain.EventCheckedIn,
		domain.EventCheckedOut,
		domain.EventCompleted,
	}
	if len(events) != len(wantOrder) {
		t.Fatalf("expected %d events, got %d", len(wantOrder), len(events))
	}
	for i, want := range wantOrder {
		if events[i].EventType != want {
			t.Fatalf("event %d: got %s, want %s", i, events[i].EventType, want)
		}
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM outbox_tasks WHERE kind = 'settlement.record'`, 1)
}

func TestCheckOutValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	booking := env.createBooking(t, domain.PricingHourly, "500")
	pro := professional(booking)

	if _, err := env.svc.Accept(ctx, booking.ID, pro); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// not checked in yet
	_, err := env.svc.CheckOut(ctx, booking.ID, pro, domain.CheckOutRequest{
		ActualHours: decimal.RequireFromString("2"),
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition before check-in, got %v", err)
	}

	if _, err := env.svc.CheckIn(ctx, booking.ID, pro); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	_, err = env.svc.CheckOut(ctx, booking.ID, pro, domain.CheckOutRequest{ActualHours: decimal.Zero})
	if !errors.Is(err, domain.ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours, got %v", err)
	}
}

func TestRejectQueuesRefundWhenMoneyWasCollected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	booking := env.createBooking(t, domain.PricingFixed, "2000")

	payment := &paymentdomain.Payment{
		ID:        env.genID.Generate(),
		BookingID: booking.ID,
		Amount:    decimal.RequireFromString("2000"),
		Currency:  "BDT",
		Status:    paymentdomain.PaymentSuccess,
		Method:    "bkash",
		CreatedAt: env.clock.Now(),
		UpdatedAt: env.clock.Now(),
	}
	if err := env.paymentRepo.InsertPayment(ctx, env.db, payment); err != nil {
		t.Fatalf("insert payment: %v", err)
	}

	updated, err := env.svc.Reject(ctx, booking.ID, professional(booking), "fully booked that day")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if updated.Status != domain.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", updated.Status)
	}

	var payload string
	err = env.db.Raw(`SELECT payload FROM outbox_tasks WHERE kind = 'refund.create' LIMIT 1`).Scan(&payload).Error
	if err != nil || payload == "" {
		t.Fatalf("expected a refund.create task, err=%v payload=%q", err, payload)
	}
	var task outboxdomain.RefundCreatePayload
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.BookingID != booking.ID || task.PaymentID != payment.ID {
		t.Fatalf("task references wrong rows: %+v", task)
	}
	if task.Amount != "2000" {
		t.Fatalf("expected refund amount 2000, got %s", task.Amount)
	}
}

func TestRejectWithoutPaymentQueuesNoRefund(t *testing.T) {
	env := newTestEnv(t)
	booking := env.createBooking(t, domain.PricingFixed, "800")

	if _, err := env.svc.Reject(context.Background(), booking.ID, professional(booking), ""); err != nil {
		t.Fatalf("reject: %v", err)
	}
	assertCount(t, env.db, `SELECT COUNT(1) FROM outbox_tasks WHERE kind = 'refund.create'`, 0)
}

func TestCancelAuthorizationAndTerminality(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	booking := env.createBooking(t, domain.PricingFixed, "1000")

	stranger := domain.Actor{ID: env.genID.Generate(), Role: domain.RoleCustomer}
	if _, err := env.svc.Cancel(ctx, booking.ID, stranger, "changed my mind"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a stranger, got %v", err)
	}

	cancelled, err := env.svc.Cancel(ctx, booking.ID, customer(booking), "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if cancelled.CancelReason != "changed my mind" {
		t.Fatalf("expected cancel reason stored, got %q", cancelled.CancelReason)
	}

	// a second cancel hits a terminal status
	if _, err := env.svc.Cancel(ctx, booking.ID, customer(booking), "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestListFiltersAndPaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.createBooking(t, domain.PricingFixed, "100")
	for i := 0; i < 3; i++ {
		env.createBooking(t, domain.PricingFixed, "100")
	}

	resp, err := env.svc.List(ctx, domain.ListRequest{CustomerID: first.CustomerID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Bookings) != 1 {
		t.Fatalf("expected 1 booking for customer filter, got %d", len(resp.Bookings))
	}

	paged, err := env.svc.List(ctx, domain.ListRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(paged.Bookings) != 4 || paged.HasMore {
		t.Fatalf("expected 4 bookings without paging, got %d has_more=%v", len(paged.Bookings), paged.HasMore)
	}
}

func TestListCursorWalksEveryPage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env.createBooking(t, domain.PricingFixed, "100")
	}

	seen := map[snowflake.ID]bool{}
	token := ""
	pages := 0
	for {
		resp, err := env.svc.List(ctx, domain.ListRequest{
			Pagination: pagination.Pagination{PageSize: 2, PageToken: token},
		})
		if err != nil {
			t.Fatalf("list page %d: %v", pages, err)
		}
		pages++
		for _, b := range resp.Bookings {
			if seen[b.ID] {
				t.Fatalf("booking %s returned on more than one page", b.ID)
			}
			seen[b.ID] = true
		}
		if !resp.HasMore {
			if resp.NextPageToken != "" {
				t.Fatalf("last page still carries a token")
			}
			break
		}
		if resp.NextPageToken == "" || resp.NextPageToken == token {
			t.Fatalf("page %d did not advance the cursor", pages)
		}
		token = resp.NextPageToken
	}

	if len(seen) != 5 || pages != 3 {
		t.Fatalf("expected 5 bookings over 3 pages, got %d over %d", len(seen), pages)
	}

	if _, err := env.svc.List(ctx, domain.ListRequest{
		Pagination: pagination.Pagination{PageToken: "not a cursor"},
	}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for a bad token, got %v", err)
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	booking := env.createBooking(t, domain.PricingFixed, "1000")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Accept(ctx, booking.ID, professional(booking))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrInvalidTransition):
			losses++
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one invalid-transition loser, got %d winners %d losers", wins, losses)
	}

	got, err := env.svc.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusAccepted {
		t.Fatalf("expected ACCEPTED after the race, got %s", got.Status)
	}
	assertCount(t, env.db,
		`SELECT COUNT(1) FROM booking_events WHERE booking_id = ? AND event_type = ?`,
		1, booking.ID, domain.EventAccepted)
}

func TestCheckOutTwiceIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	booking := env.createBooking(t, domain.PricingHourly, "500")
	if _, err := env.svc.Accept(ctx, booking.ID, professional(booking)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.svc.CheckIn(ctx, booking.ID, professional(booking)); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := env.svc.CheckOut(ctx, booking.ID, professional(booking), domain.CheckOutRequest{
		ActualHours: decimal.RequireFromString("2"),
	}); err != nil {
		t.Fatalf("check out: %v", err)
	}

	_, err := env.svc.CheckOut(ctx, booking.ID, professional(booking), domain.CheckOutRequest{
		ActualHours: decimal.RequireFromString("3"),
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second check-out, got %v", err)
	}

	assertCount(t, env.db,
		`SELECT COUNT(1) FROM booking_events WHERE booking_id = ? AND event_type = ?`,
		1, booking.ID, domain.EventCheckedOut)

	got, err := env.svc.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActualHours == nil || !got.ActualHours.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("expected recorded hours to stay at 2, got %v", got.ActualHours)
	}
}
