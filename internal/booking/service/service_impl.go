package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/booking/domain"
	"github.com/kormohq/kormo/internal/clock"
	commissiondomain "github.com/kormohq/kormo/internal/commission/domain"
	obsmetrics "github.com/kormohq/kormo/internal/observability/metrics"
	outboxdomain "github.com/kormohq/kormo/internal/outbox/domain"
	paymentdomain "github.com/kormohq/kormo/internal/payment/domain"
	"github.com/kormohq/kormo/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	PaymentRepo   paymentdomain.Repository
	CommissionSvc commissiondomain.Service
	Outbox        outboxdomain.Enqueuer
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	paymentRepo   paymentdomain.Repository
	commissionSvc commissiondomain.Service
	outbox        outboxdomain.Enqueuer
	metrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("booking.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		paymentRepo:   p.PaymentRepo,
		commissionSvc: p.CommissionSvc,
		outbox:        p.Outbox,
		metrics:       p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Booking, error) {
	if req.CustomerID == 0 || req.ProfessionalID == 0 || req.CategoryID == 0 {
		return nil, domain.ErrInvalidRequest
	}
	if req.PricingType != domain.PricingHourly && req.PricingType != domain.PricingFixed {
		return nil, domain.ErrInvalidRequest
	}
	if !req.QuotedPrice.IsPositive() {
		return nil, domain.ErrInvalidRequest
	}
	if req.ScheduledAt.IsZero() {
		return nil, domain.ErrInvalidRequest
	}

	percent, err := s.commissionSvc.Resolve(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	booking := &domain.Booking{
		ID:                s.genID.Generate(),
		CustomerID:        req.CustomerID,
		ProfessionalID:    req.ProfessionalID,
		CategoryID:        req.CategoryID,
		Status:            domain.StatusPending,
		ScheduledAt:       req.ScheduledAt.UTC(),
		Address:           strings.TrimSpace(req.Address),
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		Details:           strings.TrimSpace(req.Details),
		PricingType:       req.PricingType,
		QuotedPrice:       req.QuotedPrice,
		CommissionPercent: percent,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, booking); err != nil {
			return err
		}
		if err := s.repo.InsertEvent(ctx, tx, &domain.BookingEvent{
			ID:        s.genID.Generate(),
			BookingID: booking.ID,
			EventType: domain.EventCreated,
			Metadata: datatypes.JSONMap{
				"pricing_type":       string(booking.PricingType),
				"quoted_price":       booking.QuotedPrice.String(),
				"commission_percent": booking.CommissionPercent.String(),
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return s.enqueueNotification(ctx, tx, booking, "booking.requested", "")
	})
	if err != nil {
		return nil, err
	}

	return booking, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Booking, error) {
	booking, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, domain.ErrNotFound
	}
	return booking, nil
}

func (s *Service) Events(ctx context.Context, id snowflake.ID) ([]domain.BookingEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, fmt.Errorf("%w: bad page token", domain.ErrInvalidRequest)
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, fmt.Errorf("%w: bad page token", domain.ErrInvalidRequest)
		}
		req.BeforeID = id
	}

	items, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return domain.ListResponse{}, err
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}
	resp := domain.ListResponse{Bookings: items}
	if len(items) > limit {
		resp.Bookings = items[:limit]
		resp.HasMore = true
		last := resp.Bookings[len(resp.Bookings)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: last.ID.String()})
		if err == nil {
			resp.NextPageToken = token
		}
	}
	return resp, nil
}

func (s *Service) Accept(ctx context.Context, id snowflake.ID, actor domain.Actor) (*domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeProfessional(booking, actor); err != nil {
		return nil, err
	}

	return s.transition(ctx, booking, domain.StatusAccepted, domain.StatusUpdate{},
		actorMetadata(actor, nil),
		func(ctx context.Context, tx *gorm.DB) error {
			return s.enqueueNotification(ctx, tx, booking, "booking.accepted", "")
		})
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, actor domain.Actor, reason string) (*domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeProfessional(booking, actor); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)

	// Look up a collected payment before the transition commits; the refund
	// task is queued in the same transaction as the status change, and the
	// refund itself happens after commit so a refund failure can never undo
	// the rejection.
	paid, err := s.paymentRepo.FindSuccessfulPayment(ctx, s.db, booking.ID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, booking, domain.StatusRejected, domain.StatusUpdate{},
		actorMetadata(actor, map[string]any{"reason": reason}),
		func(ctx context.Context, tx *gorm.DB) error {
			if paid != nil {
				refundReason := fmt.Sprintf("booking %s rejected by professional", booking.ID)
				if reason != "" {
					refundReason = fmt.Sprintf("%s: %s", refundReason, reason)
				}
				if err := s.outbox.Enqueue(ctx, tx, outboxdomain.KindRefundCreate, outboxdomain.RefundCreatePayload{
					BookingID: booking.ID,
					PaymentID: paid.ID,
					Amount:    paid.Amount.String(),
					Reason:    refundReason,
				}); err != nil {
					return err
				}
			}
			return s.enqueueNotification(ctx, tx, booking, "booking.rejected", reason)
		})
}

func (s *Service) CheckIn(ctx context.Context, id snowflake.ID, actor domain.Actor) (*domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeProfessional(booking, actor); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return s.transition(ctx, booking, domain.StatusInProgress,
		domain.StatusUpdate{CheckedInAt: &now},
		actorMetadata(actor, nil),
		nil)
}

func (s *Service) CheckOut(ctx context.Context, id snowflake.ID, actor domain.Actor, req domain.CheckOutRequest) (*domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeProfessional(booking, actor); err != nil {
		return nil, err
	}
	if !req.ActualHours.IsPositive() {
		return nil, domain.ErrInvalidHours
	}
	if booking.CheckedOutAt != nil {
		return nil, fmt.Errorf("%w: booking %s is already checked out", domain.ErrInvalidTransition, booking.ID)
	}

	// Checkout records work done; no money moves until Complete.
	now := s.clock.Now()
	hours := req.ActualHours
	booking, err = s.appendWorkEvent(ctx, booking, domain.EventCheckedOut,
		domain.StatusUpdate{CheckedOutAt: &now, ActualHours: &hours},
		actorMetadata(actor, map[string]any{"actual_hours": hours.String()}))
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *Service) Complete(ctx context.Context, id snowflake.ID, actor domain.Actor, req domain.CompleteRequest) (*domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeProfessional(booking, actor); err != nil {
		return nil, err
	}

	finalAmount, err := s.finalAmountFor(booking, req)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, booking, domain.StatusCompleted,
		domain.StatusUpdate{FinalAmount: &finalAmount},
		actorMetadata(actor, map[string]any{"final_amount": finalAmount.String()}),
		func(ctx context.Context, tx *gorm.DB) error {
			if err := s.outbox.Enqueue(ctx, tx, outboxdomain.KindSettlementRecord, outboxdomain.SettlementRecordPayload{
				BookingID: booking.ID,
			}); err != nil {
				return err
			}
			return s.enqueueNotification(ctx, tx, booking, "booking.completed", "")
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID, actor domain.Actor, reason string) (*domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeCancel(booking, actor); err != nil {
		return nil, err
	}
	if !domain.CanBeCancelled(booking.Status) {
		return nil, fmt.Errorf("%w: completed bookings cannot be cancelled", domain.ErrInvalidTransition)
	}

	reason = strings.TrimSpace(reason)
	return s.transition(ctx, booking, domain.StatusCancelled,
		domain.StatusUpdate{CancelReason: &reason},
		actorMetadata(actor, map[string]any{"reason": reason}),
		func(ctx context.Context, tx *gorm.DB) error {
			return s.enqueueNotification(ctx, tx, booking, "booking.cancelled", reason)
		})
}

// transition applies one state-machine edge end to end: history validation,
// conditional status write, event append, and side-effect enqueue, all in one
// transaction. A concurrent writer that loses the conditional update gets an
// invalid-transition error, never a silent overwrite.
func (s *Service) transition(
	ctx context.Context,
	booking *domain.Booking,
	target domain.Status,
	update domain.StatusUpdate,
	metadata datatypes.JSONMap,
	enqueue func(ctx context.Context, tx *gorm.DB) error,
) (*domain.Booking, error) {

	events, err := s.repo.ListEvents(ctx, s.db, booking.ID)
	if err != nil {
		return nil, err
	}

	if ok, reason := domain.CanTransition(booking.Status, target, events); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTransition, reason)
	}
	eventType, err := domain.RequiredEventFor(booking.Status, target)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.UpdateStatus(ctx, tx, booking.ID, booking.Status, target, update, now)
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: booking %s changed concurrently", domain.ErrInvalidTransition, booking.ID)
		}
		if err := s.repo.InsertEvent(ctx, tx, &domain.BookingEvent{
			ID:        s.genID.Generate(),
			BookingID: booking.ID,
			EventType: eventType,
			Metadata:  metadata,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if enqueue != nil {
			return enqueue(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBookingTransition(ctx, string(booking.Status), string(target))
	s.log.Info("booking transition applied",
		zap.String("booking_id", booking.ID.String()),
		zap.String("from", string(booking.Status)),
		zap.String("to", string(target)),
	)

	updated := *booking
	updated.Status = target
	updated.UpdatedAt = now
	applyUpdate(&updated, update)
	return &updated, nil
}

// appendWorkEvent records a milestone that does not change status (the
// CHECKED_OUT fact between IN_PROGRESS and COMPLETED).
func (s *Service) appendWorkEvent(
	ctx context.Context,
	booking *domain.Booking,
	eventType domain.EventType,
	update domain.StatusUpdate,
	metadata datatypes.JSONMap,
) (*domain.Booking, error) {

	if booking.Status != domain.StatusInProgress {
		return nil, fmt.Errorf("%w: check-out requires an in-progress booking, got %s",
			domain.ErrInvalidTransition, booking.Status)
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.UpdateStatus(ctx, tx, booking.ID, booking.Status, booking.Status, update, now)
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: booking %s changed concurrently", domain.ErrInvalidTransition, booking.ID)
		}
		return s.repo.InsertEvent(ctx, tx, &domain.BookingEvent{
			ID:        s.genID.Generate(),
			BookingID: booking.ID,
			EventType: eventType,
			Metadata:  metadata,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	updated := *booking
	updated.UpdatedAt = now
	applyUpdate(&updated, update)
	return &updated, nil
}

func (s *Service) finalAmountFor(booking *domain.Booking, req domain.CompleteRequest) (decimal.Decimal, error) {
	if req.FinalAmount != nil {
		if req.FinalAmount.IsNegative() {
			return decimal.Zero, domain.ErrInvalidAmount
		}
		return *req.FinalAmount, nil
	}

	switch booking.PricingType {
	case domain.PricingHourly:
		if booking.ActualHours == nil || !booking.ActualHours.IsPositive() {
			return decimal.Zero, domain.ErrInvalidHours
		}
		return booking.QuotedPrice.Mul(*booking.ActualHours).Round(2), nil
	case domain.PricingFixed:
		return booking.QuotedPrice, nil
	default:
		return decimal.Zero, domain.ErrInvalidAmount
	}
}

func (s *Service) enqueueNotification(ctx context.Context, tx *gorm.DB, booking *domain.Booking, kind, reason string) error {
	return s.outbox.Enqueue(ctx, tx, outboxdomain.KindNotificationDispatch, outboxdomain.NotificationDispatchPayload{
		Kind:           kind,
		BookingID:      booking.ID,
		CustomerID:     booking.CustomerID,
		ProfessionalID: booking.ProfessionalID,
		Status:         string(booking.Status),
		Reason:         reason,
	})
}

func authorizeProfessional(booking *domain.Booking, actor domain.Actor) error {
	if actor.Role == domain.RoleProfessional && actor.ID == booking.ProfessionalID {
		return nil
	}
	return domain.ErrForbidden
}

func authorizeCancel(booking *domain.Booking, actor domain.Actor) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleCustomer:
		if actor.ID == booking.CustomerID {
			return nil
		}
	case domain.RoleProfessional:
		if actor.ID == booking.ProfessionalID {
			return nil
		}
	}
	return domain.ErrForbidden
}

func applyUpdate(booking *domain.Booking, update domain.StatusUpdate) {
	if update.CheckedInAt != nil {
		booking.CheckedInAt = update.CheckedInAt
	}
	if update.CheckedOutAt != nil {
		booking.CheckedOutAt = update.CheckedOutAt
	}
	if update.ActualHours != nil {
		booking.ActualHours = update.ActualHours
	}
	if update.FinalAmount != nil {
		booking.FinalAmount = update.FinalAmount
	}
	if update.CancelReason != nil {
		booking.CancelReason = *update.CancelReason
	}
}

func actorMetadata(actor domain.Actor, extra map[string]any) datatypes.JSONMap {
	metadata := datatypes.JSONMap{
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
	}
	for key, value := range extra {
		if key == "" || value == nil {
			continue
		}
		if str, ok := value.(string); ok && str == "" {
			continue
		}
		metadata[key] = value
	}
	return metadata
}
