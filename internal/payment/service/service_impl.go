package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"github.com/kormohq/kormo/internal/clock"
	commissiondomain "github.com/kormohq/kormo/internal/commission/domain"
	"github.com/kormohq/kormo/internal/config"
	obsmetrics "github.com/kormohq/kormo/internal/observability/metrics"
	"github.com/kormohq/kormo/internal/payment/adapters"
	"github.com/kormohq/kormo/internal/payment/domain"
	settlementdomain "github.com/kormohq/kormo/internal/settlement/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config        config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Registry      *adapters.Registry
	Repo          domain.Repository
	BookingRepo   bookingdomain.Repository
	CommissionSvc commissiondomain.Service
	SettlementSvc settlementdomain.Service
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	registry      *adapters.Registry
	repo          domain.Repository
	bookingRepo   bookingdomain.Repository
	commissionSvc commissiondomain.Service
	settlementSvc settlementdomain.Service
	metrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:           p.Config,
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		registry:      p.Registry,
		repo:          p.Repo,
		bookingRepo:   p.BookingRepo,
		commissionSvc: p.CommissionSvc,
		settlementSvc: p.SettlementSvc,
		metrics:       p.Metrics,
	}
}

func (s *Service) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (*domain.Payment, error) {
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if req.BookingID == 0 || method == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidPayment
	}
	if !s.registry.ProviderExists(method) {
		return nil, domain.ErrProviderNotFound
	}

	booking, err := s.bookingRepo.Find(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}

	open, err := s.repo.FindOpenPayment(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		if open.Status == domain.PaymentSuccess {
			return nil, domain.ErrAlreadyPaid
		}
		// client retry after a timeout: hand back the open intent
		return open, nil
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	// snapshot the split now so settlement never re-resolves a rate that may
	// have changed between intent and capture
	breakdown := s.commissionSvc.Split(req.Amount, booking.CommissionPercent)

	gateway, err := s.registry.Gateway(method)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	started := time.Now()
	result, err := gateway.CreateIntent(gctx, domain.GatewayIntentRequest{
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		Amount:     req.Amount,
		Currency:   currency,
		Metadata: map[string]any{
			"booking_id": booking.ID.String(),
		},
	})
	s.metrics.ObserveGatewayLatency(ctx, method, "create_intent", time.Since(started))
	if err != nil {
		s.metrics.RecordPaymentEvent(ctx, method, "intent_failed")
		s.log.Warn("gateway intent failed",
			zap.String("provider", method),
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:         s.genID.Generate(),
		BookingID:  booking.ID,
		Amount:     req.Amount,
		Currency:   currency,
		Status:     domain.PaymentPending,
		Method:     method,
		GatewayRef: result.GatewayRef,
		Metadata: datatypes.JSONMap{
			domain.MetaCommissionPercent: booking.CommissionPercent.String(),
			domain.MetaCommissionAmount:  breakdown.CommissionAmount.String(),
			domain.MetaProfessionalNet:   breakdown.ProfessionalAmount.String(),
			domain.MetaGatewayIntent:     result.Status,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertPayment(ctx, s.db, payment); err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentEvent(ctx, method, "intent_created")
	return payment, nil
}

func (s *Service) Capture(ctx context.Context, paymentID snowflake.ID) (*domain.Payment, error) {
	payment, err := s.repo.FindPayment(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	switch payment.Status {
	case domain.PaymentPending:
	case domain.PaymentSuccess:
		return nil, domain.ErrAlreadyPaid
	default:
		return nil, domain.ErrNotCapturable
	}

	gateway, err := s.registry.Gateway(payment.Method)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	started := time.Now()
	result, err := gateway.Capture(gctx, domain.GatewayCaptureRequest{
		GatewayRef: payment.GatewayRef,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
	})
	s.metrics.ObserveGatewayLatency(ctx, payment.Method, "capture", time.Since(started))
	if err != nil {
		s.failPayment(ctx, payment, err)
		return nil, err
	}

	now := s.clock.Now()
	metadata := mergeMetadata(payment.Metadata, result.Metadata)
	booking, err := s.bookingRepo.Find(ctx, s.db, payment.BookingID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.UpdatePaymentStatus(ctx, tx, payment.ID, domain.PaymentPending, domain.PaymentSuccess, result.GatewayRef, metadata, now)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrNotCapturable
		}
		if booking != nil && booking.Status == bookingdomain.StatusPending {
			return s.advanceBookingPaid(ctx, tx, booking, payment, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payment.Status = domain.PaymentSuccess
	payment.GatewayRef = result.GatewayRef
	payment.UpdatedAt = now

	s.recordSettlementFromSnapshot(ctx, booking, payment)
	s.metrics.RecordPaymentEvent(ctx, payment.Method, "captured")
	s.log.Info("payment captured",
		zap.String("payment_id", payment.ID.String()),
		zap.String("booking_id", payment.BookingID.String()),
		zap.String("provider", payment.Method),
	)
	return payment, nil
}

func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (*domain.Refund, error) {
	payment, err := s.repo.FindPayment(ctx, s.db, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentSuccess {
		return nil, domain.ErrNotRefundable
	}

	booking, err := s.bookingRepo.Find(ctx, s.db, payment.BookingID)
	if err != nil {
		return nil, err
	}

	refund, err := s.CreateRefundForRejection(ctx, payment.BookingID, payment.ID, payment.Amount, req.Reason)
	if err != nil {
		return nil, err
	}
	if refund.Status == domain.RefundCompleted {
		return refund, nil
	}
	if refund.Status == domain.RefundFailed {
		return nil, fmt.Errorf("%w: refund %s already failed", domain.ErrNotRefundable, refund.ID)
	}

	now := s.clock.Now()
	if refund.Status == domain.RefundPending {
		if _, err := s.repo.UpdateRefundStatus(ctx, s.db, refund.ID, domain.RefundPending, domain.RefundProcessing, "", now); err != nil {
			return nil, err
		}
		refund.Status = domain.RefundProcessing
	}

	gateway, err := s.registry.Gateway(payment.Method)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	started := time.Now()
	result, err := gateway.Refund(gctx, domain.GatewayRefundRequest{
		GatewayRef: payment.GatewayRef,
		Amount:     refund.Amount,
		Currency:   payment.Currency,
		Reason:     refund.Reason,
	})
	s.metrics.ObserveGatewayLatency(ctx, payment.Method, "refund", time.Since(started))
	if err != nil {
		ts := s.clock.Now()
		if _, uerr := s.repo.UpdateRefundStatus(ctx, s.db, refund.ID, domain.RefundProcessing, domain.RefundFailed, "", ts); uerr != nil {
			s.log.Error("could not mark refund failed",
				zap.String("refund_id", refund.ID.String()),
				zap.Error(uerr),
			)
		}
		s.metrics.RecordPaymentEvent(ctx, payment.Method, "refund_failed")
		return nil, err
	}

	ts := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.UpdateRefundStatus(ctx, tx, refund.ID, domain.RefundProcessing, domain.RefundCompleted, result.GatewayRef, ts)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrNotRefundable
		}
		if _, err := s.repo.UpdatePaymentStatus(ctx, tx, payment.ID, domain.PaymentSuccess, domain.PaymentRefunded, "", nil, ts); err != nil {
			return err
		}
		if booking != nil && !bookingdomain.IsTerminal(booking.Status) {
			return s.cancelBookingRefunded(ctx, tx, booking, payment, refund, ts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// financial history is kept: the settlement row is flagged, never removed
	if err := s.settlementSvc.MarkRefunded(ctx, payment.BookingID); err != nil && err != settlementdomain.ErrSettlementNotFound {
		s.log.Warn("could not flag settlement refunded",
			zap.String("booking_id", payment.BookingID.String()),
			zap.Error(err),
		)
	}

	refund.Status = domain.RefundCompleted
	refund.GatewayRef = result.GatewayRef
	refund.UpdatedAt = ts

	s.metrics.RecordPaymentEvent(ctx, payment.Method, "refunded")
	s.log.Info("payment refunded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("refund_id", refund.ID.String()),
		zap.String("provider", payment.Method),
	)
	return refund, nil
}

func (s *Service) GetPayment(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	payment, err := s.repo.FindPayment(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// gatewayWebhook is the normalized shape both mobile-money providers post.
type gatewayWebhook struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	PaymentRef string `json:"payment_ref"`
	Status     string `json:"status"`
}

func (s *Service) ProcessWebhook(ctx context.Context, provider string, payload []byte, signature string) (*domain.WebhookResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	gateway, err := s.registry.Gateway(provider)
	if err != nil {
		return &domain.WebhookResult{Reason: "unknown provider"}, nil
	}
	if !gateway.VerifyWebhook(payload, signature) {
		s.metrics.RecordPaymentEvent(ctx, provider, "webhook_rejected")
		return &domain.WebhookResult{Reason: "invalid signature"}, nil
	}

	var event gatewayWebhook
	if err := json.Unmarshal(payload, &event); err != nil || strings.TrimSpace(event.EventID) == "" {
		return &domain.WebhookResult{Reason: "malformed payload"}, nil
	}

	now := s.clock.Now()
	record := &domain.WebhookEvent{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: strings.TrimSpace(event.EventID),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertWebhookEvent(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &domain.WebhookResult{Duplicate: true, Reason: "event already processed"}, nil
	}

	payment, err := s.repo.FindPaymentByGatewayRef(ctx, s.db, provider, strings.TrimSpace(event.PaymentRef))
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &domain.WebhookResult{Reason: "no matching payment"}, nil
	}

	if err := s.applyWebhook(ctx, payment, event, payload); err != nil {
		return nil, err
	}

	if err := s.repo.MarkWebhookProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		s.log.Warn("could not mark webhook processed",
			zap.String("provider", provider),
			zap.String("event_id", record.ProviderEventID),
			zap.Error(err),
		)
	}

	s.metrics.RecordPaymentEvent(ctx, provider, "webhook_"+normalizeStatus(event.Status))
	return &domain.WebhookResult{Accepted: true}, nil
}

func (s *Service) applyWebhook(ctx context.Context, payment *domain.Payment, event gatewayWebhook, payload []byte) error {
	now := s.clock.Now()
	metadata := mergeMetadata(payment.Metadata, map[string]any{
		domain.MetaWebhookPayload: string(payload),
	})

	switch normalizeStatus(event.Status) {
	case "success":
		booking, err := s.bookingRepo.Find(ctx, s.db, payment.BookingID)
		if err != nil {
			return err
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			applied, err := s.repo.UpdatePaymentStatus(ctx, tx, payment.ID, domain.PaymentPending, domain.PaymentSuccess, "", metadata, now)
			if err != nil {
				return err
			}
			if !applied {
				return nil
			}
			if booking != nil && booking.Status == bookingdomain.StatusPending {
				return s.advanceBookingPaid(ctx, tx, booking, payment, now)
			}
			return nil
		})
		if err != nil {
			return err
		}
		payment.Status = domain.PaymentSuccess
		s.recordSettlementFromSnapshot(ctx, booking, payment)
		return nil

	case "failed":
		_, err := s.repo.UpdatePaymentStatus(ctx, s.db, payment.ID, domain.PaymentPending, domain.PaymentFailed, "", metadata, now)
		return err

	case "refunded":
		booking, err := s.bookingRepo.Find(ctx, s.db, payment.BookingID)
		if err != nil {
			return err
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			applied, err := s.repo.UpdatePaymentStatus(ctx, tx, payment.ID, domain.PaymentSuccess, domain.PaymentRefunded, "", metadata, now)
			if err != nil {
				return err
			}
			if !applied {
				return nil
			}
			if booking != nil && !bookingdomain.IsTerminal(booking.Status) {
				return s.cancelBookingRefunded(ctx, tx, booking, payment, nil, now)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := s.settlementSvc.MarkRefunded(ctx, payment.BookingID); err != nil && err != settlementdomain.ErrSettlementNotFound {
			s.log.Warn("could not flag settlement refunded",
				zap.String("booking_id", payment.BookingID.String()),
				zap.Error(err),
			)
		}
		return nil

	default:
		return domain.ErrWebhookUnsupported
	}
}

func (s *Service) CreateRefundForRejection(ctx context.Context, bookingID, paymentID snowflake.ID, amount decimal.Decimal, reason string) (*domain.Refund, error) {
	if bookingID == 0 || paymentID == 0 || amount.IsNegative() {
		return nil, domain.ErrInvalidPayment
	}

	metadata := datatypes.JSONMap{}
	if booking, err := s.bookingRepo.Find(ctx, s.db, bookingID); err == nil && booking != nil {
		metadata["customer_id"] = booking.CustomerID.String()
		metadata["professional_id"] = booking.ProfessionalID.String()
	}

	now := s.clock.Now()
	refund := &domain.Refund{
		ID:        s.genID.Generate(),
		BookingID: bookingID,
		PaymentID: paymentID,
		Amount:    amount,
		Reason:    strings.TrimSpace(reason),
		Status:    domain.RefundPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inserted, err := s.repo.InsertRefund(ctx, s.db, refund)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := s.repo.FindRefundByPair(ctx, s.db, bookingID, paymentID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, domain.ErrRefundNotFound
		}
		return existing, nil
	}

	s.metrics.RecordPaymentEvent(ctx, "platform", "refund_requested")
	return refund, nil
}

// advanceBookingPaid moves a PENDING booking to ACCEPTED on payment capture.
// The ACCEPTED event keeps the history prefix valid for later check-in; the
// PAYMENT_COMPLETED event records what actually drove the transition.
func (s *Service) advanceBookingPaid(ctx context.Context, tx *gorm.DB, booking *bookingdomain.Booking, payment *domain.Payment, now time.Time) error {
	applied, err := s.bookingRepo.UpdateStatus(ctx, tx, booking.ID, bookingdomain.StatusPending, bookingdomain.StatusAccepted, bookingdomain.StatusUpdate{}, now)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if err := s.bookingRepo.InsertEvent(ctx, tx, &bookingdomain.BookingEvent{
		ID:        s.genID.Generate(),
		BookingID: booking.ID,
		EventType: bookingdomain.EventAccepted,
		Metadata: datatypes.JSONMap{
			"source":     "payment_capture",
			"payment_id": payment.ID.String(),
		},
		CreatedAt: now,
	}); err != nil {
		return err
	}
	return s.bookingRepo.InsertEvent(ctx, tx, &bookingdomain.BookingEvent{
		ID:        s.genID.Generate(),
		BookingID: booking.ID,
		EventType: bookingdomain.EventPaymentCompleted,
		Metadata: datatypes.JSONMap{
			"payment_id": payment.ID.String(),
			"amount":     payment.Amount.String(),
			"provider":   payment.Method,
		},
		CreatedAt: now,
	})
}

func (s *Service) cancelBookingRefunded(ctx context.Context, tx *gorm.DB, booking *bookingdomain.Booking, payment *domain.Payment, refund *domain.Refund, now time.Time) error {
	reason := "payment refunded"
	if refund != nil && refund.Reason != "" {
		reason = refund.Reason
	}
	applied, err := s.bookingRepo.UpdateStatus(ctx, tx, booking.ID, booking.Status, bookingdomain.StatusCancelled, bookingdomain.StatusUpdate{CancelReason: &reason}, now)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if err := s.bookingRepo.InsertEvent(ctx, tx, &bookingdomain.BookingEvent{
		ID:        s.genID.Generate(),
		BookingID: booking.ID,
		EventType: bookingdomain.EventCancelled,
		Metadata: datatypes.JSONMap{
			"source": "refund",
			"reason": reason,
		},
		CreatedAt: now,
	}); err != nil {
		return err
	}
	return s.bookingRepo.InsertEvent(ctx, tx, &bookingdomain.BookingEvent{
		ID:        s.genID.Generate(),
		BookingID: booking.ID,
		EventType: bookingdomain.EventRefunded,
		Metadata: datatypes.JSONMap{
			"payment_id": payment.ID.String(),
			"amount":     payment.Amount.String(),
		},
		CreatedAt: now,
	})
}

func (s *Service) failPayment(ctx context.Context, payment *domain.Payment, cause error) {
	ts := s.clock.Now()
	metadata := mergeMetadata(payment.Metadata, map[string]any{
		domain.MetaFailureReason: cause.Error(),
	})
	if _, err := s.repo.UpdatePaymentStatus(ctx, s.db, payment.ID, domain.PaymentPending, domain.PaymentFailed, "", metadata, ts); err != nil {
		s.log.Error("could not mark payment failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
	}
	s.metrics.RecordPaymentEvent(ctx, payment.Method, "capture_failed")
	s.log.Warn("gateway capture failed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("provider", payment.Method),
		zap.Error(cause),
	)
}

// recordSettlementFromSnapshot books the settlement using the split stored on
// the payment at intent time. Best effort: a failure here never unwinds the
// capture, the backfill job reconciles later.
func (s *Service) recordSettlementFromSnapshot(ctx context.Context, booking *bookingdomain.Booking, payment *domain.Payment) {
	if booking == nil {
		return
	}
	commissionAmount, professionalAmount, ok := snapshotSplit(payment.Metadata)
	if !ok {
		breakdown := s.commissionSvc.Split(payment.Amount, booking.CommissionPercent)
		commissionAmount = breakdown.CommissionAmount
		professionalAmount = breakdown.ProfessionalAmount
	}
	if err := s.settlementSvc.RecordSettlement(ctx, booking, payment, commissionAmount, professionalAmount); err != nil {
		s.log.Warn("settlement recording failed after capture",
			zap.String("booking_id", booking.ID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
	}
}

func snapshotSplit(metadata datatypes.JSONMap) (decimal.Decimal, decimal.Decimal, bool) {
	commissionRaw, ok := metadata[domain.MetaCommissionAmount].(string)
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	professionalRaw, ok := metadata[domain.MetaProfessionalNet].(string)
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	commissionAmount, err := decimal.NewFromString(commissionRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	professionalAmount, err := decimal.NewFromString(professionalRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	return commissionAmount, professionalAmount, true
}

func mergeMetadata(base datatypes.JSONMap, extra map[string]any) map[string]any {
	merged := map[string]any{}
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		if key == "" || value == nil {
			continue
		}
		merged[key] = fmt.Sprintf("%v", value)
	}
	return merged
}

func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "completed", "succeeded":
		return "success"
	case "failed", "failure", "declined":
		return "failed"
	case "refunded", "refund":
		return "refunded"
	default:
		return strings.ToLower(strings.TrimSpace(status))
	}
}
