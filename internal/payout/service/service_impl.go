package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"github.com/kormohq/kormo/internal/clock"
	commissiondomain "github.com/kormohq/kormo/internal/commission/domain"
	"github.com/kormohq/kormo/internal/config"
	obsmetrics "github.com/kormohq/kormo/internal/observability/metrics"
	outboxdomain "github.com/kormohq/kormo/internal/outbox/domain"
	"github.com/kormohq/kormo/internal/payout/domain"
	"github.com/kormohq/kormo/internal/providers/pdf"
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
	Repo          domain.Repository
	BookingRepo   bookingdomain.Repository
	CommissionSvc commissiondomain.Service
	Outbox        outboxdomain.Enqueuer
	PDF           pdf.Provider
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	bookingRepo   bookingdomain.Repository
	commissionSvc commissiondomain.Service
	outbox        outboxdomain.Enqueuer
	pdf           pdf.Provider
	metrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:           p.Config,
		db:            p.DB,
		log:           p.Log.Named("payout.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		bookingRepo:   p.BookingRepo,
		commissionSvc: p.CommissionSvc,
		outbox:        p.Outbox,
		pdf:           p.PDF,
		metrics:       p.Metrics,
	}
}

type batch struct {
	professionalID snowflake.ID
	amount         decimal.Decimal
	bookingIDs     []any
}

func (s *Service) GenerateForPeriod(ctx context.Context, start, end time.Time) ([]domain.Payout, error) {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, domain.ErrInvalidPeriod
	}

	bookings, err := s.repo.ListCompletedInPeriod(ctx, s.db, start, end)
	if err != nil {
		return nil, err
	}

	// rows arrive grouped by professional_id, so one running batch suffices
	var batches []batch
	for _, b := range bookings {
		amount := b.QuotedPrice
		if b.FinalAmount != nil {
			amount = *b.FinalAmount
		}
		net := s.commissionSvc.Split(amount, b.CommissionPercent).ProfessionalAmount

		if n := len(batches); n > 0 && batches[n-1].professionalID == b.ProfessionalID {
			batches[n-1].amount = batches[n-1].amount.Add(net)
			batches[n-1].bookingIDs = append(batches[n-1].bookingIDs, b.ID.String())
			continue
		}
		batches = append(batches, batch{
			professionalID: b.ProfessionalID,
			amount:         net,
			bookingIDs:     []any{b.ID.String()},
		})
	}

	now := s.clock.Now()
	created := make([]domain.Payout, 0, len(batches))
	for _, group := range batches {
		payout := domain.Payout{
			ID:             s.genID.Generate(),
			ProfessionalID: group.professionalID,
			PeriodStart:    start,
			PeriodEnd:      end,
			Amount:         group.amount,
			Status:         domain.StatusPending,
			Metadata: datatypes.JSONMap{
				domain.MetaBookingIDs:   group.bookingIDs,
				domain.MetaBookingCount: len(group.bookingIDs),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			overlaps, err := s.repo.HasOverlap(ctx, tx, group.professionalID, start, end)
			if err != nil {
				return err
			}
			if overlaps {
				s.log.Info("payout skipped, period overlaps",
					zap.String("professional_id", group.professionalID.String()),
					zap.Time("period_start", start),
					zap.Time("period_end", end),
				)
				return nil
			}
			if err := s.repo.Insert(ctx, tx, &payout); err != nil {
				return err
			}
			created = append(created, payout)
			return s.outbox.Enqueue(ctx, tx, outboxdomain.KindNotificationDispatch, outboxdomain.NotificationDispatchPayload{
				Kind:           "payout.generated",
				ProfessionalID: group.professionalID,
				Status:         string(domain.StatusPending),
				Amount:         group.amount.StringFixed(2),
			})
		})
		if err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.RecordPayoutBatch(ctx, int64(len(created)))
	}
	s.log.Info("payout batch generated",
		zap.Time("period_start", start),
		zap.Time("period_end", end),
		zap.Int("bookings", len(bookings)),
		zap.Int("payouts", len(created)),
	)
	return created, nil
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	payout, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}
	if payout.Status != domain.StatusPending {
		return nil, domain.ErrPayoutNotPending
	}

	now := s.clock.Now()
	applied, err := s.repo.UpdateStatus(ctx, s.db, id, domain.StatusPending, domain.StatusPaid, &now, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrPayoutNotPending
	}

	payout.Status = domain.StatusPaid
	payout.PaidAt = &now
	payout.UpdatedAt = now
	return payout, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	payout, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}
	return payout, nil
}

func (s *Service) ListForProfessional(ctx context.Context, professionalID snowflake.ID) ([]domain.Payout, error) {
	return s.repo.ListForProfessional(ctx, s.db, professionalID)
}

func (s *Service) Statement(ctx context.Context, id snowflake.ID) (io.Reader, error) {
	payout, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data := pdf.StatementData{
		PlatformName:     s.cfg.AppName,
		StatementNumber:  fmt.Sprintf("PO-%s", payout.ID),
		ProfessionalName: payout.ProfessionalID.String(),
		PeriodStart:      payout.PeriodStart.Format("2006-01-02"),
		PeriodEnd:        payout.PeriodEnd.Format("2006-01-02"),
		Currency:         s.cfg.DefaultCurrency,
	}

	gross := decimal.Zero
	commission := decimal.Zero
	net := decimal.Zero
	for _, bookingID := range metadataBookingIDs(payout.Metadata) {
		booking, err := s.bookingRepo.Find(ctx, s.db, bookingID)
		if err != nil {
			return nil, err
		}
		if booking == nil {
			continue
		}
		amount := booking.QuotedPrice
		if booking.FinalAmount != nil {
			amount = *booking.FinalAmount
		}
		split := s.commissionSvc.Split(amount, booking.CommissionPercent)

		gross = gross.Add(amount)
		commission = commission.Add(split.CommissionAmount)
		net = net.Add(split.ProfessionalAmount)
		data.Items = append(data.Items, pdf.StatementItem{
			BookingRef: booking.ID.String(),
			Date:       booking.UpdatedAt.Format("2006-01-02"),
			Gross:      amount.StringFixed(2),
			Commission: split.CommissionAmount.StringFixed(2),
			Net:        split.ProfessionalAmount.StringFixed(2),
		})
	}
	data.GrossTotal = gross.StringFixed(2)
	data.CommissionTotal = commission.StringFixed(2)
	data.NetTotal = net.StringFixed(2)

	return s.pdf.GenerateStatement(ctx, data)
}

func metadataBookingIDs(meta datatypes.JSONMap) []snowflake.ID {
	raw, ok := meta[domain.MetaBookingIDs].([]any)
	if !ok {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, v := range raw {
		text, ok := v.(string)
		if !ok {
			continue
		}
		id, err := snowflake.ParseString(text)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
