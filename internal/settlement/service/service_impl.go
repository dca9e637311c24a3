package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jinzhu/now"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"github.com/kormohq/kormo/internal/clock"
	commissiondomain "github.com/kormohq/kormo/internal/commission/domain"
	"github.com/kormohq/kormo/internal/config"
	obsmetrics "github.com/kormohq/kormo/internal/observability/metrics"
	paymentdomain "github.com/kormohq/kormo/internal/payment/domain"
	"github.com/kormohq/kormo/internal/settlement/domain"
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
	PaymentRepo   paymentdomain.Repository
	CommissionSvc commissiondomain.Service
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
	paymentRepo   paymentdomain.Repository
	commissionSvc commissiondomain.Service
	metrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:           p.Config,
		db:            p.DB,
		log:           p.Log.Named("settlement.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		bookingRepo:   p.BookingRepo,
		paymentRepo:   p.PaymentRepo,
		commissionSvc: p.CommissionSvc,
		metrics:       p.Metrics,
	}
}

func settlementDate(t time.Time) time.Time {
	return now.New(t.UTC()).BeginningOfDay()
}

func (s *Service) RecordSettlement(ctx context.Context, booking *bookingdomain.Booking, payment *paymentdomain.Payment, commissionAmount, professionalAmount decimal.Decimal) error {
	if booking == nil {
		return domain.ErrBookingNotSettled
	}

	amount := commissionAmount.Add(professionalAmount)
	ts := s.clock.Now()
	date := settlementDate(ts)

	var recorded bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		day, err := s.repo.EnsureDay(ctx, tx, s.genID.Generate(), date, ts)
		if err != nil {
			return err
		}

		settlement := &domain.BookingSettlement{
			ID:                 s.genID.Generate(),
			BookingID:          booking.ID,
			ProfessionalID:     booking.ProfessionalID,
			DailySettlementID:  day.ID,
			CommissionAmount:   commissionAmount,
			ProfessionalAmount: professionalAmount,
			Status:             domain.SettlementDue,
			CreatedAt:          ts,
			UpdatedAt:          ts,
		}
		if payment != nil {
			settlement.PaymentID = &payment.ID
		}

		inserted, err := s.repo.InsertSettlement(ctx, tx, settlement)
		if err != nil {
			return err
		}
		if !inserted {
			// retried completion: the booking is already booked into a day
			// and its contribution already counted once.
			return nil
		}
		recorded = true

		return s.repo.AddDayTotals(ctx, tx, day.ID, 1, amount, commissionAmount, professionalAmount, ts)
	})
	if err != nil {
		return err
	}

	if recorded {
		s.metrics.RecordSettlement(ctx, "recorded")
		s.log.Info("booking settled",
			zap.String("booking_id", booking.ID.String()),
			zap.String("commission_amount", commissionAmount.String()),
			zap.String("professional_amount", professionalAmount.String()),
		)
	} else {
		s.metrics.RecordSettlement(ctx, "duplicate")
	}
	return nil
}

func (s *Service) RecordForBooking(ctx context.Context, bookingID snowflake.ID) error {
	booking, err := s.bookingRepo.Find(ctx, s.db, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return bookingdomain.ErrNotFound
	}
	if booking.Status != bookingdomain.StatusCompleted {
		return domain.ErrBookingNotSettled
	}

	amount := booking.QuotedPrice
	if booking.FinalAmount != nil {
		amount = *booking.FinalAmount
	}
	breakdown := s.commissionSvc.Split(amount, booking.CommissionPercent)

	payment, err := s.paymentRepo.FindSuccessfulPayment(ctx, s.db, booking.ID)
	if err != nil {
		return err
	}
	return s.RecordSettlement(ctx, booking, payment, breakdown.CommissionAmount, breakdown.ProfessionalAmount)
}

func (s *Service) ProcessDay(ctx context.Context, date time.Time) (*domain.DailySettlement, error) {
	date = settlementDate(date)
	ts := s.clock.Now()

	day, err := s.repo.FindDay(ctx, s.db, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, domain.ErrDayNotFound
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.MarkDayProcessed(ctx, tx, day.ID, ts)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrDayProcessed
		}

		due, err := s.repo.ListSettlementsForDay(ctx, tx, day.ID, domain.SettlementDue)
		if err != nil {
			return err
		}
		for i := range due {
			row := due[i]
			applied, err := s.repo.UpdateSettlementStatus(ctx, tx, row.ID, domain.SettlementDue, domain.SettlementPaid, &ts, ts)
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			if err := s.repo.CreditBalance(ctx, tx, row.ProfessionalID, row.ProfessionalAmount, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("settlement day processed",
		zap.Time("date", date),
		zap.Int64("total_bookings", day.TotalBookings),
	)
	return s.repo.FindDay(ctx, s.db, date)
}

func (s *Service) MarkPaid(ctx context.Context, settlementID snowflake.ID) (*domain.BookingSettlement, error) {
	row, err := s.repo.FindSettlement(ctx, s.db, settlementID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrSettlementNotFound
	}
	if row.Status != domain.SettlementDue {
		return nil, domain.ErrSettlementNotDue
	}

	ts := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.UpdateSettlementStatus(ctx, tx, row.ID, domain.SettlementDue, domain.SettlementPaid, &ts, ts)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrSettlementNotDue
		}
		return s.repo.CreditBalance(ctx, tx, row.ProfessionalID, row.ProfessionalAmount, ts)
	})
	if err != nil {
		return nil, err
	}

	row.Status = domain.SettlementPaid
	row.PaidAt = &ts
	row.UpdatedAt = ts
	return row, nil
}

func (s *Service) MarkRefunded(ctx context.Context, bookingID snowflake.ID) error {
	row, err := s.repo.FindSettlementByBooking(ctx, s.db, bookingID)
	if err != nil {
		return err
	}
	if row == nil {
		return domain.ErrSettlementNotFound
	}
	if row.Status == domain.SettlementRefunded {
		return nil
	}

	wasPaid := row.Status == domain.SettlementPaid
	amount := row.CommissionAmount.Add(row.ProfessionalAmount)
	ts := s.clock.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.UpdateSettlementStatus(ctx, tx, row.ID, row.Status, domain.SettlementRefunded, row.PaidAt, ts)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		// back the contribution out of the day so rollups stay truthful
		if err := s.repo.AddDayTotals(ctx, tx, row.DailySettlementID, -1, amount.Neg(), row.CommissionAmount.Neg(), row.ProfessionalAmount.Neg(), ts); err != nil {
			return err
		}
		if wasPaid {
			return s.repo.CreditBalance(ctx, tx, row.ProfessionalID, row.ProfessionalAmount.Neg(), ts)
		}
		return nil
	})
}

func (s *Service) Backfill(ctx context.Context) (domain.BackfillReport, error) {
	report := domain.BackfillReport{}

	bookings, err := s.repo.ListUnsettledCompleted(ctx, s.db, 500)
	if err != nil {
		return report, err
	}
	report.Scanned = len(bookings)

	for i := range bookings {
		booking := bookings[i]

		amount := booking.QuotedPrice
		if booking.FinalAmount != nil {
			amount = *booking.FinalAmount
		}

		payment, err := s.paymentRepo.FindSuccessfulPayment(ctx, s.db, booking.ID)
		if err != nil {
			return report, err
		}
		if payment == nil {
			payment, err = s.synthesizePayment(ctx, &booking, amount)
			if err != nil {
				s.log.Warn("backfill could not synthesize payment",
					zap.String("booking_id", booking.ID.String()),
					zap.Error(err),
				)
				continue
			}
			report.Synthesized++
		}

		breakdown := s.commissionSvc.Split(amount, booking.CommissionPercent)
		if err := s.RecordSettlement(ctx, &booking, payment, breakdown.CommissionAmount, breakdown.ProfessionalAmount); err != nil {
			s.log.Warn("backfill could not record settlement",
				zap.String("booking_id", booking.ID.String()),
				zap.Error(err),
			)
			continue
		}
		report.Recorded++
	}

	if report.Recorded > 0 || report.Synthesized > 0 {
		s.log.Info("settlement backfill pass finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("recorded", report.Recorded),
			zap.Int("synthesized", report.Synthesized),
		)
	}
	return report, nil
}

func (s *Service) synthesizePayment(ctx context.Context, booking *bookingdomain.Booking, amount decimal.Decimal) (*paymentdomain.Payment, error) {
	ts := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:        s.genID.Generate(),
		BookingID: booking.ID,
		Amount:    amount,
		Currency:  s.cfg.DefaultCurrency,
		Status:    paymentdomain.PaymentSuccess,
		Method:    "manual",
		Metadata: datatypes.JSONMap{
			paymentdomain.MetaSynthetic: true,
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := s.paymentRepo.InsertPayment(ctx, s.db, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) GetDay(ctx context.Context, date time.Time) (*domain.DailySettlement, error) {
	day, err := s.repo.FindDay(ctx, s.db, settlementDate(date))
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, domain.ErrDayNotFound
	}
	return day, nil
}

func (s *Service) GetByBooking(ctx context.Context, bookingID snowflake.ID) (*domain.BookingSettlement, error) {
	row, err := s.repo.FindSettlementByBooking(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrSettlementNotFound
	}
	return row, nil
}

func (s *Service) Balance(ctx context.Context, professionalID snowflake.ID) (decimal.Decimal, error) {
	account, err := s.repo.FindAccount(ctx, s.db, professionalID)
	if err != nil {
		return decimal.Zero, err
	}
	if account == nil {
		return decimal.Zero, nil
	}
	return account.Balance, nil
}
