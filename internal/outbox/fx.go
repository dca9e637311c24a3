package outbox

import (
	"context"
	"encoding/json"
	"errors"

	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	notificationdomain "github.com/kormohq/kormo/internal/notification/domain"
	"github.com/kormohq/kormo/internal/outbox/domain"
	"github.com/kormohq/kormo/internal/outbox/repository"
	"github.com/kormohq/kormo/internal/outbox/service"
	"github.com/kormohq/kormo/internal/outbox/worker"
	paymentdomain "github.com/kormohq/kormo/internal/payment/domain"
	settlementdomain "github.com/kormohq/kormo/internal/settlement/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewEnqueuer),
	fx.Provide(worker.NewRegistry),
	fx.Provide(worker.New),
	fx.Invoke(registerHandlers),
)

type handlerParams struct {
	fx.In

	Log           *zap.Logger
	Registry      *worker.Registry
	NotifySvc     notificationdomain.Service
	PaymentSvc    paymentdomain.Service
	SettlementSvc settlementdomain.Service
}

func registerHandlers(p handlerParams) {
	log := p.Log.Named("outbox.handlers")

	p.Registry.Register(domain.KindNotificationDispatch, func(ctx context.Context, payload []byte) error {
		var task domain.NotificationDispatchPayload
		if err := json.Unmarshal(payload, &task); err != nil {
			return err
		}
		return p.NotifySvc.Dispatch(ctx, notificationdomain.Request{
			Kind:           task.Kind,
			BookingID:      task.BookingID,
			CustomerID:     task.CustomerID,
			ProfessionalID: task.ProfessionalID,
			Status:         task.Status,
			Reason:         task.Reason,
			Amount:         task.Amount,
		})
	})

	p.Registry.Register(domain.KindRefundCreate, func(ctx context.Context, payload []byte) error {
		var task domain.RefundCreatePayload
		if err := json.Unmarshal(payload, &task); err != nil {
			return err
		}
		amount, err := decimal.NewFromString(task.Amount)
		if err != nil {
			return err
		}
		if _, err := p.PaymentSvc.CreateRefundForRejection(ctx, task.BookingID, task.PaymentID, amount, task.Reason); err != nil {
			return err
		}
		return nil
	})

	p.Registry.Register(domain.KindSettlementRecord, func(ctx context.Context, payload []byte) error {
		var task domain.SettlementRecordPayload
		if err := json.Unmarshal(payload, &task); err != nil {
			return err
		}
		err := p.SettlementSvc.RecordForBooking(ctx, task.BookingID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bookingdomain.ErrNotFound),
			errors.Is(err, settlementdomain.ErrBookingNotSettled):
			// the booking moved on since the task was queued; retrying
			// cannot change that
			log.Warn("settlement task dropped",
				zap.String("booking_id", task.BookingID.String()),
				zap.Error(err),
			)
			return nil
		default:
			return err
		}
	})
}
