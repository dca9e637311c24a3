package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, booking_id, amount, currency, status, method, gateway_ref,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.BookingID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.Method,
		payment.GatewayRef,
		payment.Metadata,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindOpenPayment(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE booking_id = ? AND status IN (?, ?)
		 ORDER BY id DESC LIMIT 1`,
		bookingID, domain.PaymentPending, domain.PaymentSuccess,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindSuccessfulPayment(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE booking_id = ? AND status = ?
		 ORDER BY id DESC LIMIT 1`,
		bookingID, domain.PaymentSuccess,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPaymentByGatewayRef(ctx context.Context, db *gorm.DB, provider, gatewayRef string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE method = ? AND gateway_ref = ?
		 ORDER BY id DESC LIMIT 1`,
		provider, gatewayRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.PaymentStatus, gatewayRef string, metadata map[string]any, at time.Time) (bool, error) {
	sets := `status = ?, updated_at = ?`
	args := []any{to, at}
	if gatewayRef != "" {
		sets += `, gateway_ref = ?`
		args = append(args, gatewayRef)
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return false, err
		}
		sets += `, metadata = ?`
		args = append(args, datatypes.JSON(raw))
	}
	args = append(args, id, from)

	res := db.WithContext(ctx).Exec(
		`UPDATE payments SET `+sets+` WHERE id = ? AND status = ?`,
		args...,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertRefund(ctx context.Context, db *gorm.DB, refund *domain.Refund) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO refunds (
			id, booking_id, payment_id, amount, reason, status, gateway_ref,
			processed_by, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (booking_id, payment_id) DO NOTHING`,
		refund.ID,
		refund.BookingID,
		refund.PaymentID,
		refund.Amount,
		refund.Reason,
		refund.Status,
		refund.GatewayRef,
		refund.ProcessedBy,
		refund.Metadata,
		refund.CreatedAt,
		refund.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindRefund(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Refund, error) {
	var item domain.Refund
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM refunds WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindRefundByPair(ctx context.Context, db *gorm.DB, bookingID, paymentID snowflake.ID) (*domain.Refund, error) {
	var item domain.Refund
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM refunds WHERE booking_id = ? AND payment_id = ? LIMIT 1`,
		bookingID, paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateRefundStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.RefundStatus, gatewayRef string, at time.Time) (bool, error) {
	sets := `status = ?, updated_at = ?`
	args := []any{to, at}
	if gatewayRef != "" {
		sets += `, gateway_ref = ?`
		args = append(args, gatewayRef)
	}
	args = append(args, id, from)

	res := db.WithContext(ctx).Exec(
		`UPDATE refunds SET `+sets+` WHERE id = ? AND status = ?`,
		args...,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertWebhookEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, provider_event_id, payload, received_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.Payload,
		event.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkWebhookProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET processed_at = ? WHERE id = ?`,
		at, id,
	).Error
}
