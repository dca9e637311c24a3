package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskDone    TaskStatus = "DONE"
	TaskFailed  TaskStatus = "FAILED"
)

type TaskKind string

const (
	KindNotificationDispatch TaskKind = "notification.dispatch"
	KindRefundCreate         TaskKind = "refund.create"
	KindSettlementRecord     TaskKind = "settlement.record"
)

var (
	ErrUnknownKind = errors.New("outbox_unknown_task_kind")
	ErrInvalidTask = errors.New("outbox_invalid_task")
	ErrNoHandler   = errors.New("outbox_no_handler")
)

// Task is a side-effect queued in the same transaction as the state change
// that caused it. The worker drains PENDING tasks with retry/backoff; a task
// only reaches FAILED after exhausting its attempts.
type Task struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	Kind          TaskKind       `json:"kind" gorm:"type:text;not null;index"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Status        TaskStatus     `json:"status" gorm:"type:text;not null;index"`
	Attempts      int            `json:"attempts" gorm:"not null"`
	NextAttemptAt time.Time      `json:"next_attempt_at" gorm:"not null;index"`
	LastError     string         `json:"last_error" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"not null"`
}

func (Task) TableName() string { return "outbox_tasks" }

// Enqueuer inserts tasks. Callers pass their transaction handle so the task
// commits or rolls back with the primary write.
type Enqueuer interface {
	Enqueue(ctx context.Context, db *gorm.DB, kind TaskKind, payload any) error
}

// Handler processes one task payload. Any error reschedules the task with
// backoff until its attempts run out, after which it is parked FAILED for an
// operator.
type Handler func(ctx context.Context, payload []byte) error

// RefundCreatePayload asks the payment coordinator to open a refund for a
// rejected booking that already collected money.
type RefundCreatePayload struct {
	BookingID snowflake.ID `json:"booking_id"`
	PaymentID snowflake.ID `json:"payment_id"`
	Amount    string       `json:"amount"`
	Reason    string       `json:"reason"`
}

// SettlementRecordPayload asks the settlement ledger to record a completed
// booking's split.
type SettlementRecordPayload struct {
	BookingID snowflake.ID `json:"booking_id"`
}

// NotificationDispatchPayload carries a notification request snapshot.
type NotificationDispatchPayload struct {
	Kind           string       `json:"kind"`
	BookingID      snowflake.ID `json:"booking_id"`
	CustomerID     snowflake.ID `json:"customer_id"`
	ProfessionalID snowflake.ID `json:"professional_id"`
	Status         string       `json:"status"`
	Reason         string       `json:"reason,omitempty"`
	Amount         string       `json:"amount,omitempty"`
}

func Marshal(payload any) (datatypes.JSON, error) {
	if payload == nil {
		return nil, ErrInvalidTask
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
