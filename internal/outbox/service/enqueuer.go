package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/clock"
	"github.com/kormohq/kormo/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EnqueuerParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type enqueuer struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewEnqueuer(p EnqueuerParams) domain.Enqueuer {
	return &enqueuer{
		log:   p.Log.Named("outbox.enqueuer"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (e *enqueuer) Enqueue(ctx context.Context, db *gorm.DB, kind domain.TaskKind, payload any) error {
	switch kind {
	case domain.KindNotificationDispatch, domain.KindRefundCreate, domain.KindSettlementRecord:
	default:
		return domain.ErrUnknownKind
	}

	raw, err := domain.Marshal(payload)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	task := &domain.Task{
		ID:            e.genID.Generate(),
		Kind:          kind,
		Payload:       raw,
		Status:        domain.TaskPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.repo.Insert(ctx, db, task); err != nil {
		return err
	}

	e.log.Debug("task enqueued",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", string(kind)),
	)
	return nil
}
