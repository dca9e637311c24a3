package worker

import (
	"context"
	"errors"
	"time"

	"github.com/kormohq/kormo/internal/clock"
	obsmetrics "github.com/kormohq/kormo/internal/observability/metrics"
	"github.com/kormohq/kormo/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 8
	defaultBaseBackoff = 10 * time.Second
	maxBackoff         = time.Hour
)

// Registry maps task kinds to their handlers. Populated once at startup.
type Registry struct {
	handlers map[domain.TaskKind]domain.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[domain.TaskKind]domain.Handler{}}
}

func (r *Registry) Register(kind domain.TaskKind, handler domain.Handler) {
	if handler == nil {
		return
	}
	r.handlers[kind] = handler
}

func (r *Registry) handler(kind domain.TaskKind) (domain.Handler, bool) {
	handler, ok := r.handlers[kind]
	return handler, ok
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Registry *Registry
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Worker drains PENDING outbox tasks. One attempt per due task per pass;
// failures are rescheduled with exponential backoff.
type Worker struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	registry    *Registry
	metrics     *obsmetrics.Metrics
	batchSize   int
	maxAttempts int
	baseBackoff time.Duration
}

func New(p Params) *Worker {
	return &Worker{
		db:          p.DB,
		log:         p.Log.Named("outbox.worker"),
		clock:       p.Clock,
		repo:        p.Repo,
		registry:    p.Registry,
		metrics:     p.Metrics,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
}

// RunOnce processes every currently-due task and reports how many were
// attempted.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.clock.Now()
	tasks, err := w.repo.ListDue(ctx, w.db, now, w.batchSize)
	if err != nil {
		return 0, err
	}

	var runErr error
	processed := 0
	for i := range tasks {
		if ctx.Err() != nil {
			runErr = errors.Join(runErr, ctx.Err())
			break
		}
		w.processTask(ctx, &tasks[i])
		processed++
	}
	return processed, runErr
}

func (w *Worker) processTask(ctx context.Context, task *domain.Task) {
	log := w.log.With(
		zap.String("task_id", task.ID.String()),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempt", task.Attempts+1),
	)

	handler, ok := w.registry.handler(task.Kind)
	if !ok {
		now := w.clock.Now()
		if err := w.repo.MarkFailed(ctx, w.db, task.ID, task.Attempts, domain.ErrNoHandler.Error(), now); err != nil {
			log.Error("could not park unhandled task", zap.Error(err))
		}
		w.metrics.RecordOutboxDispatch(ctx, string(task.Kind), "unhandled")
		log.Error("no handler for task kind")
		return
	}

	err := handler(ctx, task.Payload)
	now := w.clock.Now()
	if err == nil {
		if _, merr := w.repo.MarkDone(ctx, w.db, task.ID, now); merr != nil {
			log.Error("could not mark task done", zap.Error(merr))
		}
		w.metrics.RecordOutboxDispatch(ctx, string(task.Kind), "done")
		return
	}

	attempts := task.Attempts + 1
	if attempts >= w.maxAttempts {
		if merr := w.repo.MarkFailed(ctx, w.db, task.ID, attempts, err.Error(), now); merr != nil {
			log.Error("could not park failed task", zap.Error(merr))
		}
		w.metrics.RecordOutboxDispatch(ctx, string(task.Kind), "failed")
		log.Error("task failed permanently", zap.Error(err))
		return
	}

	next := now.Add(backoff(w.baseBackoff, attempts))
	if merr := w.repo.Reschedule(ctx, w.db, task.ID, attempts, next, err.Error(), now); merr != nil {
		log.Error("could not reschedule task", zap.Error(merr))
	}
	w.metrics.RecordOutboxDispatch(ctx, string(task.Kind), "retried")
	log.Warn("task attempt failed, rescheduled",
		zap.Time("next_attempt_at", next),
		zap.Error(err),
	)
}

func backoff(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
