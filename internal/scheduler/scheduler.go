package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/kormohq/kormo/internal/clock"
	"github.com/kormohq/kormo/internal/outbox/worker"
	payoutdomain "github.com/kormohq/kormo/internal/payout/domain"
	settlementdomain "github.com/kormohq/kormo/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Worker        *worker.Worker
	SettlementSvc settlementdomain.Service
	PayoutSvc     payoutdomain.Service
	Locker        *Locker `optional:"true"`
	Config        Config  `optional:"true"`
}

type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	worker        *worker.Worker
	settlementSvc settlementdomain.Service
	payoutSvc     payoutdomain.Service
	locker        *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Worker == nil || p.SettlementSvc == nil || p.PayoutSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		worker:        p.Worker,
		settlementSvc: p.SettlementSvc,
		payoutSvc:     p.PayoutSvc,
		locker:        p.Locker,
	}, nil
}

// runJob wraps one job with a timeout and, when a locker is configured, an
// instance-exclusive lock. A held lock means another instance is on it and
// this run skips quietly.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))

	if s.locker != nil {
		key := "kormo:scheduler:" + name
		token, acquired, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("%s: lock: %w", name, err)
		}
		if !acquired {
			log.Debug("job lock held elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("job lock release failed", zap.Error(err))
			}
		}()
	}

	err := fn(ctx)
	elapsed := time.Since(start)
	if err == nil {
		log.Debug("job finished", zap.Duration("elapsed", elapsed))
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{"outbox_dispatch", 30 * time.Second, s.OutboxDispatchJob},
		{"settlement_backfill", 30 * time.Second, s.SettlementBackfillJob},
		{"payout_generate", 60 * time.Second, s.PayoutGenerateJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty EnabledJobs means every job runs (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// OutboxDispatchJob drains due outbox tasks until a pass comes back empty.
func (s *Scheduler) OutboxDispatchJob(ctx context.Context) error {
	for pass := 0; pass < s.cfg.OutboxDrainPasses; pass++ {
		processed, err := s.worker.RunOnce(ctx)
		if err != nil {
			return err
		}
		if processed == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) SettlementBackfillJob(ctx context.Context) error {
	report, err := s.settlementSvc.Backfill(ctx)
	if err != nil {
		return err
	}
	if report.Recorded > 0 {
		s.log.Info("settlement backfill recorded rows",
			zap.Int("scanned", report.Scanned),
			zap.Int("recorded", report.Recorded),
			zap.Int("synthesized", report.Synthesized),
		)
	}
	return nil
}

// PayoutGenerateJob batches the most recent fully elapsed payout period.
// Overlap checks inside the generator make reruns no-ops.
func (s *Scheduler) PayoutGenerateJob(ctx context.Context) error {
	end := now.New(s.clock.Now().UTC()).BeginningOfDay()
	start := end.AddDate(0, 0, -s.cfg.PayoutPeriodDays)

	_, err := s.payoutSvc.GenerateForPeriod(ctx, start, end)
	return err
}
