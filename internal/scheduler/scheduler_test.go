package scheduler

import (
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.RunInterval != time.Minute {
		t.Fatalf("expected default run interval, got %s", cfg.RunInterval)
	}
	if cfg.OutboxDrainPasses != 20 {
		t.Fatalf("expected 20 drain passes, got %d", cfg.OutboxDrainPasses)
	}
	if cfg.PayoutPeriodDays != 7 {
		t.Fatalf("expected 7 day payout period, got %d", cfg.PayoutPeriodDays)
	}
	if cfg.LockTTL != 5*time.Minute {
		t.Fatalf("expected 5m lock ttl, got %s", cfg.LockTTL)
	}

	custom := Config{RunInterval: 10 * time.Second, PayoutPeriodDays: 14}.withDefaults()
	if custom.RunInterval != 10*time.Second || custom.PayoutPeriodDays != 14 {
		t.Fatalf("explicit values were overwritten: %+v", custom)
	}
	if custom.OutboxDrainPasses != 20 {
		t.Fatalf("expected unset field to default, got %d", custom.OutboxDrainPasses)
	}
}

func TestIsJobEnabled(t *testing.T) {
	all := &Scheduler{cfg: Config{}}
	for _, job := range []string{"outbox_dispatch", "settlement_backfill", "payout_generate"} {
		if !all.isJobEnabled(job) {
			t.Fatalf("expected %s enabled with empty list", job)
		}
	}

	some := &Scheduler{cfg: Config{EnabledJobs: []string{"Outbox_Dispatch"}}}
	if !some.isJobEnabled("outbox_dispatch") {
		t.Fatal("expected case-insensitive match")
	}
	if some.isJobEnabled("payout_generate") {
		t.Fatal("expected unlisted job disabled")
	}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	if _, err := New(Params{}); err != ErrInvalidConfig {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
