// Package maintenance runs periodic housekeeping as Go tickers, next to the
// scheduler engines in the long-running API process.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/carebeat/internal/scheduler"
	"github.com/albapepper/carebeat/internal/timematch"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CleanupInterval time.Duration // Stale push subscriptions + old intake log rows
	CatchUpInterval time.Duration // Sweep for wellbeing NOTIFY events missed while disconnected

	SubscriptionMaxAge time.Duration // subscriptions not refreshed for this long are dropped
	IntakeRetention    time.Duration
	Location           *time.Location
	Now                func() time.Time
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval:    6 * time.Hour,
		CatchUpInterval:    15 * time.Minute,
		SubscriptionMaxAge: 180 * 24 * time.Hour,
		IntakeRetention:    90 * 24 * time.Hour,
	}
}

// Store is the data the tasks touch.
type Store interface {
	PurgeStaleSubscriptions(ctx context.Context, before time.Time) (int64, error)
	PurgeIntakeLog(ctx context.Context, beforeDay string) (int64, error)
	NotWellSince(ctx context.Context, sinceDay string) ([]string, error)
}

// Escalator runs the not-well check for one elder.
type Escalator interface {
	Check(ctx context.Context, subjectID string) (scheduler.EscalationResult, error)
}

// Runner owns the maintenance tasks.
type Runner struct {
	store  Store
	esc    Escalator
	cfg    Config
	logger *slog.Logger
}

// New builds a Runner. esc may be nil, which disables the catch-up sweep.
func New(store Store, esc Escalator, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{store: store, esc: esc, cfg: cfg, logger: logger}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("Maintenance tickers started",
		"cleanup", r.cfg.CleanupInterval,
		"catchup", r.cfg.CatchUpInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if r.cfg.CleanupInterval > 0 {
		t := time.NewTicker(r.cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { r.Cleanup(ctx) })
	}

	if r.cfg.CatchUpInterval > 0 && r.esc != nil {
		t := time.NewTicker(r.cfg.CatchUpInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { r.CatchUp(ctx) })
	}

	<-ctx.Done()
	r.logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// Cleanup drops push subscriptions the browser stopped refreshing and intake
// log rows past retention.
func (r *Runner) Cleanup(ctx context.Context) {
	now := r.cfg.Now()

	if r.cfg.SubscriptionMaxAge > 0 {
		n, err := r.store.PurgeStaleSubscriptions(ctx, now.Add(-r.cfg.SubscriptionMaxAge))
		if err != nil {
			r.logger.Warn("Cleanup: failed to purge stale subscriptions", "error", err)
		} else if n > 0 {
			r.logger.Info("Cleanup: purged stale subscriptions", "count", n)
		}
	}

	if r.cfg.IntakeRetention > 0 {
		before := timematch.DayKey(now.In(r.cfg.Location).Add(-r.cfg.IntakeRetention))
		n, err := r.store.PurgeIntakeLog(ctx, before)
		if err != nil {
			r.logger.Warn("Cleanup: failed to purge intake log", "error", err)
		} else if n > 0 {
			r.logger.Info("Cleanup: purged intake log rows", "count", n, "before", before)
		}
	}
}

// CatchUp re-runs the not-well escalation for elders with a not_well entry
// today. The escalation deduplicates per day, so elders already handled by
// the API or the listener are not notified twice.
func (r *Runner) CatchUp(ctx context.Context) {
	if r.esc == nil {
		return
	}
	today := timematch.DayKey(r.cfg.Now().In(r.cfg.Location))
	ids, err := r.store.NotWellSince(ctx, today)
	if err != nil {
		r.logger.Warn("Catch-up sweep: failed", "error", err)
		return
	}

	fired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		res, err := r.esc.Check(ctx, id)
		if err != nil {
			r.logger.Warn("Catch-up sweep: escalation failed", "user_id", id, "error", err)
			continue
		}
		if res.Fired {
			fired++
		}
	}
	if fired > 0 {
		r.logger.Info("Catch-up sweep: sent missed escalations", "count", fired)
	}
}
