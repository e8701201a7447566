// Package app assembles the care-event components from configuration. Both
// cmd/api and cmd/careops build through here so they dispatch identically.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/albapepper/carebeat/internal/api/handler"
	"github.com/albapepper/carebeat/internal/config"
	"github.com/albapepper/carebeat/internal/maintenance"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/scheduler"
	"github.com/albapepper/carebeat/internal/store"
	"github.com/albapepper/carebeat/internal/subscriptions"
	"github.com/albapepper/carebeat/internal/timematch"
)

// SubscriptionStore is the full push subscription backend.
type SubscriptionStore interface {
	push.EndpointResolver
	push.Pruner
	SaveSubscription(ctx context.Context, userID string, ep push.Endpoint) error
}

// App holds the wired components of one process.
type App struct {
	Config        *config.Config
	Store         *store.Store
	Subscriptions SubscriptionStore
	Dispatcher    *push.Dispatcher
	Schedulers    *scheduler.Set
	Escalation    *scheduler.NotWellEscalation
	Alerts        *scheduler.Alerts
	Maintenance   *maintenance.Runner

	redis *redis.Client
}

// Build wires every component on top of st. Nothing is started.
func Build(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Store: st, Subscriptions: st}

	if cfg.SubscriptionStore == config.SubscriptionStoreRedis {
		client, err := subscriptions.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect subscription store: %w", err)
		}
		a.redis = client
		a.Subscriptions = subscriptions.NewRedisStore(client, "", logger)
		logger.Info("Push subscriptions stored in Redis")
	}

	// A nil *WebPushSender must not become a non-nil Transport.
	var transport push.Transport
	if sender := push.NewWebPushSender(push.WebPushConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
		TTLSeconds: cfg.PushTTLSeconds,
	}, logger); sender != nil {
		transport = sender
	} else {
		logger.Info("Web Push disabled (VAPID_PUBLIC_KEY / VAPID_PRIVATE_KEY not set)")
	}

	a.Dispatcher = push.NewDispatcher(transport, a.Subscriptions, push.Options{
		SendTimeout: cfg.PushSendTimeout,
		SendRate:    cfg.PushSendRate,
		Pruner:      a.Subscriptions,
	}, logger)

	deps := scheduler.Deps{
		Source:     st,
		Recipients: st,
		Notifier:   a.Dispatcher,
		Logger:     logger,
	}

	a.Schedulers = scheduler.NewSet(deps, scheduler.Config{
		Origin:            cfg.FrontendOrigin,
		Location:          cfg.SchedulerLocation,
		Workers:           cfg.SchedulerWorkers,
		Deliveries:        cfg.SchedulerDeliveries,
		CallTimeout:       cfg.SchedulerCallTimeout,
		InactiveThreshold: cfg.InactiveThreshold,
		RefillLowDays:     cfg.RefillLowDays,
		WellbeingAt:       timematch.TimeOfDay{Hour: cfg.WellbeingCheckHour, Minute: cfg.WellbeingCheckMinute},
	})

	a.Escalation = scheduler.NewNotWellEscalation(st, deps, scheduler.EscalationOptions{
		Threshold:   cfg.NotWellThreshold,
		WindowDays:  cfg.NotWellWindowDays,
		CallTimeout: cfg.SchedulerCallTimeout,
		Location:    cfg.SchedulerLocation,
	})

	a.Alerts = scheduler.NewAlerts(st, deps, cfg.SchedulerCallTimeout)

	mcfg := maintenance.DefaultConfig()
	mcfg.CleanupInterval = cfg.CleanupInterval
	mcfg.CatchUpInterval = cfg.CatchUpInterval
	mcfg.SubscriptionMaxAge = cfg.SubscriptionMaxAge
	mcfg.IntakeRetention = cfg.IntakeRetention
	mcfg.Location = cfg.SchedulerLocation
	if cfg.SubscriptionStore != config.SubscriptionStorePostgres {
		// Redis entries are pruned on delivery only.
		mcfg.SubscriptionMaxAge = 0
	}
	a.Maintenance = maintenance.New(st, a.Escalation, mcfg, logger)

	return a, nil
}

// HandlerDeps returns the HTTP handler dependencies for this App.
func (a *App) HandlerDeps(logger *slog.Logger) handler.Deps {
	return handler.Deps{
		Store:          a.Store,
		Subscriptions:  a.Subscriptions,
		Escalator:      a.Escalation,
		Alerts:         a.Alerts,
		Schedulers:     a.Schedulers,
		VAPIDPublicKey: a.Config.VAPIDPublicKey,
		Location:       a.Config.SchedulerLocation,
		Logger:         logger,
	}
}

// Close releases connections opened by Build.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
