// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/carebeat/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// Option adjusts how New builds the pool.
type Option func(*options)

type options struct {
	skipStatements bool
}

// WithoutStatements leaves connections unprepared. Schema migrations need it:
// the statements reference tables that may not exist yet.
func WithoutStatements() Option {
	return func(o *options) { o.skipStatements = true }
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Pool, error) {
	poolCfg, err := poolConfig(cfg, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

func poolConfig(cfg *config.Config, opts ...Option) (*pgxpool.Config, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	if !o.skipStatements {
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return registerPreparedStatements(ctx, conn)
		}
	}
	return poolCfg, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statements maps prepared statement names to SQL. Dates are returned as
// YYYY-MM-DD text so callers never see a zone-shifted timestamp.
var Statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Subjects
	"list_elders": "SELECT id, COALESCE(name, '') FROM users WHERE role = 'elderly' ORDER BY id",
	"elder_by_id": "SELECT id, COALESCE(name, '') FROM users WHERE id = $1 AND role = 'elderly'",

	// Time-sensitive records
	"elder_medicines": `SELECT m.id, m.name, COALESCE(m.dosage, ''), COALESCE(m.time_of_day, ''),
			COALESCE(m.scheduled_date::text, ''),
			EXISTS (SELECT 1 FROM medicine_intake_log l WHERE l.medicine_id = m.id AND l.taken_on = $2::date)
		FROM medicines m WHERE m.elder_id = $1 ORDER BY m.id`,
	"elder_reminders": `SELECT id, COALESCE(text, ''), COALESCE(at_time, ''), COALESCE(scheduled_date::text, ''), done
		FROM reminders WHERE elder_id = $1 ORDER BY id`,
	"elder_refills": `SELECT id, name, amount_left::float8, COALESCE(refill_reminder_at::text, ''),
			COALESCE(refill_status, 'none')
		FROM medicines WHERE elder_id = $1 ORDER BY id`,
	"elder_last_activity":     "SELECT last_activity_at FROM users WHERE id = $1",
	"elder_wellbeing_since":   "SELECT entry_date::text, value FROM wellbeing_log WHERE elder_id = $1 AND entry_date >= $2::date ORDER BY entry_date",
	"elder_linked_caregivers": "SELECT family_id FROM care_links WHERE elder_id = $1 ORDER BY family_id",

	// Writes from the API
	"touch_activity": "UPDATE users SET last_activity_at = $2 WHERE id = $1",
	"record_wellbeing": `INSERT INTO wellbeing_log (elder_id, entry_date, value) VALUES ($1, $2::date, $3)
		ON CONFLICT (elder_id, entry_date) DO UPDATE SET value = EXCLUDED.value, created_at = now()`,
	"elder_medicine_name": "SELECT name FROM medicines WHERE id = $1 AND elder_id = $2",
	"record_intake": `INSERT INTO medicine_intake_log (medicine_id, elder_id, taken_on, taken_at) VALUES ($1, $2, $3::date, $4)
		ON CONFLICT (medicine_id, taken_on) DO NOTHING`,
	"insert_sos_alert": "INSERT INTO sos_alerts (id, elder_id, lat, lng, created_at) VALUES ($1, $2, $3, $4, $5)",

	// Push subscriptions
	"user_push_subscriptions": "SELECT endpoint, p256dh, auth FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at",
	"upsert_push_subscription": `INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, updated_at = now()`,
	"delete_push_subscription": "DELETE FROM push_subscriptions WHERE endpoint = $1",

	// Maintenance
	"purge_stale_subscriptions": "DELETE FROM push_subscriptions WHERE updated_at < $1",
	"purge_intake_log":          "DELETE FROM medicine_intake_log WHERE taken_on < $1::date",
	"not_well_since":            "SELECT DISTINCT elder_id FROM wellbeing_log WHERE value = 'not_well' AND entry_date >= $1::date ORDER BY elder_id",
}

// registerPreparedStatements registers all statements the API and scheduler
// layers use. Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
