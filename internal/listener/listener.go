// Package listener provides a Postgres LISTEN/NOTIFY consumer for wellbeing
// writes. It holds a dedicated pgx connection (not from the pool) listening on
// the `wellbeing_recorded` channel.
//
// The wellbeing_log trigger fires pg_notify for every insert or update, so
// entries written by other services still reach the not-well escalation.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/scheduler"
)

const (
	channel          = "wellbeing_recorded"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Escalator runs the not-well check for one elder.
type Escalator interface {
	Check(ctx context.Context, subjectID string) (scheduler.EscalationResult, error)
}

// WellbeingEvent is the JSON payload from pg_notify('wellbeing_recorded', ...).
type WellbeingEvent struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
	Value  string `json:"value"`
}

// ParseEvent decodes a notification payload.
func ParseEvent(payload string) (WellbeingEvent, error) {
	var event WellbeingEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return WellbeingEvent{}, fmt.Errorf("decode wellbeing event: %w", err)
	}
	if event.UserID == "" {
		return WellbeingEvent{}, fmt.Errorf("wellbeing event without user_id")
	}
	return event, nil
}

// Start opens a dedicated connection and listens on the wellbeing_recorded
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, esc Escalator, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, esc, logger)
		if ctx.Err() != nil {
			logger.Info("Wellbeing listener stopped (context cancelled)")
			return
		}

		logger.Error("Wellbeing listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, esc Escalator, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Wellbeing listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		event, err := ParseEvent(notification.Payload)
		if err != nil {
			logger.Warn("Failed to parse wellbeing event",
				"payload", notification.Payload, "error", err)
			continue
		}

		// Process asynchronously to avoid blocking the listener
		go Handle(ctx, esc, event, logger)
	}
}

// Handle runs the escalation check for not_well entries. Other values cannot
// raise the count, so they are ignored.
func Handle(ctx context.Context, esc Escalator, event WellbeingEvent, logger *slog.Logger) {
	if event.Value != care.WellbeingNotWell {
		return
	}

	res, err := esc.Check(ctx, event.UserID)
	if err != nil {
		logger.Warn("Not-well escalation failed", "user_id", event.UserID, "error", err)
		return
	}
	if res.Fired {
		logger.Info("Not-well escalation sent from listener",
			"user_id", event.UserID, "not_well", res.NotWell,
			"sent", res.Report.Sent(), "failed", res.Report.Failed())
	}
}
