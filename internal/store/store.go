// Package store reads and writes the care data kept in Postgres. Every query
// runs through a statement prepared in internal/db.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
)

// ErrNotFound is returned when a subject does not exist.
var ErrNotFound = errors.New("not found")

// Store is the Postgres-backed care data store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a pool whose connections have the db package statements
// prepared.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ---- Subjects ----

func (s *Store) ListSubjects(ctx context.Context) ([]care.Subject, error) {
	rows, err := s.pool.Query(ctx, "list_elders")
	if err != nil {
		return nil, fmt.Errorf("list elders: %w", err)
	}
	defer rows.Close()

	var subjects []care.Subject
	for rows.Next() {
		var sub care.Subject
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, fmt.Errorf("scan elder: %w", err)
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// Subject loads one elder.
func (s *Store) Subject(ctx context.Context, subjectID string) (care.Subject, error) {
	var sub care.Subject
	err := s.pool.QueryRow(ctx, "elder_by_id", subjectID).Scan(&sub.ID, &sub.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return care.Subject{}, fmt.Errorf("elder %s: %w", subjectID, ErrNotFound)
	}
	if err != nil {
		return care.Subject{}, fmt.Errorf("get elder: %w", err)
	}
	return sub, nil
}

// ---- Time-sensitive records ----

func (s *Store) MedicinesOf(ctx context.Context, subjectID, day string) ([]care.Medicine, error) {
	rows, err := s.pool.Query(ctx, "elder_medicines", subjectID, day)
	if err != nil {
		return nil, fmt.Errorf("get medicines: %w", err)
	}
	defer rows.Close()

	var meds []care.Medicine
	for rows.Next() {
		var m care.Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.Dosage, &m.Time, &m.Date, &m.TakenToday); err != nil {
			return nil, fmt.Errorf("scan medicine: %w", err)
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

func (s *Store) RemindersOf(ctx context.Context, subjectID string) ([]care.Reminder, error) {
	rows, err := s.pool.Query(ctx, "elder_reminders", subjectID)
	if err != nil {
		return nil, fmt.Errorf("get reminders: %w", err)
	}
	defer rows.Close()

	var reminders []care.Reminder
	for rows.Next() {
		var r care.Reminder
		if err := rows.Scan(&r.ID, &r.Text, &r.At, &r.Date, &r.Done); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *Store) RefillMetadataOf(ctx context.Context, subjectID string) ([]care.Refill, error) {
	rows, err := s.pool.Query(ctx, "elder_refills", subjectID)
	if err != nil {
		return nil, fmt.Errorf("get refills: %w", err)
	}
	defer rows.Close()

	var refills []care.Refill
	for rows.Next() {
		var r care.Refill
		if err := rows.Scan(&r.MedicineID, &r.MedicineName, &r.AmountLeft, &r.ReminderAt, &r.Status); err != nil {
			return nil, fmt.Errorf("scan refill: %w", err)
		}
		refills = append(refills, r)
	}
	return refills, rows.Err()
}

// LastActivityOf reports ok=false for unknown subjects and for subjects that
// were never active.
func (s *Store) LastActivityOf(ctx context.Context, subjectID string) (time.Time, bool, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx, "elder_last_activity", subjectID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last activity: %w", err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}

func (s *Store) WellbeingHistoryOf(ctx context.Context, subjectID, since string) ([]care.WellbeingEntry, error) {
	rows, err := s.pool.Query(ctx, "elder_wellbeing_since", subjectID, since)
	if err != nil {
		return nil, fmt.Errorf("get wellbeing history: %w", err)
	}
	defer rows.Close()

	var entries []care.WellbeingEntry
	for rows.Next() {
		var e care.WellbeingEntry
		if err := rows.Scan(&e.Date, &e.Value); err != nil {
			return nil, fmt.Errorf("scan wellbeing entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---- Recipients ----

// RecipientsFor returns the elder, their linked family members, or both.
func (s *Store) RecipientsFor(ctx context.Context, subjectID string, scope care.Scope) ([]string, error) {
	var ids []string
	if scope.Includes(care.ScopeSubject) {
		ids = append(ids, subjectID)
	}
	if !scope.Includes(care.ScopeCaregivers) {
		return ids, nil
	}

	rows, err := s.pool.Query(ctx, "elder_linked_caregivers", subjectID)
	if err != nil {
		return nil, fmt.Errorf("get caregivers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan caregiver: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- Push subscriptions ----

func (s *Store) EndpointsFor(ctx context.Context, userID string) ([]push.Endpoint, error) {
	rows, err := s.pool.Query(ctx, "user_push_subscriptions", userID)
	if err != nil {
		return nil, fmt.Errorf("get push subscriptions: %w", err)
	}
	defer rows.Close()

	var eps []push.Endpoint
	for rows.Next() {
		var ep push.Endpoint
		if err := rows.Scan(&ep.URI, &ep.Keys.P256dh, &ep.Keys.Auth); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

// SaveSubscription stores ep for userID. A browser endpoint belongs to one
// user at a time; re-subscribing moves it.
func (s *Store) SaveSubscription(ctx context.Context, userID string, ep push.Endpoint) error {
	_, err := s.pool.Exec(ctx, "upsert_push_subscription",
		uuid.New(), userID, ep.URI, ep.Keys.P256dh, ep.Keys.Auth)
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

// DeleteSubscription forgets an endpoint the push service reported gone.
func (s *Store) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	if _, err := s.pool.Exec(ctx, "delete_push_subscription", endpoint); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

// ---- Activity and wellbeing writes ----

// TouchActivity records that the user was active at t.
func (s *Store) TouchActivity(ctx context.Context, userID string, t time.Time) error {
	if _, err := s.pool.Exec(ctx, "touch_activity", userID, t); err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

// RecordWellbeing writes the day's wellbeing value, replacing an earlier
// entry for the same day.
func (s *Store) RecordWellbeing(ctx context.Context, userID, day, value string) error {
	if _, err := s.pool.Exec(ctx, "record_wellbeing", userID, day, value); err != nil {
		return fmt.Errorf("record wellbeing: %w", err)
	}
	return nil
}

// RecordIntake marks medicineID as taken on day and returns the medicine's
// name. A second intake on the same day changes nothing.
func (s *Store) RecordIntake(ctx context.Context, elderID, medicineID, day string, at time.Time) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, "elder_medicine_name", medicineID, elderID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("medicine %s: %w", medicineID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get medicine: %w", err)
	}

	if _, err := s.pool.Exec(ctx, "record_intake", medicineID, elderID, day, at); err != nil {
		return "", fmt.Errorf("record intake: %w", err)
	}
	return name, nil
}

// RecordSOS stores an SOS alert raised at at.
func (s *Store) RecordSOS(ctx context.Context, elderID string, lat, lng *float64, at time.Time) (care.SOSAlert, error) {
	alert := care.SOSAlert{ID: uuid.NewString(), Time: at, Lat: lat, Lng: lng}
	if _, err := s.pool.Exec(ctx, "insert_sos_alert", alert.ID, elderID, lat, lng, at); err != nil {
		return care.SOSAlert{}, fmt.Errorf("record sos alert: %w", err)
	}
	return alert, nil
}

// ---- Maintenance ----

// PurgeStaleSubscriptions deletes subscriptions not refreshed since before.
func (s *Store) PurgeStaleSubscriptions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "purge_stale_subscriptions", before)
	if err != nil {
		return 0, fmt.Errorf("purge stale subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeIntakeLog deletes intake rows dated before beforeDay.
func (s *Store) PurgeIntakeLog(ctx context.Context, beforeDay string) (int64, error) {
	tag, err := s.pool.Exec(ctx, "purge_intake_log", beforeDay)
	if err != nil {
		return 0, fmt.Errorf("purge intake log: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NotWellSince lists elders with a not_well entry on or after sinceDay.
func (s *Store) NotWellSince(ctx context.Context, sinceDay string) ([]string, error) {
	rows, err := s.pool.Query(ctx, "not_well_since", sinceDay)
	if err != nil {
		return nil, fmt.Errorf("get not-well elders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan elder id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.pool.QueryRow(ctx, "health_check").Scan(&n)
}
