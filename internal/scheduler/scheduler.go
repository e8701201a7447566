// Package scheduler drives the periodic care-event checks.
//
// One Engine runs per scheduler type. On every tick it lists the elder
// population, asks its Strategy which events are newly due for each subject,
// claims a dedup key for every due event and fans a push notification out to
// the recipients the strategy's scope selects. The five strategies differ only
// in their due predicate, payload and dedup period.
package scheduler

import (
	"context"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
)

// --------------------------------------------------------------------------
// Collaborators
// --------------------------------------------------------------------------

// EventSource reads subjects and their time-sensitive records. Every call
// returns a fresh snapshot.
type EventSource interface {
	ListSubjects(ctx context.Context) ([]care.Subject, error)
	// MedicinesOf returns the subject's medicines with TakenToday computed
	// for day (YYYY-MM-DD).
	MedicinesOf(ctx context.Context, subjectID, day string) ([]care.Medicine, error)
	RemindersOf(ctx context.Context, subjectID string) ([]care.Reminder, error)
	// LastActivityOf reports ok=false when the subject was never active.
	LastActivityOf(ctx context.Context, subjectID string) (last time.Time, ok bool, err error)
	// WellbeingHistoryOf returns entries dated on or after since (YYYY-MM-DD).
	WellbeingHistoryOf(ctx context.Context, subjectID, since string) ([]care.WellbeingEntry, error)
	RefillMetadataOf(ctx context.Context, subjectID string) ([]care.Refill, error)
}

// RecipientResolver maps a subject to the identities that should hear about
// its events.
type RecipientResolver interface {
	RecipientsFor(ctx context.Context, subjectID string, scope care.Scope) ([]string, error)
}

// Notifier delivers one payload to a set of identities. *push.Dispatcher
// satisfies it.
type Notifier interface {
	Enabled() bool
	Dispatch(ctx context.Context, p push.Payload, recipients []string) push.Report
}

// --------------------------------------------------------------------------
// Strategies
// --------------------------------------------------------------------------

// Occurrence is one due event produced by a Strategy.
type Occurrence struct {
	RecordID string // empty when the subject itself is the record
	Period   string // dedup period, see timematch.MinuteKey/DayKey
	Payload  push.Payload
}

// Strategy decides which of a subject's events are due at now.
type Strategy interface {
	Name() string
	Scope() care.Scope
	Evaluate(ctx context.Context, subject care.Subject, now time.Time) ([]Occurrence, error)
}

// Gate is implemented by strategies that only run at certain times. A closed
// gate skips the whole tick before any subject is read.
type Gate interface {
	Open(now time.Time) bool
}

// Names of the scheduler types.
const (
	NameMedicine    = "medicine_reminder"
	NameReminder    = "reminder"
	NameWellbeing   = "wellbeing_prompt"
	NameInactivity  = "inactivity"
	NameRefill      = "refill_reminder"
	NameNotWellPush = "not_well_escalation"
)
