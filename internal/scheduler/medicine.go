package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/timematch"
)

// MedicineReminder fires when a medicine's dose time is the current minute
// and no intake has been logged for it today.
type MedicineReminder struct {
	Source EventSource
}

func (MedicineReminder) Name() string      { return NameMedicine }
func (MedicineReminder) Scope() care.Scope { return care.ScopeBoth }

func (m MedicineReminder) Evaluate(ctx context.Context, subject care.Subject, now time.Time) ([]Occurrence, error) {
	meds, err := m.Source.MedicinesOf(ctx, subject.ID, timematch.DayKey(now))
	if err != nil {
		return nil, fmt.Errorf("medicines of %s: %w", subject.ID, err)
	}

	period := timematch.MinuteKey(now)
	var due []Occurrence
	for _, med := range meds {
		if med.TakenToday || !dueThisMinute(med.Time, med.Date, now) {
			continue
		}
		due = append(due, Occurrence{
			RecordID: med.ID,
			Period:   period,
			Payload:  medicinePayload(subject, med),
		})
	}
	return due, nil
}

func medicinePayload(subject care.Subject, med care.Medicine) push.Payload {
	body := "Time to take " + med.Name
	if med.Dosage != "" {
		body += " – " + med.Dosage
	}
	return push.Payload{
		Type:  push.TypeMedicine,
		Title: "Medicine reminder",
		Body:  body,
		URL:   "/",
		Data: map[string]string{
			"url":          "/",
			"type":         push.TypeMedicine,
			"elderId":      subject.ID,
			"medicineId":   med.ID,
			"medicineName": med.Name,
		},
	}
}

// dueThisMinute is the shared time predicate of the per-minute schedulers.
// Unparsable times and dates never match.
func dueThisMinute(timeText, dateText string, now time.Time) bool {
	tod, ok := timematch.ParseTimeOfDay(timeText)
	return ok && tod.Matches(now) && timematch.OccursOn(dateText, now)
}
