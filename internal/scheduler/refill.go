package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/timematch"
)

// RefillReminder tells caregivers when a medicine's refill date has arrived
// or its stock has run low.
type RefillReminder struct {
	Source   EventSource
	LowStock float64 // days of stock at or below which a refill is due
	Origin   string
}

func (RefillReminder) Name() string      { return NameRefill }
func (RefillReminder) Scope() care.Scope { return care.ScopeCaregivers }

func (r RefillReminder) Evaluate(ctx context.Context, subject care.Subject, now time.Time) ([]Occurrence, error) {
	refills, err := r.Source.RefillMetadataOf(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("refills of %s: %w", subject.ID, err)
	}

	today := timematch.DateOf(now)
	period := timematch.DayKey(now)
	var due []Occurrence
	for _, refill := range refills {
		if refill.Done() || !r.refillDue(refill, today) {
			continue
		}
		due = append(due, Occurrence{
			RecordID: refill.MedicineID,
			Period:   period,
			Payload:  r.payload(subject, refill),
		})
	}
	return due, nil
}

func (r RefillReminder) refillDue(refill care.Refill, today timematch.Date) bool {
	if d, ok := timematch.ParseDate(refill.ReminderAt); ok && !d.After(today) {
		return true
	}
	return refill.AmountLeft != nil && *refill.AmountLeft <= r.LowStock
}

func (r RefillReminder) payload(subject care.Subject, refill care.Refill) push.Payload {
	name := refill.MedicineName
	if name == "" {
		name = "Medicine"
	}
	url := r.Origin + "/medicines"
	return push.Payload{
		Type:  push.TypeRefillReminder,
		Title: "Refill reminder",
		Body:  fmt.Sprintf("%s – %s: amount low / refill due.", subject.DisplayName(), name),
		URL:   url,
		Data: map[string]string{
			"url":        url,
			"type":       push.TypeRefillReminder,
			"elderId":    subject.ID,
			"medicineId": refill.MedicineID,
		},
	}
}
