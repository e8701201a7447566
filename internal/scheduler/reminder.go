package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/timematch"
)

// GenericReminder fires free-text reminders at their time of day.
type GenericReminder struct {
	Source EventSource
}

func (GenericReminder) Name() string      { return NameReminder }
func (GenericReminder) Scope() care.Scope { return care.ScopeBoth }

func (r GenericReminder) Evaluate(ctx context.Context, subject care.Subject, now time.Time) ([]Occurrence, error) {
	reminders, err := r.Source.RemindersOf(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("reminders of %s: %w", subject.ID, err)
	}

	period := timematch.MinuteKey(now)
	var due []Occurrence
	for _, rem := range reminders {
		if rem.Done || !dueThisMinute(rem.At, rem.Date, now) {
			continue
		}
		due = append(due, Occurrence{
			RecordID: rem.ID,
			Period:   period,
			Payload:  reminderPayload(subject, rem),
		})
	}
	return due, nil
}

func reminderPayload(subject care.Subject, rem care.Reminder) push.Payload {
	body := rem.Text
	if body == "" {
		body = "Reminder"
	}
	return push.Payload{
		Type:  push.TypeReminder,
		Title: "Reminder",
		Body:  body,
		URL:   "/",
		Data: map[string]string{
			"url":        "/",
			"type":       push.TypeReminder,
			"elderId":    subject.ID,
			"reminderId": rem.ID,
		},
	}
}
