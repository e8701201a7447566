package scheduler

import (
	"context"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/timematch"
)

// WellbeingPrompt asks every elder once a day, at a fixed time, to record
// how they feel.
type WellbeingPrompt struct {
	At     timematch.TimeOfDay
	Origin string // frontend origin used for the action URL
}

func (WellbeingPrompt) Name() string      { return NameWellbeing }
func (WellbeingPrompt) Scope() care.Scope { return care.ScopeSubject }

// Open reports whether now is the configured prompt minute.
func (w WellbeingPrompt) Open(now time.Time) bool {
	return w.At.Matches(now)
}

func (w WellbeingPrompt) Evaluate(_ context.Context, subject care.Subject, now time.Time) ([]Occurrence, error) {
	url := w.Origin + "/wellbeing-check"
	return []Occurrence{{
		Period: timematch.DayKey(now),
		Payload: push.Payload{
			Type:  push.TypeWellbeingCheck,
			Title: "How are you feeling today?",
			Body:  "Tap to record your daily wellbeing.",
			URL:   url,
			Data: map[string]string{
				"url":     url,
				"type":    push.TypeWellbeingCheck,
				"elderId": subject.ID,
			},
		},
	}}, nil
}
