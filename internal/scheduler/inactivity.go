package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/timematch"
)

// InactivityDetector alerts caregivers when an elder has not been active for
// longer than Threshold. Elders with no recorded activity are never alerted
// about.
type InactivityDetector struct {
	Source    EventSource
	Threshold time.Duration
	Origin    string
}

func (InactivityDetector) Name() string      { return NameInactivity }
func (InactivityDetector) Scope() care.Scope { return care.ScopeCaregivers }

func (d InactivityDetector) Evaluate(ctx context.Context, subject care.Subject, now time.Time) ([]Occurrence, error) {
	last, ok, err := d.Source.LastActivityOf(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("last activity of %s: %w", subject.ID, err)
	}
	if !ok || now.Sub(last) <= d.Threshold {
		return nil, nil
	}

	url := d.Origin + "/overview"
	hours := strconv.FormatFloat(d.Threshold.Hours(), 'f', -1, 64)
	return []Occurrence{{
		Period: timematch.DayKey(now),
		Payload: push.Payload{
			Type:  push.TypeInactive,
			Title: "Inactive elder",
			Body:  fmt.Sprintf("%s has been inactive for more than %s hours.", subject.DisplayName(), hours),
			URL:   url,
			Data: map[string]string{
				"url":     url,
				"type":    push.TypeInactive,
				"elderId": subject.ID,
			},
		},
	}}, nil
}
