package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
)

func newEscalation(h *harness) *NotWellEscalation {
	return NewNotWellEscalation(h.source, h.deps(), EscalationOptions{
		Location: time.UTC,
		Now:      h.clock.Now,
	})
}

func notWell(dates ...string) []care.WellbeingEntry {
	out := make([]care.WellbeingEntry, 0, len(dates))
	for _, d := range dates {
		out = append(out, care.WellbeingEntry{Date: d, Value: care.WellbeingNotWell})
	}
	return out
}

func TestNotWellEscalationNotifiesCaregiversOncePerDay(t *testing.T) {
	h := newHarness(at("2025-03-10 10:00:00"), grandma)
	h.source.wellbeing["e1"] = append(
		notWell("2025-03-04", "2025-03-07", "2025-03-10"),
		care.WellbeingEntry{Date: "2025-03-09", Value: care.WellbeingGood},
	)
	esc := newEscalation(h)
	ctx := context.Background()

	res, err := esc.Check(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, res.Fired)
	assert.Equal(t, 3, res.NotWell)

	calls := h.notifier.dispatches()
	require.Len(t, calls, 1)
	p := calls[0].payload
	assert.Equal(t, push.TypeWellbeingAlert, p.Type)
	assert.Equal(t, "Wellbeing check", p.Title)
	assert.Equal(t, `Rosa has reported "Not well" several times in the last 7 days. Please check in.`, p.Body)
	assert.Equal(t, "Rosa", p.Data["elderName"])
	assert.Equal(t, []string{"e1-family"}, calls[0].recipients)

	res, err = esc.Check(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, res.Fired, "second submission the same day stays quiet")

	h.clock.Set(at("2025-03-11 10:00:00"))
	res, err = esc.Check(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, res.Fired)
}

func TestNotWellEscalationBelowThreshold(t *testing.T) {
	h := newHarness(at("2025-03-10 10:00:00"), grandma)
	// The oldest entry falls outside the seven day window.
	h.source.wellbeing["e1"] = notWell("2025-03-01", "2025-03-08", "2025-03-09")
	esc := newEscalation(h)

	res, err := esc.Check(context.Background(), "e1")
	require.NoError(t, err)
	assert.False(t, res.Fired)
	assert.Equal(t, 2, res.NotWell)
	assert.Empty(t, h.notifier.dispatches())
}

func TestNotWellEscalationUnknownSubjectUsesFallbackName(t *testing.T) {
	h := newHarness(at("2025-03-10 10:00:00"))
	h.source.wellbeing["ghost"] = notWell("2025-03-08", "2025-03-09", "2025-03-10")
	esc := newEscalation(h)

	res, err := esc.Check(context.Background(), "ghost")
	require.NoError(t, err)
	require.True(t, res.Fired)
	assert.Contains(t, h.notifier.dispatches()[0].payload.Body, "Elder has reported")
}

func TestNotWellEscalationErrors(t *testing.T) {
	h := newHarness(at("2025-03-10 10:00:00"), grandma)
	h.source.errs["e1"] = errors.New("query canceled")
	esc := newEscalation(h)

	_, err := esc.Check(context.Background(), "e1")
	assert.Error(t, err)

	h.source.errs = map[string]error{}
	h.source.wellbeing["e1"] = notWell("2025-03-08", "2025-03-09", "2025-03-10")
	h.recipients.err = errors.New("caregiver lookup failed")
	res, err := esc.Check(context.Background(), "e1")
	assert.Error(t, err)
	assert.True(t, res.Fired, "the day is claimed even when delivery cannot start")
}

func TestNotWellEscalationDisabled(t *testing.T) {
	h := newHarness(at("2025-03-10 10:00:00"), grandma)
	h.source.wellbeing["e1"] = notWell("2025-03-08", "2025-03-09", "2025-03-10")
	h.notifier.disabled = true

	res, err := newEscalation(h).Check(context.Background(), "e1")
	require.NoError(t, err)
	assert.False(t, res.Fired)
	assert.Zero(t, res.NotWell)
}
