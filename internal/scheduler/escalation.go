package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/dedup"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/timematch"
)

const (
	defaultNotWellThreshold  = 3
	defaultNotWellWindowDays = 7
)

// SubjectReader loads one elder by ID.
type SubjectReader interface {
	Subject(ctx context.Context, subjectID string) (care.Subject, error)
}

// EscalationOptions tunes NotWellEscalation.
type EscalationOptions struct {
	Threshold   int // not_well entries needed within the window
	WindowDays  int
	CallTimeout time.Duration
	Location    *time.Location
	Now         func() time.Time
}

// NotWellEscalation alerts caregivers when an elder keeps reporting that
// they are not well. It runs on demand, after a wellbeing entry is written,
// rather than on a ticker. Each elder escalates at most once per day.
type NotWellEscalation struct {
	source   EventSource
	subjects SubjectReader
	deps     Deps
	registry dedup.Registry
	opts     EscalationOptions
	logger   *slog.Logger
}

// EscalationResult describes one Check call.
type EscalationResult struct {
	NotWell int
	Fired   bool
	Report  push.Report
}

// NewNotWellEscalation builds the escalation check. deps.Source is used for
// the wellbeing history.
func NewNotWellEscalation(subjects SubjectReader, deps Deps, opts EscalationOptions) *NotWellEscalation {
	if opts.Threshold <= 0 {
		opts.Threshold = defaultNotWellThreshold
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = defaultNotWellWindowDays
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NotWellEscalation{
		source:   deps.Source,
		subjects: subjects,
		deps:     deps,
		registry: dedup.NewPerDay(),
		opts:     opts,
		logger:   logger.With("scheduler", NameNotWellPush),
	}
}

// Check counts the subject's recent not_well entries and notifies caregivers
// when the threshold is reached.
func (n *NotWellEscalation) Check(ctx context.Context, subjectID string) (EscalationResult, error) {
	var res EscalationResult
	if !n.deps.Notifier.Enabled() {
		return res, nil
	}

	now := n.opts.Now().In(n.opts.Location)
	since := timematch.DayKey(now.AddDate(0, 0, -n.opts.WindowDays))

	hctx, cancel := context.WithTimeout(ctx, n.opts.CallTimeout)
	entries, err := n.source.WellbeingHistoryOf(hctx, subjectID, since)
	cancel()
	if err != nil {
		return res, fmt.Errorf("wellbeing history of %s: %w", subjectID, err)
	}
	for _, e := range entries {
		if e.Value == care.WellbeingNotWell {
			res.NotWell++
		}
	}
	if res.NotWell < n.opts.Threshold {
		return res, nil
	}

	key := dedup.Key{Scheduler: NameNotWellPush, Subject: subjectID, Period: timematch.DayKey(now)}
	if !n.registry.Claim(key) {
		return res, nil
	}
	res.Fired = true

	sctx, cancel := context.WithTimeout(ctx, n.opts.CallTimeout)
	subject, err := n.subjects.Subject(sctx, subjectID)
	cancel()
	if err != nil {
		n.logger.Warn("load subject failed, using generic name", "subject_id", subjectID, "error", err)
		subject = care.Subject{ID: subjectID}
	}

	rctx, cancel := context.WithTimeout(ctx, n.opts.CallTimeout)
	recipients, err := n.deps.Recipients.RecipientsFor(rctx, subjectID, care.ScopeCaregivers)
	cancel()
	if err != nil {
		return res, fmt.Errorf("caregivers of %s: %w", subjectID, err)
	}

	res.Report = n.deps.Notifier.Dispatch(ctx, n.payload(subject), recipients)
	n.logger.Info("care event fired",
		"subject_id", subjectID,
		"not_well", res.NotWell,
		"dispatch_id", res.Report.DispatchID,
		"recipients", len(recipients),
		"sent", res.Report.Sent(),
		"failed", res.Report.Failed())
	return res, nil
}

func (n *NotWellEscalation) payload(subject care.Subject) push.Payload {
	name := subject.DisplayName()
	return push.Payload{
		Type:  push.TypeWellbeingAlert,
		Title: "Wellbeing check",
		Body: fmt.Sprintf(`%s has reported "Not well" several times in the last %d days. Please check in.`,
			name, n.opts.WindowDays),
		URL: "/",
		Data: map[string]string{
			"url":       "/",
			"type":      push.TypeWellbeingAlert,
			"elderId":   subject.ID,
			"elderName": name,
		},
	}
}
