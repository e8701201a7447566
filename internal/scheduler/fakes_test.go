package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/dedup"
	"github.com/albapepper/carebeat/internal/push"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func at(value string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		panic(err)
	}
	return t
}

// mockSource is an in-memory EventSource.
type mockSource struct {
	mu sync.Mutex

	subjects  []care.Subject
	listErr   error
	medicines map[string][]care.Medicine
	reminders map[string][]care.Reminder
	activity  map[string]time.Time
	wellbeing map[string][]care.WellbeingEntry
	refills   map[string][]care.Refill
	errs      map[string]error // per subject, returned by every record read

	// When set, ListSubjects signals entered and then waits for release.
	entered chan struct{}
	release chan struct{}

	listCalls int
}

func (m *mockSource) ListSubjects(ctx context.Context) ([]care.Subject, error) {
	m.mu.Lock()
	m.listCalls++
	entered, release := m.entered, m.release
	m.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		<-release
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.subjects, nil
}

func (m *mockSource) MedicinesOf(_ context.Context, subjectID, _ string) ([]care.Medicine, error) {
	if err := m.errs[subjectID]; err != nil {
		return nil, err
	}
	return m.medicines[subjectID], nil
}

func (m *mockSource) RemindersOf(_ context.Context, subjectID string) ([]care.Reminder, error) {
	if err := m.errs[subjectID]; err != nil {
		return nil, err
	}
	return m.reminders[subjectID], nil
}

func (m *mockSource) LastActivityOf(_ context.Context, subjectID string) (time.Time, bool, error) {
	if err := m.errs[subjectID]; err != nil {
		return time.Time{}, false, err
	}
	last, ok := m.activity[subjectID]
	return last, ok, nil
}

func (m *mockSource) WellbeingHistoryOf(_ context.Context, subjectID, since string) ([]care.WellbeingEntry, error) {
	if err := m.errs[subjectID]; err != nil {
		return nil, err
	}
	var out []care.WellbeingEntry
	for _, e := range m.wellbeing[subjectID] {
		if e.Date >= since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockSource) RefillMetadataOf(_ context.Context, subjectID string) ([]care.Refill, error) {
	if err := m.errs[subjectID]; err != nil {
		return nil, err
	}
	return m.refills[subjectID], nil
}

func (m *mockSource) Subject(_ context.Context, subjectID string) (care.Subject, error) {
	for _, s := range m.subjects {
		if s.ID == subjectID {
			return s, nil
		}
	}
	return care.Subject{}, errors.New("subject not found")
}

func (m *mockSource) listCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// mockRecipients returns the subject for ScopeSubject and "<id>-family" for
// ScopeCaregivers.
type mockRecipients struct {
	mu     sync.Mutex
	err    error
	scopes []care.Scope
}

func (m *mockRecipients) RecipientsFor(_ context.Context, subjectID string, scope care.Scope) ([]string, error) {
	m.mu.Lock()
	m.scopes = append(m.scopes, scope)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	if scope.Includes(care.ScopeSubject) {
		ids = append(ids, subjectID)
	}
	if scope.Includes(care.ScopeCaregivers) {
		ids = append(ids, subjectID+"-family")
	}
	return ids, nil
}

type dispatched struct {
	payload    push.Payload
	recipients []string
}

// mockNotifier records dispatches. Recipients listed in failFor get a failed
// result.
type mockNotifier struct {
	disabled bool
	failFor  map[string]bool

	// When set, Dispatch signals entered and then waits for release. ctxErrs
	// records the dispatch context's error once released.
	entered chan struct{}
	release chan struct{}

	mu      sync.Mutex
	calls   []dispatched
	ctxErrs []error
}

func (m *mockNotifier) Enabled() bool { return !m.disabled }

func (m *mockNotifier) Dispatch(ctx context.Context, p push.Payload, recipients []string) push.Report {
	m.mu.Lock()
	m.calls = append(m.calls, dispatched{payload: p, recipients: recipients})
	entered, release := m.entered, m.release
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
		m.mu.Lock()
		m.ctxErrs = append(m.ctxErrs, ctx.Err())
		m.mu.Unlock()
	}

	report := push.Report{DispatchID: "d", Recipients: len(recipients)}
	for _, r := range recipients {
		res := push.Result{Recipient: r, Endpoint: "push.example.com", Reason: "sent"}
		if m.failFor[r] {
			res.Err = errors.New("push service responded 500")
			res.Reason = "rejected"
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (m *mockNotifier) dispatches() []dispatched {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatched(nil), m.calls...)
}

type harness struct {
	source     *mockSource
	recipients *mockRecipients
	notifier   *mockNotifier
	clock      *testClock
}

func newHarness(now time.Time, subjects ...care.Subject) *harness {
	return &harness{
		source: &mockSource{
			subjects:  subjects,
			medicines: map[string][]care.Medicine{},
			reminders: map[string][]care.Reminder{},
			activity:  map[string]time.Time{},
			wellbeing: map[string][]care.WellbeingEntry{},
			refills:   map[string][]care.Refill{},
			errs:      map[string]error{},
		},
		recipients: &mockRecipients{},
		notifier:   &mockNotifier{},
		clock:      newClock(now),
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Source:     h.source,
		Recipients: h.recipients,
		Notifier:   h.notifier,
		Logger:     discardLogger(),
	}
}

func (h *harness) engine(s Strategy, r dedup.Registry, interval time.Duration) *Engine {
	return NewEngine(s, r, h.deps(), Options{
		Interval: interval,
		Workers:  4,
		Location: time.UTC,
		Now:      h.clock.Now,
	})
}

// tickAndWait runs one tick and waits for the deliveries it started.
func tickAndWait(ctx context.Context, e *Engine) (TickResult, bool) {
	res, ok := e.Tick(ctx)
	e.Wait()
	return res, ok
}
