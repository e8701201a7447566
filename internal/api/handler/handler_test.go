package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/scheduler"
	"github.com/albapepper/carebeat/internal/store"
)

// ---- Fakes ----

type fakeStore struct {
	mu        sync.Mutex
	pingErr   error
	writeErr  error
	touched   map[string]time.Time
	wellbeing map[string]string // userID|day -> value
	medicines map[string]string // medicineID -> name
	intakes   []string          // userID|medicineID|day
	sos       []care.SOSAlert
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		touched:   map[string]time.Time{},
		wellbeing: map[string]string{},
		medicines: map[string]string{"m1": "Aspirin"},
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) TouchActivity(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.touched[userID] = at
	return nil
}

func (f *fakeStore) RecordWellbeing(_ context.Context, userID, day, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.wellbeing[userID+"|"+day] = value
	return nil
}

func (f *fakeStore) RecordIntake(_ context.Context, elderID, medicineID, day string, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	name, ok := f.medicines[medicineID]
	if !ok {
		return "", fmt.Errorf("medicine %s: %w", medicineID, store.ErrNotFound)
	}
	f.intakes = append(f.intakes, elderID+"|"+medicineID+"|"+day)
	return name, nil
}

func (f *fakeStore) RecordSOS(_ context.Context, _ string, lat, lng *float64, at time.Time) (care.SOSAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return care.SOSAlert{}, f.writeErr
	}
	alert := care.SOSAlert{ID: fmt.Sprintf("sos-%d", len(f.sos)+1), Time: at, Lat: lat, Lng: lng}
	f.sos = append(f.sos, alert)
	return alert, nil
}

type fakeAlerts struct {
	taken []string
	sos   []care.SOSAlert
	err   error
}

func (f *fakeAlerts) MedicineTaken(_ context.Context, subjectID, medicineID, name string) (push.Report, error) {
	f.taken = append(f.taken, subjectID+"|"+medicineID+"|"+name)
	return twoSent(), f.err
}

func (f *fakeAlerts) SOS(_ context.Context, _ string, alert care.SOSAlert) (push.Report, error) {
	f.sos = append(f.sos, alert)
	if f.err != nil {
		return push.Report{}, f.err
	}
	return twoSent(), nil
}

func twoSent() push.Report {
	return push.Report{Results: []push.Result{{Recipient: "f1", Reason: "sent"}, {Recipient: "f2", Reason: "sent"}}}
}

type fakeSubscriptions struct {
	saved map[string][]push.Endpoint
	err   error
}

func (f *fakeSubscriptions) SaveSubscription(_ context.Context, userID string, ep push.Endpoint) error {
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = map[string][]push.Endpoint{}
	}
	f.saved[userID] = append(f.saved[userID], ep)
	return nil
}

type fakeEscalator struct {
	calls []string
	res   scheduler.EscalationResult
	err   error
}

func (f *fakeEscalator) Check(_ context.Context, subjectID string) (scheduler.EscalationResult, error) {
	f.calls = append(f.calls, subjectID)
	return f.res, f.err
}

// emptySource has no elders; ticks over it complete with zero subjects.
type emptySource struct{}

func (emptySource) ListSubjects(context.Context) ([]care.Subject, error) { return nil, nil }
func (emptySource) MedicinesOf(context.Context, string, string) ([]care.Medicine, error) {
	return nil, nil
}
func (emptySource) RemindersOf(context.Context, string) ([]care.Reminder, error) { return nil, nil }
func (emptySource) LastActivityOf(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (emptySource) WellbeingHistoryOf(context.Context, string, string) ([]care.WellbeingEntry, error) {
	return nil, nil
}
func (emptySource) RefillMetadataOf(context.Context, string) ([]care.Refill, error) { return nil, nil }

type noRecipients struct{}

func (noRecipients) RecipientsFor(context.Context, string, care.Scope) ([]string, error) {
	return nil, nil
}

type enabledNotifier struct{}

func (enabledNotifier) Enabled() bool { return true }
func (enabledNotifier) Dispatch(context.Context, push.Payload, []string) push.Report {
	return push.Report{}
}

// ---- Harness ----

var fixedNow = time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)

type harness struct {
	store  *fakeStore
	subs   *fakeSubscriptions
	esc    *fakeEscalator
	alerts *fakeAlerts
	set    *scheduler.Set
	router chi.Router
}

func newHarness(t *testing.T, publicKey string) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := scheduler.NewSet(scheduler.Deps{
		Source:     emptySource{},
		Recipients: noRecipients{},
		Notifier:   enabledNotifier{},
		Logger:     logger,
	}, scheduler.Config{Location: time.UTC, Now: func() time.Time { return fixedNow }})

	hs := &harness{
		store:  newFakeStore(),
		subs:   &fakeSubscriptions{},
		esc:    &fakeEscalator{},
		alerts: &fakeAlerts{},
		set:    set,
	}
	h := New(Deps{
		Store:          hs.store,
		Subscriptions:  hs.subs,
		Escalator:      hs.esc,
		Alerts:         hs.alerts,
		Schedulers:     set,
		VAPIDPublicKey: publicKey,
		// UTC+10 is already on 2025-03-11 at fixedNow.
		Location: time.FixedZone("AEST", 10*3600),
		Now:      func() time.Time { return fixedNow },
		Logger:   logger,
	})

	r := chi.NewRouter()
	r.Get("/health/db", h.HealthCheckDB)
	r.Get("/health/schedulers", h.HealthCheckSchedulers)
	r.Get("/push/vapid-public-key", h.GetVAPIDPublicKey)
	r.With(RequireRole(care.RoleElderly, care.RoleFamily)).Post("/push/subscribe", h.Subscribe)
	r.With(RequireRole(care.RoleElderly)).Post("/activity/heartbeat", h.Heartbeat)
	r.With(RequireRole(care.RoleElderly)).Post("/wellbeing/check", h.RecordWellbeing)
	r.With(RequireRole(care.RoleElderly)).Post("/medicines/{id}/taken", h.MarkMedicineTaken)
	r.With(RequireRole(care.RoleElderly)).Post("/sos", h.SendSOS)
	r.Get("/schedulers", h.ListSchedulers)
	r.Post("/schedulers/{name}/tick", h.TickScheduler)
	hs.router = r
	return hs
}

func (hs *harness) do(method, path, userID, role, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	hs.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

const validSubscription = `{"subscription":{"endpoint":"https://fcm.googleapis.com/fcm/send/abc","keys":{"p256dh":"BNc","auth":"tBH"}}}`

// ---- Push ----

func TestVAPIDPublicKey(t *testing.T) {
	hs := newHarness(t, "BPublicKey")
	rec := hs.do(http.MethodGet, "/push/vapid-public-key", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"publicKey":"BPublicKey"}`, rec.Body.String())
}

func TestVAPIDPublicKeyNotConfigured(t *testing.T) {
	hs := newHarness(t, "")
	rec := hs.do(http.MethodGet, "/push/vapid-public-key", "", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PUSH_NOT_CONFIGURED", errorCode(t, rec))
}

func TestSubscribe(t *testing.T) {
	for _, role := range []string{care.RoleElderly, care.RoleFamily} {
		role := role
		t.Run(role, func(t *testing.T) {
			hs := newHarness(t, "k")
			rec := hs.do(http.MethodPost, "/push/subscribe", "u1", role, validSubscription)

			require.Equal(t, http.StatusCreated, rec.Code)
			assert.JSONEq(t, `{"message":"Notifications enabled."}`, rec.Body.String())
			require.Len(t, hs.subs.saved["u1"], 1)
			assert.Equal(t, "https://fcm.googleapis.com/fcm/send/abc", hs.subs.saved["u1"][0].URI)
			assert.Equal(t, "tBH", hs.subs.saved["u1"][0].Keys.Auth)
		})
	}
}

func TestSubscribeRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		role   string
		body   string
		status int
		code   string
	}{
		{"no identity", "", "", validSubscription, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"wrong role", "u1", "admin", validSubscription, http.StatusForbidden, "FORBIDDEN"},
		{"not json", "u1", care.RoleFamily, "{", http.StatusBadRequest, "INVALID_BODY"},
		{"missing subscription", "u1", care.RoleFamily, `{}`, http.StatusBadRequest, "INVALID_SUBSCRIPTION"},
		{"missing endpoint", "u1", care.RoleFamily,
			`{"subscription":{"keys":{"p256dh":"a","auth":"b"}}}`, http.StatusBadRequest, "INVALID_SUBSCRIPTION"},
		{"missing keys", "u1", care.RoleFamily,
			`{"subscription":{"endpoint":"https://push.example.com/1"}}`, http.StatusBadRequest, "INVALID_SUBSCRIPTION"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, "k")
			rec := hs.do(http.MethodPost, "/push/subscribe", tt.userID, tt.role, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
			assert.Empty(t, hs.subs.saved)
		})
	}
}

func TestSubscribeStoreFailure(t *testing.T) {
	hs := newHarness(t, "k")
	hs.subs.err = errors.New("db down")
	rec := hs.do(http.MethodPost, "/push/subscribe", "u1", care.RoleFamily, validSubscription)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ---- Activity and wellbeing ----

func TestHeartbeat(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/activity/heartbeat", "elder-1", care.RoleElderly, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.True(t, hs.store.touched["elder-1"].Equal(fixedNow))
}

func TestHeartbeatElderOnly(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/activity/heartbeat", "fam-1", care.RoleFamily, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, hs.store.touched)
}

func TestRecordWellbeingUsesLocalDay(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/wellbeing/check", "elder-1", care.RoleElderly, `{"value":"okay"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"date":"2025-03-11","value":"okay","escalated":false}`, rec.Body.String())
	assert.Equal(t, "okay", hs.store.wellbeing["elder-1|2025-03-11"])
	assert.Contains(t, hs.store.touched, "elder-1")
	assert.Equal(t, []string{"elder-1"}, hs.esc.calls)
}

func TestRecordWellbeingEscalates(t *testing.T) {
	hs := newHarness(t, "k")
	hs.esc.res = scheduler.EscalationResult{NotWell: 3, Fired: true}
	rec := hs.do(http.MethodPost, "/wellbeing/check", "elder-1", care.RoleElderly, `{"value":" Not_Well "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"date":"2025-03-11","value":"not_well","escalated":true}`, rec.Body.String())
}

func TestRecordWellbeingEscalationFailureStillSucceeds(t *testing.T) {
	hs := newHarness(t, "k")
	hs.esc.err = errors.New("resolver down")
	rec := hs.do(http.MethodPost, "/wellbeing/check", "elder-1", care.RoleElderly, `{"value":"not_well"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not_well", hs.store.wellbeing["elder-1|2025-03-11"])
}

func TestRecordWellbeingRejectsUnknownValue(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/wellbeing/check", "elder-1", care.RoleElderly, `{"value":"great"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_VALUE", errorCode(t, rec))
	assert.Empty(t, hs.store.wellbeing)
	assert.Empty(t, hs.esc.calls)
}

func TestRecordWellbeingStoreFailure(t *testing.T) {
	hs := newHarness(t, "k")
	hs.store.writeErr = errors.New("db down")
	rec := hs.do(http.MethodPost, "/wellbeing/check", "elder-1", care.RoleElderly, `{"value":"good"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, hs.esc.calls)
}

// ---- Health and schedulers ----

func TestHealthCheckDB(t *testing.T) {
	hs := newHarness(t, "k")
	assert.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/health/db", "", "", "").Code)

	hs.store.pingErr = errors.New("refused")
	assert.Equal(t, http.StatusServiceUnavailable, hs.do(http.MethodGet, "/health/db", "", "", "").Code)
}

func TestListSchedulers(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodGet, "/schedulers", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []SchedulerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 5)
	assert.Equal(t, scheduler.NameMedicine, got[0].Name)
	assert.Equal(t, "1m0s", got[0].Interval)
	assert.Equal(t, "idle", got[0].State)
	assert.Nil(t, got[0].LastTick)
	assert.Equal(t, "24h0m0s", got[4].Interval)
}

func TestTickScheduler(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/schedulers/"+scheduler.NameMedicine+"/tick", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got TickStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Zero(t, got.Subjects)
	assert.Empty(t, got.Error)

	e, _ := hs.set.Engine(scheduler.NameMedicine)
	_, ok := e.LastResult()
	assert.True(t, ok)
}

func TestTickSchedulerUnknown(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/schedulers/nope/tick", "", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTickSchedulerStopped(t *testing.T) {
	hs := newHarness(t, "k")
	e, _ := hs.set.Engine(scheduler.NameRefill)
	e.Stop()

	rec := hs.do(http.MethodPost, "/schedulers/"+scheduler.NameRefill+"/tick", "", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	health := hs.do(http.MethodGet, "/health/schedulers", "", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, health.Code)
}

func TestTickSchedulerOutlivesClientHangup(t *testing.T) {
	src := &ctxRecordingSource{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := scheduler.NewSet(scheduler.Deps{
		Source:     src,
		Recipients: noRecipients{},
		Notifier:   enabledNotifier{},
		Logger:     logger,
	}, scheduler.Config{Location: time.UTC, Now: func() time.Time { return fixedNow }})
	h := New(Deps{Schedulers: set, Logger: logger})
	r := chi.NewRouter()
	r.Post("/schedulers/{name}/tick", h.TickScheduler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/schedulers/"+scheduler.NameRefill+"/tick", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, src.listed)
	assert.NoError(t, src.ctxErr, "the tick runs on a context the client cannot cancel")
}

// ctxRecordingSource records the context state ListSubjects was called with.
type ctxRecordingSource struct {
	emptySource
	listed bool
	ctxErr error
}

func (s *ctxRecordingSource) ListSubjects(ctx context.Context) ([]care.Subject, error) {
	s.listed = true
	s.ctxErr = ctx.Err()
	return nil, nil
}

// ---- Medicine intake and SOS ----

func TestMarkMedicineTaken(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/medicines/m1/taken", "elder-1", care.RoleElderly, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Marked as taken.","date":"2025-03-11","notified":2}`, rec.Body.String())
	assert.Equal(t, []string{"elder-1|m1|2025-03-11"}, hs.store.intakes, "intake is logged on the local day")
	assert.Equal(t, []string{"elder-1|m1|Aspirin"}, hs.alerts.taken)
}

func TestMarkMedicineTakenErrors(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/medicines/nope/taken", "elder-1", care.RoleElderly, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MEDICINE_NOT_FOUND", errorCode(t, rec))
	assert.Empty(t, hs.alerts.taken)

	rec = hs.do(http.MethodPost, "/medicines/m1/taken", "fam-1", care.RoleFamily, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	hs.store.writeErr = errors.New("disk full")
	rec = hs.do(http.MethodPost, "/medicines/m1/taken", "elder-1", care.RoleElderly, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTAKE_FAILED", errorCode(t, rec))
}

func TestMarkMedicineTakenAlertFailureStillSucceeds(t *testing.T) {
	hs := newHarness(t, "k")
	hs.alerts.err = errors.New("caregiver lookup failed")

	rec := hs.do(http.MethodPost, "/medicines/m1/taken", "elder-1", care.RoleElderly, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, hs.store.intakes, 1)
}

func TestSendSOS(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/sos", "elder-1", care.RoleElderly, `{"lat":38.72,"lng":-9.14}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got SOSResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sos-1", got.AlertID)
	assert.Equal(t, 2, got.Notified)

	require.Len(t, hs.alerts.sos, 1)
	alert := hs.alerts.sos[0]
	require.True(t, alert.HasLocation())
	assert.Equal(t, 38.72, *alert.Lat)
	assert.Equal(t, fixedNow, alert.Time)
	assert.Equal(t, fixedNow, hs.store.touched["elder-1"], "an SOS counts as activity")
}

func TestSendSOSWithoutBody(t *testing.T) {
	hs := newHarness(t, "k")
	rec := hs.do(http.MethodPost, "/sos", "elder-1", care.RoleElderly, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, hs.alerts.sos, 1)
	assert.False(t, hs.alerts.sos[0].HasLocation())
}

func TestSendSOSRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		body   string
		status int
		code   string
	}{
		{"family cannot raise", care.RoleFamily, "", http.StatusForbidden, "FORBIDDEN"},
		{"not json", care.RoleElderly, "{", http.StatusBadRequest, "INVALID_BODY"},
		{"latitude out of range", care.RoleElderly, `{"lat":91,"lng":0}`, http.StatusBadRequest, "INVALID_LOCATION"},
		{"longitude out of range", care.RoleElderly, `{"lat":0,"lng":181}`, http.StatusBadRequest, "INVALID_LOCATION"},
		{"half a position", care.RoleElderly, `{"lat":10}`, http.StatusBadRequest, "INVALID_LOCATION"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, "k")
			rec := hs.do(http.MethodPost, "/sos", "u1", tt.role, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
			assert.Empty(t, hs.store.sos)
		})
	}
}

func TestSendSOSStoreFailure(t *testing.T) {
	hs := newHarness(t, "k")
	hs.store.writeErr = errors.New("disk full")

	rec := hs.do(http.MethodPost, "/sos", "elder-1", care.RoleElderly, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "SOS_FAILED", errorCode(t, rec))
	assert.Empty(t, hs.alerts.sos)
}
