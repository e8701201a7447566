package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockTransport struct {
	mu     sync.Mutex
	calls  []string
	bodies [][]byte
	errs   map[string]error
	sendFn func(ctx context.Context, ep Endpoint) error
}

func (m *mockTransport) Send(ctx context.Context, ep Endpoint, payload []byte) error {
	m.mu.Lock()
	m.calls = append(m.calls, ep.URI)
	m.bodies = append(m.bodies, payload)
	err := m.errs[ep.URI]
	fn := m.sendFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, ep)
	}
	return err
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockResolver struct {
	mu        sync.Mutex
	endpoints map[string][]Endpoint
	errs      map[string]error
	lookups   map[string]int
}

func (m *mockResolver) EndpointsFor(_ context.Context, userID string) ([]Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookups == nil {
		m.lookups = make(map[string]int)
	}
	m.lookups[userID]++
	if err := m.errs[userID]; err != nil {
		return nil, err
	}
	return m.endpoints[userID], nil
}

func ep(uri string) Endpoint {
	return Endpoint{URI: uri, Keys: Keys{P256dh: "p", Auth: "a"}}
}

var testPayload = Payload{Type: TypeMedicine, Title: "Medicine reminder", Body: "Time to take Aspirin – 1 pill", URL: "/"}

func TestDispatchIsolatesEndpointFailures(t *testing.T) {
	transport := &mockTransport{errs: map[string]error{
		"https://push.example.com/a2": &StatusError{Code: 500},
	}}
	resolver := &mockResolver{endpoints: map[string][]Endpoint{
		"alice": {ep("https://push.example.com/a1"), ep("https://push.example.com/a2"), ep("https://push.example.com/a3")},
		"bob":   {ep("https://push.example.com/b1")},
	}}
	d := NewDispatcher(transport, resolver, Options{}, discardLogger())

	report := d.Dispatch(context.Background(), testPayload, []string{"alice", "bob"})

	assert.NotEmpty(t, report.DispatchID)
	assert.Equal(t, 2, report.Recipients)
	assert.Equal(t, 4, report.Attempts())
	assert.Equal(t, 3, report.Sent())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 4, transport.callCount(), "every endpoint gets exactly one attempt")

	for _, res := range report.Results {
		assert.Equal(t, "push.example.com", res.Endpoint)
		if !res.OK() {
			assert.Equal(t, "alice", res.Recipient)
			assert.Equal(t, "rejected", res.Reason)
		}
	}
}

func TestDispatchEncodesPayloadOnce(t *testing.T) {
	transport := &mockTransport{}
	resolver := &mockResolver{endpoints: map[string][]Endpoint{
		"alice": {ep("https://push.example.com/a1"), ep("https://push.example.com/a2")},
	}}
	d := NewDispatcher(transport, resolver, Options{}, discardLogger())

	d.Dispatch(context.Background(), testPayload, []string{"alice"})

	require.Len(t, transport.bodies, 2)
	assert.JSONEq(t, `{"type":"medicine","title":"Medicine reminder","body":"Time to take Aspirin – 1 pill","url":"/"}`,
		string(transport.bodies[0]))
	assert.Equal(t, transport.bodies[0], transport.bodies[1])
}

func TestDispatchZeroEndpointsIsNotAnError(t *testing.T) {
	transport := &mockTransport{}
	resolver := &mockResolver{endpoints: map[string][]Endpoint{}}
	d := NewDispatcher(transport, resolver, Options{}, discardLogger())

	report := d.Dispatch(context.Background(), testPayload, []string{"alice"})

	assert.Equal(t, 1, report.Recipients)
	assert.Zero(t, report.Attempts())
	assert.Empty(t, report.ResolveErrors)
	assert.Zero(t, transport.callCount())
}

func TestDispatchIsolatesResolveFailures(t *testing.T) {
	transport := &mockTransport{}
	resolver := &mockResolver{
		endpoints: map[string][]Endpoint{"bob": {ep("https://push.example.com/b1")}},
		errs:      map[string]error{"alice": errors.New("connection reset")},
	}
	d := NewDispatcher(transport, resolver, Options{}, discardLogger())

	report := d.Dispatch(context.Background(), testPayload, []string{"alice", "bob"})

	require.Contains(t, report.ResolveErrors, "alice")
	assert.Equal(t, 1, report.Sent())
	assert.Equal(t, 0, report.Failed())
}

func TestDispatchDeduplicatesRecipients(t *testing.T) {
	transport := &mockTransport{}
	resolver := &mockResolver{endpoints: map[string][]Endpoint{
		"alice": {ep("https://push.example.com/a1")},
	}}
	d := NewDispatcher(transport, resolver, Options{}, discardLogger())

	report := d.Dispatch(context.Background(), testPayload, []string{"alice", "", "alice"})

	assert.Equal(t, 1, report.Recipients)
	assert.Equal(t, 1, resolver.lookups["alice"])
	assert.Equal(t, 1, transport.callCount())
}

func TestDispatchDisabled(t *testing.T) {
	resolver := &mockResolver{endpoints: map[string][]Endpoint{"alice": {ep("https://push.example.com/a1")}}}

	var nilDispatcher *Dispatcher
	assert.False(t, nilDispatcher.Enabled())

	d := NewDispatcher(nil, resolver, Options{}, discardLogger())
	assert.False(t, d.Enabled())

	report := d.Dispatch(context.Background(), testPayload, []string{"alice"})
	assert.Zero(t, report.Attempts())
	assert.Empty(t, resolver.lookups, "disabled dispatcher never touches the resolver")
}

func TestDispatchBoundsEachSend(t *testing.T) {
	transport := &mockTransport{sendFn: func(ctx context.Context, ep Endpoint) error {
		if ep.URI == "https://slow.example.com/1" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}}
	resolver := &mockResolver{endpoints: map[string][]Endpoint{
		"alice": {ep("https://slow.example.com/1"), ep("https://push.example.com/2")},
	}}
	d := NewDispatcher(transport, resolver, Options{SendTimeout: 20 * time.Millisecond}, discardLogger())

	start := time.Now()
	report := d.Dispatch(context.Background(), testPayload, []string{"alice"})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, report.Sent())
	require.Equal(t, 1, report.Failed())
	for _, res := range report.Results {
		if !res.OK() {
			assert.Equal(t, "slow.example.com", res.Endpoint)
			assert.Equal(t, "timeout", res.Reason)
		}
	}
}

func TestDispatchRateWaitPastDeadlineIsTimeout(t *testing.T) {
	transport := &mockTransport{}
	resolver := &mockResolver{endpoints: map[string][]Endpoint{
		"alice": {ep("https://push.example.com/1"), ep("https://push.example.com/2")},
	}}
	// One token per second, but each send may only wait 50ms for it.
	d := NewDispatcher(transport, resolver, Options{SendRate: 1, SendTimeout: 50 * time.Millisecond}, discardLogger())

	report := d.Dispatch(context.Background(), testPayload, []string{"alice"})

	assert.Equal(t, 1, report.Sent())
	require.Equal(t, 1, report.Failed())
	for _, res := range report.Results {
		if !res.OK() {
			assert.Equal(t, "timeout", res.Reason)
			assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
		}
	}
	assert.Equal(t, 1, transport.callCount())
}

func TestDispatchRecoversTransportPanic(t *testing.T) {
	transport := &mockTransport{sendFn: func(context.Context, Endpoint) error {
		panic("boom")
	}}
	resolver := &mockResolver{endpoints: map[string][]Endpoint{
		"alice": {ep("https://push.example.com/a1")},
	}}
	d := NewDispatcher(transport, resolver, Options{}, discardLogger())

	report := d.Dispatch(context.Background(), testPayload, []string{"alice"})

	require.Len(t, report.Results, 1)
	assert.Error(t, report.Results[0].Err)
	assert.Equal(t, "error", report.Results[0].Reason)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "sent"},
		{fmt.Errorf("%w (status 410)", ErrSubscriptionGone), "gone"},
		{gobreaker.ErrOpenState, "circuit_open"},
		{gobreaker.ErrTooManyRequests, "circuit_open"},
		{fmt.Errorf("send web push: %w", context.DeadlineExceeded), "timeout"},
		{context.Canceled, "canceled"},
		{&StatusError{Code: 413}, "rejected"},
		{errors.New("dial tcp: refused"), "error"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestEndpointHost(t *testing.T) {
	assert.Equal(t, "fcm.googleapis.com", endpointHost("https://fcm.googleapis.com/fcm/send/abc"))
	assert.Equal(t, "unknown", endpointHost("not a url"))
	assert.Equal(t, "unknown", endpointHost(""))
}

type mockPruner struct {
	mu      sync.Mutex
	deleted []string
}

func (m *mockPruner) DeleteSubscription(_ context.Context, userID, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, userID+" "+endpoint)
	return nil
}

func TestDispatchPrunesGoneEndpoints(t *testing.T) {
	transport := &mockTransport{errs: map[string]error{
		"https://push.example.com/old": fmt.Errorf("%w (status 410)", ErrSubscriptionGone),
		"https://push.example.com/500": &StatusError{Code: 500},
	}}
	resolver := &mockResolver{endpoints: map[string][]Endpoint{
		"alice": {ep("https://push.example.com/old"), ep("https://push.example.com/new"), ep("https://push.example.com/500")},
	}}
	pruner := &mockPruner{}
	d := NewDispatcher(transport, resolver, Options{Pruner: pruner}, discardLogger())

	report := d.Dispatch(context.Background(), testPayload, []string{"alice"})

	assert.Equal(t, 1, report.Pruned)
	assert.Equal(t, []string{"alice https://push.example.com/old"}, pruner.deleted)
	assert.Equal(t, 2, report.Failed())
}
