// Package push fans care notifications out to every registered device of
// every recipient.
//
// Delivery is best effort: each endpoint gets one attempt, failures are
// reported per endpoint and logged, and nothing is retried here. Endpoints are
// opaque descriptors issued by the browser; this package forwards them to the
// transport without inspecting them.
package push

import (
	"context"
	"errors"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultSendTimeout    = 15 * time.Second
	defaultResolveTimeout = 10 * time.Second
	defaultSendRate       = 50 // sends per second across all endpoints
	defaultTTLSeconds     = 60 * 60
)

// Notification type tags carried in Payload.Type.
const (
	TypeMedicine       = "medicine"
	TypeReminder       = "reminder"
	TypeWellbeingCheck = "wellbeing_check"
	TypeWellbeingAlert = "wellbeing"
	TypeInactive       = "inactive"
	TypeRefillReminder = "refill_reminder"
	TypeSOS            = "sos"
)

var (
	// ErrSubscriptionGone means the push service no longer knows the
	// endpoint (HTTP 404/410). The device unsubscribed or the browser
	// rotated it.
	ErrSubscriptionGone = errors.New("push subscription gone")

	// ErrNotConfigured is returned when no transport is available.
	ErrNotConfigured = errors.New("push not configured")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Keys is the key material of a browser push subscription.
type Keys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// Endpoint is one device's delivery descriptor, in the browser's
// PushSubscriptionJSON shape.
type Endpoint struct {
	URI  string `json:"endpoint" validate:"required,url"`
	Keys Keys   `json:"keys" validate:"required"`
}

// Payload is the message the service worker receives.
type Payload struct {
	Type  string            `json:"type"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   string            `json:"url"`
	Data  map[string]string `json:"data,omitempty"`
}

// Transport delivers one encoded payload to one endpoint.
type Transport interface {
	Send(ctx context.Context, ep Endpoint, payload []byte) error
}

// EndpointResolver returns a recipient's registered endpoints. Zero endpoints
// is a valid answer.
type EndpointResolver interface {
	EndpointsFor(ctx context.Context, userID string) ([]Endpoint, error)
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Recipient string
	Endpoint  string // host of the endpoint URI, safe to log
	Reason    string
	Err       error
	Duration  time.Duration
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Report aggregates the outcome of one Dispatch call.
type Report struct {
	DispatchID string
	Recipients int
	Results    []Result

	// ResolveErrors holds recipients whose endpoints could not be loaded.
	ResolveErrors map[string]error

	// Pruned counts gone endpoints removed from the subscription store.
	Pruned int
}

// Sent counts successful attempts.
func (r Report) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed counts failed attempts.
func (r Report) Failed() int {
	return len(r.Results) - r.Sent()
}

// Attempts counts endpoints a delivery was attempted for.
func (r Report) Attempts() int {
	return len(r.Results)
}
