package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sony/gobreaker/v2"
)

// WebPushConfig holds VAPID credentials and delivery settings.
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string // "mailto:" or "https:" contact for the push service
	TTLSeconds int
	HTTPClient *http.Client
}

// StatusError is a non-success response from a push service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service responded %d", e.Code)
	}
	return fmt.Sprintf("push service responded %d: %s", e.Code, e.Body)
}

// WebPushSender delivers payloads over the Web Push protocol with VAPID
// authentication. Each push service host gets its own circuit breaker so an
// outage at one vendor does not block devices served by another.
// Nil-safe: a nil sender reports ErrNotConfigured.
type WebPushSender struct {
	options webpush.Options
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

// NewWebPushSender returns nil when either VAPID key is missing, which
// disables push delivery for the whole process.
func NewWebPushSender(cfg WebPushConfig, logger *slog.Logger) *WebPushSender {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil
	}
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = defaultTTLSeconds
	}
	opts := webpush.Options{
		Subscriber:      cfg.Subject,
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		TTL:             cfg.TTLSeconds,
		Urgency:         webpush.UrgencyHigh,
	}
	if cfg.HTTPClient != nil {
		opts.HTTPClient = cfg.HTTPClient
	}
	return &WebPushSender{
		options:  opts,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

// Send encrypts payload for ep and posts it to the push service.
func (s *WebPushSender) Send(ctx context.Context, ep Endpoint, payload []byte) error {
	if s == nil {
		return ErrNotConfigured
	}

	sub := &webpush.Subscription{
		Endpoint: ep.URI,
		Keys: webpush.Keys{
			P256dh: ep.Keys.P256dh,
			Auth:   ep.Keys.Auth,
		},
	}
	opts := s.options

	_, err := s.breaker(endpointHost(ep.URI)).Execute(func() (int, error) {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &opts)
		if err != nil {
			return 0, fmt.Errorf("send web push: %w", err)
		}
		defer resp.Body.Close()

		switch code := resp.StatusCode; {
		case code >= 200 && code < 300:
			_, _ = io.Copy(io.Discard, resp.Body)
			return code, nil
		case code == http.StatusNotFound || code == http.StatusGone:
			_, _ = io.Copy(io.Discard, resp.Body)
			return code, fmt.Errorf("%w (status %d)", ErrSubscriptionGone, code)
		default:
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return code, &StatusError{Code: code, Body: strings.TrimSpace(string(snippet))}
		}
	})
	return err
}

func (s *WebPushSender) breaker(host string) *gobreaker.CircuitBreaker[int] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "webpush:" + host,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("push circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	s.breakers[host] = cb
	return cb
}

// breakerSuccess treats per-subscription problems as healthy service
// responses: a gone endpoint or a rejected payload says nothing about the
// push service being down.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrSubscriptionGone) || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code < 500 && statusErr.Code != http.StatusTooManyRequests
	}
	return false
}

// GenerateVAPIDKeys creates a new VAPID key pair, base64url encoded.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
