package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Options tunes a Dispatcher. Zero values fall back to defaults.
type Options struct {
	SendTimeout    time.Duration
	ResolveTimeout time.Duration
	SendRate       float64 // sends per second, shared by all endpoints

	// Pruner, when set, forgets endpoints the push service reports gone.
	Pruner Pruner
}

// Pruner removes a recipient's dead endpoint.
type Pruner interface {
	DeleteSubscription(ctx context.Context, userID, endpoint string) error
}

// Dispatcher resolves recipients to endpoints and sends one attempt to each.
// A nil Dispatcher, or one built without a transport, is disabled.
type Dispatcher struct {
	transport Transport
	endpoints EndpointResolver
	limiter   *rate.Limiter
	opts      Options
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass a nil transport to build a
// disabled dispatcher; callers check Enabled before doing any work.
func NewDispatcher(transport Transport, endpoints EndpointResolver, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	if opts.SendRate <= 0 {
		opts.SendRate = defaultSendRate
	}
	burst := max(int(opts.SendRate), 1)

	return &Dispatcher{
		transport: transport,
		endpoints: endpoints,
		limiter:   rate.NewLimiter(rate.Limit(opts.SendRate), burst),
		opts:      opts,
		logger:    logger,
	}
}

// Enabled reports whether dispatching will attempt any delivery.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.transport != nil
}

// target is one (recipient, endpoint) pair.
type target struct {
	recipient string
	endpoint  Endpoint
}

// Dispatch delivers p to every endpoint of every recipient. Sends run
// concurrently; Dispatch returns once every attempt has finished or timed
// out. A failure for one endpoint or recipient never affects the others.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload, recipients []string) Report {
	report := Report{DispatchID: uuid.NewString()}
	if !d.Enabled() {
		return report
	}

	body, err := json.Marshal(p)
	if err != nil {
		d.logger.Error("encode push payload", "type", p.Type, "error", err)
		return report
	}

	recipients = uniqueNonEmpty(recipients)
	report.Recipients = len(recipients)
	targets := d.resolve(ctx, recipients, &report)

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		i, t := i, t
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.send(ctx, t, body)
		}()
	}
	wg.Wait()
	report.Results = results
	d.prune(ctx, targets, &report)
	observeReport(p.Type, report)

	if len(results) > 0 || len(report.ResolveErrors) > 0 {
		d.logger.Info("push dispatched",
			"dispatch_id", report.DispatchID,
			"type", p.Type,
			"recipients", report.Recipients,
			"sent", report.Sent(),
			"failed", report.Failed(),
			"pruned", report.Pruned,
			"resolve_errors", len(report.ResolveErrors))
	}
	return report
}

func (d *Dispatcher) prune(ctx context.Context, targets []target, report *Report) {
	if d.opts.Pruner == nil {
		return
	}
	for i, res := range report.Results {
		if res.Reason != "gone" {
			continue
		}
		err := d.opts.Pruner.DeleteSubscription(ctx, res.Recipient, targets[i].endpoint.URI)
		if err != nil {
			d.logger.Warn("prune push subscription failed",
				"recipient", res.Recipient, "endpoint_host", res.Endpoint, "error", err)
			continue
		}
		report.Pruned++
	}
}

func (d *Dispatcher) resolve(ctx context.Context, recipients []string, report *Report) []target {
	var targets []target
	for _, userID := range recipients {
		rctx, cancel := context.WithTimeout(ctx, d.opts.ResolveTimeout)
		eps, err := d.endpoints.EndpointsFor(rctx, userID)
		cancel()
		if err != nil {
			if report.ResolveErrors == nil {
				report.ResolveErrors = make(map[string]error)
			}
			report.ResolveErrors[userID] = err
			d.logger.Warn("resolve push endpoints failed",
				"dispatch_id", report.DispatchID, "recipient", userID, "error", err)
			continue
		}
		for _, ep := range eps {
			targets = append(targets, target{recipient: userID, endpoint: ep})
		}
	}
	return targets
}

func (d *Dispatcher) send(ctx context.Context, t target, body []byte) (res Result) {
	start := time.Now()
	res = Result{Recipient: t.recipient, Endpoint: endpointHost(t.endpoint.URI)}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("transport panic: %v", r)
			res.Reason = "error"
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			d.logger.Warn("push delivery failed",
				"recipient", res.Recipient,
				"endpoint_host", res.Endpoint,
				"reason", res.Reason,
				"error", res.Err)
		}
	}()

	sctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	err := d.limiter.Wait(sctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		// Wait refuses up front when the next token lands past the deadline.
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	if err == nil {
		err = d.transport.Send(sctx, t.endpoint, body)
	}
	res.Err = err
	res.Reason = classify(err)
	return res
}

// classify maps a delivery error to a short, stable reason for logs.
func classify(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, ErrSubscriptionGone):
		return "gone"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &statusErr):
		return "rejected"
	}
	return "error"
}

func endpointHost(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
