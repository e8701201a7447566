package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/dedup"
	"github.com/albapepper/carebeat/internal/timematch"
)

const (
	defaultWorkers     = 8
	defaultDeliveries  = 64
	defaultCallTimeout = 30 * time.Second
)

// State is the lifecycle state of an Engine.
type State int32

const (
	StateIdle State = iota
	StateTicking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTicking:
		return "ticking"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Deps are the collaborators an Engine calls on every tick.
type Deps struct {
	Source     EventSource
	Recipients RecipientResolver
	Notifier   Notifier
	Logger     *slog.Logger
}

// Options tunes an Engine. Zero values fall back to defaults, except
// Interval which must be positive.
type Options struct {
	Interval    time.Duration
	Workers     int            // subjects evaluated concurrently
	Deliveries  int            // dispatches in flight across ticks
	CallTimeout time.Duration  // bound on every source/resolver call
	Location    *time.Location // zone used for all calendar decisions
	Now         func() time.Time
}

// TickResult summarises one tick.
type TickResult struct {
	Scheduler string
	StartedAt time.Time
	Duration  time.Duration

	// Skipped is set when the tick did no work: "push_disabled" or
	// "gate_closed".
	Skipped string
	// Err is the subject listing failure, if any.
	Err error

	Subjects        int
	Due             int
	Fired           int
	Duplicates      int
	SubjectErrors   int
	RecipientErrors int
}

// LogAttrs returns the result as slog key/value pairs.
func (r TickResult) LogAttrs() []any {
	return []any{
		"subjects", r.Subjects,
		"due", r.Due,
		"fired", r.Fired,
		"duplicates", r.Duplicates,
		"subject_errors", r.SubjectErrors,
		"recipient_errors", r.RecipientErrors,
		"duration", r.Duration,
	}
}

// Engine runs one Strategy on a fixed interval.
type Engine struct {
	strategy Strategy
	registry dedup.Registry
	deps     Deps
	opts     Options
	logger   *slog.Logger

	ticking atomic.Bool

	// slots bounds in-flight deliveries; inflight counts running ticks and
	// deliveries so Stop and Wait can drain them.
	slots    chan struct{}
	inflight sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	last    *TickResult

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewEngine wires a strategy to its dedup registry and collaborators.
func NewEngine(strategy Strategy, registry dedup.Registry, deps Deps, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Deliveries <= 0 {
		opts.Deliveries = defaultDeliveries
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
	return &Engine{
		strategy: strategy,
		registry: registry,
		deps:     deps,
		opts:     opts,
		logger:   logger.With("scheduler", strategy.Name()),
		slots:    make(chan struct{}, opts.Deliveries),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (e *Engine) Name() string            { return e.strategy.Name() }
func (e *Engine) Interval() time.Duration { return e.opts.Interval }

// State reports the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	switch {
	case e.ticking.Load():
		return StateTicking
	case stopped:
		return StateStopped
	}
	return StateIdle
}

// LastResult returns the most recent completed tick.
func (e *Engine) LastResult() (TickResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return TickResult{}, false
	}
	return *e.last, true
}

// Start launches the tick loop in its own goroutine. The first tick runs
// immediately. Start is a no-op on a started or stopped engine.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	go e.run(ctx)
}

// Stop ends the tick loop and waits for an in-progress tick and its
// deliveries to finish. Neither is interrupted.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	started := e.started
	e.mu.Unlock()

	e.stopOnce.Do(func() { close(e.stopCh) })
	if started {
		<-e.done
	}
	e.inflight.Wait()
}

// Wait blocks until every tick and delivery started so far has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	e.logger.Info("Scheduler started", "interval", e.opts.Interval)
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	// Cancelling ctx ends the loop; it never reaches a tick already running.
	tctx := context.WithoutCancel(ctx)

	e.Tick(tctx)
	for {
		select {
		case <-ticker.C:
			select {
			case <-e.stopCh:
				e.logger.Info("Scheduler stopped")
				return
			default:
			}
			e.Tick(tctx)
		case <-e.stopCh:
			e.logger.Info("Scheduler stopped")
			return
		case <-ctx.Done():
			e.mu.Lock()
			e.stopped = true
			e.mu.Unlock()
			e.logger.Info("Scheduler stopped", "reason", ctx.Err())
			return
		}
	}
}

// Tick runs one evaluation pass now. Deliveries of fired events continue in
// the background after Tick returns. It returns false without doing anything
// when another tick of this engine is still running or the engine is stopped.
func (e *Engine) Tick(ctx context.Context) (TickResult, bool) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return TickResult{}, false
	}
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()

	if !e.ticking.CompareAndSwap(false, true) {
		e.logger.Warn("Tick skipped, previous tick still running")
		return TickResult{}, false
	}
	defer e.ticking.Store(false)

	res := e.tick(ctx)
	observeTick(res)

	e.mu.Lock()
	e.last = &res
	e.mu.Unlock()
	return res, true
}

func (e *Engine) tick(ctx context.Context) (res TickResult) {
	now := e.opts.Now().In(e.opts.Location)
	res = TickResult{Scheduler: e.strategy.Name(), StartedAt: now}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if !e.deps.Notifier.Enabled() {
		res.Skipped = "push_disabled"
		return res
	}
	if g, ok := e.strategy.(Gate); ok && !g.Open(now) {
		res.Skipped = "gate_closed"
		return res
	}
	if r, ok := e.registry.(interface{ ResetIfPeriodChanged(string) }); ok {
		r.ResetIfPeriodChanged(timematch.MinuteKey(now))
	}

	lctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	subjects, err := e.deps.Source.ListSubjects(lctx)
	cancel()
	if err != nil {
		e.logger.Error("list subjects failed", "error", err)
		res.Err = err
		return res
	}
	res.Subjects = len(subjects)

	var t tally
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for _, subject := range subjects {
		subject := subject
		g.Go(func() error {
			e.processSubject(ctx, subject, now, &t)
			return nil
		})
	}
	_ = g.Wait()

	t.fill(&res)
	res.Duration = time.Since(start)
	if res.Fired > 0 || res.SubjectErrors > 0 || res.RecipientErrors > 0 {
		e.logger.Info("tick complete", res.LogAttrs()...)
	} else {
		e.logger.Debug("tick complete", res.LogAttrs()...)
	}
	return res
}

func (e *Engine) processSubject(ctx context.Context, subject care.Subject, now time.Time, t *tally) {
	defer func() {
		if r := recover(); r != nil {
			t.subjectErrors.Add(1)
			e.logger.Error("subject evaluation panicked", "subject_id", subject.ID, "panic", r)
		}
	}()

	ectx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	due, err := e.strategy.Evaluate(ectx, subject, now)
	cancel()
	if err != nil {
		t.subjectErrors.Add(1)
		e.logger.Warn("evaluate subject failed", "subject_id", subject.ID, "error", err)
		return
	}

	for _, occ := range due {
		t.due.Add(1)
		key := dedup.Key{
			Scheduler: e.strategy.Name(),
			Subject:   subject.ID,
			Record:    occ.RecordID,
			Period:    occ.Period,
		}
		if !e.registry.Claim(key) {
			t.duplicates.Add(1)
			continue
		}
		t.fired.Add(1)
		e.fire(ctx, subject, occ, t)
	}
}

// fire resolves recipients for a claimed occurrence and hands the dispatch to
// the delivery pool. The claim stands whatever happens here: a failed
// resolution or delivery is not retried within the period.
func (e *Engine) fire(ctx context.Context, subject care.Subject, occ Occurrence, t *tally) {
	rctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	recipients, err := e.deps.Recipients.RecipientsFor(rctx, subject.ID, e.strategy.Scope())
	cancel()
	if err != nil {
		t.recipientErrors.Add(1)
		e.logger.Warn("resolve recipients failed",
			"subject_id", subject.ID, "record_id", occ.RecordID, "error", err)
		return
	}

	e.slots <- struct{}{}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer func() { <-e.slots }()
		e.deliver(context.WithoutCancel(ctx), subject, occ, recipients)
	}()
}

func (e *Engine) deliver(ctx context.Context, subject care.Subject, occ Occurrence, recipients []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("delivery panicked", "subject_id", subject.ID, "record_id", occ.RecordID, "panic", r)
		}
	}()

	report := e.deps.Notifier.Dispatch(ctx, occ.Payload, recipients)
	observeDelivery(e.strategy.Name(), report)

	e.logger.Info("care event fired",
		"subject_id", subject.ID,
		"record_id", occ.RecordID,
		"period", occ.Period,
		"type", occ.Payload.Type,
		"dispatch_id", report.DispatchID,
		"recipients", len(recipients),
		"sent", report.Sent(),
		"failed", report.Failed())
}

type tally struct {
	due             atomic.Int64
	fired           atomic.Int64
	duplicates      atomic.Int64
	subjectErrors   atomic.Int64
	recipientErrors atomic.Int64
}

func (t *tally) fill(res *TickResult) {
	res.Due = int(t.due.Load())
	res.Fired = int(t.fired.Load())
	res.Duplicates = int(t.duplicates.Load())
	res.SubjectErrors = int(t.subjectErrors.Load())
	res.RecipientErrors = int(t.recipientErrors.Load())
}
