package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/albapepper/carebeat/internal/dedup"
	"github.com/albapepper/carebeat/internal/timematch"
)

// Tick intervals per scheduler type.
const (
	MedicineInterval   = time.Minute
	ReminderInterval   = time.Minute
	WellbeingInterval  = time.Minute
	InactivityInterval = time.Hour
	RefillInterval     = 24 * time.Hour
)

// Config carries the tunables of the five schedulers.
type Config struct {
	Origin            string // frontend origin for action URLs
	Location          *time.Location
	Workers           int
	Deliveries        int
	CallTimeout       time.Duration
	InactiveThreshold time.Duration
	RefillLowDays     float64
	WellbeingAt       timematch.TimeOfDay
	Now               func() time.Time
}

// Set owns the five scheduler engines of a process.
type Set struct {
	engines []*Engine
	byName  map[string]*Engine
}

// NewSet builds every scheduler. Per-minute schedulers share the per-minute
// dedup policy; the others keep one entry per subject and record.
func NewSet(deps Deps, cfg Config) *Set {
	opts := func(interval time.Duration) Options {
		return Options{
			Interval:    interval,
			Workers:     cfg.Workers,
			Deliveries:  cfg.Deliveries,
			CallTimeout: cfg.CallTimeout,
			Location:    cfg.Location,
			Now:         cfg.Now,
		}
	}

	engines := []*Engine{
		NewEngine(MedicineReminder{Source: deps.Source}, dedup.NewPerMinute(), deps, opts(MedicineInterval)),
		NewEngine(GenericReminder{Source: deps.Source}, dedup.NewPerMinute(), deps, opts(ReminderInterval)),
		NewEngine(WellbeingPrompt{At: cfg.WellbeingAt, Origin: cfg.Origin}, dedup.NewPerDay(), deps, opts(WellbeingInterval)),
		NewEngine(InactivityDetector{Source: deps.Source, Threshold: cfg.InactiveThreshold, Origin: cfg.Origin},
			dedup.NewPerDay(), deps, opts(InactivityInterval)),
		NewEngine(RefillReminder{Source: deps.Source, LowStock: cfg.RefillLowDays, Origin: cfg.Origin},
			dedup.NewPerDay(), deps, opts(RefillInterval)),
	}

	s := &Set{engines: engines, byName: make(map[string]*Engine, len(engines))}
	for _, e := range engines {
		s.byName[e.Name()] = e
	}
	return s
}

// Engines returns the engines in a stable order.
func (s *Set) Engines() []*Engine {
	return s.engines
}

// Engine looks an engine up by scheduler name.
func (s *Set) Engine(name string) (*Engine, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Start launches every engine.
func (s *Set) Start(ctx context.Context) {
	for _, e := range s.engines {
		e.Start(ctx)
	}
}

// Stop stops every engine and waits for in-progress ticks and deliveries.
func (s *Set) Stop() {
	var wg sync.WaitGroup
	for _, e := range s.engines {
		e := e
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Stop()
		}()
	}
	wg.Wait()
}
