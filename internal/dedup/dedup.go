// Package dedup remembers which scheduled events have already fired so that
// each scheduler dispatches at most one notification per logical event per
// period.
//
// Two eviction policies are provided:
//
//   - PerMinute keeps only the current minute's keys and drops them all the
//     moment a key from a different period is observed.
//   - PerDay keeps, for every (scheduler, subject, record) slot, the last
//     period it fired for. Nothing is ever cleared globally; memory is bounded
//     by the subject population.
//
// State is process-local and is lost on restart.
package dedup

import "sync"

// Key identifies one logical event occurrence.
type Key struct {
	Scheduler string
	Subject   string
	Record    string // empty when the subject itself is the record
	Period    string // minute or day identifier, see timematch.MinuteKey/DayKey
}

// slot is a Key without its period.
type slot struct {
	scheduler string
	subject   string
	record    string
}

func (k Key) slot() slot {
	return slot{scheduler: k.Scheduler, subject: k.Subject, record: k.Record}
}

// Registry is the contract every scheduler uses. Implementations are safe for
// concurrent use.
type Registry interface {
	// ShouldFire reports whether k has not fired yet in its period.
	ShouldFire(k Key) bool
	// MarkFired records k as fired.
	MarkFired(k Key)
	// Claim atomically checks and marks k. It returns true for exactly one
	// caller per key.
	Claim(k Key) bool
	// Len returns the number of tracked entries.
	Len() int
}

// --------------------------------------------------------------------------
// Per-minute policy
// --------------------------------------------------------------------------

// PerMinute holds the fired set for a single period.
type PerMinute struct {
	mu      sync.Mutex
	current string
	fired   map[Key]struct{}
}

// NewPerMinute returns an empty per-minute registry.
func NewPerMinute() *PerMinute {
	return &PerMinute{fired: make(map[Key]struct{})}
}

// ResetIfPeriodChanged drops every key when period differs from the one
// currently held.
func (r *PerMinute) ResetIfPeriodChanged(period string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(period)
}

func (r *PerMinute) resetLocked(period string) {
	if period == r.current {
		return
	}
	r.current = period
	clear(r.fired)
}

func (r *PerMinute) ShouldFire(k Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(k.Period)
	_, seen := r.fired[k]
	return !seen
}

func (r *PerMinute) MarkFired(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(k.Period)
	r.fired[k] = struct{}{}
}

func (r *PerMinute) Claim(k Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(k.Period)
	if _, seen := r.fired[k]; seen {
		return false
	}
	r.fired[k] = struct{}{}
	return true
}

func (r *PerMinute) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

// --------------------------------------------------------------------------
// Per-day policy
// --------------------------------------------------------------------------

// PerDay maps each slot to the last period it fired for.
type PerDay struct {
	mu   sync.Mutex
	last map[slot]string
}

// NewPerDay returns an empty per-day registry.
func NewPerDay() *PerDay {
	return &PerDay{last: make(map[slot]string)}
}

func (r *PerDay) ShouldFire(k Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[k.slot()] != k.Period
}

func (r *PerDay) MarkFired(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[k.slot()] = k.Period
}

func (r *PerDay) Claim(k Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := k.slot()
	if r.last[s] == k.Period {
		return false
	}
	r.last[s] = k.Period
	return true
}

func (r *PerDay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.last)
}

var (
	_ Registry = (*PerMinute)(nil)
	_ Registry = (*PerDay)(nil)
)
