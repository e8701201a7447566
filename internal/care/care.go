// Package care holds the records the schedulers read from the care data
// store. Values are plain snapshots: the store fills them per call and the
// schedulers never mutate or cache them between ticks.
package care

import "time"

// Role values stored on user accounts.
const (
	RoleElderly = "elderly"
	RoleFamily  = "family"

	// RoleOps is carried by operators calling the scheduler endpoints. It
	// never appears on a user account.
	RoleOps = "ops"
)

// Wellbeing values an elder can record.
const (
	WellbeingGood    = "good"
	WellbeingOkay    = "okay"
	WellbeingNotWell = "not_well"
)

// Refill status values. RefillOrdered means a caregiver already acted on the
// refill and no further reminders are wanted.
const (
	RefillNone     = "none"
	RefillPending  = "pending"
	RefillOrdered  = "ordered"
	RefillReceived = "received"
)

// Subject is an elder-role account.
type Subject struct {
	ID   string
	Name string
}

// DisplayName falls back to a generic label for unnamed accounts.
func (s Subject) DisplayName() string {
	if s.Name == "" {
		return "Elder"
	}
	return s.Name
}

// Medicine is a scheduled dose.
type Medicine struct {
	ID     string
	Name   string
	Dosage string
	Time   string // human time-of-day, e.g. "8:00" or "8:00 PM"
	Date   string // optional YYYY-MM-DD; empty repeats daily

	// TakenToday is set when an intake log exists for the evaluation day.
	TakenToday bool
}

// Reminder is a free-text reminder with a time of day.
type Reminder struct {
	ID   string
	Text string
	At   string
	Date string
	Done bool
}

// Refill is the stock-keeping side of a medicine.
type Refill struct {
	MedicineID   string
	MedicineName string
	AmountLeft   *float64 // days of stock remaining; nil when unknown
	ReminderAt   string   // YYYY-MM-DD
	Status       string
}

// Done reports whether the refill is already being handled.
func (r Refill) Done() bool {
	return r.Status == RefillOrdered
}

// WellbeingEntry is one day's self-reported wellbeing.
type WellbeingEntry struct {
	Date  string
	Value string
}

// SOSAlert is an emergency call raised by an elder.
type SOSAlert struct {
	ID   string
	Time time.Time
	Lat  *float64
	Lng  *float64
}

// HasLocation reports whether both coordinates were supplied.
func (a SOSAlert) HasLocation() bool {
	return a.Lat != nil && a.Lng != nil
}

// ValidWellbeing reports whether v is an accepted wellbeing value.
func ValidWellbeing(v string) bool {
	switch v {
	case WellbeingGood, WellbeingOkay, WellbeingNotWell:
		return true
	}
	return false
}

// Scope selects who is notified about a subject's event.
type Scope uint8

const (
	// ScopeSubject notifies the elder.
	ScopeSubject Scope = 1 << iota
	// ScopeCaregivers notifies linked family members.
	ScopeCaregivers

	ScopeBoth = ScopeSubject | ScopeCaregivers
)

// Includes reports whether s covers other.
func (s Scope) Includes(other Scope) bool {
	return s&other == other
}

func (s Scope) String() string {
	switch s {
	case ScopeSubject:
		return "subject"
	case ScopeCaregivers:
		return "caregivers"
	case ScopeBoth:
		return "subject+caregivers"
	}
	return "none"
}
