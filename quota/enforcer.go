package quota

import (
	"sync"
	"time"
)

// Defaults is the fleet-wide quota applied to principals without their own
// limits row. Zero values mean unlimited.
type Defaults struct {
	Period   Period
	MaxJobs  int
	MaxGrams float64
	MaxHours float64
}

// Enforcer checks and records quota consumption. Reservations for the same
// principal are serialized so concurrent submissions cannot both pass a
// check the combined pair would fail.
type Enforcer struct {
	store        *Store
	defaults     Defaults
	anchorMonths []int

	mu         sync.Mutex
	principals map[string]*sync.Mutex

	timeNow func() time.Time // injectable for tests
}

// NewEnforcer creates a quota enforcer with the given defaults and semester
// anchor months.
func NewEnforcer(store *Store, defaults Defaults, anchorMonths []int) *Enforcer {
	return &Enforcer{
		store:        store,
		defaults:     defaults,
		anchorMonths: anchorMonths,
		principals:   make(map[string]*sync.Mutex),
		timeNow:      time.Now,
	}
}

func (e *Enforcer) principalLock(principal string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.principals[principal]
	if !ok {
		lock = &sync.Mutex{}
		e.principals[principal] = lock
	}
	return lock
}

// SetDefaults replaces the fleet-wide defaults, e.g. on config reload.
// Per-principal limit rows are untouched.
func (e *Enforcer) SetDefaults(d Defaults) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults = d
}

// effectiveLimits resolves a principal's limits, falling back to defaults
func (e *Enforcer) effectiveLimits(principal string) (*Limits, error) {
	l, err := e.store.GetLimits(principal)
	if err != nil {
		return nil, err
	}
	if l != nil {
		return l, nil
	}

	e.mu.Lock()
	defaults := e.defaults
	e.mu.Unlock()

	d := &Limits{Principal: principal, Period: defaults.Period}
	if defaults.MaxJobs > 0 {
		maxJobs := defaults.MaxJobs
		d.MaxJobs = &maxJobs
	}
	if defaults.MaxGrams > 0 {
		maxGrams := defaults.MaxGrams
		d.MaxGrams = &maxGrams
	}
	if defaults.MaxHours > 0 {
		maxHours := defaults.MaxHours
		d.MaxHours = &maxHours
	}
	return d, nil
}

// Check verifies that charging grams and hours to the principal would stay
// within every limited dimension of the current period window.
func (e *Enforcer) Check(principal string, grams, hours float64) error {
	limits, err := e.effectiveLimits(principal)
	if err != nil {
		return err
	}

	window, err := WindowFor(limits.Period, e.timeNow(), e.anchorMonths)
	if err != nil {
		return err
	}
	used, err := e.store.Usage(principal, window)
	if err != nil {
		return err
	}

	if limits.MaxJobs != nil && used.Jobs+1 > *limits.MaxJobs {
		return &LimitError{
			Principal: principal,
			Dimension: DimensionJobs,
			Limit:     float64(*limits.MaxJobs),
			Used:      float64(used.Jobs),
			Requested: 1,
		}
	}
	if limits.MaxGrams != nil && used.Grams+grams > *limits.MaxGrams {
		return &LimitError{
			Principal: principal,
			Dimension: DimensionGrams,
			Limit:     *limits.MaxGrams,
			Used:      used.Grams,
			Requested: grams,
		}
	}
	if limits.MaxHours != nil && used.Hours+hours > *limits.MaxHours {
		return &LimitError{
			Principal: principal,
			Dimension: DimensionHours,
			Limit:     *limits.MaxHours,
			Used:      used.Hours,
			Requested: hours,
		}
	}
	return nil
}

// Reserve checks and records a charge in one serialized step
func (e *Enforcer) Reserve(principal, jobID string, grams, hours float64) error {
	lock := e.principalLock(principal)
	lock.Lock()
	defer lock.Unlock()

	if err := e.Check(principal, grams, hours); err != nil {
		return err
	}
	return e.store.Reserve(principal, jobID, grams, hours)
}

// Finalize settles a job's reservation with actual consumption
func (e *Enforcer) Finalize(jobID string, grams, hours float64) error {
	return e.store.Finalize(jobID, grams, hours)
}

// Release refunds a job's reservation, e.g. on cancellation
func (e *Enforcer) Release(jobID string) error {
	return e.store.Release(jobID)
}

// SetLimits installs or replaces a principal's limits
func (e *Enforcer) SetLimits(l *Limits) error {
	return e.store.SetLimits(l)
}

// ClearLimits removes a principal's limits so defaults apply again
func (e *Enforcer) ClearLimits(principal string) error {
	return e.store.DeleteLimits(principal)
}

// UsageFor reports a principal's consumption and effective limits for the
// current period window.
func (e *Enforcer) UsageFor(principal string) (Usage, *Limits, error) {
	limits, err := e.effectiveLimits(principal)
	if err != nil {
		return Usage{}, nil, err
	}
	window, err := WindowFor(limits.Period, e.timeNow(), e.anchorMonths)
	if err != nil {
		return Usage{}, nil, err
	}
	used, err := e.store.Usage(principal, window)
	if err != nil {
		return Usage{}, nil, err
	}
	return used, limits, nil
}
