package quota

import (
	"fmt"
	"time"

	"github.com/spoolworks/printfarm/errors"
)

// Dimension names the resource a limit constrains
type Dimension string

const (
	DimensionJobs  Dimension = "jobs"
	DimensionGrams Dimension = "grams"
	DimensionHours Dimension = "hours"
)

// LimitError reports which dimension a reservation would exceed. It wraps
// the quota sentinel so errors.Is(err, errors.ErrQuotaExceeded) holds.
type LimitError struct {
	Principal string
	Dimension Dimension
	Limit     float64
	Used      float64
	Requested float64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %s limit %.1f, used %.1f, requested %.1f",
		e.Principal, e.Dimension, e.Limit, e.Used, e.Requested)
}

func (e *LimitError) Unwrap() error {
	return errors.ErrQuotaExceeded
}

// ExceededDimension extracts the dimension from a quota error, if present
func ExceededDimension(err error) (Dimension, bool) {
	var limitErr *LimitError
	if errors.As(err, &limitErr) {
		return limitErr.Dimension, true
	}
	return "", false
}

// Limits is a principal's configured ceiling per period. A nil field means
// that dimension is unlimited.
type Limits struct {
	Principal string   `json:"principal"`
	Period    Period   `json:"period"`
	MaxJobs   *int     `json:"max_jobs,omitempty"`
	MaxGrams  *float64 `json:"max_grams,omitempty"`
	MaxHours  *float64 `json:"max_hours,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// EntryState tracks a ledger entry through the job lifecycle
type EntryState string

const (
	EntryReserved EntryState = "reserved" // counted against quota
	EntryFinal    EntryState = "final"    // counted against quota, amounts settled
	EntryReleased EntryState = "released" // refunded, no longer counted
)

// Entry is one job's charge against a principal's quota
type Entry struct {
	ID        int64      `json:"id"`
	Principal string     `json:"principal"`
	JobID     string     `json:"job_id"`
	Grams     float64    `json:"grams"`
	Hours     float64    `json:"hours"`
	State     EntryState `json:"state"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Usage is the accumulated consumption inside one period window
type Usage struct {
	Jobs  int     `json:"jobs"`
	Grams float64 `json:"grams"`
	Hours float64 `json:"hours"`
}
