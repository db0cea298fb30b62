// Package job defines the print job model and its lifecycle state machine.
package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/spoolworks/printfarm/errors"
)

// Status represents the current lifecycle state of a job
type Status string

const (
	StatusSubmitted Status = "submitted" // awaiting approval
	StatusPending   Status = "pending"   // approved (or no approval needed), not yet assigned
	StatusScheduled Status = "scheduled" // assigned a printer and time slot
	StatusPrinting  Status = "printing"  // dispatched and running
	StatusCompleted Status = "completed" // terminal
	StatusFailed    Status = "failed"    // terminal unless repeated
	StatusRejected  Status = "rejected"  // terminal unless resubmitted
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusSubmitted, StatusPending, StatusScheduled, StatusPrinting,
		StatusCompleted, StatusFailed, StatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
// failed and rejected dead-end too, but repeat/resubmit clone a new job
// rather than transitioning the same entity.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRejected
}

// transitions is the closed transition table. Anything absent here fails
// with ErrInvalidTransition.
var transitions = map[Status][]Status{
	StatusSubmitted: {StatusPending, StatusRejected},
	StatusRejected:  {StatusSubmitted},
	StatusPending:   {StatusScheduled, StatusFailed},
	StatusScheduled: {StatusPrinting, StatusPending, StatusFailed},
	StatusPrinting:  {StatusCompleted, StatusFailed, StatusScheduled},
	StatusCompleted: {},
	StatusFailed:    {},
}

// CanTransition reports whether from -> to is in the transition table
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Interval is a half-open [Start, End) commitment on a printer's timeline
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints do not count as overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Job is the unit of work the fleet scheduler assigns to printers
type Job struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ModelRef string `json:"model_ref,omitempty"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`

	Priority        int        `json:"priority"`                   // 1 = highest, 5 = lowest
	DurationMinutes *int       `json:"duration_minutes,omitempty"` // nil until sliced
	GramsEstimate   *float64   `json:"grams_estimate,omitempty"`
	Colors          []string   `json:"colors,omitempty"`        // ordered material/color tokens
	RequiredTags    []string   `json:"required_tags,omitempty"` // printer capability tags
	DueAt           *time.Time `json:"due_at,omitempty"`
	PrinterOverride string     `json:"printer_override,omitempty"` // bypasses auto-assignment

	Status         Status     `json:"status"`
	PrinterID      string     `json:"printer_id,omitempty"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`

	SubmittedBy     string `json:"submitted_by,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
	FailureNotes    string `json:"failure_notes,omitempty"`
	ManualPosition  *int   `json:"manual_position,omitempty"` // only meaningful while unassigned
	OrderItemRef    string `json:"order_item_ref,omitempty"`  // links an order job to its line item

	Version   int       `json:"version"` // optimistic concurrency token
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a job in the given initial status (submitted or pending,
// decided by the approval gate).
func New(name string, initial Status, submittedBy string) (*Job, error) {
	if name == "" {
		return nil, errors.New("job name cannot be empty")
	}
	if initial != StatusSubmitted && initial != StatusPending {
		return nil, errors.Newf("initial status must be submitted or pending, got %s", initial)
	}

	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		Name:        name,
		Quantity:    1,
		Priority:    3,
		Status:      initial,
		SubmittedBy: submittedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// transition moves the job to a new status, enforcing the table
func (j *Job) transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return errors.NewInvalidTransition(string(j.Status), string(to))
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	return nil
}

// Approve moves submitted -> pending
func (j *Job) Approve() error {
	return j.transition(StatusPending)
}

// Reject moves submitted -> rejected with a mandatory reason
func (j *Job) Reject(reason string) error {
	if reason == "" {
		return errors.Wrap(errors.ErrInvalidTransition, "rejection requires a non-empty reason")
	}
	if err := j.transition(StatusRejected); err != nil {
		return err
	}
	j.RejectionReason = reason
	return nil
}

// Resubmit moves rejected -> submitted, clearing the prior rejection reason.
// The job re-enters the approval gate from scratch.
func (j *Job) Resubmit() error {
	if err := j.transition(StatusSubmitted); err != nil {
		return err
	}
	j.RejectionReason = ""
	return nil
}

// Schedule moves pending -> scheduled with a printer and time slot.
// ScheduledStart and ScheduledEnd are always set together.
func (j *Job) Schedule(printerID string, start, end time.Time) error {
	if printerID == "" {
		return errors.New("schedule requires a printer id")
	}
	if !end.After(start) {
		return errors.Newf("scheduled interval must have positive length: %s -> %s", start, end)
	}
	if err := j.transition(StatusScheduled); err != nil {
		return err
	}
	j.PrinterID = printerID
	j.ScheduledStart = &start
	j.ScheduledEnd = &end
	return nil
}

// StartPrinting moves scheduled -> printing, recording the actual start
func (j *Job) StartPrinting() error {
	if err := j.transition(StatusPrinting); err != nil {
		return err
	}
	now := time.Now()
	j.ActualStart = &now
	return nil
}

// Unassign steps the job back one stage. A printing job reverts to
// scheduled, keeping its slot but clearing the recorded start; a scheduled
// job returns to pending and releases its printer and slot.
func (j *Job) Unassign() error {
	switch j.Status {
	case StatusPrinting:
		if err := j.transition(StatusScheduled); err != nil {
			return err
		}
		j.ActualStart = nil
		return nil
	case StatusScheduled:
		if err := j.transition(StatusPending); err != nil {
			return err
		}
		j.PrinterID = ""
		j.ScheduledStart = nil
		j.ScheduledEnd = nil
		return nil
	default:
		return errors.Wrapf(errors.ErrInvalidTransition,
			"unassign only applies to scheduled or printing jobs (status: %s)", j.Status)
	}
}

// Complete moves printing -> completed, recording the actual end
func (j *Job) Complete() error {
	if err := j.transition(StatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	j.ActualEnd = &now
	j.releaseSlot()
	return nil
}

// Cancel moves pending/scheduled/printing -> failed. The failure reason is
// optional at cancel time and may be attached later with SetFailureReason.
func (j *Job) Cancel(reason string) error {
	if err := j.transition(StatusFailed); err != nil {
		return err
	}
	now := time.Now()
	j.ActualEnd = &now
	j.FailureReason = reason
	j.releaseSlot()
	return nil
}

// SetFailureReason attaches or replaces the failure reason on a failed job.
// Not a state transition; valid only once the job is failed.
func (j *Job) SetFailureReason(reason, notes string) error {
	if j.Status != StatusFailed {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"failure reason only applies to failed jobs (status: %s)", j.Status)
	}
	j.FailureReason = reason
	j.FailureNotes = notes
	j.UpdatedAt = time.Now()
	return nil
}

// releaseSlot clears the printer assignment fields once the job leaves
// {scheduled, printing}. The timeline interval derived from them disappears
// with the fields.
func (j *Job) releaseSlot() {
	j.ScheduledStart = nil
	j.ScheduledEnd = nil
	j.ManualPosition = nil
}

// CloneForRepeat creates a fresh job from a failed, pending, or scheduled
// one. The clone carries the descriptive and scheduling-input fields but
// none of the lifecycle state.
func (j *Job) CloneForRepeat(initial Status) (*Job, error) {
	switch j.Status {
	case StatusFailed, StatusPending, StatusScheduled:
	default:
		return nil, errors.Wrapf(errors.ErrInvalidTransition,
			"repeat only applies to failed, pending, or scheduled jobs (status: %s)", j.Status)
	}

	clone, err := New(j.Name, initial, j.SubmittedBy)
	if err != nil {
		return nil, err
	}
	clone.ModelRef = j.ModelRef
	clone.Quantity = j.Quantity
	clone.Notes = j.Notes
	clone.Priority = j.Priority
	clone.DurationMinutes = j.DurationMinutes
	clone.GramsEstimate = j.GramsEstimate
	clone.Colors = append([]string(nil), j.Colors...)
	clone.RequiredTags = append([]string(nil), j.RequiredTags...)
	clone.DueAt = j.DueAt
	clone.PrinterOverride = j.PrinterOverride
	clone.OrderItemRef = j.OrderItemRef
	return clone, nil
}

// EstimatedHours returns the duration estimate in hours, or the given
// default when the job has not been sliced yet.
func (j *Job) EstimatedHours(defaultHours float64) float64 {
	if j.DurationMinutes == nil {
		return defaultHours
	}
	return float64(*j.DurationMinutes) / 60.0
}

// CommittedInterval returns the scheduled interval while the job holds one
func (j *Job) CommittedInterval() (Interval, bool) {
	if j.ScheduledStart == nil || j.ScheduledEnd == nil {
		return Interval{}, false
	}
	return Interval{Start: *j.ScheduledStart, End: *j.ScheduledEnd}, true
}
