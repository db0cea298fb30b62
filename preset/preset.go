// Package preset stores reusable job templates so recurring prints can be
// submitted without re-entering their parameters.
package preset

import (
	"time"

	"github.com/google/uuid"

	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/job"
)

// Preset is a saved job template
type Preset struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"` // unique handle, e.g. "weekly-demo-batch"
	ItemName        string   `json:"item_name"`
	ModelRef        string   `json:"model_ref,omitempty"`
	Quantity        int      `json:"quantity"`
	Priority        int      `json:"priority"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	GramsEstimate   *float64 `json:"grams_estimate,omitempty"`
	Colors          []string `json:"colors,omitempty"`
	RequiredTags    []string `json:"required_tags,omitempty"`
	Notes           string   `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// New creates a preset with defaults matching a fresh job
func New(name, itemName string) (*Preset, error) {
	if name == "" {
		return nil, errors.New("preset name cannot be empty")
	}
	if itemName == "" {
		return nil, errors.New("preset item name cannot be empty")
	}
	return &Preset{
		ID:        uuid.NewString(),
		Name:      name,
		ItemName:  itemName,
		Quantity:  1,
		Priority:  3,
		CreatedAt: time.Now(),
	}, nil
}

// NewJob instantiates a job from the template. The job enters the lifecycle
// in the given initial status, decided by the approval gate for the
// submitting principal.
func (p *Preset) NewJob(initial job.Status, submittedBy string) (*job.Job, error) {
	j, err := job.New(p.ItemName, initial, submittedBy)
	if err != nil {
		return nil, err
	}
	j.ModelRef = p.ModelRef
	j.Quantity = p.Quantity
	j.Priority = p.Priority
	j.DurationMinutes = p.DurationMinutes
	j.GramsEstimate = p.GramsEstimate
	j.Colors = append([]string(nil), p.Colors...)
	j.RequiredTags = append([]string(nil), p.RequiredTags...)
	j.Notes = p.Notes
	return j, nil
}
