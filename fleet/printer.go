// Package fleet manages the printer inventory: identity, capability tags,
// and loaded material slots.
package fleet

import (
	"time"

	"github.com/google/uuid"

	"github.com/spoolworks/printfarm/errors"
)

// Printer is a machine the scheduler can assign jobs to
type Printer struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Active bool     `json:"active"`
	Tags   []string `json:"tags,omitempty"`  // capability tags, e.g. "enclosed", "0.6mm"
	Slots  []string `json:"slots,omitempty"` // loaded material/color tokens, e.g. "pla:red"

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active printer with the given name
func New(name string) (*Printer, error) {
	if name == "" {
		return nil, errors.New("printer name cannot be empty")
	}
	now := time.Now()
	return &Printer{
		ID:        uuid.NewString(),
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasTags reports whether the printer's tags are a superset of required.
// An empty requirement always matches.
func (p *Printer) HasTags(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(p.Tags))
	for _, tag := range p.Tags {
		have[tag] = struct{}{}
	}
	for _, tag := range required {
		if _, ok := have[tag]; !ok {
			return false
		}
	}
	return true
}

// CanLoadColors reports whether every requested color is satisfied by a
// loaded slot, either exactly or through the compatibility table. The table
// maps a requested color to the loaded colors accepted in its place.
func (p *Printer) CanLoadColors(colors []string, compat map[string][]string) bool {
	if len(colors) == 0 {
		return true
	}
	loaded := make(map[string]struct{}, len(p.Slots))
	for _, slot := range p.Slots {
		loaded[slot] = struct{}{}
	}
	for _, want := range colors {
		if _, ok := loaded[want]; ok {
			continue
		}
		found := false
		for _, alt := range compat[want] {
			if _, ok := loaded[alt]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
