// Package queue defines the backlog ordering and operator reordering of
// pending jobs.
package queue

import (
	"sort"

	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/job"
)

// Less is the canonical backlog comparator. Jobs with a manual position come
// first, in position order; the rest sort by priority ascending, due date
// ascending with absent due dates last, then creation time.
func Less(a, b *job.Job) bool {
	switch {
	case a.ManualPosition != nil && b.ManualPosition != nil:
		if *a.ManualPosition != *b.ManualPosition {
			return *a.ManualPosition < *b.ManualPosition
		}
	case a.ManualPosition != nil:
		return true
	case b.ManualPosition != nil:
		return false
	}

	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}

	switch {
	case a.DueAt != nil && b.DueAt != nil:
		if !a.DueAt.Equal(*b.DueAt) {
			return a.DueAt.Before(*b.DueAt)
		}
	case a.DueAt != nil:
		return true
	case b.DueAt != nil:
		return false
	}

	return a.CreatedAt.Before(b.CreatedAt)
}

// Sort orders jobs in place by the canonical backlog comparator
func Sort(jobs []*job.Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return Less(jobs[i], jobs[k])
	})
}

// ValidateReorder checks that ordered is an exact permutation of the current
// pending job IDs: same length, no duplicates, no unknown IDs, nothing
// missing.
func ValidateReorder(current []*job.Job, ordered []string) error {
	if len(ordered) != len(current) {
		return errors.Wrapf(errors.ErrInvalidReorder,
			"expected %d job ids, got %d", len(current), len(ordered))
	}

	pending := make(map[string]struct{}, len(current))
	for _, j := range current {
		pending[j.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(ordered))
	for _, id := range ordered {
		if _, dup := seen[id]; dup {
			return errors.Wrapf(errors.ErrInvalidReorder, "duplicate job id %s", id)
		}
		seen[id] = struct{}{}
		if _, ok := pending[id]; !ok {
			return errors.Wrapf(errors.ErrInvalidReorder, "job %s is not in the pending queue", id)
		}
	}
	return nil
}

// ApplyReorder validates the permutation and assigns manual positions 1..n
// in the given order. Returns the jobs in their new order; the caller
// persists them.
func ApplyReorder(current []*job.Job, ordered []string) ([]*job.Job, error) {
	if err := ValidateReorder(current, ordered); err != nil {
		return nil, err
	}

	byID := make(map[string]*job.Job, len(current))
	for _, j := range current {
		byID[j.ID] = j
	}

	result := make([]*job.Job, 0, len(ordered))
	for i, id := range ordered {
		j := byID[id]
		pos := i + 1
		j.ManualPosition = &pos
		result = append(result, j)
	}
	return result, nil
}
