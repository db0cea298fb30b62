package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/internal/util"
	"github.com/spoolworks/printfarm/job"
)

func pendingJob(t *testing.T, name string, priority int) *job.Job {
	t.Helper()
	j, err := job.New(name, job.StatusPending, "alice")
	require.NoError(t, err)
	j.Priority = priority
	return j
}

func TestSortOrdering(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	manual := pendingJob(t, "manual", 5)
	manual.ManualPosition = util.Ptr(1)
	manual.CreatedAt = base.Add(time.Hour)

	urgent := pendingJob(t, "urgent", 1)
	urgent.CreatedAt = base.Add(2 * time.Hour)

	dueSoon := pendingJob(t, "due-soon", 3)
	dueSoon.DueAt = util.Ptr(base.Add(24 * time.Hour))
	dueSoon.CreatedAt = base.Add(3 * time.Hour)

	dueLater := pendingJob(t, "due-later", 3)
	dueLater.DueAt = util.Ptr(base.Add(48 * time.Hour))
	dueLater.CreatedAt = base

	noDue := pendingJob(t, "no-due", 3)
	noDue.CreatedAt = base

	jobs := []*job.Job{noDue, dueLater, dueSoon, urgent, manual}
	Sort(jobs)

	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.Name
	}
	assert.Equal(t, []string{"manual", "urgent", "due-soon", "due-later", "no-due"}, names)
}

func TestSortCreatedTiebreak(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	older := pendingJob(t, "older", 3)
	older.CreatedAt = base
	newer := pendingJob(t, "newer", 3)
	newer.CreatedAt = base.Add(time.Minute)

	jobs := []*job.Job{newer, older}
	Sort(jobs)
	assert.Equal(t, "older", jobs[0].Name)
}

func TestValidateReorder(t *testing.T) {
	a := pendingJob(t, "a", 3)
	b := pendingJob(t, "b", 3)
	c := pendingJob(t, "c", 3)
	current := []*job.Job{a, b, c}

	assert.NoError(t, ValidateReorder(current, []string{c.ID, a.ID, b.ID}))

	err := ValidateReorder(current, []string{a.ID, b.ID})
	assert.True(t, errors.Is(err, errors.ErrInvalidReorder), "wrong length")

	err = ValidateReorder(current, []string{a.ID, a.ID, b.ID})
	assert.True(t, errors.Is(err, errors.ErrInvalidReorder), "duplicate")

	err = ValidateReorder(current, []string{a.ID, b.ID, "stranger"})
	assert.True(t, errors.Is(err, errors.ErrInvalidReorder), "unknown id")
}

func TestApplyReorder(t *testing.T) {
	a := pendingJob(t, "a", 1)
	b := pendingJob(t, "b", 2)
	c := pendingJob(t, "c", 3)
	current := []*job.Job{a, b, c}

	result, err := ApplyReorder(current, []string{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, result, 3)

	assert.Equal(t, "c", result[0].Name)
	assert.Equal(t, 1, *result[0].ManualPosition)
	assert.Equal(t, "a", result[1].Name)
	assert.Equal(t, 2, *result[1].ManualPosition)
	assert.Equal(t, "b", result[2].Name)
	assert.Equal(t, 3, *result[2].ManualPosition)

	// the new manual positions dominate the comparator
	Sort(current)
	assert.Equal(t, "c", current[0].Name)
}

func TestApplyReorderInvalidLeavesJobsUntouched(t *testing.T) {
	a := pendingJob(t, "a", 1)
	b := pendingJob(t, "b", 2)
	current := []*job.Job{a, b}

	_, err := ApplyReorder(current, []string{a.ID})
	require.Error(t, err)
	assert.Nil(t, a.ManualPosition)
	assert.Nil(t, b.ManualPosition)
}
