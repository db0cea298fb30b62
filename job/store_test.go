package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolworks/printfarm/errors"
	pftesting "github.com/spoolworks/printfarm/internal/testing"
)

func newTestJob(t *testing.T, name string, status Status) *Job {
	t.Helper()
	j, err := New(name, StatusPending, "alice")
	require.NoError(t, err)
	j.Status = status
	return j
}

func TestStoreCreateAndGet(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	j := newTestJob(t, "benchy", StatusPending)
	j.Colors = []string{"pla:red", "pla:white"}
	j.RequiredTags = []string{"0.4mm", "enclosed"}
	minutes := 240
	j.DurationMinutes = &minutes
	grams := 42.5
	j.GramsEstimate = &grams

	require.NoError(t, store.Create(j))

	got, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.Name, got.Name)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, []string{"pla:red", "pla:white"}, got.Colors)
	assert.Equal(t, []string{"0.4mm", "enclosed"}, got.RequiredTags)
	require.NotNil(t, got.DurationMinutes)
	assert.Equal(t, 240, *got.DurationMinutes)
	require.NotNil(t, got.GramsEstimate)
	assert.Equal(t, 42.5, *got.GramsEstimate)
	assert.Equal(t, "alice", got.SubmittedBy)
}

func TestStoreGetNotFound(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	_, err := store.Get("no-such-job")
	assert.True(t, errors.IsNotFound(err))
}

func TestStoreUpdateBumpsVersion(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	j := newTestJob(t, "benchy", StatusPending)
	require.NoError(t, store.Create(j))
	assert.Equal(t, 0, j.Version)

	j.Priority = 1
	require.NoError(t, store.Update(j))
	assert.Equal(t, 1, j.Version)

	got, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Priority)
	assert.Equal(t, 1, got.Version)
}

func TestStoreUpdateConflict(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	j := newTestJob(t, "benchy", StatusPending)
	require.NoError(t, store.Create(j))

	// two readers load the same version
	first, err := store.Get(j.ID)
	require.NoError(t, err)
	second, err := store.Get(j.ID)
	require.NoError(t, err)

	first.Priority = 1
	require.NoError(t, store.Update(first))

	second.Priority = 5
	err = store.Update(second)
	assert.True(t, errors.IsConflict(err), "stale version must be rejected: %v", err)
}

func TestStoreUpdateMissingRow(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	j := newTestJob(t, "benchy", StatusPending)
	err := store.Update(j)
	assert.True(t, errors.IsNotFound(err))
}

func TestStoreDelete(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	j := newTestJob(t, "benchy", StatusPending)
	require.NoError(t, store.Create(j))
	require.NoError(t, store.Delete(j.ID))

	_, err := store.Get(j.ID)
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsNotFound(store.Delete(j.ID)))
}

func TestStoreListBacklogOrdering(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	due := base.Add(24 * time.Hour)

	// created in reverse of expected queue order
	noDue := newTestJob(t, "no-due", StatusPending)
	noDue.Priority = 2
	noDue.CreatedAt = base
	require.NoError(t, store.Create(noDue))

	withDue := newTestJob(t, "with-due", StatusPending)
	withDue.Priority = 2
	withDue.DueAt = &due
	withDue.CreatedAt = base.Add(time.Minute)
	require.NoError(t, store.Create(withDue))

	urgent := newTestJob(t, "urgent", StatusPending)
	urgent.Priority = 1
	urgent.CreatedAt = base.Add(2 * time.Minute)
	require.NoError(t, store.Create(urgent))

	pinned := newTestJob(t, "pinned", StatusPending)
	pinned.Priority = 5
	pos := 1
	pinned.ManualPosition = &pos
	pinned.CreatedAt = base.Add(3 * time.Minute)
	require.NoError(t, store.Create(pinned))

	backlog, err := store.ListBacklog()
	require.NoError(t, err)
	require.Len(t, backlog, 4)
	assert.Equal(t, "pinned", backlog[0].Name, "manual position wins over priority")
	assert.Equal(t, "urgent", backlog[1].Name)
	assert.Equal(t, "with-due", backlog[2].Name, "due date beats no due date at equal priority")
	assert.Equal(t, "no-due", backlog[3].Name)
}

func TestStorePrinterTimeline(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	scheduled := newTestJob(t, "scheduled", StatusPending)
	require.NoError(t, store.Create(scheduled))
	require.NoError(t, scheduled.Schedule("prusa-1", base.Add(2*time.Hour), base.Add(4*time.Hour)))
	require.NoError(t, store.Update(scheduled))

	printing := newTestJob(t, "printing", StatusPending)
	require.NoError(t, store.Create(printing))
	require.NoError(t, printing.Schedule("prusa-1", base, base.Add(time.Hour)))
	require.NoError(t, printing.StartPrinting())
	require.NoError(t, store.Update(printing))

	other := newTestJob(t, "other-printer", StatusPending)
	require.NoError(t, store.Create(other))
	require.NoError(t, other.Schedule("prusa-2", base, base.Add(time.Hour)))
	require.NoError(t, store.Update(other))

	timeline, err := store.PrinterTimeline("prusa-1")
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.True(t, timeline[0].Start.Before(timeline[1].Start), "timeline must be ordered by start")
}

func TestStoreDeleteTerminalBefore(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	old := newTestJob(t, "old-done", StatusCompleted)
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Create(old))

	fresh := newTestJob(t, "fresh-done", StatusCompleted)
	require.NoError(t, store.Create(fresh))

	active := newTestJob(t, "active", StatusPending)
	active.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Create(active))

	n, err := store.DeleteTerminalBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(old.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = store.Get(active.ID)
	assert.NoError(t, err, "non-terminal jobs must survive cleanup")
}

func TestStoreCountByStatus(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(newTestJob(t, "p", StatusPending)))
	}
	require.NoError(t, store.Create(newTestJob(t, "c", StatusCompleted)))

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 3, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusCompleted])
}
