package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolworks/printfarm/errors"
	pftesting "github.com/spoolworks/printfarm/internal/testing"
	"github.com/spoolworks/printfarm/internal/util"
)

func TestWindowForDaily(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	w, err := WindowFor(PeriodDaily, now, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), w.End)
	assert.True(t, w.Contains(now))
	assert.False(t, w.Contains(w.End))
}

func TestWindowForWeekly(t *testing.T) {
	// 2026-03-15 is a Sunday; the week starts Monday 2026-03-09
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	w, err := WindowFor(PeriodWeekly, now, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), w.End)

	// a Monday belongs to its own week
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	w, err = WindowFor(PeriodWeekly, monday, nil)
	require.NoError(t, err)
	assert.Equal(t, monday, w.Start)
}

func TestWindowForMonthly(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	w, err := WindowFor(PeriodMonthly, now, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), w.End)
}

func TestWindowForSemester(t *testing.T) {
	anchors := []int{2, 8} // February and August

	// mid-semester
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	w, err := WindowFor(PeriodSemester, now, anchors)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), w.End)

	// January falls in the semester that started the previous August
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	w, err = WindowFor(PeriodSemester, jan, anchors)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), w.End)

	_, err = WindowFor(PeriodSemester, now, nil)
	assert.Error(t, err, "semester requires anchor months")
}

func newTestEnforcer(t *testing.T, defaults Defaults) (*Enforcer, *Store) {
	t.Helper()
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)
	e := NewEnforcer(store, defaults, []int{2, 8})
	e.timeNow = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return e, store
}

func TestEnforcerJobsLimit(t *testing.T) {
	e, _ := newTestEnforcer(t, Defaults{Period: PeriodDaily, MaxJobs: 2})

	require.NoError(t, e.Reserve("alice", "job-1", 10, 1))
	require.NoError(t, e.Reserve("alice", "job-2", 10, 1))

	err := e.Reserve("alice", "job-3", 10, 1)
	require.True(t, errors.Is(err, errors.ErrQuotaExceeded))
	dim, ok := ExceededDimension(err)
	require.True(t, ok)
	assert.Equal(t, DimensionJobs, dim)

	// a different principal is unaffected
	assert.NoError(t, e.Reserve("bob", "job-4", 10, 1))
}

func TestEnforcerGramsAndHoursLimits(t *testing.T) {
	e, _ := newTestEnforcer(t, Defaults{Period: PeriodDaily, MaxGrams: 100, MaxHours: 10})

	require.NoError(t, e.Reserve("alice", "job-1", 80, 8))

	err := e.Reserve("alice", "job-2", 30, 1)
	dim, ok := ExceededDimension(err)
	require.True(t, ok)
	assert.Equal(t, DimensionGrams, dim)

	err = e.Reserve("alice", "job-3", 10, 3)
	dim, ok = ExceededDimension(err)
	require.True(t, ok)
	assert.Equal(t, DimensionHours, dim)

	// fits in both dimensions
	assert.NoError(t, e.Reserve("alice", "job-4", 20, 2))
}

func TestEnforcerZeroDefaultsUnlimited(t *testing.T) {
	e, _ := newTestEnforcer(t, Defaults{Period: PeriodDaily})

	for i := 0; i < 25; i++ {
		require.NoError(t, e.Reserve("alice", "job", 1000, 100))
	}
}

func TestEnforcerPerPrincipalOverride(t *testing.T) {
	e, store := newTestEnforcer(t, Defaults{Period: PeriodDaily, MaxJobs: 1})

	require.NoError(t, store.SetLimits(&Limits{
		Principal: "power-user",
		Period:    PeriodDaily,
		MaxJobs:   util.Ptr(3),
	}))

	require.NoError(t, e.Reserve("power-user", "job-1", 0, 0))
	require.NoError(t, e.Reserve("power-user", "job-2", 0, 0))
	require.NoError(t, e.Reserve("power-user", "job-3", 0, 0))
	assert.Error(t, e.Reserve("power-user", "job-4", 0, 0))

	require.NoError(t, e.Reserve("normal", "job-5", 0, 0))
	assert.Error(t, e.Reserve("normal", "job-6", 0, 0))
}

func TestReleaseRefundsQuota(t *testing.T) {
	e, _ := newTestEnforcer(t, Defaults{Period: PeriodDaily, MaxJobs: 1})

	require.NoError(t, e.Reserve("alice", "job-1", 10, 1))
	assert.Error(t, e.Reserve("alice", "job-2", 10, 1))

	require.NoError(t, e.Release("job-1"))
	assert.NoError(t, e.Reserve("alice", "job-2", 10, 1))
}

func TestFinalizeSettlesActuals(t *testing.T) {
	e, _ := newTestEnforcer(t, Defaults{Period: PeriodDaily, MaxGrams: 100})

	require.NoError(t, e.Reserve("alice", "job-1", 80, 4))
	require.NoError(t, e.Finalize("job-1", 50, 3))

	// the settled entry still counts, at its actual amounts
	usage, _, err := e.UsageFor("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Jobs)
	assert.Equal(t, 50.0, usage.Grams)
	assert.Equal(t, 3.0, usage.Hours)

	// finalizing twice fails: the entry is no longer reserved
	assert.True(t, errors.IsNotFound(e.Finalize("job-1", 50, 3)))

	// releasing after finalize is a no-op, the final entry stays counted
	require.NoError(t, e.Release("job-1"))
	usage, _, err = e.UsageFor("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Jobs)
}

func TestUsageWindowExcludesOldEntries(t *testing.T) {
	e, store := newTestEnforcer(t, Defaults{Period: PeriodDaily, MaxJobs: 1})

	// an entry created yesterday does not count toward today's daily window
	conn := store.db
	_, err := conn.Exec(`
		INSERT INTO quota_entries (principal, job_id, grams, hours, state, created_at, updated_at)
		VALUES ('alice', 'old-job', 10, 1, 'final', ?, ?)`,
		time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.NoError(t, e.Reserve("alice", "job-1", 10, 1))
}
