package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolworks/printfarm/fleet"
	pftesting "github.com/spoolworks/printfarm/internal/testing"
	"github.com/spoolworks/printfarm/job"
	"github.com/spoolworks/printfarm/quota"
)

type engineFixture struct {
	engine   *Engine
	jobs     *job.Store
	printers *fleet.Store
}

func newEngineFixture(t *testing.T, opts Options, defaults quota.Defaults) *engineFixture {
	t.Helper()
	conn := pftesting.CreateTestDB(t)

	jobs := job.NewStore(conn)
	printers := fleet.NewStore(conn)
	enforcer := quota.NewEnforcer(quota.NewStore(conn), defaults, []int{2, 8})
	if opts.DefaultDurationHours == 0 {
		opts.DefaultDurationHours = 4.0
	}

	engine := NewEngine(jobs, printers, enforcer, opts)
	engine.timeNow = func() time.Time {
		return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	}
	return &engineFixture{engine: engine, jobs: jobs, printers: printers}
}

func (f *engineFixture) addPrinter(t *testing.T, name string, tags, slots []string) *fleet.Printer {
	t.Helper()
	p, err := fleet.New(name)
	require.NoError(t, err)
	p.Tags = tags
	p.Slots = slots
	require.NoError(t, f.printers.Create(p))
	return p
}

func (f *engineFixture) addJob(t *testing.T, name string, mutate func(*job.Job)) *job.Job {
	t.Helper()
	j, err := job.New(name, job.StatusPending, "alice")
	require.NoError(t, err)
	if mutate != nil {
		mutate(j)
	}
	require.NoError(t, f.jobs.Create(j))
	return j
}

func TestRunAssignsBacklog(t *testing.T) {
	f := newEngineFixture(t, Options{}, quota.Defaults{Period: quota.PeriodDaily})
	f.addPrinter(t, "alpha", nil, nil)
	f.addPrinter(t, "beta", nil, nil)

	for i := 0; i < 3; i++ {
		f.addJob(t, "benchy", nil)
	}

	plan, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 3)
	assert.Empty(t, plan.Skips)

	// no two assignments on the same printer may overlap
	byPrinter := make(map[string][]job.Interval)
	for _, a := range plan.Assignments {
		for _, other := range byPrinter[a.PrinterID] {
			assert.False(t, a.Slot.Overlaps(other), "double-booked printer %s", a.PrinterID)
		}
		byPrinter[a.PrinterID] = append(byPrinter[a.PrinterID], a.Slot)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	f := newEngineFixture(t, Options{}, quota.Defaults{Period: quota.PeriodDaily})
	f.addPrinter(t, "alpha", nil, nil)
	f.addPrinter(t, "beta", nil, nil)
	for i := 0; i < 4; i++ {
		f.addJob(t, "benchy", nil)
	}

	first, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	second, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Assignments, second.Assignments,
		"planning must be deterministic for an unchanged snapshot")
}

func TestRunHonorsTagAndColorConstraints(t *testing.T) {
	f := newEngineFixture(t, Options{
		ColorCompat: map[string][]string{"pla:crimson": {"pla:red"}},
	}, quota.Defaults{Period: quota.PeriodDaily})
	f.addPrinter(t, "plain", nil, []string{"pla:white"})
	enclosed := f.addPrinter(t, "enclosed", []string{"enclosed"}, []string{"pla:red"})

	tagged := f.addJob(t, "abs-part", func(j *job.Job) {
		j.RequiredTags = []string{"enclosed"}
	})
	colored := f.addJob(t, "crimson-part", func(j *job.Job) {
		j.Colors = []string{"pla:crimson"}
	})
	impossible := f.addJob(t, "petg-part", func(j *job.Job) {
		j.Colors = []string{"petg:black"}
	})

	plan, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	placed := make(map[string]string)
	for _, a := range plan.Assignments {
		placed[a.JobID] = a.PrinterID
	}
	assert.Equal(t, enclosed.ID, placed[tagged.ID])
	assert.Equal(t, enclosed.ID, placed[colored.ID], "compat table routes crimson to the red printer")

	require.Len(t, plan.Skips, 1)
	assert.Equal(t, impossible.ID, plan.Skips[0].JobID)
	assert.Equal(t, SkipColorMismatch, plan.Skips[0].Reason)
}

func TestRunSkipsInactivePrinters(t *testing.T) {
	f := newEngineFixture(t, Options{}, quota.Defaults{Period: quota.PeriodDaily})
	p := f.addPrinter(t, "alpha", nil, nil)
	require.NoError(t, f.printers.SetActive(p.ID, false))
	f.addJob(t, "benchy", nil)

	plan, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Assignments)
	require.Len(t, plan.Skips, 1)
	assert.Equal(t, SkipPrinterInactive, plan.Skips[0].Reason)
}

func TestOverrideBypassesTagsButNotActive(t *testing.T) {
	f := newEngineFixture(t, Options{}, quota.Defaults{Period: quota.PeriodDaily})
	plain := f.addPrinter(t, "plain", nil, []string{"pla:white"})

	forced := f.addJob(t, "forced", func(j *job.Job) {
		j.RequiredTags = []string{"enclosed"}
		j.Colors = []string{"petg:black"}
		j.PrinterOverride = plain.ID
	})

	plan, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, forced.ID, plan.Assignments[0].JobID)
	assert.Equal(t, plain.ID, plan.Assignments[0].PrinterID)

	// deactivating the override target blocks the job entirely
	require.NoError(t, f.printers.SetActive(plain.ID, false))
	plan, err = f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Assignments)
	require.Len(t, plan.Skips, 1)
	assert.Equal(t, SkipPrinterInactive, plan.Skips[0].Reason)
}

func TestApplyCommitsAndIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, Options{}, quota.Defaults{Period: quota.PeriodDaily})
	f.addPrinter(t, "alpha", nil, nil)
	j := f.addJob(t, "benchy", nil)

	result, err := f.engine.RunAndApply(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Scheduled, 1)

	got, err := f.jobs.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, got.Status)
	assert.NotNil(t, got.ScheduledStart)

	// a second run has nothing left to place
	result, err = f.engine.RunAndApply(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Scheduled)
	assert.Empty(t, result.Skipped)
}

func TestApplySkipsConcurrentlyModifiedJobs(t *testing.T) {
	f := newEngineFixture(t, Options{}, quota.Defaults{Period: quota.PeriodDaily})
	f.addPrinter(t, "alpha", nil, nil)
	j := f.addJob(t, "benchy", nil)

	plan, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 1)

	// job is cancelled between planning and apply
	current, err := f.jobs.Get(j.ID)
	require.NoError(t, err)
	require.NoError(t, current.Cancel("changed my mind"))
	require.NoError(t, f.jobs.Update(current))

	result, err := f.engine.Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, result.Scheduled)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipConflict, result.Skipped[0].Reason)

	got, err := f.jobs.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status, "apply must not overwrite the newer state")
}

func TestApplyRejectsStalePlanForOccupiedSlot(t *testing.T) {
	f := newEngineFixture(t, Options{}, quota.Defaults{Period: quota.PeriodDaily})
	p := f.addPrinter(t, "alpha", nil, nil)
	first := f.addJob(t, "first", nil)

	result, err := f.engine.RunAndApply(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{first.ID}, result.Scheduled)

	committed, err := f.jobs.Get(first.ID)
	require.NoError(t, err)
	slot, ok := committed.CommittedInterval()
	require.True(t, ok)

	// a plan built from a snapshot that predates first's commit proposes
	// the same slot for a second job
	second := f.addJob(t, "second", nil)
	stale := &Plan{
		RunID:     "stale",
		PlannedAt: f.engine.timeNow(),
		Assignments: []Assignment{
			{JobID: second.ID, JobName: second.Name, PrinterID: p.ID, Slot: slot},
		},
	}

	applied, err := f.engine.Apply(context.Background(), stale)
	require.NoError(t, err)
	assert.Empty(t, applied.Scheduled)
	require.Len(t, applied.Skipped, 1)
	assert.Equal(t, SkipConflict, applied.Skipped[0].Reason)

	got, err := f.jobs.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)

	timeline, err := f.jobs.PrinterTimeline(p.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1, "printer must hold exactly one committed interval")
}

func TestApplyEnforcesQuota(t *testing.T) {
	f := newEngineFixture(t, Options{}, quota.Defaults{Period: quota.PeriodDaily, MaxJobs: 1})
	f.addPrinter(t, "alpha", nil, nil)
	f.addJob(t, "first", nil)
	f.addJob(t, "second", nil)

	result, err := f.engine.RunAndApply(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Scheduled, 1)

	found := false
	for _, s := range result.Skipped {
		if s.Reason == SkipQuotaExceeded {
			found = true
		}
	}
	assert.True(t, found, "second job must be skipped on quota")
}

func TestRunSkipsBlackoutBlockedJobs(t *testing.T) {
	blackout, err := NewBlackout("22:30", "05:30")
	require.NoError(t, err)

	f := newEngineFixture(t, Options{Blackout: blackout}, quota.Defaults{Period: quota.PeriodDaily})
	f.addPrinter(t, "alpha", nil, nil)

	// planning starts at 23:00, inside the window; a 1h job is not
	// deferred to the morning, it stays pending with the blackout reason
	f.engine.timeNow = func() time.Time {
		return time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	}
	minutes := 60
	blocked := f.addJob(t, "overnight", func(j *job.Job) { j.DurationMinutes = &minutes })

	plan, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Assignments)
	require.Len(t, plan.Skips, 1)
	assert.Equal(t, blocked.ID, plan.Skips[0].JobID)
	assert.Equal(t, SkipBlackout, plan.Skips[0].Reason)

	got, err := f.jobs.Get(blocked.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
}

func TestRunSkipsJobsRunningIntoBlackout(t *testing.T) {
	blackout, err := NewBlackout("22:30", "05:30")
	require.NoError(t, err)

	f := newEngineFixture(t, Options{Blackout: blackout}, quota.Defaults{Period: quota.PeriodDaily})
	f.addPrinter(t, "alpha", nil, nil)

	// 21:00 start: a 1h job finishes before the window, a 3h one does not
	f.engine.timeNow = func() time.Time {
		return time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	}
	short := 60
	long := 180
	fits := f.addJob(t, "quick", func(j *job.Job) {
		j.DurationMinutes = &short
		j.Priority = 1
	})
	f.addJob(t, "long", func(j *job.Job) { j.DurationMinutes = &long })

	plan, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, fits.ID, plan.Assignments[0].JobID)
	require.Len(t, plan.Skips, 1)
	assert.Equal(t, SkipBlackout, plan.Skips[0].Reason)
}
