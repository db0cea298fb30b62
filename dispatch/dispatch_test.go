package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolworks/printfarm/errors"
	pftesting "github.com/spoolworks/printfarm/internal/testing"
	"github.com/spoolworks/printfarm/job"
	"github.com/spoolworks/printfarm/quota"
)

// fakeClient scripts per-stage outcomes
type fakeClient struct {
	transferErr error
	startErr    error
	transfers   int
	starts      int
}

func (f *fakeClient) Transfer(_ context.Context, _ string, _ *job.Job) error {
	f.transfers++
	return f.transferErr
}

func (f *fakeClient) Start(_ context.Context, _, _ string) error {
	f.starts++
	return f.startErr
}

func testOptions() Options {
	return Options{
		TransferTimeout: time.Second,
		StartTimeout:    time.Second,
	}
}

func newFixture(t *testing.T, client Client) (*Coordinator, *job.Store, *quota.Enforcer) {
	t.Helper()
	conn := pftesting.CreateTestDB(t)
	jobs := job.NewStore(conn)
	enforcer := quota.NewEnforcer(quota.NewStore(conn), quota.Defaults{Period: quota.PeriodDaily}, []int{2, 8})
	return NewCoordinator(jobs, enforcer, client, testOptions()), jobs, enforcer
}

func scheduledJob(t *testing.T, jobs *job.Store) *job.Job {
	t.Helper()
	j, err := job.New("benchy", job.StatusPending, "alice")
	require.NoError(t, err)
	require.NoError(t, jobs.Create(j))

	start := time.Now().Add(time.Minute)
	require.NoError(t, j.Schedule("prusa-1", start, start.Add(time.Hour)))
	require.NoError(t, jobs.Update(j))
	return j
}

func TestStartHappyPath(t *testing.T) {
	client := &fakeClient{}
	c, jobs, _ := newFixture(t, client)
	j := scheduledJob(t, jobs)

	started, err := c.Start(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPrinting, started.Status)
	assert.NotNil(t, started.ActualStart)
	assert.Equal(t, 1, client.transfers)
	assert.Equal(t, 1, client.starts)

	got, err := jobs.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPrinting, got.Status)
}

func TestStartRequiresScheduled(t *testing.T) {
	client := &fakeClient{}
	c, jobs, _ := newFixture(t, client)

	j, err := job.New("benchy", job.StatusPending, "alice")
	require.NoError(t, err)
	require.NoError(t, jobs.Create(j))

	_, err = c.Start(context.Background(), j.ID)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
	assert.Zero(t, client.transfers, "no printer traffic for non-scheduled jobs")
}

func TestTransferFailureLeavesJobScheduled(t *testing.T) {
	client := &fakeClient{transferErr: errors.New("connection refused")}
	c, jobs, _ := newFixture(t, client)
	j := scheduledJob(t, jobs)

	_, err := c.Start(context.Background(), j.ID)
	require.True(t, errors.Is(err, errors.ErrDispatchFailed))
	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageTransfer, stage)
	assert.Zero(t, client.starts, "start must not run after a failed transfer")

	got, err := jobs.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusScheduled, got.Status, "job stays scheduled for retry")
	assert.NotNil(t, got.ScheduledStart, "slot must be retained")
}

func TestStartFailureMarksJobFailed(t *testing.T) {
	client := &fakeClient{startErr: errors.New("nozzle jam")}
	c, jobs, enforcer := newFixture(t, client)
	j := scheduledJob(t, jobs)
	require.NoError(t, enforcer.Reserve("alice", j.ID, 10, 1))

	_, err := c.Start(context.Background(), j.ID)
	require.True(t, errors.Is(err, errors.ErrDispatchFailed))
	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageStart, stage)

	got, err := jobs.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Equal(t, FailureReasonStartFailed, got.FailureReason)
	assert.Nil(t, got.ScheduledStart, "slot must be released")

	// the quota reservation was refunded
	usage, _, err := enforcer.UsageFor("alice")
	require.NoError(t, err)
	assert.Zero(t, usage.Jobs)
}

func TestTransferRetryAfterFailure(t *testing.T) {
	client := &fakeClient{transferErr: errors.New("timeout")}
	c, jobs, _ := newFixture(t, client)
	j := scheduledJob(t, jobs)

	_, err := c.Start(context.Background(), j.ID)
	require.Error(t, err)

	// printer comes back; the same job dispatches cleanly
	client.transferErr = nil
	started, err := c.Start(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPrinting, started.Status)
	assert.Equal(t, 2, client.transfers)
}

func TestRateLimiterWaits(t *testing.T) {
	client := &fakeClient{}
	conn := pftesting.CreateTestDB(t)
	jobs := job.NewStore(conn)
	opts := testOptions()
	opts.StartsPerMinute = 60 // one start per second, burst 1
	c := NewCoordinator(jobs, nil, client, opts)

	first := scheduledJob(t, jobs)
	second := scheduledJob(t, jobs)

	_, err := c.Start(context.Background(), first.ID)
	require.NoError(t, err)

	// the second start on the same printer must wait for the limiter
	before := time.Now()
	_, err = c.Start(context.Background(), second.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(before), 500*time.Millisecond)
}
