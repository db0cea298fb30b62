package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/job"
)

var testPolicy = Policy{
	RequireApproval: true,
	ReviewedRoles:   []string{"student"},
	ReviewerRoles:   []string{"staff", "admin"},
}

var (
	student  = Principal{ID: "alice", Roles: []string{"student"}}
	staff    = Principal{ID: "bob", Roles: []string{"staff"}}
	external = Principal{ID: "carol", Roles: []string{"guest"}}
)

func TestInitialStatus(t *testing.T) {
	gate := NewGate(testPolicy, nil)

	assert.Equal(t, job.StatusSubmitted, gate.InitialStatus(student))
	assert.Equal(t, job.StatusPending, gate.InitialStatus(staff), "reviewers bypass the gate")
	assert.Equal(t, job.StatusPending, gate.InitialStatus(external), "unlisted roles bypass the gate")
}

func TestInitialStatusApprovalDisabled(t *testing.T) {
	gate := NewGate(Policy{RequireApproval: false}, nil)
	assert.Equal(t, job.StatusPending, gate.InitialStatus(student))
}

func TestInitialStatusNoReviewedRolesGatesEveryone(t *testing.T) {
	gate := NewGate(Policy{
		RequireApproval: true,
		ReviewerRoles:   []string{"staff"},
	}, nil)
	assert.Equal(t, job.StatusSubmitted, gate.InitialStatus(external))
	assert.Equal(t, job.StatusPending, gate.InitialStatus(staff))
}

func TestApproveAuthorization(t *testing.T) {
	gate := NewGate(testPolicy, nil)

	j, err := job.New("benchy", job.StatusSubmitted, student.ID)
	require.NoError(t, err)

	err = gate.Approve(j, student)
	assert.True(t, errors.Is(err, errors.ErrAuthorizationDenied))
	assert.Equal(t, job.StatusSubmitted, j.Status)

	require.NoError(t, gate.Approve(j, staff))
	assert.Equal(t, job.StatusPending, j.Status)
}

func TestRejectAuthorizationAndReason(t *testing.T) {
	gate := NewGate(testPolicy, nil)

	j, err := job.New("benchy", job.StatusSubmitted, student.ID)
	require.NoError(t, err)

	err = gate.Reject(j, student, "nope")
	assert.True(t, errors.Is(err, errors.ErrAuthorizationDenied))

	assert.Error(t, gate.Reject(j, staff, ""), "reject requires a reason")

	require.NoError(t, gate.Reject(j, staff, "unsupported material"))
	assert.Equal(t, job.StatusRejected, j.Status)
}

func TestResubmitAuthorization(t *testing.T) {
	gate := NewGate(testPolicy, nil)

	j, err := job.New("benchy", job.StatusSubmitted, student.ID)
	require.NoError(t, err)
	require.NoError(t, gate.Reject(j, staff, "fix orientation"))

	err = gate.Resubmit(j, external)
	assert.True(t, errors.Is(err, errors.ErrAuthorizationDenied))

	// original submitter may resubmit
	require.NoError(t, gate.Resubmit(j, student))
	assert.Equal(t, job.StatusSubmitted, j.Status)

	// a reviewer may resubmit someone else's job
	require.NoError(t, gate.Reject(j, staff, "still wrong"))
	require.NoError(t, gate.Resubmit(j, staff))
}

type allowAll struct{}

func (allowAll) CanReview(Principal) bool { return true }

func TestCustomAuthorizer(t *testing.T) {
	gate := NewGate(testPolicy, allowAll{})

	j, err := job.New("benchy", job.StatusSubmitted, student.ID)
	require.NoError(t, err)
	assert.NoError(t, gate.Approve(j, external))
}
