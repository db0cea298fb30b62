// Package approval gates job submissions behind reviewer sign-off, driven
// by role-based policy.
package approval

import (
	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/job"
)

// Principal is the acting identity for gate decisions
type Principal struct {
	ID    string
	Roles []string
}

// HasRole reports whether the principal carries any of the given roles
func (p Principal) HasRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Authorizer lets callers plug in their own review-permission source. The
// default implementation checks role membership against the policy.
type Authorizer interface {
	// CanReview reports whether the principal may approve or reject jobs
	CanReview(p Principal) bool
}

// Policy configures which submitters need review and who may review
type Policy struct {
	RequireApproval bool     // master switch; false means every job starts pending
	ReviewedRoles   []string // submitters with these roles start in submitted
	ReviewerRoles   []string // principals with these roles may approve/reject
}

// Gate applies the approval policy to job lifecycle moves
type Gate struct {
	policy Policy
	auth   Authorizer
}

// roleAuthorizer is the default Authorizer backed by the policy's roles
type roleAuthorizer struct {
	reviewerRoles []string
}

func (a roleAuthorizer) CanReview(p Principal) bool {
	return p.HasRole(a.reviewerRoles...)
}

// NewGate creates a gate for the given policy. A nil authorizer falls back
// to role membership in the policy's reviewer roles.
func NewGate(policy Policy, auth Authorizer) *Gate {
	if auth == nil {
		auth = roleAuthorizer{reviewerRoles: policy.ReviewerRoles}
	}
	return &Gate{policy: policy, auth: auth}
}

// InitialStatus decides where a new job enters the lifecycle. Reviewers and
// unlisted roles skip the gate; listed submitter roles (or everyone, when no
// reviewed roles are listed) start in submitted.
func (g *Gate) InitialStatus(submitter Principal) job.Status {
	if !g.policy.RequireApproval {
		return job.StatusPending
	}
	if g.auth.CanReview(submitter) {
		return job.StatusPending
	}
	if len(g.policy.ReviewedRoles) == 0 || submitter.HasRole(g.policy.ReviewedRoles...) {
		return job.StatusSubmitted
	}
	return job.StatusPending
}

// Approve moves a submitted job to pending, provided the reviewer is
// authorized.
func (g *Gate) Approve(j *job.Job, reviewer Principal) error {
	if !g.auth.CanReview(reviewer) {
		return errors.Wrapf(errors.ErrAuthorizationDenied,
			"%s may not approve jobs", reviewer.ID)
	}
	return j.Approve()
}

// Reject moves a submitted job to rejected with a mandatory reason,
// provided the reviewer is authorized.
func (g *Gate) Reject(j *job.Job, reviewer Principal, reason string) error {
	if !g.auth.CanReview(reviewer) {
		return errors.Wrapf(errors.ErrAuthorizationDenied,
			"%s may not reject jobs", reviewer.ID)
	}
	return j.Reject(reason)
}

// Resubmit returns a rejected job to the gate. Only the original submitter
// or a reviewer may resubmit.
func (g *Gate) Resubmit(j *job.Job, p Principal) error {
	if p.ID != j.SubmittedBy && !g.auth.CanReview(p) {
		return errors.Wrapf(errors.ErrAuthorizationDenied,
			"%s may not resubmit job %s", p.ID, j.ID)
	}
	return j.Resubmit()
}
