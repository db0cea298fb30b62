package quota

import (
	"database/sql"
	"time"

	"github.com/spoolworks/printfarm/errors"
)

// Store persists quota limits and the consumption ledger in SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a quota store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetLimits inserts or replaces a principal's limits
func (s *Store) SetLimits(l *Limits) error {
	_, err := s.db.Exec(`
		INSERT INTO quota_limits (principal, period, max_jobs, max_grams, max_hours, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(principal) DO UPDATE SET
			period = excluded.period,
			max_jobs = excluded.max_jobs,
			max_grams = excluded.max_grams,
			max_hours = excluded.max_hours,
			updated_at = excluded.updated_at`,
		l.Principal, string(l.Period), l.MaxJobs, l.MaxGrams, l.MaxHours, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to set quota limits")
	}
	return nil
}

// GetLimits returns a principal's configured limits, or nil when the
// principal has no row and the configured defaults apply.
func (s *Store) GetLimits(principal string) (*Limits, error) {
	row := s.db.QueryRow(`
		SELECT principal, period, max_jobs, max_grams, max_hours, updated_at
		FROM quota_limits WHERE principal = ?`, principal)

	var l Limits
	var period string
	err := row.Scan(&l.Principal, &period, &l.MaxJobs, &l.MaxGrams, &l.MaxHours, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get quota limits")
	}
	l.Period = Period(period)
	return &l, nil
}

// DeleteLimits removes a principal's limits so defaults apply again
func (s *Store) DeleteLimits(principal string) error {
	_, err := s.db.Exec(`DELETE FROM quota_limits WHERE principal = ?`, principal)
	if err != nil {
		return errors.Wrap(err, "failed to delete quota limits")
	}
	return nil
}

// Reserve records a new ledger entry in the reserved state
func (s *Store) Reserve(principal, jobID string, grams, hours float64) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO quota_entries (principal, job_id, grams, hours, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'reserved', ?, ?)`,
		principal, jobID, grams, hours, now, now)
	if err != nil {
		return errors.WithDetail(
			errors.Wrap(err, "failed to reserve quota"),
			"job_id: "+jobID)
	}
	return nil
}

// Finalize settles a job's reserved entry with actual amounts
func (s *Store) Finalize(jobID string, grams, hours float64) error {
	result, err := s.db.Exec(`
		UPDATE quota_entries SET grams = ?, hours = ?, state = 'final', updated_at = ?
		WHERE job_id = ? AND state = 'reserved'`,
		grams, hours, time.Now(), jobID)
	if err != nil {
		return errors.Wrap(err, "failed to finalize quota entry")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check finalize result")
	}
	if rows == 0 {
		return errors.NewNotFound("reserved quota entry for job", jobID)
	}
	return nil
}

// Release refunds a job's reserved entry. Releasing a job with no reserved
// entry is a no-op: cancellation paths may race with release.
func (s *Store) Release(jobID string) error {
	_, err := s.db.Exec(`
		UPDATE quota_entries SET state = 'released', updated_at = ?
		WHERE job_id = ? AND state = 'reserved'`,
		time.Now(), jobID)
	if err != nil {
		return errors.Wrap(err, "failed to release quota entry")
	}
	return nil
}

// Usage sums reserved and final entries for a principal inside the window.
// Released entries never count, so consumption within a window only grows.
func (s *Store) Usage(principal string, w Window) (Usage, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(grams), 0), COALESCE(SUM(hours), 0)
		FROM quota_entries
		WHERE principal = ? AND state IN ('reserved', 'final')
		AND created_at >= ? AND created_at < ?`,
		principal, w.Start, w.End)

	var u Usage
	if err := row.Scan(&u.Jobs, &u.Grams, &u.Hours); err != nil {
		return Usage{}, errors.Wrap(err, "failed to sum quota usage")
	}
	return u, nil
}
