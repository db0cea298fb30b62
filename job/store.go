package job

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/spoolworks/printfarm/errors"
)

// Store persists jobs in SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a job store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, name, model_ref, quantity, notes, priority, duration_minutes,
	grams_estimate, colors, required_tags, due_at, printer_override, status,
	printer_id, scheduled_start, scheduled_end, actual_start, actual_end,
	submitted_by, rejection_reason, failure_reason, failure_notes,
	manual_position, order_item_ref, version, created_at, updated_at`

// Create inserts a new job
func (s *Store) Create(j *Job) error {
	colors, err := json.Marshal(j.Colors)
	if err != nil {
		return errors.Wrap(err, "failed to marshal colors")
	}
	tags, err := json.Marshal(j.RequiredTags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal required tags")
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, nullString(j.ModelRef), j.Quantity, nullString(j.Notes),
		j.Priority, j.DurationMinutes, j.GramsEstimate, string(colors), string(tags),
		j.DueAt, nullString(j.PrinterOverride), string(j.Status),
		nullString(j.PrinterID), j.ScheduledStart, j.ScheduledEnd, j.ActualStart, j.ActualEnd,
		nullString(j.SubmittedBy), nullString(j.RejectionReason),
		nullString(j.FailureReason), nullString(j.FailureNotes),
		j.ManualPosition, nullString(j.OrderItemRef), j.Version, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return errors.WithDetail(
			errors.Wrap(err, "failed to insert job"),
			"job_id: "+j.ID)
	}
	return nil
}

// Get retrieves a job by ID
func (s *Store) Get(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("job", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return j, nil
}

// Update persists a modified job with an optimistic version check. The row
// is only written when the stored version still matches the one the job was
// loaded with; otherwise a concurrent writer got there first and the caller
// must re-read and retry.
func (s *Store) Update(j *Job) error {
	colors, err := json.Marshal(j.Colors)
	if err != nil {
		return errors.Wrap(err, "failed to marshal colors")
	}
	tags, err := json.Marshal(j.RequiredTags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal required tags")
	}

	result, err := s.db.Exec(`
		UPDATE jobs SET
			name = ?, model_ref = ?, quantity = ?, notes = ?, priority = ?,
			duration_minutes = ?, grams_estimate = ?, colors = ?, required_tags = ?,
			due_at = ?, printer_override = ?, status = ?, printer_id = ?,
			scheduled_start = ?, scheduled_end = ?, actual_start = ?, actual_end = ?,
			submitted_by = ?, rejection_reason = ?, failure_reason = ?, failure_notes = ?,
			manual_position = ?, order_item_ref = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		j.Name, nullString(j.ModelRef), j.Quantity, nullString(j.Notes), j.Priority,
		j.DurationMinutes, j.GramsEstimate, string(colors), string(tags),
		j.DueAt, nullString(j.PrinterOverride), string(j.Status), nullString(j.PrinterID),
		j.ScheduledStart, j.ScheduledEnd, j.ActualStart, j.ActualEnd,
		nullString(j.SubmittedBy), nullString(j.RejectionReason),
		nullString(j.FailureReason), nullString(j.FailureNotes),
		j.ManualPosition, nullString(j.OrderItemRef), time.Now(),
		j.ID, j.Version)
	if err != nil {
		return errors.WithDetail(
			errors.Wrap(err, "failed to update job"),
			"job_id: "+j.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		// distinguish a missing row from a stale version
		if _, getErr := s.Get(j.ID); errors.IsNotFound(getErr) {
			return getErr
		}
		return errors.WithDetail(
			errors.Wrap(errors.ErrConflict, "job modified concurrently"),
			"job_id: "+j.ID)
	}
	j.Version++
	return nil
}

// Delete removes a job by ID
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if rows == 0 {
		return errors.NewNotFound("job", id)
	}
	return nil
}

// ListByStatus returns all jobs in the given status, oldest first
func (s *Store) ListByStatus(status Status) ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs by status")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListBacklog returns pending jobs in queue order: manual positions first
// (ascending), then priority ascending, due date ascending with nulls last,
// and creation time as the final tiebreaker.
func (s *Store) ListBacklog() ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'pending'
		ORDER BY
			manual_position IS NULL ASC,
			manual_position ASC,
			priority ASC,
			due_at IS NULL ASC,
			due_at ASC,
			created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list backlog")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListCommitted returns jobs holding printer time, i.e. scheduled or printing
func (s *Store) ListCommitted() ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT ` + jobColumns + ` FROM jobs
		WHERE status IN ('scheduled', 'printing')
		ORDER BY scheduled_start ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list committed jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// PrinterTimeline returns the committed intervals on a printer, ordered by
// start time. Jobs without a slot (should not happen for committed jobs)
// are skipped.
func (s *Store) PrinterTimeline(printerID string) ([]Interval, error) {
	rows, err := s.db.Query(`
		SELECT scheduled_start, scheduled_end FROM jobs
		WHERE printer_id = ? AND status IN ('scheduled', 'printing')
		ORDER BY scheduled_start ASC`, printerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query printer timeline")
	}
	defer rows.Close()

	var timeline []Interval
	for rows.Next() {
		var start, end *time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, errors.Wrap(err, "failed to scan timeline row")
		}
		if start == nil || end == nil {
			continue
		}
		timeline = append(timeline, Interval{Start: *start, End: *end})
	}
	return timeline, rows.Err()
}

// ListByOrderItem returns jobs linked to an order line item
func (s *Store) ListByOrderItem(orderItemRef string) ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+` FROM jobs
		WHERE order_item_ref = ? ORDER BY created_at ASC`, orderItemRef)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs by order item")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// DeleteTerminalBefore removes completed, failed, and rejected jobs whose
// last update is older than the cutoff. Returns the number deleted.
func (s *Store) DeleteTerminalBefore(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(`
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'rejected') AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete terminal jobs")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to check delete result")
	}
	return int(rows), nil
}

// CountByStatus returns job counts keyed by status
func (s *Store) CountByStatus() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan count row")
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// scanner matches both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var modelRef, notes, printerOverride, printerID sql.NullString
	var submittedBy, rejectionReason, failureReason, failureNotes, orderItemRef sql.NullString
	var colors, tags string
	var status string

	err := row.Scan(
		&j.ID, &j.Name, &modelRef, &j.Quantity, &notes, &j.Priority,
		&j.DurationMinutes, &j.GramsEstimate, &colors, &tags, &j.DueAt,
		&printerOverride, &status, &printerID,
		&j.ScheduledStart, &j.ScheduledEnd, &j.ActualStart, &j.ActualEnd,
		&submittedBy, &rejectionReason, &failureReason, &failureNotes,
		&j.ManualPosition, &orderItemRef, &j.Version, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	j.ModelRef = modelRef.String
	j.Notes = notes.String
	j.PrinterOverride = printerOverride.String
	j.Status = Status(status)
	j.PrinterID = printerID.String
	j.SubmittedBy = submittedBy.String
	j.RejectionReason = rejectionReason.String
	j.FailureReason = failureReason.String
	j.FailureNotes = failureNotes.String
	j.OrderItemRef = orderItemRef.String

	if err := json.Unmarshal([]byte(colors), &j.Colors); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal colors")
	}
	if err := json.Unmarshal([]byte(tags), &j.RequiredTags); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal required tags")
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job row")
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
