package fleet

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/spoolworks/printfarm/errors"
)

// Store persists printers in SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a printer store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const printerColumns = `id, name, active, tags, slots, created_at, updated_at`

// Create inserts a new printer
func (s *Store) Create(p *Printer) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal tags")
	}
	slots, err := json.Marshal(p.Slots)
	if err != nil {
		return errors.Wrap(err, "failed to marshal slots")
	}

	_, err = s.db.Exec(`
		INSERT INTO printers (`+printerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Active, string(tags), string(slots), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return errors.WithDetail(
			errors.Wrap(err, "failed to insert printer"),
			"printer_id: "+p.ID)
	}
	return nil
}

// Get retrieves a printer by ID
func (s *Store) Get(id string) (*Printer, error) {
	row := s.db.QueryRow(`SELECT `+printerColumns+` FROM printers WHERE id = ?`, id)
	p, err := scanPrinter(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("printer", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get printer")
	}
	return p, nil
}

// Update persists a modified printer
func (s *Store) Update(p *Printer) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal tags")
	}
	slots, err := json.Marshal(p.Slots)
	if err != nil {
		return errors.Wrap(err, "failed to marshal slots")
	}

	result, err := s.db.Exec(`
		UPDATE printers SET name = ?, active = ?, tags = ?, slots = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Active, string(tags), string(slots), time.Now(), p.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update printer")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.NewNotFound("printer", p.ID)
	}
	return nil
}

// SetActive toggles a printer in or out of the scheduling pool
func (s *Store) SetActive(id string, active bool) error {
	result, err := s.db.Exec(`
		UPDATE printers SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id)
	if err != nil {
		return errors.Wrap(err, "failed to set printer active state")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.NewNotFound("printer", id)
	}
	return nil
}

// Delete removes a printer by ID
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM printers WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete printer")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if rows == 0 {
		return errors.NewNotFound("printer", id)
	}
	return nil
}

// List returns all printers ordered by name
func (s *Store) List() ([]*Printer, error) {
	rows, err := s.db.Query(`SELECT ` + printerColumns + ` FROM printers ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list printers")
	}
	defer rows.Close()
	return scanPrinters(rows)
}

// ListActive returns printers available for scheduling
func (s *Store) ListActive() ([]*Printer, error) {
	rows, err := s.db.Query(`
		SELECT ` + printerColumns + ` FROM printers WHERE active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active printers")
	}
	defer rows.Close()
	return scanPrinters(rows)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrinter(row scanner) (*Printer, error) {
	var p Printer
	var tags, slots string
	err := row.Scan(&p.ID, &p.Name, &p.Active, &tags, &slots, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tags")
	}
	if err := json.Unmarshal([]byte(slots), &p.Slots); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal slots")
	}
	return &p, nil
}

func scanPrinters(rows *sql.Rows) ([]*Printer, error) {
	var printers []*Printer
	for rows.Next() {
		p, err := scanPrinter(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan printer row")
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}
