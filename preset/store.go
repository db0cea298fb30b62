package preset

import (
	"database/sql"
	"encoding/json"

	"github.com/spoolworks/printfarm/errors"
)

// Store persists presets in SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a preset store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const presetColumns = `id, name, item_name, model_ref, quantity, priority,
	duration_minutes, grams_estimate, colors, required_tags, notes, created_at`

// Create inserts a new preset. Names are unique; a duplicate name fails.
func (s *Store) Create(p *Preset) error {
	colors, err := json.Marshal(p.Colors)
	if err != nil {
		return errors.Wrap(err, "failed to marshal colors")
	}
	tags, err := json.Marshal(p.RequiredTags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal required tags")
	}

	_, err = s.db.Exec(`
		INSERT INTO presets (`+presetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.ItemName, nullString(p.ModelRef), p.Quantity, p.Priority,
		p.DurationMinutes, p.GramsEstimate, string(colors), string(tags),
		nullString(p.Notes), p.CreatedAt)
	if err != nil {
		return errors.WithDetail(
			errors.Wrap(err, "failed to insert preset"),
			"preset_name: "+p.Name)
	}
	return nil
}

// Get retrieves a preset by ID
func (s *Store) Get(id string) (*Preset, error) {
	row := s.db.QueryRow(`SELECT `+presetColumns+` FROM presets WHERE id = ?`, id)
	p, err := scanPreset(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("preset", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get preset")
	}
	return p, nil
}

// GetByName retrieves a preset by its unique name
func (s *Store) GetByName(name string) (*Preset, error) {
	row := s.db.QueryRow(`SELECT `+presetColumns+` FROM presets WHERE name = ?`, name)
	p, err := scanPreset(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("preset", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get preset by name")
	}
	return p, nil
}

// Delete removes a preset by ID
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM presets WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete preset")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if rows == 0 {
		return errors.NewNotFound("preset", id)
	}
	return nil
}

// List returns all presets ordered by name
func (s *Store) List() ([]*Preset, error) {
	rows, err := s.db.Query(`SELECT ` + presetColumns + ` FROM presets ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list presets")
	}
	defer rows.Close()

	var presets []*Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan preset row")
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPreset(row scanner) (*Preset, error) {
	var p Preset
	var modelRef, notes sql.NullString
	var colors, tags string

	err := row.Scan(&p.ID, &p.Name, &p.ItemName, &modelRef, &p.Quantity, &p.Priority,
		&p.DurationMinutes, &p.GramsEstimate, &colors, &tags, &notes, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ModelRef = modelRef.String
	p.Notes = notes.String

	if err := json.Unmarshal([]byte(colors), &p.Colors); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal colors")
	}
	if err := json.Unmarshal([]byte(tags), &p.RequiredTags); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal required tags")
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
