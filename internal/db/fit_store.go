package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/bandfit/internal/bands"
	"github.com/banshee-data/bandfit/internal/fit"
	"github.com/google/uuid"
)

// ErrFitNotFound is returned when no fit result has the requested ID.
var ErrFitNotFound = errors.New("fit result not found")

// FitRecord is a persisted final fit result.
type FitRecord struct {
	FitID        string          `json:"fit_id"`
	Status       int             `json:"status"`
	StatusText   string          `json:"status_text"`
	Success      bool            `json:"success"`
	ResidualNorm float64         `json:"residual_norm"`
	Evaluations  int             `json:"evaluations"`
	Iterations   int             `json:"iterations"`
	Retained     int             `json:"retained_points"`
	Fermi        float64         `json:"fermi_energy"`
	Window       bands.Window    `json:"band_window"`
	ParamsJSON   json.RawMessage `json:"params_json"`
	InitialJSON  json.RawMessage `json:"initial_json,omitempty"`
	Source       string          `json:"source"`
	CreatedAt    int64           `json:"created_at"`
}

// NewFitRecord converts a fit report into a record ready for Insert.
// Parameters are stored as a JSON object keyed by name.
func NewFitRecord(rep *fit.Report, fermi float64, source string) (*FitRecord, error) {
	if rep == nil {
		return nil, fmt.Errorf("nil fit report")
	}
	p, err := json.Marshal(rep.Params.Map())
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	initial, err := json.Marshal(rep.Initial.Map())
	if err != nil {
		return nil, fmt.Errorf("marshal initial params: %w", err)
	}
	return &FitRecord{
		Status:       int(rep.Result.Status),
		StatusText:   rep.Result.Status.String(),
		Success:      rep.Success(),
		ResidualNorm: rep.Result.ResidualNorm,
		Evaluations:  rep.Result.Evaluations,
		Iterations:   rep.Result.Iterations,
		Retained:     rep.Retained,
		Fermi:        fermi,
		Window:       rep.Window,
		ParamsJSON:   p,
		InitialJSON:  initial,
		Source:       source,
	}, nil
}

// Params decodes ParamsJSON.
func (r *FitRecord) Params() (map[string]float64, error) {
	var m map[string]float64
	if err := json.Unmarshal(r.ParamsJSON, &m); err != nil {
		return nil, fmt.Errorf("decode params for fit %s: %w", r.FitID, err)
	}
	return m, nil
}

// FitStore provides persistence for fit results.
type FitStore struct {
	db *sql.DB
}

// NewFitStore creates a new FitStore.
func NewFitStore(db *DB) *FitStore {
	return &FitStore{db: db.DB}
}

const fitColumns = `fit_id, status, status_text, success, residual_norm, evaluations,
	iterations, retained_points, fermi_energy, band_window, params_json,
	initial_json, source, created_at`

// Insert persists a fit result. If FitID is empty, a UUID is generated.
func (s *FitStore) Insert(rec *FitRecord) error {
	if rec.FitID == "" {
		rec.FitID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixNano()
	}
	if len(rec.ParamsJSON) == 0 {
		return fmt.Errorf("fit %s has no parameters", rec.FitID)
	}

	window, err := json.Marshal(rec.Window)
	if err != nil {
		return fmt.Errorf("marshal band window: %w", err)
	}
	var initial interface{}
	if len(rec.InitialJSON) > 0 {
		initial = string(rec.InitialJSON)
	}

	_, err = s.db.Exec(`INSERT INTO fit_results (`+fitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FitID, rec.Status, rec.StatusText, rec.Success, rec.ResidualNorm, rec.Evaluations,
		rec.Iterations, rec.Retained, rec.Fermi, string(window), string(rec.ParamsJSON),
		initial, rec.Source, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fit %s: %w", rec.FitID, err)
	}
	return nil
}

// Get returns a single fit result by ID.
func (s *FitStore) Get(fitID string) (*FitRecord, error) {
	row := s.db.QueryRow(`SELECT `+fitColumns+` FROM fit_results WHERE fit_id = ?`, fitID)
	rec, err := scanFit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFitNotFound, fitID)
	}
	return rec, err
}

// List returns the most recent fit results, newest first. A limit of zero
// or less returns every result.
func (s *FitStore) List(limit int) ([]*FitRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+fitColumns+` FROM fit_results
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fit results: %w", err)
	}
	defer rows.Close()

	var recs []*FitRecord
	for rows.Next() {
		rec, err := scanFit(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes a fit result by ID.
func (s *FitStore) Delete(fitID string) error {
	result, err := s.db.Exec(`DELETE FROM fit_results WHERE fit_id = ?`, fitID)
	if err != nil {
		return fmt.Errorf("delete fit: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrFitNotFound, fitID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFit(row scanner) (*FitRecord, error) {
	var (
		rec     FitRecord
		window  string
		params  string
		initial sql.NullString
	)
	err := row.Scan(
		&rec.FitID, &rec.Status, &rec.StatusText, &rec.Success, &rec.ResidualNorm, &rec.Evaluations,
		&rec.Iterations, &rec.Retained, &rec.Fermi, &window, &params,
		&initial, &rec.Source, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan fit row: %w", err)
	}
	if err := json.Unmarshal([]byte(window), &rec.Window); err != nil {
		return nil, fmt.Errorf("decode band window for fit %s: %w", rec.FitID, err)
	}
	rec.ParamsJSON = json.RawMessage(params)
	if initial.Valid {
		rec.InitialJSON = json.RawMessage(initial.String)
	}
	return &rec, nil
}
