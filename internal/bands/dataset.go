package bands

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/bandfit/internal/fsutil"
	"github.com/banshee-data/bandfit/internal/lattice"
)

const maxDatasetSize = 256 * 1024 * 1024

// Dataset is a DFT band structure converted to JSON by an external
// EIGENVAL reader: k-points in rhombohedral reciprocal units and energies
// indexed Points[spin][band][k].
type Dataset struct {
	KPoints []lattice.KPoint `json:"kpoints"`
	Points  [][][]float64    `json:"points"`
}

// Spin returns the band table for one spin channel.
func (d *Dataset) Spin(s int) ([][]float64, error) {
	if s < 0 || s >= len(d.Points) {
		return nil, fmt.Errorf("spin channel %d not present (dataset has %d)", s, len(d.Points))
	}
	return d.Points[s], nil
}

// Validate checks that every band row is aligned with the k-point list.
func (d *Dataset) Validate() error {
	if len(d.KPoints) == 0 {
		return fmt.Errorf("dataset has no k-points")
	}
	if len(d.Points) == 0 {
		return fmt.Errorf("dataset has no spin channels")
	}
	for s, spin := range d.Points {
		for b, row := range spin {
			if len(row) != len(d.KPoints) {
				return fmt.Errorf("spin %d band %d has %d energies, want %d", s, b, len(row), len(d.KPoints))
			}
		}
	}
	return nil
}

// LoadDataset reads and validates a JSON band dataset.
func LoadDataset(fsys fsutil.FileSystem, path string) (*Dataset, error) {
	data, err := fsutil.ReadLimited(fsys, path, ".json", maxDatasetSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load band dataset: %w", err)
	}

	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse band dataset JSON %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid band dataset %s: %w", path, err)
	}
	return &d, nil
}
