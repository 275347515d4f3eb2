package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/bandfit/internal/fsutil"
)

// StoredKeys are the values an estimate record must provide. A2 and B2
// are derived from A0 and B0.
var StoredKeys = []string{"C0", "C1", "C2", "M0", "M1", "M2", "A0", "B0", "R1", "R2"}

// maxEstimateSize bounds estimate files; they hold ten numbers.
const maxEstimateSize = 1 * 1024 * 1024

// MissingKeyError reports required estimate values that were not found.
type MissingKeyError struct {
	Keys   []string
	Source string
}

func (e *MissingKeyError) Error() string {
	msg := fmt.Sprintf("initial estimate missing required key(s): %s", strings.Join(e.Keys, ", "))
	if e.Source != "" {
		msg += " in " + e.Source
	}
	return msg
}

// EstimateFromStored builds the initial parameter vector from stored
// values, setting A2 = -A0/2 and B2 = -B0/2. The relation is applied here
// only; the optimizer is free to break it.
func EstimateFromStored(stored map[string]float64) (Vector, error) {
	var missing []string
	for _, key := range StoredKeys {
		if _, ok := stored[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Vector{}, &MissingKeyError{Keys: missing}
	}

	s := Set{
		C0: stored["C0"], C1: stored["C1"], C2: stored["C2"],
		M0: stored["M0"], M1: stored["M1"], M2: stored["M2"],
		A0: stored["A0"], A2: -0.5 * stored["A0"],
		B0: stored["B0"], B2: -0.5 * stored["B0"],
		R1: stored["R1"], R2: stored["R2"],
	}
	return s.Vector(), nil
}

// LoadEstimate reads a JSON estimate record and returns the initial vector.
// Unknown keys (including stored A2/B2) are ignored; null values count as
// missing.
func LoadEstimate(fsys fsutil.FileSystem, path string) (Vector, error) {
	data, err := fsutil.ReadLimited(fsys, path, ".json", maxEstimateSize)
	if err != nil {
		return Vector{}, fmt.Errorf("failed to load estimate: %w", err)
	}

	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return Vector{}, fmt.Errorf("failed to parse estimate JSON %s: %w", path, err)
	}

	stored := make(map[string]float64, len(raw))
	for k, v := range raw {
		if v != nil {
			stored[k] = *v
		}
	}

	v, err := EstimateFromStored(stored)
	if err != nil {
		var mk *MissingKeyError
		if errors.As(err, &mk) {
			mk.Source = path
		}
		return Vector{}, err
	}
	return v, nil
}
