package bands

import (
	"errors"
	"testing"

	"github.com/banshee-data/bandfit/internal/fsutil"
	"github.com/banshee-data/bandfit/internal/lattice"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sixBands has energies -3..3 (skipping 0) at k-index 0 and a small
// dispersion at k-index 1.
func sixBands() [][]float64 {
	return [][]float64{
		{-3, -3.1},
		{-2, -2.1},
		{-1, -1.1},
		{1, 1.1},
		{2, 2.1},
		{3, 3.1},
	}
}

func TestSelect_Window(t *testing.T) {
	table, window, err := Select(sixBands(), 0)
	require.NoError(t, err)

	assert.Equal(t, Window{1, 2, 3, 4}, window)
	want := Table{
		{-2, -1, 1, 2},
		{-2.1, -1.1, 1.1, 2.1},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestSelect_FermiEqualToBandIsNotAbove(t *testing.T) {
	_, window, err := Select(sixBands(), 1)
	require.NoError(t, err)
	assert.Equal(t, Window{2, 3, 4, 5}, window)
}

func TestSelect_Errors(t *testing.T) {
	tests := []struct {
		name     string
		points   [][]float64
		fermi    float64
		stopBand int
		reason   string
	}{
		{
			name:     "fermi below lowest band",
			points:   sixBands(),
			fermi:    -10,
			stopBand: 0,
			reason:   "fewer than two bands lie below",
		},
		{
			name:     "only one band below",
			points:   sixBands(),
			fermi:    -2.5,
			stopBand: 1,
			reason:   "fewer than two bands lie below",
		},
		{
			name:     "fermi above every band",
			points:   sixBands(),
			fermi:    10,
			stopBand: -1,
			reason:   "no band lies above",
		},
		{
			name:     "only one band above",
			points:   sixBands(),
			fermi:    2.5,
			stopBand: 5,
			reason:   "fewer than two bands lie above",
		},
		{
			name:     "empty",
			points:   nil,
			stopBand: -1,
			reason:   "no bands",
		},
		{
			name:     "no k-points",
			points:   [][]float64{{}, {}},
			stopBand: -1,
			reason:   "no k-points",
		},
		{
			name:     "ragged",
			points:   [][]float64{{-2, -2}, {-1}, {1, 1}, {2, 2}},
			stopBand: -1,
			reason:   "band 1 has 1 k-points",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Select(tt.points, tt.fermi)
			var bwe *BandWindowError
			require.True(t, errors.As(err, &bwe), "expected BandWindowError, got %v", err)
			assert.Equal(t, tt.stopBand, bwe.StopBand)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestDataset_Spin(t *testing.T) {
	d := &Dataset{
		KPoints: []lattice.KPoint{{0, 0, 0}, {0.01, 0, 0}},
		Points:  [][][]float64{sixBands()},
	}
	require.NoError(t, d.Validate())

	s0, err := d.Spin(0)
	require.NoError(t, err)
	assert.Len(t, s0, 6)

	_, err = d.Spin(1)
	assert.Error(t, err)
}

func TestDataset_Validate(t *testing.T) {
	assert.Error(t, (&Dataset{}).Validate())
	assert.Error(t, (&Dataset{KPoints: []lattice.KPoint{{}}}).Validate())

	d := &Dataset{
		KPoints: []lattice.KPoint{{}, {}, {}},
		Points:  [][][]float64{sixBands()},
	}
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spin 0 band 0 has 2 energies, want 3")
}

func TestLoadDataset(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/bands.json", []byte(`{
		"kpoints": [[0, 0, 0], [0.01, 0.02, -0.01]],
		"points": [[[-2, -2.1], [-1, -1.1], [1, 1.1], [2, 2.1]]]
	}`), 0o644))
	require.NoError(t, mfs.WriteFile("/short.json", []byte(`{
		"kpoints": [[0, 0, 0]],
		"points": [[[-2, -2.1]]]
	}`), 0o644))

	d, err := LoadDataset(mfs, "/bands.json")
	require.NoError(t, err)
	assert.Equal(t, lattice.KPoint{0.01, 0.02, -0.01}, d.KPoints[1])

	spin, err := d.Spin(0)
	require.NoError(t, err)
	_, window, err := Select(spin, 0)
	require.NoError(t, err)
	assert.Equal(t, Window{0, 1, 2, 3}, window)

	_, err = LoadDataset(mfs, "/short.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid band dataset")

	_, err = LoadDataset(mfs, "/missing.json")
	require.Error(t, err)
}
