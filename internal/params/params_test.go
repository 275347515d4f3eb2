package params

import (
	"errors"
	"testing"

	"github.com/banshee-data/bandfit/internal/fsutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStored() map[string]float64 {
	return map[string]float64{
		"C0": -0.0068, "C1": 1.3, "C2": 19.6,
		"M0": 0.28, "M1": 6.86, "M2": 44.5,
		"A0": 2.0, "B0": 4.0,
		"R1": 50.6, "R2": -113.3,
	}
}

func TestVectorNamed(t *testing.T) {
	var v Vector
	for i := range v {
		v[i] = float64(i + 1)
	}

	want := Set{
		C0: 1, C1: 2, C2: 3,
		M0: 4, M1: 5, M2: 6,
		A0: 7, A2: 8,
		B0: 9, B2: 10,
		R1: 11, R2: 12,
	}
	if diff := cmp.Diff(want, v.Named()); diff != "" {
		t.Errorf("Named() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, v, v.Named().Vector())
}

func TestVectorMap(t *testing.T) {
	var v Vector
	for i := range v {
		v[i] = float64(-i)
	}
	m := v.Map()
	require.Len(t, m, Len)
	for i, name := range Names {
		assert.Equal(t, v[i], m[name], name)
	}
}

func TestVectorSliceIsCopy(t *testing.T) {
	v := Vector{1, 2, 3}
	s := v.Slice()
	s[0] = 99
	assert.Equal(t, 1.0, v[0])

	back := FromSlice(s)
	assert.Equal(t, 99.0, back[0])
	assert.Panics(t, func() { FromSlice([]float64{1, 2}) })
}

func TestVectorString(t *testing.T) {
	v := Vector{1.5, -2}
	assert.Equal(t, "[1.5 -2 0 0 0 0 0 0 0 0 0 0]", v.String())
}

func TestEstimateFromStored_Symmetry(t *testing.T) {
	v, err := EstimateFromStored(sampleStored())
	require.NoError(t, err)

	s := v.Named()
	assert.Equal(t, 2.0, s.A0)
	assert.Equal(t, -1.0, s.A2)
	assert.Equal(t, 4.0, s.B0)
	assert.Equal(t, -2.0, s.B2)
	assert.Equal(t, -0.0068, s.C0)
	assert.Equal(t, 44.5, s.M2)
	assert.Equal(t, -113.3, s.R2)
}

func TestEstimateFromStored_Missing(t *testing.T) {
	stored := sampleStored()
	delete(stored, "M1")
	delete(stored, "R2")

	_, err := EstimateFromStored(stored)
	require.Error(t, err)

	var mk *MissingKeyError
	require.True(t, errors.As(err, &mk))
	assert.Equal(t, []string{"M1", "R2"}, mk.Keys)
	assert.Contains(t, err.Error(), "M1, R2")
}

func TestLoadEstimate(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/4band.json", []byte(`{
		"C0": -0.0068, "C1": 1.3, "C2": 19.6,
		"M0": 0.28, "M1": 6.86, "M2": 44.5,
		"A0": 2.0, "A2": 123.0, "B0": 4.0,
		"R1": 50.6, "R2": -113.3, "note": null
	}`), 0o644))

	v, err := LoadEstimate(mfs, "/4band.json")
	require.NoError(t, err)

	// Stored A2 is ignored in favour of the derived value.
	assert.Equal(t, -1.0, v.Named().A2)
	assert.Equal(t, -2.0, v.Named().B2)
	assert.Equal(t, 6.86, v.Named().M1)
}

func TestLoadEstimate_Errors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/partial.json", []byte(`{"C0": 1, "C1": null}`), 0o644))
	require.NoError(t, mfs.WriteFile("/broken.json", []byte(`{"C0": `), 0o644))

	t.Run("missing keys name the source", func(t *testing.T) {
		_, err := LoadEstimate(mfs, "/partial.json")
		var mk *MissingKeyError
		require.True(t, errors.As(err, &mk))
		assert.Equal(t, "/partial.json", mk.Source)
		assert.Contains(t, mk.Keys, "C1")
		assert.NotContains(t, mk.Keys, "C0")
		assert.Contains(t, err.Error(), "/partial.json")
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := LoadEstimate(mfs, "/broken.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse estimate JSON")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadEstimate(mfs, "/none.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load estimate")
	})
}
