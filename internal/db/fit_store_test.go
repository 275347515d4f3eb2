package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/banshee-data/bandfit/internal/bands"
	"github.com/banshee-data/bandfit/internal/fit"
	"github.com/banshee-data/bandfit/internal/params"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "fits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testReport() *fit.Report {
	var initial, final params.Vector
	for i := range initial {
		initial[i] = float64(i) + 0.5
		final[i] = float64(i) + 0.25
	}
	return &fit.Report{
		Params:   final,
		Initial:  initial,
		Window:   bands.Window{10, 11, 12, 13},
		Retained: 27,
		Result: fit.Result{
			X:            final.Slice(),
			ResidualNorm: 1.5e-9,
			Status:       fit.ConvergedBoth,
			Evaluations:  143,
			Iterations:   9,
		},
	}
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fit_results'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewDB_ReopenIsNoChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fits.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestFitStore_InsertGet(t *testing.T) {
	store := NewFitStore(setupTestDB(t))

	rec, err := NewFitRecord(testReport(), 5.4321, "bands.json")
	require.NoError(t, err)
	require.NoError(t, store.Insert(rec))
	assert.NotEmpty(t, rec.FitID)
	assert.NotZero(t, rec.CreatedAt)

	got, err := store.Get(rec.FitID)
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("Get mismatch (-inserted +got):\n%s", diff)
	}

	assert.True(t, got.Success)
	assert.Equal(t, "converged (cost and parameter tolerance)", got.StatusText)
	assert.Equal(t, bands.Window{10, 11, 12, 13}, got.Window)

	p, err := got.Params()
	require.NoError(t, err)
	assert.Len(t, p, params.Len)
	assert.Equal(t, 0.25, p["C0"])
	assert.Equal(t, 11.25, p["R2"])
}

func TestFitStore_GetMissing(t *testing.T) {
	store := NewFitStore(setupTestDB(t))
	_, err := store.Get("nope")
	assert.True(t, errors.Is(err, ErrFitNotFound))
}

func TestFitStore_InsertRequiresParams(t *testing.T) {
	store := NewFitStore(setupTestDB(t))
	assert.Error(t, store.Insert(&FitRecord{}))
}

func TestFitStore_ListNewestFirst(t *testing.T) {
	store := NewFitStore(setupTestDB(t))

	for i := 1; i <= 3; i++ {
		rec, err := NewFitRecord(testReport(), 0, "bands.json")
		require.NoError(t, err)
		rec.CreatedAt = int64(i * 1000)
		rec.FitID = string(rune('a' + i - 1))
		require.NoError(t, store.Insert(rec))
	}

	all, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].FitID, all[1].FitID, all[2].FitID})

	latest, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "c", latest[0].FitID)
}

func TestFitStore_Delete(t *testing.T) {
	store := NewFitStore(setupTestDB(t))

	rec, err := NewFitRecord(testReport(), 0, "")
	require.NoError(t, err)
	require.NoError(t, store.Insert(rec))

	require.NoError(t, store.Delete(rec.FitID))
	_, err = store.Get(rec.FitID)
	assert.True(t, errors.Is(err, ErrFitNotFound))
	assert.True(t, errors.Is(store.Delete(rec.FitID), ErrFitNotFound))
}

func TestNewFitRecord_FailedFit(t *testing.T) {
	rep := testReport()
	rep.Result.Status = fit.IterationLimit

	rec, err := NewFitRecord(rep, 1, "x")
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Equal(t, 5, rec.Status)

	_, err = NewFitRecord(nil, 0, "")
	assert.Error(t, err)
}
