package lattice

import (
	"math"
	"testing"

	"github.com/banshee-data/bandfit/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestARhomb(t *testing.T) {
	want := math.Sqrt(4.138*4.138/3.0 + 28.64*28.64/9.0)
	assert.Equal(t, want, ARhomb)
	assert.InDelta(t, 9.8411, ARhomb, 1e-3)
}

func TestRhombToCartesian_Zero(t *testing.T) {
	got := RhombToCartesian(KPoint{})
	for i, v := range got {
		if v != 0 {
			t.Errorf("component %d = %v, want 0", i, v)
		}
	}
}

func TestRhombToCartesian_Deterministic(t *testing.T) {
	inputs := []KPoint{
		{0.01, -0.02, 0.03},
		{0.1, 0, 0},
		{-0.05, 0.05, 0.025},
		{1e-9, 2e-9, -3e-9},
	}
	for _, k := range inputs {
		first := RhombToCartesian(k)
		for i := 0; i < 5; i++ {
			again := RhombToCartesian(k)
			for j := range first {
				if math.Float64bits(first[j]) != math.Float64bits(again[j]) {
					t.Fatalf("RhombToCartesian(%v)[%d] not bit-identical: %v vs %v", k, j, first[j], again[j])
				}
			}
		}
	}
}

func TestRhombToCartesian_KnownPoints(t *testing.T) {
	pi2 := 2.0 * math.Pi
	unit := pi2 / ARhomb

	tests := []struct {
		name string
		k    KPoint
		want Cartesian
	}{
		{
			name: "b1 direction",
			k:    KPoint{1, 0, 0},
			want: Cartesian{unit, -unit / math.Sqrt(3), unit},
		},
		{
			name: "b2 direction",
			k:    KPoint{0, 1, 0},
			want: Cartesian{0, 2 * unit / math.Sqrt(3), unit},
		},
		{
			name: "gamma to Z",
			k:    KPoint{1, 1, 1},
			want: Cartesian{0, 0, 3 * unit},
		},
		{
			name: "in-plane",
			k:    KPoint{0.5, 0, -0.5},
			want: Cartesian{unit, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RhombToCartesian(tt.k)
			testutil.AssertAllClose(t, got[:], tt.want[:], 1e-12)
		})
	}
}

func TestRhombToCartesian_Linear(t *testing.T) {
	a := KPoint{0.02, -0.01, 0.04}
	b := KPoint{-0.03, 0.05, 0.01}
	sum := KPoint{a[0] + b[0], a[1] + b[1], a[2] + b[2]}

	ta, tb, ts := RhombToCartesian(a), RhombToCartesian(b), RhombToCartesian(sum)
	for i := range ts {
		assert.InDelta(t, ta[i]+tb[i], ts[i], 1e-14)
	}
}

func TestKPointNorm(t *testing.T) {
	assert.Equal(t, 0.0, KPoint{}.Norm())
	assert.InDelta(t, 5.0, KPoint{3, 4, 0}.Norm(), 1e-15)
	assert.InDelta(t, math.Sqrt(3)*0.1, KPoint{0.1, -0.1, 0.1}.Norm(), 1e-15)
}
