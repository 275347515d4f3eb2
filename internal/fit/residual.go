package fit

import (
	"fmt"

	"github.com/banshee-data/bandfit/internal/bands"
	"github.com/banshee-data/bandfit/internal/eigen"
	"github.com/banshee-data/bandfit/internal/hamiltonian"
	"github.com/banshee-data/bandfit/internal/lattice"
	"github.com/banshee-data/bandfit/internal/params"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultCutoff is the largest |k|, in rhombohedral reciprocal units, of
// the k-points included in the objective.
const DefaultCutoff = 0.1

// Observer is called with every trial vector the residual is evaluated at.
// It must not retain or modify shared fit state.
type Observer func(p params.Vector)

// LogObserver returns an Observer that traces each trial vector through logf.
func LogObserver(logf func(format string, v ...interface{})) Observer {
	return func(p params.Vector) {
		logf("intermediate: %v", p)
	}
}

// Residual evaluates the mismatch between model and DFT eigenvalues.
//
// A Residual is immutable once built: Eval depends only on its argument
// and the fixed k-points and energies, so concurrent calls are safe.
type Residual struct {
	model    hamiltonian.Model
	observer Observer
	cutoff   float64
	tol      float64
	step     float64

	// Retained k-points only, in dataset order.
	indices  []int
	kpoints  []lattice.KPoint
	energies []bands.Energies
}

// Option configures a Residual.
type Option func(*Residual)

// WithCutoff sets the |k| cutoff. Points with norm above it are dropped.
func WithCutoff(c float64) Option {
	return func(r *Residual) { r.cutoff = c }
}

// WithObserver installs a progress observer.
func WithObserver(o Observer) Option {
	return func(r *Residual) { r.observer = o }
}

// WithJacobianStep sets the finite-difference step used for the model
// eigenvalues. Zero selects fd.Forward's default.
func WithJacobianStep(h float64) Option {
	return func(r *Residual) { r.step = h }
}

// WithHermitianTolerance sets the tolerance passed to the eigensolver.
func WithHermitianTolerance(tol float64) Option {
	return func(r *Residual) { r.tol = tol }
}

// NewResidual builds the residual for model over kpoints and the aligned
// energy table.
func NewResidual(model hamiltonian.Model, kpoints []lattice.KPoint, table bands.Table, opts ...Option) (*Residual, error) {
	if model == nil {
		return nil, fmt.Errorf("residual: nil model")
	}
	if len(kpoints) != len(table) {
		return nil, fmt.Errorf("residual: %d k-points but %d energy rows", len(kpoints), len(table))
	}

	r := &Residual{
		model:  model,
		cutoff: DefaultCutoff,
		tol:    eigen.DefaultTolerance,
	}
	for _, opt := range opts {
		opt(r)
	}

	for i, k := range kpoints {
		if k.Norm() > r.cutoff {
			continue
		}
		r.indices = append(r.indices, i)
		r.kpoints = append(r.kpoints, k)
		r.energies = append(r.energies, table[i])
	}
	return r, nil
}

// Len returns the number of residual entries, one per retained k-point.
func (r *Residual) Len() int {
	return len(r.indices)
}

// Retained returns the dataset indices of the retained k-points.
func (r *Residual) Retained() []int {
	return append([]int(nil), r.indices...)
}

// Eval writes ‖model eigenvalues − DFT energies‖₂ for every retained
// k-point into dst, which must have length Len().
func (r *Residual) Eval(dst []float64, p params.Vector) error {
	if len(dst) != len(r.indices) {
		return fmt.Errorf("residual: dst has length %d, want %d", len(dst), len(r.indices))
	}
	spectrum := make([]float64, len(r.indices)*bands.Count)
	if err := r.spectrum(spectrum, p); err != nil {
		return err
	}
	for i := range r.indices {
		dst[i] = floats.Distance(spectrum[i*bands.Count:(i+1)*bands.Count], r.energies[i][:], 2)
	}
	return nil
}

// spectrum writes the sorted model eigenvalues of every retained k-point,
// bands.Count per point, into dst.
func (r *Residual) spectrum(dst []float64, p params.Vector) error {
	if r.observer != nil {
		r.observer(p)
	}

	h := r.model.Hamiltonian(p.Named())
	for i, k := range r.kpoints {
		vals, err := eigen.Values(h(lattice.RhombToCartesian(k)), r.tol)
		if err != nil {
			return fmt.Errorf("k-point %d %v: %w", r.indices[i], k, err)
		}
		if len(vals) != bands.Count {
			return fmt.Errorf("k-point %d: model has %d bands, want %d", r.indices[i], len(vals), bands.Count)
		}
		copy(dst[i*bands.Count:], vals)
	}
	return nil
}

// Jacobian writes the Jacobian of the residual at x into dst.
//
// The eigenvalues are differentiated numerically and chained through the
// norm: row i is uᵢᵀ·∂Eᵢ/∂p with uᵢ the unit mismatch at k-point i, or
// zero where the mismatch vanishes. Differencing the norm itself breaks
// down near an exact fit. The residual argument is unused.
func (r *Residual) Jacobian(dst *mat.Dense, x, _ []float64) error {
	m, n := len(r.indices), len(x)
	origin := make([]float64, m*bands.Count)
	if err := r.spectrum(origin, params.FromSlice(x)); err != nil {
		return err
	}

	var evalErr error
	ejac := mat.NewDense(m*bands.Count, n, nil)
	fd.Jacobian(ejac, func(y, xx []float64) {
		if evalErr != nil {
			return
		}
		evalErr = r.spectrum(y, params.FromSlice(xx))
	}, x, &fd.JacobianSettings{
		Formula:     fd.Forward,
		OriginValue: origin,
		Step:        r.step,
	})
	if evalErr != nil {
		return evalErr
	}

	var diff [bands.Count]float64
	for i := 0; i < m; i++ {
		floats.SubTo(diff[:], origin[i*bands.Count:(i+1)*bands.Count], r.energies[i][:])
		norm := floats.Norm(diff[:], 2)
		for j := 0; j < n; j++ {
			d := 0.0
			if norm > 0 {
				for b := 0; b < bands.Count; b++ {
					d += diff[b] * ejac.At(i*bands.Count+b, j)
				}
				d /= norm
			}
			dst.Set(i, j, d)
		}
	}
	return nil
}

// Evaluations is the number of model sweeps one Jacobian call spends.
func (r *Residual) Evaluations() int {
	return params.Len + 1
}

// Func adapts r to the optimizer's slice-based signature.
func (r *Residual) Func() Func {
	return func(dst, x []float64) error {
		return r.Eval(dst, params.FromSlice(x))
	}
}
