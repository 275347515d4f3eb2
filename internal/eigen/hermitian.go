// Package eigen diagonalises small dense Hermitian matrices.
//
// gonum has no complex Hermitian eigensolver, so an n×n Hermitian matrix
// H = A + iB is embedded in the 2n×2n real symmetric matrix
//
//	S = [ A  -B ]
//	    [ B   A ]
//
// and factorised with mat.EigenSym. Every eigenvalue λ of H appears twice
// in S, and each eigenvector (u, v) of S yields an eigenvector u + iv of H.
package eigen

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DefaultTolerance is the relative tolerance for the Hermiticity check.
const DefaultTolerance = 1e-10

var (
	// ErrNotSquare is returned for non-square input.
	ErrNotSquare = errors.New("eigen: matrix is not square")
	// ErrNoConvergence is returned when the symmetric eigensolver fails.
	ErrNoConvergence = errors.New("eigen: symmetric eigensolver did not converge")
)

// InstabilityError reports input or output that failed a numerical sanity
// check. The matrix is never silently corrected.
type InstabilityError struct {
	Reason    string
	Row, Col  int
	Deviation float64
	Tolerance float64
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("eigen: numerical instability: %s at (%d,%d): deviation %g exceeds tolerance %g",
		e.Reason, e.Row, e.Col, e.Deviation, e.Tolerance)
}

// Decomposition holds the eigen decomposition of a Hermitian matrix.
type Decomposition struct {
	n      int
	values []float64

	// The 2n eigenpairs of the real embedding, ascending. frame[j] is a
	// unit eigenvector of H for frameValues[j].
	frameValues []float64
	frame       [][]complex128
}

// Hermitian factorises h, which must be Hermitian within tol relative to
// its largest entry. Eigenvalues are returned in ascending order.
func Hermitian(h mat.CMatrix, tol float64) (*Decomposition, error) {
	n, sym, err := embed(h, tol)
	if err != nil {
		return nil, err
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, ErrNoConvergence
	}
	raw := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	order := ascending(raw)
	values, err := pairValues(raw, order, tol)
	if err != nil {
		return nil, err
	}

	d := &Decomposition{
		n:           n,
		values:      values,
		frameValues: make([]float64, 2*n),
		frame:       make([][]complex128, 2*n),
	}
	for j, col := range order {
		d.frameValues[j] = raw[col]
		w := make([]complex128, n)
		for i := 0; i < n; i++ {
			w[i] = complex(vecs.At(i, col), vecs.At(n+i, col))
		}
		d.frame[j] = w
	}
	return d, nil
}

// Values returns the ascending eigenvalues of h without computing
// eigenvectors.
func Values(h mat.CMatrix, tol float64) ([]float64, error) {
	_, sym, err := embed(h, tol)
	if err != nil {
		return nil, err
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, false); !ok {
		return nil, ErrNoConvergence
	}
	raw := es.Values(nil)
	return pairValues(raw, ascending(raw), tol)
}

// Values returns a copy of the ascending eigenvalues.
func (d *Decomposition) Values() []float64 {
	return append([]float64(nil), d.values...)
}

// Vector returns a unit eigenvector for Values()[i]. Vectors belonging to
// degenerate eigenvalues are not guaranteed to be mutually orthogonal.
func (d *Decomposition) Vector(i int) []complex128 {
	return append([]complex128(nil), d.frame[2*i]...)
}

// Reconstruct rebuilds the factorised matrix as ½ Σ λ_j w_j w_jᴴ over the
// eigenpairs of the real embedding.
func (d *Decomposition) Reconstruct() *mat.CDense {
	n := d.n
	data := make([]complex128, n*n)
	for j, w := range d.frame {
		lambda := complex(0.5*d.frameValues[j], 0)
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				data[r*n+c] += lambda * w[r] * cmplx.Conj(w[c])
			}
		}
	}
	return mat.NewCDense(n, n, data)
}

// embed validates h and builds its real symmetric embedding.
func embed(h mat.CMatrix, tol float64) (int, *mat.SymDense, error) {
	r, c := h.Dims()
	if r != c {
		return 0, nil, fmt.Errorf("%w: %d×%d", ErrNotSquare, r, c)
	}
	n := r

	scale := 1.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := h.At(i, j)
			if cmplx.IsNaN(v) || cmplx.IsInf(v) {
				return 0, nil, &InstabilityError{
					Reason: "non-finite entry", Row: i, Col: j,
					Deviation: math.Inf(1), Tolerance: tol,
				}
			}
			scale = math.Max(scale, cmplx.Abs(v))
		}
	}

	limit := tol * scale
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dev := cmplx.Abs(h.At(i, j) - cmplx.Conj(h.At(j, i)))
			if dev > limit {
				return 0, nil, &InstabilityError{
					Reason: "matrix is not Hermitian", Row: i, Col: j,
					Deviation: dev, Tolerance: limit,
				}
			}
		}
	}

	sym := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := h.At(i, j)
			a, b := real(v), imag(v)
			sym.SetSym(i, j, a)
			sym.SetSym(n+i, n+j, a)
			if i == j {
				// B is antisymmetric; its diagonal is zero.
				continue
			}
			sym.SetSym(i, n+j, -b)
			sym.SetSym(j, n+i, b)
		}
	}
	return n, sym, nil
}

func ascending(vals []float64) []int {
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })
	return order
}

// pairValues collapses the doubled spectrum of the embedding into the n
// eigenvalues of the Hermitian matrix.
func pairValues(raw []float64, order []int, tol float64) ([]float64, error) {
	n := len(raw) / 2
	scale := 1.0
	for _, v := range raw {
		scale = math.Max(scale, math.Abs(v))
	}
	// The embedding doubles every eigenvalue exactly; allow for rounding
	// in the symmetric solver.
	limit := math.Max(tol, 1e-12) * scale * float64(2*n)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		lo, hi := raw[order[2*i]], raw[order[2*i+1]]
		if dev := hi - lo; dev > limit {
			return nil, &InstabilityError{
				Reason: "unpaired eigenvalue in real embedding", Row: 2 * i, Col: 2*i + 1,
				Deviation: dev, Tolerance: limit,
			}
		}
		out[i] = 0.5 * (lo + hi)
	}
	return out, nil
}
