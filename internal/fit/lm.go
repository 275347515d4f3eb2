// Package fit fits model Hamiltonian parameters to DFT band energies with
// a Levenberg–Marquardt least-squares search.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Func computes the residual vector at x into dst. It must not modify x.
type Func func(dst, x []float64) error

// Status describes why the optimizer stopped. Values 1–5 follow the
// MINPACK lmdif info codes.
type Status int

const (
	SolverFailure     Status = 0
	ConvergedCost     Status = 1 // relative reduction in the sum of squares ≤ FTol
	ConvergedParams   Status = 2 // relative step ≤ XTol
	ConvergedBoth     Status = 3
	ConvergedGradient Status = 4 // cosine of residual/Jacobian-column angle ≤ GTol
	IterationLimit    Status = 5
	SingularJacobian  Status = 6
)

// Success reports whether s is one of the converged states.
func (s Status) Success() bool {
	switch s {
	case ConvergedCost, ConvergedParams, ConvergedBoth, ConvergedGradient:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case SolverFailure:
		return "solver failure"
	case ConvergedCost:
		return "converged (cost tolerance)"
	case ConvergedParams:
		return "converged (parameter tolerance)"
	case ConvergedBoth:
		return "converged (cost and parameter tolerance)"
	case ConvergedGradient:
		return "converged (gradient tolerance)"
	case IterationLimit:
		return "evaluation limit reached"
	case SingularJacobian:
		return "singular Jacobian"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Settings controls the Levenberg–Marquardt search. Zero values select
// the defaults noted on each field.
type Settings struct {
	// MaxEvaluations bounds residual evaluations, including those used
	// for the Jacobian. Default 200·(n+1).
	MaxEvaluations int
	// FTol, XTol, GTol are the MINPACK convergence tolerances.
	// FTol and XTol default to 1.49012e-8; GTol defaults to 0.
	FTol float64
	XTol float64
	GTol float64
	// JacobianStep is the forward-difference step. Default fd.Forward.Step.
	JacobianStep float64
	// InitialDamping scales the first damping parameter. Default 1e-3.
	InitialDamping float64
}

const defaultTol = 1.49012e-8

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		FTol:           defaultTol,
		XTol:           defaultTol,
		InitialDamping: 1e-3,
	}
}

func (s Settings) withDefaults(n int) Settings {
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = 200 * (n + 1)
	}
	if s.FTol <= 0 {
		s.FTol = defaultTol
	}
	if s.XTol <= 0 {
		s.XTol = defaultTol
	}
	if s.GTol < 0 {
		s.GTol = 0
	}
	if s.InitialDamping <= 0 {
		s.InitialDamping = 1e-3
	}
	return s
}

// Result is the outcome of a search. X is the best point found, whether
// or not the search converged.
type Result struct {
	X            []float64
	ResidualNorm float64
	Status       Status
	Evaluations  int
	Iterations   int
}

// NonconvergenceError reports a search that stopped without converging.
// The accompanying Result still holds the best point found.
type NonconvergenceError struct {
	Status      Status
	Evaluations int
	Err         error
}

func (e *NonconvergenceError) Error() string {
	msg := fmt.Sprintf("least-squares fit did not converge: %s after %d evaluations", e.Status, e.Evaluations)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NonconvergenceError) Unwrap() error { return e.Err }

var errDampingOverflow = errors.New("damping parameter overflow; no acceptable step")

const (
	acceptRatio = 1e-4
	minDamping  = 1e-15
	maxDamping  = 1e32

	// Column scales are floored at scaleFloor·max scale, and scaled
	// singular values below rankCutoff·σmax are treated as zero.
	scaleFloor = 1e-3
	rankCutoff = 1e-5
)

// Jacobian supplies the m×n Jacobian of a residual function.
type Jacobian interface {
	// Jacobian writes the Jacobian at x, where the residual is r, into dst.
	Jacobian(dst *mat.Dense, x, r []float64) error
	// Evaluations is the number of residual evaluations one call spends.
	Evaluations() int
}

// forwardJacobian differentiates f with one-sided differences.
type forwardJacobian struct {
	f    Func
	n    int
	step float64
}

func (fj forwardJacobian) Evaluations() int { return fj.n }

func (fj forwardJacobian) Jacobian(dst *mat.Dense, x, r []float64) error {
	var err error
	fd.Jacobian(dst, func(y, xx []float64) {
		if err != nil {
			return
		}
		err = fj.f(y, xx)
	}, x, &fd.JacobianSettings{
		Formula:     fd.Forward,
		OriginValue: r,
		Step:        fj.step,
	})
	return err
}

// LevenbergMarquardt minimises ½‖f(x)‖² using column-norm scaling,
// Nielsen's damping update and a rank-revealing SVD solve of the damped
// step.
type LevenbergMarquardt struct {
	Settings Settings
	// Jacobian replaces forward differences of f when set.
	Jacobian Jacobian
}

// Minimize searches from x0 for the minimiser of ‖f(x)‖, where f writes m
// residuals. On failure it returns the best Result so far together with a
// *NonconvergenceError.
func (lm *LevenbergMarquardt) Minimize(f Func, m int, x0 []float64) (Result, error) {
	n := len(x0)
	s := lm.Settings.withDefaults(n)

	x := append([]float64(nil), x0...)
	res := Result{X: x}
	fail := func(status Status, err error) (Result, error) {
		res.Status = status
		return res, &NonconvergenceError{Status: status, Evaluations: res.Evaluations, Err: err}
	}

	if n == 0 || m < n {
		return fail(SingularJacobian, fmt.Errorf("%d residuals cannot determine %d parameters", m, n))
	}

	var jacobian Jacobian = forwardJacobian{f: f, n: n, step: s.JacobianStep}
	if lm.Jacobian != nil {
		jacobian = lm.Jacobian
	}

	r := make([]float64, m)
	if err := f(r, x); err != nil {
		return fail(SolverFailure, err)
	}
	res.Evaluations++
	fnorm := floats.Norm(r, 2)
	res.ResidualNorm = fnorm
	if math.IsNaN(fnorm) || math.IsInf(fnorm, 0) {
		return fail(SolverFailure, fmt.Errorf("non-finite residual at initial point"))
	}

	jac := mat.NewDense(m, n, nil)
	scaled := mat.NewDense(m, n, nil)
	diag := make([]float64, n)
	scale := make([]float64, n)
	colNorm := make([]float64, n)
	xnew := make([]float64, n)
	rnew := make([]float64, m)
	dx := make([]float64, n)
	coef := make([]float64, n)
	tmp := make([]float64, n)
	lambda, nu := -1.0, 2.0

	var (
		svd  mat.SVD
		u, v mat.Dense
		utr  mat.VecDense
		z    mat.VecDense
		jdx  mat.VecDense
		grad mat.VecDense
	)

	for {
		if fnorm == 0 {
			res.Status = ConvergedCost
			return res, nil
		}
		if res.Evaluations+jacobian.Evaluations() > s.MaxEvaluations {
			return fail(IterationLimit, nil)
		}

		if err := jacobian.Jacobian(jac, x, r); err != nil {
			res.Evaluations += jacobian.Evaluations()
			return fail(SolverFailure, err)
		}
		res.Evaluations += jacobian.Evaluations()

		allZero := true
		maxDiag := 0.0
		for j := 0; j < n; j++ {
			colNorm[j] = mat.Norm(jac.ColView(j), 2)
			if math.IsNaN(colNorm[j]) || math.IsInf(colNorm[j], 0) {
				return fail(SolverFailure, fmt.Errorf("non-finite Jacobian column %d", j))
			}
			if colNorm[j] != 0 {
				allZero = false
			}
			if res.Iterations == 0 || colNorm[j] > diag[j] {
				diag[j] = colNorm[j]
			}
			maxDiag = math.Max(maxDiag, diag[j])
		}
		if allZero {
			return fail(SingularJacobian, fmt.Errorf("Jacobian is identically zero"))
		}
		for j := 0; j < n; j++ {
			scale[j] = math.Max(diag[j], scaleFloor*maxDiag)
		}
		res.Iterations++

		rv := mat.NewVecDense(m, r)
		grad.MulVec(jac.T(), rv)

		gnorm := 0.0
		for j := 0; j < n; j++ {
			if colNorm[j] == 0 {
				continue
			}
			gnorm = math.Max(gnorm, math.Abs(grad.AtVec(j))/(colNorm[j]*fnorm))
		}
		if gnorm <= s.GTol {
			res.Status = ConvergedGradient
			return res, nil
		}

		// Work in scaled variables z = D·dx, where the damped step is
		// z = -Σ σᵢ/(σᵢ²+λ) (uᵢ·r) vᵢ over the retained singular triplets.
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				scaled.Set(i, j, jac.At(i, j)/scale[j])
			}
		}
		if ok := svd.Factorize(scaled, mat.SVDThin); !ok {
			return fail(SolverFailure, fmt.Errorf("SVD of the scaled Jacobian did not converge"))
		}
		sigma := svd.Values(nil)
		svd.UTo(&u)
		svd.VTo(&v)
		utr.MulVec(u.T(), rv)
		cutoff := rankCutoff * sigma[0]

		if lambda < 0 {
			lambda = s.InitialDamping * sigma[0] * sigma[0]
		}

		// Inner loop: adjust damping until a step is accepted or a
		// convergence test passes.
		for {
			lambda = math.Max(lambda, minDamping)
			if lambda > maxDamping {
				return fail(SolverFailure, errDampingOverflow)
			}

			for i, sv := range sigma {
				coef[i] = 0
				if sv > cutoff {
					coef[i] = -sv / (sv*sv + lambda) * utr.AtVec(i)
				}
			}
			z.MulVec(&v, mat.NewVecDense(n, coef))
			for j := 0; j < n; j++ {
				dx[j] = z.AtVec(j) / scale[j]
				xnew[j] = x[j] + dx[j]
			}

			if res.Evaluations >= s.MaxEvaluations {
				return fail(IterationLimit, nil)
			}
			if err := f(rnew, xnew); err != nil {
				return fail(SolverFailure, err)
			}
			res.Evaluations++
			fnew := floats.Norm(rnew, 2)

			actred := -1.0
			if 0.1*fnew < fnorm {
				actred = 1 - (fnew/fnorm)*(fnew/fnorm)
			}

			jdx.MulVec(jac, mat.NewVecDense(n, dx))
			predNorm := 0.0
			for i := 0; i < m; i++ {
				e := r[i] + jdx.AtVec(i)
				predNorm += e * e
			}
			prered := 1 - predNorm/(fnorm*fnorm)

			ratio := 0.0
			if prered != 0 {
				ratio = actred / prered
			}

			floats.MulTo(tmp, scale, x)
			xnorm := floats.Norm(tmp, 2)
			floats.MulTo(tmp, scale, dx)
			dnorm := floats.Norm(tmp, 2)

			accepted := ratio > acceptRatio && !math.IsNaN(fnew)
			if accepted {
				copy(x, xnew)
				copy(r, rnew)
				fnorm = fnew
				res.ResidualNorm = fnorm
				t := 2*ratio - 1
				lambda *= math.Max(1.0/3.0, 1-t*t*t)
				nu = 2
			} else {
				lambda *= nu
				nu *= 2
			}

			if fnorm == 0 {
				res.Status = ConvergedCost
				return res, nil
			}
			costOK := math.Abs(actred) <= s.FTol && prered <= s.FTol && 0.5*ratio <= 1
			paramsOK := dnorm <= s.XTol*(xnorm+s.XTol)
			switch {
			case costOK && paramsOK:
				res.Status = ConvergedBoth
				return res, nil
			case costOK:
				res.Status = ConvergedCost
				return res, nil
			case paramsOK:
				res.Status = ConvergedParams
				return res, nil
			}

			if accepted {
				break
			}
		}
	}
}
