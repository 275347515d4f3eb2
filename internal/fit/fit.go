package fit

import (
	"fmt"

	"github.com/banshee-data/bandfit/internal/bands"
	"github.com/banshee-data/bandfit/internal/hamiltonian"
	"github.com/banshee-data/bandfit/internal/params"
)

// Spin is the spin channel of the DFT dataset that is fitted.
const Spin = 0

// Input collects everything a fit needs. Zero-valued optional fields
// select defaults.
type Input struct {
	Dataset *bands.Dataset
	Fermi   float64
	Initial params.Vector

	Model              hamiltonian.Model // default hamiltonian.FourBand
	Settings           Settings
	Cutoff             float64 // default DefaultCutoff
	HermitianTolerance float64 // default eigen.DefaultTolerance
	Observer           Observer
}

// Report is the outcome of Run.
type Report struct {
	Params   params.Vector
	Initial  params.Vector
	Window   bands.Window
	Retained int
	Result   Result
}

// Success reports whether the search converged.
func (r *Report) Success() bool {
	return r.Result.Status.Success()
}

// Run selects the four bands around the Fermi energy and fits the model
// parameters to them.
//
// Band selection and input errors are returned with a nil Report before
// any optimisation. If the search does not converge, Run returns the
// Report holding the best vector found together with a
// *NonconvergenceError.
func Run(in Input) (*Report, error) {
	if in.Dataset == nil {
		return nil, fmt.Errorf("fit: nil dataset")
	}
	spin, err := in.Dataset.Spin(Spin)
	if err != nil {
		return nil, err
	}
	table, window, err := bands.Select(spin, in.Fermi)
	if err != nil {
		return nil, err
	}

	model := in.Model
	if model == nil {
		model = hamiltonian.FourBand{}
	}
	var opts []Option
	if in.Cutoff > 0 {
		opts = append(opts, WithCutoff(in.Cutoff))
	}
	if in.HermitianTolerance > 0 {
		opts = append(opts, WithHermitianTolerance(in.HermitianTolerance))
	}
	if in.Settings.JacobianStep > 0 {
		opts = append(opts, WithJacobianStep(in.Settings.JacobianStep))
	}
	if in.Observer != nil {
		opts = append(opts, WithObserver(in.Observer))
	}
	resid, err := NewResidual(model, in.Dataset.KPoints, table, opts...)
	if err != nil {
		return nil, err
	}

	lm := LevenbergMarquardt{Settings: in.Settings, Jacobian: resid}
	res, err := lm.Minimize(resid.Func(), resid.Len(), in.Initial.Slice())

	return &Report{
		Params:   params.FromSlice(res.X),
		Initial:  in.Initial,
		Window:   window,
		Retained: resid.Len(),
		Result:   res,
	}, err
}
