// Package hamiltonian builds the k·p model Hamiltonians whose eigenvalues
// are fitted against DFT bands.
package hamiltonian

import (
	"github.com/banshee-data/bandfit/internal/lattice"
	"github.com/banshee-data/bandfit/internal/params"
	"gonum.org/v1/gonum/mat"
)

// Dim is the number of bands described by the models in this package.
const Dim = 4

// Func evaluates a Hamiltonian at a Cartesian k-point. Implementations must
// return a Dim×Dim Hermitian matrix for every real k and must not retain or
// mutate shared state, so a Func is safe to call from any goroutine.
type Func func(k lattice.Cartesian) *mat.CDense

// Model maps named parameters onto a Hamiltonian.
type Model interface {
	Hamiltonian(p params.Set) Func
}

// ModelFunc adapts an ordinary function to the Model interface.
type ModelFunc func(p params.Set) Func

// Hamiltonian calls f(p).
func (f ModelFunc) Hamiltonian(p params.Set) Func {
	return f(p)
}
