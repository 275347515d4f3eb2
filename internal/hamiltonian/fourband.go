package hamiltonian

import (
	"github.com/banshee-data/bandfit/internal/lattice"
	"github.com/banshee-data/bandfit/internal/params"
	"gonum.org/v1/gonum/mat"
)

// Basis order is |P1+ up>, |P2- up>, |P1+ down>, |P2- down>, so index =
// 2*spin + orbital and every Γ below is σ ⊗ τ (spin ⊗ orbital).
type gamma [Dim][Dim]complex128

func kron(s, t [2][2]complex128) gamma {
	var g gamma
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			for c := 0; c < 2; c++ {
				for d := 0; d < 2; d++ {
					g[2*a+c][2*b+d] = s[a][b] * t[c][d]
				}
			}
		}
	}
	return g
}

var (
	pauli0 = [2][2]complex128{{1, 0}, {0, 1}}
	pauliX = [2][2]complex128{{0, 1}, {1, 0}}
	pauliY = [2][2]complex128{{0, -1i}, {1i, 0}}
	pauliZ = [2][2]complex128{{1, 0}, {0, -1}}

	// Five mutually anticommuting Dirac matrices and Γ45 = [Γ4, Γ5]/2i.
	gamma1  = kron(pauliX, pauliX)
	gamma2  = kron(pauliY, pauliX)
	gamma3  = kron(pauliZ, pauliX)
	gamma4  = kron(pauli0, pauliY)
	gamma5  = kron(pauli0, pauliZ)
	gamma45 = kron(pauli0, pauliX)
)

// FourBand is the four-band k·p model for rhombohedral topological
// insulators (Bi2Se3 family) with quadratic corrections to the linear
// couplings and hexagonal warping:
//
//	H(k) = ε(k) + A(k)(ky Γ1 - kx Γ2) + R1(kx³-3kx ky²) Γ3
//	       + B(k) kz Γ4 + M(k) Γ5 + R2(3kx² ky-ky³) Γ45
//
//	ε(k) = C0 + C1 kz² + C2 k∥²
//	M(k) = M0 + M1 kz² + M2 k∥²
//	A(k) = A0 + A2 k∥²
//	B(k) = B0 + B2 k∥²
type FourBand struct{}

// Hamiltonian implements Model.
func (FourBand) Hamiltonian(p params.Set) Func {
	return func(k lattice.Cartesian) *mat.CDense {
		kx, ky, kz := k[0], k[1], k[2]
		kpar2 := kx*kx + ky*ky
		kz2 := kz * kz

		eps := p.C0 + p.C1*kz2 + p.C2*kpar2
		m := p.M0 + p.M1*kz2 + p.M2*kpar2
		a := p.A0 + p.A2*kpar2
		b := p.B0 + p.B2*kpar2

		terms := []struct {
			coeff float64
			g     *gamma
		}{
			{a * ky, &gamma1},
			{-a * kx, &gamma2},
			{p.R1 * (kx*kx*kx - 3*kx*ky*ky), &gamma3},
			{b * kz, &gamma4},
			{m, &gamma5},
			{p.R2 * (3*kx*kx*ky - ky*ky*ky), &gamma45},
		}

		data := make([]complex128, Dim*Dim)
		for i := 0; i < Dim; i++ {
			data[i*Dim+i] = complex(eps, 0)
		}
		for _, term := range terms {
			if term.coeff == 0 {
				continue
			}
			c := complex(term.coeff, 0)
			for i := 0; i < Dim; i++ {
				for j := 0; j < Dim; j++ {
					data[i*Dim+j] += c * term.g[i][j]
				}
			}
		}
		return mat.NewCDense(Dim, Dim, data)
	}
}
