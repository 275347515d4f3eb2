// Package lattice converts reciprocal-space points between the
// rhombohedral and hexagonal (Cartesian) settings of the crystal.
package lattice

import "math"

// Hexagonal cell constants in Angstrom.
const (
	AHex = 4.138
	CHex = 28.64
)

// ARhomb is the rhombohedral lattice constant derived from the hexagonal cell.
var ARhomb = math.Sqrt(AHex*AHex/3.0 + CHex*CHex/9.0)

// KPoint is a reciprocal-lattice point in units of 2π/a_rhomb.
type KPoint [3]float64

// Norm returns the Euclidean norm of k in its own (rhombohedral) units.
func (k KPoint) Norm() float64 {
	return math.Sqrt(k[0]*k[0] + k[1]*k[1] + k[2]*k[2])
}

// Cartesian is a reciprocal-space point with kx, ky in units of 2π/a_hex
// and kz in units of 2π/c_hex.
type Cartesian [3]float64

// basis holds the reciprocal basis vectors b1, b2, b3 in 1/Angstrom.
var basis = func() [3][3]float64 {
	pi2 := 2.0 * math.Pi
	s3 := math.Sqrt(3)
	return [3][3]float64{
		{pi2 / AHex, -pi2 / (s3 * AHex), pi2 / CHex},
		{0.0, 2.0 * pi2 / (s3 * AHex), pi2 / CHex},
		{-pi2 / AHex, -pi2 / (s3 * AHex), pi2 / CHex},
	}
}()

// RhombToCartesian converts k from rhombohedral reciprocal units into the
// mixed Cartesian units consumed by the Hamiltonian models.
//
// The result is bit-for-bit reproducible: every product is rounded
// explicitly so the compiler cannot fuse multiply-adds on any platform.
func RhombToCartesian(k KPoint) Cartesian {
	pi2 := 2.0 * math.Pi

	// 1/Angstrom
	var kA [3]float64
	for i := range k {
		kA[i] = float64(k[i]*pi2) / ARhomb
	}

	var kC [3]float64
	for j := 0; j < 3; j++ {
		kC[j] = float64(basis[0][j]*kA[0]) + float64(basis[1][j]*kA[1])
		kC[j] = float64(kC[j]) + float64(basis[2][j]*kA[2])
	}

	return Cartesian{
		float64(kC[0]*AHex) / pi2,
		float64(kC[1]*AHex) / pi2,
		float64(kC[2]*CHex) / pi2,
	}
}
