// Package params maps the ordered four-band parameter vector onto named
// parameters and builds the initial estimate used to seed a fit.
package params

import (
	"fmt"
	"strings"
)

// Len is the number of free parameters in the four-band model.
const Len = 12

// Names lists the parameter names in vector order.
var Names = [Len]string{
	"C0", "C1", "C2", "M0", "M1", "M2",
	"A0", "A2", "B0", "B2", "R1", "R2",
}

// Vector is the ordered parameter vector handed to and from the optimizer.
// It is a value type: every trial is an independent copy.
type Vector [Len]float64

// Set holds the same parameters by name.
type Set struct {
	C0, C1, C2 float64
	M0, M1, M2 float64
	A0, A2     float64
	B0, B2     float64
	R1, R2     float64
}

// FromSlice copies the first Len values of s into a Vector.
// It panics if s is shorter than Len.
func FromSlice(s []float64) Vector {
	if len(s) < Len {
		panic(fmt.Sprintf("params: slice has %d values, need %d", len(s), Len))
	}
	var v Vector
	copy(v[:], s)
	return v
}

// Slice returns a freshly allocated copy of v.
func (v Vector) Slice() []float64 {
	out := make([]float64, Len)
	copy(out, v[:])
	return out
}

// Named maps v onto named parameters. No range checks are applied;
// unphysical values propagate into the Hamiltonian unchanged.
func (v Vector) Named() Set {
	return Set{
		C0: v[0], C1: v[1], C2: v[2],
		M0: v[3], M1: v[4], M2: v[5],
		A0: v[6], A2: v[7],
		B0: v[8], B2: v[9],
		R1: v[10], R2: v[11],
	}
}

// Map returns v keyed by parameter name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, Len)
	for i, name := range Names {
		m[name] = v[i]
	}
	return m
}

func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.8g", x)
	}
	b.WriteByte(']')
	return b.String()
}

// Vector returns s in vector order.
func (s Set) Vector() Vector {
	return Vector{
		s.C0, s.C1, s.C2,
		s.M0, s.M1, s.M2,
		s.A0, s.A2,
		s.B0, s.B2,
		s.R1, s.R2,
	}
}
