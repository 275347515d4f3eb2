// Package bands selects the four DFT bands that bracket the Fermi level
// and aligns them with the model's eigenvalues.
package bands

import (
	"fmt"
)

// Count is the number of bands in the fitted model.
const Count = 4

// Energies holds the four selected band energies at one k-point, in
// ascending band order.
type Energies [Count]float64

// Table holds the selected energies for every k-point, in k-point order.
type Table []Energies

// Window is the set of DFT band indices selected for the fit.
type Window [Count]int

// BandWindowError reports that the Fermi energy could not be bracketed by
// two bands below and two bands above it.
type BandWindowError struct {
	Fermi    float64
	StopBand int // first band above the Fermi energy, or -1
	Bands    int
	Reason   string
}

func (e *BandWindowError) Error() string {
	return fmt.Sprintf("cannot select band window around E_F=%g (first band above E_F: %d of %d): %s",
		e.Fermi, e.StopBand, e.Bands, e.Reason)
}

// Select picks the two bands below and two bands above the Fermi energy
// from points[band][k] for a single spin channel.
//
// The crossing is found at the reference k-point (index 0) by scanning
// bands upward for the first energy strictly above fermi. This assumes
// the Fermi energy lies in a gap and that energies at the reference
// point do not decrease with band index.
func Select(points [][]float64, fermi float64) (Table, Window, error) {
	nb := len(points)
	if nb == 0 {
		return nil, Window{}, &BandWindowError{Fermi: fermi, StopBand: -1, Reason: "no bands in dataset"}
	}
	nk := len(points[0])
	if nk == 0 {
		return nil, Window{}, &BandWindowError{Fermi: fermi, StopBand: -1, Bands: nb, Reason: "no k-points in dataset"}
	}
	for b, row := range points {
		if len(row) != nk {
			return nil, Window{}, &BandWindowError{
				Fermi: fermi, StopBand: -1, Bands: nb,
				Reason: fmt.Sprintf("band %d has %d k-points, band 0 has %d", b, len(row), nk),
			}
		}
	}

	stop := -1
	for b := 0; b < nb; b++ {
		if points[b][0]-fermi > 0.0 {
			stop = b
			break
		}
	}

	switch {
	case stop < 0:
		return nil, Window{}, &BandWindowError{Fermi: fermi, StopBand: stop, Bands: nb, Reason: "no band lies above the Fermi energy"}
	case stop < 2:
		return nil, Window{}, &BandWindowError{Fermi: fermi, StopBand: stop, Bands: nb, Reason: "fewer than two bands lie below the Fermi energy"}
	case stop+1 >= nb:
		return nil, Window{}, &BandWindowError{Fermi: fermi, StopBand: stop, Bands: nb, Reason: "fewer than two bands lie above the Fermi energy"}
	}

	window := Window{stop - 2, stop - 1, stop, stop + 1}
	table := make(Table, nk)
	for k := 0; k < nk; k++ {
		for i, b := range window {
			table[k][i] = points[b][k]
		}
	}
	return table, window, nil
}
