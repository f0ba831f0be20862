// Package calibrator implements C5: linear power calibration,
// `w' = max(0, round(w*scale + offset))` when w>0, else 0.
package calibrator

import "math"

// Calibrator applies a linear scale/offset correction to raw power.
type Calibrator struct {
	Scale  float64
	Offset float64
}

// New returns a Calibrator with the given scale/offset; defaults per
// spec.md §4.4 are scale=1.0, offset=0.
func New(scale, offset float64) *Calibrator {
	return &Calibrator{Scale: scale, Offset: offset}
}

// Apply calibrates a single raw power reading in watts. Raw power may
// be negative (e.g. IC4 FTMS frames carry a signed i16); per spec.md
// §4.4 any w<=0 calibrates to 0.
func (c *Calibrator) Apply(w int32) uint16 {
	if w <= 0 {
		return 0
	}
	corrected := float64(w)*c.Scale + c.Offset
	if corrected <= 0 {
		return 0
	}
	return uint16(math.Round(corrected))
}
