// Package core provides chemistry constants and m/z tolerance handling
package core

import "math"

// Charge carrier masses (monoisotopic)
const (
	ProtonMass   = 1.007276
	ElectronMass = 0.00054858
	HydrogenMass = 1.0078250321
	C13Delta     = 1.003354838
)

// MZTolerance is an m/z tolerance with an absolute floor and a relative (ppm) part.
// The larger of the two windows applies.
type MZTolerance struct {
	Abs float64 `mapstructure:"abs" yaml:"abs"`
	PPM float64 `mapstructure:"ppm" yaml:"ppm"`
}

// Window returns the half width of the tolerance window at mz
func (t MZTolerance) Window(mz float64) float64 {
	return math.Max(t.Abs, math.Abs(mz)*t.PPM*1e-6)
}

// Check reports whether a and b agree. The window is taken at the larger value.
func (t MZTolerance) Check(a, b float64) bool {
	ref := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= t.Window(ref)
}

// CheckDelta reports whether an observed difference matches a predicted one.
// The window is evaluated at the reference m/z.
func (t MZTolerance) CheckDelta(observed, predicted, refMZ float64) bool {
	return math.Abs(observed-predicted) <= t.Window(refMZ)
}

// Valid reports whether the tolerance defines a non-empty window
func (t MZTolerance) Valid() bool {
	return t.Abs >= 0 && t.PPM >= 0 && (t.Abs > 0 || t.PPM > 0)
}

// RTTolerance is an absolute retention time tolerance in minutes. Zero disables the check.
type RTTolerance float64

// Enabled reports whether the tolerance should be applied
func (t RTTolerance) Enabled() bool {
	return t > 0
}

// Check reports whether two retention times are within tolerance
func (t RTTolerance) Check(a, b float64) bool {
	if !t.Enabled() {
		return true
	}
	return math.Abs(a-b) <= float64(t)
}

// RoundFloat rounds a float to the specified number of decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
