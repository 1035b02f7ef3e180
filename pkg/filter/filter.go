// Package filter provides the minimum feature filter for rows and row pairs and
// the peak filter applied to MS/MS mass lists.
package filter

import (
	"sort"

	"github.com/ChrisMcGann/ionnet/pkg/core"
)

// MassListConfig holds the peak filtering applied before MS/MS checks
type MassListConfig struct {
	MinHeight       float64 `mapstructure:"min_height" yaml:"min_height"`             // Absolute intensity floor
	IntensityCutoff float64 `mapstructure:"intensity_cutoff" yaml:"intensity_cutoff"` // Keep only peaks above this % of base peak (0 = no cutoff)
	TopN            int     `mapstructure:"top_n" yaml:"top_n"`                       // Keep only top N most intense peaks (0 = no limit)
}

// Apply applies all configured filters to a spectrum and validates the result
func (c *MassListConfig) Apply(spec *core.Spectrum) error {
	RemoveZeroIntensityPeaks(spec)

	if c.MinHeight > 0 {
		c.filterByHeight(spec)
	}

	// Apply intensity filters
	if c.IntensityCutoff > 0 {
		c.filterByIntensity(spec)
	}

	// Apply top-N filter
	if c.TopN > 0 {
		c.filterTopN(spec)
	}

	// Ensure peaks are sorted after all filtering
	spec.SortPeaks()

	return spec.Validate()
}

// filterByHeight removes peaks below the absolute height
func (c *MassListConfig) filterByHeight(spec *core.Spectrum) {
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity >= c.MinHeight {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}

// filterByIntensity removes peaks below the intensity cutoff percentage
func (c *MassListConfig) filterByIntensity(spec *core.Spectrum) {
	base, ok := spec.BasePeak()
	if !ok {
		return
	}

	// Calculate threshold
	threshold := (c.IntensityCutoff / 100.0) * base.Intensity

	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity >= threshold {
			filtered = append(filtered, peak)
		}
	}

	spec.Peaks = filtered
}

// filterTopN keeps only the N most intense peaks
func (c *MassListConfig) filterTopN(spec *core.Spectrum) {
	if len(spec.Peaks) <= c.TopN {
		return
	}

	// Create a copy and sort by intensity descending
	peaks := make([]core.Peak, len(spec.Peaks))
	copy(peaks, spec.Peaks)

	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].Intensity > peaks[j].Intensity
	})

	// Keep only top N
	spec.Peaks = peaks[:c.TopN]
}

// RemoveZeroIntensityPeaks removes peaks with zero or negative intensity
func RemoveZeroIntensityPeaks(spec *core.Spectrum) {
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}
