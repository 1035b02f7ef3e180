// Package core provides the feature table model, fragmentation spectra and validation logic
// used by the ion identity networking stages.
package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Spectrum is a fragmentation (MS/MS) mass list attached to a row.
type Spectrum struct {
	RowID       int     // Owning feature table row
	MassList    string  // Mass list name, e.g. "centroid" or "masses"
	PrecursorMZ float64 // Precursor m/z
	Charge      int     // Precursor charge (0 = unknown)
	Peaks       []Peak  // Fragment peaks, ascending m/z

	// Optional metadata
	Name          string
	RetentionTime *float64
	SourceFile    string
}

// Peak represents a single m/z, intensity pair.
type Peak struct {
	MZ        float64
	Intensity float64
}

// ValidationError represents an error found during input validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that a spectrum meets all requirements for processing.
func (s *Spectrum) Validate() error {
	var errs []string

	if s.RowID < 0 {
		errs = append(errs, "row id must be non-negative")
	}
	if s.MassList == "" {
		errs = append(errs, "mass list is required")
	}
	if s.PrecursorMZ <= 0 {
		errs = append(errs, "precursor m/z must be positive")
	}

	for i, peak := range s.Peaks {
		if math.IsNaN(peak.MZ) || math.IsInf(peak.MZ, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid m/z", i))
		}
		if math.IsNaN(peak.Intensity) || math.IsInf(peak.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
		if peak.MZ <= 0 {
			errs = append(errs, fmt.Sprintf("peak %d m/z must be positive", i))
		}
		if peak.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("peak %d intensity must be non-negative", i))
		}
	}

	if !s.ArePeaksSorted() {
		errs = append(errs, "peaks must be sorted by m/z")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Spectrum",
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// ArePeaksSorted checks if peaks are sorted by m/z in ascending order.
func (s *Spectrum) ArePeaksSorted() bool {
	for i := 1; i < len(s.Peaks); i++ {
		if s.Peaks[i].MZ < s.Peaks[i-1].MZ {
			return false
		}
	}
	return true
}

// SortPeaks sorts peaks by m/z in ascending order.
func (s *Spectrum) SortPeaks() {
	sort.SliceStable(s.Peaks, func(i, j int) bool {
		return s.Peaks[i].MZ < s.Peaks[j].MZ
	})
}

// BasePeak returns the most intense peak. ok is false for an empty spectrum.
func (s *Spectrum) BasePeak() (Peak, bool) {
	if len(s.Peaks) == 0 {
		return Peak{}, false
	}
	best := s.Peaks[0]
	for _, p := range s.Peaks[1:] {
		if p.Intensity > best.Intensity {
			best = p
		}
	}
	return best, true
}

// FindPeak returns the most intense peak within tol of mz with at least minHeight intensity.
// Peaks must be sorted.
func (s *Spectrum) FindPeak(mz float64, tol MZTolerance, minHeight float64) (Peak, bool) {
	w := tol.Window(mz)
	lo := sort.Search(len(s.Peaks), func(i int) bool {
		return s.Peaks[i].MZ >= mz-w
	})

	var best Peak
	found := false
	for i := lo; i < len(s.Peaks) && s.Peaks[i].MZ <= mz+w; i++ {
		p := s.Peaks[i]
		if p.Intensity < minHeight {
			continue
		}
		if !found || p.Intensity > best.Intensity {
			best = p
			found = true
		}
	}
	return best, found
}

// Clone returns a deep copy of the spectrum
func (s *Spectrum) Clone() *Spectrum {
	c := *s
	c.Peaks = make([]Peak, len(s.Peaks))
	copy(c.Peaks, s.Peaks)
	if s.RetentionTime != nil {
		rt := *s.RetentionTime
		c.RetentionTime = &rt
	}
	return &c
}
