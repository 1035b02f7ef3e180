package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FeatureStatus describes how a feature was obtained in a sample
type FeatureStatus int

const (
	Detected FeatureStatus = iota
	Estimated
)

func (s FeatureStatus) String() string {
	switch s {
	case Detected:
		return "DETECTED"
	case Estimated:
		return "ESTIMATED"
	default:
		return fmt.Sprintf("FeatureStatus(%d)", int(s))
	}
}

// ParseFeatureStatus parses a status string. Empty means detected.
func ParseFeatureStatus(s string) (FeatureStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "DETECTED":
		return Detected, nil
	case "ESTIMATED", "GAPFILLED", "GAP_FILLED":
		return Estimated, nil
	default:
		return Detected, fmt.Errorf("unknown feature status %q", s)
	}
}

// ShapePoint is one point of a feature's elution profile
type ShapePoint struct {
	RT        float64
	Intensity float64
}

// Feature is one row's detection in a single sample.
type Feature struct {
	Sample  string
	MZ      float64
	RT      float64
	Height  float64
	Status  FeatureStatus
	RTStart float64
	RTEnd   float64
	Shape   []ShapePoint // Sorted by RT; may be empty
}

// HasShape reports whether an elution profile is available
func (f *Feature) HasShape() bool {
	return len(f.Shape) > 1
}

// RTRangeAbove returns the RT interval in which the elution profile is at or above the threshold.
// Without a shape the feature's RT range is returned.
func (f *Feature) RTRangeAbove(threshold float64) (float64, float64, bool) {
	if !f.HasShape() {
		if f.RTEnd > f.RTStart {
			return f.RTStart, f.RTEnd, true
		}
		return f.RT, f.RT, f.Height >= threshold
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range f.Shape {
		if p.Intensity < threshold {
			continue
		}
		lo = math.Min(lo, p.RT)
		hi = math.Max(hi, p.RT)
	}
	if math.IsInf(lo, 1) {
		return 0, 0, false
	}
	return lo, hi, true
}

// RTRange returns the full RT extent of the feature
func (f *Feature) RTRange() (float64, float64) {
	lo, hi, _ := f.RTRangeAbove(math.Inf(-1))
	return lo, hi
}

// Points returns the elution profile, or the apex alone when there is no shape
func (f *Feature) Points() []ShapePoint {
	if f.HasShape() {
		return f.Shape
	}
	return []ShapePoint{{RT: f.RT, Intensity: f.Height}}
}

// Row is one candidate chemical entity aggregated across samples.
type Row struct {
	ID       int
	MZ       float64 // Average m/z
	RT       float64 // Average retention time
	Height   float64 // Best feature height
	Charge   int     // Detected charge, 0 = unknown
	Features map[string]*Feature
	Spectra  map[string]*Spectrum // Best fragmentation spectrum per mass list
}

// NewRow creates an empty row with the given id
func NewRow(id int) *Row {
	return &Row{
		ID:       id,
		Features: make(map[string]*Feature),
		Spectra:  make(map[string]*Spectrum),
	}
}

// Feature returns the feature detected in sample, or nil
func (r *Row) Feature(sample string) *Feature {
	return r.Features[sample]
}

// Spectrum returns the fragmentation spectrum for the mass list, or nil
func (r *Row) Spectrum(massList string) *Spectrum {
	return r.Spectra[massList]
}

// AddFeature stores a feature and updates the row averages
func (r *Row) AddFeature(f *Feature) {
	r.Features[f.Sample] = f
	r.Recalculate()
}

// Recalculate derives average m/z, average RT and best height from the features.
// Samples are summed in name order so averages are reproducible.
func (r *Row) Recalculate() {
	if len(r.Features) == 0 {
		return
	}
	samples := make([]string, 0, len(r.Features))
	for s := range r.Features {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	var mz, rt float64
	best := 0.0
	for _, s := range samples {
		f := r.Features[s]
		mz += f.MZ
		rt += f.RT
		best = math.Max(best, f.Height)
	}
	n := float64(len(r.Features))
	r.MZ = mz / n
	r.RT = rt / n
	r.Height = best
}

// Validate checks that a row can take part in matching
func (r *Row) Validate() error {
	var errs []string

	if r.ID < 0 || int64(r.ID) > math.MaxUint32 {
		errs = append(errs, fmt.Sprintf("row id must be within [0, %d]", uint32(math.MaxUint32)))
	}
	if r.MZ <= 0 || math.IsNaN(r.MZ) || math.IsInf(r.MZ, 0) {
		errs = append(errs, "m/z must be positive")
	}
	if math.IsNaN(r.RT) || r.RT < 0 {
		errs = append(errs, "retention time must be non-negative")
	}
	for sample, f := range r.Features {
		if f.Height < 0 {
			errs = append(errs, fmt.Sprintf("feature in %s has negative height", sample))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   fmt.Sprintf("Row %d", r.ID),
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// FeatureTable is the ordered feature list consumed by the networking stages.
type FeatureTable struct {
	Samples []string          // Sample names in acquisition order
	Groups  map[string]string // Sample -> sample group, may be nil
	Rows    []*Row

	byID map[int]*Row
}

// NewFeatureTable creates an empty table for the given samples
func NewFeatureTable(samples []string) *FeatureTable {
	return &FeatureTable{
		Samples: samples,
		byID:    make(map[int]*Row),
	}
}

// AddRow appends a row. Row ids must be unique.
func (t *FeatureTable) AddRow(r *Row) error {
	if t.byID == nil {
		t.byID = make(map[int]*Row)
	}
	if _, ok := t.byID[r.ID]; ok {
		return fmt.Errorf("duplicate row id %d", r.ID)
	}
	t.byID[r.ID] = r
	t.Rows = append(t.Rows, r)
	return nil
}

// Row returns the row with the given id, or nil
func (t *FeatureTable) Row(id int) *Row {
	if t.byID == nil {
		t.Reindex()
	}
	return t.byID[id]
}

// Reindex rebuilds the id lookup from Rows. Call it after modifying Rows directly;
// lookups are safe for concurrent readers once the index exists.
func (t *FeatureTable) Reindex() {
	t.byID = make(map[int]*Row, len(t.Rows))
	for _, r := range t.Rows {
		t.byID[r.ID] = r
	}
}

// SortByID orders rows by ascending id
func (t *FeatureTable) SortByID() {
	sort.Slice(t.Rows, func(i, j int) bool {
		return t.Rows[i].ID < t.Rows[j].ID
	})
}

// GroupSizes returns the number of samples per sample group
func (t *FeatureTable) GroupSizes() map[string]int {
	if len(t.Groups) == 0 {
		return nil
	}
	sizes := make(map[string]int)
	for _, s := range t.Samples {
		if g, ok := t.Groups[s]; ok {
			sizes[g]++
		}
	}
	return sizes
}
