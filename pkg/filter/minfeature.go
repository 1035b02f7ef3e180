package filter

import (
	"fmt"
	"math"
	"sort"

	"github.com/ChrisMcGann/ionnet/pkg/core"
)

// Rounding mode for relative thresholds
type Rounding string

const (
	RoundCeil    Rounding = "ceil"
	RoundFloor   Rounding = "floor"
	RoundNearest Rounding = "round"
)

func (r Rounding) apply(v float64) int {
	switch r {
	case RoundFloor:
		return int(math.Floor(v))
	case RoundNearest:
		return int(math.Round(v))
	default:
		return int(math.Ceil(v - 1e-9))
	}
}

// AbsRel is a minimum count given as an absolute number and a fraction of a total.
// The larger requirement applies.
type AbsRel struct {
	Abs      int      `mapstructure:"abs" yaml:"abs"`
	Rel      float64  `mapstructure:"rel" yaml:"rel"`
	Rounding Rounding `mapstructure:"rounding" yaml:"rounding"`
}

// Required returns the minimum count for a total
func (a AbsRel) Required(total int) int {
	rel := a.Rounding.apply(a.Rel * float64(total))
	if a.Abs > rel {
		return a.Abs
	}
	return rel
}

// Check reports whether n satisfies the requirement for total
func (a AbsRel) Check(total, n int) bool {
	return n >= a.Required(total)
}

// IsSet reports whether the requirement can reject anything
func (a AbsRel) IsSet() bool {
	return a.Abs > 0 || a.Rel > 0
}

// Validate checks value ranges
func (a AbsRel) Validate() error {
	if a.Abs < 0 {
		return fmt.Errorf("absolute count must be non-negative, got %d", a.Abs)
	}
	if a.Rel < 0 || a.Rel > 1 {
		return fmt.Errorf("relative fraction must be within [0, 1], got %v", a.Rel)
	}
	switch a.Rounding {
	case "", RoundCeil, RoundFloor, RoundNearest:
	default:
		return fmt.Errorf("unknown rounding mode %q", a.Rounding)
	}
	return nil
}

// MinFeatureConfig holds the thresholds of the minimum feature filter
type MinFeatureConfig struct {
	MinHeight           float64          `mapstructure:"min_height" yaml:"min_height"`
	MinSamples          AbsRel           `mapstructure:"min_samples" yaml:"min_samples"`
	MinSamplesInGroup   AbsRel           `mapstructure:"min_samples_in_group" yaml:"min_samples_in_group"`
	MinIntensityOverlap float64          `mapstructure:"min_intensity_overlap" yaml:"min_intensity_overlap"`
	Strict              bool             `mapstructure:"strict" yaml:"strict"`
	ExcludeEstimated    bool             `mapstructure:"exclude_estimated" yaml:"exclude_estimated"`
	RTTolerance         core.RTTolerance `mapstructure:"rt_tolerance" yaml:"rt_tolerance"`
}

// Validate checks value ranges
func (c MinFeatureConfig) Validate() error {
	if c.MinHeight < 0 {
		return fmt.Errorf("min height must be non-negative")
	}
	if err := c.MinSamples.Validate(); err != nil {
		return fmt.Errorf("min samples: %w", err)
	}
	if err := c.MinSamplesInGroup.Validate(); err != nil {
		return fmt.Errorf("min samples in group: %w", err)
	}
	if c.MinIntensityOverlap < 0 || c.MinIntensityOverlap > 1 {
		return fmt.Errorf("min intensity overlap must be within [0, 1]")
	}
	if c.RTTolerance < 0 {
		return fmt.Errorf("rt tolerance must be non-negative")
	}
	return nil
}

// OverlapResult is the outcome of a row pair check
type OverlapResult int

const (
	Match OverlapResult = iota
	AntiOverlap
	OutOfRTRange
	BelowMinSamples
)

func (r OverlapResult) String() string {
	switch r {
	case Match:
		return "MATCH"
	case AntiOverlap:
		return "ANTI_OVERLAP"
	case OutOfRTRange:
		return "OUT_OF_RT_RANGE"
	case BelowMinSamples:
		return "BELOW_MIN_SAMPLES"
	default:
		return fmt.Sprintf("OverlapResult(%d)", int(r))
	}
}

// shapeHeightFraction is the relative height at which elution windows are compared
const shapeHeightFraction = 0.05

// MinFeatureFilter gates rows and row pairs by per-sample feature evidence.
// It only reads rows and is safe for concurrent use.
type MinFeatureFilter struct {
	cfg        MinFeatureConfig
	samples    []string
	groups     map[string]string
	groupSizes map[string]int
	groupNames []string
}

// NewMinFeatureFilter creates a filter over the given samples. groups maps sample to
// sample group and may be nil.
func NewMinFeatureFilter(cfg MinFeatureConfig, samples []string, groups map[string]string) *MinFeatureFilter {
	f := &MinFeatureFilter{
		cfg:     cfg,
		samples: samples,
		groups:  groups,
	}
	if len(groups) > 0 {
		f.groupSizes = make(map[string]int)
		for _, s := range samples {
			if g, ok := groups[s]; ok {
				if _, seen := f.groupSizes[g]; !seen {
					f.groupNames = append(f.groupNames, g)
				}
				f.groupSizes[g]++
			}
		}
		sort.Strings(f.groupNames)
	}
	return f
}

// Config returns the filter thresholds
func (f *MinFeatureFilter) Config() MinFeatureConfig {
	return f.cfg
}

// Qualifies reports whether a feature counts as evidence
func (f *MinFeatureFilter) Qualifies(feat *core.Feature) bool {
	if feat == nil || feat.Height < f.cfg.MinHeight {
		return false
	}
	if f.cfg.ExcludeEstimated && feat.Status == core.Estimated {
		return false
	}
	return true
}

func (f *MinFeatureFilter) useGroups() bool {
	return len(f.groupSizes) > 0 && f.cfg.MinSamplesInGroup.IsSet()
}

// quorum requires enough hits overall, then, when sample groups are used, enough hits
// in at least one group
func (f *MinFeatureFilter) quorum(hit func(sample string) bool) bool {
	n := 0
	perGroup := make(map[string]int)
	for _, s := range f.samples {
		if !hit(s) {
			continue
		}
		n++
		if g, ok := f.groups[s]; ok {
			perGroup[g]++
		}
	}

	if !f.cfg.MinSamples.Check(len(f.samples), n) {
		return false
	}
	if !f.useGroups() {
		return true
	}
	for _, g := range f.groupNames {
		if perGroup[g] > 0 && f.cfg.MinSamplesInGroup.Check(f.groupSizes[g], perGroup[g]) {
			return true
		}
	}
	return false
}

// PassesRow reports whether the row has qualifying features in enough samples overall
// and, with sample groups, in enough samples of one group.
func (f *MinFeatureFilter) PassesRow(row *core.Row) bool {
	return f.quorum(func(s string) bool {
		return f.Qualifies(row.Feature(s))
	})
}

// Overlap checks two rows sample by sample for retention time proximity and
// intensity profile overlap, then applies the sample quorum to the matching samples.
func (f *MinFeatureFilter) Overlap(a, b *core.Row) OverlapResult {
	hits := make(map[string]bool)

	for _, s := range f.samples {
		fa, fb := a.Feature(s), b.Feature(s)
		if !f.Qualifies(fa) || !f.Qualifies(fb) {
			continue
		}
		res := f.checkFeatures(fa, fb)
		if res == Match {
			hits[s] = true
			continue
		}
		if f.cfg.Strict {
			return res
		}
	}

	if f.quorum(func(s string) bool { return hits[s] }) {
		return Match
	}
	return BelowMinSamples
}

func (f *MinFeatureFilter) checkFeatures(a, b *core.Feature) OverlapResult {
	if !f.cfg.RTTolerance.Check(a.RT, b.RT) {
		return OutOfRTRange
	}
	if !f.intensityOverlap(a, b) {
		return AntiOverlap
	}
	return Match
}

// intensityOverlap reports whether enough of the smaller feature's intensity elutes
// inside the window of the larger feature. A smaller feature enclosed by the larger
// one's RT range always overlaps.
func (f *MinFeatureFilter) intensityOverlap(a, b *core.Feature) bool {
	if f.cfg.MinIntensityOverlap <= 0 {
		return true
	}
	big, small := a, b
	if b.Height > a.Height {
		big, small = b, a
	}

	bigLo, bigHi := big.RTRange()
	smallLo, smallHi := small.RTRange()
	if smallLo >= bigLo && smallHi <= bigHi {
		return true
	}

	lo, hi, ok := big.RTRangeAbove(f.windowThreshold(big))
	if !ok {
		return false
	}
	var overlap, sum float64
	for _, p := range small.Points() {
		if p.RT >= lo && p.RT <= hi {
			overlap += p.Intensity
		}
		sum += p.Intensity
	}
	if overlap <= 0 {
		return false
	}
	return overlap/sum >= f.cfg.MinIntensityOverlap
}

// windowThreshold is the less strict of 5% of the feature height and the minimum height
func (f *MinFeatureFilter) windowThreshold(feat *core.Feature) float64 {
	return math.Min(feat.Height*shapeHeightFraction, f.cfg.MinHeight)
}
