// Package match generates ion identity edges between rows of a feature table.
//
// Matching is pure hypothesis generation: it reads rows and the ion library and
// returns edges, it never touches network state.
package match

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/ChrisMcGann/ionnet/pkg/corr"
	"github.com/ChrisMcGann/ionnet/pkg/filter"
	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
	"github.com/ChrisMcGann/ionnet/pkg/network"
	"golang.org/x/sync/errgroup"
)

// CheckMode selects which m/z values must agree with an ion type pair
type CheckMode string

const (
	// CheckAverage uses the row average m/z only
	CheckAverage CheckMode = "average"
	// CheckOneFeature requires one sample where both features agree
	CheckOneFeature CheckMode = "one_feature"
	// CheckAllFeatures requires every sample with both features to agree
	CheckAllFeatures CheckMode = "all_features"
)

// ParseCheckMode parses a check mode, empty means average
func ParseCheckMode(s string) (CheckMode, error) {
	switch CheckMode(s) {
	case "", CheckAverage:
		return CheckAverage, nil
	case CheckOneFeature, CheckAllFeatures:
		return CheckMode(s), nil
	default:
		return "", fmt.Errorf("unknown check mode %q", s)
	}
}

// Config controls pair selection and verification
type Config struct {
	CheckMode   CheckMode        `mapstructure:"check_mode" yaml:"check_mode"`
	RTTolerance core.RTTolerance `mapstructure:"rt_tolerance" yaml:"rt_tolerance"`
	Workers     int              `mapstructure:"workers" yaml:"workers"`
}

// DefaultConfig returns the default matcher settings
func DefaultConfig() Config {
	return Config{
		CheckMode:   CheckAverage,
		RTTolerance: 0.05,
		Workers:     4,
	}
}

// Validate checks the matcher settings
func (c Config) Validate() error {
	if _, err := ParseCheckMode(string(c.CheckMode)); err != nil {
		return err
	}
	if c.RTTolerance < 0 {
		return fmt.Errorf("rt tolerance must not be negative, got %v", c.RTTolerance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Result is the aggregated output of a matching pass
type Result struct {
	Edges    []network.Edge
	Pairs    int // Row pairs evaluated
	Warnings []string
}

// Matcher finds ion type pairs between rows. It only reads shared state and is safe
// for concurrent use.
type Matcher struct {
	table  *core.FeatureTable
	lib    *ionlib.Library
	filter *filter.MinFeatureFilter
	cfg    Config
	log    *slog.Logger
}

// NewMatcher creates a matcher. A nil filter accepts every row and pair, a nil logger
// discards output.
func NewMatcher(table *core.FeatureTable, lib *ionlib.Library, f *filter.MinFeatureFilter, cfg Config, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.CheckMode == "" {
		cfg.CheckMode = CheckAverage
	}
	table.Reindex()
	return &Matcher{
		table:  table,
		lib:    lib,
		filter: f,
		cfg:    cfg,
		log:    logger,
	}
}

// Match returns one edge per ion type pair that explains rows a and b.
// Rows failing the row filter or the pairwise overlap check give no edges.
func (m *Matcher) Match(a, b *core.Row) []network.Edge {
	if a == nil || b == nil || a.ID == b.ID {
		return nil
	}
	if !m.cfg.RTTolerance.Check(a.RT, b.RT) {
		return nil
	}
	if m.filter != nil {
		if !m.filter.PassesRow(a) || !m.filter.PassesRow(b) {
			return nil
		}
		if res := m.filter.Overlap(a, b); res != filter.Match {
			return nil
		}
	}

	pairs := m.lib.FindPairs(ionlib.PairQuery{
		MZA:     a.MZ,
		MZB:     b.MZ,
		ChargeA: a.Charge,
		ChargeB: b.Charge,
	})

	var edges []network.Edge
	for _, p := range pairs {
		if !m.verify(a, b, p) {
			continue
		}
		edges = append(edges, network.Edge{
			A:        a.ID,
			B:        b.ID,
			TypeA:    p.A,
			TypeB:    p.B,
			Mismatch: p.Mismatch,
		})
	}
	return edges
}

// verify checks the pair against per-sample m/z values according to the check mode
func (m *Matcher) verify(a, b *core.Row, p ionlib.PairMatch) bool {
	if m.cfg.CheckMode == CheckAverage {
		return true
	}

	tol := m.lib.Tolerance()
	minHeight := 0.0
	if m.filter != nil {
		minHeight = m.filter.Config().MinHeight
	}

	checked := 0
	for _, s := range m.table.Samples {
		fa, fb := a.Feature(s), b.Feature(s)
		if fa == nil || fb == nil || fa.Height < minHeight || fb.Height < minHeight {
			continue
		}
		checked++
		predicted := p.B.MZ(p.A.NeutralMass(fa.MZ))
		ok := tol.Check(fb.MZ, predicted)
		switch {
		case ok && m.cfg.CheckMode == CheckOneFeature:
			return true
		case !ok && m.cfg.CheckMode == CheckAllFeatures:
			return false
		}
	}
	return m.cfg.CheckMode == CheckAllFeatures && checked > 0
}

// MatchGroups matches all correlated row pairs inside each group on a worker pool.
// Empty groups and unknown rows are skipped with a warning. Edges are deduplicated
// and returned in assembly order.
func (m *Matcher) MatchGroups(ctx context.Context, groups []*corr.Group) (Result, error) {
	type groupResult struct {
		edges    []network.Edge
		pairs    int
		warnings []string
	}
	results := make([]groupResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())

	for idx, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := &results[idx]
			if grp == nil || grp.Empty() {
				r.warnings = append(r.warnings, fmt.Sprintf("correlation group %d has no members", groupID(grp, idx)))
				return nil
			}
			if missing := grp.Missing(m.known); len(missing) > 0 {
				r.warnings = append(r.warnings, fmt.Sprintf("correlation group %d: unknown rows %v skipped", grp.ID, missing))
			}

			rows := m.groupRows(grp)
			for i := 0; i < len(rows); i++ {
				for j := i + 1; j < len(rows); j++ {
					if !grp.IsCorrelated(rows[i].ID, rows[j].ID) {
						continue
					}
					r.pairs++
					r.edges = append(r.edges, m.Match(rows[i], rows[j])...)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	var all []network.Edge
	for _, r := range results {
		all = append(all, r.edges...)
		res.Pairs += r.pairs
		for _, w := range r.warnings {
			m.log.Warn(w)
			res.Warnings = append(res.Warnings, w)
		}
	}
	res.Edges = Dedupe(all, m.table)
	m.log.Info("matched correlation groups", "groups", len(groups), "pairs", res.Pairs, "edges", len(res.Edges))
	return res, nil
}

// MatchAll matches every row pair within the retention time tolerance. It is used
// when no correlation groups are supplied.
func (m *Matcher) MatchAll(ctx context.Context) (Result, error) {
	rows := make([]*core.Row, len(m.table.Rows))
	copy(rows, m.table.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RT != rows[j].RT {
			return rows[i].RT < rows[j].RT
		}
		return rows[i].ID < rows[j].ID
	})

	edges := make([][]network.Edge, len(rows))
	pairs := make([]int, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())

	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < len(rows); j++ {
				if m.cfg.RTTolerance.Enabled() && rows[j].RT-rows[i].RT > float64(m.cfg.RTTolerance) {
					break
				}
				pairs[i]++
				edges[i] = append(edges[i], m.Match(rows[i], rows[j])...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	var all []network.Edge
	for i := range rows {
		all = append(all, edges[i]...)
		res.Pairs += pairs[i]
	}
	res.Edges = Dedupe(all, m.table)
	m.log.Info("matched all rows", "rows", len(rows), "pairs", res.Pairs, "edges", len(res.Edges))
	return res, nil
}

// Dedupe removes edges that connect the same (row, ion type) identities and returns
// the rest in assembly order.
func Dedupe(edges []network.Edge, rows network.RowSource) []network.Edge {
	sorted := network.SortEdges(edges, rows)
	out := sorted[:0]
	seen := make(map[string]struct{}, len(sorted))
	for _, e := range sorted {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

func (m *Matcher) workers() int {
	if m.cfg.Workers < 1 {
		return 1
	}
	return m.cfg.Workers
}

func (m *Matcher) known(id int) bool {
	return m.table.Row(id) != nil
}

// groupRows resolves the group's rows in ascending id order
func (m *Matcher) groupRows(g *corr.Group) []*core.Row {
	var rows []*core.Row
	for _, id := range g.Rows() {
		if r := m.table.Row(id); r != nil {
			rows = append(rows, r)
		}
	}
	return rows
}

func groupID(g *corr.Group, idx int) int {
	if g == nil {
		return idx
	}
	return g.ID
}
