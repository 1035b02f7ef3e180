// Package pipeline runs ion identity networking end to end: matching, assembly,
// MS/MS verification and refinement.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/ChrisMcGann/ionnet/pkg/corr"
	"github.com/ChrisMcGann/ionnet/pkg/filter"
	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
	"github.com/ChrisMcGann/ionnet/pkg/match"
	"github.com/ChrisMcGann/ionnet/pkg/msms"
	"github.com/ChrisMcGann/ionnet/pkg/network"
	"github.com/ChrisMcGann/ionnet/pkg/refine"
)

// Stage names a pipeline step
type Stage string

const (
	StageMatch    Stage = "match"
	StageAssemble Stage = "assemble"
	StageMSMS     Stage = "msms"
	StageRefine   Stage = "refine"
	StageDone     Stage = "done"
)

// Stats collects the counters of every stage
type Stats struct {
	Rows        int
	SkippedRows int
	Pairs       int
	Edges       int
	Assembly    network.Stats
	MSMS        msms.Stats
	Refine      refine.Stats
	Networks    int
	Duration    time.Duration
}

// Result of a run. When Complete is false the run was cancelled during Stage; the store
// holds the last consistent state and Networks is empty.
type Result struct {
	Complete bool
	Stage    Stage
	Stats    Stats
	Warnings []string
	Store    *network.Store
	Networks []network.Summary
}

// Best returns the identity selected for a row, or nil
func (r *Result) Best(row int) *network.Identity {
	if r.Store == nil {
		return nil
	}
	return r.Store.Best(row)
}

// Pipeline is a validated configuration with its ion library
type Pipeline struct {
	cfg Config
	lib *ionlib.Library
	log *slog.Logger
}

// New validates the configuration and builds the ion library. A nil catalog uses the
// catalog described by the configuration. A nil logger discards output.
func New(cfg Config, catalog *ionlib.Catalog, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		var err error
		if catalog, err = cfg.Catalog(); err != nil {
			return nil, err
		}
	}
	lib, err := ionlib.NewLibrary(cfg.Library, catalog)
	if err != nil {
		return nil, &ConfigError{Field: "library", Err: err}
	}
	logger.Debug("ion library built", "polarity", lib.Polarity().String(), "ion_types", lib.Len())
	return &Pipeline{cfg: cfg, lib: lib, log: logger}, nil
}

// Library returns the ion library
func (p *Pipeline) Library() *ionlib.Library {
	return p.lib
}

// Config returns the validated configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run processes the table. With nil groups every row pair within the retention time
// tolerance is matched, otherwise only correlated pairs inside each group.
// Cancellation is not an error: the result is returned with Complete set to false.
func (p *Pipeline) Run(ctx context.Context, table *core.FeatureTable, groups []*corr.Group) (*Result, error) {
	start := time.Now()
	res := &Result{Stage: StageMatch}

	table, skipped := p.validRows(table)
	res.Stats.Rows = len(table.Rows)
	res.Stats.SkippedRows = len(skipped)
	res.Warnings = append(res.Warnings, skipped...)

	f := filter.NewMinFeatureFilter(p.cfg.Filter, table.Samples, table.Groups)
	matcher := match.NewMatcher(table, p.lib, f, p.cfg.Match, p.log)

	var (
		mres match.Result
		err  error
	)
	if groups != nil {
		mres, err = matcher.MatchGroups(ctx, groups)
	} else {
		mres, err = matcher.MatchAll(ctx)
	}
	if err != nil {
		return p.stop(res, err, start)
	}
	res.Stats.Pairs = mres.Pairs
	res.Stats.Edges = len(mres.Edges)
	res.Warnings = append(res.Warnings, mres.Warnings...)

	res.Stage = StageAssemble
	store := network.NewStore(table, p.lib.Tolerance(), p.log)
	res.Store = store
	res.Stats.Assembly, err = store.Assemble(ctx, mres.Edges)
	if err != nil {
		return p.stop(res, err, start)
	}
	store.Renumber()
	p.log.Info("networks assembled",
		"edges", res.Stats.Assembly.Edges,
		"created", res.Stats.Assembly.Created,
		"merged", res.Stats.Assembly.Merged,
		"rejected", res.Stats.Assembly.Rejected,
		"networks", len(store.Networks()))

	if p.cfg.CheckMSMS {
		res.Stage = StageMSMS
		vres, err := msms.NewVerifier(store, p.cfg.MSMS, p.log).Verify(ctx)
		if err != nil {
			return p.stop(res, err, start)
		}
		res.Stats.MSMS = vres.Stats
		res.Warnings = append(res.Warnings, vres.Warnings...)
	}

	res.Stage = StageRefine
	res.Stats.Refine, err = refine.NewEngine(store, p.cfg.Refine, p.log).Refine(ctx)
	if err != nil {
		return p.stop(res, err, start)
	}

	store.Renumber()
	res.Networks = store.Summarize()
	res.Stats.Networks = len(res.Networks)
	res.Stage = StageDone
	res.Complete = true
	res.Stats.Duration = time.Since(start)
	p.log.Info("ion identity networking complete",
		"rows", res.Stats.Rows,
		"networks", res.Stats.Networks,
		"warnings", len(res.Warnings),
		"duration", res.Stats.Duration)
	return res, nil
}

// stop ends a run early. Cancellation yields an incomplete result, anything else an error.
func (p *Pipeline) stop(res *Result, err error, start time.Time) (*Result, error) {
	res.Stats.Duration = time.Since(start)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		p.log.Warn("run cancelled", "stage", string(res.Stage))
		res.Complete = false
		res.Networks = nil
		return res, nil
	}
	return nil, fmt.Errorf("%s stage failed: %w", res.Stage, err)
}

// validRows returns a table without rows that fail validation and one warning per
// skipped row. The input table is returned unchanged when every row is valid.
func (p *Pipeline) validRows(table *core.FeatureTable) (*core.FeatureTable, []string) {
	var warnings []string
	var valid []*core.Row
	for _, r := range table.Rows {
		if err := r.Validate(); err != nil {
			w := fmt.Sprintf("row %d skipped: %v", r.ID, err)
			p.log.Warn(w)
			warnings = append(warnings, w)
			continue
		}
		valid = append(valid, r)
	}
	if len(warnings) == 0 {
		table.Reindex()
		return table, nil
	}

	out := &core.FeatureTable{
		Samples: table.Samples,
		Groups:  table.Groups,
		Rows:    valid,
	}
	out.Reindex()
	return out, warnings
}
