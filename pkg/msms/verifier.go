// Package msms corroborates ion identities with fragmentation spectra.
package msms

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/ChrisMcGann/ionnet/pkg/filter"
	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
	"github.com/ChrisMcGann/ionnet/pkg/network"
	"golang.org/x/sync/errgroup"
)

// LossMode selects where a neutral loss signal may be found
type LossMode string

const (
	// LossPrecursor only accepts the loss from the precursor ion
	LossPrecursor LossMode = "precursor"
	// LossAnySignal also accepts any fragment pair separated by the loss
	LossAnySignal LossMode = "any_signal"
)

// Config controls the MS/MS checks
type Config struct {
	MassList       string                `mapstructure:"mass_list" yaml:"mass_list"`
	Tolerance      core.MZTolerance      `mapstructure:"tolerance" yaml:"tolerance"`
	MinHeight      float64               `mapstructure:"min_height" yaml:"min_height"`
	CheckMultimers bool                  `mapstructure:"check_multimers" yaml:"check_multimers"`
	CheckLosses    bool                  `mapstructure:"check_losses" yaml:"check_losses"`
	LossMode       LossMode              `mapstructure:"loss_mode" yaml:"loss_mode"`
	Peaks          filter.MassListConfig `mapstructure:"peaks" yaml:"peaks"`
	Workers        int                   `mapstructure:"workers" yaml:"workers"`
}

// DefaultConfig returns the default MS/MS settings
func DefaultConfig() Config {
	return Config{
		MassList:       "masses",
		Tolerance:      core.MZTolerance{Abs: 0.003, PPM: 10},
		MinHeight:      100,
		CheckMultimers: true,
		CheckLosses:    true,
		LossMode:       LossPrecursor,
		Workers:        4,
	}
}

// Validate checks the settings
func (c Config) Validate() error {
	if strings.TrimSpace(c.MassList) == "" {
		return fmt.Errorf("mass list name is required")
	}
	if !c.Tolerance.Valid() {
		return fmt.Errorf("ms/ms m/z tolerance must be positive")
	}
	if c.MinHeight < 0 {
		return fmt.Errorf("ms/ms min height must be non-negative")
	}
	switch c.LossMode {
	case "", LossPrecursor, LossAnySignal:
	default:
		return fmt.Errorf("unknown loss mode %q", c.LossMode)
	}
	return nil
}

// Stats counts verification results
type Stats struct {
	Rows      int // Rows with a candidate identity
	Skipped   int // Candidate rows without a usable mass list
	Multimers int
	Losses    int
}

// Result of a verification pass
type Result struct {
	Stats    Stats
	Warnings []string
}

type pending struct {
	handle int
	rec    network.MSMSRecord
}

// Verifier attaches MS/MS corroboration records to identities in a store.
// Records never change network membership.
type Verifier struct {
	store *network.Store
	cfg   Config
	log   *slog.Logger
}

// NewVerifier creates a verifier. A nil logger discards output.
func NewVerifier(store *network.Store, cfg Config, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.LossMode == "" {
		cfg.LossMode = LossPrecursor
	}
	return &Verifier{store: store, cfg: cfg, log: logger}
}

// Verify checks every row with a multimer or modified identity. Rows are processed in
// parallel against a read-only store and the records are applied in ascending row order.
func (v *Verifier) Verify(ctx context.Context) (Result, error) {
	var res Result
	rows := v.candidateRows()
	res.Stats.Rows = len(rows)
	if len(rows) == 0 {
		return res, nil
	}

	spectra, err := v.prepare(ctx)
	if err != nil {
		return res, err
	}

	found := make([][]pending, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers())
	for idx, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found[idx] = v.checkRow(row, spectra)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for idx, row := range rows {
		if spectra[row] == nil {
			res.Stats.Skipped++
			w := fmt.Sprintf("row %d has no %q mass list, ms/ms check skipped", row, v.cfg.MassList)
			v.log.Warn(w)
			res.Warnings = append(res.Warnings, w)
		}
		for _, p := range found[idx] {
			v.store.AddMSMS(p.handle, p.rec)
			switch p.rec.Kind {
			case network.MultimerBreakdown:
				res.Stats.Multimers++
			case network.NeutralLossSignal:
				res.Stats.Losses++
			}
		}
	}

	v.log.Info("ms/ms verification done",
		"rows", res.Stats.Rows,
		"skipped", res.Stats.Skipped,
		"multimers", res.Stats.Multimers,
		"losses", res.Stats.Losses)
	return res, nil
}

// candidateRows returns rows with at least one multimer or modified identity
func (v *Verifier) candidateRows() []int {
	var out []int
	for _, row := range v.store.IdentityRows() {
		for _, i := range v.store.Identities(row) {
			if (v.cfg.CheckMultimers && i.Type.IsMultimer()) || (v.cfg.CheckLosses && i.Type.IsModified()) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// prepare filters the mass list of every row with identities. Candidate rows may
// need their partners' spectra for the loss check.
func (v *Verifier) prepare(ctx context.Context) (map[int]*core.Spectrum, error) {
	rows := v.store.IdentityRows()
	filtered := make([]*core.Spectrum, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers())
	for idx, id := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := v.store.Rows().Row(id)
			if r == nil {
				return nil
			}
			spec := r.Spectrum(v.cfg.MassList)
			if spec == nil {
				return nil
			}
			spec = spec.Clone()
			if err := v.cfg.Peaks.Apply(spec); err != nil {
				v.log.Debug("mass list rejected", "row", id, "error", err)
				return nil
			}
			filtered[idx] = spec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int]*core.Spectrum, len(rows))
	for idx, id := range rows {
		if filtered[idx] != nil {
			out[id] = filtered[idx]
		}
	}
	return out, nil
}

func (v *Verifier) checkRow(row int, spectra map[int]*core.Spectrum) []pending {
	var out []pending
	for _, i := range v.store.Identities(row) {
		if v.cfg.CheckMultimers && i.Type.IsMultimer() {
			if spec := spectra[row]; spec != nil {
				for _, rec := range v.multimerRecords(i, spec) {
					out = append(out, pending{handle: i.Handle(), rec: rec})
				}
			}
		}
		if v.cfg.CheckLosses && i.Type.IsModified() {
			for _, rec := range v.lossRecords(i, spectra) {
				out = append(out, pending{handle: i.Handle(), rec: rec})
			}
		}
	}
	return out
}

// multimerRecords searches the spectrum for the same ion with fewer molecules,
// e.g. [M+H]+ in the spectrum of [2M+H]+.
func (v *Verifier) multimerRecords(i *network.Identity, spec *core.Spectrum) []network.MSMSRecord {
	var out []network.MSMSRecord
	for k := 1; k < i.Type.Molecules; k++ {
		mz := i.Type.WithMolecules(k).MZ(i.NeutralMass)
		if p, ok := spec.FindPeak(mz, v.cfg.Tolerance, v.cfg.MinHeight); ok {
			out = append(out, network.MSMSRecord{
				Kind:      network.MultimerBreakdown,
				MZ:        p.MZ,
				Intensity: p.Intensity,
				Molecules: k,
				Partner:   -1,
			})
		}
	}
	return out
}

// lossRecords checks each partner that differs from the identity only by modifications.
// The loss is searched in the spectrum of the heavier of the two ions.
func (v *Verifier) lossRecords(i *network.Identity, spectra map[int]*core.Spectrum) []network.MSMSRecord {
	var out []network.MSMSRecord
	for _, prow := range i.Partners() {
		p := v.partner(i, prow)
		if p == nil || !i.Type.IsModificationOf(p.Type) {
			continue
		}
		diff := i.Type.SubtractMods(p.Type)
		shift := modMass(diff) / float64(i.Type.AbsCharge())
		if shift == 0 {
			continue
		}

		heavy := p.Row
		if shift > 0 {
			heavy = i.Row
		}
		spec := spectra[heavy]
		if spec == nil {
			continue
		}
		precursor := spec.PrecursorMZ
		if r := v.store.Rows().Row(heavy); precursor <= 0 && r != nil {
			precursor = r.MZ
		}
		delta := math.Abs(shift)
		loss := lossName(diff)

		if pk, ok := spec.FindPeak(precursor-delta, v.cfg.Tolerance, v.cfg.MinHeight); ok {
			out = append(out, network.MSMSRecord{
				Kind:      network.NeutralLossSignal,
				MZ:        pk.MZ,
				Intensity: pk.Intensity,
				Loss:      loss,
				Partner:   prow,
				Precursor: true,
			})
			continue
		}
		if v.cfg.LossMode != LossAnySignal {
			continue
		}
		if pk, ok := v.fragmentPair(spec, delta); ok {
			out = append(out, network.MSMSRecord{
				Kind:      network.NeutralLossSignal,
				MZ:        pk.MZ,
				Intensity: pk.Intensity,
				Loss:      loss,
				Partner:   prow,
			})
		}
	}
	return out
}

// fragmentPair finds the most intense fragment that has a partner fragment delta higher.
// Both peaks must reach the minimum height.
func (v *Verifier) fragmentPair(spec *core.Spectrum, delta float64) (core.Peak, bool) {
	var best core.Peak
	found := false
	for _, lo := range spec.Peaks {
		if lo.Intensity < v.cfg.MinHeight {
			continue
		}
		if _, ok := spec.FindPeak(lo.MZ+delta, v.cfg.Tolerance, v.cfg.MinHeight); !ok {
			continue
		}
		if !found || lo.Intensity > best.Intensity {
			best = lo
			found = true
		}
	}
	return best, found
}

// partner returns the identity a partner row was linked with
func (v *Verifier) partner(i *network.Identity, row int) *network.Identity {
	h, ok := i.Partner(row)
	if !ok {
		return nil
	}
	return v.store.Identity(h)
}

func (v *Verifier) workers() int {
	if v.cfg.Workers < 1 {
		return 1
	}
	return v.cfg.Workers
}

func modMass(mods []ionlib.Modification) float64 {
	sum := 0.0
	for _, m := range mods {
		sum += m.Mass
	}
	return sum
}

func lossName(mods []ionlib.Modification) string {
	names := make([]string, len(mods))
	for k, m := range mods {
		names[k] = m.Signed()
	}
	return strings.Join(names, "")
}
