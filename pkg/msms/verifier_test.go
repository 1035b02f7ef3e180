package msms

import (
	"context"
	"testing"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
	"github.com/ChrisMcGann/ionnet/pkg/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mass = 298.992724

var (
	tol      = core.MZTolerance{Abs: 0.0005, PPM: 5}
	mH       = ionlib.NewIonType(1, ionlib.AdductH)
	dimerH   = ionlib.NewIonType(2, ionlib.AdductH)
	waterH   = ionlib.NewIonType(1, ionlib.AdductH, ionlib.ModH2O)
	waterMZ  = waterH.MZ(mass)
	parentMZ = mH.MZ(mass)
)

func spectrum(row int, precursor float64, peaks ...core.Peak) *core.Spectrum {
	return &core.Spectrum{
		RowID:       row,
		MassList:    "masses",
		PrecursorMZ: precursor,
		Peaks:       peaks,
	}
}

// buildStore links row 1 and row 2 as a and b and attaches the spectra by row id
func buildStore(t *testing.T, a, b ionlib.IonType, spectra map[int]*core.Spectrum) *network.Store {
	t.Helper()
	table := core.NewFeatureTable([]string{"s1"})
	for id, it := range map[int]ionlib.IonType{1: a, 2: b} {
		r := core.NewRow(id)
		r.MZ = it.MZ(mass)
		r.RT = 5.0
		if spec, ok := spectra[id]; ok {
			r.Spectra[spec.MassList] = spec
		}
		require.NoError(t, table.AddRow(r))
	}

	s := network.NewStore(table, tol, nil)
	o, _ := s.Add(network.Edge{A: 1, B: 2, TypeA: a, TypeB: b})
	require.Equal(t, network.Created, o)
	return s
}

func TestVerifyMultimer(t *testing.T) {
	dimerMZ := dimerH.MZ(mass)
	s := buildStore(t, mH, dimerH, map[int]*core.Spectrum{
		2: spectrum(2, dimerMZ, core.Peak{MZ: 150.0, Intensity: 500}, core.Peak{MZ: parentMZ + 0.0002, Intensity: 1000}),
	})

	res, err := NewVerifier(s, DefaultConfig(), nil).Verify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Rows)
	assert.Equal(t, 1, res.Stats.Multimers)
	assert.Empty(t, res.Warnings)

	dimer := s.Lookup(2, dimerH)
	require.NotNil(t, dimer)
	recs := dimer.MSMS()
	require.Len(t, recs, 1)
	assert.Equal(t, network.MultimerBreakdown, recs[0].Kind)
	assert.Equal(t, 1, recs[0].Molecules)
	assert.InDelta(t, parentMZ, recs[0].MZ, 0.001)
	assert.False(t, s.Lookup(1, mH).HasMSMS(network.MultimerBreakdown))
}

func TestVerifyMultimerBelowHeight(t *testing.T) {
	s := buildStore(t, mH, dimerH, map[int]*core.Spectrum{
		2: spectrum(2, dimerH.MZ(mass), core.Peak{MZ: parentMZ, Intensity: 50}),
	})

	res, err := NewVerifier(s, DefaultConfig(), nil).Verify(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Multimers)
}

func TestVerifyMissingMassList(t *testing.T) {
	s := buildStore(t, mH, dimerH, nil)

	res, err := NewVerifier(s, DefaultConfig(), nil).Verify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Skipped)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "row 2")
	assert.Empty(t, s.Lookup(2, dimerH).MSMS())
}

func TestVerifyNeutralLoss(t *testing.T) {
	precursorOnly := spectrum(1, parentMZ,
		core.Peak{MZ: 120.0, Intensity: 300},
		core.Peak{MZ: waterMZ, Intensity: 800},
	)
	fragmentsOnly := spectrum(1, parentMZ,
		core.Peak{MZ: 150.0, Intensity: 900},
		core.Peak{MZ: 150.0 + 18.010565, Intensity: 400},
	)

	tests := []struct {
		name      string
		spec      *core.Spectrum
		mode      LossMode
		want      int
		precursor bool
	}{
		{"precursor loss", precursorOnly, LossPrecursor, 1, true},
		{"fragment pair ignored in precursor mode", fragmentsOnly, LossPrecursor, 0, false},
		{"fragment pair in any signal mode", fragmentsOnly, LossAnySignal, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := buildStore(t, mH, waterH, map[int]*core.Spectrum{1: tt.spec})
			cfg := DefaultConfig()
			cfg.LossMode = tt.mode

			res, err := NewVerifier(s, cfg, nil).Verify(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Stats.Losses)

			loss := s.Lookup(2, waterH)
			recs := loss.MSMS()
			require.Len(t, recs, tt.want)
			if tt.want == 0 {
				return
			}
			assert.Equal(t, network.NeutralLossSignal, recs[0].Kind)
			assert.Equal(t, "-H2O", recs[0].Loss)
			assert.Equal(t, 1, recs[0].Partner)
			assert.Equal(t, tt.precursor, recs[0].Precursor)
			assert.Empty(t, s.Lookup(1, mH).MSMS(), "records go to the modified identity")
		})
	}
}

func TestVerifyAppliesPeakFilter(t *testing.T) {
	s := buildStore(t, mH, waterH, map[int]*core.Spectrum{
		1: spectrum(1, parentMZ,
			core.Peak{MZ: waterMZ, Intensity: 800},
			core.Peak{MZ: 250.0, Intensity: 100000},
		),
	})
	cfg := DefaultConfig()
	cfg.Peaks.IntensityCutoff = 5

	res, err := NewVerifier(s, cfg, nil).Verify(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Losses, "loss peak below 5% of base peak")
}

func TestVerifyDisabledChecks(t *testing.T) {
	s := buildStore(t, mH, dimerH, map[int]*core.Spectrum{
		2: spectrum(2, dimerH.MZ(mass), core.Peak{MZ: parentMZ, Intensity: 1000}),
	})
	cfg := DefaultConfig()
	cfg.CheckMultimers = false

	res, err := NewVerifier(s, cfg, nil).Verify(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Rows)
	assert.Empty(t, s.Lookup(2, dimerH).MSMS())
}

func TestVerifyCancelled(t *testing.T) {
	s := buildStore(t, mH, dimerH, map[int]*core.Spectrum{
		2: spectrum(2, dimerH.MZ(mass), core.Peak{MZ: parentMZ, Intensity: 1000}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewVerifier(s, DefaultConfig(), nil).Verify(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Lookup(2, dimerH).MSMS(), "no records applied on cancellation")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MassList = " "
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LossMode = "fragment"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tolerance = core.MZTolerance{}
	assert.Error(t, cfg.Validate())
}
