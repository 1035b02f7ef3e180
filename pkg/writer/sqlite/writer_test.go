package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
	"github.com/ChrisMcGann/ionnet/pkg/pipeline"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runPipeline(t *testing.T) *pipeline.Result {
	t.Helper()
	const m = 298.992724
	types := []ionlib.IonType{
		ionlib.NewIonType(1, ionlib.AdductH),
		ionlib.NewIonType(1, ionlib.AdductNa),
		ionlib.NewIonType(2, ionlib.AdductNa),
	}
	table := core.NewFeatureTable([]string{"s1"})
	for i, it := range types {
		r := core.NewRow(i + 1)
		r.AddFeature(&core.Feature{Sample: "s1", MZ: it.MZ(m), RT: 5.0, Height: 5000})
		r.Spectra["masses"] = &core.Spectrum{
			RowID:       i + 1,
			MassList:    "masses",
			PrecursorMZ: it.MZ(m),
			Peaks:       []core.Peak{{MZ: 150.5, Intensity: 20}, {MZ: 100.25, Intensity: 10}},
		}
		require.NoError(t, table.AddRow(r))
	}

	cfg := pipeline.DefaultConfig()
	cfg.Library.MaxCharge = 1
	cfg.Library.MaxMolecules = 2
	cfg.Library.MaxMods = 0
	cfg.Library.Adducts = []string{"H", "Na"}
	cfg.Library.Modifications = nil
	p, err := pipeline.New(cfg, nil, nil)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), table, nil)
	require.NoError(t, err)
	require.Len(t, res.Networks, 1)
	return res
}

func TestWriteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	w, err := NewWriter(path)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	res := runPipeline(t)
	res.Warnings = append(res.Warnings, "row 9 skipped: test")
	runID, err := w.WriteResult(res, "masses", "library:\n  polarity: positive\n")
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var (
		date     string
		complete bool
		networks int
		config   string
	)
	err = db.QueryRow(`SELECT CreationDate, Complete, Networks, Config FROM RunTable WHERE RunId = ?`, runID).
		Scan(&date, &complete, &networks, &config)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01 12:00:00", date)
	assert.True(t, complete)
	assert.Equal(t, 1, networks)
	assert.Contains(t, config, "polarity")

	var mass float64
	var size int
	err = db.QueryRow(`SELECT NeutralMass, Size FROM NetworkTable WHERE RunId = ? AND NetworkId = 0`, runID).Scan(&mass, &size)
	require.NoError(t, err)
	assert.InDelta(t, 298.992724, mass, 0.001)
	assert.Equal(t, 3, size)

	rows, err := db.Query(`SELECT RowId, IonType, NetworkId, Best FROM IdentityTable WHERE RunId = ? ORDER BY RowId`, runID)
	require.NoError(t, err)
	var got []string
	for rows.Next() {
		var (
			row   int
			ion   string
			netID sql.NullInt64
			best  bool
		)
		require.NoError(t, rows.Scan(&row, &ion, &netID, &best))
		if best && netID.Valid {
			got = append(got, ion)
		}
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []string{"[M+H]+", "[M+Na]+", "[2M+Na]+"}, got)

	var blob []byte
	err = db.QueryRow(`SELECT blobMass FROM SpectrumTable WHERE RunId = ? AND RowId = 1`, runID).Scan(&blob)
	require.NoError(t, err)
	assert.Equal(t, []float64{100.25, 150.5}, DecodePeaksFloat64(blob), "peaks are written sorted")

	var warnings int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM WarningTable WHERE RunId = ?`, runID).Scan(&warnings))
	assert.Equal(t, 1, warnings)
}

func TestWriteIncompleteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	w, err := NewWriter(path)
	require.NoError(t, err)

	res := &pipeline.Result{Complete: false, Stage: pipeline.StageRefine}
	runID, err := w.WriteResult(res, "masses", "")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var stage string
	var complete bool
	require.NoError(t, db.QueryRow(`SELECT Stage, Complete FROM RunTable WHERE RunId = ?`, runID).Scan(&stage, &complete))
	assert.Equal(t, "refine", stage)
	assert.False(t, complete)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM IdentityTable`).Scan(&n))
	assert.Zero(t, n)
}

func TestEncodePeaks(t *testing.T) {
	peaks := []core.Peak{{MZ: 100.5, Intensity: 1}, {MZ: 200.25, Intensity: 2}}
	assert.Len(t, encodePeaksFloat64(peaks, true), 16)
	assert.Equal(t, []float64{1, 2}, DecodePeaksFloat64(encodePeaksFloat64(peaks, false)))
}
