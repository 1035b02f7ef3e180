// Package sqlite writes ion networking results to a SQLite database
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/ChrisMcGann/ionnet/pkg/network"
	"github.com/ChrisMcGann/ionnet/pkg/pipeline"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Date format for RunTable (ISO 8601)
const runDateFormat = "2006-01-02 15:04:05"

// Writer handles writing pipeline results to SQLite database files. One database may
// hold several runs, told apart by RunId.
type Writer struct {
	db           *sql.DB
	outputPath   string
	runStmt      *sql.Stmt
	networkStmt  *sql.Stmt
	identityStmt *sql.Stmt
	spectrumStmt *sql.Stmt
	warningStmt  *sql.Stmt
	now          func() time.Time
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		now:        time.Now,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS RunTable (
		RunId TEXT PRIMARY KEY,
		CreationDate TEXT,
		Complete BOOL,
		Stage TEXT,
		Rows INTEGER,
		SkippedRows INTEGER,
		Edges INTEGER,
		Networks INTEGER,
		Warnings INTEGER,
		DurationMs INTEGER,
		Config TEXT
	);

	CREATE TABLE IF NOT EXISTS NetworkTable (
		RunId TEXT REFERENCES RunTable(RunId),
		NetworkId INTEGER,
		NeutralMass DOUBLE,
		MaxDeviation DOUBLE,
		RetentionTime DOUBLE,
		Size INTEGER,
		PRIMARY KEY (RunId, NetworkId)
	);

	CREATE TABLE IF NOT EXISTS IdentityTable (
		RunId TEXT REFERENCES RunTable(RunId),
		RowId INTEGER,
		NetworkId INTEGER,
		IonType TEXT,
		Charge INTEGER,
		Molecules INTEGER,
		NeutralMass DOUBLE,
		Links INTEGER,
		Partners TEXT,
		Best BOOL,
		MultimerConfirmed INTEGER,
		LossConfirmed INTEGER,
		MSMS TEXT
	);

	CREATE TABLE IF NOT EXISTS SpectrumTable (
		RunId TEXT REFERENCES RunTable(RunId),
		RowId INTEGER,
		MassList TEXT,
		PrecursorMass DOUBLE,
		blobMass BLOB,
		blobIntensity BLOB
	);

	CREATE TABLE IF NOT EXISTS WarningTable (
		RunId TEXT REFERENCES RunTable(RunId),
		Seq INTEGER,
		Message TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.runStmt, err = w.db.Prepare(`
		INSERT INTO RunTable (
			RunId, CreationDate, Complete, Stage, Rows, SkippedRows,
			Edges, Networks, Warnings, DurationMs, Config
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare run statement: %w", err)
	}

	w.networkStmt, err = w.db.Prepare(`
		INSERT INTO NetworkTable (
			RunId, NetworkId, NeutralMass, MaxDeviation, RetentionTime, Size
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare network statement: %w", err)
	}

	w.identityStmt, err = w.db.Prepare(`
		INSERT INTO IdentityTable (
			RunId, RowId, NetworkId, IonType, Charge, Molecules, NeutralMass,
			Links, Partners, Best, MultimerConfirmed, LossConfirmed, MSMS
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare identity statement: %w", err)
	}

	w.spectrumStmt, err = w.db.Prepare(`
		INSERT INTO SpectrumTable (
			RunId, RowId, MassList, PrecursorMass, blobMass, blobIntensity
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spectrum statement: %w", err)
	}

	w.warningStmt, err = w.db.Prepare(`INSERT INTO WarningTable (RunId, Seq, Message) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare warning statement: %w", err)
	}

	return nil
}

// WriteResult stores one run in a single transaction and returns its run id.
// massList names the spectra stored for networked rows; empty skips them.
// config is stored verbatim for reference.
func (w *Writer) WriteResult(res *pipeline.Result, massList, config string) (string, error) {
	runID := uuid.New().String()

	tx, err := w.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Stmt(w.runStmt).Exec(
		runID,
		w.now().Format(runDateFormat),
		res.Complete,
		string(res.Stage),
		res.Stats.Rows,
		res.Stats.SkippedRows,
		res.Stats.Edges,
		len(res.Networks),
		len(res.Warnings),
		res.Stats.Duration.Milliseconds(),
		config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for i, msg := range res.Warnings {
		if _, err := tx.Stmt(w.warningStmt).Exec(runID, i, msg); err != nil {
			return "", fmt.Errorf("failed to insert warning: %w", err)
		}
	}

	// An incomplete run has no finalized networks
	if res.Complete && res.Store != nil {
		if err := w.writeNetworks(tx, runID, res); err != nil {
			return "", err
		}
		if err := w.writeIdentities(tx, runID, res.Store); err != nil {
			return "", err
		}
		if massList != "" {
			if err := w.writeSpectra(tx, runID, res.Store, massList); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

func (w *Writer) writeNetworks(tx *sql.Tx, runID string, res *pipeline.Result) error {
	stmt := tx.Stmt(w.networkStmt)
	for _, n := range res.Networks {
		_, err := stmt.Exec(runID, n.ID, n.NeutralMass, n.MaxDeviation, n.RT, len(n.Rows))
		if err != nil {
			return fmt.Errorf("failed to insert network %d: %w", n.ID, err)
		}
	}
	return nil
}

// writeIdentities stores every remaining identity, networked or partner-only
func (w *Writer) writeIdentities(tx *sql.Tx, runID string, store *network.Store) error {
	stmt := tx.Stmt(w.identityStmt)
	for _, row := range store.IdentityRows() {
		best := store.Best(row)
		for _, i := range store.Ranked(row) {
			var netID interface{} = nil
			if n := store.NetworkOf(i); n != nil {
				netID = n.ID
			}
			_, err := stmt.Exec(
				runID,
				i.Row,
				netID,
				i.Type.Name(),
				i.Type.Charge(),
				i.Type.Molecules,
				i.NeutralMass,
				i.Links(),
				joinInts(i.Partners()),
				best != nil && best.Handle() == i.Handle(),
				i.MSMSCount(network.MultimerBreakdown),
				i.MSMSCount(network.NeutralLossSignal),
				formatMSMS(i.MSMS()),
			)
			if err != nil {
				return fmt.Errorf("failed to insert identity %v: %w", i, err)
			}
		}
	}
	return nil
}

// writeSpectra stores the spectra of networked rows
func (w *Writer) writeSpectra(tx *sql.Tx, runID string, store *network.Store, massList string) error {
	stmt := tx.Stmt(w.spectrumStmt)
	rows := store.Rows()
	for _, id := range store.IdentityRows() {
		if len(store.RowNetworks(id)) == 0 {
			continue
		}
		r := rows.Row(id)
		if r == nil {
			continue
		}
		spec := r.Spectrum(massList)
		if spec == nil {
			continue
		}
		// Ensure peaks are sorted
		if !spec.ArePeaksSorted() {
			spec.SortPeaks()
		}
		_, err := stmt.Exec(
			runID,
			id,
			spec.MassList,
			spec.PrecursorMZ,
			encodePeaksFloat64(spec.Peaks, true),
			encodePeaksFloat64(spec.Peaks, false),
		)
		if err != nil {
			return fmt.Errorf("failed to insert spectrum of row %d: %w", id, err)
		}
	}
	return nil
}

// encodePeaksFloat64 encodes peak data as little-endian float64 blob
func encodePeaksFloat64(peaks []core.Peak, useMZ bool) []byte {
	buf := make([]byte, len(peaks)*8)
	for i, peak := range peaks {
		var value float64
		if useMZ {
			value = peak.MZ
		} else {
			value = peak.Intensity
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return buf
}

// DecodePeaksFloat64 reverses the blob encoding
func DecodePeaksFloat64(blob []byte) []float64 {
	out := make([]float64, len(blob)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return out
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ";")
}

// formatMSMS renders records as "multimer:1M@301.0073;neutral_loss:-H2O@283.0@row5"
func formatMSMS(recs []network.MSMSRecord) string {
	parts := make([]string, 0, len(recs))
	for _, r := range recs {
		switch r.Kind {
		case network.MultimerBreakdown:
			parts = append(parts, fmt.Sprintf("%s:%dM@%.4f", r.Kind, r.Molecules, r.MZ))
		case network.NeutralLossSignal:
			parts = append(parts, fmt.Sprintf("%s:%s@%.4f@row%d", r.Kind, r.Loss, r.MZ, r.Partner))
		}
	}
	return strings.Join(parts, ";")
}

// Close closes the prepared statements and the database
func (w *Writer) Close() error {
	for _, stmt := range []*sql.Stmt{w.runStmt, w.networkStmt, w.identityStmt, w.spectrumStmt, w.warningStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
