// Package msp provides a streaming reader for MSP files holding the fragmentation
// spectra of feature table rows
package msp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/ionnet/pkg/core"
)

// DefaultMassList is used for entries without a MassList field
const DefaultMassList = "masses"

// Reader provides streaming access to MSP format files.
//
// Each entry links a spectrum to a feature table row:
//
//	Name: row 12
//	RowID: 12
//	PrecursorMZ: 601.0073
//	MassList: masses
//	Num peaks: 2
//	301.0073 5000
//	601.0073 10000
type Reader struct {
	scanner     *bufio.Scanner
	source      string
	lineNum     int
	currentSpec *core.Spectrum
	err         error
}

// NewReader creates a new MSP reader. source is recorded on every spectrum.
func NewReader(r io.Reader, source string) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
		source:  source,
	}
}

// Next advances to the next spectrum. Returns false when no more spectra or error.
func (r *Reader) Next() bool {
	r.currentSpec = nil

	spec, err := r.readSpectrum()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentSpec = spec
	return true
}

// Spectrum returns the current spectrum
func (r *Reader) Spectrum() *core.Spectrum {
	return r.currentSpec
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) readSpectrum() (*core.Spectrum, error) {
	spec := &core.Spectrum{
		RowID:      -1,
		MassList:   DefaultMassList,
		SourceFile: r.source,
	}

	started := false
	numPeaks := -1
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			if started && numPeaks < 0 {
				return nil, fmt.Errorf("line %d: entry %q has no Num peaks field", r.lineNum, spec.Name)
			}
			continue
		}

		if numPeaks >= 0 {
			peak, err := parsePeak(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			spec.Peaks = append(spec.Peaks, peak)
			if len(spec.Peaks) >= numPeaks {
				return r.finish(spec)
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected 'Key: value', got %q", r.lineNum, line)
		}
		started = true
		if err := r.parseField(spec, strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		if strings.EqualFold(strings.TrimSpace(key), "Num peaks") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("line %d: invalid num peaks %q", r.lineNum, value)
			}
			numPeaks = n
			if n == 0 {
				return r.finish(spec)
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if numPeaks > 0 {
		return nil, fmt.Errorf("entry %q ends after %d of %d peaks", spec.Name, len(spec.Peaks), numPeaks)
	}
	if started {
		return nil, fmt.Errorf("entry %q has no Num peaks field", spec.Name)
	}
	return nil, io.EOF
}

func (r *Reader) parseField(spec *core.Spectrum, key, value string) error {
	switch key {
	case "name":
		spec.Name = value
	case "rowid", "row_id", "row id":
		id, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid row id %q", value)
		}
		spec.RowID = id
	case "precursormz", "precursor_mz":
		mz, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid precursor m/z %q", value)
		}
		spec.PrecursorMZ = mz
	case "charge", "precursor_charge":
		z, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSuffix(value, "+"), "-"))
		if err != nil {
			return fmt.Errorf("invalid charge %q", value)
		}
		if strings.HasSuffix(value, "-") {
			z = -z
		}
		spec.Charge = z
	case "masslist", "mass_list":
		spec.MassList = value
	case "retentiontime", "rt":
		rt, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid retention time %q", value)
		}
		spec.RetentionTime = &rt
	}
	// Unknown fields are ignored
	return nil
}

func (r *Reader) finish(spec *core.Spectrum) (*core.Spectrum, error) {
	if spec.RowID < 0 {
		return nil, fmt.Errorf("line %d: entry %q has no RowID", r.lineNum, spec.Name)
	}
	spec.SortPeaks()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
	}
	return spec, nil
}

// parsePeak parses a peak line (format: "mz intensity [annotation]")
func parsePeak(line string) (core.Peak, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return core.Peak{}, fmt.Errorf("invalid peak format, expected at least 2 fields")
	}

	mz, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid m/z value: %w", err)
	}
	intensity, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return core.Peak{}, fmt.Errorf("invalid intensity value: %w", err)
	}
	return core.Peak{MZ: mz, Intensity: intensity}, nil
}

// AttachStats counts what Attach did
type AttachStats struct {
	Read     int
	Attached int
	Replaced int // Spectra that replaced a weaker one for the same row and mass list
}

// Attach reads all spectra and stores them on their rows. Spectra for unknown rows are
// reported as warnings. When a row has several spectra for one mass list the one with
// the most intense base peak is kept.
func Attach(rd io.Reader, source string, table *core.FeatureTable) (AttachStats, []string, error) {
	var (
		st       AttachStats
		warnings []string
	)
	r := NewReader(rd, source)
	for r.Next() {
		spec := r.Spectrum()
		st.Read++
		row := table.Row(spec.RowID)
		if row == nil {
			warnings = append(warnings, fmt.Sprintf("spectrum %q references unknown row %d", spec.Name, spec.RowID))
			continue
		}
		if old := row.Spectra[spec.MassList]; old != nil {
			if basePeak(old) >= basePeak(spec) {
				continue
			}
			st.Replaced++
		} else {
			st.Attached++
		}
		row.Spectra[spec.MassList] = spec
	}
	if err := r.Err(); err != nil {
		return st, warnings, fmt.Errorf("error reading %s: %w", source, err)
	}
	return st, warnings, nil
}

// AttachFile opens path and calls Attach
func AttachFile(path string, table *core.FeatureTable) (AttachStats, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return AttachStats{}, nil, fmt.Errorf("failed to open spectra file: %w", err)
	}
	defer f.Close()
	return Attach(f, filepath.Base(path), table)
}

func basePeak(s *core.Spectrum) float64 {
	p, ok := s.BasePeak()
	if !ok {
		return 0
	}
	return p.Intensity
}
