// Package featuretable reads aligned feature tables from CSV.
//
// The file has one line per (row, sample) feature:
//
//	row_id,sample,mz,rt,height[,status,rt_start,rt_end,charge,shape,group]
//
// shape is an elution profile written as rt:intensity pairs separated by ';'. group is
// the sample group used by the quorum filter. Columns may appear in any order.
package featuretable

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/ionnet/pkg/core"
)

var required = []string{"row_id", "sample", "mz", "rt", "height"}

// Record is one parsed line
type Record struct {
	RowID   int
	Charge  int
	Group   string
	Feature core.Feature
}

// Reader provides streaming access to feature lines
type Reader struct {
	scanner *bufio.Scanner
	columns map[string]int
	lineNum int
	current *Record
	err     error
}

// NewReader creates a new feature table reader
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{scanner: scanner}
}

// Next advances to the next feature. Returns false at the end of input or on error.
func (r *Reader) Next() bool {
	r.current = nil
	if r.err != nil {
		return false
	}

	if r.columns == nil {
		if err := r.readHeader(); err != nil {
			if err != io.EOF {
				r.err = err
			}
			return false
		}
	}

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := r.parseLine(line)
		if err != nil {
			r.err = fmt.Errorf("line %d: %w", r.lineNum, err)
			return false
		}
		r.current = rec
		return true
	}
	r.err = r.scanner.Err()
	return false
}

// Record returns the current feature
func (r *Reader) Record() *Record {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) readHeader() error {
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.columns = make(map[string]int)
		for i, name := range strings.Split(line, ",") {
			r.columns[strings.ToLower(strings.TrimSpace(name))] = i
		}
		for _, name := range required {
			if _, ok := r.columns[name]; !ok {
				return fmt.Errorf("line %d: header is missing column %q", r.lineNum, name)
			}
		}
		return nil
	}
	if err := r.scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (r *Reader) parseLine(line string) (*Record, error) {
	parts := strings.Split(line, ",")
	field := func(name string) string {
		i, ok := r.columns[name]
		if !ok || i >= len(parts) {
			return ""
		}
		return strings.TrimSpace(parts[i])
	}
	float := func(name string) (float64, error) {
		s := field(name)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value '%s': %w", name, s, err)
		}
		return v, nil
	}

	rec := &Record{}
	var err error
	if rec.RowID, err = strconv.Atoi(field("row_id")); err != nil {
		return nil, fmt.Errorf("invalid row id '%s': %w", field("row_id"), err)
	}
	f := &rec.Feature
	if f.Sample = field("sample"); f.Sample == "" {
		return nil, fmt.Errorf("row %d: sample name is empty", rec.RowID)
	}
	if f.MZ, err = float("mz"); err != nil {
		return nil, err
	}
	if f.RT, err = float("rt"); err != nil {
		return nil, err
	}
	if f.Height, err = float("height"); err != nil {
		return nil, err
	}
	if f.RTStart, err = float("rt_start"); err != nil {
		return nil, err
	}
	if f.RTEnd, err = float("rt_end"); err != nil {
		return nil, err
	}
	if f.Status, err = core.ParseFeatureStatus(field("status")); err != nil {
		return nil, err
	}
	if s := field("charge"); s != "" {
		if rec.Charge, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("invalid charge '%s': %w", s, err)
		}
	}
	if f.Shape, err = ParseShape(field("shape")); err != nil {
		return nil, err
	}
	rec.Group = field("group")
	return rec, nil
}

// ParseShape parses "rt:intensity;rt:intensity". The points are returned sorted by RT.
func ParseShape(s string) ([]core.ShapePoint, error) {
	if s == "" {
		return nil, nil
	}
	var out []core.ShapePoint
	for _, p := range strings.Split(s, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		rtStr, intStr, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("invalid shape point '%s', expected rt:intensity", p)
		}
		rt, err := strconv.ParseFloat(strings.TrimSpace(rtStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shape rt '%s': %w", rtStr, err)
		}
		in, err := strconv.ParseFloat(strings.TrimSpace(intStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shape intensity '%s': %w", intStr, err)
		}
		out = append(out, core.ShapePoint{RT: rt, Intensity: in})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RT < out[j].RT })
	return out, nil
}

// Load reads all features into a table. Rows are ordered by id, samples by first
// appearance. A sample listed twice for one row is an error.
func Load(rd io.Reader) (*core.FeatureTable, error) {
	var (
		samples []string
		seen    = make(map[string]bool)
		groups  = make(map[string]string)
		rows    = make(map[int]*core.Row)
	)

	r := NewReader(rd)
	for r.Next() {
		rec := r.Record()
		f := rec.Feature
		if !seen[f.Sample] {
			seen[f.Sample] = true
			samples = append(samples, f.Sample)
		}
		if rec.Group != "" {
			if g, ok := groups[f.Sample]; ok && g != rec.Group {
				return nil, fmt.Errorf("sample %s is in groups %s and %s", f.Sample, g, rec.Group)
			}
			groups[f.Sample] = rec.Group
		}

		row := rows[rec.RowID]
		if row == nil {
			row = core.NewRow(rec.RowID)
			rows[rec.RowID] = row
		}
		if row.Feature(f.Sample) != nil {
			return nil, fmt.Errorf("row %d: duplicate feature for sample %s", rec.RowID, f.Sample)
		}
		if rec.Charge != 0 {
			row.Charge = rec.Charge
		}
		row.AddFeature(&f)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	table := core.NewFeatureTable(samples)
	if len(groups) > 0 {
		table.Groups = groups
	}
	for _, row := range rows {
		if err := table.AddRow(row); err != nil {
			return nil, err
		}
	}
	table.SortByID()
	return table, nil
}

// LoadFile opens path and calls Load
func LoadFile(path string) (*core.FeatureTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature table: %w", err)
	}
	defer f.Close()

	table, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return table, nil
}
