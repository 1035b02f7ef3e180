package core

import (
	"errors"
	"math"
	"testing"
)

func TestSpectrumValidation(t *testing.T) {
	tests := []struct {
		name    string
		spec    *Spectrum
		wantErr bool
	}{
		{
			name: "valid spectrum",
			spec: &Spectrum{
				RowID:       1,
				MassList:    "centroid",
				PrecursorMZ: 601.0073,
				Peaks: []Peak{
					{MZ: 100.0, Intensity: 1000.0},
					{MZ: 301.0073, Intensity: 20000.0},
				},
			},
			wantErr: false,
		},
		{
			name: "missing mass list",
			spec: &Spectrum{
				RowID:       1,
				PrecursorMZ: 601.0073,
				Peaks:       []Peak{{MZ: 100.0, Intensity: 1000.0}},
			},
			wantErr: true,
		},
		{
			name: "no precursor",
			spec: &Spectrum{
				RowID:    1,
				MassList: "centroid",
				Peaks:    []Peak{{MZ: 100.0, Intensity: 1000.0}},
			},
			wantErr: true,
		},
		{
			name: "unsorted peaks",
			spec: &Spectrum{
				RowID:       1,
				MassList:    "centroid",
				PrecursorMZ: 400.5,
				Peaks: []Peak{
					{MZ: 200.0, Intensity: 2000.0},
					{MZ: 100.0, Intensity: 1000.0},
				},
			},
			wantErr: true,
		},
		{
			name: "negative intensity",
			spec: &Spectrum{
				RowID:       1,
				MassList:    "centroid",
				PrecursorMZ: 400.5,
				Peaks:       []Peak{{MZ: 100.0, Intensity: -1.0}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestSortPeaks(t *testing.T) {
	spec := &Spectrum{
		Peaks: []Peak{
			{MZ: 300.0, Intensity: 3000.0},
			{MZ: 100.0, Intensity: 1000.0},
			{MZ: 200.0, Intensity: 2000.0},
		},
	}

	if spec.ArePeaksSorted() {
		t.Error("peaks should not be sorted initially")
	}

	spec.SortPeaks()

	if !spec.ArePeaksSorted() {
		t.Error("peaks should be sorted after SortPeaks()")
	}
	if spec.Peaks[0].MZ != 100.0 || spec.Peaks[2].MZ != 300.0 {
		t.Errorf("unexpected order: %+v", spec.Peaks)
	}
}

func TestFindPeak(t *testing.T) {
	spec := &Spectrum{
		Peaks: []Peak{
			{MZ: 150.0, Intensity: 5000.0},
			{MZ: 300.9990, Intensity: 800.0},
			{MZ: 301.0070, Intensity: 4000.0},
			{MZ: 301.0078, Intensity: 9000.0},
			{MZ: 450.0, Intensity: 100.0},
		},
	}
	tol := MZTolerance{Abs: 0.001, PPM: 5}

	tests := []struct {
		name      string
		mz        float64
		minHeight float64
		wantMZ    float64
		wantOK    bool
	}{
		{"most intense within window", 301.0073, 0, 301.0078, true},
		{"min height excludes peak", 450.0, 1000, 0, false},
		{"nothing in window", 200.0, 0, 0, false},
		{"low peak below height", 300.9990, 1000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := spec.FindPeak(tt.mz, tol, tt.minHeight)
			if ok != tt.wantOK {
				t.Fatalf("FindPeak() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.MZ != tt.wantMZ {
				t.Errorf("FindPeak() = %v, want %v", got.MZ, tt.wantMZ)
			}
		})
	}
}

func TestBasePeak(t *testing.T) {
	spec := &Spectrum{}
	if _, ok := spec.BasePeak(); ok {
		t.Error("empty spectrum should have no base peak")
	}

	spec.Peaks = []Peak{{MZ: 100, Intensity: 10}, {MZ: 200, Intensity: 30}, {MZ: 300, Intensity: 20}}
	p, ok := spec.BasePeak()
	if !ok || p.MZ != 200 {
		t.Errorf("BasePeak() = %+v, %v", p, ok)
	}
}

func TestFeatureTable(t *testing.T) {
	table := NewFeatureTable([]string{"s1", "s2", "s3"})
	table.Groups = map[string]string{"s1": "a", "s2": "a", "s3": "b"}

	r := NewRow(7)
	r.AddFeature(&Feature{Sample: "s1", MZ: 300.0, RT: 5.0, Height: 2000})
	r.AddFeature(&Feature{Sample: "s2", MZ: 300.002, RT: 5.2, Height: 4000})

	if err := table.AddRow(r); err != nil {
		t.Fatalf("AddRow() error = %v", err)
	}
	if err := table.AddRow(NewRow(7)); err == nil {
		t.Error("expected duplicate id error")
	}
	if table.Row(7) != r {
		t.Error("Row(7) did not return the added row")
	}
	if r.Height != 4000 {
		t.Errorf("Height = %v, want 4000", r.Height)
	}
	if RoundFloat(r.RT, 3) != 5.1 {
		t.Errorf("RT = %v, want 5.1", r.RT)
	}

	sizes := table.GroupSizes()
	if sizes["a"] != 2 || sizes["b"] != 1 {
		t.Errorf("GroupSizes() = %v", sizes)
	}
}

func TestFeatureRTRangeAbove(t *testing.T) {
	f := &Feature{
		RT:     5.0,
		Height: 1000,
		Shape: []ShapePoint{
			{RT: 4.8, Intensity: 10},
			{RT: 4.9, Intensity: 200},
			{RT: 5.0, Intensity: 1000},
			{RT: 5.1, Intensity: 300},
			{RT: 5.2, Intensity: 20},
		},
	}

	lo, hi, ok := f.RTRangeAbove(100)
	if !ok || lo != 4.9 || hi != 5.1 {
		t.Errorf("RTRangeAbove(100) = %v, %v, %v", lo, hi, ok)
	}
	if _, _, ok := f.RTRangeAbove(5000); ok {
		t.Error("threshold above apex should give no range")
	}
}

func TestRowValidateID(t *testing.T) {
	tooLarge := int64(math.MaxUint32) + 1
	tests := []struct {
		name    string
		id      int
		wantErr bool
	}{
		{"zero", 0, false},
		{"largest", math.MaxUint32, false},
		{"negative", -1, true},
		{"beyond uint32", int(tooLarge), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRow(tt.id)
			r.AddFeature(&Feature{Sample: "s1", MZ: 300, RT: 5, Height: 1000})
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFeaturePoints(t *testing.T) {
	bare := &Feature{RT: 5, Height: 1000}
	if pts := bare.Points(); len(pts) != 1 || pts[0].RT != 5 || pts[0].Intensity != 1000 {
		t.Errorf("Points() without shape = %+v", pts)
	}
	if lo, hi := bare.RTRange(); lo != 5 || hi != 5 {
		t.Errorf("RTRange() without shape = %v, %v", lo, hi)
	}

	shaped := &Feature{RT: 5, Height: 1000, Shape: []ShapePoint{{RT: 4.8, Intensity: 0}, {RT: 5, Intensity: 1000}, {RT: 5.3, Intensity: 0}}}
	if len(shaped.Points()) != 3 {
		t.Errorf("Points() = %+v", shaped.Points())
	}
	if lo, hi := shaped.RTRange(); lo != 4.8 || hi != 5.3 {
		t.Errorf("RTRange() = %v, %v", lo, hi)
	}
}
