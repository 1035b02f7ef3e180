package msp

import (
	"strings"
	"testing"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoEntries = `Name: row 1 dimer
RowID: 1
PrecursorMZ: 601.007276
Charge: 1+
MassList: masses
RetentionTime: 5.02
Num peaks: 2
601.007276	10000
301.007276	5000	"M+H"

# gap-filled row
Name: row 2
RowID: 2
PRECURSORMZ: 301.007276
Num peaks: 0
`

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader(twoEntries), "test.msp")

	require.True(t, r.Next())
	s := r.Spectrum()
	assert.Equal(t, "row 1 dimer", s.Name)
	assert.Equal(t, 1, s.RowID)
	assert.Equal(t, 1, s.Charge)
	assert.Equal(t, "masses", s.MassList)
	assert.Equal(t, "test.msp", s.SourceFile)
	assert.InDelta(t, 601.007276, s.PrecursorMZ, 1e-9)
	require.NotNil(t, s.RetentionTime)
	assert.InDelta(t, 5.02, *s.RetentionTime, 1e-9)
	require.Len(t, s.Peaks, 2)
	assert.True(t, s.ArePeaksSorted())
	assert.InDelta(t, 301.007276, s.Peaks[0].MZ, 1e-9)

	require.True(t, r.Next())
	s = r.Spectrum()
	assert.Equal(t, 2, s.RowID)
	assert.Equal(t, DefaultMassList, s.MassList)
	assert.Empty(t, s.Peaks)

	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing row id", "Name: x\nPrecursorMZ: 100\nNum peaks: 1\n50 10\n", "no RowID"},
		{"bad precursor", "RowID: 1\nPrecursorMZ: abc\nNum peaks: 0\n", "invalid precursor"},
		{"bad peak", "RowID: 1\nPrecursorMZ: 100\nNum peaks: 1\n50\n", "invalid peak format"},
		{"truncated", "RowID: 1\nPrecursorMZ: 100\nNum peaks: 3\n50 10\n", "ends after 1 of 3 peaks"},
		{"no peak count", "Name: x\nRowID: 1\n\n", "no Num peaks"},
		{"no precursor", "RowID: 1\nNum peaks: 0\n", "precursor m/z must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input), "bad.msp")
			assert.False(t, r.Next())
			require.Error(t, r.Err())
			assert.Contains(t, r.Err().Error(), tt.want)
		})
	}
}

func TestAttach(t *testing.T) {
	table := core.NewFeatureTable([]string{"s1"})
	require.NoError(t, table.AddRow(core.NewRow(1)))

	input := twoEntries + `
Name: weaker duplicate
RowID: 1
PrecursorMZ: 601.007276
Num peaks: 1
301.007276 10
`
	st, warnings, err := Attach(strings.NewReader(input), "test.msp", table)
	require.NoError(t, err)

	assert.Equal(t, AttachStats{Read: 3, Attached: 1}, st)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "unknown row 2")

	s := table.Row(1).Spectrum("masses")
	require.NotNil(t, s)
	assert.Equal(t, "row 1 dimer", s.Name, "the more intense spectrum is kept")
}
