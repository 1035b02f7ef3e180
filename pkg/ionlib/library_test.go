package ionlib

import (
	"math"
	"testing"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIonTypeName(t *testing.T) {
	tests := []struct {
		name string
		ion  IonType
		want string
	}{
		{"protonated", NewIonType(1, AdductH), "[M+H]+"},
		{"sodiated dimer", NewIonType(2, AdductNa), "[2M+Na]+"},
		{"water loss dimer", NewIonType(2, AdductH, ModH2O), "[2M-H2O+H]+"},
		{"doubly protonated", NewIonType(1, Adduct2H), "[M+2H]2+"},
		{"deprotonated", NewIonType(1, AdductHNeg), "[M-H]-"},
		{"mods sorted", NewIonType(1, AdductH, ModNH3, ModH2O), "[M-H2O-NH3+H]+"},
		{"mods deduplicated", NewIonType(1, AdductH, ModH2O, ModH2O), "[M-H2O+H]+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ion.Name())
		})
	}
}

func TestIonTypeMass(t *testing.T) {
	mh := NewIonType(1, AdductH)
	m := mh.NeutralMass(300.0)
	assert.InDelta(t, 298.992724, m, 1e-9)

	dimer := NewIonType(2, AdductNa)
	assert.InDelta(t, 620.974666, dimer.MZ(m), 1e-9)
	assert.InDelta(t, m, dimer.NeutralMass(dimer.MZ(m)), 1e-9)

	doubly := NewIonType(1, Adduct2H)
	assert.Equal(t, 2, doubly.Charge())
	assert.InDelta(t, (m+2*core.ProtonMass)/2, doubly.MZ(m), 1e-9)

	neg := NewIonType(1, AdductHNeg)
	assert.Equal(t, -1, neg.Charge())
	assert.InDelta(t, m-core.ProtonMass, neg.MZ(m), 1e-9)
}

func TestIonTypeRelations(t *testing.T) {
	mh := NewIonType(1, AdductH)
	loss := NewIonType(1, AdductH, ModH2O)
	double := NewIonType(1, AdductH, ModH2O, ModNH3)

	assert.True(t, loss.IsModificationOf(mh))
	assert.True(t, double.IsModificationOf(loss))
	assert.False(t, mh.IsModificationOf(loss))
	assert.False(t, NewIonType(1, AdductNa, ModH2O).IsModificationOf(mh))
	assert.False(t, NewIonType(2, AdductH, ModH2O).IsModificationOf(mh))

	diff := double.SubtractMods(mh)
	require.Len(t, diff, 2)
	assert.InDelta(t, ModH2O.Mass+ModNH3.Mass, double.ModDelta(), 1e-9)
	assert.True(t, loss.Unmodified().Equal(mh))
	assert.Equal(t, "[3M+H]+", mh.WithMolecules(3).Name())
}

func TestNewLibraryDefault(t *testing.T) {
	lib, err := NewLibrary(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, Positive, lib.Polarity())

	for _, name := range []string{"[M+H]+", "[2M+Na]+", "[M-H2O+H]+", "[M+2H]2+", "[3M+K]+"} {
		_, ok := lib.Find(name)
		assert.True(t, ok, "expected %s in default library", name)
	}
	_, ok := lib.Find("[M-H]-")
	assert.False(t, ok, "negative ion in positive library")

	for _, it := range lib.IonTypes() {
		assert.LessOrEqual(t, it.ModCount(), 1)
		assert.Positive(t, it.Charge())
		assert.LessOrEqual(t, it.Charge(), 2)
	}
}

func TestNewLibraryErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(c *Config)
		catalog *Catalog
		isEmpty bool
	}{
		{
			name:    "empty catalog",
			cfg:     func(c *Config) { c.Adducts = nil; c.Modifications = nil },
			catalog: &Catalog{},
			isEmpty: true,
		},
		{
			name: "unknown adduct",
			cfg:  func(c *Config) { c.Adducts = []string{"Xx"} },
		},
		{
			name: "adduct of wrong polarity",
			cfg:  func(c *Config) { c.Adducts = []string{"Cl"} },
		},
		{
			name: "non-positive tolerance",
			cfg:  func(c *Config) { c.Tolerance = core.MZTolerance{} },
		},
		{
			name: "bad polarity",
			cfg:  func(c *Config) { c.Polarity = "sideways" },
		},
		{
			name: "negative max mods",
			cfg:  func(c *Config) { c.MaxMods = -1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.cfg(&cfg)
			_, err := NewLibrary(cfg, tt.catalog)
			require.Error(t, err)
			if tt.isEmpty {
				assert.ErrorIs(t, err, ErrEmptyLibrary)
			}
		})
	}
}

func testLibrary(t *testing.T, adducts []Modification, mods []Modification, maxMolecules int) *Library {
	t.Helper()
	cfg := Config{
		Polarity:     "positive",
		MaxCharge:    2,
		MaxMolecules: maxMolecules,
		MaxMods:      1,
		Tolerance:    core.MZTolerance{Abs: 0.0005, PPM: 5},
	}
	lib, err := NewLibrary(cfg, &Catalog{Adducts: adducts, Modifications: mods})
	require.NoError(t, err)
	return lib
}

func TestFindPairsSodium(t *testing.T) {
	lib := testLibrary(t, []Modification{AdductH, AdductNa}, nil, 2)

	m := 298.992724
	matches := lib.FindPairs(PairQuery{MZA: m + AdductH.Mass, MZB: m + AdductNa.Mass})
	require.Len(t, matches, 1)
	assert.Equal(t, "[M+H]+", matches[0].A.Name())
	assert.Equal(t, "[M+Na]+", matches[0].B.Name())
	assert.InDelta(t, m, matches[0].NeutralMass, 1e-9)
	assert.InDelta(t, 0, matches[0].Mismatch, 1e-9)
}

func TestFindPairsProtonCluster(t *testing.T) {
	proton := Modification{Name: "H", Type: Cluster, Mass: core.ProtonMass}
	lib := testLibrary(t, []Modification{AdductH}, []Modification{proton}, 1)

	matches := lib.FindPairs(PairQuery{MZA: 300.0000, MZB: 301.0073})
	require.NotEmpty(t, matches)
	assert.Equal(t, "[M+H]+", matches[0].A.Name())
	assert.Equal(t, "[M+H+H]+", matches[0].B.Name())
	assert.InDelta(t, 298.992724, matches[0].NeutralMass, 1e-6)
	assert.LessOrEqual(t, math.Abs(matches[0].Mismatch), lib.Tolerance().Window(301.0073))
}

func TestFindPairsRespectsRules(t *testing.T) {
	lib := testLibrary(t, []Modification{AdductH, AdductNa, Adduct2H}, []Modification{ModH2O}, 2)
	m := 400.0

	t.Run("charge hint excludes singly charged partner", func(t *testing.T) {
		matches := lib.FindPairs(PairQuery{MZA: m + AdductH.Mass, MZB: m + AdductNa.Mass, ChargeB: 2})
		assert.Empty(t, matches)
	})

	t.Run("two multimers with equal count are not paired", func(t *testing.T) {
		a := NewIonType(2, AdductH)
		b := NewIonType(2, AdductNa)
		for _, p := range lib.FindPairs(PairQuery{MZA: a.MZ(m), MZB: b.MZ(m)}) {
			assert.False(t, p.A.Molecules == 2 && p.B.Molecules == 2, "paired %s with %s", p.A, p.B)
		}
	})

	t.Run("results ordered by mismatch", func(t *testing.T) {
		a := NewIonType(1, AdductH)
		b := NewIonType(1, AdductH, ModH2O)
		matches := lib.FindPairs(PairQuery{MZA: a.MZ(m), MZB: b.MZ(m) + 0.0005})
		require.NotEmpty(t, matches)
		for i := 1; i < len(matches); i++ {
			assert.LessOrEqual(t, math.Abs(matches[i-1].Mismatch), math.Abs(matches[i].Mismatch))
		}
		found := false
		for _, p := range matches {
			if p.A.Name() == "[M+H]+" && p.B.Name() == "[M-H2O+H]+" {
				found = true
			}
		}
		assert.True(t, found, "expected [M+H]+ / [M-H2O+H]+ among %d matches", len(matches))
	})
}

func TestPairAllowed(t *testing.T) {
	tests := []struct {
		name string
		a, b IonType
		want bool
	}{
		{"same type", NewIonType(1, AdductH), NewIonType(1, AdductH), false},
		{"both modified", NewIonType(1, AdductH, ModH2O), NewIonType(1, AdductNa, ModNH3), false},
		{"two dimers", NewIonType(2, AdductH), NewIonType(2, AdductNa), false},
		{"monomers", NewIonType(1, AdductH), NewIonType(1, AdductNa), true},
		{"monomer and dimer", NewIonType(1, AdductH), NewIonType(2, AdductNa), true},
		{"one modified", NewIonType(1, AdductH), NewIonType(1, AdductH, ModH2O), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pairAllowed(tt.a, tt.b))
		})
	}
}

func TestFindMatches(t *testing.T) {
	lib := testLibrary(t, []Modification{AdductH, AdductNa, AdductK}, []Modification{ModH2O}, 1)

	matches := lib.FindMatches(Query{DeltaMZ: AdductNa.Mass + 0.0002, RefMZ: 320.0})
	require.Len(t, matches, 1)
	assert.Equal(t, "[M+Na]+", matches[0].Type.Name())
	assert.InDelta(t, 0.0002, matches[0].Mismatch, 1e-9)

	loss := AdductH.Mass + ModH2O.Mass
	matches = lib.FindMatches(Query{DeltaMZ: loss, RefMZ: 280.0})
	require.Len(t, matches, 1)
	assert.Equal(t, "[M-H2O+H]+", matches[0].Type.Name())

	assert.Empty(t, lib.FindMatches(Query{DeltaMZ: AdductNa.Mass, RefMZ: 320.0, Polarity: Negative}))
}

func TestModCombinations(t *testing.T) {
	mods := []Modification{ModH2O, ModNH3, ModCO2}
	assert.Len(t, modCombinations(mods, 0), 1)
	assert.Len(t, modCombinations(mods, 1), 4)
	assert.Len(t, modCombinations(mods, 2), 7)
	assert.Len(t, modCombinations(mods, 3), 8)
}
