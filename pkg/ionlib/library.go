package ionlib

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ChrisMcGann/ionnet/pkg/core"
)

// ErrEmptyLibrary is returned when a configuration selects no ion types
var ErrEmptyLibrary = errors.New("ion library is empty")

// Polarity of the ionization mode
type Polarity int

const (
	Positive Polarity = 1
	Negative Polarity = -1
)

func (p Polarity) String() string {
	if p == Negative {
		return "negative"
	}
	return "positive"
}

// ParsePolarity parses "positive"/"+" or "negative"/"-"
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "positive", "pos", "+":
		return Positive, nil
	case "negative", "neg", "-":
		return Negative, nil
	default:
		return Positive, fmt.Errorf("unknown polarity %q", s)
	}
}

// Config selects the ion types a library enumerates
type Config struct {
	Polarity      string           `mapstructure:"polarity" yaml:"polarity"`
	MaxCharge     int              `mapstructure:"max_charge" yaml:"max_charge"`
	MaxMolecules  int              `mapstructure:"max_molecules" yaml:"max_molecules"`
	MaxMods       int              `mapstructure:"max_mods" yaml:"max_mods"`
	Adducts       []string         `mapstructure:"adducts" yaml:"adducts"`
	Modifications []string         `mapstructure:"modifications" yaml:"modifications"`
	CatalogFile   string           `mapstructure:"catalog_file" yaml:"catalog_file"`
	Tolerance     core.MZTolerance `mapstructure:"tolerance" yaml:"tolerance"`
}

// DefaultConfig returns the positive mode library used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Polarity:      "positive",
		MaxCharge:     2,
		MaxMolecules:  3,
		MaxMods:       1,
		Adducts:       []string{"H", "Na", "K", "NH4", "2H", "Na+H"},
		Modifications: []string{"H2O", "2H2O", "NH3", "CO2", "ACN", "MeOH"},
		Tolerance:     core.MZTolerance{Abs: 0.0005, PPM: 5},
	}
}

type shape struct {
	molecules int
	charge    int
}

// Library is the enumerated set of ion types of one polarity.
// It is immutable after construction and safe for concurrent use.
type Library struct {
	polarity Polarity
	tol      core.MZTolerance
	adducts  []Modification
	mods     []Modification
	maxMods  int
	types    []IonType
	byShape  map[shape][]IonType // Sorted by mass delta
	shapes   []shape
}

// NewLibrary builds a library from the configuration. A nil catalog uses DefaultCatalog.
func NewLibrary(cfg Config, catalog *Catalog) (*Library, error) {
	pol, err := ParsePolarity(cfg.Polarity)
	if err != nil {
		return nil, err
	}
	if !cfg.Tolerance.Valid() {
		return nil, fmt.Errorf("m/z tolerance must be positive (abs=%v, ppm=%v)", cfg.Tolerance.Abs, cfg.Tolerance.PPM)
	}
	if cfg.MaxMods < 0 {
		return nil, fmt.Errorf("max modifications must be non-negative, got %d", cfg.MaxMods)
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	maxCharge := cfg.MaxCharge
	if maxCharge <= 0 {
		maxCharge = 1
	}
	maxMolecules := cfg.MaxMolecules
	if maxMolecules <= 0 {
		maxMolecules = 1
	}

	lib := &Library{
		polarity: pol,
		tol:      cfg.Tolerance,
		maxMods:  cfg.MaxMods,
		byShape:  make(map[shape][]IonType),
	}

	lib.adducts, err = selectRules(catalog.Adducts, cfg.Adducts, func(m Modification) bool {
		z := m.Charge * int(pol)
		return z > 0 && z <= maxCharge
	})
	if err != nil {
		return nil, err
	}
	lib.mods, err = selectRules(catalog.Modifications, cfg.Modifications, func(m Modification) bool {
		return m.Charge == 0
	})
	if err != nil {
		return nil, err
	}
	if len(lib.adducts) == 0 {
		return nil, fmt.Errorf("%w: no %s adducts with |charge| <= %d", ErrEmptyLibrary, pol, maxCharge)
	}

	combos := modCombinations(lib.mods, cfg.MaxMods)
	seen := make(map[string]bool)
	for _, a := range lib.adducts {
		for _, mods := range combos {
			for n := 1; n <= maxMolecules; n++ {
				t := NewIonType(n, a, mods...)
				z := t.Charge() * int(pol)
				if z <= 0 || z > maxCharge || seen[t.Key()] {
					continue
				}
				seen[t.Key()] = true
				lib.types = append(lib.types, t)
			}
		}
	}
	if len(lib.types) == 0 {
		return nil, ErrEmptyLibrary
	}

	sort.SliceStable(lib.types, func(i, j int) bool {
		return Less(lib.types[i], lib.types[j])
	})
	for _, t := range lib.types {
		s := shape{molecules: t.Molecules, charge: t.AbsCharge()}
		if _, ok := lib.byShape[s]; !ok {
			lib.shapes = append(lib.shapes, s)
		}
		lib.byShape[s] = append(lib.byShape[s], t)
	}
	for _, s := range lib.shapes {
		ts := lib.byShape[s]
		sort.SliceStable(ts, func(i, j int) bool {
			return ts[i].MassDelta() < ts[j].MassDelta()
		})
	}
	sort.Slice(lib.shapes, func(i, j int) bool {
		if lib.shapes[i].molecules != lib.shapes[j].molecules {
			return lib.shapes[i].molecules < lib.shapes[j].molecules
		}
		return lib.shapes[i].charge < lib.shapes[j].charge
	})

	return lib, nil
}

// selectRules keeps catalog rules accepted by keep and, if names is non-empty, listed in names.
// The last catalog entry wins for duplicate names so custom catalogs can override defaults.
func selectRules(catalog []Modification, names []string, keep func(Modification) bool) ([]Modification, error) {
	byName := make(map[string]Modification)
	var order []string
	for _, m := range catalog {
		if !keep(m) {
			continue
		}
		if _, ok := byName[m.Name]; !ok {
			order = append(order, m.Name)
		}
		byName[m.Name] = m
	}

	if len(names) == 0 {
		out := make([]Modification, 0, len(order))
		for _, n := range order {
			out = append(out, byName[n])
		}
		return out, nil
	}

	out := make([]Modification, 0, len(names))
	for _, n := range names {
		m, ok := byName[strings.TrimSpace(n)]
		if !ok {
			return nil, fmt.Errorf("unknown adduct or modification %q for this polarity", n)
		}
		out = append(out, m)
	}
	return out, nil
}

// modCombinations returns all combinations of up to depth distinct modifications,
// starting with the empty combination.
func modCombinations(mods []Modification, depth int) [][]Modification {
	combos := [][]Modification{nil}
	var walk func(start int, cur []Modification)
	walk = func(start int, cur []Modification) {
		if len(cur) == depth {
			return
		}
		for i := start; i < len(mods); i++ {
			next := append(append([]Modification(nil), cur...), mods[i])
			combos = append(combos, next)
			walk(i+1, next)
		}
	}
	walk(0, nil)
	return combos
}

// Polarity returns the ionization polarity of the library
func (l *Library) Polarity() Polarity {
	return l.polarity
}

// Tolerance returns the m/z tolerance used for matching
func (l *Library) Tolerance() core.MZTolerance {
	return l.tol
}

// IonTypes returns all enumerated ion types
func (l *Library) IonTypes() []IonType {
	out := make([]IonType, len(l.types))
	copy(out, l.types)
	return out
}

// Adducts returns the selected adducts
func (l *Library) Adducts() []Modification {
	return append([]Modification(nil), l.adducts...)
}

// Modifications returns the selected modifications
func (l *Library) Modifications() []Modification {
	return append([]Modification(nil), l.mods...)
}

// Len returns the number of ion types
func (l *Library) Len() int {
	return len(l.types)
}

// Query asks which ion types explain an m/z offset from the neutral mass
type Query struct {
	DeltaMZ  float64  // Observed m/z minus neutral mass divided by charge
	RefMZ    float64  // Reference m/z for the ppm window
	Charge   int      // Charge hint, 0 = any
	Polarity Polarity // 0 = library polarity
}

// Match is one ion type explaining a query
type Match struct {
	Type     IonType
	Mismatch float64 // Observed minus predicted
}

// FindMatches enumerates single molecule ion types whose net mass delta per charge matches
// the query within tolerance. Results are ordered by mismatch, then by fewer modifications.
func (l *Library) FindMatches(q Query) []Match {
	if q.Polarity != 0 && q.Polarity != l.polarity {
		return nil
	}
	w := l.tol.Window(q.RefMZ)

	var out []Match
	for _, t := range l.types {
		if t.Molecules != 1 || !chargeOK(t, q.Charge) {
			continue
		}
		predicted := t.MassDelta() / float64(t.AbsCharge())
		if math.Abs(predicted) <= w {
			continue
		}
		mismatch := q.DeltaMZ - predicted
		if math.Abs(mismatch) <= w {
			out = append(out, Match{Type: t, Mismatch: mismatch})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return lessMismatch(out[i].Mismatch, out[j].Mismatch, out[i].Type.ModCount(), out[j].Type.ModCount(),
			out[i].Type.Name(), out[j].Type.Name())
	})
	return out
}

// PairQuery describes two observed ions
type PairQuery struct {
	MZA, MZB         float64
	ChargeA, ChargeB int // Charge hints, 0 = any
}

// PairMatch explains two ions as different ion types of one neutral molecule
type PairMatch struct {
	A, B        IonType
	NeutralMass float64 // Derived from A
	Mismatch    float64 // Observed minus predicted m/z of B
}

// ModCount is the number of modifications on both ions
func (p PairMatch) ModCount() int {
	return p.A.ModCount() + p.B.ModCount()
}

// FindPairs enumerates ion type pairs (A, B) such that the m/z difference of the two
// ions matches the predicted difference within tolerance. The tolerance is taken at the
// larger m/z. Pairs with a predicted difference inside the tolerance window are degenerate
// and excluded. Results are ordered by mismatch, then by fewer modifications.
func (l *Library) FindPairs(q PairQuery) []PairMatch {
	ref := math.Max(q.MZA, q.MZB)
	w := l.tol.Window(ref)

	var out []PairMatch
	for _, ta := range l.types {
		if !chargeOK(ta, q.ChargeA) {
			continue
		}
		m := ta.NeutralMass(q.MZA)
		if m <= 0 {
			continue
		}

		for _, s := range l.shapes {
			if q.ChargeB != 0 && s.charge != abs(q.ChargeB) {
				continue
			}
			// tb.MZ(m) = (m*n + delta)/z, solve for delta
			z := float64(s.charge)
			target := q.MZB*z - m*float64(s.molecules)
			dw := w * z

			ts := l.byShape[s]
			lo := sort.Search(len(ts), func(i int) bool {
				return ts[i].MassDelta() >= target-dw
			})
			for i := lo; i < len(ts) && ts[i].MassDelta() <= target+dw; i++ {
				tb := ts[i]
				if !pairAllowed(ta, tb) {
					continue
				}
				predicted := tb.MZ(m)
				if math.Abs(predicted-q.MZA) <= w {
					continue
				}
				mismatch := q.MZB - predicted
				if math.Abs(mismatch) > w {
					continue
				}
				out = append(out, PairMatch{A: ta, B: tb, NeutralMass: m, Mismatch: mismatch})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		return lessMismatch(a.Mismatch, b.Mismatch, a.ModCount(), b.ModCount(),
			a.A.Name()+"|"+a.B.Name(), b.A.Name()+"|"+b.B.Name())
	})
	return out
}

// pairAllowed applies the structural rules for two ion types of one molecule:
// the types differ, at most one is modified and only monomers may share a molecule count.
func pairAllowed(a, b IonType) bool {
	if a.Equal(b) {
		return false
	}
	if a.IsModified() && b.IsModified() {
		return false
	}
	if a.Molecules == b.Molecules && a.Molecules != 1 {
		return false
	}
	return true
}

func chargeOK(t IonType, hint int) bool {
	return hint == 0 || t.AbsCharge() == abs(hint)
}

func lessMismatch(ma, mb float64, ca, cb int, na, nb string) bool {
	if da, db := math.Abs(ma), math.Abs(mb); da != db {
		return da < db
	}
	if ca != cb {
		return ca < cb
	}
	return na < nb
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Find returns the ion type with the given canonical name
func (l *Library) Find(name string) (IonType, bool) {
	for _, t := range l.types {
		if t.Name() == name {
			return t, true
		}
	}
	return IonType{}, false
}
