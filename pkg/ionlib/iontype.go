package ionlib

import (
	"fmt"
	"sort"
	"strings"
)

// IonType is one adduct plus zero or more modifications on a multimer of the neutral molecule.
type IonType struct {
	Adduct    Modification
	Mods      []Modification // Sorted by name, no duplicates
	Molecules int
}

// NewIonType builds an ion type. Modifications are sorted and deduplicated.
func NewIonType(molecules int, adduct Modification, mods ...Modification) IonType {
	if molecules < 1 {
		molecules = 1
	}
	t := IonType{Adduct: adduct, Molecules: molecules}
	if len(mods) == 0 {
		return t
	}

	sorted := make([]Modification, len(mods))
	copy(sorted, mods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	for _, m := range sorted {
		if n := len(t.Mods); n > 0 && t.Mods[n-1].Key() == m.Key() {
			continue
		}
		t.Mods = append(t.Mods, m)
	}
	return t
}

// MassDelta is the summed signed mass of adduct and modifications
func (t IonType) MassDelta() float64 {
	d := t.Adduct.Mass
	for _, m := range t.Mods {
		d += m.Mass
	}
	return d
}

// ModDelta is the summed mass of the modifications only
func (t IonType) ModDelta() float64 {
	d := 0.0
	for _, m := range t.Mods {
		d += m.Mass
	}
	return d
}

// Charge is the total signed charge
func (t IonType) Charge() int {
	z := t.Adduct.Charge
	for _, m := range t.Mods {
		z += m.Charge
	}
	return z
}

// AbsCharge is the absolute total charge
func (t IonType) AbsCharge() int {
	z := t.Charge()
	if z < 0 {
		return -z
	}
	return z
}

// NeutralMass converts an observed m/z into the neutral molecule mass
func (t IonType) NeutralMass(mz float64) float64 {
	return (mz*float64(t.AbsCharge()) - t.MassDelta()) / float64(t.Molecules)
}

// MZ converts a neutral molecule mass into the m/z of this ion
func (t IonType) MZ(neutralMass float64) float64 {
	return (neutralMass*float64(t.Molecules) + t.MassDelta()) / float64(t.AbsCharge())
}

// IsModified reports whether the ion carries modifications besides the adduct
func (t IonType) IsModified() bool {
	return len(t.Mods) > 0
}

// IsMultimer reports whether the ion contains more than one molecule
func (t IonType) IsMultimer() bool {
	return t.Molecules > 1
}

// ModCount is the number of modifications besides the adduct
func (t IonType) ModCount() int {
	return len(t.Mods)
}

// HasMod reports whether the ion carries the modification
func (t IonType) HasMod(m Modification) bool {
	for _, x := range t.Mods {
		if x.Key() == m.Key() {
			return true
		}
	}
	return false
}

// SameAdduct reports whether both ions share adduct and molecule count
func (t IonType) SameAdduct(o IonType) bool {
	return t.Molecules == o.Molecules && t.Adduct.Key() == o.Adduct.Key()
}

// IsModificationOf reports whether t equals o plus at least one extra modification
func (t IonType) IsModificationOf(o IonType) bool {
	if !t.SameAdduct(o) || len(t.Mods) <= len(o.Mods) {
		return false
	}
	for _, m := range o.Mods {
		if !t.HasMod(m) {
			return false
		}
	}
	return true
}

// SubtractMods returns the modifications of t that o does not carry
func (t IonType) SubtractMods(o IonType) []Modification {
	var diff []Modification
	for _, m := range t.Mods {
		if !o.HasMod(m) {
			diff = append(diff, m)
		}
	}
	return diff
}

// WithMolecules returns a copy with a different molecule count
func (t IonType) WithMolecules(n int) IonType {
	return NewIonType(n, t.Adduct, t.Mods...)
}

// Unmodified returns the ion without modifications
func (t IonType) Unmodified() IonType {
	return IonType{Adduct: t.Adduct, Molecules: t.Molecules}
}

// Equal reports whether both ion types have the same canonical name
func (t IonType) Equal(o IonType) bool {
	return t.Key() == o.Key()
}

// Key is the canonical identity of the ion type
func (t IonType) Key() string {
	return t.Name()
}

// Name renders the ion in bracket notation, e.g. [2M-H2O+H]+
func (t IonType) Name() string {
	var b strings.Builder
	b.WriteByte('[')
	if t.Molecules > 1 {
		fmt.Fprintf(&b, "%d", t.Molecules)
	}
	b.WriteByte('M')
	for _, m := range t.Mods {
		b.WriteString(m.Signed())
	}
	b.WriteString(t.Adduct.Signed())
	b.WriteByte(']')

	z := t.AbsCharge()
	if z > 1 {
		fmt.Fprintf(&b, "%d", z)
	}
	switch {
	case t.Charge() > 0:
		b.WriteByte('+')
	case t.Charge() < 0:
		b.WriteByte('-')
	}
	return b.String()
}

func (t IonType) String() string {
	return t.Name()
}

// Less orders ion types by modification count, molecule count, charge and name
func Less(a, b IonType) bool {
	if a.ModCount() != b.ModCount() {
		return a.ModCount() < b.ModCount()
	}
	if a.Molecules != b.Molecules {
		return a.Molecules < b.Molecules
	}
	if a.AbsCharge() != b.AbsCharge() {
		return a.AbsCharge() < b.AbsCharge()
	}
	return a.Name() < b.Name()
}
