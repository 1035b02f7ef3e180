// Package ionlib provides the modification catalog, ion types and the ion type library
// used to explain m/z differences between feature rows.
package ionlib

import (
	"fmt"
	"math"
	"strings"

	"github.com/ChrisMcGann/ionnet/pkg/core"
)

// ModType classifies a modification. The set is closed.
type ModType int

const (
	Undefined ModType = iota
	Adduct
	Cluster
	NeutralLoss
	Isotope
)

func (t ModType) String() string {
	switch t {
	case Adduct:
		return "adduct"
	case Cluster:
		return "cluster"
	case NeutralLoss:
		return "neutral_loss"
	case Isotope:
		return "isotope"
	case Undefined:
		return "undefined"
	default:
		return fmt.Sprintf("ModType(%d)", int(t))
	}
}

// ParseModType parses a modification type name
func ParseModType(s string) (ModType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adduct":
		return Adduct, nil
	case "cluster":
		return Cluster, nil
	case "neutral_loss", "neutralloss", "loss":
		return NeutralLoss, nil
	case "isotope":
		return Isotope, nil
	case "", "undefined":
		return Undefined, nil
	default:
		return Undefined, fmt.Errorf("unknown modification type %q", s)
	}
}

// Modification is a named mass difference rule
type Modification struct {
	Name   string
	Type   ModType
	Mass   float64 // Signed mass delta
	Charge int
}

// Key identifies a modification independent of its display name sign
func (m Modification) Key() string {
	return fmt.Sprintf("%s/%s/%d", m.Type, m.Name, m.Charge)
}

// Signed returns the name prefixed with the sign of its mass
func (m Modification) Signed() string {
	if m.Mass < 0 {
		return "-" + m.Name
	}
	return "+" + m.Name
}

// IsZero reports whether the rule has no mass effect
func (m Modification) IsZero() bool {
	return math.Abs(m.Mass) < 1e-9 && m.Charge == 0
}

// Validate checks that a modification is usable in a library
func (m Modification) Validate() error {
	var errs []string
	if m.Name == "" {
		errs = append(errs, "name is required")
	}
	if math.IsNaN(m.Mass) || math.IsInf(m.Mass, 0) {
		errs = append(errs, "mass must be finite")
	}
	switch m.Type {
	case Adduct:
		if m.Charge == 0 {
			errs = append(errs, "adduct charge must be non-zero")
		}
	case Cluster, NeutralLoss, Isotope:
		if m.IsZero() {
			errs = append(errs, "modification must change mass or charge")
		}
	case Undefined:
		errs = append(errs, "type is required")
	}

	if len(errs) > 0 {
		return &core.ValidationError{
			Field:   fmt.Sprintf("Modification %s", m.Name),
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

func adduct(name string, mass float64, charge int) Modification {
	return Modification{Name: name, Type: Adduct, Mass: mass, Charge: charge}
}

func mod(name string, mass float64) Modification {
	t := NeutralLoss
	if mass > 0 {
		t = Cluster
	}
	return Modification{Name: name, Type: t, Mass: mass}
}

// Positive mode adducts
var (
	AdductH    = adduct("H", core.ProtonMass, 1)
	AdductE    = adduct("e", -core.ElectronMass, 1)
	AdductNa   = adduct("Na", 22.989218, 1)
	AdductNH4  = adduct("NH4", 18.033823, 1)
	AdductK    = adduct("K", 38.963158, 1)
	Adduct2H   = adduct("2H", 2*core.ProtonMass, 2)
	AdductNaH  = adduct("Na+H", 22.989218+core.ProtonMass, 2)
	AdductKH   = adduct("K+H", 38.963158+core.ProtonMass, 2)
	AdductNH4H = adduct("NH4+H", 18.033823+core.ProtonMass, 2)
	Adduct2NaH = adduct("2Na-H", 2*22.989218-core.ProtonMass, 1)
	AdductCaH  = adduct("Ca-H", 39.961493820-core.ProtonMass, 1)
	AdductFeH  = adduct("Fe-H", 55.933840-core.ProtonMass, 1)
	AdductMgH  = adduct("Mg-H", 47.96953482-core.ProtonMass, 1)
	AdductCa   = adduct("Ca", 39.961493820, 2)
	AdductFe   = adduct("Fe", 55.933840, 2)
	AdductMg   = adduct("Mg", 47.96953482, 2)
)

// Negative mode adducts
var (
	AdductHNeg  = adduct("H", -core.ProtonMass, -1)
	AdductENeg  = adduct("e", core.ElectronMass, -1)
	AdductNa2H  = adduct("Na-2H", 22.989218-2*core.ProtonMass, -1)
	AdductCl    = adduct("Cl", 34.969401, -1)
	AdductBr    = adduct("Br", 78.918886, -1)
	AdductFA    = adduct("FA", 44.99820285, -1)
	Adduct2HNeg = adduct("2H", -2*core.ProtonMass, -2)
)

// In-source modifications
var (
	ModH2O     = mod("H2O", -18.010565)
	Mod2H2O    = mod("2H2O", -36.021130)
	ModNH3     = mod("NH3", -17.026549)
	ModO       = mod("O", 15.99491462)
	ModCO      = mod("CO", -27.994915)
	ModCO2     = mod("CO2", -43.989829)
	ModC2H4    = mod("C2H4", -28.031301)
	ModHFA     = mod("HFA", 46.005479)
	ModHAc     = mod("HAc", 60.021129)
	ModMeOH    = mod("MeOH", 32.026215)
	ModACN     = mod("ACN", 41.026549)
	ModIsoProp = mod("IsoProp", 60.058064)
	Mod13C     = Modification{Name: "(13C)", Type: Isotope, Mass: core.C13Delta}
)
