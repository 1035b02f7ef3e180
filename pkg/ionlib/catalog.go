package ionlib

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Catalog is the set of adducts and modifications a library can draw from
type Catalog struct {
	Adducts       []Modification
	Modifications []Modification
}

// DefaultCatalog returns the built-in adducts for both polarities and the common in-source modifications
func DefaultCatalog() *Catalog {
	return &Catalog{
		Adducts: []Modification{
			AdductH, AdductE, AdductNa, AdductNH4, AdductK,
			Adduct2H, AdductNaH, AdductKH, AdductNH4H, Adduct2NaH,
			AdductCaH, AdductFeH, AdductMgH, AdductCa, AdductFe, AdductMg,
			AdductHNeg, AdductENeg, AdductNa2H, AdductCl, AdductBr, AdductFA, Adduct2HNeg,
		},
		Modifications: []Modification{
			ModH2O, Mod2H2O, ModNH3, ModO, ModCO, ModCO2, ModC2H4,
			ModHFA, ModHAc, ModMeOH, ModACN, ModIsoProp, Mod13C,
		},
	}
}

// Add appends a rule to the adduct or modification list depending on its type
func (c *Catalog) Add(m Modification) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Type == Adduct {
		c.Adducts = append(c.Adducts, m)
	} else {
		c.Modifications = append(c.Modifications, m)
	}
	return nil
}

// Merge appends all rules of o
func (c *Catalog) Merge(o *Catalog) {
	c.Adducts = append(c.Adducts, o.Adducts...)
	c.Modifications = append(c.Modifications, o.Modifications...)
}

// LoadCSV reads rules from a CSV file (format: name,mass,charge,type)
func LoadCSV(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("line %d: invalid format, expected at least 2 comma-separated fields", lineNum)
		}

		name := strings.TrimSpace(parts[0])
		massStr := strings.TrimSpace(parts[1])
		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid mass value '%s': %w", lineNum, massStr, err)
		}

		charge := 0
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			charge, err = strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid charge: %w", lineNum, err)
			}
		}

		typeStr := ""
		if len(parts) > 3 {
			typeStr = parts[3]
		}
		m, err := newRule(name, mass, charge, typeStr)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if err := c.Add(m); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}

	return c, nil
}

type catalogFile struct {
	Adducts       []catalogEntry `yaml:"adducts"`
	Modifications []catalogEntry `yaml:"modifications"`
}

type catalogEntry struct {
	Name   string  `yaml:"name"`
	Mass   float64 `yaml:"mass"`
	Charge int     `yaml:"charge"`
	Type   string  `yaml:"type,omitempty"`
}

// LoadYAML reads rules from a YAML document with adducts and modifications lists
func LoadYAML(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c := &Catalog{}
	for _, e := range f.Adducts {
		if e.Type == "" {
			e.Type = Adduct.String()
		}
		if err := c.addEntry(e); err != nil {
			return nil, err
		}
	}
	for _, e := range f.Modifications {
		if err := c.addEntry(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) addEntry(e catalogEntry) error {
	m, err := newRule(e.Name, e.Mass, e.Charge, e.Type)
	if err != nil {
		return err
	}
	return c.Add(m)
}

// MarshalYAML renders the catalog in the format read by LoadYAML
func (c *Catalog) MarshalYAML() (interface{}, error) {
	var f catalogFile
	for _, m := range c.Adducts {
		f.Adducts = append(f.Adducts, catalogEntry{Name: m.Name, Mass: m.Mass, Charge: m.Charge})
	}
	for _, m := range c.Modifications {
		f.Modifications = append(f.Modifications, catalogEntry{Name: m.Name, Mass: m.Mass, Charge: m.Charge, Type: m.Type.String()})
	}
	return f, nil
}

// LoadCatalogFile reads a CSV or YAML catalog depending on the file extension
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f)
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return nil, fmt.Errorf("cannot detect catalog format from extension '%s'", filepath.Ext(path))
	}
}

// newRule builds a modification. Without a type, a charged rule is an adduct and
// an uncharged one is a neutral loss or cluster depending on the mass sign.
func newRule(name string, mass float64, charge int, typeStr string) (Modification, error) {
	t, err := ParseModType(typeStr)
	if err != nil {
		return Modification{}, err
	}
	if t == Undefined {
		switch {
		case charge != 0:
			t = Adduct
		case mass < 0:
			t = NeutralLoss
		default:
			t = Cluster
		}
	}
	return Modification{Name: name, Type: t, Mass: mass, Charge: charge}, nil
}
