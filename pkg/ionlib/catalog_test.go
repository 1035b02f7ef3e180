package ionlib

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func TestLoadCSV(t *testing.T) {
	input := `name,mass,charge,type
Li,7.015455,1,adduct
# comment lines are skipped
H2O,-18.010565,0,
DMSO,78.013936,,cluster
`
	c, err := LoadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, c.Adducts, 1)
	require.Len(t, c.Modifications, 2)

	assert.Equal(t, "Li", c.Adducts[0].Name)
	assert.Equal(t, Adduct, c.Adducts[0].Type)
	assert.Equal(t, NeutralLoss, c.Modifications[0].Type)
	assert.Equal(t, Cluster, c.Modifications[1].Type)
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad mass", "name,mass\nNa,abc\n"},
		{"too few fields", "name,mass\nNa\n"},
		{"bad charge", "name,mass,charge\nNa,22.98,x\n"},
		{"unknown type", "name,mass,charge,type\nNa,22.98,1,salt\n"},
		{"adduct without charge", "name,mass,charge,type\nNa,22.98,0,adduct\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	input := `
adducts:
  - name: Li
    mass: 7.015455
    charge: 1
  - name: "2Li-H"
    mass: 13.023634
    charge: 1
modifications:
  - name: DMSO
    mass: 78.013936
  - name: HCOOH
    mass: -46.005479
    type: neutral_loss
`
	c, err := LoadYAML(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, c.Adducts, 2)
	require.Len(t, c.Modifications, 2)
	assert.Equal(t, Cluster, c.Modifications[0].Type)
	assert.Equal(t, NeutralLoss, c.Modifications[1].Type)
}

func TestCatalogYAMLRoundTrip(t *testing.T) {
	data, err := yaml.Marshal(DefaultCatalog())
	require.NoError(t, err)

	c, err := LoadYAML(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Len(t, c.Adducts, len(DefaultCatalog().Adducts))
	assert.Len(t, c.Modifications, len(DefaultCatalog().Modifications))
	assert.Equal(t, Isotope, c.Modifications[len(c.Modifications)-1].Type)
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "mods.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,mass,charge\nLi,7.015455,1\n"), 0o644))
	c, err := LoadCatalogFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, c.Adducts, 1)

	yamlPath := filepath.Join(dir, "mods.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("adducts:\n  - {name: Li, mass: 7.015455, charge: 1}\n"), 0o644))
	c, err = LoadCatalogFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, c.Adducts, 1)

	_, err = LoadCatalogFile(filepath.Join(dir, "mods.txt"))
	assert.Error(t, err)
}

func TestCustomCatalogOverridesDefault(t *testing.T) {
	cat := DefaultCatalog()
	custom, err := LoadCSV(strings.NewReader("name,mass,charge\nLi,7.015455,1\n"))
	require.NoError(t, err)
	cat.Merge(custom)

	cfg := DefaultConfig()
	cfg.Adducts = append(cfg.Adducts, "Li")
	lib, err := NewLibrary(cfg, cat)
	require.NoError(t, err)

	_, ok := lib.Find("[M+Li]+")
	assert.True(t, ok)
}
