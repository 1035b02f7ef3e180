package corr

import (
	"fmt"
	"io"
	"os"
	"sort"

	"go.yaml.in/yaml/v3"
)

type groupsFile struct {
	Groups []groupEntry `yaml:"groups"`
}

type groupEntry struct {
	ID         int     `yaml:"id"`
	Rows       []int   `yaml:"rows"`
	Correlated [][]int `yaml:"correlated,omitempty"`
}

// LoadYAML reads correlation groups. A group without a correlated list treats all member pairs as correlated.
func LoadYAML(r io.Reader) ([]*Group, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading groups: %w", err)
	}

	var f groupsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing groups: %w", err)
	}

	seen := make(map[int]bool)
	groups := make([]*Group, 0, len(f.Groups))
	for i, e := range f.Groups {
		if seen[e.ID] {
			return nil, fmt.Errorf("group %d: duplicate id", e.ID)
		}
		seen[e.ID] = true

		for _, id := range e.Rows {
			if id < 0 {
				return nil, fmt.Errorf("group %d (entry %d): negative row id %d", e.ID, i, id)
			}
		}
		g := NewGroup(e.ID, e.Rows...)
		for _, p := range e.Correlated {
			if len(p) != 2 {
				return nil, fmt.Errorf("group %d: correlated pair must have two row ids, got %v", e.ID, p)
			}
			if p[0] < 0 || p[1] < 0 {
				return nil, fmt.Errorf("group %d: negative row id in pair %v", e.ID, p)
			}
			g.SetCorrelated(p[0], p[1])
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// LoadFile reads correlation groups from a YAML file
func LoadFile(path string) ([]*Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open groups file: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// WriteYAML writes groups in the format read by LoadYAML
func WriteYAML(w io.Writer, groups []*Group) error {
	var f groupsFile
	for _, g := range groups {
		e := groupEntry{ID: g.ID, Rows: g.Rows()}
		for p := range g.pairs {
			e.Correlated = append(e.Correlated, []int{int(p.a), int(p.b)})
		}
		sort.Slice(e.Correlated, func(i, j int) bool {
			a, b := e.Correlated[i], e.Correlated[j]
			if a[0] != b[0] {
				return a[0] < b[0]
			}
			return a[1] < b[1]
		})
		f.Groups = append(f.Groups, e)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding groups: %w", err)
	}
	return enc.Close()
}
