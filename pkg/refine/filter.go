package refine

import (
	"context"

	"github.com/ChrisMcGann/ionnet/pkg/network"
)

// NetworkFilter is an optional final cleanup of weak networks
type NetworkFilter struct {
	MinSize         int  `mapstructure:"min_size" yaml:"min_size"`
	RequireMajorIon bool `mapstructure:"require_major_ion" yaml:"require_major_ion"`
}

// filter applies the optional network filter
func (e *Engine) filter(ctx context.Context, st *Stats) error {
	f := e.cfg.Filter
	if f.MinSize <= 0 && !f.RequireMajorIon {
		return nil
	}
	for _, n := range e.store.Networks() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.Size() < f.MinSize || (f.RequireMajorIon && n.Size() == 2 && !e.hasMajorIon(n)) {
			e.store.DeleteNetwork(n)
			st.Filtered++
		}
	}
	return nil
}

var majorIons = map[string]bool{
	"[M+H]+":   true,
	"[M+Na]+":  true,
	"[M+NH4]+": true,
	"[M-H]-":   true,
}

func (e *Engine) hasMajorIon(n *network.Network) bool {
	for _, i := range e.store.Members(n) {
		if majorIons[i.Type.Name()] {
			return true
		}
	}
	return false
}
