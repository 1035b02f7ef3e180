// Package refine resolves conflicts between ion networks after assembly.
//
// The default policy runs one deterministic pass:
//
//  0. delete networks without a monomer (or one monomer and three or more multimers)
//  1. keep a network only if it holds the best ranked identity of every member row,
//     visiting networks by ascending id; rows claimed by a kept network cannot be
//     claimed again
//  2. on rows whose best identity reaches the link threshold, delete all other identities
//  3. delete networks below the minimum size
//
// After a pass no row belongs to more than one active network.
package refine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ChrisMcGann/ionnet/pkg/network"
	"github.com/RoaringBitmap/roaring/v2"
)

// Config selects the refinement steps
type Config struct {
	Enabled              bool          `mapstructure:"enabled" yaml:"enabled"`
	DeleteWithoutMonomer bool          `mapstructure:"delete_without_monomer" yaml:"delete_without_monomer"`
	LinkThreshold        int           `mapstructure:"link_threshold" yaml:"link_threshold"`
	MinNetworkSize       int           `mapstructure:"min_network_size" yaml:"min_network_size"`
	Filter               NetworkFilter `mapstructure:"filter" yaml:"filter"`
}

// DefaultConfig returns the default policy
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		DeleteWithoutMonomer: true,
		LinkThreshold:        4,
		MinNetworkSize:       1,
	}
}

// Validate checks value ranges
func (c Config) Validate() error {
	if c.LinkThreshold < 0 {
		return fmt.Errorf("link threshold must be non-negative, got %d", c.LinkThreshold)
	}
	if c.MinNetworkSize < 0 {
		return fmt.Errorf("min network size must be non-negative, got %d", c.MinNetworkSize)
	}
	if c.Filter.MinSize < 0 {
		return fmt.Errorf("filter min size must be non-negative, got %d", c.Filter.MinSize)
	}
	return nil
}

// Stats counts what a pass removed
type Stats struct {
	WithoutMonomer int // Networks deleted in step 0
	Inconsistent   int // Networks deleted in step 1
	Pruned         int // Identities deleted in step 2
	Small          int // Networks deleted in step 3
	Filtered       int // Networks deleted by the network filter
}

// Engine applies the refinement policy to a store
type Engine struct {
	store *network.Store
	cfg   Config
	log   *slog.Logger
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(store *network.Store, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{store: store, cfg: cfg, log: logger}
}

// Refine runs one pass. Cancellation is checked between networks; every deletion is
// complete before the check so the store stays consistent.
func (e *Engine) Refine(ctx context.Context) (Stats, error) {
	var st Stats
	if !e.cfg.Enabled {
		return st, e.filter(ctx, &st)
	}

	if e.cfg.DeleteWithoutMonomer {
		for _, n := range e.store.Networks() {
			if err := ctx.Err(); err != nil {
				return st, err
			}
			if !e.hasMonomerBase(n) {
				e.log.Debug("network without monomer deleted", "network", n.ID)
				e.store.DeleteNetwork(n)
				st.WithoutMonomer++
			}
		}
	}

	if err := e.majority(ctx, &st); err != nil {
		return st, err
	}
	if err := e.prune(ctx, &st); err != nil {
		return st, err
	}

	for _, n := range e.store.Networks() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if n.Size() < e.cfg.MinNetworkSize {
			e.store.DeleteNetwork(n)
			st.Small++
		}
	}

	if err := e.filter(ctx, &st); err != nil {
		return st, err
	}

	e.log.Info("refinement done",
		"without_monomer", st.WithoutMonomer,
		"inconsistent", st.Inconsistent,
		"pruned_identities", st.Pruned,
		"small", st.Small,
		"filtered", st.Filtered,
		"networks", len(e.store.Networks()))
	return st, nil
}

// hasMonomerBase is false for networks of multimers only, and for one monomer
// explaining three or more multimers
func (e *Engine) hasMonomerBase(n *network.Network) bool {
	monomers, multimers := 0, 0
	for _, i := range e.store.Members(n) {
		if i.Type.IsMultimer() {
			multimers++
		} else {
			monomers++
		}
	}
	if monomers == 0 {
		return false
	}
	return !(monomers == 1 && multimers >= 3)
}

// majority keeps networks that hold the best networked identity of all their rows
func (e *Engine) majority(ctx context.Context, st *Stats) error {
	claimed := roaring.New()
	for _, n := range e.store.Networks() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !n.Active() {
			continue
		}
		if reason := e.conflict(n, claimed); reason != "" {
			e.log.Debug("network deleted", "network", n.ID, "reason", reason)
			e.store.DeleteNetwork(n)
			st.Inconsistent++
			continue
		}
		for _, row := range n.Rows() {
			claimed.Add(uint32(row))
		}
	}
	return nil
}

func (e *Engine) conflict(n *network.Network, claimed *roaring.Bitmap) string {
	for _, i := range e.store.Members(n) {
		if claimed.Contains(uint32(i.Row)) {
			return fmt.Sprintf("row %d already claimed", i.Row)
		}
		best := e.store.BestNetworked(i.Row)
		if best == nil || best.Handle() != i.Handle() {
			return fmt.Sprintf("row %d prefers %v", i.Row, best)
		}
	}
	return ""
}

// prune deletes the alternatives on rows whose best identity is linked often enough
func (e *Engine) prune(ctx context.Context, st *Stats) error {
	if e.cfg.LinkThreshold <= 1 {
		return nil
	}
	for _, row := range e.store.IdentityRows() {
		if err := ctx.Err(); err != nil {
			return err
		}
		best := e.store.Best(row)
		if best == nil || best.Links() < e.cfg.LinkThreshold {
			continue
		}
		for _, i := range e.store.Identities(row) {
			if i.Handle() == best.Handle() {
				continue
			}
			e.store.RemoveIdentity(i)
			st.Pruned++
		}
	}
	return nil
}

// Conflicts returns rows that belong to more than one active network
func Conflicts(store *network.Store) []int {
	var out []int
	for _, row := range store.IdentityRows() {
		if len(store.RowNetworks(row)) > 1 {
			out = append(out, row)
		}
	}
	return out
}
