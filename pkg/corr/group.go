// Package corr provides correlation groups: externally computed sets of co-eluting rows
// with a row pair correlation predicate.
package corr

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

type pair struct {
	a, b uint32
}

func newPair(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{uint32(a), uint32(b)}
}

// Group is a set of rows known to co-elute. Without explicit pairs every two
// distinct members are correlated.
type Group struct {
	ID    int
	rows  *roaring.Bitmap
	pairs map[pair]struct{}
}

// NewGroup creates a group over the given row ids
func NewGroup(id int, rows ...int) *Group {
	g := &Group{ID: id, rows: roaring.New()}
	for _, r := range rows {
		g.Add(r)
	}
	return g
}

// Add adds a row to the group. Ids outside the uint32 range are ignored.
func (g *Group) Add(row int) {
	if row < 0 || int64(row) > math.MaxUint32 {
		return
	}
	g.rows.Add(uint32(row))
}

// SetCorrelated marks a row pair as correlated and switches the group to explicit pairs.
// Both rows are added as members.
func (g *Group) SetCorrelated(a, b int) {
	if g.pairs == nil {
		g.pairs = make(map[pair]struct{})
	}
	g.Add(a)
	g.Add(b)
	g.pairs[newPair(a, b)] = struct{}{}
}

// Contains reports whether the row is a member
func (g *Group) Contains(row int) bool {
	if row < 0 || int64(row) > math.MaxUint32 {
		return false
	}
	return g.rows.Contains(uint32(row))
}

// IsCorrelated reports whether two distinct member rows are correlated
func (g *Group) IsCorrelated(a, b int) bool {
	if a == b || !g.Contains(a) || !g.Contains(b) {
		return false
	}
	if g.pairs == nil {
		return true
	}
	_, ok := g.pairs[newPair(a, b)]
	return ok
}

// ExplicitPairs reports whether correlation is restricted to explicit pairs
func (g *Group) ExplicitPairs() bool {
	return g.pairs != nil
}

// Len returns the number of member rows
func (g *Group) Len() int {
	return int(g.rows.GetCardinality())
}

// Empty reports whether the group has no members
func (g *Group) Empty() bool {
	return g.rows.IsEmpty()
}

// Rows returns member row ids in ascending order
func (g *Group) Rows() []int {
	out := make([]int, 0, g.rows.GetCardinality())
	it := g.rows.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// Bitmap returns a copy of the member set
func (g *Group) Bitmap() *roaring.Bitmap {
	return g.rows.Clone()
}

// Missing returns member ids for which known reports false
func (g *Group) Missing(known func(id int) bool) []int {
	var out []int
	for _, id := range g.Rows() {
		if !known(id) {
			out = append(out, id)
		}
	}
	return out
}

func (g *Group) String() string {
	return fmt.Sprintf("group %d (%d rows)", g.ID, g.Len())
}
