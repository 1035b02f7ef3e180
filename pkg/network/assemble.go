package network

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
)

// Edge is the hypothesis that row A is ion TypeA and row B is ion TypeB of one molecule
type Edge struct {
	A, B         int
	TypeA, TypeB ionlib.IonType
	Mismatch     float64 // Observed minus predicted m/z of B
}

// Normalized returns the edge with A as the lower row id
func (e Edge) Normalized() Edge {
	if e.A > e.B {
		return Edge{A: e.B, B: e.A, TypeA: e.TypeB, TypeB: e.TypeA, Mismatch: -e.Mismatch}
	}
	return e
}

// Key identifies an edge independent of direction
func (e Edge) Key() string {
	n := e.Normalized()
	return fmt.Sprintf("%d|%s|%d|%s", n.A, n.TypeA.Key(), n.B, n.TypeB.Key())
}

func (e Edge) String() string {
	return fmt.Sprintf("row %d %s <-> row %d %s", e.A, e.TypeA.Name(), e.B, e.TypeB.Name())
}

// Outcome of adding one edge
type Outcome int

const (
	Created Outcome = iota
	Extended
	Joined
	Duplicate
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Extended:
		return "extended"
	case Joined:
		return "merged"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Stats counts assembly outcomes
type Stats struct {
	Edges     int
	Created   int
	Extended  int
	Merged    int
	Duplicate int
	Rejected  int
}

func (st *Stats) count(o Outcome) {
	st.Edges++
	switch o {
	case Created:
		st.Created++
	case Extended:
		st.Extended++
	case Joined:
		st.Merged++
	case Duplicate:
		st.Duplicate++
	case Rejected:
		st.Rejected++
	}
}

// SortEdges normalizes edges and orders them by lower row id, partner retention time,
// partner row id, mismatch and ion type names.
func SortEdges(edges []Edge, rows RowSource) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Normalized()
	}
	rt := func(id int) float64 {
		if r := rows.Row(id); r != nil {
			return r.RT
		}
		return math.Inf(1)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.A != b.A {
			return a.A < b.A
		}
		if ra, rb := rt(a.B), rt(b.B); ra != rb {
			return ra < rb
		}
		if a.B != b.B {
			return a.B < b.B
		}
		if ma, mb := math.Abs(a.Mismatch), math.Abs(b.Mismatch); ma != mb {
			return ma < mb
		}
		if a.TypeA.Key() != b.TypeA.Key() {
			return a.TypeA.Key() < b.TypeA.Key()
		}
		return a.TypeB.Key() < b.TypeB.Key()
	})
	return out
}

// Assemble sorts the edges and adds them one by one. Each edge is applied atomically,
// so on cancellation the store holds the networks built so far.
func (s *Store) Assemble(ctx context.Context, edges []Edge) (Stats, error) {
	var st Stats
	for _, e := range SortEdges(edges, s.rows) {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		o, reason := s.Add(e)
		st.count(o)
		if o == Rejected {
			s.log.Debug("edge rejected", "edge", e.String(), "reason", reason)
		}
	}
	return st, nil
}

// Add applies one edge to the store:
//   - neither identity networked: create a network with both
//   - one networked: add the other if the neutral mass range stays within tolerance
//   - both in different networks: merge, the lower id absorbs the higher
//   - both in the same network: no structural change
//
// Both identities are created and linked as partners in every case except invalid rows.
// On rejection they remain partner-only.
func (s *Store) Add(e Edge) (Outcome, string) {
	e = e.Normalized()
	if e.A == e.B {
		return Rejected, "edge connects a row to itself"
	}
	ra, rb := s.rows.Row(e.A), s.rows.Row(e.B)
	if ra == nil || rb == nil {
		return Rejected, "unknown row"
	}

	ia, _ := s.identity(e.A, e.TypeA, ra.MZ)
	ib, _ := s.identity(e.B, e.TypeB, rb.MZ)
	link(ia, ib)

	na, nb := s.NetworkOf(ia), s.NetworkOf(ib)
	switch {
	case na == nil && nb == nil:
		if !s.tol.Check(ia.NeutralMass, ib.NeutralMass) {
			return Rejected, fmt.Sprintf("neutral masses %.5f and %.5f disagree", ia.NeutralMass, ib.NeutralMass)
		}
		s.newNetworkWith(ia, ib)
		return Created, ""

	case na != nil && nb != nil:
		if na == nb {
			return Duplicate, ""
		}
		return s.merge(na, nb)

	case na != nil:
		return s.extend(na, ib)

	default:
		return s.extend(nb, ia)
	}
}

func (s *Store) extend(n *Network, i *Identity) (Outcome, string) {
	if n.HasRow(i.Row) {
		return Rejected, fmt.Sprintf("row %d already in network %d with another ion type", i.Row, n.ID)
	}
	lo, hi := n.massSpan(i.NeutralMass)
	if !s.tol.Check(lo, hi) {
		return Rejected, fmt.Sprintf("neutral mass %.5f outside network %d range", i.NeutralMass, n.ID)
	}
	s.attach(n, i)
	s.recalculate(n)
	return Extended, ""
}

func (s *Store) merge(a, b *Network) (Outcome, string) {
	if a.sharesRows(b) {
		return Rejected, fmt.Sprintf("networks %d and %d share rows", a.ID, b.ID)
	}
	lo, hi := a.massSpan(b.minMass, b.maxMass)
	if !s.tol.Check(lo, hi) {
		return Rejected, fmt.Sprintf("networks %d and %d neutral masses disagree", a.ID, b.ID)
	}

	keep, gone := a, b
	if b.ID < a.ID {
		keep, gone = b, a
	}
	for _, h := range gone.byRow {
		s.attach(keep, s.identities[h])
	}
	gone.byRow = make(map[int]int)
	gone.members.Clear()
	gone.state = Merged
	gone.into = keep.handle
	s.recalculate(keep)
	s.recalculate(gone)
	return Joined, ""
}

// Renumber assigns ids 0..n-1 to active networks by ascending average retention time,
// ties broken by the lowest member row id.
func (s *Store) Renumber() {
	nets := s.Networks()
	sort.SliceStable(nets, func(i, j int) bool {
		a, b := nets[i], nets[j]
		if a.avgRT != b.avgRT {
			return a.avgRT < b.avgRT
		}
		if a.MinRow() != b.MinRow() {
			return a.MinRow() < b.MinRow()
		}
		return a.ID < b.ID
	})
	for i, n := range nets {
		n.ID = i
	}
	s.nextID = len(nets)
}
