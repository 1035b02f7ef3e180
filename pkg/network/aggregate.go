package network

import "math"

// Summary is the exported view of one network
type Summary struct {
	ID           int
	NeutralMass  float64 // Consensus: mean of member neutral masses
	MaxDeviation float64 // Largest member distance from the consensus
	RT           float64
	Rows         []int
	Types        []string // Ion type per row, same order as Rows
}

// Summarize returns the summary of every active network ordered by id
func (s *Store) Summarize() []Summary {
	nets := s.Networks()
	out := make([]Summary, 0, len(nets))
	for _, n := range nets {
		out = append(out, s.summary(n))
	}
	return out
}

func (s *Store) summary(n *Network) Summary {
	sum := Summary{
		ID:          n.ID,
		NeutralMass: s.ConsensusMass(n),
		RT:          n.avgRT,
	}
	for _, i := range s.Members(n) {
		sum.Rows = append(sum.Rows, i.Row)
		sum.Types = append(sum.Types, i.Type.Name())
		sum.MaxDeviation = math.Max(sum.MaxDeviation, math.Abs(i.NeutralMass-sum.NeutralMass))
	}
	return sum
}

// ConsensusMass derives one neutral mass from the member ion types
func (s *Store) ConsensusMass(n *Network) float64 {
	return n.NeutralMass()
}

// MassInvariantHolds reports whether every pair of member neutral masses agrees within tolerance
func (s *Store) MassInvariantHolds(n *Network) bool {
	members := s.Members(n)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if !s.tol.Check(members[i].NeutralMass, members[j].NeutralMass) {
				return false
			}
		}
	}
	return true
}
