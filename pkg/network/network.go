package network

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// State of a network in its lifecycle
type State int

const (
	Proposed State = iota
	Active
	Merged
	Deleted
)

func (s State) String() string {
	switch s {
	case Proposed:
		return "proposed"
	case Active:
		return "active"
	case Merged:
		return "merged"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Network is a set of rows explained as ions of one neutral molecule
type Network struct {
	handle int
	ID     int
	state  State
	into   int // Merged: handle of the absorbing network

	members *roaring.Bitmap
	byRow   map[int]int // row -> identity handle

	sumMass float64
	minMass float64
	maxMass float64
	avgRT   float64
}

func newNetwork(handle, id int) *Network {
	return &Network{
		handle:  handle,
		ID:      id,
		state:   Proposed,
		into:    noNetwork,
		members: roaring.New(),
		byRow:   make(map[int]int),
	}
}

// Handle returns the arena handle
func (n *Network) Handle() int {
	return n.handle
}

// State returns the lifecycle state
func (n *Network) State() State {
	return n.state
}

// Active reports whether the network is live
func (n *Network) Active() bool {
	return n.state == Active
}

// Size is the number of member rows
func (n *Network) Size() int {
	return len(n.byRow)
}

// Rows returns member row ids in ascending order
func (n *Network) Rows() []int {
	out := make([]int, 0, len(n.byRow))
	it := n.members.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// HasRow reports whether the row is a member
func (n *Network) HasRow(row int) bool {
	_, ok := n.byRow[row]
	return ok
}

// Identity returns the identity handle of a member row
func (n *Network) Identity(row int) (int, bool) {
	h, ok := n.byRow[row]
	return h, ok
}

// NeutralMass is the average neutral mass of all members
func (n *Network) NeutralMass() float64 {
	if len(n.byRow) == 0 {
		return 0
	}
	return n.sumMass / float64(len(n.byRow))
}

// MassRange returns the smallest and largest member neutral mass
func (n *Network) MassRange() (float64, float64) {
	return n.minMass, n.maxMass
}

// RT is the average retention time of all member rows
func (n *Network) RT() float64 {
	return n.avgRT
}

// MinRow is the smallest member row id, or -1 when empty
func (n *Network) MinRow() int {
	if n.members.IsEmpty() {
		return -1
	}
	return int(n.members.Minimum())
}

func (n *Network) sharesRows(o *Network) bool {
	return n.members.Intersects(o.members)
}

func (n *Network) String() string {
	return fmt.Sprintf("network %d (%d rows, M=%.4f, RT=%.3f)", n.ID, n.Size(), n.NeutralMass(), n.avgRT)
}

// massSpan is the neutral mass range after adding masses
func (n *Network) massSpan(masses ...float64) (float64, float64) {
	lo, hi := n.minMass, n.maxMass
	if len(n.byRow) == 0 {
		lo, hi = math.Inf(1), math.Inf(-1)
	}
	for _, m := range masses {
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}
	return lo, hi
}
