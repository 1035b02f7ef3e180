// Package network assembles pairwise ion identity edges into ion networks.
//
// Identities and networks live in an arena owned by a Store and are addressed by
// stable integer handles. Deleting a network removes all of its identities from
// their rows and partners in one step.
package network

import (
	"fmt"
	"sort"

	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
)

// noNetwork marks a partner-only identity
const noNetwork = -1

// MSMSKind classifies an MS/MS corroboration record
type MSMSKind int

const (
	MultimerBreakdown MSMSKind = iota
	NeutralLossSignal
)

func (k MSMSKind) String() string {
	switch k {
	case MultimerBreakdown:
		return "multimer"
	case NeutralLossSignal:
		return "neutral_loss"
	default:
		return fmt.Sprintf("MSMSKind(%d)", int(k))
	}
}

// MSMSRecord is a fragment peak that corroborates an identity
type MSMSRecord struct {
	Kind      MSMSKind
	MZ        float64 // Matched fragment m/z
	Intensity float64
	Molecules int    // Multimer: molecule count of the fragment ion
	Loss      string // Neutral loss: modifications explaining the signal
	Partner   int    // Neutral loss: row id of the partner identity, -1 if none
	Precursor bool   // Neutral loss: matched at the precursor rather than a fragment pair
}

// Identity assigns an ion type to a row
type Identity struct {
	handle      int
	Row         int
	Type        ionlib.IonType
	NeutralMass float64

	net      int         // network handle or noNetwork
	partners map[int]int // partner row -> partner identity handle
	msms     []MSMSRecord
	deleted  bool
}

// Handle returns the arena handle
func (i *Identity) Handle() int {
	return i.handle
}

// Networked reports whether the identity belongs to a network
func (i *Identity) Networked() bool {
	return i.net != noNetwork
}

// Links is the number of distinct partner rows
func (i *Identity) Links() int {
	return len(i.partners)
}

// Partners returns the partner row ids in ascending order
func (i *Identity) Partners() []int {
	out := make([]int, 0, len(i.partners))
	for r := range i.partners {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// Partner returns the handle of the identity linked on the partner row
func (i *Identity) Partner(row int) (int, bool) {
	h, ok := i.partners[row]
	return h, ok
}

// MSMS returns the corroboration records
func (i *Identity) MSMS() []MSMSRecord {
	return append([]MSMSRecord(nil), i.msms...)
}

// HasMSMS reports whether a record of the kind exists
func (i *Identity) HasMSMS(kind MSMSKind) bool {
	for _, r := range i.msms {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

// MSMSCount returns the number of records of the kind
func (i *Identity) MSMSCount(kind MSMSKind) int {
	n := 0
	for _, r := range i.msms {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func (i *Identity) String() string {
	return fmt.Sprintf("row %d %s", i.Row, i.Type.Name())
}

func identityKey(row int, t ionlib.IonType) string {
	return fmt.Sprintf("%d|%s", row, t.Key())
}
