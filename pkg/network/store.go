package network

import (
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
)

// RowSource resolves row ids to feature table rows
type RowSource interface {
	Row(id int) *core.Row
}

// Store is the arena holding all identities and networks of one run.
// It is not safe for concurrent mutation; concurrent readers are fine while nothing writes.
type Store struct {
	rows RowSource
	tol  core.MZTolerance
	log  *slog.Logger

	identities []*Identity
	networks   []*Network
	byRow      map[int][]int  // row -> live identity handles
	byKey      map[string]int // row|ion type -> identity handle
	nextID     int
}

// NewStore creates an empty store. A nil logger discards output.
func NewStore(rows RowSource, tol core.MZTolerance, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		rows:  rows,
		tol:   tol,
		log:   logger,
		byRow: make(map[int][]int),
		byKey: make(map[string]int),
	}
}

// Tolerance returns the m/z tolerance used for the neutral mass invariant
func (s *Store) Tolerance() core.MZTolerance {
	return s.tol
}

// Rows returns the row source
func (s *Store) Rows() RowSource {
	return s.rows
}

// Identity returns the identity for a handle
func (s *Store) Identity(h int) *Identity {
	if h < 0 || h >= len(s.identities) {
		return nil
	}
	return s.identities[h]
}

// NetworkByHandle returns the network for a handle
func (s *Store) NetworkByHandle(h int) *Network {
	if h < 0 || h >= len(s.networks) {
		return nil
	}
	return s.networks[h]
}

// NetworkOf returns the network of an identity, or nil for partner-only identities
func (s *Store) NetworkOf(i *Identity) *Network {
	if i == nil || !i.Networked() {
		return nil
	}
	return s.networks[i.net]
}

// Lookup returns the live identity of a row for an ion type
func (s *Store) Lookup(row int, t ionlib.IonType) *Identity {
	h, ok := s.byKey[identityKey(row, t)]
	if !ok {
		return nil
	}
	return s.identities[h]
}

// Identities returns the live identities of a row in creation order
func (s *Store) Identities(row int) []*Identity {
	hs := s.byRow[row]
	out := make([]*Identity, 0, len(hs))
	for _, h := range hs {
		out = append(out, s.identities[h])
	}
	return out
}

// IdentityRows returns all rows with at least one identity in ascending order
func (s *Store) IdentityRows() []int {
	out := make([]int, 0, len(s.byRow))
	for r, hs := range s.byRow {
		if len(hs) > 0 {
			out = append(out, r)
		}
	}
	sort.Ints(out)
	return out
}

// Networks returns all active networks ordered by id
func (s *Store) Networks() []*Network {
	var out []*Network
	for _, n := range s.networks {
		if n.Active() {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Network returns the active network with the given id
func (s *Store) Network(id int) *Network {
	for _, n := range s.networks {
		if n.Active() && n.ID == id {
			return n
		}
	}
	return nil
}

// Members returns the identities of a network in ascending row order
func (s *Store) Members(n *Network) []*Identity {
	rows := n.Rows()
	out := make([]*Identity, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.identities[n.byRow[r]])
	}
	return out
}

// RowNetworks returns the active networks a row belongs to, ordered by id
func (s *Store) RowNetworks(row int) []*Network {
	var out []*Network
	for _, i := range s.Identities(row) {
		if n := s.NetworkOf(i); n != nil && n.Active() {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].ID < out[b].ID
	})
	return out
}

// AddMSMS attaches a corroboration record to an identity
func (s *Store) AddMSMS(h int, rec MSMSRecord) {
	if i := s.Identity(h); i != nil && !i.deleted {
		i.msms = append(i.msms, rec)
	}
}

// identity returns the live identity for (row, type), creating a partner-only one if needed
func (s *Store) identity(row int, t ionlib.IonType, mz float64) (*Identity, bool) {
	key := identityKey(row, t)
	if h, ok := s.byKey[key]; ok {
		return s.identities[h], false
	}
	i := &Identity{
		handle:      len(s.identities),
		Row:         row,
		Type:        t,
		NeutralMass: t.NeutralMass(mz),
		net:         noNetwork,
		partners:    make(map[int]int),
	}
	s.identities = append(s.identities, i)
	s.byKey[key] = i.handle
	s.byRow[row] = append(s.byRow[row], i.handle)
	return i, true
}

func link(a, b *Identity) {
	a.partners[b.Row] = b.handle
	b.partners[a.Row] = a.handle
}

// newNetworkWith creates an active network holding the identities
func (s *Store) newNetworkWith(ids ...*Identity) *Network {
	n := newNetwork(len(s.networks), s.nextID)
	s.nextID++
	s.networks = append(s.networks, n)
	for _, i := range ids {
		s.attach(n, i)
	}
	n.state = Active
	s.recalculate(n)
	return n
}

func (s *Store) attach(n *Network, i *Identity) {
	i.net = n.handle
	n.byRow[i.Row] = i.handle
	n.members.Add(uint32(i.Row))
}

// recalculate refreshes the cached neutral mass statistics and average retention time.
// Rows are visited in ascending order so sums are reproducible.
func (s *Store) recalculate(n *Network) {
	n.sumMass = 0
	n.minMass, n.maxMass = math.Inf(1), math.Inf(-1)
	rt := 0.0
	for _, row := range n.Rows() {
		m := s.identities[n.byRow[row]].NeutralMass
		n.sumMass += m
		n.minMass = math.Min(n.minMass, m)
		n.maxMass = math.Max(n.maxMass, m)
		if r := s.rows.Row(row); r != nil {
			rt += r.RT
		}
	}
	if len(n.byRow) == 0 {
		n.minMass, n.maxMass, n.avgRT = 0, 0, 0
		return
	}
	n.avgRT = rt / float64(len(n.byRow))
}

// DeleteNetwork deletes a network and all of its identities. Partner links pointing to
// the removed identities are dropped so no dangling handle remains.
func (s *Store) DeleteNetwork(n *Network) {
	if n == nil || n.state == Deleted || n.state == Merged {
		return
	}
	for _, h := range n.byRow {
		s.removeIdentity(s.identities[h])
	}
	n.byRow = make(map[int]int)
	n.members.Clear()
	n.state = Deleted
	s.recalculate(n)
}

// RemoveIdentity deletes one identity. A network left without members is deleted.
func (s *Store) RemoveIdentity(i *Identity) {
	if i == nil || i.deleted {
		return
	}
	n := s.NetworkOf(i)
	if n != nil {
		delete(n.byRow, i.Row)
		n.members.Remove(uint32(i.Row))
	}
	s.removeIdentity(i)
	if n != nil {
		s.recalculate(n)
		if len(n.byRow) == 0 {
			n.state = Deleted
		}
	}
}

func (s *Store) removeIdentity(i *Identity) {
	if i.deleted {
		return
	}
	for row, ph := range i.partners {
		p := s.identities[ph]
		if h, ok := p.partners[i.Row]; ok && h == i.handle {
			delete(p.partners, i.Row)
			// another identity of the same row may still be a partner
			for _, oh := range s.byRow[i.Row] {
				o := s.identities[oh]
				if oh != i.handle && !o.deleted {
					if back, ok := o.partners[p.Row]; ok && back == p.handle {
						p.partners[i.Row] = oh
						break
					}
				}
			}
		}
		delete(i.partners, row)
	}

	hs := s.byRow[i.Row]
	for k, h := range hs {
		if h == i.handle {
			s.byRow[i.Row] = append(hs[:k:k], hs[k+1:]...)
			break
		}
	}
	if len(s.byRow[i.Row]) == 0 {
		delete(s.byRow, i.Row)
	}
	delete(s.byKey, identityKey(i.Row, i.Type))
	i.net = noNetwork
	i.deleted = true
}

// Better reports whether identity a ranks above b: more links, then MS/MS multimer
// and neutral loss confirmation, lower charge, fewer molecules, fewer modifications,
// networked before partner-only, lower network id and finally the ion type name.
func (s *Store) Better(a, b *Identity) bool {
	if a.Links() != b.Links() {
		return a.Links() > b.Links()
	}
	if am, bm := a.HasMSMS(MultimerBreakdown), b.HasMSMS(MultimerBreakdown); am != bm {
		return am
	}
	if al, bl := a.HasMSMS(NeutralLossSignal), b.HasMSMS(NeutralLossSignal); al != bl {
		return al
	}
	if a.Type.AbsCharge() != b.Type.AbsCharge() {
		return a.Type.AbsCharge() < b.Type.AbsCharge()
	}
	if a.Type.Molecules != b.Type.Molecules {
		return a.Type.Molecules < b.Type.Molecules
	}
	if a.Type.ModCount() != b.Type.ModCount() {
		return a.Type.ModCount() < b.Type.ModCount()
	}
	if a.Networked() != b.Networked() {
		return a.Networked()
	}
	if a.Networked() {
		if na, nb := s.networks[a.net].ID, s.networks[b.net].ID; na != nb {
			return na < nb
		}
	}
	return a.Type.Name() < b.Type.Name()
}

// Ranked returns the live identities of a row, best first
func (s *Store) Ranked(row int) []*Identity {
	ids := s.Identities(row)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.Better(ids[i], ids[j])
	})
	return ids
}

// BestNetworked returns the best ranked identity of a row that belongs to an active network
func (s *Store) BestNetworked(row int) *Identity {
	for _, i := range s.Ranked(row) {
		if n := s.NetworkOf(i); n != nil && n.Active() {
			return i
		}
	}
	return nil
}

// Best returns the identity selected for a row: the best networked identity, or the best
// partner-only identity when the row is in no network.
func (s *Store) Best(row int) *Identity {
	if i := s.BestNetworked(row); i != nil {
		return i
	}
	ranked := s.Ranked(row)
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0]
}
