// SPDX-License-Identifier: MIT

package forest

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/quadforest/forest/transport"
)

const ghostExchangeTag = 1

// touchesFace reports whether leaf's footprint abuts the given face
// (0:-x, 1:+x, 2:-y, 3:+y) of the root tree.
func touchesFace(leaf Quadrant, face int) bool {
	h := H(leaf.Level)
	switch face {
	case 0:
		return leaf.X == 0
	case 1:
		return leaf.X+h == Root
	case 2:
		return leaf.Y == 0
	case 3:
		return leaf.Y+h == Root
	}
	return false
}

// extendPastFace repositions q one quadrant-width across the given face,
// the "virtual image" convention §3/§9 use for a quadrant probed against
// a neighbor tree: a single quadrant-width offset, not a whole tree-width
// one.
func extendPastFace(q Quadrant, face int) Quadrant {
	h := H(q.Level)
	out := q
	switch face {
	case 0:
		out.X = -h
	case 1:
		out.X = Root
	case 2:
		out.Y = -h
	case 3:
		out.Y = Root
	}
	return out
}

// cornerExtended builds the canonical "just outside" probe/placeholder
// quadrant of the given size sitting at the named z-order corner (0..3)
// of the root tree.
func cornerExtended(corner int, level int8) Quadrant {
	h := H(level)
	x, y := -h, -h
	if corner&1 != 0 {
		x = Root
	}
	if corner&2 != 0 {
		y = Root
	}
	return Quadrant{X: x, Y: y, Level: level}
}

// cornerGhost names a tree meeting treeID at a shared vertex, the corner
// (z-order) of that tree touching the vertex, and the corner-local depth
// to report there.
type cornerGhost struct {
	destTree   int32
	destCorner int
	level      int8
}

// cornerGhosts finds, for each of treeID's four corners, the finest leaf
// touching that corner, and reports it to every tree sharing the vertex
// along with which of that tree's own corners the vertex occupies.
//
// This mirrors cornerOverlap's candidate search (same corner bracket and
// CornerLevel walk) rather than reusing its GhostQuadrant output, since
// merging a corner ghost into the destination tree needs the
// destination's own corner index, which cornerOverlap's "depth-only"
// shipped value does not carry (§4.H, §9 open question).
func cornerGhosts(treeID int32, leaves []Quadrant, conn *Connectivity) []cornerGhost {
	var out []cornerGhost
	for c := 0; c < 4; c++ {
		p := cornerBound(c, false)
		idx := findHigherBound(leaves, p) - 1
		if idx < 0 || !(IsAncestor(leaves[idx], p) || IsEqual(leaves[idx], p)) {
			continue
		}
		best := leaves[idx]

		for _, nb := range conn.CornerNeighbors(treeID, zOrderToCorner[c]) {
			level := CornerLevel(best, c, best.Level)
			out = append(out, cornerGhost{destTree: nb.Tree, destCorner: nb.Corner, level: level})
		}
	}
	return out
}

// outgoingGhost names one quadrant, already expressed in destTree's own
// frame as an extended placeholder, that must cross into destTree before
// destTree can be 2:1-balanced across their shared boundary.
type outgoingGhost struct {
	q        Quadrant
	destTree int32
}

// computeOutgoingGhosts finds every quadrant every locally-owned tree
// must ship to a face or (in BalanceFaceCorner mode) corner neighbor
// tree. Every leaf touching a non-boundary face unconditionally becomes
// a ghost for that neighbor: it is transformed into the neighbor's frame
// via the connectivity's face transform, then pushed one quadrant-width
// past the neighbor's own matching face, ready to merge directly into
// the neighbor's leaf sequence (§2's "Data flow" cross-tree balance
// step). This needs no insulation-layer filtering — that machinery
// answers a different question (which of a tree's leaves are finer than
// an external probe by two levels or more), not "does my own leaf
// qualify as a ghost".
func (f *Forest[P]) computeOutgoingGhosts(mode BalanceMode) []outgoingGhost {
	var out []outgoingGhost

	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		tree := f.trees[i]
		leaves := tree.Leaves()

		for face := 0; face < 4; face++ {
			neighborTree, transform, isBoundary := f.Conn.NeighborTree(i, face)
			if isBoundary {
				continue
			}
			neighborFace := int(f.Conn.TreeToFace[4*i+int32(face)] & 3)

			for _, leaf := range leaves {
				if !touchesFace(leaf, face) {
					continue
				}
				extended := extendPastFace(Transform(leaf, transform), neighborFace)
				out = append(out, outgoingGhost{q: extended, destTree: neighborTree})
			}
		}

		if mode == BalanceFaceCorner {
			for _, cg := range cornerGhosts(i, leaves, f.Conn) {
				out = append(out, outgoingGhost{
					q:        cornerExtended(cg.destCorner, cg.level),
					destTree: cg.destTree,
				})
			}
		}
	}

	return out
}

// ownerOfTree inverts localTreeRange: it returns the rank owning tree
// treeID when numTrees trees are distributed as a contiguous block of
// per-or-per+1 trees per rank.
func ownerOfTree(numTrees, treeID int32, size int) int {
	if size <= 0 {
		return 0
	}
	per := numTrees / int32(size)
	rem := numTrees % int32(size)
	boundary := rem * (per + 1)
	if treeID < boundary {
		return int(treeID / (per + 1))
	}
	return int(rem + (treeID-boundary)/per)
}

// neighborRanks collects every rank (other than our own) that owns a
// face, or in BalanceFaceCorner mode corner, neighbor of any locally
// owned tree — the fixed set of peers we exchange ghosts with regardless
// of how much content a given round actually produces.
func (f *Forest[P]) neighborRanks(mode BalanceMode) map[int]bool {
	size := f.tr.Size()
	out := make(map[int]bool)
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		for face := 0; face < 4; face++ {
			nt, _, isBoundary := f.Conn.NeighborTree(i, face)
			if isBoundary {
				continue
			}
			out[ownerOfTree(f.Conn.NumTrees, nt, size)] = true
		}
		if mode == BalanceFaceCorner {
			for c := 0; c < 4; c++ {
				for _, nb := range f.Conn.CornerNeighbors(i, zOrderToCorner[c]) {
					out[ownerOfTree(f.Conn.NumTrees, nb.Tree, size)] = true
				}
			}
		}
	}
	return out
}

// wireGhost is the point-to-point wire record for a cross-rank ghost
// exchange: the local tree it's destined for plus its extended quadrant.
type wireGhost struct {
	destTree int32
	q        Quadrant
}

func packGhosts(ghosts []wireGhost) []byte {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(ghosts)))
	buf.Write(hdr[:])
	for _, g := range ghosts {
		var rec [16]byte
		binary.BigEndian.PutUint32(rec[0:4], uint32(g.destTree))
		binary.BigEndian.PutUint32(rec[4:8], uint32(g.q.X))
		binary.BigEndian.PutUint32(rec[8:12], uint32(g.q.Y))
		binary.BigEndian.PutUint32(rec[12:16], uint32(g.q.Level))
		buf.Write(rec[:])
	}
	return buf.Bytes()
}

func unpackGhosts(data []byte) []wireGhost {
	r := bytes.NewReader(data)
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil
	}
	out := make([]wireGhost, 0, n)
	for k := uint32(0); k < n; k++ {
		var tree, x, y, level uint32
		binary.Read(r, binary.BigEndian, &tree)
		binary.Read(r, binary.BigEndian, &x)
		binary.Read(r, binary.BigEndian, &y)
		binary.Read(r, binary.BigEndian, &level)
		out = append(out, wireGhost{
			destTree: int32(tree),
			q:        Quadrant{X: int32(x), Y: int32(y), Level: int8(level)},
		})
	}
	return out
}

// exchangeGhosts computes the extended ghost quadrants every locally
// owned tree must receive from its face (and, in BalanceFaceCorner mode,
// corner) neighbor trees, exchanges them with whichever ranks own those
// neighbors over the forest's transport, and merges the results into
// each local tree's leaf sequence ahead of BalanceSubtree — the
// cross-tree half of §2's balance data flow that a per-tree
// BalanceSubtree call alone never sees.
func (f *Forest[P]) exchangeGhosts(mode BalanceMode) {
	outgoing := f.computeOutgoingGhosts(mode)

	size := f.tr.Size()
	rank := f.tr.Rank()

	byDest := make(map[int32][]Quadrant)
	remote := make(map[int][]wireGhost)
	peers := f.neighborRanks(mode)

	for _, g := range outgoing {
		owner := ownerOfTree(f.Conn.NumTrees, g.destTree, size)
		if owner == rank {
			byDest[g.destTree] = append(byDest[g.destTree], g.q)
			continue
		}
		remote[owner] = append(remote[owner], wireGhost{destTree: g.destTree, q: g.q})
		peers[owner] = true
	}
	delete(peers, rank)

	var peerList []int
	for p := range peers {
		peerList = append(peerList, p)
	}
	sort.Ints(peerList)

	for _, p := range peerList {
		f.tr.Isend(p, ghostExchangeTag, packGhosts(remote[p]))
	}

	var reqs []transport.Request
	for _, p := range peerList {
		reqs = append(reqs, f.tr.Irecv(p, ghostExchangeTag))
	}
	received := f.tr.Waitall(reqs)

	for _, data := range received {
		for _, wg := range unpackGhosts(data) {
			byDest[wg.destTree] = append(byDest[wg.destTree], wg.q)
		}
	}

	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		extra := byDest[i]
		if len(extra) == 0 {
			continue
		}
		merged := append([]Quadrant(nil), f.trees[i].Leaves()...)
		merged = append(merged, extra...)
		sortQuadrants(merged)
		f.trees[i].Replace(merged)
	}
}
