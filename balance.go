// SPDX-License-Identifier: MIT

package forest

import (
	"context"
	"sort"
)

// BalanceMode selects which neighbor relation BalanceSubtree enforces
// 2:1 balance across (§4.F).
type BalanceMode int

const (
	// BalanceFace enforces 2:1 balance across face neighbors only.
	BalanceFace BalanceMode = iota
	// BalanceFaceCorner additionally enforces 2:1 balance across corner
	// neighbors.
	BalanceFaceCorner
)

// BalanceStats reports the rejection counters §4.F requires be
// observable for testing.
type BalanceStats struct {
	OutsideRoot int
	OutsideTree int
}

type probeKind int8

const (
	probeUser probeKind = iota
	probeParent
)

type balanceKey struct {
	x, y  int32
	level int8
}

func keyOf(q Quadrant) balanceKey { return balanceKey{q.X, q.Y, q.Level} }

// candidate pairs a quadrant a probe might force to exist with the tag
// that distinguishes a plain user insertion from a parent probe (§4.F
// step 3's "two key tags").
type candidate struct {
	q   Quadrant
	tag probeKind
}

// BalanceSubtree brings tree from almost-sorted to sorted, linear, and
// 2:1 balanced under mode, per §4.F's bottom-up hash-insertion
// algorithm. Only inside leaves remain in the result; extended leaves
// are used for correctness but discarded.
//
// Precondition: tree.Leaves() is almost-sorted (IsAlmostSorted), and may
// mix inside and extended quadrants.
func BalanceSubtree[P any](tree *Tree[P], mode BalanceMode) BalanceStats {
	return runHashInsertion(tree, func(q Quadrant, in []Quadrant, parentProbed map[balanceKey]bool) []candidate {
		return enumerateCandidates(q, in, mode, parentProbed)
	})
}

// completeSubtreeViaHashInsertion runs the hash-insertion machinery with
// face/corner balance disabled: only siblings and parents are enumerated
// (§4.F). Exported name `CompleteSubtree` (declared in completion.go)
// already covers the convex-hull-completion use; this is the
// balance-engine variant used when a caller wants the completion
// algorithm without the face/corner neighbor terms. Kept distinct for
// clarity at call sites.
func completeSubtreeViaHashInsertion[P any](tree *Tree[P]) BalanceStats {
	return runHashInsertion(tree, siblingsAndParent)
}

// runHashInsertion is the shared bottom-up per-level hash-insertion
// worklist both BalanceSubtree and completeSubtreeViaHashInsertion run:
// the only difference between balancing and completion is which
// candidates candFn enumerates for a given probe quadrant (§4.F "complete_
// subtree is the same machinery with face/corner balance disabled").
func runHashInsertion[P any](tree *Tree[P], candFn func(q Quadrant, in []Quadrant, parentProbed map[balanceKey]bool) []candidate) BalanceStats {
	var stats BalanceStats

	in := append([]Quadrant(nil), tree.Leaves()...)
	if len(in) == 0 {
		return stats
	}

	firstInside, lastInside := -1, -1
	for i, q := range in {
		if !q.IsExtended() {
			if firstInside < 0 {
				firstInside = i
			}
			lastInside = i
		}
	}
	if firstInside < 0 {
		// no inside leaves: nothing to balance (§4.F step 1).
		return stats
	}

	treeFirst := FirstDescendant(in[firstInside], MaxLevel)
	treeLast := LastDescendant(in[lastInside], MaxLevel)

	var maxLevel int8
	for _, q := range in {
		if q.Level > maxLevel {
			maxLevel = q.Level
		}
	}

	H := make(map[balanceKey]probeKind, len(in)*2)
	O := make([][]candidate, maxLevel+1)
	parentProbed := make(map[balanceKey]bool)

	for _, q := range in {
		k := keyOf(q)
		if _, ok := H[k]; !ok {
			H[k] = probeUser
			O[q.Level] = append(O[q.Level], candidate{q, probeUser})
		}
	}

	for level := maxLevel; level >= 1; level-- {
		i := 0
		for i < len(O[level]) {
			q := O[level][i].q
			i++

			for _, c := range candFn(q, in, parentProbed) {
				if !acceptCandidate(q, c.q, treeFirst, treeLast, &stats) {
					continue
				}

				ck := keyOf(c.q)
				if _, ok := H[ck]; ok {
					continue
				}
				if inputContains(in, c.q) {
					continue
				}

				H[ck] = c.tag
				O[c.q.Level] = append(O[c.q.Level], c)
			}
		}
	}

	ctx := context.Background()
	var out []Quadrant
	for level := int8(0); level <= maxLevel; level++ {
		for _, c := range O[level] {
			if c.q.IsExtended() {
				continue
			}
			q := c.q
			q.payloadIdx = tree.payloads.Alloc(ctx)
			out = append(out, q)
		}
	}

	sortQuadrants(out)
	out = Linearize(out, tree.payloads)
	tree.Replace(out)

	return stats
}

// enumerateCandidates lists every quadrant q could force to exist: its
// siblings (unless a full family is already adjacent in the input), its
// parent, and — once per parent, tracked in parentProbed — the indirect
// parent-neighbors that extend 2:1 balance one level coarser than q
// itself (§4.F step 3).
//
// For an extended q, only the parent and indirect neighbors are
// candidates (siblings of an extended quadrant are not meaningful local
// leaves).
func enumerateCandidates(q Quadrant, in []Quadrant, mode BalanceMode, parentProbed map[balanceKey]bool) []candidate {
	var out []candidate

	if !q.IsExtended() && !familyAdjacent(in, q) {
		for id := 0; id < 4; id++ {
			s := Sibling(q, id)
			if IsEqual(s, q) {
				continue
			}
			out = append(out, candidate{s, probeUser})
		}
	}

	parent := Parent(q)
	pkey := keyOf(parent)
	out = append(out, candidate{parent, probeParent})

	if !parentProbed[pkey] {
		out = append(out, indirectParentNeighbors(parent, q, mode)...)
		parentProbed[pkey] = true
	}

	return out
}

// siblingsAndParent is the completion-only candidate set (§4.F
// "complete_subtree ... only siblings and parents are enumerated").
func siblingsAndParent(q Quadrant, in []Quadrant, parentProbed map[balanceKey]bool) []candidate {
	var out []candidate
	if !q.IsExtended() && !familyAdjacent(in, q) {
		for id := 0; id < 4; id++ {
			s := Sibling(q, id)
			if IsEqual(s, q) {
				continue
			}
			out = append(out, candidate{s, probeUser})
		}
	}
	parent := Parent(q)
	pkey := keyOf(parent)
	if !parentProbed[pkey] {
		out = append(out, candidate{parent, probeParent})
		parentProbed[pkey] = true
	}
	return out
}

// indirectParentNeighbors enumerates the parent-level quadrants that
// could force q's coarser neighborhood to refine, one level up from q
// itself (§4.F step 3(c)).
//
// This repo computes the offsets geometrically from parent's own
// child-id within its parent rather than from a literal precomputed
// table. The three candidates are parent's face-x, face-y and diagonal
// neighbors on the outer side of parent, the side that parent's own
// siblings do not cover. In BalanceFaceCorner mode a fourth candidate,
// away(-dx, -dy), is added; that quadrant is parent's diagonal sibling.
func indirectParentNeighbors(parent, q Quadrant, mode BalanceMode) []candidate {
	h := H(parent.Level)
	px, py := childID(parent)&1, (childID(parent)>>1)&1

	dx, dy := int32(1), int32(1)
	if px == 0 {
		dx = -1
	}
	if py == 0 {
		dy = -1
	}

	away := func(ddx, ddy int32) Quadrant {
		return Quadrant{X: parent.X + ddx*h, Y: parent.Y + ddy*h, Level: parent.Level}
	}

	out := []candidate{
		{away(dx, 0), probeParent},
		{away(0, dy), probeParent},
		{away(dx, dy), probeParent},
	}

	if mode == BalanceFaceCorner {
		out = append(out, candidate{away(-dx, -dy), probeParent})
	}

	return out
}

// acceptCandidate applies §4.F's rejection rules: reject candidates
// outside the root for an inside probe quadrant, or outside the root
// across both axes (i.e. doubly-extended/corner-exterior) for an
// extended probe quadrant; reject candidates whose descendant range at
// MaxLevel falls entirely outside [treeFirst, treeLast].
func acceptCandidate(probe, c Quadrant, treeFirst, treeLast Quadrant, stats *BalanceStats) bool {
	outX := c.X < 0 || c.X >= Root
	outY := c.Y < 0 || c.Y >= Root

	if !probe.IsExtended() {
		if outX || outY {
			stats.OutsideRoot++
			return false
		}
	} else if outX && outY {
		stats.OutsideRoot++
		return false
	}

	if !c.IsExtended() {
		cFirst := FirstDescendant(c, MaxLevel)
		cLast := LastDescendant(c, MaxLevel)
		if Compare(cLast, treeFirst) < 0 || Compare(cFirst, treeLast) > 0 {
			stats.OutsideTree++
			return false
		}
	}

	return true
}

// familyAdjacent reports whether q is one of four consecutive entries
// in the original (almost-sorted) input that together form a family
// (§4.F: "a family adjacency is detected only when four consecutive
// input entries form is_family").
func familyAdjacent(in []Quadrant, q Quadrant) bool {
	idx := indexInSorted(in, q)
	if idx < 0 {
		return false
	}

	for base := idx - 3; base <= idx; base++ {
		if base < 0 || base+3 >= len(in) {
			continue
		}
		if IsFamily(in[base], in[base+1], in[base+2], in[base+3]) {
			return true
		}
	}
	return false
}

// inputContains reports whether q (by exact value) appears in the
// sorted input slice.
func inputContains(in []Quadrant, q Quadrant) bool {
	return indexInSorted(in, q) >= 0
}

func indexInSorted(in []Quadrant, q Quadrant) int {
	i := sort.Search(len(in), func(i int) bool {
		return Compare(in[i], q) >= 0
	})
	if i < len(in) && IsEqual(in[i], q) {
		return i
	}
	return -1
}
