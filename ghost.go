// SPDX-License-Identifier: MIT

package forest

import "sort"

// GhostQuadrant tags a quadrant with the tree it is being shipped to (or,
// while still being probed, the tree whose insulation layer it is being
// tested against), per §4.H.
type GhostQuadrant struct {
	Q    Quadrant
	Tree int32
}

func compareGhost(a, b GhostQuadrant) int {
	if a.Tree != b.Tree {
		if a.Tree < b.Tree {
			return -1
		}
		return 1
	}
	return Compare(a.Q, b.Q)
}

// findLowerBound returns the index of the first leaf not less than
// target, under Compare. §9 notes the reference algorithm is an
// exponential-probe bracket followed by bisection but permits
// implementations to "ignore [the guess] and restart from midpoint
// without loss of correctness" — sort.Search already is that bisection.
func findLowerBound(leaves []Quadrant, target Quadrant) int {
	return sort.Search(len(leaves), func(i int) bool {
		return Compare(leaves[i], target) >= 0
	})
}

// findHigherBound returns the index of the first leaf greater than
// target, under Compare.
func findHigherBound(leaves []Quadrant, target Quadrant) int {
	return sort.Search(len(leaves), func(i int) bool {
		return Compare(leaves[i], target) > 0
	})
}

// insulationBounds returns the coordinate rectangle of q's insulation
// layer: the 3x3 block of q-sized quadrants centered on q (GLOSSARY
// "Insulation layer"), as [loX,hiX) x [loY,hiY).
func insulationBounds(q Quadrant) (loX, loY, hiX, hiY int32) {
	h := H(q.Level)
	return q.X - h, q.Y - h, q.X + 2*h, q.Y + 2*h
}

// insideInsulation reports whether leaf's footprint lies strictly
// inside q's insulation layer, excluding q's own footprint, and is fine
// enough to constrain q under 2:1 balancing (level > q.Level+1), per
// §4.H.
func insideInsulation(leaf, q Quadrant) bool {
	if leaf.Level <= q.Level+1 {
		return false
	}
	loX, loY, hiX, hiY := insulationBounds(q)
	if leaf.X < loX || leaf.X >= hiX || leaf.Y < loY || leaf.Y >= hiY {
		return false
	}
	h := H(q.Level)
	inQOwnFootprint := leaf.X >= q.X && leaf.X < q.X+h && leaf.Y >= q.Y && leaf.Y < q.Y+h
	return !inQOwnFootprint
}

// ComputeOverlap appends to out every local leaf of localTreeID that
// lies in the insulation layer of any quadrant in `in`, tagged with the
// tree that should receive it (§4.H).
//
// Each element of `in` is expressed in localTreeID's coordinate frame
// already. When an element's Tree equals localTreeID but its quadrant is
// extended (it actually originated across a face or corner from a
// neighbor and was transformed into our frame to probe against our
// leaves), the matching result is reverse-transformed back into that
// neighbor's frame and tagged with the neighbor's tree id before being
// appended, per §4.H's "reverse-apply the face transform or corner
// mapping and record the receiver's tree id".
func ComputeOverlap[P any](localTreeID int32, localTree *Tree[P], in []GhostQuadrant, conn *Connectivity) []GhostQuadrant {
	var out []GhostQuadrant
	leaves := localTree.Leaves()

	for _, gq := range in {
		q := gq.Q

		if q.IsExtended() && bothAxesOutside(q) {
			out = append(out, cornerOverlap(localTreeID, leaves, q, conn)...)
			continue
		}

		loX, loY, hiX, hiY := insulationBounds(q)
		lo := findLowerBound(leaves, Quadrant{X: loX, Y: loY, Level: 0})
		hi := findHigherBound(leaves, Quadrant{X: hiX - 1, Y: hiY - 1, Level: MaxLevel})

		for idx := lo; idx < hi && idx < len(leaves); idx++ {
			leaf := leaves[idx]
			if !insideInsulation(leaf, q) {
				continue
			}

			outQ, receiver := leaf, gq.Tree
			if gq.Tree == localTreeID && q.IsExtended() {
				neighborTree, transform, ok := reverseFaceTransform(localTreeID, q, conn)
				if !ok {
					continue
				}
				outQ = Transform(leaf, transform)
				receiver = neighborTree
			}

			out = append(out, GhostQuadrant{Q: outQ, Tree: receiver})
		}
	}

	return out
}

func bothAxesOutside(q Quadrant) bool {
	outX := q.X < 0 || q.X >= Root
	outY := q.Y < 0 || q.Y >= Root
	return outX && outY
}

// reverseFaceTransform locates which face of localTreeID q crosses and
// returns the neighbor tree and the transform that maps localTreeID's
// coordinates into that neighbor's frame.
func reverseFaceTransform(localTreeID int32, q Quadrant, conn *Connectivity) (neighborTree int32, transform int, ok bool) {
	var face int
	switch {
	case q.X < 0:
		face = 0
	case q.X >= Root:
		face = 1
	case q.Y < 0:
		face = 2
	case q.Y >= Root:
		face = 3
	default:
		return 0, 0, false
	}

	nt, t, isBoundary := conn.NeighborTree(localTreeID, face)
	if isBoundary {
		return 0, 0, false
	}
	return nt, t, true
}

// cornerOverlap handles the corner-crossing case: q is extended past a
// corner of localTreeID (both axes outside root). Every tree meeting at
// the shared vertex becomes a recipient, each receiving the single local
// leaf that contains this tree's corner point rather than the full
// overlap set (§4.H).
//
// That leaf is shipped to every neighbor tree as it is, in
// localTreeID's coordinate frame and at its own level: no corner
// transform is applied, and CornerLevel(best, corner, best.Level),
// called afresh for each neighbor, returns best.Level unchanged.
func cornerOverlap(localTreeID int32, leaves []Quadrant, q Quadrant, conn *Connectivity) []GhostQuadrant {
	corner := exteriorCorner(q)
	// CornerNeighbors takes the user-facing corner numbering, not z-order;
	// exteriorCorner already returns z-order (same convention as childID).
	neighbors := conn.CornerNeighbors(localTreeID, zOrderToCorner[corner])

	// the leaf containing our own tree's corner cell at the shared vertex:
	// the last leaf not after that MaxLevel cell in Morton order — the
	// same corner CornerNeighbors was just queried with, per §4.H.
	p := cornerBound(corner, false)
	idx := findHigherBound(leaves, p) - 1
	if idx < 0 || !(IsAncestor(leaves[idx], p) || IsEqual(leaves[idx], p)) {
		return nil
	}
	best := leaves[idx]

	var out []GhostQuadrant
	for _, nb := range neighbors {
		localLevel := CornerLevel(best, corner, best.Level)
		sent := best
		sent.Level = localLevel
		out = append(out, GhostQuadrant{Q: sent, Tree: nb.Tree})
	}
	return out
}

// exteriorCorner returns which corner (0..3, z-order) of the root tree q
// lies outside, given both its axes are outside [0, Root).
func exteriorCorner(q Quadrant) int {
	c := 0
	if q.X >= Root {
		c |= 1
	}
	if q.Y >= Root {
		c |= 2
	}
	return c
}

// cornerBound returns a MaxLevel point quadrant at the given corner of
// the root tree, used to bracket leaves near that corner via
// findLowerBound/findHigherBound.
func cornerBound(corner int, far bool) Quadrant {
	x, y := int32(0), int32(0)
	if corner&1 != 0 {
		x = Root - 1
	}
	if corner&2 != 0 {
		y = Root - 1
	}
	if far {
		x++
		y++
	}
	return Quadrant{X: x, Y: y, Level: MaxLevel}
}

// UniqifyOverlap sorts out by (tree, morton), drops duplicates, and
// drops any element already present in alreadyHave (§4.H).
func UniqifyOverlap(alreadyHave, out []GhostQuadrant) []GhostQuadrant {
	sortGhosts(out)

	have := append([]GhostQuadrant(nil), alreadyHave...)
	sortGhosts(have)

	result := out[:0:0]
	for i, g := range out {
		if i > 0 && compareGhost(out[i-1], g) == 0 {
			continue
		}
		if ghostContains(have, g) {
			continue
		}
		result = append(result, g)
	}
	return result
}

func sortGhosts(s []GhostQuadrant) {
	sort.Slice(s, func(i, j int) bool { return compareGhost(s[i], s[j]) < 0 })
}

func ghostContains(sorted []GhostQuadrant, g GhostQuadrant) bool {
	i := sort.Search(len(sorted), func(i int) bool { return compareGhost(sorted[i], g) >= 0 })
	return i < len(sorted) && compareGhost(sorted[i], g) == 0
}
