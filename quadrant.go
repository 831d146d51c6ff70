// SPDX-License-Identifier: MIT

package forest

import "math/bits"

// MaxLevel is the finest refinement depth a quadrant can reach. Level 0
// is the root of a tree; level MaxLevel is the finest leaf.
const MaxLevel = 29

// Root is the side length of a tree's root quadrant, in the same integer
// units as Quadrant.X/Y.
const Root = 1 << MaxLevel

// H returns the side length of a quadrant at the given level.
func H(level int8) int32 {
	return 1 << (MaxLevel - int(level))
}

// piggy is the (which_tree, which_process) interpretation of a quadrant's
// payload slot, used only while the quadrant is in transit between trees
// or processes (§3 "piggy payload"). It and payloadIdx are mutually
// exclusive; whichever is live is tracked by Quadrant.piggyLive.
type piggy struct {
	whichTree    int32
	whichProcess int32
}

// Quadrant is the atomic leaf of the forest: an axis-aligned dyadic square
// addressed by integer coordinates and a refinement level.
//
// Quadrants may be "extended": X or Y outside [0, Root) represents a
// virtual image of a neighbor-tree quadrant expressed in the current
// tree's coordinate frame, used transiently during balancing and ghost
// computation (§3, §9).
type Quadrant struct {
	X, Y  int32
	Level int8

	// payloadIdx indexes into a payloadPool when this quadrant owns user
	// data; piggyVal carries the piggy interpretation when in transit.
	// Exactly one of the two meanings is live at a time, tracked by
	// piggyLive — never both, per §3's "never both meanings simultaneously".
	payloadIdx int32
	piggyVal   piggy
	piggyLive  bool
}

// IsExtended reports whether q's coordinates fall outside the root tree.
func (q Quadrant) IsExtended() bool {
	return q.X < 0 || q.Y < 0 || q.X >= Root || q.Y >= Root
}

// SetPiggy switches q into the piggy (which_tree, which_process)
// interpretation, per §3 and §9's "dual payload meaning" note.
func (q *Quadrant) SetPiggy(whichTree, whichProcess int32) {
	q.piggyVal = piggy{whichTree, whichProcess}
	q.piggyLive = true
}

// Piggy returns the (which_tree, which_process) pair and whether the
// piggy interpretation is currently live.
func (q Quadrant) Piggy() (whichTree, whichProcess int32, ok bool) {
	return q.piggyVal.whichTree, q.piggyVal.whichProcess, q.piggyLive
}

// biased re-biases a signed coordinate into [0, 4*Root) so extended
// (out-of-root) quadrants compare correctly against in-root ones, per
// §4.A's compare spec ("Signed coordinates are compared as if re-biased
// into the unsigned range [0, 4·Root)").
func biased(c int32) uint64 {
	return uint64(c) + 2*uint64(Root)
}

// Compare implements the total order on quadrants: interleaved Morton
// order on (x, y) with level as a containment tie-break (coarser < finer
// when one is an ancestor of the other at the point they first differ).
func Compare(a, b Quadrant) int {
	ax, ay := biased(a.X), biased(a.Y)
	bx, by := biased(b.X), biased(b.Y)

	xxor := ax ^ bx
	yxor := ay ^ by

	if xxor == 0 && yxor == 0 {
		switch {
		case a.Level < b.Level:
			return -1
		case a.Level > b.Level:
			return 1
		default:
			return 0
		}
	}

	// whichever coordinate's XOR has the higher top bit dominates the
	// Morton-interleaved comparison (§4.A).
	if topBit(xxor) > topBit(yxor) {
		if ax < bx {
			return -1
		}
		return 1
	}

	if ay < by {
		return -1
	}
	return 1
}

func topBit(v uint64) int {
	if v == 0 {
		return -1
	}
	return bits.Len64(v) - 1
}

// IsEqual reports whether a and b have identical coordinates and level.
func IsEqual(a, b Quadrant) bool {
	return a.X == b.X && a.Y == b.Y && a.Level == b.Level
}

// childID returns q's child-id (0..3) within its parent: bit0 is q's
// x-bit at q's level, bit1 is the y-bit (§3 "Child id").
func childID(q Quadrant) int {
	h := H(q.Level)
	id := 0
	if q.X&h != 0 {
		id |= 1
	}
	if q.Y&h != 0 {
		id |= 2
	}
	return id
}

// cornerToZOrder maps the user-facing corner numbering
// (0,0),(1,0),(1,1),(0,1) to the canonical z-order child-id
// (0,0),(1,0),(0,1),(1,1) (§3).
var cornerToZOrder = [4]int{0, 1, 3, 2}

// zOrderToCorner is the inverse permutation of cornerToZOrder.
var zOrderToCorner = [4]int{0, 1, 3, 2}

// Parent returns q's parent: coordinates masked to the parent's grid,
// level decremented.
func Parent(q Quadrant) Quadrant {
	h := H(q.Level - 1)
	mask := ^(h - 1)
	p := q
	p.X &= mask
	p.Y &= mask
	p.Level--
	p.payloadIdx = 0
	p.piggyLive = false
	return p
}

// Sibling returns the sibling of q with the given child-id (0..3),
// flipping the relevant x/y bit at q's level.
func Sibling(q Quadrant, id int) Quadrant {
	h := H(q.Level)
	s := q
	if id&1 != 0 {
		s.X = (q.X &^ h) | h
	} else {
		s.X = q.X &^ h
	}
	if id&2 != 0 {
		s.Y = (q.Y &^ h) | h
	} else {
		s.Y = q.Y &^ h
	}
	s.payloadIdx = 0
	s.piggyLive = false
	return s
}

// Children returns q's four children in canonical z-order:
// (0,0),(1,0),(0,1),(1,1).
func Children(q Quadrant) [4]Quadrant {
	h := H(q.Level + 1)
	var c [4]Quadrant
	for id := 0; id < 4; id++ {
		child := Quadrant{X: q.X, Y: q.Y, Level: q.Level + 1}
		if id&1 != 0 {
			child.X |= h
		}
		if id&2 != 0 {
			child.Y |= h
		}
		c[id] = child
	}
	return c
}

// IsParent reports whether p is the parent of c.
func IsParent(p, c Quadrant) bool {
	if c.Level == 0 || p.Level != c.Level-1 {
		return false
	}
	return IsEqual(p, Parent(c))
}

// IsSibling reports whether a and b are distinct quadrants sharing a
// parent (same level, same parent cell, different position).
func IsSibling(a, b Quadrant) bool {
	if a.Level != b.Level || a.Level == 0 {
		return false
	}
	if IsEqual(a, b) {
		return false
	}
	return IsEqual(Parent(a), Parent(b))
}

// IsAncestor reports whether a is a strict ancestor of b: a is coarser
// and b's cell lies within a's cell.
func IsAncestor(a, b Quadrant) bool {
	if a.Level >= b.Level {
		return false
	}
	h := H(a.Level)
	mask := ^(h - 1)
	return a.X == (b.X&mask) && a.Y == (b.Y&mask)
}

// FirstDescendant returns the Morton-least leaf at level L contained in q.
func FirstDescendant(q Quadrant, level int8) Quadrant {
	return Quadrant{X: q.X, Y: q.Y, Level: level}
}

// LastDescendant returns the Morton-greatest leaf at level L contained in q.
func LastDescendant(q Quadrant, level int8) Quadrant {
	h := H(q.Level) - H(level)
	return Quadrant{X: q.X + h, Y: q.Y + h, Level: level}
}

// IsNext reports whether b is a's Morton successor at the coarser of the
// two quadrants' levels: b == first_descendant(successor_cell(coarser(a)), b.Level)
// i.e. b abuts a with no gap and no overlap in the interleaved order.
func IsNext(a, b Quadrant) bool {
	level := a.Level
	if b.Level < level {
		level = b.Level
	}

	last := LastDescendant(a, MaxLevel)
	h := H(level)
	// a must end, and b must begin, a cell at `level`; those two cells
	// must then be consecutive in Morton order.
	if last.X&(h-1) != h-1 || last.Y&(h-1) != h-1 || b.X&(h-1) != 0 || b.Y&(h-1) != 0 {
		return false
	}
	return LinearID(a, level)+1 == LinearID(b, level)
}

// IsFamily reports whether q0..q3 are exactly the four children of a
// common parent, given in canonical z-order.
func IsFamily(q0, q1, q2, q3 Quadrant) bool {
	if q0.Level == 0 {
		return false
	}
	if q0.Level != q1.Level || q1.Level != q2.Level || q2.Level != q3.Level {
		return false
	}
	p := Parent(q0)
	c := Children(p)
	return IsEqual(c[0], q0) && IsEqual(c[1], q1) && IsEqual(c[2], q2) && IsEqual(c[3], q3)
}

// NearestCommonAncestor returns the deepest quadrant containing both a
// and b: computed from the top differing bit of (a.X^b.X)|(a.Y^b.Y).
func NearestCommonAncestor(a, b Quadrant) Quadrant {
	xor := uint32(a.X^b.X) | uint32(a.Y^b.Y)

	level := a.Level
	if b.Level < level {
		level = b.Level
	}

	if xor != 0 {
		// the coarsest level at which a and b's cells still coincide is
		// one past the highest set bit of xor, measured from MaxLevel.
		top := bits.Len32(xor) - 1
		ancLevel := int8(MaxLevel - 1 - top)
		if ancLevel < level {
			level = ancLevel
		}
	}

	h := H(level)
	mask := ^(h - 1)
	return Quadrant{X: a.X & mask, Y: a.Y & mask, Level: level}
}

// LinearID returns q's Morton id at level L: the interleaved bits of
// X>>(MaxLevel-L) and Y>>(MaxLevel-L), with the y-bit in the odd
// position.
func LinearID(q Quadrant, level int8) uint64 {
	shift := uint(MaxLevel - int(level))
	x := uint64(uint32(q.X)) >> shift
	y := uint64(uint32(q.Y)) >> shift

	var id uint64
	for i := 0; i < int(level); i++ {
		xb := (x >> uint(i)) & 1
		yb := (y >> uint(i)) & 1
		id |= xb << uint(2*i)
		id |= yb << uint(2*i+1)
	}
	return id
}

// SetMorton returns the quadrant at level L whose linear id is id; the
// mutual inverse of LinearID when L equals the result's level.
func SetMorton(level int8, id uint64) Quadrant {
	var x, y uint64
	for i := 0; i < int(level); i++ {
		xb := (id >> uint(2*i)) & 1
		yb := (id >> uint(2*i+1)) & 1
		x |= xb << uint(i)
		y |= yb << uint(i)
	}
	shift := uint(MaxLevel - int(level))
	return Quadrant{X: int32(x << shift), Y: int32(y << shift), Level: level}
}

// Transform applies one of the eight symmetries of the square (t in
// 0..7) used when crossing a face to a rotated or mirrored neighbor
// tree. The low two bits of t select a 90-degree rotation count; the top
// bit selects an additional mirror about the diagonal.
func Transform(q Quadrant, t int) Quadrant {
	x, y := q.X, q.Y
	rot := t & 3
	mirror := t&4 != 0

	if mirror {
		x, y = y, x
	}

	for i := 0; i < rot; i++ {
		x, y = Root-H(q.Level)-y, x
	}

	return Quadrant{X: x, Y: y, Level: q.Level, payloadIdx: q.payloadIdx}
}

// InverseTransform returns the transform index t' such that
// Transform(Transform(q, t), t') == q.
func InverseTransform(t int) int {
	rot := t & 3
	mirror := t & 4
	if mirror != 0 {
		// mirrored transforms are self-inverse: the rotation applied
		// after a mirror undoes itself under the same t.
		return t
	}
	return mirror | ((4 - rot) & 3)
}

// CornerLevel walks q toward the given corner of the root tree (0..3,
// z-order), returning the deepest level at which q remains the
// corner-local leaf without leaving the tree, up to level L.
func CornerLevel(q Quadrant, corner int, level int8) int8 {
	cur := q
	for cur.Level < level {
		if childID(cur) != corner {
			break
		}
		cur.Level++
		h := H(cur.Level)
		if corner&1 != 0 {
			cur.X = q.X + (H(q.Level) - h)
		} else {
			cur.X = q.X
		}
		if corner&2 != 0 {
			cur.Y = q.Y + (H(q.Level) - h)
		} else {
			cur.Y = q.Y
		}
	}
	return cur.Level
}
