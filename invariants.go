// SPDX-License-Identifier: MIT

package forest

import "hash/fnv"

// IsSorted reports whether s is strictly increasing under Compare.
func IsSorted(s []Quadrant) bool {
	for i := 1; i < len(s); i++ {
		if Compare(s[i-1], s[i]) >= 0 {
			return false
		}
	}
	return true
}

// IsLinear reports whether s is sorted and no element is an ancestor of
// its successor (§4.B, GLOSSARY "Linear").
func IsLinear(s []Quadrant) bool {
	if !IsSorted(s) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if IsAncestor(s[i-1], s[i]) {
			return false
		}
	}
	return true
}

// IsComplete reports whether s is linear and every consecutive pair
// satisfies IsNext (GLOSSARY "Complete").
func IsComplete(s []Quadrant) bool {
	if !IsLinear(s) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !IsNext(s[i-1], s[i]) {
			return false
		}
	}
	return true
}

// IsAlmostSorted reports whether s is sorted except across "outside the
// root corner" runs, where adjacent extended quadrants sharing the same
// exterior corner may overlap in Compare order (§4.B). Balancing accepts
// almost-sorted input; only full IsSorted is required once any corner
// run is collapsed to its single representative.
func IsAlmostSorted(s []Quadrant) bool {
	for i := 1; i < len(s); i++ {
		if Compare(s[i-1], s[i]) < 0 {
			continue
		}
		if !sharesExteriorCorner(s[i-1], s[i]) {
			return false
		}
	}
	return true
}

// sharesExteriorCorner reports whether both quadrants are extended past
// the same corner of the root tree (both X and Y outside [0, Root) on
// the same sides).
func sharesExteriorCorner(a, b Quadrant) bool {
	aOutX, aOutY := a.X < 0 || a.X >= Root, a.Y < 0 || a.Y >= Root
	bOutX, bOutY := b.X < 0 || b.X >= Root, b.Y < 0 || b.Y >= Root
	if !aOutX || !aOutY || !bOutX || !bOutY {
		return false
	}
	return (a.X < 0) == (b.X < 0) && (a.Y < 0) == (b.Y < 0)
}

// Checksum folds (tree, x, y, level) for every leaf, in the order given,
// into an order-sensitive FNV-1a hash. Forest.Checksum computes one of
// these per leaf and combines them with XOR, locally and across the
// process group with an XOR-Allreduce, so the whole-forest result is
// order-independent across ranks while remaining
// cheap to recompute after every repartition (§8 "Repartition preserves
// the forest checksum").
func Checksum(treeID int32, leaves []Quadrant) uint64 {
	h := fnv.New64a()
	var buf [20]byte
	for _, q := range leaves {
		putUint32(buf[0:4], uint32(treeID))
		putUint32(buf[4:8], uint32(q.X))
		putUint32(buf[8:12], uint32(q.Y))
		putUint32(buf[12:16], uint32(q.Level))
		h.Write(buf[:16])
	}
	return h.Sum64()
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
