// SPDX-License-Identifier: MIT

package forest

// GlobalPosition is the Morton-least leaf assigned to a process,
// represented as (which_tree, x, y) at MaxLevel (§3, §4.I).
type GlobalPosition struct {
	WhichTree int32
	X, Y      int32
}

// PartitionState is the forest's global partition bookkeeping (§3,
// §4.I): for each process p, the quadrant at which p's slice begins,
// and the cumulative global leaf count.
type PartitionState struct {
	// FirstPosition has length P+1; entry P is the sentinel
	// (num_trees, 0, 0).
	FirstPosition []GlobalPosition
	// LastQuadIndex has length P: cumulative global leaf count through
	// process p.
	LastQuadIndex []int64
}

// NewPartitionState allocates a partition state for P processes.
func NewPartitionState(numProcs int) *PartitionState {
	return &PartitionState{
		FirstPosition: make([]GlobalPosition, numProcs+1),
		LastQuadIndex: make([]int64, numProcs),
	}
}

// SharesBoundaryTree reports whether processes p and p+1 split a
// boundary tree: their first-position trees agree but the x/y position
// within that tree differs (§4.I).
func (ps *PartitionState) SharesBoundaryTree(p int) bool {
	a, b := ps.FirstPosition[p], ps.FirstPosition[p+1]
	if a.WhichTree != b.WhichTree {
		return false
	}
	return a.X != b.X || a.Y != b.Y
}

// GlobalNumQuadrants returns the total leaf count across all processes.
func (ps *PartitionState) GlobalNumQuadrants() int64 {
	if len(ps.LastQuadIndex) == 0 {
		return 0
	}
	return ps.LastQuadIndex[len(ps.LastQuadIndex)-1]
}

// RangeOf returns the inclusive global index range [first, last] owned
// by process p, where first is the running total through p-1 and last
// is LastQuadIndex[p]-1. An empty slice is represented as first > last.
func (ps *PartitionState) RangeOf(p int) (first, last int64) {
	last = ps.LastQuadIndex[p] - 1
	if p == 0 {
		first = 0
	} else {
		first = ps.LastQuadIndex[p-1]
	}
	return first, last
}
