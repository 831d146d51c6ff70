// SPDX-License-Identifier: MIT

package forest

import "testing"

func TestRangeOfComputesInclusiveSlices(t *testing.T) {
	ps := NewPartitionState(3)
	ps.LastQuadIndex = []int64{4, 10, 15}

	first, last := ps.RangeOf(0)
	if first != 0 || last != 3 {
		t.Fatalf("RangeOf(0) = (%d,%d), want (0,3)", first, last)
	}
	first, last = ps.RangeOf(1)
	if first != 4 || last != 9 {
		t.Fatalf("RangeOf(1) = (%d,%d), want (4,9)", first, last)
	}
	first, last = ps.RangeOf(2)
	if first != 10 || last != 14 {
		t.Fatalf("RangeOf(2) = (%d,%d), want (10,14)", first, last)
	}
}

func TestRangeOfEmptySliceHasFirstAfterLast(t *testing.T) {
	ps := NewPartitionState(2)
	ps.LastQuadIndex = []int64{5, 5}

	first, last := ps.RangeOf(1)
	if first <= last {
		t.Fatalf("RangeOf for an empty slice should have first > last, got (%d,%d)", first, last)
	}
}

func TestGlobalNumQuadrantsIsFinalCumulativeCount(t *testing.T) {
	ps := NewPartitionState(3)
	ps.LastQuadIndex = []int64{4, 10, 15}
	if ps.GlobalNumQuadrants() != 15 {
		t.Fatalf("GlobalNumQuadrants() = %d, want 15", ps.GlobalNumQuadrants())
	}
}

func TestGlobalNumQuadrantsZeroProcessesIsZero(t *testing.T) {
	ps := NewPartitionState(0)
	if ps.GlobalNumQuadrants() != 0 {
		t.Fatalf("GlobalNumQuadrants() = %d, want 0", ps.GlobalNumQuadrants())
	}
}

func TestSharesBoundaryTreeDetectsSplitTree(t *testing.T) {
	ps := NewPartitionState(2)
	ps.FirstPosition[0] = GlobalPosition{WhichTree: 1, X: 0, Y: 0}
	ps.FirstPosition[1] = GlobalPosition{WhichTree: 1, X: H(2), Y: 0}
	ps.FirstPosition[2] = GlobalPosition{WhichTree: 2, X: 0, Y: 0}

	if !ps.SharesBoundaryTree(0) {
		t.Fatal("processes 0 and 1 share tree 1 at different positions and should report a split")
	}
	if ps.SharesBoundaryTree(1) {
		t.Fatal("processes 1 and 2 own different trees and should not report a split")
	}
}
