// SPDX-License-Identifier: MIT

package forest

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/quadforest/forest/transport"
)

const repartitionTag = 0

// taggedQuadrant pairs a quadrant with the (global) connectivity tree it
// belongs to, the unit this package moves across ranks.
type taggedQuadrant struct {
	tree int32
	q    Quadrant
}

// computeFirstPosition recomputes global_first_position and
// global_last_quad_index by gathering every rank's local leaf count and
// its Morton-least leaf (§4.I "recompute global_first_position by a
// P-way inspection").
func computeFirstPosition[P any](f *Forest[P], tr transport.Transport) *PartitionState {
	size := tr.Size()
	localCount := f.LocalNumQuadrants()

	counts := tr.Allgather(uint64ToBytes(uint64(localCount)))

	ps := NewPartitionState(size)
	var running int64
	for p := 0; p < size; p++ {
		running += int64(bytesToUint64(counts[p]))
		ps.LastQuadIndex[p] = running
	}

	leastTree, leastQ, have := f.firstLeaf()
	var mine GlobalPosition
	if have {
		mine = GlobalPosition{WhichTree: leastTree, X: leastQ.X, Y: leastQ.Y}
	} else {
		mine = GlobalPosition{WhichTree: f.NumTrees(), X: 0, Y: 0}
	}

	positions := tr.Allgather(encodeGlobalPosition(mine))
	for p := 0; p < size; p++ {
		ps.FirstPosition[p] = decodeGlobalPosition(positions[p])
	}
	ps.FirstPosition[size] = GlobalPosition{WhichTree: f.NumTrees(), X: 0, Y: 0}

	return ps
}

// firstLeaf returns this rank's Morton-least leaf and the tree it lives
// in, scanning owned trees in ascending order.
func (f *Forest[P]) firstLeaf() (tree int32, q Quadrant, ok bool) {
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		if f.trees[i].Len() > 0 {
			return i, f.trees[i].Leaves()[0], true
		}
	}
	return 0, Quadrant{}, false
}

func encodeGlobalPosition(p GlobalPosition) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], uint32(p.WhichTree))
	binary.BigEndian.PutUint32(b[4:8], uint32(p.X))
	binary.BigEndian.PutUint32(b[8:12], uint32(p.Y))
	return b
}

func decodeGlobalPosition(b []byte) GlobalPosition {
	return GlobalPosition{
		WhichTree: int32(binary.BigEndian.Uint32(b[0:4])),
		X:         int32(binary.BigEndian.Uint32(b[4:8])),
		Y:         int32(binary.BigEndian.Uint32(b[8:12])),
	}
}

// prefixLast turns a per-rank count vector into a cumulative last-index
// vector: last[p] is the global index (0-based) of the final leaf owned
// by rank p, or last[p] < first[p] when rank p owns nothing.
func prefixLast(counts []int64) []int64 {
	last := make([]int64, len(counts))
	var running int64
	for p, c := range counts {
		running += c
		last[p] = running - 1
	}
	return last
}

func rangeOf(last []int64, p int) (first, end int64) {
	end = last[p]
	if p == 0 {
		first = 0
	} else {
		first = last[p-1] + 1
	}
	return first, end
}

// overlapRange intersects two closed integer ranges; ok is false when
// either range is empty or they don't intersect.
func overlapRange(aFirst, aLast, bFirst, bLast int64) (lo, hi int64, ok bool) {
	if aFirst > aLast || bFirst > bLast {
		return 0, 0, false
	}
	lo = aFirst
	if bFirst > lo {
		lo = bFirst
	}
	hi = aLast
	if bLast < hi {
		hi = bLast
	}
	if lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// PartitionGiven executes partition_given (§4.J): reassigns the forest's
// leaves across ranks so rank p ends up owning exactly newCount[p]
// leaves, in global Morton order, and returns the number of quadrants
// that changed owning rank. Per §7's fail-stop model, a malformed
// new_count (wrong length, negative entry, or a total that disagrees
// with the current global count) is an unrecoverable logic bug: it
// aborts via fatalf rather than returning an error.
func PartitionGiven[P any](f *Forest[P], tr transport.Transport, newCount []int64) int64 {
	size := tr.Size()
	rank := tr.Rank()
	assertf(len(newCount) == size, rank, "new_count has %d entries, want %d", len(newCount), size)
	for _, c := range newCount {
		assertf(c >= 0, rank, "%v", ErrNegativeCount)
	}

	localCount := f.LocalNumQuadrants()
	countBytes := tr.Allgather(uint64ToBytes(uint64(localCount)))
	oldCount := make([]int64, size)
	for p := range oldCount {
		oldCount[p] = int64(bytesToUint64(countBytes[p]))
	}

	var oldTotal, newTotal int64
	for _, c := range oldCount {
		oldTotal += c
	}
	for _, c := range newCount {
		newTotal += c
	}
	assertf(oldTotal == newTotal, rank, "%v", ErrPartitionTotalMismatch)

	oldLast := prefixLast(oldCount)
	newLast := prefixLast(newCount)

	oldFirstR, oldLastR := rangeOf(oldLast, rank)
	newFirstR, newLastR := rangeOf(newLast, rank)

	localAll := f.flattenLocal()

	var shipped int64

	var reqs []transport.Request
	var recvFrom []int

	for q := 0; q < size; q++ {
		if q == rank {
			continue
		}
		qFirst, qLast := rangeOf(newLast, q)
		lo, hi, ok := overlapRange(oldFirstR, oldLastR, qFirst, qLast)
		if !ok {
			continue
		}
		segment := localAll[lo-oldFirstR : hi-oldFirstR+1]
		wire := packSegment(f, segment)
		tr.Isend(q, repartitionTag, wire)
		shipped += int64(len(segment))
	}

	for p := 0; p < size; p++ {
		if p == rank {
			continue
		}
		pFirst, pLast := rangeOf(oldLast, p)
		if _, _, ok := overlapRange(newFirstR, newLastR, pFirst, pLast); ok {
			reqs = append(reqs, tr.Irecv(p, repartitionTag))
			recvFrom = append(recvFrom, p)
		}
	}

	received := tr.Waitall(reqs)

	var assembled []taggedQuadrant
	for p := 0; p < size; p++ {
		if p == rank {
			if lo, hi, ok := overlapRange(newFirstR, newLastR, oldFirstR, oldLastR); ok {
				assembled = append(assembled, localAll[lo-oldFirstR:hi-oldFirstR+1]...)
			}
			continue
		}
		for i, from := range recvFrom {
			if from == p {
				assembled = append(assembled, unpackSegment(f, received[i])...)
			}
		}
	}

	ctx := context.Background()

	// free payloads of every old local leaf not retained in place: the
	// retained self-overlap slice keeps its payload indices; everything
	// else was serialized onto the wire (or shipped to a rank equal to
	// this one is impossible since q==rank is skipped above) so its slot
	// is released now that the bytes are safely copied out.
	selfLo, selfHi, selfOK := overlapRange(newFirstR, newLastR, oldFirstR, oldLastR)
	for i, tq := range localAll {
		idx := oldFirstR + int64(i)
		if selfOK && idx >= selfLo && idx <= selfHi {
			continue
		}
		f.payloads.Free(ctx, tq.q.payloadIdx)
	}

	f.rebuildFromAssembled(assembled, newLast, tr)

	return shipped
}

// flattenLocal concatenates every locally-owned tree's leaves, tagged
// with tree id, in ascending tree order — the contiguous local segment
// of the global Morton order this rank currently owns.
func (f *Forest[P]) flattenLocal() []taggedQuadrant {
	var out []taggedQuadrant
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		for _, q := range f.trees[i].Leaves() {
			out = append(out, taggedQuadrant{tree: i, q: q})
		}
	}
	return out
}

// packSegment wire-encodes a contiguous run of taggedQuadrants as a
// per-tree-count header followed by quadrant records and length-prefixed
// gob payload bytes (§4.J step 3; see pool.go's MarshalSlot doc for why
// this repo frames records by length rather than a fixed data_size).
func packSegment[P any](f *Forest[P], segment []taggedQuadrant) []byte {
	var buf bytes.Buffer

	type run struct {
		tree  int32
		count uint32
	}
	var runs []run
	for _, tq := range segment {
		if len(runs) > 0 && runs[len(runs)-1].tree == tq.tree {
			runs[len(runs)-1].count++
			continue
		}
		runs = append(runs, run{tree: tq.tree, count: 1})
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(runs)))
	buf.Write(hdr[:])
	for _, r := range runs {
		var rb [8]byte
		binary.BigEndian.PutUint32(rb[0:4], uint32(r.tree))
		binary.BigEndian.PutUint32(rb[4:8], r.count)
		buf.Write(rb[:])
	}

	for _, tq := range segment {
		var rec [12]byte
		binary.BigEndian.PutUint32(rec[0:4], uint32(tq.q.X))
		binary.BigEndian.PutUint32(rec[4:8], uint32(tq.q.Y))
		binary.BigEndian.PutUint32(rec[8:12], uint32(tq.q.Level))
		buf.Write(rec[:])

		payload, _ := f.payloads.MarshalSlot(tq.q.payloadIdx)
		var plen [4]byte
		binary.BigEndian.PutUint32(plen[:], uint32(len(payload)))
		buf.Write(plen[:])
		buf.Write(payload)
	}

	return buf.Bytes()
}

// unpackSegment is packSegment's inverse: it allocates a fresh payload
// slot per decoded quadrant.
func unpackSegment[P any](f *Forest[P], data []byte) []taggedQuadrant {
	ctx := context.Background()
	r := bytes.NewReader(data)

	var numRuns uint32
	binary.Read(r, binary.BigEndian, &numRuns)

	type run struct {
		tree  int32
		count uint32
	}
	runs := make([]run, numRuns)
	for i := range runs {
		var tree, count uint32
		binary.Read(r, binary.BigEndian, &tree)
		binary.Read(r, binary.BigEndian, &count)
		runs[i] = run{tree: int32(tree), count: count}
	}

	var out []taggedQuadrant
	for _, rn := range runs {
		for k := uint32(0); k < rn.count; k++ {
			var x, y, level uint32
			binary.Read(r, binary.BigEndian, &x)
			binary.Read(r, binary.BigEndian, &y)
			binary.Read(r, binary.BigEndian, &level)

			var plen uint32
			binary.Read(r, binary.BigEndian, &plen)
			payload := make([]byte, plen)
			io.ReadFull(r, payload)

			idx, _ := f.payloads.AllocFromBytes(ctx, payload)
			q := Quadrant{X: int32(x), Y: int32(y), Level: int8(level), payloadIdx: idx}
			out = append(out, taggedQuadrant{tree: rn.tree, q: q})
		}
	}
	return out
}

// rebuildFromAssembled installs the newly-assembled (already globally
// sorted) leaf list as this rank's owned trees, recomputes the local
// tree range, and recomputes global partition state (§4.J step 6).
func (f *Forest[P]) rebuildFromAssembled(assembled []taggedQuadrant, newLast []int64, tr transport.Transport) {
	rank := tr.Rank()
	newFirstR, newLastR := rangeOf(newLast, rank)

	var newFirstTree, newLastTree int32 = noLocalTree, noLocalTreeLast
	if newFirstR <= newLastR {
		newFirstTree = assembled[0].tree
		newLastTree = assembled[len(assembled)-1].tree
	}

	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		f.trees[i].Replace(nil)
	}

	byTree := make(map[int32][]Quadrant)
	for _, tq := range assembled {
		byTree[tq.tree] = append(byTree[tq.tree], tq.q)
	}
	for tree, qs := range byTree {
		f.trees[tree].Replace(qs)
	}

	f.firstLocalTree, f.lastLocalTree = newFirstTree, newLastTree
	f.Partition = computeFirstPosition(f, tr)
}
