// SPDX-License-Identifier: MIT

package forest

import (
	"context"
	"iter"

	"github.com/quadforest/forest/transport"
)

// sentinel values for an empty local tree range (§3 "first_local_tree,
// last_local_tree ... with sentinel (-1,-2) when the local set is empty").
const (
	noLocalTree     int32 = -1
	noLocalTreeLast int32 = -2
)

// Forest owns the connectivity, the per-tree leaf sequences assigned to
// this rank, the shared payload pool, and the global partition
// bookkeeping (§3).
type Forest[P any] struct {
	Conn *Connectivity

	trees    []*Tree[P]
	payloads *payloadPool[P]

	firstLocalTree int32
	lastLocalTree  int32

	Partition *PartitionState

	tr transport.Transport
}

// NewForest builds a forest over conn, owned collectively by the ranks
// reachable through tr: trees are distributed to ranks as a contiguous
// block (tree i belongs to rank i*NumTrees/Size .. ), one root leaf seeded
// per locally-owned tree, mirroring §8 scenario 1's single-rank case when
// tr.Size() == 1 (every tree is local).
func NewForest[P any](conn *Connectivity, tr transport.Transport) *Forest[P] {
	f := &Forest[P]{
		Conn:     conn,
		payloads: newPayloadPool[P](),
		tr:       tr,
	}

	f.trees = make([]*Tree[P], conn.NumTrees)
	for i := range f.trees {
		f.trees[i] = NewTree[P](f.payloads)
	}

	f.firstLocalTree, f.lastLocalTree = localTreeRange(conn.NumTrees, tr.Rank(), tr.Size())

	ctx := context.Background()
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		f.trees[i].InitRoot(ctx)
	}

	f.Partition = computeFirstPosition(f, tr)
	return f
}

func localTreeRange(numTrees int32, rank, size int) (first, last int32) {
	if numTrees == 0 || size == 0 {
		return noLocalTree, noLocalTreeLast
	}
	per := numTrees / int32(size)
	rem := numTrees % int32(size)

	start := int32(rank) * per
	if int32(rank) < rem {
		start += int32(rank)
	} else {
		start += rem
	}
	count := per
	if int32(rank) < rem {
		count++
	}
	if count == 0 {
		return noLocalTree, noLocalTreeLast
	}
	return start, start + count - 1
}

// FirstLocalTree and LastLocalTree report this rank's owned tree range;
// FirstLocalTree > LastLocalTree (noLocalTree/noLocalTreeLast) means this
// rank owns no trees.
func (f *Forest[P]) FirstLocalTree() int32 { return f.firstLocalTree }
func (f *Forest[P]) LastLocalTree() int32  { return f.lastLocalTree }

// Tree returns the local leaf sequence container for connectivity tree i.
func (f *Forest[P]) Tree(i int32) *Tree[P] { return f.trees[i] }

// Leaves iterates every locally owned tree, yielding (treeID, leaf) for
// each sorted leaf in turn — the read interface the VTK writer consumes
// (§6 "only the read interface ... is part of the core contract").
func (f *Forest[P]) Leaves() iter.Seq2[int32, Quadrant] {
	return func(yield func(int32, Quadrant) bool) {
		for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
			for _, q := range f.trees[i].Leaves() {
				if !yield(i, q) {
					return
				}
			}
		}
	}
}

// NumTrees returns the connectivity's tree count.
func (f *Forest[P]) NumTrees() int32 { return f.Conn.NumTrees }

// LocalNumQuadrants sums leaf counts across every locally-owned tree.
func (f *Forest[P]) LocalNumQuadrants() int64 {
	var n int64
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		n += int64(f.trees[i].Len())
	}
	return n
}

// Refine replaces every local leaf satisfying keep with its four
// children, repeated once (a single refinement pass), then re-sorts each
// affected tree. This is the "refinement/coarsening
// operations create interval completions" driver §2's data-flow
// paragraph names but leaves to the host application (§2, §4.E/G).
func (f *Forest[P]) Refine(keep func(treeID int32, q Quadrant) bool) {
	ctx := context.Background()
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		tree := f.trees[i]
		leaves := tree.Leaves()
		out := make([]Quadrant, 0, len(leaves))

		for _, q := range leaves {
			if q.Level < MaxLevel && keep(i, q) {
				for _, c := range Children(q) {
					c.payloadIdx = f.payloads.Alloc(ctx)
					out = append(out, c)
				}
				f.payloads.Free(ctx, q.payloadIdx)
				continue
			}
			out = append(out, q)
		}

		sortQuadrants(out)
		tree.Replace(out)
	}
}

// Coarsen replaces every local family (four sibling leaves) for which
// merge returns true with their common parent, freeing the children's
// payloads and allocating one fresh payload for the parent (§4.A
// IsFamily, the inverse of Refine).
func (f *Forest[P]) Coarsen(merge func(treeID int32, q0, q1, q2, q3 Quadrant) bool) {
	ctx := context.Background()
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		tree := f.trees[i]
		leaves := tree.Leaves()
		out := make([]Quadrant, 0, len(leaves))

		j := 0
		for j < len(leaves) {
			if j+3 < len(leaves) && IsFamily(leaves[j], leaves[j+1], leaves[j+2], leaves[j+3]) &&
				merge(i, leaves[j], leaves[j+1], leaves[j+2], leaves[j+3]) {
				parent := Parent(leaves[j])
				for k := 0; k < 4; k++ {
					f.payloads.Free(ctx, leaves[j+k].payloadIdx)
				}
				parent.payloadIdx = f.payloads.Alloc(ctx)
				out = append(out, parent)
				j += 4
				continue
			}
			out = append(out, leaves[j])
			j++
		}

		tree.Replace(out)
	}
}

// BalanceForest exchanges ghost layers across every locally-owned tree's
// face (and, in BalanceFaceCorner mode, corner) neighbors — pulling in
// near-boundary leaves from adjacent trees, whichever rank owns them —
// then runs BalanceSubtree over every locally-owned tree, returning the
// summed rejection counters. The ghost exchange is what makes 2:1 balance
// hold across a tree boundary rather than only within each tree in
// isolation (§2's "Data flow" paragraph, §4.H).
func (f *Forest[P]) BalanceForest(mode BalanceMode) BalanceStats {
	f.exchangeGhosts(mode)

	var total BalanceStats
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		s := BalanceSubtree(f.trees[i], mode)
		total.OutsideRoot += s.OutsideRoot
		total.OutsideTree += s.OutsideTree
	}
	return total
}

// Checksum folds every local leaf's FNV-1a hash (of tree, x, y, level)
// with XOR (an order-independent combinator, so the result does not
// depend on how leaves, or the leaves of one tree, are split across
// ranks), then Allreduces the result with XOR so every rank agrees on one
// forest-wide value (§8 "checksum(before) == checksum(after)").
func (f *Forest[P]) Checksum() uint64 {
	var local uint64
	for i := f.firstLocalTree; i <= f.lastLocalTree; i++ {
		for _, q := range f.trees[i].Leaves() {
			local ^= Checksum(i, []Quadrant{q})
		}
	}

	send := uint64ToBytes(local)
	result := f.tr.Allreduce(send, xorOp)
	return bytesToUint64(result)
}

func xorOp(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
