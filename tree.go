// SPDX-License-Identifier: MIT

package forest

import (
	"context"
	"sort"
)

// Tree owns the ordered, sorted sequence of quadrants (leaves) that live
// in one connectivity tree on this process, plus the per-level counters
// §3 requires stay consistent with that sequence.
type Tree[P any] struct {
	leaves   []Quadrant
	payloads *payloadPool[P]

	count    [MaxLevel + 1]int32
	maxlevel int8
}

// NewTree returns an empty tree backed by the given payload pool (shared
// across all trees in a forest, since payload slot indices are only
// meaningful relative to the pool that allocated them).
func NewTree[P any](payloads *payloadPool[P]) *Tree[P] {
	return &Tree[P]{payloads: payloads}
}

// Leaves returns the tree's current leaf sequence, in sort order. The
// returned slice aliases internal storage; callers that mutate it
// directly must call restoreCounters afterward (§4.B/C).
func (t *Tree[P]) Leaves() []Quadrant { return t.leaves }

// Len returns the number of leaves in the tree.
func (t *Tree[P]) Len() int { return len(t.leaves) }

// MaxLevel returns the finest level present among the tree's leaves.
func (t *Tree[P]) MaxLevel() int8 { return t.maxlevel }

// CountAt returns the number of leaves at the given level.
func (t *Tree[P]) CountAt(level int8) int32 { return t.count[level] }

// Payload returns the user payload attached to the leaf at position i.
func (t *Tree[P]) Payload(i int) P {
	return t.payloads.Get(t.leaves[i].payloadIdx)
}

// SetPayload overwrites the user payload attached to the leaf at
// position i.
func (t *Tree[P]) SetPayload(i int, v P) {
	t.payloads.Set(t.leaves[i].payloadIdx, v)
}

// InitRoot resets the tree to a single root leaf at level 0, allocating
// a fresh payload slot for it. Used by Forest.NewForest to seed one root
// per local tree (§8 scenario 1).
func (t *Tree[P]) InitRoot(ctx context.Context) {
	idx := t.payloads.Alloc(ctx)
	t.leaves = []Quadrant{{X: 0, Y: 0, Level: 0, payloadIdx: idx}}
	t.restoreCounters()
}

// Replace overwrites the tree's leaf sequence wholesale (used after
// completion/balance/linearization produce a new sequence) and
// recomputes count[]/maxlevel from it.
func (t *Tree[P]) Replace(leaves []Quadrant) {
	t.leaves = leaves
	t.restoreCounters()
}

// restoreCounters recomputes count[] and maxlevel from the current leaf
// sequence; callers that resize raw storage directly must call this
// before re-entering public operations (§4.B/C).
func (t *Tree[P]) restoreCounters() {
	for i := range t.count {
		t.count[i] = 0
	}
	t.maxlevel = 0
	for _, q := range t.leaves {
		t.count[q.Level]++
		if q.Level > t.maxlevel {
			t.maxlevel = q.Level
		}
	}
}

// FreePayloads releases every given leaf's payload slot back to the
// pool, without touching the leaf sequence itself, so that discarding a
// run of leaves keeps payload accounting balanced (§3 "Payloads follow their owning quadrants and MUST
// be released exactly once").
func (t *Tree[P]) FreePayloads(ctx context.Context, leaves []Quadrant) {
	for _, q := range leaves {
		t.payloads.Free(ctx, q.payloadIdx)
	}
}

// indexOf returns the position of q in the sorted leaf sequence, or -1.
func (t *Tree[P]) indexOf(q Quadrant) int {
	i := sort.Search(len(t.leaves), func(i int) bool {
		return Compare(t.leaves[i], q) >= 0
	})
	if i < len(t.leaves) && IsEqual(t.leaves[i], q) {
		return i
	}
	return -1
}
