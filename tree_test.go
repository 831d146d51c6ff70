// SPDX-License-Identifier: MIT

package forest

import (
	"context"
	"testing"
)

func TestTreeInitRootSeedsSingleLeaf(t *testing.T) {
	pool := newPayloadPool[int]()
	tr := NewTree[int](pool)
	tr.InitRoot(context.Background())

	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}
	if tr.MaxLevel() != 0 {
		t.Fatalf("MaxLevel() = %d, want 0", tr.MaxLevel())
	}
	if tr.CountAt(0) != 1 {
		t.Fatalf("CountAt(0) = %d, want 1", tr.CountAt(0))
	}
}

func TestTreeReplaceRecomputesCounters(t *testing.T) {
	pool := newPayloadPool[int]()
	tr := NewTree[int](pool)
	ctx := context.Background()

	leaves := make([]Quadrant, 0, 4)
	for _, c := range Children(Quadrant{X: 0, Y: 0, Level: 0}) {
		c.payloadIdx = pool.Alloc(ctx)
		leaves = append(leaves, c)
	}
	tr.Replace(leaves)

	if tr.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", tr.Len())
	}
	if tr.MaxLevel() != 1 {
		t.Fatalf("MaxLevel() = %d, want 1", tr.MaxLevel())
	}
	if tr.CountAt(1) != 4 {
		t.Fatalf("CountAt(1) = %d, want 4", tr.CountAt(1))
	}
}

func TestTreePayloadAccessors(t *testing.T) {
	pool := newPayloadPool[string]()
	tr := NewTree[string](pool)
	ctx := context.Background()

	q := Quadrant{X: 0, Y: 0, Level: 0}
	q.payloadIdx = pool.Alloc(ctx)
	tr.Replace([]Quadrant{q})

	tr.SetPayload(0, "hello")
	if tr.Payload(0) != "hello" {
		t.Fatalf("Payload(0) = %q, want hello", tr.Payload(0))
	}
}
