// SPDX-License-Identifier: MIT

package forest

import (
	"context"
	"testing"
)

func TestPayloadPoolAllocFreeBalance(t *testing.T) {
	ctx := context.Background()
	pool := newPayloadPool[string]()

	a := pool.Alloc(ctx)
	b := pool.Alloc(ctx)
	pool.Set(a, "alpha")
	pool.Set(b, "beta")

	if pool.Get(a) != "alpha" || pool.Get(b) != "beta" {
		t.Fatalf("got %q, %q", pool.Get(a), pool.Get(b))
	}

	pool.Free(ctx, a)
	if !pool.Balanced(1) {
		alloc, freed := pool.Stats()
		t.Fatalf("pool not balanced: alloc=%d freed=%d", alloc, freed)
	}

	// freed slot is recycled by the next Alloc.
	c := pool.Alloc(ctx)
	if c != a {
		t.Fatalf("Alloc after Free did not recycle slot: got %d, want %d", c, a)
	}
}

func TestPayloadPoolZSTSkipsAllocation(t *testing.T) {
	ctx := context.Background()
	pool := newPayloadPool[struct{}]()

	idx := pool.Alloc(ctx)
	if idx != -1 {
		t.Fatalf("ZST Alloc returned %d, want -1", idx)
	}
	pool.Free(ctx, idx) // must be a safe no-op
	if alloc, freed := pool.Stats(); alloc != 0 || freed != 0 {
		t.Fatalf("ZST pool should never count: alloc=%d freed=%d", alloc, freed)
	}
}

func TestPayloadPoolMarshalRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := newPayloadPool[[2]int]()

	idx := pool.Alloc(ctx)
	pool.Set(idx, [2]int{3, 4})

	wire, err := pool.MarshalSlot(idx)
	if err != nil {
		t.Fatalf("MarshalSlot: %v", err)
	}

	newIdx, err := pool.AllocFromBytes(ctx, wire)
	if err != nil {
		t.Fatalf("AllocFromBytes: %v", err)
	}
	if got := pool.Get(newIdx); got != [2]int{3, 4} {
		t.Fatalf("got %v, want [3 4]", got)
	}
}
