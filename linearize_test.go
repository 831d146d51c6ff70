// SPDX-License-Identifier: MIT

package forest

import (
	"context"
	"testing"
)

func TestLinearizeDropsSubsumedAncestor(t *testing.T) {
	pool := newPayloadPool[int]()
	ctx := context.Background()

	parent := Quadrant{X: 0, Y: 0, Level: 0}
	parent.payloadIdx = pool.Alloc(ctx)
	child := Quadrant{X: 0, Y: 0, Level: 1}
	child.payloadIdx = pool.Alloc(ctx)

	s := []Quadrant{parent, child}
	out := Linearize(s, pool)

	if len(out) != 1 || !IsEqual(out[0], child) {
		t.Fatalf("got %+v, want single child leaf", out)
	}
	if alloc, freed := pool.Stats(); alloc-freed != 1 {
		t.Fatalf("pool imbalance after linearize: alloc=%d freed=%d", alloc, freed)
	}
}

func TestLinearizeIsIdempotentOnLinearInput(t *testing.T) {
	pool := newPayloadPool[int]()
	s := []Quadrant{
		{X: 0, Y: 0, Level: 2},
		{X: H(2), Y: 0, Level: 2},
	}
	out := Linearize(append([]Quadrant(nil), s...), pool)
	if len(out) != len(s) {
		t.Fatalf("linear input should be unchanged: got %+v", out)
	}
}
