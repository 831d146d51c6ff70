// SPDX-License-Identifier: MIT

package forest

import (
	"bytes"
	"context"
	"encoding/gob"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/quadforest/forest/internal/payload"
)

// poolMeter is the shared OTel meter for allocator resource-discipline
// metrics (§5 "Every allocator tracks alloc_count - free_count; at
// finalize the counts must balance"), instrumented the way
// junjiewwang-perf-analysis instruments its own request paths.
var poolMeter = otel.Meter("github.com/quadforest/forest")

// payloadPool is a fixed-stride arena for per-leaf user data of type P,
// addressed by stable int32 indices rather than pointers, per §9's
// "arena-with-indices (stable indices, contiguous storage) so cross-list
// pointers ... are indices, not raw references". When P is a zero-sized
// type the pool allocates nothing (§3 "when positive, per-leaf payload
// pools are active").
type payloadPool[P any] struct {
	slots []P
	live  *bitset.BitSet // which slots are currently allocated
	free  []int32        // freelist of released slot indices

	isZST bool

	allocCount atomic.Int64
	freeCount  atomic.Int64
	liveGauge  metric.Int64UpDownCounter
}

func newPayloadPool[P any]() *payloadPool[P] {
	liveGauge, _ := poolMeter.Int64UpDownCounter(
		"forest.payload_pool.live",
		metric.WithDescription("payload slots currently allocated (alloc_count - free_count)"),
	)
	return &payloadPool[P]{
		live:      bitset.New(0),
		isZST:     payload.IsZST[P](),
		liveGauge: liveGauge,
	}
}

// Alloc reserves a fresh payload slot and returns its stable index.
// Returns -1 when P is a zero-sized type, since there is nothing to
// store and no index is meaningful.
func (p *payloadPool[P]) Alloc(ctx context.Context) int32 {
	if p.isZST {
		return -1
	}

	p.allocCount.Add(1)
	if p.liveGauge != nil {
		p.liveGauge.Add(ctx, 1)
	}

	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		p.live.Set(uint(idx))
		return idx
	}

	idx := int32(len(p.slots))
	p.slots = append(p.slots, *new(P))
	if p.live.Len() <= uint(idx) {
		p.live.Set(uint(idx))
	}
	return idx
}

// Free releases the payload slot at idx, making it available for reuse.
// A no-op when P is a zero-sized type (Alloc never returned a real
// index) so callers need not special-case it.
func (p *payloadPool[P]) Free(ctx context.Context, idx int32) {
	if p.isZST || idx < 0 {
		return
	}
	if !p.live.Test(uint(idx)) {
		return
	}
	p.live.Clear(uint(idx))
	p.slots[idx] = *new(P)
	p.free = append(p.free, idx)

	p.freeCount.Add(1)
	if p.liveGauge != nil {
		p.liveGauge.Add(ctx, -1)
	}
}

// Get returns the payload stored at idx.
func (p *payloadPool[P]) Get(idx int32) P {
	if idx < 0 || int(idx) >= len(p.slots) {
		var zero P
		return zero
	}
	return p.slots[idx]
}

// Set overwrites the payload stored at idx.
func (p *payloadPool[P]) Set(idx int32, v P) {
	if idx < 0 || int(idx) >= len(p.slots) {
		return
	}
	p.slots[idx] = v
}

// Balanced reports whether allocations and frees balance, the invariant
// §5 requires holding "at finalize" ("every allocator tracks
// alloc_count - free_count; at finalize the counts must balance" means
// every outstanding allocation must have been explicitly freed or still
// be referenced by a live quadrant — callers assert this against their
// own live-quadrant count, not zero).
func (p *payloadPool[P]) Balanced(expectedLive int64) bool {
	return p.allocCount.Load()-p.freeCount.Load() == expectedLive
}

// Stats returns (allocated, freed) totals for diagnostics.
func (p *payloadPool[P]) Stats() (allocated, freed int64) {
	return p.allocCount.Load(), p.freeCount.Load()
}

// MarshalSlot gob-encodes the payload at idx for shipping on the wire
// (§4.J). §4.J's reference algorithm assumes a fixed-size data_size
// record laid out by memcpy; since a Go payload type P is not
// necessarily of fixed size (it may itself contain slices or strings),
// this repo instead ships each record length-prefixed (see
// repartition.go), with gob chosen as the encoding because it already
// covers the pack's own wire-format needs (see noctilu-quadtree/DESIGN.md
// entries) without hand-rolling a binary codec.
func (p *payloadPool[P]) MarshalSlot(idx int32) ([]byte, error) {
	if p.isZST || idx < 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p.slots[idx]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AllocFromBytes allocates a fresh slot and gob-decodes data into it.
func (p *payloadPool[P]) AllocFromBytes(ctx context.Context, data []byte) (int32, error) {
	idx := p.Alloc(ctx)
	if p.isZST || len(data) == 0 {
		return idx, nil
	}
	var v P
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return idx, err
	}
	p.slots[idx] = v
	return idx, nil
}
