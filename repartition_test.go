// SPDX-License-Identifier: MIT

package forest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadforest/forest/transport"
)

func singleTreeConnForRepartition() *Connectivity {
	return &Connectivity{
		NumTrees:           1,
		NumVertices:        4,
		TreeToVertex:       []int32{0, 1, 2, 3},
		TreeToTree:         []int32{0, 0, 0, 0},
		TreeToFace:         []int8{0, 1, 2, 3},
		Vertices:           make([]float64, 12),
		VertexToTreeOffset: []int32{0, 1, 2, 3, 4},
		VertexToTree:       []int32{0, 0, 0, 0},
	}
}

// TestPartitionGivenMovesLeavesToTargetCounts runs a genuine two-rank
// partition_given exchange over the in-process transport: rank 0 starts
// owning all four refined leaves of the single tree, rank 1 owns none;
// partition_given(2,2) should leave each rank with exactly two leaves
// and an unchanged global checksum.
func TestPartitionGivenMovesLeavesToTargetCounts(t *testing.T) {
	world := transport.NewWorld(2)
	conn := singleTreeConnForRepartition()

	results := make([]int64, 2)
	checksums := make([]uint64, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	for rank := 0; rank < 2; rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			tr := world.Rank(rank)
			f := NewForest[int](conn, tr)

			if rank == 0 {
				f.Refine(func(treeID int32, q Quadrant) bool { return true })
			}

			before := f.Checksum()

			shipped := PartitionGiven(f, tr, []int64{2, 2})
			results[rank] = shipped

			assert.Equalf(t, int64(2), f.LocalNumQuadrants(), "rank %d LocalNumQuadrants()", rank)

			checksums[rank] = f.Checksum()
			assert.Equalf(t, before, checksums[rank], "rank %d checksum changed across partition_given", rank)
		}()
	}

	wg.Wait()

	require.Equal(t, checksums[0], checksums[1], "ranks disagree on post-partition checksum")
}

// TestPartitionGivenIdentityIsNoopTransfer repartitions onto the exact
// counts the forest already has: no quadrant should change owning rank.
func TestPartitionGivenIdentityIsNoopTransfer(t *testing.T) {
	world := transport.NewWorld(2)
	conn := singleTreeConnForRepartition()

	shipped := make([]int64, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	for rank := 0; rank < 2; rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			tr := world.Rank(rank)
			f := NewForest[int](conn, tr)

			if rank == 0 {
				f.Refine(func(treeID int32, q Quadrant) bool { return true })
			}

			counts := tr.Allgather(uint64ToBytes(uint64(f.LocalNumQuadrants())))
			newCount := make([]int64, 2)
			for p := range newCount {
				newCount[p] = int64(bytesToUint64(counts[p]))
			}

			shipped[rank] = PartitionGiven(f, tr, newCount)
		}()
	}

	wg.Wait()

	require.Zero(t, shipped[0], "rank 0 identity repartition should ship nothing")
	require.Zero(t, shipped[1], "rank 1 identity repartition should ship nothing")
}
