// SPDX-License-Identifier: MIT

package vtkio_test

import (
	"strings"
	"testing"

	"github.com/quadforest/forest"
	"github.com/quadforest/forest/transport"
	"github.com/quadforest/forest/vtkio"
)

func singleTreeConn() *forest.Connectivity {
	return &forest.Connectivity{
		NumTrees:           1,
		NumVertices:        4,
		TreeToVertex:       []int32{0, 1, 3, 2},
		TreeToTree:         []int32{0, 0, 0, 0},
		TreeToFace:         []int8{0, 1, 2, 3},
		Vertices:           []float64{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0},
		VertexToTreeOffset: []int32{0, 1, 2, 3, 4},
		VertexToTree:       []int32{0, 0, 0, 0},
	}
}

func TestWriteProducesOneQuadPerRoot(t *testing.T) {
	conn := singleTreeConn()
	w := transport.NewWorld(1).Rank(0)
	f := forest.NewForest[struct{}](conn, w)

	var sb strings.Builder
	err := vtkio.Write(&sb, func(yield func(vtkio.Leaf) bool) {
		for treeID, q := range f.Leaves() {
			corners := vtkio.PhysicalCorners(conn, treeID, q)
			if !yield(vtkio.Leaf{Corners: corners}) {
				return
			}
		}
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := sb.String()
	if !strings.Contains(out, "DATASET UNSTRUCTURED_GRID") {
		t.Fatalf("missing dataset header: %s", out)
	}
	if !strings.Contains(out, "CELLS 1 5") {
		t.Fatalf("want exactly one cell, got: %s", out)
	}
	if !strings.Contains(out, "CELL_TYPES 1") {
		t.Fatalf("want exactly one cell type, got: %s", out)
	}
}

func TestPhysicalCornersMatchUnitSquare(t *testing.T) {
	conn := singleTreeConn()
	root := forest.Quadrant{}
	corners := vtkio.PhysicalCorners(conn, 0, root)

	want := [4][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
	for i := range want {
		for d := 0; d < 3; d++ {
			if diff := corners[i][d] - want[i][d]; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("corner %d = %v, want %v", i, corners[i], want[i])
			}
		}
	}
}
