// SPDX-License-Identifier: MIT

// Package vtkio writes an already-valid forest as a legacy VTK
// unstructured grid (§6: "receives an already-valid forest and writes a
// legacy unstructured grid; only the read interface ... is part of the
// core contract"). It depends on the forest package only through its
// exported Quadrant/Connectivity types and Leaves iterator, never on
// forest internals.
package vtkio

import (
	"bufio"
	"fmt"
	"io"

	"github.com/quadforest/forest"
)

// Leaf is one quadrant to emit, with its corner point coordinates already
// resolved into physical (x, y, z) space.
type Leaf struct {
	Corners [4][3]float64
}

// Write emits a legacy VTK unstructured grid (file version 2.0,
// VTK_QUAD cell type 9) for every leaf yielded by leaves, in the order
// produced.
func Write(w io.Writer, leaves func(yield func(Leaf) bool)) error {
	var cells []Leaf
	leaves(func(l Leaf) bool {
		cells = append(cells, l)
		return true
	})

	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# vtk DataFile Version 2.0")
	fmt.Fprintln(bw, "quadforest output")
	fmt.Fprintln(bw, "ASCII")
	fmt.Fprintln(bw, "DATASET UNSTRUCTURED_GRID")

	fmt.Fprintf(bw, "POINTS %d double\n", 4*len(cells))
	for _, c := range cells {
		for _, p := range c.Corners {
			fmt.Fprintf(bw, "%g %g %g\n", p[0], p[1], p[2])
		}
	}

	fmt.Fprintf(bw, "CELLS %d %d\n", len(cells), 5*len(cells))
	for i := range cells {
		base := 4 * i
		fmt.Fprintf(bw, "4 %d %d %d %d\n", base, base+1, base+2, base+3)
	}

	fmt.Fprintf(bw, "CELL_TYPES %d\n", len(cells))
	for range cells {
		fmt.Fprintln(bw, "9")
	}

	return bw.Flush()
}

// QuadrantCorners resolves q's four corners, counter-clockwise from its
// origin ((x,y), (x+h,y), (x+h,y+h), (x,y+h), the VTK_QUAD vertex
// order), into tree-local unit-square coordinates, for a caller to further map through
// the connectivity's vertex positions into physical space.
func QuadrantCorners(q forest.Quadrant) [4][2]int32 {
	h := forest.H(q.Level)
	return [4][2]int32{
		{q.X, q.Y},
		{q.X + h, q.Y},
		{q.X + h, q.Y + h},
		{q.X, q.Y + h},
	}
}

// PhysicalCorners bilinearly interpolates q's four corners through
// treeID's vertex positions (conn.TreeToVertex, z-order), the mapping
// from a tree's dyadic unit square into the physical mesh §6's VTK
// writer is expected to emit.
func PhysicalCorners(conn *forest.Connectivity, treeID int32, q forest.Quadrant) [4][3]float64 {
	unit := QuadrantCorners(q)
	var v [4][3]float64
	for zc := 0; zc < 4; zc++ {
		vid := conn.TreeToVertex[4*treeID+int32(zc)]
		v[zc] = [3]float64{
			conn.Vertices[3*vid+0],
			conn.Vertices[3*vid+1],
			conn.Vertices[3*vid+2],
		}
	}

	var out [4][3]float64
	for i, u := range unit {
		s := float64(u[0]) / float64(forest.Root)
		t := float64(u[1]) / float64(forest.Root)
		for d := 0; d < 3; d++ {
			// bilinear blend of the tree's four z-order corner
			// vertices by the quadrant corner's unit-square position.
			out[i][d] = (1-s)*(1-t)*v[0][d] + s*(1-t)*v[1][d] + (1-s)*t*v[2][d] + s*t*v[3][d]
		}
	}
	return out
}
