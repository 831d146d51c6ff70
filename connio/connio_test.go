// SPDX-License-Identifier: MIT

package connio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// lShapeFixture is the three-tree L-shape connectivity named in §8
// scenario 1 and scenario 6, with the minimal sections the core consumes.
const lShapeFixture = `
[Forest Info]
Nk 3
Nv 7
Nve 11

[Coordinates of Element Vertices]
0.0 0.0 0.0
1.0 0.0 0.0
2.0 0.0 0.0
0.0 1.0 0.0
1.0 1.0 0.0
2.0 1.0 0.0
1.0 2.0 0.0

[Element to Vertex]
1 2 5 4
2 3 6 5
4 5 7 7

[Element to Element]
1 2 1 1
1 3 2 2
2 3 3 3

[Element to Face]
0 0 0 0
0 0 0 0
0 0 0 0

[Vertex to Element]
1 1
2 1 2
1 2
2 1 3
3 1 2 3
1 2
1 3
`

func TestParseLShape(t *testing.T) {
	conn, err := Parse(strings.NewReader(lShapeFixture))
	require.NoError(t, err)
	require.EqualValues(t, 3, conn.NumTrees)
	require.EqualValues(t, 7, conn.NumVertices)
	require.Len(t, conn.Vertices, 21)

	// tree 0's user-order vertex list [1 2 5 4] (1-based) becomes
	// zero-based [0 1 4 3], permuted into z-order via cornerToZOrder.
	want := [4]int32{0, 1, 3, 4}
	var got [4]int32
	for zc := 0; zc < 4; zc++ {
		got[zc] = conn.TreeToVertex[4*0+zc]
	}
	require.Equal(t, want, got)
}

func TestParseMissingForestInfo(t *testing.T) {
	_, err := Parse(strings.NewReader("[Coordinates of Element Vertices]\n0 0 0\n"))
	require.Error(t, err)
}

func TestParseCommentsAndBlankLinesIgnored(t *testing.T) {
	src := "# a leading comment\n" + lShapeFixture
	_, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
}
