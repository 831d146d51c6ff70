// SPDX-License-Identifier: MIT

package forest

import "testing"

func TestChildrenRoundTripThroughParent(t *testing.T) {
	q := Quadrant{X: 0, Y: 0, Level: 2}
	kids := Children(q)
	for i, c := range kids {
		if !IsEqual(Parent(c), q) {
			t.Fatalf("Parent(children[%d]) = %+v, want %+v", i, Parent(c), q)
		}
	}
	if !IsFamily(kids[0], kids[1], kids[2], kids[3]) {
		t.Fatalf("children of %+v are not reported as a family", q)
	}
}

func TestLinearIDRoundTrip(t *testing.T) {
	for level := int8(0); level <= 10; level++ {
		q := SetMorton(level, 0x2A)
		id := LinearID(q, level)
		back := SetMorton(level, id)
		if !IsEqual(q, back) {
			t.Fatalf("level %d: round trip mismatch: %+v != %+v", level, q, back)
		}
	}
}

func TestTransformIsInvertible(t *testing.T) {
	q := Quadrant{X: H(3), Y: 2 * H(3), Level: 3}
	for tform := 0; tform < 8; tform++ {
		got := Transform(Transform(q, tform), InverseTransform(tform))
		if !IsEqual(got, q) {
			t.Fatalf("transform %d not invertible: got %+v want %+v", tform, got, q)
		}
	}
}

func TestNearestCommonAncestorContainsBoth(t *testing.T) {
	a := Quadrant{X: 0, Y: 0, Level: 5}
	b := Quadrant{X: H(5), Y: 0, Level: 5}
	nca := NearestCommonAncestor(a, b)

	if !(IsAncestor(nca, a) || IsEqual(nca, a)) {
		t.Fatalf("nca %+v does not contain a %+v", nca, a)
	}
	if !(IsAncestor(nca, b) || IsEqual(nca, b)) {
		t.Fatalf("nca %+v does not contain b %+v", nca, b)
	}

	child := Children(nca)
	for _, c := range child {
		containsA := IsAncestor(c, a) || IsEqual(c, a)
		containsB := IsAncestor(c, b) || IsEqual(c, b)
		if containsA && containsB {
			t.Fatalf("a finer quadrant %+v than nca still contains both", c)
		}
	}
}

func TestCompareIsATotalOrderOnSiblings(t *testing.T) {
	p := Quadrant{X: 0, Y: 0, Level: 1}
	kids := Children(p)
	for i := 0; i < len(kids); i++ {
		for j := i + 1; j < len(kids); j++ {
			if Compare(kids[i], kids[j]) >= 0 {
				t.Fatalf("children out of order: %+v should sort before %+v", kids[i], kids[j])
			}
		}
	}
}

func TestIsNextAcrossSiblingBoundary(t *testing.T) {
	p := Quadrant{X: 0, Y: 0, Level: 1}
	kids := Children(p)
	// canonical z-order: (0,0),(1,0),(0,1),(1,1); successive siblings
	// must be Morton-adjacent.
	for i := 0; i < 3; i++ {
		if !IsNext(kids[i], kids[i+1]) {
			t.Fatalf("kids[%d]=%+v is not immediately followed by kids[%d]=%+v", i, kids[i], i+1, kids[i+1])
		}
	}
}

func TestSlowPredicatesAgreeWithFast(t *testing.T) {
	p := Quadrant{X: 0, Y: 0, Level: 3}
	kids := Children(p)

	for i := range kids {
		for j := range kids {
			if i == j {
				continue
			}
			if IsSibling(kids[i], kids[j]) != isSiblingSlow(kids[i], kids[j]) {
				t.Fatalf("IsSibling disagreement on %+v, %+v", kids[i], kids[j])
			}
		}
	}

	a := Quadrant{X: 0, Y: 0, Level: 5}
	b := Quadrant{X: H(5), Y: 0, Level: 5}
	if !IsEqual(NearestCommonAncestor(a, b), nearestCommonAncestorSlow(a, b)) {
		t.Fatalf("NearestCommonAncestor disagrees with slow reference: fast=%+v slow=%+v",
			NearestCommonAncestor(a, b), nearestCommonAncestorSlow(a, b))
	}

	if IsAncestor(p, kids[0]) != isAncestorSlow(p, kids[0]) {
		t.Fatalf("IsAncestor disagreement on %+v, %+v", p, kids[0])
	}

	if IsNext(kids[0], kids[1]) != isNextSlow(kids[0], kids[1]) {
		t.Fatalf("IsNext disagreement on %+v, %+v", kids[0], kids[1])
	}
}

func TestChildIDMatchesCorner(t *testing.T) {
	p := Quadrant{X: 0, Y: 0, Level: 1}
	kids := Children(p)
	for id, c := range kids {
		if childID(c) != id {
			t.Fatalf("childID(kids[%d]) = %d, want %d", id, childID(c), id)
		}
	}
}
