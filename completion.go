// SPDX-License-Identifier: MIT

package forest

// CompleteRegion produces the minimal linear sequence of quadrants whose
// union of point-sets equals (q1, q2), with endpoints included per the
// include flags (§4.E). Requires q1 < q2 under Compare.
//
// Algorithm: emit q1 if requested; push the four children of
// NCA(q1, q2) onto a worklist; for each popped quadrant w, if
// q1 < w < q2 and w is not an ancestor of q2, emit w; else if w is a
// strict ancestor of q1 or q2, push its children; otherwise discard.
// Emit q2 if requested.
func CompleteRegion(q1, q2 Quadrant, includeQ1, includeQ2 bool) []Quadrant {
	var out []Quadrant

	if includeQ1 {
		out = append(out, q1)
	}

	nca := NearestCommonAncestor(q1, q2)
	work := make([]Quadrant, 0, 4)
	ncaKids := Children(nca)
	work = append(work, ncaKids[:]...)

	for len(work) > 0 {
		w := work[len(work)-1]
		work = work[:len(work)-1]

		if Compare(q1, w) < 0 && Compare(w, q2) < 0 && !IsAncestor(w, q2) {
			out = append(out, w)
			continue
		}

		if IsAncestor(w, q1) || IsAncestor(w, q2) {
			kids := Children(w)
			work = append(work, kids[:]...)
		}
		// otherwise: w lies entirely outside (q1, q2) — discard.
	}

	sortQuadrants(out)

	if includeQ2 {
		out = append(out, q2)
	}

	return out
}

// CompleteSubtree fills the gap between every consecutive pair of a
// sorted, linear input with CompleteRegion, keeping every input
// quadrant. It yields a complete linear sequence covering
// [first(in), last(in)].
func CompleteSubtree(in []Quadrant) []Quadrant {
	if len(in) == 0 {
		return nil
	}
	out := []Quadrant{in[0]}
	for i := 0; i+1 < len(in); i++ {
		out = append(out, CompleteRegion(in[i], in[i+1], false, true)...)
	}
	return out
}

// mergeSortedUnique merges two already-sorted quadrant slices, dropping
// duplicates, preserving sort order.
func mergeSortedUnique(a, b []Quadrant) []Quadrant {
	out := make([]Quadrant, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch c := Compare(a[i], b[j]); {
		case c < 0:
			out = append(out, a[i])
			i++
		case c > 0:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// sortQuadrants sorts s in place under Compare. Completion's worklist
// emits quadrants out of order (LIFO descent order, not Morton order);
// every caller re-sorts before returning.
func sortQuadrants(s []Quadrant) {
	// insertion sort: completion worklists are small (bounded by
	// O(level difference)), so this avoids pulling in sort.Slice's
	// reflection overhead for the common case.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && Compare(s[j-1], s[j]) > 0; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
