// SPDX-License-Identifier: MIT

package forest

import "context"

// Linearize removes ancestors subsumed by a following descendant from a
// sorted sequence, keeping sort order (§4.G). Subsumed entries' payloads
// are released through payloads so pool accounting stays balanced.
//
// Two-cursor pass: when the read element equals or is an ancestor of its
// successor, drop the write position's element (releasing its payload)
// and overwrite with the successor; otherwise advance the write cursor.
func Linearize[P any](s []Quadrant, payloads *payloadPool[P]) []Quadrant {
	if len(s) == 0 {
		return s
	}

	ctx := context.Background()
	write := 0
	for read := 1; read < len(s); read++ {
		if IsEqual(s[write], s[read]) || IsAncestor(s[write], s[read]) {
			payloads.Free(ctx, s[write].payloadIdx)
			s[write] = s[read]
			continue
		}
		write++
		s[write] = s[read]
	}

	return s[:write+1]
}
