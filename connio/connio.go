// SPDX-License-Identifier: MIT

// Package connio reads the bracketed connectivity text format (§6): a
// fixed sequence of sections describing the coarse mesh a forest is
// built over. Parsing is single-rank, then the caller Bcasts the raw
// bytes (§6 "read-only, single-rank, then broadcast").
package connio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/quadforest/forest"
)

var (
	// ErrMissingSection is returned when a required bracketed section
	// never appears before EOF.
	ErrMissingSection = errors.New("connio: missing required section")
	// ErrMalformedHeader is returned when [Forest Info] is missing a
	// required Nk/Nv/Nve key.
	ErrMalformedHeader = errors.New("connio: malformed forest info header")
	// ErrBadToken is returned when a numeric field fails to parse.
	ErrBadToken = errors.New("connio: unparsable numeric token")
)

// cornerToZOrder mirrors the package-internal permutation in the forest
// package (duplicated here since it is unexported there): element-to-vertex
// rows list four vertices in user corner order (0,0),(1,0),(1,1),(0,1),
// which must be written into TreeToVertex in canonical z-order
// (0,0),(1,0),(0,1),(1,1).
var cornerToZOrder = [4]int{0, 1, 3, 2}

// tokenizer strips '#'-to-end-of-line comments and splits on whitespace,
// while still recognizing bracketed section headers as whole-line
// tokens.
type tokenizer struct {
	sc     *bufio.Scanner
	line   []string
	lineAt int
	// pending holds a section header line that tokens ran into, so the
	// next nextSection call returns it instead of scanning past it.
	pending string
}

func newTokenizer(r io.Reader) *tokenizer {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	return &tokenizer{sc: sc}
}

// nextSection advances to and returns the next bracketed header's inner
// text (e.g. "Forest Info"), skipping any stray tokens between sections.
// It returns ("", false) at EOF.
func (t *tokenizer) nextSection() (string, bool) {
	if p := t.pending; p != "" {
		t.pending = ""
		if strings.HasSuffix(p, "]") {
			return strings.TrimSpace(p[1 : len(p)-1]), true
		}
	}
	for t.sc.Scan() {
		line := stripComment(t.sc.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			return strings.TrimSpace(line[1 : len(line)-1]), true
		}
	}
	return "", false
}

// tokens reads exactly n whitespace-delimited numeric tokens, spanning as
// many lines as needed, stopping before the next section header.
func (t *tokenizer) tokens(n int) ([]string, error) {
	out := make([]string, 0, n)
	for len(out) < n {
		if len(t.line) == 0 {
			if !t.sc.Scan() {
				return nil, fmt.Errorf("connio: unexpected EOF wanting %d more tokens", n-len(out))
			}
			line := stripComment(t.sc.Text())
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "[") {
				t.pending = trimmed
				return nil, fmt.Errorf("connio: section ended early, wanted %d more tokens", n-len(out))
			}
			t.line = strings.Fields(line)
			t.lineAt = 0
			continue
		}
		out = append(out, t.line[t.lineAt])
		t.lineAt++
		if t.lineAt >= len(t.line) {
			t.line = nil
		}
	}
	return out, nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

func parseInt(tok string) (int, error) {
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadToken, tok)
	}
	return v, nil
}

func parseFloat(tok string) (float64, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadToken, tok)
	}
	return v, nil
}

// header holds the counts declared in [Forest Info].
type header struct {
	numTrees, numVertices, numVTT int
	numElementTags                int
	numFaceTags                    int
	numCurvedFaces                 int
	numCurvedTypes                 int
}

// Parse reads a connectivity file from r and builds a *forest.Connectivity.
func Parse(r io.Reader) (*forest.Connectivity, error) {
	tz := newTokenizer(r)

	h, err := parseForestInfo(tz)
	if err != nil {
		return nil, err
	}

	conn := &forest.Connectivity{
		NumTrees:           int32(h.numTrees),
		NumVertices:        int32(h.numVertices),
		TreeToVertex:       make([]int32, 4*h.numTrees),
		TreeToTree:         make([]int32, 4*h.numTrees),
		TreeToFace:         make([]int8, 4*h.numTrees),
		Vertices:           make([]float64, 3*h.numVertices),
		VertexToTreeOffset: make([]int32, h.numVertices+1),
		VertexToTree:       make([]int32, h.numVTT),
	}

	for {
		name, ok := tz.nextSection()
		if !ok {
			break
		}
		if err := parseSection(tz, name, h, conn); err != nil {
			return nil, err
		}
	}

	return conn, nil
}

func parseForestInfo(tz *tokenizer) (header, error) {
	name, ok := tz.nextSection()
	if !ok || name != "Forest Info" {
		return header{}, fmt.Errorf("%w: [Forest Info] must be first, got %q", ErrMissingSection, name)
	}

	var h header
	dest := map[string]*int{
		"Nk":  &h.numTrees,
		"Nv":  &h.numVertices,
		"Nve": &h.numVTT,
		"Net": &h.numElementTags,
		"Nft": &h.numFaceTags,
		"Ncf": &h.numCurvedFaces,
		"Nct": &h.numCurvedTypes,
	}
	seen := map[string]bool{}

	for len(seen) < len(dest) {
		toks, err := tz.tokens(2)
		if err != nil {
			break
		}
		key := toks[0]
		dst, known := dest[key]
		if !known {
			return header{}, fmt.Errorf("%w: unknown key %q", ErrMalformedHeader, key)
		}
		v, err := parseInt(toks[1])
		if err != nil {
			return header{}, err
		}
		*dst = v
		seen[key] = true
	}

	if !seen["Nk"] || !seen["Nv"] || !seen["Nve"] {
		return header{}, fmt.Errorf("%w: Nk/Nv/Nve required", ErrMalformedHeader)
	}
	return h, nil
}

func parseSection(tz *tokenizer, name string, h header, conn *forest.Connectivity) error {
	switch name {
	case "Coordinates of Element Vertices":
		for v := 0; v < h.numVertices; v++ {
			toks, err := tz.tokens(3)
			if err != nil {
				return err
			}
			for k := 0; k < 3; k++ {
				f, err := parseFloat(toks[k])
				if err != nil {
					return err
				}
				conn.Vertices[3*v+k] = f
			}
		}
	case "Element to Vertex":
		for t := 0; t < h.numTrees; t++ {
			toks, err := tz.tokens(4)
			if err != nil {
				return err
			}
			for userCorner := 0; userCorner < 4; userCorner++ {
				v, err := parseInt(toks[userCorner])
				if err != nil {
					return err
				}
				zc := cornerToZOrder[userCorner]
				conn.TreeToVertex[4*t+zc] = int32(v - 1)
			}
		}
	case "Element to Element":
		for t := 0; t < h.numTrees; t++ {
			toks, err := tz.tokens(4)
			if err != nil {
				return err
			}
			for face := 0; face < 4; face++ {
				nt, err := parseInt(toks[face])
				if err != nil {
					return err
				}
				conn.TreeToTree[4*t+face] = int32(nt - 1)
			}
		}
	case "Element to Face":
		for t := 0; t < h.numTrees; t++ {
			toks, err := tz.tokens(4)
			if err != nil {
				return err
			}
			for face := 0; face < 4; face++ {
				raw, err := parseInt(toks[face])
				if err != nil {
					return err
				}
				conn.TreeToFace[4*t+face] = int8(raw)
			}
		}
	case "Vertex to Element":
		running := int32(0)
		for v := 0; v < h.numVertices; v++ {
			toks, err := tz.tokens(1)
			if err != nil {
				return err
			}
			count, err := parseInt(toks[0])
			if err != nil {
				return err
			}
			conn.VertexToTreeOffset[v] = running
			entries, err := tz.tokens(count)
			if err != nil {
				return err
			}
			for _, tok := range entries {
				tid, err := parseInt(tok)
				if err != nil {
					return err
				}
				conn.VertexToTree[running] = int32(tid - 1)
				running++
			}
		}
		conn.VertexToTreeOffset[h.numVertices] = running
	case "Vertex to Vertex", "Element Tags", "Face Tags", "Curved Faces", "Curved Types":
		// accepted but not part of the core Connectivity contract (§6
		// lists these sections but the core only consumes tree/vertex
		// topology); their contents are not read here: the next
		// nextSection call skips every line up to the following
		// section header.
		return nil
	default:
		return fmt.Errorf("connio: unknown section %q", name)
	}
	return nil
}

// ParseBytes is a convenience wrapper for already-broadcast bytes (§6:
// the rank holding the file reads it, then Bcasts the bytes; every other
// rank parses the broadcast copy identically).
func ParseBytes(data []byte) (*forest.Connectivity, error) {
	return Parse(bytes.NewReader(data))
}
