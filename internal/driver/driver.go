// SPDX-License-Identifier: MIT

// Package driver implements forestctl's subcommands: parse a connectivity
// file, broadcast its path to every simulated rank the way a real MPI
// job would, build a forest, run the requested operations, and optionally
// write one VTK file per rank (§6).
package driver

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/quadforest/forest"
	"github.com/quadforest/forest/connio"
	"github.com/quadforest/forest/transport"
	"github.com/quadforest/forest/vtkio"
)

// Args collects every flag forestctl's subcommands can set.
type Args struct {
	ConnPath string
	Ranks    int
	Level    int
	OutDir   string

	RefineTree        *int
	Balance           bool
	BalanceFaceCorner bool
	NewCounts         []int64
}

// ParseCounts parses a comma-separated list of non-negative integers,
// the --counts flag's wire format for the partition subcommand.
func ParseCounts(s string) ([]int64, error) {
	fields := strings.Split(s, ",")
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --counts entry %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// rankResult summarizes one rank's final state for the operator-facing
// report printed after every rank finishes.
type rankResult struct {
	LocalNumQuadrants int64
	Checksum          uint64
}

const bcastRoot = 0

// Run executes the requested operation sequence across a.Ranks simulated
// processes and reports a per-rank summary, returning a non-nil error
// only for conditions the connectivity parser itself can report — every
// core-algorithm failure aborts the process per §7's fail-stop model.
func Run(a Args) error {
	if a.Ranks < 1 {
		return fmt.Errorf("--ranks must be at least 1, got %d", a.Ranks)
	}

	world := transport.NewWorld(a.Ranks)

	errs := make([]error, a.Ranks)
	results := make([]rankResult, a.Ranks)

	var wg sync.WaitGroup
	wg.Add(a.Ranks)
	for r := 0; r < a.Ranks; r++ {
		r := r
		go func() {
			defer wg.Done()
			res, err := runOnRank(world.Rank(r), a)
			errs[r] = err
			results[r] = res
		}()
	}
	wg.Wait()

	for r, err := range errs {
		if err != nil {
			return fmt.Errorf("rank %d: %w", r, err)
		}
	}

	for r, res := range results {
		fmt.Printf("rank %d: %d local quadrants, checksum %016x\n", r, res.LocalNumQuadrants, res.Checksum)
	}
	return nil
}

func runOnRank(tr transport.Transport, a Args) (rankResult, error) {
	path, err := broadcastConnPath(tr, a.ConnPath)
	if err != nil {
		return rankResult{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rankResult{}, fmt.Errorf("reading broadcast connectivity path %q: %w", path, err)
	}
	conn, err := connio.ParseBytes(data)
	if err != nil {
		return rankResult{}, fmt.Errorf("parsing connectivity: %w", err)
	}

	f := forest.NewForest[struct{}](conn, tr)

	for lvl := 0; lvl < a.Level; lvl++ {
		f.Refine(func(int32, forest.Quadrant) bool { return true })
	}

	if a.RefineTree != nil {
		target := int32(*a.RefineTree)
		f.Refine(func(treeID int32, _ forest.Quadrant) bool { return treeID == target })
	}

	if a.Balance {
		mode := forest.BalanceFace
		if a.BalanceFaceCorner {
			mode = forest.BalanceFaceCorner
		}
		f.BalanceForest(mode)
	}

	if len(a.NewCounts) > 0 {
		forest.PartitionGiven(f, tr, a.NewCounts)
	}

	if a.OutDir != "" {
		if err := writeVTK(f, conn, a.OutDir, tr.Rank()); err != nil {
			return rankResult{}, err
		}
	}

	return rankResult{LocalNumQuadrants: f.LocalNumQuadrants(), Checksum: f.Checksum()}, nil
}

// broadcastConnPath has rank 0 copy the user-supplied connectivity file
// into a fresh temp file and Bcast its path; every rank (including rank
// 0) then opens that same path independently, matching §6's "temporary
// files and Bcast the filename" driver convention.
func broadcastConnPath(tr transport.Transport, connPath string) (string, error) {
	var pathBytes []byte
	if tr.Rank() == bcastRoot {
		data, err := os.ReadFile(connPath)
		if err != nil {
			return "", fmt.Errorf("reading %q: %w", connPath, err)
		}
		tmp, err := os.CreateTemp("", "forestctl-conn-*.txt")
		if err != nil {
			return "", err
		}
		defer tmp.Close()
		if _, err := tmp.Write(data); err != nil {
			return "", err
		}
		pathBytes = []byte(tmp.Name())
	}

	result := tr.Bcast(pathBytes, bcastRoot)
	return string(result), nil
}

func writeVTK[P any](f *forest.Forest[P], conn *forest.Connectivity, dir string, rank int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := fmt.Sprintf("%s/rank-%d.vtk", dir, rank)
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	leaves := f.Leaves()
	return vtkio.Write(out, func(yield func(vtkio.Leaf) bool) {
		for treeID, q := range leaves {
			corners := vtkio.PhysicalCorners(conn, treeID, q)
			if !yield(vtkio.Leaf{Corners: corners}) {
				return
			}
		}
	})
}
