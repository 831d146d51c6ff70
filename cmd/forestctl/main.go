// SPDX-License-Identifier: MIT

// Command forestctl is an out-of-core driver over the forest library: it
// loads a connectivity text file, runs one of the core operations across
// a configurable number of dummy-transport ranks, and optionally emits a
// VTK grid per rank. It exists to exercise the library end to end, not as
// a production simulation driver (§6 "Example drivers use temporary
// files and Bcast the filename; exit code zero on success").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quadforest/forest/internal/driver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "forestctl",
		Short: "Drive a distributed quadtree forest over a connectivity file",
	}

	root.PersistentFlags().String("conn", "", "path to a connectivity text file (§6 format)")
	root.PersistentFlags().Int("ranks", 1, "number of dummy-transport ranks to simulate")
	root.PersistentFlags().Int("level", 0, "uniform refinement level to reach before the command's own operation")
	root.PersistentFlags().String("out", "", "directory to write one VTK file per rank into (omit to skip VTK output)")
	_ = root.MarkPersistentFlagRequired("conn")

	viper.SetEnvPrefix("forestctl")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(root.PersistentFlags())

	root.AddCommand(newBuildCmd(), newRefineCmd(), newBalanceCmd(), newPartitionCmd())
	return root
}

func baseArgsFromFlags(cmd *cobra.Command) driver.Args {
	_ = viper.BindPFlags(cmd.Flags())
	return driver.Args{
		ConnPath: viper.GetString("conn"),
		Ranks:    viper.GetInt("ranks"),
		Level:    viper.GetInt("level"),
		OutDir:   viper.GetString("out"),
	}
}

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build a forest from the connectivity file and refine it uniformly",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return driver.Run(baseArgsFromFlags(cmd))
		},
	}
}

func newRefineCmd() *cobra.Command {
	var keepTree int
	c := &cobra.Command{
		Use:   "refine",
		Short: "Refine only the given tree one level past --level, then report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := baseArgsFromFlags(cmd)
			a.RefineTree = &keepTree
			return driver.Run(a)
		},
	}
	c.Flags().IntVar(&keepTree, "tree", 0, "tree id to refine past the uniform level")
	return c
}

func newBalanceCmd() *cobra.Command {
	var mode string
	c := &cobra.Command{
		Use:   "balance",
		Short: "Build, refine, and 2:1 balance the forest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := baseArgsFromFlags(cmd)
			a.Balance = true
			switch mode {
			case "face":
				a.BalanceFaceCorner = false
			case "facecorner":
				a.BalanceFaceCorner = true
			default:
				return fmt.Errorf("unknown --mode %q (want face or facecorner)", mode)
			}
			return driver.Run(a)
		},
	}
	c.Flags().StringVar(&mode, "mode", "face", "balance mode: face or facecorner")
	return c
}

func newPartitionCmd() *cobra.Command {
	var counts string
	c := &cobra.Command{
		Use:   "partition",
		Short: "Build, refine, balance, then repartition to the given per-rank counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := baseArgsFromFlags(cmd)
			a.Balance = true
			newCounts, err := driver.ParseCounts(counts)
			if err != nil {
				return err
			}
			a.NewCounts = newCounts
			return driver.Run(a)
		},
	}
	c.Flags().StringVar(&counts, "counts", "", "comma-separated target leaf count per rank")
	_ = c.MarkFlagRequired("counts")
	return c
}
