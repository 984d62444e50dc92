package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/canopy-network/ladder/app/ladderctl"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ladderctl",
		Short: "Inspect ladder rankings, diffs and the top-log",
		Long: `ladderctl reads the same ranking tables and top-log stores as the ladder
service, and tails its announcement stream from Redis.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(ladderctl.SnapshotCmd())
	rootCmd.AddCommand(ladderctl.DiffCmd())
	rootCmd.AddCommand(ladderctl.TopLogCmd())
	rootCmd.AddCommand(ladderctl.TailCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
