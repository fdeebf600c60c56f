package main

import (
	"github.com/spf13/cobra"

	ariesk "github.com/dcdanko/AriesK"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ariesk",
	Short: "Approximate nucleotide-sequence search over large reference genomes",
	Long: `ariesk builds and queries a grid-indexed k-mer database for
approximate (edit-distance) sequence search over large reference genomes.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ariesk.Verbose = verbose
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log progress to stderr")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
}

// buildCmd groups the four build verbs: rotation, grid, grid-merge, contig.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build database artifacts: rotation, grid, grid-merge, contig",
}

// searchCmd groups the search verbs: seq, contig, run-server, shutdown-server.
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query a database: seq, contig, run-server, shutdown-server",
}

// statsCmd groups the introspection verbs: cover-stats, dump-kmers, dump-centroids.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Inspect a database: cover-stats, dump-kmers, dump-centroids",
}
