package main

import (
	"fmt"

	"github.com/spf13/cobra"

	ariesk "github.com/dcdanko/AriesK"
	"github.com/dcdanko/AriesK/store"
)

var statsCoverStatsCmd = &cobra.Command{
	Use:   "cover-stats",
	Short: "Report centroid/cluster/contig coverage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		centroids := s.Centroids()
		var totalKmers int
		var maxCluster int
		for _, c := range centroids {
			members, err := s.GetClusterMembers(c.ID)
			if err != nil {
				return err
			}
			totalKmers += len(members)
			if len(members) > maxCluster {
				maxCluster = len(members)
			}
		}

		contigs, err := s.GetAllContigs()
		if err != nil {
			return err
		}
		var totalBases int
		for _, c := range contigs {
			totalBases += len(c.Sequence)
		}

		avgCluster := 0.0
		if len(centroids) > 0 {
			avgCluster = float64(totalKmers) / float64(len(centroids))
		}
		coverage := 0.0
		if totalBases > 0 {
			coverage = float64(totalKmers) / float64(totalBases)
		}

		fmt.Printf("k=%d D=%d box_side=%v\n", s.Meta.K, s.Meta.D, s.Meta.BoxSide)
		fmt.Printf("centroids:      %d\n", len(centroids))
		fmt.Printf("k-mer records:  %d\n", totalKmers)
		fmt.Printf("contigs:        %d (%d bases)\n", len(contigs), totalBases)
		fmt.Printf("avg cluster:    %.2f\n", avgCluster)
		fmt.Printf("max cluster:    %d\n", maxCluster)
		fmt.Printf("kmers/base:     %.4f\n", coverage)
		return nil
	},
}

var statsDumpKmersCmd = &cobra.Command{
	Use:   "dump-kmers",
	Short: "Print every k-mer record: centroid_id, k-mer, contig_id, offset",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		for _, c := range s.Centroids() {
			members, err := s.GetClusterMembers(c.ID)
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Printf("%d\t%s\t%d\t%d\n", c.ID, ariesk.DecodeKmer(m.Kmer), m.ContigID, m.ContigOffset)
			}
		}
		return nil
	},
}

var statsDumpCentroidsCmd = &cobra.Command{
	Use:   "dump-centroids",
	Short: "Print every centroid's id and embedding vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		for _, c := range s.Centroids() {
			fmt.Printf("%d\t%v\n", c.ID, []float64(c.Vector))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{statsCoverStatsCmd, statsDumpKmersCmd, statsDumpCentroidsCmd} {
		c.Flags().String("db", "", "path to the database file")
		c.MarkFlagRequired("db")
	}
	statsCmd.AddCommand(statsCoverStatsCmd, statsDumpKmersCmd, statsDumpCentroidsCmd)
}
