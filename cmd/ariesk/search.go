package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	ariesk "github.com/dcdanko/AriesK"
	"github.com/dcdanko/AriesK/seedextend"
	"github.com/dcdanko/AriesK/server"
	"github.com/dcdanko/AriesK/store"
)

func openForSearch(dbPath, rotationPath string) (*store.Store, *ariesk.Ramifier, error) {
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(rotationPath)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	defer f.Close()
	art, err := ariesk.LoadRotationArtifact(f, s.Meta.D)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	ram, err := ariesk.NewRamifier(s.Meta.K, s.Meta.D, art)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, ram, nil
}

var searchSeqCmd = &cobra.Command{
	Use:   "seq",
	Short: "One-shot coarse + inner search for a single k-mer-length query",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		rotationPath, _ := cmd.Flags().GetString("rotation")
		query, _ := cmd.Flags().GetString("query")
		outerRadius, _ := cmd.Flags().GetFloat64("outer-radius")
		innerRadius, _ := cmd.Flags().GetFloat64("inner-radius")
		metricName, _ := cmd.Flags().GetString("inner-metric")
		mode, _ := cmd.Flags().GetString("mode")
		maxFilterMisses, _ := cmd.Flags().GetInt("max-filter-misses")

		s, ram, err := openForSearch(dbPath, rotationPath)
		if err != nil {
			return err
		}
		defer s.Close()

		index := ariesk.NewGridIndex(s.Meta.D, s.Meta.BoxSide)
		index.Restore(s.Centroids())

		km, err := ariesk.EncodeKmer(query)
		if err != nil {
			return err
		}
		canon := ariesk.Canonical(km)
		vec, err := ram.Ramify(canon)
		if err != nil {
			return err
		}
		candidates := ariesk.CoarseSearch(index, vec, outerRadius)

		if mode == "coarse" {
			for _, id := range candidates {
				fmt.Println(id)
			}
			return nil
		}

		var metric ariesk.InnerMetric
		switch metricName {
		case "hamming":
			metric = ariesk.MetricHamming
		case "needle":
			metric = ariesk.MetricNeedle
		case "none":
			metric = ariesk.MetricNone
		default:
			return fmt.Errorf("unknown --inner-metric %q", metricName)
		}
		matches, err := ariesk.InnerSearch(s, candidates, query, innerRadius, metric, maxFilterMisses)
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Println(ariesk.DecodeKmer(m.Member.Kmer))
		}
		return nil
	},
}

var searchContigCmd = &cobra.Command{
	Use:   "contig",
	Short: "Seed-and-extend search for a long query over contig sequences",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		rotationPath, _ := cmd.Flags().GetString("rotation")
		query, _ := cmd.Flags().GetString("query")
		radius, _ := cmd.Flags().GetFloat64("radius")
		kmerFraction, _ := cmd.Flags().GetFloat64("kmer-fraction")
		seqIdentity, _ := cmd.Flags().GetFloat64("seq-identity")
		maxGap, _ := cmd.Flags().GetInt("max-gap")

		s, ram, err := openForSearch(dbPath, rotationPath)
		if err != nil {
			return err
		}
		defer s.Close()

		index := ariesk.NewGridIndex(s.Meta.D, s.Meta.BoxSide)
		index.Restore(s.Centroids())

		if maxGap <= 0 {
			maxGap = 2 * s.Meta.K
		}
		intervals, err := seedextend.Search(s, s, ram, index, query, seedextend.Options{
			Radius:          radius,
			MaxGap:          maxGap,
			KmerFraction:    kmerFraction,
			SeqIdentity:     seqIdentity,
			ExtensionMargin: s.Meta.K,
		})
		if err != nil {
			return err
		}
		for _, iv := range intervals {
			fmt.Printf("%.4f\t%s\t%s\t%d\t%d\t%d\t%d\n",
				iv.Score, iv.GenomeName, iv.ContigName, iv.QStart, iv.QEnd, iv.TStart, iv.TEnd)
		}
		return nil
	},
}

var searchRunServerCmd = &cobra.Command{
	Use:   "run-server",
	Short: "Run the request/reply search server until shutdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		rotationPath, _ := cmd.Flags().GetString("rotation")
		addr, _ := cmd.Flags().GetString("addr")

		s, ram, err := openForSearch(dbPath, rotationPath)
		if err != nil {
			return err
		}
		defer s.Close()

		logger := log.New(os.Stderr, "ariesk-server: ", log.LstdFlags)
		srv := server.New(s, ram, logger)
		return srv.ListenAndServe(addr)
	},
}

var searchShutdownServerCmd = &cobra.Command{
	Use:   "shutdown-server",
	Short: "Send a shutdown request to a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		c, err := server.Dial(addr)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Shutdown()
	},
}

func init() {
	for _, c := range []*cobra.Command{searchSeqCmd, searchContigCmd, searchRunServerCmd} {
		c.Flags().String("db", "", "path to the database file")
		c.Flags().String("rotation", "", "path to the rotation artifact JSON")
		c.MarkFlagRequired("db")
		c.MarkFlagRequired("rotation")
	}

	searchSeqCmd.Flags().String("query", "", "query k-mer, exactly k bases")
	searchSeqCmd.Flags().Float64("outer-radius", 0, "coarse-search outer radius (R-space L1)")
	searchSeqCmd.Flags().Float64("inner-radius", 0, "inner-search radius (edit-distance units)")
	searchSeqCmd.Flags().String("inner-metric", "needle", "hamming|needle|none")
	searchSeqCmd.Flags().String("mode", "full", "full|coarse")
	searchSeqCmd.Flags().Int("max-filter-misses", -1, "bloom-grid max misses; -1 disables the pre-filter")
	searchSeqCmd.MarkFlagRequired("query")

	searchContigCmd.Flags().String("query", "", "long DNA query sequence")
	searchContigCmd.Flags().Float64("radius", 0, "coarse-search radius per k-mer window")
	searchContigCmd.Flags().Float64("kmer-fraction", 0.5, "minimum fraction of query k-mers an interval must cover")
	searchContigCmd.Flags().Float64("seq-identity", 0.9, "minimum aligned sequence identity")
	searchContigCmd.Flags().Int("max-gap", 0, "diagonal clustering gap; defaults to 2k")
	searchContigCmd.MarkFlagRequired("query")

	searchRunServerCmd.Flags().String("addr", "127.0.0.1:7777", "listen address (unix socket path or host:port)")

	searchShutdownServerCmd.Flags().String("addr", "127.0.0.1:7777", "server address to shut down")

	searchCmd.AddCommand(searchSeqCmd, searchContigCmd, searchRunServerCmd, searchShutdownServerCmd)
}
