package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	ariesk "github.com/dcdanko/AriesK"
	"github.com/dcdanko/AriesK/store"
)

func loadRamifier(rotationPath string, k, d int) (*ariesk.Ramifier, error) {
	f, err := os.Open(rotationPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	art, err := ariesk.LoadRotationArtifact(f, d)
	if err != nil {
		return nil, err
	}
	return ariesk.NewRamifier(k, d, art)
}

var buildRotationCmd = &cobra.Command{
	Use:   "rotation",
	Short: "Validate a precomputed rotation artifact against k and D",
	Long: `Rotation artifacts (center, scale, and rotation matrix) are trained
externally to the core (PCA over a training corpus of ramified k-mer
vectors) and handed to ariesk as a JSON document. This verb only validates
the artifact's shape against the requested k and D; it does not compute one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		d, _ := cmd.Flags().GetInt("d")
		in, _ := cmd.Flags().GetString("in")
		if _, err := loadRamifier(in, k, d); err != nil {
			return err
		}
		fmt.Printf("rotation artifact %s is valid for k=%d D=%d\n", in, k, d)
		return nil
	},
}

var buildGridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Build a database from a bare list of k-mers",
	Long: `Reads one k-mer per line from --kmers (no contig provenance) and
inserts each into a fresh grid-indexed database, assigning every k-mer a
synthetic contig offset. Use "build contig" instead when provenance
(genome, contig, coordinate) needs to be preserved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		d, _ := cmd.Flags().GetInt("d")
		boxSide, _ := cmd.Flags().GetFloat64("box-side")
		rotationPath, _ := cmd.Flags().GetString("rotation")
		kmersPath, _ := cmd.Flags().GetString("kmers")
		dbPath, _ := cmd.Flags().GetString("db")

		ram, err := loadRamifier(rotationPath, k, d)
		if err != nil {
			return err
		}
		kmers, err := kmerListFile(kmersPath)
		if err != nil {
			return err
		}

		s, err := store.Create(dbPath, store.Meta{K: k, D: d, BoxSide: boxSide})
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.BeginBulkLoad(); err != nil {
			return err
		}
		inserted := 0
		for offset, raw := range kmers {
			km, err := ariesk.EncodeKmer(raw)
			if err != nil {
				ariesk.Vprintf("skipping invalid k-mer %q: %v\n", raw, err)
				continue
			}
			if km.Len != k {
				ariesk.Vprintf("skipping k-mer %q: length %d != k=%d\n", raw, km.Len, k)
				continue
			}
			canon := ariesk.Canonical(km)
			vec, err := ram.Ramify(canon)
			if err != nil {
				return err
			}
			if _, err := s.AddPoint(vec, canon, store.Provenance{ContigID: -1, ContigOffset: offset}); err != nil {
				return err
			}
			inserted++
		}
		if err := s.CommitBulkLoad(); err != nil {
			return err
		}
		fmt.Printf("inserted %d k-mers into %d centroids\n", inserted, len(s.Centroids()))
		return nil
	},
}

var buildGridMergeCmd = &cobra.Command{
	Use:   "grid-merge",
	Short: "Merge one or more databases into a target database",
	Long: `Implements spec.md §4.E's merge rule (store.Store.LoadOther): a
centroid present in both the target and an incoming database has its
clusters unioned and its bloom grid discarded for rebuilding; otherwise the
incoming centroid is appended under a new id. This is the core-side half of
the out-of-scope multiprocess build coordinator: each worker builds its own
database over a shard of the input, then the shards are merged here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		into, _ := cmd.Flags().GetString("into")
		from, _ := cmd.Flags().GetStringSlice("from")
		if len(from) == 0 {
			return fmt.Errorf("at least one --from database is required")
		}

		target, err := store.Open(into)
		if err != nil {
			return err
		}
		defer target.Close()

		for _, path := range from {
			other, err := store.Open(path)
			if err != nil {
				return err
			}
			err = target.LoadOther(other)
			other.Close()
			if err != nil {
				return err
			}
		}
		fmt.Printf("merged %d database(s) into %s (%d centroids)\n", len(from), into, len(target.Centroids()))
		return nil
	},
}

var buildContigCmd = &cobra.Command{
	Use:   "contig",
	Short: "Build a database from FASTA-like contig records",
	Long: `Reads contigs from --fasta (a minimal header/sequence reader, not a
general FASTA parser -- see spec.md's Non-goals), appends each to the
contigs table, slides a k-mer window with stride 1 over its sequence, and
inserts every canonical k-mer with its (contig_id, offset) provenance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		d, _ := cmd.Flags().GetInt("d")
		boxSide, _ := cmd.Flags().GetFloat64("box-side")
		rotationPath, _ := cmd.Flags().GetString("rotation")
		fastaPath, _ := cmd.Flags().GetString("fasta")
		dbPath, _ := cmd.Flags().GetString("db")
		genome, _ := cmd.Flags().GetString("genome")
		create, _ := cmd.Flags().GetBool("create")

		ram, err := loadRamifier(rotationPath, k, d)
		if err != nil {
			return err
		}
		records, err := readFastaLike(fastaPath)
		if err != nil {
			return err
		}
		if genome == "" {
			genome = genomeNameFromPath(fastaPath)
		}

		var s *store.Store
		if create {
			s, err = store.Create(dbPath, store.Meta{K: k, D: d, BoxSide: boxSide})
		} else {
			s, err = store.Open(dbPath)
		}
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.BeginBulkLoad(); err != nil {
			return err
		}
		kmersInserted := 0
		for _, rec := range records {
			contigID, err := s.AddContig(genome, rec.ContigName, 0, len(rec.Sequence), rec.Sequence)
			if err != nil {
				return err
			}
			for _, w := range ariesk.EnumerateKmers(rec.Sequence, k) {
				vec, err := ram.Ramify(w.Kmer)
				if err != nil {
					return err
				}
				if _, err := s.AddPoint(vec, w.Kmer, store.Provenance{ContigID: contigID, ContigOffset: w.Offset}); err != nil {
					return err
				}
				kmersInserted++
			}
		}
		if err := s.CommitBulkLoad(); err != nil {
			return err
		}
		fmt.Printf("inserted %d contigs and %d k-mers into %s\n", len(records), kmersInserted, dbPath)
		return nil
	},
}

func init() {
	buildRotationCmd.Flags().String("in", "", "path to rotation artifact JSON")
	buildRotationCmd.Flags().Int("k", 0, "k-mer length")
	buildRotationCmd.Flags().Int("d", 8, "embedding dimension D")
	buildRotationCmd.MarkFlagRequired("in")
	buildRotationCmd.MarkFlagRequired("k")

	buildGridCmd.Flags().Int("k", 0, "k-mer length")
	buildGridCmd.Flags().Int("d", 8, "embedding dimension D")
	buildGridCmd.Flags().Float64("box-side", 0.5, "grid box side length")
	buildGridCmd.Flags().String("rotation", "", "path to rotation artifact JSON")
	buildGridCmd.Flags().String("kmers", "", "path to a file with one k-mer per line")
	buildGridCmd.Flags().String("db", "", "path to the database file to create")
	buildGridCmd.MarkFlagRequired("k")
	buildGridCmd.MarkFlagRequired("rotation")
	buildGridCmd.MarkFlagRequired("kmers")
	buildGridCmd.MarkFlagRequired("db")

	buildGridMergeCmd.Flags().String("into", "", "target database, merged in place")
	buildGridMergeCmd.Flags().StringSlice("from", nil, "one or more source databases to merge in")
	buildGridMergeCmd.MarkFlagRequired("into")

	buildContigCmd.Flags().Int("k", 0, "k-mer length")
	buildContigCmd.Flags().Int("d", 8, "embedding dimension D")
	buildContigCmd.Flags().Float64("box-side", 0.5, "grid box side length")
	buildContigCmd.Flags().String("rotation", "", "path to rotation artifact JSON")
	buildContigCmd.Flags().String("fasta", "", "path to a FASTA-like contig file")
	buildContigCmd.Flags().String("db", "", "path to the database file")
	buildContigCmd.Flags().String("genome", "", "genome name (defaults to the FASTA file's base name)")
	buildContigCmd.Flags().Bool("create", false, "create a new database instead of opening an existing one")
	buildContigCmd.MarkFlagRequired("k")
	buildContigCmd.MarkFlagRequired("rotation")
	buildContigCmd.MarkFlagRequired("fasta")
	buildContigCmd.MarkFlagRequired("db")

	buildCmd.AddCommand(buildRotationCmd, buildGridCmd, buildGridMergeCmd, buildContigCmd)
}
