package seedextend

import (
	"testing"

	ariesk "github.com/dcdanko/AriesK"
	"github.com/dcdanko/AriesK/bloomgrid"
)

// fakeSource is a minimal in-memory ariesk.ClusterSource + ContigSource,
// standing in for a store.Store in tests that should not touch disk.
type fakeSource struct {
	members map[int64][]ariesk.ClusterMember
	contigs map[int64]string
	genome  string
	name    map[int64]string
}

func (f *fakeSource) GetClusterMembers(centroidID int64) ([]ariesk.ClusterMember, error) {
	return f.members[centroidID], nil
}

func (f *fakeSource) LoadBloomGrid(centroidID int64) (bloomgrid.Params, *bloomgrid.Array, *bloomgrid.Grid, bool, error) {
	return bloomgrid.Params{}, nil, nil, false, nil
}

func (f *fakeSource) GetSequence(contigID int64, start, end int) (string, error) {
	seq := f.contigs[contigID]
	if start < 0 || end > len(seq) || start > end {
		return "", ariesk.Errorf(ariesk.InvalidInput, nil, "range out of bounds")
	}
	return seq[start:end], nil
}

func (f *fakeSource) ContigMeta(contigID int64) (string, string, int, error) {
	return f.genome, f.name[contigID], len(f.contigs[contigID]), nil
}

func identityRamifier(k int) *ariesk.Ramifier {
	n := 4 * k
	center := make([]float64, n)
	scale := make([]float64, n)
	rotation := make([][]float64, n)
	for i := range scale {
		scale[i] = 1
	}
	for i := 0; i < n; i++ {
		rotation[i] = make([]float64, n)
		rotation[i][i] = 1
	}
	art := &ariesk.RotationArtifact{K: k, Center: center, Scale: scale, Rotation: rotation}
	r, err := ariesk.NewRamifier(k, n, art)
	if err != nil {
		panic(err)
	}
	return r
}

// buildIndex inserts one centroid per distinct k-mer vector directly,
// bypassing a real store, and records cluster members under it.
func buildIndex(t *testing.T, ramifier *ariesk.Ramifier, boxSide float64, genome string, contigID int64, contig string) (*ariesk.GridIndex, *fakeSource) {
	t.Helper()
	index := ariesk.NewGridIndex(ramifier.D, boxSide)
	src := &fakeSource{
		members: map[int64][]ariesk.ClusterMember{},
		contigs: map[int64]string{contigID: contig},
		genome:  genome,
		name:    map[int64]string{contigID: "contig1"},
	}

	windows := ariesk.EnumerateKmers(contig, ramifier.K)
	for _, w := range windows {
		vec, err := ramifier.Ramify(w.Kmer)
		if err != nil {
			t.Fatalf("Ramify: %v", err)
		}
		id, _ := index.CentroidFor(vec)
		src.members[id] = append(src.members[id], ariesk.ClusterMember{
			CentroidID:   id,
			Index:        len(src.members[id]),
			Kmer:         w.Kmer,
			ContigID:     contigID,
			ContigOffset: w.Offset,
		})
	}
	return index, src
}

func TestSearchFindsExactSubstring(t *testing.T) {
	k := 4
	ramifier := identityRamifier(k)
	contig := "ACGTACGTACGTACGTACGT"
	index, src := buildIndex(t, ramifier, 0.01, "genomeA", 7, contig)

	query := "ACGTACGTACGT"
	results, err := Search(src, src, ramifier, index, query, Options{
		Radius:          0.5,
		MaxGap:          k * 2,
		KmerFraction:    0.5,
		SeqIdentity:     0.9,
		ExtensionMargin: 2,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one reported interval for an exact substring match")
	}
	for _, r := range results {
		if r.ContigID != 7 {
			t.Fatalf("result contig id = %d, want 7", r.ContigID)
		}
		if r.GenomeName != "genomeA" || r.ContigName != "contig1" {
			t.Fatalf("result metadata = %+v", r)
		}
		if r.Score < 0.9 {
			t.Fatalf("result score %v below requested identity threshold", r.Score)
		}
	}
}

func TestSearchEmptyQueryReturnsNoResults(t *testing.T) {
	k := 4
	ramifier := identityRamifier(k)
	index, src := buildIndex(t, ramifier, 0.01, "genomeA", 1, "ACGTACGT")

	results, err := Search(src, src, ramifier, index, "AC", Options{
		Radius:       0.5,
		MaxGap:       k,
		KmerFraction: 0.5,
		SeqIdentity:  0.9,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for a query shorter than k, got %+v", results)
	}
}

func TestSearchHighCoverageThresholdRejectsSparseHits(t *testing.T) {
	k := 4
	ramifier := identityRamifier(k)
	contig := "ACGTACGTACGTACGTACGT"
	index, src := buildIndex(t, ramifier, 0.01, "genomeA", 1, contig)

	// A query sharing only a short fragment of the contig should fail an
	// unreasonably high coverage bar.
	query := "ACGTTTTTTTTTTTTTTTTT"
	results, err := Search(src, src, ramifier, index, query, Options{
		Radius:       0.5,
		MaxGap:       k,
		KmerFraction: 0.95,
		SeqIdentity:  0.5,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results at a 0.95 coverage threshold, got %+v", results)
	}
}

func TestClusterDiagonalGroupsNearbyOffsets(t *testing.T) {
	hs := []hit{
		{queryOffset: 0, contigOffset: 100},
		{queryOffset: 4, contigOffset: 104},
		{queryOffset: 8, contigOffset: 108},
		{queryOffset: 500, contigOffset: 600},
	}
	groups := clusterDiagonal(hs, 10)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	sizes := map[int]int{}
	for _, g := range groups {
		sizes[len(g)]++
	}
	if sizes[3] != 1 || sizes[1] != 1 {
		t.Fatalf("unexpected group sizes: %+v", groups)
	}
}

func TestMergeAndOrderUnionsOverlappingSameScore(t *testing.T) {
	in := []Interval{
		{ContigID: 1, TStart: 0, TEnd: 10, Score: 0.9},
		{ContigID: 1, TStart: 5, TEnd: 15, Score: 0.9},
		{ContigID: 1, TStart: 100, TEnd: 110, Score: 0.95},
	}
	out := mergeAndOrder(in)
	if len(out) != 2 {
		t.Fatalf("got %d merged intervals, want 2", len(out))
	}
	if out[0].Score != 0.95 {
		t.Fatalf("first result should be the higher-scoring interval, got %+v", out[0])
	}
	if out[1].TStart != 0 || out[1].TEnd != 15 {
		t.Fatalf("overlapping same-score intervals not unioned: %+v", out[1])
	}
}
