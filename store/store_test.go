package store

import (
	"path/filepath"
	"testing"

	ariesk "github.com/dcdanko/AriesK"
	"github.com/dcdanko/AriesK/bloomgrid"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Create(tempDBPath(t), Meta{K: 4, D: 2, BoxSide: 1.0})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndReopen(t *testing.T) {
	path := tempDBPath(t)
	s, err := Create(path, Meta{K: 4, D: 2, BoxSide: 1.0})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	km, _ := ariesk.EncodeKmer("ACGT")
	if _, err := s.AddPoint(ariesk.RVector{0.1, 0.1}, km, Provenance{ContigID: 1, ContigOffset: 0}); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s2.Close()
	if s2.Meta.K != 4 || s2.Meta.D != 2 {
		t.Fatalf("reopened meta = %+v, want K=4 D=2", s2.Meta)
	}
	if len(s2.Centroids()) != 1 {
		t.Fatalf("reopened store has %d centroids, want 1", len(s2.Centroids()))
	}
}

func TestOpenRejectsIncompatibleVersion(t *testing.T) {
	path := tempDBPath(t)
	s, err := Create(path, Meta{K: 4, D: 2, BoxSide: 1.0})
	if err != nil {
		t.Fatal(err)
	}
	s.Meta.Version = schemaVersion + 1
	if err := s.writeMeta(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening a database with an incompatible schema version")
	} else if !ariesk.IsKind(err, ariesk.ParameterMismatch) {
		t.Fatalf("expected ParameterMismatch, got %v", err)
	}
}

func TestAddPointSharesCentroidForSameBox(t *testing.T) {
	s := openTestStore(t)
	km1, _ := ariesk.EncodeKmer("ACGT")
	km2, _ := ariesk.EncodeKmer("AAAA")

	id1, err := s.AddPoint(ariesk.RVector{0.1, 0.1}, km1, Provenance{ContigID: 0, ContigOffset: 0})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.AddPoint(ariesk.RVector{0.9, 0.2}, km2, Provenance{ContigID: 0, ContigOffset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("points in the same box got different centroid ids: %d vs %d", id1, id2)
	}

	members, err := s.GetClusterMembers(id1)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d cluster members, want 2", len(members))
	}
}

func TestContigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	id, err := s.AddContig("genomeA", "contig1", 0, 8, "ACGTACGT")
	if err != nil {
		t.Fatal(err)
	}
	seq, err := s.GetSequence(id, 2, 6)
	if err != nil {
		t.Fatal(err)
	}
	if seq != "GTAC" {
		t.Fatalf("GetSequence = %q, want GTAC", seq)
	}

	all, err := s.GetAllContigs()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Sequence != "ACGTACGT" {
		t.Fatalf("GetAllContigs = %+v", all)
	}
}

func TestGetSequenceOutOfBounds(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.AddContig("g", "c", 0, 4, "ACGT")
	if _, err := s.GetSequence(id, 0, 10); err == nil {
		t.Fatal("expected error for out-of-bounds range")
	}
}

func TestBloomGridRoundTrip(t *testing.T) {
	s := openTestStore(t)
	km, _ := ariesk.EncodeKmer("ACGT")
	id, err := s.AddPoint(ariesk.RVector{0.1, 0.1}, km, Provenance{})
	if err != nil {
		t.Fatal(err)
	}

	params := bloomgrid.DeriveParams(1, 0.01)
	arr := bloomgrid.NewArray(params)
	arr.Add([]byte("ACGTAC"))
	grid := bloomgrid.NewGrid(1, params)
	grid.Add(0, []byte("ACGTAC"))

	if err := s.SaveBloomGrid(id, params, arr, grid); err != nil {
		t.Fatal(err)
	}

	gotParams, gotArr, gotGrid, ok, err := s.LoadBloomGrid(id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a persisted bloom grid")
	}
	if gotParams.M != params.M || gotParams.H != params.H {
		t.Fatalf("params mismatch: got %+v want %+v", gotParams, params)
	}
	if !gotArr.Contains([]byte("ACGTAC")) {
		t.Fatal("restored array bloom lost its member")
	}
	if !gotGrid.Contains(0, []byte("ACGTAC")) {
		t.Fatal("restored grid bloom lost its member")
	}
}

func TestLoadBloomGridAbsent(t *testing.T) {
	s := openTestStore(t)
	_, _, _, ok, err := s.LoadBloomGrid(42)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no bloom grid for an unbuilt centroid")
	}
}

func TestLoadOtherMergesMatchingBoxes(t *testing.T) {
	a := openTestStore(t)
	b, err := Create(tempDBPath(t), Meta{K: 4, D: 2, BoxSide: 1.0})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	km1, _ := ariesk.EncodeKmer("ACGT")
	km2, _ := ariesk.EncodeKmer("AAAA")
	km3, _ := ariesk.EncodeKmer("TTTT")

	idA, _ := a.AddPoint(ariesk.RVector{0.1, 0.1}, km1, Provenance{ContigID: 1})
	idB, _ := b.AddPoint(ariesk.RVector{0.2, 0.2}, km2, Provenance{ContigID: 2})  // same box as idA
	idC, _ := b.AddPoint(ariesk.RVector{50, 50}, km3, Provenance{ContigID: 3}) // distinct box
	_ = idC

	if err := a.LoadOther(b); err != nil {
		t.Fatalf("LoadOther: %v", err)
	}

	members, err := a.GetClusterMembers(idA)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("merged cluster has %d members, want 2", len(members))
	}

	if len(a.Centroids()) != 2 {
		t.Fatalf("merged store has %d centroids, want 2 (one shared, one new)", len(a.Centroids()))
	}
	_ = idB
}

func TestLoadOtherRejectsParameterMismatch(t *testing.T) {
	a := openTestStore(t)
	b, err := Create(tempDBPath(t), Meta{K: 5, D: 2, BoxSide: 1.0})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.LoadOther(b); err == nil {
		t.Fatal("expected ParameterMismatch for differing k")
	} else if !ariesk.IsKind(err, ariesk.ParameterMismatch) {
		t.Fatalf("expected ParameterMismatch, got %v", err)
	}
}
