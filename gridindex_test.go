package ariesk

import "testing"

func TestCentroidForAllocatesOncePerBox(t *testing.T) {
	g := NewGridIndex(2, 1.0)

	id1, created1 := g.CentroidFor(RVector{0.1, 0.1})
	if !created1 {
		t.Fatal("first insert into a box should allocate a new centroid")
	}
	id2, created2 := g.CentroidFor(RVector{0.9, 0.2})
	if created2 {
		t.Fatal("second point in the same box should not allocate a new centroid")
	}
	if id1 != id2 {
		t.Fatalf("points in the same box got different centroid ids: %d vs %d", id1, id2)
	}

	id3, created3 := g.CentroidFor(RVector{1.5, 0.1})
	if !created3 {
		t.Fatal("point in a new box should allocate a new centroid")
	}
	if id3 == id1 {
		t.Fatal("distinct boxes must not share a centroid id")
	}
}

func TestCentroidForHandlesNegativeCoordinates(t *testing.T) {
	g := NewGridIndex(1, 2.0)
	idA, _ := g.CentroidFor(RVector{-0.5})
	idB, created := g.CentroidFor(RVector{-1.5})
	if idA == idB && created {
		t.Fatal("inconsistent allocation for negative-coordinate boxes")
	}
	// -0.5 and -1.5 both fall in the box of side 2 spanning [-2,0).
	// floor(-0.5/2) = -1, floor(-1.5/2) = -1: same box.
	if idA != idB {
		t.Fatalf("expected -0.5 and -1.5 to share a box of side 2, got ids %d and %d", idA, idB)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	g := NewGridIndex(2, 1.0)
	g.CentroidFor(RVector{0.1, 0.1})
	g.CentroidFor(RVector{5.1, 5.1})
	snapshot := g.Centroids()

	g2 := NewGridIndex(2, 1.0)
	g2.Restore(snapshot)
	if g2.Len() != g.Len() {
		t.Fatalf("restored index has %d centroids, want %d", g2.Len(), g.Len())
	}
	// Inserting the same point again should not allocate a new centroid.
	_, created := g2.CentroidFor(RVector{0.1, 0.1})
	if created {
		t.Fatal("restored index allocated a duplicate centroid for a known box")
	}
}

func TestRadiusQuery(t *testing.T) {
	g := NewGridIndex(1, 1.0)
	g.CentroidFor(RVector{0.5})
	g.CentroidFor(RVector{10.5})
	g.CentroidFor(RVector{20.5})

	near := g.RadiusQuery(RVector{0.5}, 0.6)
	if len(near) != 1 {
		t.Fatalf("radius query found %d centroids, want 1", len(near))
	}

	wide := g.RadiusQuery(RVector{0.5}, 100)
	if len(wide) != 3 {
		t.Fatalf("wide radius query found %d centroids, want 3", len(wide))
	}
}
