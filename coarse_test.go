package ariesk

import "testing"

func TestCoarseSearchFindsNearbyCentroid(t *testing.T) {
	idx := NewGridIndex(2, 1.0)
	nearID, _ := idx.CentroidFor(RVector{0.5, 0.5})
	farID, _ := idx.CentroidFor(RVector{50, 50})

	ids := CoarseSearch(idx, RVector{0.5, 0.5}, 0.1)

	found := map[int64]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found[nearID] {
		t.Fatalf("expected near centroid %d in results %v", nearID, ids)
	}
	if found[farID] {
		t.Fatalf("far centroid %d should not appear in results %v", farID, ids)
	}
}

func TestCoarseSearchResultsSortedAscending(t *testing.T) {
	idx := NewGridIndex(1, 1.0)
	idx.CentroidFor(RVector{100.5})
	idx.CentroidFor(RVector{0.5})
	idx.CentroidFor(RVector{50.5})

	ids := CoarseSearch(idx, RVector{50.5}, 1000)
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Fatalf("results not sorted ascending: %v", ids)
		}
	}
}

func TestCoarseSearchEmptyIndex(t *testing.T) {
	idx := NewGridIndex(2, 1.0)
	ids := CoarseSearch(idx, RVector{0, 0}, 10)
	if len(ids) != 0 {
		t.Fatalf("expected no results from an empty index, got %v", ids)
	}
}
