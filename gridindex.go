package ariesk

import (
	"math"
	"strconv"
	"strings"
	"sync"
)

// CentroidKey is the integer-tuple box key of length D obtained by taking
// floor(R(k) / box_side). Ties are resolved by IEEE floor;
// negative values round toward -infinity, matching math.Floor.
type CentroidKey []int32

// centroidKey computes the box key for a ramified vector.
func centroidKey(v RVector, boxSide float64) CentroidKey {
	key := make(CentroidKey, len(v))
	for i, x := range v {
		key[i] = int32(math.Floor(x / boxSide))
	}
	return key
}

// CentroidKeyOf computes the box key for a ramified vector, exported so
// callers outside this package (e.g. the storage layer reconstructing its
// in-memory index from disk) can recompute a centroid's key from its
// vector without duplicating the floor/box_side arithmetic.
func CentroidKeyOf(v RVector, boxSide float64) CentroidKey {
	return centroidKey(v, boxSide)
}

// marshal encodes the key as a string usable as a map key. strconv.Itoa is
// used per coordinate, joined by a separator that cannot appear in a
// formatted integer, so distinct tuples never collide.
func (k CentroidKey) marshal() string {
	var sb strings.Builder
	for i, v := range k {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	}
	return sb.String()
}

// String gives a stable, comparable text form of the key, usable by callers
// outside this package as a map key (e.g. to detect identical boxes across
// two databases during a merge).
func (k CentroidKey) String() string { return k.marshal() }

// Centroid is the geometric center of a box in R-space, plus the integer id
// assigned to it in insertion order.
type Centroid struct {
	ID     int64
	Key    CentroidKey
	Vector RVector
}

// center returns the real-valued geometric center of the box: the key
// corner plus half a box-side in every dimension.
func (k CentroidKey) center(boxSide float64) RVector {
	v := make(RVector, len(k))
	for i, c := range k {
		v[i] = float64(c)*boxSide + boxSide/2
	}
	return v
}

// GridIndex maintains the in-memory centroid_key -> centroid_id mapping,
// mirroring the storage layer's centroids table so
// repeated inserts into the same box are O(1). Insertion order is
// deterministic for a single thread: the earlier of two k-mers landing in
// a new box allocates its id first.
type GridIndex struct {
	BoxSide float64
	D       int

	mu        sync.Mutex
	byKey     map[string]int64
	centroids []Centroid // indexed by id
}

// NewGridIndex creates an empty index for the given dimensionality and box
// side length (both database-wide constants).
func NewGridIndex(d int, boxSide float64) *GridIndex {
	return &GridIndex{
		D:       d,
		BoxSide: boxSide,
		byKey:   make(map[string]int64),
	}
}

// CentroidFor returns the id of the centroid whose box contains v,
// allocating a new centroid if none exists yet for that box. The returned
// bool is true when a new centroid was allocated.
func (g *GridIndex) CentroidFor(v RVector) (id int64, created bool) {
	key := centroidKey(v, g.BoxSide)
	mk := key.marshal()

	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byKey[mk]; ok {
		return id, false
	}
	id = int64(len(g.centroids))
	g.centroids = append(g.centroids, Centroid{
		ID:     id,
		Key:    key,
		Vector: key.center(g.BoxSide),
	})
	g.byKey[mk] = id
	return id, true
}

// Restore repopulates the index from a snapshot of centroids, e.g. loaded
// from storage. Ids must be contiguous starting at 0, in insertion order.
func (g *GridIndex) Restore(centroids []Centroid) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.centroids = append([]Centroid(nil), centroids...)
	g.byKey = make(map[string]int64, len(centroids))
	for _, c := range g.centroids {
		g.byKey[c.Key.marshal()] = c.ID
	}
}

// Centroids returns every centroid currently known to the index, ordered
// by ascending id, as the dense (n_centroids, D) array the storage layer
// keeps on disk.
func (g *GridIndex) Centroids() []Centroid {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Centroid, len(g.centroids))
	copy(out, g.centroids)
	return out
}

// Len returns the number of centroids currently indexed.
func (g *GridIndex) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.centroids)
}

// RadiusQuery returns every centroid whose L1 distance to point is within
// radius, ties broken by ascending centroid id. The query
// walks Centroids() linearly: cheap because the centroid count is small
// relative to the k-mer count (expected < 1% of database size).
func (g *GridIndex) RadiusQuery(point RVector, radius float64) []Centroid {
	all := g.Centroids()
	out := make([]Centroid, 0)
	for _, c := range all {
		if L1Distance(point, c.Vector) <= radius {
			out = append(out, c)
		}
	}
	return out
}
