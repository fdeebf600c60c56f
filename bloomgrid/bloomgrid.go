// Package bloomgrid implements a two-level Bloom structure used to
// pre-screen cluster members by sub-k-mer overlap before the costlier
// edit-distance refinement in inner search. Bit storage is
// github.com/golang-collections/go-datastructures/bitarray, the same
// package kshedden-muscato's screening tool uses to back its own
// read-vs-gene Bloom filters.
package bloomgrid

import (
	"math"
	"math/bits"

	"github.com/golang-collections/go-datastructures/bitarray"
)

// Params derives (m, h) from (expected_n, target_fp):
// m = ceil(-n * ln(p) / (ln 2)^2), h = round((m/n) * ln 2).
type Params struct {
	M uint64 // bit length
	H int    // number of hash functions
}

// DeriveParams computes bloom parameters for expectedN expected members
// and a target false-positive rate targetFP in (0,1).
func DeriveParams(expectedN int, targetFP float64) Params {
	n := float64(expectedN)
	if n < 1 {
		n = 1
	}
	ln2 := math.Ln2
	m := math.Ceil(-n * math.Log(targetFP) / (ln2 * ln2))
	h := math.Round((m / n) * ln2)
	if h < 1 {
		h = 1
	}
	return Params{M: uint64(m), H: int(h)}
}

// hash63 produces a cheap, well-mixed 63-bit hash of key, seeded by i to
// get H independent-enough hash functions from one mixer (splitmix64
// style). The top bit is cleared so the value fits into a 63-bit integer
// hash before reduction.
func hash63(key []byte, seed int) uint64 {
	h := uint64(seed)*0x9E3779B97F4A7C15 + 0xDA942042E4DD58B5
	for _, b := range key {
		h ^= uint64(b)
		h *= 0xBF58476D1CE4E5B9
		h ^= h >> 31
	}
	h ^= h >> 29
	h *= 0x94D049BB133111EB
	h ^= h >> 32
	return h &^ (1 << 63)
}

// reduce maps a 63-bit hash into [0, m) via (hash*m)>>63, avoiding modulo.
// Shifting the hash left by one before taking the high 64 bits of the full
// 128-bit product gives exactly hash*m>>63 for a hash already constrained
// to 63 significant bits.
func reduce(h uint64, m uint64) uint64 {
	if m == 0 {
		return 0
	}
	hi, _ := bits.Mul64(h<<1, m)
	return hi
}

func bitIndices(key []byte, h int, m uint64) []uint64 {
	out := make([]uint64, h)
	for i := 0; i < h; i++ {
		out[i] = reduce(hash63(key, i), m)
	}
	return out
}

// Array is the cluster-wide bloom filter: it remembers the set of length-s
// sub-k-mers present anywhere in the cluster.
type Array struct {
	bits bitarray.BitArray
	m    uint64
	h    int
}

// NewArray creates an empty array bloom with the given parameters.
func NewArray(p Params) *Array {
	return &Array{bits: bitarray.NewBitArray(p.M), m: p.M, h: p.H}
}

// Add records key (a sub-k-mer) as present.
func (a *Array) Add(key []byte) {
	for _, idx := range bitIndices(key, a.h, a.m) {
		_ = a.bits.SetBit(idx)
	}
}

// Contains reports whether key may have been added. False positives are
// possible; false negatives are not.
func (a *Array) Contains(key []byte) bool {
	for _, idx := range bitIndices(key, a.h, a.m) {
		ok, _ := a.bits.GetBit(idx)
		if !ok {
			return false
		}
	}
	return true
}

// EstimatedCount returns the classical bloom-filter cardinality estimate
// -(m/h) * ln(1 - n_set_bits/m).
func (a *Array) EstimatedCount() float64 {
	set := 0
	for i := uint64(0); i < a.m; i++ {
		ok, _ := a.bits.GetBit(i)
		if ok {
			set++
		}
	}
	if set == 0 {
		return 0
	}
	frac := float64(set) / float64(a.m)
	if frac >= 1 {
		return float64(a.m) // saturated
	}
	return -(float64(a.m) / float64(a.h)) * math.Log(1-frac)
}

// MarshalBits packs the array's m bits into a byte slice, 8 bits per byte,
// for handing to a storage layer that only deals in opaque blobs.
func (a *Array) MarshalBits() []byte {
	out := make([]byte, (a.m+7)/8)
	for i := uint64(0); i < a.m; i++ {
		ok, _ := a.bits.GetBit(i)
		if ok {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// UnmarshalArray rebuilds an Array from bits packed by MarshalBits.
func UnmarshalArray(p Params, bits []byte) *Array {
	a := NewArray(p)
	for i := uint64(0); i < p.M; i++ {
		if bits[i/8]&(1<<(i%8)) != 0 {
			_ = a.bits.SetBit(i)
		}
	}
	return a
}

// Union ORs two array blooms with matching parameters into a new Array.
func Union(a, b *Array) *Array {
	out := NewArray(Params{M: a.m, H: a.h})
	for i := uint64(0); i < a.m; i++ {
		av, _ := a.bits.GetBit(i)
		bv, _ := b.bits.GetBit(i)
		if av || bv {
			_ = out.bits.SetBit(i)
		}
	}
	return out
}

// Intersect ANDs two array blooms with matching parameters into a new
// Array.
func Intersect(a, b *Array) *Array {
	out := NewArray(Params{M: a.m, H: a.h})
	for i := uint64(0); i < a.m; i++ {
		av, _ := a.bits.GetBit(i)
		bv, _ := b.bits.GetBit(i)
		if av && bv {
			_ = out.bits.SetBit(i)
		}
	}
	return out
}

// Grid is the per-member bloom structure: a rows x m bit matrix recording,
// per cluster member, which sub-k-mers it contains.
type Grid struct {
	rows []bitarray.BitArray
	m    uint64
	h    int
}

// NewGrid creates an empty grid bloom for nRows cluster members.
func NewGrid(nRows int, p Params) *Grid {
	rows := make([]bitarray.BitArray, nRows)
	for i := range rows {
		rows[i] = bitarray.NewBitArray(p.M)
	}
	return &Grid{rows: rows, m: p.M, h: p.H}
}

// Add records key as present in row (a cluster member index).
func (g *Grid) Add(row int, key []byte) {
	for _, idx := range bitIndices(key, g.h, g.m) {
		_ = g.rows[row].SetBit(idx)
	}
}

// Contains reports whether key may be present in row.
func (g *Grid) Contains(row int, key []byte) bool {
	for _, idx := range bitIndices(key, g.h, g.m) {
		ok, _ := g.rows[row].GetBit(idx)
		if !ok {
			return false
		}
	}
	return true
}

// Rows returns the number of cluster members this grid covers.
func (g *Grid) Rows() int { return len(g.rows) }

// MarshalRows packs every row's bits into its own byte slice, in row order.
func (g *Grid) MarshalRows() [][]byte {
	out := make([][]byte, len(g.rows))
	for i, row := range g.rows {
		packed := make([]byte, (g.m+7)/8)
		for b := uint64(0); b < g.m; b++ {
			ok, _ := row.GetBit(b)
			if ok {
				packed[b/8] |= 1 << (b % 8)
			}
		}
		out[i] = packed
	}
	return out
}

// UnmarshalGrid rebuilds a Grid from rows packed by MarshalRows.
func UnmarshalGrid(p Params, rows [][]byte) *Grid {
	g := NewGrid(len(rows), p)
	for i, packed := range rows {
		for b := uint64(0); b < p.M; b++ {
			if packed[b/8]&(1<<(b%8)) != 0 {
				_ = g.rows[i].SetBit(b)
			}
		}
	}
	return g
}

// CountGrid returns, for each row, how many of the sub-k-mer windows
// (already extracted by the caller, typically via SubWindows) match that
// row, analogous to a count_grid(seq) query.
func (g *Grid) CountGrid(windows [][]byte) []int {
	counts := make([]int, len(g.rows))
	for row := range g.rows {
		c := 0
		for _, w := range windows {
			if g.Contains(row, w) {
				c++
			}
		}
		counts[row] = c
	}
	return counts
}

// SubWindows slices every length-s substring of seq, s << k typically 6-8,
// used both to populate a Grid/Array at build time and to query one at
// search time.
func SubWindows(seq string, s int) [][]byte {
	if s <= 0 || len(seq) < s {
		return nil
	}
	out := make([][]byte, 0, len(seq)-s+1)
	for i := 0; i+s <= len(seq); i++ {
		out = append(out, []byte(seq[i:i+s]))
	}
	return out
}
