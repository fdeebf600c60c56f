package ariesk

import (
	"sort"

	"github.com/dcdanko/AriesK/bloomgrid"
)

// ClusterMember is one k-mer stored under a centroid, as returned by a
// ClusterSource. Index is the member's position within its cluster in
// insertion order, used to break ties in inner search's result ordering.
type ClusterMember struct {
	CentroidID   int64
	Index        int
	Kmer         Kmer
	ContigID     int64
	ContigOffset int
}

// ClusterSource is the storage-layer contract inner search needs. It is
// defined here, not in the storage package, so this package never imports
// the storage package; a concrete store satisfies this interface
// structurally by matching method signatures.
type ClusterSource interface {
	GetClusterMembers(centroidID int64) ([]ClusterMember, error)
	LoadBloomGrid(centroidID int64) (bloomgrid.Params, *bloomgrid.Array, *bloomgrid.Grid, bool, error)
}

// InnerMatch is one accepted result from InnerSearch.
type InnerMatch struct {
	CentroidID int64
	Member     ClusterMember
	Distance   int
}

// SubKmerLength is the sub-k-mer window length s used to query a cluster's
// bloom grid, distinct from k itself (s << k, typically 6-8 bases).
const SubKmerLength = 6

// InnerSearch refines a set of candidate centroids down to cluster members
// within innerRadius of q. For each candidate centroid it first applies the
// bloom-grid pre-filter (when one exists and maxFilterMisses is set), then
// computes the exact distance for every surviving member.
//
// metric == MetricNone accepts every surviving member without computing a
// distance, recording Distance as -1. Results are ordered ascending by
// (CentroidID, Member.Index); duplicates are not deduplicated.
func InnerSearch(src ClusterSource, candidates []int64, q string, innerRadius float64, metric InnerMetric, maxFilterMisses int) ([]InnerMatch, error) {
	ordered := append([]int64(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	var out []InnerMatch
	for _, centroidID := range ordered {
		members, err := src.GetClusterMembers(centroidID)
		if err != nil {
			return nil, err
		}

		surviving := members
		if maxFilterMisses >= 0 {
			surviving, err = filterByBloomGrid(src, centroidID, q, members, maxFilterMisses)
			if err != nil {
				return nil, err
			}
		}

		for _, m := range surviving {
			if metric == MetricNone {
				out = append(out, InnerMatch{CentroidID: centroidID, Member: m, Distance: -1})
				continue
			}
			target := DecodeKmer(m.Kmer)
			maxCost := -1
			if metric == MetricNeedle {
				maxCost = int(innerRadius) + 1
			}
			d := metric.Distance(q, target, maxCost)
			if float64(d) <= innerRadius {
				out = append(out, InnerMatch{CentroidID: centroidID, Member: m, Distance: d})
			}
		}
	}
	return out, nil
}

// filterByBloomGrid enumerates q's sub-k-mer windows, queries the grid
// bloom once per window, and keeps only members missed in at most
// maxFilterMisses of them. A centroid with no persisted bloom grid passes
// every member through unfiltered.
func filterByBloomGrid(src ClusterSource, centroidID int64, q string, members []ClusterMember, maxFilterMisses int) ([]ClusterMember, error) {
	_, _, grid, ok, err := src.LoadBloomGrid(centroidID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return members, nil
	}

	windows := bloomgrid.SubWindows(q, SubKmerLength)
	counts := grid.CountGrid(windows)

	kept := make([]ClusterMember, 0, len(members))
	for i, m := range members {
		if i >= len(counts) {
			// Grid was built for fewer members than are currently stored;
			// treat any member beyond its coverage as unfiltered.
			kept = append(kept, m)
			continue
		}
		misses := len(windows) - counts[i]
		if misses <= maxFilterMisses {
			kept = append(kept, m)
		}
	}
	return kept, nil
}
