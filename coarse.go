package ariesk

import "sort"

// CoarseSearch takes a query k-mer's embedding and an outer radius, and
// returns every candidate centroid id whose box could contain a database
// k-mer within r_out of the query, inflated by the box's L1 diameter so no
// candidate is missed given the ramifier's L1 lower-bound invariant. Ties
// are resolved by ascending centroid id.
func CoarseSearch(index *GridIndex, queryVec RVector, outerRadius float64) []int64 {
	boxDiameter := index.BoxSide * float64(index.D)
	candidates := index.RadiusQuery(queryVec, outerRadius+boxDiameter)

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
