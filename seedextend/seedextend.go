// Package seedextend assembles k-mer hits from a sliding query window into
// contig-interval alignments: group by contig and diagonal, cluster nearby
// hits into seed regions, extend each seed with a bounded edit-distance
// alignment, and report intervals meeting a coverage and identity
// threshold.
package seedextend

import (
	"sort"

	"github.com/biogo/store/interval"

	ariesk "github.com/dcdanko/AriesK"
)

// ContigSource is the storage-layer contract extension needs: random access
// to a contig's decoded sequence and its identifying metadata.
type ContigSource interface {
	GetSequence(contigID int64, start, end int) (string, error)
	ContigMeta(contigID int64) (genomeName, contigName string, length int, err error)
}

// Options controls seed-and-extend contig search.
type Options struct {
	Radius          float64
	MaxGap          int
	KmerFraction    float64
	SeqIdentity     float64
	ExtensionMargin int
}

// Interval is one reported match: query/target coordinates, the contig it
// matched, and a score (fraction of aligned bases that are identical).
type Interval struct {
	QStart, QEnd int
	TStart, TEnd int
	ContigID     int64
	GenomeName   string
	ContigName   string
	Score        float64
}

type hit struct {
	queryOffset  int
	contigOffset int
}

// Search slides a k-mer window over query, runs coarse search per window
// against index, groups the resulting cluster members by (contig, diagonal),
// clusters nearby hits, extends each seed by bounded Needleman-Wunsch
// against the stored contig sequence, and reports intervals whose k-mer
// coverage and aligned identity both clear the given thresholds.
//
// Results are ordered descending by score, then ascending by
// (ContigID, TStart); identical-score overlapping intervals are merged into
// one interval spanning their union.
func Search(src ariesk.ClusterSource, contigs ContigSource, ramifier *ariesk.Ramifier, index *ariesk.GridIndex, query string, opts Options) ([]Interval, error) {
	windows := ariesk.EnumerateKmers(query, ramifier.K)
	if len(windows) == 0 {
		return nil, nil
	}

	// hits[contigID][diagonal] = hits on that diagonal, in window order.
	hits := map[int64]map[int][]hit{}
	for _, w := range windows {
		vec, err := ramifier.Ramify(w.Kmer)
		if err != nil {
			return nil, err
		}
		candidates := ariesk.CoarseSearch(index, vec, opts.Radius)
		for _, centroidID := range candidates {
			members, err := src.GetClusterMembers(centroidID)
			if err != nil {
				return nil, err
			}
			for _, m := range members {
				d := m.ContigOffset - w.Offset
				byDiag, ok := hits[m.ContigID]
				if !ok {
					byDiag = map[int][]hit{}
					hits[m.ContigID] = byDiag
				}
				byDiag[d] = append(byDiag[d], hit{queryOffset: w.Offset, contigOffset: m.ContigOffset})
			}
		}
	}

	totalWindows := len(windows)
	var results []Interval
	contigIDs := make([]int64, 0, len(hits))
	for id := range hits {
		contigIDs = append(contigIDs, id)
	}
	sort.Slice(contigIDs, func(i, j int) bool { return contigIDs[i] < contigIDs[j] })

	for _, contigID := range contigIDs {
		byDiag := hits[contigID]
		diagonals := make([]int, 0, len(byDiag))
		for d := range byDiag {
			diagonals = append(diagonals, d)
		}
		sort.Ints(diagonals)

		for _, d := range diagonals {
			for _, region := range clusterDiagonal(byDiag[d], opts.MaxGap) {
				iv, ok, err := extend(src, contigs, contigID, region, query, totalWindows, opts)
				if err != nil {
					return nil, err
				}
				if ok {
					results = append(results, iv)
				}
			}
		}
	}

	return mergeAndOrder(results), nil
}

// clusterDiagonal groups hits on one diagonal whose query offsets fall
// within maxGap of a neighbor, using an interval tree the way kortschak-ins
// culls overlapping BLAST hits: each hit is inserted as a window
// [offset, offset+maxGap], so two hits' windows overlap exactly when their
// offsets are at most maxGap apart, and overlapping hits land in the same
// seed region.
func clusterDiagonal(hs []hit, maxGap int) [][]hit {
	if len(hs) == 0 {
		return nil
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].queryOffset < hs[j].queryOffset })

	var tree interval.IntTree
	for i, h := range hs {
		iv := diagInterval{uid: uintptr(i), offset: h.queryOffset, maxGap: maxGap}
		if err := tree.Insert(iv, true); err != nil {
			panic(err)
		}
	}
	tree.AdjustRanges()

	parent := make([]int, len(hs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i, h := range hs {
		self := diagInterval{uid: uintptr(i), offset: h.queryOffset, maxGap: maxGap}
		for _, o := range tree.Get(self) {
			union(i, int(o.ID()))
		}
	}

	groups := map[int][]hit{}
	for i, h := range hs {
		r := find(i)
		groups[r] = append(groups[r], h)
	}
	roots := make([]int, 0, len(groups))
	for r := range groups {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	out := make([][]hit, 0, len(groups))
	for _, r := range roots {
		out = append(out, groups[r])
	}
	return out
}

// diagInterval is a hit's window on the query-offset axis, used only to
// drive interval.IntTree's overlap clustering.
type diagInterval struct {
	uid    uintptr
	offset int
	maxGap int
}

func (d diagInterval) ID() uintptr { return d.uid }

func (d diagInterval) Range() interval.IntRange {
	return interval.IntRange{Start: d.offset, End: d.offset + d.maxGap}
}

func (d diagInterval) Overlap(b interval.IntRange) bool {
	r := d.Range()
	return b.Start <= r.End && r.Start <= b.End
}

// extend widens a seed region in both directions by a bounded alignment
// against the stored contig sequence and reports it if it clears both the
// k-mer-coverage and sequence-identity thresholds.
func extend(src ariesk.ClusterSource, contigs ContigSource, contigID int64, region []hit, query string, totalWindows int, opts Options) (Interval, bool, error) {
	qMin, qMax := region[0].queryOffset, region[0].queryOffset
	tMin, tMax := region[0].contigOffset, region[0].contigOffset
	for _, h := range region[1:] {
		if h.queryOffset < qMin {
			qMin = h.queryOffset
		}
		if h.queryOffset > qMax {
			qMax = h.queryOffset
		}
		if h.contigOffset < tMin {
			tMin = h.contigOffset
		}
		if h.contigOffset > tMax {
			tMax = h.contigOffset
		}
	}

	genomeName, contigName, contigLen, err := contigs.ContigMeta(contigID)
	if err != nil {
		return Interval{}, false, err
	}

	margin := opts.ExtensionMargin
	qStart := clamp(qMin-margin, 0, len(query))
	qEnd := clamp(qMax+margin, 0, len(query))
	tStart := clamp(tMin-margin, 0, contigLen)
	tEnd := clamp(tMax+margin, 0, contigLen)

	qSub := query[qStart:qEnd]
	tSub, err := contigs.GetSequence(contigID, tStart, tEnd)
	if err != nil {
		return Interval{}, false, err
	}

	maxCost := len(qSub) + len(tSub) // effectively unbounded; extension windows are small
	dist := ariesk.BoundedNeedlemanWunsch(qSub, tSub, maxCost)
	alignedLen := len(qSub)
	if len(tSub) > alignedLen {
		alignedLen = len(tSub)
	}
	identity := 1.0
	if alignedLen > 0 {
		identity = 1 - float64(dist)/float64(alignedLen)
	}

	distinctOffsets := map[int]struct{}{}
	for _, h := range region {
		distinctOffsets[h.queryOffset] = struct{}{}
	}
	coverage := float64(len(distinctOffsets)) / float64(totalWindows)

	if coverage < opts.KmerFraction || identity < opts.SeqIdentity {
		return Interval{}, false, nil
	}

	return Interval{
		QStart:     qStart,
		QEnd:       qEnd,
		TStart:     tStart,
		TEnd:       tEnd,
		ContigID:   contigID,
		GenomeName: genomeName,
		ContigName: contigName,
		Score:      identity,
	}, true, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mergeAndOrder unions identical-score overlapping intervals (same contig,
// overlapping [TStart,TEnd) spans) into one interval spanning their union,
// then orders descending by score, ascending by (ContigID, TStart).
func mergeAndOrder(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		if in[i].ContigID != in[j].ContigID {
			return in[i].ContigID < in[j].ContigID
		}
		return in[i].TStart < in[j].TStart
	})

	var merged []Interval
	for _, iv := range in {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.ContigID == iv.ContigID && last.Score == iv.Score && iv.TStart <= last.TEnd {
				if iv.TEnd > last.TEnd {
					last.TEnd = iv.TEnd
				}
				if iv.QEnd > last.QEnd {
					last.QEnd = iv.QEnd
				}
				if iv.QStart < last.QStart {
					last.QStart = iv.QStart
				}
				continue
			}
		}
		merged = append(merged, iv)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].ContigID != merged[j].ContigID {
			return merged[i].ContigID < merged[j].ContigID
		}
		return merged[i].TStart < merged[j].TStart
	})
	return merged
}
