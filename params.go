package ariesk

import "math"

// CoarseSearchRadius maps (ram_dim, k) to a table of {tolerated NW edit
// count -> recommended outer radius}, ported from the original parameter
// tables; entry -1 is the fallback for any edit count past the table's
// range.
var CoarseSearchRadius = map[[2]int]map[int]float64{
	{8, 64}: {
		0: 0.001000, 1: 0.012450, 2: 0.033463, 3: 0.047159, 4: 0.047159,
		5: 0.047159, 6: 0.051325, 7: 0.051325, 8: 0.055019, 9: 0.055019,
		10: 0.055019, 11: 0.055275, 12: 0.063451, 13: 0.063451, 14: 0.063451,
		15: 0.071191, 16: 0.071191, 17: 0.071191, 18: 0.071191, 19: 0.071191,
		20: 0.091198, 21: 0.091198, 22: 0.091198, 24: 0.091198, 25: 0.091198,
		26: 0.091198, 27: 0.091198, 28: 0.128071, 29: 0.147524, 30: 0.151455,
		31: 0.162224, 32: 0.194233, 33: 0.194233, 34: 0.194233, 35: 0.214527,
		36: 0.235639, 37: 0.235639, 38: 0.237776, 39: 0.247015, 40: 0.247015,
		41: 0.272538, 42: 0.281231, 43: 0.296970,
		-1: 0.3,
	},
}

// SubKFilter maps (sub_k, k) to a table of {tolerated NW edit count ->
// recommended minimum filter overlap}, ported verbatim from the same
// source as CoarseSearchRadius.
var SubKFilter = map[[2]int]map[int]float64{
	{6, 64}: {
		0: 0.950000, 1: 0.851724, 2: 0.753448, 3: 0.655172, 4: 0.573276,
		5: 0.499153, 6: 0.450847, 7: 0.450847, 8: 0.386441, 9: 0.305932,
		10: 0.229310, 11: 0.193220, 12: 0.177119, 13: 0.177119, 14: 0.177119,
		15: 0.144915, 16: 0.144915, 17: 0.144915, 18: 0.144915, 19: 0.144915,
		21: 0.064407, 22: 0.064407, 23: 0.016102, 24: 0.016102, 25: 0.016102,
		26: 0.016102, 27: 0.000000,
		-1: 0.000000,
	},
	{7, 64}: {
		0: 0.950000, 1: 0.835345, 2: 0.720690, 3: 0.606034, 4: 0.491379,
		5: 0.433333, 6: 0.409483, 7: 0.360345, 8: 0.327586, 9: 0.245690,
		10: 0.147414, 11: 0.114655, 12: 0.098276, 13: 0.098276, 14: 0.098276,
		15: 0.065517, 16: 0.065517, 17: 0.065517, 18: 0.065517, 19: 0.065517,
		20: 0.016379, 21: 0.016379, 22: 0.016379, 23: 0.000000,
		-1: 0.000000,
	},
}

// ParameterPicker auto-picks a coarse-search radius and a minimum bloom-grid
// filter overlap from a tolerated edit-rate, for clients that omit
// max_filter_misses from a search request.
type ParameterPicker struct {
	RamDim int
	KLen   int
	SubKLen int
}

// CoarseRadius rounds maxDiffRate*k up to an edit count and looks up the
// recommended outer radius for (RamDim, KLen), falling back to the table's
// -1 entry for any count the table doesn't cover explicitly. It returns -1
// when no table exists for the (RamDim, KLen) pair.
func (p ParameterPicker) CoarseRadius(maxDiffRate float64) float64 {
	sub, ok := CoarseSearchRadius[[2]int{p.RamDim, p.KLen}]
	if !ok {
		return -1
	}
	maxDiffs := int(math.Ceil(maxDiffRate * float64(p.KLen)))
	if v, ok := sub[maxDiffs]; ok {
		return v
	}
	return sub[-1]
}

// MinFilterOverlap is CoarseRadius's counterpart for the sub-k-mer bloom
// filter's minimum overlap, keyed by (SubKLen, KLen).
func (p ParameterPicker) MinFilterOverlap(maxDiffRate float64) float64 {
	sub, ok := SubKFilter[[2]int{p.SubKLen, p.KLen}]
	if !ok {
		return -1
	}
	maxDiffs := int(math.Ceil(maxDiffRate * float64(p.KLen)))
	if v, ok := sub[maxDiffs]; ok {
		return v
	}
	return sub[-1]
}
