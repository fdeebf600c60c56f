package ariesk

import (
	"encoding/json"
	"io"

	"gonum.org/v1/gonum/mat"
)

// RVector is a D-dimensional real embedding of a k-mer.
type RVector []float64

// L1Distance returns the L1 (Manhattan) distance between two vectors of
// equal length.
func L1Distance(a, b RVector) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// RotationArtifact is the external JSON document describing a precomputed
// PCA-style rotation, training external to the core.
type RotationArtifact struct {
	K        int         `json:"k"`
	Center   []float64   `json:"center"`
	Scale    []float64   `json:"scale"`
	Rotation [][]float64 `json:"rotation"`
}

// LoadRotationArtifact decodes and shape-validates a rotation artifact.
// Center and Scale must have length 4k; Rotation must have at least D rows
// (only the first D are used) each of length 4k. Shape mismatches are
// reported as InvalidInput.
func LoadRotationArtifact(r io.Reader, d int) (*RotationArtifact, error) {
	var art RotationArtifact
	if err := json.NewDecoder(r).Decode(&art); err != nil {
		return nil, Errorf(InvalidInput, err, "decoding rotation artifact")
	}
	n := 4 * art.K
	if len(art.Center) != n {
		return nil, Errorf(InvalidInput, nil,
			"rotation artifact center has length %d, want %d", len(art.Center), n)
	}
	if len(art.Scale) != n {
		return nil, Errorf(InvalidInput, nil,
			"rotation artifact scale has length %d, want %d", len(art.Scale), n)
	}
	if len(art.Rotation) < d {
		return nil, Errorf(InvalidInput, nil,
			"rotation artifact has %d rows, need at least D=%d", len(art.Rotation), d)
	}
	for i := 0; i < d; i++ {
		if len(art.Rotation[i]) != n {
			return nil, Errorf(InvalidInput, nil,
				"rotation artifact row %d has length %d, want %d", i, len(art.Rotation[i]), n)
		}
	}
	return &art, nil
}

// Ramifier embeds k-mers into a D-dimensional real vector.
// Ramify is safe to call concurrently once a Ramifier is constructed: all
// of its fields are immutable after NewRamifier returns, and the shared
// RS[N] cache is synchronized independently (see ramanujan.go).
type Ramifier struct {
	K      int
	D      int
	center []float64
	scale  []float64
	// rotation is D x 4k.
	rotation *mat.Dense
	rs       *matrixRS
}

// NewRamifier constructs a Ramifier from k, D, and a rotation artifact.
// Only the artifact's first D rows are used.
func NewRamifier(k, d int, art *RotationArtifact) (*Ramifier, error) {
	if art.K != k {
		return nil, Errorf(ParameterMismatch, nil,
			"rotation artifact built for k=%d, ramifier requested k=%d", art.K, k)
	}
	n := 4 * k
	rot := mat.NewDense(d, n, nil)
	for i := 0; i < d; i++ {
		for j := 0; j < n; j++ {
			rot.Set(i, j, art.Rotation[i][j])
		}
	}
	return &Ramifier{
		K:        k,
		D:        d,
		center:   append([]float64(nil), art.Center...),
		scale:    append([]float64(nil), art.Scale...),
		rotation: rot,
		rs:       ramanujanMatrix(n),
	}, nil
}

// Ramify computes the embedding of a k-mer: one-hot expand -> Ramanujan-sum
// matrix -> center/scale -> rotate to D dimensions. The k-mer must have
// length r.K; it is read directly from its packed 2-bit form.
func (r *Ramifier) Ramify(k Kmer) (RVector, error) {
	if k.Len != r.K {
		return nil, Errorf(InvalidInput, nil,
			"k-mer has length %d, ramifier expects %d", k.Len, r.K)
	}
	n := 4 * r.K

	// One-hot indicator vector over (position, base).
	indicator := make([]float64, n)
	for i := 0; i < r.K; i++ {
		byteIdx := i / 4
		shift := uint(6 - 2*(i%4))
		code := (k.Packed[byteIdx] >> shift) & 0x3
		indicator[4*i+int(code)] = 1
	}

	// Apply the fixed Ramanujan-sum matrix: intermediate = RS * indicator.
	intermediate := make([]float64, n)
	for row := 0; row < n; row++ {
		var sum float64
		for col := 0; col < n; col++ {
			sum += r.rs.at(row, col) * indicator[col]
		}
		intermediate[row] = sum
	}

	// Center and scale per-coordinate.
	centered := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v := intermediate[i] - r.center[i]
		if r.scale[i] != 0 {
			v /= r.scale[i]
		}
		centered.SetVec(i, v)
	}

	// Project into D dimensions: out = rotation * centered.
	out := mat.NewVecDense(r.D, nil)
	out.MulVec(r.rotation, centered)

	rv := make(RVector, r.D)
	for i := 0; i < r.D; i++ {
		rv[i] = out.AtVec(i)
	}
	return rv, nil
}
