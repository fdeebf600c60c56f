package ariesk

import (
	"math"
	"sync"
)

// ramanujanCache memoizes RS[N] matrices, a per-N constant. Computed lazily
// once per process and shared read-only, the same way the teacher's
// seed-hash tables are built once in an init-style lazy path rather than
// recomputed per call.
var ramanujanCache sync.Map // map[int]*matrixRS

type matrixRS struct {
	n    int
	data []float64 // row-major n x n
}

func (m *matrixRS) at(row, col int) float64 { return m.data[row*m.n+col] }

// totient returns Euler's totient of n by trial division; n is always a
// small dimension (4k, with k in the tens), so this need not be fast.
func totient(n int) int {
	count := 0
	for k := 1; k <= n; k++ {
		if gcd(n, k) == 1 {
			count++
		}
	}
	return count
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ramanujanSum returns the real part of c_q(n) = sum over p in [1,q] with
// gcd(p,q)=1 of exp(2*pi*i*n*p/q).
func ramanujanSum(n, q int) float64 {
	var sum float64
	for p := 1; p <= q; p++ {
		if gcd(p, q) != 1 {
			continue
		}
		theta := 2 * math.Pi * float64(n) * float64(p) / float64(q)
		sum += math.Cos(theta)
	}
	return sum
}

// buildRamanujanMatrix computes RS[N], where
// RS[q,j] = (1 / (phi(q) * N)) * c_q(1 + (j-1) mod q), 1-indexed q, j.
func buildRamanujanMatrix(n int) *matrixRS {
	data := make([]float64, n*n)
	for q1 := 1; q1 <= n; q1++ {
		phiQ := float64(totient(q1))
		for j1 := 1; j1 <= n; j1++ {
			arg := 1 + (j1-1)%q1
			data[(q1-1)*n+(j1-1)] = ramanujanSum(arg, q1) / (phiQ * float64(n))
		}
	}
	return &matrixRS{n: n, data: data}
}

// ramanujanMatrix returns the cached RS[N] matrix, building it on first use.
func ramanujanMatrix(n int) *matrixRS {
	if v, ok := ramanujanCache.Load(n); ok {
		return v.(*matrixRS)
	}
	m := buildRamanujanMatrix(n)
	actual, _ := ramanujanCache.LoadOrStore(n, m)
	return actual.(*matrixRS)
}
