// Package metric implements the similarity scoring used for both routing
// (beam search against centroids) and final ranking (leaf points against
// the query).
package metric

import (
	"math"

	"github.com/hatindex/hat"
)

// Score computes the similarity of u against v under the given metric.
// Higher is better for both cosine and dot. Cosine treats a zero-norm
// vector as scoring 0 against everything, rather than dividing by zero.
func Score(m hat.Metric, u, v []float32) float32 {
	if m == hat.Dot {
		return dot(u, v)
	}
	return cosine(u, v)
}

func dot(u, v []float32) float32 {
	var sum float32
	n := len(u)
	if len(v) < n {
		n = len(v)
	}
	for i := 0; i < n; i++ {
		sum += u[i] * v[i]
	}
	return sum
}

func cosine(u, v []float32) float32 {
	d := dot(u, v)
	nu := norm(u)
	nv := norm(v)
	if nu == 0 || nv == 0 {
		return 0
	}
	return d / (nu * nv)
}

func norm(u []float32) float32 {
	var sumSq float64
	for _, x := range u {
		sumSq += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sumSq))
}

// EuclideanDistance is used by the consolidation engine's split/merge
// clustering, not by routing or ranking.
func EuclideanDistance(u, v []float32) float32 {
	var sumSq float64
	n := len(u)
	if len(v) < n {
		n = len(v)
	}
	for i := 0; i < n; i++ {
		d := float64(u[i]) - float64(v[i])
		sumSq += d * d
	}
	return float32(math.Sqrt(sumSq))
}
