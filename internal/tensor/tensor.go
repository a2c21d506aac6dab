// Package tensor provides the small numeric primitives shared by both
// inference engines: softmax, greedy/top-k sampling, and a seeded
// multinomial draw. Operates directly on []float32 rather than a tensor
// type, since both engines only ever need row-wise vector math over logits
// already extracted from an ONNX output tensor.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Softmax returns a new slice holding the softmax of x. Uses the standard
// max-subtraction trick for numerical stability.
func Softmax(x []float32) ([]float32, error) {
	if len(x) == 0 {
		return nil, errors.New("tensor: softmax on empty input")
	}

	maxV := x[0]
	for _, v := range x[1:] {
		if v > maxV {
			maxV = v
		}
	}

	out := make([]float32, len(x))

	var sum float64

	for i, v := range x {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}

	if sum == 0 {
		return nil, errors.New("tensor: softmax encountered zero normalization sum")
	}

	inv := float32(1.0 / sum)
	for i := range out {
		out[i] *= inv
	}

	return out, nil
}

// ArgMax returns the index of the largest element of x.
func ArgMax(x []float32) (int, error) {
	if len(x) == 0 {
		return 0, errors.New("tensor: argmax on empty input")
	}

	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}

	return best, nil
}

// TopK returns the indices of the k largest elements of x, sorted from
// largest to smallest. If k >= len(x), every index is returned in
// descending-value order.
func TopK(x []float32, k int) ([]int, error) {
	if len(x) == 0 {
		return nil, errors.New("tensor: topk on empty input")
	}

	if k <= 0 {
		return nil, fmt.Errorf("tensor: topk requires k > 0, got %d", k)
	}

	if k > len(x) {
		k = len(x)
	}

	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}

	sort.Slice(idx, func(a, b int) bool {
		return x[idx[a]] > x[idx[b]]
	})

	return idx[:k], nil
}

// Rng is the seeded pseudo-random source shared by top-k sampling and
// diffusion latent/noise initialization. Each job constructs its own Rng
// from its request seed; never shared across jobs or goroutines.
type Rng struct {
	r *rand.Rand
}

// NewRng seeds a deterministic PRNG from a 64-bit job seed. Uses PCG, whose
// output sequence for a given seed is stable across Go releases, which is
// what makes same-seed/same-device generation byte-identical per spec.
func NewRng(seed uint64) *Rng {
	return &Rng{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Float32 returns a uniform random float32 in [0, 1).
func (g *Rng) Float32() float32 {
	return float32(g.r.Float64())
}

// NormFloat32 returns a standard-normal (mean 0, stddev 1) random float32,
// used for diffusion latent initialization and PingPong noise re-injection.
func (g *Rng) NormFloat32() float32 {
	return float32(g.r.NormFloat64())
}

// SampleTopK draws one index from logits using temperature-scaled top-k
// sampling: restrict to the k highest logits, softmax them, and draw from
// the resulting categorical distribution. Returns the original index into
// logits (not an index into the truncated top-k slice).
func (g *Rng) SampleTopK(logits []float32, k int, temperature float32) (int, error) {
	if temperature <= 0 {
		return 0, fmt.Errorf("tensor: sample top-k requires temperature > 0, got %f", temperature)
	}

	indices, err := TopK(logits, k)
	if err != nil {
		return 0, err
	}

	scaled := make([]float32, len(indices))
	for i, idx := range indices {
		scaled[i] = logits[idx] / temperature
	}

	probs, err := Softmax(scaled)
	if err != nil {
		return 0, err
	}

	draw := g.Float32()

	var cum float32

	for i, p := range probs {
		cum += p
		if draw < cum {
			return indices[i], nil
		}
	}

	// Floating-point rounding can leave draw just past the cumulative sum;
	// fall back to the last candidate, whose interval the draw would have
	// landed in with exact arithmetic.
	return indices[len(indices)-1], nil
}
