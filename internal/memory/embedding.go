// Package memory provides per-character experience streams with ranked
// retrieval blending semantic similarity, emotional resonance, and recency.
package memory

import (
	"hash/fnv"
	"math"
	"strings"
)

// EmbeddingDims is the dimensionality of the reference embedder. A real
// embedding model behind the same interface may use any width; entries
// only compare against queries produced by the same Embedder.
const EmbeddingDims = 64

// Embedder turns text into a vector for semantic scoring.
type Embedder interface {
	Embed(text string) []float64
}

// HashEmbedder is the deterministic reference Embedder: feature hashing of
// lowercased tokens into a fixed-width signed vector, L2-normalized.
// Pure arithmetic, no model and no network, so retrieval stays fully
// testable with the oracle disabled.
type HashEmbedder struct{}

// Embed hashes each token into one of EmbeddingDims buckets with a
// hash-derived sign, then normalizes.
func (HashEmbedder) Embed(text string) []float64 {
	vec := make([]float64, EmbeddingDims)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := sum % EmbeddingDims
		sign := 1.0
		if (sum>>32)&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}
	normalize(vec)
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched
// lengths or zero vectors.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
