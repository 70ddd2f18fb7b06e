// Package retrieval selects the earlier messages of a conversation that are
// semantically closest to the current one.
package retrieval

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrDataInconsistency is returned when the corpus vectors and texts do not line up.
// The aligned prefix is still ranked.
var ErrDataInconsistency = errors.New("embedding corpus and message history are misaligned")

// Default retrieval parameters.
const (
	DefaultTopK          = 3
	DefaultMinSimilarity = 0.7
)

// Options tunes Rank and Retrieve.
type Options struct {
	// TopK is the number of best candidates considered. Default 3.
	TopK int
	// MinSimilarity is an exclusive lower bound; a candidate must score strictly above it.
	MinSimilarity float64
}

// DefaultOptions returns TopK 3 and MinSimilarity 0.7.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, MinSimilarity: DefaultMinSimilarity}
}

// Match is a ranked corpus entry.
type Match struct {
	Index      int
	Similarity float64
}

// CosineSimilarity calculates cosine similarity between two vectors.
// Vectors of different length, empty vectors and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every corpus vector against query and returns the indexes of
// the best TopK whose similarity is strictly greater than MinSimilarity, best first.
// Equal scores keep corpus order.
func Rank(query []float32, vectors [][]float32, opts Options) []Match {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	matches := make([]Match, len(vectors))
	for i, vec := range vectors {
		matches[i] = Match{Index: i, Similarity: CosineSimilarity(query, vec)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Similarity > opts.MinSimilarity {
			kept = append(kept, m)
		}
	}
	return kept
}

// Retrieve returns the texts of the relevant corpus entries joined by "\n",
// or "" when nothing qualifies. texts[i] is the message vectors[i] was computed from.
//
// When the two slices differ in length only the aligned prefix is searched and
// the result is returned together with ErrDataInconsistency.
func Retrieve(query []float32, vectors [][]float32, texts []string, opts Options) (string, error) {
	var err error
	if len(vectors) != len(texts) {
		err = fmt.Errorf("%w: %d vectors, %d messages", ErrDataInconsistency, len(vectors), len(texts))
		n := min(len(vectors), len(texts))
		vectors, texts = vectors[:n], texts[:n]
	}

	matches := Rank(query, vectors, opts)
	if len(matches) == 0 {
		return "", err
	}

	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = texts[m.Index]
	}
	return strings.Join(parts, "\n"), err
}
