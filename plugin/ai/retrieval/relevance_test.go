package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{name: "identical vectors", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, expected: 1.0},
		{name: "orthogonal vectors", a: []float32{1, 0, 0}, b: []float32{0, 1, 0}, expected: 0.0},
		{name: "opposite vectors", a: []float32{1, 0, 0}, b: []float32{-1, 0, 0}, expected: -1.0},
		{name: "similar vectors", a: []float32{1, 2, 3}, b: []float32{1, 2, 4}, expected: 0.9914},
		{name: "zero vector", a: []float32{0, 0, 0}, b: []float32{1, 2, 3}, expected: 0.0},
		{name: "empty vectors", a: []float32{}, b: []float32{}, expected: 0.0},
		{name: "different length", a: []float32{1, 2}, b: []float32{1, 2, 3}, expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 0.001)
		})
	}
}

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	for _, v := range [][]float32{{0.3, -1.2, 4}, {1e-3, 2e-3}, {7}} {
		assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	}
}

// unitAt returns a unit vector whose cosine with (1, 0) is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestRank_ThresholdAndOrder(t *testing.T) {
	query := []float32{1, 0}
	vectors := [][]float32{unitAt(0.9), unitAt(0.5), unitAt(0.71)}

	matches := Rank(query, vectors, DefaultOptions())

	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].Index)
	assert.Equal(t, 2, matches[1].Index)
	assert.InDelta(t, 0.9, matches[0].Similarity, 1e-6)
}

func TestRank_ThresholdIsExclusive(t *testing.T) {
	query := []float32{1, 0}
	vectors := [][]float32{{1, 1}} // cos = 0.7071

	assert.Empty(t, Rank(query, vectors, Options{TopK: 3, MinSimilarity: CosineSimilarity(query, vectors[0])}))
	assert.Len(t, Rank(query, vectors, Options{TopK: 3, MinSimilarity: 0.7}), 1)
}

func TestRank_TopKBeforeThreshold(t *testing.T) {
	query := []float32{1, 0}
	vectors := [][]float32{unitAt(0.8), unitAt(0.95), unitAt(0.75), unitAt(0.9), unitAt(0.99)}

	matches := Rank(query, vectors, DefaultOptions())

	indexes := make([]int, len(matches))
	for i, m := range matches {
		indexes[i] = m.Index
	}
	assert.Equal(t, []int{4, 1, 3}, indexes)
}

func TestRank_StableTies(t *testing.T) {
	query := []float32{1, 0}
	same := unitAt(0.8)
	vectors := [][]float32{same, unitAt(0.9), same, same}

	matches := Rank(query, vectors, DefaultOptions())

	require.Len(t, matches, 3)
	assert.Equal(t, []int{1, 0, 2}, []int{matches[0].Index, matches[1].Index, matches[2].Index})
}

func TestRetrieve(t *testing.T) {
	query := []float32{1, 0}

	t.Run("empty corpus", func(t *testing.T) {
		out, err := Retrieve(query, nil, nil, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, "", out)
	})

	t.Run("nothing above threshold", func(t *testing.T) {
		out, err := Retrieve(query, [][]float32{{0, 1}}, []string{"unrelated"}, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, "", out)
	})

	t.Run("joined in rank order", func(t *testing.T) {
		vectors := [][]float32{unitAt(0.9), unitAt(0.5), unitAt(0.71)}
		texts := []string{"first", "second", "third"}

		out, err := Retrieve(query, vectors, texts, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, "first\nthird", out)
	})

	t.Run("misaligned corpus ranks the aligned prefix", func(t *testing.T) {
		vectors := [][]float32{unitAt(0.6), unitAt(0.95), unitAt(0.99)}
		texts := []string{"low", "high"}

		out, err := Retrieve(query, vectors, texts, DefaultOptions())
		assert.ErrorIs(t, err, ErrDataInconsistency)
		assert.Equal(t, "high", out)
	})

	t.Run("more texts than vectors", func(t *testing.T) {
		out, err := Retrieve(query, [][]float32{unitAt(0.95)}, []string{"a", "b"}, DefaultOptions())
		assert.ErrorIs(t, err, ErrDataInconsistency)
		assert.Equal(t, "a", out)
	})
}
