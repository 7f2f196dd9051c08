package vectorstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatL2Index_Nearest(t *testing.T) {
	idx, err := NewFlatL2Index([][]float32{
		{0, 0},
		{1, 1},
		{5, 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.Dimension())

	got, err := idx.Nearest([]float32{0.9, 1.2}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Row)
	assert.InDelta(t, 0.05, got[0].Distance, 1e-6)

	all, err := idx.Nearest([]float32{6, 6}, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{2, 1, 0}, []int{all[0].Row, all[1].Row, all[2].Row})
}

func TestFlatL2Index_TiesPreferLowerRow(t *testing.T) {
	idx, err := NewFlatL2Index([][]float32{{1, 0}, {-1, 0}, {0, 1}})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, err := idx.Nearest([]float32{0, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, got[0].Row)
	}
}

func TestFlatL2Index_CopiesInput(t *testing.T) {
	src := [][]float32{{1, 2}}
	idx, err := NewFlatL2Index(src)
	require.NoError(t, err)

	src[0][0] = 100
	got, err := idx.Nearest([]float32{1, 2}, 1)
	require.NoError(t, err)
	assert.Zero(t, got[0].Distance)
}

func TestFlatL2Index_Errors(t *testing.T) {
	_, err := NewFlatL2Index(nil)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	_, err = NewFlatL2Index([][]float32{{1, 2}, {1}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	idx, err := NewFlatL2Index([][]float32{{1, 2}})
	require.NoError(t, err)
	_, err = idx.Nearest([]float32{1}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	got, err := idx.Nearest([]float32{1, 2}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 1}))
}

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, 25.0, SquaredL2([]float32{0, 0}, []float32{3, 4}))
	assert.True(t, math.IsInf(SquaredL2([]float32{0}, []float32{1, 2}), 1))
}
