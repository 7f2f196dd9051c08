package vectorstore

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrEmptyIndex 索引中没有向量
	ErrEmptyIndex = errors.New("vector index is empty")
	// ErrDimensionMismatch 向量维度不一致
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Neighbor 近邻结果
type Neighbor struct {
	Row      int     // 向量在索引中的行号
	Distance float64 // 平方欧氏距离
}

// FlatL2Index 暴力搜索的 L2 索引，构建后不可修改，可并发读
type FlatL2Index struct {
	dimension int
	vectors   [][]float32
}

// NewFlatL2Index 用一组等长向量构建索引（会复制输入）
func NewFlatL2Index(vectors [][]float32) (*FlatL2Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}

	dimension := len(vectors[0])
	if dimension == 0 {
		return nil, fmt.Errorf("%w: zero-length vector at row 0", ErrDimensionMismatch)
	}

	copied := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("%w: row %d has %d, want %d", ErrDimensionMismatch, i, len(v), dimension)
		}
		copied[i] = append([]float32(nil), v...)
	}

	return &FlatL2Index{dimension: dimension, vectors: copied}, nil
}

// Nearest 返回距离最近的 k 个向量，距离相同按行号升序
func (idx *FlatL2Index) Nearest(query []float32, k int) ([]Neighbor, error) {
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), idx.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	neighbors := make([]Neighbor, len(idx.vectors))
	for row, v := range idx.vectors {
		neighbors[row] = Neighbor{Row: row, Distance: SquaredL2(query, v)}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Len 向量数量
func (idx *FlatL2Index) Len() int {
	return len(idx.vectors)
}

// Dimension 向量维度
func (idx *FlatL2Index) Dimension() int {
	return idx.dimension
}
