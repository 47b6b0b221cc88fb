package session

import (
	"math"

	"github.com/eigerco/bramble/internal/parachain"
)

// Grid arranges the session's validators in a square-like grid where
// validators are neighbors if they share a row or column. Statements that
// leave a cluster propagate along grid rows and columns, so a node only
// forwards to its neighbors instead of broadcasting to the whole set.
type Grid struct {
	size  int
	width int
}

// NewGrid builds the grid for a validator set of the given size.
// The grid width is floor(sqrt(size)), keeping the dimensions as close to
// square as possible.
func NewGrid(size int) Grid {
	width := int(math.Floor(math.Sqrt(float64(size))))
	if width < 1 {
		width = 1
	}
	return Grid{size: size, width: width}
}

// Neighbors returns all validator indices sharing a row or column with the
// given index, excluding the index itself.
func (g Grid) Neighbors(index parachain.ValidatorIndex) []parachain.ValidatorIndex {
	if int(index) >= g.size {
		return nil
	}
	neighbors := make([]parachain.ValidatorIndex, 0, 2*(g.width-1))

	rowStart := (int(index) / g.width) * g.width
	rowEnd := rowStart + g.width
	if rowEnd > g.size {
		rowEnd = g.size
	}
	for i := rowStart; i < rowEnd; i++ {
		if i != int(index) {
			neighbors = append(neighbors, parachain.ValidatorIndex(i))
		}
	}

	for i := int(index) % g.width; i < g.size; i += g.width {
		if i != int(index) {
			neighbors = append(neighbors, parachain.ValidatorIndex(i))
		}
	}

	return neighbors
}

// IsNeighbor reports whether two distinct validators share a row or column.
func (g Grid) IsNeighbor(a, b parachain.ValidatorIndex) bool {
	if a == b || int(a) >= g.size || int(b) >= g.size {
		return false
	}
	rowA, colA := int(a)/g.width, int(a)%g.width
	rowB, colB := int(b)/g.width, int(b)%g.width
	return rowA == rowB || colA == colB
}
