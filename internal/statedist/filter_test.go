package statedist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/bramble/internal/parachain"
)

func TestStatementFilterSetAndContains(t *testing.T) {
	f := NewStatementFilter(3)

	assert.False(t, f.Contains(0, parachain.StatementSeconded))
	assert.True(t, f.Set(0, parachain.StatementSeconded))
	assert.True(t, f.Contains(0, parachain.StatementSeconded))
	assert.False(t, f.Contains(0, parachain.StatementValid))

	// setting an already-set bit is a no-op
	assert.False(t, f.Set(0, parachain.StatementSeconded))
}

func TestStatementFilterOutOfRange(t *testing.T) {
	f := NewStatementFilter(2)

	assert.False(t, f.Set(-1, parachain.StatementSeconded))
	assert.False(t, f.Set(2, parachain.StatementValid))
	assert.False(t, f.Contains(-1, parachain.StatementSeconded))
	assert.False(t, f.Contains(2, parachain.StatementValid))
	assert.False(t, f.Set(0, parachain.StatementKind(7)))
	assert.False(t, f.Contains(0, parachain.StatementKind(7)))
}

func TestStatementFilterGroupSize(t *testing.T) {
	f := NewStatementFilter(4)
	size, ok := f.GroupSize()
	require.True(t, ok)
	assert.Equal(t, 4, size)

	mismatched := StatementFilter{
		SecondedInGroup: make([]bool, 3),
		ValidInGroup:    make([]bool, 4),
	}
	_, ok = mismatched.GroupSize()
	assert.False(t, ok)
}

func TestStatementFilterIsComplete(t *testing.T) {
	f := NewStatementFilter(2)
	assert.False(t, f.IsComplete())

	f.Set(0, parachain.StatementSeconded)
	f.Set(1, parachain.StatementSeconded)
	f.Set(0, parachain.StatementValid)
	assert.False(t, f.IsComplete())

	f.Set(1, parachain.StatementValid)
	assert.True(t, f.IsComplete())

	assert.True(t, NewStatementFilter(0).IsComplete())
}

func TestStatementFilterCloneIsIndependent(t *testing.T) {
	f := NewStatementFilter(3)
	f.Set(1, parachain.StatementSeconded)

	clone := f.Clone()
	assert.True(t, clone.Contains(1, parachain.StatementSeconded))

	f.Set(2, parachain.StatementValid)
	assert.False(t, clone.Contains(2, parachain.StatementValid))

	clone.Set(0, parachain.StatementSeconded)
	assert.False(t, f.Contains(0, parachain.StatementSeconded))
}
