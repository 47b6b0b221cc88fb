package statedist

import "github.com/eigerco/bramble/internal/parachain"

// StatementFilter is a pair of bitsets, one per statement kind, indexed by
// position within a candidate's validator group. A set bit marks a
// (validator, kind) pair as known to the party presenting the filter.
// Attached to requests as a snapshot of the requester's knowledge, so the
// responder can skip statements the requester already has.
type StatementFilter struct {
	SecondedInGroup []bool `scale:"1"`
	ValidInGroup    []bool `scale:"2"`
}

// NewStatementFilter returns a blank filter for a group of the given size.
func NewStatementFilter(groupSize int) StatementFilter {
	return StatementFilter{
		SecondedInGroup: make([]bool, groupSize),
		ValidInGroup:    make([]bool, groupSize),
	}
}

// GroupSize returns the group size the filter was built for, or false if
// the two bitsets disagree on length.
func (f StatementFilter) GroupSize() (int, bool) {
	if len(f.SecondedInGroup) != len(f.ValidInGroup) {
		return 0, false
	}
	return len(f.SecondedInGroup), true
}

// Contains reports whether the bit for (position, kind) is set.
// Positions outside the group report false.
func (f StatementFilter) Contains(position int, kind parachain.StatementKind) bool {
	bits := f.bits(kind)
	if bits == nil || position < 0 || position >= len(bits) {
		return false
	}
	return bits[position]
}

// Set marks the bit for (position, kind). Setting an already-set bit is a
// no-op; it returns whether the bit was freshly set.
func (f StatementFilter) Set(position int, kind parachain.StatementKind) bool {
	bits := f.bits(kind)
	if bits == nil || position < 0 || position >= len(bits) {
		return false
	}
	if bits[position] {
		return false
	}
	bits[position] = true
	return true
}

// IsComplete reports whether every bit of both kinds is set.
func (f StatementFilter) IsComplete() bool {
	for _, b := range f.SecondedInGroup {
		if !b {
			return false
		}
	}
	for _, b := range f.ValidInGroup {
		if !b {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the filter. Request masks are clones
// so later local updates cannot retroactively change a sent mask.
func (f StatementFilter) Clone() StatementFilter {
	out := NewStatementFilter(len(f.SecondedInGroup))
	copy(out.SecondedInGroup, f.SecondedInGroup)
	if len(f.ValidInGroup) != len(f.SecondedInGroup) {
		out.ValidInGroup = make([]bool, len(f.ValidInGroup))
	}
	copy(out.ValidInGroup, f.ValidInGroup)
	return out
}

func (f StatementFilter) bits(kind parachain.StatementKind) []bool {
	switch kind {
	case parachain.StatementSeconded:
		return f.SecondedInGroup
	case parachain.StatementValid:
		return f.ValidInGroup
	default:
		return nil
	}
}
