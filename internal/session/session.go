package session

import (
	"crypto/ed25519"
	"fmt"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
)

// Info describes the validator topology of one session: the full validator
// set and its partition into small backing groups ("clusters"). Group
// membership is fixed for the session; this package does not compute group
// assignment, it only answers lookups against an assignment handed to it.
type Info struct {
	Index      parachain.SessionIndex
	Validators []crypto.ValidatorKey
	Groups     [][]parachain.ValidatorIndex

	groupOf map[parachain.ValidatorIndex]parachain.GroupIndex
}

// NewInfo builds session info from a validator set and a group partition.
// Every group member index must be within the validator set.
func NewInfo(index parachain.SessionIndex, validators []crypto.ValidatorKey, groups [][]parachain.ValidatorIndex) (*Info, error) {
	groupOf := make(map[parachain.ValidatorIndex]parachain.GroupIndex)
	for gi, group := range groups {
		for _, vi := range group {
			if int(vi) >= len(validators) {
				return nil, fmt.Errorf("group %d member %d outside validator set of size %d", gi, vi, len(validators))
			}
			if _, dup := groupOf[vi]; dup {
				return nil, fmt.Errorf("validator %d assigned to more than one group", vi)
			}
			groupOf[vi] = parachain.GroupIndex(gi)
		}
	}
	return &Info{
		Index:      index,
		Validators: validators,
		Groups:     groups,
		groupOf:    groupOf,
	}, nil
}

// ValidatorKey returns the session keys of the validator at the given index.
func (s *Info) ValidatorKey(index parachain.ValidatorIndex) (crypto.ValidatorKey, bool) {
	if int(index) >= len(s.Validators) {
		return crypto.ValidatorKey{}, false
	}
	return s.Validators[index], true
}

// GroupOf returns the group a validator belongs to, if any.
func (s *Info) GroupOf(index parachain.ValidatorIndex) (parachain.GroupIndex, bool) {
	g, ok := s.groupOf[index]
	return g, ok
}

// GroupMembers returns the validator indices of a group in canonical order.
func (s *Info) GroupMembers(group parachain.GroupIndex) []parachain.ValidatorIndex {
	if int(group) >= len(s.Groups) {
		return nil
	}
	return s.Groups[group]
}

// GroupForPara returns the group currently assigned to back the given
// parachain. Rotation of the assignment is relay-chain state and out of
// scope here; the static mapping keeps candidates of one para with one group.
func (s *Info) GroupForPara(para parachain.ParaID) parachain.GroupIndex {
	if len(s.Groups) == 0 {
		return 0
	}
	return parachain.GroupIndex(uint32(para) % uint32(len(s.Groups)))
}

// PositionInGroup returns the position of a validator within its group.
// Statement filters are indexed by this position.
func (s *Info) PositionInGroup(group parachain.GroupIndex, index parachain.ValidatorIndex) (int, bool) {
	for i, vi := range s.GroupMembers(group) {
		if vi == index {
			return i, true
		}
	}
	return 0, false
}

// FindValidatorIndex searches the session's validator set for the given
// Ed25519 signing key. Returns the index and true if found.
func (s *Info) FindValidatorIndex(key ed25519.PublicKey) (parachain.ValidatorIndex, bool) {
	for i, v := range s.Validators {
		if !v.IsEmpty() && v.Ed25519.Equal(key) {
			return parachain.ValidatorIndex(i), true
		}
	}
	return 0, false
}
