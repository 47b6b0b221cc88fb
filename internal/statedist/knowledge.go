package statedist

import (
	"github.com/eigerco/bramble/internal/parachain"
)

// Knowledge tracks, for one relay parent, which (validator, kind) statement
// pairs are known locally per candidate, and which are known to each peer.
// Entries are only ever added; the whole structure is discarded when the
// relay parent is pruned.
type Knowledge struct {
	candidates map[parachain.CandidateHash]*candidateKnowledge
}

type candidateKnowledge struct {
	group   parachain.GroupIndex
	members []parachain.ValidatorIndex
	local   StatementFilter
	peers   map[parachain.PeerID]StatementFilter
}

func NewKnowledge() *Knowledge {
	return &Knowledge{candidates: make(map[parachain.CandidateHash]*candidateKnowledge)}
}

// Ensure creates the per-candidate record if it does not exist yet,
// binding the candidate to its validator group.
func (k *Knowledge) Ensure(candidate parachain.CandidateHash, group parachain.GroupIndex, members []parachain.ValidatorIndex) {
	if _, ok := k.candidates[candidate]; ok {
		return
	}
	k.candidates[candidate] = &candidateKnowledge{
		group:   group,
		members: members,
		local:   NewStatementFilter(len(members)),
		peers:   make(map[parachain.PeerID]StatementFilter),
	}
}

// Group returns the group a candidate is bound to.
func (k *Knowledge) Group(candidate parachain.CandidateHash) (parachain.GroupIndex, bool) {
	c, ok := k.candidates[candidate]
	if !ok {
		return 0, false
	}
	return c.group, true
}

// GroupMembers returns the candidate's group members in canonical order.
func (k *Knowledge) GroupMembers(candidate parachain.CandidateHash) []parachain.ValidatorIndex {
	c, ok := k.candidates[candidate]
	if !ok {
		return nil
	}
	return c.members
}

// PositionInGroup returns the filter position of a validator within the
// candidate's group, or false if the validator is outside the group.
func (k *Knowledge) PositionInGroup(candidate parachain.CandidateHash, validator parachain.ValidatorIndex) (int, bool) {
	c, ok := k.candidates[candidate]
	if !ok {
		return 0, false
	}
	for i, vi := range c.members {
		if vi == validator {
			return i, true
		}
	}
	return 0, false
}

// RecordLocal marks a statement as locally known. Idempotent: it returns
// whether the pair was freshly recorded.
func (k *Knowledge) RecordLocal(candidate parachain.CandidateHash, validator parachain.ValidatorIndex, kind parachain.StatementKind) bool {
	c, ok := k.candidates[candidate]
	if !ok {
		return false
	}
	pos, ok := k.PositionInGroup(candidate, validator)
	if !ok {
		return false
	}
	return c.local.Set(pos, kind)
}

// RecordPeer marks a statement as known by the given peer, either because
// the peer sent it or because we sent it to the peer. Idempotent.
func (k *Knowledge) RecordPeer(peer parachain.PeerID, candidate parachain.CandidateHash, validator parachain.ValidatorIndex, kind parachain.StatementKind) {
	c, ok := k.candidates[candidate]
	if !ok {
		return
	}
	pos, ok := k.PositionInGroup(candidate, validator)
	if !ok {
		return
	}
	filter, ok := c.peers[peer]
	if !ok {
		filter = NewStatementFilter(len(c.members))
		c.peers[peer] = filter
	}
	filter.Set(pos, kind)
}

// IsKnownLocally reports whether the pair is recorded locally.
func (k *Knowledge) IsKnownLocally(candidate parachain.CandidateHash, validator parachain.ValidatorIndex, kind parachain.StatementKind) bool {
	c, ok := k.candidates[candidate]
	if !ok {
		return false
	}
	pos, ok := k.PositionInGroup(candidate, validator)
	if !ok {
		return false
	}
	return c.local.Contains(pos, kind)
}

// IsKnownByPeer reports whether the pair is recorded against the peer.
func (k *Knowledge) IsKnownByPeer(peer parachain.PeerID, candidate parachain.CandidateHash, validator parachain.ValidatorIndex, kind parachain.StatementKind) bool {
	c, ok := k.candidates[candidate]
	if !ok {
		return false
	}
	pos, ok := k.PositionInGroup(candidate, validator)
	if !ok {
		return false
	}
	filter, ok := c.peers[peer]
	if !ok {
		return false
	}
	return filter.Contains(pos, kind)
}

// MaskFor returns an independent snapshot of the local knowledge mask for
// the candidate. Later recordings do not alter a returned mask.
func (k *Knowledge) MaskFor(candidate parachain.CandidateHash) (StatementFilter, bool) {
	c, ok := k.candidates[candidate]
	if !ok {
		return StatementFilter{}, false
	}
	return c.local.Clone(), true
}

// IsComplete reports whether every (validator, kind) pair of the
// candidate's group is locally known.
func (k *Knowledge) IsComplete(candidate parachain.CandidateHash) bool {
	c, ok := k.candidates[candidate]
	if !ok {
		return false
	}
	return c.local.IsComplete()
}
