package fragment

import (
	"sync"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
)

// Membership is the feasibility of a candidate as a member of the local
// fragment tree at some depth.
type Membership int

const (
	// NotMember means the candidate cannot extend the local fragment tree;
	// propagation is suppressed.
	NotMember Membership = iota
	// Pending means the answer is not yet known; callers proceed without
	// blocking and may be told otherwise later.
	Pending
	// Member means the candidate is a hypothetically valid member at some depth.
	Member
)

func (m Membership) String() string {
	switch m {
	case NotMember:
		return "not-member"
	case Pending:
		return "pending"
	default:
		return "member"
	}
}

// Checker answers whether a candidate could plausibly extend the local
// fragment tree. Implementations must not block.
type Checker interface {
	HypotheticalMembership(receipt parachain.CandidateReceipt) Membership
}

// DefaultMaxDepth is the default number of unincluded ancestors a para may
// accumulate before further candidates are rejected.
const DefaultMaxDepth = 4

// Chain is a minimal fragment-tree membership checker: a candidate is a
// feasible member while its relay parent is an active leaf and its para has
// not exhausted the configured depth of unincluded ancestors.
type Chain struct {
	mu       sync.Mutex
	maxDepth int
	active   map[crypto.Hash]struct{}
	depth    map[parachain.ParaID]int
}

func NewChain(maxDepth int) *Chain {
	return &Chain{
		maxDepth: maxDepth,
		active:   make(map[crypto.Hash]struct{}),
		depth:    make(map[parachain.ParaID]int),
	}
}

// ActivateLeaf marks a relay parent as an active leaf.
func (c *Chain) ActivateLeaf(relayParent crypto.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[relayParent] = struct{}{}
}

// DeactivateLeaf removes a relay parent from the active set.
func (c *Chain) DeactivateLeaf(relayParent crypto.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, relayParent)
}

// NoteIncluded records that a candidate of the given para occupies one
// depth slot in the unincluded segment.
func (c *Chain) NoteIncluded(para parachain.ParaID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth[para]++
}

// HypotheticalMembership implements Checker.
func (c *Chain) HypotheticalMembership(receipt parachain.CandidateReceipt) Membership {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[receipt.RelayParent]; !ok {
		return NotMember
	}
	if c.depth[receipt.ParaID] >= c.maxDepth {
		return NotMember
	}
	return Member
}
