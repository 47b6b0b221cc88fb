package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eigerco/bramble/internal/testutils"
)

func TestMembershipRequiresActiveLeaf(t *testing.T) {
	c := NewChain(DefaultMaxDepth)
	relayParent := testutils.RandomHash(t)
	receipt := testutils.RandomReceipt(t, relayParent, 1)

	assert.Equal(t, NotMember, c.HypotheticalMembership(receipt))

	c.ActivateLeaf(relayParent)
	assert.Equal(t, Member, c.HypotheticalMembership(receipt))

	c.DeactivateLeaf(relayParent)
	assert.Equal(t, NotMember, c.HypotheticalMembership(receipt))
}

func TestMembershipDepthLimit(t *testing.T) {
	c := NewChain(2)
	relayParent := testutils.RandomHash(t)
	c.ActivateLeaf(relayParent)

	receipt := testutils.RandomReceipt(t, relayParent, 1)
	c.NoteIncluded(1)
	assert.Equal(t, Member, c.HypotheticalMembership(receipt))

	c.NoteIncluded(1)
	assert.Equal(t, NotMember, c.HypotheticalMembership(receipt))

	// other paras keep their own budget
	other := testutils.RandomReceipt(t, relayParent, 2)
	assert.Equal(t, Member, c.HypotheticalMembership(other))
}

func TestMembershipString(t *testing.T) {
	assert.Equal(t, "not-member", NotMember.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "member", Member.String())
}
