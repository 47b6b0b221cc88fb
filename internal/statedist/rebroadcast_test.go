package statedist

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/bramble/internal/parachain"
)

// Topology under test: six validators, groups {0,1,2} and {3,4,5}, grid
// width 2. Validator 0's grid neighbors are 1 (row) and 2, 4 (column).

func newRebroadcastFixture(t *testing.T, local *parachain.ValidatorIndex) (*testEnv, *staticPeers, *fakeStatementSender, *Rebroadcaster) {
	env := newTestEnv(t)
	peers := newStaticPeers()
	sender := &fakeStatementSender{}
	rb := NewRebroadcaster(sender, peers, env.info, local, zerolog.Nop())
	return env, peers, sender, rb
}

func TestRebroadcastClusterAndGrid(t *testing.T) {
	local := parachain.ValidatorIndex(0)
	env, peers, sender, rb := newRebroadcastFixture(t, &local)

	// cluster-peer shares group 0, grid-peer is a column neighbor of the
	// local validator, far-peer is neither. blind-peer does not have the
	// relay parent in view and observer is not a validator at all.
	peers.add("cluster-peer", 1, env.relayParent)
	peers.add("grid-peer", 4, env.relayParent)
	peers.add("far-peer", 3, env.relayParent)
	peers.add("blind-peer", 2)
	peers.addObserver("observer", env.relayParent)

	_, _, candidate := env.receipt(1)
	knowledge := NewKnowledge()
	knowledge.Ensure(candidate, 0, env.info.GroupMembers(0))
	stmt := env.sign(0, parachain.StatementSeconded, candidate)

	rb.Forward(knowledge, env.relayParent, candidate, stmt)

	sends := sender.all()
	require.Len(t, sends, 1)
	assert.ElementsMatch(t, []parachain.PeerID{"cluster-peer", "grid-peer"}, sends[0].peers)
	assert.Equal(t, env.relayParent, sends[0].relayParent)
	assert.Equal(t, stmt, sends[0].stmt)

	// recipients are marked as knowing the statement
	assert.True(t, knowledge.IsKnownByPeer("cluster-peer", candidate, 0, parachain.StatementSeconded))
	assert.True(t, knowledge.IsKnownByPeer("grid-peer", candidate, 0, parachain.StatementSeconded))

	// a second forward finds nobody left
	rb.Forward(knowledge, env.relayParent, candidate, stmt)
	assert.Len(t, sender.all(), 1)
}

func TestRebroadcastSkipsKnowingPeers(t *testing.T) {
	local := parachain.ValidatorIndex(0)
	env, peers, sender, rb := newRebroadcastFixture(t, &local)
	peers.add("cluster-peer", 1, env.relayParent)

	_, _, candidate := env.receipt(1)
	knowledge := NewKnowledge()
	knowledge.Ensure(candidate, 0, env.info.GroupMembers(0))
	stmt := env.sign(2, parachain.StatementValid, candidate)

	// the peer sent us this statement in the first place
	knowledge.RecordPeer("cluster-peer", candidate, 2, parachain.StatementValid)

	rb.Forward(knowledge, env.relayParent, candidate, stmt)
	assert.Empty(t, sender.all())
}

func TestRebroadcastObserverReachesClusterOnly(t *testing.T) {
	env, peers, sender, rb := newRebroadcastFixture(t, nil)
	peers.add("cluster-peer", 1, env.relayParent)
	peers.add("grid-peer", 4, env.relayParent)

	_, _, candidate := env.receipt(1)
	knowledge := NewKnowledge()
	knowledge.Ensure(candidate, 0, env.info.GroupMembers(0))
	stmt := env.sign(0, parachain.StatementSeconded, candidate)

	rb.Forward(knowledge, env.relayParent, candidate, stmt)

	sends := sender.all()
	require.Len(t, sends, 1)
	assert.Equal(t, []parachain.PeerID{"cluster-peer"}, sends[0].peers)
}

func TestRebroadcastUnknownCandidate(t *testing.T) {
	local := parachain.ValidatorIndex(0)
	env, peers, sender, rb := newRebroadcastFixture(t, &local)
	peers.add("cluster-peer", 1, env.relayParent)

	_, _, candidate := env.receipt(1)
	stmt := env.sign(0, parachain.StatementSeconded, candidate)

	rb.Forward(NewKnowledge(), env.relayParent, candidate, stmt)
	assert.Empty(t, sender.all())
}
