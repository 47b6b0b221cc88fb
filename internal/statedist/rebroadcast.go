package statedist

import (
	"github.com/rs/zerolog"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/session"
)

// StatementSender pushes a statement to a set of peers. This is a push:
// recipients are never queried for what they already have.
type StatementSender interface {
	SendStatement(peers []parachain.PeerID, relayParent crypto.Hash, stmt parachain.SignedStatement)
}

// PeerInfo is the view/connection bookkeeping this package consumes. It is
// owned by the connection layer.
type PeerInfo interface {
	// PeersWithRelayParent lists connected peers with the relay parent in view.
	PeersWithRelayParent(relayParent crypto.Hash) []parachain.PeerID
	// HasRelayParentInView reports whether one peer has the relay parent in view.
	HasRelayParentInView(peer parachain.PeerID, relayParent crypto.Hash) bool
	// ValidatorIndexOf maps a peer to its validator index, if it is a validator.
	ValidatorIndexOf(peer parachain.PeerID) (parachain.ValidatorIndex, bool)
}

// Rebroadcaster forwards newly-accepted statements to connected peers that
// have the relay parent in view, do not know the statement yet, and are
// reachable under cluster or grid rules.
type Rebroadcaster struct {
	sender  StatementSender
	peers   PeerInfo
	session *session.Info
	grid    session.Grid
	local   *parachain.ValidatorIndex
	log     zerolog.Logger
}

func NewRebroadcaster(sender StatementSender, peers PeerInfo, info *session.Info, local *parachain.ValidatorIndex, log zerolog.Logger) *Rebroadcaster {
	return &Rebroadcaster{
		sender:  sender,
		peers:   peers,
		session: info,
		grid:    session.NewGrid(len(info.Validators)),
		local:   local,
		log:     log,
	}
}

// Forward sends the statement to every eligible peer and marks those peers
// as knowing it, so it is never re-sent to them.
func (r *Rebroadcaster) Forward(knowledge *Knowledge, relayParent crypto.Hash, candidate parachain.CandidateHash, stmt parachain.SignedStatement) {
	group, ok := knowledge.Group(candidate)
	if !ok {
		return
	}

	var recipients []parachain.PeerID
	for _, peer := range r.peers.PeersWithRelayParent(relayParent) {
		if knowledge.IsKnownByPeer(peer, candidate, stmt.ValidatorIndex, stmt.Kind) {
			continue
		}
		if !r.eligible(peer, group) {
			continue
		}
		recipients = append(recipients, peer)
	}
	if len(recipients) == 0 {
		return
	}

	r.sender.SendStatement(recipients, relayParent, stmt)
	for _, peer := range recipients {
		knowledge.RecordPeer(peer, candidate, stmt.ValidatorIndex, stmt.Kind)
	}
	r.log.Debug().
		Str("candidate", crypto.Hash(candidate).String()).
		Int("peers", len(recipients)).
		Str("kind", stmt.Kind.String()).
		Msg("statement forwarded")
}

// eligible applies the topology rules: a peer receives the statement if its
// validator sits in the candidate's group (cluster), or if it is a grid
// neighbor of the local validator.
func (r *Rebroadcaster) eligible(peer parachain.PeerID, group parachain.GroupIndex) bool {
	index, isValidator := r.peers.ValidatorIndexOf(peer)
	if !isValidator {
		return false
	}
	if peerGroup, ok := r.session.GroupOf(index); ok && peerGroup == group {
		return true
	}
	return r.local != nil && r.grid.IsNeighbor(*r.local, index)
}
