package peer

import (
	"sync"

	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/statedist"
	"github.com/eigerco/bramble/pkg/log"
)

// DisconnectThreshold is the cumulative score below which a peer is
// reported for disconnection.
const DisconnectThreshold = -1_000_000

// ReputationBook accumulates reputation changes per peer and implements
// the statement layer's report sink. Changes are applied as they arrive,
// never batched.
type ReputationBook struct {
	mu     sync.Mutex
	scores map[parachain.PeerID]int64
	onBan  func(parachain.PeerID)
}

// NewReputationBook creates a reputation book. onBan, if non-nil, is called
// once when a peer's cumulative score first drops below the disconnect
// threshold.
func NewReputationBook(onBan func(parachain.PeerID)) *ReputationBook {
	return &ReputationBook{
		scores: make(map[parachain.PeerID]int64),
		onBan:  onBan,
	}
}

func (b *ReputationBook) ReportPeer(peer parachain.PeerID, change statedist.ReputationChange) {
	b.mu.Lock()
	before := b.scores[peer]
	after := before + int64(change.Delta)
	b.scores[peer] = after
	b.mu.Unlock()

	if after < DisconnectThreshold && before >= DisconnectThreshold {
		log.Network.Info().
			Str("peer", peer.String()).
			Int64("score", after).
			Msg("peer crossed disconnect threshold")
		if b.onBan != nil {
			b.onBan(peer)
		}
	}
}

// Score returns the peer's cumulative reputation score.
func (b *ReputationBook) Score(peer parachain.PeerID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scores[peer]
}

// Forget drops a peer's score, for when the peer disconnects.
func (b *ReputationBook) Forget(peer parachain.PeerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.scores, peer)
}
