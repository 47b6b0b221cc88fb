package peer

import (
	"context"
	"errors"
	"time"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/statedist"
	"github.com/eigerco/bramble/pkg/log"
	"github.com/eigerco/bramble/pkg/network/handlers"
	"github.com/eigerco/bramble/pkg/network/protocol"
)

var ErrPeerNotConnected = errors.New("peer not connected")

// sendTimeout bounds a single outbound gossip write
const sendTimeout = 5 * time.Second

// StatementSender delivers statements over each recipient's persistent
// statement stream. Implements the statement layer's sender interface.
type StatementSender struct {
	peers     *PeerSet
	announcer *handlers.StatementAnnouncer
}

func NewStatementSender(peers *PeerSet) *StatementSender {
	return &StatementSender{
		peers:     peers,
		announcer: handlers.NewStatementAnnouncer(),
	}
}

// SendStatement pushes the statement to the given peers. Sends are
// fire-and-forget: a failed write drops the peer's persistent stream so the
// next send reopens it.
func (s *StatementSender) SendStatement(ids []parachain.PeerID, relayParent crypto.Hash, stmt parachain.SignedStatement) {
	msg := statedist.StatementMessage{RelayParent: relayParent, Statement: stmt}
	for _, id := range ids {
		p := s.peers.GetByPeerID(id)
		if p == nil {
			continue
		}
		go func(p *Peer) {
			ctx, cancel := context.WithTimeout(p.ctx, sendTimeout)
			defer cancel()

			stream, err := p.ProtoConn.UPStream(ctx, protocol.StreamKindStatement)
			if err != nil {
				log.Network.Debug().Err(err).Str("peer", p.ID().String()).Msg("failed to open statement stream")
				return
			}
			if err := s.announcer.Announce(ctx, stream, msg); err != nil {
				log.Network.Debug().Err(err).Str("peer", p.ID().String()).Msg("failed to send statement")
				p.ProtoConn.DropUPStream(protocol.StreamKindStatement)
			}
		}(p)
	}
}

// ManifestSender delivers manifest announcements over each recipient's
// persistent manifest stream.
type ManifestSender struct {
	peers     *PeerSet
	announcer *handlers.ManifestAnnouncer
}

func NewManifestSender(peers *PeerSet) *ManifestSender {
	return &ManifestSender{
		peers:     peers,
		announcer: handlers.NewManifestAnnouncer(),
	}
}

func (s *ManifestSender) SendManifest(ids []parachain.PeerID, msg statedist.ManifestMessage) {
	for _, id := range ids {
		p := s.peers.GetByPeerID(id)
		if p == nil {
			continue
		}
		go func(p *Peer) {
			ctx, cancel := context.WithTimeout(p.ctx, sendTimeout)
			defer cancel()

			stream, err := p.ProtoConn.UPStream(ctx, protocol.StreamKindManifest)
			if err != nil {
				log.Network.Debug().Err(err).Str("peer", p.ID().String()).Msg("failed to open manifest stream")
				return
			}
			if err := s.announcer.Announce(ctx, stream, msg); err != nil {
				log.Network.Debug().Err(err).Str("peer", p.ID().String()).Msg("failed to send manifest")
				p.ProtoConn.DropUPStream(protocol.StreamKindManifest)
			}
		}(p)
	}
}

// ResponseHandler consumes raw attested-candidate responses. Implemented by
// the distribution coordinator.
type ResponseHandler interface {
	HandleResponse(peer parachain.PeerID, candidate parachain.CandidateHash, raw []byte)
}

// CandidateRequester sends attested-candidate requests over ephemeral
// streams and feeds raw responses back to the handler. Implements the
// statement layer's request sender interface.
type CandidateRequester struct {
	peers     *PeerSet
	requester *handlers.AttestedCandidateRequester
	handler   ResponseHandler
}

func NewCandidateRequester(peers *PeerSet) *CandidateRequester {
	return &CandidateRequester{
		peers:     peers,
		requester: handlers.NewAttestedCandidateRequester(),
	}
}

// SetResponseHandler wires the response sink. Must be called before the
// first SendRequest.
func (c *CandidateRequester) SetResponseHandler(handler ResponseHandler) {
	c.handler = handler
}

// SendRequest opens an ephemeral stream to the peer and performs the
// request round trip in the background. Fails immediately when the peer is
// not connected; the round trip itself is bounded by the caller's timeout
// logic, not by this layer.
func (c *CandidateRequester) SendRequest(id parachain.PeerID, req statedist.AttestedCandidateRequest) error {
	p := c.peers.GetByPeerID(id)
	if p == nil {
		return ErrPeerNotConnected
	}

	go func() {
		stream, err := p.ProtoConn.OpenStream(p.ctx, protocol.StreamKindCandidateRequest)
		if err != nil {
			log.Network.Debug().Err(err).Str("peer", id.String()).Msg("failed to open request stream")
			return
		}
		raw, err := c.requester.RequestAttestedCandidate(p.ctx, stream, req)
		if err != nil {
			log.Network.Debug().Err(err).Str("peer", id.String()).Msg("candidate request failed")
			return
		}
		if c.handler != nil {
			c.handler.HandleResponse(id, req.CandidateHash, raw)
		}
	}()
	return nil
}

// Processor wraps the coordinator-facing gossip entry points and keeps peer
// views current: a peer sending traffic for a relay parent implicitly has
// it in view.
type Processor struct {
	peers *PeerSet
	next  handlers.StatementProcessor
}

func NewProcessor(peers *PeerSet, next handlers.StatementProcessor) *Processor {
	return &Processor{peers: peers, next: next}
}

func (p *Processor) HandleStatement(peer parachain.PeerID, msg statedist.StatementMessage) {
	if pr := p.peers.GetByPeerID(peer); pr != nil {
		pr.AddToView(msg.RelayParent)
	}
	p.next.HandleStatement(peer, msg)
}

func (p *Processor) HandleManifest(peer parachain.PeerID, relayParent crypto.Hash, candidate parachain.CandidateHash, group parachain.GroupIndex) {
	if pr := p.peers.GetByPeerID(peer); pr != nil {
		pr.AddToView(relayParent)
	}
	p.next.HandleManifest(peer, relayParent, candidate, group)
}
