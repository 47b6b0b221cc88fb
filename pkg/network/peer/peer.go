package peer

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/pkg/network/protocol"
)

// Peer represents a remote peer and provides high-level protocol operations.
// It wraps the underlying transport and protocol connections with a simpler
// interface and tracks the peer's announced relay-parent view.
type Peer struct {
	// ProtoConn handles protocol-specific operations
	ProtoConn  *protocol.ProtocolConn
	Address    *net.UDPAddr
	ctx        context.Context
	cancel     context.CancelFunc
	Ed25519Key ed25519.PublicKey
	// Optional validator index if this peer is a validator
	ValidatorIndex *parachain.ValidatorIndex

	mu   sync.RWMutex
	view map[crypto.Hash]struct{}
}

// NewPeer creates a new peer instance from an established transport connection.
func NewPeer(pConn *protocol.ProtocolConn) *Peer {
	ctx, cancel := context.WithCancel(pConn.TConn.Context())
	remoteAddr, ok := pConn.TConn.QConn().RemoteAddr().(*net.UDPAddr)
	if !ok {
		cancel()
		return nil
	}
	return &Peer{
		ProtoConn:  pConn,
		ctx:        ctx,
		cancel:     cancel,
		Ed25519Key: pConn.TConn.PeerKey(),
		Address:    remoteAddr,
		view:       make(map[crypto.Hash]struct{}),
	}
}

// ID returns the peer identifier used by the statement layer. It is the
// peer's Ed25519 public key bytes.
func (p *Peer) ID() parachain.PeerID {
	return parachain.PeerID(p.Ed25519Key)
}

// IsValidator returns true if the peer is a validator, false otherwise.
// A validator peer has a non-nil ValidatorIndex field.
func (p *Peer) IsValidator() bool {
	return p != nil && p.ValidatorIndex != nil
}

// AddToView records a relay parent as part of the peer's announced view.
func (p *Peer) AddToView(relayParent crypto.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view[relayParent] = struct{}{}
}

// RemoveFromView drops a relay parent from the peer's view.
func (p *Peer) RemoveFromView(relayParent crypto.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.view, relayParent)
}

// HasInView reports whether the peer's view contains the relay parent.
func (p *Peer) HasInView(relayParent crypto.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.view[relayParent]
	return ok
}

// The first 18 bytes of validator metadata, with the first 16 bytes being
// the IPv6 address and the latter 2 being a little endian representation of
// the port.
func NewPeerAddressFromMetadata(metadata []byte) (*net.UDPAddr, error) {
	if len(metadata) < 18 {
		return nil, fmt.Errorf("metadata too short: got %d bytes, want at least 18", len(metadata))
	}

	var address netip.AddrPort
	if err := address.UnmarshalBinary(metadata[:18]); err != nil {
		return nil, fmt.Errorf("failed to unmarshal address: %w", err)
	}

	return net.UDPAddrFromAddrPort(address), nil
}

// PeerSet maintains mappings between peer identifiers
// (Ed25519 keys, network addresses, validator indices) and Peer objects.
// It implements the view queries the statement layer needs.
type PeerSet struct {
	mu sync.RWMutex
	// Map from Ed25519 public key to peer
	byEd25519Key map[string]*Peer
	// Map from string representation of address to peer
	byAddress map[string]*Peer
	// Map from validator index to peer (only for validator peers)
	byValidatorIndex map[parachain.ValidatorIndex]*Peer
}

// NewPeerSet creates a new PeerSet instance with initialized internal maps.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		byEd25519Key:     make(map[string]*Peer),
		byAddress:        make(map[string]*Peer),
		byValidatorIndex: make(map[parachain.ValidatorIndex]*Peer),
	}
}

// AddPeer adds a peer to all relevant lookup maps in the PeerSet.
func (ps *PeerSet) AddPeer(peer *Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.byEd25519Key[string(peer.Ed25519Key)] = peer
	ps.byAddress[peer.Address.String()] = peer

	if peer.IsValidator() {
		ps.byValidatorIndex[*peer.ValidatorIndex] = peer
	}
}

// RemovePeer removes a peer from all lookup maps in the PeerSet.
func (ps *PeerSet) RemovePeer(peer *Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.byEd25519Key, string(peer.Ed25519Key))
	delete(ps.byAddress, peer.Address.String())

	if peer.IsValidator() {
		delete(ps.byValidatorIndex, *peer.ValidatorIndex)
	}
}

// GetByEd25519Key looks up a peer by their Ed25519 public key.
// Returns nil if no peer is found with the given key.
func (ps *PeerSet) GetByEd25519Key(key ed25519.PublicKey) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byEd25519Key[string(key)]
}

// GetByPeerID looks up a peer by the statement-layer peer identifier.
func (ps *PeerSet) GetByPeerID(id parachain.PeerID) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byEd25519Key[string(id)]
}

// GetByAddress looks up a peer by their network address.
// Returns nil if no peer is found with the given address.
func (ps *PeerSet) GetByAddress(addr string) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byAddress[addr]
}

// GetByValidatorIndex looks up a peer by their validator index.
// Returns nil if no peer is found with the given validator index.
func (ps *PeerSet) GetByValidatorIndex(index parachain.ValidatorIndex) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.byValidatorIndex[index]
}

// GetAllPeers returns all peers currently in the peer set
func (ps *PeerSet) GetAllPeers() []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	peers := make([]*Peer, 0, len(ps.byEd25519Key))
	for _, peer := range ps.byEd25519Key {
		peers = append(peers, peer)
	}
	return peers
}

// PeersWithRelayParent returns the identifiers of all connected peers with
// the relay parent in their announced view.
func (ps *PeerSet) PeersWithRelayParent(relayParent crypto.Hash) []parachain.PeerID {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	var ids []parachain.PeerID
	for _, peer := range ps.byEd25519Key {
		if peer.HasInView(relayParent) {
			ids = append(ids, peer.ID())
		}
	}
	return ids
}

// HasRelayParentInView reports whether the given peer has announced the
// relay parent. Unknown peers have nothing in view.
func (ps *PeerSet) HasRelayParentInView(id parachain.PeerID, relayParent crypto.Hash) bool {
	peer := ps.GetByPeerID(id)
	return peer != nil && peer.HasInView(relayParent)
}

// ValidatorIndexOf returns the validator index of the given peer, if it is
// a known validator.
func (ps *PeerSet) ValidatorIndexOf(id parachain.PeerID) (parachain.ValidatorIndex, bool) {
	peer := ps.GetByPeerID(id)
	if peer == nil || peer.ValidatorIndex == nil {
		return 0, false
	}
	return *peer.ValidatorIndex, true
}
