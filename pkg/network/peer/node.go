package peer

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/eigerco/bramble/internal/fragment"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/session"
	"github.com/eigerco/bramble/internal/statedist"
	"github.com/eigerco/bramble/pkg/log"
	"github.com/eigerco/bramble/pkg/network/cert"
	"github.com/eigerco/bramble/pkg/network/handlers"
	"github.com/eigerco/bramble/pkg/network/protocol"
	"github.com/eigerco/bramble/pkg/network/transport"
)

// ValidatorKeys holds the cryptographic keys of this node.
type ValidatorKeys struct {
	EdPrv ed25519.PrivateKey
	EdPub ed25519.PublicKey
}

// Config collects everything a Node needs to participate in statement
// distribution.
type Config struct {
	Keys       ValidatorKeys
	ListenAddr string
	// ChainHash is the 8-nibble identifier of the relay chain network.
	ChainHash string
	Session   *session.Info
	// Coordinator tunes the statement-distribution layer.
	Coordinator statedist.Config
	// Store persists confirmed candidates. May be nil.
	Store statedist.CandidateStore
	// Membership gates propagation on fragment-tree inclusion.
	Membership fragment.Checker
}

// Node manages peer connections, handles protocol messages, and coordinates
// network operations. Each Node acts as both client and server, maintaining
// connections with multiple peers simultaneously.
type Node struct {
	Context         context.Context
	Cancel          context.CancelFunc
	transport       *transport.Transport
	protocolManager *protocol.Manager
	peersSet        *PeerSet
	session         *session.Info
	coordinator     *statedist.Coordinator
	reputation      *ReputationBook
}

// NewNode creates a new Node instance with the specified configuration.
// It initializes the TLS certificate, protocol manager, network transport,
// and the statement-distribution coordinator with its full wiring.
func NewNode(nodeCtx context.Context, config Config) (*Node, error) {
	nodeCtx, cancel := context.WithCancel(nodeCtx)
	node := &Node{
		peersSet: NewPeerSet(),
		session:  config.Session,
		Context:  nodeCtx,
		Cancel:   cancel,
	}

	node.reputation = NewReputationBook(node.disconnectPeer)

	statementSender := NewStatementSender(node.peersSet)
	manifestSender := NewManifestSender(node.peersSet)
	requester := NewCandidateRequester(node.peersSet)

	coordinator, err := statedist.NewCoordinator(
		config.Coordinator,
		config.Session,
		node.reputation,
		requester,
		statementSender,
		manifestSender,
		node.peersSet,
		config.Membership,
		config.Store,
		log.Statements,
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	requester.SetResponseHandler(coordinator)
	node.coordinator = coordinator

	// Create TLS certificate using the node's Ed25519 key pair
	certGen := cert.NewGenerator(cert.Config{
		PublicKey:          config.Keys.EdPub,
		PrivateKey:         config.Keys.EdPrv,
		CertValidityPeriod: 24 * time.Hour,
	})
	tlsCert, err := certGen.GenerateCertificate()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}

	protoManager, err := protocol.NewManager(protocol.Config{
		ChainHash:  config.ChainHash,
		IsObserver: config.Coordinator.LocalValidator == nil,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create protocol manager: %w", err)
	}

	// Register the streams the Node supports.
	processor := NewProcessor(node.peersSet, coordinator)
	protoManager.Registry.RegisterHandler(protocol.StreamKindStatement, handlers.NewStatementHandler(processor))
	protoManager.Registry.RegisterHandler(protocol.StreamKindManifest, handlers.NewManifestHandler(processor))
	protoManager.Registry.RegisterHandler(protocol.StreamKindCandidateRequest, handlers.NewAttestedCandidateHandler(coordinator))

	tr, err := transport.NewTransport(transport.Config{
		PublicKey:     config.Keys.EdPub,
		PrivateKey:    config.Keys.EdPrv,
		TLSCert:       tlsCert,
		ListenAddr:    config.ListenAddr,
		CertValidator: cert.NewValidator(),
		Handler:       node,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	node.transport = tr
	node.protocolManager = protoManager
	return node, nil
}

// Coordinator exposes the statement-distribution coordinator for leaf
// lifecycle management.
func (n *Node) Coordinator() *statedist.Coordinator {
	return n.coordinator
}

// Reputation exposes the per-peer reputation book.
func (n *Node) Reputation() *ReputationBook {
	return n.reputation
}

// OnConnection is called by the transport layer whenever a new QUIC
// connection is established with a verified peer certificate. An existing
// connection from the same peer is replaced.
func (n *Node) OnConnection(conn *transport.Conn) error {
	if existingPeer := n.peersSet.GetByEd25519Key(conn.PeerKey()); existingPeer != nil {
		if err := existingPeer.ProtoConn.Close(); err != nil {
			log.Network.Warn().Err(err).Msg("failed to close existing peer connection")
		}
		n.peersSet.RemovePeer(existingPeer)
	}

	pConn := n.protocolManager.OnConnection(conn)
	peer := NewPeer(pConn)
	if peer == nil {
		if err := pConn.Close(); err != nil {
			log.Network.Warn().Err(err).Msg("failed to close protocol connection")
		}
		return fmt.Errorf("failed to create peer: invalid remote address type")
	}

	// Map the peer to a validator index when its key belongs to the session.
	if index, ok := n.session.FindValidatorIndex(conn.PeerKey()); ok {
		peer.ValidatorIndex = &index
	}

	n.peersSet.AddPeer(peer)
	log.Network.Info().Str("peer", peer.ID().String()).Msg("peer connected")
	return nil
}

// ConnectToPeer initiates a connection to a peer at the specified address.
// It prevents duplicate connections to the same peer.
func (n *Node) ConnectToPeer(addr string) error {
	if existingPeer := n.peersSet.GetByAddress(addr); existingPeer != nil {
		return fmt.Errorf("peer already exists")
	}

	if _, err := n.transport.Connect(addr); err != nil {
		return fmt.Errorf("failed to connect to peer: %w", err)
	}
	return nil
}

// disconnectPeer closes the connection of a peer whose reputation dropped
// below the disconnect threshold.
func (n *Node) disconnectPeer(id parachain.PeerID) {
	peer := n.peersSet.GetByPeerID(id)
	if peer == nil {
		return
	}
	if err := peer.ProtoConn.Close(); err != nil {
		log.Network.Warn().Err(err).Msg("failed to close banned peer connection")
	}
	n.peersSet.RemovePeer(peer)
	n.reputation.Forget(id)
	log.Network.Info().Str("peer", id.String()).Msg("peer disconnected for misbehavior")
}

// Start begins the node's network operations, including listening for
// incoming connections.
func (n *Node) Start() error {
	if err := n.transport.Start(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the node's network operations and closes all
// peer connections.
func (n *Node) Stop() error {
	n.Cancel()
	return n.transport.Stop()
}

// ValidateConnection verifies that an incoming TLS connection meets the
// protocol requirements, including certificate validation and protocol
// version checking.
func (n *Node) ValidateConnection(tlsState tls.ConnectionState) error {
	return n.protocolManager.ValidateConnection(tlsState)
}

// GetProtocols returns the list of supported protocol versions and
// variants for this node.
func (n *Node) GetProtocols() []string {
	return n.protocolManager.GetProtocols()
}
