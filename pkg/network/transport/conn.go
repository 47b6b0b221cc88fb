package transport

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// StreamTimeout defines the maximum duration to wait for stream operations
const StreamTimeout = 5 * time.Second

// Conn represents a QUIC connection with a remote peer.
// It manages the underlying QUIC connection, stream creation,
// and connection lifecycle via context cancellation.
type Conn struct {
	qConn     quic.Connection
	transport *Transport
	peerKey   ed25519.PublicKey
	ctx       context.Context
	cancel    context.CancelFunc
}

// newConn creates a new connection wrapper around a QUIC connection.
// The connection is cleaned up when the transport context is cancelled or
// when the peer closes the underlying QUIC connection.
func newConn(qConn quic.Connection, transport *Transport) *Conn {
	ctx, cancel := context.WithCancel(transport.ctx)

	qConnCtx := qConn.Context()
	go func() {
		select {
		case <-qConnCtx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	return &Conn{
		qConn:     qConn,
		transport: transport,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// QConn returns the underlying QUIC connection.
func (c *Conn) QConn() quic.Connection {
	return c.qConn
}

// OpenStream opens a new bidirectional QUIC stream.
// The provided context can be used to cancel the stream opening operation.
func (c *Conn) OpenStream(ctx context.Context) (quic.Stream, error) {
	stream, err := c.qConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}

	return stream, nil
}

// AcceptStream accepts an incoming QUIC stream from the peer.
// Uses the connection's context for cancellation.
func (c *Conn) AcceptStream() (quic.Stream, error) {
	stream, err := c.qConn.AcceptStream(c.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept QUIC stream: %w", err)
	}
	return stream, nil
}

// PeerKey returns the public key of the connected peer.
// This key uniquely identifies the remote peer.
func (c *Conn) PeerKey() ed25519.PublicKey {
	return c.peerKey
}

// SetPeerKey sets the peer's public key
func (c *Conn) SetPeerKey(key ed25519.PublicKey) {
	c.peerKey = key
}

// Close closes the connection and cancels all associated streams.
func (c *Conn) Close() error {
	c.cancel()
	return c.qConn.CloseWithError(0, "")
}

// Context returns the connection's context.
// This context is cancelled when the connection is closed.
func (c *Conn) Context() context.Context {
	return c.ctx
}
