package protocol

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/bramble/pkg/log"
)

// TransportConn is the transport-level connection a ProtocolConn runs on.
// Satisfied by *transport.Conn.
type TransportConn interface {
	OpenStream(ctx context.Context) (quic.Stream, error)
	AcceptStream() (quic.Stream, error)
	QConn() quic.Connection
	Context() context.Context
	PeerKey() ed25519.PublicKey
	Close() error
}

// ProtocolConn wraps a transport connection with protocol-specific functionality.
// It manages stream multiplexing, handles stream kinds, and maintains unique persistent streams.
type ProtocolConn struct {
	TConn     TransportConn
	mu        sync.RWMutex
	upStreams map[StreamKind]quic.Stream
	registry  *Registry
}

// NewProtocolConn creates a new protocol-level connection.
// It initializes stream management and associates the connection with a handler registry.
func NewProtocolConn(tConn TransportConn, registry *Registry) *ProtocolConn {
	return &ProtocolConn{
		TConn:     tConn,
		upStreams: make(map[StreamKind]quic.Stream),
		registry:  registry,
	}
}

// OpenStream opens a new stream of the given kind using the provided context.
// It writes the stream kind as the first byte and returns the established stream.
func (pc *ProtocolConn) OpenStream(ctx context.Context, kind StreamKind) (quic.Stream, error) {
	stream, err := pc.TConn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	if err := writeWithContext(ctx, stream, []byte{byte(kind)}); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to write stream kind: %w", err)
	}

	return stream, nil
}

// UPStream returns the unique persistent stream of the given kind, opening
// it on first use. Subsequent calls reuse the stream.
func (pc *ProtocolConn) UPStream(ctx context.Context, kind StreamKind) (quic.Stream, error) {
	if !kind.IsUniquePersistent() {
		return nil, fmt.Errorf("stream kind %d is not unique persistent", kind)
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if stream, ok := pc.upStreams[kind]; ok {
		return stream, nil
	}
	stream, err := pc.TConn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	if err := writeWithContext(ctx, stream, []byte{byte(kind)}); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to write stream kind: %w", err)
	}
	pc.upStreams[kind] = stream
	return stream, nil
}

// DropUPStream closes and forgets the unique persistent stream of the given
// kind, so the next use reopens it.
func (pc *ProtocolConn) DropUPStream(kind StreamKind) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if stream, ok := pc.upStreams[kind]; ok {
		stream.Close()
		delete(pc.upStreams, kind)
	}
}

// AcceptStream accepts and handles an incoming stream.
// It reads the stream kind byte, looks up the appropriate handler,
// and starts a goroutine to handle the stream.
func (pc *ProtocolConn) AcceptStream() error {
	stream, err := pc.TConn.AcceptStream()
	if err != nil {
		return err
	}

	// Read stream kind
	kind := make([]byte, 1)
	if _, err := stream.Read(kind); err != nil {
		stream.Close()
		return fmt.Errorf("failed to read stream kind: %w", err)
	}

	handler, err := pc.registry.GetHandler(StreamKind(kind[0]))
	if err != nil {
		stream.Close()
		return err
	}

	go func() {
		if err := handler.HandleStream(pc.TConn.Context(), stream, pc.TConn.PeerKey()); err != nil {
			log.Network.Debug().Err(err).Msg("stream handler error")
		}
	}()

	return nil
}

// writeWithContext writes bytes to a stream with context cancellation support.
func writeWithContext(ctx context.Context, stream quic.Stream, p []byte) error {
	done := make(chan error, 1)

	go func() {
		_, err := stream.Write(p)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the protocol connection and all associated UP streams.
func (pc *ProtocolConn) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for _, stream := range pc.upStreams {
		if err := stream.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("error closing stream")
		}
	}
	pc.upStreams = make(map[StreamKind]quic.Stream)

	return pc.TConn.Close()
}
