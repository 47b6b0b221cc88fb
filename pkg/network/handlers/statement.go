package handlers

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/statedist"
)

// StatementProcessor consumes inbound gossip. Implemented by the
// distribution coordinator.
type StatementProcessor interface {
	HandleStatement(peer parachain.PeerID, msg statedist.StatementMessage)
	HandleManifest(peer parachain.PeerID, relayParent crypto.Hash, candidate parachain.CandidateHash, group parachain.GroupIndex)
}

// StatementHandler handles the unique persistent statement gossip stream.
// Each message on the stream is one signed statement for a relay parent.
type StatementHandler struct {
	processor StatementProcessor
}

func NewStatementHandler(processor StatementProcessor) *StatementHandler {
	return &StatementHandler{processor: processor}
}

// HandleStream reads statement messages until the peer closes the stream.
func (h *StatementHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	peer := parachain.PeerID(peerKey)
	for {
		msg, err := ReadMessageWithContext(ctx, stream)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read statement message: %w", err)
		}

		sm, err := statedist.DecodeStatementMessage(msg.Content)
		if err != nil {
			return fmt.Errorf("failed to decode statement message: %w", err)
		}
		h.processor.HandleStatement(peer, sm)
	}
}

// StatementAnnouncer writes statement messages to a peer's persistent
// statement stream.
type StatementAnnouncer struct{}

func NewStatementAnnouncer() *StatementAnnouncer {
	return &StatementAnnouncer{}
}

func (a *StatementAnnouncer) Announce(ctx context.Context, stream quic.Stream, msg statedist.StatementMessage) error {
	content, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode statement message: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, content); err != nil {
		return fmt.Errorf("failed to send statement message: %w", err)
	}
	return nil
}

// ManifestHandler handles the unique persistent manifest stream carrying
// compact candidate announcements.
type ManifestHandler struct {
	processor StatementProcessor
}

func NewManifestHandler(processor StatementProcessor) *ManifestHandler {
	return &ManifestHandler{processor: processor}
}

// HandleStream reads manifest messages until the peer closes the stream.
func (h *ManifestHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	peer := parachain.PeerID(peerKey)
	for {
		msg, err := ReadMessageWithContext(ctx, stream)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read manifest message: %w", err)
		}

		mm, err := statedist.DecodeManifestMessage(msg.Content)
		if err != nil {
			return fmt.Errorf("failed to decode manifest message: %w", err)
		}
		h.processor.HandleManifest(peer, mm.RelayParent, mm.CandidateHash, mm.Group)
	}
}

// ManifestAnnouncer writes manifest messages to a peer's persistent
// manifest stream.
type ManifestAnnouncer struct{}

func NewManifestAnnouncer() *ManifestAnnouncer {
	return &ManifestAnnouncer{}
}

func (a *ManifestAnnouncer) Announce(ctx context.Context, stream quic.Stream, msg statedist.ManifestMessage) error {
	content, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode manifest message: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, content); err != nil {
		return fmt.Errorf("failed to send manifest message: %w", err)
	}
	return nil
}
