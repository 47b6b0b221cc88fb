package handlers

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/statedist"
)

// RequestAnswerer serves attested-candidate requests against local state.
// Implemented by the distribution coordinator.
type RequestAnswerer interface {
	AnswerRequest(peer parachain.PeerID, req statedist.AttestedCandidateRequest) (statedist.AttestedCandidateResponse, error)
}

// AttestedCandidateHandler handles inbound attested-candidate requests.
//
// The requester sends a candidate hash together with a mask of statements
// it already has. The response carries the candidate receipt, its
// validation data, and every locally held statement not covered by the
// mask. Unknown or unconfirmed candidates close the stream with an error.
type AttestedCandidateHandler struct {
	answerer RequestAnswerer
}

func NewAttestedCandidateHandler(answerer RequestAnswerer) *AttestedCandidateHandler {
	return &AttestedCandidateHandler{answerer: answerer}
}

// HandleStream processes one attested-candidate request.
//
// Protocol flow:
//
//	--> AttestedCandidateRequest (candidate hash + mask)
//	--> FIN
//	<-- AttestedCandidateResponse (receipt, validation data, statements)
//	<-- FIN
func (h *AttestedCandidateHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	req, err := statedist.DecodeAttestedCandidateRequest(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}

	resp, err := h.answerer.AnswerRequest(parachain.PeerID(peerKey), req)
	if err != nil {
		return fmt.Errorf("failed to answer candidate request: %w", err)
	}

	respBytes, err := resp.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	if err := WriteMessageWithContext(ctx, stream, respBytes); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}

	return nil
}

// AttestedCandidateRequester sends attested-candidate requests to peers.
//
// The response bytes are returned raw: validation, decoding and reputation
// accounting happen in the coordinator, which knows what was requested.
type AttestedCandidateRequester struct{}

func NewAttestedCandidateRequester() *AttestedCandidateRequester {
	return &AttestedCandidateRequester{}
}

// RequestAttestedCandidate sends a request over the given stream and reads
// back the raw response bytes.
func (r *AttestedCandidateRequester) RequestAttestedCandidate(
	ctx context.Context,
	stream quic.Stream,
	req statedist.AttestedCandidateRequest,
) ([]byte, error) {
	reqBytes, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if err := WriteMessageWithContext(ctx, stream, reqBytes); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("failed to close stream: %w", err)
	}

	respMsg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return respMsg.Content, nil
}
