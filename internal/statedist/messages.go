package statedist

import (
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
)

// StatementMessage is the gossip message carrying one signed statement for
// a known relay parent.
type StatementMessage struct {
	RelayParent crypto.Hash               `scale:"1"`
	Statement   parachain.SignedStatement `scale:"2"`
}

// AttestedCandidateRequest asks a peer for the statements of one candidate,
// masked by the requester's current knowledge.
type AttestedCandidateRequest struct {
	CandidateHash parachain.CandidateHash `scale:"1"`
	Mask          StatementFilter         `scale:"2"`
}

// AttestedCandidateResponse carries the candidate data and an ordered
// sequence of statements. Order matters: duplicate detection is defined
// over arrival order within one response.
type AttestedCandidateResponse struct {
	CandidateReceipt        parachain.CandidateReceipt        `scale:"1"`
	PersistedValidationData parachain.PersistedValidationData `scale:"2"`
	Statements              []parachain.SignedStatement       `scale:"3"`
}

// ManifestMessage is a compact announcement that a candidate exists under a
// relay parent, sent to peers outside the backing group to prompt a
// catch-up request.
type ManifestMessage struct {
	RelayParent   crypto.Hash             `scale:"1"`
	CandidateHash parachain.CandidateHash `scale:"2"`
	Group         parachain.GroupIndex    `scale:"3"`
}

func (m StatementMessage) Encode() ([]byte, error) {
	return scale.Marshal(m)
}

func DecodeStatementMessage(data []byte) (StatementMessage, error) {
	var m StatementMessage
	if err := scale.Unmarshal(data, &m); err != nil {
		return StatementMessage{}, fmt.Errorf("decode statement message: %w", err)
	}
	return m, nil
}

func (m ManifestMessage) Encode() ([]byte, error) {
	return scale.Marshal(m)
}

func DecodeManifestMessage(data []byte) (ManifestMessage, error) {
	var m ManifestMessage
	if err := scale.Unmarshal(data, &m); err != nil {
		return ManifestMessage{}, fmt.Errorf("decode manifest message: %w", err)
	}
	return m, nil
}

func (r AttestedCandidateRequest) Encode() ([]byte, error) {
	return scale.Marshal(r)
}

func DecodeAttestedCandidateRequest(data []byte) (AttestedCandidateRequest, error) {
	var r AttestedCandidateRequest
	if err := scale.Unmarshal(data, &r); err != nil {
		return AttestedCandidateRequest{}, fmt.Errorf("decode candidate request: %w", err)
	}
	return r, nil
}

func (r AttestedCandidateResponse) Encode() ([]byte, error) {
	return scale.Marshal(r)
}

func DecodeAttestedCandidateResponse(data []byte) (AttestedCandidateResponse, error) {
	var r AttestedCandidateResponse
	if err := scale.Unmarshal(data, &r); err != nil {
		return AttestedCandidateResponse{}, fmt.Errorf("decode candidate response: %w", err)
	}
	return r, nil
}
