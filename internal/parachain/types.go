package parachain

import (
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/bramble/internal/crypto"
)

// ValidatorIndex is the index of a validator in the session's validator set.
type ValidatorIndex uint16

// GroupIndex is the index of a validator group within a session.
type GroupIndex uint16

// ParaID identifies a parachain.
type ParaID uint32

// SessionIndex identifies a session on the relay chain.
type SessionIndex uint32

// CandidateHash is the blake2b-256 hash of a candidate receipt.
type CandidateHash crypto.Hash

// PeerID is an opaque reference to a network peer. It is owned by the
// connection layer; this package only uses it as a map key.
type PeerID string

func (p PeerID) String() string {
	return fmt.Sprintf("%x", string(p))
}

// PersistedValidationData is the data a validator needs to re-execute a
// candidate, persisted alongside the receipt it was produced against.
type PersistedValidationData struct {
	ParentHead             []byte      `scale:"1"`
	RelayParentNumber      uint32      `scale:"2"`
	RelayParentStorageRoot crypto.Hash `scale:"3"`
	MaxPovSize             uint32      `scale:"4"`
}

// Hash returns the blake2b hash of the SCALE-encoded validation data.
func (pvd PersistedValidationData) Hash() (crypto.Hash, error) {
	b, err := scale.Marshal(pvd)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("marshal persisted validation data: %w", err)
	}
	return crypto.HashData(b), nil
}

// CandidateReceipt summarises a candidate block: the relay parent it builds
// on, the parachain it belongs to, and commitments to its outputs.
type CandidateReceipt struct {
	RelayParent                 crypto.Hash `scale:"1"`
	ParaID                      ParaID      `scale:"2"`
	HeadDataHash                crypto.Hash `scale:"3"`
	PersistedValidationDataHash crypto.Hash `scale:"4"`
	CommitmentsRoot             crypto.Hash `scale:"5"`
}

// Hash returns the candidate hash, the blake2b hash of the SCALE-encoded receipt.
func (r CandidateReceipt) Hash() (CandidateHash, error) {
	b, err := scale.Marshal(r)
	if err != nil {
		return CandidateHash{}, fmt.Errorf("marshal candidate receipt: %w", err)
	}
	return CandidateHash(crypto.HashData(b)), nil
}
