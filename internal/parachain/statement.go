package parachain

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/eigerco/bramble/internal/crypto"
)

// StatementKind is the kind of attestation a validator makes about a candidate.
type StatementKind uint8

const (
	// StatementSeconded is issued by a validator introducing a candidate to
	// its group; it carries responsibility for the candidate's data.
	StatementSeconded StatementKind = iota
	// StatementValid attests that a previously seconded candidate passed
	// the validator's own checks.
	StatementValid
)

func (k StatementKind) String() string {
	switch k {
	case StatementSeconded:
		return "seconded"
	case StatementValid:
		return "valid"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// IsValid reports whether the kind is one of the two known statement kinds.
func (k StatementKind) IsValid() bool {
	return k == StatementSeconded || k == StatementValid
}

// SigningContext ties a statement signature to a relay parent and session,
// so a signature cannot be replayed under another context.
type SigningContext struct {
	RelayParent  crypto.Hash
	SessionIndex SessionIndex
}

// SignedStatement is one validator's signed attestation about one candidate.
// Its identity is (ValidatorIndex, Kind, CandidateHash); the signature covers
// that identity plus the signing context.
type SignedStatement struct {
	ValidatorIndex ValidatorIndex          `scale:"1"`
	Kind           StatementKind           `scale:"2"`
	CandidateHash  CandidateHash           `scale:"3"`
	Signature      crypto.Ed25519Signature `scale:"4"`
}

// SigningPayload produces the byte string a statement signature covers.
func SigningPayload(kind StatementKind, candidate CandidateHash, ctx SigningContext) []byte {
	payload := make([]byte, 0, 1+crypto.HashSize*2+4)
	payload = append(payload, byte(kind))
	payload = append(payload, candidate[:]...)
	payload = append(payload, ctx.RelayParent[:]...)
	payload = binary.LittleEndian.AppendUint32(payload, uint32(ctx.SessionIndex))
	return payload
}

// Sign produces a signed statement for the given candidate under the given context.
func Sign(key ed25519.PrivateKey, index ValidatorIndex, kind StatementKind, candidate CandidateHash, ctx SigningContext) SignedStatement {
	sig := ed25519.Sign(key, SigningPayload(kind, candidate, ctx))
	stmt := SignedStatement{
		ValidatorIndex: index,
		Kind:           kind,
		CandidateHash:  candidate,
	}
	copy(stmt.Signature[:], sig)
	return stmt
}

// VerifySignature checks the statement signature against the given public
// key and signing context.
func (s SignedStatement) VerifySignature(key ed25519.PublicKey, ctx SigningContext) bool {
	if len(key) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(key, SigningPayload(s.Kind, s.CandidateHash, ctx), s.Signature[:])
}
