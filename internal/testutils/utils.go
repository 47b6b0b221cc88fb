package testutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
)

func RandomHash(t *testing.T) crypto.Hash {
	hash := make([]byte, crypto.HashSize)
	_, err := rand.Read(hash)
	require.NoError(t, err)
	return crypto.Hash(hash)
}

func RandomCandidateHash(t *testing.T) parachain.CandidateHash {
	return parachain.CandidateHash(RandomHash(t))
}

func RandomEd25519Keypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func RandomEd25519Signature(t *testing.T) crypto.Ed25519Signature {
	var sig crypto.Ed25519Signature
	_, err := rand.Read(sig[:])
	require.NoError(t, err)
	return sig
}

// RandomReceipt builds a candidate receipt anchored at the given relay parent.
func RandomReceipt(t *testing.T, relayParent crypto.Hash, para parachain.ParaID) parachain.CandidateReceipt {
	return parachain.CandidateReceipt{
		RelayParent:                 relayParent,
		ParaID:                      para,
		HeadDataHash:                RandomHash(t),
		PersistedValidationDataHash: RandomHash(t),
		CommitmentsRoot:             RandomHash(t),
	}
}
