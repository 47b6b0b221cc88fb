package crypto

import "crypto/ed25519"

type Ed25519Signature [Ed25519SignatureSize]byte

// ValidatorKey holds the session keys of a single validator. The Ed25519
// key signs statements; the discovery key identifies the validator on the
// authority-discovery layer and may differ from the signing key.
type ValidatorKey struct {
	Ed25519   ed25519.PublicKey
	Discovery ed25519.PublicKey
}

func (v ValidatorKey) IsEmpty() bool {
	return len(v.Ed25519) == 0
}

// Ed25519PublicKeySet is a set of Ed25519 public keys keyed by their raw bytes.
type Ed25519PublicKeySet map[string]struct{}

func (s Ed25519PublicKeySet) Add(key ed25519.PublicKey) {
	s[string(key)] = struct{}{}
}

func (s Ed25519PublicKeySet) Has(key ed25519.PublicKey) bool {
	_, ok := s[string(key)]
	return ok
}
