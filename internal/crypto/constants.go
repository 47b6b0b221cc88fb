package crypto

import "crypto/ed25519"

const (
	HashSize             = 32
	Ed25519PublicKeySize = ed25519.PublicKeySize
	Ed25519SignatureSize = ed25519.SignatureSize
)
