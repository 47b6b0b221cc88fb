package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

type Hash [HashSize]byte

// HashData hashes the input data using Blake2b-256.
func HashData(data []byte) Hash {
	return blake2b.Sum256(data)
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) IsEmpty() bool {
	return h == Hash{}
}
