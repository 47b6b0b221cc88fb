package store

import (
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/pkg/db"
	"github.com/eigerco/bramble/pkg/db/pebble"
)

var ErrCandidateNotFound = errors.New("store: candidate not found")

// Key prefixes. One byte keeps candidate records in their own range so
// iteration and pruning stay cheap.
const (
	prefixCandidate byte = 0x01
)

type candidateRecord struct {
	Receipt parachain.CandidateReceipt        `scale:"1"`
	PVD     parachain.PersistedValidationData `scale:"2"`
}

// Candidates persists confirmed candidate receipts together with the
// validation data they were produced against, keyed by candidate hash.
type Candidates struct {
	kv db.KVStore
}

func NewCandidates(kv db.KVStore) *Candidates {
	return &Candidates{kv: kv}
}

func candidateKey(hash parachain.CandidateHash) []byte {
	key := make([]byte, 1+crypto.HashSize)
	key[0] = prefixCandidate
	copy(key[1:], hash[:])
	return key
}

func (c *Candidates) PutCandidate(receipt parachain.CandidateReceipt, pvd parachain.PersistedValidationData) error {
	hash, err := receipt.Hash()
	if err != nil {
		return fmt.Errorf("hash candidate receipt: %w", err)
	}
	value, err := scale.Marshal(candidateRecord{Receipt: receipt, PVD: pvd})
	if err != nil {
		return fmt.Errorf("marshal candidate record: %w", err)
	}
	return c.kv.Put(candidateKey(hash), value)
}

func (c *Candidates) GetCandidate(hash parachain.CandidateHash) (parachain.CandidateReceipt, parachain.PersistedValidationData, error) {
	value, err := c.kv.Get(candidateKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return parachain.CandidateReceipt{}, parachain.PersistedValidationData{}, ErrCandidateNotFound
	}
	if err != nil {
		return parachain.CandidateReceipt{}, parachain.PersistedValidationData{}, err
	}
	var record candidateRecord
	if err := scale.Unmarshal(value, &record); err != nil {
		return parachain.CandidateReceipt{}, parachain.PersistedValidationData{}, fmt.Errorf("unmarshal candidate record: %w", err)
	}
	return record.Receipt, record.PVD, nil
}

func (c *Candidates) DeleteCandidate(hash parachain.CandidateHash) error {
	return c.kv.Delete(candidateKey(hash))
}

// PruneRelayParent removes every stored candidate built on the given relay
// parent. Used when a leaf is deactivated and its candidates can no longer
// be requested.
func (c *Candidates) PruneRelayParent(relayParent crypto.Hash) error {
	iter, err := c.kv.NewIterator([]byte{prefixCandidate}, []byte{prefixCandidate + 1})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := c.kv.NewBatch()
	defer batch.Close()

	for iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return err
		}
		var record candidateRecord
		if err := scale.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("unmarshal candidate record: %w", err)
		}
		if record.Receipt.RelayParent != relayParent {
			continue
		}
		if err := batch.Delete(iter.Key()); err != nil {
			return err
		}
	}
	return batch.Commit()
}
