package pebble

import (
	"sync"

	"github.com/cockroachdb/pebble"
)

// KVStore implements db.KVStore on top of a pebble database.
type KVStore struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex
}

func NewKVStore(path string) (*KVStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 * 1024 * 1024), // 64MB
		MemTableSize: 32 * 1024 * 1024,                  // 32MB
		// 4 * MemTableSize = 128MB total queued memtables
		MemTableStopWritesThreshold: 4,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	return &KVStore{db: db}, nil
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *KVStore) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	return p.db.Set(key, value, pebble.Sync)
}

func (p *KVStore) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	return p.db.Delete(key, pebble.Sync)
}

func (p *KVStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
