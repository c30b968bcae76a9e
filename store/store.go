package store

import (
	"github.com/nextgraph-org/ng-repo-go/common/crypto/encryption"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/logging"
)

var storeLogger = logging.GetLogger(moduleName)

// Store owns the blocks belonging to exactly one repository's storage
// scope (spec §3 Ownership & lifecycle: "A Block is owned by exactly one
// Store instance"). It pairs a pluggable KV backend with the per-store
// convergence key derived from the store id and read-cap secret.
type Store struct {
	id             hash.H
	convergenceKey encryption.K
	kv             KV
}

// New creates a Store backed by kv, scoped to storeID with the given
// read-cap secret (used only to derive the convergence key; it is not
// itself persisted by the store).
func New(storeID hash.H, storeReadCapSecret encryption.K, kv KV) *Store {
	return &Store{
		id:             storeID,
		convergenceKey: encryption.ConvergenceKey(storeID, storeReadCapSecret),
		kv:             kv,
	}
}

// ID returns the store's id.
func (s *Store) ID() hash.H {
	return s.id
}

// ConvergenceKey returns the store's convergence secret, used by callers
// (e.g. the object encoder) needing to derive per-chunk content keys.
func (s *Store) ConvergenceKey() encryption.K {
	return s.convergenceKey
}

// putPlaintext convergently encrypts plaintext, stores the resulting block,
// and returns its (id, content key) ObjectRef-equivalent.
func (s *Store) putPlaintext(plaintext []byte, children []hash.H) (Key, error) {
	block, key, err := newEncryptedBlock(s.convergenceKey, plaintext, children)
	if err != nil {
		return Key{}, err
	}
	id := block.ID()
	if err := s.Put(id, block); err != nil {
		return Key{}, err
	}
	return Key{ID: id, Key: key}, nil
}

// Put stores block under its computed id. Per spec §4.1, storing a block
// that already exists is idempotent and not an error.
func (s *Store) Put(id hash.H, block *Block) error {
	data := marshalBlock(block)
	return s.kv.Put(id, data)
}

// Get retrieves the block with the given id. It takes no key: blocks are
// opaque ciphertext at rest, and callers that hold the content key decrypt
// EncryptedContent afterwards (see GetPlaintext).
func (s *Store) Get(id hash.H) (*Block, error) {
	data, err := s.kv.Get(id)
	if err != nil {
		return nil, err
	}
	return unmarshalBlock(data)
}

// Has reports whether the block is present locally.
func (s *Store) Has(id hash.H) bool {
	return s.kv.Has(id)
}

// GetPlaintext fetches and decrypts the block addressed by ref.
func (s *Store) GetPlaintext(ref Key) ([]byte, error) {
	block, err := s.Get(ref.ID)
	if err != nil {
		return nil, err
	}
	return block.decrypt(ref.Key)
}

// Close releases the underlying KV backend.
func (s *Store) Close() error {
	return s.kv.Close()
}
