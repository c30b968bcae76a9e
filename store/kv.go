package store

import (
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v2"

	ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
)

const moduleName = "store"

var (
	// ErrMissingBlock is returned by Get when the block is not present.
	ErrMissingBlock = ngerrors.New(moduleName, 1, "store: missing block")
	// ErrAlreadyExists is a benign, non-error condition callers may observe
	// from Put; it is never returned as an error (see Put doc comment).
	ErrAlreadyExists = errors.New("store: already exists")
)

// KV is the narrow persistence interface the branch verifier and the
// object/commit layers consume by composition (see DESIGN NOTES "Dynamic
// dispatch over block storage"): put, get, has, del over raw block bytes
// keyed by content digest. Implementations are Send+Sync (safe for
// concurrent use from multiple goroutines without external locking).
type KV interface {
	// Put stores data under id. Putting an id that is already present is
	// an idempotent no-op and returns nil, not ErrAlreadyExists.
	Put(id hash.H, data []byte) error
	Get(id hash.H) ([]byte, error)
	Has(id hash.H) bool
	Del(id hash.H) error
	// Close releases any underlying resources (file handles, etc).
	Close() error
}

// memoryKV is an in-memory KV, for sessions that keep their blocks in
// memory and for tests.
type memoryKV struct {
	mu   sync.RWMutex
	data map[hash.H][]byte
}

// NewMemoryKV creates a new in-memory block store.
func NewMemoryKV() KV {
	return &memoryKV{data: make(map[hash.H][]byte)}
}

func (m *memoryKV) Put(id hash.H, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; ok {
		return nil // idempotent, see Put doc comment on KV
	}
	cp := append([]byte{}, data...)
	m.data[id] = cp
	return nil
}

func (m *memoryKV) Get(id hash.H) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[id]
	if !ok {
		return nil, ErrMissingBlock
	}
	return d, nil
}

func (m *memoryKV) Has(id hash.H) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[id]
	return ok
}

func (m *memoryKV) Del(id hash.H) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *memoryKV) Close() error { return nil }

// badgerKV persists blocks in an embedded badger database, one per
// `block<hash>/` directory per spec §6 persisted state layout.
type badgerKV struct {
	db *badger.DB
}

// NewBadgerKV opens (creating if necessary) a badger-backed block store
// rooted at dir.
func NewBadgerKV(dir string) (KV, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // the teacher's own stores substitute their structured logger instead
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerKV{db: db}, nil
}

func (b *badgerKV) Put(id hash.H, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(id[:]); err == nil {
			return nil // idempotent
		}
		return txn.Set(id[:], data)
	})
}

func (b *badgerKV) Get(id hash.H) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(id[:])
		if err == badger.ErrKeyNotFound {
			return ErrMissingBlock
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *badgerKV) Has(id hash.H) bool {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(id[:])
		return err
	})
	return err == nil
}

func (b *badgerKV) Del(id hash.H) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(id[:])
	})
}

func (b *badgerKV) Close() error {
	return b.db.Close()
}
