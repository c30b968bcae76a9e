// Package broker implements the local broker and session manager, the
// process-wide entry point applications talk to (spec §4.7).
package broker

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
	ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"
)

const moduleName = "broker"

var (
	// ErrAlreadyExists is returned by WalletCreate for a name already in use.
	ErrAlreadyExists = ngerrors.New(moduleName, 1, "broker: wallet already exists")
	// ErrNotFound is returned when a wallet or session name is unknown.
	ErrNotFound = ngerrors.New(moduleName, 2, "broker: not found")
	// ErrWrongKey is returned when a wallet's stored key does not match
	// the key supplied to WalletOpen.
	ErrWrongKey = ngerrors.New(moduleName, 3, "broker: wrong wallet key")
	// ErrHeadlessOnly is returned when an operation meaningful only in
	// Headless mode is attempted against a local-verifier config.
	ErrHeadlessOnly = ngerrors.New(moduleName, 4, "broker: requires headless config")
)

// Config selects how the broker persists wallet/session state and whether
// it runs its own verifier locally or forwards everything to a remote
// broker (spec §4.7 "Config variants").
type Config interface {
	isConfig()
}

// InMemoryConfig persists nothing across process restarts.
type InMemoryConfig struct{}

func (InMemoryConfig) isConfig() {}

// BasePathConfig persists wallets/sessions as files under Dir.
type BasePathConfig struct {
	Dir string
}

func (BasePathConfig) isConfig() {}

// JsStorageConfig persists via caller-supplied read/write/delete
// callbacks, matching the embedding contract of a JS host environment
// (browser localStorage, React Native AsyncStorage, ...).
type JsStorageConfig struct {
	Read  func(key string) ([]byte, error)
	Write func(key string, val []byte) error
	Del   func(key string) error
}

func (JsStorageConfig) isConfig() {}

// HeadlessConfig runs no local verifier: every AppRequest is forwarded to
// a remote broker over the protocol package's wire adapter.
type HeadlessConfig struct {
	RemoteBrokerAddr string
	ServerPeerID     signature.PublicKey
	ClientPeerKey    *signature.Signer
}

func (HeadlessConfig) isConfig() {}

// persistence abstracts the three local storage backends (Headless has
// none — it keeps no local wallet/session state at all) behind a single
// save/load/delete surface, mirroring the entity package's own
// file-per-descriptor persistence idiom generalized to a pluggable backend.
type persistence interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
}

func newPersistence(cfg Config) persistence {
	switch c := cfg.(type) {
	case BasePathConfig:
		return &basePathPersistence{dir: c.Dir}
	case JsStorageConfig:
		return &jsStoragePersistence{cfg: c}
	default:
		return newMemoryPersistence()
	}
}

type basePathPersistence struct {
	dir string
}

func (p *basePathPersistence) path(key string) string {
	return filepath.Join(p.dir, key)
}

func (p *basePathPersistence) Save(key string, data []byte) error {
	if err := os.MkdirAll(p.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(p.path(key), data, 0600)
}

func (p *basePathPersistence) Load(key string) ([]byte, error) {
	return os.ReadFile(p.path(key))
}

func (p *basePathPersistence) Delete(key string) error {
	err := os.Remove(p.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

type jsStoragePersistence struct {
	cfg JsStorageConfig
}

func (p *jsStoragePersistence) Save(key string, data []byte) error { return p.cfg.Write(key, data) }
func (p *jsStoragePersistence) Load(key string) ([]byte, error)    { return p.cfg.Read(key) }
func (p *jsStoragePersistence) Delete(key string) error            { return p.cfg.Del(key) }

type memoryPersistence struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{data: make(map[string][]byte)}
}

func (p *memoryPersistence) Save(key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = append([]byte{}, data...)
	return nil
}

func (p *memoryPersistence) Load(key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, data...), nil
}

func (p *memoryPersistence) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}
