package broker

import (
	"sync"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
	"github.com/nextgraph-org/ng-repo-go/common/logging"
	"github.com/nextgraph-org/ng-repo-go/repo"
	"github.com/nextgraph-org/ng-repo-go/store"
)

// LocalBroker is the process-wide entry point: it owns every wallet and
// every open session, local or remote, for the lifetime of the process
// (spec §4.7 "Responsibility: process-wide entry point").
//
// Init is idempotent (sync.Once), and mu is a single read/write lock
// guarding all broker-owned maps: writers (session_start/stop,
// wallet_create/open/close, user_connect/disconnect) take the write
// lock; readers (looking up an already-open session to dispatch an
// AppRequest) take the read lock, so concurrent app requests against
// distinct sessions never serialize on each other.
type LocalBroker struct {
	once sync.Once
	mu   sync.RWMutex

	cfg     Config
	persist persistence
	logger  *logging.Logger

	wallets       map[WalletName]*LocalWalletStorage
	openedWallets map[WalletName]*OpenedWallet

	sessions       map[UserId]*Session
	remoteSessions map[UserId]*RemoteSession
	pumps          map[UserId]*pump

	openedSessionsList []UserId
	remoteSessionsList []UserId
}

// NewLocalBroker constructs a LocalBroker bound to cfg; callers must call
// Init before using it.
func NewLocalBroker(cfg Config) *LocalBroker {
	return &LocalBroker{cfg: cfg}
}

// Init lazily wires the persistence backend and in-memory state; safe to
// call more than once or from multiple goroutines (spec §4.7 "Init() is
// idempotent").
func (b *LocalBroker) Init() {
	b.once.Do(func() {
		b.persist = newPersistence(b.cfg)
		b.logger = logging.GetLogger(moduleName)
		b.wallets = make(map[WalletName]*LocalWalletStorage)
		b.openedWallets = make(map[WalletName]*OpenedWallet)
		b.sessions = make(map[UserId]*Session)
		b.remoteSessions = make(map[UserId]*RemoteSession)
		b.pumps = make(map[UserId]*pump)
	})
}

// SessionStart opens (or resumes) a local session for user over
// repository, backed by kv for block storage, and returns its numeric
// session handle (spec §4.7 "session_start"). signer may be nil for a
// read-only session.
func (b *LocalBroker) SessionStart(user UserId, repository *repo.Repository, signer *signature.Signer, storeID hash.H, readCap [32]byte, kv store.KV) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.sessions[user]; exists {
		return 0, ErrAlreadyExists
	}

	sess := NewSession(user, repository, signer, storeID, readCap, kv)
	b.sessions[user] = sess
	b.pumps[user] = newPump()
	b.openedSessionsList = append(b.openedSessionsList, user)
	sessionsOpen.Inc()

	return encodeSessionID(len(b.openedSessionsList)-1, true), nil
}

// SessionStop closes user's local session, draining its pump and
// releasing its verifiers/store references (spec §4.7 "session_stop", P10
// "session isolation": nothing from this session is reachable afterward).
func (b *LocalBroker) SessionStop(user UserId) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[user]
	if !ok {
		return ErrNotFound
	}
	if p, ok := b.pumps[user]; ok {
		p.Close()
		delete(b.pumps, user)
	}
	sess.Close()
	if err := sess.Store.Close(); err != nil {
		b.logger.Warn("session store close failed", "user", user, "err", err)
	}
	delete(b.sessions, user)
	sessionsOpen.Dec()
	return nil
}

// Session looks up user's open local session.
func (b *LocalBroker) Session(user UserId) (*Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[user]
	return s, ok
}

// UserConnect registers a RemoteSession for user, used in Headless mode
// where every request forwards to a remote broker instead of a locally
// held Session (spec §4.7 "user_connect (headless)").
func (b *LocalBroker) UserConnect(user UserId, remote *RemoteSession) error {
	if _, ok := b.cfg.(HeadlessConfig); !ok {
		return ErrHeadlessOnly
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remoteSessions[user] = remote
	b.remoteSessionsList = append(b.remoteSessionsList, user)
	return nil
}

// UserDisconnect tears down user's RemoteSession.
func (b *LocalBroker) UserDisconnect(user UserId) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.remoteSessions[user]; !ok {
		return ErrNotFound
	}
	delete(b.remoteSessions, user)
	return nil
}

// Pump returns user's message pump, if a local session owns one.
func (b *LocalBroker) Pump(user UserId) (*pump, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.pumps[user]
	return p, ok
}
