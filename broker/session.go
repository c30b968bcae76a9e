package broker

import (
	"github.com/google/uuid"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/encryption"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
	"github.com/nextgraph-org/ng-repo-go/orm"
	"github.com/nextgraph-org/ng-repo-go/protocol"
	"github.com/nextgraph-org/ng-repo-go/rdf"
	"github.com/nextgraph-org/ng-repo-go/repo"
	"github.com/nextgraph-org/ng-repo-go/store"
	"github.com/nextgraph-org/ng-repo-go/verifier"
)

// UserId is the member pubkey a session belongs to.
type UserId signature.PublicKey

// SessionPeerStorage is the persisted record a session needs to resume
// after a restart: the repository's read-capability and which branches it
// was tracking (spec §4.7 "session_start" / "session_stop").
type SessionPeerStorage struct {
	User     UserId          `cbor:"1,keyasint"`
	StoreID  hash.H          `cbor:"2,keyasint"`
	ReadCap  encryption.K    `cbor:"3,keyasint"`
	Branches []repo.BranchId `cbor:"4,keyasint"`
}

// Session is a locally-verified repository: a live Repository together
// with the branch verifiers, block store, and RDF/ORM projection a local
// broker keeps open on a user's behalf (spec §4.7 "an open session holds:
// repository state, per-branch verifier, a block store, a triple store,
// an ORM engine").
type Session struct {
	// ID is a log/metrics correlation identifier stable for the life of
	// this Session, independent of its numeric session handle (an index
	// into the broker's append-only list of opened sessions, so a handle
	// is never handed out twice; an old handle for a user resolves to
	// whichever session that user currently has open).
	ID         uuid.UUID
	User       UserId
	Repository *repo.Repository
	Store      *store.Store
	Rdf        *rdf.Store
	Orm        *orm.Engine
	Branches   map[repo.BranchId]*verifier.Branch

	// Signer authors new commits on this session's behalf (Create,
	// WriteQuery/Update, FilePut); nil for a read-only session.
	Signer *signature.Signer

	// schemas maps a subscription's target nuri to the shape schema it
	// was opened with via OrmStart/OrmStartDiscrete, so a later
	// OrmUpdate/OrmDiscreteUpdate on the same nuri can validate against
	// it without the caller resending the schema on every patch batch.
	schemas map[string]*orm.ShapeType

	// unsubscribe holds each open subscription's teardown func, keyed the
	// same way as schemas, so SessionStop can stop every forwarding
	// goroutine dispatchOrmStart spawned instead of leaking them.
	unsubscribe map[string]func()
}

// NewSession wires together a fresh, empty Session over repository for
// user, backed by kv for block storage. signer may be nil for a read-only
// session that never issues Create/WriteQuery/FilePut commands.
func NewSession(user UserId, repository *repo.Repository, signer *signature.Signer, storeID hash.H, readCap encryption.K, kv store.KV) *Session {
	rdfStore := rdf.NewStore()
	return &Session{
		ID:          uuid.New(),
		User:        user,
		Repository:  repository,
		Store:       store.New(storeID, readCap, kv),
		Rdf:         rdfStore,
		Orm:         orm.NewEngine(rdfStore),
		Branches:    make(map[repo.BranchId]*verifier.Branch),
		Signer:      signer,
		schemas:     make(map[string]*orm.ShapeType),
		unsubscribe: make(map[string]func()),
	}
}

// Close tears down every live ORM subscription the session opened.
func (s *Session) Close() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
}

// Branch returns the verifier tracking id, if the session has opened it.
func (s *Session) Branch(id repo.BranchId) (*verifier.Branch, bool) {
	b, ok := s.Branches[id]
	return b, ok
}

// TrackBranch registers a newly-opened branch verifier under the session.
func (s *Session) TrackBranch(id repo.BranchId, b *verifier.Branch) {
	s.Branches[id] = b
}

// RemoteSession is a session forwarded to a remote broker instead of
// verified locally (spec §4.7 "Headless mode forwards all requests to a
// remote verifier").
type RemoteSession struct {
	User UserId
	Conn *protocol.Connection
}

// sessionID packs a session's slot index and whether it is local or
// remote into one integer handle, matching spec §4.7's "session handles
// are (index << 1) | is_local" wire convention so the two session kinds
// never collide in a single numeric namespace.
func encodeSessionID(index int, local bool) uint64 {
	id := uint64(index) << 1
	if local {
		id |= 1
	}
	return id
}

func decodeSessionID(id uint64) (index int, local bool) {
	return int(id >> 1), id&1 == 1
}
