package broker

import (
	"testing"

	"github.com/nextgraph-org/ng-repo-go/common/cbor"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/encryption"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
	"github.com/nextgraph-org/ng-repo-go/nuri"
	"github.com/nextgraph-org/ng-repo-go/rdf"
	"github.com/nextgraph-org/ng-repo-go/repo"
	"github.com/nextgraph-org/ng-repo-go/store"
	"github.com/nextgraph-org/ng-repo-go/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, seed string) encryption.K {
	t.Helper()
	h := hash.Sum([]byte(seed))
	return encryption.K(h)
}

func TestWalletCreateOpenRoundTrip(t *testing.T) {
	b := NewLocalBroker(InMemoryConfig{})
	b.Init()

	key := testKey(t, "wallet-key")
	_, err := b.WalletCreate("alice", key)
	require.NoError(t, err)

	_, err = b.WalletCreate("alice", key)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, b.WalletClose("alice"))

	opened, err := b.WalletOpen("alice", key)
	require.NoError(t, err)
	assert.Equal(t, WalletName("alice"), opened.Name)

	_, err = b.WalletOpen("alice", testKey(t, "wrong-key"))
	assert.ErrorIs(t, err, ErrWrongKey)
}

func TestWalletCloseZeroesSecret(t *testing.T) {
	b := NewLocalBroker(InMemoryConfig{})
	b.Init()

	key := testKey(t, "zero-me")
	opened, err := b.WalletCreate("bob", key)
	require.NoError(t, err)
	require.NotEqual(t, encryption.K{}, opened.Key)

	require.NoError(t, b.WalletClose("bob"))
	assert.Equal(t, encryption.K{}, opened.Key)
}

func TestWalletOpenUnknownName(t *testing.T) {
	b := NewLocalBroker(BasePathConfig{Dir: t.TempDir()})
	b.Init()

	_, err := b.WalletOpen("nobody", testKey(t, "k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func newTestSessionUser(t *testing.T) (UserId, *repo.Repository, *signature.Signer) {
	t.Helper()
	signer, err := signature.NewSigner()
	require.NoError(t, err)
	pub := signer.Public()
	user := UserId(pub)

	repoBody := &repo.RepositoryBody{ID: pub, Creator: pub}
	repository := repo.NewRepository(repoBody, hash.Sum([]byte("overlay")))
	repository.AddMember(pub)
	return user, repository, signer
}

func TestSessionStartStopLifecycle(t *testing.T) {
	b := NewLocalBroker(InMemoryConfig{})
	b.Init()

	user, repository, signer := newTestSessionUser(t)
	storeID := hash.Sum([]byte("store"))
	readCap := testKey(t, "read-cap")

	id, err := b.SessionStart(user, repository, signer, storeID, readCap, store.NewMemoryKV())
	require.NoError(t, err)

	index, local := decodeSessionID(id)
	assert.True(t, local)
	assert.Equal(t, 0, index)

	_, ok := b.Session(user)
	assert.True(t, ok)

	_, err = b.SessionStart(user, repository, signer, storeID, readCap, store.NewMemoryKV())
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, b.SessionStop(user))
	_, ok = b.Session(user)
	assert.False(t, ok)

	assert.ErrorIs(t, b.SessionStop(user), ErrNotFound)
}

func TestDispatchRdfDumpEmptyGraph(t *testing.T) {
	b := NewLocalBroker(InMemoryConfig{})
	b.Init()

	user, repository, signer := newTestSessionUser(t)
	id, err := b.SessionStart(user, repository, signer, hash.Sum([]byte("store")), testKey(t, "rc"), store.NewMemoryKV())
	require.NoError(t, err)

	resp := b.Dispatch(AppRequest{
		SessionID: id,
		Command:   CommandRdfDump,
		Nuri:      "did:ng:a",
	})
	assert.True(t, resp.Ok)
	assert.Empty(t, resp.Graph)
}

func TestDispatchUnknownCommand(t *testing.T) {
	b := NewLocalBroker(InMemoryConfig{})
	b.Init()

	user, repository, signer := newTestSessionUser(t)
	id, err := b.SessionStart(user, repository, signer, hash.Sum([]byte("store")), testKey(t, "rc"), store.NewMemoryKV())
	require.NoError(t, err)

	resp := b.Dispatch(AppRequest{
		SessionID: id,
		Command:   Command("NotARealCommand"),
		Nuri:      "did:ng:a",
	})
	assert.False(t, resp.Ok)
	assert.Equal(t, errUnknownCommand.Error(), resp.Error)
}

// TestDispatchWriteQueryThenReadQuery is scenario S2: commit
// AsyncTransaction([INSERT DATA { <urn:test:p1> a ex:Person }]), then query
// SELECT * WHERE { GRAPH ?g { ?s a ex:Person } } and expect exactly one row
// with ?s = <urn:test:p1>. Exercised end to end through Dispatch: the update
// is authored as an AsyncTransaction commit, ingested into the target
// branch, projected into the session's quad store, then read back.
func TestDispatchWriteQueryThenReadQuery(t *testing.T) {
	b := NewLocalBroker(InMemoryConfig{})
	b.Init()

	user, repository, signer := newTestSessionUser(t)
	id, err := b.SessionStart(user, repository, signer, hash.Sum([]byte("s2-store")), testKey(t, "s2-rc"), store.NewMemoryKV())
	require.NoError(t, err)

	sess, ok := b.Session(user)
	require.True(t, ok)

	branchID := repo.BranchId(signature.PublicKey(user))
	target := &nuri.Nuri{Kind: nuri.KindRepoKey, RepoID: hash.H(branchID)}

	branch := verifier.NewBranch(branchID, repo.BranchMain, sess.Rdf, nil, target.String())
	sess.TrackBranch(branchID, branch)

	rootCommit, err := repo.NewWithBodyAndSave(
		signer, repository.OverlayID, branchID, repo.QuorumNone,
		nil, nil, nil, nil, nil, nil, nil,
		repo.CommitBody{RootBranch: &repo.RootBranchBody{
			ID:     branchID,
			Quorum: repo.QuorumConfig{Owners: []signature.PublicKey{signer.Public()}},
		}},
		sess.Store,
	)
	require.NoError(t, err)
	require.NoError(t, branch.Ingest(repository, rootCommit, sess.Store))

	writeResp := b.Dispatch(AppRequest{
		SessionID: id,
		Command:   CommandWriteQuery,
		Nuri:      target.String(),
		Payload:   []byte(`INSERT DATA { <urn:test:p1> a ex:Person }`),
	})
	require.True(t, writeResp.Ok, writeResp.Error)

	readResp := b.Dispatch(AppRequest{
		SessionID: id,
		Command:   CommandReadQuery,
		Nuri:      target.String(),
		Payload:   []byte(`SELECT * WHERE { GRAPH ?g { ?s a ex:Person } }`),
	})
	require.True(t, readResp.Ok, readResp.Error)

	var bindings []rdf.Binding
	require.NoError(t, cbor.Unmarshal(readResp.QueryResult, &bindings))
	require.Len(t, bindings, 1)
	assert.Equal(t, "urn:test:p1", bindings[0]["s"])
	assert.Equal(t, target.String(), bindings[0]["g"])
}

func TestDispatchUnknownSession(t *testing.T) {
	b := NewLocalBroker(InMemoryConfig{})
	b.Init()

	resp := b.Dispatch(AppRequest{
		SessionID: encodeSessionID(7, true),
		Command:   CommandRdfDump,
		Nuri:      "did:ng:a",
	})
	assert.False(t, resp.Ok)
	assert.Equal(t, ErrNotFound.Error(), resp.Error)
}
