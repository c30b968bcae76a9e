package verifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/encryption"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
	"github.com/nextgraph-org/ng-repo-go/repo"
	"github.com/nextgraph-org/ng-repo-go/store"
)

// fakeSink records Apply/ApplyFile/ClearGraph calls for assertion.
type fakeSink struct {
	applied []QuadDelta
	files   []string
	cleared []string
}

func (f *fakeSink) Apply(graph string, delta QuadDelta) error {
	f.applied = append(f.applied, delta)
	return nil
}

func (f *fakeSink) ApplyFile(graph, fileID, name string, remove bool) error {
	f.files = append(f.files, fileID)
	return nil
}

func (f *fakeSink) ClearGraph(graph string) error {
	f.cleared = append(f.cleared, graph)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	storeID := hash.Sum([]byte("branch-test store"))
	return store.New(storeID, encryption.K{}, store.NewMemoryKV())
}

func TestBranchIngestGrantsAndProjects(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	creator, err := signature.NewSigner()
	require.NoError(err)
	member, err := signature.NewSigner()
	require.NoError(err)

	overlay := hash.Sum([]byte("overlay"))
	r := repo.NewRepository(&repo.RepositoryBody{
		ID:      creator.Public(),
		Creator: creator.Public(),
	}, overlay)
	r.AddMember(creator.Public())
	r.AddMember(member.Public())

	branchID := repo.BranchId(creator.Public())
	sink := &fakeSink{}
	b := NewBranch(branchID, repo.BranchMain, sink, nil, "test-graph")

	rootCommit, err := repo.NewWithBodyAndSave(
		creator, overlay, branchID, repo.QuorumNone,
		nil, nil, nil, nil, nil, nil, nil,
		repo.CommitBody{RootBranch: &repo.RootBranchBody{
			ID: branchID,
			Quorum: repo.QuorumConfig{
				Owners:  []signature.PublicKey{creator.Public()},
				Members: []signature.PublicKey{member.Public()},
			},
		}},
		s,
	)
	require.NoError(err)
	require.NoError(b.Ingest(r, rootCommit, s))
	require.Equal(StateRoot, b.State())
	require.True(b.grants.isOwner(creator.Public()))

	addMember, err := repo.NewWithBodyAndSave(
		creator, overlay, branchID, repo.QuorumNone,
		[]hash.H{rootCommit.ID()}, nil, []hash.H{rootCommit.ID()}, nil, nil, nil, nil,
		repo.CommitBody{AddMember: &repo.AddMemberBody{
			Member:      member.Public(),
			Permissions: []repo.Permission{repo.PermWriteAsync},
		}},
		s,
	)
	require.NoError(err)
	require.NoError(b.Ingest(r, addMember, s))
	require.True(b.grants.has(member.Public(), []repo.Permission{repo.PermWriteAsync}))

	codec := LastWriterWinsCodec{}
	payload := codec.Encode(QuadDelta{Adds: []Quad{{Graph: "test-graph", Subject: "s", Predicate: "p", Object: "o"}}})
	tx, err := repo.NewWithBodyAndSave(
		member, overlay, branchID, repo.QuorumNone,
		[]hash.H{addMember.ID()}, nil, []hash.H{addMember.ID()}, nil, nil, nil, nil,
		repo.CommitBody{AsyncTransaction: &repo.TransactionBody{Payload: payload}},
		s,
	)
	require.NoError(err)
	require.NoError(b.Ingest(r, tx, s))

	require.Len(sink.applied, 1)
	require.Equal("s", sink.applied[0].Adds[0].Subject)

	head := b.Head()
	require.Len(head, 1)
	require.Equal(tx.ID(), head[0])
}

// TestBranchSyncSignatureClosesStagedCommit is scenario S6: a SyncTransaction
// under total-order quorum stages pending, not in HEAD, until a SyncSignature
// referencing it arrives, at which point it is promoted to HEAD atomically.
func TestBranchSyncSignatureClosesStagedCommit(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	creator, err := signature.NewSigner()
	require.NoError(err)

	overlay := hash.Sum([]byte("s6-overlay"))
	r := repo.NewRepository(&repo.RepositoryBody{ID: creator.Public(), Creator: creator.Public()}, overlay)
	r.AddMember(creator.Public())

	branchID := repo.BranchId(creator.Public())
	sink := &fakeSink{}
	b := NewBranch(branchID, repo.BranchMain, sink, nil, "s6-graph")

	rootCommit, err := repo.NewWithBodyAndSave(
		creator, overlay, branchID, repo.QuorumNone,
		nil, nil, nil, nil, nil, nil, nil,
		repo.CommitBody{RootBranch: &repo.RootBranchBody{
			ID:     branchID,
			Quorum: repo.QuorumConfig{Owners: []signature.PublicKey{creator.Public()}},
		}},
		s,
	)
	require.NoError(err)
	require.NoError(b.Ingest(r, rootCommit, s))

	codec := LastWriterWinsCodec{}
	payload := codec.Encode(QuadDelta{Adds: []Quad{{Graph: "s6-graph", Subject: "s", Predicate: "p", Object: "o"}}})
	tx, err := repo.NewWithBodyAndSave(
		creator, overlay, branchID, repo.QuorumTotalOrder,
		[]hash.H{rootCommit.ID()}, nil, []hash.H{rootCommit.ID()}, nil, nil, nil, nil,
		repo.CommitBody{SyncTransaction: &repo.TransactionBody{Payload: payload}},
		s,
	)
	require.NoError(err)
	require.NoError(b.Ingest(r, tx, s))

	// Staged: not in HEAD, not yet projected.
	require.NotContains(b.Head(), tx.ID())
	require.Empty(sink.applied)

	sig, err := repo.NewWithBodyAndSave(
		creator, overlay, branchID, repo.QuorumIamTheSignature,
		[]hash.H{tx.ID()}, nil, []hash.H{tx.ID()}, nil, nil, nil, nil,
		repo.CommitBody{SyncSignature: &repo.SyncSignatureBody{
			Closes:  []hash.H{tx.ID()},
			Signers: []signature.PublicKey{creator.Public()},
		}},
		s,
	)
	require.NoError(err)
	require.NoError(b.Ingest(r, sig, s))

	// Promoted: tx is now in HEAD and projected, atomically with the signature.
	require.Contains(b.Head(), tx.ID())
	require.Len(sink.applied, 1)
	require.Equal("s", sink.applied[0].Adds[0].Subject)
}

// TestBranchConcurrentDisjointCommits is scenario S5: two concurrent
// AsyncTransaction commits on the same branch with disjoint quad sets are
// both accepted, HEAD has two elements, and RDF state is their union.
func TestBranchConcurrentDisjointCommits(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	creator, err := signature.NewSigner()
	require.NoError(err)

	overlay := hash.Sum([]byte("s5-overlay"))
	r := repo.NewRepository(&repo.RepositoryBody{ID: creator.Public(), Creator: creator.Public()}, overlay)
	r.AddMember(creator.Public())

	branchID := repo.BranchId(creator.Public())
	sink := &fakeSink{}
	b := NewBranch(branchID, repo.BranchMain, sink, nil, "s5-graph")

	rootCommit, err := repo.NewWithBodyAndSave(
		creator, overlay, branchID, repo.QuorumNone,
		nil, nil, nil, nil, nil, nil, nil,
		repo.CommitBody{RootBranch: &repo.RootBranchBody{
			ID:     branchID,
			Quorum: repo.QuorumConfig{Owners: []signature.PublicKey{creator.Public()}},
		}},
		s,
	)
	require.NoError(err)
	require.NoError(b.Ingest(r, rootCommit, s))

	codec := LastWriterWinsCodec{}
	payloadA := codec.Encode(QuadDelta{Adds: []Quad{{Graph: "s5-graph", Subject: "a", Predicate: "p", Object: "1"}}})
	payloadB := codec.Encode(QuadDelta{Adds: []Quad{{Graph: "s5-graph", Subject: "b", Predicate: "p", Object: "2"}}})

	txA, err := repo.NewWithBodyAndSave(
		creator, overlay, branchID, repo.QuorumNone,
		[]hash.H{rootCommit.ID()}, nil, []hash.H{rootCommit.ID()}, nil, nil, nil, nil,
		repo.CommitBody{AsyncTransaction: &repo.TransactionBody{Payload: payloadA}},
		s,
	)
	require.NoError(err)
	txB, err := repo.NewWithBodyAndSave(
		creator, overlay, branchID, repo.QuorumNone,
		[]hash.H{rootCommit.ID()}, nil, []hash.H{rootCommit.ID()}, nil, nil, nil, nil,
		repo.CommitBody{AsyncTransaction: &repo.TransactionBody{Payload: payloadB}},
		s,
	)
	require.NoError(err)

	require.NoError(b.Ingest(r, txA, s))
	require.NoError(b.Ingest(r, txB, s))

	head := b.Head()
	require.Len(head, 2)
	require.ElementsMatch([]hash.H{txA.ID(), txB.ID()}, head)

	require.Len(sink.applied, 2)
	var subjects []string
	for _, d := range sink.applied {
		subjects = append(subjects, d.Adds[0].Subject)
	}
	require.ElementsMatch([]string{"a", "b"}, subjects)
}

func TestBranchRejectsUnknownMember(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	creator, err := signature.NewSigner()
	require.NoError(err)
	stranger, err := signature.NewSigner()
	require.NoError(err)

	overlay := hash.Sum([]byte("overlay2"))
	r := repo.NewRepository(&repo.RepositoryBody{ID: creator.Public(), Creator: creator.Public()}, overlay)
	r.AddMember(creator.Public())

	branchID := repo.BranchId(creator.Public())
	b := NewBranch(branchID, repo.BranchMain, nil, nil, "g")

	bad, err := repo.NewWithBodyAndSave(
		stranger, overlay, branchID, repo.QuorumNone,
		nil, nil, nil, nil, nil, nil, nil,
		repo.CommitBody{AsyncTransaction: &repo.TransactionBody{Payload: nil}},
		s,
	)
	require.NoError(err)
	err = b.Ingest(r, bad, s)
	require.ErrorIs(err, repo.ErrMemberUnknown)
}
