package verifier

import (
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/repo"
	"github.com/nextgraph-org/ng-repo-go/store"
	"github.com/nextgraph-org/ng-repo-go/topic"
)

// Branch is the per-branch verifier state machine of spec §4.3: it tracks
// lifecycle State, the member permission table, HEAD, the dead/nacked set,
// and the commits staged awaiting a closing SyncSignature, and projects
// accepted commits into a QuadSink.
type Branch struct {
	ID   repo.BranchId
	Kind repo.BranchKind

	state  State
	grants *memberGrants

	// commits indexes every accepted commit by id, for causal-closure and
	// ack/nack bookkeeping.
	commits map[hash.H]*repo.Commit
	// head is the set of commit ids that appear in no other accepted
	// commit's acks (spec §4.3 "HEAD maintenance").
	head map[hash.H]bool
	// dead holds ids permanently nacked out of HEAD consideration.
	dead map[hash.H]bool
	// pending holds commits whose Quorum requires a closing SyncSignature
	// (TotalOrder or Owners) and which have not yet been closed; they are
	// excluded from HEAD until closeQuorum admits them.
	pending map[hash.H]*repo.Commit

	sink  QuadSink
	codec CrdtCodec
	graph string
}

// NewBranch constructs an Empty-state branch ready to ingest its root
// commit. graph names the RDF graph accepted transactions project into.
func NewBranch(id repo.BranchId, kind repo.BranchKind, sink QuadSink, codec CrdtCodec, graph string) *Branch {
	if codec == nil {
		codec = LastWriterWinsCodec{}
	}
	return &Branch{
		ID:      id,
		Kind:    kind,
		state:   StateEmpty,
		grants:  newMemberGrants(),
		commits: make(map[hash.H]*repo.Commit),
		head:    make(map[hash.H]bool),
		dead:    make(map[hash.H]bool),
		pending: make(map[hash.H]*repo.Commit),
		sink:    sink,
		codec:   codec,
		graph:   graph,
	}
}

// State returns the branch's current lifecycle state.
func (b *Branch) State() State { return b.state }

// Head returns a snapshot of the current HEAD commit ids.
func (b *Branch) Head() []hash.H {
	out := make([]hash.H, 0, len(b.head))
	for id := range b.head {
		out = append(out, id)
	}
	return out
}

// CheckPermission implements repo.PermissionChecker, consulted from
// Commit.Verify. It looks up the commit body kind's rule in permissionTable
// and checks it against the author's current grants, special-casing
// author-only, owners-only and total-ordered rules (spec §4.3).
func (b *Branch) CheckPermission(r *repo.Repository, c *repo.Commit) error {
	kind := c.Body.Kind()
	rule, ok := permissionTable[kind]
	if !ok {
		// SyncSignature and unrecognized/empty bodies are checked
		// elsewhere (closeQuorum, Commit.Verify's own body-kind checks).
		return nil
	}

	pub, known := r.MemberPubkey(c.Content.Author)
	if !known {
		return repo.ErrMemberUnknown
	}

	switch {
	case rule.authorOnly:
		if pub != r.Creator {
			return repo.ErrPermissionDenied
		}
	case rule.ownersOnly:
		if !b.grants.isOwner(pub) {
			return repo.ErrPermissionDenied
		}
	default:
		if !b.grants.has(pub, rule.anyOf) {
			return repo.ErrPermissionDenied
		}
	}

	if rule.totalOrdered && c.Content.Quorum != repo.QuorumTotalOrder && c.Content.Quorum != repo.QuorumOwners {
		return repo.ErrPermissionDenied
	}
	return nil
}

// HasCommit implements repo.CausalIndex: a commit is known to this branch
// once Ingest has accepted it, whether or not it ever reached HEAD (staged
// quorum-pending commits count too, since they are not causally missing,
// only awaiting their closing SyncSignature).
func (b *Branch) HasCommit(id hash.H) bool {
	_, ok := b.commits[id]
	return ok
}

// Commit implements topic.CausalSource, letting a branch plan and serve a
// causal sync directly from its own accepted-commit index.
func (b *Branch) Commit(id hash.H) (*repo.Commit, bool) {
	c, ok := b.commits[id]
	return c, ok
}

// CommitIDs returns every commit id this branch has accepted, HEAD and
// staged alike, for history listing (spec §6 "History").
func (b *Branch) CommitIDs() []hash.H {
	out := make([]hash.H, 0, len(b.commits))
	for id := range b.commits {
		out = append(out, id)
	}
	return out
}

// IsPending reports whether id is currently staged awaiting a closing
// SyncSignature (spec §6 "SignatureStatus").
func (b *Branch) IsPending(id hash.H) bool {
	_, ok := b.pending[id]
	return ok
}

// PendingIDs returns every commit id currently staged awaiting a closing
// SyncSignature (spec §6 "SignatureRequest").
func (b *Branch) PendingIDs() []hash.H {
	out := make([]hash.H, 0, len(b.pending))
	for id := range b.pending {
		out = append(out, id)
	}
	return out
}

// Ingest runs Commit.Verify against this branch's permission table, then
// (on success) folds the commit's effect into the branch's state: grants,
// quorum staging, HEAD/dead maintenance, and RDF projection (spec §4.3
// "ingestion pipeline").
func (b *Branch) Ingest(r *repo.Repository, c *repo.Commit, s *store.Store) error {
	if err := c.Verify(r, b, s); err != nil {
		return err
	}

	id := c.ID()
	if b.dead[id] {
		return nil // already nacked by a prior commit; drop silently
	}
	b.commits[id] = c

	b.foldGrants(c)

	// Promotion is gated on the body kind, not on the SyncSignature commit's
	// own Quorum value: a SyncSignature naturally carries QuorumIamTheSignature
	// (or QuorumNone), never TotalOrder/Owners itself, since those describe the
	// discipline it closes on behalf of the chain, not itself (spec §4.3).
	if c.Body.Kind() == "SyncSignature" {
		b.closeQuorum(c)
		b.advanceHead(c)
		b.project(c)
		return nil
	}

	switch c.Content.Quorum {
	case repo.QuorumTotalOrder, repo.QuorumOwners:
		b.pending[id] = c
		return nil // excluded from HEAD until closed (spec §4.3)
	}

	b.advanceHead(c)
	b.project(c)

	if c.Body.Delete != nil {
		if err := b.Terminate(); err != nil {
			return err
		}
	}
	return nil
}

// foldGrants updates the member grant table from AddMember/RemoveMember/
// RootBranch commits (spec §4.3 permission table construction).
func (b *Branch) foldGrants(c *repo.Commit) {
	switch {
	case c.Body.RootBranch != nil:
		for _, owner := range c.Body.RootBranch.Quorum.Owners {
			b.grants.markOwner(owner)
		}
		for _, m := range c.Body.RootBranch.Quorum.Members {
			b.grants.grant(m, nil)
		}
		if b.state == StateEmpty {
			b.state = StateRoot
		}
	case c.Body.AddMember != nil:
		b.grants.grant(c.Body.AddMember.Member, c.Body.AddMember.Permissions)
	case c.Body.RemoveMember != nil:
		b.grants.revoke(c.Body.RemoveMember.Member)
	case c.Body.UpdateRootBranch != nil:
		if q := c.Body.UpdateRootBranch.Quorum; q != nil {
			for _, owner := range q.Owners {
				b.grants.markOwner(owner)
			}
		}
	}
	if b.state == StateRoot || b.state == StateEmpty {
		if c.Body.Kind() != "Repository" && c.Body.Kind() != "RootBranch" {
			b.state = StateActive
		}
	}
}

// closeQuorum admits every commit a SyncSignature closes, provided the
// union of the closing signers' permissions covers each closed commit's
// requirement (spec §4.3 "SyncSignature... union of all permissions of the
// chain it closes").
func (b *Branch) closeQuorum(sig *repo.Commit) {
	body := sig.Body.SyncSignature
	if body == nil {
		return
	}
	for _, id := range body.Closes {
		staged, ok := b.pending[id]
		if !ok {
			continue
		}
		rule := permissionTable[staged.Body.Kind()]
		covered := false
		for _, signer := range body.Signers {
			if (rule.ownersOnly && b.grants.isOwner(signer)) || (!rule.ownersOnly && b.grants.has(signer, rule.anyOf)) {
				covered = true
				break
			}
		}
		if !covered {
			continue // stays staged
		}
		delete(b.pending, id)
		b.advanceHead(staged)
		b.project(staged)
	}
}

// advanceHead adds c to HEAD and removes anything it acks (it is no longer
// a HEAD tip once something acks it), and permanently marks anything it
// nacks as dead (spec §4.3 HEAD maintenance: "HEAD is the set of commit ids
// that appear in no other commit's acks").
func (b *Branch) advanceHead(c *repo.Commit) {
	id := c.ID()
	b.head[id] = true
	if c.Header == nil {
		return
	}
	for _, acked := range c.Header.Acks {
		delete(b.head, acked)
	}
	for _, nacked := range c.Header.NAcks {
		b.dead[nacked] = true
		delete(b.head, nacked)
		delete(b.pending, nacked)
	}
}

// project decodes a transaction body's payload and applies it to the quad
// sink, or links/unlinks a file reference (spec §4.3 "projects accepted
// commits into the RDF store").
func (b *Branch) project(c *repo.Commit) {
	if b.sink == nil {
		return
	}
	switch {
	case c.Body.AsyncTransaction != nil:
		b.applyTransaction(c.Body.AsyncTransaction)
	case c.Body.SyncTransaction != nil:
		b.applyTransaction(c.Body.SyncTransaction)
	case c.Body.AddFile != nil:
		_ = b.sink.ApplyFile(b.graph, c.Body.AddFile.File.ID.String(), c.Body.AddFile.Name, false)
	case c.Body.RemoveFile != nil:
		_ = b.sink.ApplyFile(b.graph, c.Body.RemoveFile.File.String(), "", true)
	case c.Body.Delete != nil:
		_ = b.sink.ClearGraph(b.graph)
	}
}

func (b *Branch) applyTransaction(t *repo.TransactionBody) {
	delta, err := b.codec.Decode(t.Payload)
	if err != nil {
		return
	}
	_ = b.sink.Apply(b.graph, delta)
}

// Terminate transitions the branch to its terminal state following an
// accepted Delete commit (spec §4.3 state machine: Active|Active' ->
// Terminated).
func (b *Branch) Terminate() error {
	if !b.state.canTransitionTo(StateTerminated) {
		return ErrInvalidTransition
	}
	b.state = StateTerminated
	return nil
}

// BeginRefresh transitions Active -> Refreshing, entered on an accepted
// RefreshReadCap/RefreshWriteCap/UpdateRootBranch commit.
func (b *Branch) BeginRefresh() error {
	if !b.state.canTransitionTo(StateRefreshing) {
		return ErrInvalidTransition
	}
	b.state = StateRefreshing
	return nil
}

// CompleteRefresh transitions Refreshing -> Active'.
func (b *Branch) CompleteRefresh() error {
	if !b.state.canTransitionTo(StateActivePrime) {
		return ErrInvalidTransition
	}
	b.state = StateActivePrime
	return nil
}

var _ repo.PermissionChecker = (*Branch)(nil)
var _ repo.CausalIndex = (*Branch)(nil)
var _ topic.CausalSource = (*Branch)(nil)
