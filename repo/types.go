// Package repo implements the commit DAG and header model: typed commits
// with causal acks/deps, header keys, signatures, quorum types, and
// branch-rooted validity (spec §4.2, §3).
package repo

import (
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
)

// BranchId identifies a branch by its topic public key.
type BranchId signature.PublicKey

// BranchKind enumerates the branch kinds from spec §3.
type BranchKind uint8

const (
	BranchMain BranchKind = iota
	BranchChat
	BranchStore
	BranchOverlay
	BranchUser
	BranchTransactional
)

// Quorum selects which signature discipline a commit's body is subject to
// (spec §3 CommitContent.quorum, §4.3 quorum enforcement).
type Quorum uint8

const (
	// QuorumNone requires only the author's own signature.
	QuorumNone Quorum = iota
	// QuorumPartial requires a partial-order signature set (no total order
	// across the set is implied).
	QuorumPartial
	// QuorumTotalOrder requires a SyncSignature closing a totally-ordered chain.
	QuorumTotalOrder
	// QuorumOwners requires every owner's signature.
	QuorumOwners
	// QuorumIamTheSignature marks a SyncSignature commit itself.
	QuorumIamTheSignature
)

// CommitHeader carries the causal metadata of a commit: direct acks/nacks
// (causal past) and deps/ndeps (additional, non-causal dependency hints),
// plus referenced file blocks. Per spec §3 invariant, each pair of
// "positive"/"negative" sets is disjoint.
type CommitHeader struct {
	Deps     []hash.H `cbor:"1,keyasint,omitempty"`
	NDeps    []hash.H `cbor:"2,keyasint,omitempty"`
	Acks     []hash.H `cbor:"3,keyasint,omitempty"`
	NAcks    []hash.H `cbor:"4,keyasint,omitempty"`
	Files    []hash.H `cbor:"5,keyasint,omitempty"`
	NFiles   []hash.H `cbor:"6,keyasint,omitempty"`
	Compact  bool     `cbor:"7,keyasint,omitempty"`
	id       *hash.H  // memoized, computed on demand
}

// IsBranchRoot reports whether this header marks its commit as a branch
// root commit: empty acks and empty nacks (spec §3).
func (h *CommitHeader) IsBranchRoot() bool {
	return h == nil || (len(h.Acks) == 0 && len(h.NAcks) == 0)
}

// WellFormed checks the disjointness invariants of spec §3.
func (h *CommitHeader) WellFormed() error {
	if h == nil {
		return nil
	}
	if intersects(h.Deps, h.NDeps) {
		return ErrInvalidHeader
	}
	if intersects(h.Acks, h.NAcks) {
		return ErrInvalidHeader
	}
	if intersects(h.Files, h.NFiles) {
		return ErrInvalidHeader
	}
	return nil
}

func intersects(a, b []hash.H) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[hash.H]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, y := range b {
		if _, ok := set[y]; ok {
			return true
		}
	}
	return false
}

// ObjectRef is a reference to an Object stored in the block store: the root
// block id plus its decryption key (mirrors store.Key, kept as a distinct
// type here since CommitContent.body is a domain concept, not a storage
// implementation detail).
type ObjectRef struct {
	ID  hash.H         `cbor:"1,keyasint"`
	Key [32]byte       `cbor:"2,keyasint"`
}

// CommitContent is the signed payload of a commit.
type CommitContent struct {
	// Author is BLAKE3_keyed("... CommitContent BLAKE3 key", overlay_id,
	// user_id): authors are unlinkable across overlays (spec §3).
	Author hash.H `cbor:"1,keyasint"`
	// Branch identifies the branch this commit belongs to.
	Branch BranchId `cbor:"2,keyasint"`
	// Perms references the permission-granting commits the author claims
	// authorize this commit's body.
	Perms []hash.H `cbor:"3,keyasint,omitempty"`
	// HeaderKeys carries the per-reference decryption keys for referenced
	// header objects when the header was not embedded.
	HeaderKeys map[hash.H][32]byte `cbor:"4,keyasint,omitempty"`
	Quorum     Quorum              `cbor:"5,keyasint"`
	Metadata   []byte              `cbor:"6,keyasint,omitempty"`
	Body       ObjectRef           `cbor:"7,keyasint"`
}

// AuthorDigest derives the unlinkable per-overlay author identifier.
func AuthorDigest(overlayID hash.H, userID signature.PublicKey) hash.H {
	return hash.SumKeyed([]byte("ng-repo CommitContent author v0"), overlayID[:], userID[:])
}

// Commit is a signed commit: content, signature, and lazily-loaded
// header/body.
type Commit struct {
	Content CommitContent     `cbor:"1,keyasint"`
	Sig     signature.Signature `cbor:"2,keyasint"`

	Header *CommitHeader `cbor:"-"`
	Body   CommitBody    `cbor:"-"`

	id *hash.H
}

// ID is the content address of the commit (hash over its canonical CBOR
// encoding of Content+Sig), used to key it in the store and in acks/nacks
// sets.
func (c *Commit) ID() hash.H {
	if c.id != nil {
		return *c.id
	}
	id := hash.Sum(marshalCommitForID(c))
	c.id = &id
	return id
}
