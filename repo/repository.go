package repo

import (
	"sync"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
)

// Repository is the root identity of a repo: its id, verification program,
// creator, and (built up as RootBranch/AddMember commits are replayed) the
// member registry used to resolve an author digest back to a public key
// (spec §3 Repository, §4.2 step 2 "resolved via repo.member_pubkey").
type Repository struct {
	ID                  signature.PublicKey
	VerificationProgram []byte
	Creator             signature.PublicKey
	Metadata            []byte

	// OverlayID scopes the unlinkable author-digest derivation (spec §3
	// "authors are unlinkable across overlays").
	OverlayID hash.H

	mu      sync.RWMutex
	members map[hash.H]signature.PublicKey // author digest -> member pubkey
}

// NewRepository constructs a Repository from its singleton commit body.
func NewRepository(body *RepositoryBody, overlayID hash.H) *Repository {
	return &Repository{
		ID:                  body.ID,
		VerificationProgram: body.VerificationProgram,
		Creator:             body.Creator,
		Metadata:            body.Metadata,
		OverlayID:           overlayID,
		members:             make(map[hash.H]signature.PublicKey),
	}
}

// AddMember records pub as a member, keyed by its unlinkable author digest
// under this repository's overlay.
func (r *Repository) AddMember(pub signature.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	digest := AuthorDigest(r.OverlayID, pub)
	r.members[digest] = pub
}

// RemoveMember forgets pub. Per spec P5 (permission monotonicity), removal
// never retroactively invalidates commits already verified under it; it
// only prevents the member's *future* commits from resolving.
func (r *Repository) RemoveMember(pub signature.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	digest := AuthorDigest(r.OverlayID, pub)
	delete(r.members, digest)
}

// MemberPubkey resolves an author digest to the member's public key, or
// false if unknown.
func (r *Repository) MemberPubkey(authorDigest hash.H) (signature.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.members[authorDigest]
	return pub, ok
}
