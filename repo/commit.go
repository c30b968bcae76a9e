package repo

import (
	"github.com/nextgraph-org/ng-repo-go/common/cbor"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
	"github.com/nextgraph-org/ng-repo-go/store"
)

// marshalCommitForID returns the canonical bytes a commit's id is computed
// over: content + signature, not the (locally cached) header/body.
func marshalCommitForID(c *Commit) []byte {
	return cbor.Marshal(struct {
		Content CommitContent       `cbor:"1,keyasint"`
		Sig     signature.Signature `cbor:"2,keyasint"`
	}{c.Content, c.Sig})
}

// New builds and signs a new commit. Callers that also want it persisted
// should follow with Save.
func New(
	signer *signature.Signer,
	overlayID hash.H,
	branch BranchId,
	quorum Quorum,
	perms []hash.H,
	header *CommitHeader,
	body CommitBody,
	metadata []byte,
	bodyRef ObjectRef,
) (*Commit, error) {
	content := CommitContent{
		Author:   AuthorDigest(overlayID, signer.Public()),
		Branch:   branch,
		Perms:    perms,
		Quorum:   quorum,
		Metadata: metadata,
		Body:     bodyRef,
	}

	blob := cbor.Marshal(content)
	sig, err := signer.Sign(signature.CommitSigContext, blob)
	if err != nil {
		return nil, err
	}

	return &Commit{
		Content: content,
		Sig:     *sig,
		Header:  header,
		Body:    body,
	}, nil
}

// NewWithBodyAndSave chunks and stores body, builds the commit referencing
// it, signs it, and persists the commit's own header/body blocks too
// (spec §4.2 Commit::new_with_body_and_save).
func NewWithBodyAndSave(
	signer *signature.Signer,
	overlayID hash.H,
	branch BranchId,
	quorum Quorum,
	deps, ndeps, acks, nacks, files, nfiles []hash.H,
	metadata []byte,
	body CommitBody,
	s *store.Store,
) (*Commit, error) {
	header := &CommitHeader{
		Deps: deps, NDeps: ndeps,
		Acks: acks, NAcks: nacks,
		Files: files, NFiles: nfiles,
	}
	if err := header.WellFormed(); err != nil {
		return nil, err
	}

	bodyBytes := cbor.Marshal(body)
	var headerBytes []byte
	if !header.IsBranchRoot() || len(deps)+len(ndeps)+len(files)+len(nfiles) > 0 {
		headerBytes = cbor.Marshal(header)
	}

	obj, err := store.NewObject(bodyBytes, headerBytes, 0, s)
	if err != nil {
		return nil, err
	}
	if _, err := obj.Save(s); err != nil {
		return nil, err
	}

	bodyRef := ObjectRef{ID: obj.Root.ID, Key: obj.Root.Key}

	c, err := New(signer, overlayID, branch, quorum, nil, header, body, metadata, bodyRef)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Load reconstructs a commit from the block store given its content
// address. withBody additionally loads and decodes the body object.
func Load(id hash.H, key [32]byte, s *store.Store, withBody bool) (*Commit, error) {
	// Load reads a block stored under id whose plaintext is the canonical
	// CBOR(Content, Sig) encoding. NewWithBodyAndSave does not write such a
	// block (it saves only the body object), so commits it builds cannot be
	// loaded here.
	raw, err := s.GetPlaintext(store.Key{ID: id, Key: key})
	if err != nil {
		return nil, err
	}

	var wire struct {
		Content CommitContent       `cbor:"1,keyasint"`
		Sig     signature.Signature `cbor:"2,keyasint"`
	}
	if err := cbor.Unmarshal(raw, &wire); err != nil {
		return nil, ErrNotACommit
	}

	c := &Commit{Content: wire.Content, Sig: wire.Sig}

	if withBody {
		bodyObj, err := store.Load(store.Key{ID: c.Content.Body.ID, Key: c.Content.Body.Key}, s)
		if err != nil {
			return nil, err
		}
		var body CommitBody
		if err := cbor.Unmarshal(bodyObj.Content, &body); err != nil {
			return nil, ErrNotACommit
		}
		c.Body = body

		if len(bodyObj.Header) > 0 {
			var header CommitHeader
			if err := cbor.Unmarshal(bodyObj.Header, &header); err != nil {
				return nil, ErrInvalidHeader
			}
			c.Header = &header
		}
	}

	return c, nil
}

// PermissionChecker is the seam through which the branch verifier's
// permission engine is consulted from Commit.Verify, keeping repo free of
// a dependency on verifier (which itself depends on repo).
type PermissionChecker interface {
	CheckPermission(repo *Repository, c *Commit) error
}

// CausalIndex is an optional extension of PermissionChecker: a branch
// verifier holding a local index of every commit it has already accepted
// implements this so Verify can check causal closure against that index
// instead of falling back to raw block presence in the content store
// (which addresses plaintext content, not commit blobs, and so never
// actually holds a commit's own id).
type CausalIndex interface {
	HasCommit(id hash.H) bool
}

// Verify runs the verification protocol of spec §4.2 in order,
// short-circuiting on the first failure: header well-formedness, Ed25519
// signature, body-specific permission (via perms), and full causal-past
// closure.
func (c *Commit) Verify(r *Repository, perms PermissionChecker, s *store.Store) error {
	if err := c.Header.WellFormed(); err != nil {
		return err
	}

	if c.Body.Kind() == "Repository" && c.Header != nil {
		return ErrSingletonCannotHaveHeader
	}

	pub, ok := r.MemberPubkey(c.Content.Author)
	if !ok {
		return ErrMemberUnknown
	}
	blob := cbor.Marshal(c.Content)
	if !pub.Verify(signature.CommitSigContext, blob, &c.Sig) {
		return ErrInvalidSignature
	}

	if perms != nil {
		if err := perms.CheckPermission(r, c); err != nil {
			return err
		}
	}

	rootOnly := c.Body.IsRootBranchOnly()
	isBranchRoot := c.Header.IsBranchRoot()
	switch {
	case rootOnly && !isBranchRoot:
		return ErrMustBeAtRootOfBranch
	case !rootOnly && isBranchRoot && c.Body.Kind() != "":
		return ErrCannotBeAtRootOfBranch
	}

	return c.verifyCausalClosure(perms, s)
}

// verifyCausalClosure checks that every id in acks ∪ nacks is already known
// (spec §4.2 step 4), collecting every missing id before failing rather than
// stopping at the first. A checker that also implements CausalIndex (every
// concrete branch verifier does) is consulted directly; otherwise presence
// in the content store is used as a best-effort fallback for callers
// verifying a commit outside of any branch's local index.
func (c *Commit) verifyCausalClosure(perms PermissionChecker, s *store.Store) error {
	known := s.Has
	if idx, ok := perms.(CausalIndex); ok {
		known = idx.HasCommit
	}

	var missing []hash.H
	for _, id := range c.Header.acksAndNacks() {
		if !known(id) {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		return &store.MissingBlocks{IDs: missing}
	}
	return nil
}

func (h *CommitHeader) acksAndNacks() []hash.H {
	if h == nil {
		return nil
	}
	out := make([]hash.H, 0, len(h.Acks)+len(h.NAcks))
	out = append(out, h.Acks...)
	out = append(out, h.NAcks...)
	return out
}
