package repo

import (
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
)

// CommitBody is the tagged union of commit body kinds (spec §3, §4.3
// permission table), following the same "one populated field" encoding
// idiom as roothash/api.Event in the teacher tree.
type CommitBody struct {
	Repository       *RepositoryBody       `cbor:"1,keyasint,omitempty"`
	RootBranch       *RootBranchBody       `cbor:"2,keyasint,omitempty"`
	Branch           *BranchBody           `cbor:"3,keyasint,omitempty"`
	UpdateRootBranch *UpdateRootBranchBody `cbor:"4,keyasint,omitempty"`
	AddMember        *AddMemberBody        `cbor:"5,keyasint,omitempty"`
	RemoveMember     *RemoveMemberBody     `cbor:"6,keyasint,omitempty"`
	AddBranch        *AddBranchBody        `cbor:"7,keyasint,omitempty"`
	RemoveBranch     *RemoveBranchBody     `cbor:"8,keyasint,omitempty"`
	AsyncTransaction *TransactionBody      `cbor:"9,keyasint,omitempty"`
	SyncTransaction  *TransactionBody      `cbor:"10,keyasint,omitempty"`
	Compact          *CompactBody          `cbor:"11,keyasint,omitempty"`
	AddFile          *AddFileBody          `cbor:"12,keyasint,omitempty"`
	RemoveFile       *RemoveFileBody       `cbor:"13,keyasint,omitempty"`
	SyncSignature    *SyncSignatureBody    `cbor:"14,keyasint,omitempty"`
	Delete           *DeleteBody           `cbor:"15,keyasint,omitempty"`
	RefreshReadCap   *RefreshReadCapBody   `cbor:"16,keyasint,omitempty"`
	RefreshWriteCap  *RefreshWriteCapBody  `cbor:"17,keyasint,omitempty"`
}

// Kind names the single populated variant, for logging and permission
// lookups; returns "" for an (invalid) empty body.
func (b *CommitBody) Kind() string {
	switch {
	case b.Repository != nil:
		return "Repository"
	case b.RootBranch != nil:
		return "RootBranch"
	case b.Branch != nil:
		return "Branch"
	case b.UpdateRootBranch != nil:
		return "UpdateRootBranch"
	case b.AddMember != nil:
		return "AddMember"
	case b.RemoveMember != nil:
		return "RemoveMember"
	case b.AddBranch != nil:
		return "AddBranch"
	case b.RemoveBranch != nil:
		return "RemoveBranch"
	case b.AsyncTransaction != nil:
		return "AsyncTransaction"
	case b.SyncTransaction != nil:
		return "SyncTransaction"
	case b.Compact != nil:
		return "Compact"
	case b.AddFile != nil:
		return "AddFile"
	case b.RemoveFile != nil:
		return "RemoveFile"
	case b.SyncSignature != nil:
		return "SyncSignature"
	case b.Delete != nil:
		return "Delete"
	case b.RefreshReadCap != nil:
		return "RefreshReadCap"
	case b.RefreshWriteCap != nil:
		return "RefreshWriteCap"
	default:
		return ""
	}
}

// IsRootBranchOnly reports whether this body kind may only appear at a
// branch root, a commit with no acks and no nacks (spec §4.2 branch-root
// rules). Commit.Verify checks that position only, not which branch the
// commit is on.
func (b *CommitBody) IsRootBranchOnly() bool {
	switch b.Kind() {
	case "Repository", "RootBranch":
		return true
	default:
		return false
	}
}

// RepositoryBody is the singleton first commit of the root branch.
type RepositoryBody struct {
	ID                 signature.PublicKey `cbor:"1,keyasint"`
	VerificationProgram []byte             `cbor:"2,keyasint,omitempty"`
	Creator            signature.PublicKey `cbor:"3,keyasint"`
	Metadata           []byte              `cbor:"4,keyasint,omitempty"`
}

// RootBranchBody establishes the root metadata branch itself.
type RootBranchBody struct {
	ID     BranchId     `cbor:"1,keyasint"`
	Quorum QuorumConfig `cbor:"2,keyasint"`
}

// QuorumConfig names the members and thresholds a branch's quorum checks
// are evaluated against.
type QuorumConfig struct {
	Owners  []signature.PublicKey `cbor:"1,keyasint,omitempty"`
	Members []signature.PublicKey `cbor:"2,keyasint,omitempty"`
}

// BranchBody establishes a transactional (or user/store/overlay) branch.
type BranchBody struct {
	ID   BranchId   `cbor:"1,keyasint"`
	Kind BranchKind `cbor:"2,keyasint"`
}

// UpdateRootBranchBody mutates quorum/caps/overlay configuration.
type UpdateRootBranchBody struct {
	Quorum         *QuorumConfig `cbor:"1,keyasint,omitempty"`
	RefreshReadCap bool          `cbor:"2,keyasint,omitempty"`
	RefreshWriteCap bool         `cbor:"3,keyasint,omitempty"`
	RefreshOverlay bool          `cbor:"4,keyasint,omitempty"`
}

// Permission is a single named capability in the permission table (spec §4.3).
type Permission string

const (
	PermCreate          Permission = "Create"
	PermAddReadMember    Permission = "AddReadMember"
	PermRemoveMember     Permission = "RemoveMember"
	PermAddBranch        Permission = "AddBranch"
	PermRemoveBranch     Permission = "RemoveBranch"
	PermWriteAsync       Permission = "WriteAsync"
	PermWriteSync        Permission = "WriteSync"
	PermCompact          Permission = "Compact"
	PermChangeQuorum     Permission = "ChangeQuorum"
	PermRefreshReadCap   Permission = "RefreshReadCap"
	PermRefreshWriteCap  Permission = "RefreshWriteCap"
	PermRefreshOverlay   Permission = "RefreshOverlay"
)

// AddMemberBody grants a member read/write/admin permissions.
type AddMemberBody struct {
	Member      signature.PublicKey `cbor:"1,keyasint"`
	Permissions []Permission        `cbor:"2,keyasint,omitempty"`
}

// RemoveMemberBody revokes a member's permissions.
type RemoveMemberBody struct {
	Member signature.PublicKey `cbor:"1,keyasint"`
}

// AddBranchBody registers a new transactional branch in the registry.
type AddBranchBody struct {
	Branch BranchId   `cbor:"1,keyasint"`
	Kind   BranchKind `cbor:"2,keyasint"`
}

// RemoveBranchBody removes a branch from the registry.
type RemoveBranchBody struct {
	Branch BranchId `cbor:"1,keyasint"`
}

// TransactionBody carries an opaque CRDT payload, interpreted via a codec
// (see quad.Codec) into a set of RDF quad add/remove operations.
type TransactionBody struct {
	Payload []byte `cbor:"1,keyasint"`
}

// CompactBody requests history compaction up to the referenced commits.
type CompactBody struct {
	UpTo []hash.H `cbor:"1,keyasint,omitempty"`
}

// AddFileBody links a file's ObjectRef to the branch.
type AddFileBody struct {
	File ObjectRef `cbor:"1,keyasint"`
	Name string    `cbor:"2,keyasint,omitempty"`
}

// RemoveFileBody unlinks a previously added file.
type RemoveFileBody struct {
	File hash.H `cbor:"1,keyasint"`
}

// SyncSignatureBody closes a chain of total-order-quorum commits with a
// signature set sufficient to promote them to HEAD (spec §4.3 Quorum
// enforcement).
type SyncSignatureBody struct {
	Closes     []hash.H              `cbor:"1,keyasint,omitempty"`
	Signatures []signature.Signature `cbor:"2,keyasint,omitempty"`
	Signers    []signature.PublicKey `cbor:"3,keyasint,omitempty"`
}

// DeleteBody terminates a root branch (and its repository). Requires
// Owners quorum.
type DeleteBody struct{}

// RefreshReadCapBody begins a read-cap refresh cycle.
type RefreshReadCapBody struct {
	NewReadCapSecret [32]byte `cbor:"1,keyasint"`
}

// RefreshWriteCapBody begins a write-cap refresh cycle.
type RefreshWriteCapBody struct {
	NewWriteCapSecret [32]byte `cbor:"1,keyasint"`
}
