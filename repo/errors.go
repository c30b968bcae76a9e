package repo

import ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"

const moduleName = "repo"

var (
	// ErrInvalidHeader is returned when a CommitHeader violates its
	// disjointness invariants.
	ErrInvalidHeader = ngerrors.New(moduleName, 1, "repo: invalid commit header")
	// ErrInvalidSignature is returned when a commit's signature does not
	// verify against its claimed author.
	ErrInvalidSignature = ngerrors.New(moduleName, 2, "repo: invalid commit signature")
	// ErrPermissionDenied is returned when a commit's body is not
	// authorized by its claimed perms.
	ErrPermissionDenied = ngerrors.New(moduleName, 3, "repo: permission denied")
	// ErrNotACommit is returned when a loaded object does not decode into
	// a valid CommitContent.
	ErrNotACommit = ngerrors.New(moduleName, 4, "repo: not a commit")
	// ErrBodyTypeMismatch names a body kind that is not valid at its
	// position. Nothing in this package returns it: Commit.Verify reports
	// branch-root placement with ErrMustBeAtRootOfBranch and
	// ErrCannotBeAtRootOfBranch.
	ErrBodyTypeMismatch = ngerrors.New(moduleName, 5, "repo: body type mismatch")
	// ErrCannotBeAtRootOfBranch is returned when a body that is not
	// root-only appears at the branch root.
	ErrCannotBeAtRootOfBranch = ngerrors.New(moduleName, 6, "repo: body cannot be at root of branch")
	// ErrMustBeAtRootOfBranch is returned when a root-only body does NOT
	// appear at the branch root.
	ErrMustBeAtRootOfBranch = ngerrors.New(moduleName, 7, "repo: body must be at root of branch")
	// ErrSingletonCannotHaveHeader is returned when the Repository
	// singleton commit carries a non-nil header.
	ErrSingletonCannotHaveHeader = ngerrors.New(moduleName, 8, "repo: singleton commit cannot have header")
	// ErrMemberUnknown is returned when a commit's author does not resolve
	// to a known member public key.
	ErrMemberUnknown = ngerrors.New(moduleName, 9, "repo: unknown member")
)
