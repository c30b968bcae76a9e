package verifier

import ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"

const moduleName = "verifier"

var (
	// ErrInvalidTransition is returned when a state transition is not in
	// validTransitions.
	ErrInvalidTransition = ngerrors.New(moduleName, 1, "verifier: invalid branch state transition")
	// ErrUnknownBranch is returned when a commit targets a branch the
	// verifier has no local state for.
	ErrUnknownBranch = ngerrors.New(moduleName, 2, "verifier: unknown branch")
)
