// Package nuri implements the `did:ng:` naming scheme (spec §6 "Nuri
// scheme"): URIs naming a repository's read-capability, a commit within a
// repository, or one of the three store targets (public, protected,
// entire user site).
package nuri

import (
	"encoding/base64"
	"strings"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"
)

const moduleName = "nuri"

// ErrMalformed is returned when a string does not parse as a valid Nuri.
var ErrMalformed = ngerrors.New(moduleName, 1, "nuri: malformed did:ng: URI")

const scheme = "did:ng:"

// Kind discriminates the five Nuri shapes spec §6 names.
type Kind uint8

const (
	// KindRepoKey names a repository read-capability: "o:<repo_id>:k:<key>".
	KindRepoKey Kind = iota
	// KindCommitRef names a commit within a repository: "o:<repo_id>:c:<key>".
	KindCommitRef
	// KindPublicStore is the "a" public store target.
	KindPublicStore
	// KindProtectedStore is the "b" protected store target.
	KindProtectedStore
	// KindEntireSite is the "i" entire-user-site target.
	KindEntireSite
)

// Nuri is a parsed did:ng: URI. RepoID and Key are populated only for
// KindRepoKey/KindCommitRef.
type Nuri struct {
	Kind   Kind
	RepoID hash.H
	Key    [32]byte
}

// Parse decodes s into a Nuri (spec §6 examples).
func Parse(s string) (*Nuri, error) {
	rest := strings.TrimPrefix(s, scheme)
	if rest == s {
		return nil, ErrMalformed
	}

	switch rest {
	case "a":
		return &Nuri{Kind: KindPublicStore}, nil
	case "b":
		return &Nuri{Kind: KindProtectedStore}, nil
	case "i":
		return &Nuri{Kind: KindEntireSite}, nil
	}

	parts := strings.Split(rest, ":")
	if len(parts) != 4 || parts[0] != "o" {
		return nil, ErrMalformed
	}

	repoID, err := decode32(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}
	key, err := decode32(parts[3])
	if err != nil {
		return nil, ErrMalformed
	}

	var kind Kind
	switch parts[2] {
	case "k":
		kind = KindRepoKey
	case "c":
		kind = KindCommitRef
	default:
		return nil, ErrMalformed
	}

	return &Nuri{Kind: kind, RepoID: hash.H(repoID), Key: key}, nil
}

// String renders n back into its did:ng: text form.
func (n *Nuri) String() string {
	switch n.Kind {
	case KindPublicStore:
		return scheme + "a"
	case KindProtectedStore:
		return scheme + "b"
	case KindEntireSite:
		return scheme + "i"
	case KindRepoKey:
		return scheme + "o:" + encode32(n.RepoID) + ":k:" + encode32(n.Key)
	case KindCommitRef:
		return scheme + "o:" + encode32(n.RepoID) + ":c:" + encode32(n.Key)
	default:
		return ""
	}
}

func encode32(b [32]byte) string {
	return base64.RawURLEncoding.EncodeToString(b[:])
}

func decode32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(b) != 32 {
		return out, ErrMalformed
	}
	copy(out[:], b)
	return out, nil
}
