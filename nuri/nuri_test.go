package nuri

import (
	"testing"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoreTargets(t *testing.T) {
	for _, tc := range []struct {
		in   string
		kind Kind
	}{
		{"did:ng:a", KindPublicStore},
		{"did:ng:b", KindProtectedStore},
		{"did:ng:i", KindEntireSite},
	} {
		n, err := Parse(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.kind, n.Kind)
		assert.Equal(t, tc.in, n.String())
	}
}

func TestParseRepoKeyAndCommitRefRoundTrip(t *testing.T) {
	repoID := hash.Sum([]byte("repo"))
	key := hash.Sum([]byte("key"))

	readCap := &Nuri{Kind: KindRepoKey, RepoID: repoID, Key: key}
	s := readCap.String()
	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, *readCap, *parsed)

	commitRef := &Nuri{Kind: KindCommitRef, RepoID: repoID, Key: key}
	s2 := commitRef.String()
	parsed2, err := Parse(s2)
	require.NoError(t, err)
	assert.Equal(t, *commitRef, *parsed2)
	assert.NotEqual(t, s, s2)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "not-a-nuri", "did:ng:", "did:ng:o:bad", "did:ng:o:x:k:y"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrMalformed, "input: %q", in)
	}
}
