package verifier

import (
	"github.com/nextgraph-org/ng-repo-go/repo"
)

// permissionRule names the permission(s) a body kind requires, and whether
// acceptance additionally requires a closing total-order SyncSignature
// (spec §4.3 permission table).
type permissionRule struct {
	anyOf        []repo.Permission
	authorOnly   bool // Create: only the repo's own author/creator may use it
	ownersOnly   bool // Delete: requires Owners quorum
	totalOrdered bool
}

// permissionTable is the essential rows of spec §4.3, keyed by body kind
// (repo.CommitBody.Kind()).
var permissionTable = map[string]permissionRule{
	"Repository": {authorOnly: true},
	"RootBranch": {authorOnly: true},
	"UpdateRootBranch": {
		anyOf:        []repo.Permission{repo.PermChangeQuorum, repo.PermRefreshReadCap, repo.PermRefreshWriteCap, repo.PermRefreshOverlay},
		totalOrdered: true,
	},
	"AddMember":        {anyOf: []repo.Permission{repo.PermCreate, repo.PermAddReadMember}},
	"RemoveMember":      {anyOf: []repo.Permission{repo.PermRemoveMember}},
	"AddBranch":         {anyOf: []repo.Permission{repo.PermAddBranch}},
	"RemoveBranch":      {anyOf: []repo.Permission{repo.PermRemoveBranch}},
	"AsyncTransaction":  {anyOf: []repo.Permission{repo.PermWriteAsync}},
	"SyncTransaction":   {anyOf: []repo.Permission{repo.PermWriteSync}, totalOrdered: true},
	"Compact":           {anyOf: []repo.Permission{repo.PermCompact}, totalOrdered: true},
	"AddFile":           {anyOf: []repo.Permission{repo.PermWriteAsync, repo.PermWriteSync}},
	"RemoveFile":        {anyOf: []repo.Permission{repo.PermWriteAsync, repo.PermWriteSync}},
	"Delete":            {ownersOnly: true},
	"RefreshReadCap":    {anyOf: []repo.Permission{repo.PermRefreshReadCap}, totalOrdered: true},
	"RefreshWriteCap":   {anyOf: []repo.Permission{repo.PermRefreshWriteCap}, totalOrdered: true},
	// SyncSignature's own requirement ("union of all permissions of the
	// chain it closes") is evaluated dynamically in Branch.closeQuorum,
	// not via this static table.
}

// memberGrants tracks the permission set currently granted to each member
// of a branch's owning repository, as built up by replaying AddMember /
// RemoveMember / RootBranch commits.
type memberGrants struct {
	owners map[string]bool
	grants map[string]map[repo.Permission]bool
}

func newMemberGrants() *memberGrants {
	return &memberGrants{
		owners: make(map[string]bool),
		grants: make(map[string]map[repo.Permission]bool),
	}
}

func memberKey(pub [32]byte) string { return string(pub[:]) }

func (g *memberGrants) grant(pub [32]byte, perms []repo.Permission) {
	k := memberKey(pub)
	set, ok := g.grants[k]
	if !ok {
		set = make(map[repo.Permission]bool)
		g.grants[k] = set
	}
	for _, p := range perms {
		set[p] = true
	}
}

func (g *memberGrants) revoke(pub [32]byte) {
	delete(g.grants, memberKey(pub))
	delete(g.owners, memberKey(pub))
}

func (g *memberGrants) markOwner(pub [32]byte) {
	g.owners[memberKey(pub)] = true
}

func (g *memberGrants) isOwner(pub [32]byte) bool {
	return g.owners[memberKey(pub)]
}

// has reports whether pub currently holds any permission in anyOf. Owners
// implicitly hold every permission (spec §4.3 table header note).
func (g *memberGrants) has(pub [32]byte, anyOf []repo.Permission) bool {
	if g.isOwner(pub) {
		return true
	}
	set, ok := g.grants[memberKey(pub)]
	if !ok {
		return len(anyOf) == 0
	}
	for _, p := range anyOf {
		if set[p] {
			return true
		}
	}
	return false
}
