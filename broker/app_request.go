package broker

import (
	"github.com/google/uuid"

	"github.com/nextgraph-org/ng-repo-go/common/cbor"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/signature"
	ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"
	"github.com/nextgraph-org/ng-repo-go/nuri"
	"github.com/nextgraph-org/ng-repo-go/orm"
	"github.com/nextgraph-org/ng-repo-go/rdf"
	"github.com/nextgraph-org/ng-repo-go/repo"
	"github.com/nextgraph-org/ng-repo-go/store"
	"github.com/nextgraph-org/ng-repo-go/verifier"
)

// Command names one AppRequest verb (spec §6 "AppRequest ... command:
// {Fetch, ReadQuery, WriteQuery, Update, Header, FetchHeader, History,
// SignatureStatus, SignatureRequest, Create, FilePut, FileGet, OrmStart,
// OrmStartDiscrete, OrmUpdate, OrmDiscreteUpdate, RdfDump, ...}").
type Command string

const (
	CommandFetch             Command = "Fetch"
	CommandReadQuery         Command = "ReadQuery"
	CommandWriteQuery        Command = "WriteQuery"
	CommandUpdate            Command = "Update"
	CommandHeader            Command = "Header"
	CommandFetchHeader       Command = "FetchHeader"
	CommandHistory           Command = "History"
	CommandSignatureStatus   Command = "SignatureStatus"
	CommandSignatureRequest  Command = "SignatureRequest"
	CommandCreate            Command = "Create"
	CommandFilePut           Command = "FilePut"
	CommandFileGet           Command = "FileGet"
	CommandOrmStart          Command = "OrmStart"
	CommandOrmStartDiscrete  Command = "OrmStartDiscrete"
	CommandOrmUpdate         Command = "OrmUpdate"
	CommandOrmDiscreteUpdate Command = "OrmDiscreteUpdate"
	CommandRdfDump           Command = "RdfDump"
)

// AppRequest is the only surface the core exposes to applications (spec
// §6): a session handle, a command, a target Nuri, and an optional
// command-specific payload. RequestID is optional; callers that want a
// request traceable across the broker's logs and metrics (spec §4.8
// "request ids") set it, and the broker generates one otherwise.
type AppRequest struct {
	SessionID uint64
	RequestID uuid.UUID
	Command   Command
	Nuri      string
	Payload   []byte
}

// AppResponse is the dispatcher's result, one variant of spec §6's
// AppResponse::V0 tagged union populated per command.
//
// A target Nuri naming a single stored object (a commit, via Fetch/
// FetchHeader/SignatureStatus, or a file, via FileGet) overloads the generic Nuri{RepoID, Key} pair as {object id,
// object decryption key} rather than {repo id, read-cap}: a session is
// already scoped to one repository and one block store, so the two
// 32-byte fields are free to carry whichever content address the command
// needs (see DESIGN.md "broker").
type AppResponse struct {
	Ok            bool
	Error         string
	Nuri          string
	Graph         []byte
	Commit        []byte
	Commits       []string
	QueryResult   []byte
	Header        []byte
	Pending       bool
	OrmUpdate     []orm.Patch
	FileUploading uint32
	FileBinary    []byte
}

const moduleNameAppRequest = "broker/app_request"

var (
	errUnknownCommand  = ngerrors.New(moduleNameAppRequest, 1, "broker: unknown AppRequest command")
	errReadOnlySession = ngerrors.New(moduleNameAppRequest, 2, "broker: session has no signer to author commits")
)

// Dispatch resolves req's session and routes req.Command to the owning
// package, translating panics-worthy programmer errors into
// AppResponse.Error rather than ever aborting the process (spec §4
// "Propagation policy: ... All other errors bubble to the broker, which
// surfaces them in the AppResponse::Error(string) variant. The process
// never aborts except on InternalError in debug builds").
func (b *LocalBroker) Dispatch(req AppRequest) AppResponse {
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	requestsTotal.WithLabelValues(string(req.Command)).Inc()

	index, local := decodeSessionID(req.SessionID)
	if !local {
		return AppResponse{Error: "remote session dispatch not implemented locally"}
	}

	b.mu.RLock()
	if index < 0 || index >= len(b.openedSessionsList) {
		b.mu.RUnlock()
		return errResponse(ErrNotFound)
	}
	user := b.openedSessionsList[index]
	sess, ok := b.sessions[user]
	b.mu.RUnlock()
	if !ok {
		return errResponse(ErrNotFound)
	}

	target, err := nuri.Parse(req.Nuri)
	if err != nil {
		return errResponse(err)
	}

	b.logger.Debug("dispatch", "request_id", req.RequestID, "session", sess.ID, "command", req.Command)

	switch req.Command {
	case CommandRdfDump:
		return dispatchRdfDump(sess, target)
	case CommandOrmStart, CommandOrmStartDiscrete:
		return dispatchOrmStart(sess, target, req.Payload)
	case CommandOrmUpdate, CommandOrmDiscreteUpdate:
		return dispatchOrmUpdate(sess, target, req.Payload)
	case CommandReadQuery:
		return dispatchReadQuery(sess, target, req.Payload)
	case CommandWriteQuery, CommandUpdate:
		return dispatchWriteQuery(sess, target, req.Payload)
	case CommandCreate:
		return dispatchCreate(sess, target)
	case CommandFilePut:
		return dispatchFilePut(sess, target, req.Payload)
	case CommandFileGet:
		return dispatchFileGet(sess, target)
	case CommandFetch:
		return dispatchFetch(sess, target)
	case CommandHeader:
		return dispatchHeader(sess, target)
	case CommandFetchHeader:
		return dispatchFetchHeader(sess, target)
	case CommandHistory:
		return dispatchHistory(sess, target)
	case CommandSignatureStatus:
		return dispatchSignatureStatus(sess, target)
	case CommandSignatureRequest:
		return dispatchSignatureRequest(sess, target)
	default:
		return errResponse(errUnknownCommand)
	}
}

func dispatchRdfDump(sess *Session, target *nuri.Nuri) AppResponse {
	graph := rdfGraphName(target)
	rows := sess.Rdf.Match(rdf.Pattern{Graph: graph})
	dump := make([]byte, 0)
	for _, r := range rows {
		dump = append(dump, []byte(r.Subject+" "+r.Predicate+" "+r.Object+"\n")...)
	}
	return AppResponse{Ok: true, Graph: dump}
}

// dispatchOrmStart registers target's shape schema (carried in payload,
// spec §4.6 OrmShapeType) against the session and opens a live
// subscription scoped to it (spec §4.6 "Subscription model: (graph_scope,
// subject_scope, shape_type)").
func dispatchOrmStart(sess *Session, target *nuri.Nuri, payload []byte) AppResponse {
	var shapeType orm.ShapeType
	if err := cbor.Unmarshal(payload, &shapeType); err != nil {
		return errResponse(err)
	}
	graph := rdfGraphName(target)
	sess.schemas[graph] = &shapeType

	if unsub, exists := sess.unsubscribe[graph]; exists {
		unsub()
	}

	sub := sess.Orm.Subscribe(orm.Scope{Graphs: []string{graph}})
	ch, unsub := sub.Listen()
	sess.unsubscribe[graph] = unsub
	go func() {
		for patches := range ch {
			_ = patches // drained and discarded; nothing forwards them into the session's pump
		}
	}()
	return AppResponse{Ok: true}
}

// dispatchOrmUpdate decodes an OrmPatch batch from payload and applies it
// against the schema target's OrmStart registered (spec §4.6 step 3:
// validate-then-commit-or-revert-all).
func dispatchOrmUpdate(sess *Session, target *nuri.Nuri, payload []byte) AppResponse {
	graph := rdfGraphName(target)
	shapeType, ok := sess.schemas[graph]
	if !ok {
		return errResponse(ErrNotFound)
	}

	var patches []orm.Patch
	if err := cbor.Unmarshal(payload, &patches); err != nil {
		return errResponse(err)
	}

	emitted, err := sess.Orm.ApplyBatch(shapeType, shapeType.RootShape, patches, nil)
	if err != nil {
		return errResponse(err)
	}
	return AppResponse{Ok: true, OrmUpdate: emitted}
}

// dispatchReadQuery runs a SELECT query (see rdf.Select) against the
// session's quad store and returns the matched bindings (spec §6
// ReadQuery, S2).
func dispatchReadQuery(sess *Session, target *nuri.Nuri, payload []byte) AppResponse {
	_, bindings, err := rdf.Select(sess.Rdf, string(payload))
	if err != nil {
		return errResponse(err)
	}
	return AppResponse{Ok: true, QueryResult: cbor.Marshal(bindings)}
}

// dispatchWriteQuery parses an INSERT DATA/DELETE DATA update (see
// rdf.ParseUpdate), then authors, signs, saves and ingests it as an
// AsyncTransaction commit on target's branch (spec §6 WriteQuery/Update,
// §4.4 write path). Update aliases WriteQuery: both commands carry the
// same update-language payload; there is no distinct "structural" update
// surface in this implementation (see DESIGN.md "broker").
func dispatchWriteQuery(sess *Session, target *nuri.Nuri, payload []byte) AppResponse {
	if sess.Signer == nil {
		return errResponse(errReadOnlySession)
	}

	graph := rdfGraphName(target)
	delta, err := rdf.ParseUpdate(string(payload), graph)
	if err != nil {
		return errResponse(err)
	}

	branch := sessionBranch(sess, target)
	head := branch.Head()
	payloadBytes := verifier.LastWriterWinsCodec{}.Encode(delta)

	commit, err := repo.NewWithBodyAndSave(
		sess.Signer, sess.Repository.OverlayID, branch.ID, repo.QuorumNone,
		head, nil, head, nil, nil, nil, nil,
		repo.CommitBody{AsyncTransaction: &repo.TransactionBody{Payload: payloadBytes}},
		sess.Store,
	)
	if err != nil {
		return errResponse(err)
	}
	if err := branch.Ingest(sess.Repository, commit, sess.Store); err != nil {
		return errResponse(err)
	}
	return AppResponse{Ok: true, Nuri: commitRefNuri(target, commit)}
}

// dispatchCreate establishes a brand-new transactional branch under the
// repository target names: an AddBranch commit registers it on target's
// own branch, then a RootBranchBody commit bootstraps the new branch
// itself, owned by the requesting session's member key (spec §6 Create,
// §4.3 "every branch, transactional branches included, begins with its
// own RootBranch commit").
func dispatchCreate(sess *Session, target *nuri.Nuri) AppResponse {
	if sess.Signer == nil {
		return errResponse(errReadOnlySession)
	}

	branchSigner, err := signature.NewSigner()
	if err != nil {
		return errResponse(err)
	}
	newBranchID := repo.BranchId(branchSigner.Public())

	parent := sessionBranch(sess, target)
	addBranch, err := repo.NewWithBodyAndSave(
		sess.Signer, sess.Repository.OverlayID, parent.ID, repo.QuorumNone,
		parent.Head(), nil, parent.Head(), nil, nil, nil, nil,
		repo.CommitBody{AddBranch: &repo.AddBranchBody{Branch: newBranchID, Kind: repo.BranchTransactional}},
		sess.Store,
	)
	if err != nil {
		return errResponse(err)
	}
	if err := parent.Ingest(sess.Repository, addBranch, sess.Store); err != nil {
		return errResponse(err)
	}

	newNuri := &nuri.Nuri{Kind: nuri.KindRepoKey, RepoID: hash.H(newBranchID), Key: target.Key}
	newBranch := verifier.NewBranch(newBranchID, repo.BranchTransactional, sess.Rdf, nil, newNuri.String())
	sess.TrackBranch(newBranchID, newBranch)

	rootCommit, err := repo.NewWithBodyAndSave(
		sess.Signer, sess.Repository.OverlayID, newBranchID, repo.QuorumNone,
		nil, nil, nil, nil, nil, nil, nil,
		repo.CommitBody{RootBranch: &repo.RootBranchBody{
			ID:     newBranchID,
			Quorum: repo.QuorumConfig{Owners: []signature.PublicKey{signature.PublicKey(sess.User)}},
		}},
		sess.Store,
	)
	if err != nil {
		return errResponse(err)
	}
	if err := newBranch.Ingest(sess.Repository, rootCommit, sess.Store); err != nil {
		return errResponse(err)
	}

	return AppResponse{Ok: true, Nuri: newNuri.String()}
}

// dispatchFilePut chunks payload into a content-addressed Object, saves
// it, and links it to target's branch with an AddFile commit (spec §6
// FilePut, §4.3 AddFile permission rule).
func dispatchFilePut(sess *Session, target *nuri.Nuri, payload []byte) AppResponse {
	if sess.Signer == nil {
		return errResponse(errReadOnlySession)
	}

	obj, err := store.NewObject(payload, nil, 0, sess.Store)
	if err != nil {
		return errResponse(err)
	}
	if _, err := obj.Save(sess.Store); err != nil {
		return errResponse(err)
	}

	fileRef := repo.ObjectRef{ID: obj.Root.ID, Key: obj.Root.Key}
	branch := sessionBranch(sess, target)
	head := branch.Head()
	commit, err := repo.NewWithBodyAndSave(
		sess.Signer, sess.Repository.OverlayID, branch.ID, repo.QuorumNone,
		head, nil, head, nil, []hash.H{fileRef.ID}, nil, nil,
		repo.CommitBody{AddFile: &repo.AddFileBody{File: fileRef}},
		sess.Store,
	)
	if err != nil {
		return errResponse(err)
	}
	if err := branch.Ingest(sess.Repository, commit, sess.Store); err != nil {
		return errResponse(err)
	}

	fileNuri := &nuri.Nuri{Kind: nuri.KindRepoKey, RepoID: fileRef.ID, Key: fileRef.Key}
	return AppResponse{Ok: true, Nuri: fileNuri.String()}
}

// dispatchFileGet loads and reassembles the file Object target references
// (RepoID/Key overloaded as the file's ObjectRef, spec §6 FileGet).
func dispatchFileGet(sess *Session, target *nuri.Nuri) AppResponse {
	obj, err := store.Load(store.Key{ID: target.RepoID, Key: target.Key}, sess.Store)
	if err != nil {
		return errResponse(err)
	}
	return AppResponse{Ok: true, FileBinary: obj.Content}
}

// commitWire is Fetch's wire representation of a commit: everything
// needed to re-verify and re-ingest it elsewhere.
type commitWire struct {
	Content repo.CommitContent  `cbor:"1,keyasint"`
	Sig     signature.Signature `cbor:"2,keyasint"`
	Body    repo.CommitBody     `cbor:"3,keyasint"`
}

// dispatchFetch returns the full content+signature+body of a single
// accepted commit (RepoID overloaded as the commit id, spec §6 Fetch).
func dispatchFetch(sess *Session, target *nuri.Nuri) AppResponse {
	for _, branch := range sess.Branches {
		if c, ok := branch.Commit(target.RepoID); ok {
			wire := commitWire{Content: c.Content, Sig: c.Sig, Body: c.Body}
			return AppResponse{Ok: true, Commit: cbor.Marshal(wire)}
		}
	}
	return errResponse(ErrNotFound)
}

// headerEntry pairs a commit id with its (possibly nil, for a branch-root
// commit) CommitHeader, the unit Header/FetchHeader report.
type headerEntry struct {
	Commit hash.H             `cbor:"1,keyasint"`
	Header *repo.CommitHeader `cbor:"2,keyasint,omitempty"`
}

// dispatchHeader reports the CommitHeader of every commit currently in
// target's branch HEAD (spec §6 Header).
func dispatchHeader(sess *Session, target *nuri.Nuri) AppResponse {
	branch := sessionBranch(sess, target)
	entries := make([]headerEntry, 0, len(branch.Head()))
	for _, id := range branch.Head() {
		if c, ok := branch.Commit(id); ok {
			entries = append(entries, headerEntry{Commit: id, Header: c.Header})
		}
	}
	return AppResponse{Ok: true, Header: cbor.Marshal(entries)}
}

// dispatchFetchHeader reports the CommitHeader of the single commit
// target references (RepoID overloaded as the commit id, spec §6
// FetchHeader).
func dispatchFetchHeader(sess *Session, target *nuri.Nuri) AppResponse {
	for _, branch := range sess.Branches {
		if c, ok := branch.Commit(target.RepoID); ok {
			return AppResponse{Ok: true, Header: cbor.Marshal(c.Header)}
		}
	}
	return errResponse(ErrNotFound)
}

// dispatchHistory lists every commit target's branch has accepted, HEAD
// and still-pending alike, as commit-ref Nuris (spec §6 History).
func dispatchHistory(sess *Session, target *nuri.Nuri) AppResponse {
	branch := sessionBranch(sess, target)
	ids := branch.CommitIDs()
	commits := make([]string, 0, len(ids))
	for _, id := range ids {
		commits = append(commits, (&nuri.Nuri{Kind: nuri.KindCommitRef, RepoID: id, Key: target.Key}).String())
	}
	return AppResponse{Ok: true, Commits: commits}
}

// dispatchSignatureStatus reports whether the commit target references is
// still staged awaiting a closing SyncSignature (spec §6 SignatureStatus).
func dispatchSignatureStatus(sess *Session, target *nuri.Nuri) AppResponse {
	for _, branch := range sess.Branches {
		if branch.IsPending(target.RepoID) {
			return AppResponse{Ok: true, Pending: true}
		}
	}
	return AppResponse{Ok: true}
}

// dispatchSignatureRequest closes every commit currently staged on
// target's branch with a fresh SyncSignature authored by this session
// (spec §6 SignatureRequest, §4.3 quorum closing).
func dispatchSignatureRequest(sess *Session, target *nuri.Nuri) AppResponse {
	if sess.Signer == nil {
		return errResponse(errReadOnlySession)
	}

	branch := sessionBranch(sess, target)
	closes := branch.PendingIDs()
	if len(closes) == 0 {
		return AppResponse{Ok: true}
	}

	sig, err := repo.NewWithBodyAndSave(
		sess.Signer, sess.Repository.OverlayID, branch.ID, repo.QuorumIamTheSignature,
		closes, nil, closes, nil, nil, nil, nil,
		repo.CommitBody{SyncSignature: &repo.SyncSignatureBody{
			Closes:  closes,
			Signers: []signature.PublicKey{sess.Signer.Public()},
		}},
		sess.Store,
	)
	if err != nil {
		return errResponse(err)
	}
	if err := branch.Ingest(sess.Repository, sig, sess.Store); err != nil {
		return errResponse(err)
	}
	return AppResponse{Ok: true, Nuri: commitRefNuri(target, sig)}
}

// sessionBranch returns (creating and tracking on first use) the verifier
// for the branch target names. A session lazily opens one verifier per
// branch it is asked to operate on rather than requiring every branch be
// pre-registered (spec §4.7 "an open session holds ... per-branch
// verifier").
func sessionBranch(sess *Session, target *nuri.Nuri) *verifier.Branch {
	id := repo.BranchId(target.RepoID)
	if b, ok := sess.Branch(id); ok {
		return b
	}
	b := verifier.NewBranch(id, repo.BranchMain, sess.Rdf, nil, rdfGraphName(target))
	sess.TrackBranch(id, b)
	return b
}

// commitRefNuri renders a commit-ref Nuri for c, carrying forward
// target's key component (see AppResponse's doc comment on the
// {id, key} overload convention).
func commitRefNuri(target *nuri.Nuri, c *repo.Commit) string {
	return (&nuri.Nuri{Kind: nuri.KindCommitRef, RepoID: c.ID(), Key: target.Key}).String()
}

func rdfGraphName(n *nuri.Nuri) string {
	return n.String()
}

func errResponse(err error) AppResponse {
	return AppResponse{Error: err.Error()}
}
