package orm

import (
	"sync"

	"github.com/nextgraph-org/ng-repo-go/common/pubsub"
	"github.com/nextgraph-org/ng-repo-go/quad"
	"github.com/nextgraph-org/ng-repo-go/rdf"
)

// Scope is a subscription's visibility filter (spec §4.6 "Subscription
// model"): an empty Graphs or Subjects list matches every graph/subject.
type Scope struct {
	Graphs   []string
	Subjects []string
}

func (s Scope) matches(graph, subject string) bool {
	if len(s.Graphs) > 0 && !contains(s.Graphs, graph) {
		return false
	}
	if len(s.Subjects) > 0 && !contains(s.Subjects, subject) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Subscription is one registered (scope, shape) pair; every committed write
// affecting scoped quads is diffed and delivered here as a batch of Patch
// (spec §4.6).
type Subscription struct {
	scope  Scope
	broker *pubsub.Broker
}

// Listen starts delivering patch batches to a typed channel. Call the
// returned cancel func to stop delivery and release resources.
func (s *Subscription) Listen() (<-chan []Patch, func()) {
	sub := s.broker.Subscribe()
	ch := make(chan []Patch, 8)
	pubsub.Unwrap[[]Patch](sub, ch)
	return ch, sub.Close
}

// Engine ties an rdf.Store to the shape-driven patch/subscription machinery.
type Engine struct {
	store *rdf.Store

	mu   sync.Mutex
	subs []*Subscription
}

// NewEngine returns an Engine projecting over store.
func NewEngine(store *rdf.Store) *Engine {
	return &Engine{store: store}
}

// Subscribe registers a new scoped subscription.
func (e *Engine) Subscribe(scope Scope) *Subscription {
	sub := &Subscription{scope: scope, broker: pubsub.NewBroker(false)}
	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.mu.Unlock()
	return sub
}

// Unsubscribe deregisters sub; already-delivered Listen channels are
// unaffected until their own Close is called.
func (e *Engine) Unsubscribe(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s == sub {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// ApplyBatch validates and applies patches against shapeType/rootShape
// (spec §4.6 "Algorithm — apply batch"). On success, every quad delta is
// applied to the store in one pass and the patches are broadcast to every
// matching subscription; ApplyBatch returns the patches it broadcast. On
// failure, the store is left untouched, ApplyBatch returns nil and the
// error, and a compensating revert batch (the inverse of every patch
// resolved before the failure) is delivered only to origin if non-nil (P8:
// other subscribers observe no change).
func (e *Engine) ApplyBatch(shapeType *ShapeType, rootShape string, patches []Patch, origin *Subscription) (emitted []Patch, err error) {
	existing := func(graph, subject, predicate string) []string {
		rows := e.store.Match(rdf.Pattern{Graph: graph, Subject: subject, Predicate: predicate})
		vals := make([]string, len(rows))
		for i, r := range rows {
			vals[i] = r.Object
		}
		return vals
	}

	// Resolve every patch and snapshot its prior values before validating
	// or mutating anything, so a mid-batch failure can still produce an
	// accurate revert for patches resolved ahead of it.
	snaps := make([]patchSnapshot, 0, len(patches))
	for i := range patches {
		rp, rerr := resolvePatch(shapeType, rootShape, &patches[i])
		if rerr != nil {
			return nil, e.abort(snaps, origin, rerr)
		}
		graph, subject, predicate := rp.subjectPredicate()
		snaps = append(snaps, patchSnapshot{rp: rp, prior: existing(graph, subject, predicate)})
	}

	type built struct {
		graph string
		fwd   quad.Delta
	}
	var plan []built
	for _, s := range snaps {
		fwd, _, berr := buildDelta(s.rp, existing)
		if berr != nil {
			return nil, e.abort(snaps, origin, berr)
		}
		graph, _, _ := s.rp.subjectPredicate()
		plan = append(plan, built{graph: graph, fwd: fwd})
	}

	for _, b := range plan {
		if err := e.store.Apply(b.graph, b.fwd); err != nil {
			return nil, err
		}
	}

	e.broadcast(patches)
	return patches, nil
}

// patchSnapshot pairs a resolved patch with the values it saw at its
// target path before the batch began, so a failure partway through the
// batch can still produce an accurate revert for everything resolved so
// far (a patch that fails to resolve gets no snapshot and so has no part
// in the revert).
type patchSnapshot struct {
	rp    *resolvedPatch
	prior []string
}

// abort computes the full-batch revert (spec §4.6 step 3 / P8) from snaps
// and delivers it to origin only, leaving the store untouched.
func (e *Engine) abort(snaps []patchSnapshot, origin *Subscription, cause error) error {
	if origin != nil {
		revert := make([]Patch, 0, len(snaps))
		for i := len(snaps) - 1; i >= 0; i-- {
			revert = append(revert, revertPatch(snaps[i].rp, snaps[i].prior))
		}
		origin.broker.Broadcast(revert)
	}
	return cause
}

func (e *Engine) broadcast(patches []Patch) {
	e.mu.Lock()
	subs := append([]*Subscription{}, e.subs...)
	e.mu.Unlock()

	for _, sub := range subs {
		var filtered []Patch
		for _, p := range patches {
			path, err := ParsePath(p.Path)
			if err != nil {
				continue
			}
			if sub.scope.matches(path.Graph, path.Subject) {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			sub.broker.Broadcast(filtered)
		}
	}
}
