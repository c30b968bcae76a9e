// Package rdf implements the quad-store projection every transactional
// branch maps into: one named graph per branch, populated by decoding
// AsyncTransaction/SyncTransaction payloads into quad add/remove
// operations and applying them atomically per commit (spec §4.4).
package rdf

import (
	"sync"

	"github.com/nextgraph-org/ng-repo-go/quad"
)

// triple is a (subject, predicate, object) key within one graph's set.
type triple struct {
	subject   string
	predicate string
	object    string
}

// Store is an in-memory, named-graph quad store. It satisfies quad.Sink
// structurally (see DESIGN.md "verifier"/"rdf" — neither package imports
// the other, both depend only on the leaf quad package).
//
// Per spec §4.4's invariant, the store is a pure function of the set of
// visible commits: replaying the same deltas in any order over an empty
// store yields the same final quad set, since Apply is a per-graph set
// union/difference rather than an ordered log.
type Store struct {
	mu     sync.RWMutex
	graphs map[string]map[triple]struct{}
}

// NewStore returns an empty quad store.
func NewStore() *Store {
	return &Store{graphs: make(map[string]map[triple]struct{})}
}

// Apply atomically applies delta (removes then adds) to the named graph.
func (s *Store) Apply(graph string, delta quad.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.graphs[graph]
	if g == nil {
		g = make(map[triple]struct{})
		s.graphs[graph] = g
	}
	for _, q := range delta.Removes {
		delete(g, triple{q.Subject, q.Predicate, q.Object})
	}
	for _, q := range delta.Adds {
		g[triple{q.Subject, q.Predicate, q.Object}] = struct{}{}
	}
	return nil
}

// fileNamePredicate is the synthetic predicate AddFile/RemoveFile quads use
// to link a file's object id to the branch graph (spec §4.4 "AddFile
// produces a single quad linking the file's ObjectRef to the branch").
const fileNamePredicate = "ng:fileName"

// ApplyFile links (or, if remove, unlinks) fileID to name within graph.
func (s *Store) ApplyFile(graph string, fileID string, name string, remove bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.graphs[graph]
	if g == nil {
		if remove {
			return nil
		}
		g = make(map[triple]struct{})
		s.graphs[graph] = g
	}
	key := triple{fileID, fileNamePredicate, name}
	if remove {
		delete(g, key)
		return nil
	}
	g[key] = struct{}{}
	return nil
}

// ClearGraph discards every quad in graph.
func (s *Store) ClearGraph(graph string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs, graph)
	return nil
}

var _ quad.Sink = (*Store)(nil)
