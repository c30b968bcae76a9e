package rdf

import "github.com/nextgraph-org/ng-repo-go/quad"

// Pattern is a triple pattern to match against the store; an empty field
// acts as a wildcard. Graph selects a single named graph, or every graph
// when empty — this is the minimal primitive the ORM layer's SPARQL-shaped
// reads and `RdfDump`/`ReadQuery` app commands (spec §6) are built on top
// of; the SPARQL subset this package parses in sparql.go (SELECT, INSERT
// DATA, DELETE DATA) evaluates its SELECT patterns through it too.
type Pattern struct {
	Graph     string
	Subject   string
	Predicate string
	Object    string
}

// Match returns every quad satisfying pattern, across one graph or, if
// pattern.Graph is empty, across every graph in the store.
func (s *Store) Match(pattern Pattern) []quad.Quad {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []quad.Quad
	for graphName, g := range s.graphs {
		if pattern.Graph != "" && pattern.Graph != graphName {
			continue
		}
		for t := range g {
			if pattern.Subject != "" && pattern.Subject != t.subject {
				continue
			}
			if pattern.Predicate != "" && pattern.Predicate != t.predicate {
				continue
			}
			if pattern.Object != "" && pattern.Object != t.object {
				continue
			}
			out = append(out, quad.Quad{Graph: graphName, Subject: t.subject, Predicate: t.predicate, Object: t.object})
		}
	}
	return out
}

// Graphs returns the names of every non-empty graph in the store.
func (s *Store) Graphs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.graphs))
	for name, g := range s.graphs {
		if len(g) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// Count returns the number of quads in graph.
func (s *Store) Count(graph string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs[graph])
}
