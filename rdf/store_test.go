package rdf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextgraph-org/ng-repo-go/quad"
)

func TestApplyAndMatchPerson(t *testing.T) {
	require := require.New(t)
	s := NewStore()

	graph := "did:ng:o:repo1:v:branch1"
	require.NoError(s.Apply(graph, quad.Delta{
		Adds: []quad.Quad{{Subject: "urn:test:p1", Predicate: "rdf:type", Object: "ex:Person"}},
	}))

	rows := s.Match(Pattern{Graph: graph, Predicate: "rdf:type", Object: "ex:Person"})
	require.Len(rows, 1)
	require.Equal("urn:test:p1", rows[0].Subject)
}

func TestApplyIsOrderIndependent(t *testing.T) {
	require := require.New(t)
	graph := "g"

	delta1 := quad.Delta{Adds: []quad.Quad{{Subject: "s1", Predicate: "p", Object: "o1"}}}
	delta2 := quad.Delta{Adds: []quad.Quad{{Subject: "s2", Predicate: "p", Object: "o2"}}}

	a := NewStore()
	require.NoError(a.Apply(graph, delta1))
	require.NoError(a.Apply(graph, delta2))

	b := NewStore()
	require.NoError(b.Apply(graph, delta2))
	require.NoError(b.Apply(graph, delta1))

	require.ElementsMatch(a.Match(Pattern{Graph: graph}), b.Match(Pattern{Graph: graph}))
}

func TestApplyRemove(t *testing.T) {
	require := require.New(t)
	s := NewStore()
	graph := "g"

	require.NoError(s.Apply(graph, quad.Delta{Adds: []quad.Quad{
		{Subject: "s", Predicate: "p", Object: "reading"},
		{Subject: "s", Predicate: "p", Object: "swimming"},
	}}))
	require.Equal(2, s.Count(graph))

	require.NoError(s.Apply(graph, quad.Delta{Removes: []quad.Quad{{Subject: "s", Predicate: "p", Object: "reading"}}}))
	require.Equal(1, s.Count(graph))
}

func TestApplyFileLinkAndUnlink(t *testing.T) {
	require := require.New(t)
	s := NewStore()
	graph := "g"

	require.NoError(s.ApplyFile(graph, "file1", "photo.png", false))
	require.Equal(1, s.Count(graph))

	require.NoError(s.ApplyFile(graph, "file1", "photo.png", true))
	require.Equal(0, s.Count(graph))
}
