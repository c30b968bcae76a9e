package orm

import (
	"testing"
	"time"

	"github.com/nextgraph-org/ng-repo-go/quad"
	"github.com/nextgraph-org/ng-repo-go/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *ShapeType {
	return &ShapeType{
		RootShape: "ex:Person",
		Schema: map[string]*Shape{
			"ex:Person": {
				IRI: "ex:Person",
				Predicates: map[string]*Predicate{
					"name": {
						IRI: "ex:name", ReadablePredicate: "name",
						MaxCardinality: 1,
						DataTypes:      []DataType{{ValType: ValString}},
					},
					"hobby": {
						IRI: "ex:hobby", ReadablePredicate: "hobby",
						MaxCardinality: -1,
						DataTypes:      []DataType{{ValType: ValIRI}},
					},
				},
			},
		},
	}
}

func strp(s string) *string { return &s }

// TestApplyBatchSetAdd grounds scenario S3: a "set"-typed add to a
// multi-valued predicate produces exactly one emitted add patch and the
// store ends up with both the old and new hobby quads.
func TestApplyBatchSetAdd(t *testing.T) {
	store := rdf.NewStore()
	require.NoError(t, store.Apply("g", quad.Delta{
		Adds: []quad.Quad{{Graph: "g", Subject: "urn:test:p4", Predicate: "ex:hobby", Object: "ex:Chess"}},
	}))

	eng := NewEngine(store)
	schema := testSchema()

	patches := []Patch{
		{Op: OpAdd, Path: "/g|urn:test:p4/hobby", ValType: ValTypeSet, Value: strp("ex:Climbing")},
	}
	emitted, err := eng.ApplyBatch(schema, "ex:Person", patches, nil)
	require.NoError(t, err)
	assert.Equal(t, patches, emitted)

	rows := store.Match(rdf.Pattern{Graph: "g", Subject: "urn:test:p4", Predicate: "ex:hobby"})
	assert.Len(t, rows, 2)
}

// TestApplyBatchRevertsOnInvalidValue grounds scenario S4: a batch whose
// second patch fails shape validation leaves the store unchanged and
// delivers a revert to the originating subscription only.
func TestApplyBatchRevertsOnInvalidValue(t *testing.T) {
	store := rdf.NewStore()
	eng := NewEngine(store)
	schema := testSchema()

	origin := eng.Subscribe(Scope{})
	ch, cancel := origin.Listen()
	defer cancel()

	other := eng.Subscribe(Scope{})
	otherCh, otherCancel := other.Listen()
	defer otherCancel()

	patches := []Patch{
		{Op: OpAdd, Path: "/g|urn:test:p4/name", Value: strp("Alice")},
		{Op: OpAdd, Path: "/g|urn:test:p4/hobby", ValType: ValTypeSet, Value: strp("not a valid IRI")},
	}
	_, err := eng.ApplyBatch(schema, "ex:Person", patches, origin)
	require.Error(t, err)

	rows := store.Match(rdf.Pattern{Graph: "g", Subject: "urn:test:p4"})
	assert.Empty(t, rows, "store must be unchanged after an aborted batch")

	select {
	case revert := <-ch:
		require.Len(t, revert, 2)
		assert.Equal(t, OpRemove, revert[len(revert)-1].Op)
	case <-time.After(time.Second):
		t.Fatal("expected a revert batch on the originating subscription")
	}

	select {
	case <-otherCh:
		t.Fatal("non-originating subscriber must observe no change (P8)")
	case <-time.After(50 * time.Millisecond):
	}
}
