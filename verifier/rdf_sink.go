package verifier

import "github.com/nextgraph-org/ng-repo-go/quad"

// Quad, QuadDelta, QuadSink and CrdtCodec alias the shared quad package so
// callers within this package (and its tests) can spell them without the
// qualifier, while rdf.Store satisfies QuadSink/CrdtCodec structurally
// without either package importing the other (see DESIGN.md "verifier").
type (
	Quad      = quad.Quad
	QuadDelta = quad.Delta
	QuadSink  = quad.Sink
	CrdtCodec = quad.Codec
)
