package verifier

import "github.com/nextgraph-org/ng-repo-go/common/cbor"

// wireQuad/wireDelta give QuadDelta a stable CBOR shape independent of the
// exported struct's field order.
type wireQuad struct {
	G string `cbor:"1,keyasint"`
	S string `cbor:"2,keyasint"`
	P string `cbor:"3,keyasint"`
	O string `cbor:"4,keyasint"`
}

type wireDelta struct {
	Adds    []wireQuad `cbor:"1,keyasint,omitempty"`
	Removes []wireQuad `cbor:"2,keyasint,omitempty"`
}

// LastWriterWinsCodec is the default CrdtCodec: it treats a transaction
// payload as the direct canonical-CBOR encoding of the QuadDelta it
// produces, with no merge semantics beyond per-commit causal ordering
// (later commits in HEAD order simply overwrite earlier ones at the
// RDF-store layer). Real deployments plug in a richer algebra by
// implementing CrdtCodec themselves (spec DESIGN NOTES "CRDT payloads").
type LastWriterWinsCodec struct{}

func (LastWriterWinsCodec) Decode(payload []byte) (QuadDelta, error) {
	var w wireDelta
	if err := cbor.Unmarshal(payload, &w); err != nil {
		return QuadDelta{}, err
	}
	d := QuadDelta{}
	for _, q := range w.Adds {
		d.Adds = append(d.Adds, Quad{Graph: q.G, Subject: q.S, Predicate: q.P, Object: q.O})
	}
	for _, q := range w.Removes {
		d.Removes = append(d.Removes, Quad{Graph: q.G, Subject: q.S, Predicate: q.P, Object: q.O})
	}
	return d, nil
}

func (LastWriterWinsCodec) Encode(d QuadDelta) []byte {
	w := wireDelta{}
	for _, q := range d.Adds {
		w.Adds = append(w.Adds, wireQuad{G: q.Graph, S: q.Subject, P: q.Predicate, O: q.Object})
	}
	for _, q := range d.Removes {
		w.Removes = append(w.Removes, wireQuad{G: q.Graph, S: q.Subject, P: q.Predicate, O: q.Object})
	}
	return cbor.Marshal(w)
}
