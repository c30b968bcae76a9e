package orm

import (
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// Path is a parsed JSON-Pointer path addressing one location in the ORM's
// tree view (spec §4.6 "Path grammar"): a root graph/subject, the
// readablePredicate reached from it, and — for shape-valued predicates —
// an optional nested child reference and field.
type Path struct {
	Graph     string
	Subject   string
	Predicate string // "" at the root itself (graph/subject only)

	// Child is non-nil when Predicate names a shape-valued predicate; it
	// addresses the nested subject (explicit for multi-valued predicates,
	// derived deterministically for single-valued ones — see
	// resolvedPatch.childSubject).
	Child *ChildRef
}

// ChildRef is the nested subject a shape-valued predicate points at, plus
// the field of the nested shape being addressed.
type ChildRef struct {
	Graph   string
	Subject string
	Field   string
}

// ParsePath decodes a JSON-Pointer path per spec §4.6. The root segment
// packs the graph and subject IRIs joined by "|" (as in scenario S3's
// `/g|urn:test:p4/hobby`); subsequent segments name the readablePredicate
// and, for multi-valued shape predicates, a second "graph|subject" segment
// identifying the nested subject followed by its field.
func ParsePath(path string) (*Path, error) {
	ptr, err := jsonpointer.New(path)
	if err != nil {
		return nil, ErrInvalidPath
	}
	tokens := ptr.DecodedTokens()
	if len(tokens) == 0 {
		return nil, ErrInvalidPath
	}

	graph, subject, err := splitGraphSubject(tokens[0])
	if err != nil {
		return nil, err
	}
	p := &Path{Graph: graph, Subject: subject}

	switch len(tokens) {
	case 1:
		return p, nil
	case 2:
		// literal predicate, or single-valued shape predicate whose child
		// identity is derived rather than spelled out in the path.
		p.Predicate = tokens[1]
		return p, nil
	case 3:
		// single-valued shape predicate with an explicit nested field.
		p.Predicate = tokens[1]
		p.Child = &ChildRef{Field: tokens[2]}
		return p, nil
	case 4:
		// multi-valued shape predicate: explicit "graph|subject" identity.
		p.Predicate = tokens[1]
		childGraph, childSubject, err := splitGraphSubject(tokens[2])
		if err != nil {
			return nil, err
		}
		p.Child = &ChildRef{Graph: childGraph, Subject: childSubject, Field: tokens[3]}
		return p, nil
	default:
		return nil, ErrInvalidPath
	}
}

func splitGraphSubject(seg string) (graph, subject string, err error) {
	i := strings.IndexByte(seg, '|')
	if i < 0 {
		return "", "", ErrInvalidPath
	}
	return seg[:i], seg[i+1:], nil
}
