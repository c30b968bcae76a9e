// Package orm implements the bidirectional sync between a tree-shaped JSON
// view and the RDF projection under a declared shape (spec §4.6): shape
// schema validation, JSON-Pointer <-> SPARQL-shaped patch translation, and
// revert-patch generation when a batch violates its shape.
package orm

import ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"

const moduleName = "orm"

var (
	// ErrUnknownShape is returned when a path references a shape IRI not
	// present in the schema.
	ErrUnknownShape = ngerrors.New(moduleName, 1, "orm: unknown shape")
	// ErrUnknownPredicate is returned when a path's readablePredicate does
	// not resolve against the subject's shape.
	ErrUnknownPredicate = ngerrors.New(moduleName, 2, "orm: unknown predicate")
	// ErrInvalidPath is returned when a JSON-Pointer path does not match
	// the grammar of spec §4.6.
	ErrInvalidPath = ngerrors.New(moduleName, 3, "orm: invalid path")
	// ErrInvalidValue is returned when a patch's value fails shape
	// validation (wrong type, not in the enumerated constants when
	// extra=false, or not a well-formed IRI for an iri-typed predicate).
	ErrInvalidValue = ngerrors.New(moduleName, 4, "orm: invalid value")
)

// ValType names the kind of value a Shape predicate's dataTypes accept.
type ValType string

const (
	ValIRI     ValType = "iri"
	ValString  ValType = "string"
	ValBoolean ValType = "boolean"
	ValShape   ValType = "shape"
)

// DataType is one admissible value kind for a predicate, optionally
// restricted to an enumerated constant set (spec §4.6 Shape.dataTypes).
type DataType struct {
	ValType  ValType
	Shape    string   // populated iff ValType == ValShape: the nested shape's IRI
	Literals []string // non-empty iff this dataType restricts to named constants
}

// Predicate describes one field of a Shape: its RDF IRI, the JSON field
// name applications address it by, cardinality bounds (-1 max =
// unbounded), and its admissible value kinds.
type Predicate struct {
	IRI               string
	ReadablePredicate string
	MinCardinality    int
	MaxCardinality    int // -1 = unbounded
	Extra             bool // true: values outside enumerated Literals are permitted
	DataTypes         []DataType
}

// Multi reports whether this predicate may hold more than one value.
func (p *Predicate) Multi() bool {
	return p.MaxCardinality < 0 || p.MaxCardinality > 1
}

// Shape lists the predicates a subject of this shape may carry.
type Shape struct {
	IRI        string
	Predicates map[string]*Predicate // keyed by ReadablePredicate
}

// ShapeType is the top-level schema an ORM subscription and patch batch are
// validated against (spec §4.6 OrmShapeType).
type ShapeType struct {
	RootShape string
	Schema    map[string]*Shape // keyed by Shape.IRI
}

// Lookup resolves a readablePredicate against the shape named shapeIRI.
func (t *ShapeType) Lookup(shapeIRI, readablePredicate string) (*Predicate, error) {
	shape, ok := t.Schema[shapeIRI]
	if !ok {
		return nil, ErrUnknownShape
	}
	pred, ok := shape.Predicates[readablePredicate]
	if !ok {
		return nil, ErrUnknownPredicate
	}
	return pred, nil
}

// ValidateValue checks value against pred's dataTypes, returning
// ErrInvalidValue if no dataType accepts it.
func ValidateValue(pred *Predicate, value string) error {
	if len(pred.DataTypes) == 0 {
		return nil
	}
	for _, dt := range pred.DataTypes {
		if dataTypeAccepts(dt, pred.Extra, value) {
			return nil
		}
	}
	return ErrInvalidValue
}

func dataTypeAccepts(dt DataType, extra bool, value string) bool {
	if len(dt.Literals) > 0 {
		for _, lit := range dt.Literals {
			if lit == value {
				return true
			}
		}
		if !extra {
			return false
		}
	}
	switch dt.ValType {
	case ValBoolean:
		return value == "true" || value == "false"
	case ValIRI, ValShape:
		return isWellFormedIRI(value)
	case ValString:
		return true
	default:
		return false
	}
}

// isWellFormedIRI applies the minimal syntactic check the spec's examples
// rely on: a non-empty scheme followed by ":" (e.g. "ex:Person",
// "urn:test:p1", "did:ng:..."). Full RFC 3987 IRI validation is out of
// scope; the shape system only needs to reject obviously-malformed values
// like bare strings ("not a valid IRI" in spec scenario S4).
func isWellFormedIRI(s string) bool {
	colon := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			colon = i
			break
		}
	}
	return colon > 0 && colon < len(s)-1
}
