package orm

import (
	"github.com/nextgraph-org/ng-repo-go/quad"
)

// Op names a patch's direction (spec §4.6 OrmPatch.op).
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// PatchValType names how an add patch's value composes with any existing
// value at path (spec §4.6 OrmPatch.valType).
type PatchValType string

const (
	ValTypeNone   PatchValType = ""       // single-valued: replace
	ValTypeSet    PatchValType = "set"    // multi-valued: union add / exact remove
	ValTypeObject PatchValType = "object" // creates a nested subject
)

// Patch is one JSON-Pointer-addressed add/remove operation (spec §4.6
// OrmPatch).
type Patch struct {
	Op      Op
	Path    string
	ValType PatchValType
	Value   *string // nil for "remove all values at path"
}

// resolvedPatch is a Patch plus its parsed path and the shape predicate it
// targets, computed once so validation and delta-building don't re-parse.
type resolvedPatch struct {
	patch *Patch
	path  *Path
	pred  *Predicate
}

// resolvePatch parses patch.Path and looks up the predicate it targets
// against rootShape (for root-level predicates) or the nested shape named
// by the root predicate's shape-valued DataType (for Child paths).
func resolvePatch(shapeType *ShapeType, rootShape string, patch *Patch) (*resolvedPatch, error) {
	path, err := ParsePath(patch.Path)
	if err != nil {
		return nil, err
	}
	if path.Predicate == "" {
		return nil, ErrInvalidPath
	}

	rootPred, err := shapeType.Lookup(rootShape, path.Predicate)
	if err != nil {
		return nil, err
	}

	if path.Child == nil {
		return &resolvedPatch{patch: patch, path: path, pred: rootPred}, nil
	}
	if path.Child.Field == "" {
		return nil, ErrInvalidPath
	}

	nestedShape := nestedShapeIRI(rootPred)
	if nestedShape == "" {
		return nil, ErrUnknownShape
	}
	fieldPred, err := shapeType.Lookup(nestedShape, path.Child.Field)
	if err != nil {
		return nil, err
	}
	return &resolvedPatch{patch: patch, path: path, pred: fieldPred}, nil
}

func nestedShapeIRI(pred *Predicate) string {
	for _, dt := range pred.DataTypes {
		if dt.ValType == ValShape {
			return dt.Shape
		}
	}
	return ""
}

// childSubject returns the nested subject a Child-bearing path addresses:
// explicit for multi-valued (graph|subject spelled out), or deterministically
// derived from the parent subject and predicate for single-valued shape
// predicates (spec §4.6: "child identity staged via @id + @graph under that
// predicate path" — here derived rather than requiring a separate staging
// patch, since the path already uniquely names the parent/predicate pair).
func (rp *resolvedPatch) childSubject() (graph, subject string) {
	c := rp.path.Child
	if c.Subject != "" {
		return c.Graph, c.Subject
	}
	return rp.path.Graph, rp.path.Subject + "#" + rp.path.Predicate
}

// subjectPredicate returns the graph, subject and predicate this patch
// targets, for either a root-level literal or a nested field.
func (rp *resolvedPatch) subjectPredicate() (graph, subject, predicate string) {
	if rp.path.Child == nil {
		return rp.path.Graph, rp.path.Subject, rp.pred.IRI
	}
	g, s := rp.childSubject()
	return g, s, rp.pred.IRI
}

// buildDelta validates rp against its shape (when adding a value) and
// returns the forward quad delta plus the inverse delta that would undo it
// (used for revert-patch generation on batch failure).
func buildDelta(rp *resolvedPatch, existing func(graph, subject, predicate string) []string) (fwd, inv quad.Delta, err error) {
	graph, subject, predicate := rp.subjectPredicate()
	prior := existing(graph, subject, predicate)

	switch rp.patch.Op {
	case OpAdd:
		if rp.patch.Value == nil {
			return fwd, inv, ErrInvalidValue
		}
		if err := ValidateValue(rp.pred, *rp.patch.Value); err != nil {
			return fwd, inv, err
		}
		if rp.patch.ValType != ValTypeSet && !rp.pred.Multi() {
			// single-valued: remove-then-add, one txn (spec §4.6).
			for _, old := range prior {
				fwd.Removes = append(fwd.Removes, quad.Quad{Graph: graph, Subject: subject, Predicate: predicate, Object: old})
				inv.Adds = append(inv.Adds, quad.Quad{Graph: graph, Subject: subject, Predicate: predicate, Object: old})
			}
		} else {
			for _, old := range prior {
				if old == *rp.patch.Value {
					return fwd, inv, nil // union add, already present: no-op
				}
			}
		}
		fwd.Adds = append(fwd.Adds, quad.Quad{Graph: graph, Subject: subject, Predicate: predicate, Object: *rp.patch.Value})
		inv.Removes = append(inv.Removes, quad.Quad{Graph: graph, Subject: subject, Predicate: predicate, Object: *rp.patch.Value})
		return fwd, inv, nil

	case OpRemove:
		if rp.patch.Value == nil {
			for _, old := range prior {
				fwd.Removes = append(fwd.Removes, quad.Quad{Graph: graph, Subject: subject, Predicate: predicate, Object: old})
				inv.Adds = append(inv.Adds, quad.Quad{Graph: graph, Subject: subject, Predicate: predicate, Object: old})
			}
			return fwd, inv, nil
		}
		fwd.Removes = append(fwd.Removes, quad.Quad{Graph: graph, Subject: subject, Predicate: predicate, Object: *rp.patch.Value})
		inv.Adds = append(inv.Adds, quad.Quad{Graph: graph, Subject: subject, Predicate: predicate, Object: *rp.patch.Value})
		return fwd, inv, nil

	default:
		return fwd, inv, ErrInvalidPath
	}
}

// revertPatch builds the OrmPatch that, applied alone, undoes patch (used
// to compose the compensating batch sent to the originating subscriber on
// validation failure, spec §4.6 step 3 / P8).
func revertPatch(rp *resolvedPatch, prior []string) Patch {
	switch rp.patch.Op {
	case OpAdd:
		return Patch{Op: OpRemove, Path: rp.patch.Path, Value: rp.patch.Value}
	case OpRemove:
		if rp.patch.Value != nil {
			return Patch{Op: OpAdd, Path: rp.patch.Path, ValType: ValTypeSet, Value: rp.patch.Value}
		}
		if len(prior) > 0 {
			v := prior[0]
			return Patch{Op: OpAdd, Path: rp.patch.Path, ValType: ValTypeSet, Value: &v}
		}
	}
	return Patch{Op: rp.patch.Op, Path: rp.patch.Path}
}
