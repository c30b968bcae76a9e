package rdf

import (
	"strings"

	ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"
	"github.com/nextgraph-org/ng-repo-go/quad"
)

// This file implements the minimal query surface `ReadQuery`/`WriteQuery`
// need (spec §6): SELECT over a graph pattern, and INSERT DATA/DELETE DATA.
// It is not a general SPARQL grammar — no OPTIONAL, FILTER, property paths,
// or prefix declarations — since nothing else in this corpus carries a
// SPARQL library (see DESIGN.md "rdf"); terms are matched as opaque strings,
// including prefixed names like `ex:Person`, exactly as the store already
// stores them.

const moduleName = "rdf"

var errMalformedQuery = ngerrors.New(moduleName, 1, "rdf: malformed query")

// Binding is one SELECT result row, keyed by variable name without its
// leading '?'.
type Binding map[string]string

type term struct {
	isVar bool
	value string
}

func parseTerm(tok string) term {
	switch {
	case strings.HasPrefix(tok, "?"):
		return term{isVar: true, value: strings.TrimPrefix(tok, "?")}
	case strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">"):
		return term{value: strings.TrimSuffix(strings.TrimPrefix(tok, "<"), ">")}
	default:
		return term{value: tok}
	}
}

type triplePattern struct {
	subject, predicate, object term
}

func tokenize(q string) []string {
	q = strings.ReplaceAll(q, "{", " { ")
	q = strings.ReplaceAll(q, "}", " } ")
	q = strings.ReplaceAll(q, ".", " . ")
	return strings.Fields(q)
}

// parseTriples reads triplePatterns from toks[pos:] until a bare "}",
// tolerating (and discarding) "." separators, and returns the position just
// past the closing "}".
func parseTriples(toks []string, pos int) ([]triplePattern, int, error) {
	var triples []triplePattern
	for pos < len(toks) && toks[pos] != "}" {
		if toks[pos] == "." {
			pos++
			continue
		}
		if pos+2 >= len(toks) {
			return nil, 0, errMalformedQuery
		}
		triples = append(triples, triplePattern{
			subject:   parseTerm(toks[pos]),
			predicate: parseTerm(toks[pos+1]),
			object:    parseTerm(toks[pos+2]),
		})
		pos += 3
	}
	if pos >= len(toks) || toks[pos] != "}" {
		return nil, 0, errMalformedQuery
	}
	return triples, pos + 1, nil
}

// parseGroupGraphPattern parses "{ [GRAPH <term> ] <triples> }" starting at
// toks[pos] (which must be "{"), returning the graph clause's term (hasGraph
// false if there was none — a ground IRI names an explicit graph, a `?var`
// names one to bind per row), the triples, and the position just past the
// group.
func parseGroupGraphPattern(toks []string, pos int) (graph term, hasGraph bool, triples []triplePattern, next int, err error) {
	if pos >= len(toks) || toks[pos] != "{" {
		return term{}, false, nil, 0, errMalformedQuery
	}
	pos++

	if pos < len(toks) && strings.EqualFold(toks[pos], "GRAPH") {
		if pos+1 >= len(toks) || pos+2 >= len(toks) || toks[pos+2] != "{" {
			return term{}, false, nil, 0, errMalformedQuery
		}
		g := parseTerm(toks[pos+1])
		pos += 3 // "GRAPH" <term> "{"

		triples, pos, err = parseTriples(toks, pos) // consumes through the inner "}"
		if err != nil {
			return term{}, false, nil, 0, err
		}
		if pos >= len(toks) || toks[pos] != "}" {
			return term{}, false, nil, 0, errMalformedQuery
		}
		return g, true, triples, pos + 1, nil // consume the outer "}"
	}

	triples, next, err = parseTriples(toks, pos)
	if err != nil {
		return term{}, false, nil, 0, err
	}
	return term{}, false, triples, next, nil
}

func resolveTerm(t term, b Binding) string {
	if !t.isVar {
		return t.value
	}
	return b[t.value] // "" (wildcard) if unbound
}

func cloneBinding(b Binding) Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Select executes a `SELECT <vars|*> WHERE { [GRAPH ?g] { triple ( . triple )* } }`
// query against s, returning the bound variable names (in query order, or
// every variable referenced in the pattern for `SELECT *`) and one Binding
// per matching row (spec §6 ReadQuery, S2).
func Select(s *Store, query string) ([]string, []Binding, error) {
	toks := tokenize(query)
	if len(toks) < 2 || !strings.EqualFold(toks[0], "SELECT") {
		return nil, nil, errMalformedQuery
	}

	pos := 1
	var vars []string
	star := toks[pos] == "*"
	if star {
		pos++
	} else {
		for pos < len(toks) && strings.HasPrefix(toks[pos], "?") {
			vars = append(vars, strings.TrimPrefix(toks[pos], "?"))
			pos++
		}
	}
	if pos >= len(toks) || !strings.EqualFold(toks[pos], "WHERE") {
		return nil, nil, errMalformedQuery
	}
	pos++

	graph, hasGraph, triples, _, err := parseGroupGraphPattern(toks, pos)
	if err != nil {
		return nil, nil, err
	}
	graphVar := ""
	if hasGraph && graph.isVar {
		graphVar = graph.value
	}

	bindings := []Binding{{}}
	for _, tr := range triples {
		var next []Binding
		for _, b := range bindings {
			pat := Pattern{
				Subject:   resolveTerm(tr.subject, b),
				Predicate: resolveTerm(tr.predicate, b),
				Object:    resolveTerm(tr.object, b),
			}
			switch {
			case graphVar != "":
				pat.Graph = b[graphVar]
			case hasGraph:
				pat.Graph = graph.value
			}
			for _, q := range s.Match(pat) {
				nb := cloneBinding(b)
				if tr.subject.isVar {
					nb[tr.subject.value] = q.Subject
				}
				if tr.predicate.isVar {
					nb[tr.predicate.value] = q.Predicate
				}
				if tr.object.isVar {
					nb[tr.object.value] = q.Object
				}
				if graphVar != "" {
					nb[graphVar] = q.Graph
				}
				next = append(next, nb)
			}
		}
		bindings = next
		if len(bindings) == 0 {
			break
		}
	}

	if star {
		seen := make(map[string]bool)
		for _, tr := range triples {
			for _, t := range []term{tr.subject, tr.predicate, tr.object} {
				if t.isVar && !seen[t.value] {
					seen[t.value] = true
					vars = append(vars, t.value)
				}
			}
		}
		if graphVar != "" && !seen[graphVar] {
			vars = append(vars, graphVar)
		}
	}

	return vars, bindings, nil
}

// ParseUpdate parses an `INSERT DATA { ... }` and/or `DELETE DATA { ... }`
// update (spec §6 WriteQuery), resolving any triple whose group has no
// `GRAPH` clause against defaultGraph. It does not apply the delta — callers
// route it through the verifier as a transaction commit (spec §4.4).
func ParseUpdate(query string, defaultGraph string) (quad.Delta, error) {
	toks := tokenize(query)
	var delta quad.Delta

	pos := 0
	for pos < len(toks) {
		switch {
		case strings.EqualFold(toks[pos], "INSERT") && pos+1 < len(toks) && strings.EqualFold(toks[pos+1], "DATA"):
			quads, next, err := parseDataBlock(toks, pos+2, defaultGraph)
			if err != nil {
				return quad.Delta{}, err
			}
			delta.Adds = append(delta.Adds, quads...)
			pos = next
		case strings.EqualFold(toks[pos], "DELETE") && pos+1 < len(toks) && strings.EqualFold(toks[pos+1], "DATA"):
			quads, next, err := parseDataBlock(toks, pos+2, defaultGraph)
			if err != nil {
				return quad.Delta{}, err
			}
			delta.Removes = append(delta.Removes, quads...)
			pos = next
		default:
			return quad.Delta{}, errMalformedQuery
		}
	}
	if len(delta.Adds) == 0 && len(delta.Removes) == 0 {
		return quad.Delta{}, errMalformedQuery
	}
	return delta, nil
}

func parseDataBlock(toks []string, pos int, defaultGraph string) ([]quad.Quad, int, error) {
	g, hasGraph, triples, next, err := parseGroupGraphPattern(toks, pos)
	if err != nil {
		return nil, 0, err
	}
	if hasGraph && g.isVar {
		return nil, 0, errMalformedQuery // DATA blocks need a ground graph name, not a variable
	}
	graph := defaultGraph
	if hasGraph {
		graph = g.value
	}
	quads := make([]quad.Quad, 0, len(triples))
	for _, tr := range triples {
		if tr.subject.isVar || tr.predicate.isVar || tr.object.isVar {
			return nil, 0, errMalformedQuery // DATA blocks carry ground terms only
		}
		quads = append(quads, quad.Quad{
			Graph:     graph,
			Subject:   tr.subject.value,
			Predicate: tr.predicate.value,
			Object:    tr.object.value,
		})
	}
	return quads, next, nil
}
