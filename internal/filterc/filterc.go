// Package filterc compiles host filter trees into a SPARQL FILTER fragment
// plus the value bindings the fragment references. A tree's leaves carry a
// host metadata key, a comparison, and a string value; internal nodes
// combine child fragments with and/or/not.
package filterc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/sparqlb"
)

// Kind distinguishes leaf comparisons from internal composition nodes.
type Kind int

const (
	Eq Kind = iota
	Lt
	Gt
	Approx
	Exists
	And
	Or
	Not
)

// Node is one node of a filter tree. Leaves (Eq, Lt, Gt, Approx, Exists) set
// Key and, except for Exists, Value. Internal nodes (And, Or, Not) set
// Children and leave Key/Value empty.
type Node struct {
	Kind     Kind
	Key      string
	Value    string
	Children []*Node
}

// ErrUnsupportedFilter is returned for a filter tree this compiler cannot
// express, most notably an Exists leaf, which has no SPARQL equivalent in
// the supported statement shapes.
var ErrUnsupportedFilter = errors.New("filterc: unsupported filter")

// ErrUnknownKey is returned when a leaf names a host key the registry does
// not recognise for the given service.
var ErrUnknownKey = errors.New("filterc: unknown key")

// Compile renders node into a SPARQL fragment beginning with " . FILTER(...)"
// or " . OPTIONAL {...}" clauses, allocating variables and value bindings
// against state. The returned fragment is meant to be appended directly to
// a statement's WHERE clause body.
func Compile(node *Node, svc keyreg.ServiceKind, state *sparqlb.State) (string, error) {
	if node == nil {
		return "", nil
	}
	switch node.Kind {
	case Eq, Lt, Gt, Approx:
		return compileLeaf(node, svc, state)
	case Exists:
		return "", fmt.Errorf("%w: exists leaf for key %q", ErrUnsupportedFilter, node.Key)
	case And:
		return compileAnd(node, svc, state)
	case Or:
		return compileOr(node, svc, state)
	case Not:
		return compileNot(node, svc, state)
	default:
		return "", fmt.Errorf("%w: unknown node kind %d", ErrUnsupportedFilter, node.Kind)
	}
}

func compileLeaf(node *Node, svc keyreg.ServiceKind, state *sparqlb.State) (string, error) {
	tk, ok := keyreg.LookupTracker(node.Key, svc)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, node.Key)
	}
	value, err := coerceValue(node.Key, tk, node.Value)
	if err != nil {
		return "", err
	}

	if node.Kind == Eq && value == "" {
		return state.QueryFilter(tk.PredicateText, ""), nil
	}

	v := state.NextVar()
	id := state.AddValue(value)
	op, err := comparisonOp(node.Kind, tk.ValueType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(" . OPTIONAL {%s %s} . FILTER(%s %s ~%s)", tk.PredicateText, v, v, op, id), nil
}

func comparisonOp(kind Kind, vt keyreg.ValueType) (string, error) {
	switch kind {
	case Eq:
		return "=", nil
	case Lt:
		return "<", nil
	case Gt:
		return ">", nil
	case Approx:
		if vt == keyreg.TString || vt == keyreg.TDate {
			return "CONTAINS", nil
		}
		return "", fmt.Errorf("%w: approx is only meaningful for string/date values", ErrUnsupportedFilter)
	default:
		return "", fmt.Errorf("%w: not a leaf comparison", ErrUnsupportedFilter)
	}
}

// coerceValue reshapes a leaf's raw string value to match what the indexer
// expects for the resolved predicate: a file:// uri is converted to a plain
// filesystem path for the uri predicate (the indexer stores paths, not
// uris), and epoch-second values for date-typed predicates are converted
// to ISO-8601.
func coerceValue(key string, tk keyreg.TrackerKey, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if mk, ok := keyreg.LookupMeta(key); ok && mk.Special == keyreg.SpecialURI {
		if u, err := url.Parse(value); err == nil && u.Scheme == "file" {
			return u.Path, nil
		}
		return value, nil
	}
	if tk.ValueType == keyreg.TDate {
		return epochToISO8601(value)
	}
	return value, nil
}

func epochToISO8601(epoch string) (string, error) {
	var secs int64
	if _, err := fmt.Sscanf(epoch, "%d", &secs); err != nil {
		return "", fmt.Errorf("filterc: invalid epoch value %q: %w", epoch, err)
	}
	return time.Unix(secs, 0).UTC().Format(time.RFC3339), nil
}

func compileAnd(node *Node, svc keyreg.ServiceKind, state *sparqlb.State) (string, error) {
	var b strings.Builder
	for _, child := range node.Children {
		frag, err := Compile(child, svc, state)
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}

// compileOr has no single clean SPARQL rendering for arbitrary nested
// fragments, so it wraps each child's compiled fragment in its own group
// graph pattern and joins them with UNION.
func compileOr(node *Node, svc keyreg.ServiceKind, state *sparqlb.State) (string, error) {
	if len(node.Children) == 0 {
		return "", nil
	}
	branches := make([]string, 0, len(node.Children))
	for _, child := range node.Children {
		frag, err := Compile(child, svc, state)
		if err != nil {
			return "", err
		}
		branches = append(branches, "{"+strings.TrimPrefix(frag, " . ")+"}")
	}
	return " . " + strings.Join(branches, " UNION "), nil
}

// compileNot wraps its single child in FILTER NOT EXISTS when the child
// compiles to a graph-pattern fragment; a bare Exists child is rejected
// upstream by Compile before reaching here.
func compileNot(node *Node, svc keyreg.ServiceKind, state *sparqlb.State) (string, error) {
	if len(node.Children) != 1 {
		return "", fmt.Errorf("%w: not requires exactly one child", ErrUnsupportedFilter)
	}
	frag, err := Compile(node.Children[0], svc, state)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(" . FILTER NOT EXISTS {%s}", strings.TrimPrefix(frag, " . ")), nil
}
