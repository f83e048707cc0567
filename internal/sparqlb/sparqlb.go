// Package sparqlb builds SPARQL statement text and its accompanying
// placeholder bindings for the statement shapes the adapter issues
// against the indexer: meta-by-uris, select-by-uri, list/create (plain, or
// grouped by uri), and update. A State allocates fresh "?vN" variable names and "_N" value-binding
// ids as a statement is assembled, and collects the bound literal for each
// value id so the caller can hand both the text and the bindings to the
// indexer session in one prepared-statement call.
package sparqlb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alexander-bruun/localtagfs/internal/keyreg"
)

// State is the per-statement allocator. It is not safe for concurrent use;
// callers build one statement per State value.
type State struct {
	varIdx int
	valIdx int

	order    []string
	bindings map[string]string
}

// New returns a fresh, empty builder state.
func New() *State {
	return &State{bindings: make(map[string]string)}
}

// NextVar allocates a fresh "?vN" SPARQL variable name.
func (s *State) NextVar() string {
	v := fmt.Sprintf("?v%d", s.varIdx)
	s.varIdx++
	return v
}

// NextVal allocates a fresh "_N" value-binding id without binding it yet.
func (s *State) NextVal() string {
	id := "_" + strconv.Itoa(s.valIdx)
	s.valIdx++
	return id
}

// Bind records the literal value a previously allocated value-binding id
// should resolve to. Calling Bind twice for the same id overwrites the
// earlier value.
func (s *State) Bind(id, value string) {
	if _, exists := s.bindings[id]; !exists {
		s.order = append(s.order, id)
	}
	s.bindings[id] = value
}

// AddValue allocates a new value-binding id, binds it to value, and returns
// the id — the common "allocate and bind in one step" path.
func (s *State) AddValue(value string) string {
	id := s.NextVal()
	s.Bind(id, value)
	return id
}

// Bindings returns the value-binding ids in allocation order paired with
// their literal values, ready for a prepared-statement bind call.
func (s *State) Bindings() []Binding {
	out := make([]Binding, len(s.order))
	for i, id := range s.order {
		out[i] = Binding{ID: id, Value: s.bindings[id]}
	}
	return out
}

// Binding is one value-binding id/literal pair in allocation order.
type Binding struct {
	ID    string
	Value string
}

// ServiceClass returns the "?o a <class>" triple selecting the indexer's
// resource class for the given service partition.
func ServiceClass(kind keyreg.ServiceKind) string {
	switch kind {
	case keyreg.Playlists:
		return "?o a nmm:Playlist"
	case keyreg.Videos:
		return "?o a nmm:Video"
	default:
		return "?o a nmm:MusicPiece"
	}
}

// QueryFilter builds one category-filter clause and returns it as a
// fragment for the caller to append. When value is non-empty it binds value against
// predicate directly; an empty value means "any or unset", compiled as an
// OPTIONAL triple plus a FILTER requiring the bound variable be either the
// empty string or unbound.
func (s *State) QueryFilter(predicate, value string) string {
	if value != "" {
		id := s.AddValue(value)
		return fmt.Sprintf(" . %s ~%s", predicate, id)
	}
	v := s.NextVar()
	return fmt.Sprintf(" . OPTIONAL {%s %s} . FILTER(%s='' || !bound(%s))", predicate, v, v, v)
}

// MetaByURIs builds the prepared-statement text for a metadata-by-uris
// lookup: SELECT <uri-var> <field-var>... WHERE { <service> . ?o nie:url
// <uri-var> OPTIONAL{<field> <field-var>}... [FILTER(<uri-var> IN(...))] }.
// fields holds the already-resolved predicate text for each requested key,
// in the caller's requested order; uris may be empty to mean "no IN filter".
func (s *State) MetaByURIs(kind keyreg.ServiceKind, fields []string, uris []string) string {
	var uriVar string
	var sel, where strings.Builder

	sel.WriteString("SELECT")
	where.WriteString(ServiceClass(kind))

	if len(uris) > 0 {
		uriVar = s.NextVar()
		sel.WriteString(" " + uriVar)
		where.WriteString(fmt.Sprintf(" . ?o nie:url %s", uriVar))
	}

	for _, field := range fields {
		v := s.NextVar()
		sel.WriteString(" " + v)
		where.WriteString(fmt.Sprintf(" . OPTIONAL{%s %s}", field, v))
	}

	if len(uris) > 0 {
		where.WriteString(fmt.Sprintf(" . FILTER(%s IN(", uriVar))
		for i, uri := range uris {
			id := s.AddValue(uri)
			if i > 0 {
				where.WriteString(",")
			}
			where.WriteString("~" + id)
		}
		where.WriteString("))")
	}

	return sel.String() + " WHERE {" + where.String() + "}"
}

// SelectByURI builds the prepared-statement text selecting every bound
// column of the single resource addressed by uri.
func (s *State) SelectByURI(kind keyreg.ServiceKind, uri string) string {
	id := s.AddValue(uri)
	return fmt.Sprintf("SELECT * WHERE {%s ; nie:url ~%s}", ServiceClass(kind), id)
}

// Column is one requested projection column: the predicate text reaching
// its value from ?o and the aggregate wrapper (AggNone for a plain
// OPTIONAL-bound column) applied when assembling a create/list statement.
type Column struct {
	Predicate string
	Aggregate Aggregate
}

// Aggregate names the SQL-side aggregate function wrapping a grouped
// column in a list/create statement; AggNone means no aggregation.
type Aggregate int

const (
	AggNone Aggregate = iota
	AggConcat
	AggCount
	AggSum
)

const groupConcatSeparatorGuard = "!@_GROUP_CONCAT_SEPARATOR_@!"

// wrapAggregate renders v wrapped in the SQL-side aggregate function
// matching agg. AggConcat reproduces the double-REPLACE trick that swaps a
// guard separator for "|" after GROUP_CONCAT, because the underlying store
// does not honor a custom GROUP_CONCAT separator argument.
func wrapAggregate(v string, agg Aggregate) string {
	switch agg {
	case AggConcat:
		return fmt.Sprintf(
			"REPLACE(REPLACE(GROUP_CONCAT(DISTINCT CONCAT(%s, '%s')),'%s,','|'), '%s', '')",
			v, groupConcatSeparatorGuard, groupConcatSeparatorGuard, groupConcatSeparatorGuard)
	case AggCount:
		return fmt.Sprintf("COUNT(DISTINCT %s)", v)
	case AggSum:
		return fmt.Sprintf("SUM(%s)", v)
	default:
		return v
	}
}

// CreateList builds a list/create statement, grouped by the uri column
// when groupByURI is set: the resource's uri
// column first, then each requested column in order (aggregated when the
// column calls for it), rooted at the given service class and optional rdf
// filter fragment (already-built by the filter compiler, empty for none).
func (s *State) CreateList(kind keyreg.ServiceKind, columns []Column, rdfFilter string, groupByURI bool) string {
	uriVar := s.NextVar()

	var sel, where strings.Builder
	sel.WriteString("SELECT " + uriVar)
	where.WriteString(ServiceClass(kind))
	where.WriteString(fmt.Sprintf(" . ?o nie:url %s", uriVar))

	for _, col := range columns {
		v := s.NextVar()
		sel.WriteString(" " + wrapAggregate(v, col.Aggregate))
		where.WriteString(fmt.Sprintf(" . OPTIONAL {%s %s}", col.Predicate, v))
	}

	where.WriteString(rdfFilter)

	stmt := sel.String() + " WHERE {" + where.String() + "}"
	if groupByURI {
		stmt += " GROUP BY " + uriVar
	}
	return stmt
}

// Update builds DELETE/INSERT/WHERE update statement text rewriting keys to
// values for the single resource addressed by uri. Unlike the read shapes
// above, the indexer used here has no prepared-statement support for
// updates, so literal values are inlined directly rather than bound.
func (s *State) Update(kind keyreg.ServiceKind, uri string, keys, values []string) string {
	var del, ins, where strings.Builder

	for i, key := range keys {
		v := s.NextVar()
		del.WriteString(fmt.Sprintf(" %s %s .", key, v))
		ins.WriteString(fmt.Sprintf(" %s '%s' .", key, escapeLiteral(values[i])))
		where.WriteString(fmt.Sprintf(" . OPTIONAL {%s %s}", key, v))
	}

	return fmt.Sprintf("DELETE {%s} INSERT {%s} WHERE {%s . ?o nie:url '%s'%s}",
		del.String(), ins.String(), ServiceClass(kind), escapeLiteral(uri), where.String())
}

// escapeLiteral escapes a string for inline embedding inside a SPARQL
// single-quoted literal, matching the store's own string-escape rules.
func escapeLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return r.Replace(s)
}
