package sparqlb

import (
	"strings"
	"testing"

	"github.com/alexander-bruun/localtagfs/internal/keyreg"
)

func TestNextVarAndNextValIncrement(t *testing.T) {
	s := New()
	if v := s.NextVar(); v != "?v0" {
		t.Fatalf("got %q want ?v0", v)
	}
	if v := s.NextVar(); v != "?v1" {
		t.Fatalf("got %q want ?v1", v)
	}
	if id := s.NextVal(); id != "_0" {
		t.Fatalf("got %q want _0", id)
	}
	if id := s.NextVal(); id != "_1" {
		t.Fatalf("got %q want _1", id)
	}
}

func TestAddValueBindsAndOrders(t *testing.T) {
	s := New()
	id1 := s.AddValue("Iron & Wine")
	id2 := s.AddValue("Rock")
	bindings := s.Bindings()
	if len(bindings) != 2 {
		t.Fatalf("got %d bindings, want 2", len(bindings))
	}
	if bindings[0].ID != id1 || bindings[0].Value != "Iron & Wine" {
		t.Errorf("binding 0 = %+v", bindings[0])
	}
	if bindings[1].ID != id2 || bindings[1].Value != "Rock" {
		t.Errorf("binding 1 = %+v", bindings[1])
	}
}

func TestServiceClass(t *testing.T) {
	cases := map[keyreg.ServiceKind]string{
		keyreg.Music:     "?o a nmm:MusicPiece",
		keyreg.Videos:    "?o a nmm:Video",
		keyreg.Playlists: "?o a nmm:Playlist",
		keyreg.Common:    "?o a nmm:MusicPiece",
	}
	for kind, want := range cases {
		if got := ServiceClass(kind); got != want {
			t.Errorf("%v: got %q want %q", kind, got, want)
		}
	}
}

func TestQueryFilterNonEmptyValueBindsDirectly(t *testing.T) {
	s := New()
	frag := s.QueryFilter("?o nmm:performer/nmm:artistName", "Queen")
	if !strings.Contains(frag, "?o nmm:performer/nmm:artistName ~_0") {
		t.Errorf("unexpected fragment %q", frag)
	}
	if len(s.Bindings()) != 1 || s.Bindings()[0].Value != "Queen" {
		t.Errorf("expected Queen bound, got %+v", s.Bindings())
	}
}

func TestQueryFilterEmptyValueMeansAnyOrUnset(t *testing.T) {
	s := New()
	frag := s.QueryFilter("?o nmm:performer/nmm:artistName", "")
	if !strings.Contains(frag, "OPTIONAL {?o nmm:performer/nmm:artistName ?v0}") {
		t.Errorf("missing OPTIONAL clause: %q", frag)
	}
	if !strings.Contains(frag, "FILTER(?v0='' || !bound(?v0))") {
		t.Errorf("missing FILTER clause: %q", frag)
	}
	if len(s.Bindings()) != 0 {
		t.Errorf("empty value should not bind anything, got %+v", s.Bindings())
	}
}

func TestMetaByURIsWithoutURIs(t *testing.T) {
	s := New()
	stmt := s.MetaByURIs(keyreg.Music, []string{"?o nmm:performer/nmm:artistName"}, nil)
	if !strings.HasPrefix(stmt, "SELECT ?v0 WHERE {") {
		t.Fatalf("got %q", stmt)
	}
	if !strings.Contains(stmt, "?o a nmm:MusicPiece") {
		t.Errorf("missing service class: %q", stmt)
	}
	if !strings.Contains(stmt, "OPTIONAL{?o nmm:performer/nmm:artistName ?v0}") {
		t.Errorf("missing field clause: %q", stmt)
	}
	if strings.Contains(stmt, "IN(") {
		t.Errorf("should not filter by uri when none given: %q", stmt)
	}
}

func TestMetaByURIsWithURIsAppendsINFilter(t *testing.T) {
	s := New()
	stmt := s.MetaByURIs(keyreg.Videos, nil, []string{"file:///a.mp4", "file:///b.mp4"})
	if !strings.Contains(stmt, "FILTER(?v0 IN(~_0,~_1))") {
		t.Errorf("unexpected IN filter: %q", stmt)
	}
	bindings := s.Bindings()
	if len(bindings) != 2 || bindings[0].Value != "file:///a.mp4" || bindings[1].Value != "file:///b.mp4" {
		t.Errorf("unexpected bindings: %+v", bindings)
	}
}

func TestSelectByURI(t *testing.T) {
	s := New()
	stmt := s.SelectByURI(keyreg.Music, "file:///song.mp3")
	if stmt != "SELECT * WHERE {?o a nmm:MusicPiece ; nie:url ~_0}" {
		t.Fatalf("got %q", stmt)
	}
	if len(s.Bindings()) != 1 || s.Bindings()[0].Value != "file:///song.mp3" {
		t.Errorf("unexpected bindings: %+v", s.Bindings())
	}
}

func TestCreateListAggregatesAndGroupsByURI(t *testing.T) {
	s := New()
	cols := []Column{
		{Predicate: "?o nie:title", Aggregate: AggNone},
		{Predicate: "?o nmm:performer/nmm:artistName", Aggregate: AggConcat},
	}
	stmt := s.CreateList(keyreg.Music, cols, "", true)
	if !strings.Contains(stmt, "GROUP BY ?v0") {
		t.Errorf("expected group by uri var: %q", stmt)
	}
	if !strings.Contains(stmt, "GROUP_CONCAT(DISTINCT CONCAT(?v2,") {
		t.Errorf("expected group_concat wrapping: %q", stmt)
	}
}

func TestCreateListAppendsRDFFilter(t *testing.T) {
	s := New()
	stmt := s.CreateList(keyreg.Music, nil, " . ?o nie:title ~_0", false)
	if !strings.Contains(stmt, "?o nie:title ~_0}") {
		t.Errorf("rdf filter not appended: %q", stmt)
	}
	if strings.Contains(stmt, "GROUP BY") {
		t.Errorf("should not group by when groupByURI is false: %q", stmt)
	}
}

func TestUpdateInlinesValuesAndEscapesURI(t *testing.T) {
	s := New()
	stmt := s.Update(keyreg.Music, "file:///it's a test.mp3", []string{"?o nie:title"}, []string{"New Title"})
	if !strings.Contains(stmt, `DELETE { ?o nie:title ?v0 .}`) {
		t.Errorf("missing delete clause: %q", stmt)
	}
	if !strings.Contains(stmt, `INSERT { ?o nie:title 'New Title' .}`) {
		t.Errorf("missing insert clause: %q", stmt)
	}
	if !strings.Contains(stmt, `nie:url 'file:///it\'s a test.mp3'`) {
		t.Errorf("uri not escaped: %q", stmt)
	}
}

func TestUpdateEscapesValueContainingQuoteAndBackslash(t *testing.T) {
	s := New()
	stmt := s.Update(keyreg.Music, "file:///test.mp3", []string{"?o nie:comment"}, []string{`it's a "path"\name`})
	if !strings.Contains(stmt, `INSERT { ?o nie:comment 'it\'s a "path"\\name' .}`) {
		t.Errorf("value not escaped: %q", stmt)
	}
}
