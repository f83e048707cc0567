package adminhttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/alexander-bruun/localtagfs/internal/browse"
	"github.com/alexander-bruun/localtagfs/internal/indexer"
	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/metaops"
	"github.com/alexander-bruun/localtagfs/internal/objectid"
	"github.com/alexander-bruun/localtagfs/internal/qcache"
)

// stubAuth is a no-op Auth double: Middleware/RequireStepUp always let the
// request through, except when denyStepUp is set — exercising the one
// branch a real TOTP confirmation would also gate.
type stubAuth struct {
	denyStepUp bool
}

func (stubAuth) Routes(r chi.Router) {
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func (stubAuth) Middleware(next http.Handler) http.Handler { return next }

func (s stubAuth) RequireStepUp(next http.Handler) http.Handler {
	if s.denyStepUp {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "step-up required", http.StatusForbidden)
		})
	}
	return next
}

func newTestServer(t *testing.T, sess indexer.Session) *Server {
	t.Helper()
	return New(&Server{
		Browse:  browse.NewOrchestrator(sess, nil),
		Meta:    metaops.Deps{Session: sess},
		Auth:    stubAuth{},
		Session: sess,
	})
}

func TestHealthzAlwaysOK(t *testing.T) {
	s := newTestServer(t, indexer.NewFake())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestReadyzChecksIndexer(t *testing.T) {
	fake := indexer.NewFake()
	fake.DefaultSelectErr = nil
	s := newTestServer(t, fake)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
}

func TestMetricsReportsPlainText(t *testing.T) {
	s := newTestServer(t, indexer.NewFake())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "localtagfs_browse_requests_total") {
		t.Fatalf("got %s", rec.Body.String())
	}
}

func TestHandleBrowseReturnsEmittedTicks(t *testing.T) {
	fake := indexer.NewFake()
	fake.AddFixture(
		"SELECT ?v0 ?v1 ?v2 WHERE {?o a nmm:MusicPiece . ?o nie:url ?v0 . OPTIONAL {?o a ?v1} . OPTIONAL {?o nie:title ?v2}}",
		nil, nil,
	)
	s := newTestServer(t, fake)

	body, _ := json.Marshal(browseReq{ObjectID: objectid.Encode([]string{"music", "songs"}), Keys: []string{keyreg.KeyTitle}})
	req := httptest.NewRequest(http.MethodPost, "/browse", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
	var results []browseResultDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no rows for an empty fixture, got %+v", results)
	}
}

func TestHandleBrowseInvalidObjectIDReturnsErrorTick(t *testing.T) {
	s := newTestServer(t, indexer.NewFake())
	body, _ := json.Marshal(browseReq{ObjectID: "not-valid"})
	req := httptest.NewRequest(http.MethodPost, "/browse", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
	var results []browseResultDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 1 || results[0].Err == "" {
		t.Fatalf("got %+v", results)
	}
}

func TestHandleGetMetadataInvalidIDReturns400(t *testing.T) {
	s := newTestServer(t, indexer.NewFake())
	body, _ := json.Marshal(getMetadataReq{IDs: []string{"not-valid"}, Keys: []string{keyreg.KeyTitle}})
	req := httptest.NewRequest(http.MethodPost, "/metadata/get", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
}

func TestHandleSetMetadataUnsupportedKeyReturns400(t *testing.T) {
	s := newTestServer(t, indexer.NewFake())
	id := objectid.Encode([]string{"music", "songs", "/a.mp3"})
	body, _ := json.Marshal(setMetadataReq{
		ObjectID: id,
		Values:   map[string]qcache.Value{keyreg.KeyArtist: {Type: keyreg.TString, String: "X"}},
	})
	req := httptest.NewRequest(http.MethodPatch, "/metadata/set", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
}

func TestHandleDestroyRejectsUnpinnedCategory(t *testing.T) {
	s := newTestServer(t, indexer.NewFake())
	id := objectid.Encode([]string{"music", "songs"})
	body, _ := json.Marshal(destroyReq{ObjectID: id})
	req := httptest.NewRequest(http.MethodPost, "/destroy", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
}

func TestHandleDestroyDeniedWithoutStepUp(t *testing.T) {
	s := New(&Server{
		Browse: browse.NewOrchestrator(indexer.NewFake(), nil),
		Meta:   metaops.Deps{Session: indexer.NewFake()},
		Auth:   stubAuth{denyStepUp: true},
	})
	id := objectid.Encode([]string{"music", "songs", "/a.mp3"})
	body, _ := json.Marshal(destroyReq{ObjectID: id})
	req := httptest.NewRequest(http.MethodPost, "/destroy", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected step-up to block destroy, got %d", rec.Code)
	}
}
