// Package adminhttp is the adapter's debug/admin HTTP surface: manual
// trigger endpoints for browse/get_metadata/set_metadata/destroy_object,
// liveness/readiness/metrics probes, and a WebSocket endpoint for the
// container-changed/metadata-changed signal feed, routed with
// go-chi/chi/v5 exactly as the teacher routes its own services.
package adminhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alexander-bruun/localtagfs/internal/browse"
	"github.com/alexander-bruun/localtagfs/internal/filterc"
	"github.com/alexander-bruun/localtagfs/internal/host"
	"github.com/alexander-bruun/localtagfs/internal/indexer"
	"github.com/alexander-bruun/localtagfs/internal/metaops"
	"github.com/alexander-bruun/localtagfs/internal/notify"
	"github.com/alexander-bruun/localtagfs/internal/qcache"
)

// Auth is the subset of internal/adminauth.Service this package depends
// on, kept as an interface so the HTTP layer doesn't need a concrete
// Redis-backed auth implementation in its own tests.
type Auth interface {
	Routes(r chi.Router)
	Middleware(next http.Handler) http.Handler
	RequireStepUp(next http.Handler) http.Handler
}

// Server wires the browse/metaops orchestrators, the admin auth guard,
// and the notify hub into one chi.Router.
type Server struct {
	Browse  *browse.Orchestrator
	Meta    metaops.Deps
	Auth    Auth
	Hub     *notify.Hub
	Session indexer.Session

	router      chi.Router
	browseTotal atomic.Int64
	errorTotal  atomic.Int64
}

// New builds the router. Readiness pings the indexer session with a
// trivial SELECT; a nil Session always reports ready (used by tests that
// don't exercise readyz).
func New(s *Server) *Server {
	s.router = s.routes()
	return s
}

// ServeHTTP makes Server usable directly as an http.Handler, e.g. with
// http.Server{Handler: srv}.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.slogMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", s.metrics)

	if s.Auth != nil {
		r.Route("/auth", s.Auth.Routes)
	}

	r.Group(func(r chi.Router) {
		if s.Auth != nil {
			r.Use(s.Auth.Middleware)
		}
		r.Post("/browse", s.handleBrowse)
		r.Post("/metadata/get", s.handleGetMetadata)
		r.Patch("/metadata/set", s.handleSetMetadata)
		if s.Hub != nil {
			r.Get("/ws", s.Hub.ServeWS)
		}

		r.Group(func(r chi.Router) {
			if s.Auth != nil {
				r.Use(s.Auth.RequireStepUp)
			}
			r.Post("/destroy", s.handleDestroy)
		})
	})

	return r
}

func (s *Server) slogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
		if ww.Status() >= 500 {
			s.errorTotal.Add(1)
		}
	})
}

// healthz is the liveness endpoint — always 200.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz checks the indexer session is reachable.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.Session == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	if _, err := s.Session.RunSelect(r.Context(), "ASK { ?s ?p ?o }", nil); err != nil {
		http.Error(w, "indexer: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// metrics reports a minimal set of process counters as plain text,
// matching the other endpoints' dependency-free shape — no metrics
// library is in the teacher's go.mod, so this stays hand-rolled rather
// than reaching for one outside the pack.
func (s *Server) metrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(
		"localtagfs_browse_requests_total " + itoa(s.browseTotal.Load()) + "\n" +
			"localtagfs_http_errors_total " + itoa(s.errorTotal.Load()) + "\n",
	))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

type browseReq struct {
	ObjectID     string        `json:"object_id"`
	Recursive    bool          `json:"recursive"`
	Filter       *filterc.Node `json:"filter"`
	SortCriteria string        `json:"sort_criteria"`
	Keys         []string      `json:"keys"`
	Offset       int           `json:"offset"`
	Count        int           `json:"count"`
}

type browseResultDTO struct {
	Index     int             `json:"index"`
	Remaining int             `json:"remaining"`
	ObjectID  string          `json:"object_id,omitempty"`
	Metadata  qcache.Metadata `json:"metadata,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// handleBrowse drives one synchronous browse call to completion and
// returns every emitted tick as a JSON array — the admin surface has no
// persistent client connection to stream ticks to, unlike the host's own
// plugin ABI.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	var req browseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	count := req.Count
	if count == 0 {
		count = browse.All
	}
	s.browseTotal.Add(1)

	var mu sync.Mutex
	var results []browseResultDTO

	id := s.Browse.Browse(r.Context(), req.ObjectID, req.Recursive, req.Filter, req.SortCriteria, req.Keys, req.Offset, count,
		func(res host.BrowseResult) {
			mu.Lock()
			defer mu.Unlock()
			dto := browseResultDTO{Index: res.Index, Remaining: res.Remaining, ObjectID: res.ObjectID, Metadata: res.Metadata}
			if res.Err != nil {
				dto.Err = res.Err.Error()
			}
			results = append(results, dto)
		})

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	_ = s.Browse.Wait(ctx, id)

	mu.Lock()
	defer mu.Unlock()
	writeJSON(w, http.StatusOK, results)
}

type getMetadataReq struct {
	IDs  []string `json:"ids"`
	Keys []string `json:"keys"`
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	var req getMetadataReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	done := make(chan struct{})
	var result map[string]qcache.Metadata
	var opErr error
	s.Meta.GetMetadata(r.Context(), req.IDs, req.Keys, func(m map[string]qcache.Metadata, err error) {
		result, opErr = m, err
		close(done)
	})
	<-done
	if opErr != nil {
		writeErr(w, http.StatusBadRequest, opErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type setMetadataReq struct {
	ObjectID string                 `json:"object_id"`
	Values   map[string]qcache.Value `json:"values"`
}

func (s *Server) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	var req setMetadataReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	done := make(chan struct{})
	var failed []string
	var opErr error
	s.Meta.SetMetadata(r.Context(), req.ObjectID, req.Values, func(f []string, err error) {
		failed, opErr = f, err
		close(done)
	})
	<-done
	if opErr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"failed_keys": failed, "error": opErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failed_keys": failed})
}

type destroyReq struct {
	ObjectID string `json:"object_id"`
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	var req destroyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	done := make(chan struct{})
	var opErr error
	s.Meta.Destroy(r.Context(), req.ObjectID, func(err error) {
		opErr = err
		close(done)
	})
	<-done
	if opErr != nil {
		writeErr(w, http.StatusBadRequest, opErr.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
