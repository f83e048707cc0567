// Package indexer defines the adapter's boundary with the triple-store
// query engine: an opaque session capable of running a prepared SELECT
// with value bindings, or an UPDATE statement with its values already
// inlined. The concrete transport (the real indexer client) is an
// external collaborator and is not implemented here — only the interface
// the rest of the adapter programs against, plus an in-memory fake used
// by every other package's tests.
package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexander-bruun/localtagfs/internal/sparqlb"
)

// Session is the indexer client contract. A real implementation wraps a
// persistent connection to the triple-store; callers must treat Session
// values as safe for sequential use from the host's single-threaded event
// loop only.
type Session interface {
	// RunSelect executes stmt (produced by internal/sparqlb) with the
	// given value bindings and returns the result rows, one []string per
	// matched solution, in column order.
	RunSelect(ctx context.Context, stmt string, bindings []sparqlb.Binding) ([][]string, error)

	// RunUpdate executes an already-fully-inlined DELETE/INSERT/WHERE
	// statement. The indexer has no prepared-statement support for
	// updates, so stmt carries its literal values pre-escaped.
	RunUpdate(ctx context.Context, stmt string) error
}

// ErrTransport wraps any failure reported by a Session implementation;
// callers surface it to the host rather than retrying, per the adapter's
// error-handling policy (the indexer client owns its own retry/backoff).
var ErrTransport = fmt.Errorf("indexer: transport error")

// Row is one result row: one string cell per selected column, in the
// order the statement's SELECT clause named them.
type Row = []string

// Fixture is one canned row set a Fake returns for a given statement.
// Matching is by exact statement-text equality, which is sufficient for
// deterministic unit tests since sparqlb always emits the same text for
// the same inputs.
type Fixture struct {
	Stmt string
	Rows [][]string
	Err  error
}

// Fake is an in-memory Session used by every other package's tests. It
// returns canned rows keyed by exact statement text, and records every
// call it receives so tests can assert on what was issued.
type Fake struct {
	mu sync.Mutex

	fixtures map[string]Fixture
	Selects  []SelectCall
	Updates  []UpdateCall

	DefaultSelectErr error
}

// SelectCall records one RunSelect invocation.
type SelectCall struct {
	Stmt     string
	Bindings []sparqlb.Binding
}

// UpdateCall records one RunUpdate invocation.
type UpdateCall struct {
	Stmt string
}

// NewFake returns an empty fake session.
func NewFake() *Fake {
	return &Fake{fixtures: make(map[string]Fixture)}
}

// AddFixture registers the rows (or error) to return for an exact
// statement match.
func (f *Fake) AddFixture(stmt string, rows [][]string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures[stmt] = Fixture{Stmt: stmt, Rows: rows, Err: err}
}

func (f *Fake) RunSelect(_ context.Context, stmt string, bindings []sparqlb.Binding) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Selects = append(f.Selects, SelectCall{Stmt: stmt, Bindings: bindings})
	if fx, ok := f.fixtures[stmt]; ok {
		return fx.Rows, fx.Err
	}
	return nil, f.DefaultSelectErr
}

func (f *Fake) RunUpdate(_ context.Context, stmt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates = append(f.Updates, UpdateCall{Stmt: stmt})
	if fx, ok := f.fixtures[stmt]; ok {
		return fx.Err
	}
	return nil
}
