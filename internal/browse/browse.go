// Package browse implements the browse/cancel_browse orchestrator of
// spec.md §4.7: classifying an object-id, dispatching to the matching
// synthetic-tree listing (flat songs/videos/playlists, grouped
// albums/artists/genres, or a playlist's own parsed entries), and emitting
// the ordered, paginated result one tick at a time through the host's
// callback with soft cancellation.
package browse

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alexander-bruun/localtagfs/internal/filterc"
	"github.com/alexander-bruun/localtagfs/internal/host"
	"github.com/alexander-bruun/localtagfs/internal/indexer"
	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/objectid"
	"github.com/alexander-bruun/localtagfs/internal/planner"
	"github.com/alexander-bruun/localtagfs/internal/plsparse"
	"github.com/alexander-bruun/localtagfs/internal/qcache"
	"github.com/alexander-bruun/localtagfs/internal/resultcache"
	"github.com/alexander-bruun/localtagfs/internal/sparqlb"
)

// All is the sentinel item_count meaning "every remaining entry", matching
// the host's ALL constant; callers translate it to math.MaxInt internally.
const All = -1

// pin is one equality constraint scoping a listing to the branch named by
// the browsed object-id (mirrors internal/metaops' own pin type; kept
// separate since the two orchestrators' aggregate-vs-listing needs differ
// enough that sharing it would couple packages that should stay decoupled).
type pin struct {
	Key   string
	Value string
}

// child is one entry a listing builder produces: the full absolute segment
// path of its object-id, and its projected metadata.
type child struct {
	segments []string
	meta     qcache.Metadata
}

// request tracks one in-flight browse's soft-cancellation flag.
type request struct {
	cancelled atomic.Bool
	done      chan struct{}
}

// Orchestrator implements browse/cancel_browse against an indexer session.
// Cache is optional (nil disables it) and, when set, short-circuits the
// scalar childcount/duration-sum aggregate queries issued while listing a
// container's children.
type Orchestrator struct {
	Session indexer.Session
	Prober  qcache.AlbumArtProber
	Cache   *resultcache.Cache

	mu      sync.Mutex
	pending map[host.BrowseID]*request
	nextID  atomic.Uint64
	dedupe  singleflight.Group
}

// NewOrchestrator returns an Orchestrator with no in-flight requests.
func NewOrchestrator(session indexer.Session, prober qcache.AlbumArtProber) *Orchestrator {
	return &Orchestrator{Session: session, Prober: prober, pending: make(map[host.BrowseID]*request)}
}

// Browse implements the 7-step procedure of §4.7. keys == nil substitutes
// the host's "all known keys" sentinel; count == All substitutes max int.
// Emission is one tick per loop iteration on a dedicated goroutine,
// yielding cooperatively between ticks and aborting early once cancelled.
func (o *Orchestrator) Browse(ctx context.Context, objectID string, recursive bool, filterNode *filterc.Node, sortCriteria string, keys []string, offset, count int, cb host.BrowseCallback) host.BrowseID {
	segs, err := objectid.Decode(objectID)
	if err != nil {
		cb(host.BrowseResult{Err: fmt.Errorf("%w: %v", host.ErrInvalidObjectID, err)})
		return host.InvalidBrowseID
	}
	cat, err := objectid.Classify(segs)
	if err != nil {
		cb(host.BrowseResult{Err: fmt.Errorf("%w: %v", host.ErrInvalidObjectID, err)})
		return host.InvalidBrowseID
	}

	if keys == nil {
		keys = keyreg.AllKeys()
	}
	if count == All {
		count = math.MaxInt
	}

	req := &request{done: make(chan struct{})}
	id := host.BrowseID(o.nextID.Add(1))
	o.mu.Lock()
	o.pending[id] = req
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.pending, id)
			o.mu.Unlock()
			close(req.done)
		}()

		items, err := o.resolveChildren(ctx, cat, segs, recursive, filterNode, sortCriteria, keys, offset, count)
		if err != nil {
			cb(host.BrowseResult{Err: err})
			return
		}

		for i, it := range items {
			if req.cancelled.Load() {
				return
			}
			cb(host.BrowseResult{
				Index:     i,
				Remaining: len(items) - 1 - i,
				ObjectID:  objectid.Encode(it.segments),
				Metadata:  it.meta,
			})
			runtime.Gosched()
		}
	}()

	return id
}

// CancelBrowse sets the soft-cancellation flag on a pending request.
// Already-completed ids return ErrUnknownBrowseID, per §4.7.
func (o *Orchestrator) CancelBrowse(id host.BrowseID) error {
	o.mu.Lock()
	req, ok := o.pending[id]
	o.mu.Unlock()
	if !ok {
		return host.ErrUnknownBrowseID
	}
	req.cancelled.Store(true)
	return nil
}

// Wait blocks until the browse request id has finished emitting (including
// the zero-tick case spec.md §5 allows for an empty result), or ctx is
// done. It never consults or mutates the cancellation flag, so it is safe
// to call from a synchronous caller — such as the admin HTTP surface —
// that needs to know a browse is complete without itself being the one
// callback-driven host loop.
func (o *Orchestrator) Wait(ctx context.Context, id host.BrowseID) error {
	o.mu.Lock()
	req, ok := o.pending[id]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveChildren dispatches to the category-specific listing builder,
// applies sorting, and windows the result to [offset, offset+count).
// Playlist-entry browsing pushes its own window down into the streaming
// parser instead (handled inside listPlaylistEntries).
func (o *Orchestrator) resolveChildren(ctx context.Context, cat objectid.Category, segs []string, recursive bool, filterNode *filterc.Node, sortCriteria string, keys []string, offset, count int) ([]child, error) {
	if cat.PlaylistURI != nil {
		return o.listPlaylistEntries(ctx, *cat.PlaylistURI, keys, offset, count)
	}
	if objectid.IsLeaf(cat) {
		return nil, host.ErrInvalidObjectID
	}

	items, err := o.dispatch(ctx, cat, segs, recursive, filterNode, keys)
	if err != nil {
		return nil, err
	}

	videos := cat.Kind == objectid.KindVideos || (cat.Kind == objectid.Root && recursive)
	underAlbum := cat.Album != nil
	sortItems(items, parseSortCriteria(sortCriteria), videos, underAlbum)
	return window(items, offset, count), nil
}

func window(items []child, offset, count int) []child {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + count
	if end > len(items) || end < offset {
		end = len(items)
	}
	return items[offset:end]
}

func (o *Orchestrator) dispatch(ctx context.Context, cat objectid.Category, segs []string, recursive bool, filterNode *filterc.Node, keys []string) ([]child, error) {
	switch cat.Kind {
	case objectid.Root:
		if recursive {
			return o.flattenRoot(ctx, filterNode, keys)
		}
		return o.listRoot(ctx, keys)

	case objectid.KindMusic:
		if recursive {
			return o.listSongs(ctx, nil, filterNode, keys, []string{"music", "songs"})
		}
		return o.listMusicBranches(ctx, keys)

	case objectid.KindVideos:
		return o.listVideos(ctx, filterNode, keys)

	case objectid.KindMusicSongs:
		return o.listSongs(ctx, nil, filterNode, keys, []string{"music", "songs"})

	case objectid.KindMusicAlbums:
		if cat.Album != nil {
			return o.listSongs(ctx, []pin{{keyreg.KeyAlbum, *cat.Album}}, filterNode, keys, segs)
		}
		if recursive {
			return o.listSongs(ctx, nil, filterNode, keys, []string{"music", "songs"})
		}
		return o.listUniqueAlbums(ctx, "", "", filterNode, keys, segs)

	case objectid.KindMusicArtists:
		switch {
		case cat.Artist != nil && cat.Album != nil:
			return o.listSongs(ctx, []pin{{keyreg.KeyArtist, *cat.Artist}, {keyreg.KeyAlbum, *cat.Album}}, filterNode, keys, segs)
		case cat.Artist != nil:
			if recursive {
				return o.listSongs(ctx, []pin{{keyreg.KeyArtist, *cat.Artist}}, filterNode, keys, segs)
			}
			return o.listUniqueAlbums(ctx, "", *cat.Artist, filterNode, keys, segs)
		default:
			if recursive {
				return o.listSongs(ctx, nil, filterNode, keys, []string{"music", "songs"})
			}
			return o.listUniqueArtists(ctx, "", filterNode, keys, segs)
		}

	case objectid.KindMusicGenres:
		switch {
		case cat.Genre != nil && cat.Artist != nil && cat.Album != nil:
			return o.listSongs(ctx, []pin{{keyreg.KeyGenre, *cat.Genre}, {keyreg.KeyArtist, *cat.Artist}, {keyreg.KeyAlbum, *cat.Album}}, filterNode, keys, segs)
		case cat.Genre != nil && cat.Artist != nil:
			if recursive {
				return o.listSongs(ctx, []pin{{keyreg.KeyGenre, *cat.Genre}, {keyreg.KeyArtist, *cat.Artist}}, filterNode, keys, segs)
			}
			return o.listUniqueAlbums(ctx, *cat.Genre, *cat.Artist, filterNode, keys, segs)
		case cat.Genre != nil:
			if recursive {
				return o.listSongs(ctx, []pin{{keyreg.KeyGenre, *cat.Genre}}, filterNode, keys, segs)
			}
			return o.listUniqueArtists(ctx, *cat.Genre, filterNode, keys, segs)
		default:
			if recursive {
				return o.listSongs(ctx, nil, filterNode, keys, []string{"music", "songs"})
			}
			return o.listUniqueGenres(ctx, filterNode, keys, segs)
		}

	case objectid.KindMusicPlaylists:
		return o.listPlaylists(ctx, keys)

	default:
		return nil, host.ErrInvalidObjectID
	}
}

// flattenRoot is the root-level recursive collapse: every song under music
// plus every clip under videos, each addressed by its own natural id.
func (o *Orchestrator) flattenRoot(ctx context.Context, filterNode *filterc.Node, keys []string) ([]child, error) {
	songs, err := o.listSongs(ctx, nil, filterNode, keys, []string{"music", "songs"})
	if err != nil {
		return nil, err
	}
	videos, err := o.listVideos(ctx, filterNode, keys)
	if err != nil {
		return nil, err
	}
	return append(songs, videos...), nil
}

// listRoot computes the two root containers' own summaries concurrently —
// the indexer has no cross-service state, so "Music" and "Videos" can be
// aggregated on separate goroutines with no coordination beyond waiting
// for both to finish.
func (o *Orchestrator) listRoot(ctx context.Context, keys []string) ([]child, error) {
	var musicMeta, videoMeta qcache.Metadata
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := o.nodeSummary(gctx, keyreg.Music, keys, nil, "Music", "", 5)
		musicMeta = m
		return err
	})
	g.Go(func() error {
		m, err := o.nodeSummary(gctx, keyreg.Videos, keys, nil, "Videos", keyreg.KeyURI, 0)
		videoMeta = m
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return []child{
		{segments: []string{"music"}, meta: musicMeta},
		{segments: []string{"videos"}, meta: videoMeta},
	}, nil
}

func (o *Orchestrator) listMusicBranches(ctx context.Context, keys []string) ([]child, error) {
	branches := []struct {
		name     string
		title    string
		childKey string
	}{
		{"songs", "Songs", keyreg.KeyURI},
		{"albums", "Albums", keyreg.KeyAlbum},
		{"artists", "Artists", keyreg.KeyArtist},
		{"genres", "Genres", keyreg.KeyGenre},
		{"playlists", "Playlists", keyreg.KeyURI},
	}
	out := make([]child, 0, len(branches))
	for _, b := range branches {
		kind := keyreg.Music
		if b.name == "playlists" {
			kind = keyreg.Playlists
		}
		meta, err := o.nodeSummary(ctx, kind, keys, nil, b.title, b.childKey, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, child{segments: []string{"music", b.name}, meta: meta})
	}
	return out, nil
}

// nodeSummary computes a single container's own aggregate metadata
// (childcount via COUNT(DISTINCT childKey), duration via SUM), mirroring
// internal/metaops' categoryAggregate for the same fields. The two
// orchestrators each need "compute this container's own summary" for
// different reasons (get_metadata vs. listing a parent's children) and
// neither naturally depends on the other, so the small aggregate query
// logic is duplicated here rather than exported from metaops.
func (o *Orchestrator) nodeSummary(ctx context.Context, kind keyreg.ServiceKind, keys []string, pins []pin, title, childKey string, fixedChildcount int) (qcache.Metadata, error) {
	st := sparqlb.New()
	filterFrag, err := appendEqualityFilter(st, pins, kind)
	if err != nil {
		return nil, err
	}
	bindings := st.Bindings()

	out := make(qcache.Metadata)
	for _, key := range keys {
		mk, ok := keyreg.LookupMeta(key)
		if !ok {
			continue
		}
		switch key {
		case keyreg.KeyMIME:
			out[key] = qcache.Value{Type: mk.ValueType, String: "x-mafw/container"}
		case keyreg.KeyTitle:
			out[key] = qcache.Value{Type: mk.ValueType, String: title}
		case keyreg.KeyChildcount:
			if childKey == "" {
				out[key] = qcache.Value{Type: mk.ValueType, Int: int64(fixedChildcount)}
				continue
			}
			n, err := o.countDistinct(ctx, kind, mustTrackerPredicate(childKey, kind), filterFrag, bindings)
			if err != nil {
				return nil, err
			}
			out[key] = qcache.Value{Type: mk.ValueType, Int: n}
		case keyreg.KeyDuration:
			tk, ok := keyreg.LookupTracker(keyreg.KeyDuration, kind)
			if !ok {
				continue
			}
			n, err := o.sumColumn(ctx, kind, tk.PredicateText, filterFrag, bindings)
			if err != nil {
				return nil, err
			}
			out[key] = qcache.Value{Type: mk.ValueType, Int: n}
		}
	}
	return out, nil
}

func (o *Orchestrator) countDistinct(ctx context.Context, kind keyreg.ServiceKind, predicate, filterFrag string, bindings []sparqlb.Binding) (int64, error) {
	stmt := fmt.Sprintf("SELECT (COUNT(DISTINCT ?v) AS ?r) WHERE {%s . OPTIONAL{%s ?v}%s}", sparqlb.ServiceClass(kind), predicate, filterFrag)
	return o.runScalarInt(ctx, stmt, bindings)
}

func (o *Orchestrator) sumColumn(ctx context.Context, kind keyreg.ServiceKind, predicate, filterFrag string, bindings []sparqlb.Binding) (int64, error) {
	stmt := fmt.Sprintf("SELECT (SUM(?v) AS ?r) WHERE {%s . OPTIONAL{%s ?v}%s}", sparqlb.ServiceClass(kind), predicate, filterFrag)
	return o.runScalarInt(ctx, stmt, bindings)
}

func (o *Orchestrator) runScalarInt(ctx context.Context, stmt string, bindings []sparqlb.Binding) (int64, error) {
	key := scalarCacheKey(stmt, bindings)
	if v, ok := o.Cache.Get(ctx, key); ok {
		return v, nil
	}
	rows, err := o.Session.RunSelect(ctx, stmt, bindings)
	if err != nil {
		return 0, fmt.Errorf("browse: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(rows[0][0]), 10, 64)
	o.Cache.Set(ctx, key, n)
	return n, nil
}

func scalarCacheKey(stmt string, bindings []sparqlb.Binding) string {
	var b strings.Builder
	b.WriteString(stmt)
	for _, bind := range bindings {
		b.WriteByte('|')
		b.WriteString(bind.ID)
		b.WriteByte('=')
		b.WriteString(bind.Value)
	}
	return b.String()
}

// listSongs and listVideos are the flat Query-shape listings. CreateList
// always binds a leading uri column; the Query-shape cache reserves a
// second "service class" column immediately after it (cache.go's add()
// comment: "reserving two leading columns (uri, service class)"), so a
// synthetic rdf:type column is bound first among the requested columns to
// occupy that reserved slot, keeping CreateList's row layout aligned with
// the cache's own column numbering.
func (o *Orchestrator) listSongs(ctx context.Context, pins []pin, filterNode *filterc.Node, keys []string, prefix []string) ([]child, error) {
	return o.listFlat(ctx, keyreg.Music, planner.PlanSongs(keys), pins, filterNode, prefix)
}

func (o *Orchestrator) listVideos(ctx context.Context, filterNode *filterc.Node, keys []string) ([]child, error) {
	return o.listFlat(ctx, keyreg.Videos, planner.PlanVideos(keys), nil, filterNode, []string{"videos"})
}

func (o *Orchestrator) listPlaylists(ctx context.Context, keys []string) ([]child, error) {
	cache := qcache.New(keyreg.Playlists, qcache.Query)
	cache.Add(keyreg.KeyURI)
	wantsDuration := contains(keys, keyreg.KeyDuration)
	for _, k := range keys {
		cache.Add(k)
	}
	if !wantsDuration {
		cache.Add(keyreg.KeyDuration)
	}

	items, err := o.listFlat(ctx, keyreg.Playlists, cache, nil, nil, []string{"music", "playlists"})
	if err != nil {
		return nil, err
	}

	// Playlist-container listings always recompute duration, per §4.7's
	// final sentence, regardless of the stored valid-duration flag.
	for i := range items {
		uri := items[i].segments[len(items[i].segments)-1]
		sum, err := o.recomputePlaylistDuration(ctx, uri)
		if err != nil {
			continue
		}
		if wantsDuration {
			items[i].meta[keyreg.KeyDuration] = qcache.Value{Type: keyreg.TInt, Int: sum}
		} else {
			delete(items[i].meta, keyreg.KeyDuration)
		}
	}
	return items, nil
}

func (o *Orchestrator) listFlat(ctx context.Context, kind keyreg.ServiceKind, cache *qcache.Cache, pins []pin, filterNode *filterc.Node, prefix []string) ([]child, error) {
	st := sparqlb.New()
	filterFrag, err := appendEqualityFilter(st, pins, kind)
	if err != nil {
		return nil, err
	}
	if filterNode != nil {
		frag, err := filterc.Compile(filterNode, kind, st)
		if err != nil {
			return nil, err
		}
		filterFrag += frag
	}

	columns := flatListColumns(cache, kind)
	stmt := st.CreateList(kind, columns, filterFrag, false)
	rows, err := o.Session.RunSelect(ctx, stmt, st.Bindings())
	if err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}

	out := make([]child, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		meta := cache.Project(row, o.Prober)
		segs := append(append([]string{}, prefix...), row[0])
		out = append(out, child{segments: segs, meta: meta})
	}
	return out, nil
}

func flatListColumns(cache *qcache.Cache, kind keyreg.ServiceKind) []sparqlb.Column {
	type ck struct {
		col int
		key string
	}
	var cols []ck
	for _, key := range cache.Keys() {
		if key == keyreg.KeyURI {
			continue
		}
		slot, ok := cache.Slot(key)
		if !ok || slot.Kind != qcache.SlotColumn {
			continue
		}
		cols = append(cols, ck{slot.Column, key})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].col < cols[j].col })

	out := make([]sparqlb.Column, 0, len(cols)+1)
	out = append(out, sparqlb.Column{Predicate: "?o a", Aggregate: sparqlb.AggNone})
	for _, c := range cols {
		out = append(out, sparqlb.Column{Predicate: mustTrackerPredicate(c.key, kind), Aggregate: sparqlb.AggNone})
	}
	return out
}

// listUniqueGenres, listUniqueArtists, and listUniqueAlbums are the
// Unique-shape grouped listings. CreateList's GROUP BY is hardcoded to the
// per-row uri variable (always bound via "?o nie:url uriVar"), which only
// ever groups a song against itself — it cannot express "group by artist".
// These listings instead assemble their own small grouped-SPARQL text
// directly, mirroring (not calling — wrapAggregate is unexported) the same
// guarded GROUP_CONCAT convention internal/sparqlb uses for its own
// aggregate columns.
func (o *Orchestrator) listUniqueGenres(ctx context.Context, filterNode *filterc.Node, keys []string, segs []string) ([]child, error) {
	cache, g := planner.PlanUniqueGenres(keys)
	return o.listUnique(ctx, keyreg.Music, cache, g, nil, filterNode, segs)
}

func (o *Orchestrator) listUniqueArtists(ctx context.Context, genre string, filterNode *filterc.Node, keys []string, segs []string) ([]child, error) {
	cache, g := planner.PlanUniqueArtists(genre, keys)
	var pins []pin
	if genre != "" {
		pins = append(pins, pin{keyreg.KeyGenre, genre})
	}
	return o.listUnique(ctx, keyreg.Music, cache, g, pins, filterNode, segs)
}

func (o *Orchestrator) listUniqueAlbums(ctx context.Context, genre, artist string, filterNode *filterc.Node, keys []string, segs []string) ([]child, error) {
	cache, g := planner.PlanUniqueAlbums(genre, artist, keys)
	var pins []pin
	if genre != "" {
		pins = append(pins, pin{keyreg.KeyGenre, genre})
	}
	if artist != "" {
		pins = append(pins, pin{keyreg.KeyArtist, artist})
	}
	return o.listUnique(ctx, keyreg.Music, cache, g, pins, filterNode, segs)
}

func (o *Orchestrator) listUnique(ctx context.Context, kind keyreg.ServiceKind, cache *qcache.Cache, g planner.Grouping, pins []pin, filterNode *filterc.Node, prefix []string) ([]child, error) {
	st := sparqlb.New()
	filterFrag, err := appendEqualityFilter(st, pins, kind)
	if err != nil {
		return nil, err
	}
	if filterNode != nil {
		frag, err := filterc.Compile(filterNode, kind, st)
		if err != nil {
			return nil, err
		}
		filterFrag += frag
	}

	stmt := buildUniqueStatement(st, kind, cache, g, filterFrag)
	rows, err := o.Session.RunSelect(ctx, stmt, st.Bindings())
	if err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}

	out := make([]child, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		meta := cache.Project(row, o.Prober)
		segs := append(append([]string{}, prefix...), row[0])
		out = append(out, child{segments: segs, meta: meta})
	}
	return out, nil
}

const groupConcatSeparatorGuard = "!@_GROUP_CONCAT_SEPARATOR_@!"

func buildUniqueStatement(st *sparqlb.State, kind keyreg.ServiceKind, cache *qcache.Cache, g planner.Grouping, filterFrag string) string {
	type ck struct {
		col  int
		key  string
		slot *qcache.Slot
	}
	var cols []ck
	for _, key := range cache.Keys() {
		slot, ok := cache.Slot(key)
		if !ok || slot.Kind != qcache.SlotColumn {
			continue
		}
		cols = append(cols, ck{slot.Column, key, slot})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].col < cols[j].col })

	var sel, where strings.Builder
	sel.WriteString("SELECT")
	where.WriteString(sparqlb.ServiceClass(kind))
	var groupVar string
	for i, c := range cols {
		v := st.NextVar()
		if i == 0 {
			groupVar = v
		}
		predicate := mustTrackerPredicate(c.key, kind)
		if c.key == keyreg.KeyChildcount {
			predicate = childcountPredicate(g, kind)
		}
		sel.WriteString(" " + wrapGroupAggregate(v, c.slot.Aggregate))
		where.WriteString(fmt.Sprintf(" . OPTIONAL {%s %s}", predicate, v))
	}
	where.WriteString(filterFrag)

	return sel.String() + " WHERE {" + where.String() + "} GROUP BY " + groupVar
}

func childcountPredicate(g planner.Grouping, kind keyreg.ServiceKind) string {
	if g.CountChildcount || g.CountTarget == "*" {
		return mustTrackerPredicate(keyreg.KeyURI, kind)
	}
	return mustTrackerPredicate(g.CountTarget, kind)
}

func wrapGroupAggregate(v string, agg qcache.Aggregate) string {
	switch agg {
	case qcache.AggConcat:
		return fmt.Sprintf(
			"REPLACE(REPLACE(GROUP_CONCAT(DISTINCT CONCAT(%s, '%s')),'%s,','|'), '%s', '')",
			v, groupConcatSeparatorGuard, groupConcatSeparatorGuard, groupConcatSeparatorGuard)
	case qcache.AggCount:
		return fmt.Sprintf("COUNT(DISTINCT %s)", v)
	case qcache.AggSum:
		return fmt.Sprintf("SUM(%s)", v)
	default:
		return v
	}
}

// listPlaylistEntries implements §4.7 step 6: stream the playlist file
// windowed to [offset, offset+count), split local from remote entries,
// resolve locals through a batch meta query against the music service
// (they are ordinary indexed songs), and synthesize remote entries'
// metadata from their URI basename and #EXTINF/Title hint.
func (o *Orchestrator) listPlaylistEntries(ctx context.Context, playlistURI string, keys []string, offset, count int) ([]child, error) {
	entries, err := plsparse.Window(filePathFromURI(playlistURI), offset, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", host.ErrPlaylistParseFailed, err)
	}

	var localURIs []string
	for _, e := range entries {
		if e.Local() {
			localURIs = append(localURIs, e.URI)
		}
	}

	localMeta, err := o.batchMusicMeta(ctx, localURIs, keys)
	if err != nil {
		return nil, err
	}

	out := make([]child, 0, len(entries))
	for _, e := range entries {
		var meta qcache.Metadata
		if e.Local() {
			m, ok := localMeta[e.URI]
			if !ok {
				continue // dropped, not failed — same rule as a missing get_metadata uri.
			}
			meta = m
		} else {
			meta = synthesizeRemoteMeta(e, keys)
		}
		out = append(out, child{segments: []string{"music", "songs", e.URI}, meta: meta})
	}
	return out, nil
}

func (o *Orchestrator) batchMusicMeta(ctx context.Context, uris []string, keys []string) (map[string]qcache.Metadata, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	cache := qcache.New(keyreg.Music, qcache.GetMetadata)
	cache.Add(keyreg.KeyURI)
	for _, k := range keys {
		cache.Add(k)
	}
	fields := fieldsInColumnOrder(cache, keyreg.Music)

	st := sparqlb.New()
	stmt := st.MetaByURIs(keyreg.Music, fields, uris)
	rows, err := o.Session.RunSelect(ctx, stmt, st.Bindings())
	if err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}

	out := make(map[string]qcache.Metadata, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out[row[0]] = cache.Project(row, o.Prober)
	}
	return out, nil
}

func fieldsInColumnOrder(cache *qcache.Cache, kind keyreg.ServiceKind) []string {
	type ck struct {
		col int
		key string
	}
	var cols []ck
	for _, key := range cache.Keys() {
		if key == keyreg.KeyURI {
			continue
		}
		slot, ok := cache.Slot(key)
		if !ok || slot.Kind != qcache.SlotColumn {
			continue
		}
		cols = append(cols, ck{slot.Column, key})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].col < cols[j].col })
	fields := make([]string, len(cols))
	for i, c := range cols {
		fields[i] = mustTrackerPredicate(c.key, kind)
	}
	return fields
}

func synthesizeRemoteMeta(e plsparse.Entry, keys []string) qcache.Metadata {
	out := make(qcache.Metadata)
	for _, key := range keys {
		mk, ok := keyreg.LookupMeta(key)
		if !ok {
			continue
		}
		switch key {
		case keyreg.KeyURI:
			out[key] = qcache.Value{Type: mk.ValueType, String: e.URI}
		case keyreg.KeyTitle:
			title := e.Title
			if title == "" {
				title = titleFromBasename(e.URI)
			}
			out[key] = qcache.Value{Type: mk.ValueType, String: title}
		case keyreg.KeyDuration:
			if e.DurationHint > 0 {
				out[key] = qcache.Value{Type: mk.ValueType, Int: int64(e.DurationHint)}
			}
		case keyreg.KeyMIME:
			out[key] = qcache.Value{Type: mk.ValueType, String: "audio/x-mafw-stream"}
		}
	}
	return out
}

func titleFromBasename(uri string) string {
	base := uri
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		base = uri[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// recomputePlaylistDuration re-parses and re-stores a playlist's duration
// sum, deduplicated through o.dedupe so a playlist container listed by
// two concurrent browses only gets reparsed and rewritten once.
func (o *Orchestrator) recomputePlaylistDuration(ctx context.Context, uri string) (int64, error) {
	v, err, _ := o.dedupe.Do(uri, func() (any, error) {
		return o.recomputePlaylistDurationOnce(ctx, uri)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (o *Orchestrator) recomputePlaylistDurationOnce(ctx context.Context, uri string) (int64, error) {
	it, err := plsparse.Open(filePathFromURI(uri))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", host.ErrPlaylistParseFailed, err)
	}
	defer it.Close()

	var sum int64
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		sum += int64(e.DurationHint)
	}

	st := sparqlb.New()
	stmt := st.Update(keyreg.Playlists, uri,
		[]string{mustTrackerPredicate(keyreg.KeyDuration, keyreg.Playlists), mustTrackerPredicate(keyreg.KeyValidDuration, keyreg.Playlists)},
		[]string{strconv.FormatInt(sum, 10), "true"})
	if err := o.Session.RunUpdate(ctx, stmt); err != nil {
		return sum, fmt.Errorf("browse: %w", err)
	}
	return sum, nil
}

func appendEqualityFilter(st *sparqlb.State, pins []pin, kind keyreg.ServiceKind) (string, error) {
	var b strings.Builder
	for _, p := range pins {
		tk, ok := keyreg.LookupTracker(p.Key, kind)
		if !ok {
			return "", fmt.Errorf("%w: pinned key %q", host.ErrInvalidObjectID, p.Key)
		}
		b.WriteString(st.QueryFilter(tk.PredicateText, p.Value))
	}
	return b.String(), nil
}

func mustTrackerPredicate(key string, kind keyreg.ServiceKind) string {
	tk, _ := keyreg.LookupTracker(key, kind)
	return tk.PredicateText
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func filePathFromURI(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return uri
}

// parseSortCriteria splits a comma-separated list of +/--prefixed host
// keys; every token shares the direction named by the first token.
func parseSortCriteria(s string) []planner.SortField {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	desc := strings.HasPrefix(strings.TrimSpace(parts[0]), "-")
	out := make([]planner.SortField, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "+")
		p = strings.TrimPrefix(p, "-")
		if p == "" {
			continue
		}
		out = append(out, planner.SortField{Key: p, Desc: desc})
	}
	return out
}

// sortItems orders items by the given sort fields (falling back to
// planner.DefaultSort for an empty list), comparing each field's
// projected value and breaking ties by the next field in the list.
func sortItems(items []child, fields []planner.SortField, videos, underAlbum bool) {
	if len(fields) == 0 {
		fields = planner.DefaultSort(videos, underAlbum)
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, f := range fields {
			a, aok := items[i].meta[f.Key]
			b, bok := items[j].meta[f.Key]
			if !aok && !bok {
				continue
			}
			cmp := compareValues(a, b, aok, bok)
			if cmp == 0 {
				continue
			}
			if f.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareValues(a, b qcache.Value, aok, bok bool) int {
	if !aok {
		return -1
	}
	if !bok {
		return 1
	}
	switch a.Type {
	case keyreg.TInt, keyreg.TLong, keyreg.TDate:
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	case keyreg.TFloat, keyreg.TDouble:
		switch {
		case a.Float < b.Float:
			return -1
		case a.Float > b.Float:
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(a.String, b.String)
	}
}
