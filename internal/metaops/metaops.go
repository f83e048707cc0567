// Package metaops implements the get_metadata and set_metadata and
// destroy_object orchestrators of spec.md §4.8: grouping requested
// object-ids by the service and tree position they address, issuing the
// matching indexer query shape for each group, merging the results into a
// single host-facing map, and running the destroy file-delete cascade.
package metaops

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alexander-bruun/localtagfs/internal/host"
	"github.com/alexander-bruun/localtagfs/internal/indexer"
	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/objectid"
	"github.com/alexander-bruun/localtagfs/internal/plsparse"
	"github.com/alexander-bruun/localtagfs/internal/qcache"
	"github.com/alexander-bruun/localtagfs/internal/resultcache"
	"github.com/alexander-bruun/localtagfs/internal/sparqlb"
)

// Deps bundles metaops' collaborators: the indexer session, the
// album-art/thumbnail prober consulted during projection, and the signal
// emitter notified after a successful set_metadata. Cache is optional —
// a nil Cache simply disables the aggregate-result cache.
type Deps struct {
	Session indexer.Session
	Prober  qcache.AlbumArtProber
	Emitter host.Emitter
	Cache   *resultcache.Cache
	Dedupe  *singleflight.Group
}

// pin is one equality constraint ("artist" == "Radiohead") scoping a
// category-container aggregate query to the branch the object-id names.
type pin struct {
	Key   string
	Value string
}

// GetMetadata implements get_metadata/get_metadatas: every id is decoded
// and classified, leaf clips/playlists are resolved through batched
// by-uri indexer lookups (one batch per service), and category/root nodes
// are resolved through scalar aggregate queries. A single malformed id
// aborts the whole call, per §7; a uri absent from a batch's rows is
// silently dropped from the result rather than failing it.
func (d Deps) GetMetadata(ctx context.Context, ids []string, keys []string, cb host.MetadataCallback) {
	type idCat struct {
		id  string
		cat objectid.Category
	}
	parsed := make([]idCat, 0, len(ids))
	for _, id := range ids {
		segs, err := objectid.Decode(id)
		if err != nil {
			cb(nil, fmt.Errorf("%w: %v", host.ErrInvalidObjectID, err))
			return
		}
		cat, err := objectid.Classify(segs)
		if err != nil {
			cb(nil, fmt.Errorf("%w: %v", host.ErrInvalidObjectID, err))
			return
		}
		parsed = append(parsed, idCat{id: id, cat: cat})
	}

	result := make(map[string]qcache.Metadata, len(parsed))
	musicURIToIDs := map[string][]string{}
	videoURIToIDs := map[string][]string{}
	playlistURIToIDs := map[string][]string{}
	var categoryItems []idCat

	for _, p := range parsed {
		switch {
		case p.cat.Kind == objectid.KindVideos && p.cat.ClipURI != nil:
			videoURIToIDs[*p.cat.ClipURI] = append(videoURIToIDs[*p.cat.ClipURI], p.id)
		case p.cat.PlaylistURI != nil:
			playlistURIToIDs[*p.cat.PlaylistURI] = append(playlistURIToIDs[*p.cat.PlaylistURI], p.id)
		case p.cat.ClipURI != nil:
			musicURIToIDs[*p.cat.ClipURI] = append(musicURIToIDs[*p.cat.ClipURI], p.id)
		default:
			categoryItems = append(categoryItems, p)
		}
	}

	// Each service's batch query (and each category node's own aggregate)
	// is independent of every other group, so they run on their own
	// goroutines rather than one after another; resultMu guards the
	// shared result map, the only state they touch in common.
	var resultMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	if len(musicURIToIDs) > 0 {
		g.Go(func() error {
			batch, err := d.leafMetadataBatch(gctx, keyreg.Music, keysOf(musicURIToIDs), keys)
			if err != nil {
				return err
			}
			resultMu.Lock()
			mergeBatch(result, batch, musicURIToIDs)
			resultMu.Unlock()
			return nil
		})
	}
	if len(videoURIToIDs) > 0 {
		g.Go(func() error {
			batch, err := d.leafMetadataBatch(gctx, keyreg.Videos, keysOf(videoURIToIDs), keys)
			if err != nil {
				return err
			}
			resultMu.Lock()
			mergeBatch(result, batch, videoURIToIDs)
			resultMu.Unlock()
			return nil
		})
	}
	if len(playlistURIToIDs) > 0 {
		g.Go(func() error {
			batch, err := d.playlistMetadataBatch(gctx, keysOf(playlistURIToIDs), keys)
			if err != nil {
				return err
			}
			resultMu.Lock()
			mergeBatch(result, batch, playlistURIToIDs)
			resultMu.Unlock()
			return nil
		})
	}
	for _, item := range categoryItems {
		g.Go(func() error {
			meta, err := d.aggregateCategory(gctx, item.cat, keys)
			if err != nil {
				return err
			}
			resultMu.Lock()
			result[item.id] = meta
			resultMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		cb(nil, err)
		return
	}
	cb(result, nil)
}

func keysOf(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func mergeBatch(result map[string]qcache.Metadata, batch map[string]qcache.Metadata, uriToIDs map[string][]string) {
	for uri, ids := range uriToIDs {
		meta, ok := batch[uri]
		if !ok {
			continue // a uri missing from its batch is dropped, not failed (§7).
		}
		for _, id := range ids {
			result[id] = meta
		}
	}
}

// leafMetadataBatch runs one meta-by-uris query covering every uri in a
// single service and projects each returned row independently.
func (d Deps) leafMetadataBatch(ctx context.Context, kind keyreg.ServiceKind, uris []string, keys []string) (map[string]qcache.Metadata, error) {
	fields, cache := buildGetMetadataCache(kind, keys)
	st := sparqlb.New()
	stmt := st.MetaByURIs(kind, fields, uris)
	rows, err := d.Session.RunSelect(ctx, stmt, st.Bindings())
	if err != nil {
		return nil, fmt.Errorf("metaops: %w", err)
	}
	out := make(map[string]qcache.Metadata, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out[row[0]] = cache.Project(row, d.Prober)
	}
	return out, nil
}

// playlistMetadataBatch is leafMetadataBatch plus the DURATION
// memoisation rule of §8 scenario 7: the duration column and the stored
// valid-duration flag are always fetched, and when the stored duration is
// zero and the flag is false, the playlist file is parsed and its entries'
// duration hints summed, the sum is written back to the indexer alongside
// valid-duration=true, and the recomputed value replaces the stored zero.
// DURATION is left out of the result when the caller did not request it.
func (d Deps) playlistMetadataBatch(ctx context.Context, uris []string, keys []string) (map[string]qcache.Metadata, error) {
	wantsDuration := contains(keys, keyreg.KeyDuration)
	forced := keys
	if !wantsDuration {
		forced = append(append([]string{}, keys...), keyreg.KeyDuration)
	}
	fields, cache := buildGetMetadataCache(keyreg.Playlists, forced)
	validField := mustTrackerPredicate(keyreg.KeyValidDuration, keyreg.Playlists)
	allFields := append(append([]string{}, fields...), validField)

	st := sparqlb.New()
	stmt := st.MetaByURIs(keyreg.Playlists, allFields, uris)
	rows, err := d.Session.RunSelect(ctx, stmt, st.Bindings())
	if err != nil {
		return nil, fmt.Errorf("metaops: %w", err)
	}

	out := make(map[string]qcache.Metadata, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		uri := row[0]
		meta := cache.Project(row, d.Prober)

		valid := len(row) > len(fields)+1 && isTrueCell(row[len(fields)+1])
		storedDuration := meta[keyreg.KeyDuration].Int
		if storedDuration == 0 && !valid {
			if sum, err := d.recomputePlaylistDuration(ctx, uri); err == nil {
				meta[keyreg.KeyDuration] = qcache.Value{Type: keyreg.TInt, Int: sum}
			}
		}
		if !wantsDuration {
			delete(meta, keyreg.KeyDuration)
		}
		out[uri] = meta
	}
	return out, nil
}

func isTrueCell(cell string) bool {
	return cell == "true" || cell == "1"
}

// recomputePlaylistDuration re-parses and re-stores a playlist's duration
// sum. A GetMetadata batch covering the same playlist uri multiple times
// (or concurrent batches racing on it, now that service groups run on
// their own goroutines) would otherwise reparse and rewrite it once per
// occurrence; Dedupe collapses those into a single in-flight call, every
// caller waiting on it receiving the same result.
func (d Deps) recomputePlaylistDuration(ctx context.Context, uri string) (int64, error) {
	if d.Dedupe != nil {
		v, err, _ := d.Dedupe.Do(uri, func() (any, error) {
			return d.recomputePlaylistDurationOnce(ctx, uri)
		})
		if err != nil {
			return 0, err
		}
		return v.(int64), nil
	}
	return d.recomputePlaylistDurationOnce(ctx, uri)
}

func (d Deps) recomputePlaylistDurationOnce(ctx context.Context, uri string) (int64, error) {
	path := filePathFromURI(uri)
	it, err := plsparse.Open(path)
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
	if err := d.Session.RunUpdate(ctx, stmt); err != nil {
		return sum, fmt.Errorf("metaops: %w", err)
	}
	return sum, nil
}

// aggregateCategory resolves the metadata of a non-leaf node: the root,
// a service node, or an un-pinned or partially-pinned category branch.
// Per §4.8, CHILDCOUNT and DURATION are computed via aggregate queries
// rather than read off a single row.
func (d Deps) aggregateCategory(ctx context.Context, cat objectid.Category, keys []string) (qcache.Metadata, error) {
	switch cat.Kind {
	case objectid.Root:
		return d.rootMetadata(ctx, keys)
	case objectid.KindMusic:
		return d.categoryAggregate(ctx, keyreg.Music, keys, nil, "Music", "", 5)
	case objectid.KindVideos:
		return d.categoryAggregate(ctx, keyreg.Videos, keys, nil, "Videos", keyreg.KeyURI, 0)
	case objectid.KindMusicSongs:
		return d.categoryAggregate(ctx, keyreg.Music, keys, nil, "Songs", keyreg.KeyURI, 0)
	case objectid.KindMusicAlbums:
		if cat.Album != nil {
			return d.categoryAggregate(ctx, keyreg.Music, keys, []pin{{keyreg.KeyAlbum, *cat.Album}}, *cat.Album, keyreg.KeyURI, 0)
		}
		return d.categoryAggregate(ctx, keyreg.Music, keys, nil, "Albums", keyreg.KeyAlbum, 0)
	case objectid.KindMusicArtists:
		pins, title := artistPins(cat)
		switch {
		case cat.Album != nil:
			return d.categoryAggregate(ctx, keyreg.Music, keys, pins, title, keyreg.KeyURI, 0)
		case cat.Artist != nil:
			return d.categoryAggregate(ctx, keyreg.Music, keys, pins, title, keyreg.KeyAlbum, 0)
		default:
			return d.categoryAggregate(ctx, keyreg.Music, keys, nil, title, keyreg.KeyArtist, 0)
		}
	case objectid.KindMusicGenres:
		pins, title, childKey := genrePins(cat)
		return d.categoryAggregate(ctx, keyreg.Music, keys, pins, title, childKey, 0)
	case objectid.KindMusicPlaylists:
		return d.categoryAggregate(ctx, keyreg.Playlists, keys, nil, "Playlists", keyreg.KeyURI, 0)
	default:
		return nil, host.ErrInvalidObjectID
	}
}

func artistPins(cat objectid.Category) ([]pin, string) {
	switch {
	case cat.Album != nil:
		return []pin{{keyreg.KeyArtist, *cat.Artist}, {keyreg.KeyAlbum, *cat.Album}}, *cat.Album
	case cat.Artist != nil:
		return []pin{{keyreg.KeyArtist, *cat.Artist}}, *cat.Artist
	default:
		return nil, "Artists"
	}
}

func genrePins(cat objectid.Category) ([]pin, string, string) {
	switch {
	case cat.Album != nil:
		return []pin{{keyreg.KeyGenre, *cat.Genre}, {keyreg.KeyArtist, *cat.Artist}, {keyreg.KeyAlbum, *cat.Album}}, *cat.Album, keyreg.KeyURI
	case cat.Artist != nil:
		return []pin{{keyreg.KeyGenre, *cat.Genre}, {keyreg.KeyArtist, *cat.Artist}}, *cat.Artist, keyreg.KeyAlbum
	case cat.Genre != nil:
		return []pin{{keyreg.KeyGenre, *cat.Genre}}, *cat.Genre, keyreg.KeyArtist
	default:
		return nil, "Genres", keyreg.KeyGenre
	}
}

func (d Deps) rootMetadata(ctx context.Context, keys []string) (qcache.Metadata, error) {
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
			out[key] = qcache.Value{Type: mk.ValueType, String: "Root"}
		case keyreg.KeyChildcount:
			out[key] = qcache.Value{Type: mk.ValueType, Int: 2}
		case keyreg.KeyDuration:
			m, err := d.sumColumn(ctx, keyreg.Music, mustTrackerPredicate(keyreg.KeyDuration, keyreg.Music), "", nil)
			if err != nil {
				return nil, err
			}
			v, err := d.sumColumn(ctx, keyreg.Videos, mustTrackerPredicate(keyreg.KeyDuration, keyreg.Videos), "", nil)
			if err != nil {
				return nil, err
			}
			out[key] = qcache.Value{Type: mk.ValueType, Int: m + v}
		}
	}
	return out, nil
}

// categoryAggregate builds the metadata of a category container scoped by
// zero or more pinned equality filters: title is the fixed display name;
// childKey names the host key whose distinct-value count becomes
// CHILDCOUNT, or "" when CHILDCOUNT is a fixed constant (fixedChildcount)
// instead, as for the music service node's five fixed sub-branches.
func (d Deps) categoryAggregate(ctx context.Context, kind keyreg.ServiceKind, keys []string, pins []pin, title, childKey string, fixedChildcount int) (qcache.Metadata, error) {
	filterFrag, bindings, err := equalityFilter(pins, kind)
	if err != nil {
		return nil, err
	}

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
			n, err := d.countDistinct(ctx, kind, mustTrackerPredicate(childKey, kind), filterFrag, bindings)
			if err != nil {
				return nil, err
			}
			out[key] = qcache.Value{Type: mk.ValueType, Int: n}
		case keyreg.KeyDuration:
			tk, ok := keyreg.LookupTracker(keyreg.KeyDuration, kind)
			if !ok {
				continue
			}
			n, err := d.sumColumn(ctx, kind, tk.PredicateText, filterFrag, bindings)
			if err != nil {
				return nil, err
			}
			out[key] = qcache.Value{Type: mk.ValueType, Int: n}
		}
	}
	return out, nil
}

func equalityFilter(pins []pin, kind keyreg.ServiceKind) (string, []sparqlb.Binding, error) {
	st := sparqlb.New()
	var b strings.Builder
	for _, p := range pins {
		tk, ok := keyreg.LookupTracker(p.Key, kind)
		if !ok {
			return "", nil, fmt.Errorf("%w: pinned key %q", host.ErrInvalidObjectID, p.Key)
		}
		b.WriteString(st.QueryFilter(tk.PredicateText, p.Value))
	}
	return b.String(), st.Bindings(), nil
}

func (d Deps) countDistinct(ctx context.Context, kind keyreg.ServiceKind, predicate, filterFrag string, bindings []sparqlb.Binding) (int64, error) {
	stmt := fmt.Sprintf("SELECT (COUNT(DISTINCT ?v) AS ?r) WHERE {%s . OPTIONAL{%s ?v}%s}", sparqlb.ServiceClass(kind), predicate, filterFrag)
	return d.runScalarInt(ctx, stmt, bindings)
}

func (d Deps) sumColumn(ctx context.Context, kind keyreg.ServiceKind, predicate, filterFrag string, bindings []sparqlb.Binding) (int64, error) {
	stmt := fmt.Sprintf("SELECT (SUM(?v) AS ?r) WHERE {%s . OPTIONAL{%s ?v}%s}", sparqlb.ServiceClass(kind), predicate, filterFrag)
	return d.runScalarInt(ctx, stmt, bindings)
}

func (d Deps) runScalarInt(ctx context.Context, stmt string, bindings []sparqlb.Binding) (int64, error) {
	key := scalarCacheKey(stmt, bindings)
	if v, ok := d.Cache.Get(ctx, key); ok {
		return v, nil
	}
	rows, err := d.Session.RunSelect(ctx, stmt, bindings)
	if err != nil {
		return 0, fmt.Errorf("metaops: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(rows[0][0]), 10, 64)
	d.Cache.Set(ctx, key, n)
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

// buildGetMetadataCache installs uri plus every requested key into a
// GetMetadata-shape cache — contiguous columns starting at 0, matching the
// row layout MetaByURIs produces — and returns the tracker predicate text
// for each installed column in ascending column order.
func buildGetMetadataCache(kind keyreg.ServiceKind, keys []string) ([]string, *qcache.Cache) {
	c := qcache.New(kind, qcache.GetMetadata)
	c.Add(keyreg.KeyURI)
	for _, k := range keys {
		c.Add(k)
	}
	return fieldsInColumnOrder(c, kind), c
}

func fieldsInColumnOrder(c *qcache.Cache, kind keyreg.ServiceKind) []string {
	type colKey struct {
		col int
		key string
	}
	var cols []colKey
	for _, key := range c.Keys() {
		if key == keyreg.KeyURI {
			continue
		}
		slot, ok := c.Slot(key)
		if !ok || slot.Kind != qcache.SlotColumn {
			continue
		}
		cols = append(cols, colKey{col: slot.Column, key: key})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].col < cols[j].col })
	fields := make([]string, len(cols))
	for i, ck := range cols {
		fields[i] = mustTrackerPredicate(ck.key, kind)
	}
	return fields
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

// SetMetadata implements set_metadata per §4.8. Unlike the original MAFW
// design, this adapter's object-id grammar already encodes which service a
// leaf belongs to, so the service is read directly off the decoded
// category rather than sniffed from the presence of an audio-only key.
func (d Deps) SetMetadata(ctx context.Context, id string, values map[string]qcache.Value, cb host.SetMetadataCallback) {
	segs, err := objectid.Decode(id)
	if err != nil {
		cb(nil, fmt.Errorf("%w: %v", host.ErrInvalidObjectID, err))
		return
	}
	cat, err := objectid.Classify(segs)
	if err != nil {
		cb(nil, fmt.Errorf("%w: %v", host.ErrInvalidObjectID, err))
		return
	}
	if !objectid.IsLeaf(cat) {
		cb(nil, host.ErrInvalidObjectID)
		return
	}

	kind := keyreg.Music
	switch {
	case cat.Kind == objectid.KindVideos:
		kind = keyreg.Videos
	case cat.PlaylistURI != nil:
		kind = keyreg.Playlists
	}
	uri := *cat.ClipURI
	if cat.PlaylistURI != nil {
		uri = *cat.PlaylistURI
	}

	var failed []string
	var writeKeys, writeVals []string
	for key, val := range values {
		if !keyreg.IsWritable(key) {
			failed = append(failed, key)
			continue
		}
		tk, ok := keyreg.LookupTracker(key, kind)
		if !ok {
			failed = append(failed, key)
			continue
		}
		writeKeys = append(writeKeys, tk.PredicateText)
		writeVals = append(writeVals, stringifyValue(key, val))
	}
	sort.Strings(failed)

	if len(writeKeys) == 0 {
		cb(failed, host.ErrUnsupportedMetadataKey)
		return
	}

	st := sparqlb.New()
	stmt := st.Update(kind, uri, writeKeys, writeVals)
	if err := d.Session.RunUpdate(ctx, stmt); err != nil {
		all := make([]string, 0, len(values))
		for key := range values {
			all = append(all, key)
		}
		sort.Strings(all)
		cb(all, fmt.Errorf("metaops: %w", err))
		return
	}

	d.Cache.InvalidateAll(ctx)
	if d.Emitter != nil {
		d.Emitter.EmitMetadataChanged(id)
	}
	if len(failed) > 0 {
		cb(failed, host.ErrUnsupportedMetadataKey)
		return
	}
	cb(nil, nil)
}

// stringifyValue renders v as the literal text the indexer update
// statement embeds: LAST_PLAYED (the one long-typed writable key) as
// ISO-8601, every other integer as plain decimal, floats with
// locale-independent formatting.
func stringifyValue(key string, v qcache.Value) string {
	switch v.Type {
	case keyreg.TLong, keyreg.TInt:
		if key == keyreg.KeyLastPlayed {
			return time.Unix(v.Int, 0).UTC().Format(time.RFC3339)
		}
		return strconv.FormatInt(v.Int, 10)
	case keyreg.TFloat, keyreg.TDouble:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case keyreg.TBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return v.String
	}
}

// Destroy implements destroy_object per §4.8: a clip or playlist deletes
// its single backing file; an artist or album container deletes every
// song beneath it via a recursive uri query, continuing past individual
// delete failures and reporting the first one at the end; every other
// category (root, service node, the songs branch, an un-pinned
// albums/artists branch, or any genres branch) is rejected with
// DestroyNotAllowed.
func (d Deps) Destroy(ctx context.Context, id string, cb host.DestroyCallback) {
	innerCB := cb
	cb = func(err error) {
		if err == nil {
			d.Cache.InvalidateAll(ctx)
		}
		innerCB(err)
	}
	segs, err := objectid.Decode(id)
	if err != nil {
		cb(fmt.Errorf("%w: %v", host.ErrInvalidObjectID, err))
		return
	}
	cat, err := objectid.Classify(segs)
	if err != nil {
		cb(fmt.Errorf("%w: %v", host.ErrInvalidObjectID, err))
		return
	}

	switch {
	case cat.ClipURI != nil:
		if err := d.deleteFile(*cat.ClipURI); err != nil {
			cb(fmt.Errorf("%w: %v", host.ErrDestroyFailed, err))
			return
		}
		cb(nil)

	case cat.PlaylistURI != nil:
		if err := d.deleteFile(*cat.PlaylistURI); err != nil {
			cb(fmt.Errorf("%w: %v", host.ErrDestroyFailed, err))
			return
		}
		cb(nil)

	case cat.Kind == objectid.KindMusicAlbums && cat.Album != nil:
		d.destroySongs(ctx, []pin{{keyreg.KeyAlbum, *cat.Album}}, cb)

	case cat.Kind == objectid.KindMusicArtists && cat.Artist != nil && cat.Album != nil:
		d.destroySongs(ctx, []pin{{keyreg.KeyArtist, *cat.Artist}, {keyreg.KeyAlbum, *cat.Album}}, cb)

	case cat.Kind == objectid.KindMusicArtists && cat.Artist != nil:
		d.destroySongs(ctx, []pin{{keyreg.KeyArtist, *cat.Artist}}, cb)

	default:
		cb(host.ErrDestroyNotAllowed)
	}
}

func (d Deps) destroySongs(ctx context.Context, pins []pin, cb host.DestroyCallback) {
	uris, err := d.songURIs(ctx, pins)
	if err != nil {
		cb(fmt.Errorf("%w: %v", host.ErrDestroyFailed, err))
		return
	}
	var firstErr error
	for _, uri := range uris {
		if err := d.deleteFile(uri); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		cb(fmt.Errorf("%w: %v", host.ErrDestroyFailed, firstErr))
		return
	}
	cb(nil)
}

func (d Deps) songURIs(ctx context.Context, pins []pin) ([]string, error) {
	filterFrag, bindings, err := equalityFilter(pins, keyreg.Music)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT ?u WHERE {%s . %s ?u%s}",
		sparqlb.ServiceClass(keyreg.Music), mustTrackerPredicate(keyreg.KeyURI, keyreg.Music), filterFrag)
	rows, err := d.Session.RunSelect(ctx, stmt, bindings)
	if err != nil {
		return nil, fmt.Errorf("metaops: %w", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			out = append(out, row[0])
		}
	}
	return out, nil
}

func (d Deps) deleteFile(uri string) error {
	return os.Remove(filePathFromURI(uri))
}
