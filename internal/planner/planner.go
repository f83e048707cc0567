// Package planner chooses, for each synthetic-tree category and the
// recursive flag, which query shape to run and how to wire the unique
// grouping, concat, count and sum columns into a result cache. It is the
// single place that knows "browsing /music/artists groups by artist and
// concatenates album", mirroring the dispatch the original indexer-facing
// layer performed per browse branch.
package planner

import (
	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/qcache"
)

// SortField is one parsed token of a host sort-criteria string.
type SortField struct {
	Key  string
	Desc bool
}

// Grouping describes the shape-specific wiring a caller needs to finish
// building the SPARQL statement: which host key was chosen as the unique
// group-by dimension, the concat companion key (if any), and the count/sum
// targets chosen by the parent-of-children rule.
type Grouping struct {
	GroupKey        string
	ConcatKey       string
	CountTarget     string // "*", a host key name, or "" for none
	CountChildcount bool   // true when counting whole rows rather than a distinct sub-dimension
	SumKey          string // keyreg.KeyDuration, or ""
}

// PlanSongs builds the flat Query-shape cache for a songs listing (the
// bottom of every branch: music/songs, music/albums/<album>,
// music/artists/<artist>/<album>, music/genres/.../<album>, and the
// recursive collapse of every higher branch onto "songs with a filter").
func PlanSongs(keys []string) *qcache.Cache {
	c := qcache.New(keyreg.Music, qcache.Query)
	c.Add(keyreg.KeyURI)
	for _, k := range keys {
		c.Add(k)
	}
	return c
}

// PlanVideos builds the flat Query-shape cache for the videos listing.
func PlanVideos(keys []string) *qcache.Cache {
	c := qcache.New(keyreg.Videos, qcache.Query)
	c.Add(keyreg.KeyURI)
	for _, k := range keys {
		c.Add(k)
	}
	return c
}

// PlanUniqueGenres builds the Unique-shape cache listing distinct genres.
// Genre is always the top of the hierarchy, so it takes no narrowing
// parameter; its children are artists, so the count target is ARTIST.
func PlanUniqueGenres(keys []string) (*qcache.Cache, Grouping) {
	c := qcache.New(keyreg.Music, qcache.Unique)
	c.AddGroupColumn(keyreg.KeyGenre)
	c.AddDerived(keyreg.KeyTitle, keyreg.KeyGenre)
	for _, k := range keys {
		c.Add(k)
	}

	g := Grouping{GroupKey: keyreg.KeyGenre, CountTarget: keyreg.KeyArtist}
	if c.HasUserRequested(keyreg.KeyDuration) {
		g.SumKey = keyreg.KeyDuration
	}
	return c, g
}

// PlanUniqueArtists builds the Unique-shape cache listing distinct
// artists, optionally narrowed to one genre. Its children are albums, so
// the count target is ALBUM; when the caller also asked for ALBUM, the
// value is concatenated across the artist's albums.
func PlanUniqueArtists(genre string, keys []string) (*qcache.Cache, Grouping) {
	c := qcache.New(keyreg.Music, qcache.Unique)
	if genre != "" {
		c.AddPrecomputed(keyreg.KeyGenre, genre)
	}
	c.AddGroupColumn(keyreg.KeyArtist)
	c.AddDerived(keyreg.KeyTitle, keyreg.KeyArtist)
	for _, k := range keys {
		c.Add(k)
	}

	g := Grouping{GroupKey: keyreg.KeyArtist, CountTarget: keyreg.KeyAlbum}
	if c.HasUserRequested(keyreg.KeyAlbum) {
		c.AddConcat(keyreg.KeyAlbum)
		g.ConcatKey = keyreg.KeyAlbum
	}
	if c.HasUserRequested(keyreg.KeyDuration) {
		g.SumKey = keyreg.KeyDuration
	}
	return c, g
}

// PlanUniqueAlbums builds the Unique-shape cache listing distinct albums,
// optionally narrowed to a genre and/or artist. Its children are songs, so
// the count target is "*" (every row); when the caller asked for ARTIST
// without pinning one, the value is concatenated across the album's
// contributing artists (compilations).
func PlanUniqueAlbums(genre, artist string, keys []string) (*qcache.Cache, Grouping) {
	c := qcache.New(keyreg.Music, qcache.Unique)
	if genre != "" {
		c.AddPrecomputed(keyreg.KeyGenre, genre)
	}
	if artist != "" {
		c.AddPrecomputed(keyreg.KeyArtist, artist)
	}
	c.AddGroupColumn(keyreg.KeyAlbum)
	c.AddDerived(keyreg.KeyTitle, keyreg.KeyAlbum)
	for _, k := range keys {
		c.Add(k)
	}

	g := Grouping{GroupKey: keyreg.KeyAlbum, CountTarget: "*", CountChildcount: true}
	if artist == "" && c.HasUserRequested(keyreg.KeyArtist) {
		c.AddConcat(keyreg.KeyArtist)
		g.ConcatKey = keyreg.KeyArtist
	}
	if c.HasUserRequested(keyreg.KeyDuration) {
		g.SumKey = keyreg.KeyDuration
	}
	return c, g
}

// DefaultSort returns the fixed sort-key fallback applied when the host
// caller did not specify one: videos sort by title then filename; songs
// under an album sort by track number; every other songs listing sorts by
// title.
func DefaultSort(videos, underAlbum bool) []SortField {
	switch {
	case videos:
		return []SortField{{Key: keyreg.KeyTitle}, {Key: keyreg.KeyFilename}}
	case underAlbum:
		return []SortField{{Key: keyreg.KeyTrack}}
	default:
		return []SortField{{Key: keyreg.KeyTitle}}
	}
}
