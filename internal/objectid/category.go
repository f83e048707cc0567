package objectid

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a node class in the synthetic browse tree.
type Kind int

const (
	Root Kind = iota
	KindVideos
	KindMusic
	KindMusicSongs
	KindMusicAlbums
	KindMusicArtists
	KindMusicGenres
	KindMusicPlaylists
)

func (k Kind) String() string {
	switch k {
	case Root:
		return "root"
	case KindVideos:
		return "videos"
	case KindMusic:
		return "music"
	case KindMusicSongs:
		return "music/songs"
	case KindMusicAlbums:
		return "music/albums"
	case KindMusicArtists:
		return "music/artists"
	case KindMusicGenres:
		return "music/genres"
	case KindMusicPlaylists:
		return "music/playlists"
	default:
		return "unknown"
	}
}

// Category is a decoded node of the synthetic browse tree. Which pointer
// fields are non-nil is determined entirely by Kind and the segment count
// that produced it (§3's invariant).
type Category struct {
	Kind Kind

	Genre       *string
	Artist      *string
	Album       *string
	PlaylistURI *string
	ClipURI     *string
}

// ErrCategory reports a segment list that does not correspond to any node
// of the synthetic tree (depth violation, or an unrecognised branch name).
var ErrCategory = errors.New("objectid: invalid category")

func eqFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Classify is the table-driven router from decoded segments to a Category.
// Category-name segments ("videos", "music", "songs", ...) are matched
// ASCII case-insensitively; user-supplied value segments (artist, album,
// genre, playlist URI, clip URI) are kept byte-for-byte.
func Classify(segments []string) (Category, error) {
	switch len(segments) {
	case 0:
		return Category{Kind: Root}, nil
	}

	switch {
	case eqFold(segments[0], "videos"):
		return classifyVideos(segments)
	case eqFold(segments[0], "music"):
		return classifyMusic(segments)
	default:
		return Category{}, fmt.Errorf("%w: unknown top-level segment %q", ErrCategory, segments[0])
	}
}

func classifyVideos(segments []string) (Category, error) {
	switch len(segments) {
	case 1:
		return Category{Kind: KindVideos}, nil
	case 2:
		clip := segments[1]
		return Category{Kind: KindVideos, ClipURI: &clip}, nil
	default:
		return Category{}, fmt.Errorf("%w: videos branch depth %d exceeds 2", ErrCategory, len(segments))
	}
}

func classifyMusic(segments []string) (Category, error) {
	if len(segments) == 1 {
		return Category{Kind: KindMusic}, nil
	}
	switch {
	case eqFold(segments[1], "songs"):
		return classifySongs(segments)
	case eqFold(segments[1], "albums"):
		return classifyAlbums(segments)
	case eqFold(segments[1], "artists"):
		return classifyArtists(segments)
	case eqFold(segments[1], "genres"):
		return classifyGenres(segments)
	case eqFold(segments[1], "playlists"):
		return classifyPlaylists(segments)
	default:
		return Category{}, fmt.Errorf("%w: unknown music branch %q", ErrCategory, segments[1])
	}
}

// classifySongs: music/songs[/clip], depth <= 3.
func classifySongs(segments []string) (Category, error) {
	if len(segments) > 3 {
		return Category{}, fmt.Errorf("%w: songs branch depth %d exceeds 3", ErrCategory, len(segments))
	}
	c := Category{Kind: KindMusicSongs}
	if len(segments) == 3 {
		c.ClipURI = &segments[2]
	}
	return c, nil
}

// classifyAlbums: music/albums[/album[/clip]], depth <= 4.
func classifyAlbums(segments []string) (Category, error) {
	if len(segments) > 4 {
		return Category{}, fmt.Errorf("%w: albums branch depth %d exceeds 4", ErrCategory, len(segments))
	}
	c := Category{Kind: KindMusicAlbums}
	if len(segments) >= 3 {
		c.Album = &segments[2]
	}
	if len(segments) == 4 {
		c.ClipURI = &segments[3]
	}
	return c, nil
}

// classifyArtists: music/artists[/artist[/album[/clip]]], depth <= 5.
// album requires artist (enforced by construction: album only set when the
// artist segment is present).
func classifyArtists(segments []string) (Category, error) {
	if len(segments) > 5 {
		return Category{}, fmt.Errorf("%w: artists branch depth %d exceeds 5", ErrCategory, len(segments))
	}
	c := Category{Kind: KindMusicArtists}
	if len(segments) >= 3 {
		c.Artist = &segments[2]
	}
	if len(segments) >= 4 {
		c.Album = &segments[3]
	}
	if len(segments) == 5 {
		c.ClipURI = &segments[4]
	}
	return c, nil
}

// classifyGenres: music/genres[/genre[/artist[/album[/clip]]]], depth <= 6.
// Each deeper level requires the shallower ones (enforced by construction).
func classifyGenres(segments []string) (Category, error) {
	if len(segments) > 6 {
		return Category{}, fmt.Errorf("%w: genres branch depth %d exceeds 6", ErrCategory, len(segments))
	}
	c := Category{Kind: KindMusicGenres}
	if len(segments) >= 3 {
		c.Genre = &segments[2]
	}
	if len(segments) >= 4 {
		c.Artist = &segments[3]
	}
	if len(segments) >= 5 {
		c.Album = &segments[4]
	}
	if len(segments) == 6 {
		c.ClipURI = &segments[5]
	}
	return c, nil
}

// classifyPlaylists: music/playlists[/playlist_uri], depth <= 3.
func classifyPlaylists(segments []string) (Category, error) {
	if len(segments) > 3 {
		return Category{}, fmt.Errorf("%w: playlists branch depth %d exceeds 3", ErrCategory, len(segments))
	}
	c := Category{Kind: KindMusicPlaylists}
	if len(segments) == 3 {
		c.PlaylistURI = &segments[2]
	}
	return c, nil
}

// IsLeaf reports whether the category's last segment is a clip/file URI —
// true for a playable audio or video file, and for a playlist file (whose
// children are its parsed entries, not further named sub-categories).
func IsLeaf(c Category) bool {
	return c.ClipURI != nil || c.PlaylistURI != nil
}
