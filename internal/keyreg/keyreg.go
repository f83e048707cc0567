// Package keyreg holds the static, process-wide bidirectional dictionary
// relating host metadata keys to indexer predicates, value types,
// writability, dependencies, and special-case behaviour. It is the single
// source of truth consulted by the query planner, the SPARQL builder, and
// the result cache's projection engine.
package keyreg

import "sync"

// ServiceKind partitions the index by content class; it selects which
// sub-table of the tracker-key mapping applies.
type ServiceKind int

const (
	Music ServiceKind = iota
	Videos
	Playlists
	Common
)

// ValueType is the declared wire type of a key's value.
type ValueType int

const (
	TString ValueType = iota
	TInt
	TLong
	TFloat
	TDouble
	TBoolean
	TDate
)

// Special flags a handful of keys whose projection needs behaviour beyond
// "look up the column and parse it".
type Special int

const (
	SpecialNone Special = iota
	SpecialTitle
	SpecialMime
	SpecialDuration
	SpecialURI
	SpecialChildcount
)

// SlotKind distinguishes the two external-thumbnailer key families from
// ordinary registry entries.
type SlotKind int

const (
	KindNormal SlotKind = iota
	KindAlbumArt
	KindThumbnail
)

// Well-known host key names, matching the MAFW metadata key constants this
// adapter's predecessor exposed.
const (
	KeyURI               = "uri"
	KeyMIME              = "mime-type"
	KeyTitle              = "title"
	KeyDuration           = "duration"
	KeyArtist             = "artist"
	KeyAlbum              = "album"
	KeyGenre              = "genre"
	KeyTrack              = "track-number"
	KeyYear               = "year"
	KeyBitrate            = "bitrate"
	KeyPlayCount          = "play-count"
	KeyLastPlayed         = "last-played"
	KeyChildcount         = "childcount"
	KeyCopyright          = "copyright"
	KeyFilesize           = "file-size"
	KeyFilename           = "filename"
	KeyAdded              = "added"
	KeyVideoFramerate     = "video-framerate"
	KeyPausedThumbnailURI = "paused-thumbnail-uri"
	KeyPausedPosition     = "paused-position"
	KeyVideoSource        = "video-source"
	KeyResX               = "res-x"
	KeyResY               = "res-y"
	KeyAlbumArtURI        = "album-art-uri"
	KeyAlbumArtSmallURI   = "album-art-small-uri"
	KeyAlbumArtMediumURI  = "album-art-medium-uri"
	KeyAlbumArtLargeURI   = "album-art-large-uri"
	KeyThumbnailURI       = "thumbnail-uri"
	KeyThumbnailSmallURI  = "thumbnail-small-uri"
	KeyThumbnailMediumURI = "thumbnail-medium-uri"
	KeyThumbnailLargeURI  = "thumbnail-large-uri"

	// KeyValidDuration is private: never a user-requested key, only ever
	// added by the browse and metadata orchestrators to drive
	// playlist-duration memoisation.
	KeyValidDuration = "x-valid-duration"
)

// MetadataKey is the universal, service-independent attribute set for a
// host key: its value type, writability, emptiness rule, special
// projection behaviour, thumbnailer kind, and dependency.
type MetadataKey struct {
	Key          string
	ValueType    ValueType
	Writable     bool
	AllowedEmpty bool
	Special      Special
	Kind         SlotKind
	DependsOn    string // "" means no dependency
}

// TrackerKey is a per-service mapping from host key to the SPARQL predicate
// phrase used to reach it from the row variable "?o".
type TrackerKey struct {
	PredicateText string
	ValueType     ValueType
}

type registry struct {
	music     map[string]TrackerKey
	videos    map[string]TrackerKey
	playlists map[string]TrackerKey
	common    map[string]TrackerKey
	meta      map[string]MetadataKey
}

var (
	once sync.Once
	reg  *registry
)

// get returns the process-wide registry, building it exactly once. Safe
// for concurrent callers; the registry is read-only after construction.
func get() *registry {
	once.Do(func() {
		reg = build()
	})
	return reg
}

func build() *registry {
	r := &registry{
		music:     map[string]TrackerKey{},
		videos:    map[string]TrackerKey{},
		playlists: map[string]TrackerKey{},
		common:    map[string]TrackerKey{},
		meta:      map[string]MetadataKey{},
	}

	// --- Music service tracker keys ---
	r.music[KeyTitle] = TrackerKey{"?o nie:title", TString}
	r.music[KeyDuration] = TrackerKey{"?o nfo:duration", TInt}
	r.music[KeyArtist] = TrackerKey{"?o nmm:performer/nmm:artistName", TString}
	r.music[KeyAlbum] = TrackerKey{"?o nmm:musicAlbum/nie:title", TString}
	r.music[KeyGenre] = TrackerKey{"?o nfo:genre", TString}
	r.music[KeyTrack] = TrackerKey{"?o nmm:trackNumber", TInt}
	r.music[KeyYear] = TrackerKey{"?o nie:contentCreated", TDate}
	r.music[KeyBitrate] = TrackerKey{"?o nfo:averageBitrate", TDouble}
	r.music[KeyLastPlayed] = TrackerKey{"?o nie:contentAccessed", TDate}
	r.music[KeyPlayCount] = TrackerKey{"?o nie:usageCounter", TInt}

	// --- Videos service tracker keys ---
	r.videos[KeyTitle] = TrackerKey{"?o nie:title", TString}
	r.videos[KeyDuration] = TrackerKey{"?o nfo:duration", TInt}
	r.videos[KeyVideoFramerate] = TrackerKey{"?o nfo:frameRate", TDouble}

	// --- Playlists service tracker keys ---
	r.playlists[KeyDuration] = TrackerKey{"?o nfo:listDuration", TInt}
	r.playlists[KeyChildcount] = TrackerKey{"?o nfo:entryCounter", TInt}
	r.playlists[KeyValidDuration] = TrackerKey{"?o nfo:listDuration", TBoolean}

	// --- Common tracker keys (fallback for every service) ---
	r.common[KeyPausedThumbnailURI] = TrackerKey{"?o nfo:depiction", TString}
	r.common[KeyPausedPosition] = TrackerKey{"?o nfo:lastPlayedPosition", TInt}
	r.common[KeyVideoSource] = TrackerKey{"?o nfo:equipment/nfo:model", TString}
	r.common[KeyResX] = TrackerKey{"?o nfo:width", TInt}
	r.common[KeyResY] = TrackerKey{"?o nfo:height", TInt}
	r.common[KeyCopyright] = TrackerKey{"?o nie:copyright", TString}
	r.common[KeyFilesize] = TrackerKey{"?o nfo:fileSize", TInt}
	r.common[KeyFilename] = TrackerKey{"?o nfo:fileName", TString}
	r.common[KeyMIME] = TrackerKey{"?o nie:mimeType", TString}
	r.common[KeyAdded] = TrackerKey{"?o tracker:added", TDate}
	r.common[KeyURI] = TrackerKey{"?o nie:url", TString}

	// --- Universal metadata attributes ---
	r.meta[KeyChildcount] = MetadataKey{Key: KeyChildcount, ValueType: TInt, AllowedEmpty: true, Special: SpecialChildcount}
	r.meta[KeyVideoFramerate] = MetadataKey{Key: KeyVideoFramerate, ValueType: TFloat}
	r.meta[KeyCopyright] = MetadataKey{Key: KeyCopyright, ValueType: TString}
	r.meta[KeyFilesize] = MetadataKey{Key: KeyFilesize, ValueType: TInt}
	r.meta[KeyFilename] = MetadataKey{Key: KeyFilename, ValueType: TString}
	r.meta[KeyTitle] = MetadataKey{Key: KeyTitle, ValueType: TString, AllowedEmpty: true, Special: SpecialTitle}
	r.meta[KeyDuration] = MetadataKey{Key: KeyDuration, ValueType: TInt, Special: SpecialDuration}
	r.meta[KeyMIME] = MetadataKey{Key: KeyMIME, ValueType: TString, Special: SpecialMime}
	r.meta[KeyArtist] = MetadataKey{Key: KeyArtist, ValueType: TString}
	r.meta[KeyAlbum] = MetadataKey{Key: KeyAlbum, ValueType: TString}
	r.meta[KeyGenre] = MetadataKey{Key: KeyGenre, ValueType: TString}
	r.meta[KeyTrack] = MetadataKey{Key: KeyTrack, ValueType: TInt}
	r.meta[KeyYear] = MetadataKey{Key: KeyYear, ValueType: TInt}
	r.meta[KeyBitrate] = MetadataKey{Key: KeyBitrate, ValueType: TInt}
	r.meta[KeyURI] = MetadataKey{Key: KeyURI, ValueType: TString, Special: SpecialURI}
	r.meta[KeyLastPlayed] = MetadataKey{Key: KeyLastPlayed, ValueType: TLong, Writable: true}
	r.meta[KeyPlayCount] = MetadataKey{Key: KeyPlayCount, ValueType: TInt, Writable: true, AllowedEmpty: true}
	r.meta[KeyAdded] = MetadataKey{Key: KeyAdded, ValueType: TLong}
	r.meta[KeyPausedThumbnailURI] = MetadataKey{Key: KeyPausedThumbnailURI, ValueType: TString, Writable: true}
	r.meta[KeyPausedPosition] = MetadataKey{Key: KeyPausedPosition, ValueType: TInt, Writable: true}
	r.meta[KeyVideoSource] = MetadataKey{Key: KeyVideoSource, ValueType: TString}
	r.meta[KeyResX] = MetadataKey{Key: KeyResX, ValueType: TInt}
	r.meta[KeyResY] = MetadataKey{Key: KeyResY, ValueType: TInt}
	r.meta[KeyValidDuration] = MetadataKey{Key: KeyValidDuration, ValueType: TBoolean}

	r.meta[KeyAlbumArtSmallURI] = MetadataKey{Key: KeyAlbumArtSmallURI, ValueType: TString, Kind: KindAlbumArt, DependsOn: KeyAlbumArtURI}
	r.meta[KeyAlbumArtMediumURI] = MetadataKey{Key: KeyAlbumArtMediumURI, ValueType: TString, Kind: KindAlbumArt, DependsOn: KeyAlbumArtURI}
	r.meta[KeyAlbumArtLargeURI] = MetadataKey{Key: KeyAlbumArtLargeURI, ValueType: TString, Kind: KindAlbumArt, DependsOn: KeyAlbumArtURI}
	r.meta[KeyAlbumArtURI] = MetadataKey{Key: KeyAlbumArtURI, ValueType: TString, Kind: KindAlbumArt, DependsOn: KeyAlbum}

	r.meta[KeyThumbnailSmallURI] = MetadataKey{Key: KeyThumbnailSmallURI, ValueType: TString, Kind: KindThumbnail, DependsOn: KeyURI}
	r.meta[KeyThumbnailMediumURI] = MetadataKey{Key: KeyThumbnailMediumURI, ValueType: TString, Kind: KindThumbnail, DependsOn: KeyURI}
	r.meta[KeyThumbnailLargeURI] = MetadataKey{Key: KeyThumbnailLargeURI, ValueType: TString, Kind: KindThumbnail, DependsOn: KeyURI}
	r.meta[KeyThumbnailURI] = MetadataKey{Key: KeyThumbnailURI, ValueType: TString, Kind: KindThumbnail, DependsOn: KeyURI}

	return r
}

func tableFor(s ServiceKind, r *registry) map[string]TrackerKey {
	switch s {
	case Music:
		return r.music
	case Videos:
		return r.videos
	case Playlists:
		return r.playlists
	default:
		return r.common
	}
}

// LookupTracker searches the service's sub-table, falling back to Common.
func LookupTracker(hostKey string, service ServiceKind) (TrackerKey, bool) {
	r := get()
	if tk, ok := tableFor(service, r)[hostKey]; ok {
		return tk, true
	}
	if service != Common {
		if tk, ok := r.common[hostKey]; ok {
			return tk, true
		}
	}
	return TrackerKey{}, false
}

// LookupMeta returns the universal attributes for a host key, or false if
// the key is unknown to the registry (callers filter unknown keys out of
// queries rather than erroring).
func LookupMeta(hostKey string) (MetadataKey, bool) {
	mk, ok := get().meta[hostKey]
	return mk, ok
}

// IsSupported reports whether any service sub-table (or Common) maps the
// given host key to a tracker predicate.
func IsSupported(hostKey string) bool {
	r := get()
	if _, ok := r.common[hostKey]; ok {
		return true
	}
	if _, ok := r.music[hostKey]; ok {
		return true
	}
	if _, ok := r.videos[hostKey]; ok {
		return true
	}
	if _, ok := r.playlists[hostKey]; ok {
		return true
	}
	return false
}

// IsWritable reports whether the host key's universal attributes mark it
// writable; unknown keys are not writable.
func IsWritable(hostKey string) bool {
	mk, ok := LookupMeta(hostKey)
	return ok && mk.Writable
}

// AllKeys returns every host key the registry knows about, for substituting
// the host's "all known keys" browse/get_metadata sentinel.
func AllKeys() []string {
	r := get()
	keys := make([]string, 0, len(r.meta))
	for k := range r.meta {
		if k == KeyValidDuration {
			continue // private, never user-requestable
		}
		keys = append(keys, k)
	}
	return keys
}
