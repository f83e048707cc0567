// Package host defines the adapter's boundary with the media-framework
// host: the callback shapes every operation invokes results through, the
// signal-emitter contract (satisfied structurally by internal/notify.Hub),
// and the error taxonomy §7 requires callbacks to surface. The host's own
// plugin ABI and signal bus are external collaborators and are not
// implemented here.
package host

import (
	"errors"

	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/qcache"
)

// BrowseID identifies one in-flight browse request.
type BrowseID uint64

// InvalidBrowseID is returned by Browse when the request was rejected
// before a BrowseID could be allocated (e.g. a malformed object-id).
const InvalidBrowseID BrowseID = 0

// Error taxonomy surfaced to callbacks, per spec.md §6/§7.
var (
	ErrInvalidObjectID        = errors.New("host: invalid object id")
	ErrUnknownBrowseID        = errors.New("host: unknown browse id")
	ErrUnsupportedMetadataKey = errors.New("host: unsupported metadata key")
	ErrPlaylistParseFailed    = errors.New("host: playlist parse failed")
	ErrDestroyFailed          = errors.New("host: destroy failed")
	ErrDestroyNotAllowed      = errors.New("host: destroy not allowed on this object")
)

// BrowseResult is one emitted tick of a browse operation: the index
// within the requested window, the count of entries still to come, the
// object's full id, and its projected metadata. Err is set instead of
// ObjectID/Metadata on the single terminal-failure emission (e.g.
// InvalidObjectId); a BrowseResult with Err set is always the last and
// only emission for that browse.
type BrowseResult struct {
	Index     int
	Remaining int
	ObjectID  string
	Metadata  qcache.Metadata
	Err       error
}

// BrowseCallback receives one BrowseResult per emitted tick.
type BrowseCallback func(BrowseResult)

// MetadataCallback receives the id → metadata map built by get_metadata,
// or a non-nil error if the whole operation failed outright (as opposed
// to individual unsupported keys, which are simply absent from the
// returned metadata).
type MetadataCallback func(map[string]qcache.Metadata, error)

// SetMetadataCallback receives the list of keys that could not be
// written (unsupported, non-writable, or a failed atomic update reports
// every submitted key), and a non-nil error only for a rejected id
// (non-leaf) or total transport failure.
type SetMetadataCallback func(failedKeys []string, err error)

// DestroyCallback receives the single outcome of a destroy_object call.
type DestroyCallback func(err error)

// Emitter is the signal-bus contract; internal/notify.Hub satisfies it
// structurally without needing to import this package.
type Emitter interface {
	EmitContainerChanged(kind keyreg.ServiceKind, rootObjectID string)
	EmitMetadataChanged(objectID string)
}
