package notify

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/objectid"
)

// RescanMarkerWatcher watches a directory the indexer writes rescan
// markers into after it finishes reprocessing a library branch, and
// turns each detected write into a container-changed signal on a Hub —
// the producer side of §6's "Signals emitted" for container-changed.
// The marker filename (without extension) must equal "music" or
// "videos" to identify which branch changed.
type RescanMarkerWatcher struct {
	hub     *Hub
	watcher *fsnotify.Watcher
}

// NewRescanMarkerWatcher creates a watcher on dir. Callers must call Run
// in its own goroutine and Close when done.
func NewRescanMarkerWatcher(hub *Hub, dir string) (*RescanMarkerWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &RescanMarkerWatcher{hub: hub, watcher: w}, nil
}

// Close stops the underlying fsnotify watcher.
func (w *RescanMarkerWatcher) Close() error {
	return w.watcher.Close()
}

// Run drives the watcher's event loop until ctx is cancelled or the
// watcher is closed.
func (w *RescanMarkerWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.handleMarker(ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("notify: watcher error", "error", err)
		}
	}
}

func (w *RescanMarkerWatcher) handleMarker(path string) string {
	base := markerBranch(path)
	var kind keyreg.ServiceKind
	switch base {
	case "music":
		kind = keyreg.Music
	case "videos":
		kind = keyreg.Videos
	default:
		return ""
	}
	rootID := objectid.Encode([]string{base})
	w.hub.EmitContainerChanged(kind, rootID)
	return rootID
}

func markerBranch(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
