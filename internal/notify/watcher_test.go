package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRescanMarkerWatcherEmitsContainerChangedOnWrite(t *testing.T) {
	dir := t.TempDir()
	// The hub's own Run loop is intentionally not started here: leaving
	// its broadcast channel unconsumed lets this test read the enqueued
	// signal directly without racing Run's select against t's own read.
	h := NewHub()

	w, err := NewRescanMarkerWatcher(h, dir)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	marker := filepath.Join(dir, "music.marker")
	if err := os.WriteFile(marker, []byte("1"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	select {
	case sig := <-h.broadcast:
		if sig.Kind != ContainerChanged {
			t.Fatalf("got %+v", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for container-changed signal")
	}
}

func TestMarkerBranchIgnoresUnknownNames(t *testing.T) {
	w := &RescanMarkerWatcher{hub: NewHub()}
	if got := w.handleMarker("/tmp/playlists.marker"); got != "" {
		t.Fatalf("expected unknown branch to be ignored, got %q", got)
	}
}
