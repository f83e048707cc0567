package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/alexander-bruun/localtagfs/internal/host"
	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/objectid"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it, mirroring the teacher's own style of testing
// CLI output by capturing the real stream rather than threading an
// io.Writer through every command.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = orig

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String(), runErr
}

func TestRunBrowseEmitsDemoSong(t *testing.T) {
	flagObjectID = objectid.Encode([]string{"music", "songs"})
	flagRecursive = false
	flagOffset = 0
	flagCount = 0
	flagKeys = []string{keyreg.KeyTitle}

	out, err := captureStdout(t, func() error { return runBrowse(browseCmd, nil) })
	if err != nil {
		t.Fatalf("runBrowse: %v", err)
	}

	var ticks []host.BrowseResult
	if err := json.Unmarshal([]byte(out), &ticks); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !bytes.Contains([]byte(out), []byte("Demo Song")) {
		t.Fatalf("expected the demo song in %q", out)
	}
}

func TestRunGetReturnsMetadataMap(t *testing.T) {
	flagObjectID = demoLeafID
	flagKeys = []string{keyreg.KeyTitle}

	out, err := captureStdout(t, func() error { return runGet(getCmd, nil) })
	if err != nil {
		t.Fatalf("runGet: %v", err)
	}
	var result map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func TestRunSetRejectsNonLeafObjectID(t *testing.T) {
	flagObjectID = objectid.Encode([]string{"music"})
	flagSetValue = "Whatever"

	if err := runSet(setCmd, nil); err == nil {
		t.Fatal("expected an error setting metadata on a non-leaf object id")
	}
}

func TestRunDestroyRejectsUnpinnedCategory(t *testing.T) {
	flagObjectID = objectid.Encode([]string{"music", "songs"})

	if err := runDestroy(destroyCmd, nil); err == nil {
		t.Fatal("expected an error destroying an unpinned category")
	}
}
