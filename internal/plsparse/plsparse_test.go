package plsparse

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempPlaylist(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
	return path
}

func TestM3UParsesPlainURIList(t *testing.T) {
	path := writeTempPlaylist(t, "list.m3u", "song1.mp3\nsong2.mp3\n")
	it, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer it.Close()

	var uris []string
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		uris = append(uris, e.URI)
	}
	if len(uris) != 2 || uris[0] != "song1.mp3" || uris[1] != "song2.mp3" {
		t.Fatalf("got %v", uris)
	}
}

func TestM3UParsesExtinfDurationAndTitle(t *testing.T) {
	content := "#EXTM3U\n#EXTINF:215,Artist - Title\nsong1.mp3\n"
	path := writeTempPlaylist(t, "list.m3u", content)
	it, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer it.Close()

	e, ok := it.Next()
	if !ok {
		t.Fatal("expected one entry")
	}
	if e.DurationHint != 215 || e.Title != "Artist - Title" || e.URI != "song1.mp3" {
		t.Fatalf("got %+v", e)
	}
}

func TestM3USkipsCommentsAndBlankLines(t *testing.T) {
	content := "#EXTM3U\n\n# just a comment\nsong1.mp3\n"
	path := writeTempPlaylist(t, "list.m3u", content)
	it, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer it.Close()

	e, ok := it.Next()
	if !ok || e.URI != "song1.mp3" {
		t.Fatalf("got %+v, %v", e, ok)
	}
	if _, ok := it.Next(); ok {
		t.Fatal("expected exactly one entry")
	}
}

func TestPLSParsesFileTitleLength(t *testing.T) {
	content := "[playlist]\nNumberOfEntries=2\nFile1=song1.mp3\nTitle1=First\nLength1=180\nFile2=song2.mp3\nTitle2=Second\nLength2=200\n"
	path := writeTempPlaylist(t, "list.pls", content)
	it, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer it.Close()

	var entries []Entry
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].URI != "song1.mp3" || entries[0].Title != "First" || entries[0].DurationHint != 180 {
		t.Fatalf("got %+v", entries[0])
	}
	if entries[1].URI != "song2.mp3" || entries[1].Title != "Second" || entries[1].DurationHint != 200 {
		t.Fatalf("got %+v", entries[1])
	}
}

func TestLocalDetectsFileSchemeAndAbsolutePath(t *testing.T) {
	cases := []struct {
		uri   string
		local bool
	}{
		{"file:///music/song.mp3", true},
		{"/music/song.mp3", true},
		{"http://example.com/stream.mp3", false},
	}
	for _, c := range cases {
		if got := (Entry{URI: c.uri}).Local(); got != c.local {
			t.Fatalf("Local(%q) = %v, want %v", c.uri, got, c.local)
		}
	}
}

func TestWindowReturnsOnlyRequestedRange(t *testing.T) {
	content := "a.mp3\nb.mp3\nc.mp3\nd.mp3\ne.mp3\n"
	path := writeTempPlaylist(t, "list.m3u", content)

	entries, err := Window(path, 1, 2)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(entries) != 2 || entries[0].URI != "b.mp3" || entries[1].URI != "c.mp3" {
		t.Fatalf("got %+v", entries)
	}
}

func TestWindowPastEndOfFileReturnsShortSlice(t *testing.T) {
	content := "a.mp3\nb.mp3\n"
	path := writeTempPlaylist(t, "list.m3u", content)

	entries, err := Window(path, 1, 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(entries) != 1 || entries[0].URI != "b.mp3" {
		t.Fatalf("got %+v", entries)
	}
}

func TestOpenMissingFileReturnsParseError(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.m3u"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
