package metaops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alexander-bruun/localtagfs/internal/host"
	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/objectid"
	"github.com/alexander-bruun/localtagfs/internal/qcache"
	"github.com/alexander-bruun/localtagfs/internal/sparqlb"
)

type stubSession struct {
	selectFn func(stmt string, bindings []sparqlb.Binding) ([][]string, error)
	updateFn func(stmt string) error
	updates  []string
}

func (s *stubSession) RunSelect(_ context.Context, stmt string, bindings []sparqlb.Binding) ([][]string, error) {
	return s.selectFn(stmt, bindings)
}

func (s *stubSession) RunUpdate(_ context.Context, stmt string) error {
	s.updates = append(s.updates, stmt)
	if s.updateFn != nil {
		return s.updateFn(stmt)
	}
	return nil
}

func songID(uri string) string {
	return objectid.Encode([]string{"music", "songs", uri})
}

func TestGetMetadataLeafBatchProjectsRow(t *testing.T) {
	sess := &stubSession{selectFn: func(stmt string, _ []sparqlb.Binding) ([][]string, error) {
		return [][]string{{"/music/a.mp3", "A Song", "An Artist"}}, nil
	}}
	d := Deps{Session: sess}

	id := songID("/music/a.mp3")
	var got map[string]qcache.Metadata
	d.GetMetadata(context.Background(), []string{id}, []string{keyreg.KeyTitle, keyreg.KeyArtist}, func(m map[string]qcache.Metadata, err error) {
		got, _ = m, err
	})

	meta, ok := got[id]
	if !ok {
		t.Fatalf("expected metadata for %q, got %v", id, got)
	}
	if meta[keyreg.KeyTitle].String != "A Song" || meta[keyreg.KeyArtist].String != "An Artist" {
		t.Fatalf("got %+v", meta)
	}
}

func TestGetMetadataInvalidIDAborts(t *testing.T) {
	sess := &stubSession{selectFn: func(string, []sparqlb.Binding) ([][]string, error) {
		t.Fatal("should not query the indexer for a malformed id")
		return nil, nil
	}}
	d := Deps{Session: sess}

	var gotErr error
	d.GetMetadata(context.Background(), []string{"not-a-valid-id"}, []string{keyreg.KeyTitle}, func(_ map[string]qcache.Metadata, err error) {
		gotErr = err
	})
	if gotErr == nil {
		t.Fatal("expected an error for a malformed object id")
	}
}

func TestGetMetadataRootAggregatesChildcountAndDuration(t *testing.T) {
	sess := &stubSession{selectFn: func(stmt string, _ []sparqlb.Binding) ([][]string, error) {
		if strings.Contains(stmt, "nmm:MusicPiece") {
			return [][]string{{"9000"}}, nil
		}
		return [][]string{{"500"}}, nil
	}}
	d := Deps{Session: sess}

	rootID := objectid.Encode(nil)
	var got map[string]qcache.Metadata
	d.GetMetadata(context.Background(), []string{rootID}, []string{keyreg.KeyMIME, keyreg.KeyTitle, keyreg.KeyChildcount, keyreg.KeyDuration}, func(m map[string]qcache.Metadata, err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = m
	})

	meta := got[rootID]
	if meta[keyreg.KeyTitle].String != "Root" {
		t.Fatalf("got title %+v", meta[keyreg.KeyTitle])
	}
	if meta[keyreg.KeyChildcount].Int != 2 {
		t.Fatalf("got childcount %+v", meta[keyreg.KeyChildcount])
	}
	if meta[keyreg.KeyDuration].Int != 9500 {
		t.Fatalf("got duration %+v", meta[keyreg.KeyDuration])
	}
}

func TestGetMetadataArtistContainerCountsDistinctAlbums(t *testing.T) {
	sess := &stubSession{selectFn: func(stmt string, _ []sparqlb.Binding) ([][]string, error) {
		if strings.Contains(stmt, "COUNT(DISTINCT") {
			return [][]string{{"3"}}, nil
		}
		return [][]string{{"0"}}, nil
	}}
	d := Deps{Session: sess}

	id := objectid.Encode([]string{"music", "artists", "Radiohead"})
	var got map[string]qcache.Metadata
	d.GetMetadata(context.Background(), []string{id}, []string{keyreg.KeyTitle, keyreg.KeyChildcount}, func(m map[string]qcache.Metadata, err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = m
	})

	meta := got[id]
	if meta[keyreg.KeyTitle].String != "Radiohead" {
		t.Fatalf("got title %+v", meta[keyreg.KeyTitle])
	}
	if meta[keyreg.KeyChildcount].Int != 3 {
		t.Fatalf("got childcount %+v", meta[keyreg.KeyChildcount])
	}
}

func TestGetMetadataPlaylistRecomputesStaleDuration(t *testing.T) {
	dir := t.TempDir()
	playlistPath := filepath.Join(dir, "mix.m3u")
	if err := os.WriteFile(playlistPath, []byte("#EXTM3U\n#EXTINF:100,Song A\na.mp3\n#EXTINF:150,Song B\nb.mp3\n"), 0o644); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
	playlistURI := "file://" + playlistPath

	sess := &stubSession{selectFn: func(stmt string, _ []sparqlb.Binding) ([][]string, error) {
		return [][]string{{playlistURI, "0", "false"}}, nil
	}}
	d := Deps{Session: sess}

	id := objectid.Encode([]string{"music", "playlists", playlistURI})
	var got map[string]qcache.Metadata
	d.GetMetadata(context.Background(), []string{id}, []string{keyreg.KeyDuration}, func(m map[string]qcache.Metadata, err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = m
	})

	meta := got[id]
	if meta[keyreg.KeyDuration].Int != 250 {
		t.Fatalf("expected recomputed duration 250, got %+v", meta[keyreg.KeyDuration])
	}
	found := false
	for _, u := range sess.updates {
		if strings.Contains(u, "listDuration") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a duration write-back update")
	}
}

func TestGetMetadataPlaylistKeepsNonzeroStoredDuration(t *testing.T) {
	dir := t.TempDir()
	playlistPath := filepath.Join(dir, "mix.m3u")
	if err := os.WriteFile(playlistPath, []byte("#EXTM3U\n#EXTINF:100,Song A\na.mp3\n#EXTINF:150,Song B\nb.mp3\n"), 0o644); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
	playlistURI := "file://" + playlistPath

	sess := &stubSession{selectFn: func(stmt string, _ []sparqlb.Binding) ([][]string, error) {
		return [][]string{{playlistURI, "150", "false"}}, nil
	}}
	d := Deps{Session: sess}

	id := objectid.Encode([]string{"music", "playlists", playlistURI})
	var got map[string]qcache.Metadata
	d.GetMetadata(context.Background(), []string{id}, []string{keyreg.KeyDuration}, func(m map[string]qcache.Metadata, err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = m
	})

	meta := got[id]
	if meta[keyreg.KeyDuration].Int != 150 {
		t.Fatalf("expected stored duration 150 preserved, got %+v", meta[keyreg.KeyDuration])
	}
	for _, u := range sess.updates {
		if strings.Contains(u, "listDuration") {
			t.Fatalf("unexpected duration write-back update: %q", u)
		}
	}
}

func TestSetMetadataSucceedsAndEmitsSignal(t *testing.T) {
	sess := &stubSession{selectFn: func(string, []sparqlb.Binding) ([][]string, error) { return nil, nil }}
	emitter := &recordingEmitter{}
	d := Deps{Session: sess, Emitter: emitter}

	id := songID("/music/a.mp3")
	var failed []string
	var cbErr error
	d.SetMetadata(context.Background(), id, map[string]qcache.Value{
		keyreg.KeyLastPlayed: {Type: keyreg.TLong, Int: 1700000000},
		keyreg.KeyPlayCount:  {Type: keyreg.TInt, Int: 1},
	}, func(f []string, err error) {
		failed, cbErr = f, err
	})

	if cbErr != nil || len(failed) != 0 {
		t.Fatalf("expected success, got failed=%v err=%v", failed, cbErr)
	}
	if emitter.metadataChanged != id {
		t.Fatalf("expected metadata-changed signal for %q, got %q", id, emitter.metadataChanged)
	}
	if len(sess.updates) != 1 || !strings.Contains(sess.updates[0], "2023-11-14") {
		t.Fatalf("expected ISO-8601 last-played in update, got %v", sess.updates)
	}
}

func TestSetMetadataUnsupportedKeyIsReported(t *testing.T) {
	sess := &stubSession{selectFn: func(string, []sparqlb.Binding) ([][]string, error) { return nil, nil }}
	d := Deps{Session: sess}

	id := songID("/music/a.mp3")
	var failed []string
	var cbErr error
	d.SetMetadata(context.Background(), id, map[string]qcache.Value{
		keyreg.KeyArtist: {Type: keyreg.TString, String: "X"},
	}, func(f []string, err error) {
		failed, cbErr = f, err
	})

	if cbErr != host.ErrUnsupportedMetadataKey {
		t.Fatalf("expected ErrUnsupportedMetadataKey, got %v", cbErr)
	}
	if len(failed) != 1 || failed[0] != keyreg.KeyArtist {
		t.Fatalf("got failed=%v", failed)
	}
	if len(sess.updates) != 0 {
		t.Fatal("expected no indexer update when every key is unwritable")
	}
}

func TestSetMetadataRejectsNonLeafID(t *testing.T) {
	sess := &stubSession{}
	d := Deps{Session: sess}

	id := objectid.Encode([]string{"music", "artists"})
	var cbErr error
	d.SetMetadata(context.Background(), id, map[string]qcache.Value{
		keyreg.KeyLastPlayed: {Type: keyreg.TLong, Int: 1},
	}, func(_ []string, err error) { cbErr = err })

	if cbErr != host.ErrInvalidObjectID {
		t.Fatalf("expected ErrInvalidObjectID, got %v", cbErr)
	}
}

func TestDestroyClipDeletesSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d := Deps{Session: &stubSession{}}
	id := songID(path)
	var cbErr error
	d.Destroy(context.Background(), id, func(err error) { cbErr = err })
	if cbErr != nil {
		t.Fatalf("unexpected error: %v", cbErr)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file to be removed")
	}
}

func TestDestroyArtistDeletesEverySongReturned(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		paths = append(paths, p)
	}

	sess := &stubSession{selectFn: func(string, []sparqlb.Binding) ([][]string, error) {
		return [][]string{{paths[0]}, {paths[1]}, {paths[2]}}, nil
	}}
	d := Deps{Session: sess}

	id := objectid.Encode([]string{"music", "artists", "Radiohead"})
	var cbErr error
	d.Destroy(context.Background(), id, func(err error) { cbErr = err })
	if cbErr != nil {
		t.Fatalf("unexpected error: %v", cbErr)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %q to be removed", p)
		}
	}
}

func TestDestroyRejectsUnpinnedCategory(t *testing.T) {
	d := Deps{Session: &stubSession{}}
	id := objectid.Encode([]string{"music", "songs"})
	var cbErr error
	d.Destroy(context.Background(), id, func(err error) { cbErr = err })
	if cbErr != host.ErrDestroyNotAllowed {
		t.Fatalf("expected ErrDestroyNotAllowed, got %v", cbErr)
	}
}

type recordingEmitter struct {
	metadataChanged  string
	containerChanged string
}

func (r *recordingEmitter) EmitContainerChanged(_ keyreg.ServiceKind, rootObjectID string) {
	r.containerChanged = rootObjectID
}

func (r *recordingEmitter) EmitMetadataChanged(objectID string) {
	r.metadataChanged = objectID
}
