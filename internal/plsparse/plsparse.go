// Package plsparse is the concrete, non-opaque implementation of the
// playlist-file parser: a streaming iterator over playlist entries
// (m3u/m3u8 and pls), so the browse orchestrator never has to hold an
// entire playlist in memory to serve an [offset, offset+count) window.
package plsparse

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrParse is wrapped by any failure while parsing a playlist file; the
// browse orchestrator surfaces it to the host as PlaylistParseFailed.
var ErrParse = fmt.Errorf("plsparse: parse error")

// Entry is one playlist line: a URI (or path) and an optional duration
// hint, when the playlist format carries one (#EXTINF, pls Length).
type Entry struct {
	URI          string
	DurationHint int // seconds, 0 if unknown
	Title        string
}

// Local reports whether e's URI refers to a file already reachable
// locally — a file:// uri or an absolute filesystem path — as opposed to
// a remote stream, per §4.7's local/remote entry split.
func (e Entry) Local() bool {
	return strings.HasPrefix(e.URI, "file://") || filepath.IsAbs(e.URI)
}

// Iterator streams entries one at a time without loading the whole file.
type Iterator struct {
	scanner    *bufio.Scanner
	format     format
	index      int
	pendingURI string // a File= value read while closing out the previous pls record
	closer     io.Closer
}

type format int

const (
	formatM3U format = iota
	formatPLS
)

// Open detects the playlist format from path's extension and returns a
// streaming Iterator over its entries. Callers must call Close.
func Open(path string) (*Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	it := &Iterator{scanner: bufio.NewScanner(f), closer: f}
	if strings.HasSuffix(strings.ToLower(path), ".pls") {
		it.format = formatPLS
	} else {
		it.format = formatM3U
	}
	it.scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	return it, nil
}

// Close releases the underlying file handle.
func (it *Iterator) Close() error {
	return it.closer.Close()
}

// Next returns the next entry, or (Entry{}, false) at end of file. A
// malformed line is skipped rather than aborting the whole playlist,
// since a single bad line is not cause to fail the entire parse.
func (it *Iterator) Next() (Entry, bool) {
	if it.format == formatPLS {
		return it.nextPLS()
	}
	return it.nextM3U()
}

func (it *Iterator) nextM3U() (Entry, bool) {
	var title string
	var durationHint int
	for it.scanner.Scan() {
		line := strings.TrimSpace(it.scanner.Text())
		if line == "" || line == "#EXTM3U" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			durationHint, title = parseExtinf(line)
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		it.index++
		return Entry{URI: line, DurationHint: durationHint, Title: title}, true
	}
	return Entry{}, false
}

func parseExtinf(line string) (int, string) {
	rest := strings.TrimPrefix(line, "#EXTINF:")
	parts := strings.SplitN(rest, ",", 2)
	secs, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
	title := ""
	if len(parts) == 2 {
		title = strings.TrimSpace(parts[1])
	}
	if secs < 0 {
		secs = 0
	}
	return secs, title
}

// nextPLS parses the "FileN=", "TitleN=", "LengthN=" triplets the pls
// format scatters across the file, by buffering one record's lines until
// the next File= line starts a new one or EOF is reached. Only the
// just-seen File= value is carried across calls, so memory use stays
// proportional to one record regardless of playlist length.
func (it *Iterator) nextPLS() (Entry, bool) {
	var cur Entry
	haveFile := false
	if it.pendingURI != "" {
		cur.URI = it.pendingURI
		it.pendingURI = ""
		haveFile = true
	}
	for it.scanner.Scan() {
		line := strings.TrimSpace(it.scanner.Text())
		switch {
		case strings.HasPrefix(line, "File"):
			val := valueAfterEquals(line)
			if !haveFile {
				cur.URI = val
				haveFile = true
				continue
			}
			it.pendingURI = val
			it.index++
			return cur, true
		case strings.HasPrefix(line, "Title"):
			cur.Title = valueAfterEquals(line)
		case strings.HasPrefix(line, "Length"):
			n, _ := strconv.Atoi(valueAfterEquals(line))
			if n > 0 {
				cur.DurationHint = n
			}
		}
	}
	if !haveFile {
		return Entry{}, false
	}
	it.index++
	return cur, true
}

func valueAfterEquals(line string) string {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

// Window collects entries with index in [offset, offset+count), closing
// the iterator once the window (or EOF) is reached. It never buffers the
// whole file — it stops reading as soon as the window is satisfied.
func Window(path string, offset, count int) ([]Entry, error) {
	it, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Entry
	i := 0
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if i >= offset && i < offset+count {
			out = append(out, e)
		}
		i++
		if i >= offset+count {
			break
		}
	}
	return out, nil
}
