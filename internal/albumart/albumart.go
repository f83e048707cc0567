// Package albumart is the concrete, non-opaque implementation of the
// album-art/thumbnail file-system probe: a pure function from (kind,
// input) to an optional file uri, backed by a content-hashed disk cache
// populated ahead of time from embedded audio tags or a folder image.
package albumart

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"
	ximage "golang.org/x/image/draw"

	"github.com/alexander-bruun/localtagfs/internal/qcache"
)

// Size in pixels for each thumbnail size variant. Large matches the
// original implementation's album-art cache dimension; small and medium
// are chosen to match common UI list/grid tile sizes.
var sizePixels = map[qcache.ThumbSize]int{
	qcache.SizeSmall:  64,
	qcache.SizeMedium: 256,
	qcache.SizeLarge:  512,
}

func sizeDirName(size qcache.ThumbSize) string {
	switch size {
	case qcache.SizeSmall:
		return "small"
	case qcache.SizeMedium:
		return "medium"
	case qcache.SizeLarge:
		return "large"
	default:
		return "default"
	}
}

// Prober implements qcache.AlbumArtProber by probing a content-hashed
// disk cache. It never touches the network or the indexer; a cache miss
// simply resolves to absent, matching the "pure function" contract.
type Prober struct {
	albumArtDir  string
	thumbnailDir string
}

// NewProber returns a Prober backed by the two given cache directories.
// Both are created lazily by Generate*; Probe* only reads.
func NewProber(albumArtDir, thumbnailDir string) *Prober {
	return &Prober{albumArtDir: albumArtDir, thumbnailDir: thumbnailDir}
}

// ProbeAlbumArt implements qcache.AlbumArtProber.
func (p *Prober) ProbeAlbumArt(album string) (string, bool) {
	return probeExisting(albumArtCachePath(p.albumArtDir, album))
}

// ProbeThumbnail implements qcache.AlbumArtProber.
func (p *Prober) ProbeThumbnail(size qcache.ThumbSize, sourceURI string) (string, bool) {
	return probeExisting(thumbnailCachePath(p.thumbnailDir, size, sourceURI))
}

func probeExisting(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return pathToFileURI(path), true
}

func albumArtCachePath(dir, album string) string {
	if dir == "" || album == "" {
		return ""
	}
	sum := md5.Sum([]byte(strings.ToLower(album)))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".jpg")
}

func thumbnailCachePath(dir string, size qcache.ThumbSize, sourceURI string) string {
	if dir == "" || sourceURI == "" {
		return ""
	}
	sum := md5.Sum([]byte(sourceURI))
	return filepath.Join(dir, sizeDirName(size), hex.EncodeToString(sum[:])+".jpg")
}

func pathToFileURI(p string) string {
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// GenerateAlbumArt populates the album-art cache entry for album, reading
// the embedded picture from sourcePath's audio tags, falling back to the
// best square image found in sourcePath's directory. It is a no-op
// (returns nil) if neither source yields image data — the browse
// path then simply sees a cache miss.
func (p *Prober) GenerateAlbumArt(sourcePath, album string) error {
	if p.albumArtDir == "" || album == "" {
		return nil
	}
	data, err := embeddedOrFolderArt(sourcePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return writeJPEG(albumArtCachePath(p.albumArtDir, album), data, sizePixels[qcache.SizeLarge])
}

// GenerateThumbnails populates all three thumbnail cache sizes for
// sourcePath, keyed by sourceURI, from the same embedded/folder image
// source as GenerateAlbumArt.
func (p *Prober) GenerateThumbnails(sourcePath, sourceURI string) error {
	if p.thumbnailDir == "" || sourceURI == "" {
		return nil
	}
	data, err := embeddedOrFolderArt(sourcePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	for _, size := range []qcache.ThumbSize{qcache.SizeSmall, qcache.SizeMedium, qcache.SizeLarge} {
		path := thumbnailCachePath(p.thumbnailDir, size, sourceURI)
		if err := writeJPEG(path, data, sizePixels[size]); err != nil {
			return err
		}
	}
	return nil
}

func embeddedOrFolderArt(sourcePath string) ([]byte, error) {
	if data, ok := embeddedPicture(sourcePath); ok {
		return data, nil
	}
	return bestFolderImage(filepath.Dir(sourcePath)), nil
}

func embeddedPicture(sourcePath string) ([]byte, bool) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, false
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, false
	}
	return pic.Data, true
}

// bestFolderImage scans dir for image files and returns the bytes of the
// one closest to square (preferred for album art). Returns nil if none
// found.
func bestFolderImage(dir string) []byte {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var best []byte
	bestDelta := int(^uint(0) >> 1)
	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".jpg") && !strings.HasSuffix(lower, ".jpeg") && !strings.HasSuffix(lower, ".png") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || len(b) == 0 {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			continue
		}
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		if delta := abs(w - h); delta < bestDelta {
			bestDelta = delta
			best = b
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// writeJPEG decodes data, scales it to a square of side px using
// high-quality interpolation, and writes the result to path, creating
// parent directories as needed. The write is atomic: encoded to a
// temp file in the same directory, then renamed into place.
func writeJPEG(path string, data []byte, px int) error {
	if path == "" {
		return nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("albumart: decode source image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, px, px))
	ximage.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("albumart: mkdir cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.jpg")
	if err != nil {
		return fmt.Errorf("albumart: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, dst, &jpeg.Options{Quality: 85}); err != nil {
		tmp.Close()
		return fmt.Errorf("albumart: encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("albumart: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("albumart: rename into place: %w", err)
	}
	return nil
}
