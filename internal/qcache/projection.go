package qcache

import (
	"path"
	"strconv"
	"strings"

	"github.com/alexander-bruun/localtagfs/internal/keyreg"
)

// VariousValuesSentinel replaces any output string containing the
// concat-aggregate's reserved '|' separator.
const VariousValuesSentinel = "various"

const concatSeparator = "|"

// ThumbSize is the size variant implied by a thumbnail/album-art key's
// name suffix.
type ThumbSize int

const (
	SizeDefault ThumbSize = iota
	SizeSmall
	SizeMedium
	SizeLarge
)

func thumbSizeForKey(key string) ThumbSize {
	switch {
	case strings.HasSuffix(key, "small-uri"):
		return SizeSmall
	case strings.HasSuffix(key, "medium-uri"):
		return SizeMedium
	case strings.HasSuffix(key, "large-uri"):
		return SizeLarge
	default:
		return SizeDefault
	}
}

// AlbumArtProber is the external file-system probe that turns a value
// already known to the cache (an album name, or a source file uri) into a
// concrete album-art or thumbnail file uri. Its implementation lives
// outside this package; qcache only consumes it.
type AlbumArtProber interface {
	ProbeAlbumArt(album string) (fileURI string, ok bool)
	ProbeThumbnail(size ThumbSize, sourceURI string) (fileURI string, ok bool)
}

// Value is a tagged cell of host metadata: exactly one field is
// meaningful, selected by Type.
type Value struct {
	Type   keyreg.ValueType
	String string
	Int    int64
	Float  float64
	Bool   bool
}

func (v Value) isEmpty() bool {
	switch v.Type {
	case keyreg.TString, keyreg.TDate:
		return v.String == ""
	case keyreg.TInt, keyreg.TLong:
		return v.Int <= 0
	case keyreg.TFloat, keyreg.TDouble:
		return v.Float <= 0
	case keyreg.TBoolean:
		return false
	default:
		return true
	}
}

// Metadata is one projected host-facing object: the subset of requested
// keys whose values were non-empty (or explicitly allowed to be empty).
type Metadata map[string]Value

func stringValue(s string) Value { return Value{Type: keyreg.TString, String: collapseVarious(s)} }

func collapseVarious(s string) string {
	if strings.Contains(s, concatSeparator) {
		return VariousValuesSentinel
	}
	return s
}

func parseColumn(cell string, vt keyreg.ValueType) Value {
	switch vt {
	case keyreg.TInt, keyreg.TLong:
		n, _ := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
		return Value{Type: vt, Int: n}
	case keyreg.TFloat, keyreg.TDouble:
		f, _ := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		return Value{Type: vt, Float: f}
	case keyreg.TBoolean:
		return Value{Type: vt, Bool: cell == "true" || cell == "1"}
	default:
		return stringValue(cell)
	}
}

func pathToFileURI(p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "file://") {
		return p
	}
	return "file://" + p
}

func titleFromFilename(uri string) string {
	base := path.Base(uri)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Project builds the host-facing metadata object for one row, consulting
// prober for album-art/thumbnail keys. prober may be nil if no such keys
// were requested; External slots resolve to absent values in that case.
func (c *Cache) Project(row []string, prober AlbumArtProber) Metadata {
	out := make(Metadata)
	for _, key := range c.order {
		slot := c.slots[key]
		if !slot.UserRequested {
			continue
		}
		v, ok := c.resolve(key, slot, row, prober)
		if !ok {
			continue
		}
		mk, _ := keyreg.LookupMeta(key)
		if v.isEmpty() && !mk.AllowedEmpty {
			continue
		}
		out[key] = v
	}
	return out
}

func (c *Cache) resolve(key string, slot *Slot, row []string, prober AlbumArtProber) (Value, bool) {
	mk, _ := keyreg.LookupMeta(key)

	switch slot.Kind {
	case SlotVoid:
		return Value{}, false

	case SlotPrecomputed:
		if n, err := strconv.ParseInt(slot.Precomputed, 10, 64); err == nil {
			return Value{Type: mk.ValueType, Int: n}, true
		}
		return Value{Type: mk.ValueType, String: slot.Precomputed}, true

	case SlotDerived:
		srcSlot, ok := c.slots[slot.DerivedFrom]
		if !ok {
			return Value{}, false
		}
		return c.resolve(slot.DerivedFrom, srcSlot, row, prober)

	case SlotExternal:
		if prober == nil {
			return Value{}, false
		}
		if slot.External == ExternalAlbumArt {
			album, _ := c.columnString(keyreg.KeyAlbum, row)
			for _, candidate := range strings.Split(album, concatSeparator) {
				if candidate == "" {
					continue
				}
				if uri, found := prober.ProbeAlbumArt(candidate); found {
					return stringValue(uri), true
				}
			}
			return Value{}, false
		}
		source, _ := c.columnString(keyreg.KeyURI, row)
		uri, found := prober.ProbeThumbnail(thumbSizeForKey(key), source)
		if !found {
			return Value{}, false
		}
		return stringValue(uri), true

	case SlotColumn:
		return c.resolveColumn(key, mk, slot, row), true

	default:
		return Value{}, false
	}
}

func (c *Cache) columnString(key string, row []string) (string, bool) {
	slot, ok := c.slots[key]
	if !ok || slot.Kind != SlotColumn || slot.Column >= len(row) {
		return "", false
	}
	return row[slot.Column], true
}

func (c *Cache) resolveColumn(key string, mk keyreg.MetadataKey, slot *Slot, row []string) Value {
	if slot.Column >= len(row) {
		return Value{Type: mk.ValueType}
	}
	cell := row[slot.Column]

	if mk.Special == keyreg.SpecialURI {
		return stringValue(pathToFileURI(cell))
	}

	v := parseColumn(cell, mk.ValueType)

	if mk.Special == keyreg.SpecialTitle && v.String == "" && c.Shape != Unique {
		if uri, ok := c.columnString(keyreg.KeyURI, row); ok && uri != "" {
			v.String = titleFromFilename(uri)
		}
	}

	return v
}

// ProjectAggregate builds a single summary object over every row in the
// cache — used for container nodes (an album, an artist, a playlist)
// where childcount and duration are aggregated across all rows and every
// other requested key is taken from the first row.
func (c *Cache) ProjectAggregate(prober AlbumArtProber, countRowsAsChildcount bool) Metadata {
	out := make(Metadata)
	if len(c.Rows) == 0 {
		return out
	}

	base := c.Project(c.Rows[0], prober)
	for k, v := range base {
		out[k] = v
	}

	if slot, ok := c.slots[keyreg.KeyChildcount]; ok && slot.UserRequested {
		if countRowsAsChildcount {
			out[keyreg.KeyChildcount] = Value{Type: keyreg.TInt, Int: int64(len(c.Rows))}
		} else {
			out[keyreg.KeyChildcount] = Value{Type: keyreg.TInt, Int: c.sumColumn(keyreg.KeyChildcount)}
		}
	}
	if slot, ok := c.slots[keyreg.KeyDuration]; ok && slot.UserRequested {
		out[keyreg.KeyDuration] = Value{Type: keyreg.TInt, Int: c.sumColumn(keyreg.KeyDuration)}
	}

	return out
}

func (c *Cache) sumColumn(key string) int64 {
	slot, ok := c.slots[key]
	if !ok || slot.Kind != SlotColumn {
		return 0
	}
	var total int64
	for _, row := range c.Rows {
		if slot.Column >= len(row) {
			continue
		}
		n, _ := strconv.ParseInt(strings.TrimSpace(row[slot.Column]), 10, 64)
		total += n
	}
	return total
}
