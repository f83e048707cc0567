// Package qcache implements the per-request result cache and projection
// engine: the set of requested host keys with their resolved storage
// strategy (precomputed / indexer column / derived / external probe /
// void), the raw row array the indexer fills in, and the step that turns
// rows plus slot definitions into host-facing metadata objects.
package qcache

import (
	"github.com/alexander-bruun/localtagfs/internal/keyreg"
)

// Shape distinguishes the three statement families a cache may back.
type Shape int

const (
	Query Shape = iota
	Unique
	GetMetadata
)

// SlotKind tags how a cached key's value is ultimately obtained.
type SlotKind int

const (
	SlotColumn SlotKind = iota
	SlotPrecomputed
	SlotDerived
	SlotExternal
	SlotVoid
)

// ExternalKind distinguishes the two external-thumbnailer probe families.
type ExternalKind int

const (
	ExternalAlbumArt ExternalKind = iota
	ExternalThumbnail
)

// Aggregate names the SQL-side aggregate, if any, a Column slot carries.
type Aggregate int

const (
	AggNone Aggregate = iota
	AggConcat
	AggCount
	AggSum
)

// Slot is one cached key's resolved storage strategy.
type Slot struct {
	Kind          SlotKind
	UserRequested bool

	Column    int       // SlotColumn
	Aggregate Aggregate // SlotColumn

	Precomputed string // SlotPrecomputed

	DerivedFrom string // SlotDerived

	External ExternalKind // SlotExternal
}

// containerMIME is the fixed MIME value synthesised for container nodes
// and unique-grouped rows, which never have a single backing file.
const containerMIME = "x-mafw/container"

// Cache is the per-request key table plus the raw rows the indexer fills
// in. One Cache is built during planning, populated by the indexer
// callback, consumed once by Project or ProjectAggregate, then discarded.
type Cache struct {
	Service keyreg.ServiceKind
	Shape   Shape
	Rows    [][]string

	slots map[string]*Slot
	order []string

	concatAdded     bool
	countAdded      bool
	sumAdded        bool
	nextColumnIndex int
}

// New returns an empty cache for the given service and result shape.
func New(service keyreg.ServiceKind, shape Shape) *Cache {
	return &Cache{
		Service: service,
		Shape:   shape,
		slots:   make(map[string]*Slot),
	}
}

// Slot returns the resolved slot for key, if it has been added.
func (c *Cache) Slot(key string) (*Slot, bool) {
	s, ok := c.slots[key]
	return s, ok
}

// Keys returns every key added to the cache so far, in insertion order.
func (c *Cache) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Cache) install(key string, slot *Slot) {
	c.slots[key] = slot
	c.order = append(c.order, key)
}

func isUniqueExempt(key string) bool {
	return key == keyreg.KeyChildcount || key == keyreg.KeyDuration || key == keyreg.KeyMIME
}

// Add runs the key-add algorithm for one user-requested host key. Keys
// unknown to the registry are silently ignored — queries simply omit them.
func (c *Cache) Add(key string) {
	c.add(key, true)
}

func (c *Cache) add(key string, userRequested bool) {
	mk, ok := keyreg.LookupMeta(key)
	if !ok {
		// 1. unknown key -> ignore.
		return
	}

	if slot, exists := c.slots[key]; exists {
		// 2. already present: upgrade user_requested if newly true.
		if userRequested && !slot.UserRequested {
			slot.UserRequested = true
		}
		return
	}

	if mk.DependsOn != "" {
		// 3. dependency is added first, never as user-requested.
		c.add(mk.DependsOn, false)
	}

	isExternal := mk.Kind == keyreg.KindAlbumArt || mk.Kind == keyreg.KindThumbnail

	if c.Shape == Unique && !isUniqueExempt(key) && !isExternal {
		// 4. unique rows have no single value for an ungrouped column.
		c.install(key, &Slot{Kind: SlotVoid, UserRequested: userRequested})
		return
	}

	if isExternal {
		// 5. album-art / thumbnail keys resolve through an external probe.
		kind := ExternalAlbumArt
		if mk.Kind == keyreg.KindThumbnail {
			kind = ExternalThumbnail
		}
		c.install(key, &Slot{Kind: SlotExternal, External: kind, UserRequested: userRequested})
		return
	}

	if c.Shape == Query && key == keyreg.KeyURI {
		// 6. uri occupies the reserved first column of a Query-shape row.
		c.install(key, &Slot{Kind: SlotColumn, Column: 0, UserRequested: userRequested})
		return
	}

	if c.Shape == Unique && key == keyreg.KeyChildcount {
		// 7. childcount is a COUNT aggregate stacked after the group columns.
		col := c.nextColumnIndex
		if c.concatAdded {
			col++
		}
		c.countAdded = true
		c.install(key, &Slot{Kind: SlotColumn, Column: col, Aggregate: AggCount, UserRequested: userRequested})
		c.bumpDurationIfPresent()
		return
	}

	if c.Shape == Unique && key == keyreg.KeyDuration {
		// 8. duration is a SUM aggregate stacked after concat and count.
		col := c.nextColumnIndex
		if c.concatAdded {
			col++
		}
		if c.countAdded {
			col++
		}
		c.sumAdded = true
		c.install(key, &Slot{Kind: SlotColumn, Column: col, Aggregate: AggSum, UserRequested: userRequested})
		return
	}

	if key == keyreg.KeyChildcount && c.Service != keyreg.Playlists {
		// 9. non-playlist containers have no real childcount column.
		c.install(key, &Slot{Kind: SlotPrecomputed, Precomputed: "0", UserRequested: userRequested})
		return
	}

	if key == keyreg.KeyMIME && (c.Service == keyreg.Playlists || c.Shape == Unique) {
		// 10. playlists and unique-grouped rows report the container MIME.
		c.install(key, &Slot{Kind: SlotPrecomputed, Precomputed: containerMIME, UserRequested: userRequested})
		return
	}

	if key == keyreg.KeyTitle && c.Shape != Unique {
		// 11. title's filename fallback needs the uri alongside it.
		c.add(keyreg.KeyURI, false)
	}

	// 12. default: a plain indexer column, reserving two leading columns
	// (uri, service class) for the Query shape.
	col := c.nextColumnIndex
	if c.Shape == Query {
		col += 2
	}
	c.install(key, &Slot{Kind: SlotColumn, Column: col, UserRequested: userRequested})
	c.nextColumnIndex++
}

// bumpDurationIfPresent shifts an already-installed duration column one
// slot to the right, used when childcount's count aggregate is inserted
// after duration's sum aggregate was already placed.
func (c *Cache) bumpDurationIfPresent() {
	if !c.sumAdded {
		return
	}
	if slot, ok := c.slots[keyreg.KeyDuration]; ok {
		slot.Column++
	}
}

// AddGroupColumn installs key as the plain (non-void) grouping column of a
// Unique-shape query — the dimension the rows are grouped by (e.g. artist
// when listing unique artists). It is the planner's responsibility to
// call this instead of Add for grouping keys, since the ordinary key-add
// algorithm voids any non-exempt key under the Unique shape.
func (c *Cache) AddGroupColumn(key string) {
	if _, exists := c.slots[key]; exists {
		return
	}
	col := c.nextColumnIndex
	c.install(key, &Slot{Kind: SlotColumn, Column: col, UserRequested: true})
	c.nextColumnIndex++
}

// AddConcat installs key as the GROUP_CONCAT aggregate column sitting
// immediately after the unique group-by columns, and shifts any
// already-installed childcount/duration aggregate columns one slot right.
func (c *Cache) AddConcat(key string) {
	if slot, exists := c.slots[key]; exists {
		slot.Aggregate = AggConcat
		return
	}
	col := c.nextColumnIndex
	c.concatAdded = true
	c.install(key, &Slot{Kind: SlotColumn, Column: col, Aggregate: AggConcat, UserRequested: true})
	if childcount, ok := c.slots[keyreg.KeyChildcount]; ok && childcount.Kind == SlotColumn {
		childcount.Column++
	}
	c.bumpDurationIfPresent()
}

// HasUserRequested reports whether key was (directly or by upgrade) added
// as user-requested — used by planners deciding whether a concat/derived
// companion column is worth adding.
func (c *Cache) HasUserRequested(key string) bool {
	slot, ok := c.slots[key]
	return ok && slot.UserRequested
}

// AddPrecomputed installs key with a fixed value that does not depend on
// any row — e.g. a genre name already known from the browse path, rather
// than from a query column.
func (c *Cache) AddPrecomputed(key, value string) {
	if _, exists := c.slots[key]; exists {
		return
	}
	c.install(key, &Slot{Kind: SlotPrecomputed, Precomputed: value, UserRequested: false})
}

// AddDerived installs key so its value is always taken from another
// already-installed key's slot for the same row — e.g. TITLE mirroring
// ARTIST on an artist-listing row.
func (c *Cache) AddDerived(key, source string) {
	if _, exists := c.slots[key]; exists {
		return
	}
	c.install(key, &Slot{Kind: SlotDerived, DerivedFrom: source, UserRequested: true})
}
