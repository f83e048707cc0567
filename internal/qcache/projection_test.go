package qcache

import (
	"testing"

	"github.com/alexander-bruun/localtagfs/internal/keyreg"
)

type fakeProber struct {
	albumArt    map[string]string
	thumbnail   map[string]string
}

func (f fakeProber) ProbeAlbumArt(album string) (string, bool) {
	uri, ok := f.albumArt[album]
	return uri, ok
}

func (f fakeProber) ProbeThumbnail(size ThumbSize, source string) (string, bool) {
	uri, ok := f.thumbnail[source]
	return uri, ok
}

func TestProjectColumnValuesByRegisteredType(t *testing.T) {
	c := New(keyreg.Music, GetMetadata)
	c.Add(keyreg.KeyArtist)
	c.Add(keyreg.KeyTrack)

	artistSlot, _ := c.Slot(keyreg.KeyArtist)
	trackSlot, _ := c.Slot(keyreg.KeyTrack)

	row := make([]string, 2)
	row[artistSlot.Column] = "Queen"
	row[trackSlot.Column] = "7"

	md := c.Project(row, nil)
	if md[keyreg.KeyArtist].String != "Queen" {
		t.Errorf("got %+v", md[keyreg.KeyArtist])
	}
	if md[keyreg.KeyTrack].Int != 7 {
		t.Errorf("got %+v", md[keyreg.KeyTrack])
	}
}

func TestProjectURIColumnConvertsPathToFileURI(t *testing.T) {
	c := New(keyreg.Music, GetMetadata)
	c.Add(keyreg.KeyURI)
	slot, _ := c.Slot(keyreg.KeyURI)
	row := make([]string, 1)
	row[slot.Column] = "/home/user/Music/song.mp3"

	md := c.Project(row, nil)
	if md[keyreg.KeyURI].String != "file:///home/user/Music/song.mp3" {
		t.Errorf("got %q", md[keyreg.KeyURI].String)
	}
}

func TestProjectTitleFallsBackToFilename(t *testing.T) {
	c := New(keyreg.Music, GetMetadata)
	c.Add(keyreg.KeyTitle)

	titleSlot, _ := c.Slot(keyreg.KeyTitle)
	uriSlot, _ := c.Slot(keyreg.KeyURI)

	row := make([]string, 2)
	if titleSlot.Column > len(row)-1 || uriSlot.Column > len(row)-1 {
		row = make([]string, titleSlot.Column+uriSlot.Column+2)
	}
	row[titleSlot.Column] = ""
	row[uriSlot.Column] = "/home/user/Music/My Song.mp3"

	md := c.Project(row, nil)
	if md[keyreg.KeyTitle].String != "My Song" {
		t.Errorf("got %q", md[keyreg.KeyTitle].String)
	}
}

func TestProjectDropsEmptyValuesUnlessAllowedEmpty(t *testing.T) {
	c := New(keyreg.Music, GetMetadata)
	c.Add(keyreg.KeyArtist) // not allowed-empty
	c.Add(keyreg.KeyPlayCount) // allowed-empty

	artistSlot, _ := c.Slot(keyreg.KeyArtist)
	playCountSlot, _ := c.Slot(keyreg.KeyPlayCount)
	row := make([]string, 2)
	row[artistSlot.Column] = ""
	row[playCountSlot.Column] = "0"

	md := c.Project(row, nil)
	if _, present := md[keyreg.KeyArtist]; present {
		t.Error("empty artist should be dropped")
	}
	if _, present := md[keyreg.KeyPlayCount]; !present {
		t.Error("zero play-count should be kept (allowed_empty)")
	}
}

func TestProjectCollapsesPipeToVariousSentinel(t *testing.T) {
	c := New(keyreg.Music, Unique)
	c.AddGroupColumn(keyreg.KeyArtist)
	c.AddConcat(keyreg.KeyAlbum)

	artistSlot, _ := c.Slot(keyreg.KeyArtist)
	albumSlot, _ := c.Slot(keyreg.KeyAlbum)
	row := make([]string, 2)
	row[artistSlot.Column] = "Queen"
	row[albumSlot.Column] = "A Night at the Opera|A Day at the Races"

	md := c.Project(row, nil)
	if md[keyreg.KeyAlbum].String != VariousValuesSentinel {
		t.Errorf("got %q", md[keyreg.KeyAlbum].String)
	}
}

func TestProjectExternalAlbumArtProbesFirstResolvableSplit(t *testing.T) {
	c := New(keyreg.Music, GetMetadata)
	c.Add(keyreg.KeyAlbumArtURI)

	albumSlot, _ := c.Slot(keyreg.KeyAlbum)
	row := make([]string, albumSlot.Column+1)
	row[albumSlot.Column] = "|A Night at the Opera"

	prober := fakeProber{albumArt: map[string]string{"A Night at the Opera": "file:///art/anato.jpg"}}
	md := c.Project(row, prober)
	if md[keyreg.KeyAlbumArtURI].String != "file:///art/anato.jpg" {
		t.Errorf("got %+v", md[keyreg.KeyAlbumArtURI])
	}
}

func TestProjectExternalWithoutProberIsAbsent(t *testing.T) {
	c := New(keyreg.Music, GetMetadata)
	c.Add(keyreg.KeyThumbnailSmallURI)
	uriSlot, _ := c.Slot(keyreg.KeyURI)
	row := make([]string, uriSlot.Column+1)

	md := c.Project(row, nil)
	if _, present := md[keyreg.KeyThumbnailSmallURI]; present {
		t.Error("expected absent thumbnail without a prober")
	}
}

func TestProjectAggregateSumsChildcountAndDuration(t *testing.T) {
	c := New(keyreg.Music, Unique)
	c.AddGroupColumn(keyreg.KeyArtist)
	c.Add(keyreg.KeyChildcount)
	c.Add(keyreg.KeyDuration)

	artistSlot, _ := c.Slot(keyreg.KeyArtist)
	countSlot, _ := c.Slot(keyreg.KeyChildcount)
	durSlot, _ := c.Slot(keyreg.KeyDuration)

	row1 := make([]string, 3)
	row1[artistSlot.Column] = "Queen"
	row1[countSlot.Column] = "1"
	row1[durSlot.Column] = "200"
	row2 := make([]string, 3)
	row2[artistSlot.Column] = "Queen"
	row2[countSlot.Column] = "1"
	row2[durSlot.Column] = "180"

	c.Rows = [][]string{row1, row2}

	md := c.ProjectAggregate(nil, false)
	if md[keyreg.KeyChildcount].Int != 2 {
		t.Errorf("got %+v", md[keyreg.KeyChildcount])
	}
	if md[keyreg.KeyDuration].Int != 380 {
		t.Errorf("got %+v", md[keyreg.KeyDuration])
	}
}

func TestProjectAggregateCountRowsAsChildcountWhenRequested(t *testing.T) {
	c := New(keyreg.Music, Query)
	c.Add(keyreg.KeyChildcount)
	c.Rows = [][]string{make([]string, 3), make([]string, 3), make([]string, 3)}

	md := c.ProjectAggregate(nil, true)
	if md[keyreg.KeyChildcount].Int != 3 {
		t.Errorf("got %+v", md[keyreg.KeyChildcount])
	}
}

func TestProjectIdempotent(t *testing.T) {
	c := New(keyreg.Music, GetMetadata)
	c.Add(keyreg.KeyArtist)
	slot, _ := c.Slot(keyreg.KeyArtist)
	row := make([]string, slot.Column+1)
	row[slot.Column] = "David Bowie"

	first := c.Project(row, nil)
	second := c.Project(row, nil)
	if first[keyreg.KeyArtist] != second[keyreg.KeyArtist] {
		t.Errorf("projection is not idempotent: %+v vs %+v", first, second)
	}
}
