package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"karaoke/model"
	"karaoke/repository/memrepo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
songs:
  - key: bohemian
    title: Bohemian Rhapsody
    artist: Queen
    genre: rock
    mediaUrl: /media/static/bohemian.mp3
    duration: 354
  - title: Never Gonna Give You Up
    artist: Rick Astley
    youtube: https://youtu.be/dQw4w9WgXcQ
  - title: ""
    mediaUrl: /media/nothing.mp3
  - title: No Media
`

func TestParse_YAMLAndJSON(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, f.Songs, 4)
	assert.Equal(t, "Queen", f.Songs[0].Artist)
	assert.Equal(t, 354.0, f.Songs[0].Duration)

	f, err = Parse([]byte(`{"songs":[{"title":"A","mediaUrl":"/a.mp3"}]}`))
	require.NoError(t, err)
	require.Len(t, f.Songs, 1)
	assert.Equal(t, "/a.mp3", f.Songs[0].MediaURL)

	_, err = Parse([]byte("songs: [unterminated"))
	assert.Error(t, err)
}

func TestEntry_Song(t *testing.T) {
	s, err := Entry{Title: " Song ", Artist: "Band", MediaURL: "/x.mp3"}.Song()
	require.NoError(t, err)
	assert.Equal(t, "Song", s.Title)
	assert.Equal(t, model.SongSourceStatic, s.Source)
	assert.Equal(t, "static:band/song", s.CatalogKey)

	s, err = Entry{Key: "k1", Title: "Video", YouTube: "dQw4w9WgXcQ"}.Song()
	require.NoError(t, err)
	assert.Equal(t, model.SongSourceYouTube, s.Source)
	assert.Equal(t, "dQw4w9WgXcQ", s.YouTubeID)
	assert.Equal(t, "static:k1", s.CatalogKey)

	_, err = Entry{Title: "Bad", YouTube: "https://vimeo.com/1"}.Song()
	assert.ErrorIs(t, err, ErrInvalidEntry)
	_, err = Entry{Title: "Nothing"}.Song()
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestImporter_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memrepo.New()
	im := NewImporter(store.Songs())
	f, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	res, err := im.Import(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 2, Skipped: 2}, res)

	res, err = im.Import(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 2, Skipped: 2}, res)

	songs, total, err := store.Songs().Search(ctx, model.SongQuery{Keyword: "queen"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Bohemian Rhapsody", songs[0].Title)
}

func TestImportFile_Missing(t *testing.T) {
	_, err := NewImporter(memrepo.New().Songs()).ImportFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatcher_ReimportsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`songs: [{title: A, mediaUrl: /a.mp3}]`), 0o644))

	store := memrepo.New()
	w := NewWatcher(path, NewImporter(store.Songs()))
	w.debounce = 20 * time.Millisecond
	results := make(chan Result, 8)
	w.OnImport = func(r Result, err error) {
		if err == nil {
			results <- r
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case r := <-results:
		assert.Equal(t, 1, r.Inserted)
	case <-time.After(2 * time.Second):
		t.Fatal("initial import did not run")
	}

	// 其他文件的变化不触发导入
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(`songs: [{title: A, mediaUrl: /a.mp3}, {title: B, mediaUrl: /b.mp3}]`), 0o644))

	select {
	case r := <-results:
		assert.Equal(t, Result{Inserted: 1, Updated: 1}, r)
	case <-time.After(2 * time.Second):
		t.Fatal("change was not imported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
