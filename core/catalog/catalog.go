// Package catalog loads the static song catalog file into the songs table.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"karaoke/core/karaoke"
	"karaoke/logger"
	"karaoke/model"
	"karaoke/repository"

	"gopkg.in/yaml.v3"
)

// ErrInvalidEntry 条目缺少标题或播放地址
var ErrInvalidEntry = errors.New("invalid catalog entry")

// File is the catalog document. JSON files use the same keys.
type File struct {
	Songs []Entry `yaml:"songs" json:"songs"`
}

// Entry is one song in the catalog file.
type Entry struct {
	Key       string  `yaml:"key" json:"key"`
	Title     string  `yaml:"title" json:"title"`
	Artist    string  `yaml:"artist" json:"artist"`
	Genre     string  `yaml:"genre" json:"genre"`
	Language  string  `yaml:"language" json:"language"`
	MediaURL  string  `yaml:"mediaUrl" json:"mediaUrl"`
	YouTube   string  `yaml:"youtube" json:"youtube"` // 视频ID或链接
	Thumbnail string  `yaml:"thumbnail" json:"thumbnail"`
	Duration  float64 `yaml:"duration" json:"duration"`
	Lyrics    string  `yaml:"lyrics" json:"lyrics"`
}

// CatalogKey returns the idempotency key of the entry.
func (e Entry) CatalogKey() string {
	if e.Key != "" {
		return "static:" + e.Key
	}
	return "static:" + strings.ToLower(strings.TrimSpace(e.Artist)) + "/" + strings.ToLower(strings.TrimSpace(e.Title))
}

// Song converts the entry into a song row.
func (e Entry) Song() (*model.Song, error) {
	if strings.TrimSpace(e.Title) == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalidEntry)
	}
	s := &model.Song{
		Title:           strings.TrimSpace(e.Title),
		Artist:          strings.TrimSpace(e.Artist),
		Genre:           e.Genre,
		Language:        e.Language,
		Source:          model.SongSourceStatic,
		MediaURL:        e.MediaURL,
		ThumbnailURL:    e.Thumbnail,
		DurationSeconds: e.Duration,
		Lyrics:          e.Lyrics,
		CatalogKey:      e.CatalogKey(),
	}
	if e.YouTube != "" {
		id, ok := karaoke.ExtractVideoID(e.YouTube)
		if !ok {
			return nil, fmt.Errorf("%w: bad youtube reference %q", ErrInvalidEntry, e.YouTube)
		}
		s.YouTubeID = id
		if s.MediaURL == "" {
			s.Source = model.SongSourceYouTube
		}
	}
	if s.MediaURL == "" && s.YouTubeID == "" {
		return nil, fmt.Errorf("%w: %q has no media", ErrInvalidEntry, e.Title)
	}
	return s, nil
}

// Parse decodes a YAML or JSON catalog.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &f, nil
}

// LoadFile reads and parses a catalog file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Result 导入统计
type Result struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Importer upserts catalog entries by their catalog key.
type Importer struct {
	songs repository.SongRepository
}

// NewImporter 创建曲库导入器
func NewImporter(songs repository.SongRepository) *Importer {
	return &Importer{songs: songs}
}

// Import upserts every valid entry. Invalid entries are skipped and logged.
func (im *Importer) Import(ctx context.Context, f *File) (Result, error) {
	var res Result
	for i, e := range f.Songs {
		song, err := e.Song()
		if err != nil {
			logger.Warn("[Catalog] skipping entry",
				logger.Int("index", i),
				logger.ErrorField(err))
			res.Skipped++
			continue
		}
		inserted, err := im.songs.UpsertByCatalogKey(ctx, song)
		if err != nil {
			return res, fmt.Errorf("failed to upsert %q: %w", song.Title, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// ImportFile loads path and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	f, err := LoadFile(path)
	if err != nil {
		return Result{}, err
	}
	res, err := im.Import(ctx, f)
	if err != nil {
		return res, err
	}
	logger.Info("[Catalog] imported",
		logger.String("file", path),
		logger.Int("inserted", res.Inserted),
		logger.Int("updated", res.Updated),
		logger.Int("skipped", res.Skipped))
	return res, nil
}
