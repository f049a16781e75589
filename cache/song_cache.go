package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"karaoke/logger"
	"karaoke/model"

	"github.com/go-redis/redis/v8"
)

const (
	songVersionKey = "songs:version"
	songSearchKey  = "songs:v%d:search:%s:%s:%d:%d" // version, keyword, genre, page, limit
	songSearchTTL  = 5 * time.Minute
)

// SearchPage is one cached page of song search results.
type SearchPage struct {
	Songs []*model.Song `json:"songs"`
	Total int64         `json:"total"`
}

// SongCache 歌曲搜索结果缓存。写入歌曲时递增版本号使旧结果失效
type SongCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSongCache 创建歌曲缓存
func NewSongCache(client *redis.Client) *SongCache {
	return &SongCache{client: client, ttl: songSearchTTL}
}

// Version returns the current search generation. A request reads it once and
// uses the same value for GetSearch and SetSearch.
func (c *SongCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	v, err := c.client.Get(ctx, songVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read song cache version: %w", err)
	}
	return v, nil
}

func searchKey(version int64, q model.SongQuery) string {
	q = q.Normalize()
	return fmt.Sprintf(songSearchKey, version,
		strings.ToLower(strings.TrimSpace(q.Keyword)), q.Genre, q.Page, q.Limit)
}

// GetSearch returns the cached page for q at version; ok is false on a miss.
func (c *SongCache) GetSearch(ctx context.Context, version int64, q model.SongQuery) (*SearchPage, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, searchKey(version, q)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get song search cache: %w", err)
	}

	var page SearchPage
	if err := json.Unmarshal(data, &page); err != nil {
		// 损坏的缓存当作未命中
		logger.Warn("[SongCache] dropping unreadable entry", logger.ErrorField(err))
		return nil, false, nil
	}
	return &page, true, nil
}

// SetSearch stores a result page for q under version.
func (c *SongCache) SetSearch(ctx context.Context, version int64, q model.SongQuery, page *SearchPage) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal search page: %w", err)
	}
	return c.client.Set(ctx, searchKey(version, q), data, c.ttl).Err()
}

// Invalidate makes every cached search stale. Old keys expire on their own.
func (c *SongCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, songVersionKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate song cache: %w", err)
	}
	logger.Debug("[SongCache] invalidated")
	return nil
}
