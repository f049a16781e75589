package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"karaoke/core/player"

	"github.com/go-redis/redis/v8"
)

const (
	playbackKey = "player:%d:state"
	playbackTTL = 24 * time.Hour
)

// PlaybackCache keeps the last player state of each user for a day.
type PlaybackCache struct {
	client *redis.Client
}

// NewPlaybackCache 创建播放状态缓存
func NewPlaybackCache(client *redis.Client) *PlaybackCache {
	return &PlaybackCache{client: client}
}

// SavePlayback 保存播放状态
func (c *PlaybackCache) SavePlayback(ctx context.Context, userID int64, state player.SavedState) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal playback state: %w", err)
	}
	return c.client.Set(ctx, fmt.Sprintf(playbackKey, userID), data, playbackTTL).Err()
}

// LoadPlayback returns the saved state, or nil if there is none.
func (c *PlaybackCache) LoadPlayback(ctx context.Context, userID int64) (*player.SavedState, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	data, err := c.client.Get(ctx, fmt.Sprintf(playbackKey, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playback state: %w", err)
	}

	var state player.SavedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playback state: %w", err)
	}
	return &state, nil
}

// ClearPlayback 删除播放状态
func (c *PlaybackCache) ClearPlayback(ctx context.Context, userID int64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Del(ctx, fmt.Sprintf(playbackKey, userID)).Err()
}
