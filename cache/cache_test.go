package cache

import (
	"context"
	"testing"
	"time"

	"karaoke/core/player"
	"karaoke/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestSongCache_HitMissInvalidate(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	c := NewSongCache(client)
	q := model.SongQuery{Keyword: " Queen ", Page: 1}

	v, err := c.Version(ctx)
	require.NoError(t, err)
	_, ok, err := c.GetSearch(ctx, v, q)
	require.NoError(t, err)
	assert.False(t, ok)

	page := &SearchPage{Songs: []*model.Song{{ID: 1, Title: "Bohemian Rhapsody", Artist: "Queen"}}, Total: 1}
	require.NoError(t, c.SetSearch(ctx, v, q, page))

	// 关键词大小写与空白不影响命中
	got, ok, err := c.GetSearch(ctx, v, model.SongQuery{Keyword: "queen"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Total)
	assert.Equal(t, "Bohemian Rhapsody", got.Songs[0].Title)

	require.NoError(t, c.Invalidate(ctx))
	v, err = c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	_, ok, err = c.GetSearch(ctx, v, q)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetSearch(ctx, v, q, page))
	mr.FastForward(songSearchTTL + time.Second)
	_, ok, err = c.GetSearch(ctx, v, q)
	require.NoError(t, err)
	assert.False(t, ok, "entries expire after the ttl")
}

func TestSongCache_FillAfterInvalidateStaysStale(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	c := NewSongCache(client)
	q := model.SongQuery{Keyword: "abba"}

	v, err := c.Version(ctx)
	require.NoError(t, err)
	_, ok, err := c.GetSearch(ctx, v, q)
	require.NoError(t, err)
	require.False(t, ok)

	// 查库期间发生导入，旧结果只能写到旧版本下
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.SetSearch(ctx, v, q, &SearchPage{Total: 1}))

	current, err := c.Version(ctx)
	require.NoError(t, err)
	_, ok, err = c.GetSearch(ctx, current, q)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSongCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	c := NewSongCache(client)
	q := model.SongQuery{Keyword: "x"}

	require.NoError(t, mr.Set(searchKey(0, q), "{not json"))
	_, ok, err := c.GetSearch(ctx, 0, q)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSongCache_NilIsNoop(t *testing.T) {
	var c *SongCache
	v, err := c.Version(context.Background())
	assert.NoError(t, err)
	_, ok, err := c.GetSearch(context.Background(), v, model.SongQuery{})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.SetSearch(context.Background(), v, model.SongQuery{}, &SearchPage{}))
	assert.NoError(t, c.Invalidate(context.Background()))
}

func TestPlaybackCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	c := NewPlaybackCache(client)

	state, err := c.LoadPlayback(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, state)

	saved := player.SavedState{
		Queue:           []player.Track{{ID: "1", Title: "A", MediaURL: "/media/a.mp3"}},
		Index:           0,
		PositionSeconds: 42.5,
		Volume:          0.6,
		Loop:            true,
		SavedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, c.SavePlayback(ctx, 7, saved))
	assert.Equal(t, 24*time.Hour, mr.TTL("player:7:state"))

	state, err = c.LoadPlayback(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, saved.Queue, state.Queue)
	assert.InDelta(t, 42.5, state.PositionSeconds, 1e-9)
	assert.True(t, state.Loop)
	assert.True(t, saved.SavedAt.Equal(state.SavedAt))

	require.NoError(t, c.ClearPlayback(ctx, 7))
	state, err = c.LoadPlayback(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, state)
}
