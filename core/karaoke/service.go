// Package karaoke finds karaoke videos on YouTube.
package karaoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"karaoke/config"
	"karaoke/core/player"
	"karaoke/logger"
	"karaoke/model"
)

var (
	// ErrNotConfigured 未配置 YouTube API key
	ErrNotConfigured = errors.New("youtube api key not configured")
	// ErrEmptyQuery 搜索词为空
	ErrEmptyQuery = errors.New("empty search query")
)

const (
	DefaultLimit = 10
	MaxLimit     = 25
)

// Video is one karaoke search result.
type Video struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Channel         string  `json:"channel"`
	ThumbnailURL    string  `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	WatchURL        string  `json:"watchUrl"`
}

// Track turns the video into a queue entry.
func (v Video) Track() player.Track {
	return player.Track{
		ID:              "yt:" + v.ID,
		Title:           v.Title,
		Artist:          v.Channel,
		MediaURL:        v.WatchURL,
		DurationSeconds: v.DurationSeconds,
		ThumbnailURL:    v.ThumbnailURL,
	}
}

// Song turns the video into a catalog song keyed by its video ID.
func (v Video) Song() *model.Song {
	return &model.Song{
		Title:           v.Title,
		Artist:          v.Channel,
		Source:          model.SongSourceYouTube,
		YouTubeID:       v.ID,
		ThumbnailURL:    v.ThumbnailURL,
		DurationSeconds: v.DurationSeconds,
		CatalogKey:      "youtube:" + v.ID,
	}
}

// Service YouTube Data API v3 客户端
type Service struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewService 创建卡拉OK服务
func NewService(cfg *config.Config) *Service {
	return &Service{
		apiKey:  cfg.YouTubeAPIKey,
		baseURL: strings.TrimRight(cfg.YouTubeAPIBase, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// SetBaseURL 设置API基础URL
func (s *Service) SetBaseURL(u string) {
	s.baseURL = strings.TrimRight(u, "/")
}

// Enabled reports whether an API key is configured.
func (s *Service) Enabled() bool {
	return s.apiKey != ""
}

type apiThumbnails struct {
	Default struct{ URL string } `json:"default"`
	Medium  struct{ URL string } `json:"medium"`
	High    struct{ URL string } `json:"high"`
}

func (t apiThumbnails) best() string {
	for _, u := range []string{t.High.URL, t.Medium.URL, t.Default.URL} {
		if u != "" {
			return u
		}
	}
	return ""
}

type apiSnippet struct {
	Title        string        `json:"title"`
	ChannelTitle string        `json:"channelTitle"`
	Thumbnails   apiThumbnails `json:"thumbnails"`
}

// Search finds karaoke versions of q. A pasted video link resolves to that
// single video.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]Video, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	if id, ok := linkedVideoID(q); ok {
		v, err := s.Lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return []Video{}, nil
		}
		return []Video{*v}, nil
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	params := url.Values{
		"part":            {"snippet"},
		"type":            {"video"},
		"videoEmbeddable": {"true"},
		"maxResults":      {strconv.Itoa(limit)},
		"q":               {q + " karaoke"},
	}
	var result struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet apiSnippet `json:"snippet"`
		} `json:"items"`
	}
	if err := s.get(ctx, "/search", params, &result); err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(result.Items))
	for _, item := range result.Items {
		if item.ID.VideoID == "" {
			continue
		}
		videos = append(videos, newVideo(item.ID.VideoID, item.Snippet, 0))
	}
	logger.Debug("[Karaoke] search done",
		logger.String("query", q),
		logger.Int("results", len(videos)))
	return videos, nil
}

// Lookup fetches a single video with its duration. Returns nil, nil when the
// video does not exist.
func (s *Service) Lookup(ctx context.Context, id string) (*Video, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	params := url.Values{
		"part": {"snippet,contentDetails"},
		"id":   {id},
	}
	var result struct {
		Items []struct {
			ID             string     `json:"id"`
			Snippet        apiSnippet `json:"snippet"`
			ContentDetails struct {
				Duration string `json:"duration"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := s.get(ctx, "/videos", params, &result); err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, nil
	}
	item := result.Items[0]
	v := newVideo(item.ID, item.Snippet, parseISODuration(item.ContentDetails.Duration))
	return &v, nil
}

// linkedVideoID only accepts links; an 11 letter search word is not an ID.
func linkedVideoID(q string) (string, bool) {
	if !strings.Contains(q, "youtu") && !strings.Contains(q, "v=") && !strings.Contains(q, "video_id=") {
		return "", false
	}
	return ExtractVideoID(q)
}

func newVideo(id string, sn apiSnippet, duration float64) Video {
	return Video{
		ID:              id,
		Title:           sn.Title,
		Channel:         sn.ChannelTitle,
		ThumbnailURL:    sn.Thumbnails.best(),
		DurationSeconds: duration,
		WatchURL:        player.YouTubeWatchURL(id),
	}
}

func (s *Service) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("key", s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("youtube request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("[Karaoke] youtube api error",
			logger.String("path", path),
			logger.Int("status", resp.StatusCode))
		return fmt.Errorf("youtube api returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode youtube response: %w", err)
	}
	return nil
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseISODuration converts "PT4M13S" style durations to seconds; 0 if unknown.
func parseISODuration(s string) float64 {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * unit
	}
	return float64(total)
}
