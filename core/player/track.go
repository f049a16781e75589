package player

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"karaoke/model"
)

// Track is a single playable item. Values are immutable once loaded.
type Track struct {
	ID              string  `json:"id,omitempty"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	MediaURL        string  `json:"mediaUrl"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"` // estimate, 0 if unknown
	ThumbnailURL    string  `json:"thumbnailUrl,omitempty"`
}

// Key is the identity of the track: its ID, or its media URL when no ID exists.
func (t Track) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.MediaURL
}

// YouTubeWatchURL is the media URL used for songs that only carry a video ID.
func YouTubeWatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// FromSong adapts a catalog song.
func FromSong(s *model.Song) Track {
	mediaURL := s.MediaURL
	if mediaURL == "" && s.YouTubeID != "" {
		mediaURL = YouTubeWatchURL(s.YouTubeID)
	}
	return Track{
		ID:              strconv.FormatInt(s.ID, 10),
		Title:           s.Title,
		Artist:          s.Artist,
		MediaURL:        mediaURL,
		DurationSeconds: s.DurationSeconds,
		ThumbnailURL:    s.ThumbnailURL,
	}
}

// FromSongs adapts songs, skipping the ones without anything to play.
func FromSongs(songs []*model.Song) []Track {
	tracks := make([]Track, 0, len(songs))
	for _, s := range songs {
		if s == nil {
			continue
		}
		t := FromSong(s)
		if t.MediaURL == "" {
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks
}

// ErrUnsuccessfulPayload is returned for collection payloads with success=false.
var ErrUnsuccessfulPayload = errors.New("collections payload reported failure")

// flexibleID accepts both JSON numbers and strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// collectionSong is the loose song shape seen across pages; aliases are resolved in toTrack.
type collectionSong struct {
	ID              flexibleID `json:"id"`
	Title           string     `json:"title"`
	Name            string     `json:"name"`
	Artist          string     `json:"artist"`
	MediaURL        string     `json:"mediaUrl"`
	URL             string     `json:"url"`
	AudioURL        string     `json:"audioUrl"`
	YouTubeID       string     `json:"youtubeId"`
	DurationSeconds float64    `json:"durationSeconds"`
	Duration        float64    `json:"duration"`
	ThumbnailURL    string     `json:"thumbnailUrl"`
	Cover           string     `json:"cover"`
}

func (s collectionSong) toTrack() Track {
	t := Track{
		ID:              string(s.ID),
		Title:           firstNonEmpty(s.Title, s.Name),
		Artist:          s.Artist,
		MediaURL:        firstNonEmpty(s.MediaURL, s.AudioURL, s.URL),
		DurationSeconds: s.DurationSeconds,
		ThumbnailURL:    firstNonEmpty(s.ThumbnailURL, s.Cover),
	}
	if t.MediaURL == "" && s.YouTubeID != "" {
		t.MediaURL = YouTubeWatchURL(s.YouTubeID)
	}
	if t.DurationSeconds <= 0 && s.Duration > 0 {
		t.DurationSeconds = s.Duration
	}
	return t
}

// FromCollections decodes a `{success, collections:[{songs:[...]}]}` payload into a flat
// track list in collection order. Songs without a media URL are dropped.
func FromCollections(data []byte) ([]Track, error) {
	var payload struct {
		Success     bool `json:"success"`
		Collections []struct {
			Songs []collectionSong `json:"songs"`
		} `json:"collections"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode collections payload: %w", err)
	}
	if !payload.Success {
		return nil, ErrUnsuccessfulPayload
	}

	tracks := make([]Track, 0)
	for _, c := range payload.Collections {
		for _, s := range c.Songs {
			t := s.toTrack()
			if strings.TrimSpace(t.MediaURL) == "" {
				continue
			}
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
