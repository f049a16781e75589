package karaoke

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID returns the YouTube video ID carried by s: a bare ID, a
// watch/embed/shorts/youtu.be URL, or a query string with v or video_id.
func ExtractVideoID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if videoIDPattern.MatchString(s) {
		return s, true
	}

	raw := s
	if !strings.Contains(raw, "://") && strings.Contains(raw, "youtu") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	q := u.Query()
	if u.Host == "" && u.RawQuery == "" {
		// 非URL文本，例如 "v=xxx&t=10"
		q, _ = url.ParseQuery(s)
	}
	for _, key := range []string{"v", "video_id"} {
		if id := q.Get(key); videoIDPattern.MatchString(id) {
			return id, true
		}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case host == "youtu.be" && len(segments) > 0:
		if videoIDPattern.MatchString(segments[0]) {
			return segments[0], true
		}
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") || host == "youtube-nocookie.com":
		if len(segments) >= 2 {
			switch segments[0] {
			case "embed", "shorts", "v", "live":
				if videoIDPattern.MatchString(segments[1]) {
					return segments[1], true
				}
			}
		}
	}
	return "", false
}
