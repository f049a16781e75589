package server

import (
	"errors"
	"net/http"

	"karaoke/core/karaoke"
)

// KaraokeSearchHandler GET /api/karaoke/search?q=&limit=
func (h *APIHandler) KaraokeSearchHandler(w http.ResponseWriter, r *http.Request) {
	if h.karaoke == nil {
		writeError(w, http.StatusServiceUnavailable, "Karaoke search not configured")
		return
	}
	videos, err := h.karaoke.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", karaoke.DefaultLimit))
	if err != nil {
		writeKaraokeError(w, err)
		return
	}

	tracks := make([]interface{}, 0, len(videos))
	for _, v := range videos {
		tracks = append(tracks, v.Track())
	}
	writeOK(w, map[string]interface{}{
		"videos": videos,
		"tracks": tracks,
	})
}

func writeKaraokeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, karaoke.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "Query is required")
	case errors.Is(err, karaoke.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "Karaoke search not configured")
	default:
		writeError(w, http.StatusBadGateway, "Karaoke search failed")
	}
}
