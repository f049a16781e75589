package server

import (
	"errors"
	"net/http"

	"karaoke/repository"
)

// ListFavoritesHandler GET /api/favorites
func (h *APIHandler) ListFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	songs, err := h.favoriteRepo.ListSongs(r.Context(), userID)
	if err != nil {
		writeInternal(w, "Favorite", err)
		return
	}
	writeOK(w, map[string]interface{}{"songs": songs})
}

// AddFavoriteHandler POST /api/favorites/{songId}
func (h *APIHandler) AddFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	songID, ok := pathID(r, "songId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid song id")
		return
	}
	song, err := h.songRepo.GetByID(r.Context(), songID)
	if err != nil {
		writeInternal(w, "Favorite", err)
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}

	ent, user, err := h.entitlements(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}
	count, err := h.favoriteRepo.Count(r.Context(), user.ID)
	if err != nil {
		writeInternal(w, "Favorite", err)
		return
	}
	if !ent.CanAddFavorite(int(count)) {
		writeError(w, http.StatusForbidden, "Favorite limit reached, upgrade to premium for more")
		return
	}

	if err := h.favoriteRepo.Add(r.Context(), user.ID, songID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Already in favorites")
			return
		}
		writeInternal(w, "Favorite", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
}

// RemoveFavoriteHandler DELETE /api/favorites/{songId}
func (h *APIHandler) RemoveFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	songID, ok := pathID(r, "songId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid song id")
		return
	}
	userID, _ := GetUserIDFromContext(r.Context())
	if err := h.favoriteRepo.Remove(r.Context(), userID, songID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not in favorites")
			return
		}
		writeInternal(w, "Favorite", err)
		return
	}
	writeOK(w, nil)
}
