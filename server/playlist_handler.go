package server

import (
	"errors"
	"net/http"
	"strings"

	"karaoke/logger"
	"karaoke/model"
	"karaoke/repository"
)

const maxPlaylistName = 100

// ListPlaylistsHandler GET /api/playlists
func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())
	playlists, err := h.playlistRepo.ListByUser(r.Context(), userID)
	if err != nil {
		writeInternal(w, "Playlist", err)
		return
	}
	writeOK(w, map[string]interface{}{"playlists": playlists})
}

// CreatePlaylistRequest 创建歌单请求
type CreatePlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
	CoverURL    string `json:"coverUrl"`
}

// CreatePlaylistHandler POST /api/playlists
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxPlaylistName {
		writeError(w, http.StatusBadRequest, "Playlist name is required")
		return
	}

	ent, user, err := h.entitlements(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}
	owned, err := h.playlistRepo.CountByUser(r.Context(), user.ID)
	if err != nil {
		writeInternal(w, "Playlist", err)
		return
	}
	if !ent.CanCreatePlaylist(int(owned)) {
		writeError(w, http.StatusForbidden, "Playlist limit reached, upgrade to premium for more")
		return
	}

	p := &model.Playlist{
		UserID:      user.ID,
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		CoverURL:    req.CoverURL,
	}
	if err := h.playlistRepo.Create(r.Context(), p); err != nil {
		writeInternal(w, "Playlist", err)
		return
	}
	logger.Info("[Playlist] created", logger.Int64("user", user.ID), logger.Int64("playlist", p.ID))
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "playlist": p})
}

// loadPlaylist fetches {id} and checks access. Non-owners may only read public
// playlists.
func (h *APIHandler) loadPlaylist(w http.ResponseWriter, r *http.Request, write bool) (*model.Playlist, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid playlist id")
		return nil, false
	}
	p, err := h.playlistRepo.GetByID(r.Context(), id)
	if err != nil {
		writeInternal(w, "Playlist", err)
		return nil, false
	}
	userID, _ := GetUserIDFromContext(r.Context())
	if p == nil || (p.UserID != userID && (write || !p.IsPublic)) {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return nil, false
	}
	return p, true
}

// GetPlaylistHandler GET /api/playlists/{id}
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPlaylist(w, r, false)
	if !ok {
		return
	}
	songs, err := h.playlistRepo.GetSongs(r.Context(), p.ID)
	if err != nil {
		writeInternal(w, "Playlist", err)
		return
	}
	writeOK(w, map[string]interface{}{
		"playlist": &model.PlaylistWithSongs{Playlist: *p, Songs: songs},
	})
}

// UpdatePlaylistHandler PUT /api/playlists/{id}
func (h *APIHandler) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPlaylist(w, r, true)
	if !ok {
		return
	}
	var update model.PlaylistUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" || len(name) > maxPlaylistName {
			writeError(w, http.StatusBadRequest, "Playlist name is required")
			return
		}
		update.Name = &name
	}
	if err := h.playlistRepo.Update(r.Context(), p.ID, update); err != nil {
		writePlaylistError(w, err)
		return
	}
	updated, err := h.playlistRepo.GetByID(r.Context(), p.ID)
	if err != nil {
		writeInternal(w, "Playlist", err)
		return
	}
	writeOK(w, map[string]interface{}{"playlist": updated})
}

// DeletePlaylistHandler DELETE /api/playlists/{id}
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPlaylist(w, r, true)
	if !ok {
		return
	}
	if err := h.playlistRepo.Delete(r.Context(), p.ID); err != nil {
		writePlaylistError(w, err)
		return
	}
	writeOK(w, nil)
}

// AddPlaylistSongHandler POST /api/playlists/{id}/songs {"songId": 1}
func (h *APIHandler) AddPlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPlaylist(w, r, true)
	if !ok {
		return
	}
	var req struct {
		SongID int64 `json:"songId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SongID <= 0 {
		writeError(w, http.StatusBadRequest, "songId is required")
		return
	}

	song, err := h.songRepo.GetByID(r.Context(), req.SongID)
	if err != nil {
		writeInternal(w, "Playlist", err)
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}

	ent, _, err := h.entitlements(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}
	count, err := h.playlistRepo.CountSongs(r.Context(), p.ID)
	if err != nil {
		writeInternal(w, "Playlist", err)
		return
	}
	if !ent.CanAddPlaylistSong(int(count)) {
		writeError(w, http.StatusForbidden, "Playlist is full, upgrade to premium for more songs")
		return
	}

	if err := h.playlistRepo.AddSong(r.Context(), p.ID, song.ID); err != nil {
		writePlaylistError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
}

// RemovePlaylistSongHandler DELETE /api/playlists/{id}/songs/{songId}
func (h *APIHandler) RemovePlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPlaylist(w, r, true)
	if !ok {
		return
	}
	songID, ok := pathID(r, "songId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid song id")
		return
	}
	if err := h.playlistRepo.RemoveSong(r.Context(), p.ID, songID); err != nil {
		writePlaylistError(w, err)
		return
	}
	writeOK(w, nil)
}

// MovePlaylistSongHandler PUT /api/playlists/{id}/songs/{songId}/position {"position": 0}
func (h *APIHandler) MovePlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPlaylist(w, r, true)
	if !ok {
		return
	}
	songID, ok := pathID(r, "songId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid song id")
		return
	}
	var req struct {
		Position *int `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Position == nil || *req.Position < 0 {
		writeError(w, http.StatusBadRequest, "position is required")
		return
	}
	if err := h.playlistRepo.MoveSong(r.Context(), p.ID, songID, *req.Position); err != nil {
		writePlaylistError(w, err)
		return
	}
	writeOK(w, nil)
}

func writePlaylistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, http.StatusConflict, "Song already in playlist")
	default:
		writeInternal(w, "Playlist", err)
	}
}
