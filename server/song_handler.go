package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"karaoke/cache"
	"karaoke/core/catalog"
	"karaoke/core/karaoke"
	"karaoke/core/player"
	"karaoke/logger"
	"karaoke/model"
	"karaoke/repository"
	"karaoke/storage"
)

const (
	maxUploadSize    = 200 << 20
	maxCatalogSize   = 4 << 20
	collectionsLimit = 50
	mediaRoutePrefix = "/media/"
)

// SearchSongsHandler GET /api/songs?q=&genre=&page=&limit=
func (h *APIHandler) SearchSongsHandler(w http.ResponseWriter, r *http.Request) {
	q := model.SongQuery{
		Keyword: strings.TrimSpace(r.URL.Query().Get("q")),
		Genre:   r.URL.Query().Get("genre"),
		Page:    queryInt(r, "page", 1),
		Limit:   queryInt(r, "limit", 20),
	}.Normalize()

	var (
		page *cache.SearchPage
		hit  bool
	)
	version, err := h.songCache.Version(r.Context())
	cacheUp := err == nil
	if cacheUp {
		page, hit, err = h.songCache.GetSearch(r.Context(), version, q)
	}
	if err != nil {
		// 缓存不可用时直接查库
		logger.Warn("[Songs] cache read failed", logger.ErrorField(err))
	}
	if !hit {
		songs, total, err := h.songRepo.Search(r.Context(), q)
		if err != nil {
			writeInternal(w, "Songs", err)
			return
		}
		page = &cache.SearchPage{Songs: songs, Total: total}
		if cacheUp {
			if err := h.songCache.SetSearch(r.Context(), version, q, page); err != nil {
				logger.Warn("[Songs] cache write failed", logger.ErrorField(err))
			}
		}
	}

	writeOK(w, map[string]interface{}{
		"songs": page.Songs,
		"total": page.Total,
		"page":  q.Page,
		"limit": q.Limit,
	})
}

// GetSongHandler GET /api/songs/{id}
func (h *APIHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid song id")
		return
	}
	song, err := h.songRepo.GetByID(r.Context(), id)
	if err != nil {
		writeInternal(w, "Songs", err)
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}
	writeOK(w, map[string]interface{}{"song": song})
}

// SongMediaHandler GET /api/songs/{id}/media redirects to a playable URL:
// presigned for uploads, the stored URL otherwise.
func (h *APIHandler) SongMediaHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid song id")
		return
	}
	song, err := h.songRepo.GetByID(r.Context(), id)
	if err != nil {
		writeInternal(w, "Songs", err)
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}

	target := song.MediaURL
	if song.ObjectKey != "" && h.media != nil {
		if u, err := h.media.Presign(r.Context(), song.ObjectKey); err == nil {
			target = u
		} else {
			logger.Warn("[Songs] presign failed, using proxy", logger.ErrorField(err))
		}
	}
	if target == "" && song.YouTubeID != "" {
		target = player.YouTubeWatchURL(song.YouTubeID)
	}
	if target == "" {
		writeError(w, http.StatusNotFound, "Song has no media")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// CollectionsHandler GET /api/collections：公开歌单及其歌曲
func (h *APIHandler) CollectionsHandler(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.playlistRepo.ListPublic(r.Context(), collectionsLimit)
	if err != nil {
		writeInternal(w, "Collections", err)
		return
	}

	resp := model.CollectionsResponse{Success: true, Collections: make([]*model.Collection, 0, len(playlists))}
	for _, p := range playlists {
		songs, err := h.playlistRepo.GetSongs(r.Context(), p.ID)
		if err != nil {
			writeInternal(w, "Collections", err)
			return
		}
		owner := ""
		if u, err := h.userRepo.GetUserByID(r.Context(), p.UserID); err == nil && u != nil {
			owner = u.Username
		}
		resp.Collections = append(resp.Collections, &model.Collection{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			CoverURL:    p.CoverURL,
			Owner:       owner,
			Songs:       songs,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// UploadSongHandler POST /api/admin/songs
// multipart 字段: audio (必填), thumbnail, title (必填), artist, genre, language, duration, lyrics
func (h *APIHandler) UploadSongHandler(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeError(w, http.StatusServiceUnavailable, "Media storage not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "Missing 'title' in form")
		return
	}

	audio, audioHeader, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing 'audio' in form")
		return
	}
	defer audio.Close()

	contentType := storage.AudioContentType(audioHeader.Filename)
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "Unsupported audio format")
		return
	}

	ctx := r.Context()
	objectKey := storage.NewObjectName(storage.PrefixAudio, audioHeader.Filename)
	if err := h.media.Put(ctx, objectKey, audio, audioHeader.Size, contentType); err != nil {
		writeInternal(w, "Upload", err)
		return
	}

	song := &model.Song{
		Title:     title,
		Artist:    strings.TrimSpace(r.FormValue("artist")),
		Genre:     r.FormValue("genre"),
		Language:  r.FormValue("language"),
		Lyrics:    r.FormValue("lyrics"),
		Source:    model.SongSourceUpload,
		ObjectKey: objectKey,
		MediaURL:  mediaRoutePrefix + objectKey,
	}
	if d, err := strconv.ParseFloat(r.FormValue("duration"), 64); err == nil && d > 0 {
		song.DurationSeconds = d
	}

	if thumb, thumbHeader, err := r.FormFile("thumbnail"); err == nil {
		defer thumb.Close()
		if ct := storage.ImageContentType(thumbHeader.Filename); ct != "" {
			thumbKey := storage.NewObjectName(storage.PrefixThumbnail, thumbHeader.Filename)
			if err := h.media.Put(ctx, thumbKey, thumb, thumbHeader.Size, ct); err != nil {
				logger.Warn("[Upload] thumbnail upload failed", logger.ErrorField(err))
			} else {
				song.ThumbnailURL = mediaRoutePrefix + thumbKey
			}
		}
	}

	if err := h.songRepo.Create(ctx, song); err != nil {
		// 数据库失败时清理已上传的对象
		if rerr := h.media.Remove(ctx, objectKey); rerr != nil {
			logger.Warn("[Upload] failed to remove orphan object", logger.String("object", objectKey), logger.ErrorField(rerr))
		}
		writeInternal(w, "Upload", err)
		return
	}
	h.invalidateSongs(r)

	logger.Info("[Upload] song uploaded",
		logger.Int64("song", song.ID),
		logger.String("title", song.Title),
		logger.String("object", objectKey))
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "song": song})
}

// DeleteSongHandler DELETE /api/admin/songs/{id}
func (h *APIHandler) DeleteSongHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid song id")
		return
	}
	song, err := h.songRepo.GetByID(r.Context(), id)
	if err != nil {
		writeInternal(w, "Songs", err)
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}
	if err := h.songRepo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Song not found")
			return
		}
		writeInternal(w, "Songs", err)
		return
	}
	if song.ObjectKey != "" && h.media != nil {
		if err := h.media.Remove(r.Context(), song.ObjectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			logger.Warn("[Songs] failed to remove media object", logger.ErrorField(err))
		}
	}
	h.invalidateSongs(r)
	writeOK(w, nil)
}

// ImportCatalogHandler POST /api/admin/catalog 请求体为 YAML 或 JSON 曲库
func (h *APIHandler) ImportCatalogHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCatalogSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	f, err := catalog.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.importer.Import(r.Context(), f)
	if err != nil {
		writeInternal(w, "Catalog", err)
		return
	}
	h.invalidateSongs(r)
	writeOK(w, map[string]interface{}{"result": res})
}

// AddKaraokeSongHandler POST /api/admin/karaoke/{videoId} 把 YouTube 视频加入曲库
func (h *APIHandler) AddKaraokeSongHandler(w http.ResponseWriter, r *http.Request) {
	if h.karaoke == nil {
		writeError(w, http.StatusServiceUnavailable, "Karaoke search not configured")
		return
	}
	id, ok := karaoke.ExtractVideoID(muxVar(r, "videoId"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid video id")
		return
	}
	v, err := h.karaoke.Lookup(r.Context(), id)
	if err != nil {
		writeKaraokeError(w, err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	song := v.Song()
	inserted, err := h.songRepo.UpsertByCatalogKey(r.Context(), song)
	if err != nil {
		writeInternal(w, "Karaoke", err)
		return
	}
	h.invalidateSongs(r)
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"success": true, "song": song})
}

func (h *APIHandler) invalidateSongs(r *http.Request) {
	if err := h.songCache.Invalidate(r.Context()); err != nil {
		logger.Warn("[Songs] cache invalidation failed", logger.ErrorField(err))
	}
}
