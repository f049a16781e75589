package server

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"karaoke/logger"
	"karaoke/storage"
)

// MediaHandler 从 MinIO 代理 /media/{object}，支持 Range 请求
func (h *APIHandler) MediaHandler(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeError(w, http.StatusServiceUnavailable, "Media storage not configured")
		return
	}
	object := strings.TrimPrefix(r.URL.Path, mediaRoutePrefix)
	if object == "" || strings.Contains(object, "..") || path.Clean("/"+object) != "/"+object {
		writeError(w, http.StatusBadRequest, "Invalid object name")
		return
	}

	reader, info, err := h.media.Open(r.Context(), object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		writeInternal(w, "Media", err)
		return
	}
	defer reader.Close()

	contentType := info.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if ct := storage.AudioContentType(object); ct != "" {
			contentType = ct
		} else if ct := storage.ImageContentType(object); ct != "" {
			contentType = ct
		}
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if info.ETag != "" {
		w.Header().Set("ETag", `"`+info.ETag+`"`)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000") // 对象名唯一，可以长期缓存

	logger.Debug("[Media] serving object", logger.String("object", object), logger.Int64("size", info.Size))
	http.ServeContent(w, r, path.Base(object), info.LastModified, reader)
}
