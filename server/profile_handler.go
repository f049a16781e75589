package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"karaoke/model"
	"karaoke/repository"
)

const (
	maxDisplayName = 100
	maxBio         = 500
)

// GetProfileHandler GET /api/profile
func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"user": user})
}

// UpdateProfileHandler PUT /api/profile
func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var update model.ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if len(name) > maxDisplayName {
			writeError(w, http.StatusBadRequest, "Display name is too long")
			return
		}
		update.DisplayName = &name
	}
	if update.Bio != nil && len(*update.Bio) > maxBio {
		writeError(w, http.StatusBadRequest, "Bio is too long")
		return
	}
	if update.AvatarURL != nil && *update.AvatarURL != "" {
		u, err := url.Parse(*update.AvatarURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https" && !strings.HasPrefix(*update.AvatarURL, "/")) {
			writeError(w, http.StatusBadRequest, "Invalid avatar URL")
			return
		}
	}

	userID, _ := GetUserIDFromContext(r.Context())
	if err := h.userRepo.UpdateProfile(r.Context(), userID, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		writeInternal(w, "Profile", err)
		return
	}
	h.GetProfileHandler(w, r)
}

// EntitlementsHandler GET /api/profile/entitlements
func (h *APIHandler) EntitlementsHandler(w http.ResponseWriter, r *http.Request) {
	ent, _, err := h.entitlements(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"entitlements": ent})
}

// PremiumCrossfadeHandler GET /api/premium/crossfade 付费用户的淡入淡出设置
func (h *APIHandler) PremiumCrossfadeHandler(w http.ResponseWriter, r *http.Request) {
	ent, _, err := h.entitlements(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"enabled": ent.Crossfade,
		"seconds": ent.CrossfadeSeconds,
	})
}
