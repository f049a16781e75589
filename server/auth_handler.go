package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"karaoke/core/auth"
	"karaoke/logger"
	"karaoke/model"
	"karaoke/repository"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"` // 可以是用户名或邮箱
	Password string `json:"password"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// AuthResponse 登录/注册成功的响应
type AuthResponse struct {
	Success   bool        `json:"success"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// LoginHandler handles user login requests
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("[Login] 解析请求体失败", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username/Email and password are required")
		return
	}

	// 支持用户名或邮箱登录
	var (
		user *model.User
		err  error
	)
	if strings.Contains(req.Username, "@") {
		user, err = h.userRepo.GetUserByEmail(r.Context(), req.Username)
	} else {
		user, err = h.userRepo.GetUserByUsername(r.Context(), req.Username)
	}
	if err != nil {
		writeInternal(w, "Login", err)
		return
	}
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Warn("[Login] 用户名或密码错误", logger.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "Invalid username/email or password")
		return
	}

	h.issueSession(w, user)
	logger.Info("[Login] 登录成功", logger.String("username", user.Username))
}

// RegisterHandler handles user registration requests
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Password == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Username, password and email are required")
		return
	}
	if strings.Contains(req.Username, "@") || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "Invalid username or email")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, "Password is too short")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		writeInternal(w, "Register", err)
		return
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Role:         model.UserRoleMember,
	}
	if _, err := h.userRepo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			logger.Warn("[Register] 用户名或邮箱已存在",
				logger.String("username", req.Username),
				logger.String("email", req.Email))
			writeError(w, http.StatusConflict, "Username or email already exists")
			return
		}
		writeInternal(w, "Register", err)
		return
	}

	h.issueSession(w, user)
	logger.Info("[Register] 注册成功", logger.Int64("user", user.ID), logger.String("username", user.Username))
}

// issueSession 签发令牌，同时写入 cookie 和响应体
func (h *APIHandler) issueSession(w http.ResponseWriter, user *model.User) {
	token, expiresAt, err := h.tokens.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		writeInternal(w, "Auth", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, &AuthResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// LogoutHandler 清除会话 cookie
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, nil)
}

// MeHandler returns the logged-in user with their entitlements.
func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	ent, user, err := h.entitlements(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"user":         user,
		"entitlements": ent,
	})
}

// writeAuthLookupError maps a failed currentUser lookup.
func writeAuthLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUserGone) {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	writeInternal(w, "Auth", err)
}
