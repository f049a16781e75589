package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"karaoke/core/auth"
	"karaoke/logger"
	"karaoke/model"
	"karaoke/repository"
)

// SessionCookie 登录后下发的 HttpOnly cookie 名
const SessionCookie = "session"

type ctxKey int

const (
	userIDKey ctxKey = iota
	usernameKey
	userKey
)

// Access 路由所需的访问级别
type Access int

const (
	AccessPublic Access = iota
	AccessUser
	AccessPremium
	AccessAdmin
)

type routeRule struct {
	prefix string
	access Access
}

// defaultRules 前缀表，按最长前缀匹配，未命中的路径公开
var defaultRules = []routeRule{
	{"/api/auth/me", AccessUser},
	{"/api/playlists", AccessUser},
	{"/api/favorites", AccessUser},
	{"/api/profile", AccessUser},
	{"/api/player", AccessUser},
	{"/api/billing", AccessUser},
	{"/ws/player", AccessUser},
	{"/api/premium", AccessPremium},
	{"/api/admin", AccessAdmin},
}

// RouteGuard authenticates requests and enforces the prefix table.
type RouteGuard struct {
	tokens *auth.TokenManager
	users  repository.UserRepository
	rules  []routeRule
}

// NewRouteGuard 创建路由守卫
func NewRouteGuard(tokens *auth.TokenManager, users repository.UserRepository) *RouteGuard {
	return &RouteGuard{tokens: tokens, users: users, rules: defaultRules}
}

// hasPrefix matches whole path segments: /api/playlists matches
// /api/playlists/3 but not /api/playlistsx.
func hasPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// Required returns the access level for path.
func (g *RouteGuard) Required(path string) Access {
	best, bestLen := AccessPublic, -1
	for _, rule := range g.rules {
		if hasPrefix(path, rule.prefix) && len(rule.prefix) > bestLen {
			best, bestLen = rule.access, len(rule.prefix)
		}
	}
	return best
}

// tokenFromRequest reads the bearer header, then the session cookie, then
// the token query parameter (browsers cannot set headers on websockets).
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// Middleware 鉴权中间件；公开路由上的有效令牌同样会写入上下文
func (g *RouteGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		required := g.Required(r.URL.Path)

		token := tokenFromRequest(r)
		if token == "" {
			if required > AccessPublic {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.tokens.ParseToken(token)
		if err != nil {
			if required > AccessPublic {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, usernameKey, claims.Username)

		if required >= AccessPremium {
			// 付费状态可能在令牌签发后变化，需要查库
			u, err := g.users.GetUserByID(ctx, claims.UserID)
			if err != nil {
				writeInternal(w, "Guard", err)
				return
			}
			if u == nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			if required == AccessAdmin && !u.IsAdmin() {
				logger.Warn("[Guard] admin route denied",
					logger.Int64("user", u.ID),
					logger.String("path", r.URL.Path))
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}
			if required == AccessPremium && !u.Premium && !u.IsAdmin() {
				writeError(w, http.StatusForbidden, "Premium subscription required")
				return
			}
			ctx = context.WithValue(ctx, userKey, u)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range, Stripe-Signature")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(usernameKey).(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// UserFromContext returns the user loaded by the guard on premium/admin routes.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}
