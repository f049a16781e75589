package server

import (
	"context"
	"io"
	"net/http"

	"karaoke/cache"
	"karaoke/config"
	"karaoke/core/auth"
	"karaoke/core/billing"
	"karaoke/core/catalog"
	"karaoke/core/karaoke"
	"karaoke/core/player"
	"karaoke/core/session"
	"karaoke/model"
	"karaoke/repository"
	"karaoke/storage"
)

// MediaStore is the object storage used for uploads and the /media proxy.
type MediaStore interface {
	Put(ctx context.Context, object string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, object string) (io.ReadSeekCloser, storage.ObjectInfo, error)
	Presign(ctx context.Context, object string) (string, error)
	Remove(ctx context.Context, object string) error
}

// PlaybackStore keeps the player state between connections.
type PlaybackStore interface {
	session.StateStore
	LoadPlayback(ctx context.Context, userID int64) (*player.SavedState, error)
}

// KaraokeSearcher finds karaoke videos.
type KaraokeSearcher interface {
	Search(ctx context.Context, q string, limit int) ([]karaoke.Video, error)
	Lookup(ctx context.Context, id string) (*karaoke.Video, error)
}

// CheckoutGateway verifies Stripe webhooks and starts checkouts.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, u *model.User) (string, error)
	ParseWebhook(payload []byte, signature string) (*billing.Event, error)
}

// WebhookVerifier verifies PayPal webhooks.
type WebhookVerifier interface {
	ParseWebhook(ctx context.Context, header http.Header, body []byte) (*billing.Event, error)
}

// Deps 构建 APIHandler 所需的依赖，可选项为 nil 时对应接口返回 503
type Deps struct {
	Config *config.Config

	Users         repository.UserRepository
	Songs         repository.SongRepository
	Playlists     repository.PlaylistRepository
	Favorites     repository.FavoriteRepository
	PaymentEvents repository.PaymentEventRepository

	Tokens    *auth.TokenManager
	Media     MediaStore
	SongCache *cache.SongCache
	Playback  PlaybackStore
	Hub       *session.Hub
	Karaoke   KaraokeSearcher
	Stripe    CheckoutGateway
	PayPal    WebhookVerifier
}

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg *config.Config

	userRepo     repository.UserRepository
	songRepo     repository.SongRepository
	playlistRepo repository.PlaylistRepository
	favoriteRepo repository.FavoriteRepository

	tokens    *auth.TokenManager
	limits    billing.Limits
	billing   *billing.Service
	importer  *catalog.Importer
	media     MediaStore
	songCache *cache.SongCache
	playback  PlaybackStore
	hub       *session.Hub
	karaoke   KaraokeSearcher
	stripe    CheckoutGateway
	paypal    WebhookVerifier
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(d Deps) *APIHandler {
	return &APIHandler{
		cfg:          d.Config,
		userRepo:     d.Users,
		songRepo:     d.Songs,
		playlistRepo: d.Playlists,
		favoriteRepo: d.Favorites,
		tokens:       d.Tokens,
		limits:       billing.LimitsFromConfig(d.Config),
		billing:      billing.NewService(d.Users, d.PaymentEvents),
		importer:     catalog.NewImporter(d.Songs),
		media:        d.Media,
		songCache:    d.SongCache,
		playback:     d.Playback,
		hub:          d.Hub,
		karaoke:      d.Karaoke,
		stripe:       d.Stripe,
		paypal:       d.PayPal,
	}
}

// currentUser loads the authenticated user. The guard has already rejected
// anonymous requests on protected routes.
func (h *APIHandler) currentUser(r *http.Request) (*model.User, error) {
	if u := UserFromContext(r.Context()); u != nil {
		return u, nil
	}
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return nil, err
	}
	u, err := h.userRepo.GetUserByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errUserGone
	}
	return u, nil
}

// entitlements returns what the current user may do.
func (h *APIHandler) entitlements(r *http.Request) (billing.Entitlements, *model.User, error) {
	u, err := h.currentUser(r)
	if err != nil {
		return billing.Entitlements{}, nil, err
	}
	return h.limits.For(u), u, nil
}
