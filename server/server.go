package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"karaoke/cache"
	"karaoke/config"
	"karaoke/core/auth"
	"karaoke/core/billing"
	"karaoke/core/catalog"
	"karaoke/core/karaoke"
	"karaoke/core/session"
	"karaoke/db"
	"karaoke/logger"
	"karaoke/repository"
	"karaoke/storage"

	"github.com/gorilla/mux"
)

// NewRouter 注册所有路由，并套上 CORS 与鉴权守卫
func NewRouter(h *APIHandler, guard *RouteGuard) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, nil)
	}).Methods(http.MethodGet)

	// 用户认证
	router.HandleFunc("/api/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", h.LogoutHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/me", h.MeHandler).Methods(http.MethodGet)

	// 曲库
	router.HandleFunc("/api/songs", h.SearchSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", h.GetSongHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}/media", h.SongMediaHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/collections", h.CollectionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/karaoke/search", h.KaraokeSearchHandler).Methods(http.MethodGet)
	router.PathPrefix(mediaRoutePrefix).HandlerFunc(h.MediaHandler).Methods(http.MethodGet, http.MethodHead)

	// 歌单
	router.HandleFunc("/api/playlists", h.ListPlaylistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", h.CreatePlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}", h.GetPlaylistHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", h.UpdatePlaylistHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}", h.DeletePlaylistHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/songs", h.AddPlaylistSongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/songs/{songId}", h.RemovePlaylistSongHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/songs/{songId}/position", h.MovePlaylistSongHandler).Methods(http.MethodPut)

	// 收藏
	router.HandleFunc("/api/favorites", h.ListFavoritesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/favorites/{songId}", h.AddFavoriteHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/favorites/{songId}", h.RemoveFavoriteHandler).Methods(http.MethodDelete)

	// 个人资料与权益
	router.HandleFunc("/api/profile", h.GetProfileHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/profile", h.UpdateProfileHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/profile/entitlements", h.EntitlementsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/premium/crossfade", h.PremiumCrossfadeHandler).Methods(http.MethodGet)

	// 支付
	router.HandleFunc("/api/billing/stripe/checkout", h.StripeCheckoutHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/webhooks/stripe", h.StripeWebhookHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/webhooks/paypal", h.PayPalWebhookHandler).Methods(http.MethodPost)

	// 播放器
	router.HandleFunc("/api/player/state", h.PlayerStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/player", h.PlayerWebSocketHandler)

	// 管理员
	router.HandleFunc("/api/admin/songs", h.UploadSongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/songs/{id}", h.DeleteSongHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/admin/catalog", h.ImportCatalogHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/karaoke/{videoId}", h.AddKaraokeSongHandler).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	logger.Info("[Server] API endpoints registered",
		logger.String("endpoints", "/api/auth, /api/songs, /api/collections, /api/playlists, /api/favorites, /api/profile, /api/karaoke, /api/billing, /api/webhooks, /api/admin, /media, WS /ws/player"))

	return corsMiddleware(guard.Middleware(router))
}

// Start connects every backend, serves HTTP and blocks until SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	gormDB, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(gormDB); err != nil {
		return err
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		return err
	}
	defer db.CloseRedis()
	logger.Info("[Server] connected to Redis")

	var media MediaStore
	store, err := storage.NewMediaStore(cfg)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = store.EnsureBucket(ctx)
		cancel()
	}
	if err != nil {
		// 没有对象存储时上传和 /media 返回 503，其余功能正常
		logger.Warn("[Server] media storage unavailable", logger.ErrorField(err))
	} else {
		media = store
	}

	playback := cache.NewPlaybackCache(redisClient)
	hub := session.NewHub(playback)
	go hub.Run()
	defer hub.Stop()

	users := repository.NewGormUserRepository(gormDB)
	songs := repository.NewGormSongRepository(gormDB)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)

	deps := Deps{
		Config:        cfg,
		Users:         users,
		Songs:         songs,
		Playlists:     repository.NewGormPlaylistRepository(gormDB),
		Favorites:     repository.NewGormFavoriteRepository(gormDB),
		PaymentEvents: repository.NewGormPaymentEventRepository(gormDB),
		Tokens:        tokens,
		Media:         media,
		SongCache:     cache.NewSongCache(redisClient),
		Playback:      playback,
		Hub:           hub,
		Stripe:        billing.NewStripeGateway(cfg),
		PayPal:        billing.NewPayPalVerifier(cfg),
	}
	if ks := karaoke.NewService(cfg); ks.Enabled() {
		deps.Karaoke = ks
	}
	handler := NewAPIHandler(deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.CatalogFile != "" {
		watcher := catalog.NewWatcher(cfg.CatalogFile, catalog.NewImporter(songs))
		watcher.OnImport = func(_ catalog.Result, err error) {
			if err == nil {
				_ = deps.SongCache.Invalidate(context.Background())
			}
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("[Server] catalog watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      NewRouter(handler, NewRouteGuard(tokens, users)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] starting", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("[Server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("[Server] stopped")
	return nil
}
