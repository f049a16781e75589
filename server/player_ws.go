package server

import (
	"context"
	"net/http"

	"karaoke/core/player"
	"karaoke/core/session"
	"karaoke/logger"
	"karaoke/repository"

	"github.com/gorilla/websocket"
)

var playerUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// songResolver 把曲库歌曲ID转换为播放队列
type songResolver struct {
	songs repository.SongRepository
}

func (r songResolver) ResolveTracks(ctx context.Context, songIDs []int64) ([]player.Track, error) {
	songs, err := r.songs.GetByIDs(ctx, songIDs)
	if err != nil {
		return nil, err
	}
	return player.FromSongs(songs), nil
}

// PlayerWebSocketHandler GET /ws/player 建立播放会话
func (h *APIHandler) PlayerWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Player sessions not available")
		return
	}
	ent, user, err := h.entitlements(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}

	// 升级前取得要恢复的状态：在线会话优先，其次是 Redis 中的快照
	var saved *player.SavedState
	if live := h.hub.Get(user.ID); live != nil {
		st := live.Controller.Export()
		saved = &st
	} else if h.playback != nil {
		if saved, err = h.playback.LoadPlayback(r.Context(), user.ID); err != nil {
			logger.Warn("[Player] failed to load saved state", logger.Int64("user", user.ID), logger.ErrorField(err))
		}
	}

	conn, err := playerUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[Player] websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := session.NewClient(conn)
	s := session.New(user.ID, user.Username, client, session.Options{
		Premium:          ent.Premium,
		CrossfadeSeconds: ent.CrossfadeSeconds,
		Resolver:         songResolver{songs: h.songRepo},
	})
	if saved != nil {
		if err := s.Restore(*saved); err != nil {
			logger.Warn("[Player] restore failed", logger.Int64("user", user.ID), logger.ErrorField(err))
		}
	}

	h.hub.Register(s)
	go client.WritePump()
	go func() {
		// 连接已被接管，请求上下文不再可用
		s.Serve(context.Background())
		h.hub.Unregister(s)
	}()

	logger.Info("[Player] websocket connected",
		logger.Int64("user", user.ID),
		logger.String("session", s.ID),
		logger.Bool("crossfade", ent.Crossfade))
}

// PlayerStateHandler GET /api/player/state
func (h *APIHandler) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserIDFromContext(r.Context())

	if h.hub != nil {
		if s := h.hub.Get(userID); s != nil {
			writeOK(w, map[string]interface{}{
				"live":    true,
				"session": s.ID,
				"state":   s.Controller.Snapshot(),
				"queue":   s.Controller.Tracks(),
			})
			return
		}
	}

	if h.playback == nil {
		writeOK(w, map[string]interface{}{"live": false, "saved": nil})
		return
	}
	saved, err := h.playback.LoadPlayback(r.Context(), userID)
	if err != nil {
		writeInternal(w, "Player", err)
		return
	}
	writeOK(w, map[string]interface{}{"live": false, "saved": saved})
}
