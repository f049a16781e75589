package session

import (
	"sync"

	"karaoke/logger"
)

// Hub 播放会话管理中心，每个用户同一时间只有一个会话
type Hub struct {
	sessions map[int64]*Session

	register   chan *Session
	unregister chan *Session

	store StateStore

	mu       sync.RWMutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub 创建会话 Hub，store 可以为 nil
func NewHub(store StateStore) *Hub {
	return &Hub{
		sessions:   make(map[int64]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		store:      store,
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.registerSession(s)

		case s := <-h.unregister:
			h.unregisterSession(s)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub，关闭所有会话
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// registerSession 注册会话，同一用户的旧会话会被关闭
func (h *Hub) registerSession(s *Session) {
	h.mu.Lock()
	old := h.sessions[s.UserID]
	h.sessions[s.UserID] = s
	h.mu.Unlock()

	if old != nil && old != s {
		logger.Info("[Session] replacing existing session",
			logger.Int64("user", s.UserID),
			logger.String("old", old.ID),
			logger.String("new", s.ID))
		old.close(h.store)
	}

	logger.Info("[Session] registered",
		logger.Int64("user", s.UserID),
		logger.String("username", s.Username),
		logger.String("session", s.ID))
}

// unregisterSession 注销会话；已被替换的会话只做关闭
func (h *Hub) unregisterSession(s *Session) {
	h.mu.Lock()
	if h.sessions[s.UserID] == s {
		delete(h.sessions, s.UserID)
	}
	h.mu.Unlock()

	s.close(h.store)
}

// cleanup 关闭所有会话
func (h *Hub) cleanup() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[int64]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close(h.store)
	}
}

// Register 注册会话
func (h *Hub) Register(s *Session) {
	select {
	case h.register <- s:
	case <-h.done:
		s.close(h.store)
	}
}

// Unregister 注销会话
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
		s.close(h.store)
	}
}

// Get 获取用户当前会话
func (h *Hub) Get(userID int64) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

// Count 在线会话数量
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
