package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"karaoke/logger"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 64 * 1024 // queue 消息可能携带整个歌单
)

// Client WebSocket 客户端
type Client struct {
	Conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection. conn may be nil in tests.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		Conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Enqueue queues a frame without blocking. Returns false if the client is closed
// or its buffer is full.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendMessage 发送消息给客户端
func (c *Client) SendMessage(msg *WSMessage) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	if !c.Enqueue(data) {
		logger.Debug("[Session] dropping frame", logger.String("type", string(msg.Type)))
	}
	return nil
}

// CloseSend closes the outgoing queue; WritePump then sends a close frame and exits.
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump 读取消息循环，连接断开后返回
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, msg *WSMessage)) {
	defer c.Conn.Close()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("[Session] websocket read error", logger.ErrorField(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("[Session] invalid message format", logger.ErrorField(err))
			continue
		}

		if msg.Type == MsgTypePing {
			c.Conn.SetReadDeadline(time.Now().Add(pongWait))
			_ = c.SendMessage(&WSMessage{Type: MsgTypePong})
			continue
		}

		handler(ctx, &msg)
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 会话关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
