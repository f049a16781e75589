package session

import (
	"encoding/json"
	"time"

	"karaoke/core/player"
)

// MessageType 消息类型
type MessageType string

const (
	// 系统消息
	MsgTypeHello MessageType = "hello" // 连接建立，下发会话ID
	MsgTypeError MessageType = "error" // 错误消息
	MsgTypePing  MessageType = "ping"  // 心跳
	MsgTypePong  MessageType = "pong"  // 心跳响应

	// 服务端 -> 浏览器
	MsgTypeCommand MessageType = "cmd"    // 媒体元素指令
	MsgTypeState   MessageType = "state"  // 播放状态快照
	MsgTypeNotice  MessageType = "notice" // 用户提示

	// 浏览器 -> 服务端
	MsgTypeEvent   MessageType = "event"   // 媒体元素事件
	MsgTypeControl MessageType = "control" // 播放控制
)

// 媒体元素指令
const (
	OpLoad    = "load"
	OpPlay    = "play"
	OpPause   = "pause"
	OpSeek    = "seek"
	OpVolume  = "volume"
	OpRelease = "release"
)

// 媒体元素事件
const (
	EventLoadedMetadata = "loadedmetadata"
	EventTimeUpdate     = "timeupdate"
	EventEnded          = "ended"
	EventError          = "error"
	EventPaused         = "paused"
	EventPlayRejected   = "playrejected"
)

// 播放控制
const (
	ControlPlay    = "play"
	ControlPause   = "pause"
	ControlToggle  = "toggle"
	ControlNext    = "next"
	ControlPrev    = "prev"
	ControlSeek    = "seek"
	ControlVolume  = "volume"
	ControlMute    = "mute"
	ControlLoop    = "loop"
	ControlShuffle = "shuffle"
	ControlSelect  = "select"
	ControlQueue   = "queue"
)

// 浏览器端的两个媒体元素槽位，b 只用于交叉淡入淡出
const (
	SlotA = "a"
	SlotB = "b"
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Slot      string          `json:"slot,omitempty"`
	Op        string          `json:"op,omitempty"`
	Src       string          `json:"src,omitempty"`
	Value     float64         `json:"value"`
	Index     int             `json:"index,omitempty"`
	Play      bool            `json:"play,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// QueueData 替换播放队列：songIds 由服务端解析，tracks 直接使用
type QueueData struct {
	SongIDs    []int64        `json:"songIds,omitempty"`
	Tracks     []player.Track `json:"tracks,omitempty"`
	StartIndex int            `json:"startIndex"`
	Play       bool           `json:"play"`
}

func encode(msg *WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UnixMilli()
	return json.Marshal(msg)
}
