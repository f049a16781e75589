package player

import "errors"

var (
	// ErrPlaybackRejected 媒体元素拒绝播放（如浏览器自动播放策略）
	ErrPlaybackRejected = errors.New("playback rejected by media element")
	// ErrClosed the controller has been closed and released its elements
	ErrClosed = errors.New("player controller closed")
	// ErrNoTrack there is nothing in the queue to play
	ErrNoTrack = errors.New("no track to play")
)
