package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"karaoke/core/player"
	"karaoke/logger"

	"github.com/google/uuid"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrUnknownSlot    = errors.New("unknown media slot")
	ErrNoResolver     = errors.New("song ids cannot be resolved in this session")
)

// TrackResolver turns catalog song IDs into playable tracks.
type TrackResolver interface {
	ResolveTracks(ctx context.Context, songIDs []int64) ([]player.Track, error)
}

// StateStore persists the playback state of a closed session.
type StateStore interface {
	SavePlayback(ctx context.Context, userID int64, state player.SavedState) error
}

// Options configures a new session.
type Options struct {
	Premium          bool
	CrossfadeSeconds float64
	Resolver         TrackResolver
	PlayerOptions    []player.Option
}

// Session is one connected player: a websocket client, its remote media
// elements and the controller that exclusively owns them.
type Session struct {
	ID       string
	UserID   int64
	Username string

	Controller *player.Controller

	client    *Client
	elements  map[string]*RemoteElement
	resolver  TrackResolver
	sub       *player.Subscription
	forwarded chan struct{}
	closeOnce sync.Once
}

// New creates a session and starts forwarding controller state to the client.
func New(userID int64, username string, client *Client, opts Options) *Session {
	a := newRemoteElement(SlotA, client)
	elements := map[string]*RemoteElement{SlotA: a}

	playerOpts := append([]player.Option{}, opts.PlayerOptions...)
	crossfade := opts.Premium && opts.CrossfadeSeconds > 0
	if crossfade {
		b := newRemoteElement(SlotB, client)
		elements[SlotB] = b
		playerOpts = append(playerOpts, player.WithCrossfade(b, opts.CrossfadeSeconds))
	}

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		client:    client,
		elements:  elements,
		resolver:  opts.Resolver,
		forwarded: make(chan struct{}),
	}

	// hello 必须是第一帧，控制器创建时就会下发音量指令
	hello, _ := json.Marshal(map[string]interface{}{
		"sessionId": s.ID,
		"crossfade": crossfade,
		"slots":     len(elements),
	})
	_ = client.SendMessage(&WSMessage{Type: MsgTypeHello, Data: hello})

	s.Controller = player.New(a, playerOpts...)

	// 新建的控制器不会返回 ErrClosed
	s.sub, _ = s.Controller.Subscribe()
	go s.forward()
	return s
}

// forward pushes snapshots and notices to the browser until the controller closes.
func (s *Session) forward() {
	defer close(s.forwarded)
	changes, notices := s.sub.Changes, s.sub.Notices
	for changes != nil || notices != nil {
		select {
		case snap, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.sendJSON(MsgTypeState, snap)
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			s.sendJSON(MsgTypeNotice, n)
		}
	}
}

func (s *Session) sendJSON(t MessageType, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("[Session] failed to encode frame", logger.String("type", string(t)), logger.ErrorField(err))
		return
	}
	_ = s.client.SendMessage(&WSMessage{Type: t, Data: data})
}

// SendError reports a failed request to the browser.
func (s *Session) SendError(err error) {
	_ = s.client.SendMessage(&WSMessage{Type: MsgTypeError, Message: err.Error()})
}

// Serve reads frames until the connection drops. Errors are answered with error
// frames; rejected playback is already reported as a notice.
func (s *Session) Serve(ctx context.Context) {
	s.client.ReadPump(ctx, func(ctx context.Context, msg *WSMessage) {
		if err := s.HandleMessage(ctx, msg); err != nil && !errors.Is(err, player.ErrPlaybackRejected) {
			s.SendError(err)
		}
	})
}

// HandleMessage dispatches one browser frame.
func (s *Session) HandleMessage(ctx context.Context, msg *WSMessage) error {
	switch msg.Type {
	case MsgTypeEvent:
		return s.handleEvent(msg)
	case MsgTypeControl:
		return s.handleControl(ctx, msg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

func (s *Session) handleEvent(msg *WSMessage) error {
	el, ok := s.elements[msg.Slot]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, msg.Slot)
	}
	// 事件属于已经替换掉的源
	if msg.Src != "" && msg.Src != el.Source() {
		return nil
	}

	c := s.Controller
	switch msg.Op {
	case EventLoadedMetadata:
		c.HandleLoadedMetadata(el, msg.Value)
	case EventTimeUpdate:
		c.HandleTimeUpdate(el, msg.Value)
	case EventEnded:
		c.HandleEnded(el)
	case EventError:
		c.HandleError(el, browserError(msg, "media error"))
	case EventPaused:
		c.HandlePaused(el)
	case EventPlayRejected:
		c.HandlePlayRejected(el, browserError(msg, "play rejected"))
	default:
		return fmt.Errorf("%w: event %q", ErrUnknownMessage, msg.Op)
	}
	return nil
}

func browserError(msg *WSMessage, fallback string) error {
	if msg.Message != "" {
		return errors.New(msg.Message)
	}
	return errors.New(fallback)
}

func (s *Session) handleControl(ctx context.Context, msg *WSMessage) error {
	c := s.Controller
	switch msg.Op {
	case ControlPlay:
		return c.Play()
	case ControlPause:
		return c.Pause()
	case ControlToggle:
		return c.TogglePlay()
	case ControlNext:
		return c.Next()
	case ControlPrev:
		return c.Previous()
	case ControlSeek:
		return c.Seek(msg.Value)
	case ControlVolume:
		return c.SetVolume(msg.Value)
	case ControlMute:
		return c.ToggleMute()
	case ControlLoop:
		return c.ToggleLoop()
	case ControlShuffle:
		return c.ToggleShuffle()
	case ControlSelect:
		return c.Select(msg.Index, msg.Play)
	case ControlQueue:
		return s.replaceQueue(ctx, msg.Data)
	default:
		return fmt.Errorf("%w: control %q", ErrUnknownMessage, msg.Op)
	}
}

func (s *Session) replaceQueue(ctx context.Context, raw json.RawMessage) error {
	var data QueueData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("invalid queue payload: %w", err)
	}

	var tracks []player.Track
	if len(data.SongIDs) > 0 {
		if s.resolver == nil {
			return ErrNoResolver
		}
		resolved, err := s.resolver.ResolveTracks(ctx, data.SongIDs)
		if err != nil {
			return fmt.Errorf("failed to resolve songs: %w", err)
		}
		tracks = resolved
	} else {
		for _, t := range data.Tracks {
			if t.MediaURL != "" {
				tracks = append(tracks, t)
			}
		}
	}

	if err := s.Controller.SetQueue(tracks); err != nil {
		return err
	}
	if len(tracks) == 0 || (!data.Play && data.StartIndex == 0) {
		return nil
	}
	return s.Controller.Select(data.StartIndex, data.Play)
}

// Restore resumes a previously saved playback state.
func (s *Session) Restore(state player.SavedState) error {
	if len(state.Queue) == 0 {
		return nil
	}
	return s.Controller.Restore(state)
}

// close saves the playback state, releases the controller's elements and
// closes the connection's send queue. Safe to call more than once.
func (s *Session) close(store StateStore) {
	s.closeOnce.Do(func() {
		saved := s.Controller.Export()
		if store != nil && len(saved.Queue) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := store.SavePlayback(ctx, s.UserID, saved); err != nil {
				logger.Warn("[Session] failed to save playback state",
					logger.Int64("user", s.UserID),
					logger.ErrorField(err))
			}
			cancel()
		}

		_ = s.Controller.Close()
		<-s.forwarded
		s.client.CloseSend()

		logger.Info("[Session] closed",
			logger.String("session", s.ID),
			logger.Int64("user", s.UserID))
	})
}
