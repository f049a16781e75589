package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karaoke/core/player"
)

type fakeResolver struct {
	tracks map[int64]player.Track
}

func (f *fakeResolver) ResolveTracks(_ context.Context, ids []int64) ([]player.Track, error) {
	var out []player.Track
	for _, id := range ids {
		if t, ok := f.tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

type memoryStore struct {
	mu    sync.Mutex
	saved map[int64]player.SavedState
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[int64]player.SavedState)}
}

func (m *memoryStore) SavePlayback(_ context.Context, userID int64, state player.SavedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[userID] = state
	return nil
}

func (m *memoryStore) get(userID int64) (player.SavedState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saved[userID]
	return s, ok
}

// commands drains the client's queue and returns the cmd frames in order.
func commands(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err == nil && msg.Type == MsgTypeCommand {
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func findOp(cmds []WSMessage, slot, op string) (WSMessage, bool) {
	for _, c := range cmds {
		if c.Slot == slot && c.Op == op {
			return c, true
		}
	}
	return WSMessage{}, false
}

func queueMessage(t *testing.T, data QueueData) *WSMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &WSMessage{Type: MsgTypeControl, Op: ControlQueue, Data: raw}
}

var testTracks = []player.Track{
	{ID: "1", Title: "One", MediaURL: "/media/1.mp3", DurationSeconds: 100},
	{ID: "2", Title: "Two", MediaURL: "/media/2.mp3", DurationSeconds: 100},
}

func TestSession_HelloIsFirstFrame(t *testing.T) {
	client := NewClient(nil)
	s := New(3, "carol", client, Options{Premium: true, CrossfadeSeconds: 6})
	defer s.close(nil)

	select {
	case data := <-client.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MsgTypeHello, msg.Type)
	default:
		t.Fatal("no frame queued")
	}
}

func TestSession_QueueAndPlayRoundTrip(t *testing.T) {
	client := NewClient(nil)
	s := New(7, "alice", client, Options{})
	defer s.close(nil)
	ctx := context.Background()

	require.NoError(t, s.HandleMessage(ctx, queueMessage(t, QueueData{Tracks: testTracks, Play: true})))

	load, ok := findOp(commands(client), SlotA, OpLoad)
	require.True(t, ok)
	assert.Equal(t, "/media/1.mp3", load.Src)

	require.NoError(t, s.HandleMessage(ctx, &WSMessage{
		Type: MsgTypeEvent, Slot: SlotA, Op: EventLoadedMetadata, Src: "/media/1.mp3", Value: 98,
	}))
	_, ok = findOp(commands(client), SlotA, OpPlay)
	assert.True(t, ok)

	snap := s.Controller.Snapshot()
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 98.0, snap.DurationSeconds)

	require.NoError(t, s.HandleMessage(ctx, &WSMessage{Type: MsgTypeControl, Op: ControlSeek, Value: 30}))
	seek, ok := findOp(commands(client), SlotA, OpSeek)
	require.True(t, ok)
	assert.Equal(t, 30.0, seek.Value)
}

func TestSession_StaleEventsAreIgnored(t *testing.T) {
	client := NewClient(nil)
	s := New(7, "alice", client, Options{})
	defer s.close(nil)
	ctx := context.Background()

	require.NoError(t, s.HandleMessage(ctx, queueMessage(t, QueueData{Tracks: testTracks, Play: true})))
	require.NoError(t, s.HandleMessage(ctx, &WSMessage{Type: MsgTypeControl, Op: ControlNext}))

	// error for the track that was replaced
	require.NoError(t, s.HandleMessage(ctx, &WSMessage{
		Type: MsgTypeEvent, Slot: SlotA, Op: EventError, Src: "/media/1.mp3",
	}))
	snap := s.Controller.Snapshot()
	assert.Equal(t, "2", snap.CurrentTrack.ID)
	assert.Equal(t, player.StateLoading, snap.State)
}

func TestSession_ResolvesSongIDs(t *testing.T) {
	client := NewClient(nil)
	resolver := &fakeResolver{tracks: map[int64]player.Track{
		1: testTracks[0],
		2: testTracks[1],
	}}
	s := New(7, "alice", client, Options{Resolver: resolver})
	defer s.close(nil)

	require.NoError(t, s.HandleMessage(context.Background(), queueMessage(t, QueueData{SongIDs: []int64{2, 1, 99}, StartIndex: 1})))

	snap := s.Controller.Snapshot()
	assert.Equal(t, 2, snap.QueueLength)
	assert.Equal(t, "1", snap.CurrentTrack.ID)
	assert.False(t, snap.IsPlaying)

	noResolver := New(8, "bob", NewClient(nil), Options{})
	defer noResolver.close(nil)
	err := noResolver.HandleMessage(context.Background(), queueMessage(t, QueueData{SongIDs: []int64{1}}))
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestSession_CrossfadeSlotOnlyForPremium(t *testing.T) {
	ctx := context.Background()
	event := &WSMessage{Type: MsgTypeEvent, Slot: SlotB, Op: EventTimeUpdate, Value: 1}

	free := New(1, "free", NewClient(nil), Options{CrossfadeSeconds: 6})
	defer free.close(nil)
	assert.ErrorIs(t, free.HandleMessage(ctx, event), ErrUnknownSlot)

	premium := New(2, "premium", NewClient(nil), Options{Premium: true, CrossfadeSeconds: 6})
	defer premium.close(nil)
	assert.NoError(t, premium.HandleMessage(ctx, event))
}

func TestSession_PremiumCrossfadeDrivesSlotB(t *testing.T) {
	client := NewClient(nil)
	s := New(2, "premium", client, Options{Premium: true, CrossfadeSeconds: 5})
	defer s.close(nil)
	ctx := context.Background()

	require.NoError(t, s.HandleMessage(ctx, queueMessage(t, QueueData{Tracks: testTracks, Play: true})))
	require.NoError(t, s.HandleMessage(ctx, &WSMessage{Type: MsgTypeEvent, Slot: SlotA, Op: EventLoadedMetadata, Value: 100}))
	commands(client)

	require.NoError(t, s.HandleMessage(ctx, &WSMessage{Type: MsgTypeEvent, Slot: SlotA, Op: EventTimeUpdate, Value: 96}))
	load, ok := findOp(commands(client), SlotB, OpLoad)
	require.True(t, ok)
	assert.Equal(t, "/media/2.mp3", load.Src)
}

func TestSession_UnknownMessages(t *testing.T) {
	s := New(1, "x", NewClient(nil), Options{})
	defer s.close(nil)
	ctx := context.Background()

	assert.ErrorIs(t, s.HandleMessage(ctx, &WSMessage{Type: "bogus"}), ErrUnknownMessage)
	assert.ErrorIs(t, s.HandleMessage(ctx, &WSMessage{Type: MsgTypeControl, Op: "dance"}), ErrUnknownMessage)
	assert.ErrorIs(t, s.HandleMessage(ctx, &WSMessage{Type: MsgTypeEvent, Slot: SlotA, Op: "dance"}), ErrUnknownMessage)
}

func TestSession_ForwardsStateFrames(t *testing.T) {
	client := NewClient(nil)
	s := New(1, "x", client, Options{})
	require.NoError(t, s.HandleMessage(context.Background(), queueMessage(t, QueueData{Tracks: testTracks})))
	s.close(nil)

	var states int
	for data := range client.send {
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == MsgTypeState {
			states++
		}
	}
	assert.Greater(t, states, 0)
}

func TestHub_NewSessionReplacesOld(t *testing.T) {
	store := newMemoryStore()
	hub := NewHub(store)
	go hub.Run()
	defer hub.Stop()

	first := New(42, "alice", NewClient(nil), Options{})
	hub.Register(first)
	require.Eventually(t, func() bool { return hub.Get(42) == first }, time.Second, 5*time.Millisecond)
	require.NoError(t, first.HandleMessage(context.Background(), queueMessage(t, QueueData{Tracks: testTracks, StartIndex: 1})))

	second := New(42, "alice", NewClient(nil), Options{})
	hub.Register(second)
	require.Eventually(t, func() bool { return hub.Get(42) == second }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, first.Controller.Play(), player.ErrClosed)
	saved, ok := store.get(42)
	require.True(t, ok)
	assert.Equal(t, 1, saved.Index)
	assert.Len(t, saved.Queue, 2)

	// the replaced connection unregistering must not drop the new one
	hub.Unregister(first)
	hub.Register(New(7, "bob", NewClient(nil), Options{}))
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, second, hub.Get(42))

	hub.Unregister(second)
	require.Eventually(t, func() bool { return hub.Get(42) == nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, second.Controller.Play(), player.ErrClosed)
}

func TestHub_StopClosesSessions(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	s := New(1, "x", NewClient(nil), Options{})
	hub.Register(s)
	hub.Stop()
	<-done

	assert.ErrorIs(t, s.Controller.Close(), player.ErrClosed)

	late := New(2, "y", NewClient(nil), Options{})
	hub.Register(late)
	assert.ErrorIs(t, late.Controller.Play(), player.ErrClosed)
	assert.Equal(t, 0, hub.Count())
}

func TestSession_SendErrorFrame(t *testing.T) {
	client := NewClient(nil)
	s := New(1, "x", client, Options{})
	defer s.close(nil)

	s.SendError(errors.New("nope"))
	require.Eventually(t, func() bool {
		for {
			select {
			case data := <-client.send:
				var msg WSMessage
				_ = json.Unmarshal(data, &msg)
				if msg.Type == MsgTypeError {
					return msg.Message == "nope"
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
}
