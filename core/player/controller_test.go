package player

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestController(t *testing.T, tracks []Track, opts ...Option) (*Controller, *MockElement, *fakeClock) {
	t.Helper()
	el := NewMockElement()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opts = append([]Option{WithClock(clk.Now), WithRand(testRand())}, opts...)
	c := New(el, opts...)
	require.NoError(t, c.SetQueue(tracks))
	t.Cleanup(func() { _ = c.Close() })
	return c, el, clk
}

// startAt selects index and reports metadata so the track is playing.
func startAt(t *testing.T, c *Controller, el *MockElement, index int, duration float64) {
	t.Helper()
	require.NoError(t, c.Select(index, true))
	c.HandleLoadedMetadata(el, duration)
	require.Equal(t, StatePlaying, c.Snapshot().State)
}

// assertSourceMatches checks that a playing controller plays its current track.
func assertSourceMatches(t *testing.T, c *Controller, el *MockElement) {
	t.Helper()
	snap := c.Snapshot()
	if snap.IsPlaying {
		require.NotNil(t, snap.CurrentTrack)
		assert.Equal(t, snap.CurrentTrack.MediaURL, el.Source())
	}
}

func drainNotices(sub *Subscription) []Notification {
	var out []Notification
	for {
		select {
		case n, ok := <-sub.Notices:
			if !ok {
				return out
			}
			out = append(out, n)
		default:
			return out
		}
	}
}

func TestController_NextCyclesBackToStart(t *testing.T) {
	for n := 2; n <= 6; n++ {
		c, el, _ := newTestController(t, tracksN(n))
		startAt(t, c, el, 0, 180)

		for i := 0; i < n; i++ {
			require.NoError(t, c.Next())
			assertSourceMatches(t, c, el)
		}
		assert.Equal(t, 0, c.Snapshot().Index, "queue length %d", n)
	}
}

func TestController_SetVolumeRoundTrip(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(1))

	for _, v := range []float64{0, 0.25, 0.5, 0.999, 1} {
		require.NoError(t, c.SetVolume(v))
		assert.InDelta(t, v, c.Snapshot().Volume, 1e-9)
		assert.InDelta(t, v, el.Volume(), 1e-9)
	}

	require.NoError(t, c.SetVolume(-3))
	assert.Equal(t, 0.0, c.Snapshot().Volume)
	require.NoError(t, c.SetVolume(7))
	assert.Equal(t, 1.0, c.Snapshot().Volume)
}

func TestController_SeekClamps(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(1))
	startAt(t, c, el, 0, 180)

	require.NoError(t, c.Seek(-5))
	assert.Equal(t, 0.0, c.Snapshot().PositionSeconds)
	assert.Equal(t, 0.0, el.Position())

	require.NoError(t, c.Seek(500))
	assert.Equal(t, 180.0, c.Snapshot().PositionSeconds)
	assert.Equal(t, 180.0, el.Position())

	require.NoError(t, c.Seek(42))
	assert.Equal(t, 42.0, c.Snapshot().PositionSeconds)
}

func TestController_SeekWithUnknownDuration(t *testing.T) {
	c, el, _ := newTestController(t, []Track{{ID: "live", MediaURL: "/stream"}})
	startAt(t, c, el, 0, 0)

	require.NoError(t, c.Seek(1000))
	assert.Equal(t, 1000.0, c.Snapshot().PositionSeconds)
	require.NoError(t, c.Seek(-1))
	assert.Equal(t, 0.0, c.Snapshot().PositionSeconds)
}

func TestController_SeekUsesTrackEstimateBeforeMetadata(t *testing.T) {
	c, _, _ := newTestController(t, tracksN(1))
	require.NoError(t, c.Select(0, false))

	require.NoError(t, c.Seek(999))
	assert.Equal(t, 180.0, c.Snapshot().PositionSeconds)
}

func TestController_MetadataClampsEarlierSeek(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(1))
	require.NoError(t, c.Select(0, false))
	require.NoError(t, c.Seek(150))

	c.HandleLoadedMetadata(el, 120)
	snap := c.Snapshot()
	assert.Equal(t, 120.0, snap.DurationSeconds)
	assert.LessOrEqual(t, snap.PositionSeconds, snap.DurationSeconds)

	// 播放中元数据更新为更短的时长
	c.HandleLoadedMetadata(el, 100)
	snap = c.Snapshot()
	assert.Equal(t, 100.0, snap.PositionSeconds)
}

func TestController_EndedWithLoopRestartsTrack(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(3))
	startAt(t, c, el, 1, 180)
	require.NoError(t, c.ToggleLoop())
	require.NoError(t, c.Seek(170))

	c.HandleEnded(el)

	snap := c.Snapshot()
	assert.Equal(t, "B", snap.CurrentTrack.ID)
	assert.Equal(t, 0.0, snap.PositionSeconds)
	assert.Equal(t, 0.0, el.Position())
	assert.True(t, snap.IsPlaying)
	assert.True(t, el.Playing())
	assertSourceMatches(t, c, el)
}

func TestController_EndedSingleTrackStops(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(1))
	startAt(t, c, el, 0, 180)

	c.HandleEnded(el)

	snap := c.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, "A", snap.CurrentTrack.ID)
	assert.Equal(t, StateEnded, snap.State)

	// play after ended restarts from the top
	require.NoError(t, c.Play())
	assert.True(t, c.Snapshot().IsPlaying)
	assert.Equal(t, 0.0, el.Position())
}

func TestController_TwoTrackScenario(t *testing.T) {
	tracks := []Track{
		{ID: "A", MediaURL: "/a.mp3", DurationSeconds: 180},
		{ID: "B", MediaURL: "/b.mp3", DurationSeconds: 200},
	}
	c, el, _ := newTestController(t, tracks)
	startAt(t, c, el, 0, 180)

	require.NoError(t, c.Next())
	assert.Equal(t, "B", c.Snapshot().CurrentTrack.ID)
	assert.Equal(t, "/b.mp3", el.Source())

	// manual navigation wraps
	require.NoError(t, c.Next())
	assert.Equal(t, "A", c.Snapshot().CurrentTrack.ID)

	// automatic advance stops after the last track
	require.NoError(t, c.Select(1, true))
	c.HandleLoadedMetadata(el, 200)
	c.HandleEnded(el)
	snap := c.Snapshot()
	assert.Equal(t, "B", snap.CurrentTrack.ID)
	assert.Equal(t, StateEnded, snap.State)
	assert.False(t, snap.IsPlaying)
}

func TestController_EndedAdvancesAndKeepsPlaying(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(3))
	startAt(t, c, el, 0, 180)

	c.HandleEnded(el)
	snap := c.Snapshot()
	assert.Equal(t, "B", snap.CurrentTrack.ID)
	assert.Equal(t, StateLoading, snap.State)

	c.HandleLoadedMetadata(el, 180)
	assert.True(t, c.Snapshot().IsPlaying)
	assertSourceMatches(t, c, el)
}

func TestController_ErrorSkipsWithOneNotification(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(3))
	sub, err := c.Subscribe()
	require.NoError(t, err)
	require.NoError(t, c.Select(0, true))

	assert.NotPanics(t, func() {
		c.HandleError(el, errors.New("MEDIA_ERR_SRC_NOT_SUPPORTED"))
	})

	snap := c.Snapshot()
	assert.Equal(t, "B", snap.CurrentTrack.ID)
	assert.Equal(t, "/media/b.mp3", el.Source())

	notices := drainNotices(sub)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeLoadFailure, notices[0].Kind)
	assert.Equal(t, "A", notices[0].Track.ID)

	// playback intent carries over to the skipped-to track
	c.HandleLoadedMetadata(el, 180)
	assert.True(t, c.Snapshot().IsPlaying)
}

func TestController_ErrorOnEveryTrackStops(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(3))
	require.NoError(t, c.ToggleLoop())
	sub, err := c.Subscribe()
	require.NoError(t, err)
	require.NoError(t, c.Select(0, true))

	for i := 0; i < 5; i++ {
		c.HandleError(el, errors.New("network"))
	}

	assert.Len(t, drainNotices(sub), 3)
	assert.Equal(t, StateError, c.Snapshot().State)
}

func TestController_PlayRejected(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(2))
	sub, err := c.Subscribe()
	require.NoError(t, err)
	require.NoError(t, c.Select(0, false))
	c.HandleLoadedMetadata(el, 180)

	el.PlayErr = errors.New("NotAllowedError")
	err = c.Play()
	assert.ErrorIs(t, err, ErrPlaybackRejected)
	assert.False(t, c.Snapshot().IsPlaying)

	notices := drainNotices(sub)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticePlaybackRejected, notices[0].Kind)

	el.PlayErr = nil
	require.NoError(t, c.Play())
	assert.True(t, c.Snapshot().IsPlaying)
}

func TestController_AsyncPlayRejected(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(2))
	sub, err := c.Subscribe()
	require.NoError(t, err)
	startAt(t, c, el, 0, 180)

	c.HandlePlayRejected(el, errors.New("NotAllowedError"))
	snap := c.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, StatePaused, snap.State)
	assert.Len(t, drainNotices(sub), 1)
}

func TestController_PlayWhileLoadingIsDeferred(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(2))
	require.NoError(t, c.Select(0, false))
	require.NoError(t, c.Play())

	assert.False(t, el.Playing())
	assert.Equal(t, StateLoading, c.Snapshot().State)

	c.HandleLoadedMetadata(el, 180)
	assert.True(t, el.Playing())
	assert.Equal(t, StatePlaying, c.Snapshot().State)
}

func TestController_PlayWithoutSelectionStartsFirstTrack(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(2))
	require.NoError(t, c.Play())
	c.HandleLoadedMetadata(el, 180)

	snap := c.Snapshot()
	assert.Equal(t, 0, snap.Index)
	assert.True(t, snap.IsPlaying)

	empty, _, _ := newTestController(t, nil)
	assert.ErrorIs(t, empty.Play(), ErrNoTrack)
}

func TestController_PauseAndResume(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(2))
	startAt(t, c, el, 0, 180)

	require.NoError(t, c.Pause())
	assert.False(t, el.Playing())
	assert.Equal(t, StatePaused, c.Snapshot().State)

	require.NoError(t, c.TogglePlay())
	assert.True(t, el.Playing())

	c.HandlePaused(el)
	assert.False(t, c.Snapshot().IsPlaying)
}

func TestController_ToggleMute(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(1))
	require.NoError(t, c.SetVolume(0.6))

	require.NoError(t, c.ToggleMute())
	assert.True(t, c.Snapshot().Muted)
	assert.Equal(t, 0.0, el.Volume())

	// stored, not applied, while muted
	require.NoError(t, c.SetVolume(0.3))
	assert.Equal(t, 0.0, el.Volume())

	require.NoError(t, c.ToggleMute())
	assert.InDelta(t, 0.3, el.Volume(), 1e-9)
}

func TestController_UnmuteRestoresLastAudibleVolume(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(1))
	require.NoError(t, c.SetVolume(0.8))
	require.NoError(t, c.ToggleMute())
	require.NoError(t, c.SetVolume(0))
	require.NoError(t, c.ToggleMute())

	assert.InDelta(t, 0.8, c.Snapshot().Volume, 1e-9)
	assert.InDelta(t, 0.8, el.Volume(), 1e-9)
}

func TestController_TimeUpdatesAreThrottled(t *testing.T) {
	c, el, clk := newTestController(t, tracksN(1))
	startAt(t, c, el, 0, 180)

	c.HandleTimeUpdate(el, 1)
	assert.Equal(t, 1.0, c.Snapshot().PositionSeconds)

	clk.Advance(10 * time.Millisecond)
	c.HandleTimeUpdate(el, 1.01)
	assert.Equal(t, 1.0, c.Snapshot().PositionSeconds)

	clk.Advance(50 * time.Millisecond)
	c.HandleTimeUpdate(el, 1.06)
	assert.Equal(t, 1.06, c.Snapshot().PositionSeconds)
}

func TestController_IgnoresForeignElements(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(3))
	startAt(t, c, el, 0, 180)
	stranger := NewMockElement()

	c.HandleEnded(stranger)
	c.HandleError(stranger, errors.New("boom"))
	c.HandleTimeUpdate(stranger, 99)

	snap := c.Snapshot()
	assert.Equal(t, "A", snap.CurrentTrack.ID)
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 0.0, snap.PositionSeconds)
}

func TestController_SetQueueReleasesElement(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(2))
	startAt(t, c, el, 1, 180)
	require.NoError(t, c.ToggleShuffle())

	require.NoError(t, c.SetQueue(tracksN(4)))

	snap := c.Snapshot()
	assert.Nil(t, snap.CurrentTrack)
	assert.False(t, snap.IsPlaying)
	assert.True(t, snap.Shuffle)
	assert.Equal(t, 4, snap.QueueLength)
	assert.Equal(t, "", el.Source())
}

func TestController_Close(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(2))
	sub, err := c.Subscribe()
	require.NoError(t, err)
	startAt(t, c, el, 0, 180)

	require.NoError(t, c.Close())
	assert.False(t, el.Playing())
	assert.Equal(t, "", el.Source())
	assert.Equal(t, StateIdle, c.Snapshot().State)

	assert.ErrorIs(t, c.Close(), ErrClosed)
	assert.ErrorIs(t, c.Play(), ErrClosed)
	assert.ErrorIs(t, c.Next(), ErrClosed)
	_, err = c.Subscribe()
	assert.ErrorIs(t, err, ErrClosed)

	// channels are closed once drained
	for range sub.Changes {
	}
	_, ok := <-sub.Notices
	assert.False(t, ok)

	// events after close are ignored
	c.HandleEnded(el)
	assert.Equal(t, "", el.Source())
}

func TestController_SubscriptionReceivesSnapshots(t *testing.T) {
	c, el, _ := newTestController(t, tracksN(2))
	sub, err := c.Subscribe()
	require.NoError(t, err)

	initial := <-sub.Changes
	assert.Equal(t, StateIdle, initial.State)

	startAt(t, c, el, 0, 180)
	var last Snapshot
	for len(sub.Changes) > 0 {
		last = <-sub.Changes
	}
	assert.Equal(t, StatePlaying, last.State)

	c.Unsubscribe(sub)
	_, ok := <-sub.Changes
	assert.False(t, ok)
}
