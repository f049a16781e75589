package player

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"karaoke/logger"
)

const (
	// MaxCrossfadeSeconds 交叉淡入淡出窗口上限
	MaxCrossfadeSeconds = 12.0
	// positionInterval caps position writes at 20 Hz.
	positionInterval = 50 * time.Millisecond
)

// Option configures a Controller.
type Option func(*Controller)

// WithRand sets the random source used for shuffle.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rnd = r }
}

// WithClock sets the clock used to throttle position updates.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithVolume sets the initial volume.
func WithVolume(v float64) Option {
	return func(c *Controller) {
		c.volume = clamp(v, 0, 1)
		if c.volume > 0 {
			c.lastAudible = c.volume
		}
	}
}

// Controller owns a queue, the transport state and the media element(s) that
// render it. All methods are safe for concurrent use; element events are
// delivered through the Handle* methods.
type Controller struct {
	mu sync.Mutex

	primary MediaElement
	queue   *Queue
	rnd     *rand.Rand
	now     func() time.Time

	state       DriverState
	isPlaying   bool
	pendingPlay bool // play requested while loading

	position        float64
	duration        float64 // from metadata, 0 until known
	lastPositionAt  time.Time
	lastPrimaryTime float64 // unthrottled primary time
	resumeAt        float64 // seek applied once the restored track is ready

	volume      float64
	lastAudible float64
	muted       bool

	failures int // consecutive load failures

	fade *crossfade

	subs   []*Subscription
	closed bool
}

// New creates a controller that exclusively owns primary.
func New(primary MediaElement, opts ...Option) *Controller {
	c := &Controller{
		primary:     primary,
		now:         time.Now,
		state:       StateIdle,
		volume:      1,
		lastAudible: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c.queue = NewQueue(nil, c.rnd)
	c.applyVolumes()
	return c
}

// Subscribe registers a listener for snapshots and notifications.
func (c *Controller) Subscribe() (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	s := newSubscription()
	c.subs = append(c.subs, s)
	s.sendChange(c.snapshotLocked())
	return s, nil
}

// Unsubscribe removes and closes s.
func (c *Controller) Unsubscribe(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subs {
		if sub == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			s.close()
			return
		}
	}
}

// Snapshot returns the current transport state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Tracks returns the queue contents.
func (c *Controller) Tracks() []Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Tracks()
}

// SetQueue replaces the queue. The element is released and nothing is selected.
func (c *Controller) SetQueue(tracks []Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.abortCrossfade()
	c.primary.Release()

	shuffle, loop := c.queue.Shuffle(), c.queue.Loop()
	c.queue = NewQueue(tracks, c.rnd)
	c.queue.SetShuffle(shuffle)
	c.queue.SetLoop(loop)

	c.state = StateIdle
	c.isPlaying = false
	c.pendingPlay = false
	c.position = 0
	c.duration = 0
	c.lastPrimaryTime = 0
	c.lastPositionAt = time.Time{}
	c.failures = 0

	c.publish()
	return nil
}

// Select makes index the current track and starts loading it.
func (c *Controller) Select(index int, play bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.queue.Select(index) {
		return fmt.Errorf("%w: index %d out of range", ErrNoTrack, index)
	}
	c.load(play)
	c.publish()
	return nil
}

// Next moves to the next track, wrapping around. Single-track queues are left alone.
func (c *Controller) Next() error {
	return c.navigate((*Queue).Next)
}

// Previous moves to the previous track, wrapping around.
func (c *Controller) Previous() error {
	return c.navigate((*Queue).Previous)
}

func (c *Controller) navigate(move func(*Queue) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	keepPlaying := c.isPlaying || c.pendingPlay
	if move(c.queue) {
		c.load(keepPlaying)
		c.publish()
	}
	return nil
}

// Play starts or resumes playback. A request made while loading is executed
// once the element is ready.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if c.queue.Current() == nil {
		if !c.queue.Select(0) {
			return ErrNoTrack
		}
		c.load(true)
		c.publish()
		return nil
	}

	switch c.state {
	case StateIdle, StateError:
		c.load(true)
		c.publish()
		return nil
	case StateLoading:
		c.pendingPlay = true
		return nil
	case StatePlaying:
		return nil
	case StateEnded:
		c.primary.Seek(0)
		c.position = 0
		c.lastPrimaryTime = 0
	}

	err := c.startPlayback()
	c.publish()
	return err
}

// Pause pauses playback.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.pendingPlay = false
	c.abortCrossfade()
	if c.isPlaying || c.state == StatePlaying {
		c.primary.Pause()
		c.isPlaying = false
		c.state = StatePaused
	}
	c.publish()
	return nil
}

// TogglePlay pauses when playing, plays otherwise.
func (c *Controller) TogglePlay() error {
	c.mu.Lock()
	playing := c.isPlaying
	c.mu.Unlock()
	if playing {
		return c.Pause()
	}
	return c.Play()
}

// Seek moves the playhead. Out-of-range targets are clamped silently; when the
// duration is unknown only the lower bound applies.
func (c *Controller) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.queue.Current() == nil {
		return nil
	}

	d := c.durationBound()
	x := seconds
	if x < 0 {
		x = 0
	}
	if d > 0 && x > d {
		x = d
	}

	c.abortCrossfade()
	c.primary.Seek(x)
	c.position = x
	c.lastPrimaryTime = x
	c.lastPositionAt = c.now()
	if c.state == StateEnded && (d == 0 || x < d) {
		c.state = StatePaused
	}
	c.publish()
	return nil
}

// SetVolume sets the volume in [0,1]. While muted the value is stored only.
func (c *Controller) SetVolume(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.volume = clamp(v, 0, 1)
	if c.volume > 0 {
		c.lastAudible = c.volume
	}
	c.applyVolumes()
	c.publish()
	return nil
}

// ToggleMute swaps the applied volume between 0 and the last audible volume.
func (c *Controller) ToggleMute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.muted = !c.muted
	if !c.muted && c.volume == 0 {
		c.volume = c.lastAudible
	}
	c.applyVolumes()
	c.publish()
	return nil
}

// ToggleLoop flips loop mode.
func (c *Controller) ToggleLoop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.queue.SetLoop(!c.queue.Loop())
	c.publish()
	return nil
}

// ToggleShuffle flips shuffle mode.
func (c *Controller) ToggleShuffle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.queue.SetShuffle(!c.queue.Shuffle())
	c.publish()
	return nil
}

// SetModes sets loop and shuffle directly, used when restoring a session.
func (c *Controller) SetModes(loop, shuffle bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.queue.SetLoop(loop)
	c.queue.SetShuffle(shuffle)
	c.publish()
	return nil
}

// Close releases every owned element. Later calls return ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true

	c.primary.Release()
	if c.fade != nil {
		c.fade.secondary.Release()
		c.fade.phase = fadeIdle
	}
	c.isPlaying = false
	c.pendingPlay = false
	c.state = StateIdle

	for _, s := range c.subs {
		s.close()
	}
	c.subs = nil
	return nil
}

// HandleLoadedMetadata is the element's metadata event.
func (c *Controller) HandleLoadedMetadata(el MediaElement, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch {
	case el == c.primary:
		if duration > 0 {
			c.duration = duration
			// 估算时长可能偏长，位置需要落在真实时长内
			if c.position > duration {
				c.position = duration
			}
			if c.lastPrimaryTime > duration {
				c.lastPrimaryTime = duration
			}
		}
		if c.state == StateLoading {
			c.state = StateReady
			c.failures = 0
			if c.resumeAt > 0 {
				x := c.resumeAt
				if d := c.durationBound(); d > 0 && x > d {
					x = d
				}
				c.primary.Seek(x)
				c.position = x
				c.lastPrimaryTime = x
				c.resumeAt = 0
			}
			if c.pendingPlay {
				// 拒绝已经通过 notice 上报
				_ = c.startPlayback()
			}
		}
		c.publish()
	case c.isSecondary(el):
		c.crossfadeReady(duration)
		c.publish()
	}
}

// HandleTimeUpdate is the element's timeupdate event.
func (c *Controller) HandleTimeUpdate(el MediaElement, seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.isSecondary(el) {
		c.fade.secondaryTime = seconds
		return
	}
	if el != c.primary || c.state == StateLoading || c.queue.Current() == nil {
		return
	}

	t := seconds
	if t < 0 {
		t = 0
	}
	if d := c.durationBound(); d > 0 && t > d {
		t = d
	}
	c.lastPrimaryTime = t

	if c.crossfadeTick(t) {
		c.publish()
		return
	}

	now := c.now()
	if !c.lastPositionAt.IsZero() && now.Sub(c.lastPositionAt) < positionInterval {
		return
	}
	c.position = t
	c.lastPositionAt = now
	c.publish()
}

// HandleEnded is the element's ended event.
func (c *Controller) HandleEnded(el MediaElement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || el != c.primary || c.queue.Current() == nil {
		return
	}

	if c.fade != nil && c.fade.phase == fadeRunning {
		c.completeCrossfade()
		c.publish()
		return
	}
	c.abortCrossfade()

	if c.queue.Loop() {
		c.primary.Seek(0)
		c.position = 0
		c.lastPrimaryTime = 0
		_ = c.startPlayback()
		c.publish()
		return
	}

	if c.queue.Advance() {
		c.load(true)
		c.publish()
		return
	}

	c.state = StateEnded
	c.isPlaying = false
	c.pendingPlay = false
	if d := c.durationBound(); d > 0 {
		c.position = d
	}
	c.publish()
}

// HandleError is the element's error event. The failing track is reported once
// and skipped; nothing is retried.
func (c *Controller) HandleError(el MediaElement, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.isSecondary(el) {
		if c.fade.phase != fadeIdle {
			logger.Warn("[Player] crossfade target failed, falling back", logger.ErrorField(cause))
			c.abortCrossfade()
			c.publish()
		}
		return
	}

	track := c.queue.Current()
	if el != c.primary || track == nil || c.state == StateIdle || c.state == StateError {
		return
	}

	resume := c.isPlaying || c.pendingPlay
	c.abortCrossfade()
	c.state = StateError
	c.isPlaying = false
	c.pendingPlay = false
	c.failures++

	logger.Warn("[Player] media load failed",
		logger.String("track", track.Key()),
		logger.String("src", track.MediaURL),
		logger.ErrorField(cause))
	c.notify(Notification{
		Kind:    NoticeLoadFailure,
		Track:   track,
		Message: fmt.Sprintf("Could not play %q, skipping", track.Title),
	})

	// 整个队列都失败时停止，避免循环模式下无限跳过
	if c.failures < c.queue.Len() && c.queue.Advance() {
		c.load(resume)
	}
	c.publish()
}

// HandlePaused is an element pause that the controller did not request.
func (c *Controller) HandlePaused(el MediaElement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || el != c.primary || c.state != StatePlaying {
		return
	}
	c.abortCrossfade()
	c.isPlaying = false
	c.state = StatePaused
	c.publish()
}

// HandlePlayRejected reports an asynchronous play() rejection.
func (c *Controller) HandlePlayRejected(el MediaElement, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	switch {
	case c.isSecondary(el):
		c.abortCrossfade()
	case el == c.primary:
		c.rejectPlayback(cause)
	default:
		return
	}
	c.publish()
}

// load attaches the current track to the primary element.
func (c *Controller) load(play bool) {
	c.abortCrossfade()
	t := c.queue.Current()
	if t == nil {
		return
	}

	c.primary.Pause()
	c.primary.SetSource(t.MediaURL)
	c.primary.Load()

	c.state = StateLoading
	c.isPlaying = false
	c.pendingPlay = play
	c.position = 0
	c.duration = 0
	c.lastPrimaryTime = 0
	c.lastPositionAt = time.Time{}
	c.resumeAt = 0
	c.applyVolumes()
}

func (c *Controller) startPlayback() error {
	c.pendingPlay = false
	if err := c.primary.Play(); err != nil {
		c.rejectPlayback(err)
		return fmt.Errorf("%w: %v", ErrPlaybackRejected, err)
	}
	c.isPlaying = true
	c.state = StatePlaying
	return nil
}

func (c *Controller) rejectPlayback(cause error) {
	c.isPlaying = false
	c.pendingPlay = false
	if c.state == StatePlaying {
		c.state = StatePaused
	}
	c.abortCrossfade()

	track := c.queue.Current()
	logger.Info("[Player] playback rejected by element", logger.ErrorField(cause))
	c.notify(Notification{
		Kind:    NoticePlaybackRejected,
		Track:   track,
		Message: "Playback was blocked, press play to start",
	})
}

// durationBound is the metadata duration, else the track estimate, else 0.
func (c *Controller) durationBound() float64 {
	if c.duration > 0 {
		return c.duration
	}
	if t := c.queue.Current(); t != nil && t.DurationSeconds > 0 {
		return t.DurationSeconds
	}
	return 0
}

func (c *Controller) applyVolumes() {
	applied := c.volume
	if c.muted {
		applied = 0
	}
	primaryGain := 1.0
	if c.fade != nil && c.fade.phase == fadeRunning {
		primaryGain = 1 - c.fade.progress
	}
	c.primary.SetVolume(applied * primaryGain)

	if c.fade != nil && c.fade.phase != fadeIdle {
		secondaryGain := 0.0
		if c.fade.phase == fadeRunning {
			secondaryGain = c.fade.progress
		}
		c.fade.secondary.SetVolume(applied * secondaryGain)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		CurrentTrack:    c.queue.Current(),
		Index:           c.queue.Index(),
		IsPlaying:       c.isPlaying,
		PositionSeconds: c.position,
		DurationSeconds: c.durationBound(),
		Volume:          c.volume,
		Muted:           c.muted,
		Loop:            c.queue.Loop(),
		Shuffle:         c.queue.Shuffle(),
		State:           c.state,
		Crossfading:     c.fade != nil && c.fade.phase == fadeRunning,
		QueueLength:     c.queue.Len(),
	}
}

func (c *Controller) publish() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, s := range c.subs {
		s.sendChange(snap)
	}
}

func (c *Controller) notify(n Notification) {
	for _, s := range c.subs {
		s.sendNotice(n)
	}
}
