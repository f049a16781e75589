package player

import "karaoke/logger"

type fadePhase int

const (
	fadeIdle fadePhase = iota
	fadePreparing
	fadeRunning
)

// crossfade overlaps the end of the current track with the start of the
// automatic next one on a second element. It is restarted from idle on every
// track transition.
type crossfade struct {
	secondary MediaElement
	window    float64

	phase    fadePhase
	next     int
	start    float64 // primary time when the ramp began
	length   float64
	progress float64

	secondaryDuration float64
	secondaryTime     float64
}

// WithCrossfade enables crossfading onto secondary over the last seconds of
// each track. seconds is clamped to [0, MaxCrossfadeSeconds]; 0 disables it.
// The controller takes ownership of secondary.
func WithCrossfade(secondary MediaElement, seconds float64) Option {
	return func(c *Controller) {
		if secondary == nil {
			return
		}
		c.fade = &crossfade{
			secondary: secondary,
			window:    clamp(seconds, 0, MaxCrossfadeSeconds),
		}
	}
}

func (c *Controller) isSecondary(el MediaElement) bool {
	return c.fade != nil && el == c.fade.secondary
}

// crossfadeTick runs on primary time updates. Returns true when the roles were swapped.
func (c *Controller) crossfadeTick(t float64) bool {
	f := c.fade
	if f == nil || f.window <= 0 {
		return false
	}

	switch f.phase {
	case fadeIdle:
		c.maybeStartCrossfade(t)
	case fadeRunning:
		if f.length <= 0 {
			c.completeCrossfade()
			return true
		}
		f.progress = clamp((t-f.start)/f.length, 0, 1)
		c.applyVolumes()
		if f.progress >= 1 {
			c.completeCrossfade()
			return true
		}
	}
	return false
}

func (c *Controller) maybeStartCrossfade(t float64) {
	f := c.fade
	if c.state != StatePlaying || c.queue.Loop() {
		return
	}
	d := c.durationBound()
	if d <= 0 {
		return
	}
	remaining := d - t
	if remaining <= 0 || remaining > f.window {
		return
	}

	next, ok := c.queue.PeekAdvance()
	if !ok || next == c.queue.Index() {
		return
	}
	track := c.queue.At(next)

	f.secondary.SetSource(track.MediaURL)
	f.secondary.SetVolume(0)
	f.secondary.Load()

	f.phase = fadePreparing
	f.next = next
	f.progress = 0
	f.secondaryDuration = 0
	f.secondaryTime = 0
	logger.Debug("[Player] preloading crossfade target", logger.String("track", track.Key()))
}

func (c *Controller) crossfadeReady(duration float64) {
	f := c.fade
	if f.phase != fadePreparing {
		return
	}
	f.secondaryDuration = duration

	if err := f.secondary.Play(); err != nil {
		logger.Warn("[Player] crossfade target rejected play", logger.ErrorField(err))
		c.abortCrossfade()
		return
	}

	f.phase = fadeRunning
	f.start = c.lastPrimaryTime
	f.length = c.durationBound() - f.start
	f.progress = 0
	c.applyVolumes()
}

// completeCrossfade swaps roles: the secondary becomes the primary on the next
// track and the old primary is released.
func (c *Controller) completeCrossfade() {
	f := c.fade
	old := c.primary
	c.primary = f.secondary
	f.secondary = old
	old.Release()

	f.phase = fadeIdle
	f.progress = 0
	c.queue.Select(f.next)

	c.duration = f.secondaryDuration
	c.position = f.secondaryTime
	c.lastPrimaryTime = f.secondaryTime
	c.lastPositionAt = c.now()
	c.state = StatePlaying
	c.isPlaying = true
	c.pendingPlay = false
	c.failures = 0
	c.applyVolumes()
}

func (c *Controller) abortCrossfade() {
	f := c.fade
	if f == nil || f.phase == fadeIdle {
		return
	}
	f.secondary.Release()
	f.phase = fadeIdle
	f.progress = 0
	c.applyVolumes()
}
