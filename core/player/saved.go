package player

import "time"

// SavedState is what survives a disconnect: enough to rebuild the queue and
// resume near the same spot, but never auto-plays.
type SavedState struct {
	Queue           []Track   `json:"queue"`
	Index           int       `json:"index"`
	PositionSeconds float64   `json:"positionSeconds"`
	Volume          float64   `json:"volume"`
	Muted           bool      `json:"muted"`
	Loop            bool      `json:"loop"`
	Shuffle         bool      `json:"shuffle"`
	SavedAt         time.Time `json:"savedAt"`
}

// Export captures the current queue and transport settings.
func (c *Controller) Export() SavedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SavedState{
		Queue:           c.queue.Tracks(),
		Index:           c.queue.Index(),
		PositionSeconds: c.position,
		Volume:          c.volume,
		Muted:           c.muted,
		Loop:            c.queue.Loop(),
		Shuffle:         c.queue.Shuffle(),
		SavedAt:         c.now(),
	}
}

// Restore rebuilds the controller from s. The selected track is loaded paused
// and seeks to the saved position when its metadata arrives.
func (c *Controller) Restore(s SavedState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.abortCrossfade()
	c.primary.Release()
	c.queue = NewQueue(s.Queue, c.rnd)
	c.queue.SetLoop(s.Loop)
	c.queue.SetShuffle(s.Shuffle)

	c.state = StateIdle
	c.isPlaying = false
	c.pendingPlay = false
	c.position = 0
	c.duration = 0
	c.failures = 0

	c.volume = clamp(s.Volume, 0, 1)
	if c.volume > 0 {
		c.lastAudible = c.volume
	}
	c.muted = s.Muted
	c.applyVolumes()

	if c.queue.Select(s.Index) {
		c.load(false)
		if s.PositionSeconds > 0 {
			c.resumeAt = s.PositionSeconds
			c.position = s.PositionSeconds
		}
	}
	c.publish()
	return nil
}
