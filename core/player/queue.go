package player

import "math/rand/v2"

// Queue is the ordered track list plus the navigation settings.
// Manual navigation (Next/Previous) always wraps around; automatic advance
// (Advance) stops after the last track unless loop is on.
type Queue struct {
	tracks  []Track
	index   int // -1 if nothing selected
	shuffle bool
	loop    bool
	rnd     *rand.Rand

	// pending is the precomputed automatic next index (-1 if none computed),
	// so a preloaded crossfade target and the later advance agree in shuffle mode.
	pending int
}

// NewQueue creates a queue over a copy of tracks with nothing selected.
func NewQueue(tracks []Track, rnd *rand.Rand) *Queue {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	cp := make([]Track, len(tracks))
	copy(cp, tracks)
	return &Queue{tracks: cp, index: -1, rnd: rnd, pending: -1}
}

// Len returns the number of tracks.
func (q *Queue) Len() int { return len(q.tracks) }

// Index returns the current index (-1 if none).
func (q *Queue) Index() int { return q.index }

// Current returns the current track, or nil.
func (q *Queue) Current() *Track {
	if q.index < 0 || q.index >= len(q.tracks) {
		return nil
	}
	t := q.tracks[q.index]
	return &t
}

// At returns the track at i, or nil.
func (q *Queue) At(i int) *Track {
	if i < 0 || i >= len(q.tracks) {
		return nil
	}
	t := q.tracks[i]
	return &t
}

// Tracks returns a copy of the tracks.
func (q *Queue) Tracks() []Track {
	cp := make([]Track, len(q.tracks))
	copy(cp, q.tracks)
	return cp
}

// Shuffle reports whether shuffle is on.
func (q *Queue) Shuffle() bool { return q.shuffle }

// Loop reports whether loop is on.
func (q *Queue) Loop() bool { return q.loop }

// SetShuffle sets shuffle mode.
func (q *Queue) SetShuffle(on bool) {
	q.shuffle = on
	q.pending = -1
}

// SetLoop sets loop mode.
func (q *Queue) SetLoop(on bool) {
	q.loop = on
	q.pending = -1
}

// Select makes i the current index. Returns false for an invalid index.
func (q *Queue) Select(i int) bool {
	if i < 0 || i >= len(q.tracks) {
		return false
	}
	q.index = i
	q.pending = -1
	return true
}

// Next moves to the next track (random other track in shuffle mode), wrapping
// at the end. No-op for queues of length <= 1.
func (q *Queue) Next() bool {
	n := len(q.tracks)
	if n <= 1 {
		return false
	}
	if q.index < 0 {
		return q.Select(0)
	}
	if q.shuffle {
		return q.Select(q.randomOther())
	}
	return q.Select((q.index + 1) % n)
}

// Previous is the mirror of Next: it wraps to the last track before index 0.
func (q *Queue) Previous() bool {
	n := len(q.tracks)
	if n <= 1 {
		return false
	}
	if q.index < 0 {
		return q.Select(n - 1)
	}
	if q.shuffle {
		return q.Select(q.randomOther())
	}
	return q.Select((q.index - 1 + n) % n)
}

// PeekAdvance returns the index Advance would move to, without moving.
func (q *Queue) PeekAdvance() (int, bool) {
	if q.pending >= 0 {
		return q.pending, true
	}
	n := len(q.tracks)
	if n <= 1 || q.index < 0 {
		return -1, false
	}

	var next int
	switch {
	case q.shuffle:
		next = q.randomOther()
	case q.index == n-1 && !q.loop:
		return -1, false
	default:
		next = (q.index + 1) % n
	}
	q.pending = next
	return next, true
}

// Advance is the automatic move after a track ends or fails.
func (q *Queue) Advance() bool {
	next, ok := q.PeekAdvance()
	if !ok {
		return false
	}
	return q.Select(next)
}

// randomOther draws uniformly from the len-1 indices other than the current one.
func (q *Queue) randomOther() int {
	j := q.rnd.IntN(len(q.tracks) - 1)
	if j >= q.index {
		j++
	}
	return j
}
