package player

// DriverState is the playback driver state.
type DriverState string

const (
	StateIdle    DriverState = "idle"
	StateLoading DriverState = "loading"
	StateReady   DriverState = "ready"
	StatePlaying DriverState = "playing"
	StatePaused  DriverState = "paused"
	StateEnded   DriverState = "ended"
	StateError   DriverState = "error"
)

// Snapshot is a copy of the transport state, safe to hand to the UI.
type Snapshot struct {
	CurrentTrack    *Track      `json:"currentTrack"`
	Index           int         `json:"index"`
	IsPlaying       bool        `json:"isPlaying"`
	PositionSeconds float64     `json:"positionSeconds"`
	DurationSeconds float64     `json:"durationSeconds"`
	Volume          float64     `json:"volume"`
	Muted           bool        `json:"muted"`
	Loop            bool        `json:"loop"`
	Shuffle         bool        `json:"shuffle"`
	State           DriverState `json:"state"`
	Crossfading     bool        `json:"crossfading"`
	QueueLength     int         `json:"queueLength"`
}

// NoticeKind classifies user-facing notifications.
type NoticeKind string

const (
	NoticeLoadFailure      NoticeKind = "load_failure"
	NoticePlaybackRejected NoticeKind = "playback_rejected"
)

// Notification is a one-shot, user-facing message.
type Notification struct {
	Kind    NoticeKind `json:"kind"`
	Track   *Track     `json:"track,omitempty"`
	Message string     `json:"message"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
