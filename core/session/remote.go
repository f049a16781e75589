package session

import "sync"

// RemoteElement is a browser media element driven over the websocket.
// Commands are fire-and-forget; the browser reports back with event frames.
type RemoteElement struct {
	slot   string
	client *Client

	mu  sync.Mutex
	src string
}

func newRemoteElement(slot string, client *Client) *RemoteElement {
	return &RemoteElement{slot: slot, client: client}
}

// Slot returns the browser slot name.
func (r *RemoteElement) Slot() string { return r.slot }

func (r *RemoteElement) command(op string, value float64) {
	_ = r.client.SendMessage(&WSMessage{
		Type:  MsgTypeCommand,
		Slot:  r.slot,
		Op:    op,
		Src:   r.Source(),
		Value: value,
	})
}

func (r *RemoteElement) SetSource(url string) {
	r.mu.Lock()
	r.src = url
	r.mu.Unlock()
}

func (r *RemoteElement) Source() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src
}

func (r *RemoteElement) Load() { r.command(OpLoad, 0) }

// Play is optimistic; a rejection arrives later as a playrejected event.
func (r *RemoteElement) Play() error {
	r.command(OpPlay, 0)
	return nil
}

func (r *RemoteElement) Pause() { r.command(OpPause, 0) }

func (r *RemoteElement) Seek(seconds float64) { r.command(OpSeek, seconds) }

func (r *RemoteElement) SetVolume(v float64) { r.command(OpVolume, v) }

func (r *RemoteElement) Release() {
	r.SetSource("")
	r.command(OpRelease, 0)
}
