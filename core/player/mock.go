package player

import "sync"

// MockElement is an in-memory MediaElement for tests. It records calls and
// never emits events on its own; tests drive the controller's Handle* methods.
type MockElement struct {
	mu sync.Mutex

	src      string
	playing  bool
	volume   float64
	position float64
	loads    int
	released int
	calls    []string

	// PlayErr is returned by Play when set.
	PlayErr error
}

// NewMockElement creates a mock at full volume with no source.
func NewMockElement() *MockElement {
	return &MockElement{volume: 1}
}

func (m *MockElement) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *MockElement) SetSource(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("src")
	m.src = url
}

func (m *MockElement) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src
}

func (m *MockElement) Load() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("load")
	m.loads++
	m.position = 0
	m.playing = false
}

func (m *MockElement) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("play")
	if m.PlayErr != nil {
		return m.PlayErr
	}
	m.playing = true
	return nil
}

func (m *MockElement) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("pause")
	m.playing = false
}

func (m *MockElement) Seek(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("seek")
	m.position = seconds
}

func (m *MockElement) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = v
}

func (m *MockElement) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("release")
	m.playing = false
	m.src = ""
	m.released++
}

// Playing reports whether the mock is playing.
func (m *MockElement) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Volume returns the last applied volume.
func (m *MockElement) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Position returns the last seek target.
func (m *MockElement) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Loads returns how many times Load was called.
func (m *MockElement) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// Released returns how many times Release was called.
func (m *MockElement) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Calls returns the recorded call names (volume changes are not recorded).
func (m *MockElement) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(m.calls))
	copy(cp, m.calls)
	return cp
}
