package player

// MediaElement is the browser-style audio/video element a controller drives.
// Implementations report back through the controller's Handle* methods.
//
// Play may only report synchronous rejection; elements whose play result arrives
// later deliver it via Controller.HandlePlayRejected.
type MediaElement interface {
	SetSource(url string)
	Source() string
	Load()
	Play() error
	Pause()
	Seek(seconds float64)
	SetVolume(v float64)
	// Release pauses the element and clears its source.
	Release()
}
