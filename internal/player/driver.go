package player

import "errors"

// Driver is the single streaming-audio primitive a controller owns. It
// mirrors an audio element: a settable source, async play, pause, seek,
// volume, and position readback.
type Driver interface {
	// SetSource loads a new stream URL. The controller only calls this
	// when the resolved URL actually changes.
	SetSource(url string) error
	// Play starts or resumes playback. It may be rejected by the backend
	// (autoplay policy, network failure); the controller recovers locally.
	Play() error
	Pause() error
	SeekSeconds(seconds float64) error
	SetVolume(volume float64) error
	// Position returns elapsed and total seconds. ok is false until the
	// stream's metadata is known.
	Position() (position float64, duration float64, ok bool)
}

// Preloader warms the next queue item's stream ahead of time. Implementations
// must tolerate Discard without a prior Warm.
type Preloader interface {
	Warm(url string)
	Discard()
}

// ErrNotInQueue is returned when an item is played outside its declared
// queue context.
var ErrNotInQueue = errors.New("item not in queue context")
