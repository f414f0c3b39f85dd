// Package playback defines the boundary to the underlying audio engine.
// The core issues control commands through these interfaces; it never
// touches sample buffers or the engine's mixing thread.
package playback

// Voice is one loaded sound under engine control. Commands are safe to
// call while the engine's own mixing runs; frame values are in output
// sample frames.
type Voice interface {
	Start() error
	Stop()
	Seek(frame int64) error
	Cursor() (int64, error)
	SetVolume(v float64)
	SetLooping(loop bool)
	// SetRate sets the playback speed multiplier (1 = original pitch).
	// Non-positive ratios are ignored.
	SetRate(ratio float64)
	// Close releases the underlying resource. The voice must not be used
	// afterwards.
	Close() error
}

// Backend loads sounds from files. Load returns a voice in the stopped
// state positioned at frame 0.
type Backend interface {
	Load(path string) (Voice, error)
	Close() error
}
