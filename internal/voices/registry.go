// Package voices holds the bookkeeping around playback handles: the
// id-to-voice registry, the quantized launch queue, and the deferred
// deletion reaper. None of it is internally locked; the engine serializes
// access.
package voices

import "github.com/mkalten/beatrig-go/internal/playback"

// Registry owns the mapping from caller-visible voice ids to playback
// handles. Ids are positive, monotonically assigned, and never reused
// within a session.
type Registry struct {
	nextID int
	voices map[int]playback.Voice
	paused map[int]int64
}

func NewRegistry() *Registry {
	return &Registry{
		nextID: 1,
		voices: map[int]playback.Voice{},
		paused: map[int]int64{},
	}
}

func (r *Registry) Register(v playback.Voice) int {
	id := r.nextID
	r.nextID++
	r.voices[id] = v
	delete(r.paused, id)
	return id
}

func (r *Registry) Get(id int) (playback.Voice, bool) {
	v, ok := r.voices[id]
	return v, ok
}

// Remove takes the voice out of the registry and clears any recorded
// pause position. The caller owns the returned handle and is responsible
// for retiring it.
func (r *Registry) Remove(id int) (playback.Voice, bool) {
	v, ok := r.voices[id]
	if !ok {
		return nil, false
	}
	delete(r.voices, id)
	delete(r.paused, id)
	return v, true
}

func (r *Registry) SetPausedFrame(id int, frame int64) {
	r.paused[id] = frame
}

func (r *Registry) PausedFrame(id int) (int64, bool) {
	f, ok := r.paused[id]
	return f, ok
}

func (r *Registry) ClearPausedFrame(id int) {
	delete(r.paused, id)
}

// Drain removes and returns every registered voice. Used at shutdown.
func (r *Registry) Drain() []playback.Voice {
	out := make([]playback.Voice, 0, len(r.voices))
	for id, v := range r.voices {
		out = append(out, v)
		delete(r.voices, id)
	}
	r.paused = map[int]int64{}
	return out
}

func (r *Registry) Len() int { return len(r.voices) }
