package voices

import "github.com/mkalten/beatrig-go/internal/playback"

// Reaper is the deferred deletion queue. A collection that removes a
// handle transfers sole ownership into the reaper; nothing may reference
// the handle afterwards. Flush runs once per tick, after all sequencing
// and registry mutation, and at shutdown.
type Reaper struct {
	pending []playback.Voice
}

func NewReaper() *Reaper {
	return &Reaper{}
}

// Retire takes ownership of v for release on the next flush.
func (r *Reaper) Retire(v playback.Voice) {
	if v == nil {
		return
	}
	r.pending = append(r.pending, v)
}

// Flush stops and physically releases every pending handle.
func (r *Reaper) Flush() {
	for _, v := range r.pending {
		v.Stop()
		_ = v.Close()
	}
	r.pending = r.pending[:0]
}

func (r *Reaper) Len() int { return len(r.pending) }
