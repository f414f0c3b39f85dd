package voices

import "math"

// beatEpsilon absorbs floating-point error accumulated on the beat scale.
const beatEpsilon = 1e-6

// Launch is a voice already loaded and registered, waiting to start on a
// future beat.
type Launch struct {
	ID         int
	TargetBeat float64
}

// Quantize rounds beat up to the next multiple of quant. Non-positive
// quant is treated as 1.
func Quantize(beat, quant float64) float64 {
	if quant <= 0 {
		quant = 1
	}
	return math.Ceil(beat/quant) * quant
}

// LaunchQueue holds pending quantized launches in arrival order.
type LaunchQueue struct {
	pending []Launch
}

func NewLaunchQueue() *LaunchQueue {
	return &LaunchQueue{}
}

func (q *LaunchQueue) Add(id int, targetBeat float64) {
	q.pending = append(q.pending, Launch{ID: id, TargetBeat: targetBeat})
}

// CollectDue removes and returns every launch whose target beat has been
// reached. Each entry is returned exactly once.
func (q *LaunchQueue) CollectDue(beat float64) []Launch {
	var due []Launch
	kept := q.pending[:0]
	for _, l := range q.pending {
		if l.TargetBeat <= beat+beatEpsilon {
			due = append(due, l)
		} else {
			kept = append(kept, l)
		}
	}
	q.pending = kept
	return due
}

// Drop forgets any pending launch for id. Stopping a voice must also drop
// its launch so a retired handle is referenced by no collection.
func (q *LaunchQueue) Drop(id int) {
	kept := q.pending[:0]
	for _, l := range q.pending {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	q.pending = kept
}

func (q *LaunchQueue) Reset() {
	q.pending = q.pending[:0]
}

func (q *LaunchQueue) Len() int { return len(q.pending) }
