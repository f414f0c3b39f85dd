// Package transport implements the tempo-driven musical clock. Beat
// position is continuous while playing and frozen while paused; every
// state transition except Stop re-anchors the clock so the position never
// jumps.
package transport

import (
	"errors"
	"time"
)

var ErrInvalidTempo = errors.New("transport: tempo must be positive")

const defaultBPM = 120

// Clock converts wall-clock time into a beat position. It is not
// internally locked; the engine serializes access.
type Clock struct {
	playing   bool
	bpm       float64
	baseBeat  float64
	startTime time.Time
	now       func() time.Time
}

func NewClock() *Clock {
	return &Clock{bpm: defaultBPM, now: time.Now}
}

// SetNowFunc replaces the wall-clock source. Tests use this to step time
// deterministically.
func (c *Clock) SetNowFunc(now func() time.Time) {
	c.now = now
}

// Play anchors the clock at the current wall time, leaving baseBeat
// untouched. No-op while already playing.
func (c *Clock) Play() {
	if c.playing {
		return
	}
	c.startTime = c.now()
	c.playing = true
}

// Pause freezes the current beat into baseBeat.
func (c *Clock) Pause() {
	if !c.playing {
		return
	}
	c.baseBeat = c.Beat()
	c.playing = false
}

// Stop halts the clock and rewinds the beat position to zero. This is the
// only transition allowed to jump the position.
func (c *Clock) Stop() {
	c.playing = false
	c.baseBeat = 0
}

// SetTempo captures the beat under the old tempo and re-anchors at it, so
// the position is continuous across the change.
func (c *Clock) SetTempo(bpm float64) error {
	if bpm <= 0 {
		return ErrInvalidTempo
	}
	beat := c.Beat()
	c.bpm = bpm
	c.baseBeat = beat
	c.startTime = c.now()
	return nil
}

// Beat returns the current beat position.
func (c *Clock) Beat() float64 {
	if !c.playing {
		return c.baseBeat
	}
	elapsed := c.now().Sub(c.startTime).Seconds()
	return c.baseBeat + elapsed*c.bpm/60
}

func (c *Clock) Playing() bool { return c.playing }

func (c *Clock) Tempo() float64 { return c.bpm }
