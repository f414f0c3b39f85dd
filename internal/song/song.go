// Package song implements the pattern sequencer: a loaded set of
// beat-offset events repeating once per bar, retriggering preloaded sample
// voices or synthesizing transient pitched voices from a shared instrument
// sample.
package song

import (
	"errors"
	"fmt"
	"math"

	"github.com/mkalten/beatrig-go/internal/playback"
	"github.com/mkalten/beatrig-go/internal/voices"
)

var ErrNoSong = errors.New("song: no song loaded")

const beatEpsilon = 1e-6

type seqEvent struct {
	kind EventKind

	// EventSample: a voice preloaded at load time, restarted on each fire.
	voice playback.Voice

	// EventNote: resolved semitone index; a transient voice is spawned on
	// each fire.
	noteIndex int

	offset   float64
	next     float64 // next absolute beat at which the event fires
	duration float64
	velocity float64
	active   bool
}

// pendingStop schedules the automatic stop+retire of a transient note
// voice whose event carried a duration.
type pendingStop struct {
	voice   playback.Voice
	endBeat float64
}

// Sequencer holds at most one loaded song. It owns the preloaded sample
// voices and every transient note voice it spawns until they are retired.
type Sequencer struct {
	backend playback.Backend

	loaded      bool
	loop        bool
	beatsPerBar int
	bars        int
	startBeat   float64

	instrument    Instrument
	baseNoteIndex int
	hasInstrument bool

	events []seqEvent
	active []playback.Voice
	stops  []pendingStop
}

func NewSequencer(backend playback.Backend) *Sequencer {
	return &Sequencer{backend: backend}
}

func (s *Sequencer) Loaded() bool { return s.loaded }

func (s *Sequencer) Looping() bool { return s.loop }

// Load installs a new song. All sample voices are preloaded stopped; a
// failure aborts the whole load, retires any voices created for it, and
// leaves the previously loaded song untouched. On success the old song's
// voices are retired before the new state is installed.
func (s *Sequencer) Load(def *Definition, reaper *voices.Reaper) error {
	if def.BeatsPerBar < 1 || def.Bars < 1 {
		return fmt.Errorf("song: invalid bar length %dx%d", def.BeatsPerBar, def.Bars)
	}

	baseIndex := 0
	if def.Instrument != nil {
		idx, err := NoteIndex(def.Instrument.BaseNote)
		if err != nil {
			return fmt.Errorf("song: instrument base note: %w", err)
		}
		baseIndex = idx
	}

	events := make([]seqEvent, 0, len(def.Events))
	fail := func(err error) error {
		for _, ev := range events {
			reaper.Retire(ev.voice)
		}
		return err
	}
	for _, ed := range def.Events {
		ev := seqEvent{
			kind:     ed.Kind,
			offset:   ed.Offset,
			duration: ed.Duration,
			velocity: ed.Velocity,
		}
		switch ed.Kind {
		case EventSample:
			v, err := s.backend.Load(ed.Sample)
			if err != nil {
				return fail(fmt.Errorf("song: load %s: %w", ed.Sample, err))
			}
			v.SetVolume(clamp01(ed.Velocity))
			ev.voice = v
		case EventNote:
			if def.Instrument == nil {
				return fail(fmt.Errorf("song: note event %q without instrument", ed.Note))
			}
			idx, err := NoteIndex(ed.Note)
			if err != nil {
				return fail(fmt.Errorf("song: %w", err))
			}
			ev.noteIndex = idx
		default:
			return fail(fmt.Errorf("song: event without a kind"))
		}
		events = append(events, ev)
	}

	s.Unload(reaper)
	s.loaded = true
	s.loop = def.Loop
	s.beatsPerBar = def.BeatsPerBar
	s.bars = def.Bars
	s.events = events
	s.hasInstrument = def.Instrument != nil
	if def.Instrument != nil {
		s.instrument = *def.Instrument
		s.baseNoteIndex = baseIndex
	}
	return nil
}

// Unload retires every voice the song owns and clears the loaded state.
func (s *Sequencer) Unload(reaper *voices.Reaper) {
	s.retireTransients(reaper)
	for i := range s.events {
		reaper.Retire(s.events[i].voice)
	}
	s.events = nil
	s.loaded = false
	s.loop = false
	s.beatsPerBar = 0
	s.bars = 0
	s.startBeat = 0
	s.hasInstrument = false
}

// Play arms every event starting from the next whole beat.
func (s *Sequencer) Play(beat float64) error {
	if !s.loaded {
		return ErrNoSong
	}
	s.startBeat = math.Ceil(beat)
	for i := range s.events {
		s.events[i].active = true
		s.events[i].next = s.startBeat + s.events[i].offset
	}
	return nil
}

// Stop disarms every event and force-stops all transient note voices,
// retiring them together with their pending scheduled stops.
func (s *Sequencer) Stop(reaper *voices.Reaper) error {
	if !s.loaded {
		return ErrNoSong
	}
	for i := range s.events {
		s.events[i].active = false
		s.events[i].next = 0
	}
	s.retireTransients(reaper)
	return nil
}

func (s *Sequencer) SetLoop(loop bool) error {
	if !s.loaded {
		return ErrNoSong
	}
	s.loop = loop
	return nil
}

func (s *Sequencer) retireTransients(reaper *voices.Reaper) {
	for _, v := range s.active {
		v.Stop()
		reaper.Retire(v)
	}
	s.active = s.active[:0]
	s.stops = s.stops[:0]
}

// Advance fires every event whose cycle has elapsed. The catch-up loop
// replays firings missed by a delayed tick in order instead of dropping
// them; a non-looping song deactivates an event once its next beat would
// pass the song length.
func (s *Sequencer) Advance(beat float64, reaper *voices.Reaper) {
	if !s.loaded {
		return
	}
	songBeats := float64(s.beatsPerBar * s.bars)
	for i := range s.events {
		ev := &s.events[i]
		for ev.active && beat+beatEpsilon >= ev.next {
			s.fire(ev, beat)
			ev.next += float64(s.beatsPerBar)
			if !s.loop && ev.next-s.startBeat >= songBeats-beatEpsilon {
				ev.active = false
			}
		}
	}
	s.resolveStops(beat, reaper)
}

func (s *Sequencer) fire(ev *seqEvent, beat float64) {
	switch ev.kind {
	case EventSample:
		_ = ev.voice.Seek(0)
		_ = ev.voice.Start()
	case EventNote:
		v, err := s.backend.Load(s.instrument.Path)
		if err != nil {
			// Skip this firing; the event still advances so one bad spawn
			// cannot wedge the catch-up loop.
			return
		}
		v.SetRate(PitchRatio(ev.noteIndex, s.baseNoteIndex))
		v.SetVolume(clamp01(ev.velocity))
		_ = v.Start()
		s.active = append(s.active, v)
		if ev.duration > 0 {
			s.stops = append(s.stops, pendingStop{voice: v, endBeat: beat + ev.duration})
		}
	}
}

func (s *Sequencer) resolveStops(beat float64, reaper *voices.Reaper) {
	kept := s.stops[:0]
	for _, st := range s.stops {
		if beat+beatEpsilon >= st.endBeat {
			st.voice.Stop()
			s.dropActive(st.voice)
			reaper.Retire(st.voice)
		} else {
			kept = append(kept, st)
		}
	}
	s.stops = kept
}

func (s *Sequencer) dropActive(v playback.Voice) {
	kept := s.active[:0]
	for _, a := range s.active {
		if a != v {
			kept = append(kept, a)
		}
	}
	s.active = kept
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
