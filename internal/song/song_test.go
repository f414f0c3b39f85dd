package song

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/mkalten/beatrig-go/internal/playback"
	"github.com/mkalten/beatrig-go/internal/voices"
)

type fakeVoice struct {
	path    string
	starts  int
	stops   int
	closes  int
	seeks   []int64
	volume  float64
	rate    float64
	looping bool
}

func (v *fakeVoice) Start() error            { v.starts++; return nil }
func (v *fakeVoice) Stop()                   { v.stops++ }
func (v *fakeVoice) Seek(f int64) error      { v.seeks = append(v.seeks, f); return nil }
func (v *fakeVoice) Cursor() (int64, error)  { return 0, nil }
func (v *fakeVoice) SetVolume(vol float64)   { v.volume = vol }
func (v *fakeVoice) SetLooping(loop bool)    { v.looping = loop }
func (v *fakeVoice) SetRate(ratio float64)   { v.rate = ratio }
func (v *fakeVoice) Close() error            { v.closes++; return nil }

type fakeBackend struct {
	loaded []*fakeVoice
	fail   map[string]bool
}

func (b *fakeBackend) Load(path string) (playback.Voice, error) {
	if b.fail[path] {
		return nil, fmt.Errorf("decode %s: %w", path, errors.New("bad file"))
	}
	v := &fakeVoice{path: path, volume: 1, rate: 1}
	b.loaded = append(b.loaded, v)
	return v, nil
}

func (b *fakeBackend) Close() error { return nil }

func testDefinition() *Definition {
	return &Definition{
		Tempo:       120,
		Loop:        true,
		BeatsPerBar: 4,
		Bars:        2,
		Instrument:  &Instrument{Path: "inst.wav", BaseNote: "C4"},
		Events: []EventDef{
			{Kind: EventSample, Sample: "kick.wav", Offset: 0, Velocity: 1},
			{Kind: EventSample, Sample: "snare.wav", Offset: 1, Velocity: 0.8},
			{Kind: EventNote, Note: "C5", Offset: 0.5, Duration: 0.25, Velocity: 0.9},
		},
	}
}

func TestLoadPreloadsSampleVoicesStopped(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	if err := s.Load(testDefinition(), r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !s.Loaded() || !s.Looping() {
		t.Fatalf("song should be loaded and looping")
	}
	// Only the two sample events load voices; note events load at fire time.
	if len(b.loaded) != 2 {
		t.Fatalf("expected 2 preloaded voices, got %d", len(b.loaded))
	}
	for _, v := range b.loaded {
		if v.starts != 0 {
			t.Fatalf("preloaded voice %s must stay stopped", v.path)
		}
	}
	if b.loaded[1].volume != 0.8 {
		t.Fatalf("sample velocity should set voice volume, got %v", b.loaded[1].volume)
	}
}

func TestLoadFailureRollsBackAndKeepsPriorSong(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	if err := s.Load(testDefinition(), r); err != nil {
		t.Fatalf("first load: %v", err)
	}
	prior := len(b.loaded)

	bad := testDefinition()
	bad.Events = append(bad.Events, EventDef{Kind: EventSample, Sample: "missing.wav"})
	b.fail = map[string]bool{"missing.wav": true}
	if err := s.Load(bad, r); err == nil {
		t.Fatalf("load with missing sample should fail")
	}
	if !s.Loaded() {
		t.Fatalf("failed load must leave prior song installed")
	}
	// The voices created for the failed load are retired; the prior song's
	// voices are not.
	created := len(b.loaded) - prior
	if r.Len() != created {
		t.Fatalf("expected %d retired voices from rollback, got %d", created, r.Len())
	}
}

func TestPlayArmsEventsFromNextWholeBeat(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	if err := s.Load(testDefinition(), r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Play(9.3); err != nil {
		t.Fatalf("play: %v", err)
	}
	if s.startBeat != 10 {
		t.Fatalf("startBeat = %v, want 10", s.startBeat)
	}
	if s.events[1].next != 11 || !s.events[1].active {
		t.Fatalf("event not armed at startBeat+offset: %+v", s.events[1])
	}
}

func TestPlayWithoutSongFails(t *testing.T) {
	s := NewSequencer(&fakeBackend{})
	r := voices.NewReaper()
	if err := s.Play(0); !errors.Is(err, ErrNoSong) {
		t.Fatalf("expected ErrNoSong, got %v", err)
	}
	if err := s.Stop(r); !errors.Is(err, ErrNoSong) {
		t.Fatalf("expected ErrNoSong, got %v", err)
	}
	if err := s.SetLoop(true); !errors.Is(err, ErrNoSong) {
		t.Fatalf("expected ErrNoSong, got %v", err)
	}
}

func TestAdvanceFiresSampleEventsOncePerBar(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	def := testDefinition()
	def.Events = def.Events[:1] // kick at offset 0 only
	if err := s.Load(def, r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Play(0); err != nil {
		t.Fatalf("play: %v", err)
	}
	kick := b.loaded[0]
	for _, beat := range []float64{0, 0.5, 3.9, 4, 4.2, 7.999999, 8} {
		s.Advance(beat, r)
	}
	// Fires at beats 0, 4, 8 on a 4-beat bar; looping keeps going.
	if kick.starts != 3 {
		t.Fatalf("kick fired %d times, want 3", kick.starts)
	}
	for _, f := range kick.seeks {
		if f != 0 {
			t.Fatalf("sample fire must restart from frame 0, got %d", f)
		}
	}
}

func TestAdvanceCatchesUpMissedBars(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	def := testDefinition()
	def.Events = def.Events[:1]
	if err := s.Load(def, r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Play(0); err != nil {
		t.Fatalf("play: %v", err)
	}
	// One delayed tick three bars late replays every missed firing.
	s.Advance(12, r)
	if got := b.loaded[0].starts; got != 4 {
		t.Fatalf("delayed tick fired %d times, want 4 (beats 0,4,8,12)", got)
	}
}

func TestNonLoopingSongDeactivatesAfterBars(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	def := testDefinition()
	def.Loop = false
	def.Events = def.Events[:1] // offset 0, beatsPerBar=4, bars=2
	if err := s.Load(def, r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Play(10); err != nil {
		t.Fatalf("play: %v", err)
	}
	for beat := 10.0; beat <= 30; beat++ {
		s.Advance(beat, r)
	}
	// Fires at 10 and 14, then deactivates when 18 reaches 10+8.
	if got := b.loaded[0].starts; got != 2 {
		t.Fatalf("non-looping event fired %d times, want 2", got)
	}
	if s.events[0].active {
		t.Fatalf("event should be deactivated")
	}
}

func TestNoteEventSpawnsTransientPitchedVoice(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	def := testDefinition()
	def.Events = def.Events[2:] // note C5, offset 0.5, duration 0.25, velocity 0.9
	if err := s.Load(def, r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Play(0); err != nil {
		t.Fatalf("play: %v", err)
	}
	s.Advance(0.5, r)
	if len(b.loaded) != 1 {
		t.Fatalf("expected 1 spawned voice, got %d", len(b.loaded))
	}
	v := b.loaded[0]
	if v.path != "inst.wav" || v.starts != 1 {
		t.Fatalf("transient voice not started from instrument: %+v", v)
	}
	if math.Abs(v.rate-2) > 1e-12 {
		t.Fatalf("C5 over C4 base should double the rate, got %v", v.rate)
	}
	if v.volume != 0.9 {
		t.Fatalf("velocity should drive volume, got %v", v.volume)
	}

	// Duration elapses: the voice is stopped and retired.
	s.Advance(0.75, r)
	if v.stops != 1 {
		t.Fatalf("transient voice should be stopped after its duration")
	}
	if r.Len() != 1 {
		t.Fatalf("transient voice should be retired, reaper len %d", r.Len())
	}
	if len(s.active) != 0 || len(s.stops) != 0 {
		t.Fatalf("transient bookkeeping should be empty")
	}
}

func TestNoteSpawnFailureSkipsFiringWithoutWedging(t *testing.T) {
	b := &fakeBackend{fail: map[string]bool{"inst.wav": true}}
	s := NewSequencer(b)
	r := voices.NewReaper()
	def := testDefinition()
	def.Events = def.Events[2:]
	if err := s.Load(def, r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Play(0); err != nil {
		t.Fatalf("play: %v", err)
	}
	s.Advance(0.5, r)
	if s.events[0].next != 4.5 {
		t.Fatalf("event must advance past a failed spawn, next = %v", s.events[0].next)
	}
}

func TestStopForceStopsTransients(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	def := testDefinition()
	def.Events = def.Events[2:]
	if err := s.Load(def, r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Play(0); err != nil {
		t.Fatalf("play: %v", err)
	}
	s.Advance(0.5, r)
	v := b.loaded[0]
	if err := s.Stop(r); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if v.stops != 1 {
		t.Fatalf("song stop must force-stop transient voices")
	}
	if r.Len() != 1 {
		t.Fatalf("transient should be retired on stop")
	}
	if s.events[0].active || s.events[0].next != 0 {
		t.Fatalf("stop must disarm events: %+v", s.events[0])
	}
	// Further advances fire nothing.
	s.Advance(100, r)
	if v.starts != 1 {
		t.Fatalf("disarmed event fired")
	}
}

func TestLoadReplacesPriorSongRetiringItsVoices(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	def := testDefinition()
	def.Events = def.Events[:2]
	if err := s.Load(def, r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Load(def, r); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("prior song's 2 sample voices should be retired, got %d", r.Len())
	}
}

func TestUnloadClearsEverything(t *testing.T) {
	b := &fakeBackend{}
	s := NewSequencer(b)
	r := voices.NewReaper()
	if err := s.Load(testDefinition(), r); err != nil {
		t.Fatalf("load: %v", err)
	}
	s.Unload(r)
	if s.Loaded() || len(s.events) != 0 {
		t.Fatalf("unload must clear loaded state")
	}
	if r.Len() != 2 {
		t.Fatalf("unload should retire the 2 preloaded voices, got %d", r.Len())
	}
}
