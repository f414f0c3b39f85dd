// Package beatrig is a real-time musical playback core: independently
// triggerable sound voices, a tempo-driven transport clock, quantized
// launches on future beat boundaries, and a loopable pattern sequencer.
// It is driven by an external caller through control entry points and a
// periodic Tick; audio decoding and mixing are delegated to the playback
// backend.
package beatrig

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mkalten/beatrig-go/internal/playback"
	"github.com/mkalten/beatrig-go/internal/song"
	"github.com/mkalten/beatrig-go/internal/transport"
	"github.com/mkalten/beatrig-go/internal/voices"
)

var (
	ErrNotInitialized = errors.New("beatrig: engine not initialized")
	ErrUnknownVoice   = errors.New("beatrig: unknown voice id")
	ErrInvalidTempo   = transport.ErrInvalidTempo
	ErrNoSong         = song.ErrNoSong
)

type Option func(*config)

type config struct {
	sampleRate int
	backend    playback.Backend
}

func defaultConfig() config {
	return config{sampleRate: 48000}
}

func WithSampleRate(sampleRate int) Option {
	return func(cfg *config) {
		cfg.sampleRate = sampleRate
	}
}

// WithBackend replaces the default ebiten-backed playback engine.
func WithBackend(backend playback.Backend) Option {
	return func(cfg *config) {
		cfg.backend = backend
	}
}

// Engine owns all playback state. One lock serializes every control entry
// point and the tick, so each operation is atomic with respect to every
// other.
type Engine struct {
	mu sync.Mutex

	sampleRate  int
	userBackend playback.Backend

	inited   bool
	backend  playback.Backend
	clock    *transport.Clock
	registry *voices.Registry
	launches *voices.LaunchQueue
	reaper   *voices.Reaper
	seq      *song.Sequencer
}

func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("beatrig: sample rate must be positive")
	}
	return &Engine{
		sampleRate:  cfg.sampleRate,
		userBackend: cfg.backend,
	}, nil
}

// Init brings the engine up. Idempotent.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited {
		return nil
	}
	backend := e.userBackend
	if backend == nil {
		b, err := playback.NewEbitenBackend(e.sampleRate)
		if err != nil {
			return err
		}
		backend = b
	}
	e.backend = backend
	e.clock = transport.NewClock()
	e.registry = voices.NewRegistry()
	e.launches = voices.NewLaunchQueue()
	e.reaper = voices.NewReaper()
	e.seq = song.NewSequencer(backend)
	e.inited = true
	return nil
}

// Shutdown releases every voice, song and queue. Idempotent.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return nil
	}
	e.seq.Unload(e.reaper)
	for _, v := range e.registry.Drain() {
		e.reaper.Retire(v)
	}
	e.launches.Reset()
	e.reaper.Flush()
	e.clock.Stop()
	err := e.backend.Close()
	e.backend = nil
	e.inited = false
	return err
}

// Play loads a sound and starts it immediately, returning its voice id.
func (e *Engine) Play(path string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return 0, ErrNotInitialized
	}
	v, err := e.backend.Load(path)
	if err != nil {
		return 0, err
	}
	_ = v.Start()
	return e.registry.Register(v), nil
}

// Stop retires a voice. The handle is removed from all bookkeeping now and
// physically released on the next tick.
func (e *Engine) Stop(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	v, ok := e.registry.Remove(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVoice, id)
	}
	e.launches.Drop(id)
	v.Stop()
	e.reaper.Retire(v)
	return nil
}

// Pause records the playback position and silences the voice, keeping it
// registered.
func (e *Engine) Pause(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	v, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVoice, id)
	}
	frame, err := v.Cursor()
	if err != nil {
		return fmt.Errorf("beatrig: pause %d: %w", id, err)
	}
	e.registry.SetPausedFrame(id, frame)
	v.Stop()
	return nil
}

// Resume restarts a voice at its recorded pause position, if any.
func (e *Engine) Resume(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	v, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVoice, id)
	}
	if frame, ok := e.registry.PausedFrame(id); ok && frame > 0 {
		_ = v.Seek(frame)
	}
	if err := v.Start(); err != nil {
		return fmt.Errorf("beatrig: resume %d: %w", id, err)
	}
	e.registry.ClearPausedFrame(id)
	return nil
}

// SetVolume sets a voice's volume, clamped to [0,1].
func (e *Engine) SetVolume(id int, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	v, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVoice, id)
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	v.SetVolume(volume)
	return nil
}

func (e *Engine) SetLoop(id int, loop bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	v, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVoice, id)
	}
	v.SetLooping(loop)
	return nil
}

func (e *Engine) TransportPlay() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	e.clock.Play()
	return nil
}

func (e *Engine) TransportPause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	e.clock.Pause()
	return nil
}

func (e *Engine) TransportStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	e.clock.Stop()
	return nil
}

func (e *Engine) SetTempo(bpm float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	return e.clock.SetTempo(bpm)
}

// BeatPosition returns the transport's current beat, or 0 before Init.
func (e *Engine) BeatPosition() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return 0
	}
	return e.clock.Beat()
}

func (e *Engine) Tempo() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return 0
	}
	return e.clock.Tempo()
}

func (e *Engine) TransportPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inited && e.clock.Playing()
}

// LoadPreset reads a definition file and applies its tempo only.
func (e *Engine) LoadPreset(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	def, err := song.ReadDefinition(path)
	if err != nil {
		return err
	}
	return e.clock.SetTempo(def.Tempo)
}

// PlayOnBeat loads a sound stopped and schedules it to start on the next
// multiple of quant beats. Non-positive quant is treated as 1.
func (e *Engine) PlayOnBeat(path string, quant float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return 0, ErrNotInitialized
	}
	v, err := e.backend.Load(path)
	if err != nil {
		return 0, err
	}
	id := e.registry.Register(v)
	e.launches.Add(id, voices.Quantize(e.clock.Beat(), quant))
	return id, nil
}

// Tick advances the core. The caller invokes it at a regular cadence.
// Ordering within one tick: quantized launch resolution, then song
// advancement, then the deferred deletion flush, so a voice is never
// released in the tick that fires it.
func (e *Engine) Tick() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	beat := e.clock.Beat()
	for _, l := range e.launches.CollectDue(beat) {
		if v, ok := e.registry.Get(l.ID); ok {
			_ = v.Seek(0)
			_ = v.Start()
		}
	}
	e.seq.Advance(beat, e.reaper)
	e.reaper.Flush()
	return nil
}

// LoadSong loads a song definition, replacing any previous song, and
// applies the definition's tempo.
func (e *Engine) LoadSong(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	def, err := song.ReadDefinition(path)
	if err != nil {
		return err
	}
	if err := e.seq.Load(def, e.reaper); err != nil {
		return err
	}
	if def.Tempo > 0 {
		_ = e.clock.SetTempo(def.Tempo)
	}
	return nil
}

// PlaySong starts the loaded song from the next whole beat, starting the
// transport if it is not already running.
func (e *Engine) PlaySong() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	e.clock.Play()
	return e.seq.Play(e.clock.Beat())
}

func (e *Engine) StopSong() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	return e.seq.Stop(e.reaper)
}

func (e *Engine) SetSongLoop(loop bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return ErrNotInitialized
	}
	return e.seq.SetLoop(loop)
}

func (e *Engine) SongLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inited && e.seq.Loaded()
}

func (e *Engine) SongLooping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inited && e.seq.Looping()
}
