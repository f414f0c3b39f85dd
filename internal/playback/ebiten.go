package playback

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// The ebiten audio context is process-wide and cannot be torn down; all
// backends must agree on one sample rate.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// EbitenBackend implements Backend on the ebiten audio stack.
type EbitenBackend struct {
	ctx        *ebitaudio.Context
	sampleRate int
}

func NewEbitenBackend(sampleRate int) (*EbitenBackend, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	return &EbitenBackend{ctx: ctx, sampleRate: sampleRate}, nil
}

func (b *EbitenBackend) Load(path string) (Voice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src, length, err := decode(path, data, b.sampleRate)
	if err != nil {
		return nil, err
	}
	loop := newLoopStream(src, length)
	rate := newRateStream(loop)
	player, err := b.ctx.NewPlayer(rate)
	if err != nil {
		return nil, err
	}
	return &ebitenVoice{
		player:     player,
		loop:       loop,
		rate:       rate,
		sampleRate: b.sampleRate,
	}, nil
}

// Close is a no-op: players are closed per voice and the shared audio
// context outlives the backend.
func (b *EbitenBackend) Close() error { return nil }

func decode(path string, data []byte, sampleRate int) (io.ReadSeeker, int64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		s, err := wav.DecodeWithSampleRate(sampleRate, bytes.NewReader(data))
		if err != nil {
			return nil, 0, fmt.Errorf("decode %s: %w", path, err)
		}
		return s, s.Length(), nil
	case ".ogg":
		s, err := vorbis.DecodeWithSampleRate(sampleRate, bytes.NewReader(data))
		if err != nil {
			return nil, 0, fmt.Errorf("decode %s: %w", path, err)
		}
		return s, s.Length(), nil
	default:
		return nil, 0, fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
}

type ebitenVoice struct {
	player     *ebitaudio.Player
	loop       *loopStream
	rate       *rateStream
	sampleRate int
}

func (v *ebitenVoice) Start() error {
	v.player.Play()
	return nil
}

func (v *ebitenVoice) Stop() {
	v.player.Pause()
}

func (v *ebitenVoice) Seek(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	offset := time.Duration(frame) * time.Second / time.Duration(v.sampleRate)
	return v.player.SetPosition(offset)
}

func (v *ebitenVoice) Cursor() (int64, error) {
	return int64(v.player.Position().Seconds() * float64(v.sampleRate)), nil
}

func (v *ebitenVoice) SetVolume(vol float64) {
	v.player.SetVolume(vol)
}

func (v *ebitenVoice) SetLooping(loop bool) {
	v.loop.setLooping(loop)
}

func (v *ebitenVoice) SetRate(ratio float64) {
	v.rate.setRatio(ratio)
}

func (v *ebitenVoice) Close() error {
	v.player.Pause()
	return v.player.Close()
}
