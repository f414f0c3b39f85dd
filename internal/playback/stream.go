package playback

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
)

// Decoded streams are 16-bit little-endian stereo: 4 bytes per frame.
const frameBytes = 4

// loopStream wraps a decoded source and restarts it from the beginning on
// EOF while looping is enabled. The audio driver reads from its own
// goroutine, so all access is serialized.
type loopStream struct {
	mu      sync.Mutex
	src     io.ReadSeeker
	length  int64 // source length in bytes, frame aligned
	looping bool
}

func newLoopStream(src io.ReadSeeker, length int64) *loopStream {
	return &loopStream{src: src, length: length - length%frameBytes}
}

func (s *loopStream) setLooping(loop bool) {
	s.mu.Lock()
	s.looping = loop
	s.mu.Unlock()
}

func (s *loopStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for total < len(p) {
		n, err := s.src.Read(p[total:])
		total += n
		if err == io.EOF {
			if !s.looping || s.length == 0 {
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
			if _, serr := s.src.Seek(0, io.SeekStart); serr != nil {
				return total, serr
			}
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func (s *loopStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Seek(offset, whence)
}

// rateStream resamples its source by a runtime-settable ratio using linear
// interpolation. Ratio 1 is a straight passthrough; positions reported to
// the player are in output frames.
type rateStream struct {
	mu       sync.Mutex
	src      io.ReadSeeker
	ratio    float64
	srcFrame float64 // fractional source frame cursor (ratio != 1)
	outPos   int64   // output byte position
	buf      []byte
}

func newRateStream(src io.ReadSeeker) *rateStream {
	return &rateStream{src: src, ratio: 1}
}

func (s *rateStream) setRatio(ratio float64) {
	if ratio <= 0 {
		return
	}
	s.mu.Lock()
	s.ratio = ratio
	s.mu.Unlock()
}

func (s *rateStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ratio == 1 {
		n, err := s.src.Read(p)
		s.outPos += int64(n)
		return n, err
	}

	outFrames := len(p) / frameBytes
	if outFrames == 0 {
		return 0, nil
	}
	first := int64(math.Floor(s.srcFrame))
	if first < 0 {
		first = 0
		s.srcFrame = 0
	}
	last := int64(math.Floor(s.srcFrame+float64(outFrames-1)*s.ratio)) + 1
	need := int((last - first + 1) * frameBytes)
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]
	if _, err := s.src.Seek(first*frameBytes, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(s.src, s.buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, err
	}
	gotFrames := int64(n / frameBytes)
	if gotFrames == 0 {
		return 0, io.EOF
	}

	written := 0
	for f := 0; f < outFrames; f++ {
		idx := s.srcFrame - float64(first)
		i0 := int64(math.Floor(idx))
		if i0 >= gotFrames {
			break
		}
		i1 := i0 + 1
		if i1 >= gotFrames {
			i1 = gotFrames - 1
		}
		frac := idx - float64(i0)
		for ch := 0; ch < 2; ch++ {
			a := int16(binary.LittleEndian.Uint16(s.buf[i0*frameBytes+int64(ch*2):]))
			b := int16(binary.LittleEndian.Uint16(s.buf[i1*frameBytes+int64(ch*2):]))
			v := float64(a) + (float64(b)-float64(a))*frac
			binary.LittleEndian.PutUint16(p[f*frameBytes+ch*2:], uint16(int16(v)))
		}
		s.srcFrame += s.ratio
		written += frameBytes
	}
	s.outPos += int64(written)
	if written == 0 {
		return 0, io.EOF
	}
	return written, nil
}

func (s *rateStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.outPos + offset
	default:
		return 0, errors.New("playback: unsupported seek whence")
	}
	if target < 0 {
		target = 0
	}
	target -= target % frameBytes
	if s.ratio == 1 {
		if _, err := s.src.Seek(target, io.SeekStart); err != nil {
			return 0, err
		}
	} else {
		s.srcFrame = float64(target/frameBytes) * s.ratio
	}
	s.outPos = target
	return target, nil
}
