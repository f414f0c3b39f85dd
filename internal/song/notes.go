package song

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Semitone offsets within an octave for note letters A-G.
var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// NoteIndex parses a note name like "C4", "F#2" or "Eb3" into a semitone
// index: 12*(octave+1) + letter offset, sharp +1, flat -1. C4 is 60.
func NoteIndex(name string) (int, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return 0, fmt.Errorf("empty note name")
	}
	base, ok := noteOffsets[lower(s[0])]
	if !ok {
		return 0, fmt.Errorf("invalid note letter in %q", name)
	}
	rest := s[1:]
	shift := 0
	if rest != "" {
		switch rest[0] {
		case '#', '+':
			shift = 1
			rest = rest[1:]
		case 'b':
			shift = -1
			rest = rest[1:]
		}
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in note %q", name)
	}
	return 12*(octave+1) + base + shift, nil
}

// PitchRatio returns the playback speed multiplier that shifts base up or
// down to note: 2^((note-base)/12).
func PitchRatio(noteIndex, baseIndex int) float64 {
	return math.Pow(2, float64(noteIndex-baseIndex)/12)
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
