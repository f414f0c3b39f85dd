package song

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EventKind tags the two event payloads: a sample file retriggered in
// place, or a note synthesized from the shared instrument.
type EventKind int

const (
	EventSample EventKind = iota + 1
	EventNote
)

type EventDef struct {
	Kind     EventKind
	Sample   string // EventSample: path to the sample file
	Note     string // EventNote: note name, e.g. "C#4"
	Offset   float64
	Duration float64
	Velocity float64
}

// Instrument is the shared sample used for note synthesis. TuningHz is
// accepted from definitions but does not enter the pitch formula; it is
// carried for forward compatibility.
type Instrument struct {
	Path     string
	BaseNote string
	TuningHz float64
}

// Definition is a parsed song or preset file.
type Definition struct {
	Tempo       float64
	Loop        bool
	BeatsPerBar int
	Bars        int
	Instrument  *Instrument
	Events      []EventDef
}

// ReadDefinition loads and parses a definition file.
func ReadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinition(string(data))
}

// ParseDefinition parses the directive format:
//
//	#TEMPO{128}
//	#LOOP{1}
//	#BAR{4,2}                    beats-per-bar, bar count
//	#INSTRUMENT{inst.wav,C4,440} path, base note, optional tuning Hz
//	#EVENT{sample,kick.wav,0}    kind, source, offset[,duration[,velocity]]
//	#EVENT{note,C4,0.5,0.25,0.9}
//
// Lines not starting with '#' are ignored. Event order is preserved.
func ParseDefinition(src string) (*Definition, error) {
	def := &Definition{}
	haveTempo := false
	for ln, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		key, args, err := splitDirective(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ln+1, err)
		}
		switch key {
		case "TEMPO":
			bpm, err := parseFloatArg(args, 0)
			if err != nil || bpm <= 0 {
				return nil, fmt.Errorf("line %d: invalid tempo %q", ln+1, argOr(args, 0))
			}
			def.Tempo = bpm
			haveTempo = true
		case "LOOP":
			def.Loop = argOr(args, 0) == "1" || strings.EqualFold(argOr(args, 0), "true")
		case "BAR":
			bpb, err1 := strconv.Atoi(argOr(args, 0))
			bars, err2 := strconv.Atoi(argOr(args, 1))
			if err1 != nil || err2 != nil || bpb < 1 || bars < 1 {
				return nil, fmt.Errorf("line %d: invalid bar length %q", ln+1, strings.Join(args, ","))
			}
			def.BeatsPerBar = bpb
			def.Bars = bars
		case "INSTRUMENT":
			if argOr(args, 0) == "" || argOr(args, 1) == "" {
				return nil, fmt.Errorf("line %d: instrument needs a path and a base note", ln+1)
			}
			inst := &Instrument{Path: argOr(args, 0), BaseNote: argOr(args, 1)}
			if argOr(args, 2) != "" {
				hz, err := parseFloatArg(args, 2)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid tuning %q", ln+1, argOr(args, 2))
				}
				inst.TuningHz = hz
			}
			def.Instrument = inst
		case "EVENT":
			ev, err := parseEvent(args)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", ln+1, err)
			}
			def.Events = append(def.Events, ev)
		}
	}
	if !haveTempo {
		return nil, fmt.Errorf("definition is missing #TEMPO")
	}
	if len(def.Events) > 0 && def.BeatsPerBar == 0 {
		return nil, fmt.Errorf("definition has events but no #BAR")
	}
	for _, ev := range def.Events {
		if ev.Kind == EventNote && def.Instrument == nil {
			return nil, fmt.Errorf("note event %q requires #INSTRUMENT", ev.Note)
		}
	}
	return def, nil
}

func parseEvent(args []string) (EventDef, error) {
	ev := EventDef{Velocity: 1}
	switch strings.ToLower(argOr(args, 0)) {
	case "sample":
		ev.Kind = EventSample
		ev.Sample = argOr(args, 1)
		if ev.Sample == "" {
			return ev, fmt.Errorf("sample event needs a file path")
		}
	case "note":
		ev.Kind = EventNote
		ev.Note = argOr(args, 1)
		if _, err := NoteIndex(ev.Note); err != nil {
			return ev, err
		}
	default:
		return ev, fmt.Errorf("unknown event kind %q", argOr(args, 0))
	}
	off, err := parseFloatArg(args, 2)
	if err != nil || off < 0 {
		return ev, fmt.Errorf("invalid event offset %q", argOr(args, 2))
	}
	ev.Offset = off
	if argOr(args, 3) != "" {
		d, err := parseFloatArg(args, 3)
		if err != nil || d < 0 {
			return ev, fmt.Errorf("invalid event duration %q", argOr(args, 3))
		}
		ev.Duration = d
	}
	if argOr(args, 4) != "" {
		v, err := parseFloatArg(args, 4)
		if err != nil {
			return ev, fmt.Errorf("invalid event velocity %q", argOr(args, 4))
		}
		ev.Velocity = v
	}
	return ev, nil
}

func splitDirective(line string) (string, []string, error) {
	open := strings.IndexByte(line, '{')
	closeBrace := strings.LastIndexByte(line, '}')
	if open < 0 || closeBrace <= open {
		return "", nil, fmt.Errorf("malformed directive %q", line)
	}
	key := strings.ToUpper(strings.TrimSpace(line[1:open]))
	body := line[open+1 : closeBrace]
	parts := strings.Split(body, ",")
	args := make([]string, 0, len(parts))
	for _, p := range parts {
		args = append(args, strings.TrimSpace(p))
	}
	return key, args, nil
}

func argOr(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func parseFloatArg(args []string, i int) (float64, error) {
	return strconv.ParseFloat(argOr(args, i), 64)
}
