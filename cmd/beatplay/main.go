package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mkalten/beatrig-go"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		samplePath = flag.String("file", "", "sample file to play immediately")
		onBeat     = flag.Bool("on-beat", false, "with -file, launch on the next quantized beat")
		quant      = flag.Float64("quant", 1, "quantization grid in beats for -on-beat")
		songPath   = flag.String("song", "", "song definition file to load and play")
		presetPath = flag.String("preset", "", "preset definition file (applies tempo)")
		tempo      = flag.Float64("tempo", 0, "override transport tempo in BPM")
		seconds    = flag.Float64("seconds", 8, "how long to run the tick loop")
	)
	flag.Parse()

	eng, err := beatrig.New(beatrig.WithSampleRate(*sampleRate))
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.Init(); err != nil {
		log.Fatal(err)
	}
	defer eng.Shutdown()

	if *presetPath != "" {
		if err := eng.LoadPreset(*presetPath); err != nil {
			log.Fatal(err)
		}
	}
	if *tempo > 0 {
		if err := eng.SetTempo(*tempo); err != nil {
			log.Fatal(err)
		}
	}
	if err := eng.TransportPlay(); err != nil {
		log.Fatal(err)
	}

	if *samplePath != "" {
		var id int
		if *onBeat {
			id, err = eng.PlayOnBeat(*samplePath, *quant)
		} else {
			id, err = eng.Play(*samplePath)
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("voice %d: %s\n", id, *samplePath)
	}

	if *songPath != "" {
		if err := eng.LoadSong(*songPath); err != nil {
			log.Fatal(err)
		}
		if err := eng.PlaySong(); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("song playing at %.1f BPM\n", eng.Tempo())
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()
	deadline := time.After(time.Duration(*seconds * float64(time.Second)))
	for {
		select {
		case <-ticker.C:
			if err := eng.Tick(); err != nil {
				log.Fatal(err)
			}
		case <-report.C:
			fmt.Printf("beat %.2f\n", eng.BeatPosition())
		case <-deadline:
			return
		}
	}
}
