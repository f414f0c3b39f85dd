package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mkalten/beatrig-go"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	beatStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("84"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	eng        *beatrig.Engine
	samplePath string
	lastErr    string
	quitting   bool
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if err := m.eng.Tick(); err != nil {
			m.lastErr = err.Error()
		}
		return m, tickCmd()

	case tea.KeyMsg:
		m.lastErr = ""
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case " ":
			var err error
			if m.eng.TransportPlaying() {
				err = m.eng.TransportPause()
			} else {
				err = m.eng.TransportPlay()
			}
			m.setErr(err)

		case "s":
			m.setErr(m.eng.TransportStop())

		case "+", "=":
			m.setErr(m.eng.SetTempo(m.eng.Tempo() + 5))

		case "-", "_":
			m.setErr(m.eng.SetTempo(m.eng.Tempo() - 5))

		case "p":
			m.setErr(m.eng.PlaySong())

		case "x":
			m.setErr(m.eng.StopSong())

		case "l":
			m.setErr(m.eng.SetSongLoop(!m.eng.SongLooping()))

		case "enter":
			if m.samplePath == "" {
				m.lastErr = "no -file given"
				break
			}
			if _, err := m.eng.PlayOnBeat(m.samplePath, 1); err != nil {
				m.setErr(err)
			}
		}
	}
	return m, nil
}

func (m *model) setErr(err error) {
	if err != nil {
		m.lastErr = err.Error()
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	state := "stopped"
	if m.eng.TransportPlaying() {
		state = "playing"
	}
	loop := "off"
	if m.eng.SongLooping() {
		loop = "on"
	}
	s := titleStyle.Render("beatpad") + "\n\n"
	s += beatStyle.Render(fmt.Sprintf("beat %8.2f", m.eng.BeatPosition())) + "\n"
	s += fmt.Sprintf("tempo %.0f BPM  transport %s  song loop %s\n\n", m.eng.Tempo(), state, loop)
	s += statusStyle.Render("space play/pause · s stop · +/- tempo · p song play · x song stop · l loop · enter launch sample · q quit")
	if m.lastErr != "" {
		s += "\n" + errStyle.Render(m.lastErr)
	}
	return s + "\n"
}

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		songPath   = flag.String("song", "", "song definition file to load")
		samplePath = flag.String("file", "", "sample file for quantized launches")
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

	m := model{eng: eng, samplePath: *samplePath}
	if *songPath != "" {
		if err := eng.LoadSong(*songPath); err != nil {
			log.Fatal(err)
		}
	}
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
