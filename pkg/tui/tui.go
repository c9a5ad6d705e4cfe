// Package tui provides the terminal step-grid player for polydrum
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/polydrum/pkg/errkind"
	"github.com/james-see/polydrum/pkg/pattern"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(14)

	hitStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	restStyle = lipgloss.NewStyle().
			Foreground(darkGray)

	playheadStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// refreshInterval is how often the playhead is redrawn.
const refreshInterval = 30 * time.Millisecond

// Player is the live playback surface the grid drives.
type Player interface {
	Play(ctx context.Context, p *pattern.Pattern) error
	Stop()
	Playing() bool
	SetKit(kit pattern.Kit)
	Kit() pattern.Kit
	StepNow() int
	SamplesReady() bool
}

// Exporter writes the pattern to disk.
type Exporter interface {
	ExportMIDI(p *pattern.Pattern) ([]byte, error)
	ExportWAV(ctx context.Context, p *pattern.Pattern, kit pattern.Kit) ([]byte, error)
}

type keyMap struct {
	Play key.Binding
	Kit  key.Binding
	MIDI key.Binding
	WAV  key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Kit, k.MIDI, k.WAV, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Play: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/stop")),
	Kit:  key.NewBinding(key.WithKeys("k"), key.WithHelp("k", "cycle kit")),
	MIDI: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "export midi")),
	WAV:  key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "export wav")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Model is the step grid.
type Model struct {
	player   Player
	exporter Exporter
	pattern  *pattern.Pattern
	outBase  string

	spinner   spinner.Model
	help      help.Model
	exporting bool
	status    string
	err       error
	width     int
}

type tickMsg time.Time

// exportDoneMsg signals export completion
type exportDoneMsg struct {
	path string
	err  error
}

// New creates a grid for p. Exports are written next to outBase with .mid
// or .wav appended.
func New(player Player, exporter Exporter, p *pattern.Pattern, outBase string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		player:   player,
		exporter: exporter,
		pattern:  p,
		outBase:  outBase,
		spinner:  s,
		help:     help.New(),
	}
}

// Init starts the spinner and the redraw ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case exportDoneMsg:
		m.exporting = false
		m.err = msg.err
		if msg.err == nil {
			m.status = "wrote " + filepath.Base(msg.path)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.player.Stop()
		return m, tea.Quit

	case key.Matches(msg, keys.Play):
		m.err = nil
		if m.player.Playing() {
			m.player.Stop()
			m.status = "stopped"
			return m, nil
		}
		if err := m.player.Play(context.Background(), m.pattern); err != nil {
			m.err = err
			return m, nil
		}
		m.status = "playing"

	case key.Matches(msg, keys.Kit):
		m.player.SetKit(nextKit(m.player.Kit()))
		m.status = "kit " + strings.ToLower(string(m.player.Kit()))

	case key.Matches(msg, keys.MIDI):
		if m.exporting {
			return m, nil
		}
		m.exporting = true
		return m, tea.Batch(m.spinner.Tick, m.export(".mid"))

	case key.Matches(msg, keys.WAV):
		if m.exporting {
			return m, nil
		}
		m.exporting = true
		return m, tea.Batch(m.spinner.Tick, m.export(".wav"))
	}
	return m, nil
}

func nextKit(k pattern.Kit) pattern.Kit {
	for i, known := range pattern.Kits {
		if known == k {
			return pattern.Kits[(i+1)%len(pattern.Kits)]
		}
	}
	return pattern.Kits[0]
}

func (m Model) export(ext string) tea.Cmd {
	p, kit, base := m.pattern, m.player.Kit(), m.outBase
	return func() tea.Msg {
		var (
			data []byte
			err  error
		)
		switch ext {
		case ".mid":
			data, err = m.exporter.ExportMIDI(p)
		default:
			data, err = m.exporter.ExportWAV(context.Background(), p, kit)
		}
		if err != nil {
			return exportDoneMsg{err: err}
		}

		path := base + ext
		if err := os.WriteFile(path, data, 0644); err != nil {
			return exportDoneMsg{err: fmt.Errorf("failed to write %s: %w", path, err)}
		}
		return exportDoneMsg{path: path}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	p := m.pattern
	s.WriteString(titleStyle.Render(fmt.Sprintf(" POLYDRUM  %g BPM  %s  %s ", p.BPM, p.TimeSignature, m.player.Kit())))
	s.WriteString("\n")
	if p.Description != "" {
		s.WriteString(lipgloss.NewStyle().Foreground(silverGray).Render(p.Description))
		s.WriteString("\n")
	}
	s.WriteString("\n")
	s.WriteString(m.grid())

	s.WriteString(statusStyle.Render(m.statusLine()))
	s.WriteString("\n")
	s.WriteString(m.help.View(keys))

	return boxStyle.Render(s.String())
}

// grid renders one row per instrument with the current step highlighted.
func (m Model) grid() string {
	p := m.pattern
	var hits [pattern.NumInstruments][]bool
	for i := range hits {
		hits[i] = make([]bool, p.TotalSteps)
	}
	for _, n := range p.Notes {
		if idx := n.Instrument.Index(); idx >= 0 && n.Step < p.TotalSteps {
			hits[idx][n.Step] = true
		}
	}

	now := m.player.StepNow()
	var s strings.Builder
	for i, inst := range pattern.Instruments {
		s.WriteString(labelStyle.Render(string(inst)))
		for step := 0; step < p.TotalSteps; step++ {
			if step > 0 && step%p.SubdivisionsPerBeat == 0 {
				s.WriteString(" ")
			}
			cell := "·"
			style := restStyle
			if hits[i][step] {
				cell = "■"
				style = hitStyle
			}
			if step == now {
				style = playheadStyle
				if !hits[i][step] {
					cell = "│"
				}
			}
			s.WriteString(style.Render(cell))
		}
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) statusLine() string {
	switch {
	case m.exporting:
		return m.spinner.View() + " exporting..."
	case m.err != nil:
		return errorStyle.Render("✗ " + errkind.Message(m.err))
	case m.player.Playing() && m.player.Kit() == pattern.Acoustic && !m.player.SamplesReady():
		return m.spinner.View() + " loading samples..."
	case m.status != "":
		return successStyle.Render(m.status)
	}
	return "ready"
}

// Run starts the TUI application
func Run(player Player, exporter Exporter, p *pattern.Pattern, outBase string) error {
	prog := tea.NewProgram(New(player, exporter, p, outBase), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
