// Package ui is the thin bubbletea/lipgloss collaborator that renders the
// playlist, transport status, and error queue, and turns key presses into
// Command Surface calls. Rendering itself is explicitly out of the core's
// scope; this package exists so the core has a runnable terminal front
// end, grounded on go-musicfox's ui package's general shape (a single
// tea.Model driving the whole screen) without any of its menu-stack
// machinery, which tapedeck has no use for.
package ui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tapedeck/tapedeck/internal/command"
	"github.com/tapedeck/tapedeck/internal/mixer"
	"github.com/tapedeck/tapedeck/internal/playlist"
	"github.com/tapedeck/tapedeck/internal/types"
)

// refreshInterval matches spec §9's "main loop polls song_ended at UI
// refresh cadence (≤ 100 ms)".
const refreshInterval = 80 * time.Millisecond

var (
	styleTitle    = lipgloss.NewStyle().Bold(true)
	styleFocused  = lipgloss.NewStyle().Reverse(true)
	stylePlaying  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleDim      = lipgloss.NewStyle().Faint(true)
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleStatus   = lipgloss.NewStyle().Padding(0, 1)
)

// Model is the bubbletea program's root model. It holds no state the
// Command Surface doesn't already own except purely-local rendering
// concerns (search-mode text entry, cover image zoom level).
type Model struct {
	surface  *command.Surface
	mixer    *mixer.Mixer
	playlist *playlist.Controller

	width, height int

	searching  bool
	searchText string

	imageSizeDelta int
	noImage        bool
}

// New builds the root model. surface must already be wired to mixer and
// playlist; they're passed again here only for read access the Command
// Surface doesn't expose (current position, volume, error queue).
func New(surface *command.Surface, m *mixer.Mixer, p *playlist.Controller, noImage bool) *Model {
	return &Model{surface: surface, mixer: m, playlist: p, noImage: noImage}
}

// IncreaseImageSize and RestoreImageSize satisfy command.UI.
func (m *Model) IncreaseImageSize(delta int) { m.imageSizeDelta += delta }
func (m *Model) RestoreImageSize()           { m.imageSizeDelta = 0 }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd {
	return tick()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		if !m.surface.Running() || m.playlist.EndOfPlaylist() {
			return m, tea.Quit
		}
		if err := m.mixer.NextSongIfPrevEnded(); err != nil {
			// Every candidate in this pass failed to open (or the
			// playlist has nothing left); there's nothing further to
			// play, so quit with the reason logged (spec §4.5).
			m.playlist.PushError(types.ErrKindRuntime, err.Error(), time.Now())
			slog.Info("ui: nothing further to play, quitting", "reason", err)
			return m, tea.Quit
		}
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch msg.String() {
	case "q":
		m.surface.Quit()
		return m, tea.Quit
	case "up", "k":
		m.surface.FocusPrev()
	case "down", "j":
		m.surface.FocusDown(1)
	case "pgup":
		m.surface.FocusUp(10)
	case "pgdown":
		m.surface.FocusDown(10)
	case "g", "home":
		m.surface.FocusFirst()
	case "G", "end":
		m.surface.FocusLast()
	case "enter":
		m.surface.SelectFocused()
	case ">", "n":
		m.surface.SelectNext()
	case "<", "p":
		m.surface.SelectPrev()
	case " ":
		m.surface.TogglePause()
	case "+", "=":
		m.surface.VolumeUp(0.05)
	case "-":
		m.surface.VolumeDown(0.05)
	case "m":
		m.surface.ToggleMute()
	case "]":
		m.surface.ChangeSampleRateUp(false)
	case "[":
		m.surface.ChangeSampleRateDown(false)
	case "0":
		m.surface.RestoreSampleRate()
	case "right":
		m.surface.SeekOff(5000)
	case "left":
		m.surface.SeekOff(-5000)
	case "r":
		m.surface.CycleRepeatModes(true)
	case "R":
		m.surface.CycleRepeatModes(false)
	case "c":
		m.surface.FocusSelectedAtCenter()
	case "/":
		m.searching = true
		m.searchText = ""
		m.surface.SubstringSearch("")
	case "esc":
		m.surface.ResetSearch()
	case "}":
		m.surface.IncreaseImageSize(1)
	case "{":
		m.surface.IncreaseImageSize(-1)
	}
	return m, nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.surface.CommitSearch()
		m.searching = false
	case tea.KeyEsc:
		m.surface.ResetSearch()
		m.searching = false
	case tea.KeyBackspace:
		if len(m.searchText) > 0 {
			m.searchText = m.searchText[:len(m.searchText)-1]
		}
		m.surface.SubstringSearch(m.searchText)
	case tea.KeyRunes:
		m.searchText += string(msg.Runes)
		m.surface.SubstringSearch(m.searchText)
	}
	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("tapedeck"))
	b.WriteString("\n\n")

	b.WriteString(m.renderPlaylist())

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")

	if m.searching {
		b.WriteString(fmt.Sprintf("search: %s\n", m.searchText))
	}

	for _, e := range m.playlist.Errors() {
		b.WriteString(styleError.Render(e.Text))
		b.WriteString("\n")
	}

	return b.String()
}

// renderPlaylist draws one row per visible track, marking the cursor
// with styleFocused and the currently playing track with stylePlaying.
func (m *Model) renderPlaylist() string {
	tracks, focused := m.playlist.VisibleTracks()
	playingPath, hasPlaying := m.playlist.SelectedPath()

	var b strings.Builder
	for i, t := range tracks {
		row := t.ShortName
		switch {
		case i == focused:
			row = styleFocused.Render(row)
		case hasPlaying && t.Path == playingPath:
			row = stylePlaying.Render(row)
		default:
			row = styleDim.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderStatusBar() string {
	state := m.mixer.State()
	stateStr := "stopped"
	switch state {
	case types.Playing:
		stateStr = "playing"
	case types.Paused:
		stateStr = "paused"
	}

	meta := m.playlist.Metadata()
	title := meta.Title
	if title == "" {
		title = "(no track)"
	}

	pos := formatMs(m.mixer.CurrentMs())
	total := formatMs(m.mixer.TotalMs())
	vol := int(m.mixer.Volume() * 100)
	muteMark := ""
	if m.mixer.Muted() {
		muteMark = " (muted)"
	}
	rate := m.mixer.PlaybackRatio()

	status := fmt.Sprintf("[%s] %s  %s/%s  vol %d%%%s  rate %.2fx  repeat %s",
		stateStr, title, pos, total, vol, muteMark, rate, m.playlist.RepeatMode())
	return styleStatus.Render(status)
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
