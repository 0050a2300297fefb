// Command tapedeck is the terminal audio player's entry point: it parses
// the CLI (internal/config), wires the Mixer, Playlist Controller, and
// Command Surface together, exports them over the media-control bus when
// one is available, and hands the whole thing to a bubbletea program.
// Grounded on the teacher's cmd/player.go: portaudio.Initialize/Terminate
// bracketing the run, SIGINT/SIGTERM handling via os/signal, slog set up
// before anything else logs.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/tapedeck/tapedeck/internal/command"
	"github.com/tapedeck/tapedeck/internal/config"
	"github.com/tapedeck/tapedeck/internal/decoder"
	_ "github.com/tapedeck/tapedeck/internal/decoder/flac"
	_ "github.com/tapedeck/tapedeck/internal/decoder/mp3"
	_ "github.com/tapedeck/tapedeck/internal/decoder/opus"
	_ "github.com/tapedeck/tapedeck/internal/decoder/vorbis"
	_ "github.com/tapedeck/tapedeck/internal/decoder/wav"
	"github.com/tapedeck/tapedeck/internal/mixer"
	"github.com/tapedeck/tapedeck/internal/mpris"
	"github.com/tapedeck/tapedeck/internal/playlist"
	"github.com/tapedeck/tapedeck/internal/slogx"
	"github.com/tapedeck/tapedeck/internal/ui"
)

const ringBufferBytes = 256 * 1024

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	switch err {
	case nil:
	case config.ErrShowVersion:
		fmt.Printf("tapedeck %s\n", config.Version)
		return 0
	case config.ErrShowHelp:
		return 0
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := slogx.Setup(os.Stderr, cfg.LogLevel, cfg.ForceLoggerColors)

	if len(cfg.Paths) == 0 {
		fmt.Fprintln(os.Stderr, "tapedeck: no input files (pass paths as arguments or pipe them on stdin)")
		return 1
	}

	// Every named backend (sndio/alsa/pipewire/coreaudio/auto) routes
	// through PortAudio's own host-API selection; this build carries no
	// CLI path to the beep sink.
	const backend = mixer.BackendPortAudio
	const deviceIndex = 1

	if err := portaudio.Initialize(); err != nil {
		logger.Error("portaudio initialization failed", slogx.Error(err))
		fmt.Fprintln(os.Stderr, "tapedeck: no audio backend available")
		return 1
	}
	defer portaudio.Terminate()

	pl := playlist.New(cfg.Paths)
	if pl.Len() == 0 {
		fmt.Fprintln(os.Stderr, "tapedeck: none of the given paths are a supported audio format")
		return 1
	}

	notifier := newBusNotifier(pl, cfg.Volume)
	m := mixer.New(ringBufferBytes, backend, deviceIndex, notifier, pl)
	notifier.mixer = m
	// Deferred before m.Destroy so the media-control bus is released after
	// the mixer has shut down; Close is safe on a nil *Player.
	var player *mpris.Player
	defer func() { player.Close() }()
	m.Start()
	defer m.Destroy()
	m.SetVolume(cfg.Volume)

	surface := command.New(m, pl, nil)
	model := ui.New(surface, m, pl, cfg.NoImage)
	surface.SetUI(model)

	player, err = mpris.New(cfg.MPRISName, surface, notifier.snapshot())
	if err != nil {
		logger.Warn("media-control bus unavailable, continuing without it", slogx.Error(err))
	}
	notifier.player = player

	// Playback starts immediately from the first track in the playlist
	// (spec §8 scenarios 1-3); SelectFocused already carries the
	// error-resilient retry that skips any broken candidates.
	surface.SelectFocused()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		surface.Quit()
	}()

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error("ui exited with error", slogx.Error(err))
		return 1
	}
	return 0
}

// busNotifier adapts mixer.Notifier events into playlist metadata updates
// and media-control bus notifications. Metadata is refreshed once per
// NotifyPlay by re-opening the decoder just for its tags (spec §9
// "Metadata snapshot cadence"); the Mixer itself never reaches into the
// Playlist Controller beyond the PlaylistSource interface it already
// satisfies, so this glue lives at the composition root instead.
type busNotifier struct {
	playlist *playlist.Controller
	mixer    *mixer.Mixer
	player   *mpris.Player

	volume float64
	muted  bool
}

func newBusNotifier(pl *playlist.Controller, initialVolume float64) *busNotifier {
	return &busNotifier{playlist: pl, volume: initialVolume}
}

func (n *busNotifier) NotifyPlay(path string) {
	if d, err := decoder.Open(path); err == nil {
		n.playlist.SetMetadata(decoder.MetadataSnapshot(d))
		d.Close()
	}
	n.push()
}

func (n *busNotifier) NotifyPause(paused bool) { n.push() }
func (n *busNotifier) NotifySeek(ms int64)     { n.push() }

func (n *busNotifier) NotifyVolume(v float64) {
	n.volume = v
	n.push()
}

func (n *busNotifier) NotifyMute(muted bool) {
	n.muted = muted
	n.push()
}

func (n *busNotifier) push() {
	if n.player != nil {
		n.player.Notify(n.snapshot())
	}
}

func (n *busNotifier) snapshot() mpris.Snapshot {
	meta := n.playlist.Metadata()
	idx, _ := n.playlist.SelectedIndex()
	vol := n.volume
	if n.muted {
		vol = 0
	}

	s := mpris.Snapshot{
		RepeatMode: n.playlist.RepeatMode(),
		Volume:     vol,
		TrackIndex: int64(idx),
		Title:      meta.Title,
		Album:      meta.Album,
		Artist:     meta.Artist,
		Rate:       1.0,
	}
	if n.mixer != nil {
		s.State = n.mixer.State()
		s.PositionMs = n.mixer.CurrentMs()
		s.TotalMs = n.mixer.TotalMs()
	}
	return s
}

