// Package command implements the Command Surface: the flat set of
// thread-safe entry points shared by the UI thread and the media-control
// thread (spec §4.6). It holds only non-owning references to the Mixer
// and Playlist Controller and never talks to the audio callback thread
// directly. Some commands (seek, volume) reach locks the callback also
// takes, but only through the Mixer, and the callback never calls back
// into this package.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tapedeck/tapedeck/internal/mixer"
	"github.com/tapedeck/tapedeck/internal/playlist"
	"github.com/tapedeck/tapedeck/internal/types"
)

// sampleRateStepHz is the per-nudge delta change_sample_rate_up/down
// applies, matching the teacher's transform command's notion of a sample
// rate expressed directly in Hz rather than a percentage.
const sampleRateStepHz = 1000

// UI is the non-owning collaborator for the two commands that are purely
// a rendering concern (spec §4.6's "delegated to the UI collaborator").
type UI interface {
	IncreaseImageSize(delta int)
	RestoreImageSize()
}

// Surface dispatches every command in spec §4.6's table to the Mixer
// and/or Playlist Controller. Every exported method may be called
// concurrently from any goroutine; Mixer and Controller each already
// serialize their own state with their own locks, so Surface adds no
// locking of its own beyond the running flag.
type Surface struct {
	mixer    *mixer.Mixer
	playlist *playlist.Controller
	ui       UI

	running atomic.Bool
}

// New builds a Surface over an already-started Mixer and Playlist
// Controller. ui may be nil if the build has no renderer (e.g. headless).
func New(m *mixer.Mixer, p *playlist.Controller, ui UI) *Surface {
	s := &Surface{mixer: m, playlist: p, ui: ui}
	s.running.Store(true)
	return s
}

// SetUI attaches the UI collaborator once it exists; command.New and
// ui.New each need the other, so the composition root builds the Surface
// with a nil UI first, builds the Model over it, then wires it back here.
func (s *Surface) SetUI(ui UI) { s.ui = ui }

// Running reports whether quit has been issued.
func (s *Surface) Running() bool { return s.running.Load() }

// Quit implements spec §4.6's quit: every loop observing Running() exits.
func (s *Surface) Quit() { s.running.Store(false) }

// --- Cursor motion ---

func (s *Surface) FocusNext()       { s.playlist.FocusNext() }
func (s *Surface) FocusPrev()       { s.playlist.FocusPrev() }
func (s *Surface) FocusFirst()      { s.playlist.FocusFirst() }
func (s *Surface) FocusLast()       { s.playlist.FocusLast() }
func (s *Surface) FocusUp(n int)    { s.playlist.FocusUp(n) }
func (s *Surface) FocusDown(n int)  { s.playlist.FocusDown(n) }

// FocusSelected snaps the cursor to the currently-playing track.
func (s *Surface) FocusSelected() { s.playlist.FocusSelected() }

// FocusSelectedAtCenter is FocusSelected with a UI centering hint.
func (s *Surface) FocusSelectedAtCenter() { s.playlist.FocusSelectedAtCenter() }

// --- Selection / transport ---

// SelectFocused plays the track under the cursor.
func (s *Surface) SelectFocused() bool {
	tr, ok := s.playlist.SelectFocused()
	if !ok {
		return false
	}
	return s.playWithRetry(tr.Path)
}

// SelectNext plays the next track in the current working set.
func (s *Surface) SelectNext() bool {
	tr, ok := s.playlist.SelectNext()
	if !ok {
		return false
	}
	return s.playWithRetry(tr.Path)
}

// SelectPrev plays the previous track in the current working set.
func (s *Surface) SelectPrev() bool {
	tr, ok := s.playlist.SelectPrev()
	if !ok {
		return false
	}
	return s.playWithRetry(tr.Path)
}

// playWithRetry implements spec §4.5's "Error-resilient playback": on a
// failed play, it queues "failed to open "<path>"" and advances to the
// next candidate per the repeat policy, bounded to one full pass over the
// playlist. If every candidate fails, it quits rather than spin forever.
func (s *Surface) playWithRetry(path string) bool {
	for attempts := 0; attempts < s.playlist.Len(); attempts++ {
		if s.mixer.Play(path) {
			return true
		}
		s.playlist.PushError(types.ErrKindOpenFailure, fmt.Sprintf("failed to open %q", path), time.Now())

		var ok bool
		path, ok = s.playlist.NextOnEnd()
		if !ok {
			break
		}
	}
	s.Quit()
	return false
}

// TogglePause flips the mixer's pause state.
func (s *Surface) TogglePause() {
	s.mixer.Pause(s.mixer.State() == types.Playing)
}

// --- Volume / mute ---

func (s *Surface) VolumeUp(step float64)   { s.mixer.VolumeUp(step) }
func (s *Surface) VolumeDown(step float64) { s.mixer.VolumeDown(step) }
func (s *Surface) ToggleMute()             { s.mixer.ToggleMute() }

// SetVolume sets the absolute volume; used by the MPRIS Volume property
// writeback, which always arrives in canonical [0, MaxVolume] units.
func (s *Surface) SetVolume(v float64) { s.mixer.SetVolume(v) }

// --- Playback speed ---

// ChangeSampleRateUp nudges playback speed up by sampleRateStepHz.
func (s *Surface) ChangeSampleRateUp(save bool) {
	s.mixer.ChangeSampleRate(s.mixer.ActiveRate()+sampleRateStepHz, save)
}

// ChangeSampleRateDown nudges playback speed down by sampleRateStepHz.
func (s *Surface) ChangeSampleRateDown(save bool) {
	s.mixer.ChangeSampleRate(s.mixer.ActiveRate()-sampleRateStepHz, save)
}

// RestoreSampleRate returns playback to 1x speed.
func (s *Surface) RestoreSampleRate() { s.mixer.RestoreSampleRate() }

// --- Seeking ---

// SeekOff implements spec §4.6's seek_off(ms): a relative seek.
func (s *Surface) SeekOff(deltaMs int64) { s.mixer.SeekOff(deltaMs) }

// ErrBadSeekInput is returned by SeekFromInput when text parses as
// neither "mm:ss" nor "pct%".
var ErrBadSeekInput = fmt.Errorf("command: seek input must be mm:ss or pct%%")

// SeekFromInput implements spec §4.6's seek_from_input: parses a
// user-typed time string, either "mm:ss" or "pct%", and issues an
// absolute seek.
func (s *Surface) SeekFromInput(text string) error {
	text = strings.TrimSpace(text)

	if strings.HasSuffix(text, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
		if err != nil {
			return ErrBadSeekInput
		}
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		ms := int64(float64(s.mixer.TotalMs()) * pct / 100)
		s.mixer.SeekMs(ms)
		return nil
	}

	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 {
		return ErrBadSeekInput
	}
	minutes, err1 := strconv.Atoi(parts[0])
	seconds, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || seconds < 0 {
		return ErrBadSeekInput
	}
	ms := (time.Duration(minutes)*time.Minute + time.Duration(seconds*float64(time.Second))).Milliseconds()
	s.mixer.SeekMs(ms)
	return nil
}

// --- Repeat mode ---

// CycleRepeatModes implements spec §4.6's cycle_repeat_modes(fwd).
func (s *Surface) CycleRepeatModes(forward bool) types.RepeatMode {
	return s.playlist.CycleRepeatMode(forward)
}

// --- Filtering ---

// SubstringSearch implements spec §4.6's substring_search: refreshes the
// live filter on every keystroke; the caller commits on Enter via
// CommitSearch.
func (s *Surface) SubstringSearch(query string) { s.playlist.SetQuery(query) }

// CommitSearch narrows the working set to the current search results.
func (s *Surface) CommitSearch() { s.playlist.CommitQuery() }

// ResetSearch clears any active filter.
func (s *Surface) ResetSearch() { s.playlist.ResetFilter() }

// --- UI-delegated commands ---

// IncreaseImageSize implements spec §4.6's increase_image_size(+-1); a
// no-op when the build has no UI collaborator.
func (s *Surface) IncreaseImageSize(delta int) {
	if s.ui != nil {
		s.ui.IncreaseImageSize(delta)
	}
}

// RestoreImageSize implements spec §4.6's restore_image_size.
func (s *Surface) RestoreImageSize() {
	if s.ui != nil {
		s.ui.RestoreImageSize()
	}
}
