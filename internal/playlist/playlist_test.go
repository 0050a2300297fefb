package playlist

import (
	"testing"
	"time"

	"github.com/tapedeck/tapedeck/internal/types"
)

func newTestController() *Controller {
	return New([]string{
		"/music/a.mp3",
		"/music/b.flac",
		"/music/c.wav",
		"/ignored/readme.txt",
	})
}

func TestNewDropsUnsupportedExtensions(t *testing.T) {
	c := newTestController()
	if got := c.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3 (readme.txt should be dropped)", got)
	}
}

func TestFocusNextPrevWrap(t *testing.T) {
	c := newTestController()
	c.FocusFirst()
	c.FocusPrev()
	tr, ok := c.FocusedTrack()
	if !ok || tr.ShortName != "c.wav" {
		t.Errorf("FocusPrev from first should wrap to last, got %+v", tr)
	}

	c.FocusNext()
	tr, ok = c.FocusedTrack()
	if !ok || tr.ShortName != "a.mp3" {
		t.Errorf("FocusNext from last should wrap to first, got %+v", tr)
	}
}

func TestFocusUpDownClamp(t *testing.T) {
	c := newTestController()
	c.FocusUp(10)
	if tr, _ := c.FocusedTrack(); tr.ShortName != "a.mp3" {
		t.Errorf("FocusUp should clamp at 0, got %+v", tr)
	}
	c.FocusDown(10)
	if tr, _ := c.FocusedTrack(); tr.ShortName != "c.wav" {
		t.Errorf("FocusDown should clamp at last, got %+v", tr)
	}
}

func TestSetQueryFiltersCaseInsensitive(t *testing.T) {
	c := newTestController()
	c.SetQuery("FLAC")
	c.CommitQuery()
	if got := len(c.visible); got != 1 {
		t.Fatalf("expected 1 visible track after commit, got %d", got)
	}
	if c.tracks[c.visible[0]].ShortName != "b.flac" {
		t.Errorf("unexpected visible track after filter: %+v", c.tracks[c.visible[0]])
	}
}

func TestSetQueryEmptyRestoresAll(t *testing.T) {
	c := newTestController()
	c.SetQuery("mp3")
	c.SetQuery("")
	if got := len(c.search); got != 3 {
		t.Errorf("empty query should restore all visible, got %d search indices", got)
	}
}

func TestSelectFocusedAndFocusSelected(t *testing.T) {
	c := newTestController()
	c.FocusNext()
	tr, ok := c.SelectFocused()
	if !ok || tr.ShortName != "b.flac" {
		t.Fatalf("SelectFocused: got %+v, ok=%v", tr, ok)
	}

	c.FocusFirst()
	c.FocusSelected()
	if tr, _ := c.FocusedTrack(); tr.ShortName != "b.flac" {
		t.Errorf("FocusSelected should snap cursor to selected track, got %+v", tr)
	}
}

func TestSelectNextWrapsWithinWorkingSet(t *testing.T) {
	c := newTestController()
	c.SelectFocused() // selects a.mp3

	tr, ok := c.SelectNext()
	if !ok || tr.ShortName != "b.flac" {
		t.Fatalf("SelectNext: got %+v", tr)
	}
	tr, ok = c.SelectNext()
	if !ok || tr.ShortName != "c.wav" {
		t.Fatalf("SelectNext: got %+v", tr)
	}
	tr, ok = c.SelectNext()
	if !ok || tr.ShortName != "a.mp3" {
		t.Errorf("SelectNext should wrap to first, got %+v", tr)
	}
}

func TestCycleRepeatModeForwardAndBackward(t *testing.T) {
	c := newTestController()
	if got := c.CycleRepeatMode(true); got != types.RepeatTrack {
		t.Errorf("first forward cycle = %v, want Track", got)
	}
	if got := c.CycleRepeatMode(true); got != types.RepeatPlaylist {
		t.Errorf("second forward cycle = %v, want Playlist", got)
	}
	if got := c.CycleRepeatMode(false); got != types.RepeatTrack {
		t.Errorf("backward cycle = %v, want Track", got)
	}
}

func TestNextOnEndRepeatTrackKeepsCurrent(t *testing.T) {
	c := newTestController()
	c.SelectFocused() // a.mp3
	c.CycleRepeatMode(true) // Track

	path, ok := c.NextOnEnd()
	if !ok || path != "/music/a.mp3" {
		t.Errorf("NextOnEnd with RepeatTrack: got %q, ok=%v", path, ok)
	}
}

func TestNextOnEndRepeatPlaylistWraps(t *testing.T) {
	c := newTestController()
	c.FocusLast()
	c.SelectFocused() // c.wav, last track
	c.CycleRepeatMode(true)
	c.CycleRepeatMode(true) // Playlist

	path, ok := c.NextOnEnd()
	if !ok || path != "/music/a.mp3" {
		t.Errorf("NextOnEnd with RepeatPlaylist at end: got %q, ok=%v, want wrap to a.mp3", path, ok)
	}
}

func TestNextOnEndRepeatNoneEndsAtLastTrack(t *testing.T) {
	c := newTestController()
	c.FocusLast()
	c.SelectFocused() // c.wav, last track, repeat mode None (default)

	_, ok := c.NextOnEnd()
	if ok {
		t.Error("NextOnEnd at last track with RepeatNone should report no next candidate")
	}
	if !c.EndOfPlaylist() {
		t.Error("EndOfPlaylist() should be true after RepeatNone exhausts the playlist")
	}
	if c.Running() {
		t.Error("Running() should be false after RepeatNone exhausts the playlist")
	}
}

func TestNextOnEndRepeatNoneAdvancesMidPlaylist(t *testing.T) {
	c := newTestController()
	c.SelectFocused() // a.mp3

	path, ok := c.NextOnEnd()
	if !ok || path != "/music/b.flac" {
		t.Errorf("NextOnEnd with RepeatNone mid-playlist: got %q, ok=%v", path, ok)
	}
	if c.EndOfPlaylist() {
		t.Error("EndOfPlaylist() should remain false mid-playlist")
	}
}

func TestPushErrorDeduplicatesWithinWindow(t *testing.T) {
	c := newTestController()
	now := time.Now()
	c.PushError(types.ErrKindOpenFailure, "file not found", now)
	c.PushError(types.ErrKindOpenFailure, "file not found", now.Add(time.Second))
	if got := len(c.Errors()); got != 1 {
		t.Errorf("expected deduplication within window, got %d entries", got)
	}

	c.PushError(types.ErrKindOpenFailure, "file not found", now.Add(10*time.Second))
	if got := len(c.Errors()); got != 2 {
		t.Errorf("expected a new entry after dedupe window elapses, got %d", got)
	}
}

func TestPushErrorQueueIsBounded(t *testing.T) {
	c := newTestController()
	now := time.Now()
	for i := 0; i < errorQueueCapacity+5; i++ {
		c.PushError(types.ErrKindRuntime, "distinct message", now.Add(time.Duration(i)*time.Hour))
	}
	if got := len(c.Errors()); got != errorQueueCapacity {
		t.Errorf("Errors() length = %d, want bounded at %d", got, errorQueueCapacity)
	}
}
