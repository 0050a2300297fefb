package command

import (
	"testing"

	"github.com/tapedeck/tapedeck/internal/mixer"
	"github.com/tapedeck/tapedeck/internal/playlist"
)

type fakeUI struct {
	sizes   []int
	restore int
}

func (f *fakeUI) IncreaseImageSize(delta int) { f.sizes = append(f.sizes, delta) }
func (f *fakeUI) RestoreImageSize()           { f.restore++ }

func newTestSurface() (*Surface, *fakeUI) {
	m := mixer.New(1024, mixer.BackendNull, 0, nil, nil)
	p := playlist.New([]string{"/music/a.wav", "/music/b.wav"})
	ui := &fakeUI{}
	return New(m, p, ui), ui
}

func TestQuitFlipsRunning(t *testing.T) {
	s, _ := newTestSurface()
	if !s.Running() {
		t.Fatal("Surface should start running")
	}
	s.Quit()
	if s.Running() {
		t.Error("Quit should clear Running")
	}
}

func TestSeekFromInputParsesMinutesSeconds(t *testing.T) {
	s, _ := newTestSurface()
	if err := s.SeekFromInput("01:30"); err != nil {
		t.Fatalf("SeekFromInput(01:30): %v", err)
	}
}

func TestSeekFromInputParsesPercent(t *testing.T) {
	s, _ := newTestSurface()
	if err := s.SeekFromInput("50%"); err != nil {
		t.Fatalf("SeekFromInput(50%%): %v", err)
	}
}

func TestSeekFromInputRejectsGarbage(t *testing.T) {
	s, _ := newTestSurface()
	if err := s.SeekFromInput("not-a-time"); err == nil {
		t.Error("expected ErrBadSeekInput for garbage input")
	}
}

func TestFocusNextMovesCursor(t *testing.T) {
	s, _ := newTestSurface()
	s.FocusNext()
	// Surface has no cursor getter; read the cursor from the Playlist
	// Controller it wraps.
	tr, ok := s.playlist.FocusedTrack()
	if !ok || tr.ShortName != "b.wav" {
		t.Fatalf("cursor after FocusNext = %+v, want b.wav", tr)
	}
}

func TestImageSizeDelegatesToUI(t *testing.T) {
	s, ui := newTestSurface()
	s.IncreaseImageSize(1)
	s.RestoreImageSize()
	if len(ui.sizes) != 1 || ui.sizes[0] != 1 {
		t.Errorf("IncreaseImageSize did not reach UI collaborator: %+v", ui.sizes)
	}
	if ui.restore != 1 {
		t.Error("RestoreImageSize did not reach UI collaborator")
	}
}

func TestCycleRepeatModesDelegates(t *testing.T) {
	s, _ := newTestSurface()
	mode := s.CycleRepeatModes(true)
	if mode.String() != "Track" {
		t.Errorf("CycleRepeatModes(true) = %v, want Track", mode)
	}
}
