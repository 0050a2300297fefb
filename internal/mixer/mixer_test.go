package mixer

import (
	"testing"
	"time"

	"github.com/tapedeck/tapedeck/internal/types"
)

type recordingNotifier struct {
	plays   []string
	pauses  []bool
	volumes []float64
	mutes   []bool
}

func (r *recordingNotifier) NotifyPlay(path string)    { r.plays = append(r.plays, path) }
func (r *recordingNotifier) NotifyPause(p bool)        { r.pauses = append(r.pauses, p) }
func (r *recordingNotifier) NotifySeek(ms int64)       {}
func (r *recordingNotifier) NotifyVolume(v float64)    { r.volumes = append(r.volumes, v) }
func (r *recordingNotifier) NotifyMute(m bool)         { r.mutes = append(r.mutes, m) }

type fakePlaylist struct {
	next   string
	ok     bool
	length int
	errors []string
}

func (f *fakePlaylist) NextOnEnd() (string, bool) { return f.next, f.ok }

func (f *fakePlaylist) PushError(kind types.ErrorKind, text string, now time.Time) {
	f.errors = append(f.errors, text)
}

func (f *fakePlaylist) Len() int { return f.length }

func newTestMixer(n *recordingNotifier, p PlaylistSource) *Mixer {
	// A nil *recordingNotifier must become a nil Notifier, not a non-nil
	// interface holding a nil pointer.
	var notifier Notifier
	if n != nil {
		notifier = n
	}
	return New(1024, BackendNull, 0, notifier, p)
}

func TestVolumeClampsToMaxVolume(t *testing.T) {
	m := newTestMixer(nil, nil)
	m.SetVolume(100)
	if got := m.Volume(); got != types.MaxVolume {
		t.Errorf("Volume() = %v, want %v", got, types.MaxVolume)
	}
	m.SetVolume(-5)
	if got := m.Volume(); got != 0 {
		t.Errorf("Volume() = %v, want 0", got)
	}
}

func TestVolumeUpDownNotifies(t *testing.T) {
	n := &recordingNotifier{}
	m := newTestMixer(n, nil)
	m.SetVolume(0.5)
	m.VolumeUp(0.1)
	if got := m.Volume(); got < 0.59 || got > 0.61 {
		t.Errorf("Volume() after VolumeUp = %v, want ~0.6", got)
	}
	m.VolumeDown(0.2)
	if len(n.volumes) != 3 {
		t.Errorf("expected 3 volume notifications, got %d", len(n.volumes))
	}
}

func TestToggleMuteFlipsAndNotifies(t *testing.T) {
	n := &recordingNotifier{}
	m := newTestMixer(n, nil)
	if m.Muted() {
		t.Fatal("mixer should start unmuted")
	}
	m.ToggleMute()
	if !m.Muted() {
		t.Error("ToggleMute should mute")
	}
	m.ToggleMute()
	if m.Muted() {
		t.Error("ToggleMute should unmute again")
	}
	if len(n.mutes) != 2 {
		t.Errorf("expected 2 mute notifications, got %d", len(n.mutes))
	}
}

func TestGainIsZeroWhenMuted(t *testing.T) {
	m := newTestMixer(nil, nil)
	m.SetVolume(1.0)
	if g := m.gain(); g != 1.0 {
		t.Errorf("gain() = %v, want 1.0 at volume 1", g)
	}
	m.ToggleMute()
	if g := m.gain(); g != 0 {
		t.Errorf("gain() = %v, want 0 when muted", g)
	}
}

func TestGainIsVolumeCubed(t *testing.T) {
	m := newTestMixer(nil, nil)
	m.SetVolume(0.5)
	got := m.gain()
	want := float32(0.125)
	if got < want-0.001 || got > want+0.001 {
		t.Errorf("gain() = %v, want ~%v", got, want)
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	n := &recordingNotifier{}
	m := newTestMixer(n, nil)
	m.Pause(true)
	m.Pause(true)
	if len(n.pauses) != 1 {
		t.Errorf("expected exactly one pause notification, got %d", len(n.pauses))
	}
	m.Pause(false)
	if len(n.pauses) != 2 {
		t.Errorf("expected two notifications after unpause, got %d", len(n.pauses))
	}
}

func TestNextSongIfPrevEndedOnlyFiresOnEndedFlag(t *testing.T) {
	m := newTestMixer(nil, &fakePlaylist{ok: false})
	if err := m.NextSongIfPrevEnded(); err != nil {
		t.Errorf("expected nil error when song_ended is unset, got %v", err)
	}
}

func TestNextSongIfPrevEndedWithNoCandidateErrors(t *testing.T) {
	m := newTestMixer(nil, &fakePlaylist{ok: false})
	m.songEnded.Store(true)
	if err := m.NextSongIfPrevEnded(); err == nil {
		t.Error("expected error when playlist has no next candidate")
	}
}

func TestChangeSampleRateClamps(t *testing.T) {
	m := newTestMixer(nil, nil)
	m.ChangeSampleRate(1, true)
	if got := m.ActiveRate(); got != MinSampleRate {
		t.Errorf("ActiveRate() = %d, want %d", got, MinSampleRate)
	}
	if got := m.NominalRate(); got != MinSampleRate {
		t.Errorf("NominalRate() = %d, want %d", got, MinSampleRate)
	}

	m.ChangeSampleRate(1_000_000, false)
	if got := m.ActiveRate(); got != MaxSampleRate {
		t.Errorf("ActiveRate() = %d, want %d", got, MaxSampleRate)
	}
	if got := m.NominalRate(); got != MinSampleRate {
		t.Errorf("NominalRate() should be untouched by save=false, got %d", got)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	m := newTestMixer(nil, nil)
	m.Start()
	m.Destroy()
	m.Destroy()
}
