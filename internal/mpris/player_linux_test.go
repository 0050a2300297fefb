//go:build linux

package mpris

import (
	"testing"

	"github.com/tapedeck/tapedeck/internal/types"
)

func TestNormalizeVolumeDividesByMaxVolume(t *testing.T) {
	if got := normalizeVolume(types.MaxVolume); got != 1.0 {
		t.Errorf("normalizeVolume(MaxVolume) = %v, want 1.0", got)
	}
	if got := normalizeVolume(0); got != 0 {
		t.Errorf("normalizeVolume(0) = %v, want 0", got)
	}
	if got := normalizeVolume(-1); got != 0 {
		t.Errorf("normalizeVolume(-1) = %v, want 0 (clamped)", got)
	}
}

func TestLoopStatusForMapsAllThreeModes(t *testing.T) {
	cases := map[types.RepeatMode]string{
		types.RepeatNone:     "None",
		types.RepeatTrack:    "Track",
		types.RepeatPlaylist: "Playlist",
	}
	for mode, want := range cases {
		if got := loopStatusFor(mode); got != want {
			t.Errorf("loopStatusFor(%v) = %q, want %q", mode, got, want)
		}
	}
}

func TestPlaybackStatusForMapsKnownStates(t *testing.T) {
	if s, err := playbackStatusFor(types.Playing); err != nil || s != "Playing" {
		t.Errorf("playbackStatusFor(Playing) = %q, %v", s, err)
	}
	if s, err := playbackStatusFor(types.Paused); err != nil || s != "Paused" {
		t.Errorf("playbackStatusFor(Paused) = %q, %v", s, err)
	}
}

func TestMetadataForOmitsEmptyFields(t *testing.T) {
	s := Snapshot{TrackIndex: 2, TotalMs: 1000}
	m := metadataFor(s)
	if _, ok := m["xesam:title"]; ok {
		t.Error("metadataFor should omit xesam:title when Title is empty")
	}
	if _, ok := m["mpris:trackid"]; !ok {
		t.Error("metadataFor should always set mpris:trackid")
	}
}

func TestMetadataForIncludesPopulatedFields(t *testing.T) {
	s := Snapshot{TrackIndex: 0, TotalMs: 5000, Title: "Song", Album: "Album", Artist: "Artist"}
	m := metadataFor(s)
	if _, ok := m["xesam:title"]; !ok {
		t.Error("metadataFor should include xesam:title when set")
	}
	if _, ok := m["xesam:artist"]; !ok {
		t.Error("metadataFor should include xesam:artist when set")
	}
}

func TestTimeInUsConvertsMillisecondsToMicroseconds(t *testing.T) {
	if got := timeInUs(1000); got != 1_000_000 {
		t.Errorf("timeInUs(1000ms) = %d, want 1000000us", got)
	}
}
